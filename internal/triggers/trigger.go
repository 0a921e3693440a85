// Package triggers evaluates inbound events against trigger conditions and
// materializes tasks from templates on match.
package triggers

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Type enumerates the supported trigger kinds.
type Type string

const (
	TypeFileSystem Type = "file_system"
	TypeEmail      Type = "email"
	TypeTime       Type = "time"
	TypeWebhook    Type = "webhook"
	TypeManual     Type = "manual"
)

// Trigger initiates tasks when matching events arrive.
type Trigger struct {
	ID            string          `json:"id"`
	AgentID       string          `json:"agent_id"`
	Name          string          `json:"name"`
	Type          Type            `json:"trigger_type"`
	Config        Config          `json:"config"`
	TaskType      string          `json:"task_type"`
	TaskInput     json.RawMessage `json:"task_input"`
	Enabled       bool            `json:"enabled"`
	LastTriggered *time.Time      `json:"last_triggered,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// Config is a tagged union: exactly the variant matching the trigger type is
// set. Conditions apply to every variant.
type Config struct {
	FileSystem *FileSystemConfig `json:"file_system,omitempty"`
	Email      *EmailConfig      `json:"email,omitempty"`
	Webhook    *WebhookConfig    `json:"webhook,omitempty"`
	Conditions []Condition       `json:"conditions,omitempty"`
}

// FileSystemConfig watches paths for file events.
type FileSystemConfig struct {
	Path      string   `json:"path"`
	Patterns  []string `json:"patterns,omitempty"` // glob patterns, e.g. "*.csv"
	Events    []string `json:"events,omitempty"`   // create, modify, delete
	Recursive bool     `json:"recursive,omitempty"`
}

// EmailConfig filters inbound mail.
type EmailConfig struct {
	FromContains        string   `json:"from_contains,omitempty"`
	SubjectContains     string   `json:"subject_contains,omitempty"`
	HasAttachment       *bool    `json:"has_attachment,omitempty"`
	Labels              []string `json:"labels,omitempty"`
	PollIntervalSeconds int      `json:"poll_interval_seconds,omitempty"`
}

// WebhookConfig describes an inbound HTTP endpoint. The optional shared
// secret authenticates callers before any condition runs.
type WebhookConfig struct {
	Endpoint string `json:"endpoint"`
	Secret   string `json:"secret,omitempty"`
	Method   string `json:"method,omitempty"`
}

// Validate rejects malformed triggers before they are persisted.
func (t *Trigger) Validate() error {
	if t.AgentID == "" {
		return fmt.Errorf("trigger agent_id is required")
	}
	if t.TaskType == "" {
		return fmt.Errorf("trigger task_type is required")
	}

	switch t.Type {
	case TypeFileSystem:
		if t.Config.FileSystem == nil {
			return fmt.Errorf("file_system trigger requires a file_system config")
		}
		if t.Config.FileSystem.Path == "" {
			return fmt.Errorf("file_system trigger requires a path")
		}
	case TypeEmail:
		if t.Config.Email == nil {
			return fmt.Errorf("email trigger requires an email config")
		}
	case TypeWebhook:
		if t.Config.Webhook == nil {
			return fmt.Errorf("webhook trigger requires a webhook config")
		}
		if t.Config.Webhook.Endpoint == "" {
			return fmt.Errorf("webhook trigger requires an endpoint")
		}
	case TypeTime, TypeManual:
		// No variant config.
	default:
		return fmt.Errorf("unknown trigger type %q", t.Type)
	}

	for i, c := range t.Config.Conditions {
		if err := c.Validate(); err != nil {
			return fmt.Errorf("condition %d: %w", i, err)
		}
	}
	return nil
}

// GenerateID creates a unique trigger identifier.
func GenerateID() string {
	return uuid.New().String()
}
