// Package tasks implements the task lifecycle: creation, approval gating,
// dispatch to the executor, retries, timeouts, and cancellation.
package tasks

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Task statuses.
const (
	StatusPending   = "pending"   // awaiting approval
	StatusScheduled = "scheduled" // queued for dispatch
	StatusRunning   = "running"   // accepted by the executor
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

// Task sources.
const (
	SourceManual   = "manual"
	SourceSchedule = "schedule"
	SourceTrigger  = "trigger"
)

// Task is one unit of agent work moving through the lifecycle.
type Task struct {
	ID          string          `json:"id"`
	AgentID     string          `json:"agent_id"`
	Type        string          `json:"task_type"`
	Input       json.RawMessage `json:"input"`
	Status      string          `json:"status"`
	Source      string          `json:"source"`
	SourceID    string          `json:"source_id,omitempty"` // schedule or trigger id
	Result      json.RawMessage `json:"result,omitempty"`
	Error       string          `json:"error,omitempty"`
	RetryCount  int             `json:"retry_count"`
	ScheduledAt *time.Time      `json:"scheduled_at,omitempty"` // deferred dispatch time
	CreatedAt   time.Time       `json:"created_at"`
	StartedAt   *time.Time      `json:"started_at,omitempty"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}

// legalTransitions is the task state machine. Absent entries are illegal.
var legalTransitions = map[string][]string{
	StatusPending:   {StatusScheduled, StatusCancelled},
	StatusScheduled: {StatusRunning, StatusFailed, StatusCancelled},
	StatusRunning:   {StatusCompleted, StatusFailed, StatusCancelled},
}

// CanTransition reports whether moving from one status to another is legal.
// Terminal statuses have no outgoing edges.
func CanTransition(from, to string) bool {
	for _, next := range legalTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether a status has no outgoing transitions.
func Terminal(status string) bool {
	switch status {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// ValidStatus reports whether s is a known task status.
func ValidStatus(s string) bool {
	switch s {
	case StatusPending, StatusScheduled, StatusRunning,
		StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Validate checks the fields required to create a task.
func (t *Task) Validate() error {
	if t.AgentID == "" {
		return fmt.Errorf("task agent_id is required")
	}
	if t.Type == "" {
		return fmt.Errorf("task type is required")
	}
	return nil
}

// Filter narrows task listings. Zero values mean no constraint.
type Filter struct {
	AgentID string
	Status  string
	Limit   int
}

// Stats aggregates task counts for the dashboard.
type Stats struct {
	Total     int `json:"total"`
	Pending   int `json:"pending"`
	Scheduled int `json:"scheduled"`
	Running   int `json:"running"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Cancelled int `json:"cancelled"`
}

// GenerateID creates a unique task identifier.
func GenerateID() string {
	return uuid.New().String()
}
