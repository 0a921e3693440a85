// Package scheduler decides when schedules are due and turns them into tasks.
package scheduler

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Schedule fires a task template on a recurrence (CronExpr) or once (RunAt).
// Exactly one of the two must be set.
type Schedule struct {
	ID        string          `json:"id"`
	AgentID   string          `json:"agent_id"`
	Name      string          `json:"name"`
	CronExpr  string          `json:"cron_expr,omitempty"`
	RunAt     *time.Time      `json:"run_at,omitempty"`
	TaskType  string          `json:"task_type"`
	TaskInput json.RawMessage `json:"task_input"`
	Enabled   bool            `json:"enabled"`
	LastRun   *time.Time      `json:"last_run,omitempty"`
	NextRun   *time.Time      `json:"next_run,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// Recurring reports whether the schedule fires on a cron expression.
func (s *Schedule) Recurring() bool {
	return s.CronExpr != ""
}

// Validate rejects malformed schedules before they are persisted.
func (s *Schedule) Validate() error {
	if s.AgentID == "" {
		return fmt.Errorf("schedule agent_id is required")
	}
	if s.TaskType == "" {
		return fmt.Errorf("schedule task_type is required")
	}
	hasCron := s.CronExpr != ""
	hasRunAt := s.RunAt != nil
	if hasCron == hasRunAt {
		return fmt.Errorf("schedule must set exactly one of cron_expr or run_at")
	}
	if hasCron {
		if _, err := ParseCron(s.CronExpr); err != nil {
			return err
		}
	}
	return nil
}

// GenerateID creates a unique schedule identifier.
func GenerateID() string {
	return uuid.New().String()
}
