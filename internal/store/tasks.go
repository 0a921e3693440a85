package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Jonnycatx/agentforge-runner/internal/tasks"
)

// CreateTask persists a new task.
func (s *Store) CreateTask(ctx context.Context, t *tasks.Task) error {
	return s.write(ctx, func(tx *sql.Tx) error {
		_, err := tx.Exec(
			`INSERT INTO tasks (id, agent_id, task_type, input, status, source, source_id, error, retry_count, scheduled_at, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			t.ID, t.AgentID, t.Type, rawOrEmpty(t.Input), t.Status,
			t.Source, t.SourceID, t.Error, t.RetryCount,
			formatTimePtr(t.ScheduledAt), formatTime(t.CreatedAt),
		)
		if err != nil {
			return fmt.Errorf("store: insert task: %w", err)
		}
		return logActivity(tx, t.AgentID, "task", t.ID, "created", t.Type)
	})
}

// GetTask loads one task by id.
func (s *Store) GetTask(ctx context.Context, id string) (*tasks.Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("store: task %s: %w", id, ErrNotFound)
	}
	return t, err
}

// ListTasks returns tasks matching the filter, newest first.
func (s *Store) ListTasks(ctx context.Context, f tasks.Filter) ([]*tasks.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks`
	var conds []string
	var args []any
	if f.AgentID != "" {
		conds = append(conds, "agent_id = ?")
		args = append(args, f.AgentID)
	}
	if f.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, f.Status)
	}
	for i, c := range conds {
		if i == 0 {
			query += " WHERE " + c
		} else {
			query += " AND " + c
		}
	}
	limit := f.Limit
	if limit <= 0 {
		limit = DefaultTaskLimit
	}
	query += " ORDER BY created_at DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list tasks: %w", err)
	}
	defer rows.Close()

	var out []*tasks.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// UpdateTaskStatus is the single mutation point for task status. It enforces
// the transition graph, stamps started_at on running and completed_at plus
// result/error on terminal statuses, and treats redelivery of the current
// terminal status as a no-op.
func (s *Store) UpdateTaskStatus(ctx context.Context, id, status string, result json.RawMessage, errMsg string) (*tasks.Task, error) {
	var updated *tasks.Task
	err := s.write(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRow(`SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
		t, err := scanTask(row)
		if err == sql.ErrNoRows {
			return fmt.Errorf("store: task %s: %w", id, ErrNotFound)
		}
		if err != nil {
			return err
		}

		if t.Status == status && tasks.Terminal(status) {
			updated = t
			return nil
		}
		if !tasks.CanTransition(t.Status, status) {
			return fmt.Errorf("store: task %s %s -> %s: %w", id, t.Status, status, tasks.ErrIllegalTransition)
		}

		now := time.Now().UTC()
		t.Status = status
		if status == tasks.StatusRunning && t.StartedAt == nil {
			t.StartedAt = &now
		}
		if tasks.Terminal(status) {
			t.CompletedAt = &now
			t.Result = result
			t.Error = errMsg
		}

		_, err = tx.Exec(
			`UPDATE tasks SET status = ?, result = ?, error = ?, started_at = ?, completed_at = ? WHERE id = ?`,
			t.Status, rawOrNil(t.Result), t.Error,
			formatTimePtr(t.StartedAt), formatTimePtr(t.CompletedAt), id,
		)
		if err != nil {
			return fmt.Errorf("store: update task status: %w", err)
		}
		if err := logActivity(tx, t.AgentID, "task", t.ID, status, t.Error); err != nil {
			return err
		}
		updated = t
		return nil
	})
	return updated, err
}

// UpdateTaskInput replaces a task's input, used when an approval carries
// reviewer-modified input.
func (s *Store) UpdateTaskInput(ctx context.Context, id string, input json.RawMessage) error {
	return s.write(ctx, func(tx *sql.Tx) error {
		res, err := tx.Exec(`UPDATE tasks SET input = ? WHERE id = ?`, rawOrEmpty(input), id)
		if err != nil {
			return fmt.Errorf("store: update task input: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("store: task %s: %w", id, ErrNotFound)
		}
		return nil
	})
}

// RequeueTask bumps retry_count and moves the task back to scheduled.
func (s *Store) RequeueTask(ctx context.Context, id string) (*tasks.Task, error) {
	var updated *tasks.Task
	err := s.write(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRow(`SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
		t, err := scanTask(row)
		if err == sql.ErrNoRows {
			return fmt.Errorf("store: task %s: %w", id, ErrNotFound)
		}
		if err != nil {
			return err
		}
		if tasks.Terminal(t.Status) {
			return fmt.Errorf("store: requeue %s from %s: %w", id, t.Status, tasks.ErrIllegalTransition)
		}

		t.RetryCount++
		t.Status = tasks.StatusScheduled
		_, err = tx.Exec(`UPDATE tasks SET status = ?, retry_count = ? WHERE id = ?`,
			t.Status, t.RetryCount, id)
		if err != nil {
			return fmt.Errorf("store: requeue task: %w", err)
		}
		if err := logActivity(tx, t.AgentID, "task", t.ID, "retried", fmt.Sprintf("attempt %d", t.RetryCount)); err != nil {
			return err
		}
		updated = t
		return nil
	})
	return updated, err
}

// ClaimDueTasks returns deferred tasks whose scheduled_at has passed and
// clears the deferral in the same transaction, so a task is handed to
// dispatch exactly once no matter how many pollers tick.
func (s *Store) ClaimDueTasks(ctx context.Context, now time.Time) ([]*tasks.Task, error) {
	var claimed []*tasks.Task
	err := s.write(ctx, func(tx *sql.Tx) error {
		rows, err := tx.Query(`SELECT `+taskColumns+` FROM tasks WHERE status = ? AND scheduled_at IS NOT NULL`, tasks.StatusScheduled)
		if err != nil {
			return fmt.Errorf("store: claim due tasks: %w", err)
		}
		var due []*tasks.Task
		for rows.Next() {
			t, err := scanTask(rows)
			if err != nil {
				rows.Close()
				return err
			}
			if t.ScheduledAt != nil && !t.ScheduledAt.After(now) {
				due = append(due, t)
			}
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return fmt.Errorf("store: claim due tasks: %w", err)
		}

		for _, t := range due {
			if _, err := tx.Exec(`UPDATE tasks SET scheduled_at = NULL WHERE id = ?`, t.ID); err != nil {
				return fmt.Errorf("store: release task %s: %w", t.ID, err)
			}
			if err := logActivity(tx, t.AgentID, "task", t.ID, "released", ""); err != nil {
				return err
			}
			t.ScheduledAt = nil
		}
		claimed = due
		return nil
	})
	return claimed, err
}

// TaskStats aggregates task counts by status, optionally for one agent.
func (s *Store) TaskStats(ctx context.Context, agentID string) (*tasks.Stats, error) {
	query := `SELECT status, COUNT(*) FROM tasks`
	var args []any
	if agentID != "" {
		query += ` WHERE agent_id = ?`
		args = append(args, agentID)
	}
	query += ` GROUP BY status`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: task stats: %w", err)
	}
	defer rows.Close()

	var st tasks.Stats
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("store: scan stats: %w", err)
		}
		st.Total += n
		switch status {
		case tasks.StatusPending:
			st.Pending = n
		case tasks.StatusScheduled:
			st.Scheduled = n
		case tasks.StatusRunning:
			st.Running = n
		case tasks.StatusCompleted:
			st.Completed = n
		case tasks.StatusFailed:
			st.Failed = n
		case tasks.StatusCancelled:
			st.Cancelled = n
		}
	}
	return &st, rows.Err()
}

const taskColumns = `id, agent_id, task_type, input, status, source, source_id, result, error, retry_count, scheduled_at, created_at, started_at, completed_at`

func scanTask(row rowScanner) (*tasks.Task, error) {
	var t tasks.Task
	var input string
	var result sql.NullString
	var createdAt string
	var scheduledAt, startedAt, completedAt sql.NullString
	err := row.Scan(&t.ID, &t.AgentID, &t.Type, &input, &t.Status, &t.Source, &t.SourceID,
		&result, &t.Error, &t.RetryCount, &scheduledAt, &createdAt, &startedAt, &completedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("store: scan task: %w", err)
	}
	t.Input = json.RawMessage(input)
	if result.Valid {
		t.Result = json.RawMessage(result.String)
	}
	if t.ScheduledAt, err = parseTimePtr(scheduledAt); err != nil {
		return nil, fmt.Errorf("store: task scheduled_at: %w", err)
	}
	if t.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("store: task created_at: %w", err)
	}
	if t.StartedAt, err = parseTimePtr(startedAt); err != nil {
		return nil, fmt.Errorf("store: task started_at: %w", err)
	}
	if t.CompletedAt, err = parseTimePtr(completedAt); err != nil {
		return nil, fmt.Errorf("store: task completed_at: %w", err)
	}
	return &t, nil
}

func rawOrEmpty(raw json.RawMessage) string {
	if len(raw) == 0 {
		return "{}"
	}
	return string(raw)
}

func rawOrNil(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}
