package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Jonnycatx/agentforge-runner/internal/scheduler"
)

// CreateSchedule persists a new schedule.
func (s *Store) CreateSchedule(ctx context.Context, sch *scheduler.Schedule) error {
	return s.write(ctx, func(tx *sql.Tx) error {
		_, err := tx.Exec(
			`INSERT INTO schedules (id, agent_id, name, cron_expr, run_at, task_type, task_input, enabled, last_run, next_run, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			sch.ID, sch.AgentID, sch.Name, sch.CronExpr, formatTimePtr(sch.RunAt),
			sch.TaskType, rawOrEmpty(sch.TaskInput), sch.Enabled,
			formatTimePtr(sch.LastRun), formatTimePtr(sch.NextRun), formatTime(sch.CreatedAt),
		)
		if err != nil {
			return fmt.Errorf("store: insert schedule: %w", err)
		}
		return logActivity(tx, sch.AgentID, "schedule", sch.ID, "created", sch.Name)
	})
}

// GetSchedule loads one schedule by id.
func (s *Store) GetSchedule(ctx context.Context, id string) (*scheduler.Schedule, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+scheduleColumns+` FROM schedules WHERE id = ?`, id)
	sch, err := scanSchedule(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("store: schedule %s: %w", id, ErrNotFound)
	}
	return sch, err
}

// ListSchedules returns schedules, optionally filtered to one agent.
func (s *Store) ListSchedules(ctx context.Context, agentID string) ([]*scheduler.Schedule, error) {
	query := `SELECT ` + scheduleColumns + ` FROM schedules`
	var args []any
	if agentID != "" {
		query += ` WHERE agent_id = ?`
		args = append(args, agentID)
	}
	query += ` ORDER BY created_at DESC`
	return s.querySchedules(ctx, query, args...)
}

// ListEnabledSchedules returns every enabled schedule, for the due-time engine.
func (s *Store) ListEnabledSchedules(ctx context.Context) ([]*scheduler.Schedule, error) {
	return s.querySchedules(ctx, `SELECT `+scheduleColumns+` FROM schedules WHERE enabled = 1`)
}

// UpdateSchedule saves a schedule's mutable fields.
func (s *Store) UpdateSchedule(ctx context.Context, sch *scheduler.Schedule) error {
	return s.write(ctx, func(tx *sql.Tx) error {
		res, err := tx.Exec(
			`UPDATE schedules SET name = ?, cron_expr = ?, run_at = ?, task_type = ?, task_input = ?, enabled = ?
			 WHERE id = ?`,
			sch.Name, sch.CronExpr, formatTimePtr(sch.RunAt),
			sch.TaskType, rawOrEmpty(sch.TaskInput), sch.Enabled, sch.ID,
		)
		if err != nil {
			return fmt.Errorf("store: update schedule: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("store: schedule %s: %w", sch.ID, ErrNotFound)
		}
		return logActivity(tx, sch.AgentID, "schedule", sch.ID, "updated", sch.Name)
	})
}

// DeleteSchedule removes a schedule.
func (s *Store) DeleteSchedule(ctx context.Context, id string) error {
	return s.write(ctx, func(tx *sql.Tx) error {
		var agentID string
		if err := tx.QueryRow(`SELECT agent_id FROM schedules WHERE id = ?`, id).Scan(&agentID); err != nil {
			if err == sql.ErrNoRows {
				return fmt.Errorf("store: schedule %s: %w", id, ErrNotFound)
			}
			return fmt.Errorf("store: delete schedule: %w", err)
		}
		if _, err := tx.Exec(`DELETE FROM schedules WHERE id = ?`, id); err != nil {
			return fmt.Errorf("store: delete schedule: %w", err)
		}
		return logActivity(tx, agentID, "schedule", id, "deleted", "")
	})
}

// MarkScheduleFired advances last_run/next_run (and disables one-shots)
// before the resulting task is dispatched.
func (s *Store) MarkScheduleFired(ctx context.Context, id string, lastRun time.Time, nextRun *time.Time, disable bool) error {
	return s.write(ctx, func(tx *sql.Tx) error {
		enabledExpr := "enabled"
		if disable {
			enabledExpr = "0"
		}
		res, err := tx.Exec(
			`UPDATE schedules SET last_run = ?, next_run = ?, enabled = `+enabledExpr+` WHERE id = ?`,
			formatTime(lastRun), formatTimePtr(nextRun), id,
		)
		if err != nil {
			return fmt.Errorf("store: mark schedule fired: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("store: schedule %s: %w", id, ErrNotFound)
		}
		var agentID string
		if err := tx.QueryRow(`SELECT agent_id FROM schedules WHERE id = ?`, id).Scan(&agentID); err != nil {
			return fmt.Errorf("store: mark schedule fired: %w", err)
		}
		return logActivity(tx, agentID, "schedule", id, "fired", "")
	})
}

func (s *Store) querySchedules(ctx context.Context, query string, args ...any) ([]*scheduler.Schedule, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list schedules: %w", err)
	}
	defer rows.Close()

	var out []*scheduler.Schedule
	for rows.Next() {
		sch, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sch)
	}
	return out, rows.Err()
}

const scheduleColumns = `id, agent_id, name, cron_expr, run_at, task_type, task_input, enabled, last_run, next_run, created_at`

func scanSchedule(row rowScanner) (*scheduler.Schedule, error) {
	var sch scheduler.Schedule
	var input, createdAt string
	var runAt, lastRun, nextRun sql.NullString
	err := row.Scan(&sch.ID, &sch.AgentID, &sch.Name, &sch.CronExpr, &runAt,
		&sch.TaskType, &input, &sch.Enabled, &lastRun, &nextRun, &createdAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("store: scan schedule: %w", err)
	}
	sch.TaskInput = json.RawMessage(input)
	if sch.RunAt, err = parseTimePtr(runAt); err != nil {
		return nil, fmt.Errorf("store: schedule run_at: %w", err)
	}
	if sch.LastRun, err = parseTimePtr(lastRun); err != nil {
		return nil, fmt.Errorf("store: schedule last_run: %w", err)
	}
	if sch.NextRun, err = parseTimePtr(nextRun); err != nil {
		return nil, fmt.Errorf("store: schedule next_run: %w", err)
	}
	if sch.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("store: schedule created_at: %w", err)
	}
	return &sch, nil
}
