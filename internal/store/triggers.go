package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Jonnycatx/agentforge-runner/internal/triggers"
)

// CreateTrigger persists a new trigger.
func (s *Store) CreateTrigger(ctx context.Context, tr *triggers.Trigger) error {
	cfg, err := json.Marshal(tr.Config)
	if err != nil {
		return fmt.Errorf("store: marshal trigger config: %w", err)
	}
	return s.write(ctx, func(tx *sql.Tx) error {
		_, err := tx.Exec(
			`INSERT INTO triggers (id, agent_id, name, trigger_type, config, task_type, task_input, enabled, last_triggered, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			tr.ID, tr.AgentID, tr.Name, string(tr.Type), string(cfg),
			tr.TaskType, rawOrEmpty(tr.TaskInput), tr.Enabled,
			formatTimePtr(tr.LastTriggered), formatTime(tr.CreatedAt),
		)
		if err != nil {
			return fmt.Errorf("store: insert trigger: %w", err)
		}
		return logActivity(tx, tr.AgentID, "trigger", tr.ID, "created", tr.Name)
	})
}

// GetTrigger loads one trigger by id.
func (s *Store) GetTrigger(ctx context.Context, id string) (*triggers.Trigger, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+triggerColumns+` FROM triggers WHERE id = ?`, id)
	tr, err := scanTrigger(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("store: trigger %s: %w", id, ErrNotFound)
	}
	return tr, err
}

// ListTriggers returns triggers, optionally filtered to one agent.
func (s *Store) ListTriggers(ctx context.Context, agentID string) ([]*triggers.Trigger, error) {
	query := `SELECT ` + triggerColumns + ` FROM triggers`
	var args []any
	if agentID != "" {
		query += ` WHERE agent_id = ?`
		args = append(args, agentID)
	}
	query += ` ORDER BY created_at DESC`
	return s.queryTriggers(ctx, query, args...)
}

// ListEnabledTriggers returns enabled triggers of one type, for the trigger
// engine.
func (s *Store) ListEnabledTriggers(ctx context.Context, triggerType triggers.Type) ([]*triggers.Trigger, error) {
	return s.queryTriggers(ctx,
		`SELECT `+triggerColumns+` FROM triggers WHERE enabled = 1 AND trigger_type = ?`,
		string(triggerType))
}

// UpdateTrigger saves a trigger's mutable fields.
func (s *Store) UpdateTrigger(ctx context.Context, tr *triggers.Trigger) error {
	cfg, err := json.Marshal(tr.Config)
	if err != nil {
		return fmt.Errorf("store: marshal trigger config: %w", err)
	}
	return s.write(ctx, func(tx *sql.Tx) error {
		res, err := tx.Exec(
			`UPDATE triggers SET name = ?, trigger_type = ?, config = ?, task_type = ?, task_input = ?, enabled = ?
			 WHERE id = ?`,
			tr.Name, string(tr.Type), string(cfg), tr.TaskType,
			rawOrEmpty(tr.TaskInput), tr.Enabled, tr.ID,
		)
		if err != nil {
			return fmt.Errorf("store: update trigger: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("store: trigger %s: %w", tr.ID, ErrNotFound)
		}
		return logActivity(tx, tr.AgentID, "trigger", tr.ID, "updated", tr.Name)
	})
}

// DeleteTrigger removes a trigger.
func (s *Store) DeleteTrigger(ctx context.Context, id string) error {
	return s.write(ctx, func(tx *sql.Tx) error {
		var agentID string
		if err := tx.QueryRow(`SELECT agent_id FROM triggers WHERE id = ?`, id).Scan(&agentID); err != nil {
			if err == sql.ErrNoRows {
				return fmt.Errorf("store: trigger %s: %w", id, ErrNotFound)
			}
			return fmt.Errorf("store: delete trigger: %w", err)
		}
		if _, err := tx.Exec(`DELETE FROM triggers WHERE id = ?`, id); err != nil {
			return fmt.Errorf("store: delete trigger: %w", err)
		}
		return logActivity(tx, agentID, "trigger", id, "deleted", "")
	})
}

// MarkTriggered stamps last_triggered after a match.
func (s *Store) MarkTriggered(ctx context.Context, id string, at time.Time) error {
	return s.write(ctx, func(tx *sql.Tx) error {
		res, err := tx.Exec(`UPDATE triggers SET last_triggered = ? WHERE id = ?`, formatTime(at), id)
		if err != nil {
			return fmt.Errorf("store: mark triggered: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("store: trigger %s: %w", id, ErrNotFound)
		}
		var agentID string
		if err := tx.QueryRow(`SELECT agent_id FROM triggers WHERE id = ?`, id).Scan(&agentID); err != nil {
			return fmt.Errorf("store: mark triggered: %w", err)
		}
		return logActivity(tx, agentID, "trigger", id, "matched", "")
	})
}

func (s *Store) queryTriggers(ctx context.Context, query string, args ...any) ([]*triggers.Trigger, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list triggers: %w", err)
	}
	defer rows.Close()

	var out []*triggers.Trigger
	for rows.Next() {
		tr, err := scanTrigger(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, tr)
	}
	return out, rows.Err()
}

const triggerColumns = `id, agent_id, name, trigger_type, config, task_type, task_input, enabled, last_triggered, created_at`

func scanTrigger(row rowScanner) (*triggers.Trigger, error) {
	var tr triggers.Trigger
	var triggerType, cfg, input, createdAt string
	var lastTriggered sql.NullString
	err := row.Scan(&tr.ID, &tr.AgentID, &tr.Name, &triggerType, &cfg,
		&tr.TaskType, &input, &tr.Enabled, &lastTriggered, &createdAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("store: scan trigger: %w", err)
	}
	tr.Type = triggers.Type(triggerType)
	if err := json.Unmarshal([]byte(cfg), &tr.Config); err != nil {
		return nil, fmt.Errorf("store: trigger config: %w", err)
	}
	tr.TaskInput = json.RawMessage(input)
	if tr.LastTriggered, err = parseTimePtr(lastTriggered); err != nil {
		return nil, fmt.Errorf("store: trigger last_triggered: %w", err)
	}
	if tr.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("store: trigger created_at: %w", err)
	}
	return &tr, nil
}
