package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Activity is one row of the audit trail.
type Activity struct {
	ID         int64     `json:"id"`
	AgentID    string    `json:"agent_id,omitempty"`
	EntityType string    `json:"entity_type"`
	EntityID   string    `json:"entity_id"`
	Action     string    `json:"action"`
	Detail     string    `json:"detail,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// logActivity appends an audit row inside the caller's transaction.
func logActivity(tx *sql.Tx, agentID, entityType, entityID, action, detail string) error {
	_, err := tx.Exec(
		`INSERT INTO activity_log (agent_id, entity_type, entity_id, action, detail, timestamp) VALUES (?, ?, ?, ?, ?, ?)`,
		agentID, entityType, entityID, action, detail, formatTime(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("store: log activity: %w", err)
	}
	return nil
}

// ListActivity returns the newest audit rows, most recent first, optionally
// for one agent.
func (s *Store) ListActivity(ctx context.Context, agentID string, limit int) ([]*Activity, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT id, agent_id, entity_type, entity_id, action, detail, timestamp FROM activity_log`
	var args []any
	if agentID != "" {
		query += ` WHERE agent_id = ?`
		args = append(args, agentID)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list activity: %w", err)
	}
	defer rows.Close()

	var out []*Activity
	for rows.Next() {
		var a Activity
		var ts string
		if err := rows.Scan(&a.ID, &a.AgentID, &a.EntityType, &a.EntityID, &a.Action, &a.Detail, &ts); err != nil {
			return nil, fmt.Errorf("store: scan activity: %w", err)
		}
		t, err := parseTime(ts)
		if err != nil {
			return nil, fmt.Errorf("store: activity timestamp: %w", err)
		}
		a.Timestamp = t
		out = append(out, &a)
	}
	return out, rows.Err()
}
