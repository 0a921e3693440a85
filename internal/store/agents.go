package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/Jonnycatx/agentforge-runner/internal/agents"
)

// CreateAgent persists a new agent.
func (s *Store) CreateAgent(ctx context.Context, a *agents.Agent) error {
	tools, err := json.Marshal(a.Tools)
	if err != nil {
		return fmt.Errorf("store: marshal tools: %w", err)
	}
	return s.write(ctx, func(tx *sql.Tx) error {
		_, err := tx.Exec(
			`INSERT INTO agents (id, name, goal, personality, provider, model, temperature, tools, autonomy_level, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			a.ID, a.Name, a.Goal, a.Personality, a.Provider, a.Model,
			a.Temperature, string(tools), a.AutonomyLevel,
			formatTime(a.CreatedAt), formatTime(a.UpdatedAt),
		)
		if err != nil {
			return fmt.Errorf("store: insert agent: %w", err)
		}
		return logActivity(tx, a.ID, "agent", a.ID, "created", a.Name)
	})
}

// GetAgent loads one agent by id.
func (s *Store) GetAgent(ctx context.Context, id string) (*agents.Agent, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, goal, personality, provider, model, temperature, tools, autonomy_level, created_at, updated_at
		 FROM agents WHERE id = ?`, id)
	return scanAgent(row)
}

// ListAgents returns all agents, newest first.
func (s *Store) ListAgents(ctx context.Context) ([]*agents.Agent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, goal, personality, provider, model, temperature, tools, autonomy_level, created_at, updated_at
		 FROM agents ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("store: list agents: %w", err)
	}
	defer rows.Close()

	var out []*agents.Agent
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// UpdateAgent saves the mutable config fields and bumps updated_at.
func (s *Store) UpdateAgent(ctx context.Context, a *agents.Agent) error {
	tools, err := json.Marshal(a.Tools)
	if err != nil {
		return fmt.Errorf("store: marshal tools: %w", err)
	}
	return s.write(ctx, func(tx *sql.Tx) error {
		res, err := tx.Exec(
			`UPDATE agents SET name = ?, goal = ?, personality = ?, provider = ?, model = ?,
			 temperature = ?, tools = ?, autonomy_level = ?, updated_at = ?
			 WHERE id = ?`,
			a.Name, a.Goal, a.Personality, a.Provider, a.Model,
			a.Temperature, string(tools), a.AutonomyLevel,
			formatTime(a.UpdatedAt), a.ID,
		)
		if err != nil {
			return fmt.Errorf("store: update agent: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("store: agent %s: %w", a.ID, ErrNotFound)
		}
		return logActivity(tx, a.ID, "agent", a.ID, "updated", a.Name)
	})
}

// DeleteAgent removes an agent and everything that belongs to it.
func (s *Store) DeleteAgent(ctx context.Context, id string) error {
	return s.write(ctx, func(tx *sql.Tx) error {
		res, err := tx.Exec(`DELETE FROM agents WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("store: delete agent: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("store: agent %s: %w", id, ErrNotFound)
		}
		for _, table := range []string{"tasks", "schedules", "triggers", "approvals"} {
			if _, err := tx.Exec(`DELETE FROM `+table+` WHERE agent_id = ?`, id); err != nil {
				return fmt.Errorf("store: cascade %s: %w", table, err)
			}
		}
		return logActivity(tx, id, "agent", id, "deleted", "")
	})
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAgent(row rowScanner) (*agents.Agent, error) {
	var a agents.Agent
	var tools, createdAt, updatedAt string
	err := row.Scan(&a.ID, &a.Name, &a.Goal, &a.Personality, &a.Provider, &a.Model,
		&a.Temperature, &tools, &a.AutonomyLevel, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("store: agent: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("store: scan agent: %w", err)
	}
	if err := json.Unmarshal([]byte(tools), &a.Tools); err != nil {
		return nil, fmt.Errorf("store: agent tools: %w", err)
	}
	if a.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("store: agent created_at: %w", err)
	}
	if a.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("store: agent updated_at: %w", err)
	}
	return &a, nil
}
