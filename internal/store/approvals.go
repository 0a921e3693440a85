package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/Jonnycatx/agentforge-runner/internal/approvals"
)

// CreateApproval persists a new approval request.
func (s *Store) CreateApproval(ctx context.Context, req *approvals.Request) error {
	return s.write(ctx, func(tx *sql.Tx) error {
		_, err := tx.Exec(
			`INSERT INTO approvals (id, agent_id, task_id, action_type, action_details, risk_level, status, modified_input, created_at, decided_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			req.ID, req.AgentID, req.TaskID, req.ActionType, rawOrEmpty(req.ActionDetails),
			string(req.RiskLevel), req.Status, rawOrNil(req.ModifiedInput),
			formatTime(req.CreatedAt), formatTimePtr(req.DecidedAt),
		)
		if err != nil {
			return fmt.Errorf("store: insert approval: %w", err)
		}
		return logActivity(tx, req.AgentID, "approval", req.ID, "requested", req.ActionType)
	})
}

// GetApproval loads one approval request by id.
func (s *Store) GetApproval(ctx context.Context, id string) (*approvals.Request, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+approvalColumns+` FROM approvals WHERE id = ?`, id)
	req, err := scanApproval(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("store: approval %s: %w", id, ErrNotFound)
	}
	return req, err
}

// ListApprovals returns approval requests, optionally filtered by status,
// newest first.
func (s *Store) ListApprovals(ctx context.Context, status string) ([]*approvals.Request, error) {
	query := `SELECT ` + approvalColumns + ` FROM approvals`
	var args []any
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list approvals: %w", err)
	}
	defer rows.Close()

	var out []*approvals.Request
	for rows.Next() {
		req, err := scanApproval(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, req)
	}
	return out, rows.Err()
}

// UpdateApproval saves a decided approval request.
func (s *Store) UpdateApproval(ctx context.Context, req *approvals.Request) error {
	return s.write(ctx, func(tx *sql.Tx) error {
		res, err := tx.Exec(
			`UPDATE approvals SET status = ?, modified_input = ?, decided_at = ? WHERE id = ?`,
			req.Status, rawOrNil(req.ModifiedInput), formatTimePtr(req.DecidedAt), req.ID,
		)
		if err != nil {
			return fmt.Errorf("store: update approval: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("store: approval %s: %w", req.ID, ErrNotFound)
		}
		return logActivity(tx, req.AgentID, "approval", req.ID, req.Status, req.ActionType)
	})
}

const approvalColumns = `id, agent_id, task_id, action_type, action_details, risk_level, status, modified_input, created_at, decided_at`

func scanApproval(row rowScanner) (*approvals.Request, error) {
	var req approvals.Request
	var riskLevel, details, createdAt string
	var modifiedInput, decidedAt sql.NullString
	err := row.Scan(&req.ID, &req.AgentID, &req.TaskID, &req.ActionType, &details,
		&riskLevel, &req.Status, &modifiedInput, &createdAt, &decidedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("store: scan approval: %w", err)
	}
	req.ActionDetails = json.RawMessage(details)
	req.RiskLevel = approvals.RiskLevel(riskLevel)
	if modifiedInput.Valid {
		req.ModifiedInput = json.RawMessage(modifiedInput.String)
	}
	if req.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("store: approval created_at: %w", err)
	}
	if req.DecidedAt, err = parseTimePtr(decidedAt); err != nil {
		return nil, fmt.Errorf("store: approval decided_at: %w", err)
	}
	return &req, nil
}
