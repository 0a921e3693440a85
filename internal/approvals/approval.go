package approvals

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Approval request statuses. Leaving pending is a one-way transition.
const (
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusRejected = "rejected"
)

// ErrAlreadyDecided is returned when resolving a request that already left pending.
var ErrAlreadyDecided = errors.New("approval request already decided")

// Request is a pending human decision about an autonomous action.
type Request struct {
	ID            string          `json:"id"`
	AgentID       string          `json:"agent_id"`
	TaskID        string          `json:"task_id,omitempty"`
	ActionType    string          `json:"action_type"`
	ActionDetails json.RawMessage `json:"action_details"`
	RiskLevel     RiskLevel       `json:"risk_level"`
	Status        string          `json:"status"`
	ModifiedInput json.RawMessage `json:"modified_input,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	DecidedAt     *time.Time      `json:"decided_at,omitempty"`
}

// NewRequest builds a pending approval request for a task's action.
func NewRequest(agentID, taskID, actionType string, details json.RawMessage) *Request {
	return &Request{
		ID:            uuid.New().String(),
		AgentID:       agentID,
		TaskID:        taskID,
		ActionType:    actionType,
		ActionDetails: details,
		RiskLevel:     Classify(actionType),
		Status:        StatusPending,
		CreatedAt:     time.Now().UTC(),
	}
}

// Decide transitions the request out of pending. A decided request cannot
// be re-decided.
func (r *Request) Decide(approved bool, modifiedInput json.RawMessage) error {
	if r.Status != StatusPending {
		return ErrAlreadyDecided
	}
	if approved {
		r.Status = StatusApproved
	} else {
		r.Status = StatusRejected
	}
	r.ModifiedInput = modifiedInput
	now := time.Now().UTC()
	r.DecidedAt = &now
	return nil
}
