package gateway

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Jonnycatx/agentforge-runner/internal/approvals"
)

func (s *Server) handleListApprovals(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	switch status {
	case "", approvals.StatusPending, approvals.StatusApproved, approvals.StatusRejected:
	default:
		respondBadRequest(w, "unknown approval status %q", status)
		return
	}

	list, err := s.store.ListApprovals(r.Context(), status)
	if err != nil {
		respondError(w, err)
		return
	}
	if list == nil {
		list = []*approvals.Request{}
	}
	respondJSON(w, http.StatusOK, list)
}

type approveRequest struct {
	ModifiedInput json.RawMessage `json:"modified_input,omitempty"`
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	var req approveRequest
	if r.ContentLength > 0 {
		if err := decodeJSON(r, &req); err != nil {
			respondBadRequest(w, "%v", err)
			return
		}
	}
	s.resolveApproval(w, r, true, req.ModifiedInput)
}

func (s *Server) handleReject(w http.ResponseWriter, r *http.Request) {
	s.resolveApproval(w, r, false, nil)
}

func (s *Server) resolveApproval(w http.ResponseWriter, r *http.Request, approved bool, modifiedInput json.RawMessage) {
	id := chi.URLParam(r, "id")
	if err := s.manager.ResolveApproval(r.Context(), id, approved, modifiedInput); err != nil {
		if errors.Is(err, approvals.ErrAlreadyDecided) {
			respondJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
			return
		}
		respondError(w, err)
		return
	}

	req, err := s.store.GetApproval(r.Context(), id)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, req)
}
