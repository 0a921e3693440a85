package gateway

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Jonnycatx/agentforge-runner/internal/tasks"
)

type createTaskRequest struct {
	AgentID     string          `json:"agent_id"`
	TaskType    string          `json:"task_type"`
	Input       json.RawMessage `json:"input,omitempty"`
	ScheduledAt *time.Time      `json:"scheduled_at,omitempty"`
}

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var req createTaskRequest
	if err := decodeJSON(r, &req); err != nil {
		respondBadRequest(w, "%v", err)
		return
	}

	task, err := s.manager.Create(r.Context(), &tasks.Task{
		AgentID:     req.AgentID,
		Type:        req.TaskType,
		Input:       req.Input,
		Source:      tasks.SourceManual,
		ScheduledAt: req.ScheduledAt,
	})
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, task)
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	f := tasks.Filter{
		AgentID: r.URL.Query().Get("agent_id"),
		Status:  r.URL.Query().Get("status"),
		Limit:   queryInt(r, "limit", 0),
	}
	if f.Status != "" && !tasks.ValidStatus(f.Status) {
		respondBadRequest(w, "unknown status %q", f.Status)
		return
	}

	list, err := s.store.ListTasks(r.Context(), f)
	if err != nil {
		respondError(w, err)
		return
	}
	if list == nil {
		list = []*tasks.Task{}
	}
	respondJSON(w, http.StatusOK, list)
}

func (s *Server) handleTaskStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.TaskStats(r.Context(), r.URL.Query().Get("agent_id"))
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, stats)
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	task, err := s.store.GetTask(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, task)
}

func (s *Server) handleCancelTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.manager.Cancel(r.Context(), id); err != nil {
		respondError(w, err)
		return
	}
	task, err := s.store.GetTask(r.Context(), id)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, task)
}

type executorStatusRequest struct {
	TaskID string          `json:"task_id"`
	Status string          `json:"status"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// handleExecutorStatus is the callback the executor posts task progress to.
func (s *Server) handleExecutorStatus(w http.ResponseWriter, r *http.Request) {
	var req executorStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		respondBadRequest(w, "%v", err)
		return
	}
	if req.TaskID == "" || req.Status == "" {
		respondBadRequest(w, "task_id and status are required")
		return
	}

	if err := s.manager.HandleStatus(r.Context(), req.TaskID, req.Status, req.Result, req.Error); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
