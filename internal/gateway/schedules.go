package gateway

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Jonnycatx/agentforge-runner/internal/scheduler"
)

func (s *Server) handleCreateSchedule(w http.ResponseWriter, r *http.Request) {
	var sch scheduler.Schedule
	if err := decodeJSON(r, &sch); err != nil {
		respondBadRequest(w, "%v", err)
		return
	}
	if err := sch.Validate(); err != nil {
		respondBadRequest(w, "%v", err)
		return
	}
	// The owning agent must exist.
	if _, err := s.store.GetAgent(r.Context(), sch.AgentID); err != nil {
		respondError(w, err)
		return
	}

	sch.ID = scheduler.GenerateID()
	sch.CreatedAt = nowUTC()
	if err := s.store.CreateSchedule(r.Context(), &sch); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, &sch)
}

func (s *Server) handleListSchedules(w http.ResponseWriter, r *http.Request) {
	list, err := s.store.ListSchedules(r.Context(), r.URL.Query().Get("agent_id"))
	if err != nil {
		respondError(w, err)
		return
	}
	if list == nil {
		list = []*scheduler.Schedule{}
	}
	respondJSON(w, http.StatusOK, list)
}

func (s *Server) handleGetSchedule(w http.ResponseWriter, r *http.Request) {
	sch, err := s.store.GetSchedule(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, sch)
}

func (s *Server) handleUpdateSchedule(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	existing, err := s.store.GetSchedule(r.Context(), id)
	if err != nil {
		respondError(w, err)
		return
	}

	var sch scheduler.Schedule
	if err := decodeJSON(r, &sch); err != nil {
		respondBadRequest(w, "%v", err)
		return
	}
	sch.ID = existing.ID
	sch.AgentID = existing.AgentID
	sch.CreatedAt = existing.CreatedAt
	if err := sch.Validate(); err != nil {
		respondBadRequest(w, "%v", err)
		return
	}

	if err := s.store.UpdateSchedule(r.Context(), &sch); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, &sch)
}

func (s *Server) handleDeleteSchedule(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteSchedule(r.Context(), chi.URLParam(r, "id")); err != nil {
		respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type translateRequest struct {
	Text string `json:"text"`
}

type translateResponse struct {
	CronExpr string `json:"cron_expr"`
}

// handleTranslate converts a natural-language phrase into a cron expression.
func (s *Server) handleTranslate(w http.ResponseWriter, r *http.Request) {
	var req translateRequest
	if err := decodeJSON(r, &req); err != nil {
		respondBadRequest(w, "%v", err)
		return
	}

	expr, err := scheduler.Translate(req.Text)
	if err != nil {
		if errors.Is(err, scheduler.ErrUnrecognized) {
			respondJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
			return
		}
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, translateResponse{CronExpr: expr})
}

func (s *Server) handleScheduleTemplates(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, scheduler.Templates())
}
