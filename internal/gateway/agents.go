package gateway

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Jonnycatx/agentforge-runner/internal/agents"
)

func (s *Server) handleCreateAgent(w http.ResponseWriter, r *http.Request) {
	var a agents.Agent
	if err := decodeJSON(r, &a); err != nil {
		respondBadRequest(w, "%v", err)
		return
	}
	if a.AutonomyLevel == 0 {
		a.AutonomyLevel = agents.DefaultAutonomy
	}
	if err := a.Validate(); err != nil {
		respondBadRequest(w, "%v", err)
		return
	}
	a.ID = agents.GenerateID()
	a.CreatedAt = nowUTC()
	a.UpdatedAt = a.CreatedAt

	if err := s.store.CreateAgent(r.Context(), &a); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, &a)
}

func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	list, err := s.store.ListAgents(r.Context())
	if err != nil {
		respondError(w, err)
		return
	}
	if list == nil {
		list = []*agents.Agent{}
	}
	respondJSON(w, http.StatusOK, list)
}

func (s *Server) handleGetAgent(w http.ResponseWriter, r *http.Request) {
	a, err := s.store.GetAgent(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, a)
}

func (s *Server) handleUpdateAgent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	existing, err := s.store.GetAgent(r.Context(), id)
	if err != nil {
		respondError(w, err)
		return
	}

	var a agents.Agent
	if err := decodeJSON(r, &a); err != nil {
		respondBadRequest(w, "%v", err)
		return
	}
	// Identity is immutable.
	a.ID = existing.ID
	a.CreatedAt = existing.CreatedAt
	a.UpdatedAt = nowUTC()
	if err := a.Validate(); err != nil {
		respondBadRequest(w, "%v", err)
		return
	}

	if err := s.store.UpdateAgent(r.Context(), &a); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, &a)
}

func (s *Server) handleDeleteAgent(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteAgent(r.Context(), chi.URLParam(r, "id")); err != nil {
		respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
