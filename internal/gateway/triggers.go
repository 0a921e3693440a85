package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Jonnycatx/agentforge-runner/internal/events"
	"github.com/Jonnycatx/agentforge-runner/internal/triggers"
)

func (s *Server) handleCreateTrigger(w http.ResponseWriter, r *http.Request) {
	var tr triggers.Trigger
	if err := decodeJSON(r, &tr); err != nil {
		respondBadRequest(w, "%v", err)
		return
	}
	if err := tr.Validate(); err != nil {
		respondBadRequest(w, "%v", err)
		return
	}
	if _, err := s.store.GetAgent(r.Context(), tr.AgentID); err != nil {
		respondError(w, err)
		return
	}

	tr.ID = triggers.GenerateID()
	tr.CreatedAt = nowUTC()
	if err := s.store.CreateTrigger(r.Context(), &tr); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, &tr)
}

func (s *Server) handleListTriggers(w http.ResponseWriter, r *http.Request) {
	list, err := s.store.ListTriggers(r.Context(), r.URL.Query().Get("agent_id"))
	if err != nil {
		respondError(w, err)
		return
	}
	if list == nil {
		list = []*triggers.Trigger{}
	}
	respondJSON(w, http.StatusOK, list)
}

func (s *Server) handleGetTrigger(w http.ResponseWriter, r *http.Request) {
	tr, err := s.store.GetTrigger(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, tr)
}

func (s *Server) handleUpdateTrigger(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	existing, err := s.store.GetTrigger(r.Context(), id)
	if err != nil {
		respondError(w, err)
		return
	}

	var tr triggers.Trigger
	if err := decodeJSON(r, &tr); err != nil {
		respondBadRequest(w, "%v", err)
		return
	}
	tr.ID = existing.ID
	tr.AgentID = existing.AgentID
	tr.CreatedAt = existing.CreatedAt
	if err := tr.Validate(); err != nil {
		respondBadRequest(w, "%v", err)
		return
	}

	if err := s.store.UpdateTrigger(r.Context(), &tr); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, &tr)
}

func (s *Server) handleDeleteTrigger(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteTrigger(r.Context(), chi.URLParam(r, "id")); err != nil {
		respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleInvokeTrigger fires a manual trigger by publishing a manual.invoke
// stimulus scoped to the trigger's agent.
func (s *Server) handleInvokeTrigger(w http.ResponseWriter, r *http.Request) {
	tr, err := s.store.GetTrigger(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, err)
		return
	}
	if tr.Type != triggers.TypeManual {
		respondBadRequest(w, "trigger %s is %s, only manual triggers can be invoked", tr.ID, tr.Type)
		return
	}

	payload := map[string]any{}
	if r.ContentLength > 0 {
		var body map[string]any
		if err := decodeJSON(r, &body); err != nil {
			respondBadRequest(w, "%v", err)
			return
		}
		payload = body
	}

	if err := s.bus.PublishAsync(r.Context(), events.NewEventForAgent(events.EventManualInvoke, events.SourceGateway, tr.AgentID, payload)); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]string{"status": "invoked"})
}

// handleWebhook is the inbound webhook intake. The body and the shared
// secret header become the event payload; the trigger engine authenticates
// before any condition runs.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	endpoint := chi.URLParam(r, "endpoint")

	payload := map[string]any{}
	if r.Body != nil {
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err == nil && body != nil {
			payload = body
		}
	}
	payload["endpoint"] = endpoint
	payload["method"] = r.Method
	if secret := r.Header.Get("X-Webhook-Secret"); secret != "" {
		payload["secret"] = secret
	}

	// Inbound stimuli block on a full buffer instead of dropping; the
	// request context bounds the wait.
	if err := s.bus.PublishAsync(r.Context(), events.NewEvent(events.EventWebhookReceived, events.SourceGateway, payload)); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]string{"status": "received"})
}
