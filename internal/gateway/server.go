// Package gateway is the HTTP surface of the runner: the REST API the
// desktop UI talks to, the webhook intake, the executor status callback,
// and the WebSocket event feed.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/Jonnycatx/agentforge-runner/internal/events"
	"github.com/Jonnycatx/agentforge-runner/internal/gateway/ws"
	"github.com/Jonnycatx/agentforge-runner/internal/store"
	"github.com/Jonnycatx/agentforge-runner/internal/tasks"
)

// Server is the gateway HTTP server.
type Server struct {
	httpServer    *http.Server
	hub           *ws.Hub
	bus           *events.Bus
	store         *store.Store
	manager       *tasks.Manager
	host          string
	port          int
	activityLimit int
}

// NewServer wires the router. activityLimit bounds /api/activity responses
// when the caller gives no limit; zero falls back to 50.
func NewServer(st *store.Store, manager *tasks.Manager, bus *events.Bus, host string, port, activityLimit int) *Server {
	if activityLimit <= 0 {
		activityLimit = 50
	}
	s := &Server{
		hub:           ws.NewHub(bus),
		bus:           bus,
		store:         st,
		manager:       manager,
		host:          host,
		port:          port,
		activityLimit: activityLimit,
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	r.Get("/api/health", s.handleHealth)
	r.Get("/api/ws", s.hub.ServeWS)
	r.Get("/api/events", s.handleEvents)
	r.Get("/api/activity", s.handleActivity)

	r.Route("/api/agents", func(r chi.Router) {
		r.Post("/", s.handleCreateAgent)
		r.Get("/", s.handleListAgents)
		r.Get("/{id}", s.handleGetAgent)
		r.Put("/{id}", s.handleUpdateAgent)
		r.Delete("/{id}", s.handleDeleteAgent)
	})

	r.Route("/api/tasks", func(r chi.Router) {
		r.Post("/", s.handleCreateTask)
		r.Get("/", s.handleListTasks)
		r.Get("/stats", s.handleTaskStats)
		r.Get("/{id}", s.handleGetTask)
		r.Post("/{id}/cancel", s.handleCancelTask)
	})

	r.Route("/api/schedules", func(r chi.Router) {
		r.Post("/", s.handleCreateSchedule)
		r.Get("/", s.handleListSchedules)
		r.Get("/templates", s.handleScheduleTemplates)
		r.Post("/translate", s.handleTranslate)
		r.Get("/{id}", s.handleGetSchedule)
		r.Put("/{id}", s.handleUpdateSchedule)
		r.Delete("/{id}", s.handleDeleteSchedule)
	})

	r.Route("/api/triggers", func(r chi.Router) {
		r.Post("/", s.handleCreateTrigger)
		r.Get("/", s.handleListTriggers)
		r.Get("/{id}", s.handleGetTrigger)
		r.Put("/{id}", s.handleUpdateTrigger)
		r.Delete("/{id}", s.handleDeleteTrigger)
		r.Post("/{id}/invoke", s.handleInvokeTrigger)
	})

	r.Route("/api/approvals", func(r chi.Router) {
		r.Get("/", s.handleListApprovals)
		r.Post("/{id}/approve", s.handleApprove)
		r.Post("/{id}/reject", s.handleReject)
	})

	r.Post("/api/hooks/{endpoint}", s.handleWebhook)
	r.Post("/api/executor/status", s.handleExecutorStatus)

	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", host, port),
		Handler: r,
	}
	return s
}

// Handler exposes the router, for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start begins listening. It blocks until the server is stopped.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	slog.Info("gateway: listening", "addr", ln.Addr().String())
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.Close()
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50)
	respondJSON(w, http.StatusOK, s.bus.History(limit))
}

func (s *Server) handleActivity(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", s.activityLimit)
	acts, err := s.store.ListActivity(r.Context(), r.URL.Query().Get("agent_id"), limit)
	if err != nil {
		respondError(w, err)
		return
	}
	if acts == nil {
		acts = []*store.Activity{}
	}
	respondJSON(w, http.StatusOK, acts)
}

func queryInt(r *http.Request, name string, def int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, tasks.ErrIllegalTransition):
		status = http.StatusConflict
	case errors.Is(err, events.ErrBusClosed):
		status = http.StatusServiceUnavailable
	}
	respondJSON(w, status, map[string]string{"error": err.Error()})
}

func respondBadRequest(w http.ResponseWriter, format string, args ...any) {
	respondJSON(w, http.StatusBadRequest, map[string]string{"error": fmt.Sprintf(format, args...)})
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func nowUTC() time.Time {
	return time.Now().UTC()
}
