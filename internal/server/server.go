// Package server exposes the intent engine over HTTP: the input/task API,
// Prometheus metrics and a websocket event stream.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/alihub/ali-intent/internal/config"
	"github.com/alihub/ali-intent/internal/engine"
	"github.com/alihub/ali-intent/internal/intent"
	"github.com/alihub/ali-intent/internal/task"
)

// Server is the HTTP front of one engine instance.
type Server struct {
	cfg        *config.Config
	engine     *engine.Engine
	hub        *Hub
	httpServer *http.Server
	startTime  time.Time
	logger     *slog.Logger
}

// HealthResponse is the health check payload.
type HealthResponse struct {
	Status    string `json:"status"`
	Uptime    string `json:"uptime"`
	Running   bool   `json:"scheduler_running"`
	Timestamp string `json:"timestamp"`
}

// InputRequest is the process-input payload.
type InputRequest struct {
	Text    string          `json:"text"`
	Context *intent.Context `json:"context,omitempty"`
}

// TasksResponse lists the pending one-shot queue.
type TasksResponse struct {
	Tasks []task.Task `json:"tasks"`
}

// RecurringResponse lists the recurring table.
type RecurringResponse struct {
	Tasks []task.RecurringTask `json:"tasks"`
}

// ErrorResponse carries an API error message.
type ErrorResponse struct {
	Error string `json:"error"`
}

func New(cfg *config.Config, eng *engine.Engine, logger *slog.Logger) *Server {
	s := &Server{
		cfg:       cfg,
		engine:    eng,
		hub:       NewHub(logger),
		startTime: time.Now(),
		logger:    logger,
	}
	eng.SetEventSink(s.hub)
	return s
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/api/input", s.handleInput)
	mux.HandleFunc("/api/tasks", s.handleTasks)
	mux.HandleFunc("/api/tasks/", s.handleTaskByID)
	mux.HandleFunc("/api/tasks/recurring", s.handleRecurring)
	mux.HandleFunc("/api/tasks/recurring/", s.handleRecurringByID)
	mux.HandleFunc("/api/predict", s.handlePredict)
	mux.HandleFunc("/api/suggestions", s.handleSuggestions)
	mux.HandleFunc("/api/patterns", s.handlePatterns)
	mux.HandleFunc("/ws", s.hub.HandleWS)
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

// Start begins serving in a background goroutine.
func (s *Server) Start() {
	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)
	s.httpServer = &http.Server{Addr: addr, Handler: s.Handler()}

	go func() {
		s.logger.Info("HTTP server listening", "addr", addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("HTTP server error", "error", err)
		}
	}()
}

// Shutdown stops the HTTP server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	s.hub.Close()
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to encode response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.writeJSON(w, status, ErrorResponse{Error: err.Error()})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		Uptime:    time.Since(s.startTime).Round(time.Second).String(),
		Running:   s.engine.Running(),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleInput(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req InputRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		s.writeError(w, http.StatusBadRequest, errors.New("text is required"))
		return
	}
	s.writeJSON(w, http.StatusOK, s.engine.ProcessInput(req.Text, req.Context))
}

func (s *Server) handleTasks(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.writeJSON(w, http.StatusOK, TasksResponse{Tasks: s.engine.PendingTasks()})
	case http.MethodPost:
		var t task.Task
		if err := json.NewDecoder(r.Body).Decode(&t); err != nil {
			s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
			return
		}
		added, err := s.engine.AddTask(t)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, err)
			return
		}
		s.writeJSON(w, http.StatusCreated, added)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleTaskByID(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/tasks/")
	if id == "" || strings.Contains(id, "/") {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if r.Method != http.MethodDelete {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if err := s.engine.RemoveTask(id); err != nil {
		if errors.Is(err, task.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, err)
			return
		}
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRecurring(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.writeJSON(w, http.StatusOK, RecurringResponse{Tasks: s.engine.RecurringTasks()})
	case http.MethodPost:
		var rt task.RecurringTask
		if err := json.NewDecoder(r.Body).Decode(&rt); err != nil {
			s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
			return
		}
		added, err := s.engine.AddRecurringTask(rt)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, err)
			return
		}
		s.writeJSON(w, http.StatusCreated, added)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// handleRecurringByID deactivates a recurring task; the record survives
// with active=false.
func (s *Server) handleRecurringByID(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/tasks/recurring/")
	if id == "" || strings.Contains(id, "/") {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if r.Method != http.MethodDelete {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if err := s.engine.DeactivateRecurringTask(id); err != nil {
		if errors.Is(err, task.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, err)
			return
		}
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.engine.PredictNextAction(contextFromQuery(r)))
}

func (s *Server) handleSuggestions(w http.ResponseWriter, r *http.Request) {
	suggestions := s.engine.TaskSuggestions(contextFromQuery(r))
	if suggestions == nil {
		suggestions = []engine.Suggestion{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"suggestions": suggestions})
}

func (s *Server) handlePatterns(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{"patterns": s.engine.Patterns()})
}

// contextFromQuery lifts an optional ?hour= hint into a classifier context.
func contextFromQuery(r *http.Request) *intent.Context {
	raw := r.URL.Query().Get("hour")
	if raw == "" {
		return nil
	}
	var hour int
	if _, err := fmt.Sscanf(raw, "%d", &hour); err != nil || hour < 0 || hour > 23 {
		return nil
	}
	return &intent.Context{Time: &intent.TimeContext{Hour: hour}}
}
