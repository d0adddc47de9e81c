// Package api implements the HTTP surface: the five stack-instance REST
// routes plus the ambient status/health/metrics endpoints, a thin adapter
// over the Stack Manager and Document Store Gateway.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/stackl-io/stackl-core/internal/catalog"
	"github.com/stackl-io/stackl-core/internal/stackerrors"
)

// StackInstanceProvider is the subset of stackmanager.Manager and
// document.Store the HTTP surface needs.
type StackInstanceProvider interface {
	Create(ctx context.Context, inv catalog.StackInstanceInvocation) (catalog.StackInstance, error)
	Update(ctx context.Context, name string, upd catalog.StackInstanceUpdate) (catalog.StackInstance, error)
	Delete(ctx context.Context, name string, force bool) error
	Get(ctx context.Context, name string) (catalog.StackInstance, error)
	List(ctx context.Context) ([]catalog.StackInstance, error)
}

// HealthResultsProvider reports every job the inactivity watchdog is
// currently watching and how long each has been idle, keyed by
// "instance/service".
type HealthResultsProvider interface {
	Results() map[string]any
}

// MetricsProvider renders metrics in Prometheus text exposition format.
type MetricsProvider interface {
	Render() string
}

// Server is the HTTP API exposing stack instance operations plus
// operational status, health, and metrics endpoints.
type Server struct {
	addr      string
	logger    *slog.Logger
	instances StackInstanceProvider
	health    HealthResultsProvider
	metrics   MetricsProvider
	httpSrv   *http.Server
}

// NewServer creates a new API server.
func NewServer(addr string, logger *slog.Logger, instances StackInstanceProvider, health HealthResultsProvider, metrics MetricsProvider) *Server {
	return &Server{
		addr:      addr,
		logger:    logger,
		instances: instances,
		health:    health,
		metrics:   metrics,
	}
}

// Start starts the HTTP server in a goroutine. Call Stop() to shut it down.
func (s *Server) Start() error {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /stack_instances/{name}", s.handleGetInstance)
	mux.HandleFunc("GET /stack_instances", s.handleListInstances)
	mux.HandleFunc("POST /stack_instances", s.handleCreateInstance)
	mux.HandleFunc("PUT /stack_instances", s.handleUpdateInstance)
	mux.HandleFunc("DELETE /stack_instances/{name}", s.handleDeleteInstance)

	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	if s.metrics != nil {
		mux.HandleFunc("GET /metrics", s.handleMetrics)
	}

	s.httpSrv = &http.Server{
		Addr:              s.addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	s.logger.Info("starting API server", "addr", s.addr)

	go func() {
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	s.logger.Info("stopping API server")
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) handleGetInstance(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	inst, err := s.instances.Get(r.Context(), name)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, inst)
}

func (s *Server) handleListInstances(w http.ResponseWriter, r *http.Request) {
	all, err := s.instances.List(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}

	filter := strings.TrimSpace(r.URL.Query().Get("name"))
	if filter == "" {
		s.writeJSON(w, http.StatusOK, all)
		return
	}

	filtered := make([]catalog.StackInstance, 0, len(all))
	for _, inst := range all {
		if strings.Contains(inst.Name, filter) {
			filtered = append(filtered, inst)
		}
	}
	s.writeJSON(w, http.StatusOK, filtered)
}

func (s *Server) handleCreateInstance(w http.ResponseWriter, r *http.Request) {
	var inv catalog.StackInstanceInvocation
	if err := json.NewDecoder(r.Body).Decode(&inv); err != nil {
		s.writeError(w, stackerrors.Validation("malformed request body: "+err.Error()))
		return
	}

	inst, err := s.instances.Create(r.Context(), inv)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, inst)
}

func (s *Server) handleUpdateInstance(w http.ResponseWriter, r *http.Request) {
	var upd catalog.StackInstanceUpdate
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		s.writeError(w, stackerrors.Validation("malformed request body: "+err.Error()))
		return
	}
	if upd.StackInstanceName == "" {
		s.writeError(w, stackerrors.Validation("stack_instance_name is required"))
		return
	}

	inst, err := s.instances.Update(r.Context(), upd.StackInstanceName, upd)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, inst)
}

func (s *Server) handleDeleteInstance(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	force := r.URL.Query().Get("force") == "true"

	if err := s.instances.Delete(r.Context(), name, force); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleStatus returns a summary of every known stack instance and its
// roll-up status.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	all, err := s.instances.List(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	summary := make(map[string]any, len(all))
	for _, inst := range all {
		summary[inst.Name] = inst.InstanceStatus()
	}

	status := map[string]any{"instances": summary}
	if s.health != nil {
		status["health_checks"] = s.health.Results()
	}
	s.writeJSON(w, http.StatusOK, status)
}

// handleHealth returns just the watchdog health check results.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health == nil {
		s.writeJSON(w, http.StatusOK, map[string]any{"checks": map[string]any{}})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"checks": s.health.Results()})
}

// handleHealthz is a simple liveness probe for the process itself.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// handleMetrics returns Prometheus text exposition.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if s.metrics == nil {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
	if _, err := w.Write([]byte(s.metrics.Render())); err != nil {
		s.logger.Error("failed to write metrics response", "error", err)
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(data); err != nil {
		s.logger.Error("failed to encode JSON response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := stackerrors.HTTPStatus(err)
	body := map[string]any{"error": err.Error()}
	if reason := stackerrors.Reason(err); reason != "" {
		body["reason"] = reason
	}
	s.logger.Warn("request failed", "status", status, "error", err)
	s.writeJSON(w, status, body)
}
