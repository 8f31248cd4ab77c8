// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/PointerLife/openbook/internal/persist"
	"github.com/PointerLife/openbook/internal/session"
)

// Version is reported by /healthz.
var Version = "dev"

// =============================================================================
// DATA SOURCES
// =============================================================================

// HealthChecker reports whether the model backend is reachable.
type HealthChecker interface {
	CheckRunning(ctx context.Context) error
}

// QueueSource exposes persistence queue state.
type QueueSource interface {
	Stats() persist.Stats
	Pending() []string
}

// SessionSource exposes the activity tracker.
type SessionSource interface {
	Status() session.Status
}

// =============================================================================
// SERVER
// =============================================================================

// Server is the local debug server. It only binds loopback addresses by
// default and carries no authentication.
type Server struct {
	mu      sync.RWMutex
	addr    string
	logger  *slog.Logger
	health  HealthChecker
	queue   QueueSource
	session SessionSource

	router    chi.Router
	server    *http.Server
	startedAt time.Time
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the request logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithHealthChecker wires the model backend ping into /healthz.
func WithHealthChecker(h HealthChecker) Option {
	return func(s *Server) { s.health = h }
}

// WithQueue wires the persistence queue into /debug/queue.
func WithQueue(q QueueSource) Option {
	return func(s *Server) { s.queue = q }
}

// WithSession wires the activity tracker into /debug/session.
func WithSession(src SessionSource) Option {
	return func(s *Server) { s.session = src }
}

// New creates a server for addr.
func New(addr string, opts ...Option) *Server {
	s := &Server{
		addr:      addr,
		logger:    slog.New(slog.DiscardHandler),
		startedAt: time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.router = s.setupRouter()
	return s
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(RecoveryMiddleware(s.logger))
	r.Use(middleware.RequestID)
	r.Use(SecurityHeadersMiddleware())
	r.Use(LoggingMiddleware(s.logger))

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", s.handleHealth)

	r.Route("/debug", func(r chi.Router) {
		r.Get("/queue", s.handleQueue)
		r.Get("/session", s.handleSession)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	return r
}

// ============================================================================
// HEALTH HANDLER
// ============================================================================

// HealthResponse is the /healthz body.
type HealthResponse struct {
	Status       string `json:"status"`
	Version      string `json:"version"`
	Uptime       string `json:"uptime"`
	OllamaStatus string `json:"ollama_status"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := HealthResponse{
		Status:  "ok",
		Version: Version,
		Uptime:  time.Since(s.startedAt).Truncate(time.Second).String(),
	}

	if s.health == nil {
		health.OllamaStatus = "not_configured"
		writeJSON(w, http.StatusOK, health)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.health.CheckRunning(ctx); err != nil {
		health.Status = "degraded"
		health.OllamaStatus = "unavailable"
	} else {
		health.OllamaStatus = "ok"
	}
	writeJSON(w, http.StatusOK, health)
}

// ============================================================================
// DEBUG HANDLERS
// ============================================================================

// QueueResponse is the /debug/queue body.
type QueueResponse struct {
	Stats   persist.Stats `json:"stats"`
	Pending []string      `json:"pending"`
}

func (s *Server) handleQueue(w http.ResponseWriter, r *http.Request) {
	if s.queue == nil {
		writeError(w, http.StatusServiceUnavailable, "persistence queue not attached")
		return
	}
	pending := s.queue.Pending()
	sort.Strings(pending)
	if pending == nil {
		pending = []string{}
	}
	writeJSON(w, http.StatusOK, QueueResponse{Stats: s.queue.Stats(), Pending: pending})
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	if s.session == nil {
		writeError(w, http.StatusServiceUnavailable, "session tracker not attached")
		return
	}
	writeJSON(w, http.StatusOK, s.session.Status())
}

// ============================================================================
// SERVER LIFECYCLE
// ============================================================================

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve is ListenAndServe on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:      s.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	s.mu.Lock()
	s.server = srv
	s.mu.Unlock()

	s.logger.Info("debug server listening", "addr", ln.Addr().String(), "version", Version)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := s.Shutdown(shutdownCtx)
		<-errCh
		return err
	}
}

// Shutdown gracefully stops a running server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.RLock()
	srv := s.server
	s.mu.RUnlock()
	if srv == nil {
		return nil
	}
	s.logger.Info("debug server shutting down")
	return srv.Shutdown(ctx)
}

// ============================================================================
// HELPERS
// ============================================================================

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{
			"message": message,
			"code":    status,
		},
	})
}
