// Package api exposes the engine over HTTP for the dashboard UI: snapshot
// polling, alert actions, pagination triggers, export download and Prometheus
// metrics.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"exec-feed-sync/internal/engine"
)

// Dismisser propagates a local alert dismissal upstream. Best effort: a
// failure is logged, never surfaced to the caller.
type Dismisser interface {
	DismissAlert(ctx context.Context, id string) error
}

// Options parameterise the server.
type Options struct {
	Addr      string
	Dismisser Dismisser
}

// Server serves the dashboard API for one engine.
type Server struct {
	engine    *engine.Engine
	dismisser Dismisser
	registry  *prometheus.Registry
	logger    zerolog.Logger
	srv       *http.Server
}

// NewServer builds the server. registry may be nil when metrics are disabled;
// /metrics then serves an empty set.
func NewServer(opts Options, eng *engine.Engine, registry *prometheus.Registry, logger zerolog.Logger) *Server {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	s := &Server{
		engine:    eng,
		dismisser: opts.Dismisser,
		registry:  registry,
		logger:    logger.With().Str("component", "api").Logger(),
	}
	s.srv = &http.Server{
		Addr:         opts.Addr,
		Handler:      s.Router(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s
}

// Router builds the route tree. Exposed separately so tests can drive it
// through httptest without binding a port.
func (s *Server) Router() *chi.Mux {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealthz)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/state", s.handleState)
		r.Get("/records", s.handleRecords)
		r.Get("/alerts", s.handleAlerts)
		r.Get("/export", s.handleExport)

		r.Post("/alerts/{id}/acknowledge", s.handleAcknowledge)
		r.Post("/alerts/{id}/dismiss", s.handleDismiss)
		r.Post("/load-more", s.handleLoadMore)
		r.Post("/refresh", s.handleRefresh)
	})

	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.srv.Addr).Msg("api listening")
		errCh <- s.srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutting down api server: %w", err)
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("api server: %w", err)
	}
}
