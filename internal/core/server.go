// Package core provides the API chassis for the ledger service. It creates a
// chi router that serves both standard HTTP (local dev) and AWS Lambda proxy
// integration (via chiadapter), and enforces cross-cutting concerns such as
// auth, logging, metrics and error envelopes before requests reach handlers.
package core

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"matchpass/internal/config"
)

// MetricsCollector records API request telemetry.
type MetricsCollector interface {
	// RecordRequest records one request. endpoint is the matched route
	// pattern.
	RecordRequest(method, endpoint, status string, duration time.Duration)
}

// Server encapsulates all dependencies for the ledger API, allowing for easy
// injection during testing and distinct configuration per environment.
type Server struct {
	Config         *config.Config
	Logger         *slog.Logger
	Validator      *Validator
	Metrics        MetricsCollector
	MetricsHandler http.Handler // served at /metrics when set
	Authenticator  Authenticator
	ServiceKeys    ServiceKeyVerifier
	HealthProbes   []HealthProbe

	// PublicRouteRegistrars mount unauthenticated routes at the root
	// (the Stripe webhook). V1RouteRegistrars mount under /v1. Both are
	// populated by main.go so core never imports handler packages.
	PublicRouteRegistrars []func(chi.Router)
	V1RouteRegistrars     []func(chi.Router)

	// OnShutdown hooks run in order during Shutdown.
	OnShutdown []func()

	router *chi.Mux
}

// NewServer validates required dependencies and prepares an empty router.
// The caller mounts routes via MountRoutes after filling in the optional
// fields.
func NewServer(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}

	return &Server{
		Config:    cfg,
		Logger:    logger,
		Validator: NewValidator(logger),
		router:    chi.NewRouter(),
	}, nil
}

// Handler returns the http.Handler interface for the router.
// Used by http.Server (local) and chiadapter.New (Lambda).
func (s *Server) Handler() http.Handler {
	return s.router
}

// Router returns the underlying chi.Mux, mainly for tests.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Shutdown runs the registered shutdown hooks.
func (s *Server) Shutdown(ctx context.Context) error {
	s.Logger.InfoContext(ctx, "server shutdown initiated")
	for _, fn := range s.OnShutdown {
		fn()
	}
	s.Logger.InfoContext(ctx, "server shutdown complete")
	return nil
}
