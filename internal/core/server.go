// Package core provides the HTTP chassis for the notifier's admin API: a chi
// router with the cross-cutting middleware (panic recovery, request ids,
// structured request logs, admin-key authentication) and the shared JSON
// response helpers used by the handlers.
package core

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"reportnotify/internal/config"
)

// Server holds the router and the dependencies the chassis itself needs.
// Domain handlers are attached through V1RouteRegistrars.
type Server struct {
	Config    *config.Config
	Logger    *slog.Logger
	Validator *Validator

	// HealthProbes are run by GET /health.
	HealthProbes []HealthProbe
	// MetricsHandler, when set, is mounted at GET /metrics.
	MetricsHandler http.Handler
	// V1RouteRegistrars mount domain routes under /v1 behind admin auth.
	V1RouteRegistrars []func(chi.Router)

	adminKeyHash []byte
	router       *chi.Mux
}

// NewServer validates the critical configuration and prepares the router.
// The caller mounts routes with MountRoutes after registering handlers.
func NewServer(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}
	if cfg.Security.AdminAPIKeyHash.IsEmpty() {
		return nil, fmt.Errorf("admin API key hash must be configured")
	}

	return &Server{
		Config:       cfg,
		Logger:       logger,
		Validator:    NewValidator(logger),
		adminKeyHash: []byte(cfg.Security.AdminAPIKeyHash.Unmask()),
		router:       chi.NewRouter(),
	}, nil
}

// Handler returns the router for http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Router returns the underlying chi.Mux.
func (s *Server) Router() *chi.Mux {
	return s.router
}
