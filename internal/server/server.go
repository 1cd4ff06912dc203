// Package server provides the network agent's HTTP server.
package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/devrev/adaptivenet/internal/config"
	"github.com/devrev/adaptivenet/internal/handler"
	"github.com/devrev/adaptivenet/internal/health"
	"github.com/devrev/adaptivenet/internal/middleware"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// Server represents the HTTP server.
type Server struct {
	router      *mux.Router
	httpServer  *http.Server
	handlers    *handler.Handlers
	healthCheck *health.HealthCheck
	logger      *zap.Logger
	cfg         *config.Config
}

// NewServer creates a new HTTP server with routes configured.
func NewServer(cfg *config.Config, handlers *handler.Handlers, healthCheck *health.HealthCheck, logger *zap.Logger) *Server {
	router := mux.NewRouter()

	s := &Server{
		router: router,
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
			Handler:      router,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
			IdleTimeout:  cfg.Server.IdleTimeout,
		},
		handlers:    handlers,
		healthCheck: healthCheck,
		logger:      logger,
		cfg:         cfg,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	chain := middleware.Chain(
		middleware.Recovery(s.logger),
		middleware.RequestID,
		middleware.Logging(s.logger),
	)
	s.router.Use(func(next http.Handler) http.Handler {
		return chain(next)
	})

	s.router.HandleFunc("/health", s.healthCheck.LivenessHandler).Methods(http.MethodGet)
	s.router.HandleFunc("/ready", s.healthCheck.ReadinessHandler).Methods(http.MethodGet)

	v1 := s.router.PathPrefix("/v1").Subrouter()
	v1.Use(middleware.Timeout(s.cfg.Probe.BackendTimeout + s.cfg.Probe.ProbeTimeout))

	v1.HandleFunc("/network/status", s.handlers.NetworkStatus).Methods(http.MethodGet)
	v1.HandleFunc("/network/stats", s.handlers.NetworkStats).Methods(http.MethodGet)
	v1.HandleFunc("/sync-queue/stats", s.handlers.SyncQueueStats).Methods(http.MethodGet)

	// Refresh triggers live probes, so it is the only limited route
	var refresh http.Handler = http.HandlerFunc(s.handlers.RefreshNetworkStatus)
	if s.cfg.RateLimiter.Enabled {
		limiter := middleware.NewRateLimiter(
			s.cfg.RateLimiter.RequestsPerSecond,
			s.cfg.RateLimiter.BurstSize,
			s.logger,
		)
		refresh = limiter.Limit(refresh)
	}
	v1.Handle("/network/refresh", refresh).Methods(http.MethodPost)

	s.router.NotFoundHandler = http.HandlerFunc(handler.NotFound)
	s.router.MethodNotAllowedHandler = http.HandlerFunc(handler.MethodNotAllowed)
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", zap.Int("port", s.cfg.Server.Port))

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

// Handler returns the routed http.Handler.
func (s *Server) Handler() http.Handler {
	return s.router
}
