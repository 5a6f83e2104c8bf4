// Package server assembles the gateway's HTTP surface: the client-facing
// chat endpoints, the admin API, Prometheus metrics and the liveness/
// readiness probes, wrapped in the shared middleware chain.
package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/xiongxionghk/api-pool-gateway/pkg/gateway/admin"
	"github.com/xiongxionghk/api-pool-gateway/pkg/gateway/httpapi"
	"github.com/xiongxionghk/api-pool-gateway/pkg/gateway/middleware"
	"github.com/xiongxionghk/api-pool-gateway/pkg/telemetry/health"
	"github.com/xiongxionghk/api-pool-gateway/pkg/telemetry/logging"
	"github.com/xiongxionghk/api-pool-gateway/pkg/telemetry/metrics"
)

// Config holds the knobs Server itself needs, separate from the gateway's
// domain Config (pkg/config) so this package stays reusable independent of
// how the caller sources its settings.
type Config struct {
	ListenAddress   string
	AdminPassword   string
	ShutdownTimeout time.Duration
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
}

// Server is the gateway's main HTTP server.
type Server struct {
	config     Config
	httpServer *http.Server

	client  *httpapi.Handler
	admin   *admin.Handler
	metrics *metrics.Collector
	health  *health.Checker
	logger  *logging.Logger

	shutdownChan chan struct{}
	shutdownOnce sync.Once
	mu           sync.RWMutex
	isRunning    bool
}

// NewServer creates a Server wiring the client, admin, metrics and health
// handlers behind the shared middleware chain.
func NewServer(cfg Config, client *httpapi.Handler, adminHandler *admin.Handler, collector *metrics.Collector, checker *health.Checker, logger *logging.Logger) *Server {
	if logger == nil {
		logger = logging.Default()
	}
	return &Server{
		config:       cfg,
		client:       client,
		admin:        adminHandler,
		metrics:      collector,
		health:       checker,
		logger:       logger.With("component", "server"),
		shutdownChan: make(chan struct{}),
	}
}

// Start starts the HTTP server and blocks until shutdown.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return fmt.Errorf("server is already running")
	}
	s.isRunning = true
	s.mu.Unlock()

	s.httpServer = &http.Server{
		Addr:         s.config.ListenAddress,
		Handler:      s.setupRoutes(),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("starting gateway server", "address", s.config.ListenAddress)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-ctx.Done():
		s.logger.Info("context cancelled, initiating shutdown")
		return s.Shutdown(context.Background())
	case sig := <-sigChan:
		s.logger.Info("received shutdown signal", "signal", sig.String())
		return s.Shutdown(context.Background())
	case err := <-errChan:
		return err
	case <-s.shutdownChan:
		s.logger.Info("shutdown requested")
		return s.Shutdown(context.Background())
	}
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.mu.Lock()
		if !s.isRunning {
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()

		s.logger.Info("initiating graceful shutdown", "timeout", s.config.ShutdownTimeout.String())
		shutdownCtx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
		defer cancel()

		if s.httpServer != nil {
			if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
				s.logger.Error("error during server shutdown", "error", err)
				shutdownErr = fmt.Errorf("server shutdown error: %w", err)
			}
		}

		s.mu.Lock()
		s.isRunning = false
		s.mu.Unlock()

		s.logger.Info("gateway server stopped")
	})

	return shutdownErr
}

// setupRoutes registers every route and applies the middleware chain.
func (s *Server) setupRoutes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /v1/chat/completions", s.client.ChatCompletions)
	mux.HandleFunc("POST /v1/messages", s.client.Messages)
	mux.HandleFunc("GET /v1/models", s.client.Models)

	s.admin.Routes(mux, s.config.AdminPassword)

	if s.metrics != nil {
		mux.Handle("GET /admin/metrics", s.metrics.Handler())
	}

	health.HTTPMiddleware(mux, s.health, version, commit, buildTime)

	var handler http.Handler = mux
	handler = middleware.Logging(s.logger)(handler)
	handler = middleware.CORS(middleware.DefaultCORSConfig())(handler)
	handler = middleware.RequestID(handler)
	handler = middleware.Recovery(s.logger)(handler)

	return handler
}

// IsRunning returns true if the server is running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// Handler returns the fully configured HTTP handler, for tests that want
// to drive the server via httptest without binding a real listener.
func (s *Server) Handler() http.Handler {
	return s.setupRoutes()
}

// version, commit and buildTime are populated at link time via
// -ldflags "-X .../server.version=...". They default to "dev" so local
// builds still report sane values.
var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
)
