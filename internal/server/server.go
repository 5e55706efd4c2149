// Package server exposes the dataset generators, the training job processor
// and the model registry over HTTP.
package server

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/seqforge/seqnet/internal/observability/metrics"
)

// Server represents the HTTP server
type Server struct {
	httpServer *http.Server
	router     *mux.Router
	logger     *logrus.Logger
	config     *Config
	handlers   *Handlers
	metrics    *metrics.Metrics
}

// NewServer creates a new HTTP server instance. The metrics collector may be
// nil, in which case no request metrics are recorded and no metrics endpoint
// is mounted.
func NewServer(config *Config, handlers *Handlers, m *metrics.Metrics, logger *logrus.Logger) (*Server, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = logrus.New()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if handlers == nil {
		handlers = NewHandlers(nil, nil, nil, logger, config.Version)
	}

	server := &Server{
		router:   mux.NewRouter(),
		logger:   logger,
		config:   config,
		handlers: handlers,
		metrics:  m,
	}

	server.setupMiddleware()
	server.setupRoutes()

	server.httpServer = &http.Server{
		Addr:         config.Address(),
		Handler:      server.router,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}

	return server, nil
}

// Start starts the HTTP server and blocks until it shuts down
func (s *Server) Start(ctx context.Context) error {
	s.logger.WithFields(logrus.Fields{
		"address": s.config.Address(),
		"cors":    s.config.EnableCORS,
		"metrics": s.config.EnableMetrics,
	}).Info("Starting HTTP server")

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server...")

	shutdownCtx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.WithError(err).Error("Error shutting down HTTP server")
		return err
	}

	s.logger.Info("HTTP server stopped")
	return nil
}

// Router returns the HTTP router, mainly for tests
func (s *Server) Router() *mux.Router {
	return s.router
}
