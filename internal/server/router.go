package server

import (
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/seqforge/seqnet/pkg/constants"
	"github.com/seqforge/seqnet/pkg/errors"
)

// setupRoutes sets up the HTTP routes
func (s *Server) setupRoutes() {
	// Health and version endpoints
	s.router.HandleFunc("/health", s.handlers.handleHealth).Methods("GET")
	s.router.HandleFunc("/version", s.handlers.handleVersion).Methods("GET")

	// API routes
	apiRouter := s.router.PathPrefix(constants.APIPrefix).Subrouter()

	// Generator endpoints
	apiRouter.HandleFunc("/generators", s.handlers.handleListGenerators).Methods("GET")
	apiRouter.HandleFunc("/datasets/generate", s.handlers.handleGenerateDataset).Methods("POST")

	// Job endpoints
	apiRouter.HandleFunc("/jobs", s.handlers.handleSubmitJob).Methods("POST")
	apiRouter.HandleFunc("/jobs", s.handlers.handleListJobs).Methods("GET")
	apiRouter.HandleFunc("/jobs/{id}", s.handlers.handleGetJob).Methods("GET")

	// Model registry endpoints
	apiRouter.HandleFunc("/models", s.handlers.handleListModels).Methods("GET")
	apiRouter.HandleFunc("/models/{id}", s.handlers.handleGetModel).Methods("GET")
	apiRouter.HandleFunc("/models/{id}", s.handlers.handleDeleteModel).Methods("DELETE")

	// Prometheus metrics endpoint
	if s.config.EnableMetrics && s.metrics != nil {
		s.router.Handle(constants.DefaultMetricsPath, s.metrics.Handler()).Methods("GET")
	}

	// Catch-all for 404
	s.router.NotFoundHandler = http.HandlerFunc(s.notFound)
	s.router.MethodNotAllowedHandler = http.HandlerFunc(s.methodNotAllowed)
}

// setupMiddleware sets up HTTP middleware. The request ID middleware runs
// outermost so the logging middleware sees the assigned ID.
func (s *Server) setupMiddleware() {
	s.router.Use(s.requestIDMiddleware)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(s.recoveryMiddleware)

	if s.config.EnableCORS {
		s.router.Use(s.corsMiddleware)
	}

	s.router.Use(s.requestSizeLimitMiddleware)
}

// notFound handles requests to unknown routes
func (s *Server) notFound(w http.ResponseWriter, r *http.Request) {
	appErr := errors.NewValidationError(errors.CodeInvalidInput,
		fmt.Sprintf("no route for %s %s", r.Method, r.URL.Path))
	appErr.HTTPStatus = http.StatusNotFound
	s.handlers.writeError(w, r, appErr)
}

// methodNotAllowed handles requests with an unsupported method
func (s *Server) methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	appErr := errors.NewValidationError(errors.CodeInvalidInput,
		fmt.Sprintf("method %s not allowed for %s", r.Method, r.URL.Path))
	appErr.HTTPStatus = http.StatusMethodNotAllowed
	s.handlers.writeError(w, r, appErr)
}

// routePattern returns the matched route template for metric labels, keeping
// the label cardinality bounded for parameterized paths.
func routePattern(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tmpl, err := route.GetPathTemplate(); err == nil {
			return tmpl
		}
	}
	return r.URL.Path
}
