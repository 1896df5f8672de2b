// Package api exposes the inference service and run registry over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"

	"github.com/mimir-aip/obesity-tc/pkg/inference"
	"github.com/mimir-aip/obesity-tc/pkg/logger"
	"github.com/mimir-aip/obesity-tc/pkg/metrics"
	"github.com/mimir-aip/obesity-tc/pkg/runstore"
	"github.com/mimir-aip/obesity-tc/pkg/scheduler"
)

// Options wires the server's collaborators. Only Addr is required; missing
// collaborators disable their routes' functionality.
type Options struct {
	Addr      string
	Logger    *logger.Logger
	Metrics   *metrics.Metrics
	Runs      runstore.RunStore
	Scheduler *scheduler.Service
}

// Server provides HTTP API endpoints
type Server struct {
	addr      string
	log       *logger.Logger
	metrics   *metrics.Metrics
	runs      runstore.RunStore
	scheduler *scheduler.Service

	model   atomic.Pointer[inference.Service]
	router  *mux.Router
	httpSrv *http.Server
}

// NewServer creates a new API server
func NewServer(opts Options) *Server {
	log := opts.Logger
	if log == nil {
		log = logger.Get()
	}
	s := &Server{
		addr:      opts.Addr,
		log:       log.With("component", "http"),
		metrics:   opts.Metrics,
		runs:      opts.Runs,
		scheduler: opts.Scheduler,
		router:    mux.NewRouter(),
	}
	s.setupRoutes()
	s.httpSrv = &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// SetModel swaps the inference service used by new requests
func (s *Server) SetModel(svc *inference.Service) {
	s.model.Store(svc)
	if svc != nil {
		s.log.Infow("Model loaded", "run_id", svc.Bundle().RunID)
	}
}

// Model returns the current inference service, or nil
func (s *Server) Model() *inference.Service {
	return s.model.Load()
}

// Handler returns the root HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRoutes sets up the HTTP routes
func (s *Server) setupRoutes() {
	s.router.Use(s.loggingMiddleware)
	s.router.Use(s.errorRecoveryMiddleware)

	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
	s.router.HandleFunc("/ready", s.handleReady).Methods("GET")
	if s.metrics != nil {
		s.router.Handle("/metrics", s.metrics.Handler()).Methods("GET")
	}

	// a known path with the wrong method answers 405
	s.router.HandleFunc("/api/predict", s.handlePredict).Methods("POST")
	s.router.HandleFunc("/api/model", s.handleGetModel).Methods("GET")
	s.router.HandleFunc("/api/runs", s.handleListRuns).Methods("GET")
	s.router.HandleFunc("/api/runs/{id}", s.handleGetRun).Methods("GET")
	s.router.HandleFunc("/api/refresh/jobs", s.handleListRefreshJobs).Methods("GET")
	s.router.HandleFunc("/api/refresh/jobs/{id}/run", s.handleRunRefreshJob).Methods("POST")
	s.router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeErrorResponse(w, http.StatusMethodNotAllowed, fmt.Sprintf("method %s not allowed on %s", r.Method, r.URL.Path))
	})
}

// Start serves until Shutdown is called
func (s *Server) Start() error {
	s.log.Infow("Starting API server", "addr", s.addr)
	if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}
