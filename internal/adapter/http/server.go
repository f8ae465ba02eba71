// Package http serves the operational endpoints of the streaming loader.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ReadinessChecker is implemented by components that gate /readyz.
type ReadinessChecker interface {
	CheckReadiness(ctx context.Context) error
}

// namedChecker tags a checker's failures with a component name.
type namedChecker struct {
	name    string
	checker ReadinessChecker
}

// Readiness runs every registered checker and joins the failures, each
// prefixed with its component name.
type Readiness struct {
	checks []namedChecker
}

// Add registers a checker under name and returns r for chaining.
func (r *Readiness) Add(name string, c ReadinessChecker) *Readiness {
	r.checks = append(r.checks, namedChecker{name: name, checker: c})
	return r
}

func (r *Readiness) CheckReadiness(ctx context.Context) error {
	var errs []error
	for _, c := range r.checks {
		if err := c.checker.CheckReadiness(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", c.name, err))
		}
	}
	return errors.Join(errs...)
}

// readyTimeout bounds one /readyz evaluation across all checkers.
const readyTimeout = 2 * time.Second

// Server is the loader's operational HTTP surface: liveness, readiness of
// the pipeline and warehouse, and prometheus metrics.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer builds a Server listening on addr. ready backs /readyz.
func NewServer(addr string, ready ReadinessChecker, logger *slog.Logger) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      routes(ready),
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  time.Minute,
		},
		logger: logger,
	}
}

func routes(ready ReadinessChecker) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		respond(w, http.StatusOK, status{Status: "healthy"})
	})
	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
		defer cancel()
		if err := ready.CheckReadiness(ctx); err != nil {
			respond(w, http.StatusServiceUnavailable, status{Status: "not ready", Error: err.Error()})
			return
		}
		respond(w, http.StatusOK, status{Status: "ready"})
	})
	mux.Handle("GET /metrics", promhttp.Handler())
	return mux
}

// Start blocks serving requests. After Shutdown it returns
// http.ErrServerClosed.
func (s *Server) Start() error {
	s.logger.Info("http server listening", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown stops accepting connections and waits for in-flight requests
// until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

type status struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

func respond(w http.ResponseWriter, code int, body status) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Debug("write status response", "error", err)
	}
}
