// Package metrics exposes the Prometheus scrape endpoint for a batch run.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"liqsim/internal/core"
)

const readHeaderTimeout = 5 * time.Second

// Server serves /metrics for the lifetime of a simulation batch.
type Server struct {
	srv    *http.Server
	logger core.ILogger
}

// NewServer builds the scrape server on the given port.
func NewServer(port int, logger core.ILogger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return &Server{
		srv: &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           mux,
			ReadHeaderTimeout: readHeaderTimeout,
		},
		logger: logger.WithField("component", "metrics_server"),
	}
}

// Start begins serving in the background. A bind failure is logged rather
// than fatal; the batch still runs, it just cannot be scraped.
func (s *Server) Start() {
	go func() {
		s.logger.Info("Serving Prometheus metrics", "addr", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Metrics server failed", "error", err)
		}
	}()
}

// Stop shuts the listener down, draining in-flight scrapes.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping metrics server")
	return s.srv.Shutdown(ctx)
}
