// Package ops exposes the operational HTTP endpoints served during an
// ingestion run: Prometheus metrics and a liveness probe.
package ops

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/civicworks/nyc311-pipeline/internal/metrics"
)

// Server is a small listener that lives for the duration of one run.
type Server struct {
	srv    *http.Server
	logger *zap.Logger
}

// NewServer builds the ops listener on the given port.
func NewServer(port int, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", metrics.Handler())

	return &Server{
		srv: &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           r,
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger,
	}
}

// Handler exposes the router (used in tests).
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

// Start serves in the background. Listener failures are logged, not fatal;
// the pipeline does not depend on the ops surface.
func (s *Server) Start() {
	go func() {
		s.logger.Info("ops listener started", zap.String("addr", s.srv.Addr))
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("ops listener error", zap.Error(err))
		}
	}()
}

// Shutdown stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
