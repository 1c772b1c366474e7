// Package server exposes the correction engine over HTTP.
//
// The server serves one domain endpoint, POST /correction/manual, plus the
// operational surface: /healthz and /readyz probes and a Prometheus /metrics
// endpoint. All requests pass through the tracing middleware, so responses
// carry an X-Correlation-ID header.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/jvbeek/palimpsest/internal/config"
	"github.com/jvbeek/palimpsest/internal/health"
	"github.com/jvbeek/palimpsest/internal/observe"
	"github.com/jvbeek/palimpsest/internal/usage"
)

const (
	// shutdownTimeout bounds graceful shutdown after the run context is
	// cancelled. In-flight corrections get this long to finish.
	shutdownTimeout = 15 * time.Second

	// maxUploadBytes caps the total multipart request body. Page scans and
	// transcriptions are text; anything larger is a client error.
	maxUploadBytes = 32 << 20
)

// Server routes correction requests and runs the HTTP listener lifecycle.
// Configuration is read through a snapshot function on every request, so a
// config watcher can swap correction parameters without a restart.
type Server struct {
	cfg     func() *config.Config
	store   usage.Store
	metrics *observe.Metrics
	handler http.Handler
}

// New assembles the route table. cfg must return the current configuration
// snapshot and is called per request. store may be nil, in which case
// authentication must be disabled and no usage is recorded. Extra health
// checkers are wired into /readyz.
func New(cfg func() *config.Config, store usage.Store, metrics *observe.Metrics, checks ...health.Checker) *Server {
	s := &Server{cfg: cfg, store: store, metrics: metrics}

	mux := http.NewServeMux()
	mux.Handle("POST /correction/manual", s.requireKey(http.HandlerFunc(s.handleManual)))
	mux.Handle("GET /metrics", promhttp.Handler())
	health.New(checks...).Register(mux)

	s.handler = observe.Middleware(metrics)(mux)
	return s
}

// Handler returns the fully wrapped route table, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.handler }

// Run serves until ctx is cancelled, then shuts down gracefully. It returns
// nil on a clean shutdown.
func (s *Server) Run(ctx context.Context) error {
	cfg := s.cfg()

	srv := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           s.handler,
		ReadHeaderTimeout: 15 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		var err error
		if tls := cfg.Server.TLS; tls != nil {
			err = srv.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
		} else {
			err = srv.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server: listen on %s: %w", cfg.Server.ListenAddr, err)
	})

	g.Go(func() error {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server: shutdown: %w", err)
		}
		return nil
	})

	return g.Wait()
}
