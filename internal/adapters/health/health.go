package health

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

const (
	DefaultListen      = ":3000"
	DefaultGracePeriod = 60 * time.Second

	healthy   = "OK"
	unhealthy = "NOT OK - NOT ENOUGH SERVERS"
)

// Status reports what the liveness check looks at.
type Status interface {
	Uptime() time.Duration
	Connected() int64
}

type Config struct {
	Listen      string
	GracePeriod time.Duration
}

// Server serves the liveness check and the Prometheus metrics.
type Server struct {
	config   Config
	status   Status
	gatherer prometheus.Gatherer
	server   *http.Server
}

func New(config Config, status Status, gatherer prometheus.Gatherer) *Server {
	if config.Listen == "" {
		config.Listen = DefaultListen
	}
	if config.GracePeriod <= 0 {
		config.GracePeriod = DefaultGracePeriod
	}

	return &Server{config: config, status: status, gatherer: gatherer}
}

// Start serves until ctx is cancelled. It only returns nil after a clean shutdown.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:              s.config.Listen,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Info().Str("listen", s.config.Listen).Msg("health server starting")

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("health server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("health server shutdown failed: %w", err)
		}
		return nil
	case err := <-errCh:
		return fmt.Errorf("health server error: %w", err)
	}
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)

	r.Get("/healthcheck", s.handleHealthcheck)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	return r
}

func (s *Server) handleHealthcheck(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")

	if s.status.Uptime() < s.config.GracePeriod || s.status.Connected() >= 1 {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(healthy))
		return
	}

	log.Warn().Int64("connections", s.status.Connected()).Msg("health check failed")

	w.WriteHeader(http.StatusInternalServerError)
	_, _ = w.Write([]byte(unhealthy))
}
