// Package server exposes the meeting agent over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"

	"github.com/Protocol-Lattice/meeting-agent/pkg/auth"
	"github.com/Protocol-Lattice/meeting-agent/pkg/observability"
	"github.com/Protocol-Lattice/meeting-agent/pkg/runtime"
)

var tracer = otel.Tracer("github.com/Protocol-Lattice/meeting-agent/pkg/server")

const shutdownTimeout = 15 * time.Second

// Accounts is the identity provider behind /authenticate.
type Accounts interface {
	SignInWithPassword(ctx context.Context, email, password string) (auth.Session, error)
	SignUp(ctx context.Context, email, password, displayName string) (map[string]any, error)
}

// Options configure a Server. Runtime is required.
type Options struct {
	Runtime *runtime.Runtime
	// Accounts enables /authenticate. Without it the route answers 503.
	Accounts Accounts
	// PasswordKey decrypts passwords sent AES encrypted by the frontend.
	PasswordKey string
	Metrics     *observability.Metrics
	// Gatherer serves /metrics. Defaults to the Prometheus default gatherer.
	Gatherer  prometheus.Gatherer
	RateLimit RateLimitConfig
	Logger    *slog.Logger
}

// Server routes HTTP requests to the runtime.
type Server struct {
	rt          *runtime.Runtime
	accounts    Accounts
	passwordKey string
	metrics     *observability.Metrics
	gatherer    prometheus.Gatherer
	limiter     *rateLimiter
	logger      *slog.Logger
}

func New(opts Options) (*Server, error) {
	if opts.Runtime == nil {
		return nil, errors.New("server: runtime is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	gatherer := opts.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return &Server{
		rt:          opts.Runtime,
		accounts:    opts.Accounts,
		passwordKey: opts.PasswordKey,
		metrics:     opts.Metrics,
		gatherer:    gatherer,
		limiter:     newRateLimiter(opts.RateLimit),
		logger:      logger,
	}, nil
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestContext(s.logger))
	r.Use(s.observe)
	r.Use(cors)

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	r.Post("/authenticate/{command}", s.handleAuthenticate)

	r.Group(func(r chi.Router) {
		r.Use(s.requireIdentity)
		r.Get("/history", s.handleHistory)
		r.With(s.rateLimit).Post("/ask", s.handleAsk)
		r.With(s.rateLimit).Post("/search-travel-packages", s.handleSearchTravel)
	})
	return r
}

// Run serves on addr until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("listen %s: %w", addr, err)
	case <-ctx.Done():
	}

	s.logger.Info("http server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
