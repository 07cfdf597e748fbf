// Package api serves the registry over HTTP: transaction submission, account
// reads, address derivation, health and metrics.
package api

import (
	"context"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"oracle-protocol/internal/domain"
	"oracle-protocol/internal/observability"
	"oracle-protocol/internal/pda"
	"oracle-protocol/internal/runtime"
)

// maxBodyBytes bounds a submitted transaction.
const maxBodyBytes = 64 << 10

// Registry is the read side of *registry.Registry.
type Registry interface {
	Programs() pda.Programs
	GetProvider(ctx context.Context, address domain.Pubkey) (*domain.Provider, error)
	GetOracle(ctx context.Context, address domain.Pubkey) (*domain.Oracle, error)
	ListRevisions(ctx context.Context, oracle domain.Pubkey, limit int) ([]*domain.OracleRevision, error)
}

// Processor executes submitted transactions.
type Processor interface {
	Process(ctx context.Context, tx *runtime.Transaction) (*runtime.Receipt, error)
}

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

// Server holds the HTTP handlers.
type Server struct {
	registry       Registry
	processor      Processor
	checks         map[string]HealthCheck
	metricsHandler http.Handler
	logger         *log.Logger
	metrics        *observability.Metrics
}

// Options contains configuration for creating a Server.
type Options struct {
	Registry       Registry  // required
	Processor      Processor // required
	Checks         map[string]HealthCheck
	MetricsHandler http.Handler // Default: observability.Handler()
	Logger         *log.Logger
	Metrics        *observability.Metrics
}

// New creates a Server.
func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	metricsHandler := opts.MetricsHandler
	if metricsHandler == nil {
		metricsHandler = observability.Handler()
	}
	return &Server{
		registry:       opts.Registry,
		processor:      opts.Processor,
		checks:         opts.Checks,
		metricsHandler: metricsHandler,
		logger:         logger,
		metrics:        opts.Metrics,
	}
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.instrument)

	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", s.metricsHandler)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/transactions", s.handleSubmit)
		r.Get("/providers/{address}", s.handleGetProvider)
		r.Get("/oracles/{address}", s.handleGetOracle)
		r.Get("/oracles/{address}/history", s.handleHistory)
		r.Get("/derive/provider", s.handleDeriveProvider)
		r.Get("/derive/oracle", s.handleDeriveOracle)
	})
	return r
}

// NewHTTPServer wraps handler with the server timeouts used in production.
func NewHTTPServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

// instrument records request count and latency by route pattern.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		s.metrics.RecordHTTPRequest(route, strconv.Itoa(status), time.Since(start).Seconds())
	})
}
