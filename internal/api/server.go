// Package api exposes the storage backend contract over HTTP: memory
// CRUD, search, graph traversal, administration and the wire-compatible
// export/import envelope, instrumented with Prometheus metrics and
// gated by an optional JWT bearer-token middleware.
package api

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/cortexmemory/cortex/internal/consolidate"
	"github.com/cortexmemory/cortex/internal/embeddings"
	"github.com/cortexmemory/cortex/internal/quality"
	"github.com/cortexmemory/cortex/internal/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Config wires a Server to its dependencies.
type Config struct {
	Store        store.Backend
	Embedder     embeddings.Provider
	Consolidator *consolidate.Consolidator
	Logger       *slog.Logger
	JWTSecret    string
	TokenExpiry  time.Duration
	MaxChars     int
	Registry     *prometheus.Registry // nil uses prometheus.DefaultRegisterer

	// QualityBoostEnabled turns on retrieval re-ranking that blends
	// semantic similarity with each memory's persisted quality score.
	QualityBoostEnabled bool
	// QualityBoostWeight is w in (1-w)*similarity + w*quality. Zero or
	// out-of-range falls back to 0.3.
	QualityBoostWeight float64
}

// Server holds the engine's HTTP surface and its own, separately
// listenable, metrics surface.
type Server struct {
	store           store.Backend
	embedder        embeddings.Provider
	consolidator    *consolidate.Consolidator
	log             *slog.Logger
	jwt             *jwtService
	metrics         *Metrics
	defaultMaxChars int

	quality      *quality.Scorer
	qualityBoost bool

	registerer prometheus.Registerer
	gatherer   prometheus.Gatherer

	apiServer     *http.Server
	metricsServer *http.Server
}

// New builds a Server. Call Handler/MetricsHandler to mount it yourself,
// or ListenAndServe/ListenAndServeMetrics to run it standalone.
func New(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	var registerer prometheus.Registerer = prometheus.DefaultRegisterer
	var gatherer prometheus.Gatherer = prometheus.DefaultGatherer
	if cfg.Registry != nil {
		registerer = cfg.Registry
		gatherer = cfg.Registry
	}

	s := &Server{
		store:           cfg.Store,
		embedder:        cfg.Embedder,
		consolidator:    cfg.Consolidator,
		log:             cfg.Logger,
		jwt:             newJWTService(cfg.JWTSecret, cfg.TokenExpiry),
		metrics:         NewMetrics(registerer),
		defaultMaxChars: cfg.MaxChars,
		// Model is always nil: no cross-encoder classifier is wired into
		// this engine, so Score falls back to the implicit signal alone
		// per the documented fallback chain. QualityBoostWeight still
		// governs how much that persisted quality score moves retrieval
		// ranking below.
		quality:      quality.NewScorer(cfg.QualityBoostWeight, nil),
		qualityBoost: cfg.QualityBoostEnabled,
		registerer:   registerer,
		gatherer:     gatherer,
	}
	return s
}

// Handler builds the authenticated API mux: memory, search, graph,
// admin and wire-format routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	auth := authMiddleware(s.jwt, s.log)

	route := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, auth(instrument(pattern, s.metrics, s.log, h)))
	}

	route("POST /memories", s.handleStore)
	route("PATCH /memories/{hash}", s.handleUpdateMetadata)
	route("DELETE /memories/{hash}", s.handleDelete)
	route("DELETE /memories", s.handleBulkDelete)
	route("GET /memories/{hash}", s.handleGetByHash)
	route("GET /search", s.handleSearch)
	route("GET /memories", s.handleListMemories)
	route("GET /graph/path", s.handleShortestPath)
	route("GET /graph/{hash}/subgraph", s.handleSubgraph)
	route("GET /graph/{hash}", s.handleFindConnected)
	route("GET /health", s.handleHealth)
	route("POST /admin/purge_tombstones", s.handlePurgeTombstones)
	route("POST /admin/consolidate/{horizon}", s.handleConsolidate)
	route("GET /export", s.handleExport)
	route("POST /import", s.handleImport)

	return mux
}

// MetricsHandler builds the unauthenticated metrics-only mux, meant to
// be served on a separate port from the main API surface.
func (s *Server) MetricsHandler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

// ListenAndServe starts the authenticated API surface on addr and
// blocks until the context is canceled, then gracefully shuts down.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.apiServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.apiServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.apiServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// ListenAndServeMetrics starts the metrics-only surface on addr and
// blocks until the context is canceled, then gracefully shuts down.
func (s *Server) ListenAndServeMetrics(ctx context.Context, addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.metricsServer = &http.Server{
		Handler:           s.MetricsHandler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.metricsServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.metricsServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
