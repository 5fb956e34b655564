// Package server exposes the memory service over HTTP: hybrid search,
// document indexing and deletion, namespace stats, and Prometheus metrics.
// Every data route is tenant-scoped through API key authentication.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/yoniassia/memclawz/internal/embed"
	"github.com/yoniassia/memclawz/internal/index"
	"github.com/yoniassia/memclawz/internal/search"
	"github.com/yoniassia/memclawz/internal/syncer"
	"github.com/yoniassia/memclawz/internal/telemetry"
)

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int

	// MaxIndexBatch caps documents per index request.
	MaxIndexBatch int

	// AllowAllOrigins relaxes CORS for local development.
	AllowAllOrigins bool
}

// Server wires the search engine, index manager, and sync loop into an
// HTTP API.
type Server struct {
	cfg      Config
	manager  *index.Manager
	engine   *search.Engine
	embedder embed.Embedder
	sync     *syncer.Syncer
	metrics  *telemetry.Metrics
	logger   *slog.Logger

	router     chi.Router
	httpServer *http.Server
}

// New creates a server. The syncer may be nil when sync is disabled.
func New(cfg Config, manager *index.Manager, engine *search.Engine, embedder embed.Embedder, sync *syncer.Syncer, metrics *telemetry.Metrics, logger *slog.Logger) *Server {
	if cfg.MaxIndexBatch <= 0 {
		cfg.MaxIndexBatch = 500
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		cfg:      cfg,
		manager:  manager,
		engine:   engine,
		embedder: embedder,
		sync:     sync,
		metrics:  metrics,
		logger:   logger.With(slog.String("component", "server")),
	}
	s.router = s.buildRouter()
	return s
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(s.observe)

	corsOpts := cors.Options{
		AllowedOrigins: []string{"http://localhost:*", "http://127.0.0.1:*"},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-API-Key"},
		MaxAge:         300,
	}
	if s.cfg.AllowAllOrigins {
		corsOpts.AllowedOrigins = []string{"*"}
	}
	r.Use(cors.Handler(corsOpts))

	r.Get("/health", s.handleHealth)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	r.Group(func(r chi.Router) {
		r.Use(s.authenticate)

		r.Post("/search", s.handleSearch)
		r.Post("/index", s.handleIndex)
		r.Post("/delete", s.handleDelete)
		r.Get("/stats", s.handleStats)
		r.Get("/namespaces", s.handleNamespaces)
		r.Post("/sync/trigger", s.handleSyncTrigger)
	})

	return r
}

// Handler returns the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens on the configured address and blocks until the server
// stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      120 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	s.logger.Info("server_listening", slog.String("addr", addr))
	return s.httpServer.ListenAndServe()
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}
