// Package server provides the HTTP API for tsunagu.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hyperjump/tsunagu/internal/config"
	"github.com/hyperjump/tsunagu/internal/models"
	"go.uber.org/zap"
)

// Analyzer triggers and tracks analysis runs.
type Analyzer interface {
	TriggerAnalysis(ctx context.Context, workspace string, mode models.RunMode) (*models.RunSummary, error)
	Cancel(workspace string) bool
	GetRun(ctx context.Context, workspace, runID string) (*models.AnalysisRun, error)
	Running(workspace string) (string, bool)
	HasWorkspace(workspace string) bool
	Workspaces() []string
}

// GraphReader serves persisted graph views.
type GraphReader interface {
	GetGraph(ctx context.Context, workspace string) (*models.GraphView, error)
	GetRelated(ctx context.Context, workspace, noteID string, topK int) ([]models.RelatedNote, error)
}

// Searcher finds notes matching a text query.
type Searcher interface {
	Search(ctx context.Context, workspace, query string, k int) ([]models.SearchResult, error)
}

// WatchService reports the directories watched for change-triggered runs.
type WatchService interface {
	Directories() []string
}

// Server is the HTTP server for the tsunagu API.
type Server struct {
	analyzer Analyzer
	graph    GraphReader
	config   *config.Config
	logger   *zap.Logger
	watch    WatchService
	search   Searcher
	metrics  http.Handler
	server   *http.Server
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithWatchService exposes the watched directories on /health.
func WithWatchService(w WatchService) ServerOption {
	return func(s *Server) { s.watch = w }
}

// WithSearch enables the workspace search endpoint.
func WithSearch(sr Searcher) ServerOption {
	return func(s *Server) { s.search = sr }
}

// WithMetricsHandler mounts h on /metrics.
func WithMetricsHandler(h http.Handler) ServerOption {
	return func(s *Server) { s.metrics = h }
}

// NewServer creates a server with the given dependencies.
func NewServer(analyzer Analyzer, graph GraphReader, cfg *config.Config, logger *zap.Logger, opts ...ServerOption) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		analyzer: analyzer,
		graph:    graph,
		config:   cfg,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Router builds the HTTP routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Analysis runs block until finished, so they are not subject to the read timeout.
	r.Post("/api/v1/workspaces/{ws}/analysis", s.handleTriggerAnalysis)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(60 * time.Second))
		r.Use(middleware.Compress(5))

		r.Get("/api/v1/workspaces", s.handleListWorkspaces)
		r.Delete("/api/v1/workspaces/{ws}/analysis", s.handleCancelAnalysis)
		r.Get("/api/v1/workspaces/{ws}/runs/{id}", s.handleGetRun)
		r.Get("/api/v1/workspaces/{ws}/graph", s.handleGetGraph)
		r.Get("/api/v1/workspaces/{ws}/notes/{id}/related", s.handleGetRelated)
		r.Get("/api/v1/workspaces/{ws}/search", s.handleSearch)
		r.Get("/health", s.handleHealth)
		if s.metrics != nil {
			r.Handle("/metrics", s.metrics)
		}
	})
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.Router(),
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
