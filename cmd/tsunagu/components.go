package main

import (
	"context"
	"fmt"
	"sort"

	"github.com/hyperjump/tsunagu/internal/analysis"
	"github.com/hyperjump/tsunagu/internal/config"
	"github.com/hyperjump/tsunagu/internal/embedding"
	"github.com/hyperjump/tsunagu/internal/graphview"
	"github.com/hyperjump/tsunagu/internal/metrics"
	"github.com/hyperjump/tsunagu/internal/notes"
	"github.com/hyperjump/tsunagu/internal/search"
	"github.com/hyperjump/tsunagu/internal/storage"
	"go.uber.org/zap"
)

// Components holds the wired services for one process.
type Components struct {
	Store        storage.GraphStore
	Provider     embedding.Provider
	Orchestrator *analysis.Orchestrator
	Graph        *graphview.Assembler
	Search       *search.Engine
	Metrics      metrics.Exporter
}

// Close releases the search indexes, store and provider.
func (c *Components) Close() {
	if c.Search != nil {
		_ = c.Search.Close()
	}
	if c.Provider != nil {
		_ = c.Provider.Close()
	}
	if c.Store != nil {
		_ = c.Store.Close()
	}
}

func initializeComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Components, error) {
	store, err := storage.Open(ctx, cfg.Storage, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	c := &Components{Store: store}

	if cfg.Analysis.ExtractionMode == "embedding" {
		provider, err := embedding.NewProvider(cfg.Embedding, logger)
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("failed to initialize embedding provider: %w", err)
		}
		c.Provider = provider
	}

	repos := make(map[string]notes.Repository, len(cfg.Workspaces))
	for _, id := range workspaceIDs(cfg) {
		ws := cfg.Workspaces[id]
		repos[id] = notes.NewOsDirRepository(ws.NotesDir, ws.Include)
		logger.Info("workspace configured", zap.String("workspace", id), zap.String("notes_dir", ws.NotesDir))
	}

	c.Search = search.NewEngine(cfg, repos, c.Provider, search.WithLogger(logger))
	opts := []analysis.Option{analysis.WithLogger(logger), analysis.WithSearchIndex(c.Search)}
	if cfg.Metrics.Enabled {
		c.Metrics = metrics.NewPrometheus()
		opts = append(opts, analysis.WithMetrics(c.Metrics))
	}
	c.Orchestrator, err = analysis.New(cfg, store, repos, c.Provider, opts...)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to initialize analysis: %w", err)
	}
	c.Graph = graphview.New(store)
	return c, nil
}

func workspaceIDs(cfg *config.Config) []string {
	ids := make([]string, 0, len(cfg.Workspaces))
	for id := range cfg.Workspaces {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
