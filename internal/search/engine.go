package search

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hyperjump/tsunagu/internal/config"
	"github.com/hyperjump/tsunagu/internal/embedding"
	"github.com/hyperjump/tsunagu/internal/failure"
	"github.com/hyperjump/tsunagu/internal/features"
	"github.com/hyperjump/tsunagu/internal/models"
	"github.com/hyperjump/tsunagu/internal/notes"
	"github.com/hyperjump/tsunagu/internal/vector"
	"github.com/hyperjump/tsunagu/pkg/utils"
)

// minCandidates is the smallest number of hits requested from each index.
const minCandidates = 50

// Engine searches workspace notes. Each workspace has an immutable snapshot of a
// text index and, in embedding mode, a vector index over the last run's features.
// Snapshots are replaced whole by Publish; a search always sees one snapshot.
type Engine struct {
	cfg      *config.Config
	weights  config.SearchConfig
	repos    map[string]notes.Repository
	provider embedding.Provider
	method   models.Method
	logger   *zap.Logger

	buildMu   sync.Mutex
	mu        sync.RWMutex
	snapshots map[string]*snapshot
}

type snapshot struct {
	text       *textIndex
	vectors    vector.VectorIndex
	dimensions int
	titles     map[string]string
}

func (s *snapshot) close() {
	_ = s.text.close()
	if s.vectors != nil {
		_ = s.vectors.Close()
	}
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// NewEngine creates a search engine over repos. provider embeds queries in embedding
// mode and may be nil otherwise.
func NewEngine(cfg *config.Config, repos map[string]notes.Repository, provider embedding.Provider, opts ...Option) *Engine {
	weights := cfg.Search
	config.ApplySearchDefaults(&weights)
	e := &Engine{
		cfg:       cfg,
		weights:   weights,
		repos:     repos,
		provider:  provider,
		method:    models.Method(cfg.Analysis.ExtractionMode),
		logger:    zap.NewNop(),
		snapshots: make(map[string]*snapshot),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Publish replaces the workspace snapshot with one built from listed and feats.
// feats may be nil; only embedding vectors are indexed from it.
func (e *Engine) Publish(ctx context.Context, workspace string, listed []*models.Note, feats map[string]*models.FeatureRepresentation) error {
	snap, err := e.build(ctx, listed, feats)
	if err != nil {
		return err
	}
	e.mu.Lock()
	old := e.snapshots[workspace]
	e.snapshots[workspace] = snap
	e.mu.Unlock()
	if old != nil {
		old.close()
	}
	e.logger.Debug("search index published",
		zap.String("workspace", workspace),
		zap.Int("notes", len(listed)),
		zap.Bool("vectors", snap.vectors != nil))
	return nil
}

// Search returns up to k notes matching query, best first with ties by note ID.
// k <= 0 uses the configured default limit. Until the first Publish for a workspace,
// its snapshot is built from the repository with text only.
func (e *Engine) Search(ctx context.Context, workspace, query string, k int) ([]models.SearchResult, error) {
	start := time.Now()
	repo, ok := e.repos[workspace]
	if !ok {
		return nil, failure.Newf(failure.NotFound, "search", "unknown workspace %s", workspace)
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, failure.Newf(failure.InvalidInput, "search", "query is empty")
	}
	if k <= 0 {
		k = e.weights.DefaultLimit
	}
	if err := e.ensure(ctx, workspace, repo); err != nil {
		return nil, err
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	snap := e.snapshots[workspace]
	if snap == nil {
		return nil, failure.Newf(failure.IndexUnavailable, "search", "no index for workspace %s", workspace)
	}

	size := k * 3
	if size < minCandidates {
		size = minCandidates
	}
	kwWeight, semWeight := e.weights.KeywordWeight, e.weights.SemanticWeight
	if snap.vectors == nil {
		kwWeight, semWeight = 1, 0
	}

	var (
		kwHits  []*Hit
		semHits []*vector.VectorResult
	)
	g, gctx := errgroup.WithContext(ctx)
	if kwWeight > 0 {
		g.Go(func() error {
			hits, err := snap.text.search(gctx, query, size)
			if err != nil {
				return failure.New(failure.IndexUnavailable, "search", err)
			}
			kwHits = hits
			return nil
		})
	}
	if semWeight > 0 {
		g.Go(func() error {
			vec, err := e.embedQuery(gctx, query, snap.dimensions)
			if err != nil || vec == nil {
				return err
			}
			hits, err := snap.vectors.Search(gctx, vec, size)
			if err != nil {
				return failure.New(failure.IndexUnavailable, "search", err)
			}
			semHits = hits
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	fused := Fuse(NormalizeKeywordScores(kwHits), NormalizeSemanticScores(semHits), kwWeight, semWeight)
	results := make([]models.SearchResult, 0, k)
	for _, f := range fused {
		if f.Score <= 0 || len(results) == k {
			break
		}
		results = append(results, models.SearchResult{
			NoteID:        f.NoteID,
			Title:         snap.titles[f.NoteID],
			Score:         f.Score,
			KeywordScore:  f.KeywordScore,
			SemanticScore: f.SemanticScore,
			Rank:          len(results) + 1,
		})
	}
	e.logger.Debug("search finished",
		zap.String("workspace", workspace),
		zap.Int("results", len(results)),
		zap.Duration("duration", time.Since(start)))
	return results, nil
}

// Close releases every snapshot.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for ws, snap := range e.snapshots {
		snap.close()
		delete(e.snapshots, ws)
	}
	return nil
}

// ensure builds a text-only snapshot from the repository when the workspace has none.
func (e *Engine) ensure(ctx context.Context, workspace string, repo notes.Repository) error {
	e.mu.RLock()
	_, ok := e.snapshots[workspace]
	e.mu.RUnlock()
	if ok {
		return nil
	}

	e.buildMu.Lock()
	defer e.buildMu.Unlock()
	e.mu.RLock()
	_, ok = e.snapshots[workspace]
	e.mu.RUnlock()
	if ok {
		return nil
	}

	listed, err := repo.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list notes: %w", err)
	}
	snap, err := e.build(ctx, listed, nil)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.snapshots[workspace]; ok {
		// A run published while we were building.
		snap.close()
		return nil
	}
	e.snapshots[workspace] = snap
	return nil
}

func (e *Engine) build(ctx context.Context, listed []*models.Note, feats map[string]*models.FeatureRepresentation) (*snapshot, error) {
	text, err := newTextIndex(listed)
	if err != nil {
		return nil, failure.New(failure.IndexUnavailable, "build search index", err)
	}
	snap := &snapshot{text: text, titles: make(map[string]string, len(listed))}
	for _, n := range listed {
		snap.titles[n.ID] = n.Title
	}
	if e.method != models.MethodEmbedding || len(feats) == 0 {
		return snap, nil
	}

	ids := make([]string, 0, len(feats))
	for id, f := range feats {
		if f.Method == models.MethodEmbedding && !f.Empty() {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return snap, nil
	}
	sort.Strings(ids)
	vectors := make([][]float32, len(ids))
	for i, id := range ids {
		vectors[i] = feats[id].Vector
	}
	snap.dimensions = len(vectors[0])
	index, err := vector.NewVectorIndex(e.cfg.Vector.IndexType, vector.Options{
		Dimensions: snap.dimensions,
		LSHTables:  e.cfg.Vector.LSHTables,
		LSHBits:    e.cfg.Vector.LSHBits,
	})
	if err != nil {
		snap.close()
		return nil, failure.New(failure.IndexUnavailable, "build search index", err)
	}
	if err := index.Add(ctx, ids, vectors); err != nil {
		_ = index.Close()
		snap.close()
		return nil, failure.New(failure.IndexUnavailable, "build search index", err)
	}
	snap.vectors = index
	return snap, nil
}

// embedQuery returns the L2-normalized query vector, or nil when the query has no
// usable embedding.
func (e *Engine) embedQuery(ctx context.Context, query string, dimensions int) ([]float32, error) {
	if e.provider == nil {
		return nil, failure.Newf(failure.ProviderUnavailable, "embed query", "no embedding provider configured")
	}
	timeout := e.cfg.Embedding.Timeout
	if timeout <= 0 {
		timeout = features.DefaultProviderTimeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	emb, err := e.provider.Embed(callCtx, query)
	if err != nil {
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if failure.KindOf(err) == "" {
			return nil, failure.New(failure.ProviderUnavailable, "embed query", err)
		}
		return nil, err
	}
	if len(emb.Vector) != dimensions {
		return nil, failure.Newf(failure.ProviderUnavailable, "embed query",
			"provider returned %d dimensions, index has %d", len(emb.Vector), dimensions)
	}
	if vector.L2Norm(emb.Vector) == 0 {
		return nil, nil
	}
	vec := make([]float32, len(emb.Vector))
	copy(vec, emb.Vector)
	utils.NormalizeL2(vec)
	return vec, nil
}
