// Package analysis runs the extraction, candidate, scoring, and commit pipeline for a
// workspace and records each run.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hyperjump/tsunagu/internal/candidates"
	"github.com/hyperjump/tsunagu/internal/config"
	"github.com/hyperjump/tsunagu/internal/embedding"
	"github.com/hyperjump/tsunagu/internal/failure"
	"github.com/hyperjump/tsunagu/internal/features"
	"github.com/hyperjump/tsunagu/internal/graph"
	"github.com/hyperjump/tsunagu/internal/metrics"
	"github.com/hyperjump/tsunagu/internal/models"
	"github.com/hyperjump/tsunagu/internal/notes"
	"github.com/hyperjump/tsunagu/internal/scoring"
	"github.com/hyperjump/tsunagu/internal/storage"
)

// Orchestrator coordinates analysis runs. At most one run per workspace is active; a
// trigger while one is running fails fast with RunAlreadyInProgress.
type Orchestrator struct {
	cfg        *config.Config
	store      storage.GraphStore
	repos      map[string]notes.Repository
	provider   embedding.Provider
	maintainer *graph.Maintainer
	scorer     scoring.Scorer
	method     models.Method
	generator  GeneratorFactory
	search     SearchPublisher

	logger  *zap.Logger
	metrics metrics.Recorder
	now     func() time.Time

	mu      sync.Mutex
	running map[string]*runToken
}

// runToken is the per-workspace lock held for the lifetime of a run.
type runToken struct {
	runID  string
	cancel context.CancelFunc
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(r metrics.Recorder) Option {
	return func(o *Orchestrator) { o.metrics = r }
}

// GeneratorFactory creates the candidate generator for one run.
type GeneratorFactory func(method models.Method, cfg *config.Config) (candidates.Generator, error)

// WithGeneratorFactory overrides how runs create their candidate generator.
func WithGeneratorFactory(f GeneratorFactory) Option {
	return func(o *Orchestrator) { o.generator = f }
}

// SearchPublisher receives the notes and features of each committed run.
type SearchPublisher interface {
	Publish(ctx context.Context, workspace string, listed []*models.Note, feats map[string]*models.FeatureRepresentation) error
}

// WithSearchIndex publishes every committed run to p.
func WithSearchIndex(p SearchPublisher) Option {
	return func(o *Orchestrator) { o.search = p }
}

// WithClock overrides the time source used for run and edge timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// New creates an orchestrator. repos maps workspace IDs to their note repositories.
// provider is required in embedding mode.
func New(cfg *config.Config, store storage.GraphStore, repos map[string]notes.Repository, provider embedding.Provider, opts ...Option) (*Orchestrator, error) {
	method := models.Method(cfg.Analysis.ExtractionMode)
	if !method.Valid() {
		return nil, fmt.Errorf("unknown extraction mode: %s", cfg.Analysis.ExtractionMode)
	}
	if method == models.MethodEmbedding && provider == nil {
		return nil, fmt.Errorf("embedding mode requires an embedding provider")
	}
	scorer, err := scoring.New(method, scoring.Options{
		MinTermWeight: cfg.Keyword.MinTermWeight,
		EvidenceLimit: cfg.Keyword.EvidenceLimit,
	})
	if err != nil {
		return nil, err
	}

	o := &Orchestrator{
		cfg:       cfg,
		store:     store,
		repos:     repos,
		provider:  provider,
		scorer:    scorer,
		method:    method,
		generator: candidates.New,
		logger:    zap.NewNop(),
		metrics:   metrics.Noop(),
		now:       time.Now,
		running:   make(map[string]*runToken),
	}
	for _, opt := range opts {
		opt(o)
	}

	o.maintainer, err = graph.NewMaintainer(store, graph.Policy{
		Threshold:  cfg.Analysis.Threshold(),
		MaxPerNote: cfg.Analysis.MaxRelationshipsPerNote,
	}, graph.WithLogger(o.logger))
	if err != nil {
		return nil, err
	}
	return o, nil
}

// Workspaces returns the configured workspace IDs in order.
func (o *Orchestrator) Workspaces() []string {
	out := make([]string, 0, len(o.repos))
	for id := range o.repos {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// HasWorkspace reports whether workspace is configured.
func (o *Orchestrator) HasWorkspace(workspace string) bool {
	_, ok := o.repos[workspace]
	return ok
}

// Running returns the ID of the run in progress for workspace, if any.
func (o *Orchestrator) Running(workspace string) (string, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if t, ok := o.running[workspace]; ok {
		return t.runID, true
	}
	return "", false
}

// Cancel cancels the run in progress for workspace. Nothing from a cancelled run is
// committed. It reports whether a run was in progress.
func (o *Orchestrator) Cancel(workspace string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	t, ok := o.running[workspace]
	if ok {
		t.cancel()
		o.logger.Info("analysis run cancel requested",
			zap.String("workspace", workspace), zap.String("run_id", t.runID))
	}
	return ok
}

// GetRun returns a recorded run.
func (o *Orchestrator) GetRun(ctx context.Context, workspace, runID string) (*models.AnalysisRun, error) {
	if !o.HasWorkspace(workspace) {
		return nil, failure.Newf(failure.NotFound, "get run", "workspace %s not found", workspace)
	}
	return o.store.GetRun(ctx, workspace, runID)
}

func (o *Orchestrator) acquire(workspace string, cancel context.CancelFunc) (*runToken, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if t, ok := o.running[workspace]; ok {
		return nil, failure.Newf(failure.RunAlreadyInProgress, "trigger analysis",
			"run %s is in progress for workspace %s", t.runID, workspace)
	}
	t := &runToken{runID: uuid.New().String(), cancel: cancel}
	o.running[workspace] = t
	return t, nil
}

func (o *Orchestrator) release(workspace string, t *runToken) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.running[workspace] == t {
		delete(o.running, workspace)
	}
	t.cancel()
}

// TriggerAnalysis runs analysis for workspace and blocks until the run finishes.
// When the run starts, the returned summary is non-nil even if the run failed; the
// error then carries the run-level cause.
func (o *Orchestrator) TriggerAnalysis(ctx context.Context, workspace string, mode models.RunMode) (*models.RunSummary, error) {
	repo, ok := o.repos[workspace]
	if !ok {
		return nil, failure.Newf(failure.NotFound, "trigger analysis", "workspace %s not found", workspace)
	}
	if mode == "" {
		mode = models.ModeFull
	}

	runCtx, cancel := context.WithCancel(ctx)
	token, err := o.acquire(workspace, cancel)
	if err != nil {
		cancel()
		return nil, err
	}
	defer o.release(workspace, token)

	run := &models.AnalysisRun{
		ID:        token.runID,
		Workspace: workspace,
		Mode:      mode,
		Status:    models.RunRunning,
		StartedAt: o.now(),
		Processed: []string{},
		Skipped:   map[string]string{},
		Failed:    map[string]string{},
	}
	if err := o.store.SaveRun(runCtx, run); err != nil {
		return nil, fmt.Errorf("failed to record run start: %w", err)
	}
	done := metrics.TimeRun(o.metrics, workspace)
	o.logger.Info("analysis run started",
		zap.String("workspace", workspace),
		zap.String("run_id", run.ID),
		zap.String("mode", string(mode)),
		zap.String("method", string(o.method)))

	runErr := o.execute(runCtx, run, repo)

	run.FinishedAt = o.now()
	switch {
	case runErr != nil:
		run.Status = models.RunFailed
		run.Error = runErr.Error()
	case len(run.Failed) > 0:
		run.Status = models.RunCompletedWithDegraded
	default:
		run.Status = models.RunCompleted
	}

	// The finished record is written even when the run context was cancelled.
	if err := o.store.SaveRun(context.WithoutCancel(ctx), run); err != nil {
		o.logger.Error("failed to record run result", zap.String("run_id", run.ID), zap.Error(err))
		if runErr == nil {
			runErr = fmt.Errorf("failed to record run result: %w", err)
		}
	}

	done(string(run.Status))
	o.metrics.AddNotes(workspace, metrics.OutcomeProcessed, len(run.Processed))
	o.metrics.AddNotes(workspace, metrics.OutcomeSkipped, len(run.Skipped))
	o.metrics.AddNotes(workspace, metrics.OutcomeFailed, len(run.Failed))
	o.metrics.AddEdges(workspace, metrics.EdgesUpserted, run.EdgesUpserted)
	o.metrics.AddEdges(workspace, metrics.EdgesDeleted, run.EdgesDeleted)

	fields := []zap.Field{
		zap.String("workspace", workspace),
		zap.String("run_id", run.ID),
		zap.String("status", string(run.Status)),
		zap.Int("processed", len(run.Processed)),
		zap.Int("skipped", len(run.Skipped)),
		zap.Int("failed", len(run.Failed)),
		zap.Int("edges_upserted", run.EdgesUpserted),
		zap.Int("edges_deleted", run.EdgesDeleted),
		zap.Duration("duration", run.FinishedAt.Sub(run.StartedAt)),
	}
	if runErr != nil {
		o.logger.Error("analysis run failed", append(fields, zap.Error(runErr))...)
		return run.Summary(), runErr
	}
	o.logger.Info("analysis run finished", fields...)
	return run.Summary(), nil
}

// execute fills run with the outcome. A non-nil error means nothing was committed.
func (o *Orchestrator) execute(ctx context.Context, run *models.AnalysisRun, repo notes.Repository) error {
	listed, err := repo.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list notes: %w", err)
	}
	byID := make(map[string]*models.Note, len(listed))
	nodes := make([]*models.GraphNode, 0, len(listed))
	for _, n := range listed {
		byID[n.ID] = n
		nodes = append(nodes, models.NodeFromNote(run.Workspace, n))
	}

	persisted, err := o.store.ListNodes(ctx, run.Workspace)
	if err != nil {
		return err
	}
	var deleted []string
	known := make(map[string]bool, len(persisted))
	for _, n := range persisted {
		known[n.ID] = true
		if _, ok := byID[n.ID]; !ok {
			deleted = append(deleted, n.ID)
		}
	}

	changed, err := o.changedNotes(ctx, run, listed, known)
	if err != nil {
		return err
	}

	extractor, err := features.New(o.cfg, o.provider)
	if err != nil {
		return err
	}
	if err := extractor.Prepare(ctx, listed); err != nil {
		return err
	}
	feats, err := o.extractAll(ctx, run, extractor, listed)
	if err != nil {
		return err
	}

	gen, err := o.generator(o.method, o.cfg)
	if err != nil {
		return failure.New(failure.IndexUnavailable, "create candidate generator", err)
	}
	defer gen.Close()
	if err := gen.Build(ctx, feats); err != nil {
		return err
	}

	nb, err := o.neighborhoods(ctx, gen, feats)
	if err != nil {
		return err
	}
	scope, err := o.scope(ctx, run, nb, changed, deleted, feats)
	if err != nil {
		return err
	}
	scored, err := o.scoreAll(ctx, run, nb, scope, feats)
	if err != nil {
		return err
	}

	processed := make([]string, 0, len(scope))
	for _, id := range scope {
		if _, failed := run.Failed[id]; !failed {
			processed = append(processed, id)
		}
	}
	protected := make([]string, 0, len(run.Skipped)+len(run.Failed))
	for id := range run.Skipped {
		protected = append(protected, id)
	}
	for id := range run.Failed {
		protected = append(protected, id)
	}
	sort.Strings(protected)

	if err := ctx.Err(); err != nil {
		return err
	}
	res, err := o.maintainer.Commit(ctx, &graph.CommitRequest{
		Workspace:  run.Workspace,
		RunID:      run.ID,
		Method:     o.method,
		Scored:     scored,
		Scope:      processed,
		Protected:  protected,
		Deleted:    deleted,
		Nodes:      nodes,
		ComputedAt: o.now(),
	})
	if err != nil {
		return err
	}
	run.Processed = processed
	run.EdgesUpserted = res.Upserted
	run.EdgesDeleted = res.Deleted

	if o.search != nil {
		// The graph is committed; a stale search index does not fail the run.
		if err := o.search.Publish(ctx, run.Workspace, listed, feats); err != nil {
			o.logger.Warn("search index update failed",
				zap.String("workspace", run.Workspace),
				zap.String("run_id", run.ID),
				zap.Error(err))
		}
	}
	return nil
}

// changedNotes returns the IDs whose rankings must be recomputed. Incremental runs
// without a previous successful run behave like full runs.
func (o *Orchestrator) changedNotes(ctx context.Context, run *models.AnalysisRun, listed []*models.Note, known map[string]bool) (map[string]bool, error) {
	changed := make(map[string]bool)
	var last *models.AnalysisRun
	if run.Mode == models.ModeIncremental {
		var err error
		if last, err = o.store.LastSuccessfulRun(ctx, run.Workspace); err != nil {
			return nil, err
		}
	}
	for _, n := range listed {
		switch {
		case last == nil:
			changed[n.ID] = true
		case n.ModifiedAt.After(last.StartedAt), !known[n.ID]:
			changed[n.ID] = true
		default:
			// Notes that failed last time are retried.
			if _, failed := last.Failed[n.ID]; failed {
				changed[n.ID] = true
			}
		}
	}
	return changed, nil
}

// extractAll extracts features for every listed note on the worker pool. Per-note
// failures are recorded on run; cancellation and infrastructure errors abort.
func (o *Orchestrator) extractAll(ctx context.Context, run *models.AnalysisRun, extractor features.Extractor, listed []*models.Note) (map[string]*models.FeatureRepresentation, error) {
	var mu sync.Mutex
	feats := make(map[string]*models.FeatureRepresentation, len(listed))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.Analysis.Workers)
	for _, n := range listed {
		n := n
		g.Go(func() error {
			rep, err := extractor.Extract(gctx, n)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil && rep.Empty():
				run.Skipped[n.ID] = models.ReasonNoFeatures
			case err == nil:
				feats[n.ID] = rep
			case isAbort(err):
				return err
			case failure.Is(err, failure.InvalidInput):
				run.Skipped[n.ID] = err.Error()
			default:
				run.Failed[n.ID] = err.Error()
				o.logger.Warn("feature extraction failed",
					zap.String("workspace", run.Workspace),
					zap.String("note_id", n.ID),
					zap.Error(err))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return feats, nil
}

// neighborhood holds every note's candidate pairs together with the pairs in which
// the note was proposed by someone else. A note's ranking is computed over both.
type neighborhood struct {
	forward map[string][]models.CandidatePair
	reverse map[string][]models.CandidatePair
}

// pairsOf returns the candidate pairs involving id in either direction, once each.
func (nb *neighborhood) pairsOf(id string) []models.CandidatePair {
	seen := make(map[models.PairKey]bool, len(nb.forward[id])+len(nb.reverse[id]))
	out := make([]models.CandidatePair, 0, len(nb.forward[id])+len(nb.reverse[id]))
	for _, list := range [][]models.CandidatePair{nb.forward[id], nb.reverse[id]} {
		for _, p := range list {
			k := p.Key()
			if seen[k] {
				continue
			}
			seen[k] = true
			out = append(out, p)
		}
	}
	return out
}

// neighborhoods queries the candidate generator for every note with features on the
// worker pool and indexes the results in both directions.
func (o *Orchestrator) neighborhoods(ctx context.Context, gen candidates.Generator, feats map[string]*models.FeatureRepresentation) (*neighborhood, error) {
	ids := make([]string, 0, len(feats))
	for id := range feats {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var mu sync.Mutex
	nb := &neighborhood{
		forward: make(map[string][]models.CandidatePair, len(ids)),
		reverse: make(map[string][]models.CandidatePair, len(ids)),
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.Analysis.Workers)
	for _, id := range ids {
		id := id
		g.Go(func() error {
			pairs, err := gen.Candidates(gctx, id)
			if err != nil {
				return err
			}
			mu.Lock()
			nb.forward[id] = pairs
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	for _, id := range ids {
		for _, p := range nb.forward[id] {
			other := p.Other(id)
			nb.reverse[other] = append(nb.reverse[other], p)
		}
	}
	return nb, nil
}

// scope returns the notes whose rankings this run recomputes, in order. Only notes
// with features qualify.
func (o *Orchestrator) scope(ctx context.Context, run *models.AnalysisRun, nb *neighborhood, changed map[string]bool, deleted []string, feats map[string]*models.FeatureRepresentation) ([]string, error) {
	set := make(map[string]bool, len(changed))
	for id := range changed {
		set[id] = true
	}

	if run.Mode == models.ModeIncremental {
		seeds := make([]string, 0, len(changed)+len(deleted))
		for id := range changed {
			seeds = append(seeds, id)
			for _, p := range nb.pairsOf(id) {
				set[p.Other(id)] = true
			}
		}
		seeds = append(seeds, deleted...)
		sort.Strings(seeds)
		edges, err := o.store.EdgesTouching(ctx, run.Workspace, seeds)
		if err != nil {
			return nil, err
		}
		for _, e := range edges {
			set[e.SourceID] = true
			set[e.TargetID] = true
		}
	}

	out := make([]string, 0, len(set))
	for id := range set {
		if _, ok := feats[id]; ok {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out, nil
}

// scoreAll scores the pairs of every scoped note on the worker pool: the note's own
// candidates and the pairs in which other notes proposed it, which is the pair set a
// full run ranks the note over. A note whose pairs cannot be scored is recorded as
// failed and its pairs are dropped.
func (o *Orchestrator) scoreAll(ctx context.Context, run *models.AnalysisRun, nb *neighborhood, scope []string, feats map[string]*models.FeatureRepresentation) ([]models.ScoredPair, error) {
	var mu sync.Mutex
	byPair := make(map[models.PairKey]models.ScoredPair)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.Analysis.Workers)
	for _, id := range scope {
		id := id
		g.Go(func() error {
			pairs := nb.pairsOf(id)
			local := make([]models.ScoredPair, 0, len(pairs))
			for _, p := range pairs {
				if err := gctx.Err(); err != nil {
					return err
				}
				sp, err := o.scorer.Score(p, feats[p.A], feats[p.B])
				if err != nil {
					mu.Lock()
					run.Failed[id] = err.Error()
					mu.Unlock()
					o.logger.Warn("scoring failed",
						zap.String("workspace", run.Workspace),
						zap.String("note_id", id),
						zap.Error(err))
					return nil
				}
				local = append(local, sp)
			}
			mu.Lock()
			for _, sp := range local {
				byPair[sp.Key()] = sp
			}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]models.ScoredPair, 0, len(byPair))
	for _, sp := range byPair {
		out = append(out, sp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key().Less(out[j].Key()) })
	return out, nil
}

// isAbort reports whether err ends the whole run rather than one note.
func isAbort(err error) bool {
	if errors.Is(err, context.Canceled) || (errors.Is(err, context.DeadlineExceeded) && failure.KindOf(err) == "") {
		return true
	}
	switch failure.KindOf(err) {
	case failure.IndexUnavailable, failure.StorageUnavailable:
		return true
	}
	return false
}
