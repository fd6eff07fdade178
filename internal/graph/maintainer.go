// Package graph turns scored note pairs into a pruned relationship edge set and commits
// it to the graph store.
//
// Each note in the prune scope keeps its own top MaxPerNote pairs above the threshold.
// The surviving edge set is the union of those per-note selections, so a note can take
// part in more than MaxPerNote edges when partners select it; the selection flags on
// each edge record whose ranking kept it.
package graph

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/hyperjump/tsunagu/internal/models"
	"github.com/hyperjump/tsunagu/internal/storage"
	"go.uber.org/zap"
)

// Policy is the threshold and cap applied to scored pairs.
type Policy struct {
	Threshold  float64
	MaxPerNote int
}

// Validate checks the policy bounds.
func (p Policy) Validate() error {
	if p.Threshold < 0 || p.Threshold > 1 {
		return fmt.Errorf("similarity threshold %v out of range [0,1]", p.Threshold)
	}
	if p.MaxPerNote < 1 {
		return fmt.Errorf("max relationships per note must be at least 1, got %d", p.MaxPerNote)
	}
	return nil
}

// CommitRequest is the outcome of one analysis run handed to the maintainer.
type CommitRequest struct {
	Workspace string
	RunID     string
	Method    models.Method
	// Scored holds every pair scored in this run, including pairs below the threshold.
	Scored []models.ScoredPair
	// Scope lists notes whose rankings were recomputed.
	Scope []string
	// Protected notes were skipped or failed; their edges are left as they are.
	Protected []string
	// Deleted notes are gone from the repository.
	Deleted []string
	// Nodes are snapshots of every listed note.
	Nodes      []*models.GraphNode
	ComputedAt time.Time
}

// CommitResult counts the edge writes of a commit.
type CommitResult struct {
	Upserted int
	Deleted  int
}

// Maintainer commits analysis results to a graph store.
type Maintainer struct {
	store  storage.GraphStore
	policy Policy
	logger *zap.Logger
}

// MaintainerOption configures a Maintainer.
type MaintainerOption func(*Maintainer)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) MaintainerOption {
	return func(m *Maintainer) { m.logger = l }
}

// NewMaintainer creates a maintainer applying policy to commits on store.
func NewMaintainer(store storage.GraphStore, policy Policy, opts ...MaintainerOption) (*Maintainer, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	m := &Maintainer{store: store, policy: policy, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Policy returns the maintainer's policy.
func (m *Maintainer) Policy() Policy {
	return m.policy
}

// Commit reads the edges touching the scope, plans the change set, and applies it in
// one storage transaction. Nothing is written if ctx is cancelled before the commit.
func (m *Maintainer) Commit(ctx context.Context, req *CommitRequest) (*CommitResult, error) {
	touched := make([]string, 0, len(req.Scope)+len(req.Deleted))
	touched = append(touched, req.Scope...)
	touched = append(touched, req.Deleted...)

	existing, err := m.store.EdgesTouching(ctx, req.Workspace, touched)
	if err != nil {
		return nil, fmt.Errorf("failed to read existing edges: %w", err)
	}

	changes := Plan(req, existing, m.policy)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := m.store.ApplyCommit(ctx, req.Workspace, changes); err != nil {
		return nil, fmt.Errorf("failed to commit run %s: %w", req.RunID, err)
	}

	res := &CommitResult{Upserted: len(changes.UpsertEdges), Deleted: len(changes.DeleteEdges)}
	m.logger.Info("graph committed",
		zap.String("workspace", req.Workspace),
		zap.String("run_id", req.RunID),
		zap.Int("edges_upserted", res.Upserted),
		zap.Int("edges_deleted", res.Deleted),
		zap.Int("nodes_deleted", len(changes.DeleteNodes)))
	return res, nil
}

// Plan computes the change set for req given the persisted edges touching its scope and
// deleted notes. It is deterministic: the output does not depend on the order of
// req.Scored or existing.
func Plan(req *CommitRequest, existing []*models.RelationshipEdge, policy Policy) *storage.Changes {
	scope := toSet(req.Scope)
	protected := toSet(req.Protected)
	deleted := toSet(req.Deleted)

	old := make(map[models.PairKey]*models.RelationshipEdge, len(existing))
	for _, e := range existing {
		old[e.Key()] = e
	}

	excluded := func(k models.PairKey) bool {
		return deleted[k.A] || deleted[k.B] || protected[k.A] || protected[k.B]
	}

	rescored := make(map[models.PairKey]models.ScoredPair, len(req.Scored))
	for _, sp := range req.Scored {
		k := sp.Key()
		if k.A == k.B || excluded(k) {
			continue
		}
		rescored[k] = sp
	}

	var kept []models.ScoredPair
	for _, sp := range rescored {
		if sp.Strength >= policy.Threshold {
			kept = append(kept, sp)
		}
	}
	sortPairs(kept)

	// Edges to protected notes keep their flags, so a scoped note's earlier choice of
	// one still takes a slot of its cap.
	reserved := make(map[string]int)
	for _, e := range existing {
		k := e.Key()
		if deleted[k.A] || deleted[k.B] || !(protected[k.A] || protected[k.B]) {
			continue
		}
		if scope[k.A] && e.SelectedBySource {
			reserved[k.A]++
		}
		if scope[k.B] && e.SelectedByTarget {
			reserved[k.B]++
		}
	}
	selected := selectTopK(kept, scope, policy.MaxPerNote, reserved)

	flag := func(id string, k models.PairKey) bool {
		if scope[id] {
			return selected[id][k]
		}
		if e, ok := old[k]; ok {
			return e.SelectedBy(id)
		}
		return false
	}

	changes := &storage.Changes{UpsertNodes: req.Nodes}
	edgeType := models.RelationshipTypeFor(req.Method)

	for _, sp := range kept {
		k := sp.Key()
		bySource, byTarget := flag(k.A, k), flag(k.B, k)
		if !bySource && !byTarget {
			if _, ok := old[k]; ok {
				changes.DeleteEdges = append(changes.DeleteEdges, k)
			}
			continue
		}
		changes.UpsertEdges = append(changes.UpsertEdges, &models.RelationshipEdge{
			Workspace:        req.Workspace,
			SourceID:         k.A,
			TargetID:         k.B,
			Type:             edgeType,
			Strength:         sp.Strength,
			Evidence:         sp.Evidence,
			SelectedBySource: bySource,
			SelectedByTarget: byTarget,
			ComputedAt:       req.ComputedAt,
			RunID:            req.RunID,
		})
	}

	for _, e := range existing {
		k := e.Key()
		if deleted[k.A] || deleted[k.B] {
			changes.DeleteEdges = append(changes.DeleteEdges, k)
			continue
		}
		if protected[k.A] || protected[k.B] {
			continue
		}
		if sp, ok := rescored[k]; ok {
			if sp.Strength < policy.Threshold {
				changes.DeleteEdges = append(changes.DeleteEdges, k)
			}
			continue
		}
		if !scope[k.A] && !scope[k.B] {
			continue
		}
		// Not rescored: scoped endpoints no longer select it, so it survives only on an
		// outside endpoint's earlier selection, keeping its strength and timestamp.
		bySource := !scope[k.A] && e.SelectedBySource
		byTarget := !scope[k.B] && e.SelectedByTarget
		switch {
		case !bySource && !byTarget:
			changes.DeleteEdges = append(changes.DeleteEdges, k)
		case bySource != e.SelectedBySource || byTarget != e.SelectedByTarget:
			updated := *e
			updated.SelectedBySource = bySource
			updated.SelectedByTarget = byTarget
			changes.UpsertEdges = append(changes.UpsertEdges, &updated)
		}
	}

	changes.DeleteNodes = sortedKeys(deleted)
	sort.Slice(changes.UpsertEdges, func(i, j int) bool {
		return changes.UpsertEdges[i].Key().Less(changes.UpsertEdges[j].Key())
	})
	changes.DeleteEdges = dedupeKeys(changes.DeleteEdges)
	return changes
}

// selectTopK returns, for each scoped note, the set of pairs in its own top k less the
// slots reserved for it. pairs must already be sorted by rank.
func selectTopK(pairs []models.ScoredPair, scope map[string]bool, k int, reserved map[string]int) map[string]map[models.PairKey]bool {
	selected := make(map[string]map[models.PairKey]bool, len(scope))
	for _, sp := range pairs {
		for _, id := range []string{sp.A, sp.B} {
			if !scope[id] {
				continue
			}
			sel := selected[id]
			if sel == nil {
				sel = make(map[models.PairKey]bool, k)
				selected[id] = sel
			}
			if len(sel) < k-reserved[id] {
				sel[sp.Key()] = true
			}
		}
	}
	return selected
}

// sortPairs orders by strength descending, then by canonical pair.
func sortPairs(pairs []models.ScoredPair) {
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].Strength != pairs[j].Strength {
			return pairs[i].Strength > pairs[j].Strength
		}
		return pairs[i].Key().Less(pairs[j].Key())
	})
}

func dedupeKeys(keys []models.PairKey) []models.PairKey {
	if len(keys) == 0 {
		return nil
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })
	out := keys[:1]
	for _, k := range keys[1:] {
		if k != out[len(out)-1] {
			out = append(out, k)
		}
	}
	return out
}

func toSet(ids []string) map[string]bool {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}

func sortedKeys(set map[string]bool) []string {
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
