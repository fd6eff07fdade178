package candidates

import (
	"context"
	"sort"

	"github.com/hyperjump/tsunagu/internal/failure"
	"github.com/hyperjump/tsunagu/internal/models"
	"github.com/hyperjump/tsunagu/internal/vector"
)

// NeighborGenerator proposes each note's nearest neighbors in a vector index.
type NeighborGenerator struct {
	indexType     string
	opts          vector.Options
	maxCandidates int

	index    vector.VectorIndex
	features map[string]*models.FeatureRepresentation
}

// NewNeighborGenerator creates an index-neighbor generator. The index is created on Build;
// opts.Dimensions is replaced by the dimension of the first vector seen.
func NewNeighborGenerator(indexType string, opts vector.Options, maxCandidates int) *NeighborGenerator {
	return &NeighborGenerator{indexType: indexType, opts: opts, maxCandidates: maxCandidates}
}

// Build indexes every non-empty vector.
func (g *NeighborGenerator) Build(ctx context.Context, features map[string]*models.FeatureRepresentation) error {
	ids := make([]string, 0, len(features))
	for id, f := range features {
		if f.Empty() {
			continue
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)
	g.features = features
	if len(ids) == 0 {
		return nil
	}

	opts := g.opts
	opts.Dimensions = len(features[ids[0]].Vector)
	index, err := vector.NewVectorIndex(g.indexType, opts)
	if err != nil {
		return failure.New(failure.IndexUnavailable, "build vector index", err)
	}
	vecs := make([][]float32, len(ids))
	for i, id := range ids {
		vecs[i] = features[id].Vector
	}
	if err := index.Add(ctx, ids, vecs); err != nil {
		_ = index.Close()
		return failure.New(failure.IndexUnavailable, "build vector index", err)
	}
	if g.index != nil {
		_ = g.index.Close()
	}
	g.index = index
	return nil
}

// Candidates queries the top-(N+1) neighbors and drops the note itself.
func (g *NeighborGenerator) Candidates(ctx context.Context, noteID string) ([]models.CandidatePair, error) {
	f := g.features[noteID]
	if f.Empty() || g.index == nil {
		return nil, nil
	}
	results, err := g.index.Search(ctx, f.Vector, g.maxCandidates+1)
	if err != nil {
		return nil, failure.New(failure.IndexUnavailable, "query vector index", err)
	}
	out := make([]models.CandidatePair, 0, len(results))
	for _, r := range results {
		pair, ok := models.NewCandidatePair(noteID, r.ID, models.CandidateIndexNeighbor)
		if !ok {
			continue
		}
		out = append(out, pair)
		if len(out) == g.maxCandidates {
			break
		}
	}
	return out, nil
}

// Close releases the index.
func (g *NeighborGenerator) Close() error {
	if g.index == nil {
		return nil
	}
	return g.index.Close()
}
