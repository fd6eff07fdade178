package candidates

import (
	"context"
	"sort"

	"github.com/hyperjump/tsunagu/internal/failure"
	"github.com/hyperjump/tsunagu/internal/keyword"
	"github.com/hyperjump/tsunagu/internal/models"
)

// TermOptions configures the inverted-index strategy.
type TermOptions struct {
	Index         string
	MinTermWeight float64
	MaxCandidates int
}

// TermGenerator proposes notes sharing significant terms, ranked by shared-term count.
type TermGenerator struct {
	opts     TermOptions
	index    keyword.TermIndex
	features map[string]*models.FeatureRepresentation
}

// NewTermGenerator creates an inverted-index generator.
func NewTermGenerator(opts TermOptions) *TermGenerator {
	return &TermGenerator{opts: opts}
}

// Build indexes the significant terms of every note.
func (g *TermGenerator) Build(ctx context.Context, features map[string]*models.FeatureRepresentation) error {
	index, err := keyword.NewTermIndex(g.opts.Index)
	if err != nil {
		return failure.New(failure.IndexUnavailable, "build term index", err)
	}
	ids := make([]string, 0, len(features))
	for id := range features {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			_ = index.Close()
			return err
		}
		terms := g.significant(features[id])
		if len(terms) == 0 {
			continue
		}
		if err := index.Index(ctx, id, terms); err != nil {
			_ = index.Close()
			return failure.New(failure.IndexUnavailable, "build term index", err)
		}
	}
	if g.index != nil {
		_ = g.index.Close()
	}
	g.index = index
	g.features = features
	return nil
}

// Candidates returns notes sharing at least one significant term with noteID.
func (g *TermGenerator) Candidates(ctx context.Context, noteID string) ([]models.CandidatePair, error) {
	terms := g.significant(g.features[noteID])
	if len(terms) == 0 || g.index == nil {
		return nil, nil
	}
	// One extra hit accounts for the note matching itself.
	limit := 0
	if g.opts.MaxCandidates > 0 {
		limit = g.opts.MaxCandidates + 1
	}
	hits, err := g.index.Search(ctx, terms, limit)
	if err != nil {
		return nil, failure.New(failure.IndexUnavailable, "query term index", err)
	}
	out := make([]models.CandidatePair, 0, len(hits))
	for _, h := range hits {
		pair, ok := models.NewCandidatePair(noteID, h.ID, models.CandidateKeywordOverlap)
		if !ok {
			continue
		}
		out = append(out, pair)
		if g.opts.MaxCandidates > 0 && len(out) == g.opts.MaxCandidates {
			break
		}
	}
	return out, nil
}

// significant returns terms at or above the minimum weight in sorted order.
func (g *TermGenerator) significant(f *models.FeatureRepresentation) []string {
	if f.Empty() {
		return nil
	}
	terms := make([]string, 0, len(f.Terms))
	for t, w := range f.Terms {
		if w >= g.opts.MinTermWeight {
			terms = append(terms, t)
		}
	}
	sort.Strings(terms)
	return terms
}

// Close releases the index.
func (g *TermGenerator) Close() error {
	if g.index == nil {
		return nil
	}
	return g.index.Close()
}
