// Package candidates proposes bounded sets of note pairs worth scoring.
package candidates

import (
	"context"
	"fmt"

	"github.com/hyperjump/tsunagu/internal/config"
	"github.com/hyperjump/tsunagu/internal/models"
	"github.com/hyperjump/tsunagu/internal/vector"
)

// Generator builds an index over a run's feature representations and then
// returns, per note, at most MaxCandidates pairs ordered by estimated proximity.
// Build and query failures are IndexUnavailable.
type Generator interface {
	Build(ctx context.Context, features map[string]*models.FeatureRepresentation) error
	Candidates(ctx context.Context, noteID string) ([]models.CandidatePair, error)
	Close() error
}

// New returns the generator matching the extraction method.
func New(method models.Method, cfg *config.Config) (Generator, error) {
	switch method {
	case models.MethodKeyword:
		return NewTermGenerator(TermOptions{
			Index:         cfg.Keyword.Index,
			MinTermWeight: cfg.Keyword.MinTermWeight,
			MaxCandidates: cfg.Analysis.MaxCandidatesPerNote,
		}), nil
	case models.MethodEmbedding:
		return NewNeighborGenerator(cfg.Vector.IndexType, vector.Options{
			Dimensions: cfg.Embedding.Dimensions,
			LSHTables:  cfg.Vector.LSHTables,
			LSHBits:    cfg.Vector.LSHBits,
		}, cfg.Analysis.MaxCandidatesPerNote), nil
	default:
		return nil, fmt.Errorf("no candidate strategy for method %q", method)
	}
}

var (
	_ Generator = (*TermGenerator)(nil)
	_ Generator = (*NeighborGenerator)(nil)
)
