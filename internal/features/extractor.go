// Package features turns notes into comparable feature representations.
package features

import (
	"context"
	"fmt"
	"time"

	"github.com/hyperjump/tsunagu/internal/config"
	"github.com/hyperjump/tsunagu/internal/embedding"
	"github.com/hyperjump/tsunagu/internal/keyword"
	"github.com/hyperjump/tsunagu/internal/models"
)

// Extractor converts notes to feature representations. Prepare is called once per run
// with the full corpus; Extract is then safe for concurrent use and depends only on the
// note, the prepared snapshot, and configuration.
type Extractor interface {
	Method() models.Method
	// Model identifies the analyzer/weighting or provider/model in use.
	Model() string
	Prepare(ctx context.Context, notes []*models.Note) error
	Extract(ctx context.Context, note *models.Note) (*models.FeatureRepresentation, error)
}

// New returns the extractor selected by the analysis extraction mode. provider is
// required in embedding mode and ignored otherwise.
func New(cfg *config.Config, provider embedding.Provider) (Extractor, error) {
	switch models.Method(cfg.Analysis.ExtractionMode) {
	case models.MethodKeyword:
		analyzer, err := keyword.NewAnalyzer()
		if err != nil {
			return nil, err
		}
		return NewKeywordExtractor(analyzer, KeywordOptions{
			Weighting: cfg.Keyword.Weighting,
			MaxTerms:  cfg.Keyword.MaxTermsPerNote,
		}), nil
	case models.MethodEmbedding:
		if provider == nil {
			return nil, fmt.Errorf("embedding mode requires an embedding provider")
		}
		analyzer, err := keyword.NewAnalyzer()
		if err != nil {
			return nil, err
		}
		return NewEmbeddingExtractor(provider, cfg.Embedding.Timeout).WithEntities(analyzer), nil
	default:
		return nil, fmt.Errorf("unknown extraction mode: %s", cfg.Analysis.ExtractionMode)
	}
}

// DefaultProviderTimeout bounds one provider call when no timeout is configured.
const DefaultProviderTimeout = 15 * time.Second
