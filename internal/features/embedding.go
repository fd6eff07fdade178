package features

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/hyperjump/tsunagu/internal/embedding"
	"github.com/hyperjump/tsunagu/internal/failure"
	"github.com/hyperjump/tsunagu/internal/keyword"
	"github.com/hyperjump/tsunagu/internal/models"
	"github.com/hyperjump/tsunagu/pkg/utils"
	"golang.org/x/text/unicode/norm"
)

// EmbeddingExtractor delegates to an embedding provider, one call per note, each
// bounded by its own timeout.
type EmbeddingExtractor struct {
	provider embedding.Provider
	timeout  time.Duration
	entities *keyword.Analyzer
}

// NewEmbeddingExtractor creates an embedding extractor. timeout <= 0 uses DefaultProviderTimeout.
func NewEmbeddingExtractor(provider embedding.Provider, timeout time.Duration) *EmbeddingExtractor {
	if timeout <= 0 {
		timeout = DefaultProviderTimeout
	}
	return &EmbeddingExtractor{provider: provider, timeout: timeout}
}

// WithEntities makes Extract record each note's entities using analyzer.
func (e *EmbeddingExtractor) WithEntities(analyzer *keyword.Analyzer) *EmbeddingExtractor {
	e.entities = analyzer
	return e
}

// Method returns embedding.
func (e *EmbeddingExtractor) Method() models.Method { return models.MethodEmbedding }

// Model returns "<provider>/<model>".
func (e *EmbeddingExtractor) Model() string {
	return e.provider.Name() + "/" + e.provider.Model()
}

// Prepare is a no-op; embeddings do not depend on the corpus.
func (e *EmbeddingExtractor) Prepare(ctx context.Context, notes []*models.Note) error {
	return nil
}

// Extract embeds the note text. An empty body is InvalidInput; provider failures and
// timeouts are ProviderUnavailable. A zero vector yields an empty representation.
func (e *EmbeddingExtractor) Extract(ctx context.Context, note *models.Note) (*models.FeatureRepresentation, error) {
	if strings.TrimSpace(norm.NFKC.String(note.Body)) == "" {
		return nil, failure.Newf(failure.InvalidInput, "extract "+note.ID, "note body is empty")
	}
	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	emb, err := e.provider.Embed(callCtx, norm.NFKC.String(note.Text()))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if errors.Is(err, context.DeadlineExceeded) && failure.KindOf(err) == "" {
			return nil, failure.New(failure.ProviderUnavailable, "extract "+note.ID,
				fmt.Errorf("provider call exceeded %s: %w", e.timeout, err))
		}
		if failure.KindOf(err) == "" {
			return nil, failure.New(failure.ProviderUnavailable, "extract "+note.ID, err)
		}
		return nil, err
	}
	if dims := e.provider.Dimensions(); dims > 0 && len(emb.Vector) != dims {
		return nil, failure.Newf(failure.ProviderUnavailable, "extract "+note.ID,
			"provider returned %d dimensions, expected %d", len(emb.Vector), dims)
	}
	vec := make([]float32, len(emb.Vector))
	copy(vec, emb.Vector)
	utils.NormalizeL2(vec)
	return &models.FeatureRepresentation{
		NoteID:      note.ID,
		Method:      models.MethodEmbedding,
		Model:       e.Model(),
		Vector:      vec,
		Explanation: emb.Explanation,
		Entities:    e.noteEntities(note),
	}, nil
}

// noteEntities merges the named phrases of the note text with its tags.
func (e *EmbeddingExtractor) noteEntities(note *models.Note) []string {
	if e.entities == nil {
		return nil
	}
	found := e.entities.Entities(note.Title + "\n" + note.Body)
	for _, tag := range note.Tags {
		if tag = strings.ToLower(strings.TrimSpace(norm.NFKC.String(tag))); tag != "" {
			found = append(found, tag)
		}
	}
	if len(found) == 0 {
		return nil
	}
	sort.Strings(found)
	out := found[:1]
	for _, ent := range found[1:] {
		if ent != out[len(out)-1] {
			out = append(out, ent)
		}
	}
	return out
}
