package embedding

import (
	"context"
	"fmt"

	"github.com/hyperjump/tsunagu/internal/failure"
	"github.com/hyperjump/tsunagu/pkg/utils"
	"github.com/sashabaranov/go-openai"
)

// OpenAIProvider calls an OpenAI-compatible embeddings endpoint.
type OpenAIProvider struct {
	client     *openai.Client
	model      string
	dimensions int
}

// NewOpenAIProvider creates a provider. baseURL overrides the API root, e.g. for a
// local OpenAI-compatible server; empty uses api.openai.com.
func NewOpenAIProvider(apiKey, baseURL, model string, dimensions int) *OpenAIProvider {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIProvider{
		client:     openai.NewClientWithConfig(cfg),
		model:      model,
		dimensions: dimensions,
	}
}

// Embed requests one embedding and L2-normalizes it.
func (p *OpenAIProvider) Embed(ctx context.Context, text string) (*Embedding, error) {
	resp, err := p.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: openai.EmbeddingModel(p.model),
	})
	if err != nil {
		return nil, classifyOpenAIError("openai embed", err)
	}
	if len(resp.Data) == 0 {
		return nil, failure.Newf(failure.ProviderUnavailable, "openai embed", "empty response for model %s", p.model)
	}
	vec := resp.Data[0].Embedding
	if p.dimensions > 0 && len(vec) != p.dimensions {
		return nil, failure.New(failure.ProviderUnavailable, "openai embed",
			fmt.Errorf("model %s returned %d dimensions, expected %d", p.model, len(vec), p.dimensions))
	}
	out := make([]float32, len(vec))
	copy(out, vec)
	utils.NormalizeL2(out)
	return &Embedding{Vector: out}, nil
}

// Name returns "openai".
func (p *OpenAIProvider) Name() string { return ProviderOpenAI }

// Model returns the embedding model name.
func (p *OpenAIProvider) Model() string { return p.model }

// Dimensions returns the expected vector length.
func (p *OpenAIProvider) Dimensions() int { return p.dimensions }

// Close is a no-op; the HTTP client holds no resources that need releasing.
func (p *OpenAIProvider) Close() error { return nil }
