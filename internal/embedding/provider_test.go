package embedding

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"testing"

	"github.com/hyperjump/tsunagu/internal/config"
	"github.com/hyperjump/tsunagu/internal/failure"
	"github.com/hyperjump/tsunagu/internal/vector"
	"github.com/sashabaranov/go-openai"
)

func TestHashProvider_Deterministic(t *testing.T) {
	p := NewHashProvider(64)
	ctx := context.Background()
	a, err := p.Embed(ctx, "graph of notes")
	if err != nil {
		t.Fatal(err)
	}
	b, _ := p.Embed(ctx, "graph of notes")
	for i := range a.Vector {
		if a.Vector[i] != b.Vector[i] {
			t.Fatal("same text must embed identically")
		}
	}
	if n := vector.L2Norm(a.Vector); n < 0.999 || n > 1.001 {
		t.Errorf("vector should be unit length, norm=%f", n)
	}
}

func TestHashProvider_SharedWordsCorrelate(t *testing.T) {
	p := NewHashProvider(256)
	ctx := context.Background()
	a, _ := p.Embed(ctx, "knowledge graph relationship extraction")
	b, _ := p.Embed(ctx, "Knowledge graph relationship extraction!")
	c, _ := p.Embed(ctx, "banana smoothie recipe")
	if s := vector.CosineSimilarity(a.Vector, b.Vector); s < 0.999 {
		t.Errorf("case and punctuation should not matter, cosine=%f", s)
	}
	if vector.CosineSimilarity(a.Vector, c.Vector) >= vector.CosineSimilarity(a.Vector, b.Vector) {
		t.Error("unrelated text should score lower")
	}
}

func TestHashProvider_EmptyText(t *testing.T) {
	p := NewHashProvider(8)
	emb, err := p.Embed(context.Background(), "  ...  ")
	if err != nil {
		t.Fatal(err)
	}
	for _, v := range emb.Vector {
		if v != 0 {
			t.Fatal("text without words should yield a zero vector")
		}
	}
}

type countingProvider struct {
	calls int32
	err   error
}

func (c *countingProvider) Embed(ctx context.Context, text string) (*Embedding, error) {
	atomic.AddInt32(&c.calls, 1)
	if c.err != nil {
		return nil, c.err
	}
	return &Embedding{Vector: []float32{1, 0}}, nil
}
func (c *countingProvider) Name() string    { return "counting" }
func (c *countingProvider) Model() string   { return "v1" }
func (c *countingProvider) Dimensions() int { return 2 }
func (c *countingProvider) Close() error    { return nil }

func TestCachedProvider_Hit(t *testing.T) {
	base := &countingProvider{}
	p, err := NewCachedProvider(base, 2)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := p.Embed(ctx, "same"); err != nil {
			t.Fatal(err)
		}
	}
	if base.calls != 1 {
		t.Errorf("expected 1 provider call, got %d", base.calls)
	}
	_, _ = p.Embed(ctx, "b")
	_, _ = p.Embed(ctx, "c") // evicts "same"
	_, _ = p.Embed(ctx, "same")
	if base.calls != 4 {
		t.Errorf("expected eviction to force a new call, got %d calls", base.calls)
	}
	if p.Len() != 2 {
		t.Errorf("Len=%d, want 2", p.Len())
	}
}

func TestCachedProvider_ErrorsNotCached(t *testing.T) {
	base := &countingProvider{err: failure.New(failure.ProviderUnavailable, "embed", errors.New("down"))}
	p, _ := NewCachedProvider(base, 4)
	ctx := context.Background()
	_, err1 := p.Embed(ctx, "x")
	_, err2 := p.Embed(ctx, "x")
	if !failure.Is(err1, failure.ProviderUnavailable) || err2 == nil {
		t.Fatalf("expected errors, got %v / %v", err1, err2)
	}
	if base.calls != 2 {
		t.Errorf("errors must not be cached, calls=%d", base.calls)
	}
}

func TestClassifyOpenAIError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want failure.Kind
	}{
		{"unauthorized", &openai.APIError{HTTPStatusCode: http.StatusUnauthorized}, failure.ProviderUnavailable},
		{"rate limited", &openai.APIError{HTTPStatusCode: http.StatusTooManyRequests}, failure.ProviderUnavailable},
		{"server error", &openai.RequestError{HTTPStatusCode: http.StatusBadGateway, Err: errors.New("bad gateway")}, failure.ProviderUnavailable},
		{"bad request", &openai.APIError{HTTPStatusCode: http.StatusBadRequest}, failure.InvalidInput},
		{"timeout", fmt.Errorf("post: %w", context.DeadlineExceeded), failure.ProviderUnavailable},
		{"network", errors.New("dial tcp: connection refused"), failure.ProviderUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := failure.KindOf(classifyOpenAIError("embed", tt.err)); got != tt.want {
				t.Errorf("kind = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestNewProvider(t *testing.T) {
	p, err := NewProvider(config.EmbeddingConfig{Provider: "hash", Dimensions: 16, CacheSize: 8}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := p.(*CachedProvider); !ok {
		t.Errorf("expected cached provider, got %T", p)
	}
	if p.Dimensions() != 16 || p.Name() != ProviderHash {
		t.Errorf("unexpected provider %s/%d", p.Name(), p.Dimensions())
	}

	t.Setenv("TSUNAGU_EMPTY_KEY", "")
	if _, err := NewProvider(config.EmbeddingConfig{Provider: "openai", CredentialEnv: "TSUNAGU_EMPTY_KEY"}, nil); err == nil {
		t.Error("expected error when credential variable is unset")
	}
	if _, err := NewProvider(config.EmbeddingConfig{Provider: "word2vec"}, nil); err == nil {
		t.Error("expected error for unknown provider")
	}
}
