// Package embedding provides embedding providers for embedding-mode feature extraction.
package embedding

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/hyperjump/tsunagu/internal/config"
	"go.uber.org/zap"
)

// Provider names accepted by NewProvider.
const (
	ProviderOpenAI = "openai"
	ProviderONNX   = "onnx"
	ProviderHash   = "hash"
)

// Provider produces a dense vector for a text. Implementations must be safe for
// concurrent use and must return *failure.Error values of kind ProviderUnavailable
// or InvalidInput for per-text failures.
type Provider interface {
	Embed(ctx context.Context, text string) (*Embedding, error)
	// Name returns the provider identity (e.g. "openai").
	Name() string
	Model() string
	Dimensions() int
	Close() error
}

// Embedding is one provider result.
type Embedding struct {
	Vector []float32
	// Explanation is optional provider-supplied text describing the embedding.
	Explanation string
}

// NewProvider builds the configured provider, wrapped in an LRU cache when
// cfg.CacheSize > 0. The credential is read from the environment variable named
// by cfg.CredentialEnv and is never logged.
func NewProvider(cfg config.EmbeddingConfig, logger *zap.Logger) (Provider, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var (
		p   Provider
		err error
	)
	switch cfg.Provider {
	case ProviderOpenAI:
		apiKey := ""
		if cfg.CredentialEnv != "" {
			apiKey = strings.TrimSpace(os.Getenv(cfg.CredentialEnv))
		}
		if apiKey == "" && cfg.BaseURL == "" {
			return nil, fmt.Errorf("openai provider: environment variable %s is not set", cfg.CredentialEnv)
		}
		p = NewOpenAIProvider(apiKey, cfg.BaseURL, cfg.Model, cfg.Dimensions)
	case ProviderONNX:
		p, err = NewONNXProvider(cfg.ModelPath, cfg.Model, cfg.Dimensions, cfg.MaxTokens)
		if err != nil {
			return nil, err
		}
	case ProviderHash, "":
		p = NewHashProvider(cfg.Dimensions)
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s", cfg.Provider)
	}
	logger.Info("embedding provider ready",
		zap.String("provider", p.Name()),
		zap.String("model", p.Model()),
		zap.Int("dimensions", p.Dimensions()),
		zap.Int("cache_size", cfg.CacheSize))
	if cfg.CacheSize > 0 {
		return NewCachedProvider(p, cfg.CacheSize)
	}
	return p, nil
}
