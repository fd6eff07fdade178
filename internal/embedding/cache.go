package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// CachedProvider wraps a Provider with an LRU cache keyed by provider, model,
// and a hash of the text. Only successful results are cached.
type CachedProvider struct {
	Provider
	cache *lru.Cache[string, *Embedding]
}

// NewCachedProvider wraps p with a cache holding up to size embeddings.
func NewCachedProvider(p Provider, size int) (*CachedProvider, error) {
	cache, err := lru.New[string, *Embedding](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding cache: %w", err)
	}
	return &CachedProvider{Provider: p, cache: cache}, nil
}

// Embed returns the cached embedding for text or computes and stores it.
func (c *CachedProvider) Embed(ctx context.Context, text string) (*Embedding, error) {
	key := c.key(text)
	if emb, ok := c.cache.Get(key); ok {
		return emb, nil
	}
	emb, err := c.Provider.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Add(key, emb)
	return emb, nil
}

// Len returns the number of cached embeddings.
func (c *CachedProvider) Len() int {
	return c.cache.Len()
}

func (c *CachedProvider) key(text string) string {
	sum := sha256.Sum256([]byte(text))
	return c.Provider.Name() + "|" + c.Provider.Model() + "|" + hex.EncodeToString(sum[:])
}
