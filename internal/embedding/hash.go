package embedding

import (
	"context"
	"hash/fnv"
	"strings"
	"unicode"

	"github.com/hyperjump/tsunagu/pkg/utils"
)

// HashProvider is a deterministic offline provider. Each lowercased word is hashed
// into one of Dimensions buckets with a hash-derived sign, so texts sharing words
// have positively correlated vectors. Useful for tests and air-gapped setups.
type HashProvider struct {
	dimensions int
}

// NewHashProvider returns a hash provider producing vectors of the given dimensions.
func NewHashProvider(dimensions int) *HashProvider {
	if dimensions <= 0 {
		dimensions = 384
	}
	return &HashProvider{dimensions: dimensions}
}

// Embed returns the L2-normalized feature-hashed vector of text.
// Text without words yields a zero vector.
func (h *HashProvider) Embed(ctx context.Context, text string) (*Embedding, error) {
	if err := ctx.Err(); err != nil {
		return nil, providerError("hash embed", err)
	}
	vec := make([]float32, h.dimensions)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	for _, w := range words {
		hf := fnv.New64a()
		_, _ = hf.Write([]byte(w))
		sum := hf.Sum64()
		idx := int(sum % uint64(h.dimensions))
		if sum&(1<<63) != 0 {
			vec[idx]--
		} else {
			vec[idx]++
		}
	}
	utils.NormalizeL2(vec)
	return &Embedding{Vector: vec}, nil
}

// Name returns "hash".
func (h *HashProvider) Name() string { return ProviderHash }

// Model names the hashing scheme.
func (h *HashProvider) Model() string { return "fnv-hash" }

// Dimensions returns the embedding dimension.
func (h *HashProvider) Dimensions() int { return h.dimensions }

// Close is a no-op.
func (h *HashProvider) Close() error { return nil }
