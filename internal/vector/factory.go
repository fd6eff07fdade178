package vector

import "fmt"

// IndexType represents the type of vector index to use.
type IndexType string

const (
	// IndexTypeMemory uses exact brute-force search. Good for small workspaces.
	IndexTypeMemory IndexType = "memory"
	// IndexTypeLSH uses random-hyperplane locality-sensitive hashing. Approximate.
	IndexTypeLSH IndexType = "lsh"
)

// Options configures index construction. LSH fields are ignored by the memory index.
type Options struct {
	Dimensions int
	LSHTables  int
	LSHBits    int
	Seed       int64
}

// NewVectorIndex creates a vector index of the specified type.
// Supported types: "memory" (default), "lsh".
func NewVectorIndex(indexType string, opts Options) (VectorIndex, error) {
	switch IndexType(indexType) {
	case IndexTypeMemory, "":
		return NewMemoryIndex(opts.Dimensions)
	case IndexTypeLSH:
		return NewLSHIndex(opts.Dimensions, opts.LSHTables, opts.LSHBits, opts.Seed)
	default:
		return nil, fmt.Errorf("unknown index type: %s (supported: memory, lsh)", indexType)
	}
}
