package vector

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
)

// DefaultLSHSeed seeds hyperplane generation when none is given, so bucket
// assignment is reproducible across runs and processes.
const DefaultLSHSeed int64 = 0x7473756e616775

// LSHIndex is an approximate index using random-hyperplane locality-sensitive hashing.
// Each of the tables hashes a vector to a bits-wide signature (one bit per hyperplane side).
// Search collects vectors sharing a bucket with the query in any table, probing buckets at
// Hamming distance 1 when that yields fewer than k candidates, then ranks candidates exactly.
type LSHIndex struct {
	dimensions int
	bits       int
	planes     [][][]float32 // table -> hyperplane -> normal
	buckets    []map[uint64]map[string]struct{}
	vectors    map[string][]float32
	signatures map[string][]uint64
	mu         sync.RWMutex
}

// NewLSHIndex creates an LSH index. seed 0 uses DefaultLSHSeed.
func NewLSHIndex(dimensions, tables, bits int, seed int64) (*LSHIndex, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	if tables <= 0 {
		return nil, fmt.Errorf("lsh tables must be positive")
	}
	if bits <= 0 || bits > 62 {
		return nil, fmt.Errorf("lsh bits must be in [1,62], got %d", bits)
	}
	if seed == 0 {
		seed = DefaultLSHSeed
	}
	rng := rand.New(rand.NewSource(seed))
	planes := make([][][]float32, tables)
	buckets := make([]map[uint64]map[string]struct{}, tables)
	for t := range planes {
		planes[t] = make([][]float32, bits)
		for b := range planes[t] {
			normal := make([]float32, dimensions)
			for d := range normal {
				normal[d] = float32(rng.NormFloat64())
			}
			planes[t][b] = normal
		}
		buckets[t] = make(map[uint64]map[string]struct{})
	}
	return &LSHIndex{
		dimensions: dimensions,
		bits:       bits,
		planes:     planes,
		buckets:    buckets,
		vectors:    make(map[string][]float32),
		signatures: make(map[string][]uint64),
	}, nil
}

// Type returns the index type identifier.
func (l *LSHIndex) Type() string {
	return string(IndexTypeLSH)
}

func (l *LSHIndex) signature(vec []float32) []uint64 {
	sigs := make([]uint64, len(l.planes))
	for t, table := range l.planes {
		var sig uint64
		for b, normal := range table {
			if InnerProduct(vec, normal) >= 0 {
				sig |= 1 << uint(b)
			}
		}
		sigs[t] = sig
	}
	return sigs
}

// Add hashes and stores vectors, replacing existing IDs.
func (l *LSHIndex) Add(ctx context.Context, ids []string, vectors [][]float32) error {
	if len(ids) != len(vectors) {
		return fmt.Errorf("ids and vectors length mismatch")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, id := range ids {
		if len(vectors[i]) != l.dimensions {
			return fmt.Errorf("vector dimension mismatch: got %d, expected %d", len(vectors[i]), l.dimensions)
		}
		l.removeLocked(id)
		vec := make([]float32, l.dimensions)
		copy(vec, vectors[i])
		sigs := l.signature(vec)
		for t, sig := range sigs {
			set, ok := l.buckets[t][sig]
			if !ok {
				set = make(map[string]struct{})
				l.buckets[t][sig] = set
			}
			set[id] = struct{}{}
		}
		l.vectors[id] = vec
		l.signatures[id] = sigs
	}
	return nil
}

// Search returns up to k approximate nearest neighbors of query.
func (l *LSHIndex) Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error) {
	if len(query) != l.dimensions {
		return nil, fmt.Errorf("query dimension mismatch: got %d, expected %d", len(query), l.dimensions)
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	if k <= 0 || len(l.vectors) == 0 {
		return nil, nil
	}
	sigs := l.signature(query)
	candidates := make(map[string]struct{})
	for t, sig := range sigs {
		for id := range l.buckets[t][sig] {
			candidates[id] = struct{}{}
		}
	}
	if len(candidates) < k {
		for t, sig := range sigs {
			for b := 0; b < l.bits; b++ {
				for id := range l.buckets[t][sig^(1<<uint(b))] {
					candidates[id] = struct{}{}
				}
			}
		}
	}
	results := make([]*VectorResult, 0, len(candidates))
	for id := range candidates {
		results = append(results, &VectorResult{ID: id, Score: InnerProduct(query, l.vectors[id])})
	}
	return sortResults(results, k), nil
}

// Remove deletes vectors by ID.
func (l *LSHIndex) Remove(ctx context.Context, ids []string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, id := range ids {
		l.removeLocked(id)
	}
	return nil
}

func (l *LSHIndex) removeLocked(id string) {
	sigs, ok := l.signatures[id]
	if !ok {
		return
	}
	for t, sig := range sigs {
		set := l.buckets[t][sig]
		delete(set, id)
		if len(set) == 0 {
			delete(l.buckets[t], sig)
		}
	}
	delete(l.signatures, id)
	delete(l.vectors, id)
}

// Size returns the number of vectors in the index.
func (l *LSHIndex) Size() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.vectors)
}

// Close is a no-op.
func (l *LSHIndex) Close() error {
	return nil
}
