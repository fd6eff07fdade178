// Package keyword provides text analysis and inverted term indexes for keyword-mode
// relationship extraction.
package keyword

import (
	"context"
	"fmt"
	"sort"
)

// Index implementation names accepted by NewTermIndex.
const (
	IndexMemory = "memory"
	IndexBleve  = "bleve"
)

// TermIndex maps terms to the notes that contain them.
type TermIndex interface {
	// Index replaces the indexed terms of id.
	Index(ctx context.Context, id string, terms []string) error
	// Search returns notes sharing at least one of terms, ordered by shared-term
	// count desc then ID asc. limit <= 0 returns all hits.
	Search(ctx context.Context, terms []string, limit int) ([]*TermHit, error)
	Delete(ctx context.Context, id string) error
	Close() error
}

// TermHit is a note found by a term search.
type TermHit struct {
	ID     string
	Shared int
}

// NewTermIndex creates a term index of the given kind.
func NewTermIndex(kind string) (TermIndex, error) {
	switch kind {
	case IndexMemory, "":
		return NewMemoryTermIndex(), nil
	case IndexBleve:
		return NewBleveTermIndex()
	default:
		return nil, fmt.Errorf("unknown term index: %s", kind)
	}
}

// rankHits converts shared counts to hits sorted by count desc, ID asc, truncated to limit.
func rankHits(counts map[string]int, limit int) []*TermHit {
	hits := make([]*TermHit, 0, len(counts))
	for id, n := range counts {
		hits = append(hits, &TermHit{ID: id, Shared: n})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Shared != hits[j].Shared {
			return hits[i].Shared > hits[j].Shared
		}
		return hits[i].ID < hits[j].ID
	})
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits
}

// uniqueTerms drops duplicate and empty terms, preserving order.
func uniqueTerms(terms []string) []string {
	seen := make(map[string]struct{}, len(terms))
	out := make([]string, 0, len(terms))
	for _, t := range terms {
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
