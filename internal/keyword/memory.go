package keyword

import (
	"context"
	"sync"
)

// MemoryTermIndex is an in-process inverted index.
type MemoryTermIndex struct {
	mu       sync.RWMutex
	postings map[string]map[string]struct{}
	docs     map[string][]string
}

// NewMemoryTermIndex creates an empty in-memory term index.
func NewMemoryTermIndex() *MemoryTermIndex {
	return &MemoryTermIndex{
		postings: make(map[string]map[string]struct{}),
		docs:     make(map[string][]string),
	}
}

// Index replaces the terms indexed for id.
func (m *MemoryTermIndex) Index(ctx context.Context, id string, terms []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removeLocked(id)
	terms = uniqueTerms(terms)
	for _, t := range terms {
		set, ok := m.postings[t]
		if !ok {
			set = make(map[string]struct{})
			m.postings[t] = set
		}
		set[id] = struct{}{}
	}
	m.docs[id] = terms
	return nil
}

// Search counts shared terms per note.
func (m *MemoryTermIndex) Search(ctx context.Context, terms []string, limit int) ([]*TermHit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	counts := make(map[string]int)
	for _, t := range uniqueTerms(terms) {
		for id := range m.postings[t] {
			counts[id]++
		}
	}
	return rankHits(counts, limit), nil
}

// Delete removes id from the index.
func (m *MemoryTermIndex) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removeLocked(id)
	return nil
}

func (m *MemoryTermIndex) removeLocked(id string) {
	for _, t := range m.docs[id] {
		set := m.postings[t]
		delete(set, id)
		if len(set) == 0 {
			delete(m.postings, t)
		}
	}
	delete(m.docs, id)
}

// Close is a no-op.
func (m *MemoryTermIndex) Close() error {
	return nil
}
