// Package notes provides the note repositories the analysis engine reads from.
package notes

import (
	"context"
	"sort"
	"sync"

	"github.com/hyperjump/tsunagu/internal/failure"
	"github.com/hyperjump/tsunagu/internal/models"
)

// Repository is a read-only snapshot source of notes.
type Repository interface {
	// List returns every note, ordered by ID.
	List(ctx context.Context) ([]*models.Note, error)
	// Get returns one note or a NotFound error.
	Get(ctx context.Context, id string) (*models.Note, error)
}

// MemoryRepository keeps notes in memory.
type MemoryRepository struct {
	mu    sync.RWMutex
	notes map[string]*models.Note
}

// NewMemoryRepository creates a repository holding notes.
func NewMemoryRepository(notes ...*models.Note) *MemoryRepository {
	r := &MemoryRepository{notes: make(map[string]*models.Note, len(notes))}
	for _, n := range notes {
		r.notes[n.ID] = n
	}
	return r
}

// Put inserts or replaces a note.
func (r *MemoryRepository) Put(n *models.Note) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notes[n.ID] = n
}

// Delete removes a note.
func (r *MemoryRepository) Delete(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.notes, id)
}

// List returns copies of all notes ordered by ID.
func (r *MemoryRepository) List(ctx context.Context) ([]*models.Note, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*models.Note, 0, len(r.notes))
	for _, n := range r.notes {
		out = append(out, clone(n))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Get returns a copy of the note with the given ID.
func (r *MemoryRepository) Get(ctx context.Context, id string) (*models.Note, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	n, ok := r.notes[id]
	if !ok {
		return nil, failure.Newf(failure.NotFound, "get note", "note %s not found", id)
	}
	return clone(n), nil
}

func clone(n *models.Note) *models.Note {
	c := *n
	c.Tags = append([]string(nil), n.Tags...)
	return &c
}
