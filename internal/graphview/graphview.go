// Package graphview assembles the read-only graph views served to visualization clients
// from persisted storage.
package graphview

import (
	"context"
	"sort"

	"github.com/hyperjump/tsunagu/internal/models"
	"github.com/hyperjump/tsunagu/internal/storage"
)

// Assembler builds graph views. It never coordinates with analysis runs; each read sees
// the last committed state.
type Assembler struct {
	store storage.GraphStore
}

// New creates an assembler over store.
func New(store storage.GraphStore) *Assembler {
	return &Assembler{store: store}
}

// GetGraph returns all nodes ordered by ID and all edges ordered by (source, target).
func (a *Assembler) GetGraph(ctx context.Context, workspace string) (*models.GraphView, error) {
	g, err := a.store.ReadGraph(ctx, workspace)
	if err != nil {
		return nil, err
	}
	view := &models.GraphView{
		Nodes: make([]models.ViewNode, 0, len(g.Nodes)),
		Edges: make([]models.ViewEdge, 0, len(g.Edges)),
	}
	for _, n := range g.Nodes {
		label := n.Title
		if label == "" {
			label = n.ID
		}
		tags := n.Tags
		if tags == nil {
			tags = []string{}
		}
		view.Nodes = append(view.Nodes, models.ViewNode{ID: n.ID, Label: label, Tags: tags})
	}
	for _, e := range g.Edges {
		view.Edges = append(view.Edges, models.ViewEdge{
			Source:   e.SourceID,
			Target:   e.TargetID,
			Type:     e.Type,
			Value:    e.Strength,
			Evidence: e.Evidence,
		})
	}
	sort.Slice(view.Nodes, func(i, j int) bool { return view.Nodes[i].ID < view.Nodes[j].ID })
	sort.Slice(view.Edges, func(i, j int) bool {
		if view.Edges[i].Source != view.Edges[j].Source {
			return view.Edges[i].Source < view.Edges[j].Source
		}
		return view.Edges[i].Target < view.Edges[j].Target
	})
	return view, nil
}

// GetRelated returns the notes linked to noteID, strongest first with ties broken by
// neighbor ID. topK <= 0 returns all. An unknown note is NotFound. The note, its edges
// and the neighbor titles come from one storage snapshot.
func (a *Assembler) GetRelated(ctx context.Context, workspace, noteID string, topK int) ([]models.RelatedNote, error) {
	nb, err := a.store.ReadNeighborhood(ctx, workspace, noteID)
	if err != nil {
		return nil, err
	}
	related := make([]models.RelatedNote, 0, len(nb.Edges))
	for _, e := range nb.Edges {
		other := e.Other(noteID)
		r := models.RelatedNote{
			NoteID:   other,
			Type:     e.Type,
			Strength: e.Strength,
			Evidence: e.Evidence,
		}
		if n, ok := nb.Neighbors[other]; ok {
			r.Title = n.Title
		}
		related = append(related, r)
	}
	sort.Slice(related, func(i, j int) bool {
		if related[i].Strength != related[j].Strength {
			return related[i].Strength > related[j].Strength
		}
		return related[i].NoteID < related[j].NoteID
	})
	if topK > 0 && len(related) > topK {
		related = related[:topK]
	}
	return related, nil
}
