package models

import "time"

// Relationship types written by the graph maintainer.
const (
	RelationSemanticSimilarity = "semantic_similarity"
	RelationSharedTerms        = "shared_terms"
)

// RelationshipTypeFor returns the edge type produced by an extraction method.
func RelationshipTypeFor(m Method) string {
	if m == MethodKeyword {
		return RelationSharedTerms
	}
	return RelationSemanticSimilarity
}

// RelationshipEdge is the persisted link between two notes.
// SourceID < TargetID; the pair is unique per workspace.
type RelationshipEdge struct {
	Workspace        string    `json:"workspace"`
	SourceID         string    `json:"source"`
	TargetID         string    `json:"target"`
	Type             string    `json:"type"`
	Strength         float64   `json:"strength"`
	Evidence         []string  `json:"evidence,omitempty"`
	SelectedBySource bool      `json:"selected_by_source"`
	SelectedByTarget bool      `json:"selected_by_target"`
	ComputedAt       time.Time `json:"computed_at"`
	RunID            string    `json:"run_id"`
}

// Key returns the canonical pair key of the edge.
func (e *RelationshipEdge) Key() PairKey {
	return PairKey{A: e.SourceID, B: e.TargetID}
}

// Other returns the endpoint opposite id.
func (e *RelationshipEdge) Other(id string) string {
	if e.SourceID == id {
		return e.TargetID
	}
	return e.SourceID
}

// SelectedBy reports whether the endpoint id ranked this edge in its own top-K.
func (e *RelationshipEdge) SelectedBy(id string) bool {
	switch id {
	case e.SourceID:
		return e.SelectedBySource
	case e.TargetID:
		return e.SelectedByTarget
	}
	return false
}

// GraphNode is the persisted snapshot of a note used by the graph view.
type GraphNode struct {
	Workspace  string    `json:"workspace"`
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Tags       []string  `json:"tags"`
	ModifiedAt time.Time `json:"modified_at"`
}

// NodeFromNote builds the graph node snapshot for a note.
func NodeFromNote(workspace string, n *Note) *GraphNode {
	tags := make([]string, len(n.Tags))
	copy(tags, n.Tags)
	return &GraphNode{
		Workspace:  workspace,
		ID:         n.ID,
		Title:      n.Title,
		Tags:       tags,
		ModifiedAt: n.ModifiedAt,
	}
}
