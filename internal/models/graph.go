package models

// GraphView is the node/edge view consumed by visualization clients.
type GraphView struct {
	Nodes []ViewNode `json:"nodes"`
	Edges []ViewEdge `json:"edges"`
}

// ViewNode is a note in the graph view.
type ViewNode struct {
	ID    string   `json:"id"`
	Label string   `json:"label"`
	Tags  []string `json:"tags"`
}

// ViewEdge is a relationship in the graph view.
type ViewEdge struct {
	Source   string   `json:"source"`
	Target   string   `json:"target"`
	Type     string   `json:"type"`
	Value    float64  `json:"value"`
	Evidence []string `json:"evidence,omitempty"`
}

// RelatedNote is one entry of a related-notes query, seen from the queried note.
type RelatedNote struct {
	NoteID   string   `json:"note_id"`
	Title    string   `json:"title,omitempty"`
	Type     string   `json:"type"`
	Strength float64  `json:"strength"`
	Evidence []string `json:"evidence,omitempty"`
}
