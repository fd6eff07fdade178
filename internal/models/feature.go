package models

// Method identifies a feature extraction family.
type Method string

const (
	// MethodKeyword produces sparse weighted-term mappings.
	MethodKeyword Method = "keyword"
	// MethodEmbedding produces dense vectors from an embedding provider.
	MethodEmbedding Method = "embedding"
)

// Valid reports whether m is a known extraction method.
func (m Method) Valid() bool {
	return m == MethodKeyword || m == MethodEmbedding
}

// FeatureRepresentation is the comparable encoding of one note for one analysis run.
// Exactly one of Terms (keyword) or Vector (embedding) is populated.
type FeatureRepresentation struct {
	NoteID      string             `json:"note_id"`
	Method      Method             `json:"method"`
	Model       string             `json:"model"`
	Terms       map[string]float64 `json:"terms,omitempty"`
	Vector      []float32          `json:"-"`
	Explanation string             `json:"explanation,omitempty"`
	// Entities are the note's lowercased named phrases and tags, sorted. Embedding
	// mode only; they add evidence but never change strength.
	Entities    []string           `json:"entities,omitempty"`
}

// Empty reports whether the representation carries no usable features.
func (f *FeatureRepresentation) Empty() bool {
	if f == nil {
		return true
	}
	switch f.Method {
	case MethodKeyword:
		return len(f.Terms) == 0
	case MethodEmbedding:
		for _, v := range f.Vector {
			if v != 0 {
				return false
			}
		}
		return true
	}
	return true
}
