package models

// Candidate generation method tags.
const (
	CandidateIndexNeighbor  = "index-neighbor"
	CandidateKeywordOverlap = "keyword-overlap"
)

// CandidatePair is an unordered pair of note IDs proposed for scoring.
// A is always lexicographically smaller than B; use NewCandidatePair to build one.
type CandidatePair struct {
	A      string `json:"a"`
	B      string `json:"b"`
	Method string `json:"method"`
}

// NewCandidatePair returns the canonical pair for x and y. ok is false for self-pairs.
func NewCandidatePair(x, y, method string) (pair CandidatePair, ok bool) {
	if x == y || x == "" || y == "" {
		return CandidatePair{}, false
	}
	if y < x {
		x, y = y, x
	}
	return CandidatePair{A: x, B: y, Method: method}, true
}

// Key returns the canonical pair key.
func (p CandidatePair) Key() PairKey {
	return PairKey{A: p.A, B: p.B}
}

// Other returns the endpoint opposite id.
func (p CandidatePair) Other(id string) string {
	if p.A == id {
		return p.B
	}
	return p.A
}

// PairKey identifies an unordered pair; A < B.
type PairKey struct {
	A string
	B string
}

// Less orders pair keys lexicographically by A, then B.
func (k PairKey) Less(o PairKey) bool {
	if k.A != o.A {
		return k.A < o.A
	}
	return k.B < o.B
}

// Touches reports whether id is an endpoint of the pair.
func (k PairKey) Touches(id string) bool {
	return k.A == id || k.B == id
}

// ScoredPair is a candidate pair with its computed strength and supporting evidence.
type ScoredPair struct {
	CandidatePair
	Strength float64  `json:"strength"`
	Evidence []string `json:"evidence,omitempty"`
}
