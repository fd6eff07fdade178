package models

import "testing"

func TestNewCandidatePair(t *testing.T) {
	tests := []struct {
		name   string
		x, y   string
		wantA  string
		wantB  string
		wantOK bool
	}{
		{"already ordered", "a", "b", "a", "b", true},
		{"reversed", "b", "a", "a", "b", true},
		{"self pair", "a", "a", "", "", false},
		{"empty id", "", "a", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, ok := NewCandidatePair(tt.x, tt.y, CandidateIndexNeighbor)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && (p.A != tt.wantA || p.B != tt.wantB) {
				t.Errorf("got (%s,%s), want (%s,%s)", p.A, p.B, tt.wantA, tt.wantB)
			}
		})
	}
}

func TestPairKey_Less(t *testing.T) {
	ab := PairKey{A: "a", B: "b"}
	ac := PairKey{A: "a", B: "c"}
	bc := PairKey{A: "b", B: "c"}
	if !ab.Less(ac) || !ac.Less(bc) || bc.Less(ab) {
		t.Error("unexpected ordering")
	}
	if ab.Less(ab) {
		t.Error("key must not be less than itself")
	}
}

func TestNote_Text(t *testing.T) {
	n := &Note{Title: "Title", Body: "body text", Tags: []string{"go", ""}}
	if got := n.Text(); got != "Title\nbody text\ngo" {
		t.Errorf("Text() = %q", got)
	}
	empty := &Note{}
	if empty.Text() != "" {
		t.Error("empty note should have empty text")
	}
}

func TestFeatureRepresentation_Empty(t *testing.T) {
	var nilRep *FeatureRepresentation
	if !nilRep.Empty() {
		t.Error("nil representation is empty")
	}
	if !(&FeatureRepresentation{Method: MethodEmbedding, Vector: []float32{0, 0}}).Empty() {
		t.Error("zero vector is empty")
	}
	if (&FeatureRepresentation{Method: MethodKeyword, Terms: map[string]float64{"go": 1}}).Empty() {
		t.Error("non-empty terms reported empty")
	}
}
