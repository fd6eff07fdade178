// Package scoring computes relationship strength and evidence for candidate pairs.
package scoring

import (
	"fmt"
	"sort"

	"github.com/hyperjump/tsunagu/internal/failure"
	"github.com/hyperjump/tsunagu/internal/models"
	"github.com/hyperjump/tsunagu/internal/vector"
)

// DefaultEvidenceLimit caps stored evidence terms when no limit is configured.
const DefaultEvidenceLimit = 10

// Scorer rates a candidate pair. a and b are the representations of pair.A and pair.B.
// Scoring is pure: the same inputs give bit-identical results regardless of call order.
type Scorer interface {
	Method() models.Method
	Score(pair models.CandidatePair, a, b *models.FeatureRepresentation) (models.ScoredPair, error)
}

// Options configures scoring.
type Options struct {
	MinTermWeight float64
	EvidenceLimit int
}

// New returns the scorer for method.
func New(method models.Method, opts Options) (Scorer, error) {
	if opts.EvidenceLimit <= 0 {
		opts.EvidenceLimit = DefaultEvidenceLimit
	}
	switch method {
	case models.MethodKeyword:
		return &KeywordScorer{opts: opts}, nil
	case models.MethodEmbedding:
		return &EmbeddingScorer{opts: opts}, nil
	}
	return nil, fmt.Errorf("no scorer for method %q", method)
}

func checkInputs(method models.Method, pair models.CandidatePair, a, b *models.FeatureRepresentation) error {
	op := "score " + pair.A + "/" + pair.B
	if a == nil || b == nil {
		return failure.Newf(failure.InvalidInput, op, "missing feature representation")
	}
	if a.Method != method || b.Method != method {
		return failure.Newf(failure.InvalidInput, op, "method mismatch: %s vs %s", a.Method, b.Method)
	}
	if (a.NoteID != "" && a.NoteID != pair.A) || (b.NoteID != "" && b.NoteID != pair.B) {
		return failure.Newf(failure.InvalidInput, op, "representations do not match pair")
	}
	return nil
}

// KeywordScorer computes weighted Jaccard similarity over significant terms.
type KeywordScorer struct {
	opts Options
}

// Method returns keyword.
func (s *KeywordScorer) Method() models.Method { return models.MethodKeyword }

// Score returns sum(min)/sum(max) over the union of terms at or above the minimum
// weight. Evidence is the shared terms by combined weight desc, then term asc.
func (s *KeywordScorer) Score(pair models.CandidatePair, a, b *models.FeatureRepresentation) (models.ScoredPair, error) {
	if err := checkInputs(models.MethodKeyword, pair, a, b); err != nil {
		return models.ScoredPair{}, err
	}
	wa := s.significant(a.Terms)
	wb := s.significant(b.Terms)
	union := make([]string, 0, len(wa)+len(wb))
	for t := range wa {
		union = append(union, t)
	}
	for t := range wb {
		if _, ok := wa[t]; !ok {
			union = append(union, t)
		}
	}
	sort.Strings(union)

	var minSum, maxSum float64
	shared := make([]string, 0)
	for _, t := range union {
		x, y := wa[t], wb[t]
		if x < y {
			minSum += x
			maxSum += y
		} else {
			minSum += y
			maxSum += x
		}
		if x > 0 && y > 0 {
			shared = append(shared, t)
		}
	}
	strength := 0.0
	if maxSum > 0 {
		strength = clamp(minSum / maxSum)
	}
	sort.SliceStable(shared, func(i, j int) bool {
		ci := wa[shared[i]] + wb[shared[i]]
		cj := wa[shared[j]] + wb[shared[j]]
		if ci != cj {
			return ci > cj
		}
		return shared[i] < shared[j]
	})
	if len(shared) > s.opts.EvidenceLimit {
		shared = shared[:s.opts.EvidenceLimit]
	}
	return models.ScoredPair{CandidatePair: pair, Strength: strength, Evidence: shared}, nil
}

func (s *KeywordScorer) significant(terms map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(terms))
	for t, w := range terms {
		if w > 0 && w >= s.opts.MinTermWeight {
			out[t] = w
		}
	}
	return out
}

// EntityEvidencePrefix marks shared-entity evidence on embedding edges.
const EntityEvidencePrefix = "entity: "

// EmbeddingScorer computes cosine similarity clamped to [0,1].
type EmbeddingScorer struct {
	opts Options
}

// Method returns embedding.
func (s *EmbeddingScorer) Method() models.Method { return models.MethodEmbedding }

// Score returns the clamped cosine of the two vectors. Evidence is the distinct
// provider explanations of both notes, sorted, followed by the entities both notes
// share, sorted and capped at the evidence limit.
func (s *EmbeddingScorer) Score(pair models.CandidatePair, a, b *models.FeatureRepresentation) (models.ScoredPair, error) {
	if err := checkInputs(models.MethodEmbedding, pair, a, b); err != nil {
		return models.ScoredPair{}, err
	}
	if len(a.Vector) != len(b.Vector) {
		return models.ScoredPair{}, failure.Newf(failure.InvalidInput, "score "+pair.A+"/"+pair.B,
			"dimension mismatch: %d vs %d", len(a.Vector), len(b.Vector))
	}
	var evidence []string
	for _, e := range []string{a.Explanation, b.Explanation} {
		if e != "" && (len(evidence) == 0 || evidence[0] != e) {
			evidence = append(evidence, e)
		}
	}
	sort.Strings(evidence)
	for _, ent := range sharedEntities(a.Entities, b.Entities, s.opts.EvidenceLimit) {
		evidence = append(evidence, EntityEvidencePrefix+ent)
	}
	return models.ScoredPair{
		CandidatePair: pair,
		Strength:      clamp(vector.CosineSimilarity(a.Vector, b.Vector)),
		Evidence:      evidence,
	}, nil
}

// sharedEntities intersects two sorted entity lists, keeping at most limit.
func sharedEntities(a, b []string, limit int) []string {
	var out []string
	for i, j := 0, 0; i < len(a) && j < len(b) && len(out) < limit; {
		switch {
		case a[i] < b[j]:
			i++
		case a[i] > b[j]:
			j++
		default:
			out = append(out, a[i])
			i++
			j++
		}
	}
	return out
}

func clamp(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
