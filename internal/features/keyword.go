package features

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/hyperjump/tsunagu/internal/keyword"
	"github.com/hyperjump/tsunagu/internal/models"
)

// Term weighting schemes.
const (
	WeightingTFIDF     = "tfidf"
	WeightingFrequency = "frequency"
)

// KeywordOptions configures keyword extraction.
type KeywordOptions struct {
	Weighting string
	MaxTerms  int
}

// KeywordExtractor produces weighted-term mappings normalized to a max weight of 1.
type KeywordExtractor struct {
	analyzer *keyword.Analyzer
	opts     KeywordOptions

	mu       sync.RWMutex
	docCount int
	docFreq  map[string]int
}

// NewKeywordExtractor creates a keyword extractor.
func NewKeywordExtractor(analyzer *keyword.Analyzer, opts KeywordOptions) *KeywordExtractor {
	if opts.Weighting == "" {
		opts.Weighting = WeightingTFIDF
	}
	return &KeywordExtractor{analyzer: analyzer, opts: opts, docFreq: map[string]int{}}
}

// Method returns keyword.
func (k *KeywordExtractor) Method() models.Method { return models.MethodKeyword }

// Model returns "<analyzer>/<weighting>".
func (k *KeywordExtractor) Model() string {
	return k.analyzer.Name() + "/" + k.opts.Weighting
}

// Prepare computes document frequencies over notes. Only tfidf uses them.
func (k *KeywordExtractor) Prepare(ctx context.Context, notes []*models.Note) error {
	df := make(map[string]int)
	if k.opts.Weighting == WeightingTFIDF {
		for _, n := range notes {
			if err := ctx.Err(); err != nil {
				return err
			}
			seen := make(map[string]struct{})
			for _, t := range k.analyzer.Tokens(n.Text()) {
				if _, ok := seen[t]; ok {
					continue
				}
				seen[t] = struct{}{}
				df[t]++
			}
		}
	}
	k.mu.Lock()
	k.docCount = len(notes)
	k.docFreq = df
	k.mu.Unlock()
	return nil
}

// Extract returns the note's top terms. A note with no terms yields an empty
// representation rather than an error.
func (k *KeywordExtractor) Extract(ctx context.Context, note *models.Note) (*models.FeatureRepresentation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rep := &models.FeatureRepresentation{
		NoteID: note.ID,
		Method: models.MethodKeyword,
		Model:  k.Model(),
		Terms:  map[string]float64{},
	}
	counts := make(map[string]int)
	for _, t := range k.analyzer.Tokens(note.Text()) {
		counts[t]++
	}
	if len(counts) == 0 {
		return rep, nil
	}

	weights := make(map[string]float64, len(counts))
	k.mu.RLock()
	for t, c := range counts {
		w := float64(c)
		if k.opts.Weighting == WeightingTFIDF {
			idf := math.Log(float64(1+k.docCount)/float64(1+k.docFreq[t])) + 1
			w *= idf
		}
		weights[t] = w
	}
	k.mu.RUnlock()

	terms := make([]string, 0, len(weights))
	for t := range weights {
		terms = append(terms, t)
	}
	sort.Slice(terms, func(i, j int) bool {
		if weights[terms[i]] != weights[terms[j]] {
			return weights[terms[i]] > weights[terms[j]]
		}
		return terms[i] < terms[j]
	})
	if k.opts.MaxTerms > 0 && len(terms) > k.opts.MaxTerms {
		terms = terms[:k.opts.MaxTerms]
	}
	maxWeight := weights[terms[0]]
	for _, t := range terms {
		rep.Terms[t] = weights[t] / maxWeight
	}
	return rep, nil
}
