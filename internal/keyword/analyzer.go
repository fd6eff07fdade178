package keyword

import (
	"fmt"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/blevesearch/bleve/v2/analysis"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	"golang.org/x/text/unicode/norm"
)

// minTermRunes is the shortest token kept as a term.
const minTermRunes = 2

// Analyzer turns note text into terms using bleve's standard analyzer
// (unicode tokenizer, lowercase, English stop words). Text is NFKC-normalized first
// so full-width and compatibility forms collapse to the same term.
type Analyzer struct {
	analyze func([]byte) analysis.TokenStream
}

// NewAnalyzer builds the standard analyzer from bleve's registry.
func NewAnalyzer() (*Analyzer, error) {
	im := mapping.NewIndexMapping()
	a := im.AnalyzerNamed(standard.Name)
	if a == nil {
		return nil, fmt.Errorf("bleve analyzer %q not registered", standard.Name)
	}
	return &Analyzer{analyze: a.Analyze}, nil
}

// Name identifies the analyzer in feature representations.
func (a *Analyzer) Name() string {
	return standard.Name
}

// Tokens returns the terms of text in order of appearance, duplicates included.
// Tokens shorter than two runes and pure numbers are dropped.
func (a *Analyzer) Tokens(text string) []string {
	if text == "" {
		return nil
	}
	stream := a.analyze(norm.NFKC.Bytes([]byte(text)))
	out := make([]string, 0, len(stream))
	for _, tok := range stream {
		term := string(tok.Term)
		if utf8.RuneCountInString(term) < minTermRunes || isNumber(term) {
			continue
		}
		out = append(out, term)
	}
	return out
}

// Entities returns the distinct proper-noun phrases of text, lowercased and sorted.
// A phrase is a run of capitalized words inside one sentence fragment; stop words end
// a run. A single capitalized word opening a fragment is treated as sentence case
// and dropped.
func (a *Analyzer) Entities(text string) []string {
	seen := make(map[string]struct{})
	for _, fragment := range strings.FieldsFunc(norm.NFKC.String(text), isFragmentBoundary) {
		var run []string
		runStart := false
		flush := func() {
			if len(run) > 1 || (len(run) == 1 && !runStart) {
				seen[strings.Join(run, " ")] = struct{}{}
			}
			run = run[:0]
		}
		for i, word := range strings.Fields(fragment) {
			first, _ := utf8.DecodeRuneInString(word)
			terms := a.Tokens(word)
			if !unicode.IsUpper(first) || len(terms) == 0 {
				flush()
				continue
			}
			if len(run) == 0 {
				runStart = i == 0
			}
			run = append(run, terms...)
		}
		flush()
	}
	out := make([]string, 0, len(seen))
	for e := range seen {
		out = append(out, e)
	}
	sort.Strings(out)
	return out
}

// isFragmentBoundary splits text at line breaks and punctuation other than
// in-word hyphens and apostrophes.
func isFragmentBoundary(r rune) bool {
	if r == '\n' || r == '\r' {
		return true
	}
	return unicode.IsPunct(r) && r != '-' && r != '\'' && r != '’'
}

// isNumber reports whether s is digits with optional decimal or grouping separators.
// Words such as "nan" or "infinity" are not numbers.
func isNumber(s string) bool {
	digits := 0
	for _, r := range s {
		switch {
		case unicode.IsDigit(r):
			digits++
		case r == '.' || r == ',':
		default:
			return false
		}
	}
	return digits > 0
}
