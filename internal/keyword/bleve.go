package keyword

import (
	"context"
	"fmt"

	"github.com/blevesearch/bleve/v2"
	kwanalyzer "github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
)

const termsField = "terms"

// BleveTermIndex implements TermIndex on an in-memory bleve index with a single
// keyword-analyzed field, so each term is matched exactly as extracted.
type BleveTermIndex struct {
	index bleve.Index
}

// NewBleveTermIndex creates an empty in-memory bleve term index.
func NewBleveTermIndex() (*BleveTermIndex, error) {
	im := bleve.NewIndexMapping()
	docMapping := bleve.NewDocumentMapping()
	termsMapping := bleve.NewTextFieldMapping()
	termsMapping.Analyzer = kwanalyzer.Name
	termsMapping.Store = false
	termsMapping.IncludeTermVectors = false
	docMapping.AddFieldMappingsAt(termsField, termsMapping)
	im.DefaultMapping = docMapping

	index, err := bleve.NewMemOnly(im)
	if err != nil {
		return nil, fmt.Errorf("failed to create Bleve term index: %w", err)
	}
	return &BleveTermIndex{index: index}, nil
}

// Index indexes the terms of id, replacing earlier terms.
func (b *BleveTermIndex) Index(ctx context.Context, id string, terms []string) error {
	doc := map[string]interface{}{termsField: uniqueTerms(terms)}
	if err := b.index.Index(id, doc); err != nil {
		return fmt.Errorf("failed to index %s: %w", id, err)
	}
	return nil
}

// Search runs one term query per term and counts matching terms per document.
func (b *BleveTermIndex) Search(ctx context.Context, terms []string, limit int) ([]*TermHit, error) {
	total, err := b.index.DocCount()
	if err != nil {
		return nil, fmt.Errorf("failed to count documents: %w", err)
	}
	counts := make(map[string]int)
	if total == 0 {
		return nil, nil
	}
	for _, term := range uniqueTerms(terms) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		q := bleve.NewTermQuery(term)
		q.SetField(termsField)
		req := bleve.NewSearchRequest(q)
		req.Size = int(total)
		res, err := b.index.SearchInContext(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("Bleve term search failed: %w", err)
		}
		for _, hit := range res.Hits {
			counts[hit.ID]++
		}
	}
	return rankHits(counts, limit), nil
}

// Delete removes a document from the index.
func (b *BleveTermIndex) Delete(ctx context.Context, id string) error {
	return b.index.Delete(id)
}

// Close closes the Bleve index.
func (b *BleveTermIndex) Close() error {
	return b.index.Close()
}
