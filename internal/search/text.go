package search

import (
	"context"
	"fmt"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	blevequery "github.com/blevesearch/bleve/v2/search/query"
	"golang.org/x/text/unicode/norm"

	"github.com/hyperjump/tsunagu/internal/models"
)

// titleBoost weights title matches over body and tag matches.
const titleBoost = 2.0

// textIndex is an in-memory bleve index over note titles, bodies and tags.
type textIndex struct {
	index bleve.Index
}

func newTextIndex(notes []*models.Note) (*textIndex, error) {
	im := bleve.NewIndexMapping()
	docMapping := bleve.NewDocumentMapping()
	textFieldMapping := bleve.NewTextFieldMapping()
	textFieldMapping.Analyzer = standard.Name
	textFieldMapping.Store = false
	docMapping.AddFieldMappingsAt("title", textFieldMapping)
	docMapping.AddFieldMappingsAt("body", textFieldMapping)
	docMapping.AddFieldMappingsAt("tags", textFieldMapping)
	im.DefaultMapping = docMapping

	index, err := bleve.NewMemOnly(im)
	if err != nil {
		return nil, fmt.Errorf("failed to create Bleve search index: %w", err)
	}
	batch := index.NewBatch()
	for _, n := range notes {
		doc := map[string]interface{}{
			"title": norm.NFKC.String(n.Title),
			"body":  norm.NFKC.String(n.Body),
			"tags":  n.Tags,
		}
		if err := batch.Index(n.ID, doc); err != nil {
			_ = index.Close()
			return nil, fmt.Errorf("failed to index %s: %w", n.ID, err)
		}
	}
	if err := index.Batch(batch); err != nil {
		_ = index.Close()
		return nil, fmt.Errorf("failed to index notes: %w", err)
	}
	return &textIndex{index: index}, nil
}

// search matches query against title (boosted), body and tags and returns up to
// limit hits by bleve score.
func (t *textIndex) search(ctx context.Context, query string, limit int) ([]*Hit, error) {
	query = norm.NFKC.String(query)
	fields := []struct {
		name  string
		boost float64
	}{{"title", titleBoost}, {"body", 1}, {"tags", 1}}
	queries := make([]blevequery.Query, 0, len(fields))
	for _, f := range fields {
		q := bleve.NewMatchQuery(query)
		q.SetField(f.name)
		q.SetBoost(f.boost)
		queries = append(queries, q)
	}
	req := bleve.NewSearchRequest(bleve.NewDisjunctionQuery(queries...))
	req.Size = limit
	res, err := t.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("Bleve search failed: %w", err)
	}
	out := make([]*Hit, 0, len(res.Hits))
	for _, hit := range res.Hits {
		out = append(out, &Hit{ID: hit.ID, Score: hit.Score})
	}
	return out, nil
}

func (t *textIndex) close() error {
	return t.index.Close()
}
