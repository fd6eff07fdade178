package models

// SearchResult is one note matched by a workspace search.
type SearchResult struct {
	NoteID        string  `json:"note_id"`
	Title         string  `json:"title"`
	Score         float64 `json:"score"`
	KeywordScore  float64 `json:"keyword_score"`
	SemanticScore float64 `json:"semantic_score"`
	Rank          int     `json:"rank"`
}
