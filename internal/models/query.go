package models

import "fmt"

// SearchQuery represents a semantic search request with optional filters.
type SearchQuery struct {
	Query   string `json:"query"`
	TopK    int    `json:"top_k,omitempty"`
	Filters Filter `json:"filters,omitempty"`
}

// Validate ensures the search query has valid fields and sets defaults.
// Returns an error if the query is empty or the regex filter does not
// compile; otherwise normalizes top_k into [1, 100].
func (q *SearchQuery) Validate() error {
	if q.Query == "" {
		return fmt.Errorf("query cannot be empty")
	}
	if q.TopK <= 0 {
		q.TopK = 10
	}
	if q.TopK > 100 {
		q.TopK = 100
	}
	return q.Filters.Compile()
}
