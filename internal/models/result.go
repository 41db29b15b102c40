package models

// Search modes reported in responses.
const (
	SearchModeIndex = "index"
	SearchModeExact = "exact"
)

// SearchResult represents a single search hit with its similarity score.
type SearchResult struct {
	Record *Record `json:"record"`
	Score  float64 `json:"score"`
	Rank   int     `json:"rank"`
}

// SearchResponse is the response for a search request. Mode records which
// path produced the results: "index" for the vector-index path, "exact" for
// the full cosine scan.
type SearchResponse struct {
	Results   []*SearchResult `json:"results"`
	Count     int             `json:"count"`
	Mode      string          `json:"mode"`
	QueryTime int64           `json:"query_time_ms"`
	Query     string          `json:"query"`
}
