// Package models defines core data structures for advisory records, filters,
// search queries, and ingestion tasks.
package models

import (
	"fmt"
	"time"
)

// Record represents a single stored advisory record. One record corresponds
// to one row of an ingested CSV/XLSX export: a farmer query and the answer
// given, plus its location and crop metadata.
type Record struct {
	ID         string    `json:"id" db:"id"`
	State      string    `json:"state" db:"state"`
	District   string    `json:"district" db:"district"`
	Block      string    `json:"block" db:"block"`
	Season     string    `json:"season" db:"season"`
	Sector     string    `json:"sector" db:"sector"`
	Category   string    `json:"category" db:"category"`
	Crop       string    `json:"crop" db:"crop"`
	QueryType  string    `json:"query_type" db:"query_type"`
	QueryText  string    `json:"query_text" db:"query_text"`
	AnswerText string    `json:"answer_text" db:"answer_text"`
	CreatedOn  time.Time `json:"created_on" db:"created_on"`
	Year       *int      `json:"year,omitempty" db:"year"`
	Month      *int      `json:"month,omitempty" db:"month"`
	Embedding  []float32 `json:"-" db:"-"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// HasEmbedding reports whether the record carries a generated embedding.
func (r *Record) HasEmbedding() bool {
	return len(r.Embedding) > 0
}

// EmbeddingText builds the canonical text that is sent to the embedding
// backend for this record. The format is fixed; changing it invalidates
// every stored embedding.
func (r *Record) EmbeddingText() string {
	return fmt.Sprintf("Category: %s. QueryType: %s. Query: %s. Answer: %s",
		r.Category, r.QueryType, r.QueryText, r.AnswerText)
}
