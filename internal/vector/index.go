// Package vector provides the in-memory vector index, cosine similarity,
// and the float32 BLOB codec shared with the store.
package vector

import (
	"context"
	"errors"
)

// ErrDimensionMismatch is returned when two vectors (or a vector and the
// index) disagree on dimensionality.
var ErrDimensionMismatch = errors.New("vector dimension mismatch")

// Index defines vector storage and similarity search.
type Index interface {
	Add(ctx context.Context, ids []string, vectors [][]float32) error
	Search(ctx context.Context, query []float32, k int) ([]*Result, error)
	Remove(ctx context.Context, ids []string) error
	Clear(ctx context.Context) error
	Save(path string) error
	Load(path string) error
	Size() int
	Dimensions() int
	Close() error
}

// Result is a single vector search hit.
type Result struct {
	ID    string
	Score float64 // cosine similarity
}
