// Package embedding provides text embedding backends and query caching.
package embedding

import (
	"context"
	"errors"
)

// ErrBackendUnavailable marks failures of the embedding backend itself
// (model not loaded, remote endpoint down, inference error). Callers match
// it with errors.Is to distinguish backend trouble from bad input.
var ErrBackendUnavailable = errors.New("embedding backend unavailable")

// Embedder produces vector embeddings for text.
type Embedder interface {
	// EnsureReady initializes the backend if needed. Idempotent; safe to
	// call before every run.
	EnsureReady(ctx context.Context) error
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Close() error
}
