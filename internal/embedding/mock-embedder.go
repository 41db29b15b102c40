package embedding

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"

	"github.com/agridesk/sahayak/pkg/utils"
)

// MockEmbedder is a deterministic embedder for tests. It returns a fixed-dimension
// vector derived from the text hash so that the same text always gets the same embedding.
// Texts containing one of FailSubstrings always fail, which lets tests
// exercise retry and failure accounting.
type MockEmbedder struct {
	dimensions int

	// FailSubstrings makes Embed fail for any text containing one of the
	// given substrings. Set before use.
	FailSubstrings []string

	// ReadyErr makes EnsureReady fail, simulating a backend that is down.
	// Set before use.
	ReadyErr error

	mu    sync.Mutex
	calls int
}

// NewMockEmbedder returns an embedder that produces deterministic embeddings of the given dimensions.
func NewMockEmbedder(dimensions int) *MockEmbedder {
	if dimensions <= 0 {
		dimensions = 384
	}
	return &MockEmbedder{dimensions: dimensions}
}

// EnsureReady returns ReadyErr when set, otherwise nil.
func (e *MockEmbedder) EnsureReady(ctx context.Context) error {
	return e.ReadyErr
}

// Embed returns a deterministic embedding based on the text hash.
func (e *MockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()

	for _, sub := range e.FailSubstrings {
		if sub != "" && strings.Contains(text, sub) {
			return nil, fmt.Errorf("mock failure for %q: %w", sub, ErrBackendUnavailable)
		}
	}

	h := HashString(text)
	emb := make([]float32, e.dimensions)
	for i := 0; i < e.dimensions; i++ {
		emb[i] = float32(math.Sin(float64(h*(i+1)))*0.1 + 0.01)
	}
	utils.NormalizeL2(emb)
	return emb, nil
}

// EmbedBatch calls Embed for each text.
func (e *MockEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		emb, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		embeddings[i] = emb
	}
	return embeddings, nil
}

// Calls returns how many times Embed was invoked.
func (e *MockEmbedder) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

// Dimensions returns the embedding dimension.
func (e *MockEmbedder) Dimensions() int {
	return e.dimensions
}

// Close is a no-op for MockEmbedder.
func (e *MockEmbedder) Close() error {
	return nil
}
