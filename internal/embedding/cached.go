package embedding

import "context"

// Cached wraps an Embedder with the bounded query cache so repeated search
// queries skip the backend. All other calls pass through.
type Cached struct {
	inner Embedder
	cache *EmbeddingCache
}

// NewCached wraps inner with a cache of the given capacity. Capacity zero
// or less disables caching but keeps the wrapper usable.
func NewCached(inner Embedder, capacity int) *Cached {
	return &Cached{inner: inner, cache: NewEmbeddingCache(capacity)}
}

// EnsureReady passes through to the backend.
func (c *Cached) EnsureReady(ctx context.Context) error {
	return c.inner.EnsureReady(ctx)
}

// Embed returns the cached vector for text when present, otherwise embeds
// through the backend and caches the result.
func (c *Cached) Embed(ctx context.Context, text string) ([]float32, error) {
	if vec, ok := c.cache.Get(text); ok {
		return vec, nil
	}
	vec, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Set(text, vec)
	return vec, nil
}

// EmbedBatch embeds each text, reusing cached entries where possible.
func (c *Cached) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := c.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

// Dimensions returns the backend dimensionality.
func (c *Cached) Dimensions() int {
	return c.inner.Dimensions()
}

// Close closes the backend.
func (c *Cached) Close() error {
	return c.inner.Close()
}
