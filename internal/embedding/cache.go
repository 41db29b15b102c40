package embedding

import (
	"container/list"
	"strings"
	"sync"
)

// DefaultCacheSize is the query cache capacity used when none is configured.
const DefaultCacheSize = 100

// EmbeddingCache is a bounded insertion-order cache for query embeddings.
// Keys are normalized (trimmed, case-folded) so that trivially equivalent
// query texts share an entry. When full, the oldest inserted key is evicted
// regardless of how recently it was read; reads do not refresh position.
type EmbeddingCache struct {
	capacity int
	cache    map[string]*list.Element
	order    *list.List // front = oldest inserted
	mu       sync.RWMutex
}

type cacheEntry struct {
	key   string
	value []float32
}

// NewEmbeddingCache creates a cache with the given capacity. A capacity of
// zero or less disables caching.
func NewEmbeddingCache(capacity int) *EmbeddingCache {
	return &EmbeddingCache{
		capacity: capacity,
		cache:    make(map[string]*list.Element),
		order:    list.New(),
	}
}

// NormalizeKey canonicalizes a cache key: surrounding whitespace is trimmed
// and the text case-folded.
func NormalizeKey(text string) string {
	return strings.ToLower(strings.TrimSpace(text))
}

// Get returns a copy of the cached embedding for text if present.
func (c *EmbeddingCache) Get(text string) ([]float32, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	elem, ok := c.cache[NormalizeKey(text)]
	if !ok {
		return nil, false
	}
	stored := elem.Value.(*cacheEntry).value
	out := make([]float32, len(stored))
	copy(out, stored)
	return out, true
}

// Set stores the embedding for text, evicting the oldest inserted entry if
// at capacity. Re-setting an existing key updates the value but keeps its
// original insertion position.
func (c *EmbeddingCache) Set(text string, value []float32) {
	if c.capacity <= 0 {
		return
	}
	key := NormalizeKey(text)
	stored := make([]float32, len(value))
	copy(stored, value)

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.cache[key]; ok {
		elem.Value.(*cacheEntry).value = stored
		return
	}

	elem := c.order.PushBack(&cacheEntry{key: key, value: stored})
	c.cache[key] = elem

	if c.order.Len() > c.capacity {
		oldest := c.order.Front()
		if oldest != nil {
			c.order.Remove(oldest)
			delete(c.cache, oldest.Value.(*cacheEntry).key)
		}
	}
}

// Len returns the number of cached entries.
func (c *EmbeddingCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.order.Len()
}
