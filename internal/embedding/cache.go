package embedding

import (
	"container/list"
	"context"
	"crypto/sha256"
	"sync"
)

type cacheKey [sha256.Size]byte

type cacheEntry struct {
	key   cacheKey
	value []float32
}

// EmbeddingCache is an LRU of embeddings keyed by a digest of the text, so long chunks
// are not kept alive as map keys. Stored and returned vectors are copies.
type EmbeddingCache struct {
	mu       sync.Mutex
	capacity int
	entries  map[cacheKey]*list.Element
	order    *list.List // front is most recently used
	hits     uint64
	misses   uint64
}

// NewEmbeddingCache creates a cache holding at most capacity vectors (minimum 1).
func NewEmbeddingCache(capacity int) *EmbeddingCache {
	return &EmbeddingCache{
		capacity: max(capacity, 1),
		entries:  make(map[cacheKey]*list.Element),
		order:    list.New(),
	}
}

// Get returns a copy of the cached embedding for text.
func (c *EmbeddingCache) Get(text string) ([]float32, bool) {
	k := sha256.Sum256([]byte(text))
	c.mu.Lock()
	defer c.mu.Unlock()
	elem, ok := c.entries[k]
	if !ok {
		c.misses++
		return nil, false
	}
	c.hits++
	c.order.MoveToFront(elem)
	return append([]float32(nil), elem.Value.(*cacheEntry).value...), true
}

// Set stores a copy of value for text, evicting the least recently used entry when full.
func (c *EmbeddingCache) Set(text string, value []float32) {
	k := sha256.Sum256([]byte(text))
	v := append([]float32(nil), value...)
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.entries[k]; ok {
		elem.Value.(*cacheEntry).value = v
		c.order.MoveToFront(elem)
		return
	}
	c.entries[k] = c.order.PushFront(&cacheEntry{key: k, value: v})
	for c.order.Len() > c.capacity {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*cacheEntry).key)
	}
}

// Len returns the number of cached entries.
func (c *EmbeddingCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Stats returns the hit and miss counts since creation.
func (c *EmbeddingCache) Stats() (hits, misses uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}

// CachedEmbedder serves repeated texts (common for queries) from an LRU cache.
// Failed embeddings are not cached.
type CachedEmbedder struct {
	Embedder
	cache *EmbeddingCache
}

// NewCachedEmbedder wraps inner. A non-positive capacity returns inner unchanged.
func NewCachedEmbedder(inner Embedder, capacity int) Embedder {
	if capacity <= 0 {
		return inner
	}
	return &CachedEmbedder{Embedder: inner, cache: NewEmbeddingCache(capacity)}
}

// Embed returns the cached vector for text, embedding it on a miss.
func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if v, ok := c.cache.Get(text); ok {
		return v, nil
	}
	v, err := c.Embedder.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Set(text, v)
	return v, nil
}
