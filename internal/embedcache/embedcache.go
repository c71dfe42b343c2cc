// Package embedcache caches embedding vectors keyed by content fingerprint so
// that retried ingestions and repeated queries never pay for a remote
// embedding call twice.
package embedcache

import (
	"fmt"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
)

// ErrDimensionMismatch reports an embedding whose length does not match the
// configured dimension. A wrong-length vector is a data-corruption signal and
// is never stored.
var ErrDimensionMismatch = fmt.Errorf("embedding dimension mismatch")

// Stats is a point-in-time snapshot of cache effectiveness.
type Stats struct {
	Hits     int64 `json:"hits"`
	Misses   int64 `json:"misses"`
	Size     int   `json:"size"`
	Capacity int   `json:"capacity"`
}

// Cache is a bounded LRU mapping content fingerprints to embedding vectors.
// All operations are safe for concurrent use; lookups and inserts both mark
// the entry most-recently-used. Vectors are copied on the way in and out so
// callers can never alias cache-owned memory.
type Cache struct {
	lru      *lru.Cache[string, []float32]
	dim      int
	capacity int

	hits   atomic.Int64
	misses atomic.Int64
}

// DefaultCapacity is used when the configured capacity is not positive.
const DefaultCapacity = 1000

// New creates a Cache holding at most capacity entries of dim-length vectors.
func New(capacity, dim int) (*Cache, error) {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if dim <= 0 {
		return nil, fmt.Errorf("embedding dimension must be positive, got %d", dim)
	}
	inner, err := lru.New[string, []float32](capacity)
	if err != nil {
		return nil, fmt.Errorf("creating LRU: %w", err)
	}
	return &Cache{lru: inner, dim: dim, capacity: capacity}, nil
}

// Dim returns the configured embedding dimension.
func (c *Cache) Dim() int { return c.dim }

// Get returns a copy of the cached vector for key, if present.
func (c *Cache) Get(key string) ([]float32, bool) {
	vec, ok := c.lru.Get(key)
	if !ok {
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	out := make([]float32, len(vec))
	copy(out, vec)
	return out, true
}

// Put stores a copy of vec under key, evicting the least-recently-used entry
// if the cache is full. Vectors of the wrong dimension are rejected.
func (c *Cache) Put(key string, vec []float32) error {
	if len(vec) != c.dim {
		return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(vec), c.dim)
	}
	stored := make([]float32, len(vec))
	copy(stored, vec)
	c.lru.Add(key, stored)
	return nil
}

// Stats returns current hit/miss counters and occupancy.
func (c *Cache) Stats() Stats {
	return Stats{
		Hits:     c.hits.Load(),
		Misses:   c.misses.Load(),
		Size:     c.lru.Len(),
		Capacity: c.capacity,
	}
}

// Clear removes all entries and resets the counters.
func (c *Cache) Clear() {
	c.lru.Purge()
	c.hits.Store(0)
	c.misses.Store(0)
}
