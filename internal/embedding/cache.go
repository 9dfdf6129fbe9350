package embedding

import (
	"context"
	"fmt"

	"github.com/dgraph-io/ristretto"
)

// Cached memoizes embeddings by exact text.
type Cached struct {
	inner Embedder
	cache *ristretto.Cache
}

// NewCached wraps inner with a cache bounded to maxBytes of vector data.
func NewCached(inner Embedder, maxBytes int64) (*Cached, error) {
	if maxBytes <= 0 {
		maxBytes = 8 << 20
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 10_000,
		MaxCost:     maxBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("create embedding cache: %w", err)
	}
	return &Cached{inner: inner, cache: cache}, nil
}

func (c *Cached) Embed(ctx context.Context, text string) (Vector, error) {
	if v, ok := c.cache.Get(text); ok {
		return v.(Vector), nil
	}
	vec, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Set(text, vec, int64(len(vec)*4))
	c.cache.Wait()
	return vec, nil
}

func (c *Cached) Dims() int { return c.inner.Dims() }

// Close releases the cache's background goroutines.
func (c *Cached) Close() { c.cache.Close() }
