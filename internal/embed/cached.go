package embed

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"

	synerrors "github.com/casheiro/synapstor-go/internal/errors"
)

// DefaultCacheSize is the number of embeddings the cache retains.
const DefaultCacheSize = 1024

// Cached wraps a provider with an LRU cache keyed by model and text.
// Re-indexing a mostly unchanged tree hits the cache for every untouched
// chunk and only pays the provider for new content.
type Cached struct {
	inner Provider
	cache *lru.Cache[string, []float32]

	hits   atomic.Uint64
	misses atomic.Uint64
}

var _ Provider = (*Cached)(nil)

// NewCached wraps inner with a cache of the given size. Non-positive size
// selects DefaultCacheSize.
func NewCached(inner Provider, size int) (*Cached, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, err := lru.New[string, []float32](size)
	if err != nil {
		return nil, synerrors.InternalError("creating embedding cache", err)
	}
	return &Cached{inner: inner, cache: cache}, nil
}

// cacheKey hashes model and text together so switching models never
// serves stale vectors.
func (c *Cached) cacheKey(text string) string {
	h := sha256.New()
	h.Write([]byte(c.inner.ModelName()))
	h.Write([]byte{0})
	h.Write([]byte(text))
	return hex.EncodeToString(h.Sum(nil))
}

// EmbedBatch serves cached texts from memory and embeds only the misses.
func (c *Cached) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	results := make([][]float32, len(texts))

	var missing []string
	var missingIdx []int
	for i, text := range texts {
		if vec, ok := c.cache.Get(c.cacheKey(text)); ok {
			c.hits.Add(1)
			results[i] = vec
			continue
		}
		c.misses.Add(1)
		missing = append(missing, text)
		missingIdx = append(missingIdx, i)
	}

	if len(missing) == 0 {
		return results, nil
	}

	vecs, err := c.inner.EmbedBatch(ctx, missing)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(missing) {
		return nil, synerrors.New(synerrors.ErrCodeEmbeddingCountMismatch,
			fmt.Sprintf("requested %d embeddings, got %d", len(missing), len(vecs)), nil)
	}

	for i, vec := range vecs {
		c.cache.Add(c.cacheKey(missing[i]), vec)
		results[missingIdx[i]] = vec
	}
	return results, nil
}

// EmbedQuery embeds a single query through the same cache.
func (c *Cached) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	key := c.cacheKey(text)
	if vec, ok := c.cache.Get(key); ok {
		c.hits.Add(1)
		return vec, nil
	}
	c.misses.Add(1)

	vec, err := c.inner.EmbedQuery(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Add(key, vec)
	return vec, nil
}

// Stats returns cumulative cache hits and misses.
func (c *Cached) Stats() (hits, misses uint64) {
	return c.hits.Load(), c.misses.Load()
}

// Inner returns the wrapped provider.
func (c *Cached) Inner() Provider {
	return c.inner
}

// Dimensions returns the inner provider's dimension.
func (c *Cached) Dimensions() int {
	return c.inner.Dimensions()
}

// ModelName returns the inner provider's model identifier.
func (c *Cached) ModelName() string {
	return c.inner.ModelName()
}

// Available reports the inner provider's availability.
func (c *Cached) Available(ctx context.Context) bool {
	return c.inner.Available(ctx)
}

// Close drops the cache and closes the inner provider.
func (c *Cached) Close() error {
	c.cache.Purge()
	return c.inner.Close()
}
