package embed

import (
	"context"

	"github.com/dgraph-io/ristretto"
)

// CachedEmbedder wraps another Embedder with an in-process ristretto cache.
// Embedding is deterministic for fixed model and text, so identical inputs
// (repeated questions, re-ingested document chunks) can skip the remote call.
//
// Cache cost is the vector byte size; misses and remote errors pass straight
// through to the inner embedder.
type CachedEmbedder struct {
	inner Embedder
	cache *ristretto.Cache
}

// NewCached wraps inner with a cache holding roughly maxVectors embeddings.
// maxVectors ≤ 0 selects a default of 4096.
func NewCached(inner Embedder, maxVectors int64) (*CachedEmbedder, error) {
	if maxVectors <= 0 {
		maxVectors = 4096
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: maxVectors * 10,
		MaxCost:     maxVectors * int64(Dimension) * 4,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &CachedEmbedder{inner: inner, cache: cache}, nil
}

// Embed returns the cached vector for text when present, otherwise embeds
// through the inner embedder and caches the result. Nil vectors (noop inner)
// are never cached.
func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if v, ok := c.cache.Get(text); ok {
		return v.([]float32), nil
	}

	vec, err := c.inner.Embed(ctx, text)
	if err != nil || vec == nil {
		return vec, err
	}

	c.cache.Set(text, vec, int64(len(vec))*4)
	return vec, nil
}

// EmbedBatch serves what it can from cache and forwards only the misses to
// the inner embedder in a single call, then reassembles results in input
// order.
func (c *CachedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vecs := make([][]float32, len(texts))
	var missTexts []string
	var missIdx []int

	for i, text := range texts {
		if v, ok := c.cache.Get(text); ok {
			vecs[i] = v.([]float32)
			continue
		}
		missTexts = append(missTexts, text)
		missIdx = append(missIdx, i)
	}

	if len(missTexts) == 0 {
		return vecs, nil
	}

	fresh, err := c.inner.EmbedBatch(ctx, missTexts)
	if err != nil {
		return nil, err
	}

	for j, vec := range fresh {
		vecs[missIdx[j]] = vec
		if vec != nil {
			c.cache.Set(missTexts[j], vec, int64(len(vec))*4)
		}
	}
	return vecs, nil
}

// Close releases the cache's internal goroutines.
func (c *CachedEmbedder) Close() {
	c.cache.Close()
}

// Compile-time interface satisfaction check.
var _ Embedder = (*CachedEmbedder)(nil)
