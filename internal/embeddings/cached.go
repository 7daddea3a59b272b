package embeddings

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/tesserae/vectorsync/internal/cache"
)

// CachedEmbedder routes embedding calls through the shared cache.
//
// Embeddings are expensive and stable per input, so entries are keyed by
// hash(model, text): a model upgrade naturally invalidates every cached
// vector without an explicit flush.
type CachedEmbedder struct {
	inner Embedder
	cache *cache.Layered
	ttl   time.Duration
}

// NewCachedEmbedder wraps an Embedder with the cache layer.
func NewCachedEmbedder(inner Embedder, layered *cache.Layered, ttl time.Duration) *CachedEmbedder {
	return &CachedEmbedder{inner: inner, cache: layered, ttl: ttl}
}

// EmbedDocuments embeds each text through the cache.
func (c *CachedEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, ErrEmptyInput
	}

	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vector, err := c.embedOne(ctx, text)
		if err != nil {
			return nil, err
		}
		vectors[i] = vector
	}
	return vectors, nil
}

// EmbedQuery embeds a single query through the cache.
func (c *CachedEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, ErrEmptyInput
	}
	return c.embedOne(ctx, text)
}

func (c *CachedEmbedder) embedOne(ctx context.Context, text string) ([]float32, error) {
	var vector []float32
	err := c.cache.GetOrCompute(ctx, c.key(text), c.ttl, &vector, func(ctx context.Context) (interface{}, error) {
		return c.inner.EmbedQuery(ctx, text)
	})
	if err != nil {
		return nil, err
	}
	return vector, nil
}

func (c *CachedEmbedder) key(text string) string {
	sum := sha256.Sum256([]byte(c.inner.Model() + "\x00" + text))
	return "emb:" + hex.EncodeToString(sum[:])
}

// Dimension returns the inner embedder's dimension.
func (c *CachedEmbedder) Dimension() int {
	return c.inner.Dimension()
}

// Model returns the inner embedder's model identifier.
func (c *CachedEmbedder) Model() string {
	return c.inner.Model()
}

// Ensure CachedEmbedder implements Embedder.
var _ Embedder = (*CachedEmbedder)(nil)
