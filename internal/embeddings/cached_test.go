package embeddings

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tesserae/vectorsync/internal/cache"
)

// countingEmbedder records how many times the backing model is called.
type countingEmbedder struct {
	calls int
	fail  error
}

func (c *countingEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vector, err := c.EmbedQuery(ctx, text)
		if err != nil {
			return nil, err
		}
		vectors[i] = vector
	}
	return vectors, nil
}

func (c *countingEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	c.calls++
	if c.fail != nil {
		return nil, c.fail
	}
	return []float32{float32(len(text)), 1}, nil
}

func (c *countingEmbedder) Dimension() int { return 2 }
func (c *countingEmbedder) Model() string  { return "counting-model" }

func TestCachedEmbedder_EmbedQuery(t *testing.T) {
	ctx := context.Background()

	t.Run("repeat queries hit the cache", func(t *testing.T) {
		inner := &countingEmbedder{}
		cached := NewCachedEmbedder(inner, cache.NewLayered(nil, nil), time.Minute)

		first, err := cached.EmbedQuery(ctx, "hello")
		require.NoError(t, err)
		second, err := cached.EmbedQuery(ctx, "hello")
		require.NoError(t, err)

		assert.Equal(t, first, second)
		assert.Equal(t, 1, inner.calls)
	})

	t.Run("distinct texts compute separately", func(t *testing.T) {
		inner := &countingEmbedder{}
		cached := NewCachedEmbedder(inner, cache.NewLayered(nil, nil), time.Minute)

		_, err := cached.EmbedQuery(ctx, "alpha")
		require.NoError(t, err)
		_, err = cached.EmbedQuery(ctx, "beta")
		require.NoError(t, err)
		assert.Equal(t, 2, inner.calls)
	})

	t.Run("rejects empty input without caching", func(t *testing.T) {
		inner := &countingEmbedder{}
		cached := NewCachedEmbedder(inner, cache.NewLayered(nil, nil), time.Minute)

		_, err := cached.EmbedQuery(ctx, "")
		assert.ErrorIs(t, err, ErrEmptyInput)
		assert.Equal(t, 0, inner.calls)
	})

	t.Run("propagates inner errors", func(t *testing.T) {
		boom := errors.New("model offline")
		inner := &countingEmbedder{fail: boom}
		cached := NewCachedEmbedder(inner, cache.NewLayered(nil, nil), time.Minute)

		_, err := cached.EmbedQuery(ctx, "hello")
		assert.ErrorIs(t, err, boom)
	})
}

func TestCachedEmbedder_EmbedDocuments(t *testing.T) {
	ctx := context.Background()

	t.Run("caches each document individually", func(t *testing.T) {
		inner := &countingEmbedder{}
		cached := NewCachedEmbedder(inner, cache.NewLayered(nil, nil), time.Minute)

		vectors, err := cached.EmbedDocuments(ctx, []string{"a", "bb", "a"})
		require.NoError(t, err)
		require.Len(t, vectors, 3)
		assert.Equal(t, vectors[0], vectors[2])
		assert.Equal(t, 2, inner.calls)
	})

	t.Run("rejects empty batch", func(t *testing.T) {
		inner := &countingEmbedder{}
		cached := NewCachedEmbedder(inner, cache.NewLayered(nil, nil), time.Minute)

		_, err := cached.EmbedDocuments(ctx, nil)
		assert.ErrorIs(t, err, ErrEmptyInput)
	})
}

func TestCachedEmbedder_KeyIncludesModel(t *testing.T) {
	a := NewCachedEmbedder(&countingEmbedder{}, nil, time.Minute)
	b := NewCachedEmbedder(&staticModelEmbedder{model: "other-model"}, nil, time.Minute)
	assert.NotEqual(t, a.key("same text"), b.key("same text"))
}

type staticModelEmbedder struct {
	model string
}

func (s *staticModelEmbedder) EmbedDocuments(context.Context, []string) ([][]float32, error) {
	return nil, nil
}

func (s *staticModelEmbedder) EmbedQuery(context.Context, string) ([]float32, error) {
	return nil, nil
}

func (s *staticModelEmbedder) Dimension() int { return 0 }
func (s *staticModelEmbedder) Model() string  { return s.model }
