package ai

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingEmbedder returns len(text) as a one-element vector and counts texts sent.
type countingEmbedder struct {
	mu    sync.Mutex
	texts []string
	err   error
}

func (c *countingEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	vecs, err := c.EmbedTexts(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (c *countingEmbedder) EmbedTexts(_ context.Context, texts []string) ([][]float32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return nil, c.err
	}
	c.texts = append(c.texts, texts...)
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t))}
	}
	return out, nil
}

func (c *countingEmbedder) sent() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.texts...)
}

func TestCachingEmbedder(t *testing.T) {
	ctx := context.Background()

	t.Run("repeated text is embedded once", func(t *testing.T) {
		inner := &countingEmbedder{}
		cache := NewCachingEmbedder(inner, "m", 8)

		v1, err := cache.EmbedText(ctx, "hello")
		require.NoError(t, err)
		v2, err := cache.EmbedText(ctx, "hello")
		require.NoError(t, err)

		assert.Equal(t, v1, v2)
		assert.Equal(t, []string{"hello"}, inner.sent())
		hits, misses := cache.Stats()
		assert.Equal(t, uint64(1), hits)
		assert.Equal(t, uint64(1), misses)
	})

	t.Run("batch only sends misses and keeps order", func(t *testing.T) {
		inner := &countingEmbedder{}
		cache := NewCachingEmbedder(inner, "m", 8)

		_, err := cache.EmbedText(ctx, "bb")
		require.NoError(t, err)

		vecs, err := cache.EmbedTexts(ctx, []string{"a", "bb", "ccc"})
		require.NoError(t, err)
		require.Len(t, vecs, 3)
		assert.Equal(t, []float32{1}, vecs[0])
		assert.Equal(t, []float32{2}, vecs[1])
		assert.Equal(t, []float32{3}, vecs[2])
		assert.Equal(t, []string{"bb", "a", "ccc"}, inner.sent())
	})

	t.Run("least recently used entry is evicted", func(t *testing.T) {
		inner := &countingEmbedder{}
		cache := NewCachingEmbedder(inner, "m", 2)

		for _, text := range []string{"a", "b", "a", "c", "a", "b"} {
			_, err := cache.EmbedText(ctx, text)
			require.NoError(t, err)
		}
		// "b" was evicted when "c" arrived.
		assert.Equal(t, []string{"a", "b", "c", "b"}, inner.sent())
	})

	t.Run("models do not share entries", func(t *testing.T) {
		inner := &countingEmbedder{}
		a := NewCachingEmbedder(inner, "model-a", 4)
		b := NewCachingEmbedder(inner, "model-b", 4)
		assert.NotEqual(t, a.key("text"), b.key("text"))
	})

	t.Run("errors are not cached", func(t *testing.T) {
		inner := &countingEmbedder{err: errors.New("boom")}
		cache := NewCachingEmbedder(inner, "m", 4)

		_, err := cache.EmbedTexts(ctx, []string{"x"})
		require.Error(t, err)

		inner.mu.Lock()
		inner.err = nil
		inner.mu.Unlock()

		_, err = cache.EmbedText(ctx, "x")
		require.NoError(t, err)
		assert.Equal(t, []string{"x"}, inner.sent())
	})

	t.Run("returned vectors are copies", func(t *testing.T) {
		inner := &countingEmbedder{}
		cache := NewCachingEmbedder(inner, "m", 4)

		v, err := cache.EmbedText(ctx, "abc")
		require.NoError(t, err)
		v[0] = 99

		again, err := cache.EmbedText(ctx, "abc")
		require.NoError(t, err)
		assert.Equal(t, []float32{3}, again)
	})
}
