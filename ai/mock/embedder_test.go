package mock

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockEmbedder(t *testing.T) {
	ctx := context.Background()

	t.Run("deterministic unit vectors", func(t *testing.T) {
		m := NewMockEmbedder().WithDimension(16)

		a, err := m.EmbedText(ctx, "same")
		require.NoError(t, err)
		b, err := m.EmbedText(ctx, "same")
		require.NoError(t, err)
		c, err := m.EmbedText(ctx, "different")
		require.NoError(t, err)

		assert.Equal(t, a, b)
		assert.NotEqual(t, a, c)
		require.Len(t, a, 16)

		var sum float64
		for _, v := range a {
			sum += float64(v) * float64(v)
		}
		assert.InDelta(t, 1.0, math.Sqrt(sum), 1e-5)
	})

	t.Run("injected failure", func(t *testing.T) {
		boom := errors.New("boom")
		m := NewMockEmbedder().WithEmbedTextsFunc(func(ctx context.Context, texts []string) ([][]float32, error) {
			return nil, boom
		})
		_, err := m.EmbedTexts(ctx, []string{"x"})
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, 1, m.CallCount())
	})

	t.Run("concurrent calls are counted", func(t *testing.T) {
		m := NewMockEmbedder()
		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, _ = m.EmbedTexts(ctx, []string{"a", "b"})
			}()
		}
		wg.Wait()
		assert.Equal(t, 20, m.CallCount())
		assert.Len(t, m.Texts(), 40)

		m.Reset()
		assert.Zero(t, m.CallCount())
		assert.Empty(t, m.Texts())
	})
}

func TestMockProvider(t *testing.T) {
	p := NewMockProvider()
	assert.Equal(t, DefaultModel, p.DefaultModel())

	e1, err := p.Embedder("")
	require.NoError(t, err)
	e2, err := p.Embedder("other")
	require.NoError(t, err)
	assert.Same(t, p.GetMockEmbedder(), e1)
	assert.Same(t, e1, e2)
	assert.Equal(t, []string{DefaultModel, "other"}, p.Models())

	require.NoError(t, p.Close())
	_, err = p.Embedder("")
	assert.Error(t, err)
}
