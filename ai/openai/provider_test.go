package openai

import (
	"testing"

	"github.com/poiesic/kbase/ai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProviderEmbedderPerModel(t *testing.T) {
	cfg := ai.NewConfig(
		ai.WithEmbeddingHost("http://localhost:11434"),
		ai.WithEmbeddingModel("embeddinggemma"),
		ai.WithRateLimit(10, 2),
	)
	provider, err := NewProvider(cfg)
	require.NoError(t, err)
	defer provider.Close()

	assert.Equal(t, "embeddinggemma", provider.DefaultModel())

	def, err := provider.Embedder("")
	require.NoError(t, err)
	again, err := provider.Embedder("embeddinggemma")
	require.NoError(t, err)
	other, err := provider.Embedder("nomic-embed-text")
	require.NoError(t, err)

	assert.Same(t, def, again)
	assert.NotSame(t, def, other)
	assert.IsType(t, &ai.RateLimitedEmbedder{}, def)
}

func TestProviderConfigValidation(t *testing.T) {
	_, err := NewProvider(&ai.Config{EmbeddingHost: "http://localhost"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ai.ErrInvalidConfig)
}

func TestProviderClosed(t *testing.T) {
	provider, err := NewProvider(ai.DefaultConfig())
	require.NoError(t, err)
	require.NoError(t, provider.Close())

	_, err = provider.Embedder("")
	assert.ErrorIs(t, err, ai.ErrProviderClosed)
}
