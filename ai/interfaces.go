package ai

import "context"

// Embedder generates vector embeddings from text for semantic similarity search.
// Implementations must be thread-safe for concurrent use.
type Embedder interface {
	// EmbedText generates a vector embedding for a single text string.
	// Returns an error if the embedding generation fails.
	EmbedText(ctx context.Context, text string) ([]float32, error)

	// EmbedTexts generates vector embeddings for multiple text strings in a batch.
	// The returned slice contains embeddings in the same order as the input texts.
	// Returns an error if any embedding generation fails.
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// AIProvider hands out embedders for named models and owns their lifecycle.
type AIProvider interface {
	// Embedder returns the embedder for model. An empty model selects
	// DefaultModel. Repeated calls with the same model return the same
	// Embedder, which is safe for concurrent use.
	Embedder(model string) (Embedder, error)

	// DefaultModel returns the model used when none is requested.
	DefaultModel() string

	// Close releases resources held by the provider and its embedders.
	// After Close is called, the provider and its embedders should not be used.
	Close() error
}
