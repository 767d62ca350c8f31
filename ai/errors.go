package ai

import (
	"errors"
	"fmt"

	"github.com/poiesic/kbase/core"
)

var (
	// ErrInvalidConfig indicates an incomplete or inconsistent Config.
	ErrInvalidConfig = fmt.Errorf("ai: %w", core.ErrConfiguration)

	// ErrEmptyEmbedding indicates the embedding service returned no vector.
	ErrEmptyEmbedding = errors.New("embedding service returned no vector")

	// ErrProviderClosed indicates use of a closed provider.
	ErrProviderClosed = errors.New("ai provider is closed")
)
