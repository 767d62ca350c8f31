package ingestion

import (
	"fmt"
	"time"

	"github.com/poiesic/kbase/chunking"
	"github.com/poiesic/kbase/core"
)

// Config holds the pipeline settings. Zero fields take their defaults when
// the pipeline is constructed.
type Config struct {
	// MaxChunkSize is the chunk size limit in characters.
	MaxChunkSize int `yaml:"max_chunk_size"`
	// ChunkOverlap is the number of characters repeated from the previous chunk.
	ChunkOverlap int `yaml:"chunk_overlap"`
	// EmbeddingModel is used for documents that don't name a model. Empty
	// uses the provider's default.
	EmbeddingModel string `yaml:"embedding_model"`
	// MaxConcurrentEmbeddings is the batch size of concurrent embedding requests.
	MaxConcurrentEmbeddings int `yaml:"max_concurrent_embeddings"`
	// MaxUploadBytes rejects larger files before extraction.
	MaxUploadBytes int64 `yaml:"max_upload_bytes"`
	// MaxEmbedInputChars truncates text sent to the embedding API.
	// Stored chunk content is not truncated.
	MaxEmbedInputChars int `yaml:"max_embed_input_chars"`
	// RetryAttempts is the number of embedding attempts per chunk.
	RetryAttempts int `yaml:"retry_attempts"`
	// RetryBaseDelay is the wait after the first failed attempt; it doubles each retry.
	RetryBaseDelay time.Duration `yaml:"retry_base_delay"`
}

// Defaults.
const (
	DefaultMaxConcurrentEmbeddings = 5
	DefaultMaxUploadBytes          = 10 << 20
	DefaultMaxEmbedInputChars      = 8000
	DefaultRetryAttempts           = 3
	DefaultRetryBaseDelay          = 2 * time.Second
)

// DefaultConfig returns the default pipeline settings.
func DefaultConfig() Config {
	return Config{
		MaxChunkSize:            chunking.DefaultMaxChunkSize,
		ChunkOverlap:            chunking.DefaultOverlapSize,
		MaxConcurrentEmbeddings: DefaultMaxConcurrentEmbeddings,
		MaxUploadBytes:          DefaultMaxUploadBytes,
		MaxEmbedInputChars:      DefaultMaxEmbedInputChars,
		RetryAttempts:           DefaultRetryAttempts,
		RetryBaseDelay:          DefaultRetryBaseDelay,
	}
}

// withDefaults fills zero fields from DefaultConfig. ChunkOverlap keeps an
// explicit zero only when MaxChunkSize is also set.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxChunkSize == 0 {
		c.MaxChunkSize = d.MaxChunkSize
		if c.ChunkOverlap == 0 {
			c.ChunkOverlap = d.ChunkOverlap
		}
	}
	if c.MaxConcurrentEmbeddings == 0 {
		c.MaxConcurrentEmbeddings = d.MaxConcurrentEmbeddings
	}
	if c.MaxUploadBytes == 0 {
		c.MaxUploadBytes = d.MaxUploadBytes
	}
	if c.MaxEmbedInputChars == 0 {
		c.MaxEmbedInputChars = d.MaxEmbedInputChars
	}
	if c.RetryAttempts == 0 {
		c.RetryAttempts = d.RetryAttempts
	}
	if c.RetryBaseDelay == 0 {
		c.RetryBaseDelay = d.RetryBaseDelay
	}
	return c
}

// Validate checks the settings. Chunk sizing is checked by chunking.New.
func (c Config) Validate() error {
	if _, err := chunking.New(c.MaxChunkSize, c.ChunkOverlap); err != nil {
		return err
	}
	if c.MaxConcurrentEmbeddings < 1 {
		return fmt.Errorf("%w: max concurrent embeddings must be positive, got %d", core.ErrConfiguration, c.MaxConcurrentEmbeddings)
	}
	if c.MaxUploadBytes < 1 {
		return fmt.Errorf("%w: max upload bytes must be positive, got %d", core.ErrConfiguration, c.MaxUploadBytes)
	}
	if c.MaxEmbedInputChars < 1 {
		return fmt.Errorf("%w: max embed input chars must be positive, got %d", core.ErrConfiguration, c.MaxEmbedInputChars)
	}
	if c.RetryAttempts < 1 {
		return fmt.Errorf("%w: retry attempts must be positive, got %d", core.ErrConfiguration, c.RetryAttempts)
	}
	if c.RetryBaseDelay < 0 {
		return fmt.Errorf("%w: retry base delay must not be negative", core.ErrConfiguration)
	}
	return nil
}
