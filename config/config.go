// Package config loads the kbase command-line configuration from YAML.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/poiesic/kbase"
	"github.com/poiesic/kbase/ai"
	"github.com/poiesic/kbase/core"
	"github.com/poiesic/kbase/ingestion"
	"github.com/poiesic/kbase/search"
	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is returned when a loaded configuration fails validation.
var ErrInvalidConfig = fmt.Errorf("config: %w", core.ErrConfiguration)

// Config is the on-disk configuration of the kbase CLI.
type Config struct {
	Storage   StorageConfig    `yaml:"storage"`
	AI        AIConfig         `yaml:"ai"`
	Ingestion ingestion.Config `yaml:"ingestion"`
	Search    SearchConfig     `yaml:"search"`
	LogLevel  string           `yaml:"log_level"`
}

// StorageConfig selects where documents, chunks and raw files live.
type StorageConfig struct {
	Backend kbase.Backend `yaml:"backend"`
	DataDir string        `yaml:"data_dir"`
	// ObjectStoreURL overrides the default file store under DataDir.
	ObjectStoreURL string `yaml:"object_store_url"`
}

// AIConfig mirrors ai.Config.
type AIConfig struct {
	EmbeddingHost     string  `yaml:"embedding_host"`
	EmbeddingModel    string  `yaml:"embedding_model"`
	APIToken          string  `yaml:"api_token"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
	CacheSize         int     `yaml:"cache_size"`
}

type SearchConfig struct {
	Threshold float32 `yaml:"threshold"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	aiDefaults := ai.DefaultConfig()
	return &Config{
		Storage: StorageConfig{
			Backend: kbase.BackendBadger,
			DataDir: "kbase-data",
		},
		AI: AIConfig{
			EmbeddingHost:     aiDefaults.EmbeddingHost,
			EmbeddingModel:    aiDefaults.EmbeddingModel,
			APIToken:          aiDefaults.APIToken,
			RequestsPerSecond: aiDefaults.RequestsPerSecond,
			Burst:             aiDefaults.Burst,
			CacheSize:         aiDefaults.CacheSize,
		},
		Ingestion: ingestion.DefaultConfig(),
		Search:    SearchConfig{Threshold: search.DefaultThreshold},
		LogLevel:  "info",
	}
}

// Load reads path over the defaults. An empty path returns the defaults.
// Fields missing from the file keep their default values.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := Parse(data, cfg); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML into cfg and validates the result.
func Parse(data []byte, cfg *Config) error {
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return cfg.Validate()
}

// Validate checks the combined configuration.
func (c *Config) Validate() error {
	var errs []error
	switch c.Storage.Backend {
	case kbase.BackendBadger, kbase.BackendSQLite:
	default:
		errs = append(errs, fmt.Errorf("unknown storage backend %q", c.Storage.Backend))
	}
	if c.Storage.DataDir == "" {
		errs = append(errs, errors.New("storage.data_dir is required"))
	}
	if err := c.AIConfig().Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.Ingestion.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.Search.Threshold < -1 || c.Search.Threshold > 1 {
		errs = append(errs, fmt.Errorf("search.threshold %v outside [-1, 1]", c.Search.Threshold))
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// AIConfig converts the ai section into a normalized ai.Config.
func (c *Config) AIConfig() *ai.Config {
	cfg := ai.NewConfig(
		ai.WithEmbeddingHost(c.AI.EmbeddingHost),
		ai.WithEmbeddingModel(c.AI.EmbeddingModel),
		ai.WithAPIToken(c.AI.APIToken),
		ai.WithRateLimit(c.AI.RequestsPerSecond, c.AI.Burst),
		ai.WithCacheSize(c.AI.CacheSize),
	)
	cfg.Normalize()
	return cfg
}

// DatabaseOptions returns the options that open the configured database.
func (c *Config) DatabaseOptions(logger *slog.Logger) []kbase.DatabaseOption {
	opts := []kbase.DatabaseOption{
		kbase.WithBackend(c.Storage.Backend),
		kbase.WithAIConfig(c.AIConfig()),
		kbase.WithIngestionConfig(c.Ingestion),
	}
	if c.Storage.ObjectStoreURL != "" {
		opts = append(opts, kbase.WithObjectStoreURL(c.Storage.ObjectStoreURL))
	}
	if logger != nil {
		opts = append(opts, kbase.WithLogger(logger))
	}
	return opts
}

// ParseLevel maps a level name to a slog.Level.
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", name)
	}
}
