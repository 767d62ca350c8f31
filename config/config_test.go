package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/poiesic/kbase"
	"github.com/poiesic/kbase/core"
	"github.com/poiesic/kbase/ingestion"
	"github.com/poiesic/kbase/search"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "kbase.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	require.NoError(t, cfg.Validate())
	assert.Equal(t, kbase.BackendBadger, cfg.Storage.Backend)
	assert.Equal(t, ingestion.DefaultConfig(), cfg.Ingestion)
	assert.Equal(t, search.DefaultThreshold, cfg.Search.Threshold)
	assert.Equal(t, "text-embedding-3-small", cfg.AI.EmbeddingModel)
}

func TestLoad(t *testing.T) {
	t.Run("empty path returns defaults", func(t *testing.T) {
		cfg, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, Default(), cfg)
	})

	t.Run("file overrides defaults", func(t *testing.T) {
		path := writeConfig(t, `
storage:
  backend: sqlite
  data_dir: /var/lib/kbase
ai:
  embedding_host: http://localhost:11434
  embedding_model: embeddinggemma
  requests_per_second: 4
ingestion:
  max_chunk_size: 500
  chunk_overlap: 50
  retry_base_delay: 500ms
search:
  threshold: 0.7
log_level: debug
`)
		cfg, err := Load(path)
		require.NoError(t, err)

		assert.Equal(t, kbase.BackendSQLite, cfg.Storage.Backend)
		assert.Equal(t, "/var/lib/kbase", cfg.Storage.DataDir)
		assert.Equal(t, 500, cfg.Ingestion.MaxChunkSize)
		assert.Equal(t, 50, cfg.Ingestion.ChunkOverlap)
		assert.Equal(t, 500*time.Millisecond, cfg.Ingestion.RetryBaseDelay)
		assert.Equal(t, ingestion.DefaultRetryAttempts, cfg.Ingestion.RetryAttempts)
		assert.InDelta(t, 0.7, cfg.Search.Threshold, 1e-6)
		assert.Equal(t, "debug", cfg.LogLevel)

		aiCfg := cfg.AIConfig()
		assert.Equal(t, "http://localhost:11434/v1", aiCfg.EmbeddingHost)
		assert.Equal(t, "embeddinggemma", aiCfg.EmbeddingModel)
		assert.Equal(t, "none", aiCfg.APIToken)
		assert.Equal(t, 4.0, aiCfg.RequestsPerSecond)
		assert.Equal(t, 1, aiCfg.Burst)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
		assert.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("malformed yaml", func(t *testing.T) {
		_, err := Load(writeConfig(t, "storage: [unclosed"))
		assert.ErrorIs(t, err, core.ErrConfiguration)
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown backend", func(c *Config) { c.Storage.Backend = "postgres" }},
		{"empty data dir", func(c *Config) { c.Storage.DataDir = "" }},
		{"empty embedding model", func(c *Config) { c.AI.EmbeddingModel = "" }},
		{"overlap not below chunk size", func(c *Config) { c.Ingestion.ChunkOverlap = c.Ingestion.MaxChunkSize }},
		{"zero retry attempts", func(c *Config) { c.Ingestion.RetryAttempts = 0 }},
		{"threshold above one", func(c *Config) { c.Search.Threshold = 1.5 }},
		{"bad log level", func(c *Config) { c.LogLevel = "verbose" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			assert.ErrorIs(t, err, ErrInvalidConfig)
			assert.ErrorIs(t, err, core.ErrConfiguration)
		})
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
	}
	for _, tt := range tests {
		level, err := ParseLevel(tt.name)
		require.NoError(t, err, tt.name)
		assert.Equal(t, tt.want, level, tt.name)
	}

	_, err := ParseLevel("trace")
	assert.Error(t, err)
}

func TestDatabaseOptions(t *testing.T) {
	cfg := Default()
	cfg.Storage.DataDir = t.TempDir()
	cfg.Storage.ObjectStoreURL = "mem://localhost/kbase-config-test"

	db, err := kbase.NewDatabase(cfg.Storage.DataDir, cfg.DatabaseOptions(slog.Default())...)
	require.NoError(t, err)
	defer db.Close()

	assert.NotNil(t, db.ObjectStore())
	assert.Equal(t, "text-embedding-3-small", db.Provider().DefaultModel())
}
