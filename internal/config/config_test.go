package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(New())
	require.NoError(t, err)

	assert.Zero(t, cfg.Embedding.Dims, "the provider decides")
	assert.Equal(t, 0.8, cfg.Retrieval.MinSimilarity)
	assert.Equal(t, 10, cfg.Retrieval.Limit)
	assert.Equal(t, time.Hour, cfg.Tiers.WorkingWindow)
	assert.Equal(t, 10*time.Minute, cfg.Decay.Interval)
	assert.Equal(t, 24*time.Hour, cfg.Decay.StaleAfter)
	assert.Equal(t, 0.3, cfg.Decay.ImportanceCutoff)
	assert.Equal(t, time.Hour, cfg.Compression.Interval)
	assert.Equal(t, 1000, cfg.Compression.TriggerCount)
	assert.Equal(t, 0.95, cfg.Compression.Similarity)
	assert.Equal(t, 5*time.Minute, cfg.Persistence.AutosaveInterval)
	assert.Equal(t, "sqlite", cfg.Persistence.Driver)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("TIERMEM_RETRIEVAL_MIN_SIMILARITY", "0.65")
	t.Setenv("TIERMEM_DECAY_INTERVAL", "30s")
	t.Setenv("TIERMEM_EMBEDDING_DIMS", "768")

	cfg, err := Load(New())
	require.NoError(t, err)
	assert.Equal(t, 0.65, cfg.Retrieval.MinSimilarity)
	assert.Equal(t, 30*time.Second, cfg.Decay.Interval)
	assert.Equal(t, 768, cfg.Embedding.Dims)
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tiermem.yml")
	body := "compression:\n  similarity: 0.9\n  trigger_count: 50\npersistence:\n  driver: file\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	v := New()
	v.SetConfigFile(path)
	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, 0.9, cfg.Compression.Similarity)
	assert.Equal(t, 50, cfg.Compression.TriggerCount)
	assert.Equal(t, "file", cfg.Persistence.Driver)
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"similarity above one", func(c *Config) { c.Retrieval.MinSimilarity = 1.5 }},
		{"negative cutoff", func(c *Config) { c.Decay.ImportanceCutoff = -0.1 }},
		{"negative dims", func(c *Config) { c.Embedding.Dims = -1 }},
		{"zero window", func(c *Config) { c.Tiers.WorkingWindow = 0 }},
		{"unknown driver", func(c *Config) { c.Persistence.Driver = "redis" }},
		{"postgres without dsn", func(c *Config) { c.Persistence.Driver = "postgres" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}
