package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_Validates(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 1000, cfg.Ingest.QueueCapacity)
	assert.Equal(t, 0.60, cfg.Decision.ConfidenceApprovalThreshold)
	assert.Equal(t, 0.85, cfg.Duplicates.Threshold)
	assert.Equal(t, time.Hour, cfg.Cache.TTL)
	assert.Equal(t, 3, cfg.Oracle.MaxAttempts)
	assert.False(t, cfg.Review.TimeoutApprove)
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default().Ingest, cfg.Ingest)
}

func TestLoad_YAMLOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "core.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
ingest:
  queue_capacity: 250
  rate_limit_n: 20
review:
  timeout_approve: true
oracle:
  model: gpt-4o-mini
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 250, cfg.Ingest.QueueCapacity)
	assert.Equal(t, 20, cfg.Ingest.RateLimitN)
	assert.True(t, cfg.Review.TimeoutApprove)
	assert.Equal(t, "gpt-4o-mini", cfg.Oracle.Model)
	// Untouched sections keep defaults.
	assert.Equal(t, Default().Dispatch.MaxAttempts, cfg.Dispatch.MaxAttempts)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	t.Setenv("OPS_QUEUE_CAPACITY", "42")
	t.Setenv("OPS_CACHE_TTL_MS", "30000")
	t.Setenv("OPS_DUPLICATE_THRESHOLD", "0.9")
	t.Setenv("OPS_ORACLE_MODEL", "local-llm")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 42, cfg.Ingest.QueueCapacity)
	assert.Equal(t, 30*time.Second, cfg.Cache.TTL)
	assert.Equal(t, 0.9, cfg.Duplicates.Threshold)
	assert.Equal(t, "local-llm", cfg.Oracle.Model)
}

func TestLoad_MalformedEnvIgnored(t *testing.T) {
	t.Setenv("OPS_QUEUE_CAPACITY", "not-a-number")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default().Ingest.QueueCapacity, cfg.Ingest.QueueCapacity)
}

func TestValidate_RejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero queue capacity", func(c *Config) { c.Ingest.QueueCapacity = 0 }},
		{"zero rate limit", func(c *Config) { c.Ingest.RateLimitN = 0 }},
		{"zero cache size", func(c *Config) { c.Cache.MaxSize = 0 }},
		{"threshold above one", func(c *Config) { c.Duplicates.Threshold = 1.5 }},
		{"negative confidence", func(c *Config) { c.Decision.ConfidenceApprovalThreshold = -0.1 }},
		{"zero attempts", func(c *Config) { c.Dispatch.MaxAttempts = 0 }},
		{"zero review tick", func(c *Config) { c.Review.Tick = 0 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoad_MalformedYAMLFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("ingest: ["), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}
