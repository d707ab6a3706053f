package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Queue.BatchSize)
	assert.Equal(t, 10*time.Second, cfg.Queue.PollInterval)
	assert.Equal(t, 80, cfg.Queue.MaxParallel)
	assert.Equal(t, 30*time.Minute, cfg.Queue.StaleTimeout)
	assert.Equal(t, 30*time.Second, cfg.Queue.DrainTimeout)

	assert.Empty(t, cfg.LLM.APIKeys, "missing credentials load cleanly; main decides the exit code")
	assert.Equal(t, "gemini-2.0-flash", cfg.LLM.Model)
	assert.Equal(t, 30*time.Second, cfg.LLM.Timeout)
	assert.Equal(t, 60*time.Second, cfg.LLM.KeyCooldown)

	assert.Equal(t, "./data/app.db", cfg.Store.Path)
	assert.Equal(t, 30*time.Second, cfg.Store.BusyTimeout)
	assert.Equal(t, "8080", cfg.HTTPPort)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("WORKER_BATCH_SIZE", "3")
	t.Setenv("WORKER_POLL_INTERVAL", "2s")
	t.Setenv("WORKER_MAX_PARALLEL", "10")
	t.Setenv("LLM_API_KEYS", "key-a, key-b ,key-c")
	t.Setenv("LLM_MODEL", "gemini-2.5-pro")
	t.Setenv("STORE_PATH", "/var/lib/topicforge/app.db")
	t.Setenv("HTTP_PORT", "9090")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Queue.BatchSize)
	assert.Equal(t, 2*time.Second, cfg.Queue.PollInterval)
	assert.Equal(t, 10, cfg.Queue.MaxParallel)
	assert.Equal(t, []string{"key-a", "key-b", "key-c"}, cfg.LLM.APIKeys,
		"keys are split on commas and trimmed")
	assert.Equal(t, "gemini-2.5-pro", cfg.LLM.Model)
	assert.Equal(t, "/var/lib/topicforge/app.db", cfg.Store.Path)
	assert.Equal(t, "9090", cfg.HTTPPort)
}

func TestBatchSizeClamp(t *testing.T) {
	t.Setenv("WORKER_BATCH_SIZE", "50")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, MaxBatchSize, cfg.Queue.BatchSize,
		"oversized batch settings clamp to the hard cap")
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	t.Setenv("WORKER_BATCH_SIZE", "0")

	_, err := Load()
	assert.Error(t, err)
}

func TestGetEnvHelpers(t *testing.T) {
	t.Run("malformed int falls back to default", func(t *testing.T) {
		t.Setenv("TEST_INT", "not-a-number")
		assert.Equal(t, 7, getEnvInt("TEST_INT", 7))
	})

	t.Run("malformed duration falls back to default", func(t *testing.T) {
		t.Setenv("TEST_DURATION", "eleventy")
		assert.Equal(t, time.Minute, getEnvDuration("TEST_DURATION", time.Minute))
	})
}
