package config

import (
	"fmt"
	"time"
)

// MaxBatchSize is the hard cap on items per LLM call. The response envelope
// degrades in reliability beyond this; larger configured values are clamped.
const MaxBatchSize = 5

// QueueConfig contains queue and worker pool configuration.
// These values control how items are polled, claimed, and processed.
type QueueConfig struct {
	// BatchSize is the maximum number of queue items per LLM call.
	// Clamped to MaxBatchSize.
	BatchSize int

	// PollInterval is the base interval between dispatcher ticks.
	PollInterval time.Duration

	// MaxParallel is the maximum number of batches in flight at once.
	MaxParallel int

	// StaleTimeout is both the stale-reset scan interval and the age at
	// which a processing item is considered abandoned and reset to pending.
	StaleTimeout time.Duration

	// DrainTimeout is the maximum time to wait for in-flight batches during
	// graceful shutdown before abandoning them to the stale reset.
	DrainTimeout time.Duration
}

// loadQueueConfig reads the worker pool settings from the environment.
func loadQueueConfig() *QueueConfig {
	cfg := &QueueConfig{
		BatchSize:    getEnvInt("WORKER_BATCH_SIZE", 5),
		PollInterval: getEnvDuration("WORKER_POLL_INTERVAL", 10*time.Second),
		MaxParallel:  getEnvInt("WORKER_MAX_PARALLEL", 80),
		StaleTimeout: getEnvDuration("WORKER_STALE_TIMEOUT", 30*time.Minute),
		DrainTimeout: getEnvDuration("WORKER_DRAIN_TIMEOUT", 30*time.Second),
	}
	if cfg.BatchSize > MaxBatchSize {
		cfg.BatchSize = MaxBatchSize
	}
	return cfg
}

// Validate checks the queue configuration for usable values.
func (c *QueueConfig) Validate() error {
	if c.BatchSize < 1 {
		return fmt.Errorf("batch size must be at least 1, got %d", c.BatchSize)
	}
	if c.MaxParallel < 1 {
		return fmt.Errorf("max parallel must be at least 1, got %d", c.MaxParallel)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive, got %v", c.PollInterval)
	}
	if c.StaleTimeout <= 0 {
		return fmt.Errorf("stale timeout must be positive, got %v", c.StaleTimeout)
	}
	return nil
}
