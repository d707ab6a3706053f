// Package config loads and validates service configuration from the
// environment.
package config

import (
	"fmt"
	"log/slog"
)

// Config is the umbrella configuration object returned by Load() and used
// throughout the application.
type Config struct {
	Queue *QueueConfig
	LLM   *LLMConfig
	Store *StoreConfig

	// HTTPPort is the port the API server listens on.
	HTTPPort string
}

// Load reads configuration from the environment, applies defaults, and
// validates the result.
func Load() (*Config, error) {
	cfg := &Config{
		Queue:    loadQueueConfig(),
		LLM:      loadLLMConfig(),
		Store:    loadStoreConfig(),
		HTTPPort: getEnv("HTTP_PORT", "8080"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	slog.Info("Configuration loaded",
		"batch_size", cfg.Queue.BatchSize,
		"max_parallel", cfg.Queue.MaxParallel,
		"poll_interval", cfg.Queue.PollInterval,
		"store_path", cfg.Store.Path,
		"llm_keys", len(cfg.LLM.APIKeys))

	return cfg, nil
}

// Validate checks all sub-configurations. Credential presence is checked
// separately by the caller so it can exit with a dedicated code.
func (c *Config) Validate() error {
	if err := c.Queue.Validate(); err != nil {
		return fmt.Errorf("queue config: %w", err)
	}
	if err := c.LLM.Validate(); err != nil {
		return fmt.Errorf("llm config: %w", err)
	}
	if err := c.Store.Validate(); err != nil {
		return fmt.Errorf("store config: %w", err)
	}
	return nil
}
