package config

import (
	"fmt"
	"time"
)

// StoreConfig contains the durable store settings.
type StoreConfig struct {
	// Path is the SQLite database file location. WAL sidecar files
	// (*-wal, *-shm) appear beside it; do not place it on a network
	// filesystem.
	Path string

	// BusyTimeout is the engine-level lock wait applied via the
	// busy_timeout pragma. Second line of defense behind the bounded
	// application-level retry loop.
	BusyTimeout time.Duration
}

// loadStoreConfig reads the store settings from the environment.
func loadStoreConfig() *StoreConfig {
	return &StoreConfig{
		Path:        getEnv("STORE_PATH", "./data/app.db"),
		BusyTimeout: getEnvDuration("STORE_BUSY_TIMEOUT", 30*time.Second),
	}
}

// Validate checks the store configuration.
func (c *StoreConfig) Validate() error {
	if c.Path == "" {
		return fmt.Errorf("store path must not be empty")
	}
	if c.BusyTimeout <= 0 {
		return fmt.Errorf("busy timeout must be positive, got %v", c.BusyTimeout)
	}
	return nil
}
