package config

import (
	"log/slog"
	"os"
	"strconv"
	"time"
)

// getEnv returns the environment value for key, or defaultValue when unset
// or empty.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt parses an integer environment value, falling back to the
// default on absence or a parse failure.
func getEnvInt(key string, defaultValue int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		slog.Warn("Invalid integer in environment, using default",
			"key", key, "value", raw, "default", defaultValue)
		return defaultValue
	}
	return value
}

// getEnvDuration parses a duration environment value ("30s", "10m"),
// falling back to the default on absence or a parse failure.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(raw)
	if err != nil {
		slog.Warn("Invalid duration in environment, using default",
			"key", key, "value", raw, "default", defaultValue)
		return defaultValue
	}
	return value
}
