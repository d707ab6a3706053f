package config

import (
	"fmt"
	"strings"
	"time"
)

// LLMConfig contains the remote text-generation API settings.
type LLMConfig struct {
	// APIKeys is the credential pool, loaded from LLM_API_KEYS as a
	// comma-separated list. Keys rotate round-robin with per-key cooldown.
	APIKeys []string

	// BaseURL is the API endpoint root.
	BaseURL string

	// Model is the generation model name.
	Model string

	// Timeout is the per-call HTTP timeout.
	Timeout time.Duration

	// KeyCooldown is how long a key sits out after a rate-limit or
	// quota-exceeded response.
	KeyCooldown time.Duration
}

// loadLLMConfig reads the LLM client settings from the environment.
func loadLLMConfig() *LLMConfig {
	var keys []string
	for _, k := range strings.Split(getEnv("LLM_API_KEYS", ""), ",") {
		if k = strings.TrimSpace(k); k != "" {
			keys = append(keys, k)
		}
	}
	return &LLMConfig{
		APIKeys:     keys,
		BaseURL:     getEnv("LLM_BASE_URL", "https://generativelanguage.googleapis.com"),
		Model:       getEnv("LLM_MODEL", "gemini-2.0-flash"),
		Timeout:     getEnvDuration("LLM_TIMEOUT", 30*time.Second),
		KeyCooldown: getEnvDuration("LLM_KEY_COOLDOWN", 60*time.Second),
	}
}

// Validate checks the LLM configuration. An empty key pool is NOT an error
// here; main treats it as a distinct fatal condition with its own exit code.
func (c *LLMConfig) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base URL must not be empty")
	}
	if c.Model == "" {
		return fmt.Errorf("model must not be empty")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %v", c.Timeout)
	}
	if c.KeyCooldown <= 0 {
		return fmt.Errorf("key cooldown must be positive, got %v", c.KeyCooldown)
	}
	return nil
}
