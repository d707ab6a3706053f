package llm

import (
	"errors"
	"fmt"
)

// Kind classifies a remote LLM failure for the caller's retry decision.
type Kind string

// Error kinds, from most to least severe.
const (
	// KindAuth: the key was rejected (401/403). Fatal per key; the key is
	// permanently disabled.
	KindAuth Kind = "auth"

	// KindRateLimited: HTTP 429 or a rate-limit body. Transient per key.
	KindRateLimited Kind = "rate_limited"

	// KindQuotaExceeded: the body explicitly reports an exhausted quota.
	// The key cools down for the configured interval.
	KindQuotaExceeded Kind = "quota_exceeded"

	// KindTransient: 5xx responses and other retryable transport failures.
	KindTransient Kind = "transient"

	// KindParse: the response body was not the expected envelope. Fatal for
	// the batch, not for the key.
	KindParse Kind = "parse"

	// KindTimeout: the per-call deadline elapsed. Transient.
	KindTimeout Kind = "timeout"
)

// Sentinel errors for credential pool exhaustion.
var (
	// ErrAllKeysCooling: every key is in cooldown. Transient; callers
	// should yield and retry after the cooldown interval.
	ErrAllKeysCooling = errors.New("all API keys are cooling down")

	// ErrNoUsableKeys: every key has been permanently disabled. Fatal.
	ErrNoUsableKeys = errors.New("no usable API keys remain")
)

// APIError is a classified remote failure.
type APIError struct {
	Kind       Kind
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("llm: %s (%d): %s", e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("llm: %s: %s", e.Kind, e.Message)
}

// IsTransient reports whether err represents a failure that is expected to
// clear on its own: rate limits, quota cooldowns, 5xx, timeouts, and a
// fully cooling key pool. Transient failures re-queue the batch; everything
// else fails it.
func IsTransient(err error) bool {
	if errors.Is(err, ErrAllKeysCooling) {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Kind {
		case KindRateLimited, KindQuotaExceeded, KindTransient, KindTimeout:
			return true
		}
	}
	return false
}
