package llm

import (
	"log/slog"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// keyPool manages the process-global credential pool. Keys rotate
// round-robin; a key that hit a rate limit or quota error sits out its
// cooldown interval, and a key rejected for auth is disabled for good.
type keyPool struct {
	mu       sync.Mutex
	keys     []string
	next     int
	disabled map[string]bool

	// cooldown holds currently-cooling keys; entry expiry is the TTL cache's
	// job, so acquire only has to check presence.
	cooldown    *gocache.Cache
	cooldownTTL time.Duration
}

func newKeyPool(keys []string, cooldownTTL time.Duration) *keyPool {
	return &keyPool{
		keys:        keys,
		disabled:    make(map[string]bool),
		cooldown:    gocache.New(cooldownTTL, time.Minute),
		cooldownTTL: cooldownTTL,
	}
}

// acquire returns the next usable key. ErrNoUsableKeys when every key is
// permanently disabled, ErrAllKeysCooling when the survivors are all in
// cooldown.
func (p *keyPool) acquire() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	usable := 0
	for i := 0; i < len(p.keys); i++ {
		key := p.keys[(p.next+i)%len(p.keys)]
		if p.disabled[key] {
			continue
		}
		usable++
		if _, cooling := p.cooldown.Get(key); cooling {
			continue
		}
		p.next = (p.next + i + 1) % len(p.keys)
		return key, nil
	}

	if usable == 0 {
		return "", ErrNoUsableKeys
	}
	return "", ErrAllKeysCooling
}

// markCooling puts the key into cooldown for the configured interval.
func (p *keyPool) markCooling(key string) {
	p.cooldown.Set(key, struct{}{}, p.cooldownTTL)
	slog.Warn("API key cooling down", "key", redact(key), "cooldown", p.cooldownTTL)
}

// disable permanently removes the key from rotation.
func (p *keyPool) disable(key string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.disabled[key] = true
	slog.Error("API key permanently disabled", "key", redact(key))
}

// usableCount returns the number of keys that are not permanently disabled.
func (p *keyPool) usableCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, key := range p.keys {
		if !p.disabled[key] {
			n++
		}
	}
	return n
}

// coolingCount returns the number of keys currently in cooldown.
func (p *keyPool) coolingCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, key := range p.keys {
		if _, cooling := p.cooldown.Get(key); cooling {
			n++
		}
	}
	return n
}

// redact shortens a credential for log output.
func redact(key string) string {
	if len(key) <= 6 {
		return "***"
	}
	return key[:3] + "..." + key[len(key)-3:]
}
