package secrets

import (
	"sync"
	"time"

	"github.com/billingops/payment-orchestrator/internal/domain/ports"
)

// secretCache is a TTL cache shared by the remote secret backends so that
// every callback delivery does not turn into a secret-manager round trip.
type secretCache struct {
	mu      sync.RWMutex
	entries map[string]*cacheEntry
	ttl     time.Duration
	enabled bool
}

type cacheEntry struct {
	secret    *ports.Secret
	expiresAt time.Time
}

func newSecretCache(ttl time.Duration, enabled bool) *secretCache {
	return &secretCache{
		entries: make(map[string]*cacheEntry),
		ttl:     ttl,
		enabled: enabled,
	}
}

func (c *secretCache) get(path string) *ports.Secret {
	if !c.enabled {
		return nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[path]
	if !ok || time.Now().After(entry.expiresAt) {
		return nil
	}
	return entry.secret
}

func (c *secretCache) set(path string, secret *ports.Secret) {
	if !c.enabled {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[path] = &cacheEntry{
		secret:    secret,
		expiresAt: time.Now().Add(c.ttl),
	}
}
