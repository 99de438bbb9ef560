package cache

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/kjstillabower/crop-advisory-service/internal/models"
)

// DefaultStaleRetention bounds how long entries survive past their TTL for
// stale reads.
const DefaultStaleRetention = 24 * time.Hour

// Cache defines the interface for weather snapshot caching implementations.
// Get returns fresh entries only. GetStale returns an entry regardless of TTL
// as long as it was stored less than maxAge ago.
type Cache interface {
	Get(ctx context.Context, key string) (models.WeatherSnapshot, bool, error)
	Set(ctx context.Context, key string, value models.WeatherSnapshot, ttl time.Duration) error
	GetStale(ctx context.Context, key string, maxAge time.Duration) (models.WeatherSnapshot, bool, error)
}

// InMemoryCache implements Cache using a mutex-guarded map. Expired entries
// are kept for stale reads until they are older than the retention window,
// and pruned on Set.
type InMemoryCache struct {
	mu        sync.RWMutex
	data      map[string]cacheEntry
	clock     clockwork.Clock
	retention time.Duration
}

type cacheEntry struct {
	value     models.WeatherSnapshot
	storedAt  time.Time
	expiresAt time.Time
}

// Option configures an InMemoryCache.
type Option func(*InMemoryCache)

// WithClock sets the time source. For tests.
func WithClock(c clockwork.Clock) Option {
	return func(m *InMemoryCache) { m.clock = c }
}

// WithStaleRetention overrides DefaultStaleRetention.
func WithStaleRetention(d time.Duration) Option {
	return func(m *InMemoryCache) {
		if d > 0 {
			m.retention = d
		}
	}
}

// NewInMemoryCache creates a new in-memory cache instance.
func NewInMemoryCache(opts ...Option) *InMemoryCache {
	c := &InMemoryCache{
		data:      make(map[string]cacheEntry),
		clock:     clockwork.NewRealClock(),
		retention: DefaultStaleRetention,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns (data, true, nil) on a fresh hit and (zero, false, nil) on miss or expiry.
func (c *InMemoryCache) Get(ctx context.Context, key string) (models.WeatherSnapshot, bool, error) {
	c.mu.RLock()
	entry, ok := c.data[key]
	c.mu.RUnlock()
	if !ok || c.clock.Now().After(entry.expiresAt) {
		return models.WeatherSnapshot{}, false, nil
	}
	return entry.value, true, nil
}

// GetStale returns the entry for key if it was stored within maxAge.
func (c *InMemoryCache) GetStale(ctx context.Context, key string, maxAge time.Duration) (models.WeatherSnapshot, bool, error) {
	c.mu.RLock()
	entry, ok := c.data[key]
	c.mu.RUnlock()
	if !ok || c.clock.Since(entry.storedAt) > maxAge {
		return models.WeatherSnapshot{}, false, nil
	}
	return entry.value, true, nil
}

// Set stores a snapshot with the given TTL.
func (c *InMemoryCache) Set(ctx context.Context, key string, value models.WeatherSnapshot, ttl time.Duration) error {
	now := c.clock.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = cacheEntry{
		value:     value,
		storedAt:  now,
		expiresAt: now.Add(ttl),
	}
	c.pruneLocked(now)
	return nil
}

// Len returns the number of retained entries, fresh or stale.
func (c *InMemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.data)
}

func (c *InMemoryCache) pruneLocked(now time.Time) {
	for k, e := range c.data {
		if now.Sub(e.expiresAt) > c.retention {
			delete(c.data, k)
		}
	}
}
