package service

import (
	"sync"

	"github.com/kjstillabower/crop-advisory-service/internal/observability"
)

// missTracker counts cache misses per key that are waiting on upstream at the
// same time. More than one concurrent miss for a key is a stampede.
type missTracker struct {
	mu     sync.Mutex
	active map[string]int
}

func newMissTracker() *missTracker {
	return &missTracker{active: make(map[string]int)}
}

// Begin records a miss for key and returns the concurrent count including
// this one. The returned func must be called once the miss is resolved.
func (mt *missTracker) Begin(key string) (int, func()) {
	mt.mu.Lock()
	mt.active[key]++
	n := mt.active[key]
	mt.mu.Unlock()

	if n > 1 {
		label := observability.MetricLocationLabel(key)
		observability.CacheStampedeDetectedTotal.WithLabelValues(label).Inc()
		observability.CacheStampedeConcurrency.WithLabelValues(label).Observe(float64(n))
	}

	var once sync.Once
	return n, func() { once.Do(func() { mt.end(key) }) }
}

// Active returns the number of unresolved misses for key.
func (mt *missTracker) Active(key string) int {
	mt.mu.Lock()
	defer mt.mu.Unlock()
	return mt.active[key]
}

func (mt *missTracker) end(key string) {
	mt.mu.Lock()
	defer mt.mu.Unlock()
	if mt.active[key] <= 1 {
		delete(mt.active, key)
		return
	}
	mt.active[key]--
}
