// Package cache holds short-lived copies of backend lookups.
package cache

import (
	"sync"
	"time"
)

// DefaultModulesTTL is how long the module list is reused before the
// backend is asked again.
const DefaultModulesTTL = 5 * time.Minute

// Value caches a single value for a fixed TTL.
type Value[T any] struct {
	mu       sync.RWMutex
	value    T
	set      bool
	cachedAt time.Time
	ttl      time.Duration
	now      func() time.Time
}

// New creates an empty cache whose entries expire after ttl.
func New[T any](ttl time.Duration) *Value[T] {
	return &Value[T]{ttl: ttl, now: time.Now}
}

// Get returns the cached value and whether it is still fresh.
func (c *Value[T]) Get() (T, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var zero T
	if !c.set || c.now().Sub(c.cachedAt) > c.ttl {
		return zero, false
	}
	return c.value, true
}

// Set stores v and restarts the TTL.
func (c *Value[T]) Set(v T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.value = v
	c.set = true
	c.cachedAt = c.now()
}

// Invalidate drops the cached value.
func (c *Value[T]) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	var zero T
	c.value = zero
	c.set = false
}
