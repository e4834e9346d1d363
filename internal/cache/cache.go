package cache

import (
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// NoExpiration keeps an entry until it is replaced or deleted
const NoExpiration = gocache.NoExpiration

// Cache defines the interface for caching operations
type Cache interface {
	Get(key string) (any, bool)
	Set(key string, value any, ttl time.Duration)
	Delete(key string)
	Keys() []string
	Clear()
}

// TTLCache implements Cache interface with time-to-live support
type TTLCache struct {
	data *gocache.Cache
}

// New creates a new TTL cache. A non-positive defaultTTL disables expiry.
func New(defaultTTL time.Duration) *TTLCache {
	if defaultTTL <= 0 {
		return &TTLCache{data: gocache.New(gocache.NoExpiration, 0)}
	}
	return &TTLCache{
		data: gocache.New(defaultTTL, defaultTTL*2),
	}
}

// Get retrieves a value from the cache
func (c *TTLCache) Get(key string) (any, bool) {
	return c.data.Get(key)
}

// Set stores a value in the cache with the specified TTL.
// A zero ttl uses the cache default.
func (c *TTLCache) Set(key string, value any, ttl time.Duration) {
	if ttl == 0 {
		ttl = gocache.DefaultExpiration
	}
	c.data.Set(key, value, ttl)
}

// Delete removes a value from the cache
func (c *TTLCache) Delete(key string) {
	c.data.Delete(key)
}

// Keys returns the keys of all unexpired entries
func (c *TTLCache) Keys() []string {
	items := c.data.Items()
	keys := make([]string, 0, len(items))
	for k := range items {
		keys = append(keys, k)
	}
	return keys
}

// Clear removes all values from the cache
func (c *TTLCache) Clear() {
	c.data.Flush()
}
