package auth

import (
	"sync"
	"sync/atomic"
	"time"
)

// Cache is a TTL-based in-memory cache with stale-while-revalidate.
// Uses sync.Map for lock-free reads on the hot path: every gated action
// authenticates, so this path is as hot as classification itself.
type Cache struct {
	store sync.Map // map[string]*cacheEntry
	ttl   time.Duration
}

type cacheEntry struct {
	client     *ClientContext
	expiresAt  time.Time
	refreshing atomic.Bool
}

// CacheGetResult holds the result of a cache lookup.
type CacheGetResult struct {
	Client       *ClientContext
	Hit          bool
	NeedsRefresh bool
}

// NewCache creates a cache with the given TTL.
func NewCache(ttl time.Duration) *Cache {
	return &Cache{ttl: ttl}
}

// Get performs a non-blocking cache lookup. Expired entries are served
// stale with NeedsRefresh=true for exactly one caller (CAS-guarded).
func (c *Cache) Get(apiKey string) CacheGetResult {
	val, ok := c.store.Load(apiKey)
	if !ok {
		return CacheGetResult{Hit: false}
	}

	entry := val.(*cacheEntry)
	now := time.Now()

	if now.Before(entry.expiresAt) {
		return CacheGetResult{
			Client: entry.client,
			Hit:    true,
		}
	}

	needsRefresh := entry.refreshing.CompareAndSwap(false, true)
	return CacheGetResult{
		Client:       entry.client,
		Hit:          true,
		NeedsRefresh: needsRefresh,
	}
}

// Set stores a client context with a fresh TTL.
func (c *Cache) Set(apiKey string, client *ClientContext) {
	c.store.Store(apiKey, &cacheEntry{
		client:    client,
		expiresAt: time.Now().Add(c.ttl),
	})
}

// Delete removes an entry from the cache.
func (c *Cache) Delete(apiKey string) {
	c.store.Delete(apiKey)
}
