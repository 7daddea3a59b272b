package cache

import (
	"sync"
	"time"
)

// localCache is the in-process tier: a TTL-bound map with no size bound and
// no LRU. Expired entries are dropped lazily on read.
type localCache struct {
	mu      sync.RWMutex
	entries map[string]localEntry
}

type localEntry struct {
	data      []byte
	expiresAt time.Time
}

func newLocalCache() *localCache {
	return &localCache{entries: make(map[string]localEntry)}
}

func (c *localCache) get(key string) ([]byte, bool) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok {
		return nil, false
	}
	if time.Now().After(entry.expiresAt) {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		return nil, false
	}
	return entry.data, true
}

func (c *localCache) set(key string, data []byte, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = localEntry{data: data, expiresAt: time.Now().Add(ttl)}
}

func (c *localCache) delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

func (c *localCache) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]localEntry)
}
