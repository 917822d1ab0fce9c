package slicer

import (
	"fmt"
	"sync"
)

// chunkCache holds recently-read (anchor, length) byte spans in memory so
// repeated nearby requests (e.g. a viewport scrolling by a few rows) don't
// re-read the same bytes from disk. Modeled directly on the teacher's
// internal/fusefs/rawfs.go chunkCache: an RWMutex-guarded map with a byte
// budget, evicting oldest-first once the budget is exceeded.
type chunkCache struct {
	mu      sync.RWMutex
	entries map[string][]byte
	order   []string
	size    int64
	maxSize int64
}

func newChunkCache(maxSize int64) chunkCache {
	return chunkCache{
		entries: make(map[string][]byte),
		maxSize: maxSize,
	}
}

func (c *chunkCache) key(anchor, length int64) string {
	return fmt.Sprintf("%d:%d", anchor, length)
}

func (c *chunkCache) get(anchor, length int64) ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	data, ok := c.entries[c.key(anchor, length)]
	return data, ok
}

func (c *chunkCache) set(anchor, length int64, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := c.key(anchor, length)
	if _, exists := c.entries[key]; exists {
		return
	}

	for c.size+int64(len(data)) > c.maxSize && len(c.order) > 0 {
		oldest := c.order[0]
		c.order = c.order[1:]
		if old, ok := c.entries[oldest]; ok {
			c.size -= int64(len(old))
			delete(c.entries, oldest)
		}
	}

	c.entries[key] = data
	c.order = append(c.order, key)
	c.size += int64(len(data))
}
