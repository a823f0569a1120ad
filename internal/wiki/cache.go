// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package wiki

import (
	"strings"
	"sync"
)

// boundedCache is a small FIFO cache for lookup responses, keyed by
// operation and normalized title/query. It is advisory: a miss costs a
// network round-trip, never correctness.
type boundedCache struct {
	mu    sync.Mutex
	max   int
	items map[string]any
	order []string
}

func newBoundedCache(max int) *boundedCache {
	if max <= 0 {
		max = defaultCacheSize
	}
	return &boundedCache{
		max:   max,
		items: make(map[string]any, max),
	}
}

// normalizeKey lowercases and collapses runs of whitespace so trivially
// different spellings of the same title share an entry.
func normalizeKey(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

func (c *boundedCache) get(op, key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.items[op+"\x00"+normalizeKey(key)]
	return v, ok
}

func (c *boundedCache) put(op, key string, v any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	k := op + "\x00" + normalizeKey(key)
	if _, exists := c.items[k]; !exists {
		if len(c.order) >= c.max {
			oldest := c.order[0]
			c.order = c.order[1:]
			delete(c.items, oldest)
		}
		c.order = append(c.order, k)
	}
	c.items[k] = v
}
