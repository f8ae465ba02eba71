package dimension

import (
	"sync"

	"github.com/couchcryptid/fishtank-etl/internal/domain"
)

// KnownKeys remembers dimension keys confirmed as persisted, so repeat batches
// skip the existence query for them. Dimension tables are append-only, so an
// entry never goes stale; eviction only costs an extra lookup.
type KnownKeys struct {
	cache *lruCache
}

// NewKnownKeys creates a cache bounded to maxEntries keys across all tables.
// A non-positive size returns nil, which disables caching.
func NewKnownKeys(maxEntries int) *KnownKeys {
	if maxEntries <= 0 {
		return nil
	}
	return &KnownKeys{cache: newLRUCache(maxEntries)}
}

// Unknown returns the keys not yet confirmed for table.
func (k *KnownKeys) Unknown(table string, keys domain.KeySet) domain.KeySet {
	if k == nil {
		return keys
	}
	out := make(domain.KeySet, len(keys))
	for key := range keys {
		if !k.cache.get(cacheKey{table: table, key: key}) {
			out.Add(key)
		}
	}
	return out
}

// Remember marks keys as persisted in table.
func (k *KnownKeys) Remember(table string, keys domain.KeySet) {
	if k == nil {
		return
	}
	for key := range keys {
		k.cache.put(cacheKey{table: table, key: key})
	}
}

// Len returns the number of cached keys.
func (k *KnownKeys) Len() int {
	if k == nil {
		return 0
	}
	return k.cache.len()
}

type cacheKey struct {
	table string
	key   int64
}

// lruCache is a simple thread-safe LRU set.
type lruCache struct {
	maxEntries int
	mu         sync.Mutex
	entries    map[cacheKey]*entry
	head       *entry // most recently used
	tail       *entry // least recently used
}

type entry struct {
	key  cacheKey
	prev *entry
	next *entry
}

func newLRUCache(maxEntries int) *lruCache {
	return &lruCache{
		maxEntries: maxEntries,
		entries:    make(map[cacheKey]*entry),
	}
}

func (c *lruCache) get(key cacheKey) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return false
	}
	c.moveToFront(e)
	return true
}

func (c *lruCache) put(key cacheKey) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		c.moveToFront(e)
		return
	}

	e := &entry{key: key}
	c.entries[key] = e
	c.addToFront(e)

	if len(c.entries) > c.maxEntries {
		c.evictTail()
	}
}

func (c *lruCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *lruCache) moveToFront(e *entry) {
	if e == c.head {
		return
	}
	c.remove(e)
	c.addToFront(e)
}

func (c *lruCache) addToFront(e *entry) {
	e.next = c.head
	e.prev = nil
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

func (c *lruCache) remove(e *entry) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		c.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		c.tail = e.prev
	}
}

func (c *lruCache) evictTail() {
	if c.tail == nil {
		return
	}
	delete(c.entries, c.tail.key)
	c.remove(c.tail)
}
