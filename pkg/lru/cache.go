// Package lru provides a generic least-recently-used cache bounded by entry
// count. It is safe for concurrent use.
package lru

import (
	"container/list"
	"sync"
	"sync/atomic"
)

// Cache is a thread-safe LRU cache. A nil *Cache is valid and caches nothing.
type Cache[K comparable, V any] struct {
	mu         sync.Mutex
	order      *list.List // Front is the most recently used entry.
	entries    map[K]*list.Element
	maxEntries int

	hits   atomic.Int64
	misses atomic.Int64
}

type entry[K comparable, V any] struct {
	key   K
	value V
}

// New creates a cache holding at most maxEntries values.
// It returns nil when maxEntries is not positive.
func New[K comparable, V any](maxEntries int) *Cache[K, V] {
	if maxEntries <= 0 {
		return nil
	}

	return &Cache[K, V]{
		order:      list.New(),
		entries:    make(map[K]*list.Element, maxEntries),
		maxEntries: maxEntries,
	}
}

// Get returns the value cached under key and marks it recently used.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	var zero V

	if c == nil {
		return zero, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[key]
	if !ok {
		c.misses.Add(1)

		return zero, false
	}

	c.hits.Add(1)
	c.order.MoveToFront(elem)

	e, _ := elem.Value.(*entry[K, V])

	return e.value, true
}

// Put stores value under key, evicting the least recently used entry when
// the cache is full.
func (c *Cache[K, V]) Put(key K, value V) {
	if c == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[key]; ok {
		e, _ := elem.Value.(*entry[K, V])
		e.value = value
		c.order.MoveToFront(elem)

		return
	}

	c.entries[key] = c.order.PushFront(&entry[K, V]{key: key, value: value})

	for c.order.Len() > c.maxEntries {
		c.evictOldest()
	}
}

// Len returns the number of cached entries.
func (c *Cache[K, V]) Len() int {
	if c == nil {
		return 0
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.entries)
}

func (c *Cache[K, V]) evictOldest() {
	oldest := c.order.Back()
	if oldest == nil {
		return
	}

	c.order.Remove(oldest)

	e, _ := oldest.Value.(*entry[K, V])
	delete(c.entries, e.key)
}
