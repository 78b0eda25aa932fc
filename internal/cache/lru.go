// Package cache provides the search result cache: an in-process LRU, Redis,
// or both layered as a two-phase cache.
package cache

import (
	"container/list"
	"context"
	"errors"
	"sync"
	"time"
)

// ErrScopeRequired is returned when a key is used without a scope.
var ErrScopeRequired = errors.New("cache scope is required")

// LRUCache keeps the most recently used entries in process memory. Each entry
// carries its own expiry, checked lazily on read.
type LRUCache struct {
	mu      sync.Mutex
	maxSize int
	items   map[string]*list.Element
	order   *list.List
	now     func() time.Time
}

type cacheEntry struct {
	key       string
	value     []byte
	expiresAt time.Time
}

// NewLRUCache holds at most maxSize entries, 10000 when maxSize is not positive.
func NewLRUCache(maxSize int) *LRUCache {
	if maxSize <= 0 {
		maxSize = 10000
	}
	return &LRUCache{
		maxSize: maxSize,
		items:   make(map[string]*list.Element),
		order:   list.New(),
		now:     time.Now,
	}
}

// Get returns the cached value, or nil on a miss or expired entry.
func (c *LRUCache) Get(_ context.Context, scope string, key string) ([]byte, error) {
	if scope == "" {
		return nil, ErrScopeRequired
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[scopedKey(scope, key)]
	if !ok {
		return nil, nil
	}

	entry := elem.Value.(*cacheEntry)
	if c.now().After(entry.expiresAt) {
		c.removeElement(elem)
		return nil, nil
	}

	c.order.MoveToFront(elem)
	return entry.value, nil
}

// Set stores a value with TTL, evicting the least recently used entries
// once the cache is over capacity.
func (c *LRUCache) Set(_ context.Context, scope string, key string, value []byte, ttl time.Duration) error {
	if scope == "" {
		return ErrScopeRequired
	}

	fullKey := scopedKey(scope, key)
	expiresAt := c.now().Add(ttl)

	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[fullKey]
	if !ok {
		elem = c.order.PushFront(&cacheEntry{key: fullKey})
		c.items[fullKey] = elem
	} else {
		c.order.MoveToFront(elem)
	}
	entry := elem.Value.(*cacheEntry)
	entry.value, entry.expiresAt = value, expiresAt

	for c.order.Len() > c.maxSize {
		c.removeElement(c.order.Back())
	}
	return nil
}

func (c *LRUCache) Delete(_ context.Context, scope string, key string) error {
	if scope == "" {
		return ErrScopeRequired
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[scopedKey(scope, key)]; ok {
		c.removeElement(elem)
	}
	return nil
}

func (c *LRUCache) Ping(context.Context) error {
	return nil
}

// Close drops every entry.
func (c *LRUCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]*list.Element)
	c.order = list.New()
	return nil
}

// Stats reports the live entry count and the capacity.
func (c *LRUCache) Stats() (size int, capacity int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len(), c.maxSize
}

func (c *LRUCache) removeElement(elem *list.Element) {
	if elem == nil {
		return
	}
	c.order.Remove(elem)
	delete(c.items, elem.Value.(*cacheEntry).key)
}

func scopedKey(scope, key string) string {
	return scope + ":" + key
}
