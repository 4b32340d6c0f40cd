package cache

import (
	"container/list"
	"sync"
	"time"
)

// record is a cached value with its expiry deadline
type record[K comparable, V any] struct {
	key      K
	value    V
	deadline time.Time
}

// TTLCache is a thread-safe LRU cache whose entries also expire after a
// fixed TTL. It is used to memoize geo lookups so repeat visitors from
// the same address do not trigger repeat upstream calls.
type TTLCache[K comparable, V any] struct {
	capacity int
	ttl      time.Duration

	mu      sync.Mutex
	entries map[K]*list.Element
	recency *list.List // front = most recently used
}

// New creates a cache holding at most capacity entries, each valid for ttl
func New[K comparable, V any](capacity int, ttl time.Duration) *TTLCache[K, V] {
	return &TTLCache[K, V]{
		capacity: capacity,
		ttl:      ttl,
		entries:  make(map[K]*list.Element),
		recency:  list.New(),
	}
}

// Get returns the cached value for key, if present and not expired
func (c *TTLCache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	elem, ok := c.entries[key]
	if !ok {
		return zero, false
	}

	rec := elem.Value.(*record[K, V])
	if time.Now().After(rec.deadline) {
		c.drop(elem)
		return zero, false
	}

	c.recency.MoveToFront(elem)
	return rec.value, true
}

// Put stores a value, refreshing its TTL and evicting the least
// recently used entry when the cache is full
func (c *TTLCache[K, V]) Put(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[key]; ok {
		rec := elem.Value.(*record[K, V])
		rec.value = value
		rec.deadline = time.Now().Add(c.ttl)
		c.recency.MoveToFront(elem)
		return
	}

	if c.recency.Len() >= c.capacity {
		if oldest := c.recency.Back(); oldest != nil {
			c.drop(oldest)
		}
	}

	elem := c.recency.PushFront(&record[K, V]{
		key:      key,
		value:    value,
		deadline: time.Now().Add(c.ttl),
	})
	c.entries[key] = elem
}

// Remove deletes a key from the cache
func (c *TTLCache[K, V]) Remove(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[key]; ok {
		c.drop(elem)
	}
}

// Len returns the number of entries currently held, including any that
// have expired but not yet been evicted
func (c *TTLCache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.recency.Len()
}

// Purge discards every entry
func (c *TTLCache[K, V]) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[K]*list.Element)
	c.recency.Init()
}

// drop removes an element; callers must hold the lock
func (c *TTLCache[K, V]) drop(elem *list.Element) {
	c.recency.Remove(elem)
	rec := elem.Value.(*record[K, V])
	delete(c.entries, rec.key)
}
