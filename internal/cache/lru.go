// internal/cache/lru.go
//
// Small least-recently-used cache with optional per-entry TTL.  The sync
// orchestrator keeps resolved default-list ids here so a burst of card
// creates for one board costs a single provider lookup.  Safe for
// concurrent use.
package cache

import (
	"container/list"
	"sync"
	"time"
)

// LRU is a generic least-recently-used cache.  A zero ttl means entries
// never expire and are only dropped by capacity pressure.
type LRU[K comparable, V any] struct {
	mu   sync.Mutex
	cap  int
	ttl  time.Duration
	now  func() time.Time
	ll   *list.List
	dict map[K]*list.Element
}

type pair[K comparable, V any] struct {
	key K
	val V
	exp time.Time
}

// New returns an LRU with the given capacity and ttl.  Panics on cap < 1.
func New[K comparable, V any](capacity int, ttl time.Duration) *LRU[K, V] {
	if capacity < 1 {
		panic("cache: capacity must be ≥1")
	}
	return &LRU[K, V]{
		cap:  capacity,
		ttl:  ttl,
		now:  time.Now,
		ll:   list.New(),
		dict: make(map[K]*list.Element, capacity),
	}
}

// Get retrieves a live value and marks it MRU.  Expired entries are
// removed on access.
func (c *LRU[K, V]) Get(key K) (val V, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ele, hit := c.dict[key]
	if !hit {
		return val, false
	}
	p := ele.Value.(pair[K, V])
	if c.ttl > 0 && c.now().After(p.exp) {
		c.ll.Remove(ele)
		delete(c.dict, key)
		return val, false
	}
	c.ll.MoveToFront(ele)
	return p.val, true
}

// Add inserts or updates a value.
func (c *LRU[K, V]) Add(key K, val V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	p := pair[K, V]{key: key, val: val}
	if c.ttl > 0 {
		p.exp = c.now().Add(c.ttl)
	}
	if ele, hit := c.dict[key]; hit {
		ele.Value = p
		c.ll.MoveToFront(ele)
		return
	}
	c.dict[key] = c.ll.PushFront(p)
	if c.ll.Len() > c.cap {
		last := c.ll.Back()
		c.ll.Remove(last)
		delete(c.dict, last.Value.(pair[K, V]).key)
	}
}

// Remove drops key if present.
func (c *LRU[K, V]) Remove(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ele, hit := c.dict[key]; hit {
		c.ll.Remove(ele)
		delete(c.dict, key)
	}
}

// Len reports current size, including entries not yet found expired.
func (c *LRU[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}
