// internal/cache/lru.go
//
// Small generic LRU used by the board controller to bound the number of
// drops waiting on auxiliary data.  Not safe for concurrent use; callers
// hold their own lock.
package cache

import "container/list"

// LRU is a least-recently-used map with an optional eviction hook.
type LRU[K comparable, V any] struct {
	cap     int
	ll      *list.List
	dict    map[K]*list.Element
	onEvict func(K, V)
}

type pair[K comparable, V any] struct {
	key K
	val V
}

// New returns an LRU with the given capacity.  Panics on cap < 1.
func New[K comparable, V any](capacity int, onEvict func(K, V)) *LRU[K, V] {
	if capacity < 1 {
		panic("cache: capacity must be ≥1")
	}
	return &LRU[K, V]{
		cap:     capacity,
		ll:      list.New(),
		dict:    make(map[K]*list.Element, capacity),
		onEvict: onEvict,
	}
}

// Get retrieves a value and marks it MRU.
func (c *LRU[K, V]) Get(key K) (val V, ok bool) {
	if ele, hit := c.dict[key]; hit {
		c.ll.MoveToFront(ele)
		return ele.Value.(pair[K, V]).val, true
	}
	return val, false
}

// Peek retrieves a value without touching recency.
func (c *LRU[K, V]) Peek(key K) (val V, ok bool) {
	if ele, hit := c.dict[key]; hit {
		return ele.Value.(pair[K, V]).val, true
	}
	return val, false
}

// Add inserts or updates a value.  Overflow evicts the LRU entry and calls
// onEvict after it has been unlinked.
func (c *LRU[K, V]) Add(key K, val V) {
	if ele, hit := c.dict[key]; hit {
		ele.Value = pair[K, V]{key, val}
		c.ll.MoveToFront(ele)
		return
	}
	ele := c.ll.PushFront(pair[K, V]{key, val})
	c.dict[key] = ele
	if c.ll.Len() > c.cap {
		last := c.ll.Back()
		c.ll.Remove(last)
		p := last.Value.(pair[K, V])
		delete(c.dict, p.key)
		if c.onEvict != nil {
			c.onEvict(p.key, p.val)
		}
	}
}

// Remove deletes key without calling onEvict.
func (c *LRU[K, V]) Remove(key K) bool {
	if ele, hit := c.dict[key]; hit {
		c.ll.Remove(ele)
		delete(c.dict, key)
		return true
	}
	return false
}

// Keys lists keys from most to least recently used.
func (c *LRU[K, V]) Keys() []K {
	out := make([]K, 0, c.ll.Len())
	for e := c.ll.Front(); e != nil; e = e.Next() {
		out = append(out, e.Value.(pair[K, V]).key)
	}
	return out
}

// Len reports current size.
func (c *LRU[K, V]) Len() int { return c.ll.Len() }
