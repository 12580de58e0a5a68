// Package cache provides a thread-safe in-memory LFU cache with a
// fixed capacity, used to memoize expensive-to-build player profiles.
package cache

import "sync"

type entry[V any] struct {
	key        string
	value      V
	bucket     *bucket[V]
	prev, next *entry[V]
}

// bucket holds every entry currently at the same access frequency.
// Entries are inserted at the head, so the tail is the oldest member.
type bucket[V any] struct {
	freq       int
	head, tail *entry[V]
	prev, next *bucket[V]
}

// Cache is an LFU cache keyed by opaque strings. Buckets are kept in
// ascending frequency order; a hit moves the entry to the next-higher
// frequency bucket and an insert beyond capacity evicts the
// lowest-frequency bucket's oldest member.
type Cache[V any] struct {
	mu       sync.Mutex
	capacity int
	lookup   map[string]*entry[V]
	head     *bucket[V] // lowest frequency
}

// New creates a cache holding at most capacity entries. A capacity of
// zero or less panics; an unbounded LFU cache has no eviction order to
// speak of.
func New[V any](capacity int) *Cache[V] {
	if capacity <= 0 {
		panic("cache: capacity must be positive")
	}
	return &Cache[V]{
		capacity: capacity,
		lookup:   make(map[string]*entry[V]),
	}
}

// Len returns the number of entries currently cached.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.lookup)
}

// Get returns the cached value and bumps the entry into the
// next-higher frequency bucket. A miss returns the zero value and
// false without mutating anything.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.lookup[key]
	if !ok {
		var zero V
		return zero, false
	}

	c.increment(e)
	return e.value, true
}

// Insert stores value under key. If the key is already present its
// value is replaced and its frequency kept. Inserting a new key at
// capacity evicts the least-frequently-used entry first; new entries
// start at frequency 1.
func (c *Cache[V]) Insert(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.lookup[key]; ok {
		e.value = value
		return
	}

	if len(c.lookup) >= c.capacity {
		c.evict()
	}

	b := c.head
	if b == nil || b.freq != 1 {
		b = &bucket[V]{freq: 1, next: c.head}
		if c.head != nil {
			c.head.prev = b
		}
		c.head = b
	}

	e := &entry[V]{key: key, value: value}
	c.attach(e, b)
	c.lookup[key] = e
}

// Remove drops a single key, if present.
func (c *Cache[V]) Remove(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.lookup[key]
	if !ok {
		return
	}
	c.detach(e)
	delete(c.lookup, key)
}

// Clear drops every entry.
func (c *Cache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lookup = make(map[string]*entry[V])
	c.head = nil
}

// increment moves e from its bucket into the bucket with frequency+1,
// splicing a new bucket immediately after the current one when the
// neighbor's frequency doesn't line up.
func (c *Cache[V]) increment(e *entry[V]) {
	cur := e.bucket
	next := cur.next

	if next == nil || next.freq != cur.freq+1 {
		next = &bucket[V]{freq: cur.freq + 1, prev: cur, next: cur.next}
		if cur.next != nil {
			cur.next.prev = next
		}
		cur.next = next
	}

	c.detach(e)
	c.attach(e, next)
}

// attach inserts e at the head of b.
func (c *Cache[V]) attach(e *entry[V], b *bucket[V]) {
	e.bucket = b
	e.prev = nil
	e.next = b.head
	if b.head != nil {
		b.head.prev = e
	}
	b.head = e
	if b.tail == nil {
		b.tail = e
	}
}

// detach unlinks e from its bucket and drops the bucket when it
// becomes empty.
func (c *Cache[V]) detach(e *entry[V]) {
	b := e.bucket
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		b.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		b.tail = e.prev
	}
	e.prev, e.next, e.bucket = nil, nil, nil

	if b.head == nil {
		if b.prev != nil {
			b.prev.next = b.next
		} else {
			c.head = b.next
		}
		if b.next != nil {
			b.next.prev = b.prev
		}
	}
}

// evict removes the oldest member of the lowest-frequency bucket.
func (c *Cache[V]) evict() {
	if c.head == nil || c.head.tail == nil {
		return
	}
	victim := c.head.tail
	c.detach(victim)
	delete(c.lookup, victim.key)
}
