package util

import (
	"fmt"
	"strings"
	"sync"
)

/*
LRU is a fixed-capacity cache with least-recently-used eviction. The buffer
manager uses it to hold pages read back from spill storage, so repeated reads
over the same spilled range do not go back to the provider each time.
*/

////////////////////////////////////////////////////////////////////////////////

// LRU is a simple LRU cache, safe for concurrent use.
type LRU[K comparable, V any] struct {
	entries    map[K]*lruEntry[K, V]
	head, tail *lruEntry[K, V]
	capacity   int
	mtx        *sync.Mutex
}

type lruEntry[K comparable, V any] struct {
	key        K
	value      V
	prev, next *lruEntry[K, V]
}

// NewLRU returns a new LRU cache holding at most capacity entries.
func NewLRU[K comparable, V any](capacity int) *LRU[K, V] {
	head, tail := &lruEntry[K, V]{}, &lruEntry[K, V]{}
	head.next = tail
	tail.prev = head
	return &LRU[K, V]{
		entries:  make(map[K]*lruEntry[K, V]),
		head:     head,
		tail:     tail,
		capacity: capacity,
		mtx:      &sync.Mutex{},
	}
}

// Put adds or replaces an entry, marking it most recently used.
func (c *LRU[K, V]) Put(key K, value V) {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	if e, ok := c.entries[key]; ok {
		e.value = value
		c.unlink(e)
		c.pushFront(e)
		return
	}
	e := &lruEntry[K, V]{key: key, value: value}
	c.entries[key] = e
	c.pushFront(e)
	for len(c.entries) > c.capacity {
		c.evictOldest()
	}
}

// Get returns the value associated with key, marking it most recently used.
func (c *LRU[K, V]) Get(key K) (V, bool) {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	e, ok := c.entries[key]
	if !ok {
		var zero V
		return zero, false
	}
	c.unlink(e)
	c.pushFront(e)
	return e.value, true
}

// Delete removes key from the cache if present.
func (c *LRU[K, V]) Delete(key K) {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	if e, ok := c.entries[key]; ok {
		c.unlink(e)
		delete(c.entries, key)
	}
}

// Len returns the number of cached entries.
func (c *LRU[K, V]) Len() int {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	return len(c.entries)
}

// Reset clears the cache.
func (c *LRU[K, V]) Reset() {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	c.entries = make(map[K]*lruEntry[K, V])
	c.head.next = c.tail
	c.tail.prev = c.head
}

func (c *LRU[K, V]) pushFront(e *lruEntry[K, V]) {
	e.next = c.head.next
	e.prev = c.head
	c.head.next.prev = e
	c.head.next = e
}

func (c *LRU[K, V]) unlink(e *lruEntry[K, V]) {
	e.prev.next = e.next
	e.next.prev = e.prev
}

func (c *LRU[K, V]) evictOldest() {
	oldest := c.tail.prev
	if oldest == c.head {
		return
	}
	c.unlink(oldest)
	delete(c.entries, oldest.key)
}

// String returns a string representation of the cache, most recent first.
func (c *LRU[K, V]) String() string {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	sb := &strings.Builder{}
	sb.WriteString(fmt.Sprintf("(%d/%d) [", len(c.entries), c.capacity))
	for e := c.head.next; e != c.tail; e = e.next {
		sb.WriteString(fmt.Sprintf("%v:%v", e.key, e.value))
		if e.next != c.tail {
			sb.WriteString(" ")
		}
	}
	sb.WriteString("]")
	return sb.String()
}
