// Package cache provides bounded caches used to protect the vote and
// transaction pipelines from unbounded growth.
package cache

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/hashicorp/golang-lru/v2/simplelru"
)

// Seen is a size and time bounded set. It answers "has this key been
// observed recently" and is safe for concurrent use. Expired keys are
// dropped lazily on lookup; Seen owns no goroutines.
type Seen[K comparable] struct {
	mtx   sync.Mutex
	ttl   time.Duration
	clock clock.Clock
	lru   *simplelru.LRU[K, time.Time]
}

// NewSeen returns a set holding at most size keys, each for at most ttl as
// measured by clk. A zero ttl disables expiry.
func NewSeen[K comparable](size int, ttl time.Duration, clk clock.Clock) *Seen[K] {
	l, err := simplelru.NewLRU[K, time.Time](size, nil)
	if err != nil {
		panic(err) // only for non-positive size
	}
	return &Seen[K]{ttl: ttl, clock: clk, lru: l}
}

// Push records key and reports whether it was already present.
func (s *Seen[K]) Push(key K) bool {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	if s.has(key) {
		return true
	}
	s.lru.Add(key, s.clock.Now())
	return false
}

// Has reports whether key was pushed and has not expired.
func (s *Seen[K]) Has(key K) bool {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return s.has(key)
}

func (s *Seen[K]) has(key K) bool {
	added, ok := s.lru.Peek(key)
	if !ok {
		return false
	}
	if s.ttl > 0 && s.clock.Since(added) >= s.ttl {
		s.lru.Remove(key)
		return false
	}
	return true
}

func (s *Seen[K]) Remove(key K) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.lru.Remove(key)
}

// Len counts stored keys, including expired ones not yet looked up.
func (s *Seen[K]) Len() int {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return s.lru.Len()
}

// Bounded is an LRU map with explicit eviction: Put returns the entry it had
// to evict so the caller can report it. Not safe for concurrent use.
type Bounded[K comparable, V any] struct {
	size int
	lru  *simplelru.LRU[K, V]
}

// NewBounded returns a map holding at most size entries.
func NewBounded[K comparable, V any](size int) *Bounded[K, V] {
	l, err := simplelru.NewLRU[K, V](size, nil)
	if err != nil {
		panic(err) // only for non-positive size
	}
	return &Bounded[K, V]{size: size, lru: l}
}

// Put stores value under key. When a new key does not fit, the least recently
// used entry is evicted and returned.
func (b *Bounded[K, V]) Put(key K, value V) (evictedKey K, evicted V, ok bool) {
	if !b.lru.Contains(key) && b.lru.Len() >= b.size {
		evictedKey, evicted, ok = b.lru.RemoveOldest()
	}
	b.lru.Add(key, value)
	return evictedKey, evicted, ok
}

func (b *Bounded[K, V]) Get(key K) (V, bool) { return b.lru.Peek(key) }
func (b *Bounded[K, V]) Remove(key K) bool   { return b.lru.Remove(key) }
func (b *Bounded[K, V]) Len() int            { return b.lru.Len() }
func (b *Bounded[K, V]) Contains(key K) bool { return b.lru.Contains(key) }
