// Package state holds read-only cached copies of on-chain entities and
// exposes the engine's derivations as selectors over them.
//
// Mutation is confined to applying a fresh snapshot. Each fetch reserves a
// sequence number before it starts; a response is applied only if no later
// fetch has already been applied, so the most recently issued read wins no
// matter in which order responses arrive.
package state

import (
	"context"
	"sync"
	"time"
)

// Snapshot is one applied read.
type Snapshot[T any] struct {
	Value     T
	Seq       uint64
	FetchedAt time.Time
}

// Cache holds the latest snapshot of a single entity.
type Cache[T any] struct {
	mu   sync.RWMutex
	next uint64
	snap Snapshot[T]
	has  bool
}

// Begin reserves the sequence number of a fetch about to be issued.
func (c *Cache[T]) Begin() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.next++
	return c.next
}

// Apply stores v if seq is not older than the snapshot already held. It
// reports whether v was stored.
func (c *Cache[T]) Apply(seq uint64, v T, at time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.has && seq < c.snap.Seq {
		return false
	}
	c.snap = Snapshot[T]{Value: v, Seq: seq, FetchedAt: at}
	c.has = true
	return true
}

// Set applies v as the newest snapshot, bypassing fetch ordering.
func (c *Cache[T]) Set(v T, at time.Time) {
	c.Apply(c.Begin(), v, at)
}

// Get returns the held snapshot; ok is false when nothing was ever applied.
func (c *Cache[T]) Get() (Snapshot[T], bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snap, c.has
}

// Value returns the held value or the zero value when absent.
func (c *Cache[T]) Value() T {
	s, _ := c.Get()
	return s.Value
}

// Stale reports whether the snapshot is absent or older than maxAge.
func (c *Cache[T]) Stale(now time.Time, maxAge time.Duration) bool {
	s, ok := c.Get()
	return !ok || now.Sub(s.FetchedAt) > maxAge
}

// Fetch runs fn and applies its result under a freshly reserved sequence.
// On error the previous snapshot is kept. applied is false when a newer
// fetch completed first.
func Fetch[T any](ctx context.Context, c *Cache[T], now func() time.Time, fn func(context.Context) (T, error)) (applied bool, err error) {
	seq := c.Begin()
	v, err := fn(ctx)
	if err != nil {
		return false, err
	}
	return c.Apply(seq, v, now()), nil
}

// Keyed is a set of caches addressed by key, created on first use.
type Keyed[K comparable, T any] struct {
	mu     sync.Mutex
	caches map[K]*Cache[T]
}

// At returns the cache for key, creating it if needed.
func (k *Keyed[K, T]) At(key K) *Cache[T] {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.caches == nil {
		k.caches = make(map[K]*Cache[T])
	}
	c, ok := k.caches[key]
	if !ok {
		c = &Cache[T]{}
		k.caches[key] = c
	}
	return c
}

// Values returns every present value by key.
func (k *Keyed[K, T]) Values() map[K]T {
	k.mu.Lock()
	caches := make(map[K]*Cache[T], len(k.caches))
	for key, c := range k.caches {
		caches[key] = c
	}
	k.mu.Unlock()

	out := make(map[K]T, len(caches))
	for key, c := range caches {
		if s, ok := c.Get(); ok {
			out[key] = s.Value
		}
	}
	return out
}
