package realtime

import (
	"errors"
	"sync"
	"time"
)

var (
	ErrNilSnapshot   = errors.New("nil snapshot")
	ErrStaleSnapshot = errors.New("stale snapshot")
)

// ViewCache holds a client-side mirror of a server collection, guarding
// against transport glitches that would wipe a populated view. The
// first snapshot is always accepted, empty or not. After that, an
// empty snapshot replacing a non-empty cache is treated as a transport
// stall and rejected; an intentionally emptied collection shrinks one
// element at a time and never hits this rule.
type ViewCache[T any] struct {
	mu     sync.RWMutex
	items  []T
	seeded bool
	// stamp extracts a freshness marker; when set, snapshots older
	// than the current view are rejected.
	stamp func(items []T) time.Time
}

func NewViewCache[T any]() *ViewCache[T] {
	return &ViewCache[T]{}
}

// NewStampedViewCache also rejects snapshots whose newest item is older
// than the cached view's newest item.
func NewStampedViewCache[T any](stamp func(items []T) time.Time) *ViewCache[T] {
	return &ViewCache[T]{stamp: stamp}
}

// Apply replaces the cached view with the snapshot if it passes the
// staleness checks.
func (c *ViewCache[T]) Apply(snapshot []T) error {
	if snapshot == nil {
		return ErrNilSnapshot
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.seeded && len(snapshot) == 0 && len(c.items) > 0 {
		return ErrStaleSnapshot
	}
	if c.stamp != nil && c.seeded && len(snapshot) > 0 && len(c.items) > 0 {
		if c.stamp(snapshot).Before(c.stamp(c.items)) {
			return ErrStaleSnapshot
		}
	}

	c.items = make([]T, len(snapshot))
	copy(c.items, snapshot)
	c.seeded = true
	return nil
}

// Items returns a copy of the current view.
func (c *ViewCache[T]) Items() []T {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]T, len(c.items))
	copy(out, c.items)
	return out
}

func (c *ViewCache[T]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Reset clears the cache and re-arms the initial-snapshot acceptance.
func (c *ViewCache[T]) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = nil
	c.seeded = false
}
