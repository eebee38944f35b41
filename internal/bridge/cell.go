// Package bridge moves values between the frame callback and the consumer
// without blocking the frame callback.
//
// Three primitives, one per delivery guarantee:
//
//   - Cell: shared value, tear-free reads, last write wins
//   - Mailbox: single-slot hand-off, overwrite on publish (latest only)
//   - Outbox: FIFO hand-off, never coalesces or drops
//
// Producer-side operations (Store, Put, Push) never wait on the consumer.
package bridge

import "sync/atomic"

// Cell holds the latest value of T. Readers always observe a fully
// written value; each Store publishes a new immutable copy.
type Cell[T any] struct {
	p       atomic.Pointer[T]
	version atomic.Uint64
}

// Store publishes v (last write wins).
func (c *Cell[T]) Store(v T) {
	c.p.Store(&v)
	c.version.Add(1)
}

// Load returns the latest value and whether one was ever stored.
func (c *Cell[T]) Load() (T, bool) {
	p := c.p.Load()
	if p == nil {
		var zero T
		return zero, false
	}
	return *p, true
}

// Version increments on every Store. Readers can poll it to detect change.
func (c *Cell[T]) Version() uint64 {
	return c.version.Load()
}
