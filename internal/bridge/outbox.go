package bridge

import "sync"

// Outbox is a FIFO hand-off that never coalesces or drops.
//
// Push never blocks. The queue is bounded by admission instead of by
// dropping: producers of Outbox items must check Full before starting
// work that will end in a Push (the scanner refuses to arm while the
// outbox is full), so the backlog can not exceed capacity in practice.
// A Push past capacity is still accepted and counted in Overflows.
type Outbox[T any] struct {
	mu       sync.Mutex
	cond     *sync.Cond
	items    []T
	capacity int
	closed   bool

	pushed    uint64
	overflows uint64
}

// NewOutbox returns an outbox admitting up to capacity pending items.
func NewOutbox[T any](capacity int) *Outbox[T] {
	if capacity < 1 {
		capacity = 1
	}
	o := &Outbox[T]{
		items:    make([]T, 0, capacity),
		capacity: capacity,
	}
	o.cond = sync.NewCond(&o.mu)
	return o
}

// Push appends v. Returns false only after Close.
func (o *Outbox[T]) Push(v T) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return false
	}
	if len(o.items) >= o.capacity {
		o.overflows++
	}
	o.items = append(o.items, v)
	o.pushed++
	o.cond.Signal()
	return true
}

// Receive blocks until an item is available and returns the oldest one.
// After Close, remaining items are still drained; false means closed and empty.
func (o *Outbox[T]) Receive() (T, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	for len(o.items) == 0 && !o.closed {
		o.cond.Wait()
	}
	if len(o.items) == 0 {
		var zero T
		return zero, false
	}
	v := o.items[0]
	var zero T
	o.items[0] = zero
	o.items = o.items[1:]
	return v, true
}

// Len returns the number of pending items.
func (o *Outbox[T]) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.items)
}

// Full reports whether the backlog reached capacity.
func (o *Outbox[T]) Full() bool {
	return o.Len() >= o.capacity
}

// Close stops accepting items and wakes a blocked Receive. Idempotent.
func (o *Outbox[T]) Close() {
	o.mu.Lock()
	o.closed = true
	o.cond.Broadcast()
	o.mu.Unlock()
}

// Stats returns total pushes and pushes accepted past capacity.
func (o *Outbox[T]) Stats() (pushed, overflows uint64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.pushed, o.overflows
}
