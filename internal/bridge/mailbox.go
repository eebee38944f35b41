package bridge

import "sync"

// Mailbox is a single-slot buffer with overwrite semantics.
//
// Put never blocks: a new value replaces an unconsumed one and the
// replaced value is counted as dropped. Receive blocks until a value is
// available or the mailbox is closed.
//
// Used for geometry updates: a slow consumer only ever needs the latest region.
type Mailbox[T any] struct {
	mu     sync.Mutex
	cond   *sync.Cond
	value  T
	full   bool
	closed bool

	puts  uint64
	drops uint64
}

// NewMailbox returns an empty, open mailbox.
func NewMailbox[T any]() *Mailbox[T] {
	m := &Mailbox[T]{}
	m.cond = sync.NewCond(&m.mu)
	return m
}

// Put stores v, replacing any unconsumed value. No-op after Close.
func (m *Mailbox[T]) Put(v T) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}
	if m.full {
		m.drops++
	}
	m.value = v
	m.full = true
	m.puts++
	m.cond.Signal()
}

// Receive blocks until a value is available. Returns false once closed.
// Single consumer only.
func (m *Mailbox[T]) Receive() (T, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for !m.full && !m.closed {
		m.cond.Wait()
	}
	return m.take()
}

// TryReceive returns the pending value without blocking.
func (m *Mailbox[T]) TryReceive() (T, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.full {
		var zero T
		return zero, false
	}
	return m.take()
}

// take consumes the slot. Caller holds mu.
func (m *Mailbox[T]) take() (T, bool) {
	var zero T
	if m.closed {
		return zero, false
	}
	v := m.value
	m.value = zero
	m.full = false
	return v, true
}

// Close wakes a blocked Receive, which then returns false. Idempotent.
func (m *Mailbox[T]) Close() {
	m.mu.Lock()
	m.closed = true
	m.cond.Broadcast()
	m.mu.Unlock()
}

// Stats returns total puts and values overwritten before consumption.
func (m *Mailbox[T]) Stats() (puts, drops uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.puts, m.drops
}
