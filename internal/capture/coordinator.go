package capture

import (
	"sync/atomic"
	"time"
)

// Options configures a Coordinator.
type Options struct {
	// RetryBudget is the number of extraction attempts per armed cycle.
	// Values < 1 are treated as 1 (fail on first empty extraction).
	RetryBudget int

	// ArmTimeout fails an armed cycle that produced nothing in time.
	// Zero disables the timeout.
	ArmTimeout time.Duration

	// Now overrides the clock (tests).
	Now func() time.Time
}

// Claim is the producer's exclusive right to run one extraction attempt.
type Claim struct {
	Cycle   uint64
	Attempt int
}

// Outcome describes what a Fail did to the cycle.
type Outcome int

const (
	// Cancelled: the consumer reset the cycle while the attempt was in flight.
	Cancelled Outcome = iota
	// Retry: the cycle is Armed again and the next frame will retry.
	Retry
	// Exhausted: the retry budget is spent and the cycle fell back to Idle.
	Exhausted
)

// Coordinator guarantees at most one successful extraction per armed cycle.
//
// Writer discipline:
//   - Consumer: Arm, Reset
//   - Producer (frame callback): Claim, Succeed, Fail, Expire
//
// Every transition is a CAS on one word; the producer never blocks.
type Coordinator struct {
	word atomic.Uint64

	// armedAt is written by Arm before the CAS publishing Armed.
	armedAt atomic.Int64

	// dismissed is the highest cycle the consumer left through Reset.
	dismissed atomic.Uint64

	// Producer-owned attempt tracking (single writer).
	attemptCycle uint64
	attempts     int

	retryBudget int
	armTimeout  time.Duration
	now         func() time.Time
}

// NewCoordinator returns a coordinator in Idle at cycle 0.
func NewCoordinator(opts Options) *Coordinator {
	if opts.RetryBudget < 1 {
		opts.RetryBudget = 1
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Coordinator{
		retryBudget: opts.RetryBudget,
		armTimeout:  opts.ArmTimeout,
		now:         opts.Now,
	}
}

// Arm moves Idle → Armed and returns the new cycle number.
// Returns ErrCaptureBusy from any other state.
func (c *Coordinator) Arm() (uint64, error) {
	for {
		w := c.word.Load()
		cycle, s, _ := unpack(w)
		if s != Idle {
			return 0, ErrCaptureBusy
		}
		c.armedAt.Store(c.now().UnixNano())
		next := cycle + 1
		if c.word.CompareAndSwap(w, pack(next, Armed, false)) {
			return next, nil
		}
	}
}

// Reset returns to Idle from any state and starts a new cycle number,
// so results still in flight for the old cycle are recognised as stale.
// Returns the state that was left.
func (c *Coordinator) Reset() State {
	for {
		w := c.word.Load()
		cycle, s, _ := unpack(w)
		if c.word.CompareAndSwap(w, pack(cycle+1, Idle, false)) {
			c.markDismissed(cycle)
			return s
		}
	}
}

func (c *Coordinator) markDismissed(cycle uint64) {
	for {
		cur := c.dismissed.Load()
		if cycle <= cur || c.dismissed.CompareAndSwap(cur, cycle) {
			return
		}
	}
}

// Claim clears the arm flag for the current cycle (Armed and not in flight)
// and grants one extraction attempt. Only one Claim per Armed phase succeeds.
func (c *Coordinator) Claim() (Claim, bool) {
	w := c.word.Load()
	cycle, s, inflight := unpack(w)
	if s != Armed || inflight {
		return Claim{}, false
	}
	if !c.word.CompareAndSwap(w, pack(cycle, Armed, true)) {
		return Claim{}, false
	}

	if c.attemptCycle != cycle {
		c.attemptCycle = cycle
		c.attempts = 0
	}
	c.attempts++
	return Claim{Cycle: cycle, Attempt: c.attempts}, true
}

// Succeed moves the claimed cycle to Captured.
// Returns false when the consumer reset the cycle meanwhile.
func (c *Coordinator) Succeed(cl Claim) bool {
	return c.word.CompareAndSwap(pack(cl.Cycle, Armed, true), pack(cl.Cycle, Captured, false))
}

// Fail records an empty extraction for the claimed cycle.
func (c *Coordinator) Fail(cl Claim) Outcome {
	from := pack(cl.Cycle, Armed, true)
	if cl.Attempt < c.retryBudget {
		if c.word.CompareAndSwap(from, pack(cl.Cycle, Armed, false)) {
			return Retry
		}
		return Cancelled
	}
	if c.word.CompareAndSwap(from, pack(cl.Cycle, Idle, false)) {
		return Exhausted
	}
	return Cancelled
}

// Expire fails the current armed cycle when it has waited longer than
// ArmTimeout. Returns the expired cycle.
func (c *Coordinator) Expire() (uint64, bool) {
	if c.armTimeout <= 0 {
		return 0, false
	}
	w := c.word.Load()
	cycle, s, inflight := unpack(w)
	if s != Armed || inflight {
		return 0, false
	}
	armedAt := time.Unix(0, c.armedAt.Load())
	if c.now().Sub(armedAt) < c.armTimeout {
		return 0, false
	}
	if c.word.CompareAndSwap(w, pack(cycle, Idle, false)) {
		return cycle, true
	}
	return 0, false
}

// State returns the current phase and cycle.
func (c *Coordinator) State() (State, uint64) {
	cycle, s, _ := unpack(c.word.Load())
	return s, cycle
}

// Current reports whether cycle is still the active cycle in state s.
func (c *Coordinator) Current(cycle uint64, s State) bool {
	cur, st, _ := unpack(c.word.Load())
	return cur == cycle && st == s
}

// Dismissed reports whether the consumer called Reset on or after cycle.
// Events of a dismissed cycle are stale; events of a cycle that merely
// ended (failure, timeout) and was followed by a new Arm are not.
func (c *Coordinator) Dismissed(cycle uint64) bool {
	return cycle <= c.dismissed.Load()
}

// RetryBudget returns the configured attempts per cycle.
func (c *Coordinator) RetryBudget() int {
	return c.retryBudget
}
