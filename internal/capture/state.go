// Package capture coordinates single-shot image extraction between the
// frame callback (producer) and the UI layer (consumer).
//
// State machine:
//
//	Idle ──Arm──▶ Armed ──Succeed──▶ Captured ──Reset──▶ Idle
//	                │  ▲
//	           Claim│  │Fail (budget left)
//	                ▼  │
//	            (in flight) ──Fail (exhausted) / Expire──▶ Idle
//
// The whole state (phase, in-flight bit, cycle number) lives in a single
// atomic word, so every transition is one compare-and-swap and no
// transition can be lost between the two contexts.
package capture

import "errors"

var (
	// ErrCaptureBusy is returned by Arm when the coordinator is not Idle.
	ErrCaptureBusy = errors.New("capture: previous cycle not finished")

	// ErrExtractionFailed is surfaced when every attempt of a cycle returned no image.
	ErrExtractionFailed = errors.New("capture: extraction returned no image")

	// ErrArmTimeout is surfaced when an armed cycle produced nothing in time.
	ErrArmTimeout = errors.New("capture: armed cycle timed out")
)

// State is the externally visible capture phase.
type State int32

const (
	// Idle: no pending capture, the frame callback only maintains geometry.
	Idle State = iota
	// Armed: a capture was requested and not yet fulfilled.
	Armed
	// Captured: a result was produced and awaits acknowledgement.
	Captured
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Armed:
		return "armed"
	case Captured:
		return "captured"
	default:
		return "unknown"
	}
}

// Word layout: bits 0-1 state, bit 2 in-flight, bits 3.. cycle.
const (
	stateMask   = 0x3
	inflightBit = 0x4
	cycleShift  = 3
)

func pack(cycle uint64, s State, inflight bool) uint64 {
	w := cycle<<cycleShift | uint64(s)&stateMask
	if inflight {
		w |= inflightBit
	}
	return w
}

func unpack(w uint64) (cycle uint64, s State, inflight bool) {
	return w >> cycleShift, State(w & stateMask), w&inflightBit != 0
}
