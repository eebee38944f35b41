package pipeline

import (
	"fmt"
	"sync/atomic"
)

// counters are written by one context each and read by Stats.
type counters struct {
	// producer
	frames           atomic.Uint64
	rejected         atomic.Uint64
	ambiguous        atomic.Uint64
	recomputes       atomic.Uint64
	attempts         atomic.Uint64
	emptyExtractions atomic.Uint64
	captures         atomic.Uint64
	failures         atomic.Uint64
	timeouts         atomic.Uint64
	cancelled        atomic.Uint64

	// consumer
	arms      atomic.Uint64
	delivered atomic.Uint64
	late      atomic.Uint64

	// events refused by a stopped outbox
	undeliverable atomic.Uint64
}

// Stats is a snapshot of scanner operational state.
type Stats struct {
	State string `json:"state"`
	Cycle uint64 `json:"cycle"`

	FramesProcessed      uint64 `json:"frames_processed"`
	FramesRejected       uint64 `json:"frames_rejected"`
	OrientationAmbiguous uint64 `json:"orientation_ambiguous"`
	GeometryRecomputes   uint64 `json:"geometry_recomputes"`

	// RegionUpdatesCoalesced counts regions overwritten before the consumer saw them.
	RegionUpdatesCoalesced uint64 `json:"region_updates_coalesced"`

	Arms               uint64 `json:"arms"`
	ExtractionAttempts uint64 `json:"extraction_attempts"`
	EmptyExtractions   uint64 `json:"empty_extractions"`
	Captures           uint64 `json:"captures"`
	Failures           uint64 `json:"failures"`
	ArmTimeouts        uint64 `json:"arm_timeouts"`
	CancelledInFlight  uint64 `json:"cancelled_in_flight"`

	EventsDelivered     uint64 `json:"events_delivered"`
	LateDiscarded       uint64 `json:"late_discarded"`
	EventsPending       int    `json:"events_pending"`
	EventsUndeliverable uint64 `json:"events_undeliverable"`
}

// Stats returns a snapshot. Safe for concurrent use; values may be
// slightly inconsistent with each other (monitoring only).
func (s *Scanner) Stats() Stats {
	state, cycle := s.coord.State()
	_, coalesced := s.regionBox.Stats()

	return Stats{
		State:                  state.String(),
		Cycle:                  cycle,
		FramesProcessed:        s.stats.frames.Load(),
		FramesRejected:         s.stats.rejected.Load(),
		OrientationAmbiguous:   s.stats.ambiguous.Load(),
		GeometryRecomputes:     s.stats.recomputes.Load(),
		RegionUpdatesCoalesced: coalesced,
		Arms:                   s.stats.arms.Load(),
		ExtractionAttempts:     s.stats.attempts.Load(),
		EmptyExtractions:       s.stats.emptyExtractions.Load(),
		Captures:               s.stats.captures.Load(),
		Failures:               s.stats.failures.Load(),
		ArmTimeouts:            s.stats.timeouts.Load(),
		CancelledInFlight:      s.stats.cancelled.Load(),
		EventsDelivered:        s.stats.delivered.Load(),
		LateDiscarded:          s.stats.late.Load(),
		EventsPending:          s.outbox.Len(),
		EventsUndeliverable:    s.stats.undeliverable.Load(),
	}
}

// String is a compact one-line summary for logs.
func (st Stats) String() string {
	return fmt.Sprintf("frames=%d rejected=%d recomputes=%d arms=%d attempts=%d captures=%d failures=%d timeouts=%d late=%d",
		st.FramesProcessed, st.FramesRejected, st.GeometryRecomputes, st.Arms,
		st.ExtractionAttempts, st.Captures, st.Failures, st.ArmTimeouts, st.LateDiscarded)
}
