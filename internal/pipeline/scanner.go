package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/e7canasta/orion-care-sensor/modules/docscan/internal/bridge"
	"github.com/e7canasta/orion-care-sensor/modules/docscan/internal/capture"
	"github.com/e7canasta/orion-care-sensor/modules/docscan/internal/geometry"
	"github.com/e7canasta/orion-care-sensor/modules/docscan/internal/orientation"
)

// Scanner is the concrete implementation of docscan.Scanner.
//
// Goroutine topology:
//   - 1 external: the frame callback calling ProcessFrame (producer)
//   - 2 fixed: regionLoop and eventLoop (spawned by Start, stopped by Stop)
//   - N external: UI callers of Arm/Acknowledge/SetViewport (consumer)
//
// ProcessFrame must be called from a single goroutine. Everything else is
// safe for concurrent use.
type Scanner struct {
	opts   Options
	logger *slog.Logger

	// --- Producer-owned ---

	engine          *geometry.Engine
	ambiguousLogged bool
	lastGeomErr     error

	// --- Shared ---

	viewport bridge.Cell[orientation.Context]
	region   bridge.Cell[RegionUpdate]
	coord    *capture.Coordinator

	regionBox *bridge.Mailbox[RegionUpdate]
	outbox    *bridge.Outbox[event]

	stats counters

	// --- Lifecycle ---

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	startedMu sync.Mutex
	started   bool
	stopped   atomic.Bool
}

// NewScanner validates opts and returns a scanner in Idle with no region.
func NewScanner(opts Options) (*Scanner, error) {
	if opts.Extractor == nil {
		return nil, ErrNoExtractor
	}
	opts.setDefaults()

	engine, err := geometry.NewEngine(opts.Aspect, opts.Layout, opts.Overflow)
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}

	s := &Scanner{
		opts:   opts,
		logger: opts.Logger.With("component", "docscan", "mode", opts.Mode.String()),
		engine: engine,
		coord: capture.NewCoordinator(capture.Options{
			RetryBudget: opts.RetryBudget,
			ArmTimeout:  opts.ArmTimeout,
			Now:         opts.Now,
		}),
		regionBox: bridge.NewMailbox[RegionUpdate](),
		outbox:    bridge.NewOutbox[event](opts.OutboxCapacity),
	}
	s.viewport.Store(opts.Viewport)
	return s, nil
}

// Start spawns the consumer dispatcher goroutines and returns immediately.
// They run until ctx is done or Stop is called.
func (s *Scanner) Start(ctx context.Context) error {
	s.startedMu.Lock()
	defer s.startedMu.Unlock()

	if s.started {
		return fmt.Errorf("scanner already started")
	}
	if s.stopped.Load() {
		return fmt.Errorf("scanner stopped")
	}

	s.ctx, s.cancel = context.WithCancel(ctx)
	s.started = true

	s.wg.Add(3)
	go s.regionLoop()
	go s.eventLoop()
	go func() {
		defer s.wg.Done()
		<-s.ctx.Done()
		s.regionBox.Close()
		s.outbox.Close()
	}()

	s.logger.Info("scanner started",
		"aspect", fmt.Sprintf("%gx%g", s.opts.Aspect.WidthUnits, s.opts.Aspect.HeightUnits),
		"overflow", s.opts.Overflow.String(),
		"retry_budget", s.opts.RetryBudget,
		"arm_timeout", s.opts.ArmTimeout,
		"platform", s.opts.Viewport.Platform.String(),
	)
	return nil
}

// Stop shuts down the dispatcher and waits for it to exit.
// Events already queued are still delivered. Idempotent.
func (s *Scanner) Stop() error {
	s.startedMu.Lock()
	if !s.started {
		s.startedMu.Unlock()
		s.stopped.Store(true)
		s.regionBox.Close()
		s.outbox.Close()
		return nil
	}
	s.startedMu.Unlock()

	if s.stopped.Swap(true) {
		s.wg.Wait()
		return nil
	}

	s.cancel()
	s.wg.Wait()

	s.logger.Info("scanner stopped", "stats", s.Stats().String())
	return nil
}

// SetViewport publishes a new UI orientation snapshot.
// The frame callback reads it on its next invocation.
func (s *Scanner) SetViewport(ctx orientation.Context) {
	s.viewport.Store(ctx)
}

// Arm requests a capture (Idle → Armed) and returns the cycle number.
//
// Errors:
//   - capture.ErrCaptureBusy: previous cycle not back to Idle
//   - ErrBacklog: undelivered events fill the outbox
func (s *Scanner) Arm() (uint64, error) {
	if s.stopped.Load() {
		return 0, fmt.Errorf("scanner stopped")
	}
	if s.outbox.Full() {
		return 0, ErrBacklog
	}
	cycle, err := s.coord.Arm()
	if err != nil {
		return 0, err
	}
	s.stats.arms.Add(1)
	s.logger.Debug("capture armed", "cycle", cycle)
	return cycle, nil
}

// Acknowledge returns to Idle (dismiss preview / rescan). Results of the
// previous cycle that are still undelivered are discarded.
func (s *Scanner) Acknowledge() {
	prev := s.coord.Reset()
	_, cycle := s.coord.State()
	s.logger.Debug("capture acknowledged", "from", prev.String(), "next_cycle", cycle)
}

// Region returns the latest crop region and whether one exists.
func (s *Scanner) Region() (RegionUpdate, bool) {
	return s.region.Load()
}

// State returns the capture phase and cycle.
func (s *Scanner) State() (capture.State, uint64) {
	return s.coord.State()
}

// now is the configured clock.
func (s *Scanner) now() time.Time {
	return s.opts.Now()
}
