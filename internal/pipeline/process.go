package pipeline

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/e7canasta/orion-care-sensor/modules/docscan/internal/capture"
	"github.com/e7canasta/orion-care-sensor/modules/docscan/internal/geometry"
	"github.com/e7canasta/orion-care-sensor/modules/docscan/internal/orientation"
)

// ProcessFrame is the frame callback. It runs once per camera frame and
// never waits on the consumer.
//
// Per frame:
//  1. Reject degenerate frames (prior region kept)
//  2. Resolve on-screen orientation from the latest viewport snapshot
//  3. Update geometry (recomputed only when dimensions change)
//  4. Expire a stale armed cycle
//  5. If armed and a region exists: claim, extract once, deliver
func (s *Scanner) ProcessFrame(frame *Frame) {
	s.stats.frames.Add(1)

	if frame == nil || !frame.Dimensions().Valid() {
		s.stats.rejected.Add(1)
		if frame != nil {
			s.logger.Debug("frame rejected", "width", frame.Width, "height", frame.Height, "seq", frame.Seq)
		}
		s.expire()
		return
	}

	res := orientation.Resolve(frame.Dimensions(), s.viewportSnapshot())
	if res.Ambiguous {
		s.stats.ambiguous.Add(1)
		if !s.ambiguousLogged {
			s.ambiguousLogged = true
			s.logger.Warn("orientation ambiguous, assuming no rotation",
				"platform", s.viewportSnapshot().Platform.String(),
				"frame", fmt.Sprintf("%dx%d", frame.Width, frame.Height))
		}
	} else {
		s.ambiguousLogged = false
	}

	up := s.updateGeometry(res)

	s.expire()

	if !up.Valid {
		return
	}

	claim, ok := s.coord.Claim()
	if !ok {
		return
	}
	s.extract(claim, frame, up.Region, res.Rotated)
}

func (s *Scanner) viewportSnapshot() orientation.Context {
	ctx, _ := s.viewport.Load()
	return ctx
}

// updateGeometry refreshes the region and publishes changes to the consumer.
func (s *Scanner) updateGeometry(res orientation.Resolution) geometry.Update {
	before := s.engine.Recomputes()
	up, err := s.engine.Update(res.Width, res.Height)
	if s.engine.Recomputes() != before {
		s.stats.recomputes.Add(1)
	}

	if err != nil {
		if !errors.Is(err, s.lastGeomErr) || s.engine.Recomputes() != before {
			s.logger.Warn("region not updated", "error", err,
				"effective", fmt.Sprintf("%dx%d", res.Width, res.Height))
		}
		s.lastGeomErr = err
		return up
	}
	s.lastGeomErr = nil

	if up.Changed {
		update := RegionUpdate{
			Region:      up.Region,
			FrameWidth:  res.Width,
			FrameHeight: res.Height,
			Rotated:     res.Rotated,
		}
		s.region.Store(update)
		s.regionBox.Put(update)
		if up.Region.Clamped {
			s.logger.Warn("region clamped to frame", "region", up.Region.String(),
				"effective", fmt.Sprintf("%dx%d", res.Width, res.Height))
		} else {
			s.logger.Debug("region updated", "region", up.Region.String(),
				"effective", fmt.Sprintf("%dx%d", res.Width, res.Height), "rotated", res.Rotated)
		}
	}
	return up
}

// expire fails an armed cycle that outlived ArmTimeout.
func (s *Scanner) expire() {
	cycle, ok := s.coord.Expire()
	if !ok {
		return
	}
	s.stats.timeouts.Add(1)
	s.logger.Warn("capture timed out", "cycle", cycle, "timeout", s.opts.ArmTimeout)
	s.push(event{failure: &Failure{
		Cycle: cycle,
		Err:   capture.ErrArmTimeout,
		At:    s.now(),
	}}, cycle)
}

// push hands an event to the dispatcher. The outbox only refuses after Stop.
func (s *Scanner) push(ev event, cycle uint64) {
	if s.outbox.Push(ev) {
		return
	}
	s.stats.undeliverable.Add(1)
	s.logger.Error("scanner stopped, capture event not delivered", "cycle", cycle)
}

// extract runs one claimed attempt. The arm flag was already cleared by
// Claim, so later frames can not start a second extraction.
func (s *Scanner) extract(claim capture.Claim, frame *Frame, region geometry.CropRegion, rotated bool) {
	s.stats.attempts.Add(1)

	img, err := s.opts.Extractor.Extract(ExtractRequest{Frame: frame, Region: region, Rotated: rotated})
	if err == nil && len(img) > 0 {
		if !s.coord.Succeed(claim) {
			s.stats.cancelled.Add(1)
			s.logger.Debug("capture cancelled during extraction", "cycle", claim.Cycle)
			return
		}
		s.stats.captures.Add(1)
		s.push(event{result: &CaptureResult{
			ID:         uuid.New(),
			Cycle:      claim.Cycle,
			Image:      img,
			Region:     region,
			FrameSeq:   frame.Seq,
			TraceID:    frame.TraceID,
			Attempt:    claim.Attempt,
			CapturedAt: s.now(),
		}}, claim.Cycle)
		s.logger.Info("capture extracted", "cycle", claim.Cycle, "attempt", claim.Attempt,
			"bytes", len(img), "region", region.String(), "seq", frame.Seq)
		return
	}

	s.stats.emptyExtractions.Add(1)
	switch s.coord.Fail(claim) {
	case capture.Retry:
		s.logger.Debug("extraction empty, retrying next frame",
			"cycle", claim.Cycle, "attempt", claim.Attempt, "error", err)
	case capture.Exhausted:
		s.stats.failures.Add(1)
		cause := capture.ErrExtractionFailed
		if err != nil {
			cause = fmt.Errorf("%w: %w", capture.ErrExtractionFailed, err)
		}
		s.logger.Warn("capture failed", "cycle", claim.Cycle, "attempts", claim.Attempt, "error", cause)
		s.push(event{failure: &Failure{
			Cycle:    claim.Cycle,
			Err:      cause,
			Attempts: claim.Attempt,
			At:       s.now(),
		}}, claim.Cycle)
	case capture.Cancelled:
		s.stats.cancelled.Add(1)
	}
}
