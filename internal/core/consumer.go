package core

import (
	"errors"

	"github.com/e7canasta/orion-care-sensor/modules/docscan"
	"github.com/e7canasta/orion-care-sensor/modules/docscan/internal/control"
	"github.com/e7canasta/orion-care-sensor/modules/docscan/internal/orientation"
	"github.com/e7canasta/orion-care-sensor/modules/docscan/internal/session"
)

// Handlers below run on the scanner's dispatcher goroutine.

func (s *Service) handleRegion(u docscan.RegionUpdate) {
	s.logger.Debug("crop region updated",
		"region", u.Region.String(),
		"frame", [2]int{u.FrameWidth, u.FrameHeight},
		"rotated", u.Rotated,
	)
}

func (s *Service) handleCapture(r docscan.CaptureResult) {
	s.logger.Info("capture delivered",
		"capture_id", r.ID.String(),
		"cycle", r.Cycle,
		"bytes", len(r.Image),
		"attempt", r.Attempt,
		"trace_id", r.TraceID,
	)

	s.store(r)

	if s.publish != nil {
		if err := s.publish.PublishCapture(r); err != nil {
			s.logger.Warn("failed to publish capture", "cycle", r.Cycle, "error", err)
		}
	}

	if s.cfg.Capture.AutoAcknowledge {
		s.scanner.Acknowledge()
	}
}

func (s *Service) store(r docscan.CaptureResult) {
	if s.session != nil {
		a := s.session.Accept(r)
		if s.sink != nil {
			if _, err := s.sink.SaveSide(a.SessionID.String(), a.Side.String(), r.Image); err != nil {
				s.logger.Error("failed to save card side", "side", a.Side.String(), "error", err)
			}
		}
		s.logger.Info("card side captured",
			"session_id", a.SessionID.String(),
			"side", a.Side.String(),
			"replaced", a.Replaced,
			"complete", a.Complete,
		)
		return
	}

	if s.sink != nil {
		path, err := s.sink.Save(r)
		if err != nil {
			s.logger.Error("failed to save capture", "cycle", r.Cycle, "error", err)
			return
		}
		s.logger.Debug("capture saved", "path", path)
	}
}

func (s *Service) handleFailure(f docscan.Failure) {
	kind := "extraction"
	if errors.Is(f.Err, docscan.ErrArmTimeout) {
		kind = "timeout"
	}
	s.logger.Warn("capture failed",
		"cycle", f.Cycle,
		"kind", kind,
		"attempts", f.Attempts,
		"error", f.Err,
	)

	if s.publish != nil {
		if err := s.publish.PublishFailure(f); err != nil {
			s.logger.Warn("failed to publish failure", "cycle", f.Cycle, "error", err)
		}
	}
}

// controlCallbacks exposes scanner operations to the MQTT control plane.
func (s *Service) controlCallbacks() control.Callbacks {
	return control.Callbacks{
		OnCapture: s.scanner.Arm,
		OnRescan: func() string {
			prev, _ := s.scanner.State()
			s.scanner.Acknowledge()
			return prev.String()
		},
		OnSetViewport: func(v control.ViewportParams) error {
			platform, err := orientation.ParsePlatform(v.Platform)
			if err != nil {
				return err
			}
			s.scanner.SetViewport(docscan.Viewport{
				Platform:       platform,
				ViewportWidth:  v.Width,
				ViewportHeight: v.Height,
			})
			return nil
		},
		OnSetSide: func(v string) error {
			if s.session == nil {
				return errors.New("card sides are only used in id_card mode")
			}
			side, err := session.ParseSide(v)
			if err != nil {
				return err
			}
			s.session.SetTarget(side)
			return nil
		},
		OnNewSession: func() string {
			if s.session == nil {
				return ""
			}
			s.session.Reset()
			return s.session.ID().String()
		},
		OnGetStatus: s.GetStatus,
	}
}
