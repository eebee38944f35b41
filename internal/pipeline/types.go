// Package pipeline implements the per-frame scan pipeline.
//
// This package is INTERNAL - clients use the public API in the parent package.
package pipeline

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/e7canasta/orion-care-sensor/modules/docscan/internal/geometry"
	"github.com/e7canasta/orion-care-sensor/modules/docscan/internal/orientation"
)

// ErrBacklog is returned by Arm while undelivered capture events fill the outbox.
var ErrBacklog = errors.New("pipeline: capture events not yet delivered")

// ErrNoExtractor is returned by NewScanner without an Extractor.
var ErrNoExtractor = errors.New("pipeline: extractor is required")

// PixelFormat describes how Frame.Data is encoded.
// The pipeline never inspects pixels; the format is for the Extractor.
type PixelFormat int

const (
	FormatRGB24 PixelFormat = iota
	FormatRGBA
	FormatJPEG
	FormatPNG
)

// String returns the lowercase format name.
func (f PixelFormat) String() string {
	switch f {
	case FormatRGB24:
		return "rgb24"
	case FormatRGBA:
		return "rgba"
	case FormatJPEG:
		return "jpeg"
	case FormatPNG:
		return "png"
	default:
		return "unknown"
	}
}

// Frame is one camera sample as delivered to the frame callback.
//
// Data is shared by reference and MUST NOT be modified after ProcessFrame.
type Frame struct {
	Data      []byte
	Format    PixelFormat
	Width     int
	Height    int
	Timestamp time.Time
	Seq       uint64
	TraceID   string
}

// Dimensions returns the raw frame size.
func (f *Frame) Dimensions() orientation.Dimensions {
	return orientation.Dimensions{Width: f.Width, Height: f.Height}
}

// ExtractRequest is what the pipeline hands to the Extractor.
type ExtractRequest struct {
	Frame  *Frame
	Region geometry.CropRegion

	// Rotated is true when the region refers to the frame rotated by 90°
	// (sensor-oriented buffers on a viewport of the other orientation).
	Rotated bool
}

// Extractor crops and encodes the region of a frame.
//
// Called synchronously from the frame callback. Returning no bytes (or an
// error) is a recoverable outcome handled by the retry policy.
type Extractor interface {
	Extract(req ExtractRequest) ([]byte, error)
}

// ExtractorFunc adapts a function to Extractor.
type ExtractorFunc func(req ExtractRequest) ([]byte, error)

// Extract calls f(req).
func (f ExtractorFunc) Extract(req ExtractRequest) ([]byte, error) {
	return f(req)
}

// Mode is the scanning mode fixed at scanner construction.
type Mode int

const (
	// ModeFrame scans a generic document frame.
	ModeFrame Mode = iota
	// ModeIDCard scans an ID-1 card.
	ModeIDCard
)

// String returns the config name of the mode.
func (m Mode) String() string {
	if m == ModeIDCard {
		return "id_card"
	}
	return "frame"
}

// ParseMode maps a config name to a Mode ("" means frame).
func ParseMode(s string) (Mode, error) {
	switch s {
	case "", "frame":
		return ModeFrame, nil
	case "id_card", "idcard":
		return ModeIDCard, nil
	default:
		return ModeFrame, fmt.Errorf("unknown scan mode %q", s)
	}
}

// DefaultAspect returns the aspect ratio used when none is configured.
// Both modes default to the ID-1 card ratio.
func (m Mode) DefaultAspect() geometry.AspectRatio {
	return geometry.IDCard
}

// RegionUpdate is delivered to the consumer whenever the region changes.
type RegionUpdate struct {
	Region geometry.CropRegion

	// FrameWidth/FrameHeight are the effective (oriented) frame dimensions
	// the region was computed for; the overlay renderer scales by them.
	FrameWidth  int
	FrameHeight int
	Rotated     bool
}

// CaptureResult is produced at most once per armed cycle.
// The consumer owns it after delivery.
type CaptureResult struct {
	ID         uuid.UUID
	Cycle      uint64
	Image      []byte
	Region     geometry.CropRegion
	FrameSeq   uint64
	TraceID    string
	Attempt    int
	CapturedAt time.Time
}

// Failure is delivered when an armed cycle ended without an image.
type Failure struct {
	Cycle    uint64
	Err      error
	Attempts int
	At       time.Time
}

// event is the outbox item: exactly one of result/failure is set.
type event struct {
	result  *CaptureResult
	failure *Failure
}

// Options configures a Scanner. Immutable after NewScanner.
type Options struct {
	Mode      Mode
	Aspect    geometry.AspectRatio
	Layout    geometry.Layout
	Overflow  geometry.OverflowPolicy
	Viewport  orientation.Context
	Extractor Extractor

	// RetryBudget is the number of extraction attempts per armed cycle.
	RetryBudget int
	// ArmTimeout fails an armed cycle that produced nothing in time (0 disables).
	ArmTimeout time.Duration
	// OutboxCapacity bounds undelivered capture events (Arm refuses beyond it).
	OutboxCapacity int

	// Consumer-side handlers, run on the dispatcher goroutine.
	OnRegion  func(RegionUpdate)
	OnCapture func(CaptureResult)
	OnFailure func(Failure)

	Logger *slog.Logger
	Now    func() time.Time
}

func (o *Options) setDefaults() {
	if o.Aspect == (geometry.AspectRatio{}) {
		o.Aspect = o.Mode.DefaultAspect()
	}
	if o.Layout == (geometry.Layout{}) {
		o.Layout = geometry.DefaultLayout
	}
	if o.RetryBudget < 1 {
		o.RetryBudget = 1
	}
	if o.OutboxCapacity < 1 {
		o.OutboxCapacity = 4
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}
