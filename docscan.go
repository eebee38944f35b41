// Package docscan implements real-time crop geometry and single-shot
// capture coordination for document scanning from a live camera feed.
//
// Design:
//   - Non-blocking frame callback (ProcessFrame never waits on the UI)
//   - Region recomputed only when oriented frame dimensions change
//   - At most one successful extraction per armed cycle
//   - Latest-only region delivery, lossless capture delivery
//
// See doc.go for the full contract.
package docscan

import (
	"context"

	"github.com/e7canasta/orion-care-sensor/modules/docscan/internal/capture"
	"github.com/e7canasta/orion-care-sensor/modules/docscan/internal/geometry"
	"github.com/e7canasta/orion-care-sensor/modules/docscan/internal/orientation"
	"github.com/e7canasta/orion-care-sensor/modules/docscan/internal/pipeline"
)

// Re-exported from internal packages to keep a single import for clients.
type (
	Frame          = pipeline.Frame
	PixelFormat    = pipeline.PixelFormat
	Extractor      = pipeline.Extractor
	ExtractorFunc  = pipeline.ExtractorFunc
	ExtractRequest = pipeline.ExtractRequest
	Mode           = pipeline.Mode
	Options        = pipeline.Options
	RegionUpdate   = pipeline.RegionUpdate
	CaptureResult  = pipeline.CaptureResult
	Failure        = pipeline.Failure
	Stats          = pipeline.Stats

	CropRegion     = geometry.CropRegion
	AspectRatio    = geometry.AspectRatio
	Layout         = geometry.Layout
	Placement      = geometry.Placement
	OverflowPolicy = geometry.OverflowPolicy

	Viewport = orientation.Context
	Platform = orientation.Platform

	State = capture.State
)

const (
	FormatRGB24 = pipeline.FormatRGB24
	FormatRGBA  = pipeline.FormatRGBA
	FormatJPEG  = pipeline.FormatJPEG
	FormatPNG   = pipeline.FormatPNG

	ModeFrame  = pipeline.ModeFrame
	ModeIDCard = pipeline.ModeIDCard

	OverflowClamp  = geometry.OverflowClamp
	OverflowReject = geometry.OverflowReject
	OverflowAllow  = geometry.OverflowAllow

	PlatformUnknown    = orientation.PlatformUnknown
	PlatformPreRotated = orientation.PlatformPreRotated
	PlatformSensor     = orientation.PlatformSensor

	Idle     = capture.Idle
	Armed    = capture.Armed
	Captured = capture.Captured
)

// Errors callers can match with errors.Is.
var (
	ErrCaptureBusy      = capture.ErrCaptureBusy
	ErrExtractionFailed = capture.ErrExtractionFailed
	ErrArmTimeout       = capture.ErrArmTimeout
	ErrBacklog          = pipeline.ErrBacklog
	ErrNoExtractor      = pipeline.ErrNoExtractor
	ErrRegionOverflow   = geometry.ErrRegionOverflow
	ErrDegenerateFrame  = geometry.ErrDegenerateFrame
)

// IDCard is the ISO/IEC 7810 ID-1 aspect ratio (85.6 × 54).
var IDCard = geometry.IDCard

// DefaultLayout anchors the guide at 70% width (15%,10%) in landscape and
// 80% width (10%,20%) in portrait.
var DefaultLayout = geometry.DefaultLayout

// Scanner is the public interface of the scan pipeline.
//
// Lifecycle: New() → Start() → ProcessFrame()/Arm()/Acknowledge() → Stop()
type Scanner interface {
	// Start spawns the consumer dispatcher (handlers in Options run there).
	// Returns immediately. Returns an error if already started.
	Start(ctx context.Context) error

	// Stop shuts down the dispatcher and waits for it to exit. Idempotent.
	Stop() error

	// ProcessFrame is the frame callback. Call it from one goroutine,
	// once per camera frame. Never blocks on the consumer.
	ProcessFrame(frame *Frame)

	// SetViewport publishes the UI orientation snapshot read by the next frame.
	SetViewport(v Viewport)

	// Arm requests one capture (Idle → Armed) and returns the cycle number.
	// Returns ErrCaptureBusy unless Idle, ErrBacklog while events are undelivered.
	Arm() (uint64, error)

	// Acknowledge returns to Idle (dismiss / rescan). Undelivered results of
	// the previous cycle are discarded.
	Acknowledge()

	// Region returns the latest region and the frame size it applies to.
	Region() (RegionUpdate, bool)

	// State returns the capture phase and current cycle.
	State() (State, uint64)

	// Stats returns an operational snapshot.
	Stats() Stats
}

// New creates a Scanner. Options.Extractor is required.
func New(opts Options) (Scanner, error) {
	s, err := pipeline.NewScanner(opts)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Compute returns the crop region for a frame of the given effective size
// without caching or overflow policy.
func Compute(width, height int, aspect AspectRatio, layout Layout) (CropRegion, error) {
	return geometry.Compute(width, height, aspect, layout)
}
