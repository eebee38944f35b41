package geometry

import (
	"errors"
	"fmt"
)

// OverflowPolicy decides what happens to regions that pass the bottom edge.
type OverflowPolicy int

const (
	// OverflowClamp shrinks the height to 100-Top and marks the region Clamped.
	OverflowClamp OverflowPolicy = iota

	// OverflowReject keeps the previous region and reports ErrRegionOverflow.
	OverflowReject

	// OverflowAllow publishes the region unchanged.
	OverflowAllow
)

// String returns the config name of the policy.
func (p OverflowPolicy) String() string {
	switch p {
	case OverflowReject:
		return "reject"
	case OverflowAllow:
		return "allow"
	default:
		return "clamp"
	}
}

// ParseOverflowPolicy maps a config name to a policy ("" means clamp).
func ParseOverflowPolicy(s string) (OverflowPolicy, error) {
	switch s {
	case "", "clamp":
		return OverflowClamp, nil
	case "reject":
		return OverflowReject, nil
	case "allow":
		return OverflowAllow, nil
	default:
		return OverflowClamp, fmt.Errorf("unknown overflow policy %q", s)
	}
}

// Update is the outcome of Engine.Update.
type Update struct {
	Region CropRegion

	// Changed is true when Region differs from the one returned before.
	Changed bool

	// Valid is false until a region has been computed successfully.
	Valid bool
}

// Engine caches the region for the last frame size and recomputes only
// when the effective dimensions change.
//
// Not safe for concurrent use: owned by the frame callback.
type Engine struct {
	aspect AspectRatio
	layout Layout
	policy OverflowPolicy

	region CropRegion
	valid  bool

	lastWidth  int
	lastHeight int
	lastErr    error
	seen       bool

	recomputes uint64
}

// NewEngine validates aspect and layout and returns an engine with no region.
func NewEngine(aspect AspectRatio, layout Layout, policy OverflowPolicy) (*Engine, error) {
	if err := aspect.Validate(); err != nil {
		return nil, err
	}
	if err := layout.Validate(); err != nil {
		return nil, fmt.Errorf("geometry: invalid layout: %w", err)
	}
	return &Engine{aspect: aspect, layout: layout, policy: policy}, nil
}

// Update returns the region for a frame of the given effective size.
//
// Degenerate sizes are rejected and leave the cached state untouched.
// Repeating the last size returns the cached region (and cached error)
// without recomputing.
func (e *Engine) Update(width, height int) (Update, error) {
	if width <= 0 || height <= 0 {
		return e.current(false), fmt.Errorf("%w: %dx%d", ErrDegenerateFrame, width, height)
	}

	if e.seen && width == e.lastWidth && height == e.lastHeight {
		return e.current(false), e.lastErr
	}

	e.seen = true
	e.lastWidth, e.lastHeight = width, height
	e.lastErr = nil
	e.recomputes++

	region, err := Compute(width, height, e.aspect, e.layout)
	if err != nil {
		e.lastErr = err
		return e.current(false), err
	}

	if region.Top+region.Height > 100 {
		switch e.policy {
		case OverflowClamp:
			region.Height = 100 - region.Top
			region.Clamped = true
		case OverflowReject:
			e.lastErr = fmt.Errorf("%w: top=%g height=%g for %dx%d",
				ErrRegionOverflow, region.Top, region.Height, width, height)
			return e.current(false), e.lastErr
		}
	}

	changed := !e.valid || region != e.region
	e.region = region
	e.valid = true
	return e.current(changed), nil
}

// Region returns the cached region and whether one exists.
func (e *Engine) Region() (CropRegion, bool) {
	return e.region, e.valid
}

// Recomputes returns how many times the region was actually computed.
func (e *Engine) Recomputes() uint64 {
	return e.recomputes
}

// Aspect returns the configured aspect ratio.
func (e *Engine) Aspect() AspectRatio {
	return e.aspect
}

func (e *Engine) current(changed bool) Update {
	return Update{Region: e.region, Changed: changed, Valid: e.valid}
}

// IsOverflow reports whether err is a rejected overflow.
func IsOverflow(err error) bool {
	return errors.Is(err, ErrRegionOverflow)
}
