// Package orientation resolves the on-screen orientation of camera frames.
//
// Some frame sources deliver buffers in sensor orientation (the frame is
// landscape even when the device is held upright), others pre-rotate
// buffers before handing them over. Resolve maps raw frame dimensions to
// the dimensions the user actually sees, so crop geometry is computed in
// screen space.
package orientation

import "fmt"

// Platform identifies how the frame source treats buffer rotation.
type Platform int

const (
	// PlatformUnknown means no platform information was supplied.
	// Resolution falls back to "no rotation".
	PlatformUnknown Platform = iota

	// PlatformPreRotated sources rotate buffers before delivery
	// (raw dimensions are already in screen space).
	PlatformPreRotated

	// PlatformSensor sources deliver buffers in sensor orientation
	// (dimensions must be swapped when they disagree with the viewport).
	PlatformSensor
)

// String returns the config name of the platform.
func (p Platform) String() string {
	switch p {
	case PlatformPreRotated:
		return "prerotated"
	case PlatformSensor:
		return "sensor"
	default:
		return "unknown"
	}
}

// ParsePlatform maps a config name to a Platform.
// Accepts the platform names used by mobile runtimes as aliases.
func ParsePlatform(s string) (Platform, error) {
	switch s {
	case "prerotated", "ios":
		return PlatformPreRotated, nil
	case "sensor", "android":
		return PlatformSensor, nil
	case "", "unknown":
		return PlatformUnknown, nil
	default:
		return PlatformUnknown, fmt.Errorf("unknown platform %q", s)
	}
}

// Dimensions is the width/height pair reported for a single frame.
type Dimensions struct {
	Width  int
	Height int
}

// Landscape reports whether the dimensions are wider than tall.
func (d Dimensions) Landscape() bool {
	return d.Width > d.Height
}

// Valid reports whether both dimensions are positive.
func (d Dimensions) Valid() bool {
	return d.Width > 0 && d.Height > 0
}

// Swapped returns the dimensions with width and height exchanged.
func (d Dimensions) Swapped() Dimensions {
	return Dimensions{Width: d.Height, Height: d.Width}
}

// Context is the environment snapshot supplied by the UI layer.
type Context struct {
	Platform       Platform
	ViewportWidth  int
	ViewportHeight int
}

// Resolution is the outcome of Resolve.
type Resolution struct {
	Dimensions

	// Rotated is true when raw width/height were swapped.
	Rotated bool

	// Ambiguous is true when the context could not decide rotation
	// and raw dimensions were returned unchanged.
	Ambiguous bool
}

// Resolve returns the effective (on-screen) dimensions of a frame.
//
// Pure function: identical inputs always produce identical output.
// Ambiguous contexts (unknown platform, non-positive viewport) never
// rotate; callers decide whether to log.
func Resolve(frame Dimensions, ctx Context) Resolution {
	switch ctx.Platform {
	case PlatformPreRotated:
		return Resolution{Dimensions: frame}
	case PlatformSensor:
		if ctx.ViewportWidth <= 0 || ctx.ViewportHeight <= 0 {
			return Resolution{Dimensions: frame, Ambiguous: true}
		}
		viewportLandscape := ctx.ViewportWidth > ctx.ViewportHeight
		if frame.Landscape() != viewportLandscape {
			return Resolution{Dimensions: frame.Swapped(), Rotated: true}
		}
		return Resolution{Dimensions: frame}
	default:
		return Resolution{Dimensions: frame, Ambiguous: true}
	}
}
