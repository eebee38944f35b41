// Package geometry computes aspect-locked crop regions for live frames.
//
// Regions are expressed in percent of the (oriented) frame so the same
// value drives both the on-screen guide rectangle and the pixel crop,
// whatever the frame resolution.
package geometry

import (
	"errors"
	"fmt"
	"image"
	"math"
)

var (
	// ErrDegenerateFrame is returned for frames with non-positive dimensions.
	ErrDegenerateFrame = errors.New("geometry: degenerate frame dimensions")

	// ErrInvalidAspect is returned for non-positive aspect ratio units.
	ErrInvalidAspect = errors.New("geometry: invalid aspect ratio")

	// ErrRegionOverflow is returned when the derived region extends past
	// the bottom edge and the overflow policy rejects it.
	ErrRegionOverflow = errors.New("geometry: region exceeds frame bounds")
)

// AspectRatio is the physical width:height ratio the region is locked to.
type AspectRatio struct {
	WidthUnits  float64 `yaml:"width_units" json:"width_units"`
	HeightUnits float64 `yaml:"height_units" json:"height_units"`
}

// IDCard is the ISO/IEC 7810 ID-1 format (85.60 × 53.98 mm, commonly 85.6 × 54).
var IDCard = AspectRatio{WidthUnits: 85.6, HeightUnits: 54}

// Ratio returns WidthUnits / HeightUnits.
func (a AspectRatio) Ratio() float64 {
	return a.WidthUnits / a.HeightUnits
}

// Validate rejects zero, negative and non-finite units.
func (a AspectRatio) Validate() error {
	if !(a.WidthUnits > 0) || !(a.HeightUnits > 0) ||
		math.IsInf(a.WidthUnits, 0) || math.IsInf(a.HeightUnits, 0) {
		return fmt.Errorf("%w: %gx%g", ErrInvalidAspect, a.WidthUnits, a.HeightUnits)
	}
	return nil
}

// Placement anchors the region for one frame orientation.
// All values are percentages of the frame.
type Placement struct {
	Left  float64 `yaml:"left" json:"left"`
	Top   float64 `yaml:"top" json:"top"`
	Width float64 `yaml:"width" json:"width"`
}

// Fraction is the region width as a fraction of the frame width.
func (p Placement) Fraction() float64 {
	return p.Width / 100
}

// Validate checks the placement stays inside the frame horizontally.
func (p Placement) Validate() error {
	switch {
	case p.Left < 0 || p.Top < 0:
		return fmt.Errorf("placement anchor must be non-negative, got left=%g top=%g", p.Left, p.Top)
	case p.Width <= 0:
		return fmt.Errorf("placement width must be > 0, got %g", p.Width)
	case p.Left+p.Width > 100:
		return fmt.Errorf("placement left+width must be <= 100, got %g", p.Left+p.Width)
	case p.Top >= 100:
		return fmt.Errorf("placement top must be < 100, got %g", p.Top)
	}
	return nil
}

// Layout selects a placement by frame orientation.
type Layout struct {
	Landscape Placement `yaml:"landscape" json:"landscape"`
	Portrait  Placement `yaml:"portrait" json:"portrait"`
}

// DefaultLayout is the guide layout used by the scanner screens:
// 70% wide at (15%, 10%) in landscape, 80% wide at (10%, 20%) in portrait.
var DefaultLayout = Layout{
	Landscape: Placement{Left: 15, Top: 10, Width: 70},
	Portrait:  Placement{Left: 10, Top: 20, Width: 80},
}

// Validate validates both placements.
func (l Layout) Validate() error {
	if err := l.Landscape.Validate(); err != nil {
		return fmt.Errorf("landscape: %w", err)
	}
	if err := l.Portrait.Validate(); err != nil {
		return fmt.Errorf("portrait: %w", err)
	}
	return nil
}

// For returns the placement for a frame of the given size.
func (l Layout) For(width, height int) Placement {
	if width > height {
		return l.Landscape
	}
	return l.Portrait
}

// CropRegion is a rectangle in percent of the oriented frame.
type CropRegion struct {
	Left   float64 `json:"left" msgpack:"left"`
	Top    float64 `json:"top" msgpack:"top"`
	Width  float64 `json:"width" msgpack:"width"`
	Height float64 `json:"height" msgpack:"height"`

	// Clamped is set when the height was shrunk to fit the frame.
	Clamped bool `json:"clamped,omitempty" msgpack:"clamped,omitempty"`
}

// Valid reports whether the region has a positive area.
func (r CropRegion) Valid() bool {
	return r.Width > 0 && r.Height > 0
}

// Overflows reports whether the region extends past the right or bottom edge.
func (r CropRegion) Overflows() bool {
	return r.Left+r.Width > 100 || r.Top+r.Height > 100
}

// Rect converts the region to pixels for a frame of the given size.
// The result is clipped to the frame bounds and may be empty.
func (r CropRegion) Rect(width, height int) image.Rectangle {
	x0 := int(math.Round(r.Left / 100 * float64(width)))
	y0 := int(math.Round(r.Top / 100 * float64(height)))
	x1 := int(math.Round((r.Left + r.Width) / 100 * float64(width)))
	y1 := int(math.Round((r.Top + r.Height) / 100 * float64(height)))
	return image.Rect(x0, y0, x1, y1).Intersect(image.Rect(0, 0, width, height))
}

// String formats the region as "left,top widthxheight%".
func (r CropRegion) String() string {
	return fmt.Sprintf("%g,%g %gx%g%%", r.Left, r.Top, r.Width, r.Height)
}

// Compute derives the crop region for a frame of the given effective size.
//
// The region width comes from the layout placement; the height preserves
// the aspect ratio and is rounded up to a whole percentage point:
//
//	heightPct = ceil((fraction·width) / ratio / height · 100)
//
// Compute never clamps: the result may overflow the bottom edge for very
// short frames or tall aspect ratios (see Engine for overflow policies).
func Compute(width, height int, aspect AspectRatio, layout Layout) (CropRegion, error) {
	if width <= 0 || height <= 0 {
		return CropRegion{}, fmt.Errorf("%w: %dx%d", ErrDegenerateFrame, width, height)
	}
	if err := aspect.Validate(); err != nil {
		return CropRegion{}, err
	}

	p := layout.For(width, height)
	regionWidth := p.Fraction() * float64(width)
	desiredHeight := regionWidth / aspect.Ratio()
	heightPct := math.Ceil(desiredHeight / float64(height) * 100)

	return CropRegion{
		Left:   p.Left,
		Top:    p.Top,
		Width:  p.Width,
		Height: heightPct,
	}, nil
}
