// Package extract crops a region out of a camera frame and encodes it.
//
// Cropper is the Go implementation of the scanner's extraction capability:
// decode the frame buffer, map the percentage region to pixels, crop,
// optionally downscale, and encode as JPEG or PNG.
package extract

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"sync/atomic"

	xdraw "golang.org/x/image/draw"

	"github.com/e7canasta/orion-care-sensor/modules/docscan/internal/pipeline"
)

// ErrBadBuffer is returned when the frame buffer does not match its format.
var ErrBadBuffer = errors.New("extract: frame buffer does not match format")

// Options configures a Cropper.
type Options struct {
	// Format is "jpeg" (default) or "png".
	Format string
	// JPEGQuality is 1-100 (default 90).
	JPEGQuality int
	// MaxWidth downscales wider crops, keeping aspect (0 keeps native size).
	MaxWidth int
}

// Cropper implements pipeline.Extractor.
// Safe for concurrent use.
type Cropper struct {
	opts Options

	extracted atomic.Uint64
	empty     atomic.Uint64
	failed    atomic.Uint64
}

// NewCropper validates opts and returns a Cropper.
func NewCropper(opts Options) (*Cropper, error) {
	if opts.Format == "" {
		opts.Format = "jpeg"
	}
	if opts.Format != "jpeg" && opts.Format != "png" {
		return nil, fmt.Errorf("extract: unsupported format %q (must be jpeg or png)", opts.Format)
	}
	if opts.JPEGQuality == 0 {
		opts.JPEGQuality = 90
	}
	if opts.JPEGQuality < 1 || opts.JPEGQuality > 100 {
		return nil, fmt.Errorf("extract: jpeg quality must be 1-100, got %d", opts.JPEGQuality)
	}
	if opts.MaxWidth < 0 {
		return nil, fmt.Errorf("extract: max width must be >= 0, got %d", opts.MaxWidth)
	}
	return &Cropper{opts: opts}, nil
}

// Extract crops req.Region out of req.Frame.
//
// Returns (nil, nil) when the region maps to an empty pixel rectangle,
// which the scanner treats as an empty extraction.
func (c *Cropper) Extract(req pipeline.ExtractRequest) ([]byte, error) {
	if req.Frame == nil {
		c.failed.Add(1)
		return nil, fmt.Errorf("%w: nil frame", ErrBadBuffer)
	}

	img, err := decode(req.Frame)
	if err != nil {
		c.failed.Add(1)
		return nil, err
	}
	if req.Rotated {
		img = rotateCW(img)
	}

	b := img.Bounds()
	rect := req.Region.Rect(b.Dx(), b.Dy()).Add(b.Min)
	if rect.Empty() {
		c.empty.Add(1)
		return nil, nil
	}

	crop := c.scale(subImage(img, rect))

	var buf bytes.Buffer
	switch c.opts.Format {
	case "png":
		err = png.Encode(&buf, crop)
	default:
		err = jpeg.Encode(&buf, crop, &jpeg.Options{Quality: c.opts.JPEGQuality})
	}
	if err != nil {
		c.failed.Add(1)
		return nil, fmt.Errorf("extract: %s encode failed: %w", c.opts.Format, err)
	}

	c.extracted.Add(1)
	return buf.Bytes(), nil
}

// scale downscales to MaxWidth when configured.
func (c *Cropper) scale(src image.Image) image.Image {
	b := src.Bounds()
	if c.opts.MaxWidth == 0 || b.Dx() <= c.opts.MaxWidth {
		return src
	}
	h := b.Dy() * c.opts.MaxWidth / b.Dx()
	if h < 1 {
		h = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, c.opts.MaxWidth, h))
	xdraw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, b, xdraw.Src, nil)
	return dst
}

// Stats returns extracted, empty and failed counts.
func (c *Cropper) Stats() (extracted, empty, failed uint64) {
	return c.extracted.Load(), c.empty.Load(), c.failed.Load()
}

type subImager interface {
	SubImage(r image.Rectangle) image.Image
}

// subImage crops without copying when the image supports it.
func subImage(img image.Image, r image.Rectangle) image.Image {
	if s, ok := img.(subImager); ok {
		return s.SubImage(r)
	}
	dst := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	xdraw.Copy(dst, image.Point{}, img, r, xdraw.Src, nil)
	return dst
}
