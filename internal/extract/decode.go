package extract

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"

	"github.com/e7canasta/orion-care-sensor/modules/docscan/internal/pipeline"
)

// decode turns a frame buffer into an image.
// RGBA buffers are wrapped without copying (read-only use).
func decode(frame *pipeline.Frame) (image.Image, error) {
	switch frame.Format {
	case pipeline.FormatRGB24:
		return rgbToRGBA(frame)
	case pipeline.FormatRGBA:
		expected := frame.Width * frame.Height * 4
		if len(frame.Data) != expected {
			return nil, fmt.Errorf("%w: rgba size %d, expected %d", ErrBadBuffer, len(frame.Data), expected)
		}
		return &image.RGBA{
			Pix:    frame.Data,
			Stride: frame.Width * 4,
			Rect:   image.Rect(0, 0, frame.Width, frame.Height),
		}, nil
	case pipeline.FormatJPEG:
		img, err := jpeg.Decode(bytes.NewReader(frame.Data))
		if err != nil {
			return nil, fmt.Errorf("%w: jpeg: %v", ErrBadBuffer, err)
		}
		return img, nil
	case pipeline.FormatPNG:
		img, err := png.Decode(bytes.NewReader(frame.Data))
		if err != nil {
			return nil, fmt.Errorf("%w: png: %v", ErrBadBuffer, err)
		}
		return img, nil
	default:
		return nil, fmt.Errorf("%w: unsupported format %s", ErrBadBuffer, frame.Format)
	}
}

// rgbToRGBA converts RGB raw bytes (3 bytes/pixel) to image.RGBA (alpha 255).
func rgbToRGBA(frame *pipeline.Frame) (*image.RGBA, error) {
	expected := frame.Width * frame.Height * 3
	if len(frame.Data) != expected {
		return nil, fmt.Errorf("%w: rgb size %d, expected %d", ErrBadBuffer, len(frame.Data), expected)
	}

	img := image.NewRGBA(image.Rect(0, 0, frame.Width, frame.Height))
	for i := 0; i < frame.Width*frame.Height; i++ {
		img.Pix[i*4+0] = frame.Data[i*3+0]
		img.Pix[i*4+1] = frame.Data[i*3+1]
		img.Pix[i*4+2] = frame.Data[i*3+2]
		img.Pix[i*4+3] = 255
	}
	return img, nil
}

// rotateCW returns src rotated 90° clockwise (sensor landscape → portrait).
func rotateCW(src image.Image) *image.RGBA {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	dst := image.NewRGBA(image.Rect(0, 0, h, w))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			dst.Set(h-1-y, x, src.At(b.Min.X+x, b.Min.Y+y))
		}
	}
	return dst
}
