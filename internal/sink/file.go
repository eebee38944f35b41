// Package sink stores encoded captures on disk.
package sink

import (
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/e7canasta/orion-care-sensor/modules/docscan/internal/pipeline"
)

// FileSink writes capture images into a directory.
//
// Files are written to a temporary name and renamed, so readers never see
// a partial image. Safe for concurrent use.
type FileSink struct {
	dir    string
	ext    string
	saved  atomic.Uint64
	failed atomic.Uint64
}

// NewFileSink creates dir if needed. format is the encoder output ("jpeg" or "png").
func NewFileSink(dir, format string) (*FileSink, error) {
	var ext string
	switch format {
	case "jpeg":
		ext = "jpg"
	case "png":
		ext = "png"
	default:
		return nil, fmt.Errorf("unsupported format: %s (must be png or jpeg)", format)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	return &FileSink{dir: dir, ext: ext}, nil
}

// Save writes a capture result.
//
// Filename format: capture_{cycle:06d}_{timestamp}.{ext}
// Example: capture_000042_20251105_234517.123.jpg
func (s *FileSink) Save(r pipeline.CaptureResult) (string, error) {
	name := fmt.Sprintf("capture_%06d_%s.%s", r.Cycle, stamp(r.CapturedAt), s.ext)
	return s.write(name, r.Image)
}

// SaveSide writes one face of an ID card session.
//
// Filename format: card_{session}_{side}.{ext} (a re-capture overwrites the side).
func (s *FileSink) SaveSide(sessionID, side string, data []byte) (string, error) {
	name := fmt.Sprintf("card_%s_%s.%s", sessionID, side, s.ext)
	return s.write(name, data)
}

// Stats returns saved and failed counts.
func (s *FileSink) Stats() (saved, failed uint64) {
	return s.saved.Load(), s.failed.Load()
}

func (s *FileSink) write(name string, data []byte) (string, error) {
	if len(data) == 0 {
		s.failed.Add(1)
		return "", fmt.Errorf("empty image for %s", name)
	}

	path := filepath.Join(s.dir, name)
	tmp, err := os.CreateTemp(s.dir, "."+name+".*")
	if err != nil {
		s.failed.Add(1)
		return "", fmt.Errorf("failed to create file: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		s.failed.Add(1)
		return "", fmt.Errorf("failed to write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		s.failed.Add(1)
		return "", fmt.Errorf("failed to close %s: %w", name, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		s.failed.Add(1)
		return "", fmt.Errorf("failed to rename %s: %w", name, err)
	}

	s.saved.Add(1)
	return path, nil
}

func stamp(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.Format("20060102_150405.000")
}
