// Package source provides frame sources for the scanner daemon.
package source

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/e7canasta/orion-care-sensor/modules/docscan/internal/pipeline"
)

// Stats contains source statistics
type Stats struct {
	FramesEmitted uint64  `json:"frames_emitted"`
	FramesDropped uint64  `json:"frames_dropped"`
	Rotations     uint64  `json:"rotations"`
	FPSTarget     int     `json:"fps_target"`
	FPSReal       float64 `json:"fps_real"`
	Resolution    string  `json:"resolution"`
	IsRunning     bool    `json:"is_running"`
}

// MockOptions configures a MockSource.
type MockOptions struct {
	Width  int
	Height int
	FPS    int
	// RotateEvery swaps width and height periodically, simulating a device
	// turned between portrait and landscape (0 disables).
	RotateEvery time.Duration
	Logger      *slog.Logger
}

// MockSource generates synthetic RGB24 frames at a fixed rate.
//
// Frames are sent non-blocking: when the consumer is behind, the frame is
// dropped and counted. Frame.Data is shared between frames of the same
// orientation and must be treated as read-only.
type MockSource struct {
	opts   MockOptions
	logger *slog.Logger

	framesCh chan *pipeline.Frame
	stopCh   chan struct{}
	wg       sync.WaitGroup

	// Pre-rendered buffers, index 0 = configured orientation, 1 = swapped.
	buffers [2][]byte

	mu            sync.RWMutex
	seq           uint64
	rotated       bool
	framesEmitted uint64
	framesDropped uint64
	rotations     uint64
	isRunning     bool
	stopped       bool
	startTime     time.Time
}

// NewMockSource creates a new mock frame source
func NewMockSource(opts MockOptions) (*MockSource, error) {
	if opts.Width <= 0 || opts.Height <= 0 {
		return nil, fmt.Errorf("mock source: invalid size %dx%d", opts.Width, opts.Height)
	}
	if opts.FPS <= 0 {
		return nil, fmt.Errorf("mock source: fps must be > 0, got %d", opts.FPS)
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	m := &MockSource{
		opts:     opts,
		logger:   opts.Logger.With("component", "source"),
		framesCh: make(chan *pipeline.Frame, 2),
		stopCh:   make(chan struct{}),
	}
	m.buffers[0] = renderCard(opts.Width, opts.Height)
	if opts.RotateEvery > 0 {
		m.buffers[1] = renderCard(opts.Height, opts.Width)
	}
	return m, nil
}

// Start begins generating frames
func (m *MockSource) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.isRunning || m.stopped {
		m.mu.Unlock()
		return fmt.Errorf("source already started")
	}
	m.isRunning = true
	m.startTime = time.Now()
	m.mu.Unlock()

	m.logger.Info("mock source starting",
		"width", m.opts.Width,
		"height", m.opts.Height,
		"fps", m.opts.FPS,
		"rotate_every", m.opts.RotateEvery,
	)

	m.wg.Add(1)
	go m.generateFrames(ctx)
	return nil
}

// Frames returns the frames channel. It is closed by Stop.
func (m *MockSource) Frames() <-chan *pipeline.Frame {
	return m.framesCh
}

// Stop stops the generator and closes the frames channel. Idempotent.
func (m *MockSource) Stop() {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	m.stopped = true
	m.mu.Unlock()

	close(m.stopCh)
	m.wg.Wait()
	close(m.framesCh)

	m.mu.Lock()
	m.isRunning = false
	emitted := m.framesEmitted
	m.mu.Unlock()

	m.logger.Info("mock source stopped", "frames_emitted", emitted)
}

// Stats returns source statistics
func (m *MockSource) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var fpsReal float64
	if m.isRunning && m.framesEmitted > 0 {
		if elapsed := time.Since(m.startTime).Seconds(); elapsed > 0 {
			fpsReal = float64(m.framesEmitted) / elapsed
		}
	}

	return Stats{
		FramesEmitted: m.framesEmitted,
		FramesDropped: m.framesDropped,
		Rotations:     m.rotations,
		FPSTarget:     m.opts.FPS,
		FPSReal:       fpsReal,
		Resolution:    fmt.Sprintf("%dx%d", m.opts.Width, m.opts.Height),
		IsRunning:     m.isRunning,
	}
}

func (m *MockSource) generateFrames(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(time.Second / time.Duration(m.opts.FPS))
	defer ticker.Stop()

	var rotate <-chan time.Time
	if m.opts.RotateEvery > 0 {
		rt := time.NewTicker(m.opts.RotateEvery)
		defer rt.Stop()
		rotate = rt.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		case <-rotate:
			m.mu.Lock()
			m.rotated = !m.rotated
			m.rotations++
			m.mu.Unlock()
			m.logger.Debug("mock source rotated")
		case <-ticker.C:
			frame := m.createFrame()
			select {
			case m.framesCh <- frame:
				m.mu.Lock()
				m.framesEmitted++
				m.mu.Unlock()
			default:
				m.mu.Lock()
				m.framesDropped++
				m.mu.Unlock()
			}
		}
	}
}

func (m *MockSource) createFrame() *pipeline.Frame {
	m.mu.Lock()
	seq := m.seq
	m.seq++
	rotated := m.rotated
	m.mu.Unlock()

	w, h, buf := m.opts.Width, m.opts.Height, m.buffers[0]
	if rotated {
		w, h, buf = h, w, m.buffers[1]
	}

	return &pipeline.Frame{
		Data:      buf,
		Format:    pipeline.FormatRGB24,
		Width:     w,
		Height:    h,
		Timestamp: time.Now(),
		Seq:       seq,
		TraceID:   uuid.New().String(),
	}
}

// renderCard draws a light card on a dark background, centered at 70% of
// the frame width with ID-1 proportions, so crops have visible content.
func renderCard(w, h int) []byte {
	data := make([]byte, w*h*3)

	cw := w * 70 / 100
	ch := cw * 54 / 86
	if ch > h*9/10 {
		ch = h * 9 / 10
	}
	x0, y0 := (w-cw)/2, (h-ch)/2

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := (y*w + x) * 3
			if x >= x0 && x < x0+cw && y >= y0 && y < y0+ch {
				data[i], data[i+1], data[i+2] = 235, 232, 220
			} else {
				data[i], data[i+1], data[i+2] = 30, 34, byte(40+y*40/h)
			}
		}
	}
	return data
}
