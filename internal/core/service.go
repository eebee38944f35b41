// Package core wires the scanner daemon: frame source, scanner, extractor,
// storage, MQTT and HTTP surfaces.
package core

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/e7canasta/orion-care-sensor/modules/docscan"
	"github.com/e7canasta/orion-care-sensor/modules/docscan/internal/config"
	"github.com/e7canasta/orion-care-sensor/modules/docscan/internal/control"
	"github.com/e7canasta/orion-care-sensor/modules/docscan/internal/emitter"
	"github.com/e7canasta/orion-care-sensor/modules/docscan/internal/extract"
	"github.com/e7canasta/orion-care-sensor/modules/docscan/internal/health"
	"github.com/e7canasta/orion-care-sensor/modules/docscan/internal/session"
	"github.com/e7canasta/orion-care-sensor/modules/docscan/internal/sink"
	"github.com/e7canasta/orion-care-sensor/modules/docscan/internal/source"
)

// FrameSource produces camera frames.
type FrameSource interface {
	Start(ctx context.Context) error
	Frames() <-chan *docscan.Frame
	Stop()
}

// Publisher receives capture outcomes for external delivery.
type Publisher interface {
	PublishCapture(r docscan.CaptureResult) error
	PublishFailure(f docscan.Failure) error
}

// Service is the main daemon orchestrator
type Service struct {
	cfg    *config.Config
	mode   docscan.Mode
	logger *slog.Logger

	// Core components
	scanner  docscan.Scanner
	cropper  *extract.Cropper
	source   FrameSource
	sink     *sink.FileSink       // nil when output.dir is empty
	session  *session.Session     // id_card mode only
	emitter  *emitter.MQTTEmitter // nil when mqtt.broker is empty
	publish  Publisher
	control  *control.Handler
	http     *health.Server

	// Lifecycle management
	started   time.Time
	mu        sync.RWMutex
	wg        sync.WaitGroup
	isRunning bool
}

// NewService builds every component from cfg. Nothing runs until Run.
func NewService(cfg *config.Config, logger *slog.Logger) (*Service, error) {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Service{
		cfg:    cfg,
		logger: logger.With("instance_id", cfg.InstanceID),
	}

	cropper, err := extract.NewCropper(extract.Options{
		Format:      cfg.Output.Format,
		JPEGQuality: cfg.Output.JPEGQuality,
		MaxWidth:    cfg.Output.MaxWidth,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create extractor: %w", err)
	}
	s.cropper = cropper

	opts, err := cfg.ScannerOptions()
	if err != nil {
		return nil, fmt.Errorf("invalid scanner options: %w", err)
	}
	opts.Extractor = cropper
	opts.Logger = logger
	opts.OnRegion = s.handleRegion
	opts.OnCapture = s.handleCapture
	opts.OnFailure = s.handleFailure
	s.mode = opts.Mode

	scanner, err := docscan.New(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create scanner: %w", err)
	}
	s.scanner = scanner

	if s.mode == docscan.ModeIDCard {
		s.session = session.New()
	}

	if cfg.Output.Dir != "" {
		fs, err := sink.NewFileSink(cfg.Output.Dir, cfg.Output.Format)
		if err != nil {
			return nil, fmt.Errorf("failed to create file sink: %w", err)
		}
		s.sink = fs
	}

	var rotateEvery time.Duration
	if cfg.Source.RotateEveryS > 0 {
		rotateEvery = time.Duration(cfg.Source.RotateEveryS) * time.Second
	}
	src, err := source.NewMockSource(source.MockOptions{
		Width:       cfg.Source.Width,
		Height:      cfg.Source.Height,
		FPS:         cfg.Source.FPS,
		RotateEvery: rotateEvery,
		Logger:      logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create frame source: %w", err)
	}
	s.source = src

	if cfg.MQTT.Broker != "" {
		s.emitter = emitter.NewMQTTEmitter(emitter.Options{
			Broker:     cfg.MQTT.Broker,
			ClientID:   cfg.MQTT.ClientID,
			InstanceID: cfg.InstanceID,
			Topic:      cfg.MQTT.Topic,
			QoS:        cfg.MQTT.QoS,
			Logger:     logger,
		})
		s.publish = s.emitter
	}

	httpOpts := health.Options{
		Addr:    cfg.HTTP.Addr,
		Scanner: scanner,
		Extra:   s.componentStats,
		Logger:  logger,
	}
	if s.emitter != nil {
		httpOpts.MQTTConnected = func() bool { return s.emitter.Stats().Connected }
	}
	s.http = health.NewServer(httpOpts)

	s.logger.Info("service configured",
		"mode", s.mode.String(),
		"output_dir", cfg.Output.Dir,
		"mqtt", cfg.MQTT.Broker != "",
		"http_addr", cfg.HTTP.Addr,
	)
	return s, nil
}

// Run starts all components and feeds frames to the scanner until ctx is
// cancelled or the source closes.
func (s *Service) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return fmt.Errorf("service is already running")
	}
	s.isRunning = true
	s.started = time.Now()
	s.mu.Unlock()

	s.logger.Info("docscan service starting")

	if s.emitter != nil {
		if err := s.emitter.Connect(ctx); err != nil {
			return fmt.Errorf("failed to connect mqtt: %w", err)
		}
		ctrl := control.NewHandler(s.emitter.Client, s.cfg.MQTT.Topic, s.cfg.MQTT.QoS, s.controlCallbacks(), s.logger)
		if err := ctrl.Start(ctx); err != nil {
			return fmt.Errorf("failed to start control plane: %w", err)
		}
		s.mu.Lock()
		s.control = ctrl
		s.mu.Unlock()
	}

	s.http.Start()

	if err := s.scanner.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scanner: %w", err)
	}
	if err := s.source.Start(ctx); err != nil {
		return fmt.Errorf("failed to start frame source: %w", err)
	}

	s.wg.Add(1)
	defer s.wg.Done()
	return s.feed(ctx)
}

// feed is the frame callback loop: one goroutine, never blocked by consumers.
func (s *Service) feed(ctx context.Context) error {
	frames := s.source.Frames()
	for {
		select {
		case <-ctx.Done():
			return nil
		case frame, ok := <-frames:
			if !ok {
				return nil
			}
			s.scanner.ProcessFrame(frame)
		}
	}
}

// Shutdown stops components in dependency order
func (s *Service) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	s.logger.Info("shutting down docscan service")

	// 1. Stop frames first; feed exits when the channel closes.
	s.source.Stop()

	// 2. Stop control plane (no more arm requests)
	s.mu.RLock()
	ctrl := s.control
	s.mu.RUnlock()
	if ctrl != nil {
		ctrl.Stop()
	}

	// 3. Wait for the frame loop: no ProcessFrame may outlive the scanner
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}

	// 4. Drain and stop the scanner dispatcher
	if err := s.scanner.Stop(); err != nil {
		s.logger.Error("failed to stop scanner", "error", err)
	}

	// 5. Stop HTTP
	if err := s.http.Shutdown(ctx); err != nil {
		s.logger.Error("failed to stop http server", "error", err)
	}

	// 6. Disconnect MQTT
	if s.emitter != nil {
		s.emitter.Disconnect()
	}

	s.mu.Lock()
	uptime := time.Since(s.started)
	s.isRunning = false
	s.mu.Unlock()

	s.logger.Info("docscan service shutdown complete",
		"uptime", uptime,
		"stats", s.scanner.Stats().String(),
	)
	return nil
}

// ShutdownTimeout returns the configured graceful shutdown timeout
func (s *Service) ShutdownTimeout() time.Duration {
	if d := s.cfg.ShutdownTimeout(); d > 0 {
		return d
	}
	return 5 * time.Second
}

// GetStatus returns the current status of the service
func (s *Service) GetStatus() map[string]any {
	s.mu.RLock()
	running, started := s.isRunning, s.started
	s.mu.RUnlock()

	state, cycle := s.scanner.State()
	status := map[string]any{
		"instance_id": s.cfg.InstanceID,
		"mode":        s.mode.String(),
		"running":     running,
		"uptime_s":    time.Since(started).Seconds(),
		"state":       state.String(),
		"cycle":       cycle,
	}
	if s.session != nil {
		status["session"] = s.session.Summary()
	}
	return status
}

// componentStats is merged into GET /stats.
func (s *Service) componentStats() map[string]any {
	extracted, empty, failed := s.cropper.Stats()
	out := map[string]any{
		"extractor": map[string]uint64{"extracted": extracted, "empty": empty, "failed": failed},
	}
	if src, ok := s.source.(*source.MockSource); ok {
		out["source"] = src.Stats()
	}
	if s.sink != nil {
		saved, failed := s.sink.Stats()
		out["sink"] = map[string]uint64{"saved": saved, "failed": failed}
	}
	if s.emitter != nil {
		out["mqtt"] = s.emitter.Stats()
	}
	if s.session != nil {
		out["session"] = s.session.Summary()
	}
	return out
}
