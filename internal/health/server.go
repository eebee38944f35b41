// Package health serves the scanner's HTTP surface: liveness, stats and
// the capture controls used by kiosk UIs that cannot speak MQTT.
//
//	GET  /health    liveness + readiness summary
//	GET  /stats     scanner counters
//	GET  /region    latest crop region (404 until the first frame)
//	POST /capture   arm a capture cycle
//	POST /rescan    acknowledge / return to idle
//	PUT  /viewport  publish a new orientation snapshot
package health

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"

	"github.com/e7canasta/orion-care-sensor/modules/docscan/internal/capture"
	"github.com/e7canasta/orion-care-sensor/modules/docscan/internal/orientation"
	"github.com/e7canasta/orion-care-sensor/modules/docscan/internal/pipeline"
)

// Scanner is the subset of the scan pipeline exposed over HTTP.
type Scanner interface {
	Arm() (uint64, error)
	Acknowledge()
	SetViewport(ctx orientation.Context)
	Region() (pipeline.RegionUpdate, bool)
	State() (capture.State, uint64)
	Stats() pipeline.Stats
}

// Options configures the HTTP server
type Options struct {
	Addr    string
	Scanner Scanner

	// MQTTConnected reports broker link state (nil when MQTT is disabled).
	MQTTConnected func() bool
	// Extra is merged into /stats under "components".
	Extra func() map[string]any

	Logger *slog.Logger
}

// HealthStatus represents the health state of the service
type HealthStatus struct {
	Status        string `json:"status"` // "healthy", "degraded"
	UptimeSeconds int64  `json:"uptime_seconds"`
	CaptureState  string `json:"capture_state"`
	Cycle         uint64 `json:"cycle"`
	HasRegion     bool   `json:"has_region"`
	MQTTEnabled   bool   `json:"mqtt_enabled"`
	MQTTConnected bool   `json:"mqtt_connected"`
}

// RegionResponse is the body of GET /region
type RegionResponse struct {
	Left        float64 `json:"left"`
	Top         float64 `json:"top"`
	Width       float64 `json:"width"`
	Height      float64 `json:"height"`
	Clamped     bool    `json:"clamped"`
	FrameWidth  int     `json:"frame_width"`
	FrameHeight int     `json:"frame_height"`
	Rotated     bool    `json:"rotated"`
}

// ViewportRequest is the body of PUT /viewport
type ViewportRequest struct {
	Platform string `json:"platform" validate:"required,oneof=sensor prerotated android ios unknown"`
	Width    int    `json:"width" validate:"gte=0"`
	Height   int    `json:"height" validate:"gte=0"`
}

// Server is a thin wrapper over chi + stdlib http.Server
type Server struct {
	opts     Options
	logger   *slog.Logger
	mux      *chi.Mux
	srv      *http.Server
	started  time.Time
	validate *validator.Validate
}

// NewServer builds the router; call Start to listen.
func NewServer(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	s := &Server{
		opts:     opts,
		logger:   opts.Logger.With("component", "http"),
		mux:      chi.NewRouter(),
		started:  time.Now(),
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}

	s.mux.Use(middleware.RequestID)
	s.mux.Use(middleware.Recoverer)
	s.mux.Use(s.requestLogger)

	s.mux.Get("/health", s.handleHealth)
	s.mux.Get("/stats", s.handleStats)
	s.mux.Get("/region", s.handleRegion)
	s.mux.Post("/capture", s.handleCapture)
	s.mux.Post("/rescan", s.handleRescan)
	s.mux.Put("/viewport", s.handleViewport)

	s.srv = &http.Server{
		Addr:              opts.Addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Handler returns the router (used by tests and embedding servers).
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start listens in a separate goroutine and does not block
func (s *Server) Start() {
	s.logger.Info("starting http server",
		"addr", s.opts.Addr,
		"endpoints", []string{"/health", "/stats", "/region", "/capture", "/rescan", "/viewport"},
	)

	go func() {
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server failed", "error", err)
		}
	}()
}

// Shutdown stops the server gracefully
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// HealthCheck returns the current health status of the service
func (s *Server) HealthCheck() HealthStatus {
	state, cycle := s.opts.Scanner.State()
	_, hasRegion := s.opts.Scanner.Region()

	status := HealthStatus{
		Status:        "healthy",
		UptimeSeconds: int64(time.Since(s.started).Seconds()),
		CaptureState:  state.String(),
		Cycle:         cycle,
		HasRegion:     hasRegion,
		MQTTEnabled:   s.opts.MQTTConnected != nil,
	}
	if status.MQTTEnabled {
		status.MQTTConnected = s.opts.MQTTConnected()
	}

	// No frames yet or broker down: still serving, but degraded.
	if !hasRegion || (status.MQTTEnabled && !status.MQTTConnected) {
		status.Status = "degraded"
	}
	return status
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.HealthCheck())
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{"scanner": s.opts.Scanner.Stats()}
	if s.opts.Extra != nil {
		body["components"] = s.opts.Extra()
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleRegion(w http.ResponseWriter, r *http.Request) {
	u, ok := s.opts.Scanner.Region()
	if !ok {
		writeError(w, http.StatusNotFound, "no region yet")
		return
	}
	writeJSON(w, http.StatusOK, RegionResponse{
		Left:        u.Region.Left,
		Top:         u.Region.Top,
		Width:       u.Region.Width,
		Height:      u.Region.Height,
		Clamped:     u.Region.Clamped,
		FrameWidth:  u.FrameWidth,
		FrameHeight: u.FrameHeight,
		Rotated:     u.Rotated,
	})
}

func (s *Server) handleCapture(w http.ResponseWriter, r *http.Request) {
	cycle, err := s.opts.Scanner.Arm()
	switch {
	case err == nil:
		writeJSON(w, http.StatusAccepted, map[string]any{"state": capture.Armed.String(), "cycle": cycle})
	case errors.Is(err, capture.ErrCaptureBusy):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, pipeline.ErrBacklog):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) handleRescan(w http.ResponseWriter, r *http.Request) {
	s.opts.Scanner.Acknowledge()
	state, cycle := s.opts.Scanner.State()
	writeJSON(w, http.StatusOK, map[string]any{"state": state.String(), "cycle": cycle})
}

func (s *Server) handleViewport(w http.ResponseWriter, r *http.Request) {
	var req ViewportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	platform, err := orientation.ParsePlatform(req.Platform)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	s.opts.Scanner.SetViewport(orientation.Context{
		Platform:       platform,
		ViewportWidth:  req.Width,
		ViewportHeight: req.Height,
	})
	w.WriteHeader(http.StatusNoContent)
}

// requestLogger logs each request at debug level with chi's request id.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
