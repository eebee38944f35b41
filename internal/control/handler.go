// Package control receives scanner commands over MQTT.
//
// Commands arrive as JSON on {prefix}/control and are answered on
// {prefix}/control/responses:
//
//	{"command": "capture"}
//	{"command": "rescan"}
//	{"command": "set_viewport", "params": {"platform": "sensor", "width": 1080, "height": 1920}}
//	{"command": "set_side", "params": {"side": "back"}}
//	{"command": "new_session"}
//	{"command": "get_status"}
package control

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Command represents a control plane command
type Command struct {
	Command string         `json:"command"`
	Params  map[string]any `json:"params,omitempty"`
}

// Response represents a command response
type Response struct {
	CommandAck string         `json:"command_ack"`
	Status     string         `json:"status"`
	Data       map[string]any `json:"data,omitempty"`
	Error      string         `json:"error,omitempty"`
	Timestamp  string         `json:"timestamp"`
}

// ViewportParams is the payload of set_viewport.
type ViewportParams struct {
	Platform string
	Width    int
	Height   int
}

// Callbacks contains the scanner operations exposed to the control plane
type Callbacks struct {
	OnCapture     func() (cycle uint64, err error)
	OnRescan      func() (state string)
	OnSetViewport func(ViewportParams) error
	OnSetSide     func(side string) error
	OnNewSession  func() (id string)
	OnGetStatus   func() map[string]any
}

// Handler handles control plane commands
type Handler struct {
	client    mqtt.Client
	topic     string
	qos       byte
	callbacks Callbacks
	logger    *slog.Logger

	commands chan Command

	mu       sync.Mutex
	handled  uint64
	rejected uint64
	stopped  bool
}

// NewHandler creates a new control plane handler for {prefix}/control
func NewHandler(client mqtt.Client, prefix string, qos byte, callbacks Callbacks, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		client:    client,
		topic:     prefix + "/control",
		qos:       qos,
		callbacks: callbacks,
		logger:    logger.With("component", "control"),
		commands:  make(chan Command, 10),
	}
}

// Start subscribes and processes commands until ctx is cancelled or Stop is called
func (h *Handler) Start(ctx context.Context) error {
	h.logger.Info("subscribing to control plane", "topic", h.topic, "qos", h.qos)

	token := h.client.Subscribe(h.topic, h.qos, h.messageHandler)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("control plane subscription timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("control plane subscription failed: %w", err)
	}

	go h.processCommands(ctx)

	h.logger.Info("control plane handler started")
	return nil
}

// Stop unsubscribes and ends command processing
func (h *Handler) Stop() {
	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		return
	}
	h.stopped = true
	close(h.commands)
	h.mu.Unlock()

	if h.client != nil && h.client.IsConnected() {
		h.client.Unsubscribe(h.topic).WaitTimeout(time.Second)
	}
	h.logger.Info("control plane handler stopped")
}

// Stats returns handled and rejected command counts.
func (h *Handler) Stats() (handled, rejected uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.handled, h.rejected
}

// messageHandler runs on the paho router goroutine; it never blocks.
func (h *Handler) messageHandler(_ mqtt.Client, msg mqtt.Message) {
	var cmd Command
	if err := json.Unmarshal(msg.Payload(), &cmd); err != nil {
		h.logger.Error("failed to parse control command", "error", err)
		h.sendResponse(Response{
			CommandAck: "unknown",
			Status:     "error",
			Error:      "invalid JSON",
		})
		return
	}

	h.logger.Info("control command received", "command", cmd.Command)

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped {
		return
	}
	select {
	case h.commands <- cmd:
	default:
		h.rejected++
		h.logger.Warn("command queue full, dropping command", "command", cmd.Command)
	}
}

func (h *Handler) processCommands(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case cmd, ok := <-h.commands:
			if !ok {
				return
			}
			h.sendResponse(h.handleCommand(cmd))
		}
	}
}

// handleCommand executes a command
func (h *Handler) handleCommand(cmd Command) Response {
	resp := Response{CommandAck: cmd.Command}

	switch cmd.Command {
	case "capture":
		if h.callbacks.OnCapture == nil {
			return notImplemented(resp)
		}
		cycle, err := h.callbacks.OnCapture()
		if err != nil {
			resp.Status = "error"
			resp.Error = err.Error()
			break
		}
		resp.Status = "armed"
		resp.Data = map[string]any{"cycle": cycle}

	case "rescan":
		if h.callbacks.OnRescan == nil {
			return notImplemented(resp)
		}
		resp.Status = "success"
		resp.Data = map[string]any{"previous_state": h.callbacks.OnRescan()}

	case "set_viewport":
		if h.callbacks.OnSetViewport == nil {
			return notImplemented(resp)
		}
		params, err := parseViewport(cmd.Params)
		if err == nil {
			err = h.callbacks.OnSetViewport(params)
		}
		if err != nil {
			resp.Status = "error"
			resp.Error = err.Error()
			break
		}
		resp.Status = "success"

	case "set_side":
		if h.callbacks.OnSetSide == nil {
			return notImplemented(resp)
		}
		side, _ := cmd.Params["side"].(string)
		if err := h.callbacks.OnSetSide(side); err != nil {
			resp.Status = "error"
			resp.Error = err.Error()
			break
		}
		resp.Status = "success"
		resp.Data = map[string]any{"side": side}

	case "new_session":
		if h.callbacks.OnNewSession == nil {
			return notImplemented(resp)
		}
		resp.Status = "success"
		resp.Data = map[string]any{"session_id": h.callbacks.OnNewSession()}

	case "get_status":
		if h.callbacks.OnGetStatus == nil {
			return notImplemented(resp)
		}
		resp.Status = "success"
		resp.Data = h.callbacks.OnGetStatus()

	default:
		resp.Status = "error"
		resp.Error = fmt.Sprintf("unknown command: %s", cmd.Command)
	}

	h.mu.Lock()
	h.handled++
	h.mu.Unlock()
	return resp
}

func notImplemented(resp Response) Response {
	resp.Status = "error"
	resp.Error = resp.CommandAck + " not implemented"
	return resp
}

// parseViewport reads set_viewport params; JSON numbers arrive as float64.
func parseViewport(p map[string]any) (ViewportParams, error) {
	var v ViewportParams
	if s, ok := p["platform"].(string); ok {
		v.Platform = s
	}
	w, wok := p["width"].(float64)
	hgt, hok := p["height"].(float64)
	if !wok || !hok {
		return v, fmt.Errorf("set_viewport requires numeric width and height")
	}
	v.Width, v.Height = int(w), int(hgt)
	return v, nil
}

func (h *Handler) sendResponse(resp Response) {
	resp.Timestamp = time.Now().UTC().Format(time.RFC3339)

	payload, err := json.Marshal(resp)
	if err != nil {
		h.logger.Error("failed to marshal control response", "error", err)
		return
	}

	token := h.client.Publish(h.topic+"/responses", h.qos, false, payload)
	if !token.WaitTimeout(2 * time.Second) {
		h.logger.Warn("control response publish timeout", "command", resp.CommandAck)
	}
}
