// Package emitter publishes capture outcomes to MQTT as msgpack events.
package emitter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/e7canasta/orion-care-sensor/modules/docscan/internal/geometry"
	"github.com/e7canasta/orion-care-sensor/modules/docscan/internal/pipeline"
)

// ErrNotConnected is returned by publishes while the broker link is down.
var ErrNotConnected = errors.New("mqtt not connected")

const (
	KindCapture = "capture"
	KindFailure = "failure"

	publishTimeout = 2 * time.Second
	connectTimeout = 5 * time.Second
)

// Options configures the MQTT emitter
type Options struct {
	Broker     string // tcp://host:port (scheme optional)
	ClientID   string
	InstanceID string
	Topic      string // prefix; events go to {Topic}/captures and {Topic}/failures
	QoS        byte
	Logger     *slog.Logger
}

// CaptureEvent is the msgpack payload published for every capture outcome.
type CaptureEvent struct {
	EventID    string              `msgpack:"event_id"`
	InstanceID string              `msgpack:"instance_id"`
	Kind       string              `msgpack:"kind"`
	Cycle      uint64              `msgpack:"cycle"`
	CaptureID  string              `msgpack:"capture_id,omitempty"`
	Region     geometry.CropRegion `msgpack:"region"`
	Image      []byte              `msgpack:"image,omitempty"`
	FrameSeq   uint64              `msgpack:"frame_seq,omitempty"`
	TraceID    string              `msgpack:"trace_id,omitempty"`
	Attempts   int                 `msgpack:"attempts"`
	Error      string              `msgpack:"error,omitempty"`
	Timestamp  time.Time           `msgpack:"timestamp"`
}

// DecodeEvent parses a payload produced by the emitter.
func DecodeEvent(payload []byte) (CaptureEvent, error) {
	var ev CaptureEvent
	if err := msgpack.Unmarshal(payload, &ev); err != nil {
		return CaptureEvent{}, fmt.Errorf("failed to decode capture event: %w", err)
	}
	return ev, nil
}

// MQTTEmitter publishes capture outcomes to an MQTT broker
type MQTTEmitter struct {
	opts   Options
	logger *slog.Logger
	Client mqtt.Client // Exported for control plane

	mu        sync.RWMutex
	published map[string]uint64 // count per topic
	errors    uint64
	connected bool
}

// NewMQTTEmitter creates a new MQTT emitter. Call Connect before publishing.
func NewMQTTEmitter(opts Options) *MQTTEmitter {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &MQTTEmitter{
		opts:      opts,
		logger:    opts.Logger.With("component", "emitter"),
		published: make(map[string]uint64),
	}
}

// NewWithClient wraps an already connected client.
func NewWithClient(client mqtt.Client, opts Options) *MQTTEmitter {
	e := NewMQTTEmitter(opts)
	e.Client = client
	e.connected = client.IsConnected()
	return e
}

// Connect establishes connection to MQTT broker
func (e *MQTTEmitter) Connect(ctx context.Context) error {
	broker := e.opts.Broker
	if !strings.Contains(broker, "://") {
		broker = "tcp://" + broker
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(e.opts.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)

	opts.OnConnect = func(c mqtt.Client) {
		e.setConnected(true)
		e.logger.Info("mqtt connection established",
			"broker", broker,
			"client_id", e.opts.ClientID,
			"auto_reconnect", "enabled")
	}

	opts.OnConnectionLost = func(c mqtt.Client, err error) {
		e.setConnected(false)
		e.logger.Warn("mqtt connection lost, will auto-reconnect",
			"error", err,
			"broker", broker,
			"max_retry_interval", "30s")
	}

	e.Client = mqtt.NewClient(opts)

	e.logger.Info("connecting to mqtt broker", "broker", broker)

	token := e.Client.Connect()
	select {
	case <-token.Done():
	case <-ctx.Done():
		return fmt.Errorf("mqtt connection aborted: %w", ctx.Err())
	case <-time.After(connectTimeout):
		return fmt.Errorf("mqtt connection timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connection failed: %w", err)
	}

	e.setConnected(true)
	return nil
}

// PublishCapture publishes a successful capture to {Topic}/captures
func (e *MQTTEmitter) PublishCapture(r pipeline.CaptureResult) error {
	return e.publish(e.opts.Topic+"/captures", CaptureEvent{
		EventID:    uuid.NewString(),
		InstanceID: e.opts.InstanceID,
		Kind:       KindCapture,
		Cycle:      r.Cycle,
		CaptureID:  r.ID.String(),
		Region:     r.Region,
		Image:      r.Image,
		FrameSeq:   r.FrameSeq,
		TraceID:    r.TraceID,
		Attempts:   r.Attempt,
		Timestamp:  r.CapturedAt,
	})
}

// PublishFailure publishes a failed cycle to {Topic}/failures
func (e *MQTTEmitter) PublishFailure(f pipeline.Failure) error {
	ev := CaptureEvent{
		EventID:    uuid.NewString(),
		InstanceID: e.opts.InstanceID,
		Kind:       KindFailure,
		Cycle:      f.Cycle,
		Attempts:   f.Attempts,
		Timestamp:  f.At,
	}
	if f.Err != nil {
		ev.Error = f.Err.Error()
	}
	return e.publish(e.opts.Topic+"/failures", ev)
}

func (e *MQTTEmitter) publish(topic string, ev CaptureEvent) error {
	if !e.isConnected() {
		e.countError()
		return ErrNotConnected
	}

	payload, err := msgpack.Marshal(&ev)
	if err != nil {
		e.countError()
		return fmt.Errorf("failed to marshal capture event: %w", err)
	}

	token := e.Client.Publish(topic, e.opts.QoS, false, payload)
	if !token.WaitTimeout(publishTimeout) {
		e.countError()
		return fmt.Errorf("publish timeout")
	}
	if err := token.Error(); err != nil {
		e.countError()
		return fmt.Errorf("publish failed: %w", err)
	}

	e.mu.Lock()
	e.published[topic]++
	e.mu.Unlock()

	e.logger.Debug("capture event published",
		"topic", topic,
		"kind", ev.Kind,
		"cycle", ev.Cycle,
		"size", len(payload),
	)
	return nil
}

// Disconnect closes the MQTT connection
func (e *MQTTEmitter) Disconnect() {
	if e.Client != nil && e.Client.IsConnected() {
		e.Client.Disconnect(250) // 250ms grace period
		e.logger.Info("mqtt disconnected")
	}
	e.setConnected(false)
}

// Stats contains emitter statistics
type Stats struct {
	Connected bool              `json:"connected"`
	Published map[string]uint64 `json:"published"`
	Errors    uint64            `json:"errors"`
}

// Stats returns emitter statistics
func (e *MQTTEmitter) Stats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()

	published := make(map[string]uint64, len(e.published))
	for k, v := range e.published {
		published[k] = v
	}
	return Stats{
		Connected: e.connected,
		Published: published,
		Errors:    e.errors,
	}
}

func (e *MQTTEmitter) isConnected() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.connected
}

func (e *MQTTEmitter) setConnected(v bool) {
	e.mu.Lock()
	e.connected = v
	e.mu.Unlock()
}

func (e *MQTTEmitter) countError() {
	e.mu.Lock()
	e.errors++
	e.mu.Unlock()
}

