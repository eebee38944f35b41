package control

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

type doneToken struct{ err error }

func (doneToken) Wait() bool                     { return true }
func (doneToken) WaitTimeout(time.Duration) bool { return true }
func (t doneToken) Error() error                 { return t.err }
func (doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

type fakeMessage struct {
	mqtt.Message
	topic   string
	payload []byte
}

func (m fakeMessage) Topic() string   { return m.topic }
func (m fakeMessage) Payload() []byte { return m.payload }

// fakeBroker captures the subscription and the responses published on it.
type fakeBroker struct {
	mqtt.Client

	mu        sync.Mutex
	handler   mqtt.MessageHandler
	subTopic  string
	responses chan Response
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{responses: make(chan Response, 16)}
}

func (b *fakeBroker) IsConnected() bool { return true }

func (b *fakeBroker) Subscribe(topic string, _ byte, cb mqtt.MessageHandler) mqtt.Token {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subTopic = topic
	b.handler = cb
	return doneToken{}
}

func (b *fakeBroker) Unsubscribe(...string) mqtt.Token { return doneToken{} }

func (b *fakeBroker) Publish(topic string, _ byte, _ bool, payload interface{}) mqtt.Token {
	var resp Response
	if err := json.Unmarshal(payload.([]byte), &resp); err == nil {
		b.responses <- resp
	}
	return doneToken{}
}

func (b *fakeBroker) send(t *testing.T, payload string) {
	t.Helper()
	b.mu.Lock()
	h, topic := b.handler, b.subTopic
	b.mu.Unlock()
	if h == nil {
		t.Fatal("no subscription")
	}
	h(b, fakeMessage{topic: topic, payload: []byte(payload)})
}

func (b *fakeBroker) response(t *testing.T) Response {
	t.Helper()
	select {
	case r := <-b.responses:
		return r
	case <-time.After(time.Second):
		t.Fatal("no control response")
		return Response{}
	}
}

func startHandler(t *testing.T, cb Callbacks) (*Handler, *fakeBroker) {
	t.Helper()
	broker := newFakeBroker()
	h := NewHandler(broker, "care/docscan/desk-01", 1, cb, slog.New(slog.NewTextHandler(io.Discard, nil)))

	ctx, cancel := context.WithCancel(context.Background())
	if err := h.Start(ctx); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	t.Cleanup(func() {
		h.Stop()
		cancel()
	})
	if broker.subTopic != "care/docscan/desk-01/control" {
		t.Fatalf("subscribed to %q", broker.subTopic)
	}
	return h, broker
}

func TestCaptureCommand(t *testing.T) {
	_, broker := startHandler(t, Callbacks{
		OnCapture: func() (uint64, error) { return 4, nil },
	})

	broker.send(t, `{"command":"capture"}`)
	resp := broker.response(t)
	if resp.CommandAck != "capture" || resp.Status != "armed" {
		t.Fatalf("response = %+v", resp)
	}
	if resp.Data["cycle"] != float64(4) {
		t.Errorf("cycle = %v, want 4", resp.Data["cycle"])
	}
	if resp.Timestamp == "" {
		t.Error("missing timestamp")
	}
}

func TestCaptureCommandBusy(t *testing.T) {
	_, broker := startHandler(t, Callbacks{
		OnCapture: func() (uint64, error) { return 0, errors.New("capture already in progress") },
	})

	broker.send(t, `{"command":"capture"}`)
	resp := broker.response(t)
	if resp.Status != "error" || resp.Error != "capture already in progress" {
		t.Errorf("response = %+v", resp)
	}
}

func TestSetViewportCommand(t *testing.T) {
	var got ViewportParams
	_, broker := startHandler(t, Callbacks{
		OnSetViewport: func(v ViewportParams) error {
			got = v
			return nil
		},
	})

	broker.send(t, `{"command":"set_viewport","params":{"platform":"sensor","width":1080,"height":1920}}`)
	if resp := broker.response(t); resp.Status != "success" {
		t.Fatalf("response = %+v", resp)
	}
	if got != (ViewportParams{Platform: "sensor", Width: 1080, Height: 1920}) {
		t.Errorf("viewport = %+v", got)
	}

	broker.send(t, `{"command":"set_viewport","params":{"platform":"sensor"}}`)
	if resp := broker.response(t); resp.Status != "error" {
		t.Errorf("missing dimensions accepted: %+v", resp)
	}
}

func TestRescanAndStatus(t *testing.T) {
	h, broker := startHandler(t, Callbacks{
		OnRescan:    func() string { return "captured" },
		OnGetStatus: func() map[string]any { return map[string]any{"state": "idle"} },
	})

	broker.send(t, `{"command":"rescan"}`)
	if resp := broker.response(t); resp.Data["previous_state"] != "captured" {
		t.Errorf("rescan response = %+v", resp)
	}

	broker.send(t, `{"command":"get_status"}`)
	if resp := broker.response(t); resp.Data["state"] != "idle" {
		t.Errorf("status response = %+v", resp)
	}

	if handled, _ := h.Stats(); handled != 2 {
		t.Errorf("handled = %d, want 2", handled)
	}
}

func TestUnknownAndInvalidCommands(t *testing.T) {
	_, broker := startHandler(t, Callbacks{})

	broker.send(t, `not json`)
	if resp := broker.response(t); resp.CommandAck != "unknown" || resp.Error != "invalid JSON" {
		t.Errorf("invalid json response = %+v", resp)
	}

	broker.send(t, `{"command":"self_destruct"}`)
	if resp := broker.response(t); resp.Status != "error" {
		t.Errorf("unknown command response = %+v", resp)
	}

	broker.send(t, `{"command":"capture"}`)
	if resp := broker.response(t); resp.Error != "capture not implemented" {
		t.Errorf("missing callback response = %+v", resp)
	}
}

func TestStopIsIdempotent(t *testing.T) {
	h, broker := startHandler(t, Callbacks{})
	h.Stop()
	h.Stop()

	// Messages after Stop are ignored rather than panicking on a closed channel.
	broker.send(t, `{"command":"get_status"}`)
}

func TestSessionCommands(t *testing.T) {
	var side string
	_, broker := startHandler(t, Callbacks{
		OnSetSide: func(s string) error {
			if s != "front" && s != "back" {
				return errors.New("unknown card side")
			}
			side = s
			return nil
		},
		OnNewSession: func() string { return "session-2" },
	})

	broker.send(t, `{"command":"set_side","params":{"side":"back"}}`)
	if resp := broker.response(t); resp.Status != "success" || side != "back" {
		t.Errorf("set_side response = %+v, side = %q", resp, side)
	}

	broker.send(t, `{"command":"set_side","params":{"side":"edge"}}`)
	if resp := broker.response(t); resp.Status != "error" {
		t.Errorf("bad side accepted: %+v", resp)
	}

	broker.send(t, `{"command":"new_session"}`)
	if resp := broker.response(t); resp.Data["session_id"] != "session-2" {
		t.Errorf("new_session response = %+v", resp)
	}
}
