package transport

import (
	"context"
	"fmt"
	"sync"

	mqtt "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"

	"github.com/elegoo-bridge/core/perrors"
)

// MqttHostTransport is the Transport for legacy/CC1 host-broker mode: the
// core runs its own embedded MQTT broker and waits for the printer to connect
// to it (spec.md §4.1, "Legacy-MQTT"). Nothing in the core sends the M66666
// redirect directive; the printer must already be pointed at this broker.
// There is no reference pack example of an embedded broker; mochi-mqtt is an
// out-of-pack pick (see DESIGN.md).
type MqttHostTransport struct {
	listenAddr  string // ":1883" or "host:1883"
	mainboardID string
	subID       string

	mu      sync.Mutex
	server  *mqtt.Server
	frames  chan []byte
	err     error
	closed  bool
}

// NewMqttHostTransport builds a transport that hosts its own broker.
func NewMqttHostTransport(listenAddr, mainboardID string) *MqttHostTransport {
	return &MqttHostTransport{
		listenAddr:  listenAddr,
		mainboardID: mainboardID,
		subID:       "bridge-" + mainboardID,
		frames:      make(chan []byte, 64),
	}
}

func (t *MqttHostTransport) Open(ctx context.Context) error {
	server := mqtt.New(nil)
	if err := server.AddHook(new(auth.AllowHook), nil); err != nil {
		return perrors.New(perrors.TransportReset, fmt.Errorf("mqtt host: install auth hook: %w", err))
	}

	tcp := listeners.NewTCP(listeners.Config{ID: "printer-bridge", Address: t.listenAddr})
	if err := server.AddListener(tcp); err != nil {
		return perrors.New(perrors.TransportReset, fmt.Errorf("mqtt host: listen %s: %w", t.listenAddr, err))
	}

	topic := t.statusTopic() + "/#"
	if err := server.Subscribe(topic, t.subID, t.onMessage); err != nil {
		return perrors.New(perrors.TransportReset, fmt.Errorf("mqtt host: subscribe %s: %w", topic, err))
	}

	go func() {
		if err := server.Serve(); err != nil {
			t.mu.Lock()
			if !t.closed {
				t.err = perrors.New(perrors.TransportReset, err)
			}
			t.mu.Unlock()
		}
	}()

	t.mu.Lock()
	t.server = server
	t.mu.Unlock()
	return nil
}

func (t *MqttHostTransport) onMessage(_ []byte, _ mqtt.Subscription, pk mqtt.Packet) {
	select {
	case t.frames <- pk.Payload:
	default:
	}
}

// statusTopic is the shared base under which both the request and status
// topics for this printer live, mirroring the legacy WS shape carried over
// MQTT: "sdcp/request/<id>" and "sdcp/status/<id>".
func (t *MqttHostTransport) statusTopic() string {
	return "sdcp"
}

func (t *MqttHostTransport) Send(data []byte) error {
	t.mu.Lock()
	server := t.server
	t.mu.Unlock()
	if server == nil {
		return perrors.New(perrors.SessionClosed, fmt.Errorf("mqtt host transport not open"))
	}

	topic := fmt.Sprintf("sdcp/request/%s", t.mainboardID)
	if err := server.Publish(topic, data, false, 0); err != nil {
		return perrors.New(perrors.TransportReset, err)
	}
	return nil
}

func (t *MqttHostTransport) Frames() <-chan []byte { return t.frames }

func (t *MqttHostTransport) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

func (t *MqttHostTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	server := t.server
	t.mu.Unlock()

	if server != nil {
		_ = server.Close()
	}
	return nil
}
