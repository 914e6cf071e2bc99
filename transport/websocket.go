package transport

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/elegoo-bridge/core/perrors"
)

// wsEndpointPath is the fixed path the WebSocket-SDCP dialect listens on.
const wsEndpointPath = "/websocket"

// WebSocketTransport is the Transport for the newer WebSocket-SDCP dialect
// (spec.md §4.1). One instance wraps exactly one connection attempt; Session
// builds a new WebSocketTransport per reconnect.
type WebSocketTransport struct {
	addr string // "ip:port", e.g. "192.168.1.50:3030"

	mu     sync.Mutex
	conn   *websocket.Conn
	frames chan []byte
	err    error
	closed bool
}

// NewWebSocketTransport builds a transport bound to a printer address.
func NewWebSocketTransport(addr string) *WebSocketTransport {
	return &WebSocketTransport{addr: addr, frames: make(chan []byte, 64)}
}

func (t *WebSocketTransport) Open(ctx context.Context) error {
	url := fmt.Sprintf("ws://%s%s", t.addr, wsEndpointPath)

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return perrors.New(perrors.TransportReset, fmt.Errorf("websocket dial %s: %w", url, err))
	}

	t.mu.Lock()
	t.conn = conn
	t.mu.Unlock()

	go t.readLoop()
	return nil
}

func (t *WebSocketTransport) readLoop() {
	defer close(t.frames)

	for {
		msgType, data, err := t.conn.ReadMessage()
		if err != nil {
			t.mu.Lock()
			if !t.closed {
				t.err = perrors.New(perrors.TransportReset, err)
			}
			t.mu.Unlock()
			return
		}

		// The dialect is JSON-only; a binary frame means the printer has
		// fallen back to a raw video stream on the control socket, which
		// this dialect never does. Treat it as a protocol violation rather
		// than silently dropping it.
		if msgType == websocket.BinaryMessage {
			t.mu.Lock()
			if !t.closed {
				t.err = perrors.New(perrors.ProtocolError, fmt.Errorf("unexpected binary frame on control websocket"))
			}
			t.mu.Unlock()
			return
		}

		select {
		case t.frames <- data:
		default:
			// Slow consumer on the inbound side: drop rather than block the
			// socket read loop and stall heartbeat detection.
		}
	}
}

func (t *WebSocketTransport) Send(data []byte) error {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		return perrors.New(perrors.SessionClosed, fmt.Errorf("websocket transport not open"))
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return perrors.New(perrors.TransportReset, err)
	}
	return nil
}

func (t *WebSocketTransport) Frames() <-chan []byte { return t.frames }

func (t *WebSocketTransport) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

func (t *WebSocketTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	conn := t.conn
	t.mu.Unlock()

	if conn == nil {
		return nil
	}
	return conn.Close()
}
