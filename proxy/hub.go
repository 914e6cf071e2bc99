// Package proxy multiplexes N downstream WebSocket clients and MJPEG video
// viewers onto one upstream printer Session, so every consumer appears to
// have a direct connection. Hub is the control-plane half; VideoRelay is the
// video-plane half (spec.md §4.6).
//
// Hub generalizes the teacher's moonraker.WSHub: register/unregister under a
// sync.RWMutex-guarded client map, a per-client mutex-serialized send, and
// broadcast by ranging over the client map. The teacher terminates Moonraker
// JSON-RPC itself; Hub instead forwards commands upstream and relays status
// pushes, since it is a protocol proxy rather than an RPC server.
package proxy

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/elegoo-bridge/core/model"
)

// Upstream is the subset of client.Client the Hub depends on.
type Upstream interface {
	Invoke(ctx context.Context, method int, params map[string]any) (model.ResponseEnvelope, error)
	Subscribe() <-chan model.StatusSnapshot
	Snapshot() model.StatusSnapshot
	SubscribeRaw() <-chan []byte
	LastRawStatus() []byte
}

// downstreamQueueSize and stallTimeout implement spec.md §4.6's backpressure
// rule: bounded per-client queue, SlowConsumer eviction after a 2s stall.
const (
	downstreamQueueSize = 64
	stallTimeout        = 2 * time.Second
	invokeDeadline      = 5 * time.Second
)

// downstreamRequest is the wire shape a downstream client sends a command
// in — the same envelope shape the legacy/WebSocket SDCP dialect uses,
// since downstreams are meant to believe they're talking to the printer
// directly.
type downstreamRequest struct {
	Data struct {
		Cmd       int            `json:"Cmd"`
		Data      map[string]any `json:"Data"`
		RequestID string         `json:"RequestID"`
	} `json:"Data"`
}

// downstreamResponse is the reply shape sent back, with RequestID restored
// to whatever the downstream sent in — the proxy's per-downstream id never
// needs to reach the upstream session, since Session.Invoke manages its own
// in-flight table internally.
type downstreamResponse struct {
	Data struct {
		RequestID string         `json:"RequestID"`
		ErrorCode int            `json:"ErrorCode"`
		Data      map[string]any `json:"Data"`
	} `json:"Data"`
}

// statusPush is what a status/event broadcast looks like to a downstream —
// the merged snapshot wrapped the way a status-topic push would be.
type statusPush struct {
	Topic string               `json:"Topic"`
	Data  model.StatusSnapshot `json:"Status"`
}

type downstreamClient struct {
	id     string
	conn   *websocket.Conn
	send   chan []byte
	done   chan struct{}
	hub    *Hub
	closed bool
	mu     sync.Mutex
}

// Hub owns the set of downstream control-plane clients and forwards traffic
// to and from one upstream Session.
type Hub struct {
	upstream Upstream
	logger   *slog.Logger

	mu      sync.RWMutex
	clients map[*downstreamClient]bool

	upgrader websocket.Upgrader

	stopOnce sync.Once
	stopCh   chan struct{}

	// pending maps a globally-unique upstream request id back to the
	// downstream client and RequestID that issued it, so a per-downstream
	// counter can never collide with another client's in-flight request
	// (spec.md §4.6).
	pendingMu sync.Mutex
	pending   map[uint64]pendingInvoke
	nextID    uint64
}

type pendingInvoke struct {
	client    *downstreamClient
	requestID string
}

// NewHub builds a Hub bound to one upstream client/session.
func NewHub(upstream Upstream) *Hub {
	return &Hub{
		upstream: upstream,
		logger:   slog.Default().With("component", "proxy_hub"),
		clients:  make(map[*downstreamClient]bool),
		upgrader: websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		stopCh:   make(chan struct{}),
		pending:  make(map[uint64]pendingInvoke),
	}
}

// Start begins relaying upstream status pushes to every downstream until
// Stop is called.
func (h *Hub) Start() {
	go h.relayLoop()
}

// Stop ends the relay loop and disconnects every downstream.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.stopCh) })

	h.mu.Lock()
	clients := make([]*downstreamClient, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		c.closeConn(websocket.CloseNormalClosure, "proxy shutting down")
	}
}

// relayLoop forwards the upstream's raw status frames to every downstream
// unmodified (spec.md §4.6, "broadcast unmodified") rather than re-encoding
// a typed snapshot, so a downstream sees exactly what the printer sent.
func (h *Hub) relayLoop() {
	sub := h.upstream.SubscribeRaw()
	for {
		select {
		case <-h.stopCh:
			return
		case data, ok := <-sub:
			if !ok {
				return
			}
			h.broadcastRaw(data)
		}
	}
}

func (h *Hub) broadcastRaw(data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		c.enqueue(data)
	}
}

func (h *Hub) register(c *downstreamClient) {
	h.mu.Lock()
	h.clients[c] = true
	h.mu.Unlock()
}

func (h *Hub) unregister(c *downstreamClient) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
}

// HandleWebSocket upgrades an inbound HTTP request to a downstream control
// connection and serves it until it disconnects.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := &downstreamClient{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, downstreamQueueSize),
		done: make(chan struct{}),
		hub:  h,
	}
	h.register(c)
	h.logger.Debug("downstream connected", "client_id", c.id)
	go c.writePump()

	defer func() {
		h.unregister(c)
		c.closeConn(websocket.CloseNormalClosure, "")
	}()

	// Push the current status immediately so a new downstream doesn't wait
	// up to the next upstream push for its first status. Prefer the last
	// raw frame so the very first thing a downstream sees is also
	// unmodified; fall back to a re-encoded snapshot if none has arrived yet.
	if raw := h.upstream.LastRawStatus(); raw != nil {
		c.enqueue(raw)
	} else {
		c.enqueue(mustMarshal(statusPush{Topic: "sdcp/status/proxy", Data: h.upstream.Snapshot()}))
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		h.handleDownstreamFrame(c, data)
	}
}

func (h *Hub) handleDownstreamFrame(c *downstreamClient, data []byte) {
	var req downstreamRequest
	if err := json.Unmarshal(data, &req); err != nil {
		// Not a recognized command envelope: pass it through unchanged is
		// meaningless for an upstream we don't forward raw bytes to, so the
		// frame is simply dropped with a warning.
		h.logger.Warn("dropping unparseable downstream frame", "error", err)
		return
	}

	upstreamID := atomic.AddUint64(&h.nextID, 1)
	h.pendingMu.Lock()
	h.pending[upstreamID] = pendingInvoke{client: c, requestID: req.Data.RequestID}
	h.pendingMu.Unlock()

	go func() {
		defer func() {
			h.pendingMu.Lock()
			delete(h.pending, upstreamID)
			h.pendingMu.Unlock()
		}()

		ctx, cancel := context.WithTimeout(context.Background(), invokeDeadline)
		defer cancel()

		resp, err := h.upstream.Invoke(ctx, req.Data.Cmd, req.Data.Data)

		h.pendingMu.Lock()
		pending, ok := h.pending[upstreamID]
		h.pendingMu.Unlock()
		if !ok {
			return
		}

		var out downstreamResponse
		out.Data.RequestID = pending.requestID
		if err != nil {
			out.Data.ErrorCode = -1
			out.Data.Data = map[string]any{"error": err.Error()}
		} else {
			out.Data.ErrorCode = resp.ErrorCode
			out.Data.Data = resp.Result
		}

		pending.client.enqueue(mustMarshal(out))
	}()
}

func mustMarshal(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		return []byte(`{}`)
	}
	return data
}

// enqueue attempts a non-blocking send; a downstream whose queue is already
// full is given stallTimeout to drain before being evicted as a
// SlowConsumer, never blocking the caller (which may be the single relay
// goroutine serving every other downstream).
func (c *downstreamClient) enqueue(data []byte) {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return
	}

	select {
	case c.send <- data:
		return
	default:
	}

	select {
	case c.send <- data:
	case <-c.done:
	case <-time.After(stallTimeout):
		c.hub.logger.Warn("evicting slow consumer", "client_id", c.id)
		c.closeConn(websocket.ClosePolicyViolation, "slow consumer")
	}
}

func (c *downstreamClient) writePump() {
	for {
		select {
		case data := <-c.send:
			c.mu.Lock()
			err := c.conn.WriteMessage(websocket.TextMessage, data)
			c.mu.Unlock()
			if err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *downstreamClient) closeConn(code int, reason string) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	msg := websocket.FormatCloseMessage(code, reason)
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	_ = c.conn.Close()
	close(c.done)
}
