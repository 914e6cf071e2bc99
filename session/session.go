// Package session owns one printer connection's lifecycle: registration,
// heartbeat, request/response matching, delta-status merge with continuity
// tracking, and reconnection with backoff. It is the sdcp-generalized
// descendant of the teacher's printer.Client + printer.PacketRouter pair.
package session

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/looplab/fsm"

	"github.com/elegoo-bridge/core/model"
	"github.com/elegoo-bridge/core/perrors"
	"github.com/elegoo-bridge/core/sdcp"
	"github.com/elegoo-bridge/core/transport"
)

// heartbeatInterval, degradedAfter and reconnectGrace implement spec.md
// §4.6's heartbeat state machine: a PING every 10s, DEGRADED after 65s of
// silence, RECONNECTING after a further 20s with still no traffic.
const (
	heartbeatInterval = 10 * time.Second
	degradedAfter     = 65 * time.Second
	reconnectGrace    = 20 * time.Second

	registerTimeout    = 3 * time.Second
	fullRefreshTimeout = 300 * time.Second
)

// Dialer builds a fresh Transport for one connection attempt. Session calls
// it once per Open and once per reconnect attempt, since a Transport is
// single-use (spec.md §4.1).
type Dialer func() transport.Transport

// Session drives one printer's connection lifecycle end to end.
type Session struct {
	identity model.Identity
	dial     Dialer
	codec    sdcp.Codec
	logger   *slog.Logger
	limiter  *perrors.WarnLimiter

	sm      *fsm.FSM
	backoff backoffState

	mu             sync.Mutex
	transport      transport.Transport
	pending        map[uint64]chan model.ResponseEnvelope
	subscribers    []chan model.StatusSnapshot
	rawSubscribers []chan []byte
	lastRawStatus  []byte
	lastSeen       time.Time
	closed         bool

	status statusTracker

	nextRequestID uint64

	closeCh chan struct{}
}

// New builds a Session bound to a printer identity. Nothing is connected
// until Open is called.
func New(identity model.Identity, dial Dialer, codec sdcp.Codec) *Session {
	s := &Session{
		identity: identity,
		dial:     dial,
		codec:    codec,
		logger:   slog.Default().With("printer", identity.Serial),
		limiter:  perrors.NewWarnLimiter(60 * time.Second),
		pending:  make(map[uint64]chan model.ResponseEnvelope),
		closeCh:  make(chan struct{}),
	}
	s.sm = s.buildFSM()
	return s
}

// State reports the session's current lifecycle state.
func (s *Session) State() model.SessionState {
	return model.SessionState(s.sm.Current())
}

// Open connects, registers, fetches the first full status, and starts the
// background read and heartbeat loops. It returns once the session reaches
// READY or fails.
func (s *Session) Open(ctx context.Context) error {
	if err := s.fire(ctx, evtDiscovered); err != nil {
		return err
	}
	return s.connectAndRegister(ctx)
}

func (s *Session) connectAndRegister(ctx context.Context) error {
	if err := s.fire(ctx, evtConnect); err != nil {
		return err
	}

	tr := s.dial()
	if err := tr.Open(ctx); err != nil {
		_ = s.fire(ctx, evtReconnect)
		return err
	}

	s.mu.Lock()
	s.transport = tr
	s.lastSeen = time.Now()
	s.mu.Unlock()

	go s.readLoop(tr)

	if err := s.fire(ctx, evtRegistered); err != nil {
		return err
	}

	if err := s.register(ctx); err != nil {
		_ = s.fire(ctx, evtReconnect)
		return err
	}

	if err := s.fire(ctx, evtReady); err != nil {
		return err
	}
	s.backoff.markReady(time.Now())

	go s.heartbeatLoop()

	return nil
}

// register fetches the first full status snapshot once the transport is
// open. The CC2 dialect's api_register/register_response handshake (spec.md
// §4.4, §4.6) runs earlier, inside MqttPrinterTransport.Open itself, since
// it's part of what "the connection is usable" means for that dialect
// (transport.Transport's contract) — Session stays dialect-agnostic here.
func (s *Session) register(ctx context.Context) error {
	ictx, cancel := context.WithTimeout(ctx, registerTimeout)
	defer cancel()
	if _, err := s.RefreshStatus(ictx); err != nil {
		return perrors.New(perrors.RegistrationFailed, err)
	}
	return nil
}

// RefreshStatus issues a synchronous GetStatus and replaces the cached
// status tree wholesale, broadcasting the result to subscribers. Used for
// registration's initial snapshot, continuity-triggered refreshes, and the
// coordinator's poll tick (which is also the periodic full refresh) — every
// caller that needs a known-authoritative tree rather than a delta.
func (s *Session) RefreshStatus(ctx context.Context) (model.StatusSnapshot, error) {
	resp, err := s.Invoke(ctx, sdcp.MethodGetStatus, nil)
	if err != nil {
		return model.StatusSnapshot{}, err
	}
	full := s.status.replaceFull(model.StatusEvent{
		LastUpdateID: nextUpdateIDFromResult(resp.Result),
		Tree:         resp.Result,
	})
	s.broadcast(full)
	return full, nil
}

// nextUpdateIDFromResult extracts a sequence number from a GetStatus
// response result, defaulting to 0 when the field is absent (some dialects
// don't stamp the synchronous response, only async pushes).
func nextUpdateIDFromResult(result map[string]any) uint64 {
	if v, ok := result["LastUpdateId"]; ok {
		if f, ok := v.(float64); ok {
			return uint64(f)
		}
	}
	return 0
}

// Invoke sends a command and waits for its matching response, or until ctx
// is done.
func (s *Session) Invoke(ctx context.Context, method int, params map[string]any) (model.ResponseEnvelope, error) {
	s.mu.Lock()
	if s.closed || s.transport == nil {
		s.mu.Unlock()
		return model.ResponseEnvelope{}, perrors.New(perrors.SessionClosed, nil)
	}
	reqID := atomic.AddUint64(&s.nextRequestID, 1)
	ch := make(chan model.ResponseEnvelope, 1)
	s.pending[reqID] = ch
	tr := s.transport
	s.mu.Unlock()

	cmd := model.CommandEnvelope{RequestID: reqID, Method: method, Params: params, IssuedAt: time.Now()}
	data, err := s.codec.EncodeCommand(cmd)
	if err != nil {
		s.dropPending(reqID)
		return model.ResponseEnvelope{}, perrors.New(perrors.ProtocolError, err)
	}

	if err := tr.Send(data); err != nil {
		s.dropPending(reqID)
		return model.ResponseEnvelope{}, err
	}

	select {
	case resp := <-ch:
		return resp, nil
	case <-ctx.Done():
		s.dropPending(reqID)
		return model.ResponseEnvelope{}, perrors.New(perrors.RequestTimeout, ctx.Err())
	case <-s.closeCh:
		return model.ResponseEnvelope{}, perrors.New(perrors.SessionClosed, nil)
	}
}

func (s *Session) dropPending(reqID uint64) {
	s.mu.Lock()
	delete(s.pending, reqID)
	s.mu.Unlock()
}

// Subscribe returns a channel of merged status snapshots. The channel is
// buffered; a slow subscriber misses intermediate updates rather than
// stalling the session (mirrors the proxy's SlowConsumer handling one layer
// up, but here it's simply best-effort delivery).
func (s *Session) Subscribe() <-chan model.StatusSnapshot {
	ch := make(chan model.StatusSnapshot, 8)
	s.mu.Lock()
	s.subscribers = append(s.subscribers, ch)
	s.mu.Unlock()
	return ch
}

// Snapshot returns the current merged status without waiting for a push.
func (s *Session) Snapshot() model.StatusSnapshot {
	return s.status.snapshot()
}

// SubscribeRaw returns a channel of raw upstream status frames, unmodified,
// for consumers that must relay the printer's own wire bytes rather than a
// re-encoded typed snapshot (spec.md §4.6, proxy "broadcast unmodified").
func (s *Session) SubscribeRaw() <-chan []byte {
	ch := make(chan []byte, 8)
	s.mu.Lock()
	s.rawSubscribers = append(s.rawSubscribers, ch)
	s.mu.Unlock()
	return ch
}

// LastRawStatus returns the most recent raw status frame, or nil if none has
// arrived yet. Used to seed a newly-connected proxy client.
func (s *Session) LastRawStatus() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRawStatus
}

func (s *Session) broadcastRaw(data []byte) {
	s.mu.Lock()
	s.lastRawStatus = data
	rawSubs := append([]chan []byte(nil), s.rawSubscribers...)
	s.mu.Unlock()

	for _, ch := range rawSubs {
		select {
		case ch <- data:
		default:
		}
	}
}

func (s *Session) readLoop(tr transport.Transport) {
	for data := range tr.Frames() {
		frame, err := s.codec.DecodeFrame(data)
		if err != nil {
			if s.limiter.Allow(perrors.ProtocolError) {
				s.logger.Warn("dropping undecodable frame", "error", err)
			}
			continue
		}

		s.mu.Lock()
		s.lastSeen = time.Now()
		s.mu.Unlock()

		switch {
		case frame.IsResponse():
			s.routeResponse(*frame.Response)
		case frame.IsStatus():
			s.broadcastRaw(data)
			s.routeStatus(*frame.Status)
		}
	}

	// Frames channel closed: transport died or was closed deliberately.
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if !closed {
		go s.handleTransportLoss(tr.Err())
	}
}

func (s *Session) routeResponse(resp model.ResponseEnvelope) {
	s.mu.Lock()
	ch, ok := s.pending[resp.RequestID]
	if ok {
		delete(s.pending, resp.RequestID)
	}
	s.mu.Unlock()

	if ok {
		ch <- resp
	}
}

func (s *Session) routeStatus(event model.StatusEvent) {
	snap, needsRefresh := s.status.applyDelta(event)
	s.broadcast(snap)

	if needsRefresh {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), fullRefreshTimeout)
			defer cancel()
			if _, err := s.RefreshStatus(ctx); err != nil {
				s.logger.Warn("continuity-triggered full refresh failed", "error", err)
			}
		}()
	}
}

func (s *Session) broadcast(snap model.StatusSnapshot) {
	s.mu.Lock()
	subs := append([]chan model.StatusSnapshot(nil), s.subscribers...)
	s.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- snap.Clone():
		default:
		}
	}
}

func (s *Session) handleTransportLoss(cause error) {
	s.logger.Warn("transport lost", "error", cause)
	s.status.setStale(true)
	_ = s.fire(context.Background(), evtReconnect)
	s.scheduleReconnect()
}

// Close tears the session down: closes the transport, releases pending
// invocations, and stops background loops.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	tr := s.transport
	pending := s.pending
	s.pending = nil
	s.mu.Unlock()

	close(s.closeCh)
	for _, ch := range pending {
		close(ch)
	}
	_ = s.fire(context.Background(), evtClose)

	if tr != nil {
		return tr.Close()
	}
	return nil
}
