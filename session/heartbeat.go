package session

import (
	"context"
	"encoding/json"
	"time"

	"github.com/elegoo-bridge/core/model"
	"github.com/elegoo-bridge/core/sdcp"
)

// heartbeatLoop watches for inbound traffic and drives the
// READY -> DEGRADED -> RECONNECTING edges when the printer goes quiet
// (spec.md §4.6). It exits once the session is closed, is no longer READY
// or DEGRADED, or has replaced the transport this loop was started for.
func (s *Session) heartbeatLoop() {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	s.mu.Lock()
	tr := s.transport
	s.mu.Unlock()

	degradedSince := time.Time{}

	for {
		select {
		case <-s.closeCh:
			return
		case <-ticker.C:
		}

		s.mu.Lock()
		current := s.transport
		s.mu.Unlock()
		if st := s.State(); current != tr || (st != model.StateReady && st != model.StateDegraded) {
			return
		}

		if s.identity.ProtocolKind == model.ProtocolMqttCC2 {
			s.sendPing()
		}

		s.mu.Lock()
		silence := time.Since(s.lastSeen)
		s.mu.Unlock()

		if silence < degradedAfter {
			degradedSince = time.Time{}
			s.backoff.maybeReset(time.Now())
			continue
		}

		if degradedSince.IsZero() {
			degradedSince = time.Now()
			_ = s.fire(context.Background(), evtDegrade)
			s.probe()
			continue
		}

		if time.Since(degradedSince) >= reconnectGrace {
			_ = s.fire(context.Background(), evtReconnect)
			s.scheduleReconnect()
			return
		}
	}
}

// sendPing publishes the CC2 dialect's keepalive on the client's request
// topic (spec.md §4.4): fire-and-forget, no reply is waited for before the
// next tick.
func (s *Session) sendPing() {
	s.mu.Lock()
	tr := s.transport
	s.mu.Unlock()
	if tr == nil {
		return
	}
	payload, err := json.Marshal(map[string]string{"type": "PING"})
	if err != nil {
		return
	}
	if err := tr.Send(payload); err != nil {
		s.logger.Warn("heartbeat ping failed", "error", err)
	}
}

// probe sends a lightweight request to provoke traffic from a printer that
// has gone quiet, without waiting long enough to block the heartbeat tick.
func (s *Session) probe() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, _ = s.Invoke(ctx, sdcp.MethodGetAttributes, nil)
}

// scheduleReconnect waits out the current backoff delay, then redials and
// re-registers, repeating with an increasing delay until the session is
// closed or a connection attempt succeeds.
func (s *Session) scheduleReconnect() {
	for {
		delay := s.backoff.next()
		s.logger.Warn("scheduling reconnect", "delay", delay)

		select {
		case <-time.After(delay):
		case <-s.closeCh:
			return
		}

		s.mu.Lock()
		closed := s.closed
		s.mu.Unlock()
		if closed {
			return
		}

		err := s.connectAndRegister(context.Background())
		if err == nil {
			return
		}
		s.logger.Warn("reconnect attempt failed", "error", err)
	}
}
