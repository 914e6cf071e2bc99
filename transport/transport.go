// Package transport carries raw SDCP wire bytes between the core and a
// printer, across the three dialects' actual sockets: a raw WebSocket, an
// MQTT client dialed at the printer's own embedded broker (CC2), and an
// embedded MQTT broker run by the core itself that the printer connects to
// (legacy/CC1). Session owns reconnection and backoff; a Transport's job
// ends at delivering bytes in and accepting bytes out of one connection
// attempt.
package transport

import "context"

// Transport is the wire-level connection to one printer. Open blocks until
// the connection is usable (WebSocket handshake complete, or MQTT connected
// and subscribed); it returns once, not on every reconnect — callers build
// a fresh Transport per attempt.
type Transport interface {
	// Open establishes the connection. ctx bounds the connect attempt, not
	// the connection's lifetime.
	Open(ctx context.Context) error

	// Send writes one encoded frame.
	Send(data []byte) error

	// Frames yields inbound raw frames in arrival order. It is closed when
	// the transport's read loop exits, whether by Close or by a connection
	// error (check Err after a close to distinguish the two).
	Frames() <-chan []byte

	// Err returns the error that caused the read loop to exit, or nil if
	// Close was called cleanly.
	Err() error

	// Close tears down the connection and releases resources. Safe to call
	// more than once.
	Close() error
}
