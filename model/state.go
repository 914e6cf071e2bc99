package model

// SessionState is the Session's connection lifecycle state machine, driven
// by github.com/looplab/fsm in package session.
type SessionState string

const (
	StateIdle         SessionState = "idle"
	StateDiscovering   SessionState = "discovering"
	StateConnecting    SessionState = "connecting"
	StateRegistering   SessionState = "registering"
	StateReady         SessionState = "ready"
	StateDegraded      SessionState = "degraded"
	StateReconnecting  SessionState = "reconnecting"
	StateClosed        SessionState = "closed"
)
