package model

import "time"

// CommandEnvelope is the canonical, dialect-agnostic shape of an outbound
// command. requestId is the key used to match the eventual ResponseEnvelope.
type CommandEnvelope struct {
	RequestID uint64
	Method    int
	Params    map[string]any
	IssuedAt  time.Time
}

// ResponseEnvelope is the canonical shape of an inbound command reply.
type ResponseEnvelope struct {
	RequestID uint64
	Method    int
	ErrorCode int
	Result    map[string]any
}

// Success reports whether the response carries errorCode == 0.
func (r ResponseEnvelope) Success() bool {
	return r.ErrorCode == 0
}

// StatusEvent is an inbound, unsolicited status push: a partial or full
// status tree tagged with the printer's own sequence id.
type StatusEvent struct {
	LastUpdateID uint64
	Tree         map[string]any
}
