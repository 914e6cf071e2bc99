// Package perrors defines the printer connectivity core's error taxonomy:
// typed error kinds with retry classification, per spec.md §7. The teacher
// has no error taxonomy of its own (every failure is a bare fmt.Errorf); this
// package formalizes one while keeping the teacher's %w-wrapping idiom at
// every call site that produces an Error.
package perrors

import (
	"errors"
	"fmt"
)

// Kind names one row of spec.md §7's error table.
type Kind string

const (
	DiscoveryEmpty     Kind = "discovery_empty"
	UnsupportedMode    Kind = "unsupported_mode"
	TransportReset     Kind = "transport_reset"
	RegistrationFailed Kind = "registration_failed"
	SlotExhausted      Kind = "slot_exhausted"
	RequestTimeout     Kind = "request_timeout"
	ProtocolError      Kind = "protocol_error"
	PrinterBusy        Kind = "printer_busy"
	FileNotFound       Kind = "file_not_found"
	UnauthorizedAccess Kind = "unauthorized_access"
	ChecksumMismatch   Kind = "checksum_mismatch"
	SlowConsumer       Kind = "slow_consumer"
	SessionClosed      Kind = "session_closed"
)

// retryable records which kinds are safe for a caller to retry automatically,
// per the Recovery column of spec.md §7.
var retryable = map[Kind]bool{
	TransportReset: true,
	SlotExhausted:  true,
	RequestTimeout: true,
	PrinterBusy:    true,
}

// Error is the concrete error type returned across package boundaries in the
// core. It wraps an optional underlying cause and carries a Kind that
// callers can match with errors.Is against one of the Kind sentinels below.
type Error struct {
	Kind      Kind
	Retryable bool
	Err       error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Is supports errors.Is(err, perrors.New(kind, nil)) and, more usefully,
// errors.Is(err, someKindSentinel) style matching via the sentinel errors
// defined below — it compares Kind only, ignoring the wrapped cause.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return e.Kind == other.Kind
	}
	return false
}

// New builds an *Error for the given kind, wrapping cause if non-nil.
// Retryability defaults from the table above but can be overridden by the
// caller for a one-off case (e.g. a SlotExhausted that the caller has
// already retried once).
func New(kind Kind, cause error) *Error {
	return &Error{Kind: kind, Err: cause, Retryable: retryable[kind]}
}

// Sentinel returns an *Error of the given kind with no cause, suitable for
// errors.Is comparisons: errors.Is(err, perrors.Sentinel(perrors.FileNotFound)).
func Sentinel(kind Kind) *Error {
	return &Error{Kind: kind, Retryable: retryable[kind]}
}

// Is reports whether err carries the given Kind anywhere in its chain.
func Is(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}

// KindOf extracts the Kind from err, or "" if err is not (or doesn't wrap) an
// *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
