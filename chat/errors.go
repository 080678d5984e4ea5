package chat

import (
	"errors"
	"fmt"
)

// TransportError wraps a network-layer failure (DNS, TCP, TLS, read/write).
// Always retryable.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// TransportTimeout reports a bounded wait expiring (handshake, auth ack).
// Retryable.
type TransportTimeout struct {
	Stage string
}

func (e *TransportTimeout) Error() string {
	return fmt.Sprintf("timed out during %s", e.Stage)
}

// AuthError reports rejected credentials. Not retryable with the same
// credentials; the supervisor halts until they are replaced.
type AuthError struct {
	Notice string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication rejected: %s", e.Notice)
}

// ProtocolViolation reports a handshake reply outside the expected grammar.
// Retryable; logged as a diagnostic rather than surfaced as a user failure.
type ProtocolViolation struct {
	Line string
}

func (e *ProtocolViolation) Error() string {
	return fmt.Sprintf("unexpected handshake reply: %q", e.Line)
}

// errServerReconnect marks a server-initiated RECONNECT command.
var errServerReconnect = errors.New("server requested reconnect")

// ErrorClass represents whether a session failure should be retried or not.
type ErrorClass int

const (
	// ErrorClassRetryable indicates the supervisor should reconnect.
	ErrorClassRetryable ErrorClass = iota
	// ErrorClassFatal indicates reconnecting is pointless until the operator
	// intervenes (today: replaces credentials).
	ErrorClassFatal
)

// String returns a human-readable name for the error class.
func (ec ErrorClass) String() string {
	switch ec {
	case ErrorClassRetryable:
		return "retryable"
	case ErrorClassFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Classify sorts session failures into retryable vs fatal.
//
// Fatal (non-retryable):
// - AuthError: the server rejected the credentials outright.
//
// Retryable (transient):
// - TransportError / TransportTimeout: network-layer failures.
// - irc.FramingError: an oversized line poisons the connection, not the account.
// - ProtocolViolation: a garbled handshake; the next attempt may be clean.
// - Anything unrecognized: retried to avoid giving up too early.
func Classify(err error) ErrorClass {
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return ErrorClassFatal
	}
	return ErrorClassRetryable
}

// Retryable checks if a session failure should trigger a reconnect.
func Retryable(err error) bool {
	return Classify(err) == ErrorClassRetryable
}
