// Package errs defines the transport's error taxonomy. Every
// failure a caller can observe from pkg/transport is one of these kinds,
// wrapped in an *Error so callers can classify it with errors.As/Is without
// string matching.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies a transport failure.
type Kind int

const (
	// KindNoRemoteHandler means the peer (or the local dispatcher) had no
	// handler registered for the requested subject.
	KindNoRemoteHandler Kind = iota
	// KindRemoteHandlerFailure means a handler ran and returned an error,
	// or panicked.
	KindRemoteHandlerFailure
	// KindProtocolException covers handshake, codec, and status-decode
	// failures.
	KindProtocolException
	// KindTimeout means a static or adaptive deadline was exceeded.
	KindTimeout
	// KindConnectionClosed means the channel was lost, or Close fired
	// while callbacks were still outstanding.
	KindConnectionClosed
	// KindStartupError is fatal: keystore load failure or interface bind
	// failure.
	KindStartupError
)

func (k Kind) String() string {
	switch k {
	case KindNoRemoteHandler:
		return "no_remote_handler"
	case KindRemoteHandlerFailure:
		return "remote_handler_failure"
	case KindProtocolException:
		return "protocol_exception"
	case KindTimeout:
		return "timeout"
	case KindConnectionClosed:
		return "connection_closed"
	case KindStartupError:
		return "startup_error"
	default:
		return "unknown"
	}
}

// Error is the concrete error type carried by every failure in this
// taxonomy. Cause, when set, is reachable through errors.Unwrap.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an *Error with no cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds an *Error carrying cause as its underlying error.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Is reports whether err is, or wraps, an *Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// IsMessaging reports whether err is a classified transport error at all
// (any Kind), as opposed to a raw I/O or decode error that escaped
// classification, i.e. a failure that does not, by itself, warrant closing
// the channel.
func IsMessaging(err error) bool {
	var e *Error
	return errors.As(err, &e)
}

// Sentinel errors for the common, cause-less cases.
var (
	ErrNoRemoteHandler  = New(KindNoRemoteHandler, "no handler registered for subject")
	ErrConnectionClosed = New(KindConnectionClosed, "connection closed")
	ErrTimeout          = New(KindTimeout, "request timed out")
)

// HandlerFailure wraps a handler's own error (or panic value) as a
// RemoteHandlerFailure.
func HandlerFailure(cause error) *Error {
	return Wrap(KindRemoteHandlerFailure, "handler failed", cause)
}

// Protocol wraps a codec/handshake failure as a ProtocolException.
func Protocol(message string, cause error) *Error {
	return Wrap(KindProtocolException, message, cause)
}
