// Package apierr defines the error taxonomy shared by the registry, the
// topology resolver, the message sync engine and the HTTP facade.
package apierr

import (
	"errors"
	"net/http"
)

// Kind classifies a failure by how the caller can recover from it.
type Kind string

const (
	// InvalidInput means a request field was missing or malformed.
	InvalidInput Kind = "invalid_input"
	// Unauthenticated means the remote platform rejected the credential.
	Unauthenticated Kind = "unauthenticated"
	// NotConnected means no connection is registered for the credential.
	NotConnected Kind = "not_connected"
	// NotFound means the guild or channel does not exist or is not reachable.
	NotFound Kind = "not_found"
	// Forbidden means the channel exists but cannot be read by the bot.
	Forbidden Kind = "forbidden"
	// Transport covers network, rate-limit and unexpected remote failures.
	Transport Kind = "transport"
)

// Error is a classified failure. Op names the operation that failed, Msg is
// safe to show to an operator, and Err is the underlying cause if any.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	s := e.Op
	if s != "" {
		s += ": "
	}
	if e.Msg != "" {
		s += e.Msg
	} else {
		s += string(e.Kind)
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error of the same Kind, so callers can
// write errors.Is(err, apierr.ErrNotFound).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Op == "" && t.Msg == "" && t.Err == nil && t.Kind == e.Kind
}

// Sentinels for errors.Is comparisons.
var (
	ErrInvalidInput    = &Error{Kind: InvalidInput}
	ErrUnauthenticated = &Error{Kind: Unauthenticated}
	ErrNotConnected    = &Error{Kind: NotConnected}
	ErrNotFound        = &Error{Kind: NotFound}
	ErrForbidden       = &Error{Kind: Forbidden}
	ErrTransport       = &Error{Kind: Transport}
)

// E builds a classified error.
func E(kind Kind, op, msg string, err error) *Error {
	return &Error{Kind: kind, Op: op, Msg: msg, Err: err}
}

// Invalid is shorthand for an InvalidInput error with a message.
func Invalid(op, msg string) *Error {
	return &Error{Kind: InvalidInput, Op: op, Msg: msg}
}

// KindOf returns the Kind of the first *Error in err's chain. Unclassified
// errors are treated as Transport failures.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Transport
}

// Message returns the operator-facing message of err, or fallback when err
// carries none.
func Message(err error, fallback string) string {
	var e *Error
	if errors.As(err, &e) && e.Msg != "" {
		return e.Msg
	}
	return fallback
}

// HTTPStatus maps a Kind to the status code the HTTP facade returns.
// Forbidden maps to 500 because the UI keys its private-channel notice on a
// 500 from the messages endpoint.
func HTTPStatus(k Kind) int {
	switch k {
	case InvalidInput:
		return http.StatusBadRequest
	case Unauthenticated:
		return http.StatusUnauthorized
	case NotConnected, NotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
