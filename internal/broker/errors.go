package broker

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a broker error for transport-level status mapping.
type Kind int

const (
	// KindBadRequest marks missing or invalid input, including an
	// invalid or replayed state token.
	KindBadRequest Kind = iota + 1

	// KindNotFound marks an unknown client, client auth, or credential.
	KindNotFound

	// KindInternal marks an incomplete provider credential or an
	// unexpected downstream failure.
	KindInternal
)

// HTTPStatus returns the status code a transport boundary should use
// for this error kind.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindBadRequest:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func (k Kind) String() string {
	switch k {
	case KindBadRequest:
		return "bad_request"
	case KindNotFound:
		return "not_found"
	default:
		return "internal_error"
	}
}

// Error is the typed result error returned by every service operation.
// Status mapping happens at the boundary only; the service itself never
// touches HTTP status codes.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// BadRequest creates a client-input error.
func BadRequest(message string) *Error {
	return &Error{Kind: KindBadRequest, Message: message}
}

// NotFound creates a missing-record error.
func NotFound(message string) *Error {
	return &Error{Kind: KindNotFound, Message: message}
}

// Internal creates an unexpected-failure error wrapping its cause.
func Internal(message string, err error) *Error {
	return &Error{Kind: KindInternal, Message: message, Err: err}
}

// KindOf extracts the error kind, defaulting to KindInternal for
// untyped errors that escaped the service layer.
func KindOf(err error) Kind {
	var brokerErr *Error
	if errors.As(err, &brokerErr) {
		return brokerErr.Kind
	}
	return KindInternal
}

// MessageOf extracts the client-facing message of a broker error.
func MessageOf(err error) string {
	var brokerErr *Error
	if errors.As(err, &brokerErr) {
		return brokerErr.Message
	}
	return "internal server error"
}
