// Package engine defines the settlement engine's error taxonomy. Failures
// are values crossing API boundaries, never panics or out-of-band control
// flow; handlers map kinds onto HTTP statuses.
package engine

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an engine failure
type Kind string

const (
	// KindValidation is bad input caught before any gateway call
	KindValidation Kind = "validation"
	// KindNotFound is a missing payment, booking, or config
	KindNotFound Kind = "not_found"
	// KindGatewayUnavailable is a network error or 5xx; the attempt may be
	// retried with a new correlation id, never by resubmitting the order id
	KindGatewayUnavailable Kind = "gateway_unavailable"
	// KindGatewayDeclined is an authoritative gateway rejection
	KindGatewayDeclined Kind = "gateway_declined"
	// KindSignatureInvalid is a webhook that failed authentication
	KindSignatureInvalid Kind = "signature_invalid"
	// KindDuplicateEvent is an idempotent no-op on a replayed event
	KindDuplicateEvent Kind = "duplicate_event"
	// KindInsufficientBalance skips a provider for one payout cycle
	KindInsufficientBalance Kind = "insufficient_ledger_balance"
	// KindConflict is a state-machine transition that is not legal
	KindConflict Kind = "conflict"
	// KindInternal is everything else
	KindInternal Kind = "internal"
)

// Error is a typed engine failure
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

// HTTPStatus maps the failure kind onto a response status
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindSignatureInvalid:
		return http.StatusUnauthorized
	case KindConflict:
		return http.StatusConflict
	case KindGatewayDeclined:
		return http.StatusUnprocessableEntity
	case KindGatewayUnavailable:
		return http.StatusBadGateway
	case KindDuplicateEvent:
		return http.StatusOK
	default:
		return http.StatusInternalServerError
	}
}

// New builds an Error of the given kind
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds an Error keeping the cause for errors.Is/As chains
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// Validation is a convenience constructor for input failures
func Validation(message string) *Error {
	return New(KindValidation, message)
}

// Unavailable wraps a transport failure at the adapter boundary
func Unavailable(message string, err error) *Error {
	return Wrap(KindGatewayUnavailable, message, err)
}

// Declined records an authoritative gateway rejection
func Declined(message string) *Error {
	return New(KindGatewayDeclined, message)
}

// KindOf extracts the failure kind, defaulting to KindInternal
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given kind
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
