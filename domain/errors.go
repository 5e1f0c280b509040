package domain

import (
	"context"
	"errors"
)

var (
	// ErrValidation marks missing or malformed required fields.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound marks a referenced task, customer, file or representative that does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalidTransition is returned when a status change breaks the forward-only rule.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrUpstream indicates that the completion service or the blob store failed.
	ErrUpstream = errors.New("upstream service failed")
	// ErrMalformedInput is returned when an uploaded CSV cannot be parsed.
	ErrMalformedInput = errors.New("malformed input")
	// ErrConflict indicates a duplicate request, such as a reused idempotency key.
	ErrConflict = errors.New("conflict")
)

// ErrorKind groups errors into categories that callers can act on.
type ErrorKind string

const (
	KindInvalid    ErrorKind = "invalid"
	KindNotFound   ErrorKind = "not_found"
	KindTransition ErrorKind = "invalid_transition"
	KindConflict   ErrorKind = "conflict"
	KindUpstream   ErrorKind = "upstream"
	KindInternal   ErrorKind = "internal"
)

// Kind classifies err. Context deadlines count as upstream failures.
func Kind(err error) ErrorKind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation), errors.Is(err, ErrMalformedInput):
		return KindInvalid
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrInvalidTransition):
		return KindTransition
	case errors.Is(err, ErrConflict):
		return KindConflict
	case errors.Is(err, ErrUpstream), errors.Is(err, context.DeadlineExceeded):
		return KindUpstream
	default:
		return KindInternal
	}
}

// Retryable reports whether repeating the same request later may succeed.
func Retryable(err error) bool {
	k := Kind(err)
	return k == KindUpstream || k == KindInternal
}

// UserMessage returns a short message for end users.
func UserMessage(err error) string {
	switch Kind(err) {
	case KindInvalid:
		return "your input was invalid: " + err.Error()
	case KindNotFound:
		return "the requested item does not exist: " + err.Error()
	case KindTransition:
		return "that change is not allowed: " + err.Error()
	case KindConflict:
		return "this request was already processed"
	case KindUpstream:
		return "the system could not complete the request right now, please retry"
	case KindInternal:
		return "internal error"
	}
	return ""
}
