package service

import (
	"errors"
	"fmt"
)

// ErrorKind classifies engine failures for callers wrapping the core in a transport
type ErrorKind string

const (
	KindUnauthorized          ErrorKind = "unauthorized"
	KindInvalidState          ErrorKind = "invalid_state"
	KindInvalidAmount         ErrorKind = "invalid_amount"
	KindBidTooHigh            ErrorKind = "bid_too_high"
	KindAlreadyWon            ErrorKind = "already_won"
	KindNoEligibleParticipant ErrorKind = "no_eligible_participant"
	KindNotFound              ErrorKind = "not_found"
	KindStoreUnavailable      ErrorKind = "store_unavailable"
)

// Error is a classified engine error with a human-readable message
type Error struct {
	Kind    ErrorKind
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

// NewError creates a classified error
func NewError(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WrapStoreError classifies a dependent-store failure as transient.
// Callers may retry the whole operation; settlement is idempotent per month.
func WrapStoreError(err error, format string, args ...any) *Error {
	return &Error{Kind: KindStoreUnavailable, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf returns the classified kind of err, or "" for unclassified errors
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err carries the given kind
func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}
