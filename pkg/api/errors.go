package api

import (
	"errors"
	"fmt"
)

// ErrorKind classifies workflow errors so callers can branch without
// string matching.
type ErrorKind string

const (
	KindValidation   ErrorKind = "validation"
	KindNotFound     ErrorKind = "not_found"
	KindLockConflict ErrorKind = "lock_conflict"
	KindInvalidState ErrorKind = "invalid_state"
)

// Error is the typed error returned by workflow operations. Business
// non-success (a verification failure, an underwriting rejection) is not
// an Error; it is reported through ProgressResult.Outcome.
type Error struct {
	Kind    ErrorKind
	Message string
	Cause   error
	Context map[string]any
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// WithContext attaches a key/value pair for diagnostics and returns the
// error.
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// ValidationError reports malformed or missing caller input.
func ValidationError(msg string) *Error {
	return &Error{Kind: KindValidation, Message: msg}
}

// NotFoundError reports an unknown session id.
func NotFoundError(sessionID string) *Error {
	e := &Error{Kind: KindNotFound, Message: fmt.Sprintf("session %q not found", sessionID)}
	return e.WithContext("session_id", sessionID)
}

// LockConflictError reports that another operation holds the session.
func LockConflictError(sessionID string, state State) *Error {
	e := &Error{
		Kind:    KindLockConflict,
		Message: fmt.Sprintf("session %q is locked by another operation", sessionID),
	}
	return e.WithContext("session_id", sessionID).WithContext("state", string(state))
}

// InvalidStateError reports a transition the state machine forbids.
func InvalidStateError(from, to State) *Error {
	e := &Error{
		Kind:    KindInvalidState,
		Message: fmt.Sprintf("invalid transition %s -> %s", from, to),
	}
	return e.WithContext("from", string(from)).WithContext("to", string(to))
}

// TerminalStateError reports an operation on a closed session.
func TerminalStateError(state State) *Error {
	e := &Error{
		Kind:    KindInvalidState,
		Message: fmt.Sprintf("session is in terminal state %s", state),
	}
	return e.WithContext("state", string(state))
}

func isKind(err error, kind ErrorKind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

// IsValidation reports whether err is a validation error.
func IsValidation(err error) bool { return isKind(err, KindValidation) }

// IsNotFound reports whether err is an unknown-session error.
func IsNotFound(err error) bool { return isKind(err, KindNotFound) }

// IsLockConflict reports whether err is a lock-conflict error.
func IsLockConflict(err error) bool { return isKind(err, KindLockConflict) }

// IsInvalidState reports whether err is a forbidden-transition or
// terminal-state error.
func IsInvalidState(err error) bool { return isKind(err, KindInvalidState) }
