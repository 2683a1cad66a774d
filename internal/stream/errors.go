package stream

import (
	"errors"
	"fmt"
)

// Kind classifies a source or session failure.
type Kind string

// Error kinds.
const (
	KindSourceUnavailable Kind = "SOURCE_UNAVAILABLE"
	KindHardware          Kind = "HARDWARE_ERROR"
	KindSourceExhausted   Kind = "SOURCE_EXHAUSTED"
	KindFrameTooLarge     Kind = "FRAME_TOO_LARGE"
	KindRecoveryExhausted Kind = "RECOVERY_EXHAUSTED"
)

// Error is a coded streaming error. Two Errors match under errors.Is when
// their kinds are equal, so the sentinels below work for any message.
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

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *Error of the same kind.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// NewError creates a new coded error.
func NewError(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Sentinels for errors.Is.
var (
	ErrSourceUnavailable = NewError(KindSourceUnavailable, "source unavailable", nil)
	ErrHardware          = NewError(KindHardware, "hardware error", nil)
	ErrSourceExhausted   = NewError(KindSourceExhausted, "source exhausted", nil)
	ErrFrameTooLarge     = NewError(KindFrameTooLarge, "frame too large", nil)
	ErrRecoveryExhausted = NewError(KindRecoveryExhausted, "recovery exhausted", nil)
)

// ErrConsumerGone reports that the downstream consumer went away. It ends a
// session normally and is never treated as a failure.
var ErrConsumerGone = errors.New("consumer disconnected")

// ErrBusy is the cause of a SourceUnavailable error from a source whose
// exclusive handle is already held.
var ErrBusy = errors.New("device busy")

// KindOf returns the kind of err, or "" when err is not a coded error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
