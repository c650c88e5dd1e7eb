package sink

import (
	"errors"
	"fmt"
)

// Kind categorizes sink failures.
type Kind string

const (
	KindCannotCreate Kind = "CANNOT_CREATE"
	KindWriteFailure Kind = "WRITE_FAILURE"
	KindClosed       Kind = "CLOSED"
)

// Error is a failure to create or write a sink.
type Error struct {
	Kind  Kind
	Path  string
	Index int64 // -1 when not tied to a frame
	Err   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("sink %s: %s", e.Kind, e.Path)
	if e.Index >= 0 {
		msg = fmt.Sprintf("%s (index=%d)", msg, e.Index)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the Kind of err, or "" when err is not an *Error.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return ""
}

// IsCannotCreate reports whether err means the output could not be created.
func IsCannotCreate(err error) bool {
	return KindOf(err) == KindCannotCreate
}

// IsWriteFailure reports whether err is a failed frame or manifest write.
func IsWriteFailure(err error) bool {
	return KindOf(err) == KindWriteFailure
}
