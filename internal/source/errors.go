package source

import (
	"errors"
	"fmt"
)

// Kind categorizes source failures.
type Kind string

const (
	KindNotFound          Kind = "NOT_FOUND"
	KindDeviceBusy        Kind = "DEVICE_BUSY"
	KindReadFailure       Kind = "READ_FAILURE"
	KindInvalidIdentifier Kind = "INVALID_IDENTIFIER"
)

// Error is a failure to open or read a source.
type Error struct {
	Kind   Kind
	Source string
	Err    error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("source %s: %s", e.Kind, e.Source)
	}
	return fmt.Sprintf("source %s: %s: %v", e.Kind, e.Source, e.Err)
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

// IsNotFound reports whether err means the source does not exist.
func IsNotFound(err error) bool {
	return KindOf(err) == KindNotFound
}

// IsDeviceBusy reports whether err means another reader holds the source.
func IsDeviceBusy(err error) bool {
	return KindOf(err) == KindDeviceBusy
}

// IsReadFailure reports whether err is a failure reading a frame.
func IsReadFailure(err error) bool {
	return KindOf(err) == KindReadFailure
}
