package annotate

import (
	"errors"
	"fmt"
)

// Kind categorizes annotate failures.
type Kind string

const (
	KindEncode   Kind = "ENCODE"   // Frame could not be encoded for the request
	KindRequest  Kind = "REQUEST"  // Transport failure after retries
	KindStatus   Kind = "STATUS"   // Service answered with a non-200 status
	KindDecode   Kind = "DECODE"   // Response body was not a valid pose document
	KindInjected Kind = "INJECTED" // Failure scripted by a Synthetic annotator
)

// Error is a failure of one annotate call.
type Error struct {
	Kind  Kind
	Index uint64
	Err   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("annotate %s (index=%d)", e.Kind, e.Index)
	}
	return fmt.Sprintf("annotate %s (index=%d): %v", e.Kind, e.Index, e.Err)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the Kind of err, or "" when err is not an *Error.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return ""
}
