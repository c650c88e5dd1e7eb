package engine

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes pipeline errors.
type ErrorCode string

const (
	// ErrCodeSourceFailure indicates the frame source could not be read.
	ErrCodeSourceFailure ErrorCode = "SOURCE_FAILURE"

	// ErrCodeInferenceFailure indicates an annotator failed. Per-frame
	// failures are recovered with a placeholder; only annotator construction
	// failures are fatal.
	ErrCodeInferenceFailure ErrorCode = "INFERENCE_FAILURE"

	// ErrCodeSinkFailure indicates a write to or close of the sink failed.
	ErrCodeSinkFailure ErrorCode = "SINK_FAILURE"

	// ErrCodeOrderingViolation indicates a duplicate or regressed index, or a
	// pending buffer that can never drain. Always fatal.
	ErrCodeOrderingViolation ErrorCode = "ORDERING_VIOLATION"

	// ErrCodeTimeout marks a liveness re-check. It is never surfaced by itself.
	ErrCodeTimeout ErrorCode = "TIMEOUT"

	// ErrCodeCancelled indicates the caller cancelled the run.
	ErrCodeCancelled ErrorCode = "CANCELLED"
)

// noIndex marks a PipelineError that is not tied to a frame.
const noIndex = -1

// PipelineError is an error raised by a pipeline stage.
type PipelineError struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Index is the frame index involved, or -1.
	Index int64

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *PipelineError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Index >= 0 {
		msg = fmt.Sprintf("%s (index=%d)", msg, e.Index)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *PipelineError) Unwrap() error {
	return e.Err
}

// Code returns the ErrorCode of err, or "" when err is not a PipelineError.
// Uses errors.As to handle wrapped errors.
func Code(err error) ErrorCode {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Code
	}
	return ""
}

// IsSourceFailure reports whether err is a source failure.
func IsSourceFailure(err error) bool {
	return Code(err) == ErrCodeSourceFailure
}

// IsInferenceFailure reports whether err is an inference failure.
func IsInferenceFailure(err error) bool {
	return Code(err) == ErrCodeInferenceFailure
}

// IsSinkFailure reports whether err is a sink failure.
func IsSinkFailure(err error) bool {
	return Code(err) == ErrCodeSinkFailure
}

// IsOrderingViolation reports whether err is an ordering violation.
func IsOrderingViolation(err error) bool {
	return Code(err) == ErrCodeOrderingViolation
}

// IsCancelled reports whether err is a cancellation.
func IsCancelled(err error) bool {
	return Code(err) == ErrCodeCancelled
}

// NewSourceError wraps a source read failure. next is the index the failed
// frame would have received.
func NewSourceError(next uint64, err error) *PipelineError {
	return &PipelineError{
		Code:    ErrCodeSourceFailure,
		Message: "read frame from source",
		Index:   int64(next),
		Err:     err,
	}
}

// NewInferenceError wraps an annotate failure for one frame.
func NewInferenceError(index uint64, err error) *PipelineError {
	return &PipelineError{
		Code:    ErrCodeInferenceFailure,
		Message: "annotate frame",
		Index:   int64(index),
		Err:     err,
	}
}

// NewSinkError wraps a sink write failure.
func NewSinkError(index uint64, err error) *PipelineError {
	return &PipelineError{
		Code:    ErrCodeSinkFailure,
		Message: "write frame to sink",
		Index:   int64(index),
		Err:     err,
	}
}

// NewOrderingViolation reports a broken ordering invariant.
func NewOrderingViolation(index, next uint64, reason string) *PipelineError {
	return &PipelineError{
		Code:    ErrCodeOrderingViolation,
		Message: fmt.Sprintf("%s (next expected %d)", reason, next),
		Index:   int64(index),
	}
}

// newCancelledError wraps a context error.
func newCancelledError(err error) *PipelineError {
	return &PipelineError{
		Code:    ErrCodeCancelled,
		Message: "pipeline cancelled",
		Index:   noIndex,
		Err:     err,
	}
}
