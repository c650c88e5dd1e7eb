package engine

import (
	"context"

	"github.com/roach88/posepipe/internal/frame"
)

// FrameSource yields frames in arrival order.
//
// Next returns io.EOF once the stream is exhausted. Any other error is a
// read failure and stops the pipeline. Close is called by the Pipeline once
// the distributor has stopped reading.
type FrameSource interface {
	Next(ctx context.Context) (frame.Frame, error)
	Close() error
}

// Annotator is the expensive per-frame transformation.
//
// An Annotator instance is used by exactly one worker and need not be safe
// for concurrent use. Implementations that also implement io.Closer are
// closed when their worker exits.
type Annotator interface {
	Apply(ctx context.Context, f frame.Frame) (frame.AnnotatedFrame, error)
}

// AnnotatorFunc adapts a function to the Annotator interface.
type AnnotatorFunc func(ctx context.Context, f frame.Frame) (frame.AnnotatedFrame, error)

// Apply calls fn(ctx, f).
func (fn AnnotatorFunc) Apply(ctx context.Context, f frame.Frame) (frame.AnnotatedFrame, error) {
	return fn(ctx, f)
}

// AnnotatorFactory creates the annotator owned by pool slot worker.
// It is called once per worker before any frame is read.
type AnnotatorFactory func(worker int) (Annotator, error)

// FrameSink receives annotated frames strictly in index order.
//
// Write is only ever called from the reassembler goroutine. Close is called
// exactly once by the Pipeline after the reassembler has returned.
type FrameSink interface {
	Write(r frame.SequencedResult) error
	Close() error
}
