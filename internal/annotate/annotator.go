package annotate

import (
	"context"

	"github.com/roach88/posepipe/internal/frame"
)

// Annotator is the per-frame annotate capability. It has the same method set
// as engine.Annotator, so every annotator here can be handed to a pipeline.
type Annotator interface {
	Apply(ctx context.Context, f frame.Frame) (frame.AnnotatedFrame, error)
}

// Factory creates the annotator owned by one pipeline worker.
type Factory func(worker int) (Annotator, error)
