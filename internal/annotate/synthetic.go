package annotate

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/roach88/posepipe/internal/frame"
)

// ErrInjected is the cause carried by scripted failures.
var ErrInjected = errors.New("injected failure")

// Script drives a Synthetic annotator.
type Script struct {
	// Delays are per-index processing times. Index i sleeps
	// Delays[i % len(Delays)]; an empty list means no delay.
	Delays []time.Duration

	// Fail lists the indices whose annotation returns an error.
	Fail []uint64

	// Draw renders the generated pose onto a copy of the frame.
	Draw bool
}

// DelayFor returns the scripted delay for index.
func (s Script) DelayFor(index uint64) time.Duration {
	if len(s.Delays) == 0 {
		return 0
	}
	return s.Delays[index%uint64(len(s.Delays))]
}

// Fails reports whether index is scripted to fail.
func (s Script) Fails(index uint64) bool {
	for _, f := range s.Fail {
		if f == index {
			return true
		}
	}
	return false
}

// Synthetic is a deterministic annotator for simulations and tests.
//
// It reads the frame index from the context (frame.WithIndex), sleeps for the
// scripted delay, then either fails or returns one pose whose keypoints are a
// pure function of the index and frame size.
type Synthetic struct {
	worker int
	script Script
	calls  int
}

// NewSynthetic creates the synthetic annotator for one worker.
func NewSynthetic(worker int, script Script) *Synthetic {
	return &Synthetic{worker: worker, script: script}
}

// SyntheticFactory returns a Factory that builds Synthetic annotators sharing
// one script.
func SyntheticFactory(script Script) Factory {
	return func(worker int) (Annotator, error) {
		return NewSynthetic(worker, script), nil
	}
}

// Calls returns how many frames this annotator has processed.
func (a *Synthetic) Calls() int {
	return a.calls
}

// Apply implements Annotator.
func (a *Synthetic) Apply(ctx context.Context, f frame.Frame) (frame.AnnotatedFrame, error) {
	a.calls++
	index, _ := frame.IndexFromContext(ctx)

	if d := a.script.DelayFor(index); d > 0 {
		timer := time.NewTimer(d)
		select {
		case <-ctx.Done():
			timer.Stop()
			return frame.AnnotatedFrame{}, ctx.Err()
		case <-timer.C:
		}
	}

	if a.script.Fails(index) {
		return frame.AnnotatedFrame{}, &Error{Kind: KindInjected, Index: index, Err: ErrInjected}
	}

	poses := []frame.Pose{SyntheticPose(index, f.Width, f.Height)}
	out := frame.AnnotatedFrame{Image: f.Image, Poses: poses}
	if a.script.Draw && f.Image != nil {
		out.Image = Overlay(f.Image, poses)
	}
	return out, nil
}

// SyntheticPose builds a standing figure centred in a width x height frame,
// swaying horizontally with index.
func SyntheticPose(index uint64, width, height int) frame.Pose {
	w, h := float64(width), float64(height)
	sway := math.Sin(float64(index)/5) * w * 0.05
	cx := w/2 + sway

	// Offsets as fractions of the frame, in frame.KeypointNames order.
	offsets := [][2]float64{
		{0, 0.15},                   // nose
		{-0.02, 0.13}, {0.02, 0.13}, // eyes
		{-0.04, 0.14}, {0.04, 0.14}, // ears
		{-0.10, 0.28}, {0.10, 0.28}, // shoulders
		{-0.14, 0.42}, {0.14, 0.42}, // elbows
		{-0.16, 0.55}, {0.16, 0.55}, // wrists
		{-0.07, 0.56}, {0.07, 0.56}, // hips
		{-0.08, 0.72}, {0.08, 0.72}, // knees
		{-0.08, 0.88}, {0.08, 0.88}, // ankles
	}

	kps := make([]frame.Keypoint, len(frame.KeypointNames))
	for i, name := range frame.KeypointNames {
		kps[i] = frame.Keypoint{
			Name:  name,
			X:     cx + offsets[i][0]*w,
			Y:     offsets[i][1] * h,
			Score: 0.9,
		}
	}
	return frame.Pose{Score: 0.9, Keypoints: kps}
}
