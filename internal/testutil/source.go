package testutil

import (
	"context"
	"image"
	"image/color"
	"io"
	"sync"
	"time"

	"github.com/roach88/posepipe/internal/frame"
)

// GenerateFrames returns n small frames. Frame i is filled with a gray level
// derived from i so outputs can be told apart.
func GenerateFrames(n, width, height int) []frame.Frame {
	frames := make([]frame.Frame, n)
	for i := range frames {
		img := image.NewGray(image.Rect(0, 0, width, height))
		level := uint8(i % 256)
		for p := range img.Pix {
			img.Pix[p] = level
		}
		frames[i] = frame.New(img, time.Duration(i)*33*time.Millisecond)
	}
	return frames
}

// GrayLevel returns the fill level of a frame built by GenerateFrames.
func GrayLevel(img image.Image) uint8 {
	b := img.Bounds()
	return color.GrayModel.Convert(img.At(b.Min.X, b.Min.Y)).(color.Gray).Y
}

// SliceSource yields a fixed list of frames, then io.EOF.
//
// Set FailAt to make the read at that position return FailErr instead.
// Thread-safety: safe for concurrent use via internal mutex.
type SliceSource struct {
	mu     sync.Mutex
	frames []frame.Frame
	pos    int
	closed bool

	FailAt  int // -1 disables
	FailErr error
}

// NewSliceSource creates a source over frames.
func NewSliceSource(frames []frame.Frame) *SliceSource {
	return &SliceSource{frames: frames, FailAt: -1}
}

// Next returns the next frame or io.EOF.
func (s *SliceSource) Next(ctx context.Context) (frame.Frame, error) {
	if err := ctx.Err(); err != nil {
		return frame.Frame{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pos == s.FailAt {
		return frame.Frame{}, s.FailErr
	}
	if s.pos >= len(s.frames) {
		return frame.Frame{}, io.EOF
	}
	f := s.frames[s.pos]
	s.pos++
	return f, nil
}

// Close marks the source closed.
func (s *SliceSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Closed reports whether Close has been called.
func (s *SliceSource) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Read returns how many frames have been handed out.
func (s *SliceSource) Read() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pos
}

// EndlessSource yields frames until the context is cancelled. It is used to
// exercise cancellation of a pipeline that would otherwise never finish.
type EndlessSource struct {
	Frame frame.Frame
}

// Next returns a copy of the configured frame.
func (s *EndlessSource) Next(ctx context.Context) (frame.Frame, error) {
	if err := ctx.Err(); err != nil {
		return frame.Frame{}, err
	}
	return s.Frame, nil
}

// Close is a no-op.
func (s *EndlessSource) Close() error { return nil }
