package frame

import (
	"image"
	"image/draw"
	"time"
)

// Frame is one unit of input, typically one decoded video image.
type Frame struct {
	Image     image.Image
	Width     int
	Height    int
	Timestamp time.Duration // Offset from stream start, zero if unknown
}

// New wraps an image as a Frame, taking its dimensions from the image bounds.
func New(img image.Image, ts time.Duration) Frame {
	f := Frame{Image: img, Timestamp: ts}
	if img != nil {
		b := img.Bounds()
		f.Width, f.Height = b.Dx(), b.Dy()
	}
	return f
}

// Keypoint is a single named body landmark in image coordinates.
type Keypoint struct {
	Name  string  `json:"name"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Score float64 `json:"score"`
}

// Pose is one detected person.
type Pose struct {
	Score     float64    `json:"score"`
	Keypoints []Keypoint `json:"keypoints"`
}

// AnnotatedFrame is the output of the annotate capability for one Frame.
type AnnotatedFrame struct {
	Image image.Image
	Poses []Pose

	// Placeholder marks the sentinel that fills the slot of a frame whose
	// annotation failed.
	Placeholder bool
}

// Placeholder builds the sentinel annotated frame for a failed index.
// The original image is kept so the output stream has no visual gap.
func Placeholder(f Frame) AnnotatedFrame {
	return AnnotatedFrame{Image: f.Image, Placeholder: true}
}

// SequencedFrame is a Frame tagged with its position in the input stream.
type SequencedFrame struct {
	Index uint64
	Frame Frame
}

// Status reports how a result was produced.
type Status string

const (
	StatusOK     Status = "ok"
	StatusFailed Status = "failed"
)

// SequencedResult carries an annotated frame back to the reassembler.
// It is produced exactly once per SequencedFrame.
type SequencedResult struct {
	Index     uint64
	Annotated AnnotatedFrame

	// Failed is set when the annotate capability returned an error; Annotated
	// then holds a placeholder and Err the cause.
	Failed bool
	Err    error

	Worker  int           // Pool slot that produced the result
	Latency time.Duration // Time spent in the annotate capability
}

// Status returns StatusFailed for sentinel results and StatusOK otherwise.
func (r SequencedResult) Status() Status {
	if r.Failed {
		return StatusFailed
	}
	return StatusOK
}

// CloneImage returns a mutable RGBA copy of img. Annotators draw overlays on
// the copy so the source frame is never modified.
func CloneImage(img image.Image) *image.RGBA {
	b := img.Bounds()
	dst := image.NewRGBA(b)
	draw.Draw(dst, b, img, b.Min, draw.Src)
	return dst
}
