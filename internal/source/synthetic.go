package source

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"io"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/roach88/posepipe/internal/frame"
)

// Synthetic generates a fixed number of frames, optionally paced like a
// camera.
type Synthetic struct {
	info    Info
	limiter *rate.Limiter

	mu  sync.Mutex
	pos int
}

// SyntheticConfig describes a generated stream.
type SyntheticConfig struct {
	Frames int
	Width  int
	Height int

	// FPS paces Next to this many frames per second. Zero generates as fast
	// as the pipeline reads; timestamps then assume DefaultFPS.
	FPS float64
}

// NewSynthetic creates a generated stream.
func NewSynthetic(cfg SyntheticConfig) (*Synthetic, error) {
	if cfg.Frames < 0 {
		return nil, fmt.Errorf("frame count must be non-negative, got %d", cfg.Frames)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("frame size must be positive, got %dx%d", cfg.Width, cfg.Height)
	}
	if cfg.FPS < 0 {
		return nil, fmt.Errorf("fps must be non-negative, got %g", cfg.FPS)
	}

	s := &Synthetic{
		info: Info{
			Identifier: fmt.Sprintf("%s%d?width=%d&height=%d&fps=%g", syntheticScheme, cfg.Frames, cfg.Width, cfg.Height, cfg.FPS),
			FPS:        cfg.FPS,
			Width:      cfg.Width,
			Height:     cfg.Height,
			Count:      cfg.Frames,
		},
	}
	if cfg.FPS > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(cfg.FPS), 1)
	} else {
		s.info.FPS = DefaultFPS
	}
	return s, nil
}

// OpenSynthetic parses a synthetic://N?width=W&height=H&fps=F identifier.
// Width and height default to 64x48.
func OpenSynthetic(identifier string) (*Synthetic, error) {
	invalid := func(err error) error {
		return &Error{Kind: KindInvalidIdentifier, Source: identifier, Err: err}
	}

	rest := strings.TrimPrefix(identifier, syntheticScheme)
	countStr, rawQuery, _ := strings.Cut(rest, "?")
	n, err := strconv.Atoi(countStr)
	if err != nil {
		return nil, invalid(fmt.Errorf("frame count: %w", err))
	}
	q, err := url.ParseQuery(rawQuery)
	if err != nil {
		return nil, invalid(err)
	}

	cfg := SyntheticConfig{Frames: n, Width: 64, Height: 48}
	if v := q.Get("width"); v != "" {
		if cfg.Width, err = strconv.Atoi(v); err != nil {
			return nil, invalid(fmt.Errorf("width: %w", err))
		}
	}
	if v := q.Get("height"); v != "" {
		if cfg.Height, err = strconv.Atoi(v); err != nil {
			return nil, invalid(fmt.Errorf("height: %w", err))
		}
	}
	if v := q.Get("fps"); v != "" {
		if cfg.FPS, err = strconv.ParseFloat(v, 64); err != nil {
			return nil, invalid(fmt.Errorf("fps: %w", err))
		}
	}

	s, err := NewSynthetic(cfg)
	if err != nil {
		return nil, invalid(err)
	}
	return s, nil
}

// Info returns the stream description.
func (s *Synthetic) Info() Info {
	return s.info
}

// Next returns the next generated frame, waiting for the pacing limiter.
func (s *Synthetic) Next(ctx context.Context) (frame.Frame, error) {
	if err := ctx.Err(); err != nil {
		return frame.Frame{}, err
	}

	s.mu.Lock()
	if s.pos >= s.info.Count {
		s.mu.Unlock()
		return frame.Frame{}, io.EOF
	}
	pos := s.pos
	s.pos++
	s.mu.Unlock()

	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return frame.Frame{}, err
		}
	}

	ts := time.Duration(float64(pos) / s.info.FPS * float64(time.Second))
	return frame.New(Pattern(pos, s.info.Width, s.info.Height), ts), nil
}

// Close is a no-op.
func (s *Synthetic) Close() error {
	return nil
}

// Pattern draws frame n: a gray background whose level encodes n mod 256
// and a vertical bar that moves one column per frame.
func Pattern(n, width, height int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	level := uint8(n % 256)
	bar := n % width
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			c := color.RGBA{R: level, G: level, B: level, A: 255}
			if x == bar {
				c = color.RGBA{R: 255, G: 200, A: 255}
			}
			img.SetRGBA(x, y, c)
		}
	}
	return img
}
