package source

import (
	"context"
	"strings"

	"github.com/roach88/posepipe/internal/frame"
)

// DefaultFPS is the frame rate assumed for sources that do not carry one.
const DefaultFPS = 30.0

// Info describes a stream as far as it is known when the source is opened.
type Info struct {
	Identifier string  `json:"identifier"`
	FPS        float64 `json:"fps"`
	Width      int     `json:"width"`
	Height     int     `json:"height"`
	Count      int     `json:"count"` // -1 when unknown
}

// Source is a frame stream. Next returns io.EOF at end of stream.
type Source interface {
	Next(ctx context.Context) (frame.Frame, error)
	Close() error
	Info() Info
}

const syntheticScheme = "synthetic://"

// Open resolves an identifier to a Source.
func Open(identifier string) (Source, error) {
	if identifier == "" {
		return nil, &Error{Kind: KindInvalidIdentifier, Source: identifier}
	}
	if strings.HasPrefix(identifier, syntheticScheme) {
		return OpenSynthetic(identifier)
	}
	return OpenDir(identifier, DefaultFPS)
}
