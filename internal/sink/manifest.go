package sink

import (
	"fmt"

	"github.com/roach88/posepipe/internal/frame"
)

// ManifestVersion is bumped when the archive layout changes.
const ManifestVersion = 1

// ManifestName is the archive member holding the Manifest.
const ManifestName = "manifest.json"

// Meta describes the stream being written. It is known before the first
// frame arrives.
type Meta struct {
	RunID  string  `json:"run_id,omitempty"`
	FPS    float64 `json:"fps"`
	Width  int     `json:"width"`
	Height int     `json:"height"`
}

// Entry describes one archived frame.
type Entry struct {
	Index  uint64       `json:"index"`
	File   string       `json:"file,omitempty"`
	Status frame.Status `json:"status"`
	Poses  []frame.Pose `json:"poses,omitempty"`
	Digest string       `json:"digest"`
}

// Manifest is written last and indexes every frame in the archive.
type Manifest struct {
	Version      int      `json:"version"`
	Meta         Meta     `json:"meta"`
	Frames       int      `json:"frames"`
	Placeholders []uint64 `json:"placeholders"`
	Chain        string   `json:"chain"`
	Entries      []Entry  `json:"entries"`
}

// FrameName returns the archive member name for index.
func FrameName(index uint64) string {
	return fmt.Sprintf("frames/%06d.png", index)
}
