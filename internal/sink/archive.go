package sink

import (
	"archive/tar"
	"bytes"
	"encoding/json"
	"errors"
	"image/png"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"

	"github.com/roach88/posepipe/internal/frame"
)

// Archive writes frames into a compressed tar file.
//
// Write is called only from the pipeline's reassembler, so Archive is not
// safe for concurrent use.
type Archive struct {
	path     string
	file     *os.File
	compress io.WriteCloser
	tw       *tar.Writer
	closed   bool

	manifest Manifest
	digests  []string
	modTime  time.Time
}

// CreateArchive creates the archive at path. Paths ending in .gz or .tgz are
// gzip-compressed; everything else uses zstd.
func CreateArchive(path string, meta Meta) (*Archive, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, &Error{Kind: KindCannotCreate, Path: path, Index: -1, Err: err}
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, &Error{Kind: KindCannotCreate, Path: path, Index: -1, Err: err}
	}

	var cw io.WriteCloser
	if isGzip(path) {
		cw = gzip.NewWriter(f)
	} else {
		zw, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			_ = f.Close()
			return nil, &Error{Kind: KindCannotCreate, Path: path, Index: -1, Err: err}
		}
		cw = zw
	}

	slog.Debug("archive created", "path", path)
	return &Archive{
		path:     path,
		file:     f,
		compress: cw,
		tw:       tar.NewWriter(cw),
		manifest: Manifest{Version: ManifestVersion, Meta: meta, Placeholders: []uint64{}},
		modTime:  time.Now(),
	}, nil
}

func isGzip(path string) bool {
	return strings.HasSuffix(path, ".gz") || strings.HasSuffix(path, ".tgz")
}

// Path returns the archive location.
func (a *Archive) Path() string {
	return a.path
}

// Write appends the annotated image of r and records its entry.
func (a *Archive) Write(r frame.SequencedResult) error {
	if a.closed {
		return &Error{Kind: KindClosed, Path: a.path, Index: int64(r.Index)}
	}

	digest, err := frame.Digest(r)
	if err != nil {
		return &Error{Kind: KindWriteFailure, Path: a.path, Index: int64(r.Index), Err: err}
	}
	entry := Entry{
		Index:  r.Index,
		Status: r.Status(),
		Poses:  r.Annotated.Poses,
		Digest: digest,
	}

	if img := r.Annotated.Image; img != nil {
		var buf bytes.Buffer
		if err := png.Encode(&buf, img); err != nil {
			return &Error{Kind: KindWriteFailure, Path: a.path, Index: int64(r.Index), Err: err}
		}
		entry.File = FrameName(r.Index)
		if err := a.writeMember(entry.File, buf.Bytes()); err != nil {
			return &Error{Kind: KindWriteFailure, Path: a.path, Index: int64(r.Index), Err: err}
		}
		if a.manifest.Meta.Width == 0 {
			b := img.Bounds()
			a.manifest.Meta.Width, a.manifest.Meta.Height = b.Dx(), b.Dy()
		}
	}

	if r.Failed {
		a.manifest.Placeholders = append(a.manifest.Placeholders, r.Index)
	}
	a.manifest.Entries = append(a.manifest.Entries, entry)
	a.manifest.Frames++
	a.digests = append(a.digests, digest)
	return nil
}

func (a *Archive) writeMember(name string, data []byte) error {
	hdr := &tar.Header{
		Name:    name,
		Mode:    0o644,
		Size:    int64(len(data)),
		ModTime: a.modTime,
		Format:  tar.FormatPAX,
	}
	if err := a.tw.WriteHeader(hdr); err != nil {
		return err
	}
	_, err := a.tw.Write(data)
	return err
}

// Manifest returns the manifest accumulated so far.
func (a *Archive) Manifest() Manifest {
	return a.manifest
}

// Close writes the manifest and flushes every layer. The archive is
// finalised even when the run failed, so it holds the ordered prefix.
func (a *Archive) Close() error {
	if a.closed {
		return nil
	}
	a.closed = true

	a.manifest.Chain = frame.ChainDigest(a.digests)

	var errs []error

	data, err := json.MarshalIndent(a.manifest, "", "  ")
	if err != nil {
		errs = append(errs, err)
	} else if err := a.writeMember(ManifestName, data); err != nil {
		errs = append(errs, err)
	}

	errs = append(errs, a.tw.Close(), a.compress.Close(), a.file.Close())
	if err := errors.Join(errs...); err != nil {
		return &Error{Kind: KindWriteFailure, Path: a.path, Index: -1, Err: err}
	}

	slog.Info("archive written",
		"path", a.path,
		"frames", a.manifest.Frames,
		"placeholders", len(a.manifest.Placeholders))
	return nil
}
