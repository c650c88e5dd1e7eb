package source

import (
	"context"
	"errors"
	"image"
	_ "image/jpeg" // register decoder
	_ "image/png"  // register decoder
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/roach88/posepipe/internal/frame"
)

// LockFileName is created inside a directory while a source reads it.
const LockFileName = ".posepipe.lock"

var imageExts = map[string]bool{".png": true, ".jpg": true, ".jpeg": true}

// Dir reads the images of one directory in lexical name order.
//
// Thread-safety: Next and Close are safe for concurrent use, though a
// pipeline only calls Next from its distributor.
type Dir struct {
	path  string
	files []string
	info  Info

	mu     sync.Mutex
	pos    int
	closed bool
	lock   string
}

// OpenDir claims path and lists its images. fps sets frame timestamps.
func OpenDir(path string, fps float64) (*Dir, error) {
	st, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, &Error{Kind: KindNotFound, Source: path, Err: err}
	}
	if err != nil {
		return nil, &Error{Kind: KindReadFailure, Source: path, Err: err}
	}
	if !st.IsDir() {
		return nil, &Error{Kind: KindInvalidIdentifier, Source: path, Err: errors.New("not a directory")}
	}

	files, err := listImages(path)
	if err != nil {
		return nil, &Error{Kind: KindReadFailure, Source: path, Err: err}
	}

	lock := filepath.Join(path, LockFileName)
	lf, err := os.OpenFile(lock, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if errors.Is(err, fs.ErrExist) {
		return nil, &Error{Kind: KindDeviceBusy, Source: path, Err: errors.New("directory is locked by another pipeline")}
	}
	if err != nil {
		return nil, &Error{Kind: KindReadFailure, Source: path, Err: err}
	}
	_ = lf.Close()

	if fps <= 0 {
		fps = DefaultFPS
	}
	d := &Dir{
		path:  path,
		files: files,
		lock:  lock,
		info:  Info{Identifier: path, FPS: fps, Count: len(files)},
	}
	if len(files) > 0 {
		if cfg, err := decodeConfig(files[0]); err == nil {
			d.info.Width, d.info.Height = cfg.Width, cfg.Height
		}
	}

	slog.Debug("source opened", "path", path, "frames", len(files))
	return d, nil
}

func listImages(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if imageExts[strings.ToLower(filepath.Ext(e.Name()))] {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

func decodeConfig(path string) (image.Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return image.Config{}, err
	}
	defer f.Close()
	cfg, _, err := image.DecodeConfig(f)
	return cfg, err
}

// Info returns the stream description.
func (d *Dir) Info() Info {
	return d.info
}

// Next decodes the next image.
func (d *Dir) Next(ctx context.Context) (frame.Frame, error) {
	if err := ctx.Err(); err != nil {
		return frame.Frame{}, err
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return frame.Frame{}, &Error{Kind: KindReadFailure, Source: d.path, Err: errors.New("source closed")}
	}
	if d.pos >= len(d.files) {
		d.mu.Unlock()
		return frame.Frame{}, io.EOF
	}
	pos := d.pos
	d.pos++
	d.mu.Unlock()

	path := d.files[pos]
	f, err := os.Open(path)
	if err != nil {
		return frame.Frame{}, &Error{Kind: KindReadFailure, Source: path, Err: err}
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return frame.Frame{}, &Error{Kind: KindReadFailure, Source: path, Err: err}
	}

	ts := time.Duration(float64(pos) / d.info.FPS * float64(time.Second))
	return frame.New(img, ts), nil
}

// Close releases the directory lock. Idempotent.
func (d *Dir) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	if err := os.Remove(d.lock); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
