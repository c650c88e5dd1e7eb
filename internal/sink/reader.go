package sink

import (
	"archive/tar"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"os"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// Contents is a fully read archive.
type Contents struct {
	Manifest Manifest
	Members  []string          // Member names in archive order
	Files    map[string][]byte // Member name to data
}

// Image decodes the PNG stored for index.
func (c *Contents) Image(index uint64) (image.Image, error) {
	data, ok := c.Files[FrameName(index)]
	if !ok {
		return nil, fmt.Errorf("no image for index %d", index)
	}
	return png.Decode(bytes.NewReader(data))
}

// ReadArchive reads an archive written by Archive.
func ReadArchive(path string) (*Contents, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var r io.Reader
	if isGzip(path) {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("gzip: %w", err)
		}
		defer gz.Close()
		r = gz
	} else {
		zr, err := zstd.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("zstd: %w", err)
		}
		defer zr.Close()
		r = zr
	}

	c := &Contents{Files: make(map[string][]byte)}
	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("tar: %w", err)
		}
		data, err := io.ReadAll(tr)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", hdr.Name, err)
		}
		c.Members = append(c.Members, hdr.Name)
		c.Files[hdr.Name] = data
	}

	raw, ok := c.Files[ManifestName]
	if !ok {
		return nil, fmt.Errorf("archive has no %s", ManifestName)
	}
	if err := json.Unmarshal(raw, &c.Manifest); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	return c, nil
}
