package sink

import (
	"image"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/posepipe/internal/frame"
)

func result(i uint64, failed bool) frame.SequencedResult {
	img := image.NewRGBA(image.Rect(0, 0, 6, 4))
	img.Pix[0] = uint8(i)
	r := frame.SequencedResult{Index: i, Annotated: frame.AnnotatedFrame{Image: img}}
	if failed {
		r.Failed = true
		r.Annotated.Placeholder = true
	} else {
		r.Annotated.Poses = []frame.Pose{{Score: 0.5, Keypoints: []frame.Keypoint{{Name: "nose", X: 1, Y: 2, Score: 0.9}}}}
	}
	return r
}

func TestArchive_RoundTrip(t *testing.T) {
	for _, name := range []string{"out.tar.zst", "out.tar.gz"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "nested", name)
			a, err := CreateArchive(path, Meta{RunID: "run-1", FPS: 30})
			require.NoError(t, err)

			for i := uint64(0); i < 3; i++ {
				require.NoError(t, a.Write(result(i, i == 1)))
			}
			require.NoError(t, a.Close())
			require.NoError(t, a.Close(), "Close is idempotent")

			c, err := ReadArchive(path)
			require.NoError(t, err)

			m := c.Manifest
			assert.Equal(t, ManifestVersion, m.Version)
			assert.Equal(t, 3, m.Frames)
			assert.Equal(t, []uint64{1}, m.Placeholders)
			assert.Equal(t, Meta{RunID: "run-1", FPS: 30, Width: 6, Height: 4}, m.Meta)
			require.Len(t, m.Entries, 3)
			assert.Equal(t, frame.StatusFailed, m.Entries[1].Status)
			assert.Equal(t, "nose", m.Entries[0].Poses[0].Keypoints[0].Name)

			digests := make([]string, len(m.Entries))
			for i, e := range m.Entries {
				digests[i] = e.Digest
			}
			assert.Equal(t, frame.ChainDigest(digests), m.Chain)

			assert.Equal(t, []string{FrameName(0), FrameName(1), FrameName(2), ManifestName}, c.Members)
			img, err := c.Image(2)
			require.NoError(t, err)
			assert.Equal(t, 6, img.Bounds().Dx())
		})
	}
}

func TestArchive_EmptyRunStillHasManifest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.tar.zst")
	a, err := CreateArchive(path, Meta{FPS: 25})
	require.NoError(t, err)
	require.NoError(t, a.Close())

	c, err := ReadArchive(path)
	require.NoError(t, err)
	assert.Equal(t, 0, c.Manifest.Frames)
	assert.Equal(t, "", c.Manifest.Chain)
	assert.Equal(t, []uint64{}, c.Manifest.Placeholders)
}

func TestArchive_CannotCreate(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))

	_, err := CreateArchive(filepath.Join(blocker, "out.tar.zst"), Meta{})
	require.Error(t, err)
	assert.True(t, IsCannotCreate(err))
}

func TestArchive_WriteAfterClose(t *testing.T) {
	a, err := CreateArchive(filepath.Join(t.TempDir(), "x.tar.zst"), Meta{})
	require.NoError(t, err)
	require.NoError(t, a.Close())

	err = a.Write(result(0, false))
	assert.Equal(t, KindClosed, KindOf(err))
}

func TestArchive_FrameWithoutImage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.tar.zst")
	a, err := CreateArchive(path, Meta{})
	require.NoError(t, err)
	require.NoError(t, a.Write(frame.SequencedResult{Index: 0}))
	require.NoError(t, a.Close())

	c, err := ReadArchive(path)
	require.NoError(t, err)
	assert.Equal(t, []string{ManifestName}, c.Members)
	assert.Empty(t, c.Manifest.Entries[0].File)
}

func TestMemory(t *testing.T) {
	m := NewMemory()
	require.NoError(t, m.Write(result(0, false)))
	require.NoError(t, m.Write(result(1, false)))
	assert.Equal(t, []uint64{0, 1}, m.Indices())
	assert.Len(t, m.Results(), 2)

	require.NoError(t, m.Close())
	assert.True(t, m.Closed())
	assert.Equal(t, KindClosed, KindOf(m.Write(result(2, false))))
}

func TestErrorFormatting(t *testing.T) {
	err := &Error{Kind: KindWriteFailure, Path: "out.tar.zst", Index: 4, Err: os.ErrPermission}
	assert.Equal(t, "sink WRITE_FAILURE: out.tar.zst (index=4): permission denied", err.Error())
	assert.ErrorIs(t, err, os.ErrPermission)
	assert.True(t, IsWriteFailure(err))
}
