package frame

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func samplePose() Pose {
	return Pose{
		Score: 0.91,
		Keypoints: []Keypoint{
			{Name: "nose", X: 10.25, Y: 20.5, Score: 0.88},
			{Name: "left_eye", X: 12, Y: 18, Score: 0.75},
		},
	}
}

func TestDigestDeterministic(t *testing.T) {
	r := SequencedResult{Index: 3, Annotated: AnnotatedFrame{Poses: []Pose{samplePose()}}}

	d1, err := Digest(r)
	require.NoError(t, err)
	d2, err := Digest(r)
	require.NoError(t, err)

	assert.Equal(t, d1, d2)
	assert.Len(t, d1, 64)
}

func TestDigestIgnoresWorkerAndLatency(t *testing.T) {
	a := SequencedResult{Index: 1, Worker: 0, Annotated: AnnotatedFrame{Poses: []Pose{samplePose()}}}
	b := SequencedResult{Index: 1, Worker: 5, Latency: 42, Annotated: AnnotatedFrame{Poses: []Pose{samplePose()}}}

	da, err := Digest(a)
	require.NoError(t, err)
	db, err := Digest(b)
	require.NoError(t, err)
	assert.Equal(t, da, db)
}

func TestDigestDistinguishesIndexAndStatus(t *testing.T) {
	base := SequencedResult{Index: 1}
	other := SequencedResult{Index: 2}
	failed := SequencedResult{Index: 1, Failed: true, Err: errors.New("boom")}

	dBase, err := Digest(base)
	require.NoError(t, err)
	dOther, err := Digest(other)
	require.NoError(t, err)
	dFailed, err := Digest(failed)
	require.NoError(t, err)

	assert.NotEqual(t, dBase, dOther)
	assert.NotEqual(t, dBase, dFailed)
}

func TestChainDigestOrderSensitive(t *testing.T) {
	forward := ChainDigest([]string{"a", "b", "c"})
	reversed := ChainDigest([]string{"c", "b", "a"})
	dropped := ChainDigest([]string{"a", "c"})

	assert.NotEqual(t, forward, reversed)
	assert.NotEqual(t, forward, dropped)
	assert.Equal(t, forward, ChainDigest([]string{"a", "b", "c"}))
	assert.Empty(t, ChainDigest(nil))
}

func TestMilli(t *testing.T) {
	assert.Equal(t, int64(10250), Milli(10.25))
	assert.Equal(t, int64(-1500), Milli(-1.5))
	assert.Equal(t, int64(1), Milli(0.0005))
}
