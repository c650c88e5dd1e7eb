package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/posepipe/internal/frame"
)

type memorySink struct {
	written []uint64
	closed  bool
	failAt  int64
}

func (m *memorySink) Write(r frame.SequencedResult) error {
	if m.failAt >= 0 && r.Index == uint64(m.failAt) {
		return errors.New("inner write failed")
	}
	m.written = append(m.written, r.Index)
	return nil
}

func (m *memorySink) Close() error {
	m.closed = true
	return nil
}

func TestRunLifecycle(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	createTestRun(t, s, "run-1")

	run, err := s.ReadRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, RunRunning, run.Status)
	assert.Nil(t, run.Total)
	assert.Nil(t, run.FinishedAt)
	assert.Equal(t, testStart, run.StartedAt)

	total := uint64(3)
	finished := testStart.Add(2 * time.Second)
	require.NoError(t, s.FinishRun(ctx, "run-1", Outcome{
		Status:     RunCompleted,
		Total:      &total,
		Emitted:    3,
		Chain:      "abc",
		FinishedAt: finished,
	}))

	run, err = s.ReadRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, RunCompleted, run.Status)
	require.NotNil(t, run.Total)
	assert.Equal(t, uint64(3), *run.Total)
	require.NotNil(t, run.FinishedAt)
	assert.Equal(t, finished, *run.FinishedAt)
}

func TestReadRun_NotFound(t *testing.T) {
	s := createTestStore(t)

	_, err := s.ReadRun(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrRunNotFound)

	err = s.FinishRun(context.Background(), "missing", Outcome{Status: RunFailed})
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestListRuns_NewestFirst(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	empty, err := s.ListRuns(ctx, 0)
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)

	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, s.CreateRun(ctx, Run{
			ID: id, Source: "dir", Workers: 1, Routing: "shared",
			StartedAt: testStart.Add(time.Duration(i) * time.Minute),
		}))
	}

	runs, err := s.ListRuns(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, "c", runs[0].ID)
	assert.Equal(t, "a", runs[2].ID)

	runs, err = s.ListRuns(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, runs, 2)
}

func TestRecordFrame_RejectsDuplicates(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	createTestRun(t, s, "run-1")

	_, err := s.RecordFrame(ctx, "run-1", 0, testResult(0, false))
	require.NoError(t, err)

	_, err = s.RecordFrame(ctx, "run-1", 1, testResult(0, false))
	assert.Error(t, err, "same index twice")

	_, err = s.RecordFrame(ctx, "run-1", 0, testResult(1, false))
	assert.Error(t, err, "same emission position twice")
}

func TestRecordFrame_RequiresRun(t *testing.T) {
	s := createTestStore(t)

	_, err := s.RecordFrame(context.Background(), "ghost", 0, testResult(0, false))
	assert.Error(t, err)
}

func TestReadFrames_RoundTrip(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	createTestRun(t, s, "run-1")

	failed := testResult(1, true)
	failed.Err = errors.New("INFERENCE_FAILURE: annotate frame")
	for seq, r := range []frame.SequencedResult{testResult(0, false), failed, testResult(2, false)} {
		_, err := s.RecordFrame(ctx, "run-1", uint64(seq), r)
		require.NoError(t, err)
	}

	frames, err := s.ReadFrames(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, frames, 3)

	assert.Equal(t, uint64(0), frames[0].Index)
	assert.Equal(t, frame.StatusOK, frames[0].Status)
	assert.Equal(t, 1500*time.Microsecond, frames[0].Latency)
	assert.Equal(t, testResult(0, false).Annotated.Poses, frames[0].Poses)

	assert.Equal(t, frame.StatusFailed, frames[1].Status)
	assert.Equal(t, "INFERENCE_FAILURE: annotate frame", frames[1].Error)
	assert.Empty(t, frames[1].Poses)
	assert.Equal(t, 1, frames[1].Worker)

	none, err := s.ReadFrames(ctx, "other")
	require.NoError(t, err)
	assert.NotNil(t, none)
}

func TestJournalSink_ForwardsAndFinishes(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	createTestRun(t, s, "run-1")

	inner := &memorySink{failAt: -1}
	j := NewJournalSink(ctx, s, "run-1", inner)
	for i := uint64(0); i < 4; i++ {
		require.NoError(t, j.Write(testResult(i, i == 2)))
	}
	require.NoError(t, j.Close())
	assert.True(t, inner.closed)
	assert.Equal(t, []uint64{0, 1, 2, 3}, inner.written)
	assert.Equal(t, uint64(4), j.Emitted())
	assert.Equal(t, uint64(1), j.Failed())

	total := uint64(4)
	require.NoError(t, j.Finish(ctx, &total, nil, "", testStart.Add(time.Second)))

	run, err := s.ReadRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, RunCompleted, run.Status)
	assert.Equal(t, uint64(4), run.Emitted)
	assert.Equal(t, uint64(1), run.Failed)
	assert.Equal(t, j.Chain(), run.Chain)

	v, err := s.VerifyRun(ctx, "run-1")
	require.NoError(t, err)
	assert.True(t, v.OK(), "violations: %v", v.Violations)
	assert.Equal(t, 1, v.Placeholder)
	assert.Equal(t, run.Chain, v.Chain)
}

func TestJournalSink_InnerFailure(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	createTestRun(t, s, "run-1")

	j := NewJournalSink(ctx, s, "run-1", &memorySink{failAt: 1})
	require.NoError(t, j.Write(testResult(0, false)))
	require.Error(t, j.Write(testResult(1, false)))

	runErr := errors.New("SINK_FAILURE: write frame to sink")
	require.NoError(t, j.Finish(ctx, nil, runErr, "SINK_FAILURE", testStart))

	run, err := s.ReadRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, RunFailed, run.Status)
	assert.Equal(t, "SINK_FAILURE", run.ErrorCode)
	assert.Nil(t, run.Total)
}

func TestJournalSink_WithoutInner(t *testing.T) {
	s := createTestStore(t)
	createTestRun(t, s, "run-1")

	j := NewJournalSink(context.Background(), s, "run-1", nil)
	require.NoError(t, j.Write(testResult(0, false)))
	require.NoError(t, j.Close())
}

func TestJournalSink_WritesAfterCancellation(t *testing.T) {
	s := createTestStore(t)
	createTestRun(t, s, "run-1")

	ctx, cancel := context.WithCancel(context.Background())
	j := NewJournalSink(ctx, s, "run-1", nil)
	require.NoError(t, j.Write(testResult(0, false)))
	cancel()
	require.NoError(t, j.Write(testResult(1, false)))

	frames, err := s.ReadFrames(context.Background(), "run-1")
	require.NoError(t, err)
	require.Len(t, frames, 2)
	assert.Equal(t, uint64(1), frames[1].Index)
}

func TestVerifyRun_DetectsViolations(t *testing.T) {
	ctx := context.Background()

	t.Run("out of order emission", func(t *testing.T) {
		s := createTestStore(t)
		createTestRun(t, s, "run-1")
		j := NewJournalSink(ctx, s, "run-1", nil)
		require.NoError(t, j.Write(testResult(1, false)))
		require.NoError(t, j.Write(testResult(0, false)))
		total := uint64(2)
		require.NoError(t, j.Finish(ctx, &total, nil, "", testStart))

		v, err := s.VerifyRun(ctx, "run-1")
		require.NoError(t, err)
		assert.False(t, v.OK())
		assert.Contains(t, v.Violations, "position 0 emitted index 1")
	})

	t.Run("tampered poses", func(t *testing.T) {
		s := createTestStore(t)
		createTestRun(t, s, "run-1")
		j := NewJournalSink(ctx, s, "run-1", nil)
		require.NoError(t, j.Write(testResult(0, false)))
		total := uint64(1)
		require.NoError(t, j.Finish(ctx, &total, nil, "", testStart))

		_, err := s.db.Exec(`UPDATE frames SET poses = '[]' WHERE idx = 0`)
		require.NoError(t, err)

		v, err := s.VerifyRun(ctx, "run-1")
		require.NoError(t, err)
		assert.Contains(t, v.Violations, "index 0 digest mismatch")
	})

	t.Run("missing frames in completed run", func(t *testing.T) {
		s := createTestStore(t)
		createTestRun(t, s, "run-1")
		j := NewJournalSink(ctx, s, "run-1", nil)
		require.NoError(t, j.Write(testResult(0, false)))
		total := uint64(3)
		require.NoError(t, j.Finish(ctx, &total, nil, "", testStart))

		v, err := s.VerifyRun(ctx, "run-1")
		require.NoError(t, err)
		assert.Contains(t, v.Violations, "completed run total 3, journal holds 1 frames")
	})

	t.Run("unknown run", func(t *testing.T) {
		s := createTestStore(t)
		_, err := s.VerifyRun(ctx, "nope")
		assert.ErrorIs(t, err, ErrRunNotFound)
	})
}
