package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/posepipe/internal/frame"
	"github.com/roach88/posepipe/internal/testutil"
)

func res(i uint64) frame.SequencedResult {
	return frame.SequencedResult{Index: i}
}

func TestReassembler_EmitsInOrder(t *testing.T) {
	sink := testutil.NewRecordingSink()
	r := NewReassembler(sink)

	for _, i := range []uint64{2, 0, 3, 1, 4} {
		require.NoError(t, r.Accept(res(i)))
	}

	assert.Equal(t, testutil.Seq(5), sink.Indices())
	assert.Equal(t, uint64(5), r.Next())
	assert.Equal(t, 0, r.Pending())
	// 2 -> {2}; 0 emitted; 3 -> {2,3}; 1 drains 1,2,3; 4 emitted.
	assert.Equal(t, 2, r.MaxPending())
}

func TestReassembler_CascadeDrainsBuffer(t *testing.T) {
	sink := testutil.NewRecordingSink()
	r := NewReassembler(sink)

	for _, i := range []uint64{4, 3, 2, 1} {
		require.NoError(t, r.Accept(res(i)))
	}
	assert.Empty(t, sink.Indices())
	assert.Equal(t, 4, r.Pending())

	require.NoError(t, r.Accept(res(0)))
	assert.Equal(t, testutil.Seq(5), sink.Indices())
	assert.Equal(t, 4, r.MaxPending())
}

func TestReassembler_OrderingViolations(t *testing.T) {
	tests := []struct {
		name   string
		inputs []uint64
	}{
		{name: "already emitted", inputs: []uint64{0, 1, 0}},
		{name: "duplicate pending", inputs: []uint64{3, 3}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewReassembler(testutil.NewRecordingSink())
			var err error
			for _, i := range tt.inputs {
				if err = r.Accept(res(i)); err != nil {
					break
				}
			}
			require.Error(t, err)
			assert.True(t, IsOrderingViolation(err))
		})
	}
}

func TestReassembler_SinkFailure(t *testing.T) {
	sink := testutil.NewRecordingSink()
	sink.FailAt, sink.FailErr = 1, errors.New("disk full")
	r := NewReassembler(sink)

	require.NoError(t, r.Accept(res(0)))
	err := r.Accept(res(1))

	require.Error(t, err)
	assert.True(t, IsSinkFailure(err))
	var pe *PipelineError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, int64(1), pe.Index)
	assert.Equal(t, uint64(1), r.Next(), "failed frame is not counted as emitted")
}

func TestReassembler_RunCompletesAtTotal(t *testing.T) {
	sink := testutil.NewRecordingSink()
	r := NewReassembler(sink)
	r.SetTotal(3)

	results := make(chan frame.SequencedResult, 3)
	results <- res(1)
	results <- res(2)
	results <- res(0)
	// Channel left open: completion alone must end Run.

	require.NoError(t, r.Run(context.Background(), results))
	assert.True(t, r.Complete())
	assert.Equal(t, testutil.Seq(3), sink.Indices())
}

func TestReassembler_RunReportsGapWhenStreamEnds(t *testing.T) {
	r := NewReassembler(testutil.NewRecordingSink())
	r.SetTotal(3)

	results := make(chan frame.SequencedResult, 2)
	results <- res(0)
	results <- res(2)
	close(results)

	err := r.Run(context.Background(), results)
	require.Error(t, err)
	assert.True(t, IsOrderingViolation(err))
	assert.Contains(t, err.Error(), "missing index")
}

func TestReassembler_RunHonoursCancellation(t *testing.T) {
	r := NewReassembler(testutil.NewRecordingSink())
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := r.Run(ctx, make(chan frame.SequencedResult))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestReassembler_CountsPlaceholders(t *testing.T) {
	r := NewReassembler(testutil.NewRecordingSink())
	require.NoError(t, r.Accept(frame.SequencedResult{Index: 0, Failed: true}))
	require.NoError(t, r.Accept(res(1)))
	assert.Equal(t, uint64(1), r.Failed())
}
