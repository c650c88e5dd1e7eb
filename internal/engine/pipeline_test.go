package engine

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/posepipe/internal/annotate"
	"github.com/roach88/posepipe/internal/frame"
	"github.com/roach88/posepipe/internal/metrics"
	tu "github.com/roach88/posepipe/internal/testutil"
)

func syntheticFactory(script annotate.Script) AnnotatorFactory {
	return func(worker int) (Annotator, error) {
		return annotate.NewSynthetic(worker, script), nil
	}
}

func randomDelays(seed int64, n int, max time.Duration) []time.Duration {
	rng := rand.New(rand.NewSource(seed))
	out := make([]time.Duration, n)
	for i := range out {
		out[i] = time.Duration(rng.Int63n(int64(max)))
	}
	return out
}

func newTestPipeline(t *testing.T, src FrameSource, factory AnnotatorFactory, sink FrameSink, opts ...Option) *Pipeline {
	t.Helper()
	opts = append([]Option{
		WithRunID("test-run"),
		WithPollInterval(10 * time.Millisecond),
	}, opts...)
	p, err := New(src, factory, sink, opts...)
	require.NoError(t, err)
	return p
}

func TestPipeline_PreservesOrderUnderRandomDelays(t *testing.T) {
	const frames = 40
	for _, routing := range []Routing{RoutingRoundRobin, RoutingShared} {
		for _, workers := range []int{1, 2, 3, 8} {
			t.Run(fmt.Sprintf("%s/workers=%d", routing, workers), func(t *testing.T) {
				src := tu.NewSliceSource(tu.GenerateFrames(frames, 4, 4))
				sink := tu.NewRecordingSink()
				script := annotate.Script{Delays: randomDelays(int64(workers), frames, 4*time.Millisecond)}

				p := newTestPipeline(t, src, syntheticFactory(script), sink,
					WithWorkers(workers), WithRouting(routing), WithQueueDepth(2))
				require.NoError(t, p.Run(context.Background()))

				if diff := cmp.Diff(tu.Seq(frames), sink.Indices()); diff != "" {
					t.Errorf("emission order mismatch (-want +got):\n%s", diff)
				}
				for _, r := range sink.Results() {
					assert.Equal(t, uint8(r.Index), tu.GrayLevel(r.Annotated.Image),
						"result %d carries the wrong frame", r.Index)
					if routing == RoutingRoundRobin {
						assert.Equal(t, int(r.Index)%workers, r.Worker)
					}
				}
				assert.Equal(t, StateCompleted, p.State())
				assert.Equal(t, 1, sink.CloseCalls())
				assert.True(t, src.Closed())
			})
		}
	}
}

func TestPipeline_FiveFramesTwoWorkers(t *testing.T) {
	src := tu.NewSliceSource(tu.GenerateFrames(5, 4, 4))
	sink := tu.NewRecordingSink()
	script := annotate.Script{Delays: []time.Duration{
		50 * time.Millisecond,
		10 * time.Millisecond,
		40 * time.Millisecond,
		10 * time.Millisecond,
		5 * time.Millisecond,
	}}

	p := newTestPipeline(t, src, syntheticFactory(script), sink, WithWorkers(2))
	require.NoError(t, p.Run(context.Background()))

	assert.Equal(t, []uint64{0, 1, 2, 3, 4}, sink.Indices())
	stats := p.Stats()
	assert.Equal(t, uint64(5), stats.Emitted)
	assert.Equal(t, uint64(5), stats.Total)
	assert.LessOrEqual(t, stats.MaxPending, 1)
}

func TestPipeline_RoundRobinBoundsPendingBuffer(t *testing.T) {
	for _, workers := range []int{2, 4, 6} {
		t.Run(fmt.Sprintf("workers=%d", workers), func(t *testing.T) {
			const frames = 60
			src := tu.NewSliceSource(tu.GenerateFrames(frames, 2, 2))
			sink := tu.NewRecordingSink()
			script := annotate.Script{Delays: randomDelays(99, frames, 5*time.Millisecond)}

			p := newTestPipeline(t, src, syntheticFactory(script), sink, WithWorkers(workers))
			require.NoError(t, p.Run(context.Background()))

			assert.Equal(t, tu.Seq(frames), sink.Indices())
			assert.LessOrEqual(t, p.Stats().MaxPending, workers-1)
		})
	}
}

func TestPipeline_FailureIsIsolated(t *testing.T) {
	src := tu.NewSliceSource(tu.GenerateFrames(6, 4, 4))
	sink := tu.NewRecordingSink()
	script := annotate.Script{Fail: []uint64{3}}

	p := newTestPipeline(t, src, syntheticFactory(script), sink, WithWorkers(3))
	require.NoError(t, p.Run(context.Background()))

	results := sink.Results()
	require.Len(t, results, 6)
	for _, r := range results {
		if r.Index == 3 {
			assert.True(t, r.Failed)
			assert.True(t, r.Annotated.Placeholder)
			assert.Empty(t, r.Annotated.Poses)
			assert.True(t, IsInferenceFailure(r.Err))
			assert.Equal(t, frame.StatusFailed, r.Status())
			continue
		}
		assert.False(t, r.Failed, "index %d", r.Index)
		assert.Len(t, r.Annotated.Poses, 1, "index %d", r.Index)
	}
	assert.Equal(t, uint64(1), p.Stats().Failed)
	assert.Equal(t, StateCompleted, p.State())
}

func TestPipeline_AnnotatorPanicBecomesPlaceholder(t *testing.T) {
	src := tu.NewSliceSource(tu.GenerateFrames(3, 2, 2))
	sink := tu.NewRecordingSink()
	factory := func(int) (Annotator, error) {
		return AnnotatorFunc(func(ctx context.Context, f frame.Frame) (frame.AnnotatedFrame, error) {
			if idx, _ := frame.IndexFromContext(ctx); idx == 1 {
				panic("model crashed")
			}
			return frame.AnnotatedFrame{Image: f.Image}, nil
		}), nil
	}

	p := newTestPipeline(t, src, factory, sink, WithWorkers(2))
	require.NoError(t, p.Run(context.Background()))

	results := sink.Results()
	require.Len(t, results, 3)
	assert.True(t, results[1].Failed)
	assert.Contains(t, results[1].Err.Error(), "model crashed")
}

func TestPipeline_SourceFailure(t *testing.T) {
	src := tu.NewSliceSource(tu.GenerateFrames(10, 2, 2))
	src.FailAt, src.FailErr = 5, errors.New("decoder error")
	sink := tu.NewRecordingSink()

	p := newTestPipeline(t, src, syntheticFactory(annotate.Script{}), sink, WithWorkers(2))
	err := p.Run(context.Background())

	require.Error(t, err)
	assert.True(t, IsSourceFailure(err))
	assert.ErrorContains(t, err, "decoder error")
	assert.Equal(t, StateFailed, p.State())
	assert.Equal(t, 1, sink.CloseCalls(), "sink is closed on failure")

	got := sink.Indices()
	assert.LessOrEqual(t, len(got), 5)
	assert.Equal(t, tu.Seq(len(got)), got, "output is an ordered prefix")
}

func TestPipeline_SinkFailure(t *testing.T) {
	src := tu.NewSliceSource(tu.GenerateFrames(10, 2, 2))
	sink := tu.NewRecordingSink()
	sink.FailAt, sink.FailErr = 2, errors.New("disk full")

	p := newTestPipeline(t, src, syntheticFactory(annotate.Script{}), sink, WithWorkers(3))
	err := p.Run(context.Background())

	require.Error(t, err)
	assert.True(t, IsSinkFailure(err))
	assert.Equal(t, []uint64{0, 1}, sink.Indices())
	assert.Equal(t, StateFailed, p.State())
	assert.Equal(t, 1, sink.CloseCalls())
}

func TestPipeline_SinkCloseFailure(t *testing.T) {
	src := tu.NewSliceSource(tu.GenerateFrames(2, 2, 2))
	sink := tu.NewRecordingSink()
	sink.CloseErr = errors.New("flush failed")

	p := newTestPipeline(t, src, syntheticFactory(annotate.Script{}), sink)
	err := p.Run(context.Background())

	require.Error(t, err)
	assert.True(t, IsSinkFailure(err))
	assert.Equal(t, StateFailed, p.State())
}

func TestPipeline_Cancellation(t *testing.T) {
	src := &tu.EndlessSource{Frame: tu.GenerateFrames(1, 2, 2)[0]}
	sink := tu.NewRecordingSink()
	script := annotate.Script{Delays: []time.Duration{time.Millisecond}}

	p := newTestPipeline(t, src, syntheticFactory(script), sink, WithWorkers(4))

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- p.Run(ctx) }()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		require.Error(t, err)
		assert.True(t, IsCancelled(err))
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("pipeline did not stop after cancellation")
	}

	assert.Equal(t, StateFailed, p.State())
	assert.Equal(t, 1, sink.CloseCalls())
	got := sink.Indices()
	assert.Equal(t, tu.Seq(len(got)), got)
}

func TestPipeline_EmptySource(t *testing.T) {
	sink := tu.NewRecordingSink()
	p := newTestPipeline(t, tu.NewSliceSource(nil), syntheticFactory(annotate.Script{}), sink)

	require.NoError(t, p.Run(context.Background()))
	assert.Empty(t, sink.Indices())
	assert.Equal(t, StateCompleted, p.State())
	assert.Equal(t, 1, sink.CloseCalls())
}

type closingAnnotator struct {
	closed *atomic.Int32
}

func (a closingAnnotator) Apply(_ context.Context, f frame.Frame) (frame.AnnotatedFrame, error) {
	return frame.AnnotatedFrame{Image: f.Image}, nil
}

func (a closingAnnotator) Close() error {
	a.closed.Add(1)
	return nil
}

func TestPipeline_AnnotatorsAreClosed(t *testing.T) {
	var closed atomic.Int32
	factory := func(int) (Annotator, error) { return closingAnnotator{closed: &closed}, nil }

	p := newTestPipeline(t, tu.NewSliceSource(tu.GenerateFrames(4, 2, 2)), factory, tu.NewRecordingSink(), WithWorkers(3))
	require.NoError(t, p.Run(context.Background()))

	assert.Equal(t, int32(3), closed.Load())
}

func TestPipeline_AnnotatorFactoryFailure(t *testing.T) {
	var closed atomic.Int32
	factory := func(worker int) (Annotator, error) {
		if worker == 2 {
			return nil, errors.New("model weights missing")
		}
		return closingAnnotator{closed: &closed}, nil
	}
	src := tu.NewSliceSource(tu.GenerateFrames(4, 2, 2))
	sink := tu.NewRecordingSink()

	p := newTestPipeline(t, src, factory, sink, WithWorkers(3))
	err := p.Run(context.Background())

	require.Error(t, err)
	assert.True(t, IsInferenceFailure(err))
	assert.Equal(t, int32(2), closed.Load(), "annotators built before the failure are closed")
	assert.Equal(t, 0, src.Read(), "no frame is read")
	assert.Equal(t, StateFailed, p.State())
	assert.Equal(t, 1, sink.CloseCalls())
}

func TestPipeline_RunOnce(t *testing.T) {
	p := newTestPipeline(t, tu.NewSliceSource(nil), syntheticFactory(annotate.Script{}), tu.NewRecordingSink())
	require.NoError(t, p.Run(context.Background()))
	assert.ErrorIs(t, p.Run(context.Background()), errAlreadyStarted)
}

func TestPipeline_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	lat := metrics.NewLatencyRecorder()

	src := tu.NewSliceSource(tu.GenerateFrames(8, 2, 2))
	p := newTestPipeline(t, src, syntheticFactory(annotate.Script{Fail: []uint64{5}}), tu.NewRecordingSink(),
		WithWorkers(2), WithMetrics(m), WithLatencyRecorder(lat))
	require.NoError(t, p.Run(context.Background()))

	assert.Equal(t, 8.0, testutil.ToFloat64(m.FramesRead))
	assert.Equal(t, 8.0, testutil.ToFloat64(m.FramesEmitted))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.InferenceFailures))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.PendingFrames))
	assert.Equal(t, float64(StateCompleted), testutil.ToFloat64(m.State))
	assert.Equal(t, 8, p.Stats().Latency.Count)
}

func TestNew_ValidatesOptions(t *testing.T) {
	src := tu.NewSliceSource(nil)
	sink := tu.NewRecordingSink()
	factory := syntheticFactory(annotate.Script{})

	tests := []struct {
		name string
		opt  Option
	}{
		{"zero workers", WithWorkers(0)},
		{"zero queue depth", WithQueueDepth(0)},
		{"zero poll interval", WithPollInterval(0)},
		{"unknown routing", WithRouting("random")},
		{"negative window", WithWindow(-5)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(src, factory, sink, tt.opt)
			assert.Error(t, err)
		})
	}

	_, err := New(nil, factory, sink)
	assert.Error(t, err)
	_, err = New(src, nil, sink)
	assert.Error(t, err)
	_, err = New(src, factory, nil)
	assert.Error(t, err)
}

func TestNew_ResolvesWindow(t *testing.T) {
	src := tu.NewSliceSource(nil)
	sink := tu.NewRecordingSink()
	factory := syntheticFactory(annotate.Script{})

	p, err := New(src, factory, sink, WithWorkers(3))
	require.NoError(t, err)
	assert.Equal(t, 3, p.Window())

	p, err = New(src, factory, sink, WithWorkers(3), WithRouting(RoutingShared))
	require.NoError(t, err)
	assert.Equal(t, 0, p.Window())

	p, err = New(src, factory, sink, WithWorkers(3), WithWindow(10))
	require.NoError(t, err)
	assert.Equal(t, 10, p.Window())
}

func TestNew_RunIDGenerator(t *testing.T) {
	src := tu.NewSliceSource(nil)
	sink := tu.NewRecordingSink()
	factory := syntheticFactory(annotate.Script{})

	p, err := New(src, factory, sink, WithRunIDGenerator(NewFixedGenerator("run-a")))
	require.NoError(t, err)
	assert.Equal(t, "run-a", p.RunID())

	p, err = New(src, factory, sink)
	require.NoError(t, err)
	assert.Len(t, p.RunID(), 36)
}
