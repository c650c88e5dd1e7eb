package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/posepipe/internal/frame"
	"github.com/roach88/posepipe/internal/metrics"
)

// errAlreadyStarted is returned by a second call to Run.
var errAlreadyStarted = errors.New("pipeline already started")

// Pipeline wires a FrameSource, a pool of annotators and a FrameSink into one
// ordered run.
//
// A Pipeline is single-use: Run may be called once.
type Pipeline struct {
	source  FrameSource
	factory AnnotatorFactory
	sink    FrameSink
	opts    settings

	runID   string
	started atomic.Bool
	state   stateMachine
	done    completion

	mu         sync.Mutex
	reasm      *Reassembler
	startedAt  time.Time
	finishedAt time.Time
	runErr     error
}

// New creates a Pipeline. Options are validated here so a misconfigured
// pipeline fails before any frame is read.
func New(source FrameSource, factory AnnotatorFactory, sink FrameSink, opts ...Option) (*Pipeline, error) {
	if source == nil {
		return nil, errors.New("frame source is required")
	}
	if factory == nil {
		return nil, errors.New("annotator factory is required")
	}
	if sink == nil {
		return nil, errors.New("frame sink is required")
	}

	s := defaultSettings()
	for _, opt := range opts {
		opt(&s)
	}
	if err := s.validate(); err != nil {
		return nil, fmt.Errorf("invalid pipeline options: %w", err)
	}

	runID := s.runID
	if runID == "" {
		runID = s.runIDGen.Generate()
	}

	p := &Pipeline{
		source:  source,
		factory: factory,
		sink:    sink,
		opts:    s,
		runID:   runID,
	}
	p.state.onSet = func(st State) { s.metrics.SetState(int(st)) }
	return p, nil
}

// RunID returns the identifier of this run.
func (p *Pipeline) RunID() string {
	return p.runID
}

// Window returns the resolved reorder window. Zero means unbounded.
func (p *Pipeline) Window() int {
	return p.opts.window
}

// State returns the current lifecycle state. Safe to call from any goroutine.
func (p *Pipeline) State() State {
	return p.state.Get()
}

// Run executes the pipeline until every frame has been emitted, a fatal error
// occurs, or ctx is cancelled.
//
// The sink is always closed before Run returns, so output up to the last
// ordered index is finalised even on failure. A cancelled run returns a
// CANCELLED PipelineError.
func (p *Pipeline) Run(ctx context.Context) error {
	if !p.started.CompareAndSwap(false, true) {
		return errAlreadyStarted
	}

	p.mu.Lock()
	p.startedAt = time.Now()
	p.mu.Unlock()

	slog.Info("pipeline starting",
		"run_id", p.runID,
		"workers", p.opts.workers,
		"routing", string(p.opts.routing),
		"window", p.opts.window)

	err := p.run(ctx)
	if closeErr := p.closeSink(); closeErr != nil && err == nil {
		err = closeErr
	}
	if closeErr := p.source.Close(); closeErr != nil {
		slog.Warn("close source", "run_id", p.runID, "error", closeErr)
	}

	final := StateCompleted
	if err != nil {
		final = StateFailed
	}
	if tErr := p.state.Transition(final); tErr != nil {
		slog.Error("state transition", "run_id", p.runID, "error", tErr)
	}

	p.mu.Lock()
	p.finishedAt = time.Now()
	p.runErr = err
	p.mu.Unlock()

	stats := p.Stats()
	if err != nil {
		slog.Error("pipeline failed",
			"run_id", p.runID,
			"code", string(Code(err)),
			"emitted", stats.Emitted,
			"error", err)
		return err
	}
	slog.Info("pipeline completed",
		"run_id", p.runID,
		"frames", stats.Emitted,
		"failed", stats.Failed,
		"max_pending", stats.MaxPending,
		"elapsed", stats.Elapsed)
	return nil
}

// run starts every stage and waits for the first fatal error.
func (p *Pipeline) run(parent context.Context) error {
	annotators, err := p.buildAnnotators()
	if err != nil {
		return err
	}

	if err := p.state.Transition(StateRunning); err != nil {
		return err
	}

	queues := p.buildQueues()
	window := newReorderWindow(p.opts.window)
	results := make(chan frame.SequencedResult, p.opts.workers*2)

	reasm := newReassembler(p.sink, &p.done, window, p.opts.metrics, p.opts.progressEvery)
	p.mu.Lock()
	p.reasm = reasm
	p.mu.Unlock()

	g, ctx := errgroup.WithContext(parent)

	dist := &distributor{
		source:  p.source,
		seq:     NewSequencer(),
		queues:  queues,
		routing: p.opts.routing,
		window:  window,
		done:    &p.done,
		metrics: p.opts.metrics,
		onEndOfStream: func(total uint64) {
			if err := p.state.Transition(StateDraining); err != nil {
				slog.Warn("state transition", "run_id", p.runID, "error", err)
			}
			slog.Info("source exhausted", "run_id", p.runID, "total", total)
		},
	}
	g.Go(func() error { return dist.Run(ctx) })

	var workers sync.WaitGroup
	for i, a := range annotators {
		w := &worker{
			id:        i,
			queue:     queues[i%len(queues)],
			annotator: a,
			results:   results,
			poll:      p.opts.pollInterval,
			metrics:   p.opts.metrics,
			latencies: p.opts.latencies,
		}
		workers.Add(1)
		g.Go(func() error {
			defer workers.Done()
			return w.Run(ctx)
		})
	}
	go func() {
		workers.Wait()
		close(results)
	}()

	g.Go(func() error { return reasm.Run(ctx, results) })

	err = g.Wait()
	if err == nil {
		return nil
	}
	if Code(err) == "" && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		return newCancelledError(err)
	}
	return err
}

// buildAnnotators creates one annotator per worker. Annotators already built
// are closed if a later one fails.
func (p *Pipeline) buildAnnotators() ([]Annotator, error) {
	annotators := make([]Annotator, 0, p.opts.workers)
	for i := 0; i < p.opts.workers; i++ {
		a, err := p.factory(i)
		if err != nil {
			for j, built := range annotators {
				(&worker{id: j, annotator: built}).closeAnnotator()
			}
			return nil, &PipelineError{
				Code:    ErrCodeInferenceFailure,
				Message: fmt.Sprintf("create annotator for worker %d", i),
				Index:   noIndex,
				Err:     err,
			}
		}
		annotators = append(annotators, a)
	}
	return annotators, nil
}

// buildQueues returns one queue per worker for round-robin routing, or a
// single queue sized for the whole pool for shared routing.
func (p *Pipeline) buildQueues() []*frameQueue {
	if p.opts.routing == RoutingShared {
		return []*frameQueue{newFrameQueue(p.opts.queueDepth * p.opts.workers)}
	}
	queues := make([]*frameQueue, p.opts.workers)
	for i := range queues {
		queues[i] = newFrameQueue(p.opts.queueDepth)
	}
	return queues
}

func (p *Pipeline) closeSink() error {
	if err := p.sink.Close(); err != nil {
		return &PipelineError{
			Code:    ErrCodeSinkFailure,
			Message: "close sink",
			Index:   noIndex,
			Err:     err,
		}
	}
	return nil
}

// Stats is a snapshot of a pipeline run.
type Stats struct {
	RunID      string
	State      State
	Total      uint64
	TotalKnown bool
	Emitted    uint64
	Failed     uint64
	MaxPending int
	Elapsed    time.Duration
	Latency    metrics.Summary
	Err        error
}

// Stats returns counters for the run. Reassembler counters are read only
// after Run has returned, since the reassembler is single-goroutine.
func (p *Pipeline) Stats() Stats {
	total, known := p.done.Total()
	st := Stats{
		RunID:      p.runID,
		State:      p.state.Get(),
		Total:      total,
		TotalKnown: known,
		Emitted:    p.done.Emitted(),
		Latency:    p.opts.latencies.Summary(),
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.startedAt.IsZero() {
		end := p.finishedAt
		if end.IsZero() {
			end = time.Now()
		}
		st.Elapsed = end.Sub(p.startedAt)
	}
	if p.reasm != nil && st.State.Terminal() {
		st.Failed = p.reasm.Failed()
		st.MaxPending = p.reasm.MaxPending()
	}
	st.Err = p.runErr
	return st
}
