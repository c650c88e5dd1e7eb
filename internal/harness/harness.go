package harness

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/posepipe/internal/annotate"
	"github.com/roach88/posepipe/internal/engine"
	"github.com/roach88/posepipe/internal/store"
	"github.com/roach88/posepipe/internal/testutil"
)

var (
	errSourceInjected = errors.New("scenario source failure")
	errSinkInjected   = errors.New("scenario sink failure")
)

// scenarioEpoch is the start time recorded for every scenario run, so that
// journals are identical across executions.
var scenarioEpoch = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

// Run executes a scenario and returns the result.
//
// Each scenario runs against a fresh in-memory journal for isolation.
// Execution flow:
//  1. Generate the synthetic stream and scripted annotators
//  2. Run the pipeline, journaling every emitted frame
//  3. Record the outcome and verify the journal
//  4. Evaluate assertions
//
// A failed pipeline is not an error: its state and code are part of the
// result. An error means the scenario could not be executed.
func Run(scenario *Scenario) (*Result, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	ctx, cancel := context.WithTimeout(context.Background(), scenario.Timeout)
	defer cancel()

	src := testutil.NewSliceSource(testutil.GenerateFrames(scenario.Frames, scenario.Width, scenario.Height))
	if scenario.SourceFailAt != nil {
		src.FailAt = *scenario.SourceFailAt
		src.FailErr = errSourceInjected
	}

	out := testutil.NewRecordingSink()
	if scenario.SinkFailAt != nil {
		out.FailAt = *scenario.SinkFailAt
		out.FailErr = errSinkInjected
	}
	journal := store.NewJournalSink(ctx, st, scenario.RunID, out)

	script := annotate.Script{Delays: scenario.Delays, Fail: scenario.Fail}
	factory := annotate.SyntheticFactory(script)

	routing, err := engine.ParseRouting(scenario.Routing)
	if err != nil {
		return nil, err
	}
	opts := []engine.Option{
		engine.WithWorkers(scenario.Workers),
		engine.WithRouting(routing),
		engine.WithRunIDGenerator(testutil.NewFixedRunIDGenerator(scenario.RunID)),
		engine.WithPollInterval(5 * time.Millisecond),
		engine.WithProgressEvery(0),
	}
	if scenario.QueueDepth > 0 {
		opts = append(opts, engine.WithQueueDepth(scenario.QueueDepth))
	}
	if scenario.Window != nil {
		opts = append(opts, engine.WithWindow(*scenario.Window))
	}

	p, err := engine.New(src,
		func(worker int) (engine.Annotator, error) { return factory(worker) },
		journal, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to build pipeline: %w", err)
	}

	if err := st.CreateRun(ctx, store.Run{
		ID:        p.RunID(),
		Source:    fmt.Sprintf("synthetic://%d?width=%d&height=%d", scenario.Frames, scenario.Width, scenario.Height),
		Workers:   scenario.Workers,
		Routing:   string(routing),
		Window:    p.Window(),
		StartedAt: scenarioEpoch,
	}); err != nil {
		return nil, err
	}

	runErr := p.Run(ctx)
	stats := p.Stats()
	slog.Debug("scenario run finished",
		"scenario", scenario.Name,
		"run_id", p.RunID(),
		"state", stats.State.String(),
		"error", runErr)

	var total *uint64
	if stats.TotalKnown {
		t := stats.Total
		total = &t
	}
	code := engine.Code(runErr)
	if err := journal.Finish(context.Background(), total, runErr, string(code), scenarioEpoch); err != nil {
		return nil, err
	}

	result := NewResult()
	result.RunID = p.RunID()
	result.State = stats.State.String()
	result.ErrorCode = string(code)
	result.Stats = stats
	for seq, r := range out.Results() {
		result.Trace = append(result.Trace, TraceEvent{
			Seq:         uint64(seq),
			Index:       r.Index,
			Placeholder: r.Failed,
			Poses:       len(r.Annotated.Poses),
		})
	}

	v, err := st.VerifyRun(context.Background(), p.RunID())
	if err != nil {
		return nil, err
	}
	result.Verification = v

	for _, msg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}
