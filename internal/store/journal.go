package store

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/posepipe/internal/frame"
)

// Sink is the frame sink the journal forwards to.
type Sink interface {
	Write(r frame.SequencedResult) error
	Close() error
}

// JournalSink records every emitted frame in the journal, then forwards it
// to an inner sink. It is itself a frame sink.
//
// Not safe for concurrent use; a pipeline writes from one goroutine.
type JournalSink struct {
	ctx     context.Context
	store   *Store
	runID   string
	inner   Sink
	seq     uint64
	failed  uint64
	digests []string
}

// NewJournalSink wraps inner. inner may be nil to journal only.
//
// Writes keep ctx's values but not its cancellation: a frame the pipeline
// has already emitted is journaled even when the run is being cancelled, so
// cancellation surfaces from the pipeline rather than as a sink failure.
func NewJournalSink(ctx context.Context, s *Store, runID string, inner Sink) *JournalSink {
	return &JournalSink{ctx: context.WithoutCancel(ctx), store: s, runID: runID, inner: inner}
}

// Write journals r, then forwards it.
func (j *JournalSink) Write(r frame.SequencedResult) error {
	rec, err := j.store.RecordFrame(j.ctx, j.runID, j.seq, r)
	if err != nil {
		return err
	}
	j.seq++
	if r.Failed {
		j.failed++
	}
	j.digests = append(j.digests, rec.Digest)

	if j.inner != nil {
		return j.inner.Write(r)
	}
	return nil
}

// Close closes the inner sink.
func (j *JournalSink) Close() error {
	if j.inner == nil {
		return nil
	}
	return j.inner.Close()
}

// Emitted returns the number of frames journaled.
func (j *JournalSink) Emitted() uint64 {
	return j.seq
}

// Failed returns the number of placeholder frames journaled.
func (j *JournalSink) Failed() uint64 {
	return j.failed
}

// Chain returns the chained digest of every frame journaled so far.
func (j *JournalSink) Chain() string {
	return frame.ChainDigest(j.digests)
}

// Finish records the run outcome using the journal's own counters. A nil
// runErr marks the run completed; otherwise code and runErr are stored.
func (j *JournalSink) Finish(ctx context.Context, total *uint64, runErr error, code string, finishedAt time.Time) error {
	out := Outcome{
		Status:     RunCompleted,
		Total:      total,
		Emitted:    j.seq,
		Failed:     j.failed,
		Chain:      j.Chain(),
		FinishedAt: finishedAt,
	}
	if runErr != nil {
		out.Status = RunFailed
		out.ErrorCode = code
		out.Error = runErr.Error()
	}
	if err := j.store.FinishRun(ctx, j.runID, out); err != nil {
		return fmt.Errorf("journal outcome of run %s: %w", j.runID, err)
	}
	return nil
}
