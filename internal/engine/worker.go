package engine

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/roach88/posepipe/internal/frame"
	"github.com/roach88/posepipe/internal/metrics"
)

// worker owns one Annotator and turns frames from its input queue into
// results on the shared result channel.
type worker struct {
	id        int
	queue     *frameQueue
	annotator Annotator
	results   chan<- frame.SequencedResult
	poll      time.Duration
	metrics   *metrics.Metrics
	latencies *metrics.LatencyRecorder
}

// Run processes frames until the queue is drained or ctx is cancelled.
// Annotate failures never stop the worker.
func (w *worker) Run(ctx context.Context) error {
	defer w.closeAnnotator()

	ticker := time.NewTicker(w.poll)
	defer ticker.Stop()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		sf, status := w.queue.TryDequeue()
		switch status {
		case queueDrained:
			slog.Debug("worker finished", "worker", w.id)
			return nil
		case queueEmpty:
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-w.queue.Wait():
			case <-ticker.C:
			}
			continue
		}

		result, err := w.process(ctx, sf)
		if err != nil {
			return err
		}

		select {
		case w.results <- result:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// process annotates one frame. A failed annotation yields a placeholder
// result for the same index. The only error returned is cancellation.
func (w *worker) process(ctx context.Context, sf frame.SequencedFrame) (frame.SequencedResult, error) {
	start := time.Now()
	annotated, err := w.apply(frame.WithIndex(ctx, sf.Index), sf.Frame)
	elapsed := time.Since(start)

	w.metrics.ObserveLatency(w.id, elapsed)
	w.latencies.Add(elapsed)

	result := frame.SequencedResult{
		Index:     sf.Index,
		Annotated: annotated,
		Worker:    w.id,
		Latency:   elapsed,
	}
	if err == nil {
		return result, nil
	}

	// An annotator interrupted by shutdown is not a frame failure.
	if ctx.Err() != nil {
		return frame.SequencedResult{}, ctx.Err()
	}

	slog.Warn("annotate failed, emitting placeholder",
		"index", sf.Index,
		"worker", w.id,
		"error", err)
	w.metrics.ObserveFailure()

	result.Annotated = frame.Placeholder(sf.Frame)
	result.Failed = true
	result.Err = NewInferenceError(sf.Index, err)
	return result, nil
}

// apply calls the annotator, converting a panic into an error.
func (w *worker) apply(ctx context.Context, f frame.Frame) (out frame.AnnotatedFrame, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("annotator panic: %v", r)
		}
	}()
	return w.annotator.Apply(ctx, f)
}

func (w *worker) closeAnnotator() {
	c, ok := w.annotator.(io.Closer)
	if !ok {
		return
	}
	if err := c.Close(); err != nil {
		slog.Warn("close annotator", "worker", w.id, "error", err)
	}
}
