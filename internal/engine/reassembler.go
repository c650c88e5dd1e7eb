package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/roach88/posepipe/internal/frame"
	"github.com/roach88/posepipe/internal/metrics"
)

// Reassembler restores index order over results that arrive in completion
// order and writes them to the sink.
//
// It is not safe for concurrent use: exactly one goroutine calls Accept or
// Run, which is what makes "emit next, buffer the rest" race-free.
type Reassembler struct {
	sink    FrameSink
	pending map[uint64]frame.SequencedResult
	next    uint64

	maxPending int
	failed     uint64

	done          *completion
	window        *reorderWindow
	metrics       *metrics.Metrics
	progressEvery uint64
}

// NewReassembler creates a reassembler that writes to sink, starting at
// index 0.
func NewReassembler(sink FrameSink) *Reassembler {
	return newReassembler(sink, &completion{}, nil, nil, 0)
}

func newReassembler(sink FrameSink, done *completion, window *reorderWindow, m *metrics.Metrics, progressEvery uint64) *Reassembler {
	return &Reassembler{
		sink:          sink,
		pending:       make(map[uint64]frame.SequencedResult),
		done:          done,
		window:        window,
		metrics:       m,
		progressEvery: progressEvery,
	}
}

// Next returns the next index the reassembler will emit.
func (r *Reassembler) Next() uint64 {
	return r.next
}

// Pending returns the number of buffered results.
func (r *Reassembler) Pending() int {
	return len(r.pending)
}

// MaxPending returns the high-water mark of the pending buffer.
func (r *Reassembler) MaxPending() int {
	return r.maxPending
}

// Failed returns how many placeholder results have been emitted.
func (r *Reassembler) Failed() uint64 {
	return r.failed
}

// SetTotal records the stream length for callers driving Accept directly.
func (r *Reassembler) SetTotal(n uint64) {
	r.done.SetTotal(n)
}

// Complete reports whether every frame up to the recorded total has been
// emitted.
func (r *Reassembler) Complete() bool {
	return r.done.Done() && len(r.pending) == 0
}

// Accept places one result. It emits res immediately when it is the next
// expected index and then drains any buffered successors; otherwise it
// buffers res. A duplicate or already-emitted index is an ordering violation.
func (r *Reassembler) Accept(res frame.SequencedResult) error {
	switch {
	case res.Index < r.next:
		return NewOrderingViolation(res.Index, r.next, "index already emitted")
	case res.Index > r.next:
		if _, dup := r.pending[res.Index]; dup {
			return NewOrderingViolation(res.Index, r.next, "duplicate index in pending buffer")
		}
		r.pending[res.Index] = res
		if len(r.pending) > r.maxPending {
			r.maxPending = len(r.pending)
		}
		r.metrics.SetPending(len(r.pending), r.maxPending)
		return nil
	}

	if err := r.emit(res); err != nil {
		return err
	}
	for {
		buffered, ok := r.pending[r.next]
		if !ok {
			break
		}
		delete(r.pending, r.next)
		if err := r.emit(buffered); err != nil {
			return err
		}
	}
	r.metrics.SetPending(len(r.pending), r.maxPending)
	return nil
}

// emit writes res, which must carry index next, and advances next.
func (r *Reassembler) emit(res frame.SequencedResult) error {
	if err := r.sink.Write(res); err != nil {
		return NewSinkError(res.Index, err)
	}
	r.next++
	r.done.MarkEmitted()
	r.window.Release()
	r.metrics.ObserveEmit()
	if res.Failed {
		r.failed++
	}

	if r.progressEvery > 0 && r.next%r.progressEvery == 0 {
		total, known := r.done.Total()
		if known {
			slog.Info("progress", "emitted", r.next, "total", total)
		} else {
			slog.Info("progress", "emitted", r.next)
		}
	}
	return nil
}

// Run consumes results until every frame is emitted, the channel closes, or
// ctx is cancelled.
//
// A channel that closes before completion means some index will never
// arrive; Run reports the gap as an ordering violation instead of waiting.
func (r *Reassembler) Run(ctx context.Context, results <-chan frame.SequencedResult) error {
	for {
		if r.Complete() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case res, ok := <-results:
			if !ok {
				if r.Complete() {
					return nil
				}
				if err := ctx.Err(); err != nil {
					return err
				}
				return r.gapError()
			}
			if err := r.Accept(res); err != nil {
				return err
			}
		}
	}
}

// gapError describes the missing index that keeps the buffer from draining.
func (r *Reassembler) gapError() error {
	total, known := r.done.Total()
	if len(r.pending) == 0 {
		if !known {
			return NewOrderingViolation(r.next, r.next, "result stream ended before end of stream")
		}
		return NewOrderingViolation(r.next, r.next,
			fmt.Sprintf("result stream ended after %d of %d frames", r.next, total))
	}
	buffered := make([]uint64, 0, len(r.pending))
	for idx := range r.pending {
		buffered = append(buffered, idx)
	}
	sort.Slice(buffered, func(i, j int) bool { return buffered[i] < buffered[j] })
	return NewOrderingViolation(r.next, r.next,
		fmt.Sprintf("missing index blocks %d buffered results (first buffered %d)", len(buffered), buffered[0]))
}
