package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/roach88/posepipe/internal/frame"
	"github.com/roach88/posepipe/internal/metrics"
)

// distributor reads the source, indexes every frame and routes it to a worker
// input queue.
type distributor struct {
	source  FrameSource
	seq     *Sequencer
	queues  []*frameQueue
	routing Routing
	window  *reorderWindow
	done    *completion
	metrics *metrics.Metrics

	// onEndOfStream runs once the total is known, before the queues close.
	onEndOfStream func(total uint64)
}

// route picks the queue for index.
func (d *distributor) route(index uint64) *frameQueue {
	if d.routing == RoutingShared {
		return d.queues[0]
	}
	return d.queues[index%uint64(len(d.queues))]
}

// Run distributes frames until the source is exhausted, fails, or ctx is
// cancelled. Every input queue is closed on return, whatever the outcome.
func (d *distributor) Run(ctx context.Context) error {
	defer func() {
		for _, q := range d.queues {
			q.Close()
		}
	}()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		f, err := d.source.Next(ctx)
		if errors.Is(err, io.EOF) {
			total := d.seq.Assigned()
			d.done.SetTotal(total)
			slog.Debug("end of stream", "total", total)
			if d.onEndOfStream != nil {
				d.onEndOfStream(total)
			}
			return nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return NewSourceError(d.seq.Assigned(), err)
		}

		if err := d.window.Acquire(ctx); err != nil {
			return err
		}

		sf := frame.SequencedFrame{Index: d.seq.Next(), Frame: f}
		if err := d.route(sf.Index).Enqueue(ctx, sf); err != nil {
			return err
		}
		d.metrics.ObserveRead()
		slog.Debug("frame dispatched", "index", sf.Index)
	}
}
