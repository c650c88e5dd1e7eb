package engine

import (
	"context"
	"errors"
	"sync"

	"github.com/roach88/posepipe/internal/frame"
)

// errQueueClosed is returned by Enqueue after Close.
var errQueueClosed = errors.New("frame queue closed")

// dequeueStatus is the outcome of a TryDequeue call.
type dequeueStatus int

const (
	// dequeued means a frame was returned.
	dequeued dequeueStatus = iota
	// queueEmpty means nothing is queued right now but more input may arrive.
	queueEmpty
	// queueDrained means the queue is closed and empty: no further input.
	queueDrained
)

// frameQueue is a bounded, closable FIFO of sequenced frames.
//
// The producer blocks in Enqueue while the queue is full, which is the
// backpressure that keeps the distributor from outrunning the workers.
// Consumers use TryDequeue + Wait for context-aware waiting.
//
// "Empty" and "closed" are read under the same lock, so a consumer can never
// observe closed-and-empty while a frame is still in flight to the queue.
//
// Thread-safety: any number of producers and consumers.
type frameQueue struct {
	mu       sync.Mutex
	items    []frame.SequencedFrame
	capacity int
	closed   bool
	notEmpty chan struct{} // Buffered, size 1; closed by Close to wake all waiters
	notFull  chan struct{} // Buffered, size 1
}

// newFrameQueue creates a queue holding at most capacity frames.
// A capacity below 1 is treated as 1.
func newFrameQueue(capacity int) *frameQueue {
	if capacity < 1 {
		capacity = 1
	}
	return &frameQueue{
		items:    make([]frame.SequencedFrame, 0, capacity),
		capacity: capacity,
		notEmpty: make(chan struct{}, 1),
		notFull:  make(chan struct{}, 1),
	}
}

// Enqueue appends f, blocking while the queue is full.
// Returns ctx.Err() if ctx is cancelled while waiting and errQueueClosed if
// the queue has been closed.
func (q *frameQueue) Enqueue(ctx context.Context, f frame.SequencedFrame) error {
	for {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return errQueueClosed
		}
		if len(q.items) < q.capacity {
			q.items = append(q.items, f)
			signal(q.notEmpty)
			q.mu.Unlock()
			return nil
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-q.notFull:
		}
	}
}

// TryDequeue removes the front frame without blocking.
func (q *frameQueue) TryDequeue() (frame.SequencedFrame, dequeueStatus) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		if q.closed {
			return frame.SequencedFrame{}, queueDrained
		}
		return frame.SequencedFrame{}, queueEmpty
	}

	f := q.items[0]
	// Clear the slot so the image can be collected once the worker is done.
	q.items[0] = frame.SequencedFrame{}
	if len(q.items) == 1 {
		q.items = q.items[:0]
	} else {
		q.items = q.items[1:]
	}

	signal(q.notFull)
	// Several consumers may share this queue and the signal buffer coalesces
	// wakeups; pass the baton on if work remains.
	if len(q.items) > 0 && !q.closed {
		signal(q.notEmpty)
	}
	return f, dequeued
}

// Wait returns a channel that fires when a frame may be available. The
// channel is closed by Close, so waiters wake immediately once input ends.
//
//	select {
//	case <-ctx.Done():
//	    return ctx.Err()
//	case <-q.Wait():
//	    // retry TryDequeue
//	}
func (q *frameQueue) Wait() <-chan struct{} {
	return q.notEmpty
}

// Len returns the number of queued frames.
func (q *frameQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close signals that no more frames will be enqueued. Frames already queued
// remain available to TryDequeue. Idempotent.
func (q *frameQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.notEmpty)
	signal(q.notFull)
}

// signal performs a non-blocking send; a buffer of 1 coalesces signals.
func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
