package engine

import "context"

// reorderWindow bounds how many frames may be dispatched but not yet emitted.
//
// The distributor acquires one credit per frame and the reassembler returns
// it on emission. With a window of N, the in-flight indices are always the
// contiguous range [next, next+N), so at most N-1 results wait in the pending
// buffer. A nil window is unbounded.
type reorderWindow struct {
	credits chan struct{}
}

// newReorderWindow returns a window of size credits, or nil when size <= 0.
func newReorderWindow(size int) *reorderWindow {
	if size <= 0 {
		return nil
	}
	w := &reorderWindow{credits: make(chan struct{}, size)}
	for i := 0; i < size; i++ {
		w.credits <- struct{}{}
	}
	return w
}

// Acquire blocks until a credit is available or ctx is done.
func (w *reorderWindow) Acquire(ctx context.Context) error {
	if w == nil {
		return nil
	}
	select {
	case <-w.credits:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release returns a credit. Every emitted frame was dispatched with a credit,
// so the send never finds the buffer full.
func (w *reorderWindow) Release() {
	if w == nil {
		return
	}
	select {
	case w.credits <- struct{}{}:
	default:
	}
}

// Available returns the number of unused credits, or -1 when unbounded.
func (w *reorderWindow) Available() int {
	if w == nil {
		return -1
	}
	return len(w.credits)
}
