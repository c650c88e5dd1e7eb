package engine

import "sync/atomic"

// Sequencer assigns the zero-based monotonic index carried by every frame.
//
// Only the distributor calls Next, but Assigned may be read from any
// goroutine, so the counter is atomic.
type Sequencer struct {
	next atomic.Uint64
}

// NewSequencer creates a sequencer whose first index is 0.
func NewSequencer() *Sequencer {
	return &Sequencer{}
}

// Next returns the next index and advances the sequencer.
// Each call returns a unique value, one greater than the previous.
func (s *Sequencer) Next() uint64 {
	return s.next.Add(1) - 1
}

// Assigned returns how many indices have been handed out, which is also the
// index the next frame will receive.
func (s *Sequencer) Assigned() uint64 {
	return s.next.Load()
}
