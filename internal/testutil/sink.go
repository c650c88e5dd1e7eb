package testutil

import (
	"sync"

	"github.com/roach88/posepipe/internal/frame"
)

// RecordingSink records every result it receives, in call order.
//
// Set FailAt to make the write of that index return FailErr.
// Thread-safety: safe for concurrent use via internal mutex, which lets a
// test inspect it while the pipeline runs.
type RecordingSink struct {
	mu       sync.Mutex
	results  []frame.SequencedResult
	closed   int
	FailAt   int64 // -1 disables
	FailErr  error
	CloseErr error
}

// NewRecordingSink creates an empty sink.
func NewRecordingSink() *RecordingSink {
	return &RecordingSink{FailAt: -1}
}

// Write appends r.
func (s *RecordingSink) Write(r frame.SequencedResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailAt >= 0 && r.Index == uint64(s.FailAt) {
		return s.FailErr
	}
	s.results = append(s.results, r)
	return nil
}

// Close counts close calls.
func (s *RecordingSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed++
	return s.CloseErr
}

// Results returns a copy of the recorded results.
func (s *RecordingSink) Results() []frame.SequencedResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]frame.SequencedResult, len(s.results))
	copy(out, s.results)
	return out
}

// Indices returns the recorded indices in write order.
func (s *RecordingSink) Indices() []uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]uint64, len(s.results))
	for i, r := range s.results {
		out[i] = r.Index
	}
	return out
}

// CloseCalls returns how many times Close was called.
func (s *RecordingSink) CloseCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Seq returns the indices 0..n-1.
func Seq(n int) []uint64 {
	out := make([]uint64, n)
	for i := range out {
		out[i] = uint64(i)
	}
	return out
}
