package sink

import (
	"sync"

	"github.com/roach88/posepipe/internal/frame"
)

// Memory keeps every written result. Results and Closed may be read while
// a pipeline is writing.
type Memory struct {
	mu      sync.Mutex
	results []frame.SequencedResult
	closed  bool
}

// NewMemory creates an empty in-memory sink.
func NewMemory() *Memory {
	return &Memory{}
}

// Write records r.
func (m *Memory) Write(r frame.SequencedResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return &Error{Kind: KindClosed, Path: "memory", Index: int64(r.Index)}
	}
	m.results = append(m.results, r)
	return nil
}

// Close marks the sink closed. Idempotent.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Closed reports whether Close has been called.
func (m *Memory) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Results returns a copy of the written results.
func (m *Memory) Results() []frame.SequencedResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]frame.SequencedResult, len(m.results))
	copy(out, m.results)
	return out
}

// Indices returns the written indices in order.
func (m *Memory) Indices() []uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]uint64, len(m.results))
	for i, r := range m.results {
		out[i] = r.Index
	}
	return out
}
