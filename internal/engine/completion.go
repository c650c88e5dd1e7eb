package engine

import "sync"

// completion tracks whether every frame has been emitted.
//
// The total is unknown until the source is exhausted and is set exactly once
// by the distributor. The emitted counter is advanced by the reassembler.
type completion struct {
	mu       sync.Mutex
	total    uint64
	totalSet bool
	emitted  uint64
}

// SetTotal records the number of frames read. Later calls are ignored and
// report false.
func (c *completion) SetTotal(n uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.totalSet {
		return false
	}
	c.total = n
	c.totalSet = true
	return true
}

// Total returns the recorded total and whether it is known yet.
func (c *completion) Total() (uint64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.total, c.totalSet
}

// MarkEmitted advances the emitted counter.
func (c *completion) MarkEmitted() {
	c.mu.Lock()
	c.emitted++
	c.mu.Unlock()
}

// Emitted returns the number of frames written so far.
func (c *completion) Emitted() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.emitted
}

// Done reports whether the total is known and every frame has been emitted.
func (c *completion) Done() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.totalSet && c.emitted == c.total
}
