package harness

import (
	"github.com/roach88/posepipe/internal/engine"
	"github.com/roach88/posepipe/internal/store"
)

// TraceEvent is one frame as it reached the sink.
type TraceEvent struct {
	Seq         uint64 `json:"seq"`
	Index       uint64 `json:"index"`
	Placeholder bool   `json:"placeholder"`
	Poses       int    `json:"poses"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every assertion held.
	Pass bool `json:"pass"`

	RunID     string `json:"run_id"`
	State     string `json:"state"`
	ErrorCode string `json:"error_code,omitempty"`

	// Trace lists the frames accepted by the sink, in emission order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains assertion failure messages.
	Errors []string `json:"errors,omitempty"`

	Stats        engine.Stats       `json:"-"`
	Verification store.Verification `json:"verification"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds an assertion failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Indices returns the emitted indices in order.
func (r *Result) Indices() []uint64 {
	out := make([]uint64, len(r.Trace))
	for i, ev := range r.Trace {
		out[i] = ev.Index
	}
	return out
}

// Placeholders returns the sentinel-filled indices in emission order.
func (r *Result) Placeholders() []uint64 {
	out := []uint64{}
	for _, ev := range r.Trace {
		if ev.Placeholder {
			out = append(out, ev.Index)
		}
	}
	return out
}
