package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateMachine_Transitions(t *testing.T) {
	tests := []struct {
		name  string
		path  []State
		valid bool
	}{
		{"happy path", []State{StateRunning, StateDraining, StateCompleted}, true},
		{"source failure", []State{StateRunning, StateFailed}, true},
		{"failure while draining", []State{StateRunning, StateDraining, StateFailed}, true},
		{"setup failure", []State{StateFailed}, true},
		{"skip running", []State{StateCompleted}, false},
		{"complete without draining", []State{StateRunning, StateCompleted}, false},
		{"leave terminal", []State{StateRunning, StateFailed, StateRunning}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var m stateMachine
			var err error
			for _, s := range tt.path {
				if err = m.Transition(s); err != nil {
					break
				}
			}
			if tt.valid {
				require.NoError(t, err)
				assert.Equal(t, tt.path[len(tt.path)-1], m.Get())
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "draining", StateDraining.String())
	assert.Equal(t, "state(9)", State(9).String())
	assert.True(t, StateFailed.Terminal())
	assert.False(t, StateRunning.Terminal())
}

func TestCompletion(t *testing.T) {
	var c completion
	assert.False(t, c.Done(), "unknown total is never done")

	c.MarkEmitted()
	assert.True(t, c.SetTotal(2))
	assert.False(t, c.SetTotal(5), "total is set once")
	assert.False(t, c.Done())

	c.MarkEmitted()
	assert.True(t, c.Done())
	total, known := c.Total()
	assert.True(t, known)
	assert.Equal(t, uint64(2), total)
}

func TestParseRouting(t *testing.T) {
	r, err := ParseRouting("shared")
	require.NoError(t, err)
	assert.Equal(t, RoutingShared, r)

	r, err = ParseRouting("")
	require.NoError(t, err)
	assert.Equal(t, RoutingRoundRobin, r)

	_, err = ParseRouting("random")
	assert.Error(t, err)
}

func TestErrorFormatting(t *testing.T) {
	err := NewOrderingViolation(3, 5, "index already emitted")
	assert.Equal(t, "ORDERING_VIOLATION: index already emitted (next expected 5) (index=3)", err.Error())
	assert.Equal(t, ErrCodeOrderingViolation, Code(err))

	cancelled := newCancelledError(nil)
	assert.Equal(t, "CANCELLED: pipeline cancelled", cancelled.Error())
	assert.Equal(t, ErrorCode(""), Code(assert.AnError))
}

func TestFixedGenerator(t *testing.T) {
	g := NewFixedGenerator("a", "b")
	assert.Equal(t, "a", g.Generate())
	assert.Equal(t, "b", g.Generate())
	assert.Panics(t, func() { g.Generate() })
}
