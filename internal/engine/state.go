package engine

import (
	"fmt"
	"sync"
)

// State is the lifecycle phase of a Pipeline.
type State int

const (
	StateIdle State = iota
	StateRunning
	StateDraining
	StateCompleted
	StateFailed
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// transitions lists the allowed moves. Draining is skipped when the source
// fails before end of stream, and Running when no annotator could be built.
var transitions = map[State][]State{
	StateIdle:     {StateRunning, StateFailed},
	StateRunning:  {StateDraining, StateFailed},
	StateDraining: {StateCompleted, StateFailed},
}

// stateMachine guards the current State.
type stateMachine struct {
	mu      sync.RWMutex
	current State
	onSet   func(State)
}

func (m *stateMachine) Get() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Transition moves to next if the move is allowed.
func (m *stateMachine) Transition(next State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, allowed := range transitions[m.current] {
		if allowed == next {
			m.current = next
			if m.onSet != nil {
				m.onSet(next)
			}
			return nil
		}
	}
	return fmt.Errorf("invalid state transition %s -> %s", m.current, next)
}
