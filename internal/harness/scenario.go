package harness

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/posepipe/internal/engine"
)

// Scenario defines one pipeline run and the assertions on its output.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Frames is the length of the synthetic stream.
	Frames int `yaml:"frames"`

	// Width and Height size each frame. Default 8x6.
	Width  int `yaml:"width,omitempty"`
	Height int `yaml:"height,omitempty"`

	Workers    int    `yaml:"workers"`
	Routing    string `yaml:"routing,omitempty"`
	QueueDepth int    `yaml:"queue_depth,omitempty"`

	// Window overrides the reorder window. Nil keeps the routing default.
	Window *int `yaml:"window,omitempty"`

	// Delays are per-index annotate times, cycled when shorter than the stream.
	Delays []time.Duration `yaml:"delays,omitempty"`

	// Fail lists indices whose annotation fails.
	Fail []uint64 `yaml:"fail,omitempty"`

	// SourceFailAt makes the source read of that position fail.
	SourceFailAt *int `yaml:"source_fail_at,omitempty"`

	// SinkFailAt makes the sink write of that index fail.
	SinkFailAt *int64 `yaml:"sink_fail_at,omitempty"`

	// RunID is the fixed run identifier. Defaults to "scenario-<name>".
	RunID string `yaml:"run_id,omitempty"`

	// Timeout bounds the whole run. Default 30s.
	Timeout time.Duration `yaml:"timeout,omitempty"`

	Assertions []Assertion `yaml:"assertions"`
}

// Assertion validates the emission trace or the run outcome.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Indices is used by emission_order and placeholders.
	Indices []uint64 `yaml:"indices,omitempty"`

	// Count is used by emitted_count.
	Count *int `yaml:"count,omitempty"`

	// Max is used by max_pending.
	Max *int `yaml:"max,omitempty"`

	// State is used by final_state.
	State string `yaml:"state,omitempty"`

	// Code is used by error_code.
	Code string `yaml:"code,omitempty"`
}

// Assertion type constants.
const (
	AssertEmissionOrder   = "emission_order"
	AssertPlaceholders    = "placeholders"
	AssertEmittedCount    = "emitted_count"
	AssertMaxPending      = "max_pending"
	AssertFinalState      = "final_state"
	AssertErrorCode       = "error_code"
	AssertJournalVerified = "journal_verified"
)

const (
	defaultWidth   = 8
	defaultHeight  = 6
	defaultTimeout = 30 * time.Second
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	scenario.applyDefaults()
	return &scenario, nil
}

func (s *Scenario) applyDefaults() {
	if s.Width == 0 {
		s.Width = defaultWidth
	}
	if s.Height == 0 {
		s.Height = defaultHeight
	}
	if s.RunID == "" {
		s.RunID = "scenario-" + s.Name
	}
	if s.Timeout == 0 {
		s.Timeout = defaultTimeout
	}
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Frames < 0 {
		return fmt.Errorf("frames must be non-negative, got %d", s.Frames)
	}
	if s.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", s.Workers)
	}
	if s.Width < 0 || s.Height < 0 {
		return fmt.Errorf("frame size must be non-negative, got %dx%d", s.Width, s.Height)
	}
	if _, err := engine.ParseRouting(s.Routing); err != nil {
		return err
	}
	if s.Window != nil && *s.Window < 0 {
		return fmt.Errorf("window must be non-negative, got %d", *s.Window)
	}
	for i, d := range s.Delays {
		if d < 0 {
			return fmt.Errorf("delays[%d]: must be non-negative, got %s", i, d)
		}
	}
	if s.Timeout < 0 {
		return fmt.Errorf("timeout must be non-negative, got %s", s.Timeout)
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i]); err != nil {
			return err
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertEmissionOrder, AssertPlaceholders:
		if a.Indices == nil {
			return fmt.Errorf("assertions[%d]: indices is required for %s (use [] for none)", index, a.Type)
		}
	case AssertEmittedCount:
		if a.Count == nil || *a.Count < 0 {
			return fmt.Errorf("assertions[%d]: non-negative count is required for emitted_count", index)
		}
	case AssertMaxPending:
		if a.Max == nil || *a.Max < 0 {
			return fmt.Errorf("assertions[%d]: non-negative max is required for max_pending", index)
		}
	case AssertFinalState:
		switch a.State {
		case engine.StateCompleted.String(), engine.StateFailed.String():
		default:
			return fmt.Errorf("assertions[%d]: state must be %q or %q, got %q",
				index, engine.StateCompleted, engine.StateFailed, a.State)
		}
	case AssertErrorCode:
		if a.Code == "" {
			return fmt.Errorf("assertions[%d]: code is required for error_code", index)
		}
	case AssertJournalVerified:
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
