package harness

import (
	"fmt"
	"strings"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	fmt.Fprintf(&buf, "\nFull trace:\n")
	for _, ev := range e.Trace {
		marker := ""
		if ev.Placeholder {
			marker = " (placeholder)"
		}
		fmt.Fprintf(&buf, "  [%d] index %d%s\n", ev.Seq, ev.Index, marker)
	}
	return buf.String()
}

// EvaluateAssertions checks every assertion against result and returns the
// failure messages. An empty slice means all assertions held.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var failures []string
	for _, a := range assertions {
		if err := evaluate(result, a); err != nil {
			failures = append(failures, err.Error())
		}
	}
	return failures
}

func evaluate(result *Result, a Assertion) error {
	switch a.Type {
	case AssertEmissionOrder:
		return assertIndices(a.Type, result.Indices(), a.Indices, result.Trace)
	case AssertPlaceholders:
		return assertIndices(a.Type, result.Placeholders(), a.Indices, result.Trace)
	case AssertEmittedCount:
		return assertEmittedCount(result, *a.Count)
	case AssertMaxPending:
		return assertMaxPending(result, *a.Max)
	case AssertFinalState:
		if result.State != a.State {
			return &AssertionError{Type: a.Type, Expected: a.State, Actual: result.State, Trace: result.Trace}
		}
	case AssertErrorCode:
		if result.ErrorCode != a.Code {
			actual := result.ErrorCode
			if actual == "" {
				actual = "no error"
			}
			return &AssertionError{Type: a.Type, Expected: a.Code, Actual: actual, Trace: result.Trace}
		}
	case AssertJournalVerified:
		if !result.Verification.OK() {
			return &AssertionError{
				Type:     a.Type,
				Expected: "no journal violations",
				Actual:   strings.Join(result.Verification.Violations, "; "),
				Trace:    result.Trace,
			}
		}
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
	return nil
}

// assertIndices requires got to equal want exactly, in order.
func assertIndices(kind string, got, want []uint64, trace []TraceEvent) error {
	if diff := cmp.Diff(want, got, cmpopts.EquateEmpty()); diff != "" {
		return &AssertionError{
			Type:     kind,
			Expected: fmt.Sprint(want),
			Actual:   fmt.Sprintf("%v (-want +got):\n%s", got, diff),
			Trace:    trace,
		}
	}
	return nil
}

func assertEmittedCount(result *Result, want int) error {
	if len(result.Trace) != want {
		return &AssertionError{
			Type:     AssertEmittedCount,
			Expected: fmt.Sprintf("%d frames", want),
			Actual:   fmt.Sprintf("%d frames", len(result.Trace)),
			Trace:    result.Trace,
		}
	}
	return nil
}

func assertMaxPending(result *Result, max int) error {
	if result.Stats.MaxPending > max {
		return &AssertionError{
			Type:     AssertMaxPending,
			Expected: fmt.Sprintf("at most %d pending frames", max),
			Actual:   fmt.Sprintf("%d pending frames", result.Stats.MaxPending),
			Trace:    result.Trace,
		}
	}
	return nil
}
