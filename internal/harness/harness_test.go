package harness

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(v int) *int { return &v }

func TestRun_Scenarios(t *testing.T) {
	files, err := filepath.Glob(filepath.Join("testdata", "scenarios", "*.yaml"))
	require.NoError(t, err)
	require.NotEmpty(t, files)

	for _, file := range files {
		name := strings.TrimSuffix(filepath.Base(file), ".yaml")
		t.Run(name, func(t *testing.T) {
			scenario, err := LoadScenario(file)
			require.NoError(t, err)

			result, err := Run(scenario)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)

			golden := filepath.Join("testdata", "golden", scenario.Name+".golden")
			if _, err := os.Stat(golden); err == nil {
				require.NoError(t, AssertGolden(t, scenario.Name, result))
			}
		})
	}
}

func TestRun_TwoWorkerScenario(t *testing.T) {
	scenario := &Scenario{
		Name:        "two_workers",
		Description: "round robin with uneven delays",
		Frames:      5,
		Workers:     2,
		Delays:      []time.Duration{50 * time.Millisecond, 10 * time.Millisecond, 40 * time.Millisecond, 10 * time.Millisecond, 5 * time.Millisecond},
		Assertions: []Assertion{
			{Type: AssertEmissionOrder, Indices: []uint64{0, 1, 2, 3, 4}},
		},
	}
	scenario.applyDefaults()

	result, err := Run(scenario)
	require.NoError(t, err)
	require.True(t, result.Pass, "errors: %v", result.Errors)

	assert.Equal(t, "scenario-two_workers", result.RunID)
	assert.Equal(t, "completed", result.State)
	assert.Empty(t, result.ErrorCode)
	assert.Equal(t, []uint64{0, 1, 2, 3, 4}, result.Indices())
	assert.LessOrEqual(t, result.Stats.MaxPending, 1)
	assert.True(t, result.Verification.OK())
	assert.Equal(t, 5, result.Verification.Frames)
}

func TestRun_FailingAssertionsAreCollected(t *testing.T) {
	scenario := &Scenario{
		Name:        "wrong_expectations",
		Description: "every assertion is wrong",
		Frames:      3,
		Workers:     2,
		Fail:        []uint64{1},
		Assertions: []Assertion{
			{Type: AssertEmissionOrder, Indices: []uint64{2, 1, 0}},
			{Type: AssertPlaceholders, Indices: []uint64{}},
			{Type: AssertFinalState, State: "failed"},
			{Type: AssertErrorCode, Code: "SINK_FAILURE"},
		},
	}
	scenario.applyDefaults()

	result, err := Run(scenario)
	require.NoError(t, err)

	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 4)
	assert.Contains(t, result.Errors[0], "emission_order")
	assert.Contains(t, result.Errors[1], "placeholders")
	assert.Contains(t, result.Errors[2], "final_state")
	assert.Contains(t, result.Errors[3], "no error")
}

func TestRun_WindowOverride(t *testing.T) {
	scenario := &Scenario{
		Name:        "wide_window",
		Description: "a wider window lets more frames wait",
		Frames:      10,
		Workers:     2,
		Window:      intPtr(6),
		Delays:      []time.Duration{20 * time.Millisecond, 0},
		Assertions: []Assertion{
			{Type: AssertEmissionOrder, Indices: []uint64{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}},
			{Type: AssertMaxPending, Max: intPtr(5)},
		},
	}
	scenario.applyDefaults()

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRun_InvalidRouting(t *testing.T) {
	scenario := &Scenario{
		Name:       "bad",
		Frames:     1,
		Workers:    1,
		Routing:    "broadcast",
		Assertions: []Assertion{{Type: AssertJournalVerified}},
	}
	scenario.applyDefaults()

	_, err := Run(scenario)
	require.Error(t, err)
}
