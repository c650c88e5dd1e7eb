package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/posepipe/internal/frame"
)

// createTestStore creates a new store in a temp directory for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

var testStart = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

// createTestRun inserts a run with minimal required fields.
func createTestRun(t *testing.T, s *Store, id string) {
	t.Helper()
	err := s.CreateRun(context.Background(), Run{
		ID:        id,
		Source:    "synthetic://3",
		Workers:   2,
		Routing:   "round_robin",
		Window:    2,
		StartedAt: testStart,
	})
	if err != nil {
		t.Fatalf("CreateRun() failed: %v", err)
	}
}

// testResult builds a result with one pose.
func testResult(index uint64, failed bool) frame.SequencedResult {
	r := frame.SequencedResult{Index: index, Worker: int(index % 2), Latency: 1500 * time.Microsecond}
	if failed {
		r.Failed = true
		r.Annotated.Placeholder = true
		return r
	}
	r.Annotated.Poses = []frame.Pose{{
		Score:     0.75,
		Keypoints: []frame.Keypoint{{Name: "nose", X: float64(index), Y: 2.5, Score: 0.9}},
	}}
	return r
}
