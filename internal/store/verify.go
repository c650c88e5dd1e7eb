package store

import (
	"context"
	"fmt"

	"github.com/roach88/posepipe/internal/frame"
)

// Verification is the result of re-checking a journaled run.
type Verification struct {
	RunID       string   `json:"run_id"`
	Status      string   `json:"status"`
	Frames      int      `json:"frames"`
	Placeholder int      `json:"placeholders"`
	Chain       string   `json:"chain"`
	StoredChain string   `json:"stored_chain"`
	Violations  []string `json:"violations"`
}

// OK reports whether no violation was found.
func (v Verification) OK() bool {
	return len(v.Violations) == 0
}

// VerifyRun re-checks the ordering invariant of a journaled run:
//   - the frame emitted at position k has index k (in order, no gaps)
//   - each stored digest matches its recorded content
//   - a completed run emitted exactly its total, and the recomputed chain
//     digest equals the stored one
//
// Violations are collected rather than returned as errors; an error means the
// journal could not be read.
func (s *Store) VerifyRun(ctx context.Context, runID string) (Verification, error) {
	run, err := s.ReadRun(ctx, runID)
	if err != nil {
		return Verification{}, fmt.Errorf("verify run: %w", err)
	}
	frames, err := s.ReadFrames(ctx, runID)
	if err != nil {
		return Verification{}, fmt.Errorf("verify run: %w", err)
	}

	v := Verification{
		RunID:       runID,
		Status:      run.Status,
		Frames:      len(frames),
		StoredChain: run.Chain,
		Violations:  []string{},
	}

	digests := make([]string, len(frames))
	for k, f := range frames {
		if f.Seq != uint64(k) {
			v.Violations = append(v.Violations, fmt.Sprintf("emission position %d recorded as seq %d", k, f.Seq))
		}
		if f.Index != uint64(k) {
			v.Violations = append(v.Violations, fmt.Sprintf("position %d emitted index %d", k, f.Index))
		}
		if f.Status == frame.StatusFailed {
			v.Placeholder++
		}

		recomputed, err := frame.Digest(frame.SequencedResult{
			Index:     f.Index,
			Failed:    f.Status == frame.StatusFailed,
			Annotated: frame.AnnotatedFrame{Poses: f.Poses},
		})
		if err != nil {
			return Verification{}, fmt.Errorf("verify run: %w", err)
		}
		if recomputed != f.Digest {
			v.Violations = append(v.Violations, fmt.Sprintf("index %d digest mismatch", f.Index))
		}
		digests[k] = f.Digest
	}
	v.Chain = frame.ChainDigest(digests)

	if uint64(len(frames)) != run.Emitted && run.Status != RunRunning {
		v.Violations = append(v.Violations,
			fmt.Sprintf("run recorded %d emitted frames, journal holds %d", run.Emitted, len(frames)))
	}
	if run.Status == RunCompleted {
		if run.Total == nil {
			v.Violations = append(v.Violations, "completed run has no total")
		} else if *run.Total != uint64(len(frames)) {
			v.Violations = append(v.Violations,
				fmt.Sprintf("completed run total %d, journal holds %d frames", *run.Total, len(frames)))
		}
	}
	if run.Status != RunRunning && v.Chain != run.Chain {
		v.Violations = append(v.Violations, "chain digest mismatch")
	}
	return v, nil
}
