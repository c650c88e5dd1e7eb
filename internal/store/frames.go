package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/roach88/posepipe/internal/frame"
)

// Frame is one journaled emission.
type Frame struct {
	RunID   string        `json:"run_id"`
	Index   uint64        `json:"index"`
	Seq     uint64        `json:"seq"` // Emission position
	Status  frame.Status  `json:"status"`
	Worker  int           `json:"worker"`
	Latency time.Duration `json:"latency"`
	Poses   []frame.Pose  `json:"poses"`
	Digest  string        `json:"digest"`
	Error   string        `json:"error,omitempty"`
}

// RecordFrame journals result r as the seq-th emission of runID.
// A second record for the same index or position is rejected.
func (s *Store) RecordFrame(ctx context.Context, runID string, seq uint64, r frame.SequencedResult) (Frame, error) {
	digest, err := frame.Digest(r)
	if err != nil {
		return Frame{}, fmt.Errorf("record frame: %w", err)
	}
	poses := r.Annotated.Poses
	if poses == nil {
		poses = []frame.Pose{}
	}
	posesJSON, err := json.Marshal(poses)
	if err != nil {
		return Frame{}, fmt.Errorf("record frame: marshal poses: %w", err)
	}

	f := Frame{
		RunID:   runID,
		Index:   r.Index,
		Seq:     seq,
		Status:  r.Status(),
		Worker:  r.Worker,
		Latency: r.Latency,
		Poses:   poses,
		Digest:  digest,
	}
	if r.Err != nil {
		f.Error = r.Err.Error()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO frames
		(run_id, idx, seq, status, worker, latency_us, poses, digest, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		f.RunID,
		f.Index,
		f.Seq,
		string(f.Status),
		f.Worker,
		f.Latency.Microseconds(),
		string(posesJSON),
		f.Digest,
		f.Error,
	)
	if err != nil {
		return Frame{}, fmt.Errorf("record frame %d: %w", r.Index, err)
	}
	return f, nil
}

// ReadFrames returns the frames of a run in emission order.
//
// Returns an empty slice (not nil) if the run has no frames.
func (s *Store) ReadFrames(ctx context.Context, runID string) ([]Frame, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, idx, seq, status, worker, latency_us, poses, digest, error
		FROM frames
		WHERE run_id = ?
		ORDER BY seq ASC, idx ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query frames: %w", err)
	}
	defer rows.Close()

	frames := []Frame{}
	for rows.Next() {
		var (
			f         Frame
			status    string
			latencyUS int64
			posesJSON string
		)
		if err := rows.Scan(&f.RunID, &f.Index, &f.Seq, &status, &f.Worker, &latencyUS, &posesJSON, &f.Digest, &f.Error); err != nil {
			return nil, fmt.Errorf("scan frame: %w", err)
		}
		f.Status = frame.Status(status)
		f.Latency = time.Duration(latencyUS) * time.Microsecond
		if err := json.Unmarshal([]byte(posesJSON), &f.Poses); err != nil {
			return nil, fmt.Errorf("unmarshal poses for frame %d: %w", f.Index, err)
		}
		frames = append(frames, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate frames: %w", err)
	}
	return frames, nil
}
