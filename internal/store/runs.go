package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Run statuses.
const (
	RunRunning   = "running"
	RunCompleted = "completed"
	RunFailed    = "failed"
)

// ErrRunNotFound is returned when a run id has no journal entry.
var ErrRunNotFound = errors.New("run not found")

// Run is one journaled pipeline run.
type Run struct {
	ID         string     `json:"id"`
	Source     string     `json:"source"`
	Workers    int        `json:"workers"`
	Routing    string     `json:"routing"`
	Window     int        `json:"window"`
	Status     string     `json:"status"`
	Total      *uint64    `json:"total,omitempty"` // Nil until end of stream
	Emitted    uint64     `json:"emitted"`
	Failed     uint64     `json:"failed"`
	ErrorCode  string     `json:"error_code,omitempty"`
	Error      string     `json:"error,omitempty"`
	Chain      string     `json:"chain,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Outcome is recorded when a run ends.
type Outcome struct {
	Status     string
	Total      *uint64
	Emitted    uint64
	Failed     uint64
	ErrorCode  string
	Error      string
	Chain      string
	FinishedAt time.Time
}

// CreateRun inserts a run in the running state.
// Uses ON CONFLICT(id) DO NOTHING for idempotency.
func (s *Store) CreateRun(ctx context.Context, run Run) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs
		(id, source, workers, routing, reorder_window, status, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		run.ID,
		run.Source,
		run.Workers,
		run.Routing,
		run.Window,
		RunRunning,
		run.StartedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("create run: %w", err)
	}
	return nil
}

// FinishRun records the outcome of a run.
func (s *Store) FinishRun(ctx context.Context, id string, out Outcome) error {
	var total sql.NullInt64
	if out.Total != nil {
		total = sql.NullInt64{Int64: int64(*out.Total), Valid: true}
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE runs
		SET status = ?, total = ?, emitted = ?, failed = ?,
		    error_code = ?, error = ?, chain = ?, finished_at = ?
		WHERE id = ?
	`,
		out.Status,
		total,
		out.Emitted,
		out.Failed,
		out.ErrorCode,
		out.Error,
		out.Chain,
		out.FinishedAt.UnixMilli(),
		id,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("finish run %s: %w", id, ErrRunNotFound)
	}
	return nil
}

const runColumns = `id, source, workers, routing, reorder_window, status, total, emitted, failed,
	error_code, error, chain, started_at, finished_at`

// ReadRun returns one run. Returns ErrRunNotFound if id is unknown.
func (s *Store) ReadRun(ctx context.Context, id string) (Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("read run %s: %w", id, ErrRunNotFound)
	}
	return run, err
}

// ListRuns returns the most recent runs first. A limit <= 0 returns all.
//
// Returns an empty slice (not nil) if the journal is empty.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs ORDER BY started_at DESC, id COLLATE BINARY DESC`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// scanner is implemented by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (Run, error) {
	var (
		run        Run
		total      sql.NullInt64
		startedAt  int64
		finishedAt sql.NullInt64
	)
	err := sc.Scan(
		&run.ID,
		&run.Source,
		&run.Workers,
		&run.Routing,
		&run.Window,
		&run.Status,
		&total,
		&run.Emitted,
		&run.Failed,
		&run.ErrorCode,
		&run.Error,
		&run.Chain,
		&startedAt,
		&finishedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Run{}, err
		}
		return Run{}, fmt.Errorf("scan run: %w", err)
	}

	if total.Valid {
		t := uint64(total.Int64)
		run.Total = &t
	}
	run.StartedAt = time.UnixMilli(startedAt).UTC()
	if finishedAt.Valid {
		t := time.UnixMilli(finishedAt.Int64).UTC()
		run.FinishedAt = &t
	}
	return run, nil
}
