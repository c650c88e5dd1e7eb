// Package store provides the SQLite-backed run journal.
//
// Every pipeline run can record:
//   - Runs: one row per run with its configuration and final outcome
//   - Frames: one row per emitted frame, in emission order
//
// # Invariants
//
// Emission order is stored explicitly:
//   - frames.seq is the position in which the frame reached the sink
//   - UNIQUE(run_id, seq) and PRIMARY KEY(run_id, idx) reject duplicates
//   - All frame queries use ORDER BY seq ASC, idx ASC
//
// A journaled run can be re-verified after the fact (VerifyRun): the frame
// index must equal its emission position, and the chained digest of all
// frames must match the one recorded when the run finished.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// Digests are computed by internal/frame using canonical JSON and SHA-256
// with domain separation.
package store
