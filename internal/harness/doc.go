// Package harness runs pipeline scenarios against the real engine.
//
// A scenario describes a synthetic stream, a worker pool and a scripted
// annotator, then asserts on what reached the sink.
//
// # Scenario Format
//
// Scenarios are YAML files with the following structure:
//
//	name: two_workers_uneven
//	description: "Slow even frames still emit in index order"
//	frames: 5
//	workers: 2
//	routing: round_robin
//	delays: [50ms, 10ms, 40ms, 10ms, 5ms]
//	fail: [3]
//	assertions:
//	  - type: emission_order
//	    indices: [0, 1, 2, 3, 4]
//	  - type: placeholders
//	    indices: [3]
//	  - type: final_state
//	    state: Completed
//
// # Assertion Types
//
//   - emission_order: the sink received exactly these indices, in order
//   - placeholders: exactly these indices were sentinel-filled
//   - emitted_count: the sink received exactly count frames
//   - max_pending: the reorder buffer never held more than max frames
//   - final_state: the pipeline ended in this state
//   - error_code: the run failed with this error code
//   - journal_verified: the run journal passes store.VerifyRun
//
// # Deterministic Testing
//
// Every scenario runs with a fixed run id and a fresh in-memory journal, so
// the emission trace is byte-identical across runs and can be compared with
// a golden file (RunWithGolden).
package harness
