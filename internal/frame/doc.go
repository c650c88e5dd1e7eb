// Package frame defines the data model shared by every pipeline stage.
//
// This package contains value types and pure helpers only. All other internal
// packages import frame; frame imports nothing internal, which keeps it the
// foundational layer with no circular dependencies.
//
// Key design constraints:
//   - Index is assigned once, by the distributor, and never rewritten
//   - A SequencedResult exists for every index, including failed ones
//   - Digests are computed over canonical JSON, never over encoding/json output
package frame
