// Package metrics exposes pipeline counters to Prometheus and summarises
// per-frame annotate latency for the end-of-run report.
//
// All Metrics methods are nil-safe so stages can be constructed without a
// registry in tests.
package metrics
