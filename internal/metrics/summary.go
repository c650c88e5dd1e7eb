package metrics

import (
	"math"
	"sort"
	"sync"
	"time"

	"gonum.org/v1/gonum/stat"
)

// LatencyRecorder collects annotate latencies from every worker.
// Safe for concurrent use.
type LatencyRecorder struct {
	mu      sync.Mutex
	samples []float64 // seconds
}

// NewLatencyRecorder creates an empty recorder.
func NewLatencyRecorder() *LatencyRecorder {
	return &LatencyRecorder{}
}

// Add records one sample. A nil recorder ignores the call.
func (r *LatencyRecorder) Add(d time.Duration) {
	if r == nil {
		return
	}
	r.mu.Lock()
	r.samples = append(r.samples, d.Seconds())
	r.mu.Unlock()
}

// Summary is a latency digest in seconds.
type Summary struct {
	Count  int     `json:"count"`
	Mean   float64 `json:"mean_seconds"`
	StdDev float64 `json:"stddev_seconds"`
	P50    float64 `json:"p50_seconds"`
	P95    float64 `json:"p95_seconds"`
	Max    float64 `json:"max_seconds"`
}

// Summary computes the digest over all samples recorded so far.
func (r *LatencyRecorder) Summary() Summary {
	if r == nil {
		return Summary{}
	}
	r.mu.Lock()
	xs := make([]float64, len(r.samples))
	copy(xs, r.samples)
	r.mu.Unlock()

	if len(xs) == 0 {
		return Summary{}
	}
	sort.Float64s(xs)

	s := Summary{
		Count: len(xs),
		Mean:  stat.Mean(xs, nil),
		P50:   stat.Quantile(0.5, stat.Empirical, xs, nil),
		P95:   stat.Quantile(0.95, stat.Empirical, xs, nil),
		Max:   xs[len(xs)-1],
	}
	if len(xs) > 1 {
		s.StdDev = stat.StdDev(xs, nil)
	}
	if math.IsNaN(s.StdDev) {
		s.StdDev = 0
	}
	return s
}

// Throughput returns frames per second for n frames over elapsed.
func Throughput(n uint64, elapsed time.Duration) float64 {
	if elapsed <= 0 {
		return 0
	}
	return float64(n) / elapsed.Seconds()
}
