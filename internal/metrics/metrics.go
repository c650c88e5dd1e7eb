package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "posepipe"

// Metrics holds the Prometheus collectors for one pipeline.
type Metrics struct {
	FramesRead        prometheus.Counter
	FramesEmitted     prometheus.Counter
	InferenceFailures prometheus.Counter
	PendingFrames     prometheus.Gauge
	MaxPendingFrames  prometheus.Gauge
	State             prometheus.Gauge
	AnnotateDuration  *prometheus.HistogramVec
}

// New registers the pipeline collectors on reg. Use a fresh
// prometheus.NewRegistry() per pipeline in tests to avoid duplicate
// registration panics.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		FramesRead: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_read_total",
			Help:      "Frames taken from the source and dispatched to a worker",
		}),
		FramesEmitted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_emitted_total",
			Help:      "Frames written to the sink in index order",
		}),
		InferenceFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inference_failures_total",
			Help:      "Frames whose annotation failed and were replaced by a placeholder",
		}),
		PendingFrames: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_frames",
			Help:      "Results buffered in the reassembler waiting for a lower index",
		}),
		MaxPendingFrames: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_frames_max",
			Help:      "High-water mark of the reassembler pending buffer",
		}),
		State: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_state",
			Help:      "Current pipeline state (0 idle, 1 running, 2 draining, 3 completed, 4 failed)",
		}),
		AnnotateDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "annotate_duration_seconds",
			Help:      "Time spent in the annotate capability per frame",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14),
		}, []string{"worker"}),
	}
}

// ObserveRead counts a dispatched frame.
func (m *Metrics) ObserveRead() {
	if m == nil {
		return
	}
	m.FramesRead.Inc()
}

// ObserveEmit counts a frame written to the sink.
func (m *Metrics) ObserveEmit() {
	if m == nil {
		return
	}
	m.FramesEmitted.Inc()
}

// ObserveFailure counts a placeholder-filled frame.
func (m *Metrics) ObserveFailure() {
	if m == nil {
		return
	}
	m.InferenceFailures.Inc()
}

// SetPending records the current pending buffer size and its high-water mark.
func (m *Metrics) SetPending(n, max int) {
	if m == nil {
		return
	}
	m.PendingFrames.Set(float64(n))
	m.MaxPendingFrames.Set(float64(max))
}

// SetState records the numeric pipeline state.
func (m *Metrics) SetState(state int) {
	if m == nil {
		return
	}
	m.State.Set(float64(state))
}

// ObserveLatency records one annotate call for a worker.
func (m *Metrics) ObserveLatency(worker int, d time.Duration) {
	if m == nil {
		return
	}
	m.AnnotateDuration.WithLabelValues(strconv.Itoa(worker)).Observe(d.Seconds())
}
