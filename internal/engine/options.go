package engine

import (
	"fmt"
	"time"

	"github.com/roach88/posepipe/internal/metrics"
)

// Routing selects how the distributor assigns frames to workers.
type Routing string

const (
	// RoutingRoundRobin sends frame i to worker i mod N.
	RoutingRoundRobin Routing = "round_robin"
	// RoutingShared lets any idle worker take the next frame from one queue.
	RoutingShared Routing = "shared"
)

// ParseRouting converts a flag or config value to a Routing.
func ParseRouting(s string) (Routing, error) {
	switch Routing(s) {
	case RoutingRoundRobin, RoutingShared:
		return Routing(s), nil
	case "":
		return RoutingRoundRobin, nil
	default:
		return "", fmt.Errorf("unknown routing %q: must be %q or %q", s, RoutingRoundRobin, RoutingShared)
	}
}

// Defaults for pipeline options.
const (
	DefaultWorkers       = 4
	DefaultQueueDepth    = 8
	DefaultPollInterval  = 100 * time.Millisecond
	DefaultProgressEvery = 100
)

// windowAuto sizes the reorder window from the routing policy.
const windowAuto = -1

type settings struct {
	workers       int
	routing       Routing
	queueDepth    int
	window        int
	pollInterval  time.Duration
	progressEvery uint64
	metrics       *metrics.Metrics
	latencies     *metrics.LatencyRecorder
	runID         string
	runIDGen      RunIDGenerator
}

func defaultSettings() settings {
	return settings{
		workers:       DefaultWorkers,
		routing:       RoutingRoundRobin,
		queueDepth:    DefaultQueueDepth,
		window:        windowAuto,
		pollInterval:  DefaultPollInterval,
		progressEvery: DefaultProgressEvery,
		runIDGen:      UUIDv7Generator{},
	}
}

// Option configures a Pipeline.
type Option func(*settings)

// WithWorkers sets the pool size. The pool is fixed for the whole run.
//
// Default: 4 (DefaultWorkers)
func WithWorkers(n int) Option {
	return func(s *settings) {
		s.workers = n
	}
}

// WithRouting selects the routing policy.
//
// Default: RoutingRoundRobin
func WithRouting(r Routing) Option {
	return func(s *settings) {
		s.routing = r
	}
}

// WithQueueDepth sets the capacity of each worker input queue. Under shared
// routing the single queue holds depth*workers frames.
//
// Default: 8 (DefaultQueueDepth)
func WithQueueDepth(depth int) Option {
	return func(s *settings) {
		s.queueDepth = depth
	}
}

// WithWindow sets the reorder window: the maximum number of frames that may
// be dispatched but not yet emitted. Zero means unbounded.
//
// Default: the worker count for round-robin routing, unbounded for shared.
func WithWindow(n int) Option {
	return func(s *settings) {
		s.window = n
	}
}

// WithPollInterval sets how long an idle worker waits before re-checking
// cancellation and its queue.
//
// Default: 100ms (DefaultPollInterval)
func WithPollInterval(d time.Duration) Option {
	return func(s *settings) {
		s.pollInterval = d
	}
}

// WithProgressEvery logs progress after every n emitted frames. Zero disables.
func WithProgressEvery(n uint64) Option {
	return func(s *settings) {
		s.progressEvery = n
	}
}

// WithMetrics attaches Prometheus collectors.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *settings) {
		s.metrics = m
	}
}

// WithLatencyRecorder collects per-frame annotate latency.
func WithLatencyRecorder(r *metrics.LatencyRecorder) Option {
	return func(s *settings) {
		s.latencies = r
	}
}

// WithRunID fixes the run identifier instead of generating one.
func WithRunID(id string) Option {
	return func(s *settings) {
		s.runID = id
	}
}

// WithRunIDGenerator overrides the run identifier generator.
func WithRunIDGenerator(g RunIDGenerator) Option {
	return func(s *settings) {
		s.runIDGen = g
	}
}

// validate checks option values and resolves the automatic window.
func (s *settings) validate() error {
	if s.workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", s.workers)
	}
	if s.queueDepth < 1 {
		return fmt.Errorf("queue depth must be at least 1, got %d", s.queueDepth)
	}
	if s.pollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive, got %s", s.pollInterval)
	}
	if _, err := ParseRouting(string(s.routing)); err != nil {
		return err
	}
	if s.window < windowAuto {
		return fmt.Errorf("window must be non-negative, got %d", s.window)
	}
	if s.window == windowAuto {
		s.window = 0
		if s.routing == RoutingRoundRobin {
			s.window = s.workers
		}
	}
	return nil
}
