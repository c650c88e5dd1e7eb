package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/roach88/posepipe/internal/annotate"
	"github.com/roach88/posepipe/internal/config"
	"github.com/roach88/posepipe/internal/engine"
	"github.com/roach88/posepipe/internal/metrics"
)

// engineFactory adapts an annotate.Factory to the engine's factory type.
func engineFactory(f annotate.Factory) engine.AnnotatorFactory {
	return func(worker int) (engine.Annotator, error) {
		return f(worker)
	}
}

// annotatorFactory builds the factory for the configured annotator kind.
func annotatorFactory(cfg config.Annotator) annotate.Factory {
	if cfg.Kind == config.AnnotatorHTTP {
		hc := annotate.HTTPConfig{
			Endpoint:     cfg.Endpoint,
			Timeout:      cfg.Timeout,
			RetryMax:     cfg.RetryMax,
			RetryWaitMin: cfg.RetryWaitMin,
			RetryWaitMax: cfg.RetryWaitMax,
			Draw:         cfg.Draw,
		}
		return annotate.HTTPFactory(hc, annotate.NewLimiter(cfg.RateLimit))
	}
	return annotate.SyntheticFactory(annotate.Script{
		Delays: cfg.Delays,
		Fail:   cfg.Fail,
		Draw:   cfg.Draw,
	})
}

// pipelineOptions maps a validated configuration to engine options.
func pipelineOptions(cfg config.Config) ([]engine.Option, error) {
	routing, err := engine.ParseRouting(cfg.Routing)
	if err != nil {
		return nil, err
	}
	return []engine.Option{
		engine.WithWorkers(cfg.Workers),
		engine.WithRouting(routing),
		engine.WithQueueDepth(cfg.QueueDepth),
		engine.WithWindow(cfg.Window),
		engine.WithPollInterval(cfg.PollInterval),
		engine.WithProgressEvery(uint64(cfg.ProgressEvery)),
	}, nil
}

// validateConfig runs the schema check and folds violations into one
// command error.
func validateConfig(cfg config.Config) error {
	errs := config.Validate(cfg)
	if len(errs) == 0 {
		return nil
	}
	msgs := make([]string, len(errs))
	for i, e := range errs {
		msgs[i] = e.Error()
	}
	return NewExitError(ExitCommandError, "invalid configuration: "+strings.Join(msgs, "; "))
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigChan:
			slog.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
			// Parent context cancelled (e.g., from test)
		}
	}()

	return ctx, func() {
		signal.Stop(sigChan) // Prevent signal handler leak
		cancel()
	}
}

// metricsServer exposes a registry on /metrics.
type metricsServer struct {
	srv  *http.Server
	addr string
}

// startMetricsServer listens on addr and serves reg until Shutdown.
func startMetricsServer(addr string, reg *prometheus.Registry) (*metricsServer, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen for metrics on %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server stopped", "addr", ln.Addr().String(), "error", err)
		}
	}()
	slog.Info("serving metrics", "addr", ln.Addr().String())
	return &metricsServer{srv: srv, addr: ln.Addr().String()}, nil
}

// Shutdown stops the server, waiting up to two seconds for open scrapes.
func (m *metricsServer) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := m.srv.Shutdown(ctx); err != nil {
		slog.Warn("metrics server shutdown", "error", err)
	}
}

// newRunMetrics registers pipeline collectors on a fresh registry.
func newRunMetrics() (*prometheus.Registry, *metrics.Metrics) {
	reg := prometheus.NewRegistry()
	return reg, metrics.New(reg)
}
