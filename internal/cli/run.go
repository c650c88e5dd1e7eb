package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/posepipe/internal/config"
	"github.com/roach88/posepipe/internal/engine"
	"github.com/roach88/posepipe/internal/metrics"
	"github.com/roach88/posepipe/internal/sink"
	"github.com/roach88/posepipe/internal/source"
	"github.com/roach88/posepipe/internal/store"
)

// RunOptions holds flags for the run command. Flags override the config
// file and the environment only when set explicitly.
type RunOptions struct {
	*RootOptions
	ConfigPath  string
	Workers     int
	Routing     string
	QueueDepth  int
	Window      int
	Output      string
	Database    string
	Annotator   string
	Endpoint    string
	MetricsAddr string
	Progress    int

	// RunIDGenerator allows overriding the run id generator (for testing).
	// If nil, defaults to engine.UUIDv7Generator.
	RunIDGenerator engine.RunIDGenerator
}

// RunReport summarises a finished run.
type RunReport struct {
	RunID           string          `json:"run_id"`
	Source          string          `json:"source"`
	Output          string          `json:"output,omitempty"`
	State           string          `json:"state"`
	Frames          uint64          `json:"frames"`
	Placeholders    uint64          `json:"placeholders"`
	MaxPending      int             `json:"max_pending"`
	ElapsedSeconds  float64         `json:"elapsed_seconds"`
	FramesPerSecond float64         `json:"frames_per_second"`
	Latency         metrics.Summary `json:"latency"`
	ErrorCode       string          `json:"error_code,omitempty"`
	Error           string          `json:"error,omitempty"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	return newRunCommand(&RunOptions{RootOptions: rootOpts})
}

func newRunCommand(opts *RunOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <source>",
		Short: "Annotate a frame stream",
		Long: `Annotate every frame of a source with body poses and write the
annotated frames, in input order, to a compressed frame archive.

A source is an image directory (frames sorted by file name) or a
synthetic stream: synthetic://N?width=W&height=H&fps=F

Configuration is read from built-in defaults, then --config (YAML or CUE),
then POSEPIPE_* environment variables, then flags.

Exit codes:
  0 - Every frame was emitted
  1 - The pipeline failed (the error code is printed)
  2 - Command error (bad flags or config, cannot open source or output)

Examples:
  posepipe run ./frames --workers 8 --output out.tar.zst
  posepipe run synthetic://300 --annotator synthetic --db ./journal.db
  posepipe run ./frames --annotator http --endpoint http://localhost:8000/pose --metrics-addr :9090`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.ConfigPath, "config", "c", "", "config file (.yaml, .yml or .cue)")
	cmd.Flags().IntVarP(&opts.Workers, "workers", "w", engine.DefaultWorkers, "number of annotation workers")
	cmd.Flags().StringVar(&opts.Routing, "routing", string(engine.RoutingRoundRobin), "frame routing (round_robin|shared)")
	cmd.Flags().IntVar(&opts.QueueDepth, "queue-depth", engine.DefaultQueueDepth, "per-worker input queue capacity")
	cmd.Flags().IntVar(&opts.Window, "window", -1, "reorder window (-1 sizes it from routing, 0 is unbounded)")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output archive path (.tar.zst, or .tar.gz for gzip)")
	cmd.Flags().StringVar(&opts.Database, "db", "", "journal every emitted frame to this SQLite database")
	cmd.Flags().StringVar(&opts.Annotator, "annotator", "", "annotator kind (http|synthetic)")
	cmd.Flags().StringVar(&opts.Endpoint, "endpoint", "", "pose inference endpoint for the http annotator")
	cmd.Flags().StringVar(&opts.MetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	cmd.Flags().IntVar(&opts.Progress, "progress", engine.DefaultProgressEvery, "log progress every N frames (0 disables)")

	return cmd
}

// applyFlags overlays explicitly set flags onto cfg.
func applyFlags(cmd *cobra.Command, opts *RunOptions, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("workers") {
		cfg.Workers = opts.Workers
	}
	if flags.Changed("routing") {
		cfg.Routing = opts.Routing
	}
	if flags.Changed("queue-depth") {
		cfg.QueueDepth = opts.QueueDepth
	}
	if flags.Changed("window") {
		cfg.Window = opts.Window
	}
	if flags.Changed("output") {
		cfg.Output = opts.Output
	}
	if flags.Changed("db") {
		cfg.DB = opts.Database
	}
	if flags.Changed("annotator") {
		cfg.Annotator.Kind = opts.Annotator
	}
	if flags.Changed("endpoint") {
		cfg.Annotator.Endpoint = opts.Endpoint
	}
	if flags.Changed("metrics-addr") {
		cfg.MetricsAddr = opts.MetricsAddr
	}
	if flags.Changed("progress") {
		cfg.ProgressEvery = opts.Progress
	}
}

func runPipeline(opts *RunOptions, identifier string, cmd *cobra.Command) error {
	configureLogging(opts.Verbose, cmd.ErrOrStderr())
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}
	applyFlags(cmd, opts, &cfg)
	if err := validateConfig(cfg); err != nil {
		return err
	}
	engineOpts, err := pipelineOptions(cfg)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}

	gen := opts.RunIDGenerator
	if gen == nil {
		gen = engine.UUIDv7Generator{}
	}
	runID := gen.Generate()

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	slog.Info("opening source", "source", identifier)
	src, err := source.Open(identifier)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open source", err)
	}
	info := src.Info()

	archive, err := sink.CreateArchive(cfg.Output, sink.Meta{
		RunID:  runID,
		FPS:    info.FPS,
		Width:  info.Width,
		Height: info.Height,
	})
	if err != nil {
		_ = src.Close()
		return WrapExitError(ExitCommandError, "failed to create output", err)
	}

	var out engine.FrameSink = archive
	var (
		st      *store.Store
		journal *store.JournalSink
	)
	if cfg.DB != "" {
		st, err = store.Open(cfg.DB)
		if err != nil {
			_ = src.Close()
			_ = archive.Close()
			return WrapExitError(ExitCommandError, "failed to open journal", err)
		}
		defer func() {
			if closeErr := st.Close(); closeErr != nil {
				slog.Error("error closing journal", "error", closeErr)
			}
		}()

		journal = store.NewJournalSink(ctx, st, runID, archive)
		out = journal
	}

	reg, m := newRunMetrics()
	if cfg.MetricsAddr != "" {
		srv, err := startMetricsServer(cfg.MetricsAddr, reg)
		if err != nil {
			_ = src.Close()
			_ = archive.Close()
			return WrapExitError(ExitCommandError, "failed to serve metrics", err)
		}
		defer srv.Shutdown()
	}
	latencies := metrics.NewLatencyRecorder()

	engineOpts = append(engineOpts,
		engine.WithRunID(runID),
		engine.WithMetrics(m),
		engine.WithLatencyRecorder(latencies),
	)
	p, err := engine.New(src, engineFactory(annotatorFactory(cfg.Annotator)), out, engineOpts...)
	if err != nil {
		_ = src.Close()
		_ = archive.Close()
		return WrapExitError(ExitCommandError, "failed to build pipeline", err)
	}

	if journal != nil {
		if err := recordRunStart(ctx, st, p, identifier, cfg); err != nil {
			_ = src.Close()
			_ = archive.Close()
			return WrapExitError(ExitCommandError, "failed to journal run", err)
		}
	}

	slog.Info("pipeline starting",
		"run_id", runID,
		"source", identifier,
		"workers", cfg.Workers,
		"routing", cfg.Routing,
		"window", p.Window(),
		"annotator", cfg.Annotator.Kind,
		"output", cfg.Output)

	runErr := p.Run(ctx)
	stats := p.Stats()

	if journal != nil {
		if err := finishJournal(journal, stats, runErr); err != nil {
			slog.Error("failed to record run outcome", "run_id", runID, "error", err)
		}
	}

	report := newRunReport(stats, identifier, cfg.Output, runErr)
	return outputRunReport(formatter, cmd.ErrOrStderr(), report, runErr)
}

// recordRunStart inserts the running journal entry for p.
func recordRunStart(ctx context.Context, st *store.Store, p *engine.Pipeline, identifier string, cfg config.Config) error {
	return st.CreateRun(ctx, store.Run{
		ID:        p.RunID(),
		Source:    identifier,
		Workers:   cfg.Workers,
		Routing:   cfg.Routing,
		Window:    p.Window(),
		StartedAt: time.Now(),
	})
}

// finishJournal records the outcome of a run. It uses its own context so a
// cancelled run is still recorded.
func finishJournal(j *store.JournalSink, stats engine.Stats, runErr error) error {
	var total *uint64
	if stats.TotalKnown {
		t := stats.Total
		total = &t
	}
	var code string
	if runErr != nil {
		code = errorCode(runErr)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return j.Finish(ctx, total, runErr, code, time.Now())
}

func newRunReport(stats engine.Stats, identifier, output string, runErr error) RunReport {
	r := RunReport{
		RunID:           stats.RunID,
		Source:          identifier,
		Output:          output,
		State:           stats.State.String(),
		Frames:          stats.Emitted,
		Placeholders:    stats.Failed,
		MaxPending:      stats.MaxPending,
		ElapsedSeconds:  stats.Elapsed.Seconds(),
		FramesPerSecond: metrics.Throughput(stats.Emitted, stats.Elapsed),
		Latency:         stats.Latency,
	}
	if runErr != nil {
		r.ErrorCode = errorCode(runErr)
		r.Error = runErr.Error()
	}
	return r
}

// outputRunReport prints the report and maps a failed run to ExitFailure.
// The error kind of a failed run goes to errOut in text mode.
func outputRunReport(f *OutputFormatter, errOut io.Writer, r RunReport, runErr error) error {
	if f.JSON() {
		resp := CLIResponse{Status: "ok", Data: r, RunID: r.RunID}
		if runErr != nil {
			resp.Status = "error"
			resp.Error = &CLIError{Code: r.ErrorCode, Message: r.Error}
		}
		if err := f.Encode(resp); err != nil {
			return err
		}
	} else {
		w := f.Writer
		mark := markPass
		if runErr != nil {
			mark = markFail
		}
		fmt.Fprintf(w, "%s Run %s: %s\n", mark, r.RunID, r.State)
		fmt.Fprintf(w, "  Frames: %d (placeholders: %d)\n", r.Frames, r.Placeholders)
		fmt.Fprintf(w, "  Max pending: %d\n", r.MaxPending)
		fmt.Fprintf(w, "  Elapsed: %.3fs (%.1f frames/s)\n", r.ElapsedSeconds, r.FramesPerSecond)
		if r.Latency.Count > 0 {
			fmt.Fprintf(w, "  Latency: mean %s  p50 %s  p95 %s  max %s\n",
				seconds(r.Latency.Mean), seconds(r.Latency.P50), seconds(r.Latency.P95), seconds(r.Latency.Max))
		}
		if r.Output != "" {
			fmt.Fprintf(w, "  Output: %s\n", r.Output)
		}
		if runErr != nil {
			fmt.Fprintf(errOut, "Error [%s]: %s\n", r.ErrorCode, r.Error)
		}
	}

	if runErr != nil {
		return WrapExitError(ExitFailure, "pipeline failed", runErr)
	}
	return nil
}

// seconds formats a duration given in seconds.
func seconds(s float64) string {
	return time.Duration(s * float64(time.Second)).Round(time.Microsecond).String()
}
