package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/posepipe/internal/annotate"
	"github.com/roach88/posepipe/internal/engine"
	"github.com/roach88/posepipe/internal/frame"
	"github.com/roach88/posepipe/internal/sink"
	"github.com/roach88/posepipe/internal/source"
)

// SimulateOptions holds flags for the simulate command.
type SimulateOptions struct {
	*RootOptions
	Frames  int
	Width   int
	Height  int
	Workers int
	Routing string
	Window  int
	Delays  []time.Duration
	Fail    []uint
	Output  string

	// RunIDGenerator allows overriding the run id generator (for testing).
	RunIDGenerator engine.RunIDGenerator
}

// SimulateResult is the outcome of a simulation.
type SimulateResult struct {
	RunID        string   `json:"run_id"`
	State        string   `json:"state"`
	Order        []uint64 `json:"order"`
	Placeholders []uint64 `json:"placeholders"`
	MaxPending   int      `json:"max_pending"`
	ErrorCode    string   `json:"error_code,omitempty"`
	Error        string   `json:"error,omitempty"`
}

// NewSimulateCommand creates the simulate command.
func NewSimulateCommand(rootOpts *RootOptions) *cobra.Command {
	return newSimulateCommand(&SimulateOptions{RootOptions: rootOpts})
}

func newSimulateCommand(opts *SimulateOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run the pipeline on a synthetic stream",
		Long: `Run the pipeline on a synthetic stream with a scripted annotator and
print the order in which frames were emitted.

Delays are per-frame annotate times, cycled when shorter than the stream.
Failed frames are emitted as placeholders.

Examples:
  posepipe simulate --frames 5 --workers 2 --delays 50ms,10ms,40ms,10ms,5ms
  posepipe simulate --frames 100 --workers 8 --routing shared --fail 3,7
  posepipe simulate --frames 30 --output sim.tar.zst --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimulate(opts, cmd)
		},
	}

	cmd.Flags().IntVarP(&opts.Frames, "frames", "n", 10, "number of frames")
	cmd.Flags().IntVar(&opts.Width, "width", 64, "frame width")
	cmd.Flags().IntVar(&opts.Height, "height", 48, "frame height")
	cmd.Flags().IntVarP(&opts.Workers, "workers", "w", 2, "number of annotation workers")
	cmd.Flags().StringVar(&opts.Routing, "routing", string(engine.RoutingRoundRobin), "frame routing (round_robin|shared)")
	cmd.Flags().IntVar(&opts.Window, "window", -1, "reorder window (-1 sizes it from routing, 0 is unbounded)")
	cmd.Flags().DurationSliceVar(&opts.Delays, "delays", nil, "per-frame annotate delays, cycled (e.g. 50ms,10ms)")
	cmd.Flags().UintSliceVar(&opts.Fail, "fail", nil, "frame indices whose annotation fails")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "also write an archive to this path")

	return cmd
}

func runSimulate(opts *SimulateOptions, cmd *cobra.Command) error {
	configureLogging(opts.Verbose, cmd.ErrOrStderr())
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	routing, err := engine.ParseRouting(opts.Routing)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid routing", err)
	}
	src, err := source.NewSynthetic(source.SyntheticConfig{
		Frames: opts.Frames,
		Width:  opts.Width,
		Height: opts.Height,
	})
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid stream", err)
	}

	gen := opts.RunIDGenerator
	if gen == nil {
		gen = engine.UUIDv7Generator{}
	}
	runID := gen.Generate()

	mem := sink.NewMemory()
	var out engine.FrameSink = mem
	if opts.Output != "" {
		info := src.Info()
		archive, err := sink.CreateArchive(opts.Output, sink.Meta{RunID: runID, FPS: info.FPS, Width: info.Width, Height: info.Height})
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to create output", err)
		}
		out = &teeSink{primary: mem, secondary: archive}
	}

	fail := make([]uint64, len(opts.Fail))
	for i, idx := range opts.Fail {
		fail[i] = uint64(idx)
	}
	script := annotate.Script{Delays: opts.Delays, Fail: fail, Draw: opts.Output != ""}

	p, err := engine.New(src, engineFactory(annotate.SyntheticFactory(script)), out,
		engine.WithWorkers(opts.Workers),
		engine.WithRouting(routing),
		engine.WithWindow(opts.Window),
		engine.WithRunID(runID),
		engine.WithPollInterval(10*time.Millisecond),
		engine.WithProgressEvery(0),
	)
	if err != nil {
		_ = out.Close()
		return WrapExitError(ExitCommandError, "invalid simulation", err)
	}

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	runErr := p.Run(ctx)
	stats := p.Stats()
	slog.Debug("simulation finished", "run_id", runID, "state", stats.State.String(), "error", runErr)

	result := SimulateResult{
		RunID:        runID,
		State:        stats.State.String(),
		Order:        mem.Indices(),
		Placeholders: []uint64{},
		MaxPending:   stats.MaxPending,
	}
	for _, r := range mem.Results() {
		if r.Failed {
			result.Placeholders = append(result.Placeholders, r.Index)
		}
	}
	if runErr != nil {
		result.ErrorCode = errorCode(runErr)
		result.Error = runErr.Error()
	}

	if formatter.JSON() {
		resp := CLIResponse{Status: "ok", Data: result, RunID: runID}
		if runErr != nil {
			resp.Status = "error"
			resp.Error = &CLIError{Code: result.ErrorCode, Message: result.Error}
		}
		if err := formatter.Encode(resp); err != nil {
			return err
		}
	} else {
		w := formatter.Writer
		fmt.Fprintf(w, "Emission order: %s\n", joinIndices(result.Order))
		if len(result.Placeholders) > 0 {
			fmt.Fprintf(w, "Placeholders: %s\n", joinIndices(result.Placeholders))
		}
		fmt.Fprintf(w, "State: %s (max pending %d)\n", result.State, result.MaxPending)
		if runErr != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "Error [%s]: %s\n", result.ErrorCode, result.Error)
		}
	}

	if runErr != nil {
		return WrapExitError(ExitFailure, "simulation failed", runErr)
	}
	return nil
}

func joinIndices(xs []uint64) string {
	parts := make([]string, len(xs))
	for i, x := range xs {
		parts[i] = fmt.Sprint(x)
	}
	return strings.Join(parts, " ")
}

// teeSink writes every result to two sinks. The secondary is closed even
// when closing the primary fails.
type teeSink struct {
	primary   engine.FrameSink
	secondary engine.FrameSink
}

func (t *teeSink) Write(r frame.SequencedResult) error {
	if err := t.primary.Write(r); err != nil {
		return err
	}
	return t.secondary.Write(r)
}

func (t *teeSink) Close() error {
	return errors.Join(t.primary.Close(), t.secondary.Close())
}
