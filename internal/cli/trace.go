package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/posepipe/internal/frame"
	"github.com/roach88/posepipe/internal/store"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database string
	Limit    int
	Failed   bool // only placeholder frames
}

// TraceResult holds the frames of one journaled run.
type TraceResult struct {
	Run    store.Run     `json:"run"`
	Frames []store.Frame `json:"frames"`
	Stats  TraceStats    `json:"stats"`
}

// TraceStats holds summary statistics for the trace.
type TraceStats struct {
	Frames       int     `json:"frames"`
	Placeholders int     `json:"placeholders"`
	MeanLatency  float64 `json:"mean_latency_seconds"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace [run-id]",
		Short: "Inspect the run journal",
		Long: `Inspect a run journal written by "posepipe run --db".

Without a run id, lists the most recent runs. With a run id, shows every
emitted frame of that run in emission order: its index, the worker that
annotated it, its status, pose count and digest.

Examples:
  posepipe trace --db ./journal.db
  posepipe trace --db ./journal.db 01890a5d-ac96-774b-bcce-b302099a8057
  posepipe trace --db ./journal.db 01890a5d-ac96-774b-bcce-b302099a8057 --failed --format json`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return runListRuns(opts, cmd)
			}
			return runTrace(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite journal (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().IntVar(&opts.Limit, "limit", 20, "maximum runs to list (0 lists all)")
	cmd.Flags().BoolVar(&opts.Failed, "failed", false, "only show placeholder frames")

	return cmd
}

// openJournal opens an existing journal; a missing file is a command error.
func openJournal(path string) (*store.Store, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, NewExitError(ExitCommandError, fmt.Sprintf("database not found: %s", path))
	}
	st, err := store.Open(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	return st, nil
}

func runListRuns(opts *TraceOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	st, err := openJournal(opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	runs, err := st.ListRuns(context.Background(), opts.Limit)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list runs", err)
	}

	if formatter.JSON() {
		return formatter.Success(runs)
	}
	if len(runs) == 0 {
		fmt.Fprintln(formatter.Writer, "No runs found in journal.")
		return nil
	}

	tw := tabwriter.NewWriter(formatter.Writer, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tSTATUS\tEMITTED\tFAILED\tWORKERS\tROUTING\tSTARTED\tSOURCE")
	for _, r := range runs {
		status := r.Status
		if r.ErrorCode != "" {
			status = fmt.Sprintf("%s (%s)", r.Status, r.ErrorCode)
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%s\t%s\t%s\n",
			r.ID, status, r.Emitted, r.Failed, r.Workers, r.Routing,
			r.StartedAt.UTC().Format(time.RFC3339), r.Source)
	}
	return tw.Flush()
}

func runTrace(opts *TraceOptions, runID string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())
	ctx := context.Background()

	st, err := openJournal(opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	run, err := st.ReadRun(ctx, runID)
	if errors.Is(err, store.ErrRunNotFound) {
		return NewExitError(ExitCommandError, fmt.Sprintf("run not found: %s", runID))
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read run", err)
	}

	frames, err := st.ReadFrames(ctx, runID)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read frames", err)
	}

	result := TraceResult{Run: run, Frames: []store.Frame{}, Stats: traceStats(frames)}
	for _, f := range frames {
		if opts.Failed && f.Status != frame.StatusFailed {
			continue
		}
		result.Frames = append(result.Frames, f)
	}

	if formatter.JSON() {
		return formatter.Success(result)
	}
	return outputTraceText(formatter, result)
}

func traceStats(frames []store.Frame) TraceStats {
	s := TraceStats{Frames: len(frames)}
	var total time.Duration
	for _, f := range frames {
		if f.Status == frame.StatusFailed {
			s.Placeholders++
		}
		total += f.Latency
	}
	if len(frames) > 0 {
		s.MeanLatency = (total / time.Duration(len(frames))).Seconds()
	}
	return s
}

// outputTraceText outputs the trace as a table.
func outputTraceText(f *OutputFormatter, result TraceResult) error {
	w := f.Writer
	run := result.Run

	fmt.Fprintf(w, "Run: %s\n", run.ID)
	fmt.Fprintf(w, "Source: %s\n", run.Source)
	fmt.Fprintf(w, "Status: %s", run.Status)
	if run.ErrorCode != "" {
		fmt.Fprintf(w, " [%s] %s", run.ErrorCode, run.Error)
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Frames: %d (placeholders: %d)\n", result.Stats.Frames, result.Stats.Placeholders)
	fmt.Fprintln(w)

	if len(result.Frames) == 0 {
		fmt.Fprintln(w, "No frames to show.")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SEQ\tINDEX\tWORKER\tSTATUS\tPOSES\tLATENCY\tDIGEST")
	for _, fr := range result.Frames {
		fmt.Fprintf(tw, "%d\t%d\t%d\t%s\t%d\t%s\t%s\n",
			fr.Seq, fr.Index, fr.Worker, fr.Status, len(fr.Poses),
			fr.Latency.Round(time.Microsecond), shortDigest(fr.Digest))
		if f.Verbose && fr.Error != "" {
			fmt.Fprintf(tw, "\t\t\t\t\t\terror: %s\n", fr.Error)
		}
	}
	return tw.Flush()
}

// shortDigest abbreviates a digest for display.
func shortDigest(d string) string {
	if len(d) > 12 {
		return d[:12]
	}
	return d
}
