package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/posepipe/internal/store"
)

// VerifyOptions holds flags for the verify command.
type VerifyOptions struct {
	*RootOptions
	Database string
}

// VerifyResult holds the overall verification result.
type VerifyResult struct {
	Runs        []store.Verification `json:"runs"`
	AllVerified bool                 `json:"all_verified"`
}

// NewVerifyCommand creates the verify command.
func NewVerifyCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &VerifyOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "verify [run-id...]",
		Short: "Re-check the ordering of journaled runs",
		Long: `Re-check journaled runs against the ordering guarantee.

For each run, the frame emitted at position k must carry index k, every
stored digest must match its frame, and the chained digest of all frames
must equal the one recorded when the run finished. Without run ids, every
run in the journal is verified.

Exit codes:
  0 - All runs verified
  1 - A run violates the ordering guarantee
  2 - Command error (database not found, unknown run, etc.)

Examples:
  posepipe verify --db ./journal.db
  posepipe verify --db ./journal.db 01890a5d-ac96-774b-bcce-b302099a8057
  posepipe verify --db ./journal.db --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVerify(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite journal (required)")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runVerify(opts *VerifyOptions, runIDs []string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())
	ctx := context.Background()

	st, err := openJournal(opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	if len(runIDs) == 0 {
		runs, err := st.ListRuns(ctx, 0)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to list runs", err)
		}
		for _, r := range runs {
			runIDs = append(runIDs, r.ID)
		}
	}

	result := VerifyResult{Runs: []store.Verification{}, AllVerified: true}
	for _, id := range runIDs {
		v, err := st.VerifyRun(ctx, id)
		if errors.Is(err, store.ErrRunNotFound) {
			return NewExitError(ExitCommandError, fmt.Sprintf("run not found: %s", id))
		}
		if err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("failed to verify run %s", id), err)
		}
		formatter.VerboseLog("Verified %s: %d frame(s), %d violation(s)", id, v.Frames, len(v.Violations))
		result.Runs = append(result.Runs, v)
		if !v.OK() {
			result.AllVerified = false
		}
	}

	if formatter.JSON() {
		return outputVerifyJSON(formatter, result)
	}
	return outputVerifyText(formatter, result)
}

// outputVerifyJSON outputs the verification result as JSON.
func outputVerifyJSON(f *OutputFormatter, result VerifyResult) error {
	response := CLIResponse{Status: "ok", Data: result}
	if !result.AllVerified {
		response.Status = "error"
		response.Error = &CLIError{
			Code:    "E_ORDERING",
			Message: "ordering verification failed",
		}
	}
	if err := f.Encode(response); err != nil {
		return err
	}

	if !result.AllVerified {
		// Verification failure = exit code 1
		return NewExitError(ExitFailure, "ordering verification failed")
	}
	return nil
}

// outputVerifyText outputs the verification result as text.
func outputVerifyText(f *OutputFormatter, result VerifyResult) error {
	w := f.Writer

	if len(result.Runs) == 0 {
		fmt.Fprintln(w, "No runs found in journal.")
		return nil
	}

	fmt.Fprintf(w, "Verify Summary: %d run(s)\n", len(result.Runs))
	fmt.Fprintln(w)

	for _, v := range result.Runs {
		mark := markPass
		if !v.OK() {
			mark = markFail
		}
		fmt.Fprintf(w, "%s Run: %s (%s)\n", mark, v.RunID, v.Status)
		fmt.Fprintf(w, "  Frames: %d (placeholders: %d)\n", v.Frames, v.Placeholder)
		fmt.Fprintf(w, "  Chain: %s\n", v.Chain)
		for _, violation := range v.Violations {
			fmt.Fprintf(w, "  Violation: %s\n", violation)
		}
		fmt.Fprintln(w)
	}

	if result.AllVerified {
		fmt.Fprintf(w, "%s All runs verified\n", markPass)
		return nil
	}

	fmt.Fprintf(w, "%s Ordering verification failed\n", markFail)
	// Verification failure = exit code 1
	return NewExitError(ExitFailure, "ordering verification failed")
}
