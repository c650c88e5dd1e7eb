package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/posepipe/internal/config"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Path   string                   `json:"path"`
	Valid  bool                     `json:"valid"`
	Errors []config.ValidationError `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <config>",
		Short: "Validate a pipeline config file",
		Long: `Validate a YAML or CUE pipeline config against the config schema.

Every violation is reported, not just the first. Environment overrides are
not applied, so the file is checked on its own.

Exit codes:
  0 - The config is valid
  1 - The config violates the schema
  2 - The file cannot be read or parsed`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())

	cfg, err := config.LoadFile(path)
	if err != nil {
		return outputValidateError(formatter, config.ErrSchemaInternal, err.Error(), nil)
	}
	formatter.VerboseLog("Loaded %s: %d worker(s), %s routing, %s annotator",
		path, cfg.Workers, cfg.Routing, cfg.Annotator.Kind)

	if errs := config.Validate(cfg); len(errs) > 0 {
		return outputValidationErrors(formatter, path, errs)
	}
	return outputValidateSuccess(formatter, path)
}

// outputValidateSuccess outputs successful validation results.
func outputValidateSuccess(formatter *OutputFormatter, path string) error {
	if formatter.JSON() {
		return formatter.Success(ValidationResult{Path: path, Valid: true})
	}

	fmt.Fprintf(formatter.Writer, "%s Config valid: %s\n", markPass, path)
	return nil
}

// outputValidateError outputs a single load error.
func outputValidateError(formatter *OutputFormatter, code, message string, details any) error {
	_ = formatter.Error(code, message, details)
	// Unreadable configs are command-level errors (exit code 2)
	return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message))
}

// outputValidationErrors outputs multiple validation errors.
func outputValidationErrors(formatter *OutputFormatter, path string, errs []config.ValidationError) error {
	if formatter.JSON() {
		err := formatter.Encode(CLIResponse{
			Status: "error",
			Data:   ValidationResult{Path: path, Valid: false, Errors: errs},
			Error: &CLIError{
				Code:    errs[0].Code,
				Message: errs[0].Message,
			},
		})
		if err != nil {
			return err
		}
		// Validation failures = exit code 1
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
	}

	fmt.Fprintf(formatter.Writer, "%s Validation failed: %s\n", markFail, path)
	fmt.Fprintln(formatter.Writer)
	for _, err := range errs {
		fmt.Fprintf(formatter.Writer, "  %s\n", err.Error())
	}

	// Validation failures = exit code 1
	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
}
