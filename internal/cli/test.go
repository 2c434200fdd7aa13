package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/flyxxxxx/prototype-sub001/internal/harness"
)

// ErrCodeTestFailed reports a suite with failing scenarios.
const ErrCodeTestFailed = "E_TEST_FAILED"

// TestOptions holds flags for the test command.
type TestOptions struct {
	*RootOptions
	Update bool   // regenerate golden files
	Filter string // scenario filter (glob pattern)
}

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "test <scenarios-dir>",
		Short: "Run scenario files against the registered classes",
		Long: `Run every scenario file of a directory against a fresh engine.

Each scenario invokes operations, checks their outcomes and asserts on the
recorded trace and the journal. When a golden file exists next to the
scenario the trace must match it.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (invalid paths, etc.)

Examples:
  prototype test ./scenarios
  prototype test ./scenarios --filter "checkout_*"
  prototype test ./scenarios --update
  prototype test ./scenarios --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTests(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Update, "update", false, "regenerate golden files")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter scenarios by glob pattern")

	return cmd
}

func runTests(opts *TestOptions, dir string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return NewExitError(ExitCommandError, fmt.Sprintf("scenarios directory not found: %s", dir))
	}

	files, err := harness.FindScenarios(dir, opts.Filter)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to find scenarios", err)
	}

	if len(files) == 0 {
		if formatter.JSON() {
			return formatter.Success(harness.SuiteResult{Scenarios: []harness.ScenarioResult{}})
		}
		fmt.Fprintln(formatter.Writer, "No scenarios found.")
		return nil
	}

	cat, err := opts.env().Catalog()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to register classes", err)
	}

	mode := harness.GoldenCompare
	if opts.Update {
		mode = harness.GoldenUpdate
	}
	formatter.VerboseLog("Running %d scenario(s) from %s", len(files), dir)

	suite := harness.RunSuite(files, mode,
		harness.WithCatalog(cat),
		harness.WithCollaborators(opts.env().Collaborators),
		harness.WithLogger(opts.logger(formatter.GetErrWriter())),
	)

	if formatter.JSON() {
		return outputTestJSON(formatter, suite)
	}
	return outputTestText(formatter, suite, opts.Update)
}

// outputTestJSON outputs the suite result as JSON.
func outputTestJSON(formatter *OutputFormatter, suite *harness.SuiteResult) error {
	if suite.Failed == 0 {
		return formatter.Success(suite)
	}

	message := fmt.Sprintf("%d scenario(s) failed", suite.Failed)
	if err := formatter.Failure(ErrCodeTestFailed, message, suite); err != nil {
		return err
	}
	// Test failures = exit code 1
	return NewExitError(ExitFailure, message)
}

// outputTestText outputs one line per scenario and a summary.
func outputTestText(formatter *OutputFormatter, suite *harness.SuiteResult, updated bool) error {
	w := formatter.Writer

	for _, sr := range suite.Scenarios {
		if sr.Pass {
			if updated {
				fmt.Fprintf(w, "✓ %s (golden updated)\n", sr.Name)
			} else {
				fmt.Fprintf(w, "✓ %s\n", sr.Name)
			}
			continue
		}
		fmt.Fprintf(w, "✗ %s\n", sr.Name)
		for _, e := range sr.Errors {
			fmt.Fprintf(w, "  %s\n", e)
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Test Summary: %d passed, %d failed, %d total\n", suite.Passed, suite.Failed, suite.Total)

	if suite.Failed > 0 {
		// Test failures = exit code 1
		return NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", suite.Failed))
	}

	fmt.Fprintln(w, "✓ All scenarios passed")
	return nil
}
