package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/flyxxxxx/prototype-sub001/internal/bootstrap"
	"github.com/flyxxxxx/prototype-sub001/internal/plan"
)

// ErrCodeWriteFailed reports an output file that could not be written.
const ErrCodeWriteFailed = "E007"

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Output string // output file path
}

// CompiledPlan is the rendering of one compiled plan.
type CompiledPlan struct {
	Class       string `json:"class"`
	Fingerprint string `json:"fingerprint"`
	Description string `json:"description"`
}

// CompilationResult holds the compiled plans in class order.
type CompilationResult struct {
	Plans []CompiledPlan `json:"plans"`
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <manifest>",
		Short: "Compile every class into an execution plan",
		Long: `Compile every registered class and every class the manifest names into
execution plans, and print each plan with its fingerprint.

The fingerprint is a hash of the canonical plan: two deployments compiled
from the same classes and manifest share it.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors - we handle our own error output
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output file path")

	return cmd
}

func runCompile(opts *CompileOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	cfg, err := loadConfig(opts.RootOptions, formatter, path)
	if err != nil {
		return err
	}

	compiled, err := bootstrap.Compile(cfg)
	if err != nil {
		return reportLoadError(formatter, err)
	}

	result := &CompilationResult{Plans: make([]CompiledPlan, 0, len(compiled.Plans))}
	for _, p := range compiled.Plans {
		formatter.VerboseLog("Compiled class: %s", p.Class.Name)
		result.Plans = append(result.Plans, CompiledPlan{
			Class:       p.Class.Name,
			Fingerprint: p.Fingerprint(),
			Description: plan.Describe(p),
		})
	}

	if opts.Output != "" {
		if err := writePlansToFile(result, opts.Output); err != nil {
			return commandError(formatter, ErrCodeWriteFailed, fmt.Sprintf("writing output file: %v", err))
		}
	}

	return outputCompileSuccess(formatter, result, opts.Output)
}

// outputCompileSuccess outputs successful compilation results.
func outputCompileSuccess(formatter *OutputFormatter, result *CompilationResult, outputFile string) error {
	if formatter.JSON() {
		return formatter.Success(result)
	}

	fmt.Fprintf(formatter.Writer, "✓ Compiled %d class(es)\n\n", len(result.Plans))
	for _, p := range result.Plans {
		fmt.Fprintln(formatter.Writer, p.Description)
	}

	if outputFile != "" {
		fmt.Fprintf(formatter.Writer, "Wrote plans to %s\n", outputFile)
	}
	return nil
}

// writePlansToFile writes the compilation result to a file as indented JSON.
func writePlansToFile(result *CompilationResult, filename string) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling plans: %w", err)
	}

	if err := os.WriteFile(filename, data, 0o644); err != nil {
		return fmt.Errorf("writing file: %w", err)
	}
	return nil
}
