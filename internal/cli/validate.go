package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/flyxxxxx/prototype-sub001/internal/bootstrap"
)

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <manifest>",
		Short: "Validate a manifest against the registered classes",
		Long: `Validate a CUE manifest and every registered class without starting an engine.

The manifest may be a directory holding one CUE package or a single .cue file.
Every directive, worker pool and advisor is checked, and every problem is
reported at once.`,
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
	formatter := newFormatter(opts, cmd)

	cfg, err := loadConfig(opts, formatter, path)
	if err != nil {
		return err
	}

	compiled, err := bootstrap.Compile(cfg)
	if err != nil {
		return reportLoadError(formatter, err)
	}

	classes := make([]string, 0, len(compiled.Plans))
	for _, p := range compiled.Plans {
		formatter.VerboseLog("Validated class: %s", p.Class.Name)
		classes = append(classes, p.Class.Name)
	}

	if formatter.JSON() {
		return formatter.Success(ValidationResult{Valid: true, Classes: classes})
	}
	fmt.Fprintf(formatter.Writer, "✓ %d class(es) valid\n", len(classes))
	return nil
}
