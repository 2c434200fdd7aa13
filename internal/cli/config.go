package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/flyxxxxx/prototype-sub001/internal/bootstrap"
	"github.com/flyxxxxx/prototype-sub001/internal/compiler"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid   bool                       `json:"valid"`
	Classes []string                   `json:"classes,omitempty"`
	Errors  []compiler.ValidationError `json:"errors,omitempty"`
}

func newFormatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   opts.Verbose,
	}
}

// loadConfig reads the manifest at path and returns the bootstrap config
// serving it. Load failures are reported on f and returned as exit errors.
func loadConfig(opts *RootOptions, f *OutputFormatter, path string) (bootstrap.Config, error) {
	cat, err := opts.env().Catalog()
	if err != nil {
		return bootstrap.Config{}, commandError(f, bootstrap.ErrCodeGeneric, fmt.Sprintf("registering classes: %v", err))
	}

	m, err := bootstrap.LoadManifest(path, opts.language())
	if err != nil {
		return bootstrap.Config{}, reportLoadError(f, err)
	}
	f.VerboseLog("Loaded manifest %s: %d class(es), %d pool(s), %d advisor(s)",
		path, len(m.Classes), len(m.Pools), len(m.Advisors))

	return bootstrap.Config{
		Catalog:       cat,
		Manifest:      m,
		Collaborators: opts.collaborators(),
		Language:      opts.language(),
		Logger:        opts.logger(f.GetErrWriter()),
	}, nil
}

// reportLoadError reports a manifest or compile failure. Validation
// problems exit with ExitFailure, everything else with ExitCommandError.
func reportLoadError(f *OutputFormatter, err error) error {
	var loadErr *bootstrap.LoadError
	if errors.As(err, &loadErr) {
		return commandError(f, loadErr.Code, loadErr.Message)
	}

	var scanErr *compiler.ScanError
	if errors.As(err, &scanErr) {
		return reportValidation(f, scanErr.Errors)
	}

	// Advisor construction failures are configuration problems too.
	return reportValidation(f, []compiler.ValidationError{{
		Code:    compiler.ErrManifest,
		Subject: "advisors",
		Message: err.Error(),
	}})
}

// commandError outputs a single error and returns it with ExitCommandError.
func commandError(f *OutputFormatter, code, message string) error {
	_ = f.Error(code, message, nil)
	return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message))
}

// reportValidation outputs every validation error.
func reportValidation(f *OutputFormatter, errs []compiler.ValidationError) error {
	exitErr := NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))

	if f.JSON() {
		if err := f.Failure(errs[0].Code, errs[0].Message, ValidationResult{Valid: false, Errors: errs}); err != nil {
			return err
		}
		return exitErr
	}

	fmt.Fprintln(f.Writer, "✗ Validation failed")
	fmt.Fprintln(f.Writer)
	for _, ve := range errs {
		fmt.Fprintf(f.Writer, "  %s %s: %s\n", ve.Code, ve.Subject, ve.Message)
	}
	return exitErr
}
