package cli

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"
	"golang.org/x/text/language"

	"github.com/flyxxxxx/prototype-sub001/internal/catalog"
	"github.com/flyxxxxx/prototype-sub001/internal/compiler"
	"github.com/flyxxxxx/prototype-sub001/internal/demo"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"
	Lang    string // validation message language: "en" | "zh"

	// Env supplies the classes commands compile and run. The demo classes
	// are used when nil.
	Env *Environment
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// Environment is the set of classes and shared collaborators a binary
// serves.
type Environment struct {
	// Catalog returns a catalog with every class registered.
	Catalog func() (*catalog.Catalog, error)

	// Collaborators returns fresh collaborators for one engine.
	Collaborators func() []any
}

// DemoEnvironment serves the demo classes.
func DemoEnvironment() *Environment {
	return &Environment{
		Catalog: func() (*catalog.Catalog, error) {
			c := catalog.New()
			if err := demo.Register(c); err != nil {
				return nil, err
			}
			return c, nil
		},
		Collaborators: demo.Collaborators,
	}
}

func (o *RootOptions) env() *Environment {
	if o.Env == nil {
		return DemoEnvironment()
	}
	return o.Env
}

func (o *RootOptions) collaborators() []any {
	if fn := o.env().Collaborators; fn != nil {
		return fn()
	}
	return nil
}

// language returns the validation message language; Und means English.
func (o *RootOptions) language() language.Tag {
	switch o.Lang {
	case "zh":
		return compiler.Simplified
	case "en":
		return compiler.English
	}
	return language.Und
}

// logger writes structured logs to w: warnings by default, everything with
// --verbose.
func (o *RootOptions) logger(w io.Writer) *slog.Logger {
	level := slog.LevelWarn
	if o.Verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// NewRootCommand creates the root command serving the demo classes.
func NewRootCommand() *cobra.Command {
	return NewRootCommandFor(DemoEnvironment())
}

// NewRootCommandFor creates the root command serving env.
func NewRootCommandFor(env *Environment) *cobra.Command {
	opts := &RootOptions{Env: env}

	cmd := &cobra.Command{
		Use:   "prototype",
		Short: "prototype - directive-driven execution pipelines",
		Long: `Compile declarative directives on Go types into execution plans and run them.

Classes declare chains, decisions, forks, async offloads and catch handlers on
their operations; a CUE manifest adds directives, worker pools, priorities and
advisors. Every problem is reported before anything runs.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			if opts.Lang != "" && opts.Lang != "en" && opts.Lang != "zh" {
				return fmt.Errorf("invalid language %q: must be en or zh", opts.Lang)
			}
			return nil
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.Lang, "lang", "", "validation message language (en|zh)")

	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewCompileCommand(opts))
	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))
	cmd.AddCommand(NewTraceCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
