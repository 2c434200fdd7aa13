// Package filters provides the built-in configurable advisors.
//
// Each advisor kind is declared in the manifest:
//
//	advisors: [{kind: "limit", match: "*.Checkout", priority: 10, options: {rate: 5, burst: 1}}]
//
// Options are decoded strictly: unknown keys are errors, so a typo fails at
// startup instead of silently disabling a setting.
package filters

import (
	"database/sql"
	"fmt"
	"log/slog"
	"sort"

	"github.com/mitchellh/mapstructure"
	"github.com/redis/go-redis/v9"
	"go.uber.org/multierr"

	"github.com/flyxxxxx/prototype-sub001/internal/advisor"
	"github.com/flyxxxxx/prototype-sub001/internal/compiler"
	"github.com/flyxxxxx/prototype-sub001/internal/index"
)

// Default priorities per kind. Lower wraps further out; catch steps sit
// at 100.
var DefaultPriorities = map[string]int{
	KindLimit:    10,
	KindMetrics:  20,
	KindCache:    50,
	KindTemplate: 60,
	KindTx:       150,
}

const (
	KindLimit    = "limit"
	KindCache    = "cache"
	KindTx       = "tx"
	KindMetrics  = "metrics"
	KindTemplate = "template"
)

// Deps are the shared resources advisors may need.
type Deps struct {
	Logger *slog.Logger

	// DB backs the tx advisor.
	DB *sql.DB

	// Redis backs cache advisors declared with backend "redis".
	Redis *redis.Client

	// Metrics receives the metrics advisor's observations. When nil a
	// private collector is created.
	Metrics *Metrics
}

func (d Deps) logger() *slog.Logger {
	if d.Logger == nil {
		return slog.Default()
	}
	return d.Logger
}

// matcher yields the filter for one operation, or false when the advisor
// does not apply to it.
type matcher func(op *index.OperationDescriptor) (advisor.Filter, bool)

type builder func(name string, options map[string]any, deps Deps) (matcher, error)

var builders = map[string]builder{
	KindLimit:    buildLimit,
	KindCache:    buildCache,
	KindTx:       buildTx,
	KindMetrics:  buildMetrics,
	KindTemplate: buildTemplate,
}

// Kinds returns the supported advisor kinds in sorted order.
func Kinds() []string {
	kinds := make([]string, 0, len(builders))
	for k := range builders {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// configured is an advisor built from a manifest declaration.
type configured struct {
	name     string
	priority int
	selector *advisor.Selector
	match    matcher
}

func (a *configured) Name() string  { return a.name }
func (a *configured) Priority() int { return a.priority }

func (a *configured) Match(class *index.ClassDescriptor, op *index.OperationDescriptor) (advisor.Filter, bool) {
	if !a.selector.Matches(class, op) {
		return nil, false
	}
	return a.match(op)
}

// New builds the advisor declared by spec.
func New(spec compiler.AdvisorSpec, deps Deps) (advisor.Advisor, error) {
	build, ok := builders[spec.Kind]
	if !ok {
		return nil, fmt.Errorf("unknown advisor kind %q", spec.Kind)
	}
	sel, err := advisor.ParseSelector(spec.Match)
	if err != nil {
		return nil, err
	}
	name := spec.DisplayName()
	m, err := build(name, spec.Options, deps)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	priority := spec.Priority
	if priority == 0 {
		priority = DefaultPriorities[spec.Kind]
	}
	return &configured{name: name, priority: priority, selector: sel, match: m}, nil
}

// Build builds every declared advisor. All problems are reported together.
func Build(specs []compiler.AdvisorSpec, deps Deps) ([]advisor.Advisor, error) {
	var errs error
	advisors := make([]advisor.Advisor, 0, len(specs))
	for i, spec := range specs {
		a, err := New(spec, deps)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("advisors[%d]: %w", i, err))
			continue
		}
		advisors = append(advisors, a)
	}
	if errs != nil {
		return nil, errs
	}
	return advisors, nil
}

// decode fills out from manifest options. Durations accept strings like
// "1m30s"; numbers convert between int and float.
func decode(options map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		ErrorUnused:      true,
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(options); err != nil {
		return fmt.Errorf("options: %w", err)
	}
	return nil
}

func reject(name, format string, args ...any) error {
	return &advisor.RejectedError{Advisor: name, Reason: fmt.Sprintf(format, args...)}
}
