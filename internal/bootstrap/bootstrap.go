// Package bootstrap assembles a running engine from a catalog of classes, an
// optional manifest and the shared resources configured advisors need.
//
// Startup is all-or-nothing: every advisor and every class is checked before
// anything runs, and the first call that fails returns every problem found.
package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"reflect"
	"sort"

	"github.com/redis/go-redis/v9"
	"go.uber.org/multierr"
	"golang.org/x/text/language"

	"github.com/flyxxxxx/prototype-sub001/internal/advisor"
	"github.com/flyxxxxx/prototype-sub001/internal/catalog"
	"github.com/flyxxxxx/prototype-sub001/internal/compiler"
	"github.com/flyxxxxx/prototype-sub001/internal/engine"
	"github.com/flyxxxxx/prototype-sub001/internal/filters"
	"github.com/flyxxxxx/prototype-sub001/internal/index"
	"github.com/flyxxxxx/prototype-sub001/internal/ir"
	"github.com/flyxxxxx/prototype-sub001/internal/plan"
	"github.com/flyxxxxx/prototype-sub001/internal/store"
)

// Config describes one engine deployment.
type Config struct {
	Catalog *catalog.Catalog

	// Classes to scan. Empty means every catalog class plus every class the
	// manifest names.
	Classes []string

	// Manifest may be nil.
	Manifest *compiler.Manifest

	// Collaborators are the shared values bound to target parameters.
	Collaborators []any

	// Language selects the validation message catalog; English when unset.
	Language language.Tag

	Logger *slog.Logger

	// IDs generates invocation IDs; UUIDv7 when nil.
	IDs engine.IDGenerator

	// Journal receives every event and the compiled plans when set.
	Journal *store.Store

	// DB, Redis and Metrics are handed to configured advisors.
	DB      *sql.DB
	Redis   *redis.Client
	Metrics *filters.Metrics
}

func (c Config) logger() *slog.Logger {
	if c.Logger == nil {
		return slog.Default()
	}
	return c.Logger
}

func (c Config) manifest() *compiler.Manifest {
	if c.Manifest == nil {
		return &compiler.Manifest{}
	}
	return c.Manifest
}

// resolveClasses returns m with class keys replaced by their catalog names,
// so manifests may name classes by their bare type name. Keys the catalog
// does not know are kept and reported by the scan.
func resolveClasses(cat *catalog.Catalog, m *compiler.Manifest) *compiler.Manifest {
	if len(m.Classes) == 0 {
		return m
	}
	out := *m
	out.Classes = make(map[string][]ir.Directive, len(m.Classes))
	for _, name := range m.ClassNames() {
		full, err := cat.Resolve(name)
		if err != nil {
			full = name
		}
		out.Classes[full] = append(out.Classes[full], m.Classes[name]...)
	}
	return &out
}

// classes returns the names to scan in sorted order.
func (c Config) classes(m *compiler.Manifest) []string {
	if len(c.Classes) > 0 {
		return c.Classes
	}
	seen := make(map[string]bool)
	var names []string
	for _, n := range append(c.Catalog.Names(), m.ClassNames()...) {
		if !seen[n] {
			seen[n] = true
			names = append(names, n)
		}
	}
	sort.Strings(names)
	return names
}

// Compiled is the result of a successful Compile.
type Compiled struct {
	Index *index.Index
	Plans []*plan.Plan
}

// Compile builds the configured advisors and compiles every class.
//
// Advisor construction errors are returned together; validation problems
// are returned as one *compiler.ScanError listing all of them.
func Compile(cfg Config) (*Compiled, error) {
	if cfg.Catalog == nil {
		return nil, fmt.Errorf("bootstrap: catalog is required")
	}
	logger := cfg.logger()
	m := resolveClasses(cfg.Catalog, cfg.manifest())

	advisors, err := filters.Build(m.Advisors, filters.Deps{
		Logger:  logger,
		DB:      cfg.DB,
		Redis:   cfg.Redis,
		Metrics: cfg.Metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("build advisors: %w", err)
	}
	registry, err := advisor.NewRegistry(advisors...)
	if err != nil {
		return nil, fmt.Errorf("register advisors: %w", err)
	}

	opts := append(m.Options(),
		compiler.WithRegistry(registry),
		compiler.WithCollaborators(cfg.Collaborators...),
		compiler.WithLogger(logger),
	)
	if cfg.Language != language.Und {
		opts = append(opts, compiler.WithLanguage(cfg.Language))
	}

	ix := index.New(index.WithLogger(logger))
	plans, err := compiler.New(ix, cfg.Catalog, opts...).Scan(cfg.classes(m))
	if err != nil {
		return nil, err
	}
	return &Compiled{Index: ix, Plans: plans}, nil
}

// Runtime is a started engine and the subscribers attached to its bus.
type Runtime struct {
	Engine *engine.Engine
	Plans  []*plan.Plan

	catalog *catalog.Catalog
	store   *store.Store
	journal *store.Journal
	metrics *engine.Subscription
	logger  *slog.Logger
}

// Build compiles cfg and starts an engine serving the plans.
//
// When a journal is configured the plans are written to it before Build
// returns and every event is recorded, numbered after the events already in
// the journal. When Metrics is set, every event is
// counted as well.
func Build(ctx context.Context, cfg Config) (*Runtime, error) {
	compiled, err := Compile(cfg)
	if err != nil {
		return nil, err
	}
	logger := cfg.logger()

	opts := []engine.Option{
		engine.WithLogger(logger),
		engine.WithPools(engine.NewPools(cfg.manifest().Pools)),
		engine.WithCollaborators(cfg.Collaborators...),
	}
	if cfg.IDs != nil {
		opts = append(opts, engine.WithIDGenerator(cfg.IDs))
	}
	if cfg.Journal != nil {
		// Continue the journal's sequence so appended runs keep their events.
		last, err := cfg.Journal.LastSeq(ctx)
		if err != nil {
			return nil, fmt.Errorf("journal: %w", err)
		}
		opts = append(opts, engine.WithClock(engine.NewClockAt(last)))
	}
	e := engine.New(compiled.Index, compiled.Plans, opts...)

	rt := &Runtime{
		Engine:  e,
		Plans:   compiled.Plans,
		catalog: cfg.Catalog,
		store:   cfg.Journal,
		logger:  logger,
	}
	if cfg.Journal != nil {
		for _, p := range compiled.Plans {
			if err := cfg.Journal.WritePlan(ctx, p); err != nil {
				_ = e.Close(ctx)
				return nil, fmt.Errorf("journal plan %s: %w", p.Class.Name, err)
			}
		}
		rt.journal = store.Attach(cfg.Journal, e.Bus(), logger)
	}
	if cfg.Metrics != nil {
		rt.metrics = cfg.Metrics.Observe(e.Bus())
	}

	logger.Info("engine started",
		"classes", len(compiled.Plans),
		"pools", e.Pools().Names(),
		"journal", cfg.Journal != nil,
		"seq", e.Seq(),
	)
	return rt, nil
}

// Instance allocates a fresh instance of the named class. name may be the
// fully-qualified name or, when unambiguous, the bare type name.
func (r *Runtime) Instance(name string) (any, error) {
	full, err := r.catalog.Resolve(name)
	if err != nil {
		return nil, err
	}
	return r.catalog.New(full)
}

// Invoke calls name on instance with raw arguments converted by decode; see
// DecodeArgs.
func (r *Runtime) Invoke(ctx context.Context, instance any, name string, n int, decode ArgDecoder) (*engine.Outcome, error) {
	p, ok := r.Engine.PlanOf(instance)
	if !ok {
		return nil, fmt.Errorf("no plan for %T", instance)
	}
	args, err := DecodeArgs(p.Class, name, n, decode)
	if err != nil {
		return nil, err
	}
	return r.Engine.Invoke(ctx, instance, name, args...)
}

// Close stops the engine, flushes the bus and detaches the subscribers.
func (r *Runtime) Close(ctx context.Context) error {
	err := r.Engine.Close(ctx)
	if r.journal != nil {
		r.journal.Close()
		if last, lerr := r.store.LastSeq(ctx); lerr == nil && last < r.Engine.Seq() {
			r.logger.Warn("journal is missing events",
				"journal_seq", last,
				"engine_seq", r.Engine.Seq(),
			)
		}
	}
	if r.metrics != nil {
		r.metrics.Close()
	}
	return err
}

// ArgDecoder fills ptr, a pointer to a parameter's type, from the i-th raw
// argument.
type ArgDecoder func(i int, ptr any) error

// DecodeArgs converts n raw arguments for the operation name of class into
// typed values. Only overloads taking exactly n arguments are candidates;
// they are tried shallowest first and the first one every argument decodes
// into wins.
func DecodeArgs(class *index.ClassDescriptor, name string, n int, decode ArgDecoder) ([]any, error) {
	var errs error
	candidates := 0
	for _, op := range class.Named(name) {
		if len(op.Params) != n {
			continue
		}
		candidates++
		args, err := decodeFor(op, decode)
		if err == nil {
			return args, nil
		}
		errs = multierr.Append(errs, fmt.Errorf("%s: %w", op.Method, err))
	}
	if candidates == 0 {
		return nil, fmt.Errorf("%s.%s: no overload takes %d arguments", class.Name, name, n)
	}
	return nil, fmt.Errorf("%s.%s: arguments do not fit: %w", class.Name, name, errs)
}

func decodeFor(op *index.OperationDescriptor, decode ArgDecoder) ([]any, error) {
	args := make([]any, len(op.Params))
	for i, t := range op.Params {
		ptr := reflect.New(t)
		if err := decode(i, ptr.Interface()); err != nil {
			return nil, fmt.Errorf("argument %d (%s): %w", i, t, err)
		}
		args[i] = ptr.Elem().Interface()
	}
	return args, nil
}
