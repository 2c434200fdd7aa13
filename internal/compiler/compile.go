// Package compiler validates class directives and compiles them into plans.
//
// One scan pass resolves every listed class through the index, validates each
// directive against the real operation signatures and compiles the result
// into an immutable plan.Plan. Every problem found in the pass is recorded in
// one Errors aggregate; the pass succeeds only when the aggregate is empty.
package compiler

import (
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"sort"
	"strings"

	"golang.org/x/text/language"

	"github.com/flyxxxxx/prototype-sub001/internal/advisor"
	"github.com/flyxxxxx/prototype-sub001/internal/index"
	"github.com/flyxxxxx/prototype-sub001/internal/ir"
	"github.com/flyxxxxx/prototype-sub001/internal/plan"
)

// DefaultPool is the worker pool used when a directive names none.
const DefaultPool = plan.DefaultPool

// Catalog maps fully-qualified class names to class types.
// It is the boundary with the external scanner.
type Catalog interface {
	Lookup(name string) (reflect.Type, bool)
}

// Compiler turns classes and their directives into plans.
//
// Thread-safety: Compile and Scan may be called concurrently once the
// compiler is configured; options must not be applied afterwards.
type Compiler struct {
	index      *index.Index
	catalog    Catalog
	registry   *advisor.Registry
	shared     []reflect.Type
	pools      map[string]bool
	priorities map[ir.Kind]int
	extra      map[string][]ir.Directive
	lang       language.Tag
	logger     *slog.Logger
}

// Option configures a Compiler.
type Option func(*Compiler)

// WithRegistry sets the advisor registry queried for every operation.
func WithRegistry(r *advisor.Registry) Option {
	return func(c *Compiler) {
		c.registry = r
	}
}

// WithCollaborators registers shared collaborators by their dynamic type.
// The dispatcher must be given the same values in the same order.
func WithCollaborators(values ...any) Option {
	return func(c *Compiler) {
		for _, v := range values {
			c.shared = append(c.shared, reflect.TypeOf(v))
		}
	}
}

// WithPools declares the worker pools directives may name. The default pool
// always exists.
func WithPools(names ...string) Option {
	return func(c *Compiler) {
		for _, n := range names {
			c.pools[n] = true
		}
	}
}

// WithPriorities overrides directive layer priorities by kind.
func WithPriorities(p map[ir.Kind]int) Option {
	return func(c *Compiler) {
		for k, v := range p {
			c.priorities[k] = v
		}
	}
}

// WithDirectives adds directives for a class in addition to the ones the
// class provides itself.
func WithDirectives(class string, ds ...ir.Directive) Option {
	return func(c *Compiler) {
		c.extra[class] = append(c.extra[class], ds...)
	}
}

// WithLanguage selects the language of validation messages.
func WithLanguage(tag language.Tag) Option {
	return func(c *Compiler) {
		c.lang = tag
	}
}

// WithLogger sets the compiler logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Compiler) {
		c.logger = l
	}
}

// New creates a Compiler over ix and cat.
func New(ix *index.Index, cat Catalog, opts ...Option) *Compiler {
	c := &Compiler{
		index:      ix,
		catalog:    cat,
		pools:      map[string]bool{DefaultPool: true},
		priorities: make(map[ir.Kind]int, len(plan.DefaultPriorities)),
		extra:      make(map[string][]ir.Directive),
		lang:       English,
		logger:     slog.Default(),
	}
	for k, v := range plan.DefaultPriorities {
		c.priorities[k] = v
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.registry == nil {
		c.registry, _ = advisor.NewRegistry()
	}
	return c
}

// Registry returns the advisor registry the compiler selects from.
func (c *Compiler) Registry() *advisor.Registry { return c.registry }

// Scan compiles every named class in one pass.
//
// All validation errors across all classes are accumulated; if any exist the
// returned error is a *ScanError carrying every message and no plans are
// returned. On success the advisor registry is frozen.
func (c *Compiler) Scan(names []string) ([]*plan.Plan, error) {
	errs := NewErrors(c.lang)
	plans := c.ScanInto(names, errs)
	if err := errs.Err(); err != nil {
		c.logger.Error("scan failed",
			"classes", len(names),
			"errors", errs.Len(),
		)
		return nil, err
	}
	c.registry.Freeze()
	c.logger.Info("scan complete", "classes", len(plans))
	return plans, nil
}

// ScanInto compiles every named class, recording problems in errs. Plans of
// classes with errors are omitted.
func (c *Compiler) ScanInto(names []string, errs *Errors) []*plan.Plan {
	var plans []*plan.Plan
	for _, name := range names {
		t, ok := c.catalog.Lookup(name)
		if !ok {
			errs.Add(ErrUnknownClass, name, name)
			continue
		}
		cd, err := c.index.Class(t)
		if err != nil {
			errs.Add(ErrUnknownClass, name, name)
			continue
		}
		if p := c.Compile(cd, c.Directives(cd), errs); p != nil {
			plans = append(plans, p)
		}
	}
	return plans
}

// Directives returns the directives declared for cd: the ones its Directives
// method provides followed by the extra ones configured on the compiler.
func (c *Compiler) Directives(cd *index.ClassDescriptor) []ir.Directive {
	var ds []ir.Directive
	if p, ok := cd.New().Interface().(ir.Provider); ok {
		ds = append(ds, p.Directives()...)
	}
	return append(ds, c.extra[cd.Name]...)
}

// Compile validates directives against cd and builds its plan.
//
// Problems are recorded in errs. When any problem concerns this class the
// returned plan is nil. Compiling the same class twice yields plans with the
// same fingerprint.
func (c *Compiler) Compile(cd *index.ClassDescriptor, directives []ir.Directive, errs *Errors) *plan.Plan {
	before := errs.Len()

	kinds := make(map[*index.OperationDescriptor]map[ir.Kind]bool)
	var steps []*plan.Step
	for _, d := range directives {
		owner := c.resolveOwner(cd, d, errs)
		if owner == nil {
			continue
		}
		if kinds[owner] == nil {
			kinds[owner] = make(map[ir.Kind]bool)
		}
		if kinds[owner][d.Kind()] {
			errs.Add(ErrDuplicateKind, owner.QualifiedName(), owner.QualifiedName(), string(d.Kind()))
			continue
		}
		kinds[owner][d.Kind()] = true

		if step := c.compileStep(cd, owner, d, errs); step != nil {
			steps = append(steps, step)
		}
	}

	c.checkCycles(cd, steps, errs)

	if errs.Len() > before {
		return nil
	}

	entries := make([]*plan.Entry, 0, len(cd.Operations))
	for _, op := range cd.Operations {
		var owned []*plan.Step
		for _, s := range steps {
			if s.Owner == op {
				owned = append(owned, s)
			}
		}
		entries = append(entries, plan.NewEntry(op, c.collaborators(op), owned, c.registry.Select(cd, op)))
	}

	p, err := plan.New(cd, directives, steps, entries)
	if err != nil {
		errs.Add(ErrManifest, cd.Name, err.Error())
		return nil
	}
	c.logger.Debug("class compiled",
		"class", cd.Name,
		"steps", len(steps),
		"fingerprint", p.Fingerprint(),
	)
	return p
}

// collaborators lists the types available to an operation's targets.
func (c *Compiler) collaborators(op *index.OperationDescriptor) []reflect.Type {
	out := make([]reflect.Type, 0, len(op.Params)+len(c.shared))
	out = append(out, op.Params...)
	return append(out, c.shared...)
}

func (c *Compiler) resolveOwner(cd *index.ClassDescriptor, d ir.Directive, errs *Errors) *index.OperationDescriptor {
	subject := cd.Name + "." + d.OwnerName()
	op, err := c.index.ResolveUnique(cd, d.OwnerName(), false)
	if err != nil {
		errs.Add(ErrAmbiguous, subject, subject, ambiguousList(err))
		return nil
	}
	if op == nil {
		errs.Add(ErrUnknownOwner, subject, string(d.Kind()), d.OwnerName())
		return nil
	}
	return op
}

// resolveTarget resolves one directive target and binds its parameters.
func (c *Compiler) resolveTarget(cd *index.ClassDescriptor, owner *index.OperationDescriptor, kind ir.Kind, name string, errs *Errors) (plan.Target, bool) {
	subject := owner.QualifiedName()
	op, err := c.index.ResolveUnique(cd, name, false)
	if err != nil {
		errs.Add(ErrAmbiguous, subject, cd.Name+"."+name, ambiguousList(err))
		return plan.Target{}, false
	}
	if op == nil {
		errs.Add(ErrUnresolvedTarget, subject, string(kind), name)
		return plan.Target{}, false
	}
	if kind == ir.KindFork && len(op.Params) > 1 {
		errs.Add(ErrUnsatisfiable, subject, op.QualifiedName(),
			fmt.Sprintf("fork targets take at most one parameter, %s takes %d", op.Method, len(op.Params)))
		return plan.Target{}, false
	}
	binding, err := index.Bind(op, c.collaborators(owner))
	if err != nil {
		if index.IsAmbiguous(err) {
			errs.Add(ErrAmbiguous, subject, op.QualifiedName(), ambiguousList(err))
		} else {
			errs.Add(ErrUnsatisfiable, subject, op.QualifiedName(), err.Error())
		}
		return plan.Target{}, false
	}
	return plan.Target{Key: index.Key(name), Op: op, Binding: binding}, true
}

func (c *Compiler) checkPool(owner *index.OperationDescriptor, kind ir.Kind, pool string, errs *Errors) string {
	if pool == "" {
		return DefaultPool
	}
	if !c.pools[pool] {
		errs.Add(ErrUnknownPool, owner.QualifiedName(), string(kind), owner.QualifiedName(), pool)
	}
	return pool
}

func ambiguousList(err error) string {
	var ae *index.AmbiguousError
	if errors.As(err, &ae) {
		return strings.Join(ae.Candidates, ", ")
	}
	return err.Error()
}

// typeNames renders types for messages.
func typeNames(ts []reflect.Type) string {
	names := make([]string, len(ts))
	for i, t := range ts {
		names[i] = index.TypeName(t)
	}
	return strings.Join(names, ", ")
}

// sortHandlers orders catch handlers most specific first: concrete types,
// then interfaces with larger method sets, then error itself.
func sortHandlers(hs []plan.Handler) {
	rank := func(t reflect.Type) int {
		switch {
		case t == index.ErrorType():
			return 2
		case t.Kind() == reflect.Interface:
			return 1
		default:
			return 0
		}
	}
	sort.SliceStable(hs, func(i, j int) bool {
		a, b := hs[i].ErrType, hs[j].ErrType
		if ra, rb := rank(a), rank(b); ra != rb {
			return ra < rb
		}
		if a.NumMethod() != b.NumMethod() {
			return a.NumMethod() > b.NumMethod()
		}
		return a.String() < b.String()
	})
}
