package index

import (
	"fmt"
	"log/slog"
	"reflect"
	"runtime"
	"sort"
	"strings"
	"sync"
)

// reservedMethods are never operations: they describe the class itself.
var reservedMethods = map[string]bool{
	"Directives": true,
	"EnumValues": true,
}

// Index resolves and caches class operation surfaces.
//
// Construct one per scan pass with New and pass it to the compiler; it has no
// package-level state, so tests can use a fresh index each.
type Index struct {
	classes   sync.Map // reflect.Type -> *ClassDescriptor
	overloads sync.Map // overloadKey -> *OperationDescriptor
	logger    *slog.Logger
}

type overloadKey struct {
	class reflect.Type
	name  string
	args  string
}

// Option configures an Index.
type Option func(*Index)

// WithLogger sets the logger used for cache diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(ix *Index) {
		ix.logger = l
	}
}

// New creates an empty Index.
func New(opts ...Option) *Index {
	ix := &Index{logger: slog.Default()}
	for _, opt := range opts {
		opt(ix)
	}
	return ix
}

// Class returns the descriptor for t, building it on first access.
// t may be a struct type or a pointer to one.
func (ix *Index) Class(t reflect.Type) (*ClassDescriptor, error) {
	if t == nil {
		return nil, fmt.Errorf("nil class type")
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("class %s is not a struct type", t)
	}
	if cd, ok := ix.classes.Load(t); ok {
		return cd.(*ClassDescriptor), nil
	}

	built := buildClass(t)
	actual, loaded := ix.classes.LoadOrStore(t, built)
	if !loaded {
		ix.logger.Debug("class indexed",
			"class", built.Name,
			"operations", len(built.Operations),
		)
	}
	return actual.(*ClassDescriptor), nil
}

// ClassOf is Class for the dynamic type of an instance.
func (ix *Index) ClassOf(instance any) (*ClassDescriptor, error) {
	return ix.Class(reflect.TypeOf(instance))
}

// Resolve returns every visible operation matching name, shallowest first.
//
// A name with an overload suffix ("Notify_Mail") selects that method only;
// otherwise every overload of the logical name is returned.
func (ix *Index) Resolve(cd *ClassDescriptor, name string) []*OperationDescriptor {
	return cd.Named(name)
}

// ResolveUnique returns the single candidate at the shallowest depth that has
// candidates.
//
// More than one candidate at that depth yields *AmbiguousError. No candidate
// yields (nil, nil) unless required is set, in which case *NotFoundError.
func (ix *Index) ResolveUnique(cd *ClassDescriptor, name string, required bool) (*OperationDescriptor, error) {
	candidates := ix.Resolve(cd, name)
	if len(candidates) == 0 {
		if required {
			return nil, &NotFoundError{Class: cd.Name, Name: name}
		}
		return nil, nil
	}
	depth := candidates[0].Depth
	var same []*OperationDescriptor
	for _, c := range candidates {
		if c.Depth == depth {
			same = append(same, c)
		}
	}
	if len(same) > 1 {
		return nil, ambiguous(cd, name, same)
	}
	return same[0], nil
}

// ResolveOverload returns the most specific overload of name whose parameters
// are all satisfiable by argTypes.
//
// Specificity: fewer interface (non-identical) parameter matches first, then
// more bound parameters, then shallower depth. Equal specificity yields
// *AmbiguousError. No match yields (nil, nil).
func (ix *Index) ResolveOverload(cd *ClassDescriptor, name string, argTypes ...reflect.Type) (*OperationDescriptor, error) {
	key := overloadKey{class: cd.Type, name: name, args: typeList(argTypes)}
	if op, ok := ix.overloads.Load(key); ok {
		return op.(*OperationDescriptor), nil
	}

	type scored struct {
		op    *OperationDescriptor
		score [3]int
	}
	var matches []scored
	for _, c := range ix.Resolve(cd, name) {
		cost, ok := matchCost(c.Params, argTypes)
		if !ok {
			continue
		}
		matches = append(matches, scored{op: c, score: [3]int{cost, -len(c.Params), c.Depth}})
	}
	if len(matches) == 0 {
		return nil, nil
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return lessScore(matches[i].score, matches[j].score)
	})
	if len(matches) > 1 && matches[0].score == matches[1].score {
		var tied []*OperationDescriptor
		for _, m := range matches {
			if m.score == matches[0].score {
				tied = append(tied, m.op)
			}
		}
		return nil, ambiguous(cd, name, tied)
	}

	// Racers compute the same winner; either stored value is correct.
	actual, _ := ix.overloads.LoadOrStore(key, matches[0].op)
	return actual.(*OperationDescriptor), nil
}

func lessScore(a, b [3]int) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

// matchCost reports whether every param has some argument type assignable to
// it, and how many of them needed interface assignability.
func matchCost(params, argTypes []reflect.Type) (int, bool) {
	cost := 0
	for _, p := range params {
		exact, assignable := false, false
		for _, a := range argTypes {
			if a == p {
				exact = true
				break
			}
			if a != nil && a.AssignableTo(p) {
				assignable = true
			}
		}
		switch {
		case exact:
		case assignable:
			cost++
		default:
			return 0, false
		}
	}
	return cost, true
}

func ambiguous(cd *ClassDescriptor, name string, ops []*OperationDescriptor) *AmbiguousError {
	names := make([]string, len(ops))
	for i, op := range ops {
		names[i] = op.Signature()
	}
	return &AmbiguousError{Class: cd.Name, Name: name, Candidates: names}
}

func typeList(ts []reflect.Type) string {
	parts := make([]string, len(ts))
	for i, t := range ts {
		parts[i] = TypeName(t)
	}
	return strings.Join(parts, ",")
}

// level is one struct type in the embedding tree.
type level struct {
	typ   reflect.Type
	depth int
	path  []int

	// hidden levels sit below an unexported embedded field. Their methods are
	// only reachable through a visible level's method set.
	hidden bool
}

// occurrence groups the appearances of one signature along one embedding chain.
type occurrence struct {
	top     level // shallowest level whose method set holds the signature
	deepest level
	decl    *level // shallowest level declaring the method itself
	method  reflect.Method
}

func buildClass(t reflect.Type) *ClassDescriptor {
	cd := &ClassDescriptor{
		Name:      QualifiedName(t),
		Type:      t,
		byLogical: make(map[string][]*OperationDescriptor),
		byMethod:  make(map[string][]*OperationDescriptor),
	}

	levels := walkLevels(t)

	// signature key -> occurrences on distinct embedding chains
	groups := make(map[string][]*occurrence)
	var order []string
	for _, lv := range levels {
		pt := reflect.PointerTo(lv.typ)
		for i := 0; i < pt.NumMethod(); i++ {
			m := pt.Method(i)
			if reservedMethods[m.Name] {
				continue
			}
			key := m.Name + " " + methodType(m).String()
			occs, seen := groups[key]
			merged := false
			for _, o := range occs {
				if hasPrefix(lv.path, o.top.path) {
					if lv.depth > o.deepest.depth {
						o.deepest = lv
					}
					if o.decl == nil && declares(lv.typ, m.Name) {
						d := lv
						o.decl = &d
					}
					merged = true
					break
				}
			}
			if merged || lv.hidden {
				continue
			}
			if !seen {
				order = append(order, key)
			}
			o := &occurrence{top: lv, deepest: lv, method: m}
			if declares(lv.typ, m.Name) {
				d := lv
				o.decl = &d
			}
			groups[key] = append(occs, o)
		}
	}

	for _, key := range order {
		for _, o := range groups[key] {
			params, hasCtx, result, errs, ok := operationShape(methodType(o.method))
			if !ok {
				continue
			}
			decl := o.deepest
			if o.decl != nil {
				decl = *o.decl
			}
			op := &OperationDescriptor{
				Name:        LogicalName(o.method.Name),
				Method:      o.method.Name,
				Class:       cd,
				Declaring:   decl.typ,
				Depth:       decl.depth,
				Path:        o.top.path,
				Params:      params,
				Context:     hasCtx,
				Result:      result,
				Errors:      errs,
				methodIndex: o.method.Index,
			}
			cd.Operations = append(cd.Operations, op)
		}
	}

	sort.SliceStable(cd.Operations, func(i, j int) bool {
		return cd.Operations[i].Depth < cd.Operations[j].Depth
	})
	for _, op := range cd.Operations {
		cd.byLogical[op.Name] = append(cd.byLogical[op.Name], op)
		cd.byMethod[op.Method] = append(cd.byMethod[op.Method], op)
	}
	return cd
}

// declares reports whether t itself declares the method name, as opposed to
// having it promoted from an embedded field. Promoted methods and the pointer
// wrappers of value-receiver methods are compiler-generated.
func declares(t reflect.Type, name string) bool {
	if m, ok := reflect.PointerTo(t).MethodByName(name); ok && !generated(m.Func) {
		return true
	}
	if m, ok := t.MethodByName(name); ok && !generated(m.Func) {
		return true
	}
	return false
}

func generated(fn reflect.Value) bool {
	f := runtime.FuncForPC(fn.Pointer())
	if f == nil {
		return true
	}
	file, _ := f.FileLine(f.Entry())
	return file == "<autogenerated>"
}

// walkLevels lists t and its embedded struct types depth-first. Types already
// on the current chain are not revisited.
func walkLevels(t reflect.Type) []level {
	var out []level
	var visit func(lv level, chain map[reflect.Type]bool)
	visit = func(lv level, chain map[reflect.Type]bool) {
		out = append(out, lv)
		chain[lv.typ] = true
		defer delete(chain, lv.typ)
		for i := 0; i < lv.typ.NumField(); i++ {
			f := lv.typ.Field(i)
			if !f.Anonymous {
				continue
			}
			ft := f.Type
			if ft.Kind() == reflect.Pointer {
				ft = ft.Elem()
			}
			if ft.Kind() != reflect.Struct || chain[ft] {
				continue
			}
			path := make([]int, len(lv.path)+1)
			copy(path, lv.path)
			path[len(lv.path)] = i
			visit(level{
				typ:    ft,
				depth:  lv.depth + 1,
				path:   path,
				hidden: lv.hidden || !f.IsExported(),
			}, chain)
		}
	}
	visit(level{typ: t}, map[reflect.Type]bool{})
	return out
}

func hasPrefix(path, prefix []int) bool {
	if len(prefix) > len(path) {
		return false
	}
	for i := range prefix {
		if path[i] != prefix[i] {
			return false
		}
	}
	return true
}
