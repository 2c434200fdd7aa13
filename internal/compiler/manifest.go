package compiler

import (
	"fmt"
	"sort"

	"cuelang.org/go/cue"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/flyxxxxx/prototype-sub001/internal/ir"
)

// manifestSchema constrains manifest documents before they are decoded.
const manifestSchema = `
#Directive: {
	kind:       "chain" | "decision" | "fork" | "async" | "catch"
	owner:      string
	targets?:   [...string]
	target?:    string
	handler?:   string
	after?:     bool
	dynamic?:   bool
	negate?:    bool
	fail_fast?: bool
	pool?:      string
}

#Advisor: {
	kind:      string
	name?:     string
	match?:    string
	priority?: int
	options?: {...}
}

pools?: [string]: int & >0
priorities?: [string]: int
classes?: [string]: directives?: [...#Directive]
advisors?: [...#Advisor]
`

// Manifest is the declarative configuration of a deployment: worker pools,
// directive priorities, directives per class and configurable advisors.
type Manifest struct {
	// Pools maps worker pool names to their size.
	Pools map[string]int

	// Priorities overrides directive layer priorities.
	Priorities map[ir.Kind]int

	// Classes maps fully-qualified class names to extra directives.
	Classes map[string][]ir.Directive

	// Advisors lists advisor declarations in manifest order.
	Advisors []AdvisorSpec
}

// AdvisorSpec declares one configurable advisor.
type AdvisorSpec struct {
	Kind     string         `json:"kind"`
	Name     string         `json:"name,omitempty"`
	Match    string         `json:"match,omitempty"`
	Priority int            `json:"priority,omitempty"`
	Options  map[string]any `json:"options,omitempty"`
}

// DisplayName is Name, or Kind when Name is empty.
func (a AdvisorSpec) DisplayName() string {
	if a.Name != "" {
		return a.Name
	}
	return a.Kind
}

// ClassNames returns the declared class names in sorted order.
func (m *Manifest) ClassNames() []string {
	names := make([]string, 0, len(m.Classes))
	for n := range m.Classes {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Options converts the manifest into compiler options.
func (m *Manifest) Options() []Option {
	var opts []Option
	pools := make([]string, 0, len(m.Pools))
	for name := range m.Pools {
		pools = append(pools, name)
	}
	sort.Strings(pools)
	opts = append(opts, WithPools(pools...))
	if len(m.Priorities) > 0 {
		opts = append(opts, WithPriorities(m.Priorities))
	}
	for _, class := range m.ClassNames() {
		opts = append(opts, WithDirectives(class, m.Classes[class]...))
	}
	return opts
}

// directiveDoc is the decoded form of #Directive.
type directiveDoc struct {
	Kind     string   `json:"kind"`
	Owner    string   `json:"owner"`
	Targets  []string `json:"targets"`
	Target   string   `json:"target"`
	Handler  string   `json:"handler"`
	After    bool     `json:"after"`
	Dynamic  bool     `json:"dynamic"`
	Negate   bool     `json:"negate"`
	FailFast bool     `json:"fail_fast"`
	Pool     string   `json:"pool"`
}

func (d directiveDoc) directive() ir.Directive {
	switch ir.Kind(d.Kind) {
	case ir.KindChain:
		return ir.Chain{Owner: d.Owner, Targets: d.Targets, After: d.After, Dynamic: d.Dynamic}
	case ir.KindDecision:
		return ir.Decision{Owner: d.Owner, Targets: d.Targets, Negate: d.Negate}
	case ir.KindFork:
		return ir.Fork{Owner: d.Owner, Targets: d.Targets, After: d.After, FailFast: d.FailFast, Pool: d.Pool}
	case ir.KindAsync:
		return ir.Async{Owner: d.Owner, Target: d.Target, After: d.After, Pool: d.Pool}
	case ir.KindCatch:
		return ir.Catch{Owner: d.Owner, Handler: d.Handler}
	}
	return nil
}

// ParseManifest decodes a manifest CUE value.
//
// Every problem is recorded in errs as ErrManifest with its source position,
// and decoding continues with the remaining entries.
func ParseManifest(v cue.Value, errs *Errors) *Manifest {
	m := &Manifest{
		Pools:      make(map[string]int),
		Priorities: make(map[ir.Kind]int),
		Classes:    make(map[string][]ir.Directive),
	}

	schema := v.Context().CompileString(manifestSchema)
	unified := schema.Unify(v)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		addCUEErrors(errs, err)
		return m
	}

	if pools := unified.LookupPath(cue.ParsePath("pools")); pools.Exists() {
		iter, err := pools.Fields()
		if err != nil {
			addCUEErrors(errs, err)
		} else {
			for iter.Next() {
				size, err := iter.Value().Int64()
				if err != nil {
					addCUEErrors(errs, err)
					continue
				}
				m.Pools[iter.Selector().Unquoted()] = int(size)
			}
		}
	}

	if prios := unified.LookupPath(cue.ParsePath("priorities")); prios.Exists() {
		iter, err := prios.Fields()
		if err != nil {
			addCUEErrors(errs, err)
		} else {
			for iter.Next() {
				kind := ir.Kind(iter.Selector().Unquoted())
				if !ir.ValidKind(kind) {
					errs.Add(ErrManifest, "priorities", position(iter.Value().Pos(), fmt.Sprintf("unknown directive kind %q", kind)))
					continue
				}
				p, err := iter.Value().Int64()
				if err != nil {
					addCUEErrors(errs, err)
					continue
				}
				m.Priorities[kind] = int(p)
			}
		}
	}

	if classes := unified.LookupPath(cue.ParsePath("classes")); classes.Exists() {
		iter, err := classes.Fields()
		if err != nil {
			addCUEErrors(errs, err)
		} else {
			for iter.Next() {
				name := iter.Selector().Unquoted()
				m.Classes[name] = append(m.Classes[name], parseDirectives(iter.Value(), name, errs)...)
			}
		}
	}

	if advisors := unified.LookupPath(cue.ParsePath("advisors")); advisors.Exists() {
		list, err := advisors.List()
		if err != nil {
			addCUEErrors(errs, err)
		} else {
			for list.Next() {
				var spec AdvisorSpec
				if err := list.Value().Decode(&spec); err != nil {
					addCUEErrors(errs, err)
					continue
				}
				m.Advisors = append(m.Advisors, spec)
			}
		}
	}

	return m
}

func parseDirectives(class cue.Value, name string, errs *Errors) []ir.Directive {
	dv := class.LookupPath(cue.ParsePath("directives"))
	if !dv.Exists() {
		return nil
	}
	list, err := dv.List()
	if err != nil {
		addCUEErrors(errs, err)
		return nil
	}
	var out []ir.Directive
	for list.Next() {
		var doc directiveDoc
		if err := list.Value().Decode(&doc); err != nil {
			addCUEErrors(errs, err)
			continue
		}
		d := doc.directive()
		if d == nil {
			errs.Add(ErrManifest, name, position(list.Value().Pos(), fmt.Sprintf("unknown directive kind %q", doc.Kind)))
			continue
		}
		out = append(out, d)
	}
	return out
}

// addCUEErrors records every CUE error with its first position.
func addCUEErrors(errs *Errors, err error) {
	for _, e := range cueerrors.Errors(err) {
		var pos token.Pos
		if ps := cueerrors.Positions(e); len(ps) > 0 {
			pos = ps[0]
		}
		errs.Add(ErrManifest, "manifest", position(pos, e.Error()))
	}
}

func position(pos token.Pos, msg string) string {
	if pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s", pos.Filename(), pos.Line(), pos.Column(), msg)
	}
	return msg
}
