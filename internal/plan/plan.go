// Package plan holds compiled, immutable execution plans.
//
// A Plan is built once per class by the compiler and never mutated afterwards,
// so any number of dispatchers may read it concurrently without locking.
// Steps reference the index's OperationDescriptors rather than copying them.
package plan

import (
	"reflect"
	"sort"
	"strings"

	"github.com/flyxxxxx/prototype-sub001/internal/advisor"
	"github.com/flyxxxxx/prototype-sub001/internal/index"
	"github.com/flyxxxxx/prototype-sub001/internal/ir"
)

// DefaultPriorities are the layer priorities of directive steps.
// Lower wraps further out, the same scale advisors use.
var DefaultPriorities = map[ir.Kind]int{
	ir.KindCatch:    100,
	ir.KindAsync:    200,
	ir.KindFork:     300,
	ir.KindDecision: 400,
	ir.KindChain:    500,
}

// DefaultPool is the worker pool used when a directive names none.
const DefaultPool = "default"

// DecisionMode is the branch-key space derived from an owner's result type.
type DecisionMode string

const (
	ModeNone   DecisionMode = ""
	ModeBool   DecisionMode = "bool"
	ModeString DecisionMode = "string"
	ModeEnum   DecisionMode = "enum"
	ModeBranch DecisionMode = "branch"
	ModeVoid   DecisionMode = "void"
)

// Target is a resolved directive target with its collaborator binding.
type Target struct {
	// Key is the branch key the target answers to (its logical name).
	Key string

	Op      *index.OperationDescriptor
	Binding index.Binding
}

// Handler is one catch handler overload and the error type it accepts.
type Handler struct {
	Op      *index.OperationDescriptor
	ErrType reflect.Type
}

// Matches reports whether err's dynamic type is accepted by the handler.
func (h Handler) Matches(err error) bool {
	t := reflect.TypeOf(err)
	if t == nil {
		return false
	}
	if h.ErrType.Kind() == reflect.Interface {
		return t.Implements(h.ErrType)
	}
	return t == h.ErrType
}

// Step is one unit of compiled control flow.
type Step struct {
	Kind      ir.Kind
	Priority  int
	Directive ir.Directive
	Owner     *index.OperationDescriptor

	// Targets in declared order. Async steps hold the single selected overload.
	Targets []Target

	// Handlers are ordered most specific first.
	Handlers []Handler

	// Mode is set for decision steps and dynamic chains.
	Mode DecisionMode

	After    bool
	Dynamic  bool
	Negate   bool
	FailFast bool
	Pool     string
}

// Target returns the target answering to key, if any.
func (s *Step) Target(key string) (Target, bool) {
	k := index.Key(key)
	for _, t := range s.Targets {
		if strings.EqualFold(t.Key, k) || strings.EqualFold(t.Op.Method, k) {
			return t, true
		}
	}
	return Target{}, false
}

// Layer is one wrapping layer of an entry: either a directive step or an
// advisor filter.
type Layer struct {
	Priority int
	Step     *Step
	Advisor  *advisor.Layer
}

// Name renders the layer for descriptions and events.
func (l Layer) Name() string {
	if l.Step != nil {
		return string(l.Step.Kind)
	}
	return "advisor:" + l.Advisor.Advisor
}

// Entry is the frozen invocation pipeline of one operation.
type Entry struct {
	Operation *index.OperationDescriptor

	// Collaborators are the types available to target bindings: the
	// operation's own parameters followed by the shared collaborator types.
	Collaborators []reflect.Type

	// Steps owned by this operation, ordered by priority.
	Steps []*Step

	// Filters selected from the advisor registry, ordered by priority.
	Filters []advisor.Layer

	// Layers merges Filters and Steps, outermost first. On equal priority
	// advisors wrap directive steps.
	Layers []Layer
}

// NewEntry freezes the layer order of an operation.
func NewEntry(op *index.OperationDescriptor, collaborators []reflect.Type, steps []*Step, filters []advisor.Layer) *Entry {
	e := &Entry{
		Operation:     op,
		Collaborators: collaborators,
		Steps:         append([]*Step(nil), steps...),
		Filters:       append([]advisor.Layer(nil), filters...),
	}
	sort.SliceStable(e.Steps, func(i, j int) bool {
		return e.Steps[i].Priority < e.Steps[j].Priority
	})

	for i := range e.Filters {
		e.Layers = append(e.Layers, Layer{Priority: e.Filters[i].Priority, Advisor: &e.Filters[i]})
	}
	for _, s := range e.Steps {
		e.Layers = append(e.Layers, Layer{Priority: s.Priority, Step: s})
	}
	sort.SliceStable(e.Layers, func(i, j int) bool {
		return e.Layers[i].Priority < e.Layers[j].Priority
	})
	return e
}

// Plan is the compiled, immutable plan of one class.
type Plan struct {
	Class      *index.ClassDescriptor
	Directives []ir.Directive

	// Steps in declared directive order.
	Steps []*Step

	entries     map[*index.OperationDescriptor]*Entry
	ordered     []*Entry
	fingerprint string
}

// New assembles a plan and computes its fingerprint. entries must contain one
// entry per class operation.
func New(class *index.ClassDescriptor, directives []ir.Directive, steps []*Step, entries []*Entry) (*Plan, error) {
	p := &Plan{
		Class:      class,
		Directives: append([]ir.Directive(nil), directives...),
		Steps:      append([]*Step(nil), steps...),
		entries:    make(map[*index.OperationDescriptor]*Entry, len(entries)),
		ordered:    append([]*Entry(nil), entries...),
	}
	sort.SliceStable(p.ordered, func(i, j int) bool {
		a, b := p.ordered[i].Operation, p.ordered[j].Operation
		if a.Method != b.Method {
			return a.Method < b.Method
		}
		return a.Signature() < b.Signature()
	})
	for _, e := range p.ordered {
		p.entries[e.Operation] = e
	}

	fp, err := ir.Fingerprint(ir.DomainPlan, p.canonical())
	if err != nil {
		return nil, err
	}
	p.fingerprint = fp
	return p, nil
}

// Entry returns the pipeline of op, or nil if op is not part of this class.
func (p *Plan) Entry(op *index.OperationDescriptor) *Entry {
	return p.entries[op]
}

// Entries returns every entry ordered by method name.
func (p *Plan) Entries() []*Entry {
	return p.ordered
}

// Fingerprint identifies the structure of the plan. Compiling the same class
// with the same directives and advisors yields the same fingerprint.
func (p *Plan) Fingerprint() string {
	return p.fingerprint
}

// canonical renders the plan as plain values for fingerprinting.
func (p *Plan) canonical() map[string]any {
	entries := make([]any, 0, len(p.ordered))
	for _, e := range p.ordered {
		layers := make([]any, 0, len(e.Layers))
		for _, l := range e.Layers {
			layers = append(layers, layerObject(l))
		}
		entries = append(entries, map[string]any{
			"operation": e.Operation.Signature(),
			"depth":     e.Operation.Depth,
			"layers":    layers,
		})
	}
	return map[string]any{
		"ir_version": ir.IRVersion,
		"class":      p.Class.Name,
		"entries":    entries,
	}
}

func layerObject(l Layer) map[string]any {
	if l.Advisor != nil {
		return map[string]any{
			"advisor":  l.Advisor.Advisor,
			"priority": l.Priority,
		}
	}
	s := l.Step
	obj := ir.DirectiveObject(s.Directive)
	obj["priority"] = s.Priority
	obj["mode"] = string(s.Mode)
	targets := make([]any, 0, len(s.Targets))
	for _, t := range s.Targets {
		binding := make([]any, len(t.Binding))
		for i, slot := range t.Binding {
			binding[i] = slot
		}
		targets = append(targets, map[string]any{
			"key":     t.Key,
			"op":      t.Op.Signature(),
			"binding": binding,
		})
	}
	obj["resolved"] = targets
	handlers := make([]any, 0, len(s.Handlers))
	for _, h := range s.Handlers {
		handlers = append(handlers, h.Op.Signature())
	}
	obj["handlers"] = handlers
	return obj
}
