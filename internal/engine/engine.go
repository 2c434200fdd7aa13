package engine

import (
	"context"
	"errors"
	"log/slog"
	"reflect"
	"runtime/debug"
	"sort"
	"strings"
	"time"

	"github.com/flyxxxxx/prototype-sub001/internal/advisor"
	"github.com/flyxxxxx/prototype-sub001/internal/index"
	"github.com/flyxxxxx/prototype-sub001/internal/plan"
)

// State is the lifecycle position of one invocation.
type State string

const (
	StateCreated         State = "created"
	StateAdvisorWrapping State = "advisor_wrapping"
	StateStepExecuting   State = "step_executing"
	StateCompleted       State = "completed"
	StateFailed          State = "failed"
	StateRejected        State = "rejected"
)

var stateOrder = map[State]int{
	StateCreated:         0,
	StateAdvisorWrapping: 1,
	StateStepExecuting:   2,
	StateCompleted:       3,
	StateFailed:          3,
	StateRejected:        3,
}

// Terminal reports whether s ends an invocation.
func (s State) Terminal() bool {
	return stateOrder[s] == 3
}

// Outcome is the record of one finished invocation.
type Outcome struct {
	ID        string
	ParentID  string
	Class     string
	Operation string

	// State is terminal: Completed, Failed or Rejected.
	State State

	// Transitions lists every state entered, Created first.
	Transitions []State

	// Value is the operation's result, or the catch handler's result when a
	// failure was handled.
	Value any

	// Err is the error returned to the caller, unchanged.
	Err error

	// Worker is the pool worker that ran the invocation; "" for callers.
	Worker string

	Duration time.Duration
}

// Engine dispatches invocations of managed classes through their plans.
//
// Thread-safety: Invoke may be called from any number of goroutines. Plans,
// the index and shared collaborators are read-only after New.
type Engine struct {
	index  *index.Index
	plans  map[reflect.Type]*plan.Plan
	shared []reflect.Value
	pools  *Pools
	bus    *Bus
	clock  *Clock
	ids    IDGenerator
	logger *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithBus sets the event bus. By default the engine creates its own.
func WithBus(b *Bus) Option {
	return func(e *Engine) {
		e.bus = b
	}
}

// WithPools sets the worker pools. By default only the default pool exists.
func WithPools(p *Pools) Option {
	return func(e *Engine) {
		e.pools = p
	}
}

// WithCollaborators sets the shared collaborators available to target
// bindings. They must be the values whose types were given to the compiler,
// in the same order.
func WithCollaborators(values ...any) Option {
	return func(e *Engine) {
		for _, v := range values {
			e.shared = append(e.shared, reflect.ValueOf(v))
		}
	}
}

// WithIDGenerator sets the invocation ID generator.
func WithIDGenerator(g IDGenerator) Option {
	return func(e *Engine) {
		e.ids = g
	}
}

// WithClock sets the logical clock stamping events.
func WithClock(c *Clock) Option {
	return func(e *Engine) {
		e.clock = c
	}
}

// New creates an Engine serving plans. ix must be the index the plans were
// compiled against.
func New(ix *index.Index, plans []*plan.Plan, opts ...Option) *Engine {
	e := &Engine{
		index:  ix,
		plans:  make(map[reflect.Type]*plan.Plan, len(plans)),
		clock:  NewClock(),
		ids:    UUIDv7Generator{},
		logger: slog.Default(),
	}
	for _, p := range plans {
		e.plans[p.Class.Type] = p
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.bus == nil {
		e.bus = NewBus(e.logger)
	}
	if e.pools == nil {
		e.pools = NewPools(nil)
	}
	e.pools.logger = e.logger
	return e
}

// Bus returns the event bus.
func (e *Engine) Bus() *Bus { return e.bus }

// Pools returns the worker pools.
func (e *Engine) Pools() *Pools { return e.pools }

// Seq returns the sequence number of the last event emitted.
func (e *Engine) Seq() int64 { return e.clock.Current() }

// Plans returns every plan ordered by class name.
func (e *Engine) Plans() []*plan.Plan {
	out := make([]*plan.Plan, 0, len(e.plans))
	for _, p := range e.plans {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Class.Name < out[j].Class.Name
	})
	return out
}

// PlanOf returns the plan of instance's class.
func (e *Engine) PlanOf(instance any) (*plan.Plan, bool) {
	t := reflect.TypeOf(instance)
	if t == nil || t.Kind() != reflect.Pointer {
		return nil, false
	}
	p, ok := e.plans[t.Elem()]
	return p, ok
}

// Wait blocks until every submitted async task has finished.
func (e *Engine) Wait() {
	e.pools.Wait()
}

// Close stops accepting async work, waits for running tasks until ctx is
// done and then flushes the bus.
func (e *Engine) Close(ctx context.Context) error {
	err := e.pools.Shutdown(ctx)
	e.bus.Close()
	return err
}

// Invoke calls the operation name on instance, a pointer to a managed class.
//
// The overload is chosen by the argument types. Arguments bind to parameters
// in order when they fit positionally; otherwise each parameter takes the
// next unused argument of matching type. The returned Outcome is never nil. The error is
// the original failure of the invocation, a *advisor.RejectedError when a
// filter declined it, or a *RuntimeError when it could not be dispatched.
func (e *Engine) Invoke(ctx context.Context, instance any, name string, args ...any) (*Outcome, error) {
	p, recv, err := e.lookup(instance)
	if err != nil {
		err.Operation = name
		return &Outcome{Operation: name, State: StateFailed, Err: err}, err
	}

	types := make([]reflect.Type, len(args))
	for i, a := range args {
		types[i] = reflect.TypeOf(a)
	}
	op, rerr := e.index.ResolveOverload(p.Class, name, types...)
	if rerr != nil {
		err := newRuntimeError(ErrCodeAmbiguousOperation, p.Class.Name+"."+name, "%v", rerr)
		return &Outcome{Class: p.Class.Name, Operation: name, State: StateFailed, Err: err}, err
	}
	if op == nil {
		err := newRuntimeError(ErrCodeUnknownOperation, p.Class.Name+"."+name, "no overload accepts (%s)", typeList(types))
		return &Outcome{Class: p.Class.Name, Operation: name, State: StateFailed, Err: err}, err
	}
	binding, ok := index.BindPositional(op, types)
	if ok {
		return e.dispatch(ctxOrBackground(ctx), p, recv, op, binding.Args(index.ValuesOf(args)), "")
	}
	binding, berr := index.Bind(op, types)
	if berr != nil {
		err := newRuntimeError(ErrCodeUnknownOperation, op.QualifiedName(), "%v", berr)
		return &Outcome{Class: p.Class.Name, Operation: op.Method, State: StateFailed, Err: err}, err
	}

	return e.dispatch(ctxOrBackground(ctx), p, recv, op, binding.Args(index.ValuesOf(args)), "")
}

func ctxOrBackground(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}

func (e *Engine) lookup(instance any) (*plan.Plan, reflect.Value, *RuntimeError) {
	rv := reflect.ValueOf(instance)
	if !rv.IsValid() || rv.Kind() != reflect.Pointer || rv.IsNil() {
		return nil, reflect.Value{}, newRuntimeError(ErrCodeBadInstance, "", "instance must be a non-nil pointer, got %T", instance)
	}
	p, ok := e.plans[rv.Type().Elem()]
	if !ok {
		return nil, reflect.Value{}, newRuntimeError(ErrCodeUnknownClass, "", "class %s has no plan", index.QualifiedName(rv.Type()))
	}
	return p, rv, nil
}

// call is the dispatcher of one invocation. Its state is owned by the
// goroutine running the invocation; workers only read immutable fields.
type call struct {
	id     string
	parent string
	plan   *plan.Plan
	entry  *plan.Entry
	recv   reflect.Value
	args   []reflect.Value

	// collabs are args followed by the shared collaborators, matching
	// entry.Collaborators slot for slot.
	collabs []reflect.Value
	inv     *advisor.Invocation

	state       State
	transitions []State
}

func (c *call) enter(s State) {
	if stateOrder[s] <= stateOrder[c.state] && c.state != "" {
		return
	}
	c.state = s
	c.transitions = append(c.transitions, s)
}

func (e *Engine) dispatch(ctx context.Context, p *plan.Plan, recv reflect.Value, op *index.OperationDescriptor, args []reflect.Value, parent string) (*Outcome, error) {
	start := time.Now()
	c := &call{
		id:     e.ids.Generate(),
		parent: parent,
		plan:   p,
		entry:  p.Entry(op),
		recv:   recv,
		args:   args,
	}
	c.collabs = make([]reflect.Value, 0, len(args)+len(e.shared))
	c.collabs = append(c.collabs, args...)
	c.collabs = append(c.collabs, e.shared...)

	plain := make([]any, len(args))
	for i, a := range args {
		if a.IsValid() {
			plain[i] = a.Interface()
		}
	}
	c.inv = &advisor.Invocation{ID: c.id, Class: p.Class, Operation: op, Instance: recv.Interface(), Args: plain}

	c.enter(StateCreated)
	e.emit(ctx, c, Event{Type: EventInvocationStarted, State: StateCreated})

	var value any
	var err error
	if c.entry == nil {
		err = newRuntimeError(ErrCodeUnknownOperation, op.QualifiedName(), "operation is not part of the plan")
	} else {
		value, err = e.safely(op.QualifiedName(), func() (any, error) {
			return e.layer(c, 0)(ctx)
		})
	}

	typ := EventInvocationCompleted
	switch {
	case err == nil:
		c.enter(StateCompleted)
	case advisor.IsRejected(err):
		c.enter(StateRejected)
		typ = EventInvocationRejected
	default:
		c.enter(StateFailed)
		typ = EventInvocationFailed
	}
	e.emit(ctx, c, Event{Type: typ, State: c.state, Err: err})

	out := &Outcome{
		ID:          c.id,
		ParentID:    parent,
		Class:       p.Class.Name,
		Operation:   op.Method,
		State:       c.state,
		Transitions: c.transitions,
		Value:       value,
		Err:         err,
		Worker:      WorkerFromContext(ctx),
		Duration:    time.Since(start),
	}
	e.logger.Debug("invocation finished",
		"invocation_id", c.id,
		"operation", op.QualifiedName(),
		"state", c.state,
		"duration_ms", out.Duration.Milliseconds(),
	)
	return out, err
}

// layer returns the continuation running entry layers from i inwards.
func (e *Engine) layer(c *call, i int) advisor.Next {
	return func(ctx context.Context) (any, error) {
		layers := c.entry.Layers
		if i == len(layers) {
			c.enter(StateStepExecuting)
			op := c.entry.Operation
			return e.safely(op.QualifiedName(), func() (any, error) {
				return op.Call(ctx, c.recv, c.args)
			})
		}
		l := layers[i]
		if l.Advisor != nil {
			c.enter(StateAdvisorWrapping)
			return l.Advisor.Filter.Invoke(ctx, c.inv, advisor.Guard(e.layer(c, i+1)))
		}
		c.enter(StateStepExecuting)
		return e.step(ctx, c, l.Step, e.layer(c, i+1))
	}
}

// runTarget invokes a directive target through its own entry.
func (e *Engine) runTarget(ctx context.Context, c *call, t plan.Target) (any, error) {
	out, err := e.dispatch(ctx, c.plan, c.recv, t.Op, t.Binding.Args(c.collabs), c.id)
	return out.Value, err
}

// safely runs fn, converting a panic into a *PanicError.
func (e *Engine) safely(op string, fn func() (any, error)) (value any, err error) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("operation panicked", "operation", op, "panic", r)
			value, err = nil, &PanicError{Operation: op, Value: r, Stack: debug.Stack()}
		}
	}()
	return fn()
}

// emit completes ev with the invocation's identity and publishes it.
func (e *Engine) emit(ctx context.Context, c *call, ev Event) {
	ev.Seq = e.clock.Next()
	ev.InvocationID = c.id
	ev.ParentID = c.parent
	ev.Class = c.plan.Class.Name
	ev.Operation = c.inv.Operation.Method
	ev.Worker = WorkerFromContext(ctx)
	e.bus.Publish(ev)
}

func typeList(ts []reflect.Type) string {
	names := make([]string, len(ts))
	for i, t := range ts {
		names[i] = index.TypeName(t)
	}
	return strings.Join(names, ", ")
}

// unwrapChain lists err followed by every error it wraps, depth first.
func unwrapChain(err error) []error {
	var out []error
	var walk func(error)
	walk = func(e error) {
		if e == nil {
			return
		}
		out = append(out, e)
		switch u := e.(type) {
		case interface{ Unwrap() []error }:
			for _, inner := range u.Unwrap() {
				walk(inner)
			}
		default:
			walk(errors.Unwrap(e))
		}
	}
	walk(err)
	return out
}
