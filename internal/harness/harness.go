package harness

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"reflect"
	"strings"

	"golang.org/x/text/language"

	"github.com/flyxxxxx/prototype-sub001/internal/bootstrap"
	"github.com/flyxxxxx/prototype-sub001/internal/catalog"
	"github.com/flyxxxxx/prototype-sub001/internal/compiler"
	"github.com/flyxxxxx/prototype-sub001/internal/engine"
	"github.com/flyxxxxx/prototype-sub001/internal/testutil"
)

// Option configures a scenario run.
type Option func(*Harness)

// WithCatalog sets the classes scenarios may invoke. Required.
func WithCatalog(c *catalog.Catalog) Option {
	return func(h *Harness) {
		h.catalog = c
	}
}

// WithCollaborators sets the factory for the shared collaborators. It is
// called once per scenario so runs never share state.
func WithCollaborators(fn func() []any) Option {
	return func(h *Harness) {
		h.collaborators = fn
	}
}

// WithLogger sets the engine logger. Logs are discarded by default.
func WithLogger(l *slog.Logger) Option {
	return func(h *Harness) {
		h.logger = l
	}
}

// Harness runs one scenario against a freshly built engine.
type Harness struct {
	catalog       *catalog.Catalog
	collaborators func() []any
	logger        *slog.Logger

	runtime   *bootstrap.Runtime
	instances map[string]any
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs in a fresh in-memory journal with sequential
// invocation IDs, and every step waits for its async work before the next
// one starts.
//
// Execution flow:
// 1. Load the manifest and build the engine
// 2. Execute setup steps; each must complete
// 3. Execute flow steps with expect validation
// 4. Close the engine, build the trace and evaluate assertions
//
// The error is non-nil only when the scenario could not be executed.
func Run(scenario *Scenario, opts ...Option) (*Result, error) {
	h := &Harness{
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		instances: make(map[string]any),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.catalog == nil {
		return nil, fmt.Errorf("harness: no catalog configured")
	}

	st, err := testutil.MemoryJournal()
	if err != nil {
		return nil, err
	}
	defer st.Close()

	var manifest *compiler.Manifest
	if scenario.Manifest != "" {
		manifest, err = bootstrap.LoadManifest(scenario.Manifest, language.Und)
		if err != nil {
			return nil, fmt.Errorf("load manifest: %w", err)
		}
	}
	var collabs []any
	if h.collaborators != nil {
		collabs = h.collaborators()
	}

	ctx := context.Background()
	h.runtime, err = bootstrap.Build(ctx, bootstrap.Config{
		Catalog:       h.catalog,
		Manifest:      manifest,
		Collaborators: collabs,
		Logger:        h.logger,
		IDs:           engine.NewSequenceGenerator("inv"),
		Journal:       st,
	})
	if err != nil {
		return nil, fmt.Errorf("build engine: %w", err)
	}
	rec := &testutil.EventRecorder{}
	sub := h.runtime.Engine.Bus().Subscribe("harness", rec.Add)

	result := NewResult()
	roots, err := h.execute(ctx, scenario, result)
	closeErr := h.runtime.Close(ctx)
	sub.Close()
	if err != nil {
		return nil, err
	}
	if closeErr != nil {
		return nil, fmt.Errorf("close engine: %w", closeErr)
	}

	result.Trace = buildTrace(rec.Events(), roots)

	actx := &AssertionContext{Store: st, Ctx: ctx}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}
	return result, nil
}

// root is the outcome of one step, kept to order the trace.
type root struct {
	action  string
	outcome *engine.Outcome
}

func (h *Harness) execute(ctx context.Context, scenario *Scenario, result *Result) ([]root, error) {
	var roots []root

	for i, step := range scenario.Setup {
		out, err := h.invoke(ctx, step)
		if err != nil {
			return nil, fmt.Errorf("setup[%d]: %w", i, err)
		}
		roots = append(roots, root{action: step.Invoke, outcome: out})
		if out.State != engine.StateCompleted {
			return nil, fmt.Errorf("setup[%d]: %s %s: %v", i, step.Invoke, out.State, out.Err)
		}
	}

	for i, step := range scenario.Flow {
		out, err := h.invoke(ctx, step)
		if err != nil {
			return nil, fmt.Errorf("flow[%d]: %w", i, err)
		}
		roots = append(roots, root{action: step.Invoke, outcome: out})
		if step.Expect != nil {
			for _, msg := range checkExpect(step.Expect, out) {
				result.AddError(fmt.Sprintf("flow[%d] %s: %s", i, step.Invoke, msg))
			}
		}
	}
	return roots, nil
}

// invoke runs one step and waits for the async work it started.
func (h *Harness) invoke(ctx context.Context, step FlowStep) (*engine.Outcome, error) {
	class, op, err := step.Target()
	if err != nil {
		return nil, err
	}
	instance, ok := h.instances[class]
	if !ok {
		instance, err = h.runtime.Instance(class)
		if err != nil {
			return nil, err
		}
		h.instances[class] = instance
	}

	out, err := h.runtime.Invoke(ctx, instance, op, len(step.Args), func(i int, ptr any) error {
		return step.Args[i].Decode(ptr)
	})
	if out == nil {
		return nil, err
	}
	h.runtime.Engine.Wait()
	return out, nil
}

// checkExpect compares an outcome with the expected one.
func checkExpect(want *ExpectClause, out *engine.Outcome) []string {
	var errs []string
	if string(out.State) != want.State {
		msg := fmt.Sprintf("expected state %s, got %s", want.State, out.State)
		if out.Err != nil {
			msg += fmt.Sprintf(" (%v)", out.Err)
		}
		errs = append(errs, msg)
	}
	if want.Error != "" {
		switch {
		case out.Err == nil:
			errs = append(errs, fmt.Sprintf("expected error containing %q, got none", want.Error))
		case !strings.Contains(out.Err.Error(), want.Error):
			errs = append(errs, fmt.Sprintf("expected error containing %q, got %q", want.Error, out.Err.Error()))
		}
	}
	if want.Value != nil {
		expected, err1 := normalize(want.Value)
		actual, err2 := normalize(out.Value)
		switch {
		case err1 != nil:
			errs = append(errs, fmt.Sprintf("expected value: %v", err1))
		case err2 != nil:
			errs = append(errs, fmt.Sprintf("outcome value: %v", err2))
		case !reflect.DeepEqual(expected, actual):
			errs = append(errs, fmt.Sprintf("expected value %v, got %v", expected, actual))
		}
	}
	return errs
}

// normalize converts v to its JSON data model so YAML expectations compare
// equal to typed results.
func normalize(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// buildTrace assembles the call tree from the recorded events. Roots follow
// step order; a step that never dispatched gets a call built from its
// outcome.
func buildTrace(events []engine.Event, roots []root) []*Call {
	calls := make(map[string]*Call)
	var order []*Call
	get := func(e engine.Event) *Call {
		c, ok := calls[e.InvocationID]
		if !ok {
			c = &Call{
				Action: shortClass(e.Class) + "." + e.Operation,
				id:     e.InvocationID,
				parent: e.ParentID,
				seq:    e.Seq,
			}
			calls[e.InvocationID] = c
			order = append(order, c)
		}
		return c
	}

	for _, e := range events {
		c := get(e)
		switch e.Type {
		case engine.EventInvocationStarted:
			c.State = string(e.State)
		case engine.EventInvocationCompleted, engine.EventInvocationFailed, engine.EventInvocationRejected:
			c.State = string(e.State)
			c.Error = e.Error
		default:
			c.Events = append(c.Events, strings.TrimSpace(string(e.Type)+" "+e.Target))
		}
	}

	for _, c := range order {
		if c.parent == "" {
			continue
		}
		if p, ok := calls[c.parent]; ok {
			p.Calls = append(p.Calls, c)
		}
	}

	trace := make([]*Call, 0, len(roots))
	for _, r := range roots {
		c, ok := calls[r.outcome.ID]
		if !ok || r.outcome.ID == "" {
			c = &Call{Action: r.action, State: string(r.outcome.State)}
			if r.outcome.Err != nil {
				c.Error = r.outcome.Err.Error()
			}
		}
		trace = append(trace, c)
	}
	for _, c := range trace {
		sortCalls([]*Call{c})
	}
	return trace
}

// shortClass cuts the package path from a qualified class name.
func shortClass(name string) string {
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		return name[i+1:]
	}
	return name
}
