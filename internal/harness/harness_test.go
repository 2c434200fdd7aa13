package harness

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flyxxxxx/prototype-sub001/internal/catalog"
	"github.com/flyxxxxx/prototype-sub001/internal/demo"
	"github.com/flyxxxxx/prototype-sub001/internal/engine"
)

func demoOptions(t *testing.T) []Option {
	t.Helper()
	cat := catalog.New()
	require.NoError(t, demo.Register(cat))
	return []Option{WithCatalog(cat), WithCollaborators(demo.Collaborators)}
}

func loadInline(t *testing.T, content string) *Scenario {
	t.Helper()
	s, err := LoadScenario(writeScenario(t, t.TempDir(), content))
	require.NoError(t, err)
	return s
}

// =============================================================================
// Run
// =============================================================================

func TestRun_RequiresCatalog(t *testing.T) {
	s := loadInline(t, `
name: x
description: "x"
flow: [{invoke: Shop.Checkout}]
assertions: [{type: trace_contains, action: Shop.Checkout}]
`)
	_, err := Run(s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no catalog configured")
}

func TestRun_Checkout(t *testing.T) {
	s := loadInline(t, `
name: checkout
description: "Checkout through the harness"
flow:
  - invoke: Shop.Checkout
    args: [{id: o1, sku: widget, qty: 1, amount: 10}]
    expect: {state: completed, value: placed o1}
assertions:
  - {type: trace_contains, action: Shop.Confirm, state: completed}
`)
	result, err := Run(s, demoOptions(t)...)
	require.NoError(t, err)
	assert.True(t, result.Pass, result.Errors)

	require.Len(t, result.Trace, 1)
	root := result.Trace[0]
	assert.Equal(t, "Shop.Checkout", root.Action)
	assert.Equal(t, "inv-1", root.id)
	assert.Equal(t, []string{"async.completed Confirm", "async.submitted Confirm"}, root.Events)

	var actions []string
	for _, c := range root.Calls {
		actions = append(actions, c.Action)
		assert.Equal(t, "inv-1", c.parent)
	}
	assert.Equal(t, []string{"Shop.Charge", "Shop.Confirm", "Shop.Reserve"}, actions)
}

func TestRun_ExpectationMismatch(t *testing.T) {
	s := loadInline(t, `
name: mismatch
description: "Every expectation is wrong"
flow:
  - invoke: Shop.Checkout
    args: [{id: o1, sku: widget, qty: 1, amount: 10}]
    expect: {state: failed, value: placed o2, error: declined}
assertions:
  - {type: trace_count, action: Shop.Checkout, count: 2}
`)
	result, err := Run(s, demoOptions(t)...)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 4)
	assert.Contains(t, result.Errors[0], "flow[0] Shop.Checkout: expected state failed, got completed")
	assert.Contains(t, result.Errors[1], `expected error containing "declined", got none`)
	assert.Contains(t, result.Errors[2], "expected value placed o2, got placed o1")
	assert.Contains(t, result.Errors[3], "2 occurrences of Shop.Checkout")
}

func TestRun_Decision(t *testing.T) {
	s := loadInline(t, `
name: classify
description: "A decision returns the chosen branch's value"
flow:
  - invoke: Shop.Classify
    args: [{id: o1, amount: 10}]
    expect: {state: completed, value: silver lane o1}
assertions:
  - {type: trace_contains, action: Shop.Silver}
`)
	result, err := Run(s, demoOptions(t)...)
	require.NoError(t, err)
	assert.True(t, result.Pass, result.Errors)
}

func TestRun_SetupMustComplete(t *testing.T) {
	s := loadInline(t, `
name: setup
description: "A declined setup step stops the run"
setup:
  - invoke: Shop.Checkout
    args: [{id: o1, sku: widget, qty: 1, amount: 5000}]
flow:
  - invoke: Shop.Route
    args: [{id: r1}]
assertions:
  - {type: trace_contains, action: Shop.Route}
`)
	_, err := Run(s, demoOptions(t)...)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "setup[0]: Shop.Checkout failed")
}

func TestRun_UnknownTargets(t *testing.T) {
	tests := []struct {
		name    string
		invoke  string
		args    string
		wantErr string
	}{
		{"unknown class", "Ghost.Run", "[]", "unknown class Ghost"},
		{"argument count", "Shop.Checkout", "[a, b]", "no overload takes 2 arguments"},
		{"argument type", "Shop.Route", "[[1, 2]]", "arguments do not fit"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := loadInline(t, `
name: x
description: "x"
flow: [{invoke: `+tt.invoke+`, args: `+tt.args+`}]
assertions: [{type: trace_contains, action: Shop.Checkout}]
`)
			_, err := Run(s, demoOptions(t)...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "flow[0]")
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestRun_FreshStatePerRun(t *testing.T) {
	s, err := LoadScenario(scenariosDir + "/checkout_backorder.yaml")
	require.NoError(t, err)
	opts := demoOptions(t)

	for i := 0; i < 2; i++ {
		result, err := Run(s, opts...)
		require.NoError(t, err)
		assert.True(t, result.Pass, "run %d: %v", i, result.Errors)
	}
}

// =============================================================================
// Trace
// =============================================================================

func TestBuildTrace(t *testing.T) {
	const shop = "example.com/demo.Shop"
	events := []engine.Event{
		{Seq: 1, Type: engine.EventInvocationStarted, InvocationID: "inv-1", Class: shop, Operation: "Ship", State: engine.StateCreated},
		{Seq: 2, Type: engine.EventInvocationStarted, InvocationID: "inv-3", ParentID: "inv-1", Class: shop, Operation: "Pack", State: engine.StateCreated},
		{Seq: 3, Type: engine.EventInvocationStarted, InvocationID: "inv-2", ParentID: "inv-1", Class: shop, Operation: "Label", State: engine.StateCreated},
		{Seq: 4, Type: engine.EventInvocationFailed, InvocationID: "inv-2", ParentID: "inv-1", Class: shop, Operation: "Label", State: engine.StateFailed, Error: "missing sku"},
		{Seq: 5, Type: engine.EventForkBranchFailed, InvocationID: "inv-1", Class: shop, Operation: "Ship", Target: "Label"},
		{Seq: 6, Type: engine.EventInvocationCompleted, InvocationID: "inv-3", ParentID: "inv-1", Class: shop, Operation: "Pack", State: engine.StateCompleted},
		{Seq: 7, Type: engine.EventInvocationFailed, InvocationID: "inv-1", Class: shop, Operation: "Ship", State: engine.StateFailed, Error: "missing sku"},
	}
	roots := []root{
		{action: "Shop.Ship", outcome: &engine.Outcome{ID: "inv-1", State: engine.StateFailed}},
		{action: "Shop.Checkout", outcome: &engine.Outcome{State: engine.StateFailed, Err: errors.New("no plan")}},
	}

	trace := buildTrace(events, roots)
	require.Len(t, trace, 2)

	ship := trace[0]
	assert.Equal(t, "Shop.Ship", ship.Action)
	assert.Equal(t, "failed", ship.State)
	assert.Equal(t, []string{"fork.branch_failed Label"}, ship.Events)
	require.Len(t, ship.Calls, 2)
	assert.Equal(t, "Shop.Label", ship.Calls[0].Action)
	assert.Equal(t, "missing sku", ship.Calls[0].Error)
	assert.Equal(t, "Shop.Pack", ship.Calls[1].Action)
	assert.Equal(t, "completed", ship.Calls[1].State)

	assert.Equal(t, &Call{Action: "Shop.Checkout", State: "failed", Error: "no plan"}, trace[1])

	r := &Result{Trace: trace}
	var flat []string
	for _, c := range r.Flatten() {
		flat = append(flat, c.Action)
	}
	assert.Equal(t, []string{"Shop.Checkout", "Shop.Ship", "Shop.Pack", "Shop.Label"}, flat)
}

func TestCall_String(t *testing.T) {
	c := &Call{
		Action: "Shop.Ship",
		State:  "failed",
		Error:  "missing sku",
		Calls:  []*Call{{Action: "Shop.Label", State: "failed"}},
	}
	assert.Equal(t, "Shop.Ship failed: missing sku\n  Shop.Label failed\n", c.String())
}

func TestShortClass(t *testing.T) {
	assert.Equal(t, "Shop", shortClass("github.com/acme/demo.Shop"))
	assert.Equal(t, "Shop", shortClass("Shop"))
}
