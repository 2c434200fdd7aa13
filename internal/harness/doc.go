// Package harness runs conformance scenarios against a real engine.
//
// A scenario names an optional manifest, a flow of invocations and
// assertions over the resulting call trace and journal.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	manifest: manifests/limited.cue
//	setup:
//	  - invoke: Shop.Checkout
//	    args:
//	      - {id: o1, sku: gadget, qty: 2}
//	flow:
//	  - invoke: Shop.Checkout
//	    args:
//	      - {id: o2, sku: gadget, qty: 1}
//	    expect:
//	      state: completed
//	      value: backordered gadget
//	assertions:
//	  - type: trace_contains
//	    action: Shop.Reserve
//	    state: failed
//	  - type: final_state
//	    table: invocations
//	    where: { id: inv-6 }
//	    expect: { state: failed }
//
// # Assertion Types
//
//   - trace_contains: an action appears in the trace, optionally in a state
//   - trace_order: actions started in the given order
//   - trace_count: an action appears exactly N times
//   - final_state: a journal row matches the expected values
//
// # Deterministic Traces
//
// Every run gets a fresh in-memory journal and sequential invocation IDs
// (inv-1, inv-2, ...), and each step waits for the async work it started.
// Fork branches and async targets still interleave freely, so the trace is a
// tree: children are ordered by action and events are sorted. The canonical
// JSON of that tree is what golden files hold.
//
// # Usage
//
//	scenario, err := harness.LoadScenario("testdata/scenarios/checkout_success.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result, err := harness.Run(scenario,
//	    harness.WithCatalog(cat),
//	    harness.WithCollaborators(demo.Collaborators),
//	)
package harness
