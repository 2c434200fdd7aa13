package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/flyxxxxx/prototype-sub001/internal/ir"
)

// TraceSnapshot captures the complete trace for a scenario execution.
// All fields use canonical JSON serialization for deterministic comparison.
type TraceSnapshot struct {
	ScenarioName string  `json:"scenario_name"`
	Trace        []*Call `json:"trace"`
}

// toCanonicalMap converts a TraceSnapshot to a map[string]any for canonical
// JSON serialization, which only accepts plain maps, slices and scalars.
func (s *TraceSnapshot) toCanonicalMap() map[string]any {
	return map[string]any{
		"scenario_name": s.ScenarioName,
		"trace":         callList(s.Trace),
	}
}

func callList(cs []*Call) []any {
	out := make([]any, len(cs))
	for i, c := range cs {
		m := map[string]any{
			"action": c.Action,
			"state":  c.State,
		}
		if c.Error != "" {
			m["error"] = c.Error
		}
		if len(c.Events) > 0 {
			events := make([]any, len(c.Events))
			for j, e := range c.Events {
				events[j] = e
			}
			m["events"] = events
		}
		if len(c.Calls) > 0 {
			m["calls"] = callList(c.Calls)
		}
		out[i] = m
	}
	return out
}

// Snapshot renders the canonical JSON of a result's trace.
func Snapshot(scenarioName string, result *Result) ([]byte, error) {
	snapshot := TraceSnapshot{ScenarioName: scenarioName, Trace: result.Trace}
	return ir.MarshalCanonical(snapshot.toCanonicalMap())
}

// RunWithGolden executes a scenario and compares the trace against a golden file.
// The golden file is stored in testdata/golden/{scenario.Name}.golden
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails.
// Test failure (via goldie) occurs if trace doesn't match golden file.
func RunWithGolden(t *testing.T, scenario *Scenario, opts ...Option) (*Result, error) {
	t.Helper()

	result, err := Run(scenario, opts...)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares the given result's trace against a golden file
// without re-running the scenario.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	traceJSON, err := Snapshot(scenarioName, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, traceJSON)

	return nil
}
