package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Scenario defines a conformance test scenario: a flow of invocations run
// through a real engine, with assertions on the resulting trace and journal.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Manifest is an optional manifest directory or .cue file. Relative
	// paths are resolved against the scenario's base path.
	Manifest string `yaml:"manifest,omitempty"`

	// Setup steps run before the flow and must complete.
	Setup []FlowStep `yaml:"setup,omitempty"`

	// Flow is the main sequence of invocations.
	Flow []FlowStep `yaml:"flow"`

	// Assertions validate the final trace and journal.
	Assertions []Assertion `yaml:"assertions"`
}

// FlowStep invokes one operation. Instances are created per class on first
// use and shared by later steps of the same scenario.
type FlowStep struct {
	// Invoke is "Class.Operation". The class is the bare type name or the
	// fully-qualified one.
	Invoke string `yaml:"invoke"`

	// Args are decoded into the parameters of the overload taking exactly
	// len(Args) arguments.
	Args []yaml.Node `yaml:"args,omitempty"`

	// Expect validates the outcome. If nil, any outcome is accepted.
	Expect *ExpectClause `yaml:"expect,omitempty"`
}

// Target splits Invoke into class and operation.
func (s FlowStep) Target() (class, operation string, err error) {
	i := strings.LastIndexByte(s.Invoke, '.')
	if i <= 0 || i == len(s.Invoke)-1 {
		return "", "", fmt.Errorf("invoke %q: want Class.Operation", s.Invoke)
	}
	return s.Invoke[:i], s.Invoke[i+1:], nil
}

// ExpectClause specifies the expected outcome of a flow step.
type ExpectClause struct {
	// State is the terminal state: completed, failed or rejected.
	State string `yaml:"state"`

	// Value is compared with the outcome value after both are normalized
	// through JSON. Omitted means unchecked.
	Value any `yaml:"value,omitempty"`

	// Error must be a substring of the returned error.
	Error string `yaml:"error,omitempty"`
}

// Assertion validates trace or final state.
type Assertion struct {
	// Type specifies the assertion type:
	// - "trace_contains": Check an action appears in the trace
	// - "trace_order": Check actions start in order
	// - "trace_count": Check an action appears exactly N times
	// - "final_state": Query a journal table and verify expected values
	Type string `yaml:"type"`

	// Action is "Class.Operation" with the bare class name (used by
	// trace_contains and trace_count).
	Action string `yaml:"action,omitempty"`

	// State restricts trace_contains and trace_count to calls that ended in
	// this state.
	State string `yaml:"state,omitempty"`

	// Actions is the expected start order (used by trace_order).
	Actions []string `yaml:"actions,omitempty"`

	// Count is the expected number of occurrences (used by trace_count).
	Count int `yaml:"count,omitempty"`

	// Table is the journal table name (used by final_state).
	Table string `yaml:"table,omitempty"`

	// Where specifies query filters (used by final_state).
	// All fields must match exactly.
	Where map[string]any `yaml:"where,omitempty"`

	// Expect contains expected field values (used by final_state).
	// Subset match - only specified fields are validated.
	Expect map[string]any `yaml:"expect,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertFinalState    = "final_state"
)

var validStates = map[string]bool{
	"completed": true,
	"failed":    true,
	"rejected":  true,
}

// LoadScenario reads and parses a scenario YAML file. The manifest path is
// resolved against the scenario's directory.
func LoadScenario(path string) (*Scenario, error) {
	return LoadScenarioWithBasePath(path, filepath.Dir(path))
}

// LoadScenarioWithBasePath reads and parses a scenario YAML file,
// resolving the manifest path relative to basePath.
//
// Returns an error if the file doesn't exist, is malformed, contains
// unknown fields (typos), or is missing required fields.
func LoadScenarioWithBasePath(path, basePath string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Strict field validation catches typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if scenario.Manifest != "" && !filepath.IsAbs(scenario.Manifest) && basePath != "" {
		scenario.Manifest = filepath.Join(basePath, scenario.Manifest)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}

	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	if s.Manifest != "" {
		if _, err := os.Stat(s.Manifest); os.IsNotExist(err) {
			return fmt.Errorf("manifest not found: %s", s.Manifest)
		}
	}

	for i, step := range s.Setup {
		if _, _, err := step.Target(); err != nil {
			return fmt.Errorf("setup[%d]: %w", i, err)
		}
		if step.Expect != nil {
			return fmt.Errorf("setup[%d]: expect is not allowed; setup steps must complete", i)
		}
	}

	for i, step := range s.Flow {
		if _, _, err := step.Target(); err != nil {
			return fmt.Errorf("flow[%d]: %w", i, err)
		}
		if step.Expect != nil && !validStates[step.Expect.State] {
			return fmt.Errorf("flow[%d].expect: state must be completed, failed or rejected, got %q", i, step.Expect.State)
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}
	if a.State != "" && !validStates[a.State] {
		return fmt.Errorf("assertions[%d]: unknown state %q", index, a.State)
	}

	switch a.Type {
	case AssertTraceContains:
		if a.Action == "" {
			return fmt.Errorf("assertions[%d]: action is required for trace_contains", index)
		}
	case AssertTraceOrder:
		if len(a.Actions) == 0 {
			return fmt.Errorf("assertions[%d]: actions list is required for trace_order", index)
		}
	case AssertTraceCount:
		if a.Action == "" {
			return fmt.Errorf("assertions[%d]: action is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertFinalState:
		if a.Table == "" {
			return fmt.Errorf("assertions[%d]: table is required for final_state", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for final_state", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
