package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const scenariosDir = "../../testdata/scenarios"

func writeScenario(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// =============================================================================
// Loading
// =============================================================================

func TestLoadScenario_ValidFile(t *testing.T) {
	s, err := LoadScenario(filepath.Join(scenariosDir, "checkout_backorder.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "checkout_backorder", s.Name)
	require.Len(t, s.Setup, 1)
	require.Len(t, s.Flow, 1)
	assert.Equal(t, "Shop.Checkout", s.Flow[0].Invoke)
	require.Len(t, s.Flow[0].Args, 1)
	require.NotNil(t, s.Flow[0].Expect)
	assert.Equal(t, "completed", s.Flow[0].Expect.State)
	assert.Equal(t, "backordered gadget", s.Flow[0].Expect.Value)
	assert.Len(t, s.Assertions, 4)
}

func TestLoadScenario_DecodesArguments(t *testing.T) {
	s, err := LoadScenario(filepath.Join(scenariosDir, "checkout_success.yaml"))
	require.NoError(t, err)

	var order struct {
		ID  string `yaml:"id"`
		Qty int    `yaml:"qty"`
	}
	require.NoError(t, s.Flow[0].Args[0].Decode(&order))
	assert.Equal(t, "o1", order.ID)
	assert.Equal(t, 3, order.Qty)
}

func TestLoadScenario_ManifestRelativeToScenario(t *testing.T) {
	s, err := LoadScenario(filepath.Join(scenariosDir, "route_rate_limited.yaml"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(scenariosDir, "manifests", "limited.cue"), s.Manifest)
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario("nonexistent.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestLoadScenario_UnknownField(t *testing.T) {
	path := writeScenario(t, t.TempDir(), `
name: typo
description: "Misspelled key"
flow:
  - invoke: Shop.Checkout
assertion:
  - type: trace_contains
    action: Shop.Checkout
`)
	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestLoadScenario_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name: "missing name",
			content: `
description: "x"
flow: [{invoke: Shop.Checkout}]
assertions: [{type: trace_contains, action: Shop.Checkout}]
`,
			wantErr: "name is required",
		},
		{
			name: "missing description",
			content: `
name: x
flow: [{invoke: Shop.Checkout}]
assertions: [{type: trace_contains, action: Shop.Checkout}]
`,
			wantErr: "description is required",
		},
		{
			name: "missing flow",
			content: `
name: x
description: "x"
assertions: [{type: trace_contains, action: Shop.Checkout}]
`,
			wantErr: "flow list is required",
		},
		{
			name: "missing assertions",
			content: `
name: x
description: "x"
flow: [{invoke: Shop.Checkout}]
`,
			wantErr: "assertions list is required",
		},
		{
			name: "missing manifest",
			content: `
name: x
description: "x"
manifest: nowhere.cue
flow: [{invoke: Shop.Checkout}]
assertions: [{type: trace_contains, action: Shop.Checkout}]
`,
			wantErr: "manifest not found",
		},
		{
			name: "bad invoke",
			content: `
name: x
description: "x"
flow: [{invoke: Checkout}]
assertions: [{type: trace_contains, action: Shop.Checkout}]
`,
			wantErr: "want Class.Operation",
		},
		{
			name: "setup expect",
			content: `
name: x
description: "x"
setup: [{invoke: Shop.Checkout, expect: {state: completed}}]
flow: [{invoke: Shop.Checkout}]
assertions: [{type: trace_contains, action: Shop.Checkout}]
`,
			wantErr: "expect is not allowed",
		},
		{
			name: "unknown expect state",
			content: `
name: x
description: "x"
flow: [{invoke: Shop.Checkout, expect: {state: Success}}]
assertions: [{type: trace_contains, action: Shop.Checkout}]
`,
			wantErr: `got "Success"`,
		},
		{
			name: "unknown assertion type",
			content: `
name: x
description: "x"
flow: [{invoke: Shop.Checkout}]
assertions: [{type: trace_magic}]
`,
			wantErr: `unknown assertion type "trace_magic"`,
		},
		{
			name: "trace_order without actions",
			content: `
name: x
description: "x"
flow: [{invoke: Shop.Checkout}]
assertions: [{type: trace_order}]
`,
			wantErr: "actions list is required",
		},
		{
			name: "final_state without expect",
			content: `
name: x
description: "x"
flow: [{invoke: Shop.Checkout}]
assertions: [{type: final_state, table: invocations}]
`,
			wantErr: "expect is required",
		},
		{
			name: "unknown assertion state",
			content: `
name: x
description: "x"
flow: [{invoke: Shop.Checkout}]
assertions: [{type: trace_contains, action: Shop.Checkout, state: done}]
`,
			wantErr: `unknown state "done"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeScenario(t, t.TempDir(), tt.content)
			_, err := LoadScenario(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "invalid scenario")
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestFlowStep_Target(t *testing.T) {
	class, op, err := FlowStep{Invoke: "Shop.Checkout"}.Target()
	require.NoError(t, err)
	assert.Equal(t, "Shop", class)
	assert.Equal(t, "Checkout", op)

	class, op, err = FlowStep{Invoke: "example.com/shop.Shop.Checkout"}.Target()
	require.NoError(t, err)
	assert.Equal(t, "example.com/shop.Shop", class)
	assert.Equal(t, "Checkout", op)

	for _, bad := range []string{"Checkout", ".Checkout", "Shop."} {
		_, _, err := FlowStep{Invoke: bad}.Target()
		assert.Error(t, err, bad)
	}
}
