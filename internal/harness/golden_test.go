package harness

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestScenarios runs every scenario under testdata/scenarios and compares
// its trace with testdata/golden/<name>.golden.
//
// Regenerate with:
//
//	go test ./internal/harness -run TestScenarios -update
func TestScenarios(t *testing.T) {
	paths, err := FindScenarios(scenariosDir, "")
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, path := range paths {
		s, err := LoadScenario(path)
		require.NoError(t, err, path)

		t.Run(s.Name, func(t *testing.T) {
			result, err := RunWithGolden(t, s, demoOptions(t)...)
			require.NoError(t, err)
			assert.True(t, result.Pass, "%s: %v", filepath.Base(path), result.Errors)
		})
	}
}

func TestSnapshot_Deterministic(t *testing.T) {
	s, err := LoadScenario(filepath.Join(scenariosDir, "shop_routing.yaml"))
	require.NoError(t, err)

	var first []byte
	for i := 0; i < 3; i++ {
		result, err := Run(s, demoOptions(t)...)
		require.NoError(t, err)
		snap, err := Snapshot(s.Name, result)
		require.NoError(t, err)
		if first == nil {
			first = snap
			continue
		}
		assert.Equal(t, string(first), string(snap), "run %d", i)
	}
}

func TestSnapshot_Canonical(t *testing.T) {
	result := &Result{Trace: []*Call{{
		Action: "Shop.Ship",
		State:  "failed",
		Error:  "missing sku",
		Events: []string{"fork.branch_failed Label"},
		Calls:  []*Call{{Action: "Shop.Label", State: "failed", Error: "missing sku"}},
	}}}

	snap, err := Snapshot("ship", result)
	require.NoError(t, err)
	assert.Equal(t,
		`{"scenario_name":"ship","trace":[{"action":"Shop.Ship","calls":[{"action":"Shop.Label","error":"missing sku","state":"failed"}],"error":"missing sku","events":["fork.branch_failed Label"],"state":"failed"}]}`,
		string(snap))
}

func TestAssertGolden_FromResult(t *testing.T) {
	s, err := LoadScenario(filepath.Join(scenariosDir, "checkout_success.yaml"))
	require.NoError(t, err)

	result, err := Run(s, demoOptions(t)...)
	require.NoError(t, err)
	require.NoError(t, AssertGolden(t, s.Name, result))
}
