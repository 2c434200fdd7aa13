package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// FindScenarios
// =============================================================================

func TestFindScenarios(t *testing.T) {
	paths, err := FindScenarios(scenariosDir, "")
	require.NoError(t, err)

	var names []string
	for _, p := range paths {
		names = append(names, filepath.Base(p))
	}
	assert.ElementsMatch(t, []string{
		"checkout_backorder.yaml",
		"checkout_declined.yaml",
		"checkout_success.yaml",
		"newsletter.yaml",
		"route_rate_limited.yaml",
		"shop_routing.yaml",
	}, names)
}

func TestFindScenarios_Filter(t *testing.T) {
	paths, err := FindScenarios(scenariosDir, "checkout_*")
	require.NoError(t, err)
	assert.Len(t, paths, 3)

	paths, err = FindScenarios(scenariosDir, "{newsletter,shop_*}")
	require.NoError(t, err)
	assert.Len(t, paths, 2)

	_, err = FindScenarios(scenariosDir, "[")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid filter pattern")
}

func TestGoldenPath(t *testing.T) {
	assert.Equal(t, filepath.Join("scenarios", "golden", "checkout.golden"),
		GoldenPath(filepath.Join("scenarios", "checkout.yaml"), "checkout"))
}

// =============================================================================
// RunSuite
// =============================================================================

func copyScenario(t *testing.T, dir, name string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(scenariosDir, name))
	require.NoError(t, err)
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestRunSuite(t *testing.T) {
	dir := t.TempDir()
	good := copyScenario(t, dir, "checkout_success.yaml")
	broken := filepath.Join(dir, "broken.yaml")
	require.NoError(t, os.WriteFile(broken, []byte("name: broken\n"), 0o644))

	suite := RunSuite([]string{good, broken}, GoldenOff, demoOptions(t)...)
	assert.Equal(t, 2, suite.Total)
	assert.Equal(t, 1, suite.Passed)
	assert.Equal(t, 1, suite.Failed)

	require.Len(t, suite.Scenarios, 2)
	assert.Equal(t, "checkout_success", suite.Scenarios[0].Name)
	assert.True(t, suite.Scenarios[0].Pass)
	assert.NotNil(t, suite.Scenarios[0].Result)

	assert.Equal(t, "broken.yaml", suite.Scenarios[1].Name)
	require.Len(t, suite.Scenarios[1].Errors, 1)
	assert.Contains(t, suite.Scenarios[1].Errors[0], "failed to load scenario")
}

func TestRunSuite_GoldenUpdateThenCompare(t *testing.T) {
	dir := t.TempDir()
	path := copyScenario(t, dir, "checkout_declined.yaml")
	opts := demoOptions(t)

	// Without a golden file there is nothing to compare with.
	suite := RunSuite([]string{path}, GoldenCompare, opts...)
	assert.Equal(t, 1, suite.Passed)

	suite = RunSuite([]string{path}, GoldenUpdate, opts...)
	require.Equal(t, 1, suite.Passed, suite.Scenarios[0].Errors)

	written, err := os.ReadFile(GoldenPath(path, "checkout_declined"))
	require.NoError(t, err)
	expected, err := os.ReadFile(filepath.Join("testdata", "golden", "checkout_declined.golden"))
	require.NoError(t, err)
	assert.Equal(t, string(expected), string(written))

	suite = RunSuite([]string{path}, GoldenCompare, opts...)
	assert.Equal(t, 1, suite.Passed, suite.Scenarios[0].Errors)

	require.NoError(t, os.WriteFile(GoldenPath(path, "checkout_declined"), []byte(`{"trace":[]}`), 0o644))
	suite = RunSuite([]string{path}, GoldenCompare, opts...)
	assert.Equal(t, 1, suite.Failed)
	require.NotEmpty(t, suite.Scenarios[0].Errors)
	assert.Contains(t, suite.Scenarios[0].Errors[len(suite.Scenarios[0].Errors)-1], "trace differs from golden file")
}
