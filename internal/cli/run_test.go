package cli

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flyxxxxx/prototype-sub001/internal/engine"
)

const checkoutArg = `{"id":"o1","sku":"widget","qty":1,"amount":10}`

func runRunCmd(t *testing.T, opts *RootOptions, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewRunCommand(opts)
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

type runResponse struct {
	Status string    `json:"status"`
	Data   RunResult `json:"data"`
	Error  *CLIError `json:"error"`
}

func decodeRunResponse(t *testing.T, out string) runResponse {
	t.Helper()
	var resp runResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	return resp
}

// =============================================================================
// Outcomes
// =============================================================================

func TestRun_Completed(t *testing.T) {
	out, err := runRunCmd(t, &RootOptions{Format: "text"}, demoManifest, "Shop", "Checkout", checkoutArg)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ Shop.Checkout completed")
	assert.Contains(t, out, "value: placed o1")
}

func TestRun_LowercaseOperationName(t *testing.T) {
	out, err := runRunCmd(t, &RootOptions{Format: "text"}, demoManifest, "Shop", "checkout", checkoutArg)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ Shop.Checkout completed")
	assert.Contains(t, out, "value: placed o1")
}

func TestRun_Failed(t *testing.T) {
	out, err := runRunCmd(t, &RootOptions{Format: "text"}, demoManifest,
		"Shop", "Checkout", `{"id":"o2","sku":"widget","qty":1,"amount":5000}`)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ Shop.Checkout failed")
	assert.Contains(t, out, "error: checkout: payment of 5000 declined")
	assert.NotContains(t, out, "value:")
}

func TestRun_JSONOutput(t *testing.T) {
	out, err := runRunCmd(t, &RootOptions{Format: "json"}, demoManifest, "Shop", "Checkout", checkoutArg)
	require.NoError(t, err)

	resp := decodeRunResponse(t, out)
	assert.Equal(t, "ok", resp.Status)
	assert.NotEmpty(t, resp.Data.ID)
	assert.True(t, strings.HasSuffix(resp.Data.Class, ".Shop"))
	assert.Equal(t, "Checkout", resp.Data.Operation)
	assert.Equal(t, engine.StateCompleted, resp.Data.State)
	assert.Equal(t, "placed o1", resp.Data.Value)
	assert.Nil(t, resp.Error)
}

func TestRun_JSONFailure(t *testing.T) {
	out, err := runRunCmd(t, &RootOptions{Format: "json"}, demoManifest,
		"Newsletter", "Subscribe", `"bob"`)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	resp := decodeRunResponse(t, out)
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeInvoked, resp.Error.Code)
	assert.Equal(t, "invalid email bob", resp.Error.Message)
	assert.Equal(t, engine.StateFailed, resp.Data.State)
}

func TestRun_ManifestAdvisorApplies(t *testing.T) {
	out, err := runRunCmd(t, &RootOptions{Format: "text"}, demoManifest, "Shop", "Route", `{"id":"r1","rush":true}`)
	require.NoError(t, err)
	assert.Contains(t, out, "value: EXPRESS R1")

	out, err = runRunCmd(t, &RootOptions{Format: "text"}, demoManifest, "Shop", "Route", `{"id":"r2"}`)
	require.NoError(t, err)
	assert.Contains(t, out, "value: standard r2")
}

func TestRun_BareStringArgument(t *testing.T) {
	out, err := runRunCmd(t, &RootOptions{Format: "text"}, demoManifest, "Newsletter", "Subscribe", "ada@example.com")
	require.NoError(t, err)
	assert.Contains(t, out, "value: subscribed ada@example.com")
}

func TestRun_AdvisorOptionsChecked(t *testing.T) {
	path := writeManifest(t, `package manifest

advisors: [{kind: "limit", name: "route-limit", match: "Shop.Route", options: {rate: 0.001, burst: 0}}]
`)
	out, err := runRunCmd(t, &RootOptions{Format: "text"}, path, "Shop", "Route", `{"id":"r1"}`)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "route-limit: burst must be at least 1")
	assert.NotContains(t, out, "Shop.Route")
}

// =============================================================================
// Command errors
// =============================================================================

func TestRun_DispatchErrors(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{"unknown class", []string{"Ghost", "Run"}, "unknown class Ghost"},
		{"argument count", []string{"Shop", "Checkout", "{}", "{}"}, "no overload takes 2 arguments"},
		{"unknown field", []string{"Shop", "Route", `{"id":"r1","speed":9}`}, "arguments do not fit"},
		{"unknown operation", []string{"Shop", "Teleport", "{}"}, "no overload takes 1 arguments"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := runRunCmd(t, &RootOptions{Format: "text"}, append([]string{demoManifest}, tt.args...)...)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
			assert.Contains(t, out, "Error ["+ErrCodeInvoke+"]")
			assert.Contains(t, out, tt.wantErr)
		})
	}
}

func TestRun_InvalidManifest(t *testing.T) {
	out, err := runRunCmd(t, &RootOptions{Format: "text"}, invalidManifest, "Shop", "Route", `{"id":"r1"}`)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ Validation failed")
}

func TestRun_RequiresOperation(t *testing.T) {
	_, err := runRunCmd(t, &RootOptions{Format: "text"}, demoManifest, "Shop")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires at least 3 arg(s)")
}

// =============================================================================
// Shared resources
// =============================================================================

func TestRun_Metrics(t *testing.T) {
	out, err := runRunCmd(t, &RootOptions{Format: "json"}, demoManifest, "Shop", "Checkout", checkoutArg, "--metrics")
	require.NoError(t, err)

	resp := decodeRunResponse(t, out)
	counts := make(map[string]float64)
	for _, s := range resp.Data.Metrics {
		if s.Name == "prototype_events_total" {
			counts[s.Labels["type"]] = s.Value
		}
	}
	// Checkout, Reserve, Charge and the async Confirm.
	assert.Equal(t, float64(4), counts[string(engine.EventInvocationStarted)])
	assert.Equal(t, float64(4), counts[string(engine.EventInvocationCompleted)])
	assert.Equal(t, float64(1), counts[string(engine.EventAsyncSubmitted)])
}

func TestRun_MetricsText(t *testing.T) {
	out, err := runRunCmd(t, &RootOptions{Format: "text"}, demoManifest, "Shop", "Checkout", checkoutArg, "--metrics")
	require.NoError(t, err)
	assert.Contains(t, out, "=== Metrics ===")
	assert.Contains(t, out, `prototype_events_total{type="invocation.started"} 4`)
}

func TestRun_RedisCache(t *testing.T) {
	mr := miniredis.RunT(t)
	path := writeManifest(t, `package manifest

advisors: [{kind: "cache", match: "Shop.Express", options: {backend: "redis", prefix: "cli:"}}]
`)

	for i := 0; i < 2; i++ {
		out, err := runRunCmd(t, &RootOptions{Format: "text"}, path,
			"Shop", "Route", `{"id":"r1","rush":true}`, "--redis", mr.Addr())
		require.NoError(t, err)
		assert.Contains(t, out, "value: express r1")
	}

	keys := mr.Keys()
	require.Len(t, keys, 1)
	assert.True(t, strings.HasPrefix(keys[0], "cli:"), keys[0])
}

func TestRun_RedisBackendNeedsAddress(t *testing.T) {
	path := writeManifest(t, `package manifest

advisors: [{kind: "cache", options: {backend: "redis"}}]
`)
	out, err := runRunCmd(t, &RootOptions{Format: "text"}, path, "Shop", "Route", `{"id":"r1"}`)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "requires a redis client")
}

func TestDecodeArg(t *testing.T) {
	var s string
	require.NoError(t, decodeArg(`"quoted"`, &s))
	assert.Equal(t, "quoted", s)
	require.NoError(t, decodeArg("bare", &s))
	assert.Equal(t, "bare", s)

	var n int
	require.NoError(t, decodeArg("42", &n))
	assert.Equal(t, 42, n)
	assert.Error(t, decodeArg("many", &n))
}

func TestShortName(t *testing.T) {
	assert.Equal(t, "Shop", shortName("github.com/acme/demo.Shop"))
	assert.Equal(t, "Shop", shortName("Shop"))
}
