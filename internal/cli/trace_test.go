package cli

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flyxxxxx/prototype-sub001/internal/engine"
	"github.com/flyxxxxx/prototype-sub001/internal/store"
)

func runTraceCmd(t *testing.T, opts *RootOptions, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewTraceCommand(opts)
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

// journalCheckout runs a successful checkout into a fresh journal and
// returns the journal path and the checkout's invocation ID.
func journalCheckout(t *testing.T) (string, string) {
	t.Helper()
	db := filepath.Join(t.TempDir(), "journal.db")
	out, err := runRunCmd(t, &RootOptions{Format: "json"}, demoManifest,
		"Shop", "Checkout", checkoutArg, "--db", db)
	require.NoError(t, err, out)
	return db, decodeRunResponse(t, out).Data.ID
}

type traceResponse struct {
	Status string      `json:"status"`
	Data   TraceResult `json:"data"`
}

// =============================================================================
// Journal
// =============================================================================

func TestTrace_TextOutput(t *testing.T) {
	db, _ := journalCheckout(t)

	out, err := runTraceCmd(t, &RootOptions{Format: "text"}, db)
	require.NoError(t, err)

	assert.Contains(t, out, "=== Plans ===")
	assert.Contains(t, out, "  Newsletter ")
	assert.Contains(t, out, "  Shop ")
	assert.Contains(t, out, "=== Invocations ===")
	assert.Contains(t, out, "  [1] Shop.Checkout completed\n")
	assert.Contains(t, out, "] Shop.Reserve completed\n")
	assert.Contains(t, out, "async.submitted Confirm")
	assert.Contains(t, out, "=== Stats ===")
	assert.Contains(t, out, "Invocations: 4")
	assert.Contains(t, out, "Completed:   4")
	assert.NotContains(t, out, "Running:")
}

func TestTrace_JSONOutput(t *testing.T) {
	db, id := journalCheckout(t)

	out, err := runTraceCmd(t, &RootOptions{Format: "json"}, db)
	require.NoError(t, err)

	var resp traceResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Len(t, resp.Data.Plans, 2)

	require.Len(t, resp.Data.Roots, 1)
	root := resp.Data.Roots[0]
	assert.Equal(t, id, root.ID)
	assert.Equal(t, "Checkout", root.Operation)
	assert.Equal(t, engine.StateCompleted, root.State)

	var children []string
	for _, c := range root.Children {
		children = append(children, c.Operation)
	}
	assert.Equal(t, []string{"Reserve", "Charge", "Confirm"}, children)

	var events []engine.EventType
	for _, e := range root.Events {
		events = append(events, e.Type)
	}
	assert.Equal(t, []engine.EventType{engine.EventAsyncSubmitted, engine.EventAsyncCompleted}, events)
	assert.Equal(t, TraceStats{Invocations: 4, Completed: 4}, resp.Data.Stats)
}

func TestTrace_AppendsRuns(t *testing.T) {
	db, _ := journalCheckout(t)
	_, err := runRunCmd(t, &RootOptions{Format: "text"}, demoManifest,
		"Shop", "Checkout", `{"id":"o2","sku":"widget","qty":1,"amount":5000}`, "--db", db)
	require.Error(t, err)

	out, err := runTraceCmd(t, &RootOptions{Format: "json"}, db)
	require.NoError(t, err)

	var resp traceResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Data.Roots, 2)
	declined := resp.Data.Roots[1]
	assert.Equal(t, engine.StateFailed, declined.State)
	assert.Contains(t, declined.Error, "payment of 5000 declined")

	var handled bool
	for _, e := range declined.Events {
		if e.Type == engine.EventCatchHandled {
			handled = true
			assert.Equal(t, "Recover_Any", e.Target)
		}
	}
	assert.True(t, handled, "catch.handled is recorded on the checkout")
}

func TestTrace_SingleInvocation(t *testing.T) {
	db, id := journalCheckout(t)
	_, err := runRunCmd(t, &RootOptions{Format: "text"}, demoManifest,
		"Newsletter", "Subscribe", "ada@example.com", "--db", db)
	require.NoError(t, err)

	out, err := runTraceCmd(t, &RootOptions{Format: "json"}, db, "--invocation", id)
	require.NoError(t, err)

	var resp traceResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Data.Roots, 1)
	assert.Equal(t, id, resp.Data.Roots[0].ID)
	assert.Equal(t, 4, resp.Data.Stats.Invocations)
}

func TestTrace_VerboseShowsIDs(t *testing.T) {
	db, id := journalCheckout(t)

	out, err := runTraceCmd(t, &RootOptions{Format: "text", Verbose: true}, db)
	require.NoError(t, err)
	assert.Contains(t, out, "ID: "+truncateID(id))
}

// =============================================================================
// Command errors
// =============================================================================

func TestTrace_UnknownInvocation(t *testing.T) {
	db, _ := journalCheckout(t)

	_, err := runTraceCmd(t, &RootOptions{Format: "text"}, db, "-i", "nowhere")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "invocation nowhere not found")
}

func TestTrace_MissingDatabase(t *testing.T) {
	_, err := runTraceCmd(t, &RootOptions{Format: "text"}, filepath.Join(t.TempDir(), "none.db"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "database not found")
}

func TestTrace_EmptyJournal(t *testing.T) {
	db := filepath.Join(t.TempDir(), "empty.db")
	st, err := store.Open(db)
	require.NoError(t, err)
	require.NoError(t, st.Close())

	out, err := runTraceCmd(t, &RootOptions{Format: "text"}, db)
	require.NoError(t, err)
	assert.Contains(t, out, "(no plans)")
	assert.Contains(t, out, "(no invocations)")
	assert.Contains(t, out, "Invocations: 0")
}

// =============================================================================
// Helpers
// =============================================================================

func TestLinkTree(t *testing.T) {
	tree := []store.Invocation{
		{ID: "inv-1", Operation: "Ship", State: engine.StateFailed, StartSeq: 1},
		{ID: "inv-2", ParentID: "inv-1", Operation: "Pack", State: engine.StateCompleted, StartSeq: 2},
		{ID: "inv-3", ParentID: "inv-1", Operation: "Label", State: engine.StateFailed, StartSeq: 3},
		{ID: "inv-4", ParentID: "inv-3", Operation: "Print", State: engine.StateCreated, StartSeq: 4},
	}
	events := map[string][]TraceEvent{
		"inv-1": {{Seq: 6, Type: engine.EventForkBranchFailed, Target: "Label"}},
	}

	root := linkTree(tree, events)
	require.NotNil(t, root)
	assert.Equal(t, "inv-1", root.ID)
	assert.Equal(t, events["inv-1"], root.Events)
	require.Len(t, root.Children, 2)
	assert.Equal(t, "Pack", root.Children[0].Operation)
	require.Len(t, root.Children[1].Children, 1)
	assert.Equal(t, "Print", root.Children[1].Children[0].Operation)

	assert.Nil(t, linkTree(nil, events))
}

func TestCountState(t *testing.T) {
	var stats TraceStats
	for _, s := range []engine.State{
		engine.StateCompleted, engine.StateCompleted, engine.StateFailed,
		engine.StateRejected, engine.StateStepExecuting,
	} {
		countState(&stats, s)
	}
	assert.Equal(t, TraceStats{Invocations: 5, Completed: 2, Failed: 1, Rejected: 1, Running: 1}, stats)
}

func TestTruncateID(t *testing.T) {
	assert.Equal(t, "inv-1", truncateID("inv-1"))
	assert.Equal(t, "0190f3c2...9a8b7c6d", truncateID("0190f3c2-1111-7222-8333-44449a8b7c6d"))
}
