package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/flyxxxxx/prototype-sub001/internal/engine"
	"github.com/flyxxxxx/prototype-sub001/internal/store"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Invocation string // optional - trace a single invocation tree
}

// TracePlan is a journaled plan.
type TracePlan struct {
	Class       string `json:"class"`
	Fingerprint string `json:"fingerprint"`
}

// TraceNode is one journaled invocation and the invocations it started.
type TraceNode struct {
	ID        string       `json:"id"`
	Class     string       `json:"class"`
	Operation string       `json:"operation"`
	State     engine.State `json:"state"`
	StartSeq  int64        `json:"start_seq"`
	EndSeq    int64        `json:"end_seq,omitempty"`
	Worker    string       `json:"worker,omitempty"`
	Error     string       `json:"error,omitempty"`
	Events    []TraceEvent `json:"events,omitempty"`
	Children  []*TraceNode `json:"children,omitempty"`
}

// TraceEvent is a directive event recorded on an invocation.
type TraceEvent struct {
	Seq    int64            `json:"seq"`
	Type   engine.EventType `json:"type"`
	Target string           `json:"target,omitempty"`
	Error  string           `json:"error,omitempty"`
}

// TraceStats holds summary statistics for the trace.
type TraceStats struct {
	Invocations int `json:"invocations"`
	Completed   int `json:"completed"`
	Failed      int `json:"failed"`
	Rejected    int `json:"rejected"`
	Running     int `json:"running"`
}

// TraceResult holds the complete trace output.
type TraceResult struct {
	Plans []TracePlan  `json:"plans"`
	Roots []*TraceNode `json:"roots"`
	Stats TraceStats   `json:"stats"`
}

// directiveEvents are the events shown under their invocation.
var directiveEvents = []engine.EventType{
	engine.EventForkBranchFailed,
	engine.EventAsyncSubmitted,
	engine.EventAsyncCompleted,
	engine.EventAsyncFailed,
	engine.EventCatchHandled,
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace <journal.db>",
		Short: "Show journaled invocation trees",
		Long: `Show the invocations recorded in a journal database as trees.

Every target an invocation ran appears below it, with the fork, async and
catch events recorded on it. The plans the engine served are listed first.

Examples:
  prototype trace ./journal.db
  prototype trace ./journal.db --invocation 0190f3c2-...
  prototype trace ./journal.db --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Invocation, "invocation", "i", "", "trace only this invocation")

	return cmd
}

func runTrace(opts *TraceOptions, path string, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	// store.Open would create a missing database.
	if _, err := os.Stat(path); err != nil {
		return WrapExitError(ExitCommandError, "database not found", err)
	}
	st, err := store.Open(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	result, err := buildTraceResult(ctx, st, opts.Invocation)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read trace", err)
	}

	formatter := newFormatter(opts.RootOptions, cmd)
	if formatter.JSON() {
		return formatter.Success(result)
	}
	outputTraceText(formatter.Writer, result, opts.Verbose)
	return nil
}

// buildTraceResult reads the plans and the invocation trees of st. A
// non-empty id restricts the trees to that invocation.
func buildTraceResult(ctx context.Context, st *store.Store, id string) (TraceResult, error) {
	result := TraceResult{Plans: []TracePlan{}, Roots: []*TraceNode{}}

	plans, err := st.ReadPlans(ctx)
	if err != nil {
		return result, err
	}
	for _, p := range plans {
		result.Plans = append(result.Plans, TracePlan{Class: p.Class, Fingerprint: p.Fingerprint})
	}

	var roots []store.Invocation
	if id != "" {
		inv, err := st.ReadInvocation(ctx, id)
		if errors.Is(err, sql.ErrNoRows) {
			return result, fmt.Errorf("invocation %s not found", id)
		}
		if err != nil {
			return result, err
		}
		roots = []store.Invocation{inv}
	} else {
		roots, err = st.ReadInvocations(ctx)
		if err != nil {
			return result, err
		}
	}

	events, err := st.ReadEvents(ctx, store.EventFilter{Types: directiveEvents})
	if err != nil {
		return result, err
	}
	byInvocation := make(map[string][]TraceEvent)
	for _, e := range events {
		byInvocation[e.InvocationID] = append(byInvocation[e.InvocationID], TraceEvent{
			Seq:    e.Seq,
			Type:   e.Type,
			Target: e.Target,
			Error:  e.Error,
		})
	}

	for _, r := range roots {
		tree, err := st.ReadTree(ctx, r.ID)
		if err != nil {
			return result, err
		}
		root := linkTree(tree, byInvocation)
		if root == nil {
			continue
		}
		result.Roots = append(result.Roots, root)
		for _, inv := range tree {
			countState(&result.Stats, inv.State)
		}
	}
	return result, nil
}

// linkTree turns a ReadTree listing, ordered by start seq with the root
// first, into nodes.
func linkTree(tree []store.Invocation, events map[string][]TraceEvent) *TraceNode {
	if len(tree) == 0 {
		return nil
	}
	nodes := make(map[string]*TraceNode, len(tree))
	for _, inv := range tree {
		node := &TraceNode{
			ID:        inv.ID,
			Class:     inv.Class,
			Operation: inv.Operation,
			State:     inv.State,
			StartSeq:  inv.StartSeq,
			EndSeq:    inv.EndSeq,
			Worker:    inv.Worker,
			Error:     inv.Error,
			Events:    events[inv.ID],
		}
		nodes[inv.ID] = node
		if parent, ok := nodes[inv.ParentID]; ok {
			parent.Children = append(parent.Children, node)
		}
	}
	return nodes[tree[0].ID]
}

func countState(stats *TraceStats, s engine.State) {
	stats.Invocations++
	switch s {
	case engine.StateCompleted:
		stats.Completed++
	case engine.StateFailed:
		stats.Failed++
	case engine.StateRejected:
		stats.Rejected++
	default:
		stats.Running++
	}
}

// outputTraceText outputs the trace result as text.
func outputTraceText(w io.Writer, result TraceResult, verbose bool) {
	fmt.Fprintln(w, "=== Plans ===")
	if len(result.Plans) == 0 {
		fmt.Fprintln(w, "  (no plans)")
	}
	for _, p := range result.Plans {
		fmt.Fprintf(w, "  %s %s\n", shortName(p.Class), truncateID(p.Fingerprint))
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Invocations ===")
	if len(result.Roots) == 0 {
		fmt.Fprintln(w, "  (no invocations)")
	}
	for _, root := range result.Roots {
		writeNode(w, root, 1, verbose)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Stats ===")
	fmt.Fprintf(w, "  Invocations: %d\n", result.Stats.Invocations)
	fmt.Fprintf(w, "  Completed:   %d\n", result.Stats.Completed)
	fmt.Fprintf(w, "  Failed:      %d\n", result.Stats.Failed)
	fmt.Fprintf(w, "  Rejected:    %d\n", result.Stats.Rejected)
	if result.Stats.Running > 0 {
		fmt.Fprintf(w, "  Running:     %d\n", result.Stats.Running)
	}
}

func writeNode(w io.Writer, n *TraceNode, depth int, verbose bool) {
	indent := strings.Repeat("  ", depth)
	fmt.Fprintf(w, "%s[%d] %s.%s %s", indent, n.StartSeq, shortName(n.Class), n.Operation, n.State)
	if n.Error != "" {
		fmt.Fprintf(w, ": %s", n.Error)
	}
	fmt.Fprintln(w)
	if verbose {
		fmt.Fprintf(w, "%s     ID: %s\n", indent, truncateID(n.ID))
		if n.Worker != "" {
			fmt.Fprintf(w, "%s     Worker: %s\n", indent, n.Worker)
		}
	}
	for _, e := range n.Events {
		fmt.Fprintf(w, "%s  - [%d] %s %s\n", indent, e.Seq, e.Type, e.Target)
	}
	for _, c := range n.Children {
		writeNode(w, c, depth+1, verbose)
	}
}

// truncateID truncates a long ID for display.
func truncateID(id string) string {
	if len(id) <= 16 {
		return id
	}
	return id[:8] + "..." + id[len(id)-8:]
}
