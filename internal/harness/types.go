package harness

import (
	"sort"
	"strings"
)

// Call is one invocation in a scenario trace, with the targets it ran
// nested under it.
type Call struct {
	// Action is "Class.Operation" with the bare class name.
	Action string `json:"action"`

	State string `json:"state"`
	Error string `json:"error,omitempty"`

	// Events lists the directive events of this invocation, such as
	// "async.submitted Confirm", sorted.
	Events []string `json:"events,omitempty"`

	// Calls are the child invocations ordered by action, then start.
	Calls []*Call `json:"calls,omitempty"`

	id     string
	parent string
	seq    int64
}

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass is true when every expectation and assertion held.
	Pass bool `json:"pass"`

	// Trace holds one root call per setup and flow step, in step order.
	Trace []*Call `json:"trace"`

	// Errors contains validation error messages. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []*Call{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Flatten returns every call of the trace in start order.
func (r *Result) Flatten() []*Call {
	var out []*Call
	var walk func(cs []*Call)
	walk = func(cs []*Call) {
		for _, c := range cs {
			out = append(out, c)
			walk(c.Calls)
		}
	}
	walk(r.Trace)
	sort.SliceStable(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}

// String renders the call tree one call per line.
func (c *Call) String() string {
	var b strings.Builder
	c.render(&b, 0)
	return b.String()
}

func (c *Call) render(b *strings.Builder, depth int) {
	b.WriteString(strings.Repeat("  ", depth))
	b.WriteString(c.Action)
	b.WriteString(" ")
	b.WriteString(c.State)
	if c.Error != "" {
		b.WriteString(": ")
		b.WriteString(c.Error)
	}
	b.WriteString("\n")
	for _, child := range c.Calls {
		child.render(b, depth+1)
	}
}

// sortCalls orders children by action and start so concurrent fork and
// async targets render the same way on every run.
func sortCalls(cs []*Call) {
	sort.SliceStable(cs, func(i, j int) bool {
		if cs[i].Action != cs[j].Action {
			return cs[i].Action < cs[j].Action
		}
		return cs[i].seq < cs[j].seq
	})
	for _, c := range cs {
		sort.Strings(c.Events)
		sortCalls(c.Calls)
	}
}
