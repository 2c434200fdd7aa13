package plan

import (
	"fmt"
	"strings"

	"github.com/flyxxxxx/prototype-sub001/internal/index"
)

// Describe renders a stable, human-readable view of p.
// Operations without layers are listed on one line.
func Describe(p *Plan) string {
	var b strings.Builder
	fmt.Fprintf(&b, "plan %s\n", p.Class.Name)
	fmt.Fprintf(&b, "  fingerprint %s\n", p.Fingerprint())
	for _, e := range p.Entries() {
		fmt.Fprintf(&b, "  op %s", e.Operation.Signature())
		if e.Operation.Depth > 0 {
			fmt.Fprintf(&b, " [depth %d]", e.Operation.Depth)
		}
		b.WriteByte('\n')
		for _, l := range e.Layers {
			fmt.Fprintf(&b, "    %4d %s\n", l.Priority, describeLayer(l))
		}
	}
	return b.String()
}

func describeLayer(l Layer) string {
	if l.Advisor != nil {
		return "advisor " + l.Advisor.Advisor
	}
	s := l.Step
	var parts []string
	parts = append(parts, string(s.Kind))
	if s.After {
		parts = append(parts, "after")
	}
	if s.Dynamic {
		parts = append(parts, "dynamic")
	}
	if s.Negate {
		parts = append(parts, "negate")
	}
	if s.FailFast {
		parts = append(parts, "fail-fast")
	}
	if s.Mode != ModeNone {
		parts = append(parts, "mode="+string(s.Mode))
	}
	if s.Pool != "" {
		parts = append(parts, "pool="+s.Pool)
	}
	for _, t := range s.Targets {
		parts = append(parts, fmt.Sprintf("%s=%s%s", t.Key, t.Op.Method, bindingSuffix(t.Binding)))
	}
	for _, h := range s.Handlers {
		parts = append(parts, fmt.Sprintf("on %s=%s", index.TypeName(h.ErrType), h.Op.Method))
	}
	return strings.Join(parts, " ")
}

func bindingSuffix(b index.Binding) string {
	if len(b) == 0 {
		return ""
	}
	slots := make([]string, len(b))
	for i, s := range b {
		slots[i] = fmt.Sprintf("$%d", s)
	}
	return "(" + strings.Join(slots, ",") + ")"
}
