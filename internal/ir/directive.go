package ir

// Kind identifies a directive variant.
type Kind string

const (
	// KindChain runs target operations sequentially around the owner.
	KindChain Kind = "chain"
	// KindDecision runs the target selected by the owner's return value.
	KindDecision Kind = "decision"
	// KindFork runs targets concurrently behind a join barrier.
	KindFork Kind = "fork"
	// KindAsync offloads one overload candidate to a worker pool.
	KindAsync Kind = "async"
	// KindCatch dispatches owner failures to typed handler overloads.
	KindCatch Kind = "catch"
)

// Kinds lists every directive kind in declaration order.
var Kinds = []Kind{KindChain, KindDecision, KindFork, KindAsync, KindCatch}

// ValidKind reports whether k names a known directive kind.
func ValidKind(k Kind) bool {
	for _, known := range Kinds {
		if known == k {
			return true
		}
	}
	return false
}

// Directive is the tagged union over the five directive variants.
// The unexported marker restricts implementations to this package.
type Directive interface {
	Kind() Kind
	OwnerName() string
	TargetNames() []string
	directive()
}

// Provider is implemented by classes that declare their own directives.
type Provider interface {
	Directives() []Directive
}

// Chain invokes Targets in order, before or after the owner body.
//
// With Dynamic set the owner runs first and its return value steers the
// chain: true runs every target, false none, a string runs the named target,
// and a void owner runs every target.
type Chain struct {
	Owner   string   `json:"owner"`
	Targets []string `json:"targets"`
	After   bool     `json:"after,omitempty"`
	Dynamic bool     `json:"dynamic,omitempty"`
}

// Decision invokes the owner and selects a target from its result.
//
// Boolean owners select Targets[0] on true and Targets[1] (if declared) on
// false; Negate flips the polarity. String, enum and Branch owners select the
// target with the same logical name.
type Decision struct {
	Owner   string   `json:"owner"`
	Targets []string `json:"targets"`
	Negate  bool     `json:"negate,omitempty"`
}

// Fork invokes Targets concurrently and waits for all of them.
type Fork struct {
	Owner    string   `json:"owner"`
	Targets  []string `json:"targets"`
	After    bool     `json:"after,omitempty"`
	FailFast bool     `json:"fail_fast,omitempty"`
	Pool     string   `json:"pool,omitempty"`
}

// Async submits the single overload of Target that matches the available
// collaborators to a worker pool without blocking the caller.
type Async struct {
	Owner  string `json:"owner"`
	Target string `json:"target"`
	After  bool   `json:"after,omitempty"`
	Pool   string `json:"pool,omitempty"`
}

// Catch routes owner failures to the most specific overload of Handler.
type Catch struct {
	Owner   string `json:"owner"`
	Handler string `json:"handler"`
}

func (d Chain) Kind() Kind            { return KindChain }
func (d Chain) OwnerName() string     { return d.Owner }
func (d Chain) TargetNames() []string { return d.Targets }
func (Chain) directive()              {}

func (d Decision) Kind() Kind            { return KindDecision }
func (d Decision) OwnerName() string     { return d.Owner }
func (d Decision) TargetNames() []string { return d.Targets }
func (Decision) directive()              {}

func (d Fork) Kind() Kind            { return KindFork }
func (d Fork) OwnerName() string     { return d.Owner }
func (d Fork) TargetNames() []string { return d.Targets }
func (Fork) directive()              {}

func (d Async) Kind() Kind            { return KindAsync }
func (d Async) OwnerName() string     { return d.Owner }
func (d Async) TargetNames() []string { return []string{d.Target} }
func (Async) directive()              {}

func (d Catch) Kind() Kind            { return KindCatch }
func (d Catch) OwnerName() string     { return d.Owner }
func (d Catch) TargetNames() []string { return []string{d.Handler} }
func (Catch) directive()              {}

// Branch is the explicit decision result. The zero value skips.
type Branch struct {
	target string
	taken  bool
}

// Take selects the branch target with the given logical name.
func Take(target string) Branch {
	return Branch{target: target, taken: true}
}

// Skip selects no branch.
func Skip() Branch {
	return Branch{}
}

// Target returns the selected target name and whether a branch was taken.
func (b Branch) Target() (string, bool) {
	return b.target, b.taken
}

// Enum is implemented by named types whose complete value set is known.
// Decision owners returning an Enum are checked against their targets at
// compile time.
type Enum interface {
	EnumValues() []string
}
