package advisor

import (
	"fmt"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/flyxxxxx/prototype-sub001/internal/index"
)

// Selector matches operations by a glob over "Class.Operation".
//
// The class part is matched against the short type name, or against the
// fully-qualified name when the pattern contains a slash. The operation part
// is matched against both the Go method name and the logical name, so
// "*.Notify" selects every overload of Notify. "**" crosses path separators.
type Selector struct {
	pattern string
	class   string
	op      string
}

// ParseSelector validates and compiles a selector pattern.
// An empty pattern selects everything.
func ParseSelector(pattern string) (*Selector, error) {
	if pattern == "" {
		pattern = "*.*"
	}
	i := strings.LastIndexByte(pattern, '.')
	if i <= 0 || i == len(pattern)-1 {
		return nil, fmt.Errorf("selector %q: want Class.Operation", pattern)
	}
	s := &Selector{pattern: pattern, class: pattern[:i], op: pattern[i+1:]}
	if !doublestar.ValidatePattern(s.class) || !doublestar.ValidatePattern(s.op) {
		return nil, fmt.Errorf("selector %q: invalid glob", pattern)
	}
	return s, nil
}

// MustSelector is like ParseSelector but panics on error.
func MustSelector(pattern string) *Selector {
	s, err := ParseSelector(pattern)
	if err != nil {
		panic(err)
	}
	return s
}

// String returns the source pattern.
func (s *Selector) String() string { return s.pattern }

// Matches reports whether op of class is selected.
func (s *Selector) Matches(class *index.ClassDescriptor, op *index.OperationDescriptor) bool {
	className := class.Type.Name()
	if strings.Contains(s.class, "/") {
		className = class.Name
	}
	if ok, _ := doublestar.Match(s.class, className); !ok {
		return false
	}
	if ok, _ := doublestar.Match(s.op, op.Method); ok {
		return true
	}
	ok, _ := doublestar.Match(s.op, op.Name)
	return ok
}
