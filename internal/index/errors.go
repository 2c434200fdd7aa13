package index

import (
	"errors"
	"fmt"
	"strings"
)

// AmbiguousError reports more than one equally specific candidate for a name.
// It is a configuration error: the index never guesses between candidates.
type AmbiguousError struct {
	Class      string
	Name       string
	Candidates []string
}

func (e *AmbiguousError) Error() string {
	return fmt.Sprintf("%s.%s is ambiguous between %s", e.Class, e.Name, strings.Join(e.Candidates, ", "))
}

// NotFoundError reports a required operation that does not exist.
type NotFoundError struct {
	Class string
	Name  string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s has no operation %q", e.Class, e.Name)
}

// UnsatisfiedError reports an operation parameter that no collaborator can supply.
type UnsatisfiedError struct {
	Operation string
	Param     string
}

func (e *UnsatisfiedError) Error() string {
	return fmt.Sprintf("%s: no collaborator of type %s", e.Operation, e.Param)
}

// IsAmbiguous returns true if err is or wraps an *AmbiguousError.
func IsAmbiguous(err error) bool {
	var ae *AmbiguousError
	return errors.As(err, &ae)
}

// IsNotFound returns true if err is or wraps a *NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsUnsatisfied returns true if err is or wraps an *UnsatisfiedError.
func IsUnsatisfied(err error) bool {
	var ue *UnsatisfiedError
	return errors.As(err, &ue)
}
