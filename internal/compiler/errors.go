package compiler

import (
	"fmt"
	"strings"
	"sync"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Validation error codes (E200-E299). Codes are stable; messages are looked up
// per language in the message catalog.
const (
	ErrUnknownClass         = "E200" // scanned name not in the catalog
	ErrUnresolvedTarget     = "E201" // directive target does not resolve
	ErrAmbiguous            = "E202" // several candidates at the same depth
	ErrDynamicReturn        = "E203" // dynamic chain owner returns an unusable type
	ErrDecisionReturn       = "E204" // decision owner returns an unusable type
	ErrDecisionNoTargets    = "E205" // decision declares no targets
	ErrDuplicateBranch      = "E206" // decision branch keys are not disjoint
	ErrUnmatchedEnum        = "E207" // enum value without a branch
	ErrForkTargets          = "E208" // fork needs at least two targets
	ErrUnsatisfiable        = "E209" // target parameters cannot be bound
	ErrAsyncNoOverload      = "E210" // no async overload matches
	ErrAsyncManyOverloads   = "E211" // several async overloads match
	ErrCatchSignature       = "E212" // catch handler must take one error
	ErrCatchDuplicate       = "E213" // two handlers accept the same type
	ErrUnknownPool          = "E214" // worker pool is not configured
	ErrCycle                = "E215" // directive targets form a cycle
	ErrUnknownOwner         = "E216" // directive owner does not resolve
	ErrDuplicateKind        = "E217" // owner declares a kind twice
	ErrDynamicBefore        = "E218" // dynamic chain must run after its owner
	ErrBoolDecisionTargets  = "E219" // boolean decision has more than two targets
	ErrManifest             = "E220" // manifest could not be loaded
	ErrChainNoTargets       = "E221" // chain declares no targets
	ErrUnsupportedDirective = "E222" // directive value of unknown type
)

// ValidationError is one configuration problem found during a scan pass.
type ValidationError struct {
	Code    string `json:"code"`
	Subject string `json:"subject"`
	Message string `json:"message"`
	Args    []any  `json:"args,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Subject, e.Message)
}

// Errors accumulates the validation errors of one scan pass.
//
// Thread-safety: Add may be called from any goroutine.
type Errors struct {
	mu      sync.Mutex
	list    []ValidationError
	printer *message.Printer
}

// NewErrors creates an empty aggregate rendering messages in lang.
// Unknown languages fall back to English.
func NewErrors(lang language.Tag) *Errors {
	return &Errors{printer: newPrinter(lang)}
}

// Add records an error. args fill the code's message template.
func (e *Errors) Add(code, subject string, args ...any) {
	msg := e.printer.Sprintf(code, args...)
	e.mu.Lock()
	e.list = append(e.list, ValidationError{Code: code, Subject: subject, Message: msg, Args: args})
	e.mu.Unlock()
}

// HasErrors reports whether anything was recorded.
func (e *Errors) HasErrors() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.list) > 0
}

// Len returns the number of recorded errors.
func (e *Errors) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.list)
}

// List returns a copy of the recorded errors in insertion order.
func (e *Errors) List() []ValidationError {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]ValidationError, len(e.list))
	copy(out, e.list)
	return out
}

// Codes returns the codes of the recorded errors in insertion order.
func (e *Errors) Codes() []string {
	list := e.List()
	codes := make([]string, len(list))
	for i, ve := range list {
		codes[i] = ve.Code
	}
	return codes
}

// Err returns a *ScanError carrying every recorded error, or nil.
func (e *Errors) Err() error {
	list := e.List()
	if len(list) == 0 {
		return nil
	}
	return &ScanError{Errors: list}
}

// ScanError aborts a scan pass. It carries every validation error so
// operators can fix all configuration problems in one iteration.
type ScanError struct {
	Errors []ValidationError
}

func (e *ScanError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d configuration error(s):", len(e.Errors))
	for _, ve := range e.Errors {
		b.WriteString("\n  ")
		b.WriteString(ve.Error())
	}
	return b.String()
}

// Unwrap exposes the individual validation errors to errors.Is/As.
func (e *ScanError) Unwrap() []error {
	errs := make([]error, len(e.Errors))
	for i, ve := range e.Errors {
		errs[i] = ve
	}
	return errs
}

// HasCode reports whether the scan error contains code.
func (e *ScanError) HasCode(code string) bool {
	for _, ve := range e.Errors {
		if ve.Code == code {
			return true
		}
	}
	return false
}
