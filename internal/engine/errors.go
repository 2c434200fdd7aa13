package engine

import (
	"errors"
	"fmt"
)

// RuntimeError is a dispatch problem that is not a business failure: the
// engine could not start or continue an invocation.
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// InvocationID identifies the affected invocation, if one was created.
	InvocationID string

	// Operation is "Class.Method" or the requested name.
	Operation string

	// Details carries additional context.
	Details map[string]string
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeUnknownClass indicates the instance's class has no plan.
	ErrCodeUnknownClass RuntimeErrorCode = "UNKNOWN_CLASS"

	// ErrCodeUnknownOperation indicates no overload accepts the arguments.
	ErrCodeUnknownOperation RuntimeErrorCode = "UNKNOWN_OPERATION"

	// ErrCodeAmbiguousOperation indicates several overloads accept the
	// arguments equally well.
	ErrCodeAmbiguousOperation RuntimeErrorCode = "AMBIGUOUS_OPERATION"

	// ErrCodeBadInstance indicates a nil or non-pointer instance.
	ErrCodeBadInstance RuntimeErrorCode = "BAD_INSTANCE"

	// ErrCodeUnknownPool indicates a step names a pool the engine lacks.
	ErrCodeUnknownPool RuntimeErrorCode = "UNKNOWN_POOL"

	// ErrCodeClosed indicates the engine or its pools were shut down.
	ErrCodeClosed RuntimeErrorCode = "CLOSED"
)

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	switch {
	case e.InvocationID != "" && e.Operation != "":
		return fmt.Sprintf("%s: %s (op=%s, invocation=%s)", e.Code, e.Message, e.Operation, e.InvocationID)
	case e.Operation != "":
		return fmt.Sprintf("%s: %s (op=%s)", e.Code, e.Message, e.Operation)
	default:
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
}

// IsUnknownOperation returns true if err is a RuntimeError for an operation
// that could not be resolved.
func IsUnknownOperation(err error) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == ErrCodeUnknownOperation
	}
	return false
}

// IsClosed returns true if err reports a shut-down engine or pool.
func IsClosed(err error) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == ErrCodeClosed
	}
	return false
}

func newRuntimeError(code RuntimeErrorCode, op, format string, args ...any) *RuntimeError {
	return &RuntimeError{Code: code, Operation: op, Message: fmt.Sprintf(format, args...)}
}

// PanicError is a panic raised by an operation, handler or filter, recovered
// so that it fails one invocation instead of the process.
type PanicError struct {
	Operation string
	Value     any
	Stack     []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic in %s: %v", e.Operation, e.Value)
}

// Unwrap exposes a panicked error value to errors.Is/As.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// IsPanic returns true if err is or wraps a *PanicError.
func IsPanic(err error) bool {
	var pe *PanicError
	return errors.As(err, &pe)
}
