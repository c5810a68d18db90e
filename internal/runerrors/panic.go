// Package runerrors converts recovered node panics into inspectable errors.
package runerrors

import (
	"fmt"

	goerrors "github.com/go-errors/errors"
)

// PanicError is a recovered panic from a workflow node, carrying the stack
// captured at the recovery point.
type PanicError struct {
	message    string
	stacktrace string
}

func (pe *PanicError) Error() string {
	return pe.message
}

func (pe *PanicError) Stacktrace() string {
	return pe.stacktrace
}

// FromPanic wraps a value recovered from a panicking node.
func FromPanic(v any) *PanicError {
	return &PanicError{
		message:    fmt.Sprintf("panic in node: %v", v),
		stacktrace: string(goerrors.Wrap(v, 2).Stack()),
	}
}
