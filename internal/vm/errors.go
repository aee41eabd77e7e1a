package vm

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// RuntimeError is the error type returned for every uncaught runtime
// fault (spec.md §4.7: "no exceptions — any runtime failure aborts the
// current program with a stack trace").
type RuntimeError struct {
	Message string
	Trace   []string
	Session uuid.UUID
	// Cause is the error that triggered this fault when it originated
	// outside the interpreter loop (a native function returning an
	// error). Nil for faults raised directly by the VM itself.
	Cause error
}

func (e *RuntimeError) Error() string {
	out := e.Message
	if e.Cause != nil {
		out += ": " + e.Cause.Error()
	}
	for _, line := range e.Trace {
		out += "\n" + line
	}
	return out
}

// Unwrap exposes Cause to errors.Is/errors.As, so a caller can recover the
// original native error as well as the *RuntimeError wrapping it.
func (e *RuntimeError) Unwrap() error { return e.Cause }

// runtimeError formats a message, attaches a stack trace (innermost frame
// first), resets the stacks, and returns it wrapped via pkg/errors so
// callers can recover %+v detail or errors.As it back to *RuntimeError.
func (vm *VM) runtimeError(format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	trace := vm.stackTrace()
	vm.resetStack()
	return errors.WithStack(&RuntimeError{Message: msg, Trace: trace, Session: vm.id})
}

// runtimeErrorWrap is runtimeError plus a cause, used when the fault
// originated outside the interpreter loop itself — a native function
// returning an error. The *RuntimeError itself is what gets the stack
// trace attached via errors.WithStack, so errors.As(err, &target) still
// finds it; cause remains reachable through RuntimeError.Unwrap.
func (vm *VM) runtimeErrorWrap(cause error, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	trace := vm.stackTrace()
	vm.resetStack()
	return errors.WithStack(&RuntimeError{Message: msg, Trace: trace, Session: vm.id, Cause: cause})
}

// RuntimeErrorf lets callers outside this file (natives, the compiler's
// hooks) raise a fault through the same path as the interpreter loop.
func (vm *VM) RuntimeErrorf(format string, args ...any) error {
	return vm.runtimeError(format, args...)
}
