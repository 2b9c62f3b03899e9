package debug

import (
	"errors"
	"fmt"
)

// Sentinel errors for the debug package.
var (
	// ErrShutdown is returned when the manager is shutting down.
	ErrShutdown = errors.New("debugger is shutting down")

	// ErrNotDebugging is returned by commands that need a debugged process.
	ErrNotDebugging = errors.New("not debugging")

	// ErrAlreadyDebugging is returned when attaching to a process that is already debugged.
	ErrAlreadyDebugging = errors.New("process is already being debugged")
)

// StartError wraps a failure to start an engine.
type StartError struct {
	Kind string
	Err  error
}

// Error implements the error interface.
func (e *StartError) Error() string {
	return fmt.Sprintf("could not start %s debugger: %v", e.Kind, e.Err)
}

// Unwrap returns the underlying error.
func (e *StartError) Unwrap() error {
	return e.Err
}
