package engine

import (
	"errors"
	"fmt"
)

// Sentinel errors for the engine package.
var (
	// ErrUnknownKind is returned when no provider is registered for a runtime kind.
	ErrUnknownKind = errors.New("no debug engine for runtime kind")

	// ErrInvalidOptions is returned when start options fail validation.
	ErrInvalidOptions = errors.New("invalid start options")

	// ErrNotSupported is returned by engines for commands they cannot perform.
	ErrNotSupported = errors.New("operation not supported by engine")

	// ErrNotStarted is returned when a command is issued before Start.
	ErrNotStarted = errors.New("engine not started")
)

// OptionError describes one invalid start option.
type OptionError struct {
	Field  string
	Reason string
}

// Error implements the error interface.
func (e *OptionError) Error() string {
	return fmt.Sprintf("invalid start options: %s %s", e.Field, e.Reason)
}

// Unwrap returns ErrInvalidOptions.
func (e *OptionError) Unwrap() error {
	return ErrInvalidOptions
}
