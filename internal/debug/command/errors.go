package command

import "errors"

// Sentinel errors for the command package.
var (
	// ErrUnknownAction is returned for action names this package does not handle.
	ErrUnknownAction = errors.New("unknown debug action")

	// ErrNotAvailable is returned when an action's Can predicate is false.
	ErrNotAvailable = errors.New("debug action not available")

	// ErrCancelled is returned when the user cancelled option or process selection.
	ErrCancelled = errors.New("cancelled")
)
