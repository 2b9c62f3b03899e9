package dispatch

import "errors"

// Sentinel errors for the dispatch package.
var (
	// ErrAlreadyRunning is returned when Start is called on a running dispatcher.
	ErrAlreadyRunning = errors.New("dispatcher is already running")

	// ErrShutdown is returned when work is submitted after shutdown has started.
	ErrShutdown = errors.New("dispatcher is shut down")
)
