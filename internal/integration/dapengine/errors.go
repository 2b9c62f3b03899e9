package dapengine

import "errors"

var (
	// ErrAlreadyStarted is returned by a second Start.
	ErrAlreadyStarted = errors.New("dap engine already started")

	// ErrClosed is returned for commands after Close.
	ErrClosed = errors.New("dap engine closed")
)
