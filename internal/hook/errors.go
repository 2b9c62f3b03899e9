package hook

import "errors"

var (
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("hook runner closed")

	// ErrNoHandler is returned when a script does not define on_message.
	ErrNoHandler = errors.New("script does not define on_message")
)
