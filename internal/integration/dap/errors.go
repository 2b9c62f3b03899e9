package dap

import (
	"errors"
	"fmt"
)

// Sentinel errors.
var (
	// ErrClosed is returned for requests on a closed client.
	ErrClosed = errors.New("dap client closed")

	// ErrUnexpectedResponse is returned when a response has the wrong type.
	ErrUnexpectedResponse = errors.New("unexpected dap response")
)

// ResponseError is a response with success=false.
type ResponseError struct {
	Command string
	Message string
}

// Error implements error.
func (e *ResponseError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s failed", e.Command)
	}
	return fmt.Sprintf("%s failed: %s", e.Command, e.Message)
}

// DecodeError reports a well framed message the codec could not decode,
// usually an event or response the codec does not know.
type DecodeError struct {
	Content []byte
	Err     error
}

// Error implements error.
func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode dap message: %v", e.Err)
}

// Unwrap returns the codec error.
func (e *DecodeError) Unwrap() error {
	return e.Err
}
