package debug

import "time"

// DebuggingContext exists for the duration of one debugging epoch, from the
// first started process to the removal of the last one. Extension data
// attached to it with GetOrCreateData is released when the epoch ends.
type DebuggingContext struct {
	Base

	epoch   int
	started time.Time
}

func newDebuggingContext(epoch int) *DebuggingContext {
	return &DebuggingContext{Base: newBase(), epoch: epoch, started: time.Now()}
}

// Epoch returns the sequence number of the epoch, starting at 1.
func (c *DebuggingContext) Epoch() int { return c.epoch }

// Started returns the time the epoch began.
func (c *DebuggingContext) Started() time.Time { return c.started }

// Close ends the context.
func (c *DebuggingContext) Close() { c.finish() }
