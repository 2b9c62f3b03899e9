// Package dispatch provides the single goroutine execution context that owns
// all debugger session state.
//
// A Dispatcher drains an unbounded multi-producer queue strictly in arrival
// order on one goroutine. Any goroutine may enqueue work with BeginInvoke or
// Invoke; only the dispatcher goroutine runs it. Nothing that runs on the
// dispatcher needs a lock to touch the object graph, as long as every mutation
// is routed through here.
//
// Once Shutdown has begun, new work is dropped silently: BeginInvoke reports
// false and Invoke returns ErrShutdown. Work that was already queued still
// runs before the goroutine exits.
//
// A function that panics is recovered and reported to the PanicHandler. The
// loop then continues with the next queued function.
package dispatch
