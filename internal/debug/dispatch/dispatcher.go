package dispatch

import (
	"context"
	"runtime/debug"
	"sync"
	"sync/atomic"
)

// PanicHandler is called when a dispatched function panics.
// It receives the panic value and the stack trace of the dispatcher goroutine.
type PanicHandler func(panicValue any, stack []byte)

// defaultPanicHandler is a no-op panic handler.
func defaultPanicHandler(panicValue any, stack []byte) {}

type state int

const (
	stateIdle state = iota
	stateRunning
	stateShuttingDown
	stateStopped
)

// Dispatcher runs queued functions one at a time on a dedicated goroutine.
type Dispatcher struct {
	name         string
	panicHandler PanicHandler

	mu    sync.Mutex
	cond  *sync.Cond
	queue []func()
	state state
	done  chan struct{}

	// active is set while the loop goroutine is executing a function.
	active atomic.Bool

	enqueued  atomic.Uint64
	processed atomic.Uint64
	dropped   atomic.Uint64
	panicked  atomic.Uint64
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithPanicHandler sets the handler invoked when a dispatched function panics.
func WithPanicHandler(h PanicHandler) Option {
	return func(d *Dispatcher) {
		if h != nil {
			d.panicHandler = h
		}
	}
}

// WithName names the dispatcher. The name is only informational.
func WithName(name string) Option {
	return func(d *Dispatcher) {
		d.name = name
	}
}

// New creates a dispatcher. Work may be queued before Start; it runs once the
// loop begins.
func New(opts ...Option) *Dispatcher {
	d := &Dispatcher{
		name:         "dispatcher",
		panicHandler: defaultPanicHandler,
		done:         make(chan struct{}),
	}
	d.cond = sync.NewCond(&d.mu)
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Name returns the dispatcher name.
func (d *Dispatcher) Name() string {
	return d.name
}

// Start launches the loop goroutine.
func (d *Dispatcher) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch d.state {
	case stateRunning:
		return ErrAlreadyRunning
	case stateShuttingDown, stateStopped:
		return ErrShutdown
	}

	d.state = stateRunning
	go d.loop()
	return nil
}

// BeginInvoke queues fn and returns immediately. It returns false, and fn is
// dropped, once shutdown has started.
func (d *Dispatcher) BeginInvoke(fn func()) bool {
	if fn == nil {
		return false
	}

	d.mu.Lock()
	if d.state >= stateShuttingDown {
		d.mu.Unlock()
		d.dropped.Add(1)
		return false
	}
	d.queue = append(d.queue, fn)
	d.enqueued.Add(1)
	d.mu.Unlock()

	d.cond.Signal()
	return true
}

// Invoke queues fn and blocks until it has run or ctx is done.
// It must not be called from the dispatcher goroutine.
func (d *Dispatcher) Invoke(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	ok := d.BeginInvoke(func() {
		defer close(finished)
		fn()
	})
	if !ok {
		return ErrShutdown
	}

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Flush waits until every function queued before the call has run.
func (d *Dispatcher) Flush(ctx context.Context) error {
	return d.Invoke(ctx, func() {})
}

// HasShutdownStarted reports whether Shutdown has been called.
func (d *Dispatcher) HasShutdownStarted() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state >= stateShuttingDown
}

// Shutdown stops accepting work, lets already queued work finish, and waits
// for the loop goroutine to exit or ctx to be done. A dispatcher that was
// never started discards its queue. Calling Shutdown again waits for the same
// exit.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	switch d.state {
	case stateIdle:
		d.dropped.Add(uint64(len(d.queue)))
		d.queue = nil
		d.state = stateStopped
		close(d.done)
		d.mu.Unlock()
		return nil
	case stateRunning:
		d.state = stateShuttingDown
	}
	d.mu.Unlock()
	d.cond.Broadcast()

	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done returns a channel closed when the loop goroutine has exited.
func (d *Dispatcher) Done() <-chan struct{} {
	return d.done
}

// loop is the dispatcher goroutine.
func (d *Dispatcher) loop() {
	defer close(d.done)

	for {
		d.mu.Lock()
		for len(d.queue) == 0 && d.state == stateRunning {
			d.cond.Wait()
		}
		if len(d.queue) == 0 {
			d.state = stateStopped
			d.mu.Unlock()
			return
		}
		fn := d.queue[0]
		d.queue[0] = nil
		d.queue = d.queue[1:]
		d.mu.Unlock()

		d.execute(fn)
	}
}

// execute runs one function with panic recovery.
func (d *Dispatcher) execute(fn func()) {
	d.active.Store(true)
	defer func() {
		d.active.Store(false)
		d.processed.Add(1)

		if r := recover(); r != nil {
			d.panicked.Add(1)
			stack := debug.Stack()

			// Protect the panic handler call - don't let it kill the loop
			func() {
				defer func() { _ = recover() }()
				d.panicHandler(r, stack)
			}()
		}
	}()

	fn()
}

// QueueDepth returns the number of functions waiting to run.
func (d *Dispatcher) QueueDepth() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queue)
}

// Stats returns dispatcher statistics.
func (d *Dispatcher) Stats() Stats {
	return Stats{
		Enqueued:   d.enqueued.Load(),
		Processed:  d.processed.Load(),
		Dropped:    d.dropped.Load(),
		Panicked:   d.panicked.Load(),
		QueueDepth: d.QueueDepth(),
		Busy:       d.active.Load(),
	}
}

// Stats contains statistics for a dispatcher.
type Stats struct {
	// Enqueued is the total number of functions accepted.
	Enqueued uint64

	// Processed is the number of functions that have run, including panics.
	Processed uint64

	// Dropped is the number of functions rejected or discarded by shutdown.
	Dropped uint64

	// Panicked is the number of functions that panicked.
	Panicked uint64

	// QueueDepth is the number of functions waiting to run.
	QueueDepth int

	// Busy reports whether a function is executing right now.
	Busy bool
}
