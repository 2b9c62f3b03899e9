// Package enginetest provides a scriptable in-memory engine for tests.
//
// By default an Engine behaves like a cooperative debuggee: Start reports a
// process, a runtime and a main thread, and every command is confirmed with
// the matching message. With Suspended set, each start message stops the
// fake until it is told to Run. Set Silent to confirm nothing and drive the engine by
// hand with Post.
package enginetest

import (
	"context"
	"fmt"
	"sync"

	"github.com/dshills/dbgcore/internal/debug/engine"
)

// Engine is a fake engine.Engine.
type Engine struct {
	mu sync.Mutex

	kind engine.Kind
	opts engine.StartOptions
	sink engine.Sink

	// PID is reported by ProcessCreated.
	PID int
	// DebugTags are returned by Tags.
	DebugTags []string
	// CanDetach is returned by CanDetachWithoutTerminating.
	CanDetach bool
	// Restartable is returned by CanRestart.
	Restartable bool
	// Silent disables automatic messages.
	Silent bool
	// Suspended marks the messages posted by Start as suspended.
	Suspended bool

	StartErr     error
	BreakErr     error
	RunErr       error
	StepErr      error
	DetachErr    error
	TerminateErr error

	started bool
	paused  bool
	stopped bool
	closed  bool
	script  []engine.Message
	calls   []string
}

// Kind implements engine.Engine.
func (e *Engine) Kind() engine.Kind { return e.kind }

// Options returns the options the engine was created with.
func (e *Engine) Options() engine.StartOptions { return e.opts }

// Tags implements engine.Engine.
func (e *Engine) Tags() []string { return e.DebugTags }

// Start implements engine.Engine.
func (e *Engine) Start(ctx context.Context, sink engine.Sink) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.record("start")
	if e.StartErr != nil {
		return e.StartErr
	}
	e.sink = sink
	e.started = true

	if !e.Silent {
		flags := engine.Flags{Suspended: e.Suspended}
		e.script = []engine.Message{
			&engine.ProcessCreated{Flags: flags, PID: e.PID, Name: fmt.Sprintf("proc-%d", e.PID)},
			&engine.RuntimeLoaded{Flags: flags, Runtime: engine.RuntimeInfo{Name: string(e.kind), Tags: e.DebugTags}},
			&engine.ThreadCreated{Flags: flags, Thread: engine.ThreadInfo{ID: 1, Name: "main"}},
		}
		e.advance()
	}
	return nil
}

// Break implements engine.Engine.
func (e *Engine) Break() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.record("break")
	if err := e.check(e.BreakErr); err != nil {
		return err
	}
	if !e.Silent && !e.paused && !e.stopped {
		e.paused = true
		e.sink.Post(&engine.BreakRequested{Flags: engine.Flags{Pause: true}, ThreadID: 1, Reason: "pause"})
	}
	return nil
}

// Run implements engine.Engine.
func (e *Engine) Run() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.record("run")
	if err := e.check(e.RunErr); err != nil {
		return err
	}
	if !e.Silent {
		if e.paused || e.stopped {
			e.paused = false
			e.stopped = false
			e.sink.Post(&engine.Running{})
		}
		e.advance()
	}
	return nil
}

// advance posts the rest of the start script, stopping after a suspended
// message until the next Run.
func (e *Engine) advance() {
	for len(e.script) > 0 && !e.stopped {
		m := e.script[0]
		e.script = e.script[1:]
		if m.MessageFlags().Suspended {
			e.stopped = true
		}
		e.sink.Post(m)
	}
}

// Step implements engine.Engine.
func (e *Engine) Step(threadID int, kind engine.StepKind) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.record(fmt.Sprintf("step-%s:%d", kind, threadID))
	if err := e.check(e.StepErr); err != nil {
		return err
	}
	if !e.Silent {
		e.sink.Post(&engine.Running{})
		e.sink.Post(&engine.BreakRequested{Flags: engine.Flags{Pause: true}, ThreadID: threadID, Reason: "step"})
		e.paused = true
	}
	return nil
}

// Detach implements engine.Engine.
func (e *Engine) Detach() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.record("detach")
	if err := e.check(e.DetachErr); err != nil {
		return err
	}
	if !e.CanDetach {
		return engine.ErrNotSupported
	}
	if !e.Silent {
		e.sink.Post(&engine.Detached{})
	}
	return nil
}

// Terminate implements engine.Engine.
func (e *Engine) Terminate() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.record("terminate")
	if err := e.check(e.TerminateErr); err != nil {
		return err
	}
	if !e.Silent {
		e.sink.Post(&engine.ProcessExited{ExitCode: -1})
	}
	return nil
}

// CanDetachWithoutTerminating implements engine.Engine.
func (e *Engine) CanDetachWithoutTerminating() bool { return e.CanDetach }

// CanRestart implements engine.Engine.
func (e *Engine) CanRestart() bool { return e.Restartable }

// Close implements engine.Engine.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.record("close")
	e.closed = true
	return nil
}

// Post delivers a message as if the engine produced it.
func (e *Engine) Post(m engine.Message) {
	e.mu.Lock()
	sink := e.sink
	switch m.(type) {
	case *engine.BreakRequested:
		e.paused = true
	case *engine.Running:
		e.paused = false
	default:
		if m.MessageFlags().Suspended {
			e.stopped = true
		}
	}
	e.mu.Unlock()

	if sink != nil {
		sink.Post(m)
	}
}

// Calls returns the commands received so far, in order.
func (e *Engine) Calls() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.calls...)
}

// Count returns how many times a command was received.
func (e *Engine) Count(call string) int {
	n := 0
	for _, c := range e.Calls() {
		if c == call {
			n++
		}
	}
	return n
}

// Closed reports whether Close was called.
func (e *Engine) Closed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

func (e *Engine) record(call string) {
	e.calls = append(e.calls, call)
}

func (e *Engine) check(err error) error {
	if !e.started {
		return engine.ErrNotStarted
	}
	return err
}

// Factory creates Engines and remembers them.
type Factory struct {
	mu      sync.Mutex
	nextPID int
	engines []*Engine

	// Configure, if set, adjusts every new engine before it is returned.
	Configure func(e *Engine)
}

// Provider returns an engine.Provider backed by the factory.
func (f *Factory) Provider() engine.Provider {
	return func(opts engine.StartOptions) (engine.Engine, error) {
		return f.create(opts), nil
	}
}

// Register registers the factory for kinds on r.
func (f *Factory) Register(r *engine.Registry, kinds ...engine.Kind) {
	for _, k := range kinds {
		r.Register(k, f.Provider())
	}
}

func (f *Factory) create(opts engine.StartOptions) *Engine {
	f.mu.Lock()
	f.nextPID++
	e := &Engine{
		kind:      opts.RuntimeKind(),
		opts:      opts,
		PID:       1000 + f.nextPID,
		DebugTags: []string{string(opts.RuntimeKind())},
	}
	if a, ok := opts.(*engine.AttachOptions); ok && a.PID != 0 {
		e.PID = a.PID
		e.CanDetach = true
	}
	configure := f.Configure
	f.mu.Unlock()

	if configure != nil {
		configure(e)
	}

	f.mu.Lock()
	f.engines = append(f.engines, e)
	f.mu.Unlock()
	return e
}

// Engines returns every engine created so far.
func (f *Factory) Engines() []*Engine {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*Engine(nil), f.engines...)
}

// Last returns the most recently created engine, or nil.
func (f *Factory) Last() *Engine {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.engines) == 0 {
		return nil
	}
	return f.engines[len(f.engines)-1]
}
