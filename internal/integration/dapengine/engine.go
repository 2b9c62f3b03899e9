package dapengine

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	godap "github.com/google/go-dap"
	"go.uber.org/zap"

	"github.com/dshills/dbgcore/internal/debug/dispatch"
	"github.com/dshills/dbgcore/internal/debug/engine"
	"github.com/dshills/dbgcore/internal/integration/adapters"
	"github.com/dshills/dbgcore/internal/integration/dap"
	"github.com/dshills/dbgcore/internal/integration/process"
)

// DefaultRequestTimeout bounds each request sent for an engine command.
const DefaultRequestTimeout = 10 * time.Second

// Connector opens the DAP transport for an engine.
type Connector func(ctx context.Context) (dap.Transport, error)

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// WithRequestTimeout sets the per command request timeout.
func WithRequestTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithSupervisor starts adapters through s. Each engine gets its own
// supervisor by default.
func WithSupervisor(s *process.Supervisor) Option {
	return func(e *Engine) {
		if s != nil {
			e.sup = s
		}
	}
}

// WithConnector replaces the default adapter startup.
func WithConnector(c Connector) Option {
	return func(e *Engine) {
		e.connect = c
	}
}

// state is the debuggee state as seen through the adapter.
type state int

const (
	stateConfiguring state = iota
	stateRunning
	stateStopped
	stateTerminated
)

func (s state) String() string {
	switch s {
	case stateConfiguring:
		return "configuring"
	case stateRunning:
		return "running"
	case stateStopped:
		return "stopped"
	case stateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Engine is an engine.Engine backed by a DAP adapter.
type Engine struct {
	adapter adapters.Adapter
	opts    engine.StartOptions
	log     *zap.Logger
	timeout time.Duration
	connect Connector
	sup     *process.Supervisor

	// worker serializes adapter events and engine commands.
	worker *dispatch.Dispatcher

	mu      sync.Mutex
	client  *dap.Client
	proc    *process.Process
	sink    engine.Sink
	caps    godap.Capabilities
	started bool
	closed  bool

	initialized chan struct{}
	initOnce    sync.Once

	// Worker only.
	state      state
	announced  bool
	pid        int
	name       string
	threads    map[int]bool
	lastThread int
	exitCode   int
	detaching  bool
	finished   bool
}

// New creates an engine for adapter a.
func New(a adapters.Adapter, opts engine.StartOptions, options ...Option) *Engine {
	e := &Engine{
		adapter:     a,
		opts:        opts,
		log:         zap.NewNop(),
		timeout:     DefaultRequestTimeout,
		initialized: make(chan struct{}),
		threads:     make(map[int]bool),
		exitCode:    -1,
	}
	for _, o := range options {
		o(e)
	}
	e.log = e.log.With(zap.String("kind", string(a.Kind())))
	if e.sup == nil {
		e.sup = process.NewSupervisor(process.WithLogger(e.log))
	}
	e.worker = dispatch.New(
		dispatch.WithName("dap-"+string(a.Kind())),
		dispatch.WithPanicHandler(func(v any, stack []byte) {
			e.log.Error("dap engine panic", zap.Any("panic", v), zap.ByteString("stack", stack))
		}),
	)
	if e.connect == nil {
		e.connect = e.dial
	}
	switch o := opts.(type) {
	case *engine.AttachOptions:
		e.pid = o.PID
	case *engine.LaunchOptions:
		e.name = filepath.Base(o.Filename)
	}
	return e
}

// Provider returns an engine.Provider creating DAP engines for the kinds in reg.
func Provider(reg *adapters.Registry, options ...Option) engine.Provider {
	return func(opts engine.StartOptions) (engine.Engine, error) {
		a, err := reg.Lookup(opts.RuntimeKind())
		if err != nil {
			return nil, err
		}
		return New(a, opts, options...), nil
	}
}

// Register registers the DAP engine on r for every adapter kind in reg.
func Register(r *engine.Registry, reg *adapters.Registry, options ...Option) {
	p := Provider(reg, options...)
	for _, kind := range reg.Kinds() {
		r.Register(kind, p)
	}
}

// Kind implements engine.Engine.
func (e *Engine) Kind() engine.Kind { return e.adapter.Kind() }

// Tags implements engine.Engine.
func (e *Engine) Tags() []string { return e.adapter.Tags() }

// CanDetachWithoutTerminating implements engine.Engine. Attached debuggees
// survive a disconnect; launched ones only if the adapter can leave them
// running.
func (e *Engine) CanDetachWithoutTerminating() bool {
	if e.opts.StartKind() == engine.Attach {
		return true
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.caps.SupportTerminateDebuggee
}

// CanRestart implements engine.Engine. Only launched programs can be
// relaunched with the same options.
func (e *Engine) CanRestart() bool {
	return e.opts.StartKind() == engine.Launch
}

// Start implements engine.Engine. It returns once the adapter is
// configured. A launch that fails after that is reported as LaunchFailed.
func (e *Engine) Start(ctx context.Context, sink engine.Sink) error {
	e.mu.Lock()
	if e.started {
		e.mu.Unlock()
		return ErrAlreadyStarted
	}
	if e.closed {
		e.mu.Unlock()
		return ErrClosed
	}
	e.started = true
	e.sink = sink
	e.mu.Unlock()

	if err := e.worker.Start(); err != nil {
		return err
	}

	t, err := e.connect(ctx)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", e.adapter.Name(), err)
	}
	c := dap.NewClient(t)
	c.OnEvent(func(ev godap.EventMessage) {
		e.worker.BeginInvoke(func() { e.handleEvent(ev) })
	})
	e.mu.Lock()
	e.client = c
	e.mu.Unlock()
	go e.watch(c)

	caps, err := c.Initialize(ctx, dap.DefaultInitializeArguments(e.adapter.ID()))
	if err != nil {
		return fmt.Errorf("initialize: %w", err)
	}
	e.mu.Lock()
	e.caps = *caps
	e.mu.Unlock()

	request, args, err := e.startRequest()
	if err != nil {
		return err
	}

	// Adapters answer launch either before or after the initialized event;
	// debugpy only answers after configurationDone.
	launched := make(chan error, 1)
	go func() {
		_, err := c.Do(context.Background(), request, args)
		launched <- err
	}()

	answered := false
	select {
	case <-e.initialized:
	case err := <-launched:
		if err != nil {
			return fmt.Errorf("%s: %w", request, err)
		}
		answered = true
		select {
		case <-e.initialized:
		case <-ctx.Done():
			return ctx.Err()
		}
	case <-ctx.Done():
		return ctx.Err()
	}

	if caps.SupportsConfigurationDoneRequest {
		if err := c.ConfigurationDone(ctx); err != nil {
			return fmt.Errorf("configurationDone: %w", err)
		}
	}

	if answered {
		e.worker.BeginInvoke(e.announce)
		return nil
	}
	go func() {
		err := <-launched
		e.worker.BeginInvoke(func() {
			if err != nil {
				if !e.finished {
					e.finished = true
					e.state = stateTerminated
					e.post(&engine.LaunchFailed{Err: fmt.Errorf("%s: %w", request, err)})
				}
				return
			}
			e.announce()
		})
	}()
	return nil
}

func (e *Engine) startRequest() (string, map[string]any, error) {
	switch o := e.opts.(type) {
	case *engine.LaunchOptions:
		return "launch", e.adapter.LaunchArgs(o), nil
	case *engine.AttachOptions:
		args, err := e.adapter.AttachArgs(o)
		return "attach", args, err
	default:
		return "", nil, &engine.OptionError{Field: "options", Reason: fmt.Sprintf("unsupported type %T", e.opts)}
	}
}

// dial starts the adapter, or connects to a remote one for attach options
// carrying an address.
func (e *Engine) dial(ctx context.Context) (dap.Transport, error) {
	if a, ok := e.opts.(*engine.AttachOptions); ok && a.Address != "" {
		return dap.DialTransport(ctx, a.Address)
	}

	if e.adapter.Connection() == adapters.ConnectStdio {
		cmd, err := e.adapter.Command("")
		if err != nil {
			return nil, err
		}
		rwc, err := dap.StdioPipes(cmd)
		if err != nil {
			return nil, err
		}
		if err := e.spawn(cmd); err != nil {
			rwc.Close()
			return nil, err
		}
		return dap.NewStreamTransport(rwc), nil
	}

	host := "127.0.0.1"
	if h, ok := e.adapter.(interface{ Host() string }); ok {
		host = h.Host()
	}
	addr, err := adapters.FreeAddress(host)
	if err != nil {
		return nil, err
	}
	cmd, err := e.adapter.Command(addr)
	if err != nil {
		return nil, err
	}
	if err := e.spawn(cmd); err != nil {
		return nil, err
	}

	if err := adapters.WaitForAddress(ctx, addr); err != nil {
		return nil, err
	}
	return dap.DialTransport(ctx, addr)
}

func (e *Engine) spawn(cmd *exec.Cmd) error {
	proc, err := e.sup.Start(string(e.adapter.Kind()), cmd)
	if err != nil {
		return err
	}
	e.mu.Lock()
	e.proc = proc
	e.mu.Unlock()
	return nil
}

// watch reports the end of the adapter connection.
func (e *Engine) watch(c *dap.Client) {
	<-c.Stopped()
	if err := c.Err(); err != nil && !errors.Is(err, dap.ErrClosed) {
		e.log.Info("adapter connection ended", zap.Error(err))
	}
	e.worker.BeginInvoke(e.finish)
}

func (e *Engine) post(m engine.Message) {
	e.mu.Lock()
	sink := e.sink
	e.mu.Unlock()
	if sink != nil {
		sink.Post(m)
	}
}

// announce reports the process and its runtime once.
func (e *Engine) announce() {
	if e.announced || e.finished {
		return
	}
	e.announced = true
	if e.state == stateConfiguring {
		e.state = stateRunning
	}
	e.post(&engine.ProcessCreated{PID: e.pid, Name: e.name})
	e.post(&engine.RuntimeLoaded{Runtime: engine.RuntimeInfo{Name: e.adapter.ID(), Tags: e.adapter.Tags()}})
}

func (e *Engine) finish() {
	if e.finished {
		return
	}
	e.finished = true
	e.state = stateTerminated
	if e.detaching {
		e.post(&engine.Detached{})
		return
	}
	e.post(&engine.ProcessExited{ExitCode: e.exitCode})
}

func (e *Engine) setRunning() {
	if e.finished || e.state == stateRunning {
		return
	}
	e.state = stateRunning
	e.post(&engine.Running{})
}

// handleEvent runs on the worker.
func (e *Engine) handleEvent(ev godap.EventMessage) {
	switch ev := ev.(type) {
	case *godap.InitializedEvent:
		e.initOnce.Do(func() { close(e.initialized) })

	case *godap.ProcessEvent:
		if !e.announced {
			if ev.Body.SystemProcessId != 0 {
				e.pid = ev.Body.SystemProcessId
			}
			if ev.Body.Name != "" {
				e.name = ev.Body.Name
			}
		}
		e.announce()

	case *godap.ThreadEvent:
		e.announce()
		switch ev.Body.Reason {
		case "started":
			e.addThread(ev.Body.ThreadId, "")
		case "exited":
			if e.threads[ev.Body.ThreadId] {
				delete(e.threads, ev.Body.ThreadId)
				e.post(&engine.ThreadExited{ID: ev.Body.ThreadId})
			}
		}

	case *godap.StoppedEvent:
		e.announce()
		e.syncThreads()
		tid := ev.Body.ThreadId
		if tid == 0 {
			tid = e.lastThread
		}
		e.lastThread = tid
		e.state = stateStopped
		e.post(&engine.BreakRequested{Flags: engine.Flags{Pause: true}, ThreadID: tid, Reason: ev.Body.Reason})

	case *godap.ContinuedEvent:
		e.setRunning()

	case *godap.OutputEvent:
		if ev.Body.Category == "telemetry" {
			return
		}
		e.announce()
		e.post(&engine.ProgramOutput{Category: ev.Body.Category, Text: ev.Body.Output})

	case *godap.ModuleEvent:
		e.announce()
		id := fmt.Sprint(ev.Body.Module.Id)
		switch ev.Body.Reason {
		case "new":
			e.post(&engine.ModuleLoaded{Module: engine.ModuleInfo{
				ID:       id,
				Name:     ev.Body.Module.Name,
				Filename: ev.Body.Module.Path,
				IsExe:    e.isProgram(ev.Body.Module.Path),
			}})
		case "removed":
			e.post(&engine.ModuleUnloaded{ID: id})
		}

	case *godap.ExitedEvent:
		e.exitCode = ev.Body.ExitCode

	case *godap.TerminatedEvent:
		e.finish()
	}
}

func (e *Engine) isProgram(path string) bool {
	l, ok := e.opts.(*engine.LaunchOptions)
	return ok && path != "" && filepath.Clean(path) == filepath.Clean(l.Filename)
}

func (e *Engine) addThread(id int, name string) {
	if e.threads[id] {
		return
	}
	e.threads[id] = true
	if e.lastThread == 0 {
		e.lastThread = id
	}
	e.post(&engine.ThreadCreated{Thread: engine.ThreadInfo{ID: id, Name: name}})
}

// syncThreads reports threads the adapter never announced with an event.
func (e *Engine) syncThreads() {
	c := e.currentClient()
	if c == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
	defer cancel()

	threads, err := c.Threads(ctx)
	if err != nil {
		e.log.Debug("threads request failed", zap.Error(err))
		return
	}
	for _, t := range threads {
		e.addThread(t.Id, t.Name)
	}
}

func (e *Engine) currentClient() *dap.Client {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.client
}

// command queues fn on the worker. Failures are logged; completion is
// reported through messages.
func (e *Engine) command(name string, fn func(ctx context.Context, c *dap.Client) error) error {
	e.mu.Lock()
	started, closed, c := e.started, e.closed, e.client
	e.mu.Unlock()

	if closed {
		return ErrClosed
	}
	if !started || c == nil {
		return engine.ErrNotStarted
	}

	queued := e.worker.BeginInvoke(func() {
		if e.finished {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
		defer cancel()
		if err := fn(ctx, c); err != nil {
			e.log.Warn("dap command failed", zap.String("command", name), zap.Error(err))
		}
	})
	if !queued {
		return ErrClosed
	}
	return nil
}

// Break implements engine.Engine.
func (e *Engine) Break() error {
	return e.command("pause", func(ctx context.Context, c *dap.Client) error {
		if e.state == stateStopped {
			return nil
		}
		return c.Pause(ctx, e.lastThread)
	})
}

// Run implements engine.Engine.
func (e *Engine) Run() error {
	return e.command("continue", func(ctx context.Context, c *dap.Client) error {
		if err := c.Continue(ctx, e.lastThread); err != nil {
			return err
		}
		e.setRunning()
		return nil
	})
}

// Step implements engine.Engine.
func (e *Engine) Step(threadID int, kind engine.StepKind) error {
	return e.command("step-"+kind.String(), func(ctx context.Context, c *dap.Client) error {
		var err error
		switch kind {
		case engine.StepInto:
			err = c.StepIn(ctx, threadID)
		case engine.StepOver:
			err = c.Next(ctx, threadID)
		case engine.StepOut:
			err = c.StepOut(ctx, threadID)
		default:
			return fmt.Errorf("%w: step %s", engine.ErrNotSupported, kind)
		}
		if err != nil {
			return err
		}
		e.lastThread = threadID
		e.setRunning()
		return nil
	})
}

// Detach implements engine.Engine.
func (e *Engine) Detach() error {
	if !e.CanDetachWithoutTerminating() {
		return engine.ErrNotSupported
	}
	return e.command("detach", func(ctx context.Context, c *dap.Client) error {
		e.detaching = true
		err := c.Disconnect(ctx, false)
		e.finish()
		return err
	})
}

// Terminate implements engine.Engine.
func (e *Engine) Terminate() error {
	e.mu.Lock()
	graceful := e.caps.SupportsTerminateRequest
	e.mu.Unlock()

	return e.command("terminate", func(ctx context.Context, c *dap.Client) error {
		if graceful {
			if err := c.Terminate(ctx); err == nil {
				return nil
			}
		}
		err := c.Disconnect(ctx, true)
		e.finish()
		return err
	})
}

// Close implements engine.Engine. It closes the connection and stops a
// spawned adapter.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	c, proc := e.client, e.proc
	e.mu.Unlock()

	var err error
	if c != nil {
		err = c.Close()
	}
	if proc != nil {
		proc.Stop(e.timeout)
	}

	ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
	defer cancel()
	_ = e.worker.Shutdown(ctx)
	return err
}
