package dlvengine

import (
	"bufio"
	"context"
	"io"
	"net"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-delve/delve/service/api"
	"github.com/go-delve/delve/service/rpc2"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/dshills/dbgcore/internal/debug/dispatch"
	"github.com/dshills/dbgcore/internal/debug/engine"
	"github.com/dshills/dbgcore/internal/integration/adapters"
	"github.com/dshills/dbgcore/internal/integration/process"
)

// entryFunction is where an entry point break stops.
const entryFunction = "main.main"

var (
	// ErrAlreadyStarted is returned by a second Start.
	ErrAlreadyStarted = errors.New("delve engine already started")

	// ErrClosed is returned for commands after Close.
	ErrClosed = errors.New("delve engine closed")
)

// Connector returns a connection to a Delve JSON-RPC server.
type Connector func(ctx context.Context) (net.Conn, error)

// Config configures the engine.
type Config struct {
	// DlvPath is the dlv executable. Looked up in PATH when empty.
	DlvPath string
	// Logger receives engine logs.
	Logger *zap.Logger
	// Connector replaces spawning dlv.
	Connector Connector
	// Timeout bounds startup and each command.
	Timeout time.Duration
	// Supervisor starts dlv. Each engine gets its own when nil.
	Supervisor *process.Supervisor
}

// Engine is an engine.Engine backed by Delve.
type Engine struct {
	cfg  Config
	opts engine.StartOptions
	log  *zap.Logger

	worker *dispatch.Dispatcher

	mu      sync.Mutex
	conn    net.Conn
	client  *rpc2.RPCClient
	proc    *process.Process
	sink    engine.Sink
	started bool
	closed  bool

	// Worker only.
	script    []engine.Message
	stopped   bool
	finished  bool
	detaching bool
	threads   map[int]bool
	entryBP   int
}

// New creates a Delve engine.
func New(opts engine.StartOptions, cfg Config) *Engine {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Supervisor == nil {
		cfg.Supervisor = process.NewSupervisor(process.WithLogger(cfg.Logger))
	}
	e := &Engine{
		cfg:     cfg,
		opts:    opts,
		log:     cfg.Logger.With(zap.String("kind", string(engine.KindDelve))),
		threads: make(map[int]bool),
	}
	e.worker = dispatch.New(
		dispatch.WithName("delve"),
		dispatch.WithPanicHandler(func(v any, stack []byte) {
			e.log.Error("delve engine panic", zap.Any("panic", v), zap.ByteString("stack", stack))
		}),
	)
	return e
}

// Provider returns an engine.Provider for Delve engines.
func Provider(cfg Config) engine.Provider {
	return func(opts engine.StartOptions) (engine.Engine, error) {
		return New(opts, cfg), nil
	}
}

// Kind implements engine.Engine.
func (e *Engine) Kind() engine.Kind { return engine.KindDelve }

// Tags implements engine.Engine.
func (e *Engine) Tags() []string { return []string{"Go"} }

// CanDetachWithoutTerminating implements engine.Engine. Delve kills
// processes it launched when the server goes away.
func (e *Engine) CanDetachWithoutTerminating() bool {
	return e.opts.StartKind() == engine.Attach
}

// CanRestart implements engine.Engine.
func (e *Engine) CanRestart() bool {
	return e.opts.StartKind() == engine.Launch
}

// Start implements engine.Engine.
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

	ctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	connect := e.cfg.Connector
	if connect == nil {
		connect = e.spawn
	}
	conn, err := connect(ctx)
	if err != nil {
		return errors.Wrap(err, "connect to delve")
	}
	client := rpc2.NewClientFromConn(conn)

	e.mu.Lock()
	e.conn = conn
	e.client = client
	e.mu.Unlock()

	state, err := client.GetState()
	if err != nil {
		return errors.Wrap(err, "get state")
	}

	entryBP := 0
	if e.opts.BreakOn() == engine.BreakEntryPoint {
		bp, err := client.CreateBreakpoint(&api.Breakpoint{FunctionName: entryFunction})
		if err != nil {
			return errors.Wrapf(err, "break at %s", entryFunction)
		}
		entryBP = bp.ID
	}

	pid := client.ProcessPid()
	e.worker.BeginInvoke(func() {
		e.entryBP = entryBP
		e.stopped = true
		e.script = e.startScript(pid, state)
		e.advance()
	})
	return nil
}

// startScript describes the halted debuggee as suspended messages.
func (e *Engine) startScript(pid int, state *api.DebuggerState) []engine.Message {
	suspended := engine.Flags{Suspended: true}
	name := ""
	if l, ok := e.opts.(*engine.LaunchOptions); ok {
		name = filepath.Base(l.Filename)
	}

	script := []engine.Message{
		&engine.ProcessCreated{Flags: suspended, PID: pid, Name: name},
		&engine.RuntimeLoaded{Flags: suspended, Runtime: engine.RuntimeInfo{Name: "go", Tags: e.Tags()}},
	}
	if l, ok := e.opts.(*engine.LaunchOptions); ok {
		script = append(script, &engine.ModuleLoaded{Flags: suspended, Module: engine.ModuleInfo{
			ID:       l.Filename,
			Name:     name,
			Filename: l.Filename,
			IsExe:    true,
		}})
	}
	for _, t := range state.Threads {
		e.threads[t.ID] = true
		script = append(script, &engine.ThreadCreated{Flags: suspended, Thread: engine.ThreadInfo{ID: t.ID, Name: threadName(t)}})
	}
	return script
}

func threadName(t *api.Thread) string {
	if t.Function != nil {
		return t.Function.Name()
	}
	return "thread " + strconv.Itoa(t.ID)
}

// advance posts the next start message. It reports false once the script
// is exhausted.
func (e *Engine) advance() bool {
	if len(e.script) == 0 {
		return false
	}
	m := e.script[0]
	e.script = e.script[1:]
	e.post(m)
	return true
}

// spawn starts a headless dlv, or dials the address of attach options.
func (e *Engine) spawn(ctx context.Context) (net.Conn, error) {
	var d net.Dialer
	if a, ok := e.opts.(*engine.AttachOptions); ok && a.Address != "" {
		return d.DialContext(ctx, "tcp", a.Address)
	}

	dlv := e.cfg.DlvPath
	if dlv == "" {
		var err error
		if dlv, err = adapters.FindExecutable("dlv"); err != nil {
			return nil, err
		}
	}
	addr, err := adapters.FreeAddress("127.0.0.1")
	if err != nil {
		return nil, err
	}

	server := []string{"--headless", "--api-version=2", "--listen=" + addr}
	var cmd *exec.Cmd
	switch o := e.opts.(type) {
	case *engine.LaunchOptions:
		args := append([]string{"exec", o.Filename}, server...)
		args = append(args, "--wd="+o.Dir(), "--")
		cmd = exec.Command(dlv, append(args, o.Args...)...)
		cmd.Env = o.Environ()
	case *engine.AttachOptions:
		cmd = exec.Command(dlv, append([]string{"attach", strconv.Itoa(o.PID)}, server...)...)
	default:
		return nil, &engine.OptionError{Field: "options", Reason: "unsupported type"}
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, err
	}
	proc, err := e.cfg.Supervisor.Start("dlv", cmd)
	if err != nil {
		return nil, errors.Wrapf(err, "start %s", dlv)
	}
	e.mu.Lock()
	e.proc = proc
	e.mu.Unlock()

	go e.forward("stdout", stdout)
	go e.forward("stderr", stderr)

	if err := adapters.WaitForAddress(ctx, addr); err != nil {
		return nil, err
	}
	return d.DialContext(ctx, "tcp", addr)
}

// forward reports the output of dlv and the debuggee it runs.
func (e *Engine) forward(category string, r io.Reader) {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := sc.Text()
		if strings.HasPrefix(line, "API server listening at:") {
			continue
		}
		e.post(&engine.ProgramOutput{Category: category, Text: line + "\n"})
	}
}

func (e *Engine) post(m engine.Message) {
	e.mu.Lock()
	sink := e.sink
	e.mu.Unlock()
	if sink != nil {
		sink.Post(m)
	}
}

func (e *Engine) rpc() *rpc2.RPCClient {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.client
}

// command runs fn on the worker.
func (e *Engine) command(name string, fn func(c *rpc2.RPCClient) error) error {
	e.mu.Lock()
	started, closed, c := e.started, e.closed, e.client
	e.mu.Unlock()

	if closed {
		return ErrClosed
	}
	if !started || c == nil {
		return engine.ErrNotStarted
	}
	ok := e.worker.BeginInvoke(func() {
		if e.finished {
			return
		}
		if err := fn(c); err != nil {
			e.log.Warn("delve command failed", zap.String("command", name), zap.Error(err))
		}
	})
	if !ok {
		return ErrClosed
	}
	return nil
}

// resume waits for the debuggee to stop again.
func (e *Engine) resume(reason string, run func() (*api.DebuggerState, error)) {
	e.stopped = false
	e.post(&engine.Running{})
	go func() {
		state, err := run()
		e.worker.BeginInvoke(func() { e.onStop(state, err, reason) })
	}()
}

func (e *Engine) onStop(state *api.DebuggerState, err error, reason string) {
	if e.finished {
		return
	}
	if state != nil && state.Exited {
		e.finish(state.ExitStatus)
		return
	}
	if err != nil && (state == nil || state.Running) {
		e.log.Warn("delve resume failed", zap.Error(err))
		if c := e.rpc(); c != nil {
			if s, serr := c.GetState(); serr == nil {
				state = s
			} else {
				e.finish(-1)
				return
			}
		}
	}
	if state == nil {
		return
	}

	e.syncThreads(state.Threads)
	tid := 0
	if t := state.CurrentThread; t != nil {
		tid = t.ID
		if bp := t.Breakpoint; bp != nil {
			reason = "breakpoint"
			if e.entryBP != 0 && bp.ID == e.entryBP {
				reason = "entry-point"
				if c := e.rpc(); c != nil {
					if _, err := c.ClearBreakpoint(e.entryBP); err != nil {
						e.log.Debug("clear entry breakpoint", zap.Error(err))
					}
				}
				e.entryBP = 0
			}
		}
	}
	e.stopped = true
	e.post(&engine.BreakRequested{Flags: engine.Flags{Pause: true}, ThreadID: tid, Reason: reason})
}

func (e *Engine) syncThreads(threads []*api.Thread) {
	seen := make(map[int]bool, len(threads))
	for _, t := range threads {
		seen[t.ID] = true
		if !e.threads[t.ID] {
			e.threads[t.ID] = true
			e.post(&engine.ThreadCreated{Thread: engine.ThreadInfo{ID: t.ID, Name: threadName(t)}})
		}
	}
	for id := range e.threads {
		if !seen[id] {
			delete(e.threads, id)
			e.post(&engine.ThreadExited{ID: id})
		}
	}
}

func (e *Engine) finish(exitCode int) {
	if e.finished {
		return
	}
	e.finished = true
	e.script = nil
	if e.detaching {
		e.post(&engine.Detached{})
		return
	}
	e.post(&engine.ProcessExited{ExitCode: exitCode})
}

// Break implements engine.Engine.
func (e *Engine) Break() error {
	return e.command("halt", func(c *rpc2.RPCClient) error {
		if e.stopped {
			return nil
		}
		_, err := c.Halt()
		return errors.Wrap(err, "halt")
	})
}

// Run implements engine.Engine.
func (e *Engine) Run() error {
	return e.command("continue", func(c *rpc2.RPCClient) error {
		if e.advance() || !e.stopped {
			return nil
		}
		e.resume("pause", func() (*api.DebuggerState, error) {
			var last *api.DebuggerState
			for s := range c.Continue() {
				last = s
			}
			if last == nil {
				return nil, errors.New("continue: no state")
			}
			return last, last.Err
		})
		return nil
	})
}

// Step implements engine.Engine.
func (e *Engine) Step(threadID int, kind engine.StepKind) error {
	return e.command("step-"+kind.String(), func(c *rpc2.RPCClient) error {
		if !e.stopped {
			return nil
		}
		if threadID != 0 {
			if _, err := c.SwitchThread(threadID); err != nil {
				return errors.Wrapf(err, "switch to thread %d", threadID)
			}
		}
		var step func() (*api.DebuggerState, error)
		switch kind {
		case engine.StepInto:
			step = c.Step
		case engine.StepOver:
			step = c.Next
		case engine.StepOut:
			step = c.StepOut
		default:
			return errors.Wrapf(engine.ErrNotSupported, "step %s", kind)
		}
		e.script = nil
		e.resume("step", step)
		return nil
	})
}

// Detach implements engine.Engine.
func (e *Engine) Detach() error {
	if !e.CanDetachWithoutTerminating() {
		return engine.ErrNotSupported
	}
	return e.command("detach", func(c *rpc2.RPCClient) error {
		e.detaching = true
		err := c.Detach(false)
		e.finish(0)
		return errors.Wrap(err, "detach")
	})
}

// Terminate implements engine.Engine.
func (e *Engine) Terminate() error {
	return e.command("terminate", func(c *rpc2.RPCClient) error {
		err := c.Detach(true)
		e.finish(-1)
		return errors.Wrap(err, "kill")
	})
}

// Close implements engine.Engine.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	conn, proc := e.conn, e.proc
	e.mu.Unlock()

	var err error
	if conn != nil {
		err = conn.Close()
	}
	if proc != nil {
		proc.Stop(e.cfg.Timeout)
	}

	ctx, cancel := context.WithTimeout(context.Background(), e.cfg.Timeout)
	defer cancel()
	_ = e.worker.Shutdown(ctx)
	return err
}
