package dlvengine

import (
	"context"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"sync"
	"testing"
	"time"

	"github.com/go-delve/delve/service/api"
	"github.com/go-delve/delve/service/rpc2"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/dbgcore/internal/debug/engine"
)

// fakeServer serves the subset of the rpc2 API the engine uses.
type fakeServer struct {
	mu       sync.Mutex
	pid      int
	threads  []*api.Thread
	stops    []api.DebuggerState
	halt     chan struct{}
	calls    []string
	nextBPID int
}

func (s *fakeServer) record(call string) {
	s.mu.Lock()
	s.calls = append(s.calls, call)
	s.mu.Unlock()
}

func (s *fakeServer) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

func (s *fakeServer) State(arg rpc2.StateIn, out *rpc2.StateOut) error {
	s.record("state")
	out.State = &api.DebuggerState{Pid: s.pid, Threads: s.threads}
	return nil
}

func (s *fakeServer) ProcessPid(arg rpc2.ProcessPidIn, out *rpc2.ProcessPidOut) error {
	out.Pid = s.pid
	return nil
}

func (s *fakeServer) CreateBreakpoint(arg rpc2.CreateBreakpointIn, out *rpc2.CreateBreakpointOut) error {
	s.record("break:" + arg.Breakpoint.FunctionName)
	s.mu.Lock()
	s.nextBPID++
	out.Breakpoint = arg.Breakpoint
	out.Breakpoint.ID = s.nextBPID
	s.mu.Unlock()
	return nil
}

func (s *fakeServer) ClearBreakpoint(arg rpc2.ClearBreakpointIn, out *rpc2.ClearBreakpointOut) error {
	s.record("clear")
	out.Breakpoint = &api.Breakpoint{ID: arg.Id}
	return nil
}

func (s *fakeServer) Detach(arg rpc2.DetachIn, out *rpc2.DetachOut) error {
	if arg.Kill {
		s.record("kill")
	} else {
		s.record("detach")
	}
	return nil
}

func (s *fakeServer) Command(cmd api.DebuggerCommand, out *rpc2.CommandOut) error {
	s.record(cmd.Name)
	switch cmd.Name {
	case api.Halt:
		if s.halt != nil {
			close(s.halt)
		}
		out.State = api.DebuggerState{Pid: s.pid, Threads: s.threads}
		return nil
	case api.Continue:
		s.mu.Lock()
		halt := s.halt
		var next *api.DebuggerState
		if len(s.stops) > 0 {
			next = &s.stops[0]
			s.stops = s.stops[1:]
		}
		s.mu.Unlock()
		if next == nil && halt != nil {
			<-halt
			out.State = api.DebuggerState{Pid: s.pid, Threads: s.threads, CurrentThread: s.threads[0]}
			return nil
		}
		if next == nil {
			return errors.New("no stop scripted")
		}
		out.State = *next
		return nil
	case api.Next, api.Step, api.StepOut:
		out.State = api.DebuggerState{Pid: s.pid, Threads: s.threads, CurrentThread: s.threads[0]}
		return nil
	case api.SwitchThread:
		out.State = api.DebuggerState{Pid: s.pid, Threads: s.threads}
		return nil
	}
	return errors.Errorf("unexpected command %s", cmd.Name)
}

func (s *fakeServer) connector() Connector {
	return func(context.Context) (net.Conn, error) {
		client, server := net.Pipe()
		srv := rpc.NewServer()
		if err := srv.RegisterName("RPCServer", s); err != nil {
			return nil, err
		}
		go srv.ServeCodec(jsonrpc.NewServerCodec(server))
		return client, nil
	}
}

type sink chan engine.Message

func (s sink) Post(m engine.Message) { s <- m }

func (s sink) next(t *testing.T) engine.Message {
	t.Helper()
	select {
	case m := <-s:
		return m
	case <-time.After(2 * time.Second):
		t.Fatal("no message")
		return nil
	}
}

func start(t *testing.T, srv *fakeServer, opts engine.StartOptions) (*Engine, sink) {
	t.Helper()
	e := New(opts, Config{Connector: srv.connector(), Timeout: 2 * time.Second})
	t.Cleanup(func() { _ = e.Close() })
	s := make(sink, 64)
	require.NoError(t, e.Start(context.Background(), s))
	return e, s
}

func TestEngineLaunchToEntryPointAndExit(t *testing.T) {
	threads := []*api.Thread{{ID: 1}}
	srv := &fakeServer{
		pid:     555,
		threads: threads,
		stops: []api.DebuggerState{
			{Pid: 555, Threads: threads, CurrentThread: &api.Thread{ID: 1, Breakpoint: &api.Breakpoint{ID: 1}}},
			{Pid: 555, Exited: true, ExitStatus: 4},
		},
	}
	e, s := start(t, srv, &engine.LaunchOptions{Runtime: engine.KindDelve, Filename: "/work/app", Break: engine.BreakEntryPoint})

	created, ok := s.next(t).(*engine.ProcessCreated)
	require.True(t, ok)
	assert.Equal(t, 555, created.PID)
	assert.Equal(t, "app", created.Name)
	assert.True(t, created.Suspended)

	require.NoError(t, e.Run())
	assert.IsType(t, &engine.RuntimeLoaded{}, s.next(t))

	require.NoError(t, e.Run())
	mod, ok := s.next(t).(*engine.ModuleLoaded)
	require.True(t, ok)
	assert.True(t, mod.Module.IsExe)

	require.NoError(t, e.Run())
	thread, ok := s.next(t).(*engine.ThreadCreated)
	require.True(t, ok)
	assert.Equal(t, engine.ThreadInfo{ID: 1, Name: "thread 1"}, thread.Thread)

	require.NoError(t, e.Run())
	assert.IsType(t, &engine.Running{}, s.next(t))
	brk, ok := s.next(t).(*engine.BreakRequested)
	require.True(t, ok)
	assert.Equal(t, "entry-point", brk.Reason)
	assert.Equal(t, 1, brk.ThreadID)

	require.NoError(t, e.Run())
	assert.IsType(t, &engine.Running{}, s.next(t))
	exited, ok := s.next(t).(*engine.ProcessExited)
	require.True(t, ok)
	assert.Equal(t, 4, exited.ExitCode)

	calls := srv.Calls()
	assert.Contains(t, calls, "break:main.main")
	assert.Contains(t, calls, "clear")
}

func TestEngineAttachHaltAndDetach(t *testing.T) {
	srv := &fakeServer{pid: 77, threads: []*api.Thread{{ID: 3}}, halt: make(chan struct{})}
	e, s := start(t, srv, &engine.AttachOptions{Runtime: engine.KindDelve, Address: "127.0.0.1:2345"})

	assert.True(t, e.CanDetachWithoutTerminating())
	assert.False(t, e.CanRestart())

	assert.IsType(t, &engine.ProcessCreated{}, s.next(t))
	require.NoError(t, e.Run())
	assert.IsType(t, &engine.RuntimeLoaded{}, s.next(t))
	require.NoError(t, e.Run())
	assert.IsType(t, &engine.ThreadCreated{}, s.next(t))

	require.NoError(t, e.Run())
	assert.IsType(t, &engine.Running{}, s.next(t))

	require.NoError(t, e.Break())
	brk, ok := s.next(t).(*engine.BreakRequested)
	require.True(t, ok)
	assert.Equal(t, "pause", brk.Reason)
	assert.Equal(t, 3, brk.ThreadID)

	require.NoError(t, e.Detach())
	assert.IsType(t, &engine.Detached{}, s.next(t))
	assert.Contains(t, srv.Calls(), "detach")
}

func TestEngineStepAndTerminate(t *testing.T) {
	srv := &fakeServer{pid: 9, threads: []*api.Thread{{ID: 1}}}
	e, s := start(t, srv, &engine.LaunchOptions{Runtime: engine.KindDelve, Filename: "/work/app"})
	for i := 0; i < 4; i++ {
		s.next(t)
		if i < 3 {
			require.NoError(t, e.Run())
		}
	}

	require.NoError(t, e.Step(1, engine.StepOver))
	assert.IsType(t, &engine.Running{}, s.next(t))
	brk, ok := s.next(t).(*engine.BreakRequested)
	require.True(t, ok)
	assert.Equal(t, "step", brk.Reason)

	require.NoError(t, e.Terminate())
	assert.IsType(t, &engine.ProcessExited{}, s.next(t))
	assert.Contains(t, srv.Calls(), api.Next)
	assert.Contains(t, srv.Calls(), "kill")

	assert.ErrorIs(t, e.Detach(), engine.ErrNotSupported)
}

func TestEngineCommandsNeedStart(t *testing.T) {
	e := New(&engine.LaunchOptions{Runtime: engine.KindDelve, Filename: "/work/app"}, Config{})
	assert.ErrorIs(t, e.Run(), engine.ErrNotStarted)
	require.NoError(t, e.Close())
	assert.ErrorIs(t, e.Break(), ErrClosed)
}
