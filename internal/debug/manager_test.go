package debug

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/dbgcore/internal/debug/engine"
	"github.com/dshills/dbgcore/internal/debug/enginetest"
)

func TestNew_RequiresRegistry(t *testing.T) {
	assert.Panics(t, func() { New(Options{}) })
}

func TestManager_SingleProcessLifecycle(t *testing.T) {
	h := newHarness(t, nil)
	m := h.m

	var debugging []bool
	var added, removed int
	m.IsDebuggingChanged.Subscribe(func(v bool) { debugging = append(debugging, v) })
	m.ProcessesChanged().Subscribe(func(c CollectionChanged[*Process]) {
		added += len(c.Added)
		removed += len(c.Removed)
	})

	e := h.launch()
	assert.Equal(t, []bool{true}, debugging)
	assert.Equal(t, 1, added)
	assert.True(t, m.IsDebugging())
	assert.Equal(t, RunRunning, m.IsRunning())

	p := h.processOf(e)
	assert.Equal(t, ProcessRunning, p.State())
	h.on(func() { require.NotNil(t, m.DebuggingContext()) })

	e.Post(&engine.BreakRequested{Flags: engine.Flags{Pause: true}, ThreadID: 1, Reason: "breakpoint"})
	h.settle()

	h.on(func() {
		assert.Same(t, p, m.CurrentProcess.Current())
		assert.Same(t, p, m.CurrentProcess.Break())
		require.NotNil(t, m.CurrentThread.Break())
		assert.Equal(t, 1, m.CurrentThread.Break().EngineID())
		assert.Same(t, m.CurrentThread.Break(), m.CurrentThread.Current())
		assert.Same(t, p, m.CurrentRuntime.Current().Process())
	})
	assert.Equal(t, RunPaused, m.IsRunning())

	m.RunAll()
	h.settle()
	assert.Equal(t, RunRunning, m.IsRunning())
	h.on(func() { assert.Nil(t, m.CurrentProcess.Break()) })

	m.TerminateAll()
	h.settle()
	assert.Equal(t, []bool{true, false}, debugging)
	assert.Equal(t, 1, removed)
	assert.False(t, m.IsDebugging())
	assert.Equal(t, RunUnknown, m.IsRunning())
	assert.True(t, p.IsClosed())
	h.on(func() {
		assert.Nil(t, m.DebuggingContext())
		assert.Nil(t, m.CurrentProcess.Current())
		assert.Nil(t, m.CurrentThread.Current())
	})
	require.Eventually(t, e.Closed, time.Second, time.Millisecond)
}

func TestManager_MixedRunState(t *testing.T) {
	h := newHarness(t, nil)
	m := h.m

	var states []RunState
	m.IsRunningChanged.Subscribe(func(s RunState) { states = append(states, s) })

	a := h.launch()
	b := h.launch()
	require.Len(t, h.processes(), 2)

	a.Post(&engine.BreakRequested{Flags: engine.Flags{Pause: true}, ThreadID: 1})
	h.settle()
	assert.Equal(t, RunMixed, m.IsRunning())

	b.Post(&engine.BreakRequested{Flags: engine.Flags{Pause: true}, ThreadID: 1})
	h.settle()
	assert.Equal(t, RunPaused, m.IsRunning())

	assert.Equal(t, []RunState{RunRunning, RunMixed, RunPaused}, states)
}

func TestManager_BreakAllIdempotent(t *testing.T) {
	h := newHarness(t, nil)
	a := h.launch()
	b := h.launch()

	h.m.BreakAll()
	h.settle()
	assert.Equal(t, RunPaused, h.m.IsRunning())

	h.m.BreakAll()
	h.settle()
	assert.Equal(t, RunPaused, h.m.IsRunning())

	assert.Equal(t, 1, a.Count("break"))
	assert.Equal(t, 1, b.Count("break"))
	for _, p := range h.processes() {
		assert.NotEqual(t, ProcessRunning, p.State())
	}
}

func TestManager_BreakAllWaitsForConfirmation(t *testing.T) {
	h := newHarness(t, func(e *enginetest.Engine) { e.Silent = true })
	e := h.launch()
	e.Post(&engine.ProcessCreated{PID: e.PID})
	h.settle()

	h.m.BreakAll()
	h.settle()
	assert.Equal(t, 1, e.Count("break"))
	assert.Equal(t, RunRunning, h.m.IsRunning(), "state follows confirmations only")

	e.Post(&engine.BreakRequested{Flags: engine.Flags{Pause: true}})
	h.settle()
	assert.Equal(t, RunPaused, h.m.IsRunning())
}

func TestManager_StopDebuggingAllMixedDetach(t *testing.T) {
	h := newHarness(t, func(e *enginetest.Engine) {
		if e.Kind() == engine.KindPython {
			e.CanDetach = false
			e.TerminateErr = errors.New("unresponsive")
		} else {
			e.CanDetach = true
		}
	})

	a := h.start(h.launchOptions(engine.KindDelve))
	b := h.start(h.launchOptions(engine.KindPython))
	assert.False(t, h.m.CanDetachWithoutTerminating())

	h.m.StopDebuggingAll()
	h.settle()

	assert.Equal(t, []string{"start", "detach"}, a.Calls()[:2])
	assert.Zero(t, a.Count("terminate"))
	assert.Equal(t, 1, b.Count("terminate"))
	assert.Zero(t, b.Count("detach"))

	ps := h.processes()
	require.Len(t, ps, 1, "the unresponsive process stays")
	assert.Equal(t, b.PID, ps[0].PID())
}

func TestManager_StopDebuggingAllFallsBackToTerminate(t *testing.T) {
	h := newHarness(t, func(e *enginetest.Engine) {
		e.CanDetach = true
		e.DetachErr = errors.New("detach refused")
	})
	e := h.launch()

	h.m.StopDebuggingAll()
	h.settle()

	assert.Equal(t, 1, e.Count("detach"))
	assert.Equal(t, 1, e.Count("terminate"))
	assert.False(t, h.m.IsDebugging())
}

func TestManager_PerProcessCommands(t *testing.T) {
	h := newHarness(t, nil)
	a := h.launch()
	b := h.launch()
	pa, pb := h.processOf(a), h.processOf(b)

	h.m.BreakProcess(pa)
	h.settle()
	assert.Equal(t, RunMixed, h.m.IsRunning())
	assert.Equal(t, 0, b.Count("break"))

	h.m.BreakProcess(pa)
	h.settle()
	assert.Equal(t, 1, a.Count("break"))

	h.m.RunProcess(pa)
	h.settle()
	assert.Equal(t, RunRunning, h.m.IsRunning())

	h.m.TerminateProcess(pb)
	h.settle()
	assert.Equal(t, 1, b.Count("terminate"))
	assert.Equal(t, []*Process{pa}, h.processes())

	// Launched processes cannot detach, so this terminates.
	h.m.DetachProcess(pa)
	h.settle()
	assert.Equal(t, 1, a.Count("terminate"))
	assert.False(t, h.m.IsDebugging())

	// Commands on closed processes are ignored.
	h.m.BreakProcess(pa)
	h.settle()
	assert.Equal(t, 1, a.Count("break"))
}

func TestManager_DetachAll(t *testing.T) {
	h := newHarness(t, nil)
	attached := h.start(&engine.AttachOptions{Runtime: engine.KindDelve, PID: 4242})
	launched := h.launch()
	assert.True(t, attached.CanDetach)
	assert.False(t, launched.CanDetach)

	h.m.DetachAll()
	h.settle()

	assert.Equal(t, 1, attached.Count("detach"))
	assert.Zero(t, attached.Count("terminate"))
	assert.Equal(t, 1, launched.Count("detach"))
	assert.Equal(t, 1, launched.Count("terminate"))
	assert.False(t, h.m.IsDebugging())
}

func TestManager_StartFailures(t *testing.T) {
	h := newHarness(t, func(e *enginetest.Engine) {
		if e.Kind() == engine.KindPython {
			e.StartErr = errors.New("debugpy not installed")
		}
	})

	err := h.m.Start(context.Background(), h.launchOptions(engine.KindPython))
	var startErr *StartError
	require.ErrorAs(t, err, &startErr)
	assert.Contains(t, err.Error(), "debugpy not installed")
	require.Eventually(t, h.factory.Last().Closed, time.Second, time.Millisecond)

	err = h.m.Start(context.Background(), &engine.LaunchOptions{Runtime: "cobol", Filename: h.exe})
	assert.ErrorIs(t, err, engine.ErrUnknownKind)

	err = h.m.Start(context.Background(), &engine.LaunchOptions{Runtime: engine.KindDelve, Filename: "/nope"})
	assert.ErrorIs(t, err, engine.ErrInvalidOptions)

	h.settle()
	assert.False(t, h.m.IsDebugging())
	assert.Empty(t, h.processes())
}

func TestManager_LaunchFailedMessage(t *testing.T) {
	h := newHarness(t, func(e *enginetest.Engine) { e.Silent = true })

	var debugging []bool
	h.m.IsDebuggingChanged.Subscribe(func(v bool) { debugging = append(debugging, v) })

	e := h.launch()
	ps := h.processes()
	require.Len(t, ps, 1)
	assert.Equal(t, ProcessStarting, ps[0].State())
	assert.Equal(t, RunRunning, h.m.IsRunning(), "starting counts as running")

	e.Post(&engine.LaunchFailed{Err: errors.New("exec format error")})
	h.settle()

	assert.Equal(t, ProcessTerminated, ps[0].State())
	assert.Equal(t, []bool{true, false}, debugging)
}

func TestManager_AttachTwice(t *testing.T) {
	h := newHarness(t, nil)
	h.start(&engine.AttachOptions{Runtime: engine.KindDelve, PID: 77})

	assert.False(t, h.m.CanDebugRuntime(77, engine.KindDelve))
	assert.True(t, h.m.CanDebugRuntime(77, engine.KindPython))
	assert.True(t, h.m.CanDebugRuntime(78, engine.KindDelve))

	err := h.m.Start(context.Background(), &engine.AttachOptions{Runtime: engine.KindDelve, PID: 77})
	assert.ErrorIs(t, err, ErrAlreadyDebugging)
}

func TestManager_EnginesShareProcess(t *testing.T) {
	h := newHarness(t, nil)
	h.start(&engine.AttachOptions{Runtime: engine.KindDelve, PID: 90})
	h.start(&engine.AttachOptions{Runtime: engine.KindPython, PID: 90})

	ps := h.processes()
	require.Len(t, ps, 1)
	assert.Len(t, ps[0].Runtimes(), 2)
	snap, ok := h.m.Snapshot().Process(90)
	require.True(t, ok)
	assert.ElementsMatch(t, []engine.Kind{engine.KindDelve, engine.KindPython}, snap.Kinds)
}

func TestManager_BreakPolicy(t *testing.T) {
	tests := []struct {
		name      string
		breakOn   engine.BreakKind
		suspended bool
		wantState RunState
		wantRuns  int
	}{
		{name: "none", breakOn: engine.BreakNone, wantState: RunRunning},
		{name: "first thread", breakOn: engine.BreakFirstThread, suspended: true, wantState: RunPaused},
		{name: "create process", breakOn: engine.BreakCreateProcess, suspended: true, wantState: RunPaused},
		{name: "suspended without policy resumes", breakOn: engine.BreakNone, suspended: true, wantState: RunRunning, wantRuns: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, func(e *enginetest.Engine) { e.Suspended = tt.suspended })
			opts := h.launchOptions(engine.KindDelve)
			opts.Break = tt.breakOn

			e := h.start(opts)
			assert.Equal(t, tt.wantState, h.m.IsRunning())
			if tt.wantRuns > 0 {
				assert.Equal(t, tt.wantRuns, e.Count("run"))
			}
		})
	}
}

func TestManager_BreakPolicyUnsuspendedAsksEngine(t *testing.T) {
	h := newHarness(t, nil)
	opts := h.launchOptions(engine.KindDelve)
	opts.Break = engine.BreakFirstThread

	e := h.start(opts)
	assert.Equal(t, 1, e.Count("break"))
	assert.Equal(t, RunPaused, h.m.IsRunning())
}

func TestManager_PauseRequestedByObserver(t *testing.T) {
	h := newHarness(t, nil)
	h.m.Message.Subscribe(func(args *MessageEventArgs) {
		if mod, ok := args.Message.(*engine.ModuleLoaded); ok && mod.Module.Name == "plugin.so" {
			args.Pause = true
		}
	})

	e := h.launch()
	e.Post(&engine.ModuleLoaded{Flags: engine.Flags{Suspended: true}, Module: engine.ModuleInfo{ID: "1", Name: "plugin.so"}})
	h.settle()

	assert.Equal(t, RunPaused, h.m.IsRunning())
	assert.Zero(t, e.Count("run"))
}

func TestManager_BreakAllProcessesSetting(t *testing.T) {
	h := newHarness(t, nil)
	h.m.SetSettings(Settings{BreakAllProcesses: true, DelayedRunningInterval: time.Second})
	a := h.launch()
	b := h.launch()

	a.Post(&engine.BreakRequested{Flags: engine.Flags{Pause: true}, ThreadID: 1})
	h.settle()

	assert.Equal(t, 1, b.Count("break"))
	assert.Equal(t, RunPaused, h.m.IsRunning())
}

func TestManager_CurrentStaysOnOtherPausedProcess(t *testing.T) {
	h := newHarness(t, nil)
	a := h.launch()
	b := h.launch()
	pa, pb := h.processOf(a), h.processOf(b)

	a.Post(&engine.BreakRequested{Flags: engine.Flags{Pause: true}, ThreadID: 1})
	h.settle()
	b.Post(&engine.BreakRequested{Flags: engine.Flags{Pause: true}, ThreadID: 1})
	h.settle()

	h.on(func() {
		assert.Same(t, pa, h.m.CurrentProcess.Current())
		assert.Same(t, pb, h.m.CurrentProcess.Break())
	})

	// Once the current process runs, the selection moves to the paused one.
	h.m.RunProcess(pa)
	h.settle()
	h.on(func() {
		assert.Same(t, pb, h.m.CurrentProcess.Current())
		require.NotNil(t, h.m.CurrentThread.Current())
		assert.Same(t, pb, h.m.CurrentThread.Current().Process())
	})
	assert.Equal(t, RunMixed, h.m.IsRunning())
}

func TestManager_Step(t *testing.T) {
	h := newHarness(t, nil)
	a := h.launch()
	b := h.launch()

	pa := h.processOf(a)

	h.m.BreakAll()
	h.settle()
	h.m.SetCurrentProcess(pa)
	h.settle()

	h.m.StepCurrentProcess(engine.StepOver)
	h.settle()
	assert.Equal(t, 1, a.Count("step-over:1"))
	assert.Zero(t, b.Count("run"))
	assert.Equal(t, RunPaused, h.m.IsRunning())
	h.on(func() { assert.Same(t, pa, h.m.CurrentProcess.Current()) })

	h.m.Step(engine.StepInto)
	h.settle()
	assert.Equal(t, 1, a.Count("step-into:1"))
	assert.Equal(t, 1, b.Count("run"))
	assert.Equal(t, RunMixed, h.m.IsRunning())
	h.on(func() { assert.Same(t, pa, h.m.CurrentProcess.Current()) })
}

func TestManager_StepRequiresPausedCurrentThread(t *testing.T) {
	h := newHarness(t, nil)
	e := h.launch()

	h.m.Step(engine.StepOut)
	h.settle()
	for _, c := range e.Calls() {
		assert.NotContains(t, c, "step")
	}
}

func TestManager_Restart(t *testing.T) {
	h := newHarness(t, func(e *enginetest.Engine) { e.Restartable = true })

	var mu sync.Mutex
	var debugging []bool
	h.m.IsDebuggingChanged.Subscribe(func(v bool) {
		mu.Lock()
		defer mu.Unlock()
		debugging = append(debugging, v)
	})

	first := h.launch()
	assert.True(t, h.m.CanRestart())

	h.m.Restart()
	require.Eventually(t, func() bool { return len(h.factory.Engines()) == 2 && h.m.IsDebugging() }, 2*time.Second, time.Millisecond)
	h.settle()

	second := h.factory.Last()
	assert.Equal(t, 1, first.Count("terminate"))
	assert.Same(t, first.Options(), second.Options())
	assert.NotEqual(t, first.PID, second.PID)

	mu.Lock()
	assert.Equal(t, []bool{true, false, true}, debugging)
	mu.Unlock()
}

func TestManager_RestartNeedsEveryEngine(t *testing.T) {
	h := newHarness(t, func(e *enginetest.Engine) { e.Restartable = e.Kind() == engine.KindDelve })
	h.start(h.launchOptions(engine.KindDelve))
	h.start(h.launchOptions(engine.KindPython))

	assert.False(t, h.m.CanRestart())
	h.m.Restart()
	h.settle()
	assert.Len(t, h.factory.Engines(), 2)
	assert.True(t, h.m.IsDebugging())
}

func TestManager_RestartSkipsEngineThatCannotTerminate(t *testing.T) {
	var created atomic.Int32
	h := newHarness(t, func(e *enginetest.Engine) {
		e.Restartable = true
		if created.Add(1) == 2 {
			e.TerminateErr = errors.New("terminate refused")
		}
	})
	a := h.launch()
	b := h.launch()

	h.m.Restart()
	require.Eventually(t, func() bool {
		if len(h.factory.Engines()) != 3 {
			return false
		}
		_, ok := h.m.Snapshot().Process(h.factory.Last().PID)
		return ok
	}, 2*time.Second, time.Millisecond)
	h.settle()

	relaunched := h.factory.Last()
	assert.Same(t, a.Options(), relaunched.Options())
	assert.Equal(t, 1, b.Count("terminate"))
	assert.False(t, b.Closed())

	pids := []int{}
	for _, p := range h.processes() {
		pids = append(pids, p.PID())
	}
	assert.ElementsMatch(t, []int{b.PID, relaunched.PID}, pids)
	assert.True(t, h.m.IsDebugging())
	assert.True(t, h.m.CanRestart())
}

func TestManager_BreakSetBeforeRunStateChanges(t *testing.T) {
	h := newHarness(t, nil)
	e := h.launch()
	p := h.processOf(e)

	var seen *Process
	h.m.IsRunningChanged.Subscribe(func(s RunState) {
		if s == RunPaused {
			seen = h.m.CurrentProcess.Break()
		}
	})

	e.Post(&engine.BreakRequested{Flags: engine.Flags{Pause: true}, ThreadID: 1})
	h.settle()

	var got *Process
	h.on(func() { got = seen })
	assert.Same(t, p, got)
}

func TestManager_BreakRequestedWithoutPauseResumes(t *testing.T) {
	h := newHarness(t, nil)
	e := h.launch()

	e.Post(&engine.BreakRequested{ThreadID: 1, Reason: "exception"})
	h.settle()

	assert.Equal(t, 1, e.Count("run"))
	assert.Equal(t, RunRunning, h.m.IsRunning())
	var brk *Process
	h.on(func() { brk = h.m.CurrentProcess.Break() })
	assert.Nil(t, brk)

	h.m.Message.Subscribe(func(args *MessageEventArgs) {
		if _, ok := args.Message.(*engine.BreakRequested); ok {
			args.Pause = true
		}
	})
	e.Post(&engine.BreakRequested{ThreadID: 1, Reason: "exception"})
	h.settle()

	assert.Equal(t, 1, e.Count("run"))
	assert.Equal(t, RunPaused, h.m.IsRunning())
}

func TestManager_StartListenersRunOnce(t *testing.T) {
	h := newHarness(t, nil)

	calls := 0
	h.m.OnNextStart(func() { calls++ })

	h.launch()
	h.launch()
	h.m.TerminateAll()
	h.settle()
	h.launch()

	h.on(func() { assert.Equal(t, 1, calls) })
	assert.Equal(t, 2, h.m.Snapshot().Epoch)
}

func TestManager_DelayedIsRunningChanged(t *testing.T) {
	h := newHarness(t, nil)

	fired := make(chan RunState, 4)
	h.m.DelayedIsRunningChanged.Subscribe(func(s RunState) { fired <- s })

	h.launch()
	select {
	case s := <-fired:
		assert.Equal(t, RunRunning, s)
	case <-time.After(time.Second):
		t.Fatal("DelayedIsRunningChanged not raised")
	}
}

func TestManager_DelayedIsRunningChangedCancelledByBreak(t *testing.T) {
	h := newHarness(t, nil)
	h.m.SetSettings(Settings{DelayedRunningInterval: 100 * time.Millisecond})

	fired := make(chan RunState, 4)
	h.m.DelayedIsRunningChanged.Subscribe(func(s RunState) { fired <- s })

	h.launch()
	h.m.BreakAll()
	h.settle()

	select {
	case <-fired:
		t.Fatal("raised although paused")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestManager_DebugTags(t *testing.T) {
	h := newHarness(t, nil)

	var changes []CollectionChanged[string]
	h.m.DebugTagsChanged().Subscribe(func(c CollectionChanged[string]) { changes = append(changes, c) })

	h.launch()
	h.launch()
	assert.Equal(t, []string{"delve"}, h.m.DebugTags())

	h.m.TerminateAll()
	h.settle()
	assert.Empty(t, h.m.DebugTags())
	require.Len(t, changes, 2)
	assert.Equal(t, []string{"delve"}, changes[0].Added)
	assert.Equal(t, []string{"delve"}, changes[1].Removed)
}

func TestManager_ThreadsAndModules(t *testing.T) {
	h := newHarness(t, nil)
	e := h.launch()
	p := h.processOf(e)

	e.Post(&engine.AppDomainLoaded{AppDomain: engine.AppDomainInfo{ID: 1, Name: "main"}})
	e.Post(&engine.ModuleLoaded{Module: engine.ModuleInfo{ID: "exe", Name: "server", IsExe: true, AppDomainID: 1}})
	e.Post(&engine.ThreadCreated{Thread: engine.ThreadInfo{ID: 2, Name: "worker"}})
	e.Post(&engine.BreakRequested{Flags: engine.Flags{Pause: true}, ThreadID: 2})
	h.settle()

	h.on(func() {
		r := p.Runtimes()[0]
		require.Len(t, r.Modules(), 1)
		assert.True(t, r.Modules()[0].IsExe())
		assert.Equal(t, "main", r.Modules()[0].AppDomain().Name())
		assert.Len(t, r.Threads(), 2)
		assert.Equal(t, 2, h.m.CurrentThread.Current().EngineID())
	})
	assert.Equal(t, 2, h.m.Snapshot().CurrentThreadID)

	e.Post(&engine.ThreadExited{ID: 2, ExitCode: 3})
	e.Post(&engine.ModuleUnloaded{ID: "exe"})
	h.settle()

	h.on(func() {
		r := p.Runtimes()[0]
		assert.Empty(t, r.Modules())
		assert.Len(t, r.Threads(), 1)
		assert.Nil(t, h.m.CurrentThread.Current(), "exited thread is no longer current")
	})
}

func TestManager_SetCurrentThreadCascades(t *testing.T) {
	h := newHarness(t, nil)
	h.launch()
	b := h.launch()
	h.m.BreakAll()
	h.settle()

	pb := h.processOf(b)
	var target *Thread
	h.on(func() { target = pb.Runtimes()[0].Threads()[0] })

	h.m.SetCurrentThread(target)
	h.settle()
	h.on(func() {
		assert.Same(t, target, h.m.CurrentThread.Current())
		assert.Same(t, target.Runtime(), h.m.CurrentRuntime.Current())
		assert.Same(t, target.Process(), h.m.CurrentProcess.Current())
	})

	h.m.ShowNextStatement()
	h.settle()
	h.on(func() {
		assert.Same(t, h.m.CurrentThread.Break(), h.m.CurrentThread.Current())
	})
}

func TestManager_SnapshotConsistentInHandlers(t *testing.T) {
	h := newHarness(t, nil)
	h.m.ProcessesChanged().Subscribe(func(CollectionChanged[*Process]) {
		assert.Equal(t, h.m.processes.Len() > 0, h.m.IsDebugging())
		assert.Len(t, h.m.Snapshot().Processes, h.m.processes.Len())
	})

	h.launch()
	h.launch()
	h.m.TerminateAll()
	h.settle()
}

func TestManager_CloseObjects(t *testing.T) {
	h := newHarness(t, nil)
	e := h.launch()
	e.Post(&engine.BreakRequested{Flags: engine.Flags{Pause: true}, ThreadID: 1})
	h.settle()

	var th *Thread
	h.on(func() { th = h.m.CurrentThread.Current() })
	require.NotNil(t, th)

	h.m.Close(th, nil)
	h.settle()
	assert.True(t, th.IsClosed())
	h.on(func() { assert.Nil(t, h.m.CurrentThread.Current()) })
}

func TestManager_Shutdown(t *testing.T) {
	h := newHarness(t, nil)
	launched := h.launch()
	attached := h.start(&engine.AttachOptions{Runtime: engine.KindDelve, PID: 5})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, h.m.Shutdown(ctx))

	assert.Equal(t, 1, launched.Count("terminate"))
	assert.Equal(t, 1, attached.Count("detach"))
	assert.False(t, h.m.IsDebugging())
	assert.ErrorIs(t, h.m.Start(context.Background(), h.launchOptions(engine.KindDelve)), ErrShutdown)
}
