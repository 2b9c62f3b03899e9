package debug

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dshills/dbgcore/internal/debug/dispatch"
	"github.com/dshills/dbgcore/internal/debug/engine"
)

// Recorder receives manager instrumentation. It is called on the dispatcher.
type Recorder interface {
	MessageProcessed(kind, message string)
	CommandFailed(command string)
	ProcessCount(n int)
	RunStateChanged(state string)
}

type nopRecorder struct{}

func (nopRecorder) MessageProcessed(string, string) {}
func (nopRecorder) CommandFailed(string)            {}
func (nopRecorder) ProcessCount(int)                {}
func (nopRecorder) RunStateChanged(string)          {}

// MessageEventArgs is passed to Message subscribers. Setting Pause requests
// that the debuggee be paused after the message has been processed.
type MessageEventArgs struct {
	Message engine.Message
	Process *Process
	Runtime *Runtime
	Thread  *Thread
	Pause   bool
}

// Options configure a Manager.
type Options struct {
	// Registry provides engines. Required.
	Registry *engine.Registry

	// Logger defaults to a no-op logger.
	Logger *zap.Logger

	// Recorder receives instrumentation. Optional.
	Recorder Recorder

	// Settings default to DefaultSettings.
	Settings *Settings

	// DispatcherOptions are passed to the dispatcher.
	DispatcherOptions []dispatch.Option
}

// Manager owns the debugging session: the processes, their engines, the
// current selection and the aggregate run state. All of its state lives on
// its dispatcher; the exported command methods marshal onto it and return
// immediately, and the events are raised on it.
//
// Query methods documented as safe from any goroutine read the latest
// published Snapshot. The others, such as Processes, must only be called from
// the dispatcher, typically from an event handler or through Invoke.
type Manager struct {
	log      *zap.Logger
	registry *engine.Registry
	recorder Recorder
	d        *dispatch.Dispatcher

	// Dispatcher owned state.
	settings       Settings
	processes      Collection[*Process]
	engines        []*engineInfo
	isDebugging    bool
	runState       RunState
	context        *DebuggingContext
	epoch          int
	startListeners []func()
	tags           Collection[string]
	tagRefs        map[string]int
	restartOpts    []engine.StartOptions
	restartWait    int
	delayTimer     *time.Timer
	delayToken     uint64
	shuttingDown   bool

	processBreak BreakWriter[*Process]
	runtimeBreak BreakWriter[*Runtime]
	threadBreak  BreakWriter[*Thread]

	snapshot atomic.Pointer[Snapshot]

	// CurrentProcess tracks the current and break process.
	CurrentProcess *CurrentObject[*Process]
	// CurrentRuntime tracks the current and break runtime.
	CurrentRuntime *CurrentObject[*Runtime]
	// CurrentThread tracks the current and break thread.
	CurrentThread *CurrentObject[*Thread]

	// IsDebuggingChanged is raised when the first process is added or the
	// last one removed.
	IsDebuggingChanged Event[bool]
	// IsRunningChanged is raised when the aggregate run state changes.
	IsRunningChanged Event[RunState]
	// DelayedIsRunningChanged is raised once every process has been running
	// for Settings.DelayedRunningInterval.
	DelayedIsRunningChanged Event[RunState]
	// Message is raised for every engine message after the model was updated.
	Message Event[*MessageEventArgs]
}

// New creates a manager and starts its dispatcher. It panics if no registry
// is given.
func New(opts Options) *Manager {
	if opts.Registry == nil {
		panic("debug: Options.Registry is required")
	}

	m := &Manager{
		log:      opts.Logger,
		registry: opts.Registry,
		recorder: opts.Recorder,
		settings: DefaultSettings(),
		tagRefs:  make(map[string]int),
	}
	if m.log == nil {
		m.log = zap.NewNop()
	}
	if m.recorder == nil {
		m.recorder = nopRecorder{}
	}
	if opts.Settings != nil {
		m.settings = *opts.Settings
	}

	m.CurrentProcess, m.processBreak = NewCurrentObject[*Process]()
	m.CurrentRuntime, m.runtimeBreak = NewCurrentObject[*Runtime]()
	m.CurrentThread, m.threadBreak = NewCurrentObject[*Thread]()
	m.snapshot.Store(emptySnapshot)

	// Keep the snapshot in step with the model before other subscribers run.
	m.processes.Changed.Subscribe(func(CollectionChanged[*Process]) { m.update() })
	m.tags.Changed.Subscribe(func(CollectionChanged[string]) { m.publish() })
	m.CurrentProcess.Changed.Subscribe(func(CurrentChanged) { m.publish() })
	m.CurrentThread.Changed.Subscribe(func(CurrentChanged) { m.publish() })

	dopts := append([]dispatch.Option{
		dispatch.WithName("debugger"),
		dispatch.WithPanicHandler(func(v any, stack []byte) {
			m.log.Error("dispatched function panicked",
				zap.Any("panic", v),
				zap.ByteString("stack", stack))
		}),
	}, opts.DispatcherOptions...)
	m.d = dispatch.New(dopts...)
	if err := m.d.Start(); err != nil {
		panic(fmt.Sprintf("debug: start dispatcher: %v", err))
	}
	return m
}

// Dispatcher returns the dispatcher that owns the session state.
func (m *Manager) Dispatcher() *dispatch.Dispatcher {
	return m.d
}

// ProcessesChanged is raised when processes are added or removed.
func (m *Manager) ProcessesChanged() *Event[CollectionChanged[*Process]] {
	return &m.processes.Changed
}

// DebugTagsChanged is raised when debug tags appear or disappear.
func (m *Manager) DebugTagsChanged() *Event[CollectionChanged[string]] {
	return &m.tags.Changed
}

// Snapshot returns the latest published view of the session. Safe from any
// goroutine.
func (m *Manager) Snapshot() *Snapshot {
	return m.snapshot.Load()
}

// IsDebugging reports whether at least one process is debugged. Safe from any
// goroutine.
func (m *Manager) IsDebugging() bool {
	return m.Snapshot().IsDebugging
}

// IsRunning returns the aggregate run state. It is only meaningful while
// IsDebugging is true. Safe from any goroutine.
func (m *Manager) IsRunning() RunState {
	return m.Snapshot().RunState
}

// CanDetachWithoutTerminating reports whether every engine can detach and
// leave its debuggee alive. Safe from any goroutine.
func (m *Manager) CanDetachWithoutTerminating() bool {
	return m.Snapshot().CanDetachWithoutTerminating
}

// CanRestart reports whether Restart would do anything. Safe from any
// goroutine.
func (m *Manager) CanRestart() bool {
	return m.Snapshot().CanRestart
}

// DebugTags returns the tags contributed by the live engines. Safe from any
// goroutine.
func (m *Manager) DebugTags() []string {
	return append([]string(nil), m.Snapshot().Tags...)
}

// CanDebugRuntime reports whether no engine of the given kind debugs process
// pid yet. Safe from any goroutine.
func (m *Manager) CanDebugRuntime(pid int, kind engine.Kind) bool {
	p, ok := m.Snapshot().Process(pid)
	if !ok {
		return true
	}
	for _, k := range p.Kinds {
		if k == kind {
			return false
		}
	}
	return true
}

// Processes returns the debugged processes. Dispatcher only.
func (m *Manager) Processes() []*Process {
	return m.processes.Items()
}

// DebuggingContext returns the context of the current epoch, nil while not
// debugging. Dispatcher only.
func (m *Manager) DebuggingContext() *DebuggingContext {
	return m.context
}

// Settings returns the live settings. Dispatcher only.
func (m *Manager) Settings() Settings {
	return m.settings
}

// SetSettings replaces the settings.
func (m *Manager) SetSettings(s Settings) {
	m.d.BeginInvoke(func() {
		m.settings = s
		m.log.Debug("settings changed",
			zap.Bool("break_all_processes", s.BreakAllProcesses),
			zap.Duration("delayed_running_interval", s.DelayedRunningInterval))
	})
}

// OnNextStart registers fn to run on the dispatcher when the next debugging
// epoch begins. Listeners run once and are then forgotten.
func (m *Manager) OnNextStart(fn func()) {
	m.d.BeginInvoke(func() {
		m.startListeners = append(m.startListeners, fn)
	})
}

// Invoke runs fn on the dispatcher and waits for it.
func (m *Manager) Invoke(ctx context.Context, fn func()) error {
	return m.d.Invoke(ctx, fn)
}

// Flush waits until everything queued so far, including engine messages
// already posted to registered engines, has been processed.
func (m *Manager) Flush(ctx context.Context) error {
	return m.d.Flush(ctx)
}

// Start creates the engine for opts and starts it. Engine selection,
// validation and the engine's own start routine run on the calling
// goroutine; any failure is returned and leaves the session unchanged. On
// success a Starting process is added and the engine's messages flow to the
// dispatcher.
func (m *Manager) Start(ctx context.Context, opts engine.StartOptions) error {
	if m.d.HasShutdownStarted() {
		return ErrShutdown
	}

	if attach, ok := opts.(*engine.AttachOptions); ok && attach.PID != 0 {
		if !m.CanDebugRuntime(attach.PID, attach.Runtime) {
			return fmt.Errorf("%w: pid %d", ErrAlreadyDebugging, attach.PID)
		}
	}

	eng, err := m.registry.Create(opts)
	if err != nil {
		return err
	}

	info := newEngineInfo(m, eng, opts)
	log := m.log.With(zap.Stringer("engine", info.id), zap.String("kind", string(eng.Kind())))

	if err := eng.Start(ctx, info.sink); err != nil {
		info.sink.close()
		if cerr := eng.Close(); cerr != nil {
			log.Debug("close after failed start", zap.Error(cerr))
		}
		log.Info("engine start failed", zap.Error(err))
		return &StartError{Kind: string(eng.Kind()), Err: err}
	}

	if !m.d.BeginInvoke(func() { m.register(info) }) {
		info.sink.close()
		_ = eng.Terminate()
		_ = eng.Close()
		return ErrShutdown
	}

	log.Info("engine started", zap.Stringer("start", opts.StartKind()))
	return nil
}

// Close closes the given objects on the dispatcher and removes them from
// their owners. Closing a runtime or a process forgets the engines behind it
// without sending them a command.
func (m *Manager) Close(objs ...Object) {
	m.d.BeginInvoke(func() {
		for _, o := range objs {
			if o != nil && !o.IsClosed() {
				m.closeObject(o)
			}
		}
		m.update()
	})
}

func (m *Manager) closeObject(o Object) {
	switch o := o.(type) {
	case *Thread:
		o.runtime.threads.Remove(o)
	case *Module:
		o.runtime.modules.Remove(o)
	case *AppDomain:
		o.runtime.appDomains.Remove(o)
	case *Runtime:
		if e := m.engineOf(o); e != nil {
			m.removeEngine(e)
		}
	case *Process:
		for _, e := range m.enginesOf(o) {
			m.removeEngine(e)
		}
	}
	o.Close()
}

// Shutdown stops every engine, closes the object model and stops the
// dispatcher. Launched debuggees are terminated, attached ones detached.
func (m *Manager) Shutdown(ctx context.Context) error {
	err := m.d.Invoke(ctx, m.teardown)
	if err != nil && err != dispatch.ErrShutdown {
		return err
	}
	return m.d.Shutdown(ctx)
}

func (m *Manager) teardown() {
	m.shuttingDown = true
	m.restartOpts = nil
	m.restartWait = 0
	m.cancelDelayed()

	for _, info := range append([]*engineInfo(nil), m.engines...) {
		if info.opts.StartKind() == engine.Attach && info.eng.CanDetachWithoutTerminating() {
			m.command(info, "detach", info.eng.Detach)
		} else {
			m.command(info, "terminate", info.eng.Terminate)
		}
		m.removeEngine(info)
	}
	m.log.Info("debugger shut down")
}

// register adds a started engine and its process to the session.
func (m *Manager) register(info *engineInfo) {
	if m.shuttingDown {
		info.sink.close()
		go info.close(m.log)
		return
	}

	p := newProcess(info.opts.StartKind())
	info.process = p
	m.engines = append(m.engines, info)

	first := !m.isDebugging
	if first {
		m.epoch++
		m.isDebugging = true
		m.context = newDebuggingContext(m.epoch)
	}

	m.processes.Add(p)
	m.addTags(info.eng.Tags())

	if first {
		m.log.Info("debugging started", zap.Int("epoch", m.epoch))
		m.IsDebuggingChanged.Raise(true)

		listeners := m.startListeners
		m.startListeners = nil
		for _, fn := range listeners {
			fn()
		}
	}

	info.sink.attach()
	m.update()
}

// removeEngine forgets an engine. The process goes when its last engine goes,
// and the epoch ends with the last process.
func (m *Manager) removeEngine(info *engineInfo) {
	if info.gone {
		return
	}
	info.gone = true
	info.sink.close()
	go info.close(m.log)

	for i, e := range m.engines {
		if e == info {
			m.engines = append(m.engines[:i:i], m.engines[i+1:]...)
			break
		}
	}
	m.releaseTags(info.eng.Tags())

	p := info.process
	m.removeRuntime(info)

	if len(m.enginesOf(p)) == 0 {
		m.removeProcess(p)
	}
	if info.restarting {
		m.restartWait--
		if m.restartWait == 0 {
			m.relaunch()
		}
	}
	m.update()
}

func (m *Manager) removeProcess(p *Process) {
	last := m.processes.Len() == 1 && m.processes.Contains(p)

	var ctx *DebuggingContext
	if last {
		m.isDebugging = false
		ctx = m.context
		m.context = nil
	}

	m.processes.Remove(p)
	p.Close()
	m.log.Info("process removed",
		zap.Stringer("process", p.ID()),
		zap.Int("pid", p.pid),
		zap.Int("exit_code", p.exitCode))

	if !last {
		return
	}

	m.cancelDelayed()
	m.update()
	m.log.Info("debugging stopped", zap.Int("epoch", m.epoch))
	m.IsDebuggingChanged.Raise(false)
	if ctx != nil {
		ctx.Close()
	}
}

func (m *Manager) removeRuntime(info *engineInfo) {
	r := info.runtime
	if r == nil {
		return
	}
	info.runtime = nil
	info.process.runtimes.Remove(r)
	m.releaseTags(r.tags)
	r.Close()
}

func (m *Manager) enginesOf(p *Process) []*engineInfo {
	var out []*engineInfo
	for _, e := range m.engines {
		if e.process == p {
			out = append(out, e)
		}
	}
	return out
}

func (m *Manager) engineOf(r *Runtime) *engineInfo {
	for _, e := range m.engines {
		if e.runtime == r {
			return e
		}
	}
	return nil
}

func (m *Manager) addTags(tags []string) {
	var added []string
	for _, t := range tags {
		m.tagRefs[t]++
		if m.tagRefs[t] == 1 {
			added = append(added, t)
		}
	}
	m.tags.Add(added...)
}

func (m *Manager) releaseTags(tags []string) {
	var removed []string
	for _, t := range tags {
		if m.tagRefs[t] == 0 {
			continue
		}
		m.tagRefs[t]--
		if m.tagRefs[t] == 0 {
			delete(m.tagRefs, t)
			removed = append(removed, t)
		}
	}
	m.tags.Remove(removed...)
}

// refreshStates recomputes process states without raising anything.
func (m *Manager) refreshStates() {
	for _, p := range m.processes.items {
		p.state = m.processState(p)
	}
}

// update recomputes process states and the aggregate run state, raises
// IsRunningChanged when it moved, and publishes a new snapshot.
func (m *Manager) update() {
	m.refreshStates()

	state := m.computeRunState()
	changed := state != m.runState
	m.runState = state
	m.publish()
	m.recorder.ProcessCount(m.processes.Len())

	if !changed {
		return
	}
	m.recorder.RunStateChanged(state.String())

	if state == RunRunning {
		m.scheduleDelayed()
	} else {
		m.cancelDelayed()
	}
	m.IsRunningChanged.Raise(state)
}

func (m *Manager) processState(p *Process) ProcessState {
	engines := m.enginesOf(p)
	if len(engines) == 0 {
		return p.state
	}

	connected := false
	paused := true
	for _, e := range engines {
		if e.connected {
			connected = true
		}
		if !e.paused {
			paused = false
		}
	}
	switch {
	case !connected:
		return ProcessStarting
	case paused:
		return ProcessPaused
	default:
		return ProcessRunning
	}
}

func (m *Manager) computeRunState() RunState {
	if !m.isDebugging || m.processes.Len() == 0 {
		return RunUnknown
	}

	running, paused := 0, 0
	for _, p := range m.processes.items {
		switch p.state {
		case ProcessPaused:
			paused++
		case ProcessStarting, ProcessRunning:
			running++
		}
	}
	switch {
	case paused == 0:
		return RunRunning
	case running == 0:
		return RunPaused
	default:
		return RunMixed
	}
}

func (m *Manager) scheduleDelayed() {
	m.cancelDelayed()
	token := m.delayToken
	m.delayTimer = time.AfterFunc(m.settings.DelayedRunningInterval, func() {
		m.d.BeginInvoke(func() {
			if token == m.delayToken && m.runState == RunRunning {
				m.DelayedIsRunningChanged.Raise(RunRunning)
			}
		})
	})
}

func (m *Manager) cancelDelayed() {
	m.delayToken++
	if m.delayTimer != nil {
		m.delayTimer.Stop()
		m.delayTimer = nil
	}
}

func (m *Manager) publish() {
	s := &Snapshot{
		IsDebugging:                 m.isDebugging,
		RunState:                    m.runState,
		Epoch:                       m.epoch,
		Tags:                        m.tags.Items(),
		CanDetachWithoutTerminating: m.isDebugging && m.canDetachWithoutTerminating(),
		CanRestart:                  m.canRestart(),
		CurrentProcess:              -1,
	}

	current := m.CurrentProcess.Current()
	for i, p := range m.processes.items {
		ps := ProcessSnapshot{
			ID:        p.ID(),
			PID:       p.pid,
			Name:      p.name,
			State:     p.state,
			StartKind: p.startKind,
		}
		for _, e := range m.enginesOf(p) {
			ps.Kinds = append(ps.Kinds, e.eng.Kind())
		}
		for _, r := range p.runtimes.items {
			ps.Threads += r.threads.Len()
		}
		if p == current {
			s.CurrentProcess = i
		}
		s.Processes = append(s.Processes, ps)
	}
	if t := m.CurrentThread.Current(); t != nil {
		s.CurrentThreadID = t.id
	}
	s.HasBreakThread = m.CurrentThread.Break() != nil

	m.snapshot.Store(s)
}

func (m *Manager) canDetachWithoutTerminating() bool {
	for _, e := range m.engines {
		if !e.eng.CanDetachWithoutTerminating() {
			return false
		}
	}
	return true
}

func (m *Manager) canRestart() bool {
	if !m.isDebugging || len(m.engines) == 0 || m.restartOpts != nil {
		return false
	}
	for _, e := range m.engines {
		if !e.eng.CanRestart() {
			return false
		}
	}
	return true
}

// command issues an engine command and logs a failure.
func (m *Manager) command(info *engineInfo, name string, fn func() error) error {
	err := fn()
	if err != nil {
		m.recorder.CommandFailed(name)
		m.log.Warn("engine command failed",
			zap.String("command", name),
			zap.Stringer("engine", info.id),
			zap.String("kind", string(info.eng.Kind())),
			zap.Error(err))
	}
	return err
}

// engineInfo is the manager's bookkeeping for one engine.
type engineInfo struct {
	id      uuid.UUID
	eng     engine.Engine
	opts    engine.StartOptions
	sink    *engineSink
	process *Process
	runtime *Runtime

	connected    bool
	paused       bool
	pendingBreak bool
	stepping     bool
	breakDone    bool
	restarting   bool
	gone         bool
}

func newEngineInfo(m *Manager, eng engine.Engine, opts engine.StartOptions) *engineInfo {
	info := &engineInfo{id: uuid.New(), eng: eng, opts: opts}
	info.sink = &engineSink{m: m, info: info}
	return info
}

func (e *engineInfo) close(log *zap.Logger) {
	if err := e.eng.Close(); err != nil {
		log.Debug("engine close failed", zap.Stringer("engine", e.id), zap.Error(err))
	}
}
