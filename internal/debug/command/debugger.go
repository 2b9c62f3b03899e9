// Package command is the outward command surface of the debugger: every
// command comes with a Can predicate the caller checks first, and failures
// are reported as human readable errors and through a Notifier.
package command

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"sync"

	"go.uber.org/zap"

	"github.com/dshills/dbgcore/internal/debug"
	"github.com/dshills/dbgcore/internal/debug/engine"
)

// OptionsProvider supplies start options, typically from a dialog or flags.
type OptionsProvider interface {
	// StartOptions returns the options to debug with. Nil options and a nil
	// error mean the user cancelled.
	StartOptions(ctx context.Context) (engine.StartOptions, error)

	// CurrentExecutable returns the executable to run without debugging, or "".
	CurrentExecutable() string
}

// ProcessPicker chooses a process to attach to.
type ProcessPicker interface {
	// PickProcess returns options for the chosen process. Nil options and a
	// nil error mean the user cancelled.
	PickProcess(ctx context.Context) (engine.StartOptions, error)
}

// Notifier shows messages to the user.
type Notifier interface {
	// Error shows a failure.
	Error(msg string)

	// Status shows a short status line.
	Status(msg string)
}

// Config configures a Debugger.
type Config struct {
	Options OptionsProvider
	Picker  ProcessPicker
	Notify  Notifier
	Logger  *zap.Logger
}

// Debugger exposes the debugger commands.
type Debugger struct {
	m       *debug.Manager
	options OptionsProvider
	picker  ProcessPicker
	notify  Notifier
	log     *zap.Logger

	mu           sync.Mutex
	oldDebugging bool
	oldRunning   debug.RunState
}

// New creates a Debugger for m. It panics if m is nil.
func New(m *debug.Manager, cfg Config) *Debugger {
	if m == nil {
		panic("command: manager is required")
	}
	d := &Debugger{
		m:       m,
		options: cfg.Options,
		picker:  cfg.Picker,
		notify:  cfg.Notify,
		log:     cfg.Logger,
	}
	if d.log == nil {
		d.log = zap.NewNop()
	}
	if d.notify == nil {
		d.notify = nopNotifier{}
	}
	m.OnNextStart(d.onStart)
	return d
}

type nopNotifier struct{}

func (nopNotifier) Error(string)  {}
func (nopNotifier) Status(string) {}

// onStart subscribes to the manager once the first epoch begins.
func (d *Debugger) onStart() {
	d.m.IsDebuggingChanged.Subscribe(func(bool) { d.debuggingChanged() })
	d.m.IsRunningChanged.Subscribe(func(debug.RunState) { d.runningChanged() })
	d.debuggingChanged()
}

func (d *Debugger) debuggingChanged() {
	now := d.m.IsDebugging()

	d.mu.Lock()
	if now == d.oldDebugging {
		d.mu.Unlock()
		return
	}
	d.oldDebugging = now
	d.mu.Unlock()

	if now {
		d.notify.Status("Running")
	} else {
		d.notify.Status("Ready")
	}
}

func (d *Debugger) runningChanged() {
	now := d.m.IsRunning()

	d.mu.Lock()
	if now == d.oldRunning {
		d.mu.Unlock()
		return
	}
	d.oldRunning = now
	d.mu.Unlock()

	switch now {
	case debug.RunRunning:
		d.notify.Status("Running")
	case debug.RunPaused:
		d.notify.Status("Paused")
	case debug.RunMixed:
		d.notify.Status("Some processes are paused")
	}
}

// IsDebugging reports whether anything is being debugged.
func (d *Debugger) IsDebugging() bool { return d.m.IsDebugging() }

func (d *Debugger) canPause() bool {
	return d.m.IsDebugging() && d.m.IsRunning() != debug.RunRunning
}

func (d *Debugger) canRun() bool {
	return d.m.IsDebugging() && d.m.IsRunning() != debug.RunPaused
}

func (d *Debugger) canCurrentProcessPause() bool {
	s := d.m.Snapshot()
	if !s.IsDebugging {
		return false
	}
	p, ok := s.Current()
	return ok && p.State == debug.ProcessPaused
}

// CanStartWithoutDebugging reports whether an executable is selected.
func (d *Debugger) CanStartWithoutDebugging() bool {
	return d.options != nil && d.options.CurrentExecutable() != ""
}

// StartWithoutDebugging runs the current executable outside the debugger.
// A missing file is silently ignored.
func (d *Debugger) StartWithoutDebugging() error {
	if !d.CanStartWithoutDebugging() {
		return ErrNotAvailable
	}
	filename := d.options.CurrentExecutable()
	if _, err := os.Stat(filename); err != nil {
		return nil
	}

	cmd := exec.Command(filename)
	if err := cmd.Start(); err != nil {
		return d.fail(fmt.Errorf("could not start %s: %w", filename, err))
	}
	go func() { _ = cmd.Wait() }()
	d.log.Info("started without debugging", zap.String("filename", filename), zap.Int("pid", cmd.Process.Pid))
	return nil
}

// CanDebugProgram reports whether DebugProgram may be called.
func (d *Debugger) CanDebugProgram() bool { return d.options != nil }

// DebugProgram asks for start options and starts debugging.
func (d *Debugger) DebugProgram(ctx context.Context) error {
	if !d.CanDebugProgram() {
		return ErrNotAvailable
	}
	opts, err := d.options.StartOptions(ctx)
	if err != nil {
		return d.fail(err)
	}
	if opts == nil {
		return ErrCancelled
	}
	return d.Start(ctx, opts)
}

// Start starts debugging with explicit options.
func (d *Debugger) Start(ctx context.Context, opts engine.StartOptions) error {
	if err := d.m.Start(ctx, opts); err != nil {
		return d.fail(err)
	}
	return nil
}

// CanAttach reports whether a process picker is available.
func (d *Debugger) CanAttach() bool { return d.picker != nil }

// Attach asks for a process and attaches to it.
func (d *Debugger) Attach(ctx context.Context) error {
	if !d.CanAttach() {
		return ErrNotAvailable
	}
	opts, err := d.picker.PickProcess(ctx)
	if err != nil {
		return d.fail(err)
	}
	if opts == nil {
		return ErrCancelled
	}
	return d.Start(ctx, opts)
}

// CanContinue reports whether at least one process is paused.
func (d *Debugger) CanContinue() bool { return d.canPause() }

// Continue resumes every process.
func (d *Debugger) Continue() { d.m.RunAll() }

// CanBreakAll reports whether at least one process is running.
func (d *Debugger) CanBreakAll() bool { return d.canRun() }

// BreakAll pauses every process.
func (d *Debugger) BreakAll() { d.m.BreakAll() }

// CanStopDebugging reports whether anything is being debugged.
func (d *Debugger) CanStopDebugging() bool { return d.m.IsDebugging() }

// StopDebugging terminates launched processes and detaches from the others.
func (d *Debugger) StopDebugging() { d.m.StopDebuggingAll() }

// CanDetachAll reports whether anything is being debugged.
func (d *Debugger) CanDetachAll() bool { return d.m.IsDebugging() }

// DetachAll detaches from every process. Processes whose engine cannot
// detach are terminated, and the user is told so.
func (d *Debugger) DetachAll() {
	if !d.m.CanDetachWithoutTerminating() {
		d.notify.Status("Some processes cannot be detached and will be terminated")
	}
	d.m.DetachAll()
}

// CanTerminateAll reports whether anything is being debugged.
func (d *Debugger) CanTerminateAll() bool { return d.m.IsDebugging() }

// TerminateAll terminates every process.
func (d *Debugger) TerminateAll() { d.m.TerminateAll() }

// CanRestart reports whether every engine can restart.
func (d *Debugger) CanRestart() bool { return d.m.IsDebugging() && d.m.CanRestart() }

// Restart terminates and relaunches every process.
func (d *Debugger) Restart() { d.m.Restart() }

// CanShowNextStatement reports whether something is paused.
func (d *Debugger) CanShowNextStatement() bool { return d.canPause() }

// ShowNextStatement selects the thread that caused the last break.
func (d *Debugger) ShowNextStatement() { d.m.ShowNextStatement() }

// CanStep reports whether the step commands are available.
func (d *Debugger) CanStep() bool { return d.canPause() }

// StepInto steps into, resuming the other processes.
func (d *Debugger) StepInto() { d.m.Step(engine.StepInto) }

// StepOver steps over, resuming the other processes.
func (d *Debugger) StepOver() { d.m.Step(engine.StepOver) }

// StepOut steps out, resuming the other processes.
func (d *Debugger) StepOut() { d.m.Step(engine.StepOut) }

// CanStepCurrentProcess reports whether the current process is paused.
func (d *Debugger) CanStepCurrentProcess() bool { return d.canCurrentProcessPause() }

// StepIntoCurrentProcess steps into, leaving the other processes paused.
func (d *Debugger) StepIntoCurrentProcess() { d.m.StepCurrentProcess(engine.StepInto) }

// StepOverCurrentProcess steps over, leaving the other processes paused.
func (d *Debugger) StepOverCurrentProcess() { d.m.StepCurrentProcess(engine.StepOver) }

// StepOutCurrentProcess steps out, leaving the other processes paused.
func (d *Debugger) StepOutCurrentProcess() { d.m.StepCurrentProcess(engine.StepOut) }

func (d *Debugger) fail(err error) error {
	d.log.Info("debugger command failed", zap.Error(err))
	d.notify.Error(err.Error())
	return err
}
