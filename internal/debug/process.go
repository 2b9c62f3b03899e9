package debug

import (
	"fmt"

	"github.com/dshills/dbgcore/internal/debug/engine"
)

// ProcessState is the state of a debugged process.
type ProcessState int

const (
	// ProcessStarting means no engine has reported the process yet.
	ProcessStarting ProcessState = iota
	// ProcessPaused means every engine of the process is paused.
	ProcessPaused
	// ProcessRunning means at least one engine of the process is running.
	ProcessRunning
	// ProcessTerminated means the process has been removed.
	ProcessTerminated
)

// String returns the string representation of the state.
func (s ProcessState) String() string {
	switch s {
	case ProcessStarting:
		return "starting"
	case ProcessPaused:
		return "paused"
	case ProcessRunning:
		return "running"
	case ProcessTerminated:
		return "terminated"
	default:
		return fmt.Sprintf("ProcessState(%d)", int(s))
	}
}

// Process is one debuggee.
type Process struct {
	Base

	pid       int
	name      string
	startKind engine.StartKind
	state     ProcessState
	exitCode  int
	runtimes  Collection[*Runtime]
}

func newProcess(startKind engine.StartKind) *Process {
	return &Process{Base: newBase(), startKind: startKind, state: ProcessStarting}
}

// PID returns the process id, 0 until the engine reports it.
func (p *Process) PID() int { return p.pid }

// Name returns the process name.
func (p *Process) Name() string { return p.name }

// StartKind reports whether the process was launched or attached to.
func (p *Process) StartKind() engine.StartKind { return p.startKind }

// State returns the process state.
func (p *Process) State() ProcessState { return p.state }

// ExitCode returns the exit code reported when the process exited.
func (p *Process) ExitCode() int { return p.exitCode }

// Runtimes returns the runtimes loaded in the process.
func (p *Process) Runtimes() []*Runtime { return p.runtimes.Items() }

// RuntimesChanged is raised when runtimes are added or removed.
func (p *Process) RuntimesChanged() *Event[CollectionChanged[*Runtime]] {
	return &p.runtimes.Changed
}

// String implements fmt.Stringer.
func (p *Process) String() string {
	if p.name != "" {
		return fmt.Sprintf("%s (%d)", p.name, p.pid)
	}
	return fmt.Sprintf("process %d", p.pid)
}

// Close closes the runtimes, then the process.
func (p *Process) Close() {
	if p.closed {
		return
	}
	for _, r := range p.runtimes.Items() {
		r.Close()
	}
	p.runtimes.Clear()
	p.state = ProcessTerminated
	p.finish()
}
