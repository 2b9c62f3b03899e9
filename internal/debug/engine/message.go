package engine

import (
	"fmt"
	"strings"
)

// Flags accompany every message.
type Flags struct {
	// Suspended is set when the engine stopped the debuggee to deliver the
	// message. The manager either pauses or resumes it afterwards.
	Suspended bool

	// Pause asks the manager to pause after processing the message.
	Pause bool
}

// MessageFlags returns the flags. Embedding Flags implements Message.
func (f Flags) MessageFlags() Flags { return f }

// Message is a notification posted by an engine.
type Message interface {
	MessageFlags() Flags
}

// Sink receives engine messages.
type Sink interface {
	Post(m Message)
}

// SinkFunc adapts a function into a Sink.
type SinkFunc func(Message)

// Post implements Sink.
func (f SinkFunc) Post(m Message) { f(m) }

// RuntimeInfo describes a runtime loaded into the debuggee.
type RuntimeInfo struct {
	Name    string
	Version string
	// Tags are debug tags, for example "Go" or "Python".
	Tags []string
}

// AppDomainInfo describes an isolation domain inside a runtime.
type AppDomainInfo struct {
	ID   int
	Name string
}

// ModuleInfo describes a loaded module.
type ModuleInfo struct {
	ID          string
	Name        string
	Filename    string
	Address     uint64
	Size        uint64
	IsExe       bool
	IsDynamic   bool
	AppDomainID int
}

// ThreadInfo describes a debuggee thread.
type ThreadInfo struct {
	ID   int
	Name string
}

// ProcessCreated reports the debuggee process id.
type ProcessCreated struct {
	Flags
	PID  int
	Name string
}

// LaunchFailed reports that the debuggee could not be started.
type LaunchFailed struct {
	Flags
	Err error
}

// ProcessExited reports that the debuggee is gone.
type ProcessExited struct {
	Flags
	ExitCode int
}

// Detached reports that the engine let go of a debuggee that keeps running.
type Detached struct {
	Flags
}

// RuntimeLoaded reports the engine's runtime.
type RuntimeLoaded struct {
	Flags
	Runtime RuntimeInfo
}

// RuntimeUnloaded reports that the engine's runtime went away.
type RuntimeUnloaded struct {
	Flags
}

// AppDomainLoaded reports a new app domain.
type AppDomainLoaded struct {
	Flags
	AppDomain AppDomainInfo
}

// AppDomainUnloaded reports an app domain removal.
type AppDomainUnloaded struct {
	Flags
	ID int
}

// ModuleLoaded reports a new module.
type ModuleLoaded struct {
	Flags
	Module ModuleInfo
}

// ModuleUnloaded reports a module removal.
type ModuleUnloaded struct {
	Flags
	ID string
}

// ThreadCreated reports a new thread.
type ThreadCreated struct {
	Flags
	Thread ThreadInfo
}

// ThreadExited reports a thread exit.
type ThreadExited struct {
	Flags
	ID       int
	ExitCode int
}

// BreakRequested reports that the debuggee stopped, for a breakpoint, a step,
// an exception or a Break command. ThreadID is 0 when unknown. The debuggee
// stays paused when Pause is set, by the engine or by an observer; otherwise
// the manager resumes it.
type BreakRequested struct {
	Flags
	ThreadID int
	Reason   string
}

// Running reports that the debuggee resumed.
type Running struct {
	Flags
}

// ProgramOutput carries debuggee or adapter output.
type ProgramOutput struct {
	Flags
	Category string
	Text     string
}

// Name returns a short, stable name for a message type, for logs and metrics.
func Name(m Message) string {
	switch m.(type) {
	case *ProcessCreated:
		return "process_created"
	case *LaunchFailed:
		return "launch_failed"
	case *ProcessExited:
		return "process_exited"
	case *Detached:
		return "detached"
	case *RuntimeLoaded:
		return "runtime_loaded"
	case *RuntimeUnloaded:
		return "runtime_unloaded"
	case *AppDomainLoaded:
		return "appdomain_loaded"
	case *AppDomainUnloaded:
		return "appdomain_unloaded"
	case *ModuleLoaded:
		return "module_loaded"
	case *ModuleUnloaded:
		return "module_unloaded"
	case *ThreadCreated:
		return "thread_created"
	case *ThreadExited:
		return "thread_exited"
	case *BreakRequested:
		return "break_requested"
	case *Running:
		return "running"
	case *ProgramOutput:
		return "program_output"
	default:
		return strings.ToLower(strings.TrimPrefix(fmt.Sprintf("%T", m), "*"))
	}
}
