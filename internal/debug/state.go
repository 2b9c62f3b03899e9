package debug

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dshills/dbgcore/internal/debug/engine"
)

// RunState is the aggregate running state over all processes.
type RunState int

const (
	// RunUnknown is reported while nothing is being debugged.
	RunUnknown RunState = iota
	// RunRunning means every process is running.
	RunRunning
	// RunPaused means every process is paused.
	RunPaused
	// RunMixed means some processes run and others are paused.
	RunMixed
)

// String returns the string representation of the run state.
func (s RunState) String() string {
	switch s {
	case RunUnknown:
		return "unknown"
	case RunRunning:
		return "running"
	case RunPaused:
		return "paused"
	case RunMixed:
		return "mixed"
	default:
		return fmt.Sprintf("RunState(%d)", int(s))
	}
}

// Settings are the live-tunable manager settings.
type Settings struct {
	// BreakAllProcesses pauses every other process when one process breaks.
	BreakAllProcesses bool

	// DelayedRunningInterval is how long every process must have been running
	// before DelayedIsRunningChanged is raised.
	DelayedRunningInterval time.Duration
}

// DefaultSettings returns the default settings.
func DefaultSettings() Settings {
	return Settings{DelayedRunningInterval: time.Second}
}

// Snapshot is an immutable view of the session, published by the dispatcher
// after every change and safe to read from any goroutine.
type Snapshot struct {
	IsDebugging                 bool
	RunState                    RunState
	Epoch                       int
	Processes                   []ProcessSnapshot
	Tags                        []string
	CanDetachWithoutTerminating bool
	CanRestart                  bool

	// CurrentProcess is the index into Processes of the current process, or -1.
	CurrentProcess int
	// CurrentThreadID is the engine id of the current thread, or 0.
	CurrentThreadID int
	// HasBreakThread reports whether a break thread is recorded.
	HasBreakThread bool
}

// ProcessSnapshot describes one process in a Snapshot.
type ProcessSnapshot struct {
	ID        uuid.UUID
	PID       int
	Name      string
	State     ProcessState
	StartKind engine.StartKind
	Kinds     []engine.Kind
	Threads   int
}

// Current returns the current process, if any.
func (s *Snapshot) Current() (ProcessSnapshot, bool) {
	if s.CurrentProcess < 0 || s.CurrentProcess >= len(s.Processes) {
		return ProcessSnapshot{}, false
	}
	return s.Processes[s.CurrentProcess], true
}

// Process returns the process with the given pid.
func (s *Snapshot) Process(pid int) (ProcessSnapshot, bool) {
	for _, p := range s.Processes {
		if p.PID == pid && pid != 0 {
			return p, true
		}
	}
	return ProcessSnapshot{}, false
}

var emptySnapshot = &Snapshot{CurrentProcess: -1}
