package command

import (
	"context"
	"fmt"
	"sort"
)

// Debug action names.
const (
	ActionDebugStart                  = "debug.start"                  // Debug the selected program
	ActionDebugStartWithoutDebugging  = "debug.startWithoutDebugging"  // Run the selected program
	ActionDebugAttach                 = "debug.attach"                 // Attach to a process
	ActionDebugContinue               = "debug.continue"               // Resume all processes
	ActionDebugBreakAll               = "debug.breakAll"               // Pause all processes
	ActionDebugStop                   = "debug.stop"                   // Stop debugging
	ActionDebugDetachAll              = "debug.detachAll"              // Detach from all processes
	ActionDebugTerminateAll           = "debug.terminateAll"           // Terminate all processes
	ActionDebugRestart                = "debug.restart"                // Restart all processes
	ActionDebugShowNextStatement      = "debug.showNextStatement"      // Select the break location
	ActionDebugStepInto               = "debug.stepInto"               // Step into
	ActionDebugStepOver               = "debug.stepOver"               // Step over
	ActionDebugStepOut                = "debug.stepOut"                // Step out
	ActionDebugStepIntoCurrentProcess = "debug.stepIntoCurrentProcess" // Step into, others stay paused
	ActionDebugStepOverCurrentProcess = "debug.stepOverCurrentProcess" // Step over, others stay paused
	ActionDebugStepOutCurrentProcess  = "debug.stepOutCurrentProcess"  // Step out, others stay paused
)

// Action pairs a command with its predicate.
type Action struct {
	Name string
	Can  func() bool
	Run  func(ctx context.Context) error
}

func do(fn func()) func(context.Context) error {
	return func(context.Context) error {
		fn()
		return nil
	}
}

// Actions returns the action table, sorted by name.
func (d *Debugger) Actions() []Action {
	actions := []Action{
		{ActionDebugStart, d.CanDebugProgram, d.DebugProgram},
		{ActionDebugStartWithoutDebugging, d.CanStartWithoutDebugging, func(context.Context) error { return d.StartWithoutDebugging() }},
		{ActionDebugAttach, d.CanAttach, d.Attach},
		{ActionDebugContinue, d.CanContinue, do(d.Continue)},
		{ActionDebugBreakAll, d.CanBreakAll, do(d.BreakAll)},
		{ActionDebugStop, d.CanStopDebugging, do(d.StopDebugging)},
		{ActionDebugDetachAll, d.CanDetachAll, do(d.DetachAll)},
		{ActionDebugTerminateAll, d.CanTerminateAll, do(d.TerminateAll)},
		{ActionDebugRestart, d.CanRestart, do(d.Restart)},
		{ActionDebugShowNextStatement, d.CanShowNextStatement, do(d.ShowNextStatement)},
		{ActionDebugStepInto, d.CanStep, do(d.StepInto)},
		{ActionDebugStepOver, d.CanStep, do(d.StepOver)},
		{ActionDebugStepOut, d.CanStep, do(d.StepOut)},
		{ActionDebugStepIntoCurrentProcess, d.CanStepCurrentProcess, do(d.StepIntoCurrentProcess)},
		{ActionDebugStepOverCurrentProcess, d.CanStepCurrentProcess, do(d.StepOverCurrentProcess)},
		{ActionDebugStepOutCurrentProcess, d.CanStepCurrentProcess, do(d.StepOutCurrentProcess)},
	}
	sort.Slice(actions, func(i, j int) bool { return actions[i].Name < actions[j].Name })
	return actions
}

// Namespace returns the action namespace.
func (d *Debugger) Namespace() string {
	return "debug"
}

// CanHandle returns true if name is a debug action.
func (d *Debugger) CanHandle(name string) bool {
	_, ok := d.lookup(name)
	return ok
}

// Handle runs the named action after checking its predicate.
func (d *Debugger) Handle(ctx context.Context, name string) error {
	a, ok := d.lookup(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownAction, name)
	}
	if !a.Can() {
		return fmt.Errorf("%w: %s", ErrNotAvailable, name)
	}
	return a.Run(ctx)
}

func (d *Debugger) lookup(name string) (Action, bool) {
	for _, a := range d.Actions() {
		if a.Name == name {
			return a, true
		}
	}
	return Action{}, false
}
