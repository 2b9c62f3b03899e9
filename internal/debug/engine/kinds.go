package engine

import (
	"fmt"
	"strings"
)

// Kind identifies a runtime technology and therefore the engine that serves it.
type Kind string

const (
	// KindDelve debugs Go programs through a headless Delve JSON-RPC server.
	KindDelve Kind = "delve"
	// KindGoDAP debugs Go programs through "dlv dap".
	KindGoDAP Kind = "go-dap"
	// KindPython debugs Python programs through debugpy.
	KindPython Kind = "python"
	// KindNode debugs JavaScript programs through js-debug.
	KindNode Kind = "node"
)

// StartKind says whether an engine launches a new debuggee or attaches to one.
type StartKind int

const (
	// Launch starts a new process.
	Launch StartKind = iota
	// Attach connects to an existing process.
	Attach
)

// String returns the string representation of the start kind.
func (k StartKind) String() string {
	switch k {
	case Launch:
		return "launch"
	case Attach:
		return "attach"
	default:
		return fmt.Sprintf("StartKind(%d)", int(k))
	}
}

// BreakKind selects the first event the debuggee should be paused on.
type BreakKind int

const (
	// BreakNone never pauses automatically.
	BreakNone BreakKind = iota
	// BreakCreateProcess pauses when the process is created.
	BreakCreateProcess
	// BreakFirstAppDomain pauses when the first app domain is loaded.
	BreakFirstAppDomain
	// BreakFirstModule pauses when the first module is loaded.
	BreakFirstModule
	// BreakFirstThread pauses when the first thread is created.
	BreakFirstThread
	// BreakExeModule pauses when the executable module is loaded.
	BreakExeModule
	// BreakEntryPoint pauses at the program entry point. Engines implement it.
	BreakEntryPoint
)

var breakKindNames = []string{
	BreakNone:           "none",
	BreakCreateProcess:  "create-process",
	BreakFirstAppDomain: "first-appdomain",
	BreakFirstModule:    "first-module",
	BreakFirstThread:    "first-thread",
	BreakExeModule:      "exe-module",
	BreakEntryPoint:     "entry-point",
}

// String returns the string representation of the break kind.
func (k BreakKind) String() string {
	if k >= 0 && int(k) < len(breakKindNames) {
		return breakKindNames[k]
	}
	return fmt.Sprintf("BreakKind(%d)", int(k))
}

// ParseBreakKind parses the names produced by BreakKind.String.
func ParseBreakKind(s string) (BreakKind, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return BreakNone, nil
	}
	for i, name := range breakKindNames {
		if name == s {
			return BreakKind(i), nil
		}
	}
	return BreakNone, &OptionError{Field: "break", Reason: fmt.Sprintf("unknown break kind %q", s)}
}

// MarshalText implements encoding.TextMarshaler.
func (k BreakKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *BreakKind) UnmarshalText(text []byte) error {
	parsed, err := ParseBreakKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// BreakKinds returns every break kind in declaration order.
func BreakKinds() []BreakKind {
	kinds := make([]BreakKind, len(breakKindNames))
	for i := range kinds {
		kinds[i] = BreakKind(i)
	}
	return kinds
}

// StepKind is the granularity of a step command.
type StepKind int

const (
	// StepInto steps into calls.
	StepInto StepKind = iota
	// StepOver steps over calls.
	StepOver
	// StepOut runs until the current function returns.
	StepOut
)

// String returns the string representation of the step kind.
func (k StepKind) String() string {
	switch k {
	case StepInto:
		return "into"
	case StepOver:
		return "over"
	case StepOut:
		return "out"
	default:
		return fmt.Sprintf("StepKind(%d)", int(k))
	}
}
