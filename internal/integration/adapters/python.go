package adapters

import (
	"fmt"
	"os/exec"

	"github.com/dshills/dbgcore/internal/debug/engine"
)

// Python runs Python programs under debugpy.
type Python struct {
	cfg Config
}

// NewPython creates the debugpy adapter.
func NewPython(cfg Config) *Python {
	return &Python{cfg: cfg}
}

// Kind implements Adapter.
func (a *Python) Kind() engine.Kind { return engine.KindPython }

// Name implements Adapter.
func (a *Python) Name() string { return "Python Debugger (debugpy)" }

// ID implements Adapter.
func (a *Python) ID() string { return "debugpy" }

// Tags implements Adapter.
func (a *Python) Tags() []string { return []string{"Python"} }

// Connection implements Adapter.
func (a *Python) Connection() Connection { return ConnectStdio }

// Command implements Adapter.
func (a *Python) Command(string) (*exec.Cmd, error) {
	python, err := executable(a.cfg, "python3", "python")
	if err != nil {
		return nil, fmt.Errorf("python interpreter not found in PATH (install Python 3 and debugpy: pip install debugpy): %w", err)
	}
	args := append([]string{}, a.cfg.Args...)
	args = append(args, "-m", "debugpy.adapter")
	return exec.Command(python, args...), nil
}

// LaunchArgs implements Adapter.
func (a *Python) LaunchArgs(opts *engine.LaunchOptions) map[string]any {
	args := launchCommon(opts)
	args["type"] = "python"
	args["console"] = "internalConsole"
	args["justMyCode"] = true
	args["redirectOutput"] = true
	return args
}

// AttachArgs implements Adapter.
func (a *Python) AttachArgs(opts *engine.AttachOptions) (map[string]any, error) {
	args := map[string]any{"type": "python", "request": "attach", "justMyCode": true}
	if opts.Address == "" {
		args["processId"] = opts.PID
		return args, nil
	}
	host, port, err := splitAddress(opts.Address)
	if err != nil {
		return nil, err
	}
	args["connect"] = map[string]any{"host": host, "port": port}
	return args, nil
}
