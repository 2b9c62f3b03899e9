package adapters

import (
	"fmt"
	"os/exec"

	"github.com/dshills/dbgcore/internal/debug/engine"
)

// Delve runs Go programs under "dlv dap".
type Delve struct {
	cfg Config
}

// NewDelve creates the Delve DAP adapter.
func NewDelve(cfg Config) *Delve {
	return &Delve{cfg: cfg}
}

// Kind implements Adapter.
func (a *Delve) Kind() engine.Kind { return engine.KindGoDAP }

// Name implements Adapter.
func (a *Delve) Name() string { return "Delve (Go Debugger)" }

// ID implements Adapter.
func (a *Delve) ID() string { return "go" }

// Tags implements Adapter.
func (a *Delve) Tags() []string { return []string{"Go"} }

// Connection implements Adapter. dlv dap only listens on TCP.
func (a *Delve) Connection() Connection { return ConnectSocket }

// Host returns the listen host.
func (a *Delve) Host() string { return a.cfg.host() }

// Command implements Adapter.
func (a *Delve) Command(address string) (*exec.Cmd, error) {
	dlv, err := executable(a.cfg, "dlv")
	if err != nil {
		return nil, fmt.Errorf("delve debugger not found: %w (install with: go install github.com/go-delve/delve/cmd/dlv@latest)", err)
	}
	args := append([]string{}, a.cfg.Args...)
	args = append(args, "dap", "--listen", address)
	return exec.Command(dlv, args...), nil
}

// LaunchArgs implements Adapter. The program is an already built binary.
func (a *Delve) LaunchArgs(opts *engine.LaunchOptions) map[string]any {
	args := launchCommon(opts)
	args["mode"] = "exec"
	return args
}

// AttachArgs implements Adapter.
func (a *Delve) AttachArgs(opts *engine.AttachOptions) (map[string]any, error) {
	if opts.Address != "" {
		return map[string]any{"request": "attach", "mode": "remote"}, nil
	}
	return map[string]any{"request": "attach", "mode": "local", "processId": opts.PID}, nil
}
