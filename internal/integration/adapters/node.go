package adapters

import (
	"fmt"
	"net"
	"os/exec"

	"github.com/dshills/dbgcore/internal/debug/engine"
)

// Node runs JavaScript programs under the js-debug DAP server.
type Node struct {
	cfg Config
}

// NewNode creates the js-debug adapter. cfg.Args must name the
// dapDebugServer.js script unless cfg.Path is a wrapper for it.
func NewNode(cfg Config) *Node {
	return &Node{cfg: cfg}
}

// Kind implements Adapter.
func (a *Node) Kind() engine.Kind { return engine.KindNode }

// Name implements Adapter.
func (a *Node) Name() string { return "Node.js Debugger (js-debug)" }

// ID implements Adapter.
func (a *Node) ID() string { return "pwa-node" }

// Tags implements Adapter.
func (a *Node) Tags() []string { return []string{"JavaScript"} }

// Connection implements Adapter.
func (a *Node) Connection() Connection { return ConnectSocket }

// Host returns the listen host.
func (a *Node) Host() string { return a.cfg.host() }

// Command implements Adapter. dapDebugServer.js takes the port and host as
// positional arguments.
func (a *Node) Command(address string) (*exec.Cmd, error) {
	node, err := executable(a.cfg, "node")
	if err != nil {
		return nil, fmt.Errorf("node.js runtime not found: %w (install from https://nodejs.org/)", err)
	}
	host, port, err := net.SplitHostPort(address)
	if err != nil {
		return nil, fmt.Errorf("listen address %q: %w", address, err)
	}
	args := append([]string{}, a.cfg.Args...)
	args = append(args, port, host)
	return exec.Command(node, args...), nil
}

// LaunchArgs implements Adapter.
func (a *Node) LaunchArgs(opts *engine.LaunchOptions) map[string]any {
	args := launchCommon(opts)
	args["type"] = "pwa-node"
	args["console"] = "internalConsole"
	args["sourceMaps"] = true
	return args
}

// AttachArgs implements Adapter.
func (a *Node) AttachArgs(opts *engine.AttachOptions) (map[string]any, error) {
	args := map[string]any{"type": "pwa-node", "request": "attach"}
	if opts.Address == "" {
		args["processId"] = opts.PID
		return args, nil
	}
	host, port, err := splitAddress(opts.Address)
	if err != nil {
		return nil, err
	}
	args["address"] = host
	args["port"] = port
	return args, nil
}
