// Package adapters describes how to start the supported DAP debug adapters
// and how to translate start options into their launch and attach
// arguments.
package adapters

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os/exec"
	"sort"
	"strconv"
	"time"

	"github.com/dshills/dbgcore/internal/debug/engine"
)

// ErrUnknownAdapter is returned by Registry.Lookup.
var ErrUnknownAdapter = errors.New("unknown debug adapter")

// Connection is how the client talks to an adapter.
type Connection string

const (
	// ConnectStdio talks over the adapter's stdin and stdout.
	ConnectStdio Connection = "stdio"
	// ConnectSocket talks over TCP to an address the adapter listens on.
	ConnectSocket Connection = "socket"
)

// Config overrides how an adapter is started.
type Config struct {
	// Path is the adapter executable. Looked up in PATH when empty.
	Path string `json:"path,omitempty" yaml:"path,omitempty" toml:"path,omitempty"`

	// Args are passed to the executable before the adapter's own arguments.
	Args []string `json:"args,omitempty" yaml:"args,omitempty" toml:"args,omitempty"`

	// Host is the listen host for socket adapters.
	Host string `json:"host,omitempty" yaml:"host,omitempty" toml:"host,omitempty"`
}

func (c Config) host() string {
	if c.Host == "" {
		return "127.0.0.1"
	}
	return c.Host
}

// Adapter describes one debug adapter.
type Adapter interface {
	// Kind returns the engine kind served by this adapter.
	Kind() engine.Kind

	// Name returns a human readable adapter name.
	Name() string

	// ID returns the adapterID sent in the initialize request.
	ID() string

	// Tags returns the debug tags of debuggees run by this adapter.
	Tags() []string

	// Connection returns how to talk to a spawned adapter.
	Connection() Connection

	// Command returns the command that starts the adapter. For socket
	// adapters address is where it must listen.
	Command(address string) (*exec.Cmd, error)

	// LaunchArgs returns the arguments of the launch request.
	LaunchArgs(opts *engine.LaunchOptions) map[string]any

	// AttachArgs returns the arguments of the attach request.
	AttachArgs(opts *engine.AttachOptions) (map[string]any, error)
}

// Registry maps engine kinds to adapters.
type Registry struct {
	adapters map[engine.Kind]Adapter
}

// NewRegistry creates a registry with the built-in adapters. configs
// overrides the start command per kind.
func NewRegistry(configs map[engine.Kind]Config) *Registry {
	r := &Registry{adapters: make(map[engine.Kind]Adapter)}
	r.Register(NewDelve(configs[engine.KindGoDAP]))
	r.Register(NewPython(configs[engine.KindPython]))
	r.Register(NewNode(configs[engine.KindNode]))
	return r
}

// Register adds or replaces an adapter.
func (r *Registry) Register(a Adapter) {
	r.adapters[a.Kind()] = a
}

// Lookup returns the adapter for kind.
func (r *Registry) Lookup(kind engine.Kind) (Adapter, error) {
	a, ok := r.adapters[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAdapter, kind)
	}
	return a, nil
}

// Kinds returns the registered kinds, sorted.
func (r *Registry) Kinds() []engine.Kind {
	kinds := make([]engine.Kind, 0, len(r.adapters))
	for k := range r.adapters {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// FindExecutable searches for an executable in PATH.
func FindExecutable(name string) (string, error) {
	path, err := exec.LookPath(name)
	if err != nil {
		return "", fmt.Errorf("%s not found in PATH: %w", name, err)
	}
	return path, nil
}

// FreeAddress returns a host:port on host that nothing listens on.
func FreeAddress(host string) (string, error) {
	l, err := net.Listen("tcp", net.JoinHostPort(host, "0"))
	if err != nil {
		return "", fmt.Errorf("find free port: %w", err)
	}
	defer l.Close()
	return l.Addr().String(), nil
}

// WaitForAddress polls address until it accepts connections or ctx is done.
func WaitForAddress(ctx context.Context, address string) error {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		conn, err := net.DialTimeout("tcp", address, 50*time.Millisecond)
		if err == nil {
			conn.Close()
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for %s: %w", address, ctx.Err())
		case <-ticker.C:
		}
	}
}

// splitAddress splits host:port. A bare port means localhost.
func splitAddress(address string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(address)
	if err != nil {
		if p, perr := strconv.Atoi(address); perr == nil {
			return "127.0.0.1", p, nil
		}
		return "", 0, &engine.OptionError{Field: "address", Reason: fmt.Sprintf("%q is not host:port", address)}
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 || port > 65535 {
		return "", 0, &engine.OptionError{Field: "address", Reason: fmt.Sprintf("%q has an invalid port", address)}
	}
	if host == "" {
		host = "127.0.0.1"
	}
	return host, port, nil
}

// stopOnEntry reports whether the adapter must stop at the entry point.
// The other break kinds are applied by the manager from engine messages.
func stopOnEntry(kind engine.BreakKind) bool {
	return kind == engine.BreakEntryPoint
}

func executable(cfg Config, names ...string) (string, error) {
	if cfg.Path != "" {
		return cfg.Path, nil
	}
	var err error
	for _, name := range names {
		var path string
		if path, err = FindExecutable(name); err == nil {
			return path, nil
		}
	}
	return "", err
}

func launchCommon(opts *engine.LaunchOptions) map[string]any {
	args := map[string]any{
		"request":     "launch",
		"program":     opts.Filename,
		"cwd":         opts.Dir(),
		"stopOnEntry": stopOnEntry(opts.Break),
	}
	if len(opts.Args) > 0 {
		args["args"] = opts.Args
	}
	if len(opts.Env) > 0 {
		args["env"] = opts.Env
	}
	return args
}
