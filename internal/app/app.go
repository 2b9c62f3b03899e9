// Package app wires the debugger components together and runs the console.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dshills/dbgcore/internal/config"
	"github.com/dshills/dbgcore/internal/debug"
	"github.com/dshills/dbgcore/internal/debug/command"
	"github.com/dshills/dbgcore/internal/debug/engine"
	"github.com/dshills/dbgcore/internal/hook"
	"github.com/dshills/dbgcore/internal/integration/adapters"
	"github.com/dshills/dbgcore/internal/integration/dapengine"
	"github.com/dshills/dbgcore/internal/integration/dlvengine"
	"github.com/dshills/dbgcore/internal/integration/process"
	"github.com/dshills/dbgcore/internal/logging"
	"github.com/dshills/dbgcore/internal/metrics"
)

// Options configures the application.
type Options struct {
	// ConfigPath is the configuration file. The user config file is used
	// when empty and it exists.
	ConfigPath string

	// LogLevel overrides the configured level.
	LogLevel string

	// MetricsAddr overrides the configured metrics address.
	MetricsAddr string

	// Launch or Attach selects what Run debugs.
	Launch *engine.LaunchOptions
	Attach *engine.AttachOptions

	// In and Out are the console streams. They default to stdin and stdout.
	In  io.Reader
	Out io.Writer

	// Providers replace the built in engines for the given kinds.
	Providers map[engine.Kind]engine.Provider
}

// Application owns every component of a debugging run.
type Application struct {
	opts Options

	cfg      *config.Config
	log      *logging.Logger
	metrics  *metrics.Metrics
	registry *engine.Registry
	procs    *process.Supervisor
	adapters *adapters.Registry
	manager  *debug.Manager
	debugger *command.Debugger
	hooks    *hook.Runner
	watcher  *config.Watcher
	server   *http.Server
	addr     string
	console  *console

	unsubscribe []func()
	shutdown    sync.Once
}

// New creates and wires an Application.
func New(opts Options) (*Application, error) {
	if opts.In == nil {
		opts.In = os.Stdin
	}
	if opts.Out == nil {
		opts.Out = os.Stdout
	}

	a := &Application{opts: opts}
	if err := a.bootstrap(); err != nil {
		a.Shutdown()
		return nil, err
	}
	return a, nil
}

// bootstrap initializes all components in dependency order.
func (a *Application) bootstrap() error {
	// 1. Config
	path := a.opts.ConfigPath
	if path == "" {
		path = config.DefaultPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return &InitError{Component: "config", Err: err}
	}
	if a.opts.LogLevel != "" {
		cfg.Log.Level = a.opts.LogLevel
	}
	if a.opts.MetricsAddr != "" {
		cfg.Metrics.Addr = a.opts.MetricsAddr
	}
	a.cfg = cfg

	// 2. Logging
	a.log, err = logging.New(cfg.Log)
	if err != nil {
		return &InitError{Component: "logging", Err: err}
	}

	// 3. Engines
	a.metrics = metrics.New()
	a.registry = engine.NewRegistry()
	a.registerEngines()

	// 4. Session
	settings := cfg.Settings()
	a.manager = debug.New(debug.Options{
		Registry: a.registry,
		Logger:   a.log.Named("manager"),
		Recorder: a.metrics,
		Settings: &settings,
	})
	a.metrics.WatchDispatcher("manager", a.manager.Dispatcher())

	a.console = newConsole(a.opts.In, a.opts.Out)
	a.unsubscribe = append(a.unsubscribe,
		a.manager.Message.Subscribe(a.console.message),
		a.manager.IsDebuggingChanged.Subscribe(a.console.debuggingChanged),
	)

	// 5. Hooks
	a.hooks = hook.New(hook.WithLogger(a.log.Named("hook")))
	for _, p := range cfg.Hooks {
		if err := a.hooks.LoadFile(p); err != nil {
			return &InitError{Component: "hooks", Err: err}
		}
	}
	a.unsubscribe = append(a.unsubscribe, a.hooks.Attach(a.manager))

	// 6. Commands
	a.debugger = command.New(a.manager, command.Config{
		Options: a,
		Picker:  a,
		Notify:  a.console,
		Logger:  a.log.Named("command"),
	})

	// 7. Live reload
	if path != "" {
		a.watcher, err = config.NewWatcher(path, cfg, config.WithLogger(a.log.Named("config")))
		if err != nil {
			a.log.Warn("config watch disabled", zap.String("path", path), zap.Error(err))
		} else {
			a.watcher.OnChange(config.Apply(a.log, a.manager))
		}
	}

	// 8. Metrics endpoint
	if cfg.Metrics.Addr != "" {
		if err := a.serveMetrics(cfg.Metrics.Addr); err != nil {
			return &InitError{Component: "metrics", Err: err}
		}
	}
	return nil
}

func (a *Application) registerEngines() {
	timeout := time.Duration(a.cfg.Engines.Timeout)

	a.procs = process.NewSupervisor(process.WithLogger(a.log.Named("process")))

	a.adapters = adapters.NewRegistry(a.cfg.AdapterConfigs())
	dapengine.Register(a.registry, a.adapters,
		dapengine.WithLogger(a.log.Named("dap")),
		dapengine.WithRequestTimeout(timeout),
		dapengine.WithSupervisor(a.procs))

	a.registry.Register(engine.KindDelve, dlvengine.Provider(dlvengine.Config{
		DlvPath:    a.cfg.Engines.DlvPath,
		Logger:     a.log.Named("dlv"),
		Timeout:    timeout,
		Supervisor: a.procs,
	}))

	for kind, p := range a.opts.Providers {
		a.registry.Register(kind, p)
	}
}

func (a *Application) serveMetrics(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", a.metrics.Handler())
	a.server = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := a.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Warn("metrics server stopped", zap.Error(err))
		}
	}()
	a.addr = ln.Addr().String()
	a.log.Info("serving metrics", zap.String("addr", a.addr))
	return nil
}

// Config returns the loaded configuration.
func (a *Application) Config() *config.Config { return a.cfg }

// Manager returns the session manager.
func (a *Application) Manager() *debug.Manager { return a.manager }

// Debugger returns the command surface.
func (a *Application) Debugger() *command.Debugger { return a.debugger }

// MetricsAddr returns the address the metrics endpoint listens on, or "".
func (a *Application) MetricsAddr() string { return a.addr }

// Kinds returns the runtime kinds with a registered engine.
func (a *Application) Kinds() []engine.Kind { return a.registry.Kinds() }

// StartOptions implements command.OptionsProvider.
func (a *Application) StartOptions(context.Context) (engine.StartOptions, error) {
	if a.opts.Launch == nil {
		return nil, nil
	}
	return a.opts.Launch, nil
}

// CurrentExecutable implements command.OptionsProvider.
func (a *Application) CurrentExecutable() string {
	if a.opts.Launch == nil {
		return ""
	}
	return a.opts.Launch.Filename
}

// PickProcess implements command.ProcessPicker.
func (a *Application) PickProcess(context.Context) (engine.StartOptions, error) {
	if a.opts.Attach == nil {
		return nil, nil
	}
	return a.opts.Attach, nil
}

// Run starts the configured program or attaches to the configured process
// and runs the console until the session ends, the user quits or ctx is
// cancelled.
func (a *Application) Run(ctx context.Context) error {
	var err error
	switch {
	case a.opts.Launch != nil:
		err = a.debugger.DebugProgram(ctx)
	case a.opts.Attach != nil:
		err = a.debugger.Attach(ctx)
	default:
		return ErrNothingToDebug
	}
	if err != nil {
		return err
	}

	err = a.console.run(ctx, a.debugger, a.manager)
	if errors.Is(err, ErrQuit) {
		a.debugger.StopDebugging()
		return nil
	}
	return err
}

// Shutdown stops every component. It is safe to call more than once.
func (a *Application) Shutdown() {
	a.shutdown.Do(func() {
		for _, u := range a.unsubscribe {
			u()
		}
		if a.watcher != nil {
			_ = a.watcher.Close()
		}
		if a.server != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			_ = a.server.Shutdown(ctx)
			cancel()
		}
		if a.manager != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := a.manager.Shutdown(ctx); err != nil {
				a.log.Warn("manager shutdown", zap.Error(err))
			}
			cancel()
		}
		if a.procs != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			a.procs.Shutdown(ctx)
			cancel()
		}
		if a.hooks != nil {
			a.hooks.Close()
		}
		if a.log != nil {
			_ = a.log.Sync()
		}
	})
}

// String describes the session target for logs.
func (a *Application) String() string {
	switch {
	case a.opts.Launch != nil:
		return fmt.Sprintf("launch %s", a.opts.Launch.Filename)
	case a.opts.Attach != nil && a.opts.Attach.PID != 0:
		return fmt.Sprintf("attach %d", a.opts.Attach.PID)
	case a.opts.Attach != nil:
		return fmt.Sprintf("attach %s", a.opts.Attach.Address)
	default:
		return "idle"
	}
}
