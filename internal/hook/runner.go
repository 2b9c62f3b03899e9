package hook

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/dshills/dbgcore/internal/debug"
	"github.com/dshills/dbgcore/internal/debug/engine"
)

// DefaultTimeout bounds a single on_message call.
const DefaultTimeout = 100 * time.Millisecond

const handlerName = "on_message"

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the logger used by scripts and for script errors.
func WithLogger(l *zap.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.log = l
		}
	}
}

// WithTimeout sets the per call timeout.
func WithTimeout(d time.Duration) Option {
	return func(r *Runner) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// script is one loaded script with its own state, so scripts cannot see
// each other's globals.
type script struct {
	name string
	L    *lua.LState
	fn   *lua.LFunction
}

// Runner holds loaded scripts.
//
// gopher-lua states are not goroutine safe; every call goes through mu.
type Runner struct {
	mu      sync.Mutex
	log     *zap.Logger
	timeout time.Duration
	scripts []*script
	closed  bool
}

// New creates an empty Runner.
func New(opts ...Option) *Runner {
	r := &Runner{log: zap.NewNop(), timeout: DefaultTimeout}
	for _, o := range opts {
		o(r)
	}
	return r
}

// LoadFile loads a script from path.
func (r *Runner) LoadFile(path string) error {
	code, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read hook %s: %w", path, err)
	}
	return r.LoadString(path, string(code))
}

// LoadString loads a script. name is used in logs.
func (r *Runner) LoadString(name, code string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrClosed
	}

	L := r.newState(name)
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	L.SetContext(ctx)

	if err := L.DoString(code); err != nil {
		L.Close()
		return fmt.Errorf("load hook %s: %w", name, err)
	}
	fn, ok := L.GetGlobal(handlerName).(*lua.LFunction)
	if !ok {
		L.Close()
		return fmt.Errorf("load hook %s: %w", name, ErrNoHandler)
	}
	L.RemoveContext()

	r.scripts = append(r.scripts, &script{name: name, L: L, fn: fn})
	r.log.Info("hook loaded", zap.String("script", name))
	return nil
}

// newState creates a state with the safe libraries and a log function.
func (r *Runner) newState(name string) *lua.LState {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	lua.OpenBase(L)
	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)
	for _, unsafe := range []string{"dofile", "loadfile", "load", "loadstring", "require", "module"} {
		L.SetGlobal(unsafe, lua.LNil)
	}

	log := r.log.With(zap.String("script", name))
	L.SetGlobal("log", L.NewFunction(func(L *lua.LState) int {
		log.Info(L.CheckString(1))
		return 0
	}))
	return L
}

// Len returns the number of loaded scripts.
func (r *Runner) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.scripts)
}

// Attach runs the scripts for every message m raises.
func (r *Runner) Attach(m *debug.Manager) (detach func()) {
	return m.Message.Subscribe(r.OnMessage)
}

// OnMessage calls every script with args. Any script returning true sets
// args.Pause. Script errors are logged and otherwise ignored.
func (r *Runner) OnMessage(args *debug.MessageEventArgs) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}
	for _, s := range r.scripts {
		pause, err := r.call(s, args)
		if err != nil {
			r.log.Warn("hook failed",
				zap.String("script", s.name),
				zap.String("message", engine.Name(args.Message)),
				zap.Error(err))
			continue
		}
		if pause {
			args.Pause = true
		}
	}
}

func (r *Runner) call(s *script, args *debug.MessageEventArgs) (pause bool, err error) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	s.L.SetContext(ctx)
	defer s.L.RemoveContext()

	defer func() {
		if v := recover(); v != nil {
			err = fmt.Errorf("lua panic: %v", v)
		}
	}()

	if err := s.L.CallByParam(lua.P{Fn: s.fn, NRet: 1, Protect: true}, messageTable(s.L, args)); err != nil {
		return false, err
	}
	ret := s.L.Get(-1)
	s.L.Pop(1)
	return lua.LVAsBool(ret), nil
}

// Close releases every script.
func (r *Runner) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}
	r.closed = true
	for _, s := range r.scripts {
		s.L.Close()
	}
	r.scripts = nil
}
