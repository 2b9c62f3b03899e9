package debug

import (
	"fmt"

	"github.com/dshills/dbgcore/internal/debug/engine"
)

// Runtime is a runtime loaded into a process and debugged by one engine.
type Runtime struct {
	Base

	process    *Process
	kind       engine.Kind
	name       string
	version    string
	tags       []string
	appDomains Collection[*AppDomain]
	modules    Collection[*Module]
	threads    Collection[*Thread]
}

func newRuntime(p *Process, kind engine.Kind, info engine.RuntimeInfo) *Runtime {
	name := info.Name
	if name == "" {
		name = string(kind)
	}
	return &Runtime{
		Base:    newBase(),
		process: p,
		kind:    kind,
		name:    name,
		version: info.Version,
		tags:    append([]string(nil), info.Tags...),
	}
}

// Process returns the owning process.
func (r *Runtime) Process() *Process { return r.process }

// Kind returns the runtime kind of the engine debugging it.
func (r *Runtime) Kind() engine.Kind { return r.kind }

// Name returns the runtime name.
func (r *Runtime) Name() string { return r.name }

// Version returns the runtime version, if known.
func (r *Runtime) Version() string { return r.version }

// Tags returns the debug tags of the runtime.
func (r *Runtime) Tags() []string { return append([]string(nil), r.tags...) }

// AppDomains returns the app domains of the runtime.
func (r *Runtime) AppDomains() []*AppDomain { return r.appDomains.Items() }

// Modules returns the loaded modules.
func (r *Runtime) Modules() []*Module { return r.modules.Items() }

// Threads returns the live threads.
func (r *Runtime) Threads() []*Thread { return r.threads.Items() }

// AppDomainsChanged is raised when app domains are added or removed.
func (r *Runtime) AppDomainsChanged() *Event[CollectionChanged[*AppDomain]] {
	return &r.appDomains.Changed
}

// ModulesChanged is raised when modules are added or removed.
func (r *Runtime) ModulesChanged() *Event[CollectionChanged[*Module]] {
	return &r.modules.Changed
}

// ThreadsChanged is raised when threads are added or removed.
func (r *Runtime) ThreadsChanged() *Event[CollectionChanged[*Thread]] {
	return &r.threads.Changed
}

// Thread returns the thread with the given engine id.
func (r *Runtime) Thread(id int) (*Thread, bool) {
	return r.threads.Find(func(t *Thread) bool { return t.id == id })
}

// AppDomain returns the app domain with the given engine id.
func (r *Runtime) AppDomain(id int) (*AppDomain, bool) {
	return r.appDomains.Find(func(a *AppDomain) bool { return a.id == id })
}

// Module returns the module with the given engine id.
func (r *Runtime) Module(id string) (*Module, bool) {
	return r.modules.Find(func(m *Module) bool { return m.id == id })
}

// String implements fmt.Stringer.
func (r *Runtime) String() string {
	return fmt.Sprintf("%s runtime of %s", r.name, r.process)
}

// Close closes threads, modules and app domains, then the runtime.
func (r *Runtime) Close() {
	if r.closed {
		return
	}
	for _, t := range r.threads.Items() {
		t.Close()
	}
	r.threads.Clear()
	for _, m := range r.modules.Items() {
		m.Close()
	}
	r.modules.Clear()
	for _, a := range r.appDomains.Items() {
		a.Close()
	}
	r.appDomains.Clear()
	r.finish()
}

// AppDomain is an isolation domain inside a runtime.
type AppDomain struct {
	Base

	runtime *Runtime
	id      int
	name    string
}

// Runtime returns the owning runtime.
func (a *AppDomain) Runtime() *Runtime { return a.runtime }

// EngineID returns the engine id of the app domain.
func (a *AppDomain) EngineID() int { return a.id }

// Name returns the app domain name.
func (a *AppDomain) Name() string { return a.name }

// Close closes the app domain.
func (a *AppDomain) Close() { a.finish() }

// Module is a loaded executable or library.
type Module struct {
	Base

	runtime   *Runtime
	appDomain *AppDomain
	id        string
	name      string
	filename  string
	address   uint64
	size      uint64
	isExe     bool
	isDynamic bool
}

// Runtime returns the owning runtime.
func (m *Module) Runtime() *Runtime { return m.runtime }

// AppDomain returns the app domain the module was loaded in, or nil.
func (m *Module) AppDomain() *AppDomain { return m.appDomain }

// EngineID returns the engine id of the module.
func (m *Module) EngineID() string { return m.id }

// Name returns the module name.
func (m *Module) Name() string { return m.name }

// Filename returns the module path, if known.
func (m *Module) Filename() string { return m.filename }

// Address returns the load address.
func (m *Module) Address() uint64 { return m.address }

// Size returns the image size.
func (m *Module) Size() uint64 { return m.size }

// IsExe reports whether this is the process executable.
func (m *Module) IsExe() bool { return m.isExe }

// IsDynamic reports whether the module was created in memory.
func (m *Module) IsDynamic() bool { return m.isDynamic }

// Close closes the module.
func (m *Module) Close() { m.finish() }

// Thread is a debuggee thread.
type Thread struct {
	Base

	runtime  *Runtime
	id       int
	name     string
	exitCode int
}

// Runtime returns the owning runtime.
func (t *Thread) Runtime() *Runtime { return t.runtime }

// Process returns the process owning the thread's runtime.
func (t *Thread) Process() *Process { return t.runtime.process }

// EngineID returns the engine thread id.
func (t *Thread) EngineID() int { return t.id }

// Name returns the thread name.
func (t *Thread) Name() string { return t.name }

// ExitCode returns the exit code recorded when the thread exited.
func (t *Thread) ExitCode() int { return t.exitCode }

// String implements fmt.Stringer.
func (t *Thread) String() string {
	if t.name != "" {
		return fmt.Sprintf("thread %d (%s)", t.id, t.name)
	}
	return fmt.Sprintf("thread %d", t.id)
}

// Close closes the thread.
func (t *Thread) Close() { t.finish() }
