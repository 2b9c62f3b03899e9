package debug

import (
	"go.uber.org/zap"

	"github.com/dshills/dbgcore/internal/debug/engine"
)

// onMessage applies one engine message. It runs on the dispatcher.
func (m *Manager) onMessage(info *engineInfo, msg engine.Message) {
	if info.gone {
		return
	}

	name := engine.Name(msg)
	m.recorder.MessageProcessed(string(info.eng.Kind()), name)

	flags := msg.MessageFlags()
	args := &MessageEventArgs{Message: msg, Pause: flags.Pause}
	suspended := flags.Suspended
	terminal := false

	switch msg := msg.(type) {
	case *engine.ProcessCreated:
		m.onProcessCreated(info, msg)
		if info.pendingBreak {
			info.pendingBreak = false
			args.Pause = true
		}

	case *engine.LaunchFailed:
		m.log.Warn("launch failed",
			zap.Stringer("engine", info.id),
			zap.String("kind", string(info.eng.Kind())),
			zap.Error(msg.Err))
		terminal = true

	case *engine.ProcessExited:
		info.process.exitCode = msg.ExitCode
		terminal = true

	case *engine.Detached:
		terminal = true

	case *engine.RuntimeLoaded:
		if info.runtime != nil {
			m.log.Warn("runtime loaded twice", zap.Stringer("engine", info.id))
			break
		}
		m.addRuntime(info, msg.Runtime)

	case *engine.RuntimeUnloaded:
		m.removeRuntime(info)

	case *engine.AppDomainLoaded:
		r := m.ensureRuntime(info)
		a := &AppDomain{Base: newBase(), runtime: r, id: msg.AppDomain.ID, name: msg.AppDomain.Name}
		r.appDomains.Add(a)

	case *engine.AppDomainUnloaded:
		if r := info.runtime; r != nil {
			if a, ok := r.AppDomain(msg.ID); ok {
				r.appDomains.Remove(a)
				a.Close()
			}
		}

	case *engine.ModuleLoaded:
		r := m.ensureRuntime(info)
		mod := &Module{
			Base:      newBase(),
			runtime:   r,
			id:        msg.Module.ID,
			name:      msg.Module.Name,
			filename:  msg.Module.Filename,
			address:   msg.Module.Address,
			size:      msg.Module.Size,
			isExe:     msg.Module.IsExe,
			isDynamic: msg.Module.IsDynamic,
		}
		if a, ok := r.AppDomain(msg.Module.AppDomainID); ok {
			mod.appDomain = a
		}
		r.modules.Add(mod)

	case *engine.ModuleUnloaded:
		if r := info.runtime; r != nil {
			if mod, ok := r.Module(msg.ID); ok {
				r.modules.Remove(mod)
				mod.Close()
			}
		}

	case *engine.ThreadCreated:
		r := m.ensureRuntime(info)
		t, ok := r.Thread(msg.Thread.ID)
		if !ok {
			t = &Thread{Base: newBase(), runtime: r, id: msg.Thread.ID}
			r.threads.Add(t)
		}
		t.name = msg.Thread.Name
		args.Thread = t

	case *engine.ThreadExited:
		if r := info.runtime; r != nil {
			if t, ok := r.Thread(msg.ID); ok {
				t.exitCode = msg.ExitCode
				args.Thread = t
				r.threads.Remove(t)
				t.Close()
			}
		}

	case *engine.BreakRequested:
		suspended = true
		args.Thread = m.breakThread(info, msg.ThreadID)

	case *engine.Running:
		info.paused = false
		m.onRunning(info)

	case *engine.ProgramOutput:
		m.log.Debug("program output",
			zap.Stringer("process", info.process.ID()),
			zap.String("category", msg.Category),
			zap.String("text", msg.Text))
	}

	args.Process = info.process
	args.Runtime = info.runtime
	if args.Thread != nil && args.Runtime == nil {
		args.Runtime = args.Thread.runtime
	}

	if !args.Pause && !terminal && m.matchesBreakPolicy(info, msg) {
		args.Pause = true
	}

	m.log.Debug("engine message",
		zap.String("message", name),
		zap.Stringer("engine", info.id),
		zap.Int("pid", info.process.pid),
		zap.Bool("suspended", suspended),
		zap.Bool("pause", args.Pause))

	m.Message.Raise(args)

	if terminal {
		m.removeEngine(info)
		return
	}

	switch {
	case args.Pause && suspended:
		info.paused = true
		info.stepping = false
		// Break is set before IsRunningChanged is raised.
		m.refreshStates()
		m.setBreak(args.Process, args.Runtime, args.Thread)
		if m.settings.BreakAllProcesses {
			m.breakOthers(info)
		}
	case args.Pause:
		m.command(info, "break", info.eng.Break)
	case suspended:
		m.command(info, "run", info.eng.Run)
	}
	m.update()
}

func (m *Manager) onProcessCreated(info *engineInfo, msg *engine.ProcessCreated) {
	info.connected = true
	p := info.process

	if msg.PID != 0 {
		for _, other := range m.processes.items {
			if other != p && other.pid == msg.PID {
				// Another engine already debugs this process: share it.
				m.log.Info("engine joined existing process",
					zap.Stringer("engine", info.id),
					zap.Int("pid", msg.PID))
				info.process = other
				if len(m.enginesOf(p)) == 0 {
					m.processes.Remove(p)
					p.Close()
				}
				return
			}
		}
	}

	p.pid = msg.PID
	if msg.Name != "" {
		p.name = msg.Name
	}
	m.log.Info("process created",
		zap.Stringer("process", p.ID()),
		zap.Int("pid", p.pid),
		zap.String("name", p.name))
}

func (m *Manager) addRuntime(info *engineInfo, ri engine.RuntimeInfo) *Runtime {
	r := newRuntime(info.process, info.eng.Kind(), ri)
	info.runtime = r
	info.process.runtimes.Add(r)
	m.addTags(r.tags)
	return r
}

// ensureRuntime returns the engine's runtime, creating an anonymous one for
// engines that report threads or modules before a runtime.
func (m *Manager) ensureRuntime(info *engineInfo) *Runtime {
	if info.runtime != nil {
		return info.runtime
	}
	return m.addRuntime(info, engine.RuntimeInfo{})
}

func (m *Manager) breakThread(info *engineInfo, id int) *Thread {
	r := info.runtime
	if r == nil {
		return nil
	}
	if id != 0 {
		if t, ok := r.Thread(id); ok {
			return t
		}
	}
	if len(r.threads.items) > 0 {
		return r.threads.items[0]
	}
	return nil
}

func (m *Manager) matchesBreakPolicy(info *engineInfo, msg engine.Message) bool {
	if info.breakDone {
		return false
	}

	var match bool
	switch msg := msg.(type) {
	case *engine.ProcessCreated:
		match = info.opts.BreakOn() == engine.BreakCreateProcess
	case *engine.AppDomainLoaded:
		match = info.opts.BreakOn() == engine.BreakFirstAppDomain
	case *engine.ModuleLoaded:
		switch info.opts.BreakOn() {
		case engine.BreakFirstModule:
			match = true
		case engine.BreakExeModule:
			match = msg.Module.IsExe
		}
	case *engine.ThreadCreated:
		match = info.opts.BreakOn() == engine.BreakFirstThread
	case *engine.BreakRequested:
		// The debuggee stopped on its own; the policy no longer applies.
		info.breakDone = true
	}
	if match {
		info.breakDone = true
	}
	return match
}

// setBreak records the break cause and moves the current selection to it,
// unless the current process is another process that is still paused.
func (m *Manager) setBreak(p *Process, r *Runtime, t *Thread) {
	if r == nil && t != nil {
		r = t.runtime
	}
	if r == nil && p != nil && p.runtimes.Len() > 0 {
		r = p.runtimes.items[0]
	}

	if cur := m.CurrentProcess.Current(); cur != nil && cur != p && cur.state == ProcessPaused {
		m.processBreak.SetBreak(p)
		m.runtimeBreak.SetBreak(r)
		m.threadBreak.SetBreak(t)
		return
	}

	m.processBreak.Set(p, p)
	m.runtimeBreak.Set(r, r)
	m.threadBreak.Set(t, t)
}

// onRunning updates the selection after an engine resumed.
func (m *Manager) onRunning(info *engineInfo) {
	p := info.process
	if m.processState(p) == ProcessPaused {
		return
	}
	p.state = ProcessRunning

	if m.CurrentProcess.Break() == p {
		m.processBreak.SetBreak(nil)
		m.runtimeBreak.SetBreak(nil)
		m.threadBreak.SetBreak(nil)
	}

	if info.stepping || m.CurrentProcess.Current() != p {
		return
	}
	for _, other := range m.processes.items {
		if other != p && m.processState(other) == ProcessPaused {
			m.selectProcess(other)
			return
		}
	}
}

func (m *Manager) breakOthers(except *engineInfo) {
	for _, e := range m.engines {
		if e == except || e.paused {
			continue
		}
		if !e.connected {
			e.pendingBreak = true
			continue
		}
		m.command(e, "break", e.eng.Break)
	}
}
