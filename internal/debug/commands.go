package debug

import (
	"context"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	"github.com/dshills/dbgcore/internal/debug/engine"
)

// BreakAll pauses every running process. Processes that are already paused
// are left alone; processes still starting pause as soon as they are created.
func (m *Manager) BreakAll() {
	m.d.BeginInvoke(func() {
		if !m.isDebugging {
			return
		}
		var errs *multierror.Error
		for _, e := range m.engines {
			if e.paused {
				continue
			}
			if !e.connected {
				e.pendingBreak = true
				continue
			}
			if err := m.command(e, "break", e.eng.Break); err != nil {
				errs = multierror.Append(errs, err)
			}
		}
		m.logBulk("break all", errs)
	})
}

// RunAll resumes every paused process.
func (m *Manager) RunAll() {
	m.d.BeginInvoke(func() {
		if !m.isDebugging {
			return
		}
		var errs *multierror.Error
		for _, e := range m.engines {
			e.pendingBreak = false
			if !e.paused {
				continue
			}
			if err := m.command(e, "run", e.eng.Run); err != nil {
				errs = multierror.Append(errs, err)
			}
		}
		m.logBulk("run all", errs)
	})
}

// StopDebuggingAll detaches from every process that survives a detach and
// terminates the rest. A failed detach falls back to terminate.
func (m *Manager) StopDebuggingAll() {
	m.d.BeginInvoke(func() {
		var errs *multierror.Error
		for _, e := range m.engines {
			var err error
			if e.eng.CanDetachWithoutTerminating() {
				err = m.detachOrTerminate(e)
			} else {
				err = m.command(e, "terminate", e.eng.Terminate)
			}
			if err != nil {
				errs = multierror.Append(errs, err)
			}
		}
		m.logBulk("stop debugging", errs)
	})
}

// DetachAll detaches from every process, terminating those whose engine
// fails to detach.
func (m *Manager) DetachAll() {
	m.d.BeginInvoke(func() {
		var errs *multierror.Error
		for _, e := range m.engines {
			if err := m.detachOrTerminate(e); err != nil {
				errs = multierror.Append(errs, err)
			}
		}
		m.logBulk("detach all", errs)
	})
}

// TerminateAll terminates every process.
func (m *Manager) TerminateAll() {
	m.d.BeginInvoke(m.terminateAll)
}

func (m *Manager) terminateAll() {
	var errs *multierror.Error
	for _, e := range m.engines {
		if err := m.command(e, "terminate", e.eng.Terminate); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	m.logBulk("terminate all", errs)
}

func (m *Manager) detachOrTerminate(e *engineInfo) error {
	err := m.command(e, "detach", e.eng.Detach)
	if err == nil {
		return nil
	}
	if terr := m.command(e, "terminate", e.eng.Terminate); terr != nil {
		return multierror.Append(err, terr)
	}
	return err
}

func (m *Manager) logBulk(op string, errs *multierror.Error) {
	if err := errs.ErrorOrNil(); err != nil {
		m.log.Warn("bulk operation had failures",
			zap.String("operation", op),
			zap.Int("failures", len(errs.Errors)),
			zap.Error(err))
	}
}

// Restart terminates every process and, once they are all gone, starts them
// again with the options that created them. It does nothing unless every
// engine can restart. An engine that fails to terminate keeps its process and
// is not relaunched.
func (m *Manager) Restart() {
	m.d.BeginInvoke(func() {
		if !m.canRestart() {
			return
		}
		var errs *multierror.Error
		var opts []engine.StartOptions
		for _, e := range m.engines {
			if err := m.command(e, "terminate", e.eng.Terminate); err != nil {
				errs = multierror.Append(errs, err)
				continue
			}
			e.restarting = true
			opts = append(opts, e.opts)
		}
		m.logBulk("restart", errs)
		if len(opts) > 0 {
			m.restartOpts = opts
			m.restartWait = len(opts)
			m.log.Info("restarting", zap.Int("engines", len(opts)))
		}
		m.publish()
	})
}

// relaunch starts the engines recorded by Restart. Called once the last
// terminated engine is gone.
func (m *Manager) relaunch() {
	opts := m.restartOpts
	m.restartOpts = nil
	m.restartWait = 0
	if len(opts) == 0 || m.shuttingDown {
		return
	}

	go func() {
		for _, o := range opts {
			if err := m.Start(context.Background(), o); err != nil {
				m.log.Warn("restart failed",
					zap.String("kind", string(o.RuntimeKind())),
					zap.Error(err))
			}
		}
	}()
}

// BreakProcess pauses one process.
func (m *Manager) BreakProcess(p *Process) {
	m.forProcess(p, func(e *engineInfo) {
		if !e.paused {
			m.command(e, "break", e.eng.Break)
		}
	})
}

// RunProcess resumes one process.
func (m *Manager) RunProcess(p *Process) {
	m.forProcess(p, func(e *engineInfo) {
		if e.paused {
			m.command(e, "run", e.eng.Run)
		}
	})
}

// DetachProcess detaches from one process, terminating it if detaching fails.
func (m *Manager) DetachProcess(p *Process) {
	m.forProcess(p, func(e *engineInfo) { m.detachOrTerminate(e) })
}

// TerminateProcess terminates one process.
func (m *Manager) TerminateProcess(p *Process) {
	m.forProcess(p, func(e *engineInfo) { m.command(e, "terminate", e.eng.Terminate) })
}

func (m *Manager) forProcess(p *Process, fn func(*engineInfo)) {
	m.d.BeginInvoke(func() {
		if p == nil || p.closed {
			return
		}
		for _, e := range m.enginesOf(p) {
			fn(e)
		}
	})
}

// Step steps the current thread and resumes every other paused process.
func (m *Manager) Step(kind engine.StepKind) {
	m.d.BeginInvoke(func() { m.step(kind, true) })
}

// StepCurrentProcess steps the current thread and leaves every other process
// paused.
func (m *Manager) StepCurrentProcess(kind engine.StepKind) {
	m.d.BeginInvoke(func() { m.step(kind, false) })
}

func (m *Manager) step(kind engine.StepKind, resumeOthers bool) {
	t := m.CurrentThread.Current()
	if t == nil || t.runtime.process.state != ProcessPaused {
		return
	}
	info := m.engineOf(t.runtime)
	if info == nil || !info.paused {
		return
	}

	info.stepping = true
	if err := m.command(info, "step", func() error { return info.eng.Step(t.id, kind) }); err != nil {
		info.stepping = false
		return
	}

	if !resumeOthers {
		return
	}
	for _, e := range m.engines {
		if e.process != t.runtime.process && e.paused {
			m.command(e, "run", e.eng.Run)
		}
	}
}

// SetCurrentProcess selects p, its break or first runtime and that runtime's
// break or first thread.
func (m *Manager) SetCurrentProcess(p *Process) {
	m.d.BeginInvoke(func() {
		if p != nil && !p.closed {
			m.selectProcess(p)
		}
	})
}

// SetCurrentRuntime selects r and its owning process.
func (m *Manager) SetCurrentRuntime(r *Runtime) {
	m.d.BeginInvoke(func() {
		if r != nil && !r.closed {
			m.selectRuntime(r)
		}
	})
}

// SetCurrentThread selects t, its runtime and its process.
func (m *Manager) SetCurrentThread(t *Thread) {
	m.d.BeginInvoke(func() {
		if t == nil || t.closed {
			return
		}
		m.CurrentProcess.SetCurrent(t.runtime.process)
		m.CurrentRuntime.SetCurrent(t.runtime)
		m.CurrentThread.SetCurrent(t)
	})
}

// ShowNextStatement makes the break selection current again.
func (m *Manager) ShowNextStatement() {
	m.d.BeginInvoke(func() {
		if t := m.CurrentThread.Break(); t != nil {
			m.CurrentProcess.SetCurrent(t.runtime.process)
			m.CurrentRuntime.SetCurrent(t.runtime)
			m.CurrentThread.SetCurrent(t)
			return
		}
		if p := m.CurrentProcess.Break(); p != nil {
			m.selectProcess(p)
		}
	})
}

func (m *Manager) selectProcess(p *Process) {
	m.CurrentProcess.SetCurrent(p)

	r := m.CurrentRuntime.Break()
	if r == nil || r.process != p {
		r = nil
		if p.runtimes.Len() > 0 {
			r = p.runtimes.items[0]
		}
	}
	m.selectRuntime(r)
	if r == nil {
		m.CurrentThread.SetCurrent(nil)
	}
}

func (m *Manager) selectRuntime(r *Runtime) {
	m.CurrentRuntime.SetCurrent(r)
	if r == nil {
		return
	}
	m.CurrentProcess.SetCurrent(r.process)

	t := m.CurrentThread.Break()
	if t == nil || t.runtime != r {
		t = nil
		if r.threads.Len() > 0 {
			t = r.threads.items[0]
		}
	}
	m.CurrentThread.SetCurrent(t)
}
