package process

import (
	"context"
	"os/exec"
	"sort"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Supervisor tracks child processes and stops them on shutdown.
//
// Supervisor is safe for concurrent use.
type Supervisor struct {
	mu        sync.Mutex
	processes map[string]*Process
	closed    bool
	seq       uint64
	wg        sync.WaitGroup

	log    *zap.Logger
	onExit func(p *Process)
}

// SupervisorOption configures a Supervisor instance.
type SupervisorOption func(*Supervisor)

// WithLogger sets the logger for process starts and exits.
func WithLogger(l *zap.Logger) SupervisorOption {
	return func(s *Supervisor) {
		if l != nil {
			s.log = l
		}
	}
}

// WithExitCallback sets a callback for when processes exit.
func WithExitCallback(fn func(p *Process)) SupervisorOption {
	return func(s *Supervisor) {
		s.onExit = fn
	}
}

// NewSupervisor creates a new process supervisor.
func NewSupervisor(opts ...SupervisorOption) *Supervisor {
	s := &Supervisor{
		processes: make(map[string]*Process),
		log:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start starts cmd and tracks it until it exits.
func (s *Supervisor) Start(name string, cmd *exec.Cmd) (*Process, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrSupervisorShutdown
	}

	s.seq++
	proc := newProcess(uuid.NewString(), name, cmd)
	proc.seq = s.seq
	if err := proc.start(); err != nil {
		return nil, err
	}
	s.processes[proc.ID] = proc
	s.log.Debug("process started",
		zap.String("name", name),
		zap.String("id", proc.ID),
		zap.Int("pid", proc.PID()),
		zap.Strings("args", cmd.Args))

	s.wg.Add(1)
	go s.monitor(proc)
	return proc, nil
}

func (s *Supervisor) monitor(proc *Process) {
	defer s.wg.Done()
	<-proc.Done()

	s.mu.Lock()
	delete(s.processes, proc.ID)
	s.mu.Unlock()

	s.log.Debug("process exited",
		zap.String("name", proc.Name),
		zap.String("id", proc.ID),
		zap.Int("exit_code", proc.ExitCode()),
		zap.Stringer("state", proc.State()))

	if s.onExit != nil {
		func() {
			defer func() {
				if r := recover(); r != nil {
					s.log.Error("process exit callback panicked", zap.Any("panic", r))
				}
			}()
			s.onExit(proc)
		}()
	}
}

// Get returns a process by ID, or nil.
func (s *Supervisor) Get(id string) *Process {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.processes[id]
}

// List returns the running processes ordered by start time.
func (s *Supervisor) List() []*Process {
	s.mu.Lock()
	procs := make([]*Process, 0, len(s.processes))
	for _, p := range s.processes {
		procs = append(procs, p)
	}
	s.mu.Unlock()

	sort.Slice(procs, func(i, j int) bool { return procs[i].seq < procs[j].seq })
	return procs
}

// Count returns the number of running processes.
func (s *Supervisor) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.processes)
}

// Shutdown terminates every process, kills those still running when ctx is
// done and waits until all have exited. Later Starts fail.
func (s *Supervisor) Shutdown(ctx context.Context) {
	s.mu.Lock()
	s.closed = true
	procs := make([]*Process, 0, len(s.processes))
	for _, p := range s.processes {
		procs = append(procs, p)
	}
	s.mu.Unlock()

	for _, p := range procs {
		_ = p.Terminate()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		for _, p := range procs {
			_ = p.Kill()
		}
		<-done
	}
}
