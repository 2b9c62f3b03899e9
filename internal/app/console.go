package app

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"text/tabwriter"

	"github.com/dshills/dbgcore/internal/debug"
	"github.com/dshills/dbgcore/internal/debug/command"
	"github.com/dshills/dbgcore/internal/debug/engine"
)

// aliases maps console words to debug actions.
var aliases = map[string]string{
	"c":        command.ActionDebugContinue,
	"continue": command.ActionDebugContinue,
	"p":        command.ActionDebugBreakAll,
	"pause":    command.ActionDebugBreakAll,
	"s":        command.ActionDebugStepInto,
	"step":     command.ActionDebugStepInto,
	"n":        command.ActionDebugStepOver,
	"next":     command.ActionDebugStepOver,
	"o":        command.ActionDebugStepOut,
	"out":      command.ActionDebugStepOut,
	"s!":       command.ActionDebugStepIntoCurrentProcess,
	"n!":       command.ActionDebugStepOverCurrentProcess,
	"o!":       command.ActionDebugStepOutCurrentProcess,
	"where":    command.ActionDebugShowNextStatement,
	"detach":   command.ActionDebugDetachAll,
	"kill":     command.ActionDebugTerminateAll,
	"stop":     command.ActionDebugStop,
	"restart":  command.ActionDebugRestart,
}

// console reads commands and prints session activity. It implements
// command.Notifier.
type console struct {
	in io.Reader

	mu  sync.Mutex
	out io.Writer

	ended      chan struct{}
	restarting bool
}

func newConsole(in io.Reader, out io.Writer) *console {
	return &console{in: in, out: out, ended: make(chan struct{}, 1)}
}

func (c *console) printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, format, args...)
}

// Error implements command.Notifier.
func (c *console) Error(msg string) { c.printf("error: %s\n", msg) }

// Status implements command.Notifier.
func (c *console) Status(msg string) { c.printf("[%s]\n", msg) }

// message prints the engine messages a user cares about.
func (c *console) message(args *debug.MessageEventArgs) {
	pid := 0
	if args.Process != nil {
		pid = args.Process.PID()
	}
	switch m := args.Message.(type) {
	case *engine.ProgramOutput:
		c.printf("%s", m.Text)
	case *engine.ProcessCreated:
		// A restart that kept some processes alive never ends the session.
		c.mu.Lock()
		c.restarting = false
		c.mu.Unlock()
		c.printf("process %d started (%s)\n", m.PID, m.Name)
	case *engine.ProcessExited:
		c.printf("process %d exited with code %d\n", pid, m.ExitCode)
	case *engine.Detached:
		c.printf("detached from process %d\n", pid)
	case *engine.LaunchFailed:
		c.printf("launch failed: %v\n", m.Err)
	case *engine.BreakRequested:
		reason := m.Reason
		if reason == "" {
			reason = "pause"
		}
		if args.Thread != nil {
			c.printf("process %d stopped (%s) on thread %d\n", pid, reason, args.Thread.EngineID())
		} else {
			c.printf("process %d stopped (%s)\n", pid, reason)
		}
	}
}

func (c *console) debuggingChanged(debugging bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if debugging {
		c.restarting = false
		return
	}
	if c.restarting {
		return
	}
	select {
	case c.ended <- struct{}{}:
	default:
	}
}

// run executes console commands until the session ends.
func (c *console) run(ctx context.Context, d *command.Debugger, m *debug.Manager) error {
	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		sc := bufio.NewScanner(c.in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		readErr <- sc.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.ended:
			return nil
		case err := <-readErr:
			if err != nil {
				return err
			}
			// Input closed: keep running until the session ends.
			readErr = nil
		case line := <-lines:
			if err := c.execute(ctx, d, m, line); err != nil {
				return err
			}
		}
	}
}

func (c *console) execute(ctx context.Context, d *command.Debugger, m *debug.Manager, line string) error {
	word := strings.TrimSpace(line)
	switch word {
	case "":
		return nil
	case "q", "quit", "exit":
		return ErrQuit
	case "help", "?":
		c.help(d)
		return nil
	case "ps":
		c.processes(m.Snapshot())
		return nil
	case "status":
		c.status(m.Snapshot())
		return nil
	}

	name, ok := aliases[word]
	if !ok {
		name = word
	}
	if name == command.ActionDebugRestart && d.CanRestart() {
		c.mu.Lock()
		c.restarting = true
		c.mu.Unlock()
	}

	if err := d.Handle(ctx, name); err != nil {
		c.Error(err.Error())
	}
	return nil
}

func (c *console) help(d *command.Debugger) {
	byAction := make(map[string][]string)
	for alias, action := range aliases {
		byAction[action] = append(byAction[action], alias)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	for _, a := range d.Actions() {
		words := byAction[a.Name]
		sort.Strings(words)
		avail := ""
		if !a.Can() {
			avail = "(unavailable)"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", strings.Join(words, ", "), a.Name, avail)
	}
	fmt.Fprintf(tw, "ps\tlist processes\t\n")
	fmt.Fprintf(tw, "status\tshow the run state\t\n")
	fmt.Fprintf(tw, "q, quit\tstop debugging and exit\t\n")
	_ = tw.Flush()
}

func (c *console) processes(s *debug.Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(s.Processes) == 0 {
		fmt.Fprintln(c.out, "no processes")
		return
	}
	tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "\tPID\tNAME\tSTATE\tKINDS\tTHREADS")
	for i, p := range s.Processes {
		mark := ""
		if i == s.CurrentProcess {
			mark = "*"
		}
		kinds := make([]string, len(p.Kinds))
		for j, k := range p.Kinds {
			kinds[j] = string(k)
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\t%d\n", mark, p.PID, p.Name, p.State, strings.Join(kinds, ","), p.Threads)
	}
	_ = tw.Flush()
}

func (c *console) status(s *debug.Snapshot) {
	if !s.IsDebugging {
		c.printf("not debugging\n")
		return
	}
	c.printf("%s, %d process(es)\n", s.RunState, len(s.Processes))
}
