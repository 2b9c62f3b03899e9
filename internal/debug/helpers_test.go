package debug

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dshills/dbgcore/internal/debug/engine"
	"github.com/dshills/dbgcore/internal/debug/enginetest"
)

func runtimeInfoFixture() engine.RuntimeInfo {
	return engine.RuntimeInfo{Name: "go", Version: "1.25", Tags: []string{"Go"}}
}

type harness struct {
	t       *testing.T
	m       *Manager
	factory *enginetest.Factory
	exe     string
}

func newHarness(t *testing.T, configure func(*enginetest.Engine)) *harness {
	t.Helper()

	factory := &enginetest.Factory{Configure: configure}
	reg := engine.NewRegistry()
	factory.Register(reg, engine.KindDelve, engine.KindPython)

	settings := DefaultSettings()
	settings.DelayedRunningInterval = 20 * time.Millisecond

	m := New(Options{
		Registry: reg,
		Logger:   zap.NewNop(),
		Settings: &settings,
	})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = m.Shutdown(ctx)
	})

	exe := filepath.Join(t.TempDir(), "debuggee")
	require.NoError(t, os.WriteFile(exe, []byte("#!/bin/sh\n"), 0o755))

	return &harness{t: t, m: m, factory: factory, exe: exe}
}

func (h *harness) launchOptions(kind engine.Kind) *engine.LaunchOptions {
	return &engine.LaunchOptions{Runtime: kind, Filename: h.exe}
}

// start launches a debuggee and waits until its messages are processed.
func (h *harness) start(opts engine.StartOptions) *enginetest.Engine {
	h.t.Helper()
	require.NoError(h.t, h.m.Start(context.Background(), opts))
	h.settle()
	return h.factory.Last()
}

func (h *harness) launch() *enginetest.Engine {
	h.t.Helper()
	return h.start(h.launchOptions(engine.KindDelve))
}

// settle waits until the dispatcher queue is empty. Fake engines post
// synchronously, so an empty queue seen from the dispatcher means every
// consequence of the previous commands has been applied.
func (h *harness) settle() {
	h.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for {
		idle := false
		require.NoError(h.t, h.m.Invoke(ctx, func() { idle = h.m.d.QueueDepth() == 0 }))
		if idle {
			return
		}
	}
}

// on runs fn on the dispatcher.
func (h *harness) on(fn func()) {
	h.t.Helper()
	require.NoError(h.t, h.m.Invoke(context.Background(), fn))
}

func (h *harness) processes() []*Process {
	var ps []*Process
	h.on(func() { ps = h.m.Processes() })
	return ps
}

func (h *harness) processOf(e *enginetest.Engine) *Process {
	h.t.Helper()
	for _, p := range h.processes() {
		if p.PID() == e.PID {
			return p
		}
	}
	h.t.Fatalf("no process for pid %d", e.PID)
	return nil
}
