package metrics

import (
	"context"
	"io"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dshills/dbgcore/internal/debug"
	"github.com/dshills/dbgcore/internal/debug/dispatch"
	"github.com/dshills/dbgcore/internal/debug/engine"
	"github.com/dshills/dbgcore/internal/debug/enginetest"
)

var _ debug.Recorder = (*Metrics)(nil)

func TestRecorder(t *testing.T) {
	m := NewWithRegistry(prometheus.NewRegistry())

	m.MessageProcessed("delve", "thread_created")
	m.MessageProcessed("delve", "thread_created")
	m.MessageProcessed("python", "module_loaded")
	m.CommandFailed("break")
	m.ProcessCount(3)
	m.RunStateChanged("paused")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.MessagesTotal.WithLabelValues("delve", "thread_created")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.MessagesTotal.WithLabelValues("python", "module_loaded")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CommandErrors.WithLabelValues("break")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.Processes))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RunState.WithLabelValues("paused")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.RunState.WithLabelValues("unknown")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RunStateChanges))
}

func TestDispatcherCollector(t *testing.T) {
	stats := dispatch.Stats{Enqueued: 5, Processed: 4, Dropped: 1, QueueDepth: 1, Busy: true}
	c := NewDispatcherCollector("manager", func() dispatch.Stats { return stats })

	expected := `
# HELP dbgcore_dispatcher_queue_depth Functions waiting to run
# TYPE dbgcore_dispatcher_queue_depth gauge
dbgcore_dispatcher_queue_depth{dispatcher="manager"} 1
# HELP dbgcore_dispatcher_dropped_total Functions rejected or discarded by shutdown
# TYPE dbgcore_dispatcher_dropped_total counter
dbgcore_dispatcher_dropped_total{dispatcher="manager"} 1
`
	require.NoError(t, testutil.CollectAndCompare(c, strings.NewReader(expected),
		"dbgcore_dispatcher_queue_depth", "dbgcore_dispatcher_dropped_total"))
	assert.Equal(t, 6, testutil.CollectAndCount(c))
}

func TestManagerIntegration(t *testing.T) {
	m := New()

	factory := &enginetest.Factory{}
	reg := engine.NewRegistry()
	factory.Register(reg, engine.KindDelve)
	mgr := debug.New(debug.Options{Registry: reg, Logger: zap.NewNop(), Recorder: m})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = mgr.Shutdown(ctx)
	})
	m.WatchDispatcher("manager", mgr.Dispatcher())

	require.NoError(t, mgr.Start(context.Background(), &engine.LaunchOptions{Runtime: engine.KindDelve, Filename: executable(t)}))
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(m.MessagesTotal.WithLabelValues("delve", "thread_created")) == 1
	}, 2*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return testutil.ToFloat64(m.Processes) == 1 }, 2*time.Second, 5*time.Millisecond)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()
	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	text := string(body)
	assert.Contains(t, text, `dbgcore_engine_messages_total{kind="delve",message="process_created"} 1`)
	assert.Contains(t, text, `dbgcore_dispatcher_processed_total{dispatcher="manager"}`)
	assert.Contains(t, text, "go_goroutines")
}

func executable(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "debuggee")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"), 0o755))
	return path
}
