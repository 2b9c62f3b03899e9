// Package metrics exports session and dispatcher instrumentation to
// Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dshills/dbgcore/internal/debug/dispatch"
)

const namespace = "dbgcore"

var runStates = []string{"unknown", "running", "paused", "mixed"}

// Metrics holds the session metrics. It implements debug.Recorder.
type Metrics struct {
	MessagesTotal  *prometheus.CounterVec
	CommandErrors  *prometheus.CounterVec
	Processes      prometheus.Gauge
	RunState       *prometheus.GaugeVec
	RunStateChanges prometheus.Counter

	reg *prometheus.Registry
}

// New creates the metrics on a fresh registry that also carries the Go and
// process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return NewWithRegistry(reg)
}

// NewWithRegistry creates the metrics on reg.
func NewWithRegistry(reg *prometheus.Registry) *Metrics {
	f := promauto.With(reg)
	m := &Metrics{
		reg: reg,

		MessagesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "engine_messages_total",
				Help:      "Engine messages processed, by engine kind and message type",
			},
			[]string{"kind", "message"},
		),
		CommandErrors: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "engine_command_errors_total",
				Help:      "Engine commands that returned an error, by command",
			},
			[]string{"command"},
		),
		Processes: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "processes",
				Help:      "Number of processes being debugged",
			},
		),
		RunState: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "run_state",
				Help:      "1 for the current aggregate run state, 0 otherwise",
			},
			[]string{"state"},
		),
		RunStateChanges: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "run_state_changes_total",
				Help:      "Aggregate run state transitions",
			},
		),
	}
	m.setRunState("unknown")
	return m
}

// MessageProcessed implements debug.Recorder.
func (m *Metrics) MessageProcessed(kind, message string) {
	m.MessagesTotal.WithLabelValues(kind, message).Inc()
}

// CommandFailed implements debug.Recorder.
func (m *Metrics) CommandFailed(command string) {
	m.CommandErrors.WithLabelValues(command).Inc()
}

// ProcessCount implements debug.Recorder.
func (m *Metrics) ProcessCount(n int) {
	m.Processes.Set(float64(n))
}

// RunStateChanged implements debug.Recorder.
func (m *Metrics) RunStateChanged(state string) {
	m.RunStateChanges.Inc()
	m.setRunState(state)
}

func (m *Metrics) setRunState(state string) {
	for _, s := range runStates {
		v := 0.0
		if s == state {
			v = 1
		}
		m.RunState.WithLabelValues(s).Set(v)
	}
}

// WatchDispatcher exports the stats of d under the given name.
func (m *Metrics) WatchDispatcher(name string, d *dispatch.Dispatcher) {
	m.reg.MustRegister(NewDispatcherCollector(name, d.Stats))
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.reg
}

// Handler serves the metrics in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}
