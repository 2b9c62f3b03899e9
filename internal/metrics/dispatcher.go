package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/dshills/dbgcore/internal/debug/dispatch"
)

// DispatcherCollector reads dispatcher stats at scrape time.
type DispatcherCollector struct {
	stats func() dispatch.Stats

	enqueued  *prometheus.Desc
	processed *prometheus.Desc
	dropped   *prometheus.Desc
	panicked  *prometheus.Desc
	depth     *prometheus.Desc
	busy      *prometheus.Desc
}

// NewDispatcherCollector creates a collector labelled with the dispatcher name.
func NewDispatcherCollector(name string, stats func() dispatch.Stats) *DispatcherCollector {
	labels := prometheus.Labels{"dispatcher": name}
	desc := func(metric, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "dispatcher", metric), help, nil, labels)
	}
	return &DispatcherCollector{
		stats:     stats,
		enqueued:  desc("enqueued_total", "Functions accepted by the dispatcher"),
		processed: desc("processed_total", "Functions run by the dispatcher, including panics"),
		dropped:   desc("dropped_total", "Functions rejected or discarded by shutdown"),
		panicked:  desc("panicked_total", "Functions that panicked"),
		depth:     desc("queue_depth", "Functions waiting to run"),
		busy:      desc("busy", "1 while a function is running"),
	}
}

// Describe implements prometheus.Collector.
func (c *DispatcherCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.enqueued
	ch <- c.processed
	ch <- c.dropped
	ch <- c.panicked
	ch <- c.depth
	ch <- c.busy
}

// Collect implements prometheus.Collector.
func (c *DispatcherCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.stats()
	busy := 0.0
	if s.Busy {
		busy = 1
	}
	ch <- prometheus.MustNewConstMetric(c.enqueued, prometheus.CounterValue, float64(s.Enqueued))
	ch <- prometheus.MustNewConstMetric(c.processed, prometheus.CounterValue, float64(s.Processed))
	ch <- prometheus.MustNewConstMetric(c.dropped, prometheus.CounterValue, float64(s.Dropped))
	ch <- prometheus.MustNewConstMetric(c.panicked, prometheus.CounterValue, float64(s.Panicked))
	ch <- prometheus.MustNewConstMetric(c.depth, prometheus.GaugeValue, float64(s.QueueDepth))
	ch <- prometheus.MustNewConstMetric(c.busy, prometheus.GaugeValue, busy)
}
