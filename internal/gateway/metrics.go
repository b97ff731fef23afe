package gateway

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	ctxengine "github.com/hjl2004-10/ai-chat-sillytavern-sub000/internal/context"
)

// Metrics exposes assembly metrics to Prometheus and keeps lock-free
// totals for the /status endpoint.
type Metrics struct {
	registry *prometheus.Registry

	assemblies  *prometheus.CounterVec
	truncations prometheus.Counter
	dropped     prometheus.Counter
	outputChars prometheus.Histogram
	duration    prometheus.Histogram
	presetOps   *prometheus.CounterVec

	assembled    atomic.Int64
	errors       atomic.Int64
	totalChars   atomic.Int64
	totalLatency atomic.Int64 // nanoseconds
}

// NewMetrics creates the collectors and registers them, together with the
// Go runtime and process collectors, on a private registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		assemblies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tavern_assemblies_total",
			Help: "Prompt assemblies by outcome.",
		}, []string{"outcome"}),
		truncations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tavern_assembly_truncations_total",
			Help: "Assemblies that dropped at least one message to fit the budget.",
		}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tavern_assembly_dropped_messages_total",
			Help: "Messages dropped by budget truncation.",
		}),
		outputChars: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tavern_assembly_output_chars",
			Help:    "Serialized size of assembled message lists.",
			Buckets: prometheus.ExponentialBuckets(1024, 2, 10),
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tavern_assembly_duration_seconds",
			Help:    "Time spent assembling one prompt.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 8),
		}),
		presetOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tavern_preset_operations_total",
			Help: "Preset store writes by operation.",
		}, []string{"op"}),
	}
	m.registry.MustRegister(
		m.assemblies, m.truncations, m.dropped, m.outputChars, m.duration, m.presetOps,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// RecordAssembly records a successful assembly.
func (m *Metrics) RecordAssembly(b ctxengine.ContextBudget, latency time.Duration) {
	m.assemblies.WithLabelValues("ok").Inc()
	if b.Truncated() {
		m.truncations.Inc()
		m.dropped.Add(float64(b.Dropped))
	}
	m.outputChars.Observe(float64(b.Chars))
	m.duration.Observe(latency.Seconds())

	m.assembled.Add(1)
	m.totalChars.Add(int64(b.Chars))
	m.totalLatency.Add(int64(latency))
}

// RecordError records a rejected or failed assembly.
func (m *Metrics) RecordError() {
	m.assemblies.WithLabelValues("error").Inc()
	m.errors.Add(1)
}

// RecordPresetOp records a preset store write.
func (m *Metrics) RecordPresetOp(op string) {
	m.presetOps.WithLabelValues(op).Inc()
}

// Handler serves the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Snapshot returns a point-in-time view of the counters.
func (m *Metrics) Snapshot() MetricsSnapshot {
	n := m.assembled.Load()
	snap := MetricsSnapshot{
		Assemblies: n,
		Errors:     m.errors.Load(),
	}
	if n > 0 {
		snap.AvgChars = m.totalChars.Load() / n
		snap.AvgLatency = time.Duration(m.totalLatency.Load() / n)
	}
	return snap
}

// MetricsSnapshot is a serializable point-in-time metrics view.
type MetricsSnapshot struct {
	Assemblies int64         `json:"assemblies"`
	Errors     int64         `json:"errors"`
	AvgChars   int64         `json:"avg_chars"`
	AvgLatency time.Duration `json:"avg_latency_ns"`
}
