package relay

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "index_relay"

// Metrics is a prometheus.Collector for batch relays. A nil *Metrics records nothing.
type Metrics struct {
	accepted      *prometheus.CounterVec
	flushes       *prometheus.CounterVec
	flushedOps    *prometheus.CounterVec
	flushErrors   *prometheus.CounterVec
	flushDuration *prometheus.HistogramVec
}

func NewMetrics() *Metrics {
	return &Metrics{
		accepted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "accepted_items_total",
				Help:      "The number of items accepted by the relay.",
			}, []string{"relay"},
		),
		flushes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "flushes_total",
				Help:      "The number of non-empty flushes, by trigger.",
			}, []string{"relay", "trigger"},
		),
		flushedOps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "flushed_operations_total",
				Help:      "The number of bulk operations handed to the sink.",
			}, []string{"relay"},
		),
		flushErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "flush_errors_total",
				Help:      "The number of failed flushes. Failed batches are dropped.",
			}, []string{"relay"},
		),
		flushDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "flush_duration_seconds",
				Help:      "The time spent in the sink per flush.",
				Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			}, []string{"relay"},
		),
	}
}

// Describe is part of the prometheus.Collector interface.
func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	m.accepted.Describe(ch)
	m.flushes.Describe(ch)
	m.flushedOps.Describe(ch)
	m.flushErrors.Describe(ch)
	m.flushDuration.Describe(ch)
}

// Collect is part of the prometheus.Collector interface.
func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	m.accepted.Collect(ch)
	m.flushes.Collect(ch)
	m.flushedOps.Collect(ch)
	m.flushErrors.Collect(ch)
	m.flushDuration.Collect(ch)
}

func (m *Metrics) itemAccepted(relay string) {
	if m == nil {
		return
	}
	m.accepted.WithLabelValues(relay).Inc()
}

func (m *Metrics) flushed(relay string, trigger Trigger, size int, took time.Duration, err error) {
	if m == nil {
		return
	}
	m.flushes.WithLabelValues(relay, string(trigger)).Inc()
	m.flushDuration.WithLabelValues(relay).Observe(took.Seconds())
	if err != nil {
		m.flushErrors.WithLabelValues(relay).Inc()
		return
	}
	m.flushedOps.WithLabelValues(relay).Add(float64(size))
}
