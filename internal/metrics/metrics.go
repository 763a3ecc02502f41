// Package metrics exposes download session activity to Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tanq16/rangedl/internal/orchestrator"
)

const namespace = "rangedl"

var _ orchestrator.Recorder = (*Metrics)(nil)

// Metrics implements orchestrator.Recorder. A nil *Metrics records nothing.
type Metrics struct {
	registry *prometheus.Registry

	SessionsStarted  prometheus.Counter
	SessionsFinished prometheus.Counter
	ActiveSessions   prometheus.Gauge
	SegmentFailures  prometheus.Counter
	BreakpointSaves  *prometheus.CounterVec
	ReadyBytesGauge  prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		SessionsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_started_total",
			Help:      "Total download sessions started.",
		}),
		SessionsFinished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_finished_total",
			Help:      "Total download sessions that finished every segment.",
		}),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Sessions started and not yet finished.",
		}),
		SegmentFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "segment_failures_total",
			Help:      "Total segment transfers that stopped with an error.",
		}),
		BreakpointSaves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "breakpoint_saves_total",
			Help:      "Breakpoint writes by result.",
		}, []string{"result"}),
		ReadyBytesGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ready_bytes",
			Help:      "Bytes of the current resource already written.",
		}),
	}
	m.registry.MustRegister(
		m.SessionsStarted,
		m.SessionsFinished,
		m.ActiveSessions,
		m.SegmentFailures,
		m.BreakpointSaves,
		m.ReadyBytesGauge,
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) SessionStarted() {
	if m == nil {
		return
	}
	m.SessionsStarted.Inc()
	m.ActiveSessions.Inc()
}

func (m *Metrics) SessionFinished() {
	if m == nil {
		return
	}
	m.SessionsFinished.Inc()
	m.ActiveSessions.Dec()
}

func (m *Metrics) SegmentFailed() {
	if m == nil {
		return
	}
	m.SegmentFailures.Inc()
}

func (m *Metrics) BreakpointSaved(err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.BreakpointSaves.WithLabelValues(result).Inc()
}

func (m *Metrics) ReadyBytes(n int64) {
	if m == nil {
		return
	}
	m.ReadyBytesGauge.Set(float64(n))
}
