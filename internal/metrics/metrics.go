// Package metrics exposes Prometheus collectors for the decision loop,
// dispatcher and ingestion API. All methods are safe on a nil *Metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	ticks            prometheus.Counter
	ruleErrors       *prometheus.CounterVec
	dispatchTotal    *prometheus.CounterVec
	dispatchDuration *prometheus.HistogramVec
	readings         *prometheus.CounterVec
	eventsDropped    *prometheus.CounterVec
}

// New creates the collectors on a private registry, together with the
// standard Go runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "roomd_ticks_total",
			Help: "Total decision loop evaluation passes.",
		}),
		ruleErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "roomd_rule_errors_total",
			Help: "Rule group evaluation failures by group.",
		}, []string{"group"}),
		dispatchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "roomd_dispatch_total",
			Help: "Actuator dispatch attempts by device and outcome.",
		}, []string{"device", "outcome"}),
		dispatchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "roomd_dispatch_duration_seconds",
			Help:    "Histogram of actuator dispatch durations by device.",
			Buckets: prometheus.DefBuckets,
		}, []string{"device"}),
		readings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "roomd_readings_total",
			Help: "Sensor reports accepted by kind.",
		}, []string{"kind"}),
		eventsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "roomd_events_dropped_total",
			Help: "History and audit events dropped by the event bus.",
		}, []string{"event_type"}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.ticks,
		m.ruleErrors,
		m.dispatchTotal,
		m.dispatchDuration,
		m.readings,
		m.eventsDropped,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Tick() {
	if m == nil {
		return
	}
	m.ticks.Inc()
}

func (m *Metrics) RuleError(group string) {
	if m == nil {
		return
	}
	m.ruleErrors.WithLabelValues(group).Inc()
}

func (m *Metrics) Dispatch(device, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.dispatchTotal.WithLabelValues(device, outcome).Inc()
	m.dispatchDuration.WithLabelValues(device).Observe(duration.Seconds())
}

func (m *Metrics) Reading(kind string) {
	if m == nil {
		return
	}
	m.readings.WithLabelValues(kind).Inc()
}

func (m *Metrics) EventDropped(eventType string) {
	if m == nil {
		return
	}
	m.eventsDropped.WithLabelValues(eventType).Inc()
}
