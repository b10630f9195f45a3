// Package metrics provides Prometheus self-observation for the control
// plane process itself, adapted from the teacher's
// infrastructure/metrics/metrics.go: counters/gauges covering bus
// delivery latency, ticker overruns, and dropped subscribers — distinct
// from the aggregator's own exportPrometheus() of ingested flow metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the control plane's ambient self-observation collectors.
type Metrics struct {
	BusDeliveryDuration *prometheus.HistogramVec
	BusOverrunsTotal    *prometheus.CounterVec
	SubscribersDropped  *prometheus.CounterVec

	TickerOverrunsTotal *prometheus.CounterVec
	TickDuration        *prometheus.HistogramVec

	ComponentUp *prometheus.GaugeVec
}

// New creates a Metrics instance registered against registerer. Pass
// prometheus.DefaultRegisterer in production, or a fresh
// prometheus.NewRegistry() in tests to avoid collisions across runs.
func New(registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		BusDeliveryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "flowgovernor_bus_delivery_duration_seconds",
				Help:    "Time spent delivering one event to one subscriber.",
				Buckets: []float64{.0001, .0005, .001, .005, .01, .025, .05, .1, .5},
			},
			[]string{"topic"},
		),
		BusOverrunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flowgovernor_bus_overruns_total",
				Help: "Subscriber callbacks that exceeded the per-call budget.",
			},
			[]string{"topic"},
		),
		SubscribersDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flowgovernor_bus_subscriber_panics_total",
				Help: "Subscriber callbacks that panicked and were isolated.",
			},
			[]string{"topic"},
		),
		TickerOverrunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flowgovernor_ticker_overruns_total",
				Help: "Ticker invocations whose work did not finish before the next tick was due.",
			},
			[]string{"component"},
		),
		TickDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "flowgovernor_tick_duration_seconds",
				Help:    "Time spent in one component's periodic tick.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"component"},
		),
		ComponentUp: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "flowgovernor_component_up",
				Help: "1 if the named component's ticker is running, 0 otherwise.",
			},
			[]string{"component"},
		),
	}

	if registerer != nil {
		registerer.MustRegister(
			m.BusDeliveryDuration,
			m.BusOverrunsTotal,
			m.SubscribersDropped,
			m.TickerOverrunsTotal,
			m.TickDuration,
			m.ComponentUp,
		)
	}

	return m
}

// RecordBusDelivery observes how long one subscriber callback took.
func (m *Metrics) RecordBusDelivery(topic string, took time.Duration) {
	m.BusDeliveryDuration.WithLabelValues(topic).Observe(took.Seconds())
}

// RecordBusOverrun increments the overrun counter for topic.
func (m *Metrics) RecordBusOverrun(topic string) {
	m.BusOverrunsTotal.WithLabelValues(topic).Inc()
}

// RecordSubscriberPanic increments the panic-isolation counter for topic.
func (m *Metrics) RecordSubscriberPanic(topic string) {
	m.SubscribersDropped.WithLabelValues(topic).Inc()
}

// RecordTick observes one component tick's duration.
func (m *Metrics) RecordTick(component string, took time.Duration) {
	m.TickDuration.WithLabelValues(component).Observe(took.Seconds())
}

// RecordTickerOverrun increments the ticker-overrun counter for component.
func (m *Metrics) RecordTickerOverrun(component string) {
	m.TickerOverrunsTotal.WithLabelValues(component).Inc()
}

// SetComponentUp marks a component's ticker as running (1) or stopped (0).
func (m *Metrics) SetComponentUp(component string, up bool) {
	v := 0.0
	if up {
		v = 1.0
	}
	m.ComponentUp.WithLabelValues(component).Set(v)
}
