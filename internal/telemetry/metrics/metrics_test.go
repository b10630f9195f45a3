package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, vec *prometheus.CounterVec, labels ...string) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, vec.WithLabelValues(labels...).(prometheus.Metric).Write(&m))
	return m.GetCounter().GetValue()
}

func gaugeValue(t *testing.T, vec *prometheus.GaugeVec, labels ...string) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, vec.WithLabelValues(labels...).(prometheus.Metric).Write(&m))
	return m.GetGauge().GetValue()
}

func TestRecordBusOverrunIncrementsCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.RecordBusOverrun("burn_rate_calculated")
	m.RecordBusOverrun("burn_rate_calculated")

	require.Equal(t, 2.0, counterValue(t, m.BusOverrunsTotal, "burn_rate_calculated"))
}

func TestRecordSubscriberPanicIncrementsCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.RecordSubscriberPanic("cache_evicted")

	require.Equal(t, 1.0, counterValue(t, m.SubscribersDropped, "cache_evicted"))
}

func TestSetComponentUpTogglesGauge(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.SetComponentUp("governor", true)
	require.Equal(t, 1.0, gaugeValue(t, m.ComponentUp, "governor"))

	m.SetComponentUp("governor", false)
	require.Equal(t, 0.0, gaugeValue(t, m.ComponentUp, "governor"))
}

func TestRecordBusDeliveryObservesHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.RecordBusDelivery("metrics_recorded", 2*time.Millisecond)

	var metric dto.Metric
	require.NoError(t, m.BusDeliveryDuration.WithLabelValues("metrics_recorded").(prometheus.Observer).(prometheus.Metric).Write(&metric))
	require.Equal(t, uint64(1), metric.GetHistogram().GetSampleCount())
}
