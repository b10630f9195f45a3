package aggregator

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/flowgovernor/internal/clock"
	"github.com/R3E-Network/flowgovernor/internal/config"
)

func newTestAggregator() (*Aggregator, *clock.Manual) {
	mc := clock.NewManual(time.Unix(0, 0))
	cfg := config.Default().Aggregator
	return New(mc, nil, cfg, nil), mc
}

func TestPercentileSingleValue(t *testing.T) {
	a, _ := newTestAggregator()
	a.RecordLatency("op", 42, nil)

	snap := a.HistogramSnapshotFor("op")
	require.Equal(t, 1, snap.Count)
	require.Equal(t, 42.0, snap.P50)
	require.Equal(t, 42.0, snap.P95)
	require.Equal(t, 42.0, snap.P99)
}

func TestEmptyHistogramYieldsZero(t *testing.T) {
	a, _ := newTestAggregator()
	snap := a.HistogramSnapshotFor("never-recorded")
	require.Equal(t, 0, snap.Count)
	require.Equal(t, 0.0, snap.P50)
	require.Equal(t, 0.0, snap.P95)
	require.Equal(t, 0.0, snap.P99)
}

func TestErrorsNeverExceedRequests(t *testing.T) {
	a, _ := newTestAggregator()
	for i := 0; i < 100; i++ {
		a.RecordRequest("op", i%3 != 0, nil)
	}
	req := a.counterFor("requests_op").get()
	errs := a.counterFor("errors_op").get()
	require.LessOrEqual(t, errs, req)
}

func TestErrorBudgetBurn(t *testing.T) {
	a, _ := newTestAggregator()
	a.sloTargets.Availability = 0.999

	for i := 0; i < 1000; i++ {
		ok := i >= 10 // first 10 fail
		a.RecordRequest("checkout", ok, nil)
	}

	status := a.ErrorBudgetFor("checkout")
	require.InDelta(t, 0.001, status.Budget, 1e-9)
	require.InDelta(t, 0.01, status.Budget-status.Remaining, 1e-9) // errorRate = budget - remaining
	require.Less(t, status.Remaining, 0.0)
	require.False(t, status.SLOCompliance)
	require.GreaterOrEqual(t, status.BurnRate, 1.0)
	require.Equal(t, 0.0, status.TimeToExhaustionMin)
}

func TestErrorBudgetZeroBurnIsInfiniteTTE(t *testing.T) {
	a, _ := newTestAggregator()
	for i := 0; i < 10; i++ {
		a.RecordRequest("healthy", true, nil)
	}
	status := a.ErrorBudgetFor("healthy")
	require.True(t, math.IsInf(status.TimeToExhaustionMin, 1))
}

func TestCounterNeverDecrements(t *testing.T) {
	a, _ := newTestAggregator()
	a.counterFor("x").add(5)
	before := a.counterFor("x").get()
	a.counterFor("x").add(0)
	after := a.counterFor("x").get()
	require.GreaterOrEqual(t, after, before)
}

func TestTickCapsHistogramSize(t *testing.T) {
	a, _ := newTestAggregator()
	a.cfg.MaxHistogramSize = 5
	for i := 0; i < 20; i++ {
		a.RecordLatency("op", float64(i), nil)
	}
	a.Tick(nil)
	snap := a.HistogramSnapshotFor("op")
	require.Equal(t, 5, snap.Count)
}

func TestRPSDerivedFromLastMinute(t *testing.T) {
	a, mc := newTestAggregator()
	for i := 0; i < 30; i++ {
		a.RecordRequest("op", true, nil)
	}
	mc.Advance(2 * time.Minute)
	a.RecordRequest("op", true, nil)
	rps := a.ThroughputFor("op")
	require.InDelta(t, 1.0/60.0, rps.RPS, 1e-6)
}

func TestExportPrometheusDeterministic(t *testing.T) {
	a, _ := newTestAggregator()
	a.RecordRequest("op", true, nil)
	a.RecordLatency("op", 100, nil)

	out1 := a.ExportPrometheus()
	out2 := a.ExportPrometheus()
	require.Equal(t, out1, out2)
	require.Contains(t, out1, "requests_op")
	require.Contains(t, out1, "quantile=\"0.5\"")
}
