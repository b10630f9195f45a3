package controlplane

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/flowgovernor/internal/clock"
	"github.com/R3E-Network/flowgovernor/internal/config"
)

func TestNewWiresEveryComponent(t *testing.T) {
	mc := clock.NewManual(time.Unix(0, 0))
	cp := New(config.Default(), mc, nil)

	require.NotNil(t, cp.Bus)
	require.NotNil(t, cp.Aggregator)
	require.NotNil(t, cp.Cache)
	require.NotNil(t, cp.Correlation)
	require.NotNil(t, cp.Predictor)
	require.NotNil(t, cp.Governor)
	require.NotNil(t, cp.Ladder)
	require.NotNil(t, cp.Scaler)
	require.NotNil(t, cp.Dashboard)
	require.NotNil(t, cp.Alerts)
	require.NotNil(t, cp.Metrics)
}

func TestRunStartsComponentsAndShutdownStopsThem(t *testing.T) {
	mc := clock.NewManual(time.Unix(0, 0))
	cp := New(config.Default(), mc, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		_ = cp.Run(ctx)
		close(done)
	}()

	// Give goroutines a chance to register their first tick wait.
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, cp.Shutdown(context.Background()))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return promptly after Shutdown")
	}
}

func TestRunIsIdempotentWhenAlreadyRunning(t *testing.T) {
	mc := clock.NewManual(time.Unix(0, 0))
	cp := New(config.Default(), mc, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done1 := make(chan struct{})
	go func() {
		_ = cp.Run(ctx)
		close(done1)
	}()
	time.Sleep(10 * time.Millisecond)

	// A second Run call while already running returns immediately.
	require.NoError(t, cp.Run(ctx))

	require.NoError(t, cp.Shutdown(context.Background()))
	select {
	case <-done1:
	case <-time.After(time.Second):
		t.Fatal("first Run did not return after Shutdown")
	}
}

func TestLadderSignalsReflectAggregatorAndGovernorState(t *testing.T) {
	mc := clock.NewManual(time.Unix(0, 0))
	cp := New(config.Default(), mc, nil)

	cp.Aggregator.RecordLatency("execute_flow", 3000, nil)
	cp.Aggregator.RecordRequest("execute_flow", false, nil)

	signals := cp.ladderSignals()
	require.GreaterOrEqual(t, signals.LatencyP95Ms, 0.0)
}

func TestAlertSignalsAggregatesAcrossOperations(t *testing.T) {
	mc := clock.NewManual(time.Unix(0, 0))
	cp := New(config.Default(), mc, nil)

	cp.Aggregator.RecordLatency("execute_flow", 6000, nil)
	cp.Aggregator.RecordRequest("execute_flow", false, nil)

	signals := cp.alertSignals()
	require.Contains(t, signals, "latency_p99")
	require.Contains(t, signals, "error_rate")
	require.Contains(t, signals, "throughput")
}

func TestWithTopologyOverridesCorrelationEngine(t *testing.T) {
	mc := clock.NewManual(time.Unix(0, 0))
	topology := map[string][]string{"b": {"a"}}
	cp := New(config.Default(), mc, nil, WithTopology(topology))
	require.NotNil(t, cp.Correlation)
}
