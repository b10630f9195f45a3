package expr

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestComparisonEvaluates(t *testing.T) {
	e, err := Parse("latency_p99 > 5000")
	require.NoError(t, err)

	ok, err := e.Evaluate(Signals{"latency_p99": 6000})
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = e.Evaluate(Signals{"latency_p99": 100})
	require.NoError(t, err)
	require.False(t, ok)
}

func TestAndOrCombinators(t *testing.T) {
	e, err := Parse("cpu_utilization > 0.9 OR memory_utilization > 0.9")
	require.NoError(t, err)

	ok, err := e.Evaluate(Signals{"cpu_utilization": 0.95, "memory_utilization": 0.1})
	require.NoError(t, err)
	require.True(t, ok)

	e2, err := Parse("error_rate > 0.05 AND throughput < 5")
	require.NoError(t, err)
	ok2, err := e2.Evaluate(Signals{"error_rate": 0.1, "throughput": 2})
	require.NoError(t, err)
	require.True(t, ok2)
}

func TestInvalidExpressionFailsToParse(t *testing.T) {
	_, err := Parse("latency_p99 >>> 5000")
	require.Error(t, err)
}

func TestBurnRateVocabulary(t *testing.T) {
	e, err := Parse("burn_rate >= 0.9")
	require.NoError(t, err)
	ok, err := e.Evaluate(Signals{"burn_rate": 0.95})
	require.NoError(t, err)
	require.True(t, ok)
}
