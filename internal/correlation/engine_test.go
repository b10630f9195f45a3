package correlation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/flowgovernor/internal/clock"
	"github.com/R3E-Network/flowgovernor/internal/config"
)

func newTestEngine(topo map[string][]string) (*Engine, *clock.Manual) {
	mc := clock.NewManual(time.Unix(0, 0))
	cfg := config.Default().Correlation
	cfg.MinDataPointsForCorrelation = 4
	return New(mc, nil, cfg, topo, nil), mc
}

// Scenario 5 from spec §8: deps(A)=[B], matching latency, throughput and
// error series => r≈1, positive, very_strong, impactDirection(A,B)=b_to_a.
func TestCorrelationSignAndDirection(t *testing.T) {
	e, mc := newTestEngine(map[string][]string{"A": {"B"}, "B": {}})

	values := []float64{1, 2, 3, 4}
	for _, v := range values {
		e.RecordSample(ModuleSample{ModuleID: "A", Timestamp: mc.NowMs(), P95Latency: v, Throughput: v, ErrorRate: v / 100})
		e.RecordSample(ModuleSample{ModuleID: "B", Timestamp: mc.NowMs(), P95Latency: v, Throughput: v, ErrorRate: v / 100})
		mc.Advance(time.Second)
	}

	e.Tick(nil)

	ab, ok := e.AnalysisFor("A", "B")
	require.True(t, ok)
	require.InDelta(t, 1.0, ab.R, 1e-6)
	require.Equal(t, SignPositive, ab.Type)
	require.Equal(t, StrengthVeryStrong, ab.Strength)
	require.Equal(t, ImpactBToA, ab.ImpactDirection)

	ba, ok := e.AnalysisFor("B", "A")
	require.True(t, ok)
	require.Equal(t, ImpactAToB, ba.ImpactDirection)
	require.InDelta(t, absF(ab.R), absF(ba.R), 1e-9)
}

func TestInsufficientSamplesOmitsCorrelation(t *testing.T) {
	e, mc := newTestEngine(map[string][]string{"A": {}, "B": {}})
	e.RecordSample(ModuleSample{ModuleID: "A", Timestamp: mc.NowMs(), P95Latency: 1})
	e.RecordSample(ModuleSample{ModuleID: "B", Timestamp: mc.NowMs(), P95Latency: 1})
	e.Tick(nil)

	_, ok := e.AnalysisFor("A", "B")
	require.False(t, ok)
}

func TestPearsonZeroVarianceCoercedToZero(t *testing.T) {
	r := pearson([]float64{5, 5, 5, 5}, []float64{1, 2, 3, 4})
	require.Equal(t, 0.0, r)
}

func TestPearsonUnderTwoPointsIsZero(t *testing.T) {
	require.Equal(t, 0.0, pearson([]float64{1}, []float64{2}))
	require.Equal(t, 0.0, pearson(nil, nil))
}

func TestEHIComponentsInUnitRange(t *testing.T) {
	e, mc := newTestEngine(map[string][]string{"qflow": {}})
	e.RecordSample(ModuleSample{
		ModuleID: "qflow", Timestamp: mc.NowMs(),
		P95Latency: 100, Throughput: 50, ErrorRate: 0.01, Availability: 0.99,
		CPU: 0.3, Mem: 0.4, Health: HealthHealthy,
	})
	e.Tick(nil)

	ehi := e.EHI()
	for _, v := range []float64{ehi.Connectivity, ehi.Performance, ehi.Reliability, ehi.Scalability, ehi.Overall} {
		require.GreaterOrEqual(t, v, 0.0)
		require.LessOrEqual(t, v, 1.0)
	}
}

func TestCriticalPathDepthCappedAndAcyclic(t *testing.T) {
	// Introduce a structural cycle: engine must still terminate because
	// of the depth cap and per-branch visited set (spec §9).
	topo := map[string][]string{
		"qflow": {"mid"},
		"mid":   {"qflow", "leaf"},
		"leaf":  {},
	}
	e, _ := newTestEngine(topo)
	paths := e.computeCriticalPaths()
	for _, p := range paths {
		require.LessOrEqual(t, len(p.Modules), maxPathDepth)
	}
}

func TestCriticalPathsCappedAtFive(t *testing.T) {
	topo := map[string][]string{
		"qflow": {"m1", "m2", "m3", "m4", "m5", "m6"},
	}
	for _, m := range []string{"m1", "m2", "m3", "m4", "m5", "m6"} {
		topo[m] = []string{}
	}
	e, _ := newTestEngine(topo)
	paths := e.computeCriticalPaths()
	require.LessOrEqual(t, len(paths), criticalPathCount)
}
