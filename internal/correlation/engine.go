package correlation

import (
	"context"
	"sort"
	"sync"

	"github.com/R3E-Network/flowgovernor/internal/bus"
	"github.com/R3E-Network/flowgovernor/internal/clock"
	"github.com/R3E-Network/flowgovernor/internal/config"
	"github.com/R3E-Network/flowgovernor/internal/telemetry/logging"
)

// Topics published by the correlation engine (spec §6).
const (
	TopicModuleMetricsUpdated    = "module_metrics_updated"
	TopicCorrelationMatrixUpdated = "correlation_matrix_updated"
)

// Seeds are the default critical-path traversal starting points (spec §4.4).
var Seeds = []string{"qflow", "qindex", "qlock"}

const maxPathDepth = 3
const criticalPathCount = 5

type pairKey struct{ A, B string }

// Engine owns the topology and the correlation matrix (spec §3
// Lifecycle & ownership).
type Engine struct {
	clock clock.Clock
	bus   *bus.Bus
	cfg   config.Correlation
	log   *logging.Logger

	mu       sync.RWMutex
	topology map[string][]string      // module -> dependencies
	samples  map[string][]ModuleSample // module -> bounded recent samples
	matrix   map[pairKey]Analysis
	ehi      EcosystemHealthIndex
	paths    []CriticalPath
}

// New creates an Engine with the given static topology (module -> its
// dependencies).
func New(clk clock.Clock, b *bus.Bus, cfg config.Correlation, topology map[string][]string, log *logging.Logger) *Engine {
	if log == nil {
		log = logging.New("correlation", "info", "json")
	}
	topo := make(map[string][]string, len(topology))
	for k, v := range topology {
		topo[k] = append([]string(nil), v...)
	}
	return &Engine{
		clock:    clk,
		bus:      b,
		cfg:      cfg,
		log:      log,
		topology: topo,
		samples:  make(map[string][]ModuleSample),
		matrix:   make(map[pairKey]Analysis),
	}
}

const sampleRingSize = 500

// RecordSample appends a module health sample; the engine retains a
// bounded ring of recent samples per module for its correlation window.
func (e *Engine) RecordSample(s ModuleSample) {
	e.mu.Lock()
	list := e.samples[s.ModuleID]
	list = append(list, s)
	if len(list) > sampleRingSize {
		list = list[len(list)-sampleRingSize:]
	}
	e.samples[s.ModuleID] = list
	e.mu.Unlock()

	e.publish(TopicModuleMetricsUpdated, map[string]any{"module": s.ModuleID, "timestamp": s.Timestamp})
}

func (e *Engine) samplesSince(moduleID string, cutoffMs int64) []ModuleSample {
	e.mu.RLock()
	defer e.mu.RUnlock()
	var out []ModuleSample
	for _, s := range e.samples[moduleID] {
		if s.Timestamp >= cutoffMs {
			out = append(out, s)
		}
	}
	return out
}

func (e *Engine) latestSample(moduleID string) (ModuleSample, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	list := e.samples[moduleID]
	if len(list) == 0 {
		return ModuleSample{}, false
	}
	return list[len(list)-1], true
}

func (e *Engine) moduleIDs() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	seen := make(map[string]struct{})
	for m := range e.topology {
		seen[m] = struct{}{}
	}
	for m := range e.samples {
		seen[m] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for m := range seen {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}

// Tick recomputes the correlation matrix and the ecosystem health index
// (spec §4.4), and publishes correlation_matrix_updated.
func (e *Engine) Tick(ctx context.Context) {
	window := e.cfg.CorrelationWindowSize
	if window <= 0 {
		window = defaultWindow
	}
	minPts := e.cfg.MinDataPointsForCorrelation
	if minPts <= 0 {
		minPts = 30
	}
	cutoff := e.clock.NowMs() - window.Milliseconds()

	modules := e.moduleIDs()
	newMatrix := make(map[pairKey]Analysis)

	for i := 0; i < len(modules); i++ {
		for j := i + 1; j < len(modules); j++ {
			a, b := modules[i], modules[j]
			sa := e.samplesSince(a, cutoff)
			sb := e.samplesSince(b, cutoff)
			if len(sa) < minPts || len(sb) < minPts {
				continue // insufficient samples: correlation omitted, not an error
			}
			n := minInt(len(sa), len(sb))
			sa, sb = sa[len(sa)-n:], sb[len(sb)-n:]

			latA, latB := extract(sa, func(s ModuleSample) float64 { return s.P95Latency }), extract(sb, func(s ModuleSample) float64 { return s.P95Latency })
			thrA, thrB := extract(sa, func(s ModuleSample) float64 { return s.Throughput }), extract(sb, func(s ModuleSample) float64 { return s.Throughput })
			errA, errB := extract(sa, func(s ModuleSample) float64 { return s.ErrorRate }), extract(sb, func(s ModuleSample) float64 { return s.ErrorRate })

			rLat := pearson(latA, latB)
			rThr := pearson(thrA, thrB)
			rErr := pearson(errA, errB)
			r := 0.4*rLat + 0.4*rThr + 0.2*rErr
			r = clamp(r, -1, 1)

			confidence := clamp(float64(n)/100.0, 0, 1)

			abAnalysis := Analysis{
				A: a, B: b, R: r,
				Strength:   strengthOf(r),
				Type:       signOf(r),
				Confidence: confidence,
				ImpactDirection: impactDirection(a, b, r, e.deps(a), e.deps(b)),
			}
			baAnalysis := abAnalysis
			baAnalysis.A, baAnalysis.B = b, a
			baAnalysis.ImpactDirection = reverseDirection(abAnalysis.ImpactDirection)

			newMatrix[pairKey{a, b}] = abAnalysis
			newMatrix[pairKey{b, a}] = baAnalysis
		}
	}

	ehi := e.computeEHI(modules)
	paths := e.computeCriticalPaths()

	e.mu.Lock()
	e.matrix = newMatrix
	e.ehi = ehi
	e.paths = paths
	e.mu.Unlock()

	e.publish(TopicCorrelationMatrixUpdated, map[string]any{"pairs": len(newMatrix), "ehi": ehi.Overall})
}

func (e *Engine) deps(module string) []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.topology[module]
}

// impactDirection implements spec §4.4 step 3.
func impactDirection(a, b string, r float64, depsA, depsB []string) ImpactDirection {
	if contains(depsA, b) {
		return ImpactBToA
	}
	if contains(depsB, a) {
		return ImpactAToB
	}
	if absF(r) > 0.7 {
		return ImpactBidirectional
	}
	return ImpactIndependent
}

func reverseDirection(d ImpactDirection) ImpactDirection {
	switch d {
	case ImpactAToB:
		return ImpactBToA
	case ImpactBToA:
		return ImpactAToB
	default:
		return d
	}
}

func contains(list []string, v string) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

func absF(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func extract(samples []ModuleSample, f func(ModuleSample) float64) []float64 {
	out := make([]float64, len(samples))
	for i, s := range samples {
		out[i] = f(s)
	}
	return out
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// AnalysisFor returns the stored analysis for ordered pair (a,b), if any.
func (e *Engine) AnalysisFor(a, b string) (Analysis, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	v, ok := e.matrix[pairKey{a, b}]
	return v, ok
}

// EHI returns the latest computed Ecosystem Health Index.
func (e *Engine) EHI() EcosystemHealthIndex {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.ehi
}

// CriticalPaths returns the latest computed critical paths.
func (e *Engine) CriticalPaths() []CriticalPath {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]CriticalPath(nil), e.paths...)
}

// Run starts the correlation ticker (default 60s, spec §4.4).
func (e *Engine) Run(ctx context.Context) {
	interval := e.cfg.UpdateInterval
	if interval <= 0 {
		interval = defaultUpdateInterval
	}
	clock.Run(ctx, e.clock, clock.Fixed(interval), func() { e.Tick(ctx) })
}

func (e *Engine) publish(topic string, data any) {
	if e.bus == nil {
		return
	}
	e.bus.Publish(topic, data)
}
