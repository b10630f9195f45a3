package aggregator

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/R3E-Network/flowgovernor/internal/bus"
	"github.com/R3E-Network/flowgovernor/internal/clock"
	"github.com/R3E-Network/flowgovernor/internal/config"
	"github.com/R3E-Network/flowgovernor/internal/telemetry/logging"
)

// Topics published by the aggregator (spec §6).
const (
	TopicMetricRecorded             = "metric_recorded"
	TopicLatencyRecorded            = "latency_recorded"
	TopicRequestRecorded            = "request_recorded"
	TopicCacheOperationRecorded     = "cache_operation_recorded"
	TopicFlowExecutionRecorded      = "flow_execution_recorded"
	TopicValidationPipelineRecorded = "validation_pipeline_recorded"
	TopicAggregationCompleted       = "aggregation_completed"
)

// Aggregator owns every histogram, counter, gauge, and series in the
// control plane; it is the sole writer for each (spec §3 Lifecycle).
type Aggregator struct {
	clock  clock.Clock
	bus    *bus.Bus
	cfg    config.Aggregator
	log    *logging.Logger

	mu         sync.RWMutex
	histograms map[string]*histogram
	counters   map[string]*counter
	gauges     map[string]*gauge
	seriesMap  map[string]*series
	cacheStats map[string]*cacheCounters

	sloTargets config.SLOTargets
}

type cacheCounters struct {
	mu            sync.Mutex
	hits, misses  uint64
	totalRTMs     float64
	observations  uint64
}

// New creates an Aggregator. bus may be nil in tests that only exercise
// pure computation.
func New(clk clock.Clock, b *bus.Bus, cfg config.Aggregator, log *logging.Logger) *Aggregator {
	if log == nil {
		log = logging.New("aggregator", "info", "json")
	}
	return &Aggregator{
		clock:      clk,
		bus:        b,
		cfg:        cfg,
		log:        log,
		histograms: make(map[string]*histogram),
		counters:   make(map[string]*counter),
		gauges:     make(map[string]*gauge),
		seriesMap:  make(map[string]*series),
		cacheStats: make(map[string]*cacheCounters),
		sloTargets: cfg.SLOTargets,
	}
}

func (a *Aggregator) histogramFor(name string) *histogram {
	a.mu.Lock()
	defer a.mu.Unlock()
	h, ok := a.histograms[name]
	if !ok {
		h = newHistogram(a.maxHistSize())
		a.histograms[name] = h
	}
	return h
}

func (a *Aggregator) maxHistSize() int {
	if a.cfg.MaxHistogramSize > 0 {
		return a.cfg.MaxHistogramSize
	}
	return 1000
}

func (a *Aggregator) counterFor(name string) *counter {
	a.mu.Lock()
	defer a.mu.Unlock()
	c, ok := a.counters[name]
	if !ok {
		c = &counter{}
		a.counters[name] = c
	}
	return c
}

func (a *Aggregator) gaugeFor(name string) *gauge {
	a.mu.Lock()
	defer a.mu.Unlock()
	g, ok := a.gauges[name]
	if !ok {
		g = &gauge{}
		a.gauges[name] = g
	}
	return g
}

func (a *Aggregator) seriesFor(name string) *series {
	a.mu.Lock()
	defer a.mu.Unlock()
	s, ok := a.seriesMap[name]
	if !ok {
		maxPts := a.cfg.MaxSeriesPoints
		if maxPts <= 0 {
			maxPts = 10_000
		}
		s = newSeries(maxPts)
		a.seriesMap[name] = s
	}
	return s
}

// RecordMetric appends a raw timeseries point. Recording against an
// unknown series auto-creates it as a gauge (spec §4.2 failure
// semantics: "ingestion never fails user code").
func (a *Aggregator) RecordMetric(name string, value float64, labels Labels) {
	now := a.clock.NowMs()
	a.seriesFor(name).append(Point{Timestamp: now, Value: value, Labels: labels})
	a.gaugeFor(name).set64(value)
	a.publish(TopicMetricRecorded, map[string]any{"name": name, "value": value, "labels": labels})
}

// RecordLatency appends to histogram latency_<op> and recomputes the
// p50/p95/p99 gauges after each insert (spec §4.2).
func (a *Aggregator) RecordLatency(op string, ms float64, labels Labels) {
	name := "latency_" + op
	h := a.histogramFor(name)
	h.observe(ms)

	_, _, p50, p95, p99 := h.snapshot()
	a.gaugeFor(op + "_latency_p50").set64(p50)
	a.gaugeFor(op + "_latency_p95").set64(p95)
	a.gaugeFor(op + "_latency_p99").set64(p99)

	a.publish(TopicLatencyRecorded, map[string]any{"op": op, "ms": ms, "labels": labels, "p50": p50, "p95": p95, "p99": p99})
}

// RecordRequest increments requests_<op>, and on failure errors_<op>,
// then updates <op>_rps from the last minute of rps points (spec §4.2).
func (a *Aggregator) RecordRequest(op string, ok bool, labels Labels) {
	now := a.clock.NowMs()
	a.counterFor("requests_" + op).add(1)
	if !ok {
		a.counterFor("errors_" + op).add(1)
	}

	rpsSeries := a.seriesFor("rps_" + op)
	rpsSeries.append(Point{Timestamp: now, Value: 1})
	sinceMin := now - int64(time.Minute/time.Millisecond)
	pts := rpsSeries.since(sinceMin)
	rps := float64(len(pts)) / 60.0
	a.gaugeFor(op + "_rps").set64(rps)

	a.publish(TopicRequestRecorded, map[string]any{"op": op, "ok": ok, "labels": labels})
}

// RecordCacheOp maintains hit-rate and average response time for name.
func (a *Aggregator) RecordCacheOp(name string, hit bool, rtMs float64) {
	a.mu.Lock()
	cc, ok := a.cacheStats[name]
	if !ok {
		cc = &cacheCounters{}
		a.cacheStats[name] = cc
	}
	a.mu.Unlock()

	cc.mu.Lock()
	if hit {
		cc.hits++
	} else {
		cc.misses++
	}
	cc.observations++
	cc.totalRTMs += rtMs
	cc.mu.Unlock()

	a.publish(TopicCacheOperationRecorded, map[string]any{"name": name, "hit": hit, "rt_ms": rtMs})
}

// RecordFlowExecution feeds a structured rollup into latency/request
// histograms keyed by flow/operation (spec §4.2).
func (a *Aggregator) RecordFlowExecution(m FlowExecutionMetrics) {
	op := "flow_" + m.FlowID + "_" + m.Operation
	a.RecordLatency(op, m.DurationMs, m.Labels)
	a.RecordRequest(op, m.Success, m.Labels)
	a.publish(TopicFlowExecutionRecorded, m)
}

// RecordValidationPipeline feeds a structured rollup for validation
// pipelines (spec §4.2).
func (a *Aggregator) RecordValidationPipeline(m ValidationPipelineMetrics) {
	op := "validation_" + m.PipelineID + "_" + m.Operation
	a.RecordLatency(op, m.DurationMs, m.Labels)
	a.RecordRequest(op, m.Success, m.Labels)
	a.publish(TopicValidationPipelineRecorded, m)
}

// HistogramSnapshotFor returns the current percentile snapshot for op's
// latency histogram.
func (a *Aggregator) HistogramSnapshotFor(op string) HistogramSnapshot {
	h := a.histogramFor("latency_" + op)
	count, sum, p50, p95, p99 := h.snapshot()
	return HistogramSnapshot{Name: op, Count: count, Sum: sum, P50: p50, P95: p95, P99: p99}
}

// ErrorBudgetFor computes the error-budget status for op per spec §3:
//
//	budget = 1 - availabilityTarget
//	remaining = budget - errorRate
//	burnRate = recentErrorRate / budget
//	timeToExhaustion(min) = (remaining / burnRate) * 60, +Inf if burnRate<=0,
//	                        0 once remaining <= 0
func (a *Aggregator) ErrorBudgetFor(op string) ErrorBudgetStatus {
	requests := a.counterFor("requests_" + op).get()
	errors := a.counterFor("errors_" + op).get()

	var errorRate float64
	if requests > 0 {
		errorRate = float64(errors) / float64(requests)
	}

	target := a.sloTargets.Availability
	if target <= 0 || target >= 1 {
		target = 0.999
	}
	budget := 1 - target
	remaining := budget - errorRate

	var burnRate float64
	if budget > 0 {
		burnRate = errorRate / budget
	}

	var ttm float64
	if burnRate <= 0 {
		ttm = math.Inf(1)
	} else if remaining <= 0 {
		ttm = 0
	} else {
		ttm = (remaining / burnRate) * 60
	}

	return ErrorBudgetStatus{
		Operation:           op,
		Budget:              budget,
		Remaining:           remaining,
		BurnRate:            burnRate,
		TimeToExhaustionMin: ttm,
		SLOCompliance:       remaining >= 0,
	}
}

// ThroughputFor returns the current RPS gauge for op.
func (a *Aggregator) ThroughputFor(op string) ThroughputSnapshot {
	v, _ := a.gaugeFor(op + "_rps").get()
	return ThroughputSnapshot{Operation: op, RPS: v}
}

// CacheMetricsFor returns the hit-rate/avg-response snapshot for name.
func (a *Aggregator) CacheMetricsFor(name string) CacheOpMetrics {
	a.mu.RLock()
	cc, ok := a.cacheStats[name]
	a.mu.RUnlock()
	if !ok {
		return CacheOpMetrics{Name: name}
	}
	cc.mu.Lock()
	defer cc.mu.Unlock()
	total := cc.hits + cc.misses
	var hitRate, avgRT float64
	if total > 0 {
		hitRate = float64(cc.hits) / float64(total)
	}
	if cc.observations > 0 {
		avgRT = cc.totalRTMs / float64(cc.observations)
	}
	return CacheOpMetrics{Name: name, Hits: cc.hits, Misses: cc.misses, HitRate: hitRate, AvgResponseMs: avgRT}
}

// Snapshot returns the combined system snapshot spec §4.2 describes.
func (a *Aggregator) Snapshot() SystemSnapshot {
	a.mu.RLock()
	histNames := make([]string, 0, len(a.histograms))
	for name := range a.histograms {
		histNames = append(histNames, name)
	}
	cacheNames := make([]string, 0, len(a.cacheStats))
	for name := range a.cacheStats {
		cacheNames = append(cacheNames, name)
	}
	a.mu.RUnlock()

	hists := make(map[string]HistogramSnapshot, len(histNames))
	for _, name := range histNames {
		count, sum, p50, p95, p99 := a.histograms[name].snapshot()
		op := strings.TrimPrefix(name, "latency_")
		hists[op] = HistogramSnapshot{Name: op, Count: count, Sum: sum, P50: p50, P95: p95, P99: p99}
	}

	budgets := make(map[string]ErrorBudgetStatus)
	for name := range hists {
		budgets[name] = a.ErrorBudgetFor(name)
	}

	cacheM := make(map[string]CacheOpMetrics, len(cacheNames))
	for _, name := range cacheNames {
		cacheM[name] = a.CacheMetricsFor(name)
	}

	throughput := make(map[string]ThroughputSnapshot)
	for name := range hists {
		throughput[name] = a.ThroughputFor(name)
	}

	return SystemSnapshot{
		Histograms:   hists,
		ErrorBudgets: budgets,
		Cache:        cacheM,
		Throughput:   throughput,
		GeneratedAt:  a.clock.NowMs(),
	}
}

// Tick runs the periodic aggregation pass (spec §4.2 "default 60s"):
// evicts series points outside the retention window and caps every
// histogram to its last maxHistogramSize values.
func (a *Aggregator) Tick(ctx context.Context) {
	retention := a.cfg.MetricsRetentionPeriod
	if retention <= 0 {
		retention = defaultRetention
	}
	cutoff := a.clock.NowMs() - retention.Milliseconds()

	a.mu.RLock()
	allSeries := make([]*series, 0, len(a.seriesMap))
	for _, s := range a.seriesMap {
		allSeries = append(allSeries, s)
	}
	allHist := make([]*histogram, 0, len(a.histograms))
	for _, h := range a.histograms {
		allHist = append(allHist, h)
	}
	a.mu.RUnlock()

	for _, s := range allSeries {
		s.evictOlderThan(cutoff)
	}
	for _, h := range allHist {
		h.trimToLast(a.maxHistSize())
	}

	a.publish(TopicAggregationCompleted, map[string]any{"at": a.clock.NowMs()})
}

// Run starts the aggregation ticker until ctx is cancelled (spec §5).
func (a *Aggregator) Run(ctx context.Context) {
	interval := a.cfg.AggregationInterval
	if interval <= 0 {
		interval = 60 * time.Second
	}
	clock.Run(ctx, a.clock, clock.Fixed(interval), func() { a.Tick(ctx) })
}

func (a *Aggregator) publish(topic string, data any) {
	if a.bus == nil {
		return
	}
	a.bus.Publish(topic, data)
}

// ExportPrometheus produces a deterministic Prometheus text export:
// COUNTER/GAUGE lines for raw series, and SUMMARY lines for histograms
// with quantiles {0.5,0.95,0.99} expressed in seconds, plus _count/_sum
// (spec §4.2, §6).
func (a *Aggregator) ExportPrometheus() string {
	a.mu.RLock()
	counterNames := sortedKeysC(a.counters)
	gaugeNames := sortedKeysG(a.gauges)
	histNames := sortedKeysH(a.histograms)
	a.mu.RUnlock()

	var sb strings.Builder
	for _, name := range counterNames {
		v := a.counters[name].get()
		fmt.Fprintf(&sb, "# TYPE %s counter\n%s %d\n", name, name, v)
	}
	for _, name := range gaugeNames {
		v, ok := a.gauges[name].get()
		if !ok {
			continue
		}
		fmt.Fprintf(&sb, "# TYPE %s gauge\n%s %s\n", name, name, formatFloat(v))
	}
	for _, name := range histNames {
		count, sum, p50, p95, p99 := a.histograms[name].snapshot()
		fmt.Fprintf(&sb, "# TYPE %s summary\n", name)
		fmt.Fprintf(&sb, "%s{quantile=\"0.5\"} %s\n", name, formatFloat(p50/1000))
		fmt.Fprintf(&sb, "%s{quantile=\"0.95\"} %s\n", name, formatFloat(p95/1000))
		fmt.Fprintf(&sb, "%s{quantile=\"0.99\"} %s\n", name, formatFloat(p99/1000))
		fmt.Fprintf(&sb, "%s_sum %s\n", name, formatFloat(sum/1000))
		fmt.Fprintf(&sb, "%s_count %d\n", name, count)
	}
	return sb.String()
}

func formatFloat(v float64) string {
	return fmt.Sprintf("%g", v)
}
