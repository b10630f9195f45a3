// Package aggregator implements the Metrics Aggregator (spec §4.2): per
// operation event ingestion, sliding-window counters/histograms,
// percentile/throughput/error-budget derivation, and a deterministic
// Prometheus text export.
package aggregator

import "time"

// Labels is a small label set attached to a recorded point.
type Labels map[string]string

// Sample is one ModuleMetrics observation at a point in time (spec §3).
type Sample struct {
	ModuleID    string
	Timestamp   int64
	P50, P95, P99 float64
	Throughput  float64
	ErrorRate   float64
	Availability float64
	CPU, Mem, Net float64
}

// Point is a single timeseries datum for recordMetric/recordCacheOp style
// series.
type Point struct {
	Timestamp int64
	Value     float64
	Labels    Labels
}

// HistogramSnapshot is a read-only view of a histogram's current state.
type HistogramSnapshot struct {
	Name  string
	Count int
	Sum   float64
	P50   float64
	P95   float64
	P99   float64
}

// ErrorBudgetStatus reports the computed error budget for one operation
// (spec §3 ErrorBudget).
type ErrorBudgetStatus struct {
	Operation          string
	Budget             float64
	Remaining          float64
	BurnRate           float64
	TimeToExhaustionMin float64
	SLOCompliance      bool
}

// CacheOpMetrics tracks hit-rate and average response time for one named
// cache (spec §4.2 recordCacheOp).
type CacheOpMetrics struct {
	Name          string
	Hits          uint64
	Misses        uint64
	HitRate       float64
	AvgResponseMs float64
}

// ThroughputSnapshot is requests-per-second derived from the last minute
// of recorded rps points for one operation.
type ThroughputSnapshot struct {
	Operation string
	RPS       float64
}

// SystemSnapshot is the combined getter spec §4.2 describes ("a combined
// system snapshot").
type SystemSnapshot struct {
	Histograms    map[string]HistogramSnapshot
	ErrorBudgets  map[string]ErrorBudgetStatus
	Cache         map[string]CacheOpMetrics
	Throughput    map[string]ThroughputSnapshot
	GeneratedAt   int64
}

// FlowExecutionMetrics is the structured rollup spec §4.2
// recordFlowExecution accepts.
type FlowExecutionMetrics struct {
	FlowID    string
	Operation string
	DurationMs float64
	Success   bool
	Labels    Labels
}

// ValidationPipelineMetrics is the structured rollup spec §4.2
// recordValidationPipeline accepts.
type ValidationPipelineMetrics struct {
	PipelineID string
	Operation  string
	DurationMs float64
	Success    bool
	Labels     Labels
}

const defaultRetention = 24 * time.Hour
