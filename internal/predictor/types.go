// Package predictor specifies the pluggable Predictor interface (spec
// §4.7). Concrete models are out of scope; this package fixes the
// interface shape, model-selection rule, and caching contract.
package predictor

import "time"

// ForecastPoint is one (ts, value, confidence, upper, lower) datum.
type ForecastPoint struct {
	TimestampMs int64
	Value       float64
	Confidence  float64
	Upper       float64
	Lower       float64
}

const ForecastPoints = 20

// AnomalySeverity classifies a predicted anomaly (spec §9 mapping).
type AnomalySeverity string

const (
	SeverityCritical AnomalySeverity = "critical"
	SeverityHigh     AnomalySeverity = "high"
	SeverityMedium   AnomalySeverity = "medium"
	SeverityLow      AnomalySeverity = "low"
)

// SeverityFromProbability reproduces spec §9's coarse mapping exactly:
// {>0.9 critical, >0.7 high, >0.5 medium, else low}.
func SeverityFromProbability(p float64) AnomalySeverity {
	switch {
	case p > 0.9:
		return SeverityCritical
	case p > 0.7:
		return SeverityHigh
	case p > 0.5:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// AnomalyPrediction is one predicted anomaly (spec §4.7).
type AnomalyPrediction struct {
	Module               string
	Probability           float64
	ExpectedTimeToAnomalyMs int64
	Severity              AnomalySeverity
	ContributingFactors   []string
}

// CapacityForecast projects resource headroom for a module (spec §4.7).
type CapacityForecast struct {
	Module         string
	Resource       string
	HorizonMin     int
	ProjectedUsage float64
	ExhaustionAtMs int64 // 0 if no exhaustion projected within horizon
}

// Model is one registered predictor implementation, selected by
// TargetMetric match and Accuracy (spec §4.7 "Model selection").
type Model interface {
	Name() string
	TargetMetric() string
	Accuracy() float64
	Age() time.Duration
	Forecast(module, metric string, horizonMin int) []ForecastPoint
	PredictAnomalies(module string, horizonMin int) []AnomalyPrediction
	Capacity(module, resource string, horizonMin int) CapacityForecast
	Retrain() error
}

const fallbackMetric = "resource_utilization"

// RetrainThresholdAccuracy is the accuracy below which Train retrains a
// model (spec §4.7).
const RetrainThresholdAccuracy = 0.7
