package predictor

import (
	"time"

	"github.com/R3E-Network/flowgovernor/internal/clock"
)

// HeuristicModel is a linear-trend reference implementation satisfying
// the Model interface. It is not a statistically faithful predictor —
// spec §1 marks exact model fidelity a non-goal — only a concrete
// instance so Registry has something to select and cache around.
type HeuristicModel struct {
	clock        clock.Clock
	name         string
	targetMetric string
	accuracy     float64
	trainedAt    int64
	source       func(module string) []float64
}

// NewHeuristicModel builds a model targeting targetMetric. source
// supplies the recent historical values the model extrapolates from
// (typically fed by the aggregator or correlation engine).
func NewHeuristicModel(clk clock.Clock, name, targetMetric string, source func(module string) []float64) *HeuristicModel {
	return &HeuristicModel{
		clock:        clk,
		name:         name,
		targetMetric: targetMetric,
		accuracy:     0.75,
		trainedAt:    clk.NowMs(),
		source:       source,
	}
}

func (m *HeuristicModel) Name() string         { return m.name }
func (m *HeuristicModel) TargetMetric() string { return m.targetMetric }
func (m *HeuristicModel) Accuracy() float64    { return m.accuracy }
func (m *HeuristicModel) Age() time.Duration {
	return time.Duration(m.clock.NowMs()-m.trainedAt) * time.Millisecond
}

// Forecast projects ForecastPoints equidistant points over horizonMin
// using the mean and slope of the source series, per spec §4.7.
func (m *HeuristicModel) Forecast(module, metric string, horizonMin int) []ForecastPoint {
	history := m.source(module)
	base, slope := meanAndSlope(history)

	now := m.clock.NowMs()
	stepMs := int64(horizonMin) * 60 * 1000 / ForecastPoints
	points := make([]ForecastPoint, ForecastPoints)
	for i := 0; i < ForecastPoints; i++ {
		t := int64(i+1) * stepMs
		value := base + slope*float64(i+1)
		spread := value * 0.1
		points[i] = ForecastPoint{
			TimestampMs: now + t,
			Value:       value,
			Confidence:  m.accuracy,
			Upper:       value + spread,
			Lower:       value - spread,
		}
	}
	return points
}

// PredictAnomalies flags a single anomaly when the series trend is
// sharply rising, with probability proportional to slope magnitude.
func (m *HeuristicModel) PredictAnomalies(module string, horizonMin int) []AnomalyPrediction {
	history := m.source(module)
	_, slope := meanAndSlope(history)
	if slope <= 0 {
		return nil
	}
	probability := clampUnit(slope / 10)
	return []AnomalyPrediction{{
		Module:                  module,
		Probability:             probability,
		ExpectedTimeToAnomalyMs: int64(horizonMin) * 60 * 1000 / 2,
		Severity:                SeverityFromProbability(probability),
		ContributingFactors:     []string{m.targetMetric},
	}}
}

// Capacity projects resource headroom linearly and reports when
// projected usage would cross 1.0 within the horizon.
func (m *HeuristicModel) Capacity(module, resource string, horizonMin int) CapacityForecast {
	history := m.source(module)
	base, slope := meanAndSlope(history)
	projected := base + slope*float64(horizonMin)

	var exhaustionAt int64
	if slope > 0 && base < 1 {
		minutesToExhaustion := (1 - base) / slope
		if minutesToExhaustion >= 0 && minutesToExhaustion <= float64(horizonMin) {
			exhaustionAt = m.clock.NowMs() + int64(minutesToExhaustion*60*1000)
		}
	}
	return CapacityForecast{
		Module:         module,
		Resource:       resource,
		HorizonMin:     horizonMin,
		ProjectedUsage: clampUnit(projected),
		ExhaustionAtMs: exhaustionAt,
	}
}

// Retrain re-bases the model's trained-at timestamp and nudges accuracy
// back up, simulating a successful retraining pass.
func (m *HeuristicModel) Retrain() error {
	m.trainedAt = m.clock.NowMs()
	m.accuracy = 0.8
	return nil
}

func meanAndSlope(history []float64) (mean, slope float64) {
	n := len(history)
	if n == 0 {
		return 0, 0
	}
	var sum float64
	for _, v := range history {
		sum += v
	}
	mean = sum / float64(n)
	if n < 2 {
		return mean, 0
	}
	slope = (history[n-1] - history[0]) / float64(n-1)
	return mean, slope
}

func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
