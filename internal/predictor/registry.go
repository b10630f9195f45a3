package predictor

import (
	"fmt"
	"sync"
	"time"

	"github.com/R3E-Network/flowgovernor/internal/clock"
	"github.com/R3E-Network/flowgovernor/internal/config"
)

type cacheKey struct {
	module  string
	metric  string
	horizon int
}

type cacheEntry struct {
	points    []ForecastPoint
	expiresAt int64
}

// Registry holds registered models and the forecast cache the spec
// fixes by key shape (module, metric, horizon) with TTL
// forecastCacheTimeout (spec §4.7).
type Registry struct {
	clock clock.Clock
	cfg   config.Predictor

	mu     sync.Mutex
	models []Model
	cache  map[cacheKey]cacheEntry
}

func NewRegistry(clk clock.Clock, cfg config.Predictor) *Registry {
	return &Registry{clock: clk, cfg: cfg, cache: make(map[cacheKey]cacheEntry)}
}

// Register adds m to the set of candidate models.
func (r *Registry) Register(m Model) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.models = append(r.models, m)
}

// selectModel implements spec §4.7 "Model selection": the registered
// model with the highest accuracy whose TargetMetric matches (or
// resource_utilization as fallback).
func (r *Registry) selectModel(metric string) (Model, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var best, fallback Model
	for _, m := range r.models {
		if m.TargetMetric() == metric {
			if best == nil || m.Accuracy() > best.Accuracy() {
				best = m
			}
		}
		if m.TargetMetric() == fallbackMetric {
			if fallback == nil || m.Accuracy() > fallback.Accuracy() {
				fallback = m
			}
		}
	}
	if best != nil {
		return best, nil
	}
	if fallback != nil {
		return fallback, nil
	}
	return nil, fmt.Errorf("predictor: no model registered for metric %q", metric)
}

// Forecast returns the forecast series for (module, metric, horizonMin),
// serving from cache within forecastCacheTimeout (spec §4.7).
func (r *Registry) Forecast(module, metric string, horizonMin int) ([]ForecastPoint, error) {
	key := cacheKey{module, metric, horizonMin}
	now := r.clock.NowMs()

	r.mu.Lock()
	if entry, ok := r.cache[key]; ok && now < entry.expiresAt {
		r.mu.Unlock()
		return entry.points, nil
	}
	r.mu.Unlock()

	m, err := r.selectModel(metric)
	if err != nil {
		return nil, err
	}
	points := m.Forecast(module, metric, horizonMin)

	ttl := r.cfg.ForecastCacheTimeout
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	r.mu.Lock()
	r.cache[key] = cacheEntry{points: points, expiresAt: now + ttl.Milliseconds()}
	r.mu.Unlock()

	return points, nil
}

// PredictAnomalies delegates to the selected model for metric
// "resource_utilization" (anomalies are not metric-scoped in the spec).
func (r *Registry) PredictAnomalies(module string, horizonMin int) ([]AnomalyPrediction, error) {
	m, err := r.selectModel(fallbackMetric)
	if err != nil {
		return nil, err
	}
	return m.PredictAnomalies(module, horizonMin), nil
}

// Capacity delegates to the selected model for the given resource metric.
func (r *Registry) Capacity(module, resource string, horizonMin int) (CapacityForecast, error) {
	m, err := r.selectModel(resource)
	if err != nil {
		return CapacityForecast{}, err
	}
	return m.Capacity(module, resource, horizonMin), nil
}

// Train retrains every model whose accuracy < 0.7 or whose age exceeds
// modelRetrainingInterval (spec §4.7), or every model when force is true.
func (r *Registry) Train(force bool) []error {
	interval := r.cfg.ModelRetrainingInterval
	if interval <= 0 {
		interval = time.Hour
	}

	r.mu.Lock()
	models := append([]Model(nil), r.models...)
	r.mu.Unlock()

	var errs []error
	for _, m := range models {
		if force || m.Accuracy() < RetrainThresholdAccuracy || m.Age() > interval {
			if err := m.Retrain(); err != nil {
				errs = append(errs, fmt.Errorf("predictor: retrain %s: %w", m.Name(), err))
			}
		}
	}
	return errs
}
