package scaler

import (
	"math"
	"sort"
	"sync"

	"github.com/R3E-Network/flowgovernor/internal/bus"
	"github.com/R3E-Network/flowgovernor/internal/clock"
	"github.com/R3E-Network/flowgovernor/internal/config"
	"github.com/R3E-Network/flowgovernor/internal/telemetry/logging"
)

// Topics published by the scaler (spec §4.6, §6).
const (
	TopicScaleUp             = "scale_up_initiated"
	TopicScaleDown           = "scale_down_initiated"
	TopicRedirectLoad        = "load_redirection_initiated"
	TopicOptimizeResources   = "optimization_applied"
	TopicEmergencyResponse   = "emergency_response_initiated"
	TopicEmergencyPauseFlows = "emergency_pause_low_priority_flows"
	TopicEmergencyRedirect   = "emergency_redirect_to_backup"
)

// SeverityCritical is the AnomalySeverity value that triggers the
// scaler's emergency path (spec §4.6).
const SeverityCritical = "critical"

// PerformanceAnomaly is the minimal shape of a performance_anomaly
// event the scaler listens for.
type PerformanceAnomaly struct {
	Module   string
	Severity string
}

// Scaler holds the three dictionaries spec §4.6 names: scaling
// policies, redirection rules, optimization triggers.
type Scaler struct {
	clock clock.Clock
	bus   *bus.Bus
	cfg   config.Scaler
	log   *logging.Logger

	mu        sync.Mutex
	policies  map[string]*ScalingPolicy
	redirects []RedirectionRule
	triggers  []OptimizationTrigger
}

// New creates a Scaler and subscribes it to performance_anomaly events
// on b for the emergency path.
func New(clk clock.Clock, b *bus.Bus, cfg config.Scaler, log *logging.Logger) *Scaler {
	if log == nil {
		log = logging.New("scaler", "info", "json")
	}
	s := &Scaler{
		clock:    clk,
		bus:      b,
		cfg:      cfg,
		log:      log,
		policies: make(map[string]*ScalingPolicy),
	}
	if b != nil {
		b.Subscribe("performance_anomaly", func(ev bus.Event) {
			if pa, ok := ev.Data.(PerformanceAnomaly); ok {
				s.HandleAnomaly(pa)
			}
		})
	}
	return s
}

// RegisterScalingPolicy adds or replaces a scaling policy by name.
func (s *Scaler) RegisterScalingPolicy(p ScalingPolicy) {
	// A policy that has never acted is not held back by its cooldown.
	p.lastActionMs = -p.Cooldown.Milliseconds()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.policies[p.Name] = &p
}

// RegisterRedirectionRule adds a redirection rule, kept sorted by
// descending priority.
func (s *Scaler) RegisterRedirectionRule(r RedirectionRule) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.redirects = append(s.redirects, r)
	sort.SliceStable(s.redirects, func(i, j int) bool { return s.redirects[i].Priority > s.redirects[j].Priority })
}

// RegisterOptimizationTrigger adds an optimization trigger.
func (s *Scaler) RegisterOptimizationTrigger(t OptimizationTrigger) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.triggers = append(s.triggers, t)
}

// EvaluateScalingPolicies runs every registered scaling policy against
// signals (one policy watches one named metric) on a governor tick
// (spec §4.6).
func (s *Scaler) EvaluateScalingPolicies(signals Signals) {
	now := s.clock.NowMs()
	metric, ok := s.metricFor(signals)
	if !ok {
		return
	}

	s.mu.Lock()
	policies := make([]*ScalingPolicy, 0, len(s.policies))
	for _, p := range s.policies {
		policies = append(policies, p)
	}
	s.mu.Unlock()

	sort.Slice(policies, func(i, j int) bool { return policies[i].Name < policies[j].Name })

	for _, p := range policies {
		value, ok := metric(p.Metric)
		if !ok {
			continue
		}
		if p.Cooldown > 0 && now-p.lastActionMs < p.Cooldown.Milliseconds() {
			continue
		}
		current := signals.CurrentNodes

		switch {
		case value > p.ScaleUpThreshold && current < p.MaxNodes:
			target := int(math.Ceil(float64(current) * 1.5))
			if target > p.MaxNodes {
				target = p.MaxNodes
			}
			if target <= current {
				target = current + 1
				if target > p.MaxNodes {
					target = p.MaxNodes
				}
			}
			p.lastActionMs = now
			s.publish(TopicScaleUp, map[string]any{"policy": p.Name, "module": signals.Module, "target": target, "current": current})
		case value < p.ScaleDownThreshold && current > p.MinNodes:
			target := int(math.Floor(float64(current) * 0.8))
			if target < p.MinNodes {
				target = p.MinNodes
			}
			if target >= current {
				target = current - 1
				if target < p.MinNodes {
					target = p.MinNodes
				}
			}
			p.lastActionMs = now
			s.publish(TopicScaleDown, map[string]any{"policy": p.Name, "module": signals.Module, "target": target, "current": current})
		}
	}
}

func (s *Scaler) metricFor(signals Signals) (func(name string) (float64, bool), bool) {
	if signals.Metrics == nil {
		return nil, false
	}
	return func(name string) (float64, bool) {
		v, ok := signals.Metrics[name]
		return v, ok
	}, true
}

// EvaluateRedirectionRules runs rules by descending priority; the
// first whose condition holds emits redirect_load and evaluation stops.
func (s *Scaler) EvaluateRedirectionRules(signals Signals) {
	s.mu.Lock()
	rules := append([]RedirectionRule(nil), s.redirects...)
	s.mu.Unlock()

	for _, r := range rules {
		if r.Condition == nil {
			continue
		}
		if r.Condition(signals) {
			s.publish(TopicRedirectLoad, map[string]any{"rule": r.Name, "target": r.Target, "params": r.Params})
			return
		}
	}
}

// EvaluateOptimizationTriggers runs every trigger independently; each
// whose condition holds fires optimize_resources.
func (s *Scaler) EvaluateOptimizationTriggers(signals Signals) {
	s.mu.Lock()
	triggers := append([]OptimizationTrigger(nil), s.triggers...)
	s.mu.Unlock()

	for _, tr := range triggers {
		if tr.Condition == nil {
			continue
		}
		if tr.Condition(signals) {
			s.publish(TopicOptimizeResources, map[string]any{"trigger": tr.Name, "params": tr.Params})
		}
	}
}

// Evaluate runs the full per-tick pass: scaling, redirection,
// optimization, in that order (spec §4.6).
func (s *Scaler) Evaluate(signals Signals) {
	s.EvaluateScalingPolicies(signals)
	s.EvaluateRedirectionRules(signals)
	s.EvaluateOptimizationTriggers(signals)
}

// HandleAnomaly runs the emergency path: on a critical performance
// anomaly, pause-low-priority-flows and redirect-80%-to-backup run in
// parallel (order-independent) — here emitted as two independent bus
// events with no ordering guarantee implied.
func (s *Scaler) HandleAnomaly(pa PerformanceAnomaly) {
	if pa.Severity != SeverityCritical {
		return
	}
	s.publish(TopicEmergencyResponse, map[string]any{"module": pa.Module, "severity": pa.Severity})
	s.publish(TopicEmergencyPauseFlows, map[string]any{"module": pa.Module, "priority": "low"})
	s.publish(TopicEmergencyRedirect, map[string]any{"module": pa.Module, "percent": 80, "target": "backup"})
}

func (s *Scaler) publish(topic string, data any) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(topic, data)
}
