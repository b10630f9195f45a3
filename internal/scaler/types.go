// Package scaler implements the Adaptive Scaler and Redirector (spec
// §4.6): scaling policies driven by per-module metrics, priority-ordered
// redirection rules, independent optimization triggers, and the
// emergency path for critical performance anomalies.
package scaler

import "time"

// ScalingPolicy is keyed by Name and watches one Metric value.
type ScalingPolicy struct {
	Name               string
	Metric             string
	ScaleUpThreshold   float64
	ScaleDownThreshold float64
	MinNodes           int
	MaxNodes           int
	Cooldown           time.Duration

	lastActionMs int64
}

// RedirectionRule is evaluated by descending Priority; the first whose
// Condition holds wins and stops evaluation.
type RedirectionRule struct {
	Name      string
	Priority  int
	Condition func(Signals) bool
	Target    string
	Params    map[string]any
}

// OptimizationTrigger is evaluated independently of redirection rules
// and scaling policies; every trigger whose Condition holds fires.
type OptimizationTrigger struct {
	Name      string
	Condition func(Signals) bool
	Params    map[string]any
}

// Signals is the per-evaluation snapshot of system state the scaler's
// policies, rules, and triggers are evaluated against.
type Signals struct {
	Module      string
	Metrics     map[string]float64 // arbitrary named metrics (e.g. "cpu_utilization", "throughput")
	CurrentNodes int
}
