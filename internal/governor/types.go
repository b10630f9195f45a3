// Package governor implements the Burn-Rate Governor (spec §4.5): the
// burn-rate formula, cost-control policy evaluation and action dispatch,
// plus the paused-flow/deferred-step bookkeeping the ladder's action
// bundle drives.
package governor

import "time"

// ModuleUtilization is the per-module resource snapshot the governor's
// resource-burn calculation consumes (spec §3 ModuleMetrics reduced to
// utilization).
type ModuleUtilization struct {
	ModuleID           string
	CPU, Mem           float64
	P95LatencyMs       float64
	ErrorRate          float64
	ThroughputRPS      float64
	ExpectedThroughput float64
}

// BurnRateMetrics is the composite spec §3 defines.
type BurnRateMetrics struct {
	CPUBurn         float64
	MemBurn         float64
	LatencyBurn     float64
	ErrorBurn       float64
	CostBurn        float64
	OverallBurnRate float64
}

// CostModel is the illustrative per-flow-hour pricing triple from spec §9
// (compute/network/storage), kept as configuration rather than a fixed
// constant so operators can override it.
type CostModel struct {
	ComputePerFlowHour float64
	NetworkPerFlowHour float64
	StoragePerFlowHour float64
}

func DefaultCostModel() CostModel {
	return CostModel{ComputePerFlowHour: 0.5, NetworkPerFlowHour: 0.1, StoragePerFlowHour: 0.05}
}

// CostControlAction is the typed action a cost-control policy dispatches.
type CostControlAction struct {
	Type   string
	Params map[string]any
}

// CostControlPolicy is ordered by descending Threshold and respects a
// per-policy Cooldown (spec §4.5 step 1).
type CostControlPolicy struct {
	Name      string
	Threshold float64
	Cooldown  time.Duration
	Actions   []CostControlAction

	lastExecuted int64
}

// PausedFlow records a paused flow (spec §3).
type PausedFlow struct {
	FlowID    string
	Reason    string
	PausedAt  int64
	ResumeAt  int64 // 0 means no scheduled auto-resume
}

// DeferredStep records a deferred step, targeting a cold node (spec §3).
type DeferredStep struct {
	StepID     string
	Reason     string
	DeferredAt int64
	ColdNode   string
}
