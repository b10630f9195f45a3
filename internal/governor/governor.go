package governor

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/R3E-Network/flowgovernor/internal/bus"
	"github.com/R3E-Network/flowgovernor/internal/clock"
	"github.com/R3E-Network/flowgovernor/internal/config"
	"github.com/R3E-Network/flowgovernor/internal/errs"
	"github.com/R3E-Network/flowgovernor/internal/telemetry/logging"
)

// Topics published by the governor (spec §6).
const (
	TopicBurnRateCalculated       = "burn_rate_calculated"
	TopicBurnRateExceeded         = "burn_rate_exceeded"
	TopicLowPriorityFlowsPaused   = "low_priority_flows_paused"
	TopicHeavyStepsDeferred       = "heavy_steps_deferred"
	TopicFlowsReroutedToColdNodes = "flows_rerouted_to_cold_nodes"
	TopicFlowPaused               = "flow_paused"
	TopicFlowResumed              = "flow_resumed"
	TopicStepDeferred             = "step_deferred"
	TopicDeferredStepExpired      = "deferred_step_expired"
	TopicCostControlPolicyExecuted = "cost_control_policy_executed"
)

// ModuleSource supplies the current per-module utilization the governor
// needs every tick; tests pass a fake. A nil source reports no modules,
// and controlplane.New passes nil.
type ModuleSource func() []ModuleUtilization

// Governor owns paused/deferred collections and policy cooldowns (spec
// §3 Lifecycle & ownership).
type Governor struct {
	clock  clock.Clock
	bus    *bus.Bus
	cfg    config.BurnRate
	model  CostModel
	log    *logging.Logger
	source ModuleSource

	activeFlows func() int

	mu       sync.Mutex
	policies []CostControlPolicy
	paused   map[string]*PausedFlow
	deferred map[string]*DeferredStep
	last     BurnRateMetrics
}

// New creates a Governor. source supplies live module utilization;
// activeFlows supplies the current active-flow count for cost-burn.
func New(clk clock.Clock, b *bus.Bus, cfg config.BurnRate, source ModuleSource, activeFlows func() int, log *logging.Logger) *Governor {
	if log == nil {
		log = logging.New("governor", "info", "json")
	}
	if source == nil {
		source = func() []ModuleUtilization { return nil }
	}
	if activeFlows == nil {
		activeFlows = func() int { return 0 }
	}
	return &Governor{
		clock:       clk,
		bus:         b,
		cfg:         cfg,
		model:       DefaultCostModel(),
		log:         log,
		source:      source,
		activeFlows: activeFlows,
		paused:      make(map[string]*PausedFlow),
		deferred:    make(map[string]*DeferredStep),
	}
}

// SetCostModel overrides the illustrative per-flow-hour pricing triple.
func (g *Governor) SetCostModel(m CostModel) {
	g.mu.Lock()
	g.model = m
	g.mu.Unlock()
}

// RegisterPolicy adds a cost-control policy. Policies are evaluated in
// descending Threshold order each tick (spec §4.5 step 1).
func (g *Governor) RegisterPolicy(p CostControlPolicy) {
	// A policy that has never run is not held back by its cooldown.
	p.lastExecuted = -p.Cooldown.Milliseconds()
	g.mu.Lock()
	g.policies = append(g.policies, p)
	sort.SliceStable(g.policies, func(i, j int) bool { return g.policies[i].Threshold > g.policies[j].Threshold })
	g.mu.Unlock()
}

// LatencyTargetMs is the SLO target the performance-burn calculation
// measures against; defaults to spec §6's 2000ms.
var LatencyTargetMs = 2000.0

// Calculate computes the current BurnRateMetrics and publishes
// burn_rate_calculated (and burn_rate_exceeded past the configured
// threshold), per spec §4.5.
func (g *Governor) Calculate() BurnRateMetrics {
	modules := g.source()
	flows := g.activeFlows()

	g.mu.Lock()
	model := g.model
	g.mu.Unlock()

	hourlyLimit := g.cfg.CostLimits.Hourly
	metrics := Compute(modules, flows, model, hourlyLimit, LatencyTargetMs)

	g.mu.Lock()
	g.last = metrics
	g.mu.Unlock()

	g.publish(TopicBurnRateCalculated, metrics)

	threshold := g.cfg.MaxBurnRateThreshold
	if threshold <= 0 {
		threshold = 0.9
	}
	if metrics.OverallBurnRate >= threshold {
		g.publish(TopicBurnRateExceeded, metrics)
	}
	return metrics
}

// Last returns the most recently computed BurnRateMetrics.
func (g *Governor) Last() BurnRateMetrics {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.last
}

// EvaluateCostPolicies runs registered policies in descending-threshold
// order, skipping any still in cooldown, and dispatches their actions
// (spec §4.5 step 1).
func (g *Governor) EvaluateCostPolicies(metrics BurnRateMetrics) {
	now := g.clock.NowMs()

	g.mu.Lock()
	policies := append([]CostControlPolicy(nil), g.policies...)
	g.mu.Unlock()

	for i := range policies {
		p := &policies[i]
		if metrics.OverallBurnRate < p.Threshold {
			continue
		}
		if p.Cooldown > 0 && now-p.lastExecuted < p.Cooldown.Milliseconds() {
			continue // capacity/contention: skip locally, no error raised
		}
		p.lastExecuted = now
		g.writeBackPolicyCooldown(p.Name, now)
		for _, action := range p.Actions {
			g.publish(TopicCostControlPolicyExecuted, map[string]any{"policy": p.Name, "action": action.Type, "params": action.Params})
		}
	}
}

func (g *Governor) writeBackPolicyCooldown(name string, at int64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for i := range g.policies {
		if g.policies[i].Name == name {
			g.policies[i].lastExecuted = at
			return
		}
	}
}

// PauseFlow records a paused flow (spec §4.5 pauseFlow). duration<=0
// means no scheduled auto-resume.
func (g *Governor) PauseFlow(flowID, reason string, duration time.Duration) {
	now := g.clock.NowMs()
	pf := &PausedFlow{FlowID: flowID, Reason: reason, PausedAt: now}
	if duration > 0 {
		pf.ResumeAt = now + duration.Milliseconds()
	}
	g.mu.Lock()
	g.paused[flowID] = pf
	g.mu.Unlock()

	g.publish(TopicFlowPaused, map[string]any{"flow_id": flowID, "reason": reason, "resume_at": pf.ResumeAt})
}

// PauseLowPriorityFlows pauses up to maxCount flow ids from candidates,
// emitting low_priority_flows_paused (spec §4.5 action bundle).
func (g *Governor) PauseLowPriorityFlows(candidates []string, reason string, maxCount int) []string {
	if maxCount <= 0 || maxCount > len(candidates) {
		maxCount = len(candidates)
	}
	paused := candidates[:maxCount]
	for _, id := range paused {
		g.PauseFlow(id, reason, 0)
	}
	g.publish(TopicLowPriorityFlowsPaused, map[string]any{"flow_ids": paused, "reason": reason})
	return paused
}

// DeferStep records a deferred step targeting a cold node (spec §4.5).
func (g *Governor) DeferStep(stepID, reason, coldNode string) {
	now := g.clock.NowMs()
	g.mu.Lock()
	g.deferred[stepID] = &DeferredStep{StepID: stepID, Reason: reason, DeferredAt: now, ColdNode: coldNode}
	g.mu.Unlock()
	g.publish(TopicStepDeferred, map[string]any{"step_id": stepID, "reason": reason, "cold_node": coldNode})
}

// DeferHeavySteps defers every step id in steps to a cold node, emitting
// heavy_steps_deferred. coldNodes must be non-empty; an empty pool is a
// capacity condition handled locally (spec §4.5/§7): no steps deferred.
func (g *Governor) DeferHeavySteps(steps []string, coldNodes []string) error {
	if len(coldNodes) == 0 {
		return errs.Capacity("governor", "DeferHeavySteps", nil)
	}
	for i, id := range steps {
		node := coldNodes[i%len(coldNodes)]
		g.DeferStep(id, "heavy_step_deferral", node)
	}
	g.publish(TopicHeavyStepsDeferred, map[string]any{"step_ids": steps})
	return nil
}

// RerouteToColdNodes emits flows_rerouted_to_cold_nodes for the given
// flow ids (spec §4.5 action bundle).
func (g *Governor) RerouteToColdNodes(flowIDs []string, coldNodes []string) {
	g.publish(TopicFlowsReroutedToColdNodes, map[string]any{"flow_ids": flowIDs, "cold_nodes": coldNodes})
}

// CheckFlowResumption emits flow_resumed for every paused flow whose
// ResumeAt <= now, per the spec §3 invariant that the governor emits a
// resume on the next tick.
func (g *Governor) CheckFlowResumption() {
	now := g.clock.NowMs()

	g.mu.Lock()
	var ready []string
	for id, pf := range g.paused {
		if pf.ResumeAt != 0 && pf.ResumeAt <= now {
			ready = append(ready, id)
		}
	}
	for _, id := range ready {
		delete(g.paused, id)
	}
	g.mu.Unlock()

	sort.Strings(ready)
	for _, id := range ready {
		g.publish(TopicFlowResumed, map[string]any{"flow_id": id})
	}
}

// ReapDeferredSteps expires deferred steps older than maxDeferralTime
// (default 30 min, spec §4.5).
func (g *Governor) ReapDeferredSteps(maxDeferralTime time.Duration) {
	if maxDeferralTime <= 0 {
		maxDeferralTime = 30 * time.Minute
	}
	now := g.clock.NowMs()

	g.mu.Lock()
	var expired []string
	for id, ds := range g.deferred {
		if now-ds.DeferredAt >= maxDeferralTime.Milliseconds() {
			expired = append(expired, id)
		}
	}
	for _, id := range expired {
		delete(g.deferred, id)
	}
	g.mu.Unlock()

	sort.Strings(expired)
	for _, id := range expired {
		g.publish(TopicDeferredStepExpired, map[string]any{"step_id": id})
	}
}

// PausedFlows returns a snapshot of currently paused flows.
func (g *Governor) PausedFlows() []PausedFlow {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]PausedFlow, 0, len(g.paused))
	for _, pf := range g.paused {
		out = append(out, *pf)
	}
	return out
}

// DeferredSteps returns a snapshot of currently deferred steps.
func (g *Governor) DeferredSteps() []DeferredStep {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]DeferredStep, 0, len(g.deferred))
	for _, ds := range g.deferred {
		out = append(out, *ds)
	}
	return out
}

// Tick runs one full governor pass: recompute burn rate, evaluate cost
// policies, check flow resumption, reap expired deferrals (spec §4.5).
func (g *Governor) Tick(ctx context.Context, maxDeferralTime time.Duration) BurnRateMetrics {
	metrics := g.Calculate()
	g.EvaluateCostPolicies(metrics)
	g.CheckFlowResumption()
	g.ReapDeferredSteps(maxDeferralTime)
	return metrics
}

// Run starts the burn-rate calculation ticker (default 30s, spec §4.5/§6).
func (g *Governor) Run(ctx context.Context, maxDeferralTime time.Duration) {
	interval := g.cfg.CalculationInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	clock.Run(ctx, g.clock, clock.Fixed(interval), func() { g.Tick(ctx, maxDeferralTime) })
}

func (g *Governor) publish(topic string, data any) {
	if g.bus == nil {
		return
	}
	g.bus.Publish(topic, data)
}
