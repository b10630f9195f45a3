package ladder

import (
	"sync"
	"time"

	"github.com/R3E-Network/flowgovernor/internal/bus"
	"github.com/R3E-Network/flowgovernor/internal/clock"
	"github.com/R3E-Network/flowgovernor/internal/telemetry/logging"
)

// Topics published by the ladder (spec §4.5, §6).
const (
	TopicLevelEscalated        = "degradation_escalated"
	TopicLevelDeEscalated      = "degradation_deescalated"
	TopicActionsExecuted       = "degradation_actions_executed"
	TopicManualOverrideSet     = "ladder_manual_override_set"
	TopicManualOverrideExpired = "manual_override_expired"

	TopicActionPauseFlows        = "action_pause_flows"
	TopicActionDeferSteps        = "action_defer_steps"
	TopicActionReduceParallelism = "action_reduce_parallelism"
	TopicActionDisableFeatures   = "action_disable_features"
	TopicActionReduceModuleCalls = "action_reduce_module_calls"
	TopicActionEnableCaching     = "action_enable_caching"
	TopicActionLimitConnections  = "action_limit_connections"
)

// Ladder is the hysteretic degradation-level state machine. Its mutex
// guards only its own fields; it is not shared with the governor, and
// the control-plane wiring evaluates the ladder and the governor on
// separate tickers without a common lock.
type Ladder struct {
	clock clock.Clock
	bus   *bus.Bus
	cfg   Config
	log   *logging.Logger

	levels []LevelDefinition

	mu             sync.Mutex
	current        Level
	lastTransition int64 // ms, either direction
	overrideUntil  int64 // ms; 0 means no active override
}

// New creates a Ladder starting at LevelNormal.
func New(clk clock.Clock, b *bus.Bus, cfg Config, levels []LevelDefinition, log *logging.Logger) *Ladder {
	if log == nil {
		log = logging.New("ladder", "info", "json")
	}
	if levels == nil {
		levels = DefaultLevels()
	}
	if cfg.EscalationCooldown <= 0 {
		cfg.EscalationCooldown = 120 * time.Second
	}
	if cfg.DeEscalationDelay <= 0 {
		cfg.DeEscalationDelay = 300 * time.Second
	}
	if cfg.ManualOverrideTimeout <= 0 {
		cfg.ManualOverrideTimeout = 30 * time.Minute
	}
	return &Ladder{
		clock:  clk,
		bus:    b,
		cfg:    cfg,
		log:    log,
		levels: levels,
	}
}

// Current returns the current degradation level. Invariant:
// currentLevel ∈ [0, LevelCount-1] always holds.
func (l *Ladder) Current() Level {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.current
}

// highestSatisfied returns the highest level whose thresholds are met
// by signals, or LevelNormal if none are.
func (l *Ladder) highestSatisfied(s Signals) Level {
	best := LevelNormal
	for i := len(l.levels) - 1; i >= 1; i-- {
		def := l.levels[i]
		if def.Thresholds.Satisfied(s.BurnRate, s.ErrorRate, s.LatencyP95Ms, s.Utilization) {
			best = def.Level
			break
		}
	}
	return best
}

// ManualEscalate forces an escalation to level and sets the manual
// override flag for manualOverrideTimeout, disabling automatic
// escalation until it expires (de-escalation remains manual-accepting).
func (l *Ladder) ManualEscalate(level Level) {
	if level < 0 {
		level = 0
	}
	if int(level) >= len(l.levels) {
		level = Level(len(l.levels) - 1)
	}
	now := l.clock.NowMs()

	l.mu.Lock()
	prev := l.current
	l.current = level
	l.lastTransition = now
	l.overrideUntil = now + l.cfg.ManualOverrideTimeout.Milliseconds()
	l.mu.Unlock()

	l.publish(TopicManualOverrideSet, map[string]any{"level": int(level), "until": now + l.cfg.ManualOverrideTimeout.Milliseconds()})
	if level != prev {
		l.applyActions(level)
		l.publish(TopicLevelEscalated, map[string]any{"from": int(prev), "to": int(level), "manual": true})
	}
}

// Evaluate runs one hysteresis pass: escalate or de-escalate by exactly
// one step if the cooldown/delay allows, and applies the resulting
// level's action bundle on any transition (spec §4.5 steps 2-3).
func (l *Ladder) Evaluate(s Signals) Level {
	now := l.clock.NowMs()
	target := l.highestSatisfied(s)

	l.mu.Lock()
	current := l.current
	lastTransition := l.lastTransition
	overrideActive := l.overrideUntil > 0 && now < l.overrideUntil
	overrideExpired := l.overrideUntil > 0 && now >= l.overrideUntil
	if overrideExpired {
		l.overrideUntil = 0
	}
	l.mu.Unlock()

	if overrideExpired {
		l.publish(TopicManualOverrideExpired, map[string]any{"level": int(current)})
	}

	switch {
	case target > current && !overrideActive:
		if now-lastTransition >= l.cfg.EscalationCooldown.Milliseconds() {
			next := current + 1
			l.transition(next, now)
			l.publish(TopicLevelEscalated, map[string]any{"from": int(current), "to": int(next), "manual": false})
			return next
		}
	case target <= current && current > LevelNormal:
		currentDef := l.levels[current]
		stillTriggered := currentDef.Thresholds.Satisfied(s.BurnRate, s.ErrorRate, s.LatencyP95Ms, s.Utilization)
		if !stillTriggered && now-lastTransition >= l.cfg.DeEscalationDelay.Milliseconds() {
			next := current - 1
			l.transition(next, now)
			l.publish(TopicLevelDeEscalated, map[string]any{"from": int(current), "to": int(next)})
			return next
		}
	}
	return current
}

func (l *Ladder) transition(next Level, now int64) {
	l.mu.Lock()
	l.current = next
	l.lastTransition = now
	l.mu.Unlock()
	l.applyActions(next)
}

// applyActions emits the new level's action bundle as typed bus events
// (spec §4.5 step 3).
func (l *Ladder) applyActions(level Level) {
	def := l.levels[level]
	a := def.Actions

	l.publish(TopicActionsExecuted, map[string]any{"level": int(level), "name": def.Name})

	if a.PauseFlows.Enabled {
		l.publish(TopicActionPauseFlows, map[string]any{
			"priority_max": a.PauseFlows.PriorityMax,
			"max_count":    a.PauseFlows.MaxCount,
			"level":        int(level),
		})
	}
	if a.DeferSteps.Enabled {
		l.publish(TopicActionDeferSteps, map[string]any{
			"heavy_only":          a.DeferSteps.HeavyOnly,
			"cold_nodes_required": a.DeferSteps.ColdNodesRequired,
			"level":               int(level),
		})
	}
	if a.ReduceParallelism.Enabled {
		l.publish(TopicActionReduceParallelism, map[string]any{"percent_cut": a.ReduceParallelism.PercentCut, "level": int(level)})
	}
	if a.DisableFeatures.Enabled {
		l.publish(TopicActionDisableFeatures, map[string]any{"features": a.DisableFeatures.Features, "level": int(level)})
	}
	if a.ReduceModuleCalls.Enabled {
		l.publish(TopicActionReduceModuleCalls, map[string]any{
			"modules":     a.ReduceModuleCalls.Modules,
			"percent_cut": a.ReduceModuleCalls.PercentCut,
			"level":       int(level),
		})
	}
	if a.EnableCaching.Enabled {
		l.publish(TopicActionEnableCaching, map[string]any{
			"aggressive":     a.EnableCaching.Aggressive,
			"ttl_multiplier": a.EnableCaching.TTLMultiplier,
			"level":          int(level),
		})
	}
	if a.LimitConnections.Enabled {
		l.publish(TopicActionLimitConnections, map[string]any{"max_connections": a.LimitConnections.MaxConnections, "level": int(level)})
	}
}

func (l *Ladder) publish(topic string, data any) {
	if l.bus == nil {
		return
	}
	l.bus.Publish(topic, data)
}
