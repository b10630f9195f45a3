package ladder

// DefaultLevels returns the five canonical levels with monotonically
// tightening thresholds and SLA impact (spec §4.5). Thresholds are
// configuration, not fixed constants; these defaults were chosen so that
// a sustained p95 of 3000ms escalates 0→1→2 and recovery de-escalates
// 2→1→0.
func DefaultLevels() []LevelDefinition {
	levels := make([]LevelDefinition, LevelCount)

	levels[LevelNormal] = LevelDefinition{
		Level: LevelNormal,
		Name:  LevelNormal.String(),
	}

	perf := LevelDefinition{
		Level: LevelPerformanceOptimization,
		Name:  LevelPerformanceOptimization.String(),
		Thresholds: Thresholds{
			BurnRate: 0.3, ErrorRate: 0.02, LatencyMs: 2000, Utilization: 0.7,
		},
		SLA: SLAImpact{LatencyIncreasePct: 10, ThroughputReductionPct: 5},
	}
	perf.Actions.DeferSteps.Enabled = true
	perf.Actions.DeferSteps.HeavyOnly = true
	perf.Actions.DeferSteps.ColdNodesRequired = true
	perf.Actions.EnableCaching.Enabled = true
	perf.Actions.EnableCaching.Aggressive = false
	perf.Actions.EnableCaching.TTLMultiplier = 1.5
	levels[LevelPerformanceOptimization] = perf

	cost := LevelDefinition{
		Level: LevelCostControl,
		Name:  LevelCostControl.String(),
		Thresholds: Thresholds{
			BurnRate: 0.5, ErrorRate: 0.05, LatencyMs: 2500, Utilization: 0.8,
		},
		SLA: SLAImpact{LatencyIncreasePct: 30, ThroughputReductionPct: 20},
	}
	cost.Actions.PauseFlows.Enabled = true
	cost.Actions.PauseFlows.PriorityMax = "low"
	cost.Actions.PauseFlows.MaxCount = 50
	cost.Actions.ReduceParallelism.Enabled = true
	cost.Actions.ReduceParallelism.PercentCut = 25
	levels[LevelCostControl] = cost

	emergency := LevelDefinition{
		Level: LevelEmergencyThrottling,
		Name:  LevelEmergencyThrottling.String(),
		Thresholds: Thresholds{
			BurnRate: 0.7, ErrorRate: 0.1, LatencyMs: 4000, Utilization: 0.9,
		},
		SLA: SLAImpact{LatencyIncreasePct: 60, ThroughputReductionPct: 45},
	}
	emergency.Actions.DisableFeatures.Enabled = true
	emergency.Actions.DisableFeatures.Features = []string{"real_time_dashboard", "webhook_processing"}
	emergency.Actions.ReduceModuleCalls.Enabled = true
	emergency.Actions.ReduceModuleCalls.PercentCut = 50
	emergency.Actions.LimitConnections.Enabled = true
	emergency.Actions.LimitConnections.MaxConnections = 200
	levels[LevelEmergencyThrottling] = emergency

	critical := LevelDefinition{
		Level: LevelCriticalSurvival,
		Name:  LevelCriticalSurvival.String(),
		Thresholds: Thresholds{
			BurnRate: 0.9, ErrorRate: 0.2, LatencyMs: 6000, Utilization: 0.95,
		},
		SLA: SLAImpact{LatencyIncreasePct: 100, ThroughputReductionPct: 70},
	}
	critical.Actions.PauseFlows.Enabled = true
	critical.Actions.PauseFlows.PriorityMax = "medium"
	critical.Actions.PauseFlows.MaxCount = 500
	critical.Actions.DisableFeatures.Enabled = true
	critical.Actions.DisableFeatures.Features = []string{
		"advanced_analytics", "detailed_logging", "real_time_dashboard",
		"webhook_processing", "external_integrations",
	}
	critical.Actions.ReduceParallelism.Enabled = true
	critical.Actions.ReduceParallelism.PercentCut = 75
	critical.Actions.LimitConnections.Enabled = true
	critical.Actions.LimitConnections.MaxConnections = 50
	levels[LevelCriticalSurvival] = critical

	return levels
}
