package governor

// computeResourceBurn averages CPU/mem utilization across modules into
// a single [0,1] burn contribution.
func computeResourceBurn(modules []ModuleUtilization) (cpuBurn, memBurn float64) {
	if len(modules) == 0 {
		return 0, 0
	}
	var cpuSum, memSum float64
	for _, m := range modules {
		cpuSum += m.CPU
		memSum += m.Mem
	}
	n := float64(len(modules))
	return clamp01(cpuSum / n), clamp01(memSum / n)
}

// computePerformanceBurn derives latency/error burn from latency vs the
// SLO target and raw error rate, averaged across modules.
func computePerformanceBurn(modules []ModuleUtilization, latencyTargetMs float64) (latencyBurn, errorBurn float64) {
	if len(modules) == 0 {
		return 0, 0
	}
	var latSum, errSum float64
	for _, m := range modules {
		if latencyTargetMs > 0 {
			latSum += clamp01(m.P95LatencyMs / latencyTargetMs)
		}
		errSum += clamp01(m.ErrorRate / 0.1)
	}
	n := float64(len(modules))
	return clamp01(latSum / n), clamp01(errSum / n)
}

// computeCostBurn implements spec §3/§9's illustrative pricing model:
// totalCost = totalFlows * (compute + network + storage) per hour,
// normalized against the configured hourly limit.
func computeCostBurn(activeFlows int, model CostModel, hourlyLimit float64) float64 {
	if hourlyLimit <= 0 {
		return 0
	}
	totalCost := float64(activeFlows) * (model.ComputePerFlowHour + model.NetworkPerFlowHour + model.StoragePerFlowHour)
	return clamp01(totalCost / hourlyLimit)
}

// Compute implements spec §3's BurnRateMetrics formula:
//
//	overall = 0.3*cpuBurn + 0.2*memBurn + 0.25*latencyBurn + 0.15*errorBurn + 0.1*(hourlyCost/hourlyLimit)
//
// clamped to 1.0.
func Compute(modules []ModuleUtilization, activeFlows int, model CostModel, hourlyLimit, latencyTargetMs float64) BurnRateMetrics {
	cpuBurn, memBurn := computeResourceBurn(modules)
	latencyBurn, errorBurn := computePerformanceBurn(modules, latencyTargetMs)
	costBurn := computeCostBurn(activeFlows, model, hourlyLimit)

	overall := 0.3*cpuBurn + 0.2*memBurn + 0.25*latencyBurn + 0.15*errorBurn + 0.1*costBurn

	return BurnRateMetrics{
		CPUBurn:         cpuBurn,
		MemBurn:         memBurn,
		LatencyBurn:     latencyBurn,
		ErrorBurn:       errorBurn,
		CostBurn:        costBurn,
		OverallBurnRate: clamp01(overall),
	}
}

func clamp01(v float64) float64 {
	if v != v {
		return 0
	}
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
