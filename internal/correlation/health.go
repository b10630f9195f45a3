package correlation

import "time"

const (
	defaultWindow         = time.Hour
	defaultUpdateInterval = 60 * time.Second
)

// computeEHI implements spec §3/§4.4's composite Ecosystem Health Index:
//
//	overall = 0.2*connectivity + 0.4*performance + 0.3*reliability + 0.1*scalability
func (e *Engine) computeEHI(modules []string) EcosystemHealthIndex {
	if len(modules) == 0 {
		return EcosystemHealthIndex{}
	}

	var connSum, perfSum, relSum, scaleSum float64
	counted := 0
	for _, m := range modules {
		s, ok := e.latestSample(m)
		if !ok {
			continue
		}
		counted++
		connSum += s.Availability

		latencyScore := maxF(0, 1-s.P95Latency/5000)
		throughputScore := minF(1, s.Throughput/100)
		perfSum += (latencyScore + throughputScore) / 2

		relSum += maxF(0, 1-s.ErrorRate/0.1)

		scaleSum += (1 - s.CPU + 1 - s.Mem) / 2
	}
	if counted == 0 {
		return EcosystemHealthIndex{}
	}

	connectivity := safeDiv(connSum, counted)
	performance := safeDiv(perfSum, counted)
	reliability := safeDiv(relSum, counted)
	scalability := safeDiv(scaleSum, counted)

	overall := 0.2*connectivity + 0.4*performance + 0.3*reliability + 0.1*scalability

	return EcosystemHealthIndex{
		Connectivity: clamp01(connectivity),
		Performance:  clamp01(performance),
		Reliability:  clamp01(reliability),
		Scalability:  clamp01(scalability),
		Overall:      clamp01(overall),
	}
}

func safeDiv(sum float64, n int) float64 {
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

func clamp01(v float64) float64 {
	if v != v { // NaN coerced to 0 per spec §3 invariant
		return 0
	}
	return clamp(v, 0, 1)
}

func maxF(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func minF(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

// computeCriticalPaths runs a depth-capped DFS from the canonical seeds
// (spec §4.4/§9), keeping the 5 lowest-pathHealth paths.
func (e *Engine) computeCriticalPaths() []CriticalPath {
	e.mu.RLock()
	topo := make(map[string][]string, len(e.topology))
	for k, v := range e.topology {
		topo[k] = v
	}
	e.mu.RUnlock()

	var all []CriticalPath
	for _, seed := range Seeds {
		if _, ok := topo[seed]; !ok {
			continue
		}
		visited := map[string]bool{seed: true}
		e.dfs(topo, seed, []string{seed}, visited, &all)
	}

	sortByPathHealth(all)
	if len(all) > criticalPathCount {
		all = all[:criticalPathCount]
	}
	return all
}

func (e *Engine) dfs(topo map[string][]string, current string, path []string, visited map[string]bool, out *[]CriticalPath) {
	deps := topo[current]
	if len(deps) == 0 || len(path) >= maxPathDepth {
		*out = append(*out, e.scorePath(path))
		return
	}
	branched := false
	for _, dep := range deps {
		if visited[dep] {
			continue
		}
		branched = true
		nextVisited := make(map[string]bool, len(visited)+1)
		for k := range visited {
			nextVisited[k] = true
		}
		nextVisited[dep] = true
		e.dfs(topo, dep, append(append([]string(nil), path...), dep), nextVisited, out)
	}
	if !branched {
		*out = append(*out, e.scorePath(path))
	}
}

func (e *Engine) scorePath(path []string) CriticalPath {
	var sum float64
	var bottlenecks []string
	for _, m := range path {
		s, ok := e.latestSample(m)
		health := HealthScore(HealthUnknown)
		if ok {
			health = HealthScore(s.Health)
			if s.P95Latency > 2000 || s.ErrorRate > 0.05 || s.CPU > 0.9 || s.Mem > 0.9 {
				bottlenecks = append(bottlenecks, m)
			}
		}
		sum += health
	}
	pathHealth := sum / float64(len(path))
	return CriticalPath{Modules: path, PathHealth: pathHealth, Bottlenecks: bottlenecks}
}

func sortByPathHealth(paths []CriticalPath) {
	for i := 1; i < len(paths); i++ {
		for j := i; j > 0 && paths[j].PathHealth < paths[j-1].PathHealth; j-- {
			paths[j], paths[j-1] = paths[j-1], paths[j]
		}
	}
}
