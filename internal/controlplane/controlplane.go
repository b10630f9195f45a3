// Package controlplane wires the nine cooperating components into a
// single lifecycle, adapted from the teacher's internal/app/runtime
// Application: one constructor assembling dependencies, one Run that
// blocks until context cancellation, one Shutdown that cancels the
// context every component runs under, so all components stop together
// in no defined order.
package controlplane

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/R3E-Network/flowgovernor/internal/aggregator"
	"github.com/R3E-Network/flowgovernor/internal/alerts"
	"github.com/R3E-Network/flowgovernor/internal/bus"
	"github.com/R3E-Network/flowgovernor/internal/cache"
	"github.com/R3E-Network/flowgovernor/internal/clock"
	"github.com/R3E-Network/flowgovernor/internal/config"
	"github.com/R3E-Network/flowgovernor/internal/correlation"
	"github.com/R3E-Network/flowgovernor/internal/dashboard"
	"github.com/R3E-Network/flowgovernor/internal/expr"
	"github.com/R3E-Network/flowgovernor/internal/governor"
	"github.com/R3E-Network/flowgovernor/internal/ladder"
	"github.com/R3E-Network/flowgovernor/internal/predictor"
	"github.com/R3E-Network/flowgovernor/internal/scaler"
	"github.com/R3E-Network/flowgovernor/internal/telemetry/logging"
	telemetrymetrics "github.com/R3E-Network/flowgovernor/internal/telemetry/metrics"
)

// ControlPlane owns every component and the single EventBus they share.
type ControlPlane struct {
	Config config.Config
	Clock  clock.Clock
	Bus    *bus.Bus
	Log    *logging.Logger

	Aggregator  *aggregator.Aggregator
	Cache       *cache.Cache
	Correlation *correlation.Engine
	Predictor   *predictor.Registry
	Governor    *governor.Governor
	Ladder      *ladder.Ladder
	Scaler      *scaler.Scaler
	Dashboard   *dashboard.Hub
	Alerts      *alerts.Manager

	Metrics *telemetrymetrics.Metrics

	mu      sync.Mutex
	cancel  context.CancelFunc
	running bool
}

// Option customizes New's wiring, e.g. to override the topology the
// correlation engine walks.
type Option func(*ControlPlane)

// WithTopology sets the module dependency topology the correlation
// engine's critical-path analysis walks.
func WithTopology(topology map[string][]string) Option {
	return func(cp *ControlPlane) {
		cp.Correlation = correlation.New(cp.Clock, cp.Bus, cp.Config.Correlation, topology, cp.Log.For("correlation"))
	}
}

// New assembles every component against a shared clock and bus: bus and
// clock first, then aggregator, cache, correlation, the predictor
// registry (whose heuristic model reads aggregator snapshots), governor,
// ladder, scaler, alerts, and finally the dashboard, which only observes
// the bus. Nothing here feeds samples into the correlation engine.
func New(cfg config.Config, clk clock.Clock, registerer prometheus.Registerer, opts ...Option) *ControlPlane {
	if clk == nil {
		clk = clock.NewSystem()
	}
	log := logging.NewFromEnv("controlplane")

	cp := &ControlPlane{
		Config: cfg,
		Clock:  clk,
		Log:    log,
	}

	cp.Metrics = telemetrymetrics.New(registerer)
	cp.Bus = bus.New(clk, bus.Config{
		MaxHistory: cfg.Bus.MaxHistory,
		CallBudget: cfg.Bus.CallBudget,
		OnOverrun: func(topic string, took time.Duration) {
			cp.Metrics.RecordBusOverrun(topic)
			cp.Metrics.RecordBusDelivery(topic, took)
		},
	})

	cp.Aggregator = aggregator.New(cp.Clock, cp.Bus, cfg.Aggregator, log.For("aggregator"))
	cp.Cache = cache.New(cp.Clock, cp.Bus, cfg.Cache, log.For("cache"))
	cp.Correlation = correlation.New(cp.Clock, cp.Bus, cfg.Correlation, nil, log.For("correlation"))
	cp.Predictor = predictor.NewRegistry(cp.Clock, cfg.Predictor)
	cp.Predictor.Register(predictor.NewHeuristicModel(cp.Clock, "default_heuristic", "latency_p95_ms", func(module string) []float64 {
		snap := cp.Aggregator.HistogramSnapshotFor(module)
		if snap.Count == 0 {
			return nil
		}
		return []float64{snap.P95}
	}))

	cp.Governor = governor.New(cp.Clock, cp.Bus, cfg.BurnRate, nil, nil, log.For("governor"))
	cp.Ladder = ladder.New(cp.Clock, cp.Bus, ladder.Config{
		EscalationCooldown:    cfg.Ladder.EscalationCooldown,
		DeEscalationDelay:     cfg.Ladder.DeEscalationDelay,
		ManualOverrideTimeout: cfg.Ladder.ManualOverrideTimeout,
	}, ladder.DefaultLevels(), log.For("ladder"))

	cp.Scaler = scaler.New(cp.Clock, cp.Bus, cfg.Scaler, log.For("scaler"))
	cp.Alerts = alerts.New(cp.Clock, cp.Bus, alerts.DefaultDefinitions(), log.For("alerts"))
	cp.Dashboard = dashboard.New(cp.Clock, cp.Bus, cfg.Dashboard.HeartbeatInterval, log.For("dashboard"))

	for _, opt := range opts {
		opt(cp)
	}

	return cp
}

// Run starts every component's ticker and blocks until ctx is done.
// Components are started in the order listed below, each on its own
// goroutine; Shutdown cancels their shared context, so they stop
// together in no defined order.
func (cp *ControlPlane) Run(ctx context.Context) error {
	cp.mu.Lock()
	if cp.running {
		cp.mu.Unlock()
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	cp.cancel = cancel
	cp.running = true
	cp.mu.Unlock()

	ladderInterval := cp.Config.Ladder.EscalationCooldown
	if ladderInterval <= 0 {
		ladderInterval = 30 * time.Second
	}
	scalerInterval := cp.Config.Scaler.MonitoringInterval
	if scalerInterval <= 0 {
		scalerInterval = 30 * time.Second
	}
	alertInterval := 15 * time.Second
	reaperInterval := cp.Config.Dashboard.HeartbeatInterval
	if reaperInterval <= 0 {
		reaperInterval = 30 * time.Second
	}
	retrainInterval := cp.Config.Predictor.ModelRetrainingInterval
	if retrainInterval <= 0 {
		retrainInterval = time.Hour
	}

	components := []struct {
		name string
		run  func(context.Context)
	}{
		{"aggregator", func(c context.Context) { cp.Aggregator.Run(c) }},
		{"cache_cleanup", func(c context.Context) { cp.Cache.RunCleanup(c) }},
		{"cache_prefetch", func(c context.Context) { cp.Cache.RunPrefetch(c) }},
		{"correlation", func(c context.Context) { cp.Correlation.Run(c) }},
		{"governor", func(c context.Context) { cp.Governor.Run(c, cp.Config.Ladder.MaxDeferralTime) }},
		{"ladder", func(c context.Context) {
			clock.Run(c, cp.Clock, clock.Fixed(ladderInterval), func() { cp.Ladder.Evaluate(cp.ladderSignals()) })
		}},
		{"scaler", func(c context.Context) {
			clock.Run(c, cp.Clock, clock.Fixed(scalerInterval), cp.evaluateScaler)
		}},
		{"alerts", func(c context.Context) {
			clock.Run(c, cp.Clock, clock.Fixed(alertInterval), func() { cp.Alerts.Evaluate(cp.alertSignals()) })
		}},
		{"predictor", func(c context.Context) {
			clock.Run(c, cp.Clock, clock.Fixed(retrainInterval), func() { cp.Predictor.Train(false) })
		}},
		{"dashboard_reaper", func(c context.Context) { cp.Dashboard.RunReaper(reaperInterval, c.Done()) }},
	}

	for _, comp := range components {
		cp.Metrics.SetComponentUp(comp.name, true)
		go func(name string, run func(context.Context)) {
			run(runCtx)
			cp.Metrics.SetComponentUp(name, false)
		}(comp.name, comp.run)
	}

	<-runCtx.Done()
	return nil
}

// Shutdown cancels every component's ticker context.
func (cp *ControlPlane) Shutdown(_ context.Context) error {
	cp.mu.Lock()
	defer cp.mu.Unlock()
	if cp.cancel != nil {
		cp.cancel()
	}
	cp.running = false
	return nil
}

// ladderSignals derives the degradation ladder's Signals from the
// aggregator's rolling snapshot and the governor's last burn-rate
// calculation, aggregating per-operation figures to a single p95/error
// rate/utilization triple. The error rate is the worst per-operation
// error fraction (budget minus remaining budget); utilization is the
// higher of the governor's CPU and memory burn.
func (cp *ControlPlane) ladderSignals() ladder.Signals {
	snap := cp.Aggregator.Snapshot()
	var worstP95, worstErrRate float64
	for _, h := range snap.Histograms {
		if h.P95 > worstP95 {
			worstP95 = h.P95
		}
	}
	for _, eb := range snap.ErrorBudgets {
		if rate := eb.Budget - eb.Remaining; rate > worstErrRate {
			worstErrRate = rate
		}
	}
	burn := cp.Governor.Last()
	util := burn.CPUBurn
	if burn.MemBurn > util {
		util = burn.MemBurn
	}
	return ladder.Signals{
		BurnRate:     burn.OverallBurnRate,
		ErrorRate:    worstErrRate,
		LatencyP95Ms: worstP95,
		Utilization:  util,
	}
}

// alertSignals builds the flat name/value map the expression language
// evaluates the default alert conditions against.
func (cp *ControlPlane) alertSignals() expr.Signals {
	snap := cp.Aggregator.Snapshot()
	var p99, errRate, rps float64
	for _, h := range snap.Histograms {
		if h.P99 > p99 {
			p99 = h.P99
		}
	}
	for _, eb := range snap.ErrorBudgets {
		if rate := eb.Budget - eb.Remaining; rate > errRate {
			errRate = rate
		}
	}
	for _, t := range snap.Throughput {
		rps += t.RPS
	}
	burn := cp.Governor.Last()
	return expr.Signals{
		"latency_p99":        p99,
		"error_rate":         errRate,
		"throughput":         rps,
		"cpu_utilization":    burn.CPUBurn,
		"memory_utilization": burn.MemBurn,
	}
}

// evaluateScaler runs the scaling policies, redirection rules and
// optimization triggers once per module surfaced by the aggregator's
// throughput snapshot.
func (cp *ControlPlane) evaluateScaler() {
	snap := cp.Aggregator.Snapshot()
	for op, t := range snap.Throughput {
		eb := snap.ErrorBudgets[op]
		cp.Scaler.Evaluate(scaler.Signals{
			Module: op,
			Metrics: map[string]float64{
				"throughput": t.RPS,
				"error_burn": eb.BurnRate,
			},
			CurrentNodes: 1,
		})
	}
}

// PrometheusHandler exposes both the aggregator's domain metrics
// (hand-rolled text format per spec §4.2) and ambient self-observation
// (via the standard client_golang handler) on a mux.
func (cp *ControlPlane) PrometheusHandler(registerer *prometheus.Registry) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registerer, promhttp.HandlerOpts{}))
	mux.HandleFunc("/metrics/flows", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		_, _ = w.Write([]byte(cp.Aggregator.ExportPrometheus()))
	})
	mux.Handle("/dashboard", cp.Dashboard)
	return mux
}
