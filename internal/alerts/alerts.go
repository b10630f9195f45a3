// Package alerts evaluates the closed expression-language conditions
// of spec §6's default alert thresholds against live signal snapshots,
// emitting alert_fired/alert_cleared with per-alert cooldown.
package alerts

import (
	"sync"
	"time"

	"github.com/R3E-Network/flowgovernor/internal/bus"
	"github.com/R3E-Network/flowgovernor/internal/clock"
	"github.com/R3E-Network/flowgovernor/internal/expr"
	"github.com/R3E-Network/flowgovernor/internal/telemetry/logging"
)

const (
	TopicAlertFired   = "alert_fired"
	TopicAlertCleared = "alert_cleared"
)

// Definition binds a name to a closed-language condition and a
// cooldown between re-firings (spec §6: 2-10 min per alert).
type Definition struct {
	Name      string
	Condition *expr.Expression
	Cooldown  time.Duration
}

// DefaultDefinitions returns spec §6's four default alert thresholds.
func DefaultDefinitions() []Definition {
	return []Definition{
		{Name: "high_latency_alert", Condition: expr.MustParse("latency_p99 > 5000"), Cooldown: 5 * time.Minute},
		{Name: "high_error_rate_alert", Condition: expr.MustParse("error_rate > 0.05"), Cooldown: 5 * time.Minute},
		{Name: "low_throughput_alert", Condition: expr.MustParse("throughput < 5"), Cooldown: 10 * time.Minute},
		{Name: "resource_exhaustion_alert", Condition: expr.MustParse("cpu_utilization > 0.9 OR memory_utilization > 0.9"), Cooldown: 2 * time.Minute},
	}
}

// Manager evaluates a fixed set of alert definitions against a signal
// snapshot on each tick, tracking per-alert firing state and cooldown.
type Manager struct {
	clock clock.Clock
	bus   *bus.Bus
	log   *logging.Logger

	defs []Definition

	mu     sync.Mutex
	firing map[string]bool
	lastAt map[string]int64
}

// New creates a Manager. defs defaults to DefaultDefinitions when nil.
func New(clk clock.Clock, b *bus.Bus, defs []Definition, log *logging.Logger) *Manager {
	if log == nil {
		log = logging.New("alerts", "info", "json")
	}
	if defs == nil {
		defs = DefaultDefinitions()
	}
	return &Manager{
		clock:  clk,
		bus:    b,
		log:    log,
		defs:   defs,
		firing: make(map[string]bool),
		lastAt: make(map[string]int64),
	}
}

// Evaluate runs every definition's condition against signals, firing
// alert_fired on a rising edge (respecting cooldown) and alert_cleared
// on a falling edge.
func (m *Manager) Evaluate(signals expr.Signals) {
	now := m.clock.NowMs()

	for _, d := range m.defs {
		matched, err := d.Condition.Evaluate(signals)
		if err != nil {
			m.log.WithError(err).WithFields(map[string]any{"alert": d.Name}).Warn("alerts: condition evaluation failed")
			continue
		}

		m.mu.Lock()
		wasFiring := m.firing[d.Name]
		m.mu.Unlock()

		switch {
		case matched && !wasFiring:
			m.mu.Lock()
			last, seen := m.lastAt[d.Name]
			if seen && d.Cooldown > 0 && now-last < d.Cooldown.Milliseconds() {
				m.mu.Unlock()
				continue
			}
			m.firing[d.Name] = true
			m.lastAt[d.Name] = now
			m.mu.Unlock()
			m.publish(TopicAlertFired, map[string]any{"alert": d.Name})
		case !matched && wasFiring:
			m.mu.Lock()
			m.firing[d.Name] = false
			m.mu.Unlock()
			m.publish(TopicAlertCleared, map[string]any{"alert": d.Name})
		}
	}
}

// Firing returns the current set of alerts actively firing.
func (m *Manager) Firing() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for name, on := range m.firing {
		if on {
			out = append(out, name)
		}
	}
	return out
}

func (m *Manager) publish(topic string, data any) {
	if m.bus == nil {
		return
	}
	m.bus.Publish(topic, data)
}
