package ladder

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/flowgovernor/internal/bus"
	"github.com/R3E-Network/flowgovernor/internal/clock"
)

func newTestLadder(t *testing.T, mc *clock.Manual, b *bus.Bus) *Ladder {
	t.Helper()
	cfg := Config{EscalationCooldown: 120 * time.Second, DeEscalationDelay: 300 * time.Second, ManualOverrideTimeout: 30 * time.Minute}
	return New(mc, b, cfg, DefaultLevels(), nil)
}

// Escalation under sustained latency (spec §8 scenario 1): p95=3000ms
// sustained satisfies both level-1 and level-2 thresholds; the ladder
// steps 0→1→2 one level per escalationCooldown window, never skipping.
func TestEscalationUnderSustainedLatencySteps0To1To2(t *testing.T) {
	mc := clock.NewManual(time.Unix(0, 0))
	b := bus.New(mc, bus.DefaultConfig())

	var escalations []map[string]any
	b.Subscribe(TopicLevelEscalated, func(ev bus.Event) {
		escalations = append(escalations, ev.Data.(map[string]any))
	})

	l := newTestLadder(t, mc, b)
	signals := Signals{LatencyP95Ms: 3000}

	require.Equal(t, LevelNormal, l.Evaluate(signals))

	mc.Advance(120 * time.Second)
	require.Equal(t, LevelPerformanceOptimization, l.Evaluate(signals))

	// Cooldown not yet elapsed again: still level 1.
	mc.Advance(60 * time.Second)
	require.Equal(t, LevelPerformanceOptimization, l.Evaluate(signals))

	mc.Advance(60 * time.Second)
	require.Equal(t, LevelCostControl, l.Evaluate(signals))

	require.Len(t, escalations, 2)
	require.Equal(t, 0, escalations[0]["from"])
	require.Equal(t, 1, escalations[0]["to"])
	require.Equal(t, 1, escalations[1]["from"])
	require.Equal(t, 2, escalations[1]["to"])
}

// De-escalation after recovery (spec §8 scenario 2): from level 2,
// healthy metrics for 301s drop exactly one level, not two; a further
// 301s drops to 0.
func TestDeEscalationAfterRecoveryDropsOneLevelAtATime(t *testing.T) {
	mc := clock.NewManual(time.Unix(0, 0))
	b := bus.New(mc, bus.DefaultConfig())

	var deEscalations []map[string]any
	b.Subscribe(TopicLevelDeEscalated, func(ev bus.Event) {
		deEscalations = append(deEscalations, ev.Data.(map[string]any))
	})

	l := newTestLadder(t, mc, b)
	l.ManualEscalate(LevelCostControl)
	require.Equal(t, LevelCostControl, l.Current())

	healthy := Signals{LatencyP95Ms: 400, ErrorRate: 0.001, Utilization: 0.4}

	mc.Advance(301 * time.Second)
	require.Equal(t, LevelPerformanceOptimization, l.Evaluate(healthy))

	mc.Advance(301 * time.Second)
	require.Equal(t, LevelNormal, l.Evaluate(healthy))

	require.Len(t, deEscalations, 2)
	require.Equal(t, 2, deEscalations[0]["from"])
	require.Equal(t, 1, deEscalations[0]["to"])
	require.Equal(t, 1, deEscalations[1]["from"])
	require.Equal(t, 0, deEscalations[1]["to"])
}

func TestDeEscalationBeforeDelayDoesNotDrop(t *testing.T) {
	mc := clock.NewManual(time.Unix(0, 0))
	b := bus.New(mc, bus.DefaultConfig())
	l := newTestLadder(t, mc, b)
	l.ManualEscalate(LevelCostControl)

	healthy := Signals{LatencyP95Ms: 400, ErrorRate: 0.001, Utilization: 0.4}
	mc.Advance(299 * time.Second)
	require.Equal(t, LevelCostControl, l.Evaluate(healthy))
}

func TestManualOverrideDisablesAutomaticEscalation(t *testing.T) {
	mc := clock.NewManual(time.Unix(0, 0))
	b := bus.New(mc, bus.DefaultConfig())
	l := newTestLadder(t, mc, b)

	l.ManualEscalate(LevelNormal) // sets override without changing level
	require.Equal(t, LevelNormal, l.Current())

	signals := Signals{LatencyP95Ms: 6000, ErrorRate: 0.5, Utilization: 0.99}
	mc.Advance(10 * time.Minute)
	require.Equal(t, LevelNormal, l.Evaluate(signals))

	// After the override expires, automatic escalation resumes.
	mc.Advance(21 * time.Minute)
	require.Equal(t, LevelPerformanceOptimization, l.Evaluate(signals))
}

func TestCurrentLevelAlwaysInBounds(t *testing.T) {
	mc := clock.NewManual(time.Unix(0, 0))
	b := bus.New(mc, bus.DefaultConfig())
	l := newTestLadder(t, mc, b)

	for i := 0; i < 10; i++ {
		mc.Advance(time.Hour)
		l.Evaluate(Signals{LatencyP95Ms: 9000, ErrorRate: 1, Utilization: 1})
	}
	require.GreaterOrEqual(t, int(l.Current()), 0)
	require.LessOrEqual(t, int(l.Current()), LevelCount-1)
}

func TestLevelActionBundleEmittedOnEscalation(t *testing.T) {
	mc := clock.NewManual(time.Unix(0, 0))
	b := bus.New(mc, bus.DefaultConfig())

	var deferSteps []bus.Event
	b.Subscribe(TopicActionDeferSteps, func(ev bus.Event) { deferSteps = append(deferSteps, ev) })

	l := newTestLadder(t, mc, b)
	l.ManualEscalate(LevelPerformanceOptimization)

	require.Len(t, deferSteps, 1)
}

func TestActionsExecutedEmittedOnEveryTransition(t *testing.T) {
	mc := clock.NewManual(time.Unix(0, 0))
	b := bus.New(mc, bus.DefaultConfig())

	var executed []map[string]any
	b.Subscribe(TopicActionsExecuted, func(ev bus.Event) {
		executed = append(executed, ev.Data.(map[string]any))
	})

	l := newTestLadder(t, mc, b)
	l.ManualEscalate(LevelPerformanceOptimization)

	require.Len(t, executed, 1)
	require.Equal(t, 1, executed[0]["level"])
}

func TestManualOverrideExpiredPublishedOnceOverrideWindowElapses(t *testing.T) {
	mc := clock.NewManual(time.Unix(0, 0))
	b := bus.New(mc, bus.DefaultConfig())

	var expired []map[string]any
	b.Subscribe(TopicManualOverrideExpired, func(ev bus.Event) {
		expired = append(expired, ev.Data.(map[string]any))
	})

	l := newTestLadder(t, mc, b)
	l.ManualEscalate(LevelNormal) // sets a 30-minute override without changing level

	signals := Signals{LatencyP95Ms: 6000, ErrorRate: 0.5, Utilization: 0.99}
	mc.Advance(10 * time.Minute)
	l.Evaluate(signals)
	require.Empty(t, expired)

	mc.Advance(21 * time.Minute) // total 31 minutes, past the 30-minute override
	l.Evaluate(signals)
	require.Len(t, expired, 1)
}
