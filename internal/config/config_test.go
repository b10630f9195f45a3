package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaultMatchesSpecDefaults(t *testing.T) {
	cfg := Default()

	require.Equal(t, 0.999, cfg.Aggregator.SLOTargets.Availability)
	require.Equal(t, 60*time.Second, cfg.Aggregator.AggregationInterval)
	require.Equal(t, 0.9, cfg.BurnRate.MaxBurnRateThreshold)
	require.Equal(t, 120*time.Second, cfg.Ladder.EscalationCooldown)
	require.Equal(t, 300*time.Second, cfg.Ladder.DeEscalationDelay)
	require.Equal(t, 30*time.Minute, cfg.Ladder.ManualOverrideTimeout)
	require.Equal(t, 30*time.Minute, cfg.Ladder.MaxDeferralTime)
	require.Equal(t, int64(100*1024*1024), cfg.Cache.MaxSizeBytes)
	require.Equal(t, 10_000, cfg.Cache.MaxEntries)
	require.Equal(t, 30, cfg.Correlation.MinDataPointsForCorrelation)
	require.Equal(t, 100.0, cfg.BurnRate.CostLimits.Hourly)
}

func TestLoadWithoutPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, Default().BurnRate.MaxBurnRateThreshold, cfg.BurnRate.MaxBurnRateThreshold)
}

func TestLoadReadsYAMLOverlayOnDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
burn_rate:
  max_burn_rate_threshold: 0.75
cache:
  max_entries: 500
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 0.75, cfg.BurnRate.MaxBurnRateThreshold)
	require.Equal(t, 500, cfg.Cache.MaxEntries)
	// Untouched fields keep their defaults.
	require.Equal(t, 120*time.Second, cfg.Ladder.EscalationCooldown)
}

func TestLoadReturnsErrorForMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	require.Error(t, err)
}

func TestLoadReturnsErrorForInvalidYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("not: [valid yaml"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
}

func TestEnvOverridesApplyOverYAMLAndDefaults(t *testing.T) {
	t.Setenv("FLOWGOVERNOR_MAX_BURN_RATE_THRESHOLD", "0.5")
	t.Setenv("FLOWGOVERNOR_COST_LIMIT_HOURLY", "250")
	t.Setenv("FLOWGOVERNOR_ESCALATION_COOLDOWN", "90s")
	t.Setenv("FLOWGOVERNOR_DE_ESCALATION_DELAY", "600s")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, 0.5, cfg.BurnRate.MaxBurnRateThreshold)
	require.Equal(t, 250.0, cfg.BurnRate.CostLimits.Hourly)
	require.Equal(t, 90*time.Second, cfg.Ladder.EscalationCooldown)
	require.Equal(t, 600*time.Second, cfg.Ladder.DeEscalationDelay)
}

func TestInvalidEnvOverrideIsIgnored(t *testing.T) {
	t.Setenv("FLOWGOVERNOR_MAX_BURN_RATE_THRESHOLD", "not-a-number")
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, Default().BurnRate.MaxBurnRateThreshold, cfg.BurnRate.MaxBurnRateThreshold)
}
