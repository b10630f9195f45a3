// Package config enumerates every tunable named in spec §6, loaded from
// YAML with environment overlay the way the teacher's infrastructure/config
// layers file and env sources.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Aggregator configures the Metrics Aggregator (spec §6).
type Aggregator struct {
	MetricsRetentionPeriod time.Duration `yaml:"metrics_retention_period"`
	AggregationInterval    time.Duration `yaml:"aggregation_interval"`
	MaxSeriesPoints        int           `yaml:"max_series_points"`
	ErrorBudgetWindow      time.Duration `yaml:"error_budget_window"`
	SLOTargets             SLOTargets    `yaml:"slo_targets"`
	MaxHistogramSize       int           `yaml:"max_histogram_size"`
}

type SLOTargets struct {
	Availability float64 `yaml:"availability"`
	LatencyP99Ms float64 `yaml:"latency_p99_ms"`
	ErrorRate    float64 `yaml:"error_rate"`
}

// Cache configures the Intelligent Cache (spec §4.3, §6).
type Cache struct {
	MaxSizeBytes      int64         `yaml:"max_size_bytes"`
	MaxEntries        int           `yaml:"max_entries"`
	DefaultTTL        time.Duration `yaml:"default_ttl"`
	CleanupInterval   time.Duration `yaml:"cleanup_interval"`
	EnablePredictive  bool          `yaml:"enable_predictive"`
	EnableCompression bool          `yaml:"enable_compression"`
	PrefetchInterval  time.Duration `yaml:"prefetch_interval"`
	PrefetchHorizon   time.Duration `yaml:"prefetch_horizon"`
}

// Correlation configures the Correlation Engine (spec §4.4, §6).
type Correlation struct {
	CorrelationWindowSize       time.Duration `yaml:"correlation_window_size"`
	MinDataPointsForCorrelation int           `yaml:"min_data_points_for_correlation"`
	UpdateInterval              time.Duration `yaml:"update_interval"`
}

// CostLimits bounds hourly/daily/monthly spend (spec §6).
type CostLimits struct {
	Hourly  float64 `yaml:"hourly"`
	Daily   float64 `yaml:"daily"`
	Monthly float64 `yaml:"monthly"`
}

// BurnRate configures the Burn-Rate Governor (spec §4.5, §6).
type BurnRate struct {
	CalculationInterval        time.Duration `yaml:"calculation_interval"`
	MaxBurnRateThreshold        float64       `yaml:"max_burn_rate_threshold"`
	GracefulDegradationEnabled  bool          `yaml:"graceful_degradation_enabled"`
	CostLimits                  CostLimits    `yaml:"cost_limits"`
}

// Ladder configures the Degradation Ladder (spec §4.5, §6).
type Ladder struct {
	EscalationCooldown    time.Duration `yaml:"escalation_cooldown"`
	DeEscalationDelay     time.Duration `yaml:"de_escalation_delay"`
	ManualOverrideTimeout time.Duration `yaml:"manual_override_timeout"`
	MaxDeferralTime       time.Duration `yaml:"max_deferral_time"`
}

// Scaler configures the Adaptive Scaler & Redirector (spec §4.6, §6).
type Scaler struct {
	MonitoringInterval       time.Duration `yaml:"monitoring_interval"`
	ScalingCooldown          time.Duration `yaml:"scaling_cooldown"`
	MaxConcurrentActions     int           `yaml:"max_concurrent_actions"`
	PerformanceBurnThreshold float64       `yaml:"performance_burn_threshold"`
}

// Predictor configures the pluggable Predictor interface (spec §4.7).
type Predictor struct {
	ModelRetrainingInterval time.Duration `yaml:"model_retraining_interval"`
	ForecastCacheTimeout    time.Duration `yaml:"forecast_cache_timeout"`
}

// Dashboard configures the Dashboard Stream (spec §4.8).
type Dashboard struct {
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	WriteTimeout      time.Duration `yaml:"write_timeout"`
}

// Bus configures the EventBus (spec §4.1, §5).
type Bus struct {
	MaxHistory int           `yaml:"max_history"`
	CallBudget time.Duration `yaml:"call_budget"`
}

// Config is the full, enumerated tunable set for the control plane.
type Config struct {
	Aggregator  Aggregator  `yaml:"aggregator"`
	Cache       Cache       `yaml:"cache"`
	Correlation Correlation `yaml:"correlation"`
	BurnRate    BurnRate    `yaml:"burn_rate"`
	Ladder      Ladder      `yaml:"ladder"`
	Scaler      Scaler      `yaml:"scaler"`
	Predictor   Predictor   `yaml:"predictor"`
	Dashboard   Dashboard   `yaml:"dashboard"`
	Bus         Bus         `yaml:"bus"`

	ValidationTimeout time.Duration `yaml:"validation_timeout"`
}

// Default returns the configuration with every default from spec §6.
func Default() Config {
	return Config{
		Aggregator: Aggregator{
			MetricsRetentionPeriod: 24 * time.Hour,
			AggregationInterval:    60 * time.Second,
			MaxSeriesPoints:        10_000,
			ErrorBudgetWindow:      30 * 24 * time.Hour,
			SLOTargets: SLOTargets{
				Availability: 0.999,
				LatencyP99Ms: 2000,
				ErrorRate:    0.001,
			},
			MaxHistogramSize: 1_000,
		},
		Cache: Cache{
			MaxSizeBytes:      100 * 1024 * 1024,
			MaxEntries:        10_000,
			DefaultTTL:        30 * time.Minute,
			CleanupInterval:   5 * time.Minute,
			EnablePredictive:  true,
			EnableCompression: false,
			PrefetchInterval:  2 * time.Minute,
			PrefetchHorizon:   5 * time.Minute,
		},
		Correlation: Correlation{
			CorrelationWindowSize:       time.Hour,
			MinDataPointsForCorrelation: 30,
			UpdateInterval:              60 * time.Second,
		},
		BurnRate: BurnRate{
			CalculationInterval:       30 * time.Second,
			MaxBurnRateThreshold:      0.9,
			GracefulDegradationEnabled: true,
			CostLimits: CostLimits{
				Hourly:  100,
				Daily:   2000,
				Monthly: 50000,
			},
		},
		Ladder: Ladder{
			EscalationCooldown:    120 * time.Second,
			DeEscalationDelay:     300 * time.Second,
			ManualOverrideTimeout: 30 * time.Minute,
			MaxDeferralTime:       30 * time.Minute,
		},
		Scaler: Scaler{
			MonitoringInterval:       30 * time.Second,
			ScalingCooldown:          300 * time.Second,
			MaxConcurrentActions:     3,
			PerformanceBurnThreshold: 0.8,
		},
		Predictor: Predictor{
			ModelRetrainingInterval: time.Hour,
			ForecastCacheTimeout:    5 * time.Minute,
		},
		Dashboard: Dashboard{
			HeartbeatInterval: 30 * time.Second,
			WriteTimeout:      5 * time.Second,
		},
		Bus: Bus{
			MaxHistory: 10_000,
			CallBudget: 5 * time.Millisecond,
		},
		ValidationTimeout: 30 * time.Second,
	}
}

// Load reads a YAML config file over the defaults, then applies
// FLOWGOVERNOR_-prefixed environment overrides for a handful of
// operationally hot knobs (mirrors the teacher's file+env layering).
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	applyEnvOverrides(&cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v, ok := envFloat("FLOWGOVERNOR_MAX_BURN_RATE_THRESHOLD"); ok {
		cfg.BurnRate.MaxBurnRateThreshold = v
	}
	if v, ok := envFloat("FLOWGOVERNOR_COST_LIMIT_HOURLY"); ok {
		cfg.BurnRate.CostLimits.Hourly = v
	}
	if v, ok := envDuration("FLOWGOVERNOR_ESCALATION_COOLDOWN"); ok {
		cfg.Ladder.EscalationCooldown = v
	}
	if v, ok := envDuration("FLOWGOVERNOR_DE_ESCALATION_DELAY"); ok {
		cfg.Ladder.DeEscalationDelay = v
	}
}

func envFloat(key string) (float64, bool) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func envDuration(key string) (time.Duration, bool) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return 0, false
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, false
	}
	return d, true
}
