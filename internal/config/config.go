// Package config loads engine configuration from environment variables with
// typed accessors and documented defaults: plain env vars for deployment
// knobs, a small struct of thresholds for anything tunable.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds every environment-driven and threshold knob the engine
// tunes. Zero values are never used directly; New populates defaults.
type Config struct {
	// External collaborators (spec §6).
	LLMBackendHost   string
	LLMModel         string
	RelStoreHost     string
	RelStoreDB       string
	RelStoreUser     string
	RelStorePassword string
	DocStoreHost     string
	VectorIndexHost  string
	RedisAddr        string
	ToolDirectory    string

	// Orchestrator thresholds (spec §4.1).
	CacheSimilarityThreshold   float64
	PatternSimilarityThreshold float64

	// Error recovery thresholds (spec §4.2).
	RetryBaseBackoff time.Duration
	RetryFactor      float64
	RetryCap         int
	FallbackCap      int

	// Lifecycle manager thresholds (spec §4.5).
	ArchiveAfter        time.Duration
	ArchiveUsageBelow   int
	AlertSuccessRateMin float64
	AlertUsesMin        int

	// Improvement engine gates (spec §4.6).
	ShadowAgreementMin float64
	ReplayPassMin      float64
	SyntheticPassMin   float64
	ReplaySampleSize   int

	// Deployment monitor windows (spec §4.7).
	MonitoringWindow    time.Duration
	BaselineWindow      time.Duration
	FastRollbackWindow  time.Duration
	RegressionThreshold float64
	MinExecutions       int

	// Autonomous loop cadence (spec §4.8).
	CheckInterval            time.Duration
	MaintenanceInterval      time.Duration
	ImprovementThreshold     float64
	MinExecutionsForAnalysis int
	MaxOpportunitiesPerCycle int

	// Sandbox (spec §5).
	ToolTimeout time.Duration
}

// New returns a Config populated from environment variables, falling back to
// documented defaults wherever a variable is unset.
func New() Config {
	return Config{
		LLMBackendHost:   getenv("DENDRITE_LLM_HOST", "localhost:11434"),
		LLMModel:         getenv("DENDRITE_LLM_MODEL", "claude-sonnet"),
		RelStoreHost:     getenv("DENDRITE_DB_HOST", "localhost:5432"),
		RelStoreDB:       getenv("DENDRITE_DB_NAME", "dendrite"),
		RelStoreUser:     getenv("DENDRITE_DB_USER", "dendrite"),
		RelStorePassword: getenv("DENDRITE_DB_PASSWORD", ""),
		DocStoreHost:     getenv("DENDRITE_DOCSTORE_HOST", "localhost:27017"),
		VectorIndexHost:  getenv("DENDRITE_VECTOR_HOST", "localhost:6334"),
		RedisAddr:        getenv("DENDRITE_REDIS_ADDR", "localhost:6379"),
		ToolDirectory:    getenv("DENDRITE_TOOL_DIR", "./tools"),

		CacheSimilarityThreshold:   getfloat("DENDRITE_CACHE_THRESHOLD", 0.90),
		PatternSimilarityThreshold: getfloat("DENDRITE_PATTERN_THRESHOLD", 0.80),

		RetryBaseBackoff: getduration("DENDRITE_RETRY_BASE", 1*time.Second),
		RetryFactor:      getfloat("DENDRITE_RETRY_FACTOR", 2.0),
		RetryCap:         getint("DENDRITE_RETRY_CAP", 3),
		FallbackCap:      getint("DENDRITE_FALLBACK_CAP", 2),

		ArchiveAfter:        getduration("DENDRITE_ARCHIVE_AFTER", 90*24*time.Hour),
		ArchiveUsageBelow:   getint("DENDRITE_ARCHIVE_USAGE_BELOW", 10),
		AlertSuccessRateMin: getfloat("DENDRITE_ALERT_SUCCESS_MIN", 0.85),
		AlertUsesMin:        getint("DENDRITE_ALERT_USES_MIN", 20),

		ShadowAgreementMin: getfloat("DENDRITE_SHADOW_AGREEMENT_MIN", 0.95),
		ReplayPassMin:      getfloat("DENDRITE_REPLAY_PASS_MIN", 0.90),
		SyntheticPassMin:   getfloat("DENDRITE_SYNTHETIC_PASS_MIN", 1.0),
		ReplaySampleSize:   getint("DENDRITE_REPLAY_SAMPLE_SIZE", 50),

		MonitoringWindow:    getduration("DENDRITE_MONITOR_WINDOW", 24*time.Hour),
		BaselineWindow:      getduration("DENDRITE_BASELINE_WINDOW", 7*24*time.Hour),
		FastRollbackWindow:  getduration("DENDRITE_FAST_WINDOW", 1*time.Hour),
		RegressionThreshold: getfloat("DENDRITE_REGRESSION_THRESHOLD", 0.15),
		MinExecutions:       getint("DENDRITE_MIN_EXECUTIONS", 10),

		CheckInterval:            getduration("DENDRITE_CHECK_INTERVAL", 5*time.Minute),
		MaintenanceInterval:      getduration("DENDRITE_MAINTENANCE_INTERVAL", 24*time.Hour),
		ImprovementThreshold:     getfloat("DENDRITE_IMPROVEMENT_THRESHOLD", 0.70),
		MinExecutionsForAnalysis: getint("DENDRITE_MIN_EXECUTIONS_FOR_ANALYSIS", 20),
		MaxOpportunitiesPerCycle: getint("DENDRITE_MAX_OPPORTUNITIES_PER_CYCLE", 3),

		ToolTimeout: getduration("DENDRITE_TOOL_TIMEOUT", 30*time.Second),
	}
}

// overlay is the subset of Config an operator can override via YAML file,
// layered on top of the environment-derived defaults (spec §6: "env vars
// plus optional YAML overrides").
type overlay struct {
	CacheSimilarityThreshold   *float64 `yaml:"cache_similarity_threshold"`
	PatternSimilarityThreshold *float64 `yaml:"pattern_similarity_threshold"`
	ImprovementThreshold       *float64 `yaml:"improvement_threshold"`
	CheckInterval              *string  `yaml:"check_interval"`
	MaintenanceInterval        *string  `yaml:"maintenance_interval"`
}

// ApplyYAMLFile layers YAML overrides from path onto cfg, returning the
// merged Config. A missing file is not an error: YAML overlays are optional.
func ApplyYAMLFile(cfg Config, path string) (Config, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}
	var o overlay
	if err := yaml.Unmarshal(data, &o); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if o.CacheSimilarityThreshold != nil {
		cfg.CacheSimilarityThreshold = *o.CacheSimilarityThreshold
	}
	if o.PatternSimilarityThreshold != nil {
		cfg.PatternSimilarityThreshold = *o.PatternSimilarityThreshold
	}
	if o.ImprovementThreshold != nil {
		cfg.ImprovementThreshold = *o.ImprovementThreshold
	}
	if o.CheckInterval != nil {
		if d, err := time.ParseDuration(*o.CheckInterval); err == nil {
			cfg.CheckInterval = d
		}
	}
	if o.MaintenanceInterval != nil {
		if d, err := time.ParseDuration(*o.MaintenanceInterval); err == nil {
			cfg.MaintenanceInterval = d
		}
	}
	return cfg, nil
}

func getenv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getfloat(key string, fallback float64) float64 {
	if v, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getint(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getduration(key string, fallback time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
