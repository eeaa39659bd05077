// Package config loads the core configuration from YAML with environment
// overrides. Every knob has a production default so an empty file is a
// valid configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to every environment override key.
const EnvPrefix = "OPS_"

// Config is the full configuration surface of the reasoning core.
type Config struct {
	Ingest     IngestConfig     `yaml:"ingest"`
	Cache      CacheConfig      `yaml:"cache"`
	Decision   DecisionConfig   `yaml:"decision"`
	Review     ReviewConfig     `yaml:"review"`
	Dispatch   DispatchConfig   `yaml:"dispatch"`
	Oracle     OracleConfig     `yaml:"oracle"`
	Patterns   PatternsConfig   `yaml:"patterns"`
	Prompts    PromptsConfig    `yaml:"prompts"`
	Snapshot   SnapshotConfig   `yaml:"snapshot"`
	HTTP       HTTPConfig       `yaml:"http"`
	Storage    StorageConfig    `yaml:"storage"`
	Bus        BusConfig        `yaml:"bus"`
	Duplicates DuplicatesConfig `yaml:"duplicates"`
}

// IngestConfig bounds the signal queue and the rolling-window rate limit.
type IngestConfig struct {
	QueueCapacity   int           `yaml:"queue_capacity"`
	RateLimitN      int           `yaml:"rate_limit_n"`
	RateLimitWindow time.Duration `yaml:"rate_limit_window"`
}

// CacheConfig bounds the classification cache.
type CacheConfig struct {
	MaxSize int           `yaml:"max_size"`
	TTL     time.Duration `yaml:"ttl"`
}

// DecisionConfig holds decision-engine thresholds.
type DecisionConfig struct {
	ConfidenceApprovalThreshold float64       `yaml:"confidence_approval_threshold"`
	CriticalSLA                 time.Duration `yaml:"critical_sla"`
	DefaultTaskDue              time.Duration `yaml:"default_task_due"`
}

// ReviewConfig controls the approval queue.
type ReviewConfig struct {
	MaxTTL         time.Duration `yaml:"max_ttl"`
	Tick           time.Duration `yaml:"tick"`
	TimeoutApprove bool          `yaml:"timeout_approve"` // default false: timeout rejects
}

// DispatchConfig controls executor retry and per-platform rate limits.
type DispatchConfig struct {
	MaxAttempts    int                      `yaml:"max_attempts"`
	BaseBackoff    time.Duration            `yaml:"base_backoff"`
	ExecTimeout    time.Duration            `yaml:"exec_timeout"`
	PlatformLimits map[string]time.Duration `yaml:"platform_limits"` // min interval between calls
}

// OracleConfig controls the classifier's model calls.
type OracleConfig struct {
	BaseURL     string        `yaml:"base_url"`
	Model       string        `yaml:"model"`
	Timeout     time.Duration `yaml:"timeout"`
	MaxAttempts int           `yaml:"max_attempts"`
	BaseBackoff time.Duration `yaml:"base_backoff"`
}

// PatternsConfig holds learning thresholds.
type PatternsConfig struct {
	SenderThreshold   int     `yaml:"sender_threshold"`
	KeywordThreshold  int     `yaml:"keyword_threshold"`
	TimeThreshold     int     `yaml:"time_threshold"`
	TimeLift          float64 `yaml:"time_lift"` // success-rate lift over baseline
	AffinityThreshold int     `yaml:"affinity_threshold"`
	AffinityRate      float64 `yaml:"affinity_rate"`
}

// PromptsConfig bounds the prompt optimizer.
type PromptsConfig struct {
	MaxExamples          int     `yaml:"max_examples"`
	ABEvaluations        int     `yaml:"ab_evaluations"`
	DegradationRollback  float64 `yaml:"degradation_rollback"` // percentage points
	LowConfidenceCutoff  float64 `yaml:"low_confidence_cutoff"`
	HighConfidenceCutoff float64 `yaml:"high_confidence_cutoff"`
}

// SnapshotConfig controls the dashboard feed.
type SnapshotConfig struct {
	CacheTTL        time.Duration `yaml:"cache_ttl"`
	RecentDecisions int           `yaml:"recent_decisions"`
}

// HTTPConfig controls the read-only API server.
type HTTPConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// StorageConfig locates persisted learning state.
type StorageConfig struct {
	FeedbackLogPath     string `yaml:"feedback_log_path"`
	PatternSnapshotPath string `yaml:"pattern_snapshot_path"`
	PromptRegistryPath  string `yaml:"prompt_registry_path"`
	RedisAddr           string `yaml:"redis_addr"` // empty disables the Redis mirror
	RedisDB             int    `yaml:"redis_db"`
}

// BusConfig bounds the event bus.
type BusConfig struct {
	HistorySize          int           `yaml:"history_size"`
	MaxReconnectAttempts int           `yaml:"max_reconnect_attempts"`
	ReconnectBaseBackoff time.Duration `yaml:"reconnect_base_backoff"`
}

// DuplicatesConfig bounds the duplicate index.
type DuplicatesConfig struct {
	Threshold  float64 `yaml:"threshold"`
	CorpusSize int     `yaml:"corpus_size"`
}

// Default returns the production defaults.
func Default() Config {
	return Config{
		Ingest: IngestConfig{
			QueueCapacity:   1000,
			RateLimitN:      10,
			RateLimitWindow: 60 * time.Second,
		},
		Cache: CacheConfig{
			MaxSize: 1000,
			TTL:     time.Hour,
		},
		Decision: DecisionConfig{
			ConfidenceApprovalThreshold: 0.60,
			CriticalSLA:                 4 * time.Hour,
			DefaultTaskDue:              7 * 24 * time.Hour,
		},
		Review: ReviewConfig{
			MaxTTL:         time.Hour,
			Tick:           60 * time.Second,
			TimeoutApprove: false,
		},
		Dispatch: DispatchConfig{
			MaxAttempts: 3,
			BaseBackoff: 500 * time.Millisecond,
			ExecTimeout: 30 * time.Second,
			PlatformLimits: map[string]time.Duration{
				"chat":         time.Second,
				"task-tracker": 300 * time.Millisecond,
				"filesystem":   200 * time.Millisecond,
				"spreadsheet":  time.Second,
				"calendar":     time.Second,
			},
		},
		Oracle: OracleConfig{
			Timeout:     30 * time.Second,
			MaxAttempts: 3,
			BaseBackoff: 250 * time.Millisecond,
		},
		Patterns: PatternsConfig{
			SenderThreshold:   10,
			KeywordThreshold:  5,
			TimeThreshold:     20,
			TimeLift:          0.20,
			AffinityThreshold: 10,
			AffinityRate:      0.80,
		},
		Prompts: PromptsConfig{
			MaxExamples:          10,
			ABEvaluations:        20,
			DegradationRollback:  10,
			LowConfidenceCutoff:  0.60,
			HighConfidenceCutoff: 0.80,
		},
		Snapshot: SnapshotConfig{
			CacheTTL:        5 * time.Second,
			RecentDecisions: 100,
		},
		HTTP: HTTPConfig{
			Host: "127.0.0.1",
			Port: 8090,
		},
		Storage: StorageConfig{
			FeedbackLogPath:     "data/feedback.jsonl",
			PatternSnapshotPath: "data/patterns.json",
			PromptRegistryPath:  "data/prompts.jsonl",
		},
		Bus: BusConfig{
			HistorySize:          100,
			MaxReconnectAttempts: 5,
			ReconnectBaseBackoff: time.Second,
		},
		Duplicates: DuplicatesConfig{
			Threshold:  0.85,
			CorpusSize: 500,
		},
	}
}

// Load reads the YAML file at path (missing file means defaults), applies
// environment overrides, and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, fmt.Errorf("read config %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// applyEnv maps the documented environment keys onto the config.
func applyEnv(cfg *Config) {
	if v, ok := envInt("CACHE_MAX_SIZE"); ok {
		cfg.Cache.MaxSize = v
	}
	if v, ok := envDurationMS("CACHE_TTL_MS"); ok {
		cfg.Cache.TTL = v
	}
	if v, ok := envFloat("DUPLICATE_THRESHOLD"); ok {
		cfg.Duplicates.Threshold = v
	}
	if v, ok := envFloat("CONFIDENCE_APPROVAL_THRESHOLD"); ok {
		cfg.Decision.ConfidenceApprovalThreshold = v
	}
	if v, ok := envInt("RATE_LIMIT_N"); ok {
		cfg.Ingest.RateLimitN = v
	}
	if v, ok := envDurationMS("RATE_LIMIT_WINDOW_MS"); ok {
		cfg.Ingest.RateLimitWindow = v
	}
	if v, ok := envInt("QUEUE_CAPACITY"); ok {
		cfg.Ingest.QueueCapacity = v
	}
	if v, ok := envDurationMS("MAX_REVIEW_TTL_MS"); ok {
		cfg.Review.MaxTTL = v
	}
	if v, ok := envInt("MAX_EXECUTOR_ATTEMPTS"); ok {
		cfg.Dispatch.MaxAttempts = v
	}
	if v, ok := envInt("PATTERN_SENDER_THRESHOLD"); ok {
		cfg.Patterns.SenderThreshold = v
	}
	if v, ok := envInt("PATTERN_KEYWORD_THRESHOLD"); ok {
		cfg.Patterns.KeywordThreshold = v
	}
	if v, ok := envInt("PROMPT_MAX_EXAMPLES"); ok {
		cfg.Prompts.MaxExamples = v
	}
	if v, ok := envFloat("AB_DEGRADATION_ROLLBACK_PP"); ok {
		cfg.Prompts.DegradationRollback = v
	}
	if v := os.Getenv(EnvPrefix + "REDIS_ADDR"); v != "" {
		cfg.Storage.RedisAddr = v
	}
	if v := os.Getenv(EnvPrefix + "ORACLE_BASE_URL"); v != "" {
		cfg.Oracle.BaseURL = v
	}
	if v := os.Getenv(EnvPrefix + "ORACLE_MODEL"); v != "" {
		cfg.Oracle.Model = v
	}
	if v, ok := envDurationMS("EXECUTOR_RATE_LIMIT_MS"); ok {
		// Applies the same minimum interval to every platform.
		for platform := range cfg.Dispatch.PlatformLimits {
			cfg.Dispatch.PlatformLimits[platform] = v
		}
	}
}

// Validate rejects configurations the core cannot run with.
func (c Config) Validate() error {
	if c.Ingest.QueueCapacity <= 0 {
		return fmt.Errorf("ingest.queue_capacity must be positive, got %d", c.Ingest.QueueCapacity)
	}
	if c.Ingest.RateLimitN <= 0 || c.Ingest.RateLimitWindow <= 0 {
		return fmt.Errorf("ingest rate limit must be positive (n=%d window=%s)",
			c.Ingest.RateLimitN, c.Ingest.RateLimitWindow)
	}
	if c.Cache.MaxSize <= 0 || c.Cache.TTL <= 0 {
		return fmt.Errorf("cache bounds must be positive (size=%d ttl=%s)", c.Cache.MaxSize, c.Cache.TTL)
	}
	if c.Duplicates.Threshold <= 0 || c.Duplicates.Threshold > 1 {
		return fmt.Errorf("duplicates.threshold must be in (0,1], got %.2f", c.Duplicates.Threshold)
	}
	if c.Decision.ConfidenceApprovalThreshold < 0 || c.Decision.ConfidenceApprovalThreshold > 1 {
		return fmt.Errorf("decision.confidence_approval_threshold must be in [0,1], got %.2f",
			c.Decision.ConfidenceApprovalThreshold)
	}
	if c.Dispatch.MaxAttempts < 1 {
		return fmt.Errorf("dispatch.max_attempts must be at least 1, got %d", c.Dispatch.MaxAttempts)
	}
	if c.Prompts.MaxExamples < 1 {
		return fmt.Errorf("prompts.max_examples must be at least 1, got %d", c.Prompts.MaxExamples)
	}
	if c.Review.Tick <= 0 {
		return fmt.Errorf("review.tick must be positive, got %s", c.Review.Tick)
	}
	return nil
}

func envInt(key string) (int, bool) {
	v := os.Getenv(EnvPrefix + key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

func envFloat(key string) (float64, bool) {
	v := os.Getenv(EnvPrefix + key)
	if v == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

func envDurationMS(key string) (time.Duration, bool) {
	n, ok := envInt(key)
	if !ok || n <= 0 {
		return 0, false
	}
	return time.Duration(n) * time.Millisecond, true
}
