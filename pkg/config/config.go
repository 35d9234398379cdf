// Package config loads, validates, and hot-reloads the pipeline's tunables:
// concurrency limits, retry budgets, cancellation timeouts, merge thresholds,
// and progress-calculator weights. Configuration is layered environment
// variables over a JSON file over compiled-in defaults, validated fail-fast
// at startup.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// ConcurrencyConfig bounds how many segment tasks a batch runs in parallel.
type ConcurrencyConfig struct {
	Default int `json:"default"`
	Min     int `json:"min"`
	Max     int `json:"max"`
}

// RetryConfig governs the scheduler's per-task retry/backoff policy.
type RetryConfig struct {
	MaxAttempts  int `json:"max_attempts"`
	BaseDelayMs  int `json:"base_delay_ms"`
	MaxDelayMs   int `json:"max_delay_ms"`
}

// CancellationConfig governs the graceful-cancellation wait budget.
type CancellationConfig struct {
	GracefulTimeoutMs int `json:"graceful_timeout_ms"`
}

// PartialResultsConfig governs partial-result retention.
type PartialResultsConfig struct {
	ExpireAfterHours int `json:"expire_after_hours"`
}

// LengthControl bounds merge output length.
type LengthControl struct {
	Min           int `json:"min"`
	Max           int `json:"max"`
	DefaultTarget int `json:"default_target"`
	Tolerance     int `json:"tolerance"`
}

// DuplicateDetection configures the merger's deduplication pass. Similarity
// thresholds are configuration rather than constants so deployments can
// tune them per corpus.
type DuplicateDetection struct {
	SimilarityThreshold   float64 `json:"similarity_threshold"`
	UseSemanticSimilarity bool    `json:"use_semantic_similarity"`
	ContextWindow         int     `json:"context_window"`
	SemanticThreshold     float64 `json:"semantic_threshold"`
}

// LLMAssistance configures when the merger invokes the LLM-assisted pipeline.
type LLMAssistance struct {
	EnableForComplexMerges bool `json:"enable_for_complex_merges"`
	MinSegmentsForLLM      int  `json:"min_segments_for_llm"`
}

// MergingConfig configures the full merge subsystem.
type MergingConfig struct {
	LengthControl              LengthControl      `json:"length_control"`
	DuplicateDetection         DuplicateDetection `json:"duplicate_detection"`
	LLMAssistance              LLMAssistance      `json:"llm_assistance"`
	MaxReferencesPerParagraph  int                `json:"max_references_per_paragraph"`
	MinimumConfidenceThreshold float64            `json:"minimum_confidence_threshold"`
	MinimumQualityThreshold    float64            `json:"minimum_quality_threshold"`
	MinimumValidationScore     float64            `json:"minimum_validation_score"`
}

// ProgressConfig configures the progress calculator.
type ProgressConfig struct {
	StageWeights map[string]float64 `json:"stage_weights"`
	WindowMs     int                `json:"window_ms"`
}

// LoggingConfig configures the package-level logger.
type LoggingConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

// Config is the complete, validated pipeline configuration.
type Config struct {
	Concurrency     ConcurrencyConfig    `json:"concurrency"`
	Retry           RetryConfig          `json:"retry"`
	Cancellation    CancellationConfig   `json:"cancellation"`
	PartialResults  PartialResultsConfig `json:"partial_results"`
	Merging         MergingConfig        `json:"merging"`
	Progress        ProgressConfig       `json:"progress"`
	Logging         LoggingConfig        `json:"logging"`
}

// DefaultConfig returns the balanced preset used when no preset or file is
// specified.
func DefaultConfig() *Config {
	return &Config{
		Concurrency: ConcurrencyConfig{Default: 2, Min: 1, Max: 10},
		Retry:       RetryConfig{MaxAttempts: 3, BaseDelayMs: 1000, MaxDelayMs: 30000},
		Cancellation: CancellationConfig{GracefulTimeoutMs: 30000},
		PartialResults: PartialResultsConfig{ExpireAfterHours: 24},
		Merging: MergingConfig{
			LengthControl: LengthControl{Min: 100, Max: 4000, DefaultTarget: 800, Tolerance: 100},
			DuplicateDetection: DuplicateDetection{
				SimilarityThreshold:   0.75,
				UseSemanticSimilarity: true,
				ContextWindow:         2,
				SemanticThreshold:     0.8,
			},
			LLMAssistance:              LLMAssistance{EnableForComplexMerges: true, MinSegmentsForLLM: 4},
			MaxReferencesPerParagraph:  3,
			MinimumConfidenceThreshold: 0.6,
			MinimumQualityThreshold:    0.7,
			MinimumValidationScore:     0.6,
		},
		Progress: ProgressConfig{
			StageWeights: map[string]float64{
				"Initializing":    5,
				"Segmenting":      10,
				"BatchProcessing": 70,
				"Merging":         10,
				"Finalizing":      5,
			},
			WindowMs: 60000,
		},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
}

// QuickstartConfig trades retry persistence for speed: fewer attempts,
// a default concurrency of 1 (the maximum is unchanged), semantic dedup
// disabled.
func QuickstartConfig() *Config {
	c := DefaultConfig()
	c.Concurrency.Default = 1
	c.Retry.MaxAttempts = 1
	c.Merging.DuplicateDetection.UseSemanticSimilarity = false
	return c
}

// ConservativeConfig maximizes retry persistence and cancellation safety at
// the cost of throughput.
func ConservativeConfig() *Config {
	c := DefaultConfig()
	c.Concurrency.Default = 1
	c.Retry.MaxAttempts = 5
	c.Cancellation.GracefulTimeoutMs = 60000
	c.Merging.MinimumQualityThreshold = 0.85
	return c
}

// ThroughputConfig maximizes parallelism for large batches.
func ThroughputConfig() *Config {
	c := DefaultConfig()
	c.Concurrency.Default = 8
	c.Retry.MaxAttempts = 2
	c.Merging.LLMAssistance.EnableForComplexMerges = false
	return c
}

// GetPresetConfig resolves a named preset: "default", "quickstart",
// "conservative", or "throughput".
func GetPresetConfig(preset string) (*Config, error) {
	switch strings.ToLower(preset) {
	case "", "default":
		return DefaultConfig(), nil
	case "quickstart":
		return QuickstartConfig(), nil
	case "conservative":
		return ConservativeConfig(), nil
	case "throughput":
		return ThroughputConfig(), nil
	default:
		return nil, fmt.Errorf("unknown config preset: %s", preset)
	}
}

// LoadConfig builds a Config from defaults, an optional JSON file, then
// environment variable overrides, and validates the result. configPath may
// be empty to skip the file layer.
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if configPath != "" {
		if err := cfg.loadFromFile(configPath); err != nil {
			return nil, err
		}
	}

	cfg.ApplyEnvironmentOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) loadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := json.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

// ApplyEnvironmentOverrides layers BATCHSUM_* environment variables over the
// current values. LoadConfig calls this automatically; preset-based callers
// invoke it directly before validating.
func (c *Config) ApplyEnvironmentOverrides() {
	if val := os.Getenv("BATCHSUM_CONCURRENCY_DEFAULT"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			c.Concurrency.Default = n
		}
	}
	if val := os.Getenv("BATCHSUM_RETRY_MAX_ATTEMPTS"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			c.Retry.MaxAttempts = n
		}
	}
	if val := os.Getenv("BATCHSUM_RETRY_BASE_DELAY_MS"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			c.Retry.BaseDelayMs = n
		}
	}
	if val := os.Getenv("BATCHSUM_CANCELLATION_GRACEFUL_TIMEOUT_MS"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			c.Cancellation.GracefulTimeoutMs = n
		}
	}
	if val := os.Getenv("BATCHSUM_PARTIAL_RESULTS_EXPIRE_HOURS"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			c.PartialResults.ExpireAfterHours = n
		}
	}
	if val := os.Getenv("BATCHSUM_MERGE_SIMILARITY_THRESHOLD"); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			c.Merging.DuplicateDetection.SimilarityThreshold = f
		}
	}
	if val := os.Getenv("BATCHSUM_LOG_LEVEL"); val != "" {
		c.Logging.Level = val
	}
	if val := os.Getenv("BATCHSUM_LOG_FORMAT"); val != "" {
		c.Logging.Format = val
	}
}

// Validate enforces the configuration invariants: concurrency bounds, non-negative
// retry/timeout budgets, and well-formed merge thresholds. It fails fast
// with a descriptive error rather than letting a bad value surface deep in
// the scheduler.
func (c *Config) Validate() error {
	if c.Concurrency.Min < 1 {
		return fmt.Errorf("concurrency.min must be >= 1, got %d", c.Concurrency.Min)
	}
	if c.Concurrency.Max > 10 {
		return fmt.Errorf("concurrency.max must be <= 10, got %d", c.Concurrency.Max)
	}
	if c.Concurrency.Default < c.Concurrency.Min || c.Concurrency.Default > c.Concurrency.Max {
		return fmt.Errorf("concurrency.default %d out of range [%d,%d]", c.Concurrency.Default, c.Concurrency.Min, c.Concurrency.Max)
	}
	if c.Retry.MaxAttempts < 0 {
		return fmt.Errorf("retry.max_attempts must be >= 0")
	}
	if c.Retry.MaxDelayMs <= 0 || c.Retry.MaxDelayMs > 30000 {
		return fmt.Errorf("retry.max_delay_ms must be in (0,30000], got %d", c.Retry.MaxDelayMs)
	}
	if c.Cancellation.GracefulTimeoutMs < 0 {
		return fmt.Errorf("cancellation.graceful_timeout_ms must be >= 0")
	}
	if c.PartialResults.ExpireAfterHours <= 0 {
		return fmt.Errorf("partial_results.expire_after_hours must be > 0")
	}
	if t := c.Merging.DuplicateDetection.SimilarityThreshold; t < 0 || t > 1 {
		return fmt.Errorf("merging.duplicate_detection.similarity_threshold must be in [0,1], got %f", t)
	}
	if t := c.Merging.MinimumQualityThreshold; t < 0 || t > 1 {
		return fmt.Errorf("merging.minimum_quality_threshold must be in [0,1], got %f", t)
	}
	if c.Merging.LengthControl.Min > 0 && c.Merging.LengthControl.Max > 0 && c.Merging.LengthControl.Min > c.Merging.LengthControl.Max {
		return fmt.Errorf("merging.length_control.min (%d) exceeds max (%d)", c.Merging.LengthControl.Min, c.Merging.LengthControl.Max)
	}
	var weightSum float64
	for _, w := range c.Progress.StageWeights {
		weightSum += w
	}
	if len(c.Progress.StageWeights) > 0 && (weightSum < 99 || weightSum > 101) {
		return fmt.Errorf("progress.stage_weights must sum to ~100, got %f", weightSum)
	}
	return nil
}

// SaveToFile writes the configuration as indented JSON.
func (c *Config) SaveToFile(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
