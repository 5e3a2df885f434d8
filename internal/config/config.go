// Package config provides the configuration schema and loader for the
// subforge subtitle engine.
package config

import (
	"log/slog"
	"time"

	"github.com/subforge/subforge/pkg/subtitle"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// SlogLevel maps l onto the slog level, defaulting to info.
func (l LogLevel) SlogLevel() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Config is the root configuration structure. It is typically loaded from a
// YAML file using [Load] or [LoadFromReader].
type Config struct {
	// LogLevel controls verbosity. Default: info.
	LogLevel LogLevel `yaml:"log_level"`

	// Script selects the source-text script rules: "latin" or "cjk".
	// Default: latin.
	Script string `yaml:"script"`

	Segmentation SegmentationConfig `yaml:"segmentation"`
	Optimize     OptimizeConfig     `yaml:"optimize"`
	Alignment    AlignmentConfig    `yaml:"alignment"`
	Glossary     GlossaryConfig     `yaml:"glossary"`
	Metrics      MetricsConfig      `yaml:"metrics"`
}

// ScriptValue returns the configured script, defaulting to latin.
func (c *Config) ScriptValue() subtitle.Script {
	s := subtitle.Script(c.Script)
	if !s.IsValid() {
		return subtitle.ScriptLatin
	}
	return s
}

// SegmentationConfig tunes the segmentation engine. Zero fields keep the
// engine defaults.
type SegmentationConfig struct {
	// MaxUnits is the display-length ceiling per segment: characters for
	// CJK, words for Latin.
	MaxUnits int `yaml:"max_units"`

	// MaxDurationMS and MinDurationMS bound segment duration.
	MaxDurationMS int `yaml:"max_duration_ms"`
	MinDurationMS int `yaml:"min_duration_ms"`

	// GapThresholdMS is the silence treated as a strong break candidate.
	GapThresholdMS int `yaml:"gap_threshold_ms"`

	// MergeGapMS is the maximum silence across which small adjacent
	// segments are merged.
	MergeGapMS int `yaml:"merge_gap_ms"`

	// LLMSplit enables the model-assisted sentence-boundary pass.
	LLMSplit bool `yaml:"llm_split"`
}

// OptimizeConfig tunes the model rewrite/translation pass. When Provider is
// unset the pipeline skips the model pass entirely.
type OptimizeConfig struct {
	Provider ProviderEntry `yaml:"provider"`

	// TargetLanguage switches from rewrite to translation mode (e.g.
	// "German"). Empty keeps rewrite mode.
	TargetLanguage string `yaml:"target_language"`

	// Concurrency caps parallel outstanding model batches.
	Concurrency int `yaml:"concurrency"`

	// MaxRetries is the total attempts per model call.
	MaxRetries int `yaml:"max_retries"`

	// RetryBackoffMS is the initial backoff between attempts.
	RetryBackoffMS int `yaml:"retry_backoff_ms"`

	// BatchTimeoutMS bounds a single model call. Zero means no per-call
	// timeout.
	BatchTimeoutMS int `yaml:"batch_timeout_ms"`

	// BatchTokenBudget caps estimated prompt tokens per batch. Zero
	// derives the budget from the model's context window.
	BatchTokenBudget int `yaml:"batch_token_budget"`

	// Temperature for model calls.
	Temperature float64 `yaml:"temperature"`

	// Reflect enables the draft, critique, refine protocol.
	Reflect bool `yaml:"reflect"`

	// CachePath enables the on-disk response cache when non-empty.
	CachePath string `yaml:"cache_path"`
}

// ProviderEntry selects and authenticates one external provider.
type ProviderEntry struct {
	// Name selects the backend implementation (e.g. "openai", "anthropic",
	// "ollama").
	Name string `yaml:"name"`

	// APIKey authenticates against the provider, if it needs one.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default endpoint.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model (e.g. "gpt-4o-mini").
	Model string `yaml:"model"`
}

// AlignmentConfig tunes the alignment engine's cost function and sanity
// bounds. Zero fields keep the engine defaults.
type AlignmentConfig struct {
	LengthWeight   float64 `yaml:"length_weight"`
	PunctWeight    float64 `yaml:"punct_weight"`
	MinLengthRatio float64 `yaml:"min_length_ratio"`
	MaxLengthRatio float64 `yaml:"max_length_ratio"`
}

// GlossaryConfig supplies term substitutions and reference material.
type GlossaryConfig struct {
	// Entries are inline glossary terms.
	Entries []subtitle.GlossaryEntry `yaml:"entries"`

	// File optionally points at a YAML file with additional entries
	// (a list of {source, target} pairs).
	File string `yaml:"file"`

	// ManuscriptFile optionally points at free-text reference material.
	ManuscriptFile string `yaml:"manuscript_file"`

	// MaxEditDistance caps fuzzy term matching; 0 keeps the default.
	MaxEditDistance int `yaml:"max_edit_distance"`

	// Postgres optionally backs the glossary with a database and semantic
	// manuscript search.
	Postgres PostgresConfig `yaml:"postgres"`
}

// PostgresConfig connects the glossary store to Postgres with pgvector.
type PostgresConfig struct {
	// DSN is the connection string. Empty disables the store.
	DSN string `yaml:"dsn"`

	// Embeddings selects the embedding provider for semantic manuscript
	// excerpts.
	Embeddings ProviderEntry `yaml:"embeddings"`
}

// MetricsConfig controls the Prometheus metrics endpoint.
type MetricsConfig struct {
	// Enabled starts the metrics HTTP listener.
	Enabled bool `yaml:"enabled"`

	// ListenAddr is the TCP address for /metrics (e.g. ":9090").
	ListenAddr string `yaml:"listen_addr"`
}

// ms converts a millisecond count to a duration, zero staying zero.
func ms(v int) time.Duration { return time.Duration(v) * time.Millisecond }

// MaxDuration returns the configured maximum segment duration.
func (s SegmentationConfig) MaxDuration() time.Duration { return ms(s.MaxDurationMS) }

// MinDuration returns the configured minimum segment duration.
func (s SegmentationConfig) MinDuration() time.Duration { return ms(s.MinDurationMS) }

// GapThreshold returns the configured strong-break silence gap.
func (s SegmentationConfig) GapThreshold() time.Duration { return ms(s.GapThresholdMS) }

// MergeGap returns the configured merge silence ceiling.
func (s SegmentationConfig) MergeGap() time.Duration { return ms(s.MergeGapMS) }

// RetryBackoff returns the configured initial retry backoff.
func (o OptimizeConfig) RetryBackoff() time.Duration { return ms(o.RetryBackoffMS) }

// BatchTimeout returns the configured per-call timeout.
func (o OptimizeConfig) BatchTimeout() time.Duration { return ms(o.BatchTimeoutMS) }
