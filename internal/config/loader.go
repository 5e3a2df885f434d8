package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/subforge/subforge/pkg/subtitle"
)

// ValidProviderNames lists known provider names per provider kind. Used by
// [Validate] to warn about unrecognised names without rejecting them.
var ValidProviderNames = map[string][]string{
	"llm":        {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"embeddings": {"openai"},
}

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values. It returns a
// joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.LogLevel != "" && !cfg.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("log_level %q is invalid; valid values: debug, info, warn, error", cfg.LogLevel))
	}
	if cfg.Script != "" && !subtitle.Script(cfg.Script).IsValid() {
		errs = append(errs, fmt.Errorf("script %q is invalid; valid values: latin, cjk", cfg.Script))
	}

	s := cfg.Segmentation
	if s.MaxUnits < 0 {
		errs = append(errs, errors.New("segmentation.max_units must not be negative"))
	}
	if s.MinDurationMS < 0 || s.MaxDurationMS < 0 {
		errs = append(errs, errors.New("segmentation durations must not be negative"))
	}
	if s.MinDurationMS > 0 && s.MaxDurationMS > 0 && s.MinDurationMS > s.MaxDurationMS {
		errs = append(errs, errors.New("segmentation.min_duration_ms exceeds max_duration_ms"))
	}
	if s.LLMSplit && cfg.Optimize.Provider.Name == "" {
		errs = append(errs, errors.New("segmentation.llm_split requires optimize.provider"))
	}

	o := cfg.Optimize
	if o.Concurrency < 0 {
		errs = append(errs, errors.New("optimize.concurrency must not be negative"))
	}
	if o.MaxRetries < 0 {
		errs = append(errs, errors.New("optimize.max_retries must not be negative"))
	}
	if o.Temperature < 0 || o.Temperature > 2 {
		errs = append(errs, errors.New("optimize.temperature must be within [0, 2]"))
	}
	if o.Reflect && o.Provider.Name == "" {
		errs = append(errs, errors.New("optimize.reflect requires optimize.provider"))
	}
	validateProviderName("llm", o.Provider.Name)

	a := cfg.Alignment
	if a.MinLengthRatio < 0 || a.MaxLengthRatio < 0 {
		errs = append(errs, errors.New("alignment length ratios must not be negative"))
	}
	if a.MinLengthRatio > 0 && a.MaxLengthRatio > 0 && a.MinLengthRatio >= a.MaxLengthRatio {
		errs = append(errs, errors.New("alignment.min_length_ratio must be below max_length_ratio"))
	}

	for i, e := range cfg.Glossary.Entries {
		if e.Source == "" || e.Target == "" {
			errs = append(errs, fmt.Errorf("glossary.entries[%d] needs both source and target", i))
		}
	}
	if cfg.Glossary.Postgres.DSN != "" {
		if cfg.Glossary.Postgres.Embeddings.Name == "" {
			errs = append(errs, errors.New("glossary.postgres requires an embeddings provider"))
		}
		validateProviderName("embeddings", cfg.Glossary.Postgres.Embeddings.Name)
	}

	if cfg.Metrics.Enabled && cfg.Metrics.ListenAddr == "" {
		errs = append(errs, errors.New("metrics.listen_addr is required when metrics are enabled"))
	}

	return errors.Join(errs...)
}

// validateProviderName warns about provider names not on the known list.
// Unknown names are not fatal; new backends appear faster than this list is
// updated.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	if !slices.Contains(ValidProviderNames[kind], name) {
		slog.Warn("unrecognised provider name", "kind", kind, "name", name)
	}
}

// LoadGlossaryFile reads additional glossary entries from a YAML file
// containing a list of {source, target} pairs.
func LoadGlossaryFile(path string) ([]subtitle.GlossaryEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open glossary %q: %w", path, err)
	}
	defer f.Close()

	var entries []subtitle.GlossaryEntry
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&entries); err != nil {
		return nil, fmt.Errorf("config: decode glossary %q: %w", path, err)
	}
	return entries, nil
}
