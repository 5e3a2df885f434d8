package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const sampleYAML = `
log_level: debug
script: cjk
segmentation:
  max_units: 20
  max_duration_ms: 6000
  min_duration_ms: 1000
  gap_threshold_ms: 1500
  merge_gap_ms: 300
optimize:
  provider:
    name: openai
    api_key: sk-test
    model: gpt-4o-mini
  target_language: German
  concurrency: 4
  max_retries: 3
  retry_backoff_ms: 1000
  temperature: 0.2
  reflect: true
  cache_path: /tmp/subforge-cache.db
alignment:
  length_weight: 1.0
  punct_weight: 0.4
  min_length_ratio: 0.3
  max_length_ratio: 3.0
glossary:
  entries:
    - source: kubernets
      target: Kubernetes
metrics:
  enabled: true
  listen_addr: ":9090"
`

func TestLoadFromReader(t *testing.T) {
	t.Parallel()

	cfg, err := LoadFromReader(strings.NewReader(sampleYAML))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if cfg.LogLevel != LogDebug {
		t.Errorf("LogLevel = %q", cfg.LogLevel)
	}
	if got := cfg.ScriptValue(); got != "cjk" {
		t.Errorf("ScriptValue = %q", got)
	}
	if cfg.Segmentation.GapThreshold() != 1500*time.Millisecond {
		t.Errorf("GapThreshold = %v", cfg.Segmentation.GapThreshold())
	}
	if cfg.Optimize.Provider.Model != "gpt-4o-mini" {
		t.Errorf("Model = %q", cfg.Optimize.Provider.Model)
	}
	if !cfg.Optimize.Reflect || cfg.Optimize.TargetLanguage != "German" {
		t.Errorf("optimize = %+v", cfg.Optimize)
	}
	if len(cfg.Glossary.Entries) != 1 || cfg.Glossary.Entries[0].Target != "Kubernetes" {
		t.Errorf("glossary = %+v", cfg.Glossary.Entries)
	}
}

func TestLoadFromReader_RejectsUnknownFields(t *testing.T) {
	t.Parallel()

	_, err := LoadFromReader(strings.NewReader("log_levle: info\n"))
	if err == nil {
		t.Fatal("unknown field accepted")
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	t.Parallel()

	cfg := &Config{
		LogLevel: "loud",
		Script:   "klingon",
		Optimize: OptimizeConfig{Temperature: 3, Reflect: true},
		Metrics:  MetricsConfig{Enabled: true},
	}
	err := Validate(cfg)
	if err == nil {
		t.Fatal("Validate accepted a broken config")
	}
	for _, want := range []string{"log_level", "script", "temperature", "reflect", "metrics.listen_addr"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error does not mention %s:\n%v", want, err)
		}
	}
}

func TestValidate_MinimalConfigOK(t *testing.T) {
	t.Parallel()

	if err := Validate(&Config{}); err != nil {
		t.Errorf("Validate(empty) = %v, want nil", err)
	}
}

func TestValidate_RatioOrdering(t *testing.T) {
	t.Parallel()

	err := Validate(&Config{Alignment: AlignmentConfig{MinLengthRatio: 3, MaxLengthRatio: 0.3}})
	if err == nil || !strings.Contains(err.Error(), "min_length_ratio") {
		t.Errorf("Validate = %v, want ratio ordering error", err)
	}
}

func TestLoadGlossaryFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "glossary.yaml")
	data := "- source: eldrinax\n  target: Eldrinax\n- source: kubernets\n  target: Kubernetes\n"
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}

	entries, err := LoadGlossaryFile(path)
	if err != nil {
		t.Fatalf("LoadGlossaryFile: %v", err)
	}
	if len(entries) != 2 || entries[1].Target != "Kubernetes" {
		t.Errorf("entries = %+v", entries)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()

	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("Load accepted a missing file")
	}
}
