package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/subforge/subforge/internal/align"
	"github.com/subforge/subforge/internal/config"
	"github.com/subforge/subforge/internal/glossary"
	"github.com/subforge/subforge/internal/glossary/pgstore"
	"github.com/subforge/subforge/internal/normalize"
	"github.com/subforge/subforge/internal/observe"
	"github.com/subforge/subforge/internal/optimize"
	"github.com/subforge/subforge/internal/pipeline"
	"github.com/subforge/subforge/internal/segment"
	"github.com/subforge/subforge/pkg/provider/embeddings"
	embopenai "github.com/subforge/subforge/pkg/provider/embeddings/openai"
	"github.com/subforge/subforge/pkg/provider/llm"
	"github.com/subforge/subforge/pkg/provider/llm/anyllm"
	llmopenai "github.com/subforge/subforge/pkg/provider/llm/openai"
	"github.com/subforge/subforge/pkg/subtitle"
)

// jobOptions carries per-invocation settings that are not part of the
// configuration file.
type jobOptions struct {
	input          string
	output         string
	targetLanguage string
	targetScript   string
	noModel        bool
}

// runJob assembles the pipeline from cfg and runs one job over the words
// read from opts.input.
func runJob(ctx context.Context, cfg *config.Config, opts jobOptions) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if opts.targetScript != "" && !subtitle.Script(opts.targetScript).IsValid() {
		return fmt.Errorf("invalid target script %q; valid values: latin, cjk", opts.targetScript)
	}

	if cfg.Metrics.Enabled {
		shutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
			ServiceVersion: version,
		})
		if err != nil {
			return fmt.Errorf("init telemetry: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				slog.Warn("telemetry shutdown error", "error", err)
			}
		}()
		srv := serveMetrics(cfg.Metrics.ListenAddr)
		defer srv.Close()
	}

	words, err := readWords(opts.input)
	if err != nil {
		return err
	}

	runner, cleanup, err := buildRunner(ctx, cfg, opts)
	if err != nil {
		return err
	}
	defer cleanup()

	res, err := runner.Run(ctx, words)
	if err != nil {
		if errors.Is(err, subtitle.ErrJobCancelled) {
			return context.Canceled
		}
		return err
	}

	return writeAligned(opts.output, res.Aligned)
}

// buildRunner wires providers, glossary, cache, and engines into a pipeline
// runner. The returned cleanup closes everything the wiring opened.
func buildRunner(ctx context.Context, cfg *config.Config, opts jobOptions) (*pipeline.Runner, func(), error) {
	var cleanups []func()
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}
	fail := func(err error) (*pipeline.Runner, func(), error) {
		cleanup()
		return nil, nil, err
	}

	var provider llm.Provider
	if !opts.noModel && cfg.Optimize.Provider.Name != "" {
		p, err := buildLLMProvider(cfg.Optimize.Provider)
		if err != nil {
			return fail(err)
		}
		provider = p
	}

	entries := slices.Clone(cfg.Glossary.Entries)
	if cfg.Glossary.File != "" {
		more, err := config.LoadGlossaryFile(cfg.Glossary.File)
		if err != nil {
			return fail(err)
		}
		entries = append(entries, more...)
	}
	var manuscript string
	if cfg.Glossary.ManuscriptFile != "" {
		data, err := os.ReadFile(cfg.Glossary.ManuscriptFile)
		if err != nil {
			return fail(fmt.Errorf("read manuscript: %w", err))
		}
		manuscript = string(data)
	}

	var contextSource optimize.ContextSource
	if dsn := cfg.Glossary.Postgres.DSN; dsn != "" {
		embedder, err := buildEmbeddingsProvider(cfg.Glossary.Postgres.Embeddings)
		if err != nil {
			return fail(err)
		}
		store, err := pgstore.New(ctx, dsn, embedder)
		if err != nil {
			return fail(err)
		}
		cleanups = append(cleanups, store.Close)

		if len(entries) > 0 {
			if err := store.UpsertTerms(ctx, entries); err != nil {
				return fail(err)
			}
		}
		if manuscript != "" {
			if err := store.IndexManuscript(ctx, "manuscript", manuscript); err != nil {
				return fail(err)
			}
		}
		// The store is the source of truth once configured; it also holds
		// terms persisted by earlier runs.
		stored, err := store.LoadTerms(ctx)
		if err != nil {
			return fail(err)
		}
		entries = stored
		contextSource = store
	}

	var matcherOpts []glossary.Option
	if cfg.Glossary.MaxEditDistance > 0 {
		matcherOpts = append(matcherOpts, glossary.WithMaxEditDistance(cfg.Glossary.MaxEditDistance))
	}
	if manuscript != "" {
		matcherOpts = append(matcherOpts, glossary.WithManuscript(manuscript))
	}
	matcher := glossary.New(entries, matcherOpts...)
	if contextSource == nil && (len(entries) > 0 || manuscript != "") {
		contextSource = matcher
	}

	var orch *optimize.Orchestrator
	if provider != nil {
		var cache *optimize.Cache
		if cfg.Optimize.CachePath != "" {
			c, err := optimize.OpenCache(cfg.Optimize.CachePath)
			if err != nil {
				return fail(err)
			}
			cleanups = append(cleanups, func() {
				if err := c.Close(); err != nil {
					slog.Warn("cache close error", "error", err)
				}
			})
			cache = c
		}

		o, err := optimize.New(optimize.Config{
			Provider:         provider,
			TargetLanguage:   opts.targetLanguage,
			BatchTokenBudget: cfg.Optimize.BatchTokenBudget,
			Concurrency:      cfg.Optimize.Concurrency,
			MaxRetries:       cfg.Optimize.MaxRetries,
			RetryBackoff:     cfg.Optimize.RetryBackoff(),
			BatchTimeout:     cfg.Optimize.BatchTimeout(),
			Temperature:      cfg.Optimize.Temperature,
			Reflect:          cfg.Optimize.Reflect,
			Context:          contextSource,
			Cache:            cache,
			CacheNamespace:   cacheNamespace(cfg.Optimize.Provider, opts.targetLanguage),
		})
		if err != nil {
			return fail(err)
		}
		orch = o
	}

	script := cfg.ScriptValue()
	segCfg := segment.Config{
		Script:       script,
		MaxUnits:     cfg.Segmentation.MaxUnits,
		MaxDuration:  cfg.Segmentation.MaxDuration(),
		MinDuration:  cfg.Segmentation.MinDuration(),
		GapThreshold: cfg.Segmentation.GapThreshold(),
		MergeGap:     cfg.Segmentation.MergeGap(),
	}
	if len(entries) > 0 {
		segCfg.Terms = matcher
	}
	if cfg.Segmentation.LLMSplit && provider != nil {
		segCfg.Splitter = segment.NewLLMSplitter(provider, script)
	}

	alignScript := script
	if opts.targetScript != "" {
		alignScript = subtitle.Script(opts.targetScript)
	}

	runner := pipeline.New(pipeline.Config{
		Normalize: normalize.Options{Script: script},
		Segment:   segCfg,
		Align: align.Config{
			Script:         alignScript,
			LengthWeight:   cfg.Alignment.LengthWeight,
			PunctWeight:    cfg.Alignment.PunctWeight,
			MinLengthRatio: cfg.Alignment.MinLengthRatio,
			MaxLengthRatio: cfg.Alignment.MaxLengthRatio,
		},
		Orchestrator: orch,
	})
	return runner, cleanup, nil
}

// buildLLMProvider constructs the model backend named by entry. The openai
// backend uses the native client; everything else goes through the
// multi-provider adapter.
func buildLLMProvider(entry config.ProviderEntry) (llm.Provider, error) {
	switch entry.Name {
	case "openai":
		var opts []llmopenai.Option
		if entry.BaseURL != "" {
			opts = append(opts, llmopenai.WithBaseURL(entry.BaseURL))
		}
		p, err := llmopenai.New(entry.APIKey, entry.Model, opts...)
		if err != nil {
			return nil, err
		}
		return p, nil
	case "ollama":
		// A local server: BaseURL is the address, no API key.
		var opts []anyllmlib.Option
		if entry.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
		p, err := anyllm.New("ollama", entry.Model, opts...)
		if err != nil {
			return nil, err
		}
		return p, nil
	default:
		var opts []anyllmlib.Option
		if entry.APIKey != "" {
			opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
		}
		if entry.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
		p, err := anyllm.New(entry.Name, entry.Model, opts...)
		if err != nil {
			return nil, err
		}
		return p, nil
	}
}

func buildEmbeddingsProvider(entry config.ProviderEntry) (embeddings.Provider, error) {
	switch entry.Name {
	case "openai":
		var opts []embopenai.Option
		if entry.BaseURL != "" {
			opts = append(opts, embopenai.WithBaseURL(entry.BaseURL))
		}
		return embopenai.New(entry.APIKey, entry.Model, opts...)
	default:
		return nil, fmt.Errorf("unsupported embeddings provider %q", entry.Name)
	}
}

// cacheNamespace keys cached responses by backend, model, and mode so a
// translation run never reuses rewrite responses.
func cacheNamespace(entry config.ProviderEntry, targetLanguage string) string {
	ns := entry.Name + "/" + entry.Model
	if targetLanguage != "" {
		ns += "/" + targetLanguage
	}
	return ns
}

func serveMetrics(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server error", "error", err)
		}
	}()
	slog.Info("metrics listening", "addr", addr)
	return srv
}
