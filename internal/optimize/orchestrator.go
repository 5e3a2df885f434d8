// Package optimize drives the external language model: it batches segment
// texts under a token budget, runs batches concurrently against the model,
// and turns responses back into per-segment rewritten text.
//
// The model contract is weak by design. Responses are expected to follow a
// numbered line protocol ("#3: text"), but nothing is guaranteed; a response
// that breaks the numbering is demoted to an unordered bag of text and left
// for the alignment engine to reattach. A batch that keeps failing after the
// retry budget degrades to its original text and flags the span — a failing
// model never fails the job, only cancellation does.
package optimize

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/subforge/subforge/internal/observe"
	"github.com/subforge/subforge/internal/resilience"
	"github.com/subforge/subforge/pkg/provider/llm"
	"github.com/subforge/subforge/pkg/subtitle"
)

const (
	defaultConcurrency = 4
	defaultMaxRetries  = 3
	defaultBackoff     = time.Second
	defaultTemperature = 0.2
)

// errEmptyResponse marks a model reply with no usable text; it is retryable.
var errEmptyResponse = errors.New("model returned an empty response")

// ModelCallError wraps a failed model call with its batch identity.
type ModelCallError struct {
	Batch int
	Err   error
}

func (e *ModelCallError) Error() string {
	return fmt.Sprintf("model call for batch %d: %v", e.Batch, e.Err)
}

func (e *ModelCallError) Unwrap() error { return e.Err }

// ContextSource supplies glossary and manuscript context for a prompt.
// Implemented by the in-memory glossary matcher and the Postgres-backed
// store.
type ContextSource interface {
	// PromptContext returns context text relevant to query, at most limit
	// characters (soft ceiling).
	PromptContext(ctx context.Context, query string, limit int) (string, error)
}

// Config tunes the orchestrator. Provider is required; everything else has
// defaults.
type Config struct {
	// Provider is the language-model backend.
	Provider llm.Provider

	// TargetLanguage switches the orchestrator from rewrite mode to
	// translation mode when non-empty (e.g. "German", "Japanese").
	TargetLanguage string

	// BatchTokenBudget caps the estimated prompt tokens per batch. Zero
	// derives a budget from the provider's context window.
	BatchTokenBudget int

	// Concurrency caps parallel outstanding batches. Default: 4.
	Concurrency int

	// MaxRetries is the total attempts per model call. Default: 3.
	MaxRetries int

	// RetryBackoff is the initial backoff between attempts. Default: 1s.
	RetryBackoff time.Duration

	// BatchTimeout bounds a single model call including its reply. Zero
	// means no per-call timeout beyond the job context.
	BatchTimeout time.Duration

	// Temperature for model calls. Default: 0.2.
	Temperature float64

	// Reflect enables the draft, critique, refine protocol instead of the
	// single-call rewrite.
	Reflect bool

	// Context optionally supplies glossary/manuscript prompt context.
	Context ContextSource

	// ContextLimit is the soft character ceiling on injected context.
	// Default: 1000.
	ContextLimit int

	// Cache optionally memoizes model responses across runs.
	Cache *Cache

	// CacheNamespace separates cache entries of different models or
	// configurations. Default: "default".
	CacheNamespace string

	// Metrics receives counters and histograms. Nil uses the global set.
	Metrics *observe.Metrics
}

// Orchestrator batches segments and runs them through the model. Safe for
// concurrent use; each Run is independent.
type Orchestrator struct {
	cfg     Config
	breaker *resilience.CircuitBreaker
	metrics *observe.Metrics
}

// New validates cfg and returns an [Orchestrator].
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Provider == nil {
		return nil, errors.New("optimize: Provider is required")
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = defaultBackoff
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = defaultTemperature
	}
	if cfg.BatchTokenBudget <= 0 {
		if cw := cfg.Provider.Capabilities().ContextWindow; cw > 0 {
			cfg.BatchTokenBudget = cw / 4
		} else {
			cfg.BatchTokenBudget = 1000
		}
	}
	if cfg.ContextLimit <= 0 {
		cfg.ContextLimit = 1000
	}
	if cfg.CacheNamespace == "" {
		cfg.CacheNamespace = "default"
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	return &Orchestrator{
		cfg:     cfg,
		metrics: metrics,
		breaker: resilience.NewCircuitBreaker(resilience.BreakerConfig{Name: "model"}),
	}, nil
}

// batch is one contiguous run of segments sent in a single prompt.
type batch struct {
	lo, hi int
	segs   []subtitle.Segment
}

// Run rewrites or translates segments and returns one span per batch, in
// document order. Batches execute concurrently; results are assembled by
// batch identity, never by completion order. Run returns an error only for
// cancellation — model failures degrade the affected spans instead.
func (o *Orchestrator) Run(ctx context.Context, segments []subtitle.Segment) ([]subtitle.RewrittenSpan, error) {
	if len(segments) == 0 {
		return nil, nil
	}

	batches, err := o.plan(segments)
	if err != nil {
		return nil, err
	}
	spans := make([]subtitle.RewrittenSpan, len(batches))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.Concurrency)
	for i, b := range batches {
		g.Go(func() error {
			span, err := o.runBatch(gctx, i, b)
			if err != nil {
				return err
			}
			spans[i] = span
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return spans, nil
}

// plan groups segments into contiguous batches under the token budget.
// Submission order follows document order. The budget covers the whole
// prompt, so the system instructions, injected context ceiling, and line
// numbering are charged up front.
func (o *Orchestrator) plan(segments []subtitle.Segment) ([]batch, error) {
	overhead, err := o.promptOverhead()
	if err != nil {
		return nil, fmt.Errorf("estimating tokens: %w", err)
	}
	budget := o.cfg.BatchTokenBudget - overhead
	if budget < 1 {
		budget = 1
	}

	var batches []batch
	lo := 0
	used := 0
	for i, s := range segments {
		line := fmt.Sprintf("#%d: %s", i-lo+1, s.Text)
		t, err := o.cfg.Provider.CountTokens([]llm.Message{{Role: "user", Content: line}})
		if err != nil {
			return nil, fmt.Errorf("estimating tokens: %w", err)
		}
		if used+t > budget && i > lo {
			batches = append(batches, batch{lo: lo, hi: i, segs: segments[lo:i]})
			lo = i
			used = 0
		}
		used += t
	}
	batches = append(batches, batch{lo: lo, hi: len(segments), segs: segments[lo:]})
	return batches, nil
}

// promptOverhead estimates the prompt tokens spent outside the subtitle
// lines themselves: the system instructions plus the ceiling reserved for
// injected glossary/manuscript context.
func (o *Orchestrator) promptOverhead() (int, error) {
	t, err := o.cfg.Provider.CountTokens([]llm.Message{{Role: "system", Content: o.systemPrompt()}})
	if err != nil {
		return 0, err
	}
	if o.cfg.Context != nil {
		// The context block is fetched per batch and capped in characters;
		// reserve its ceiling at roughly four characters per token.
		t += o.cfg.ContextLimit / 4
	}
	return t, nil
}

// runBatch performs the model round-trip for one batch. A permanently
// failing batch returns a degraded span, not an error; only cancellation
// propagates.
func (o *Orchestrator) runBatch(ctx context.Context, idx int, b batch) (subtitle.RewrittenSpan, error) {
	start := time.Now()
	defer func() {
		o.metrics.BatchDuration.Record(ctx, time.Since(start).Seconds())
	}()

	system, user, err := o.buildPrompts(ctx, b.segs)
	if err != nil {
		// Context lookup failures are not worth failing a batch over.
		observe.Logger(ctx).Warn("prompt context unavailable", "batch", idx, "error", err)
	}

	if o.cfg.Cache != nil {
		if cached, ok := o.cacheGet(ctx, system, user); ok {
			o.metrics.RecordCacheLookup(ctx, true)
			return o.spanFromResponse(b, cached), nil
		}
		o.metrics.RecordCacheLookup(ctx, false)
	}

	var content string
	if o.cfg.Reflect {
		content, err = o.reflect(ctx, idx, system, user)
	} else {
		content, err = o.callModel(ctx, idx, system, user)
	}
	if err != nil {
		if ctx.Err() != nil {
			return subtitle.RewrittenSpan{}, ctx.Err()
		}
		observe.Logger(ctx).Warn("batch degraded to original text",
			"batch", idx, "segments", len(b.segs), "error", err)
		o.metrics.BatchesDegraded.Add(ctx, 1)
		return subtitle.RewrittenSpan{Lo: b.lo, Hi: b.hi, Degraded: true}, nil
	}

	if o.cfg.Cache != nil {
		o.cachePut(ctx, system, user, content)
	}
	return o.spanFromResponse(b, content), nil
}

// callModel sends one prompt with retry, backoff, and the shared circuit
// breaker. An empty reply counts as a failure.
func (o *Orchestrator) callModel(ctx context.Context, idx int, system, user string) (string, error) {
	var content string
	attempt := 0

	err := resilience.Retry(ctx, resilience.RetryConfig{
		Attempts: o.cfg.MaxRetries,
		Backoff:  o.cfg.RetryBackoff,
	}, func(ctx context.Context) error {
		if attempt > 0 {
			o.metrics.ModelRetries.Add(ctx, 1)
		}
		attempt++

		return o.breaker.Execute(ctx, func(ctx context.Context) error {
			callCtx := ctx
			if o.cfg.BatchTimeout > 0 {
				var cancel context.CancelFunc
				callCtx, cancel = context.WithTimeout(ctx, o.cfg.BatchTimeout)
				defer cancel()
			}
			resp, err := o.cfg.Provider.Complete(callCtx, llm.CompletionRequest{
				SystemPrompt: system,
				Messages:     []llm.Message{{Role: "user", Content: user}},
				Temperature:  o.cfg.Temperature,
			})
			if err != nil {
				o.metrics.RecordModelRequest(ctx, "error")
				return err
			}
			if strings.TrimSpace(resp.Content) == "" {
				o.metrics.RecordModelRequest(ctx, "error")
				return errEmptyResponse
			}
			o.metrics.RecordModelRequest(ctx, "ok")
			content = resp.Content
			return nil
		})
	})
	if err != nil {
		return "", &ModelCallError{Batch: idx, Err: err}
	}
	return content, nil
}

// spanFromResponse turns raw model output into a span: ordered items when
// the numbered contract survived, an unordered bag otherwise.
func (o *Orchestrator) spanFromResponse(b batch, content string) subtitle.RewrittenSpan {
	if items, ok := parseNumbered(content, len(b.segs)); ok {
		return subtitle.RewrittenSpan{
			Lo:      b.lo,
			Hi:      b.hi,
			Items:   items,
			Text:    strings.Join(items, " "),
			Ordered: true,
		}
	}
	return subtitle.RewrittenSpan{
		Lo:   b.lo,
		Hi:   b.hi,
		Text: bagText(content),
	}
}
