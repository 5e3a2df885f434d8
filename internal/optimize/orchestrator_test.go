package optimize

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/subforge/subforge/pkg/provider/llm"
	llmmock "github.com/subforge/subforge/pkg/provider/llm/mock"
	"github.com/subforge/subforge/pkg/subtitle"
)

func segs(texts ...string) []subtitle.Segment {
	out := make([]subtitle.Segment, len(texts))
	for i, t := range texts {
		out[i] = subtitle.Segment{
			ID:    i,
			Text:  t,
			Start: time.Duration(i) * time.Second,
			End:   time.Duration(i+1) * time.Second,
		}
	}
	return out
}

func mustNew(t *testing.T, cfg Config) *Orchestrator {
	t.Helper()
	o, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return o
}

func TestNew_RequiresProvider(t *testing.T) {
	t.Parallel()

	if _, err := New(Config{}); err == nil {
		t.Fatal("New accepted a nil provider")
	}
}

func TestRun_NumberedResponsePreservesOrder(t *testing.T) {
	t.Parallel()

	p := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: "#1: Alpha.\n#2: Beta."},
	}
	o := mustNew(t, Config{Provider: p, RetryBackoff: time.Millisecond})

	spans, err := o.Run(context.Background(), segs("alpha", "beta"))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(spans) != 1 {
		t.Fatalf("len(spans) = %d, want 1", len(spans))
	}
	s := spans[0]
	if !s.Ordered || s.Degraded {
		t.Fatalf("span = %+v, want ordered and not degraded", s)
	}
	if s.Lo != 0 || s.Hi != 2 {
		t.Errorf("span range = [%d,%d), want [0,2)", s.Lo, s.Hi)
	}
	if s.Items[0] != "Alpha." || s.Items[1] != "Beta." {
		t.Errorf("Items = %q", s.Items)
	}
}

func TestRun_BrokenNumberingBecomesBag(t *testing.T) {
	t.Parallel()

	p := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{
			Content: "Alpha and beta together as one line.",
		},
	}
	o := mustNew(t, Config{Provider: p, RetryBackoff: time.Millisecond})

	spans, err := o.Run(context.Background(), segs("alpha", "beta"))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	s := spans[0]
	if s.Ordered {
		t.Fatal("span is ordered despite broken numbering")
	}
	if s.Degraded {
		t.Fatal("span degraded; a bag response is still usable")
	}
	if s.Text != "Alpha and beta together as one line." {
		t.Errorf("Text = %q", s.Text)
	}
}

func TestRun_RetriesThenSucceeds(t *testing.T) {
	t.Parallel()

	p := &llmmock.Provider{
		CompleteFunc: func(call int, _ llm.CompletionRequest) (*llm.CompletionResponse, error) {
			if call < 2 {
				return nil, errors.New("transient")
			}
			return &llm.CompletionResponse{Content: "#1: Fixed."}, nil
		},
	}
	o := mustNew(t, Config{Provider: p, MaxRetries: 3, RetryBackoff: time.Millisecond})

	spans, err := o.Run(context.Background(), segs("draft"))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if spans[0].Degraded {
		t.Fatal("span degraded despite a successful final attempt")
	}
	if spans[0].Items[0] != "Fixed." {
		t.Errorf("Items = %q", spans[0].Items)
	}
	if got := len(p.Calls()); got != 3 {
		t.Errorf("model calls = %d, want 3", got)
	}
}

func TestRun_ExhaustedRetriesDegradeNotFail(t *testing.T) {
	t.Parallel()

	p := &llmmock.Provider{CompleteErr: errors.New("api down")}
	o := mustNew(t, Config{Provider: p, MaxRetries: 3, RetryBackoff: time.Millisecond})

	spans, err := o.Run(context.Background(), segs("alpha", "beta"))
	if err != nil {
		t.Fatalf("Run: %v, want nil (degradation is not failure)", err)
	}
	s := spans[0]
	if !s.Degraded {
		t.Fatal("span not degraded after exhausted retries")
	}
	if got := len(p.Calls()); got != 3 {
		t.Errorf("model calls = %d, want 3", got)
	}
}

func TestRun_EmptyResponseIsRetryable(t *testing.T) {
	t.Parallel()

	p := &llmmock.Provider{
		CompleteFunc: func(call int, _ llm.CompletionRequest) (*llm.CompletionResponse, error) {
			if call == 0 {
				return &llm.CompletionResponse{Content: "   \n"}, nil
			}
			return &llm.CompletionResponse{Content: "#1: Recovered."}, nil
		},
	}
	o := mustNew(t, Config{Provider: p, MaxRetries: 2, RetryBackoff: time.Millisecond})

	spans, err := o.Run(context.Background(), segs("alpha"))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if spans[0].Degraded || spans[0].Items[0] != "Recovered." {
		t.Errorf("span = %+v", spans[0])
	}
}

func TestRun_CancellationAbortsJob(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	p := &llmmock.Provider{
		CompleteFunc: func(int, llm.CompletionRequest) (*llm.CompletionResponse, error) {
			cancel()
			return nil, errors.New("interrupted")
		},
	}
	o := mustNew(t, Config{Provider: p, MaxRetries: 5, RetryBackoff: time.Minute})

	spans, err := o.Run(ctx, segs("alpha", "beta"))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run: err = %v, want context.Canceled", err)
	}
	if spans != nil {
		t.Errorf("spans = %+v, want none after cancellation", spans)
	}
	if got := len(p.Calls()); got > 2 {
		t.Errorf("model calls = %d; cancellation must stop retries", got)
	}
}

func TestRun_TokenBudgetSplitsBatches(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("word ", 8) // ~15 estimated tokens per prompt line
	p := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: "#1: out"},
	}
	o := mustNew(t, Config{Provider: p, BatchTokenBudget: 20, RetryBackoff: time.Millisecond})

	spans, err := o.Run(context.Background(), segs(long, long, long))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(spans) != 3 {
		t.Fatalf("len(spans) = %d, want 3 single-segment batches", len(spans))
	}
	next := 0
	for i, s := range spans {
		if s.Lo != next || s.Hi != next+1 {
			t.Errorf("spans[%d] = [%d,%d), want [%d,%d)", i, s.Lo, s.Hi, next, next+1)
		}
		next = s.Hi
	}
}

func TestPlan_ChargesPromptOverhead(t *testing.T) {
	t.Parallel()

	// Two short lines fit a budget that counts only the segment texts, but
	// not one that also charges the system prompt. The planner must split.
	p := &llmmock.Provider{}
	o := mustNew(t, Config{Provider: p, RetryBackoff: time.Millisecond})
	overhead, err := o.promptOverhead()
	if err != nil {
		t.Fatalf("promptOverhead: %v", err)
	}
	if overhead == 0 {
		t.Fatal("promptOverhead = 0, want the system prompt counted")
	}

	text := "word word word." // ~8 estimated tokens as a numbered line
	o = mustNew(t, Config{Provider: p, BatchTokenBudget: overhead + 10, RetryBackoff: time.Millisecond})

	batches, err := o.plan(segs(text, text))
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if len(batches) != 2 {
		t.Fatalf("len(batches) = %d, want 2 (overhead charged against the budget)", len(batches))
	}
}

func TestPlan_ReservesContextCeiling(t *testing.T) {
	t.Parallel()

	p := &llmmock.Provider{}
	plain := mustNew(t, Config{Provider: p, RetryBackoff: time.Millisecond})
	withCtx := mustNew(t, Config{
		Provider:     p,
		Context:      staticContext{text: "glossary"},
		ContextLimit: 400,
		RetryBackoff: time.Millisecond,
	})

	base, err := plain.promptOverhead()
	if err != nil {
		t.Fatalf("promptOverhead: %v", err)
	}
	got, err := withCtx.promptOverhead()
	if err != nil {
		t.Fatalf("promptOverhead: %v", err)
	}
	if want := base + 100; got != want {
		t.Errorf("promptOverhead with context = %d, want %d", got, want)
	}
}

func TestRun_ReflectRunsThreeCalls(t *testing.T) {
	t.Parallel()

	p := &llmmock.Provider{
		CompleteFunc: func(call int, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
			switch call {
			case 0:
				return &llm.CompletionResponse{Content: "#1: draft text"}, nil
			case 1:
				if !strings.Contains(req.Messages[0].Content, "Draft:") {
					return nil, fmt.Errorf("critique call missing draft: %q", req.Messages[0].Content)
				}
				return &llm.CompletionResponse{Content: "line 1 is clumsy"}, nil
			default:
				if !strings.Contains(req.Messages[0].Content, "Critique:") {
					return nil, fmt.Errorf("refine call missing critique")
				}
				return &llm.CompletionResponse{Content: "#1: refined text"}, nil
			}
		},
	}
	o := mustNew(t, Config{Provider: p, Reflect: true, RetryBackoff: time.Millisecond})

	spans, err := o.Run(context.Background(), segs("source"))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := len(p.Calls()); got != 3 {
		t.Fatalf("model calls = %d, want draft+critique+refine", got)
	}
	if !spans[0].Ordered || spans[0].Items[0] != "refined text" {
		t.Errorf("span = %+v, want the refined item", spans[0])
	}
}

type staticContext struct{ text string }

func (s staticContext) PromptContext(context.Context, string, int) (string, error) {
	return s.text, nil
}

func TestRun_ContextInjectedIntoSystemPrompt(t *testing.T) {
	t.Parallel()

	p := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: "#1: ok"},
	}
	o := mustNew(t, Config{
		Provider:     p,
		Context:      staticContext{text: "Glossary:\n- kubernets => Kubernetes"},
		RetryBackoff: time.Millisecond,
	})

	if _, err := o.Run(context.Background(), segs("kubernets is neat")); err != nil {
		t.Fatalf("Run: %v", err)
	}
	calls := p.Calls()
	if len(calls) != 1 {
		t.Fatalf("model calls = %d, want 1", len(calls))
	}
	if !strings.Contains(calls[0].Req.SystemPrompt, "Kubernetes") {
		t.Errorf("system prompt missing glossary context:\n%s", calls[0].Req.SystemPrompt)
	}
	if !strings.Contains(calls[0].Req.Messages[0].Content, "#1: kubernets is neat") {
		t.Errorf("user prompt missing numbered line:\n%s", calls[0].Req.Messages[0].Content)
	}
}

func TestRun_TranslationModeMentionsTargetLanguage(t *testing.T) {
	t.Parallel()

	p := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: "#1: Hallo"},
	}
	o := mustNew(t, Config{Provider: p, TargetLanguage: "German", RetryBackoff: time.Millisecond})

	if _, err := o.Run(context.Background(), segs("hello")); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sp := p.Calls()[0].Req.SystemPrompt; !strings.Contains(sp, "German") {
		t.Errorf("system prompt does not mention the target language:\n%s", sp)
	}
}

func TestParseNumbered(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		content string
		n       int
		want    []string
		ok      bool
	}{
		{"clean", "#1: a\n#2: b", 2, []string{"a", "b"}, true},
		{"no hash", "1. a\n2. b", 2, []string{"a", "b"}, true},
		{"reordered", "#2: b\n#1: a", 2, []string{"a", "b"}, true},
		{"missing item", "#1: a", 2, nil, false},
		{"duplicate", "#1: a\n#1: b", 2, nil, false},
		{"out of range", "#1: a\n#3: b", 2, nil, false},
		{"unnumbered line", "#1: a\nand some chatter", 2, nil, false},
		{"blank lines tolerated", "#1: a\n\n#2: b\n", 2, []string{"a", "b"}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, ok := parseNumbered(tc.content, tc.n)
			if ok != tc.ok {
				t.Fatalf("ok = %v, want %v", ok, tc.ok)
			}
			if !ok {
				return
			}
			for i := range tc.want {
				if got[i] != tc.want[i] {
					t.Errorf("items[%d] = %q, want %q", i, got[i], tc.want[i])
				}
			}
		})
	}
}

func TestBagText_StripsNumbering(t *testing.T) {
	t.Parallel()

	got := bagText("#1: first bit\nsome stray line\n#2: second bit\n")
	want := "first bit some stray line second bit"
	if got != want {
		t.Errorf("bagText = %q, want %q", got, want)
	}
}
