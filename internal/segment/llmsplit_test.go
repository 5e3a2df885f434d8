package segment

import (
	"context"
	"strings"
	"testing"

	"github.com/subforge/subforge/pkg/provider/llm"
	llmmock "github.com/subforge/subforge/pkg/provider/llm/mock"
	"github.com/subforge/subforge/pkg/subtitle"
)

func TestLLMSplitter_SplitsIntoSentences(t *testing.T) {
	t.Parallel()

	p := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{
			Content: "so we deployed on friday\nnothing went wrong for once",
		},
	}
	s := NewLLMSplitter(p, subtitle.ScriptLatin)

	got, err := s.Split(context.Background(), "so we deployed on friday nothing went wrong for once")
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	want := []string{"so we deployed on friday", "nothing went wrong for once"}
	if len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("Split = %q, want %q", got, want)
	}

	calls := p.Calls()
	if len(calls) != 1 {
		t.Fatalf("model calls = %d, want 1", len(calls))
	}
	if calls[0].Req.Temperature != 0 {
		t.Errorf("Temperature = %v, want 0", calls[0].Req.Temperature)
	}
}

func TestLLMSplitter_RejectsRewrittenResponse(t *testing.T) {
	t.Parallel()

	// The model answered with different words; its boundaries must be
	// discarded and the chunk kept whole.
	p := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{
			Content: "a completely unrelated paraphrase\nof what was said",
		},
	}
	s := NewLLMSplitter(p, subtitle.ScriptLatin)

	text := "so we deployed on friday nothing went wrong for once"
	got, err := s.Split(context.Background(), text)
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	if len(got) != 1 || got[0] != text {
		t.Errorf("Split = %q, want the untouched input as one sentence", got)
	}
}

func TestLLMSplitter_EmptyInput(t *testing.T) {
	t.Parallel()

	s := NewLLMSplitter(&llmmock.Provider{}, subtitle.ScriptLatin)
	got, err := s.Split(context.Background(), "   ")
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Split = %q, want none", got)
	}
}

func TestChunkText_PrefersSentencePunctuation(t *testing.T) {
	t.Parallel()

	// Build text exceeding one chunk with a sentence end shortly before the
	// limit; the cut must land right after the period.
	var b strings.Builder
	for i := 0; i < 490; i++ {
		b.WriteString("word ")
	}
	b.WriteString("done. ")
	for i := 0; i < 100; i++ {
		b.WriteString("tail ")
	}

	chunks := chunkText(strings.TrimSpace(b.String()), subtitle.ScriptLatin)
	if len(chunks) != 2 {
		t.Fatalf("len(chunks) = %d, want 2", len(chunks))
	}
	if !strings.HasSuffix(chunks[0], "done.") {
		t.Errorf("chunk 0 ends with %q, want the sentence end", lastWords(chunks[0], 2))
	}
	if !strings.HasPrefix(chunks[1], "tail") {
		t.Errorf("chunk 1 starts with %q", lastWords(chunks[1], 1))
	}
}

func TestChunkText_ShortTextSingleChunk(t *testing.T) {
	t.Parallel()

	chunks := chunkText("just a few words", subtitle.ScriptLatin)
	if len(chunks) != 1 || chunks[0] != "just a few words" {
		t.Errorf("chunks = %q", chunks)
	}
}

func TestAlignSentences_MapsBoundaries(t *testing.T) {
	t.Parallel()

	words := []subtitle.WordUnit{
		{Text: "the"}, {Text: "cache"}, {Text: "is"}, {Text: "cold"},
		{Text: "warm"}, {Text: "it"}, {Text: "up"},
	}
	hints := alignSentences(
		[]string{"the cache is cold", "warm it up"},
		words, subtitle.ScriptLatin,
	)
	if !hints[3] {
		t.Errorf("hints = %v, want boundary after word 3", hints)
	}
	if len(hints) != 1 {
		t.Errorf("hints = %v, want exactly one (final boundary is implicit)", hints)
	}
}

func TestAlignSentences_SkipsUnmatchable(t *testing.T) {
	t.Parallel()

	words := []subtitle.WordUnit{
		{Text: "alpha"}, {Text: "beta"}, {Text: "gamma"}, {Text: "delta"},
	}
	hints := alignSentences([]string{"zzz qqq xxx"}, words, subtitle.ScriptLatin)
	if len(hints) != 0 {
		t.Errorf("hints = %v, want none for an unmatchable sentence", hints)
	}
}

func lastWords(s string, n int) string {
	f := strings.Fields(s)
	if len(f) > n {
		f = f[len(f)-n:]
	}
	return strings.Join(f, " ")
}
