package glossary_test

import (
	"context"
	"strings"
	"testing"

	"github.com/subforge/subforge/internal/glossary"
	"github.com/subforge/subforge/pkg/subtitle"
)

var entries = []subtitle.GlossaryEntry{
	{Source: "Eldrinax", Target: "Eldrinax"},
	{Source: "kubernetes", Target: "Kubernetes"},
	{Source: "neural network", Target: "neural network"},
}

func TestApply_ExactAndFuzzy(t *testing.T) {
	t.Parallel()

	m := glossary.New(entries)

	got := m.Apply("we deployed kubernets to prod")
	if got != "we deployed Kubernetes to prod" {
		t.Errorf("Apply fuzzy = %q, want Kubernetes substitution", got)
	}

	got = m.Apply("eldrinax spoke.")
	if got != "Eldrinax spoke." {
		t.Errorf("Apply = %q, trailing punctuation should survive", got)
	}
}

func TestApply_NoFalsePositives(t *testing.T) {
	t.Parallel()

	m := glossary.New(entries)
	in := "completely unrelated sentence here"
	if got := m.Apply(in); got != in {
		t.Errorf("Apply = %q, want input unchanged", got)
	}
}

func TestApply_ExactOnlyWhenDistanceZero(t *testing.T) {
	t.Parallel()

	m := glossary.New(entries, glossary.WithMaxEditDistance(0))
	in := "we deployed kubernets to prod"
	if got := m.Apply(in); got != in {
		t.Errorf("Apply with fuzzy disabled = %q, want input unchanged", got)
	}
}

func TestLookup(t *testing.T) {
	t.Parallel()

	m := glossary.New(entries)
	target, ok := m.Lookup("Kubernetes")
	if !ok || target != "Kubernetes" {
		t.Errorf("Lookup = %q/%v, want Kubernetes/true", target, ok)
	}
	if _, ok := m.Lookup("postgres"); ok {
		t.Error("Lookup(postgres) matched, want miss")
	}
}

func TestCrossesTerm(t *testing.T) {
	t.Parallel()

	m := glossary.New(entries)
	if !m.CrossesTerm("we trained a neural", "network on images") {
		t.Error("CrossesTerm should detect a split of 'neural network'")
	}
	if m.CrossesTerm("we trained a neural network", "on images") {
		t.Error("CrossesTerm should not fire when the term stays whole")
	}
}

func TestPromptContext_TruncatesAndPicksParagraph(t *testing.T) {
	t.Parallel()

	manuscript := "The dragon Eldrinax guards the vault.\n\nShipping runs on Kubernetes clusters in three regions."
	m := glossary.New(entries, glossary.WithManuscript(manuscript))

	out, err := m.PromptContext(context.Background(), "our kubernetes clusters failed", 2000)
	if err != nil {
		t.Fatalf("PromptContext: %v", err)
	}
	if !strings.Contains(out, "kubernetes => Kubernetes") {
		t.Errorf("PromptContext missing glossary line: %q", out)
	}
	if !strings.Contains(out, "Kubernetes clusters in three regions") {
		t.Errorf("PromptContext picked wrong paragraph: %q", out)
	}

	small, err := m.PromptContext(context.Background(), "", 60)
	if err != nil {
		t.Fatalf("PromptContext: %v", err)
	}
	if len(small) > 200 {
		t.Errorf("PromptContext did not respect the soft ceiling: %d bytes", len(small))
	}
}
