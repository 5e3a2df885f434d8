// Package glossary implements the term matcher that biases segmentation and
// optimization: a substitution table of domain terms plus an optional
// reference manuscript supplying prompt context.
//
// Matching is case-insensitive and fuzzy. Candidate windows are filtered by
// Levenshtein distance (bounded per term length) and ranked by Jaro-Winkler
// similarity, which tolerates the recognizer's spelling variants of proper
// nouns and transliterations.
package glossary

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/antzucaro/matchr"

	"github.com/subforge/subforge/pkg/subtitle"
)

const (
	// defaultMaxEditDistance caps the Levenshtein tolerance regardless of
	// term length.
	defaultMaxEditDistance = 2

	// defaultContextLimit is the soft ceiling on prompt context size.
	defaultContextLimit = 1000

	// minSimilarity is the Jaro-Winkler score a fuzzy candidate must reach.
	minSimilarity = 0.84
)

// Option is a functional option for configuring a [Matcher].
type Option func(*Matcher)

// WithMaxEditDistance caps the Levenshtein tolerance used for fuzzy term
// matching. Zero disables fuzzy matching entirely (exact, case-insensitive
// only). Default: 2.
func WithMaxEditDistance(n int) Option {
	return func(m *Matcher) {
		m.maxEdit = n
	}
}

// WithManuscript attaches free-text reference material. Excerpts of it are
// injected into optimization prompts via [Matcher.PromptContext].
func WithManuscript(text string) Option {
	return func(m *Matcher) {
		m.manuscript = strings.TrimSpace(text)
	}
}

// Matcher holds the glossary entries and manuscript for one job. It is
// read-only after construction and safe for concurrent use.
type Matcher struct {
	entries    []subtitle.GlossaryEntry
	manuscript string
	maxEdit    int
}

// New returns a [Matcher] over entries. The entry set is treated as
// unordered; when several terms match the same text window the one with the
// highest Jaro-Winkler similarity wins.
func New(entries []subtitle.GlossaryEntry, opts ...Option) *Matcher {
	m := &Matcher{
		entries: entries,
		maxEdit: defaultMaxEditDistance,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Entries returns the glossary entries the matcher was built with.
func (m *Matcher) Entries() []subtitle.GlossaryEntry {
	return m.entries
}

// HasManuscript reports whether reference text was attached.
func (m *Matcher) HasManuscript() bool { return m.manuscript != "" }

// Apply substitutes every fuzzy occurrence of a glossary source term in text
// with its target. Scanning is greedy left-to-right; longer terms are tried
// before shorter ones so multi-word terms are not shadowed by their parts.
// Trailing punctuation on the matched window is preserved.
func (m *Matcher) Apply(text string) string {
	if len(m.entries) == 0 || text == "" {
		return text
	}

	words := strings.Fields(text)
	out := make([]string, 0, len(words))

	maxTermWords := 1
	for _, e := range m.entries {
		if n := len(strings.Fields(e.Source)); n > maxTermWords {
			maxTermWords = n
		}
	}

	for i := 0; i < len(words); {
		matched := false
		for span := min(maxTermWords, len(words)-i); span >= 1 && !matched; span-- {
			window := strings.Join(words[i:i+span], " ")
			core, trailing := splitTrailingPunct(window)
			if target, ok := m.bestMatch(core, span); ok {
				out = append(out, target+trailing)
				i += span
				matched = true
			}
		}
		if !matched {
			out = append(out, words[i])
			i++
		}
	}
	return strings.Join(out, " ")
}

// Lookup returns the target for term when it matches a glossary entry.
func (m *Matcher) Lookup(term string) (string, bool) {
	core, _ := splitTrailingPunct(strings.TrimSpace(term))
	return m.bestMatch(core, len(strings.Fields(core)))
}

// bestMatch finds the glossary entry most similar to window, considering
// only entries whose source has the same word count. Returns the target and
// whether a sufficiently close entry exists.
func (m *Matcher) bestMatch(window string, spanWords int) (string, bool) {
	if window == "" {
		return "", false
	}
	lower := strings.ToLower(window)

	bestScore := 0.0
	bestTarget := ""
	for _, e := range m.entries {
		src := strings.ToLower(strings.TrimSpace(e.Source))
		if src == "" || len(strings.Fields(src)) != spanWords {
			continue
		}
		if src == lower {
			return e.Target, true
		}
		if m.maxEdit == 0 {
			continue
		}
		if matchr.Levenshtein(lower, src) > m.tolerance(src) {
			continue
		}
		score := matchr.JaroWinkler(lower, src, true)
		if score >= minSimilarity && score > bestScore {
			bestScore = score
			bestTarget = e.Target
		}
	}
	return bestTarget, bestTarget != ""
}

// tolerance scales the edit-distance budget with term length, capped by the
// configured maximum.
func (m *Matcher) tolerance(term string) int {
	t := len([]rune(term)) / 5
	if t < 1 {
		t = 1
	}
	if t > m.maxEdit {
		t = m.maxEdit
	}
	return t
}

// CrossesTerm reports whether a segment break between left and right would
// split a multi-word glossary term. The segmentation engine penalizes such
// boundaries.
func (m *Matcher) CrossesTerm(left, right string) bool {
	if len(m.entries) == 0 {
		return false
	}
	leftWords := strings.Fields(left)
	rightWords := strings.Fields(right)
	if len(leftWords) == 0 || len(rightWords) == 0 {
		return false
	}

	for _, e := range m.entries {
		termWords := strings.Fields(strings.ToLower(e.Source))
		if len(termWords) < 2 {
			continue
		}
		// A break splits the term when some prefix of the term ends the left
		// side and the matching suffix starts the right side.
		for cut := 1; cut < len(termWords); cut++ {
			if tailMatches(leftWords, termWords[:cut]) && headMatches(rightWords, termWords[cut:]) {
				return true
			}
		}
	}
	return false
}

func tailMatches(words, suffix []string) bool {
	if len(words) < len(suffix) {
		return false
	}
	for i := range suffix {
		w, _ := splitTrailingPunct(words[len(words)-len(suffix)+i])
		if !looseEqual(w, suffix[i]) {
			return false
		}
	}
	return true
}

func headMatches(words, prefix []string) bool {
	if len(words) < len(prefix) {
		return false
	}
	for i := range prefix {
		w, _ := splitTrailingPunct(words[i])
		if !looseEqual(w, prefix[i]) {
			return false
		}
	}
	return true
}

// looseEqual compares two words case-insensitively with one edit of slack.
func looseEqual(a, b string) bool {
	a, b = strings.ToLower(a), strings.ToLower(b)
	if a == b {
		return true
	}
	return matchr.Levenshtein(a, b) <= 1
}

// PromptContext assembles the glossary and manuscript context injected into
// optimization prompts, truncated to limit characters (soft ceiling; the
// glossary table is never cut mid-line). query biases which manuscript
// paragraph is excerpted. The context parameter exists to satisfy the
// orchestrator's ContextSource contract; the in-memory matcher never blocks.
func (m *Matcher) PromptContext(_ context.Context, query string, limit int) (string, error) {
	if limit <= 0 {
		limit = defaultContextLimit
	}

	var b strings.Builder
	if len(m.entries) > 0 {
		b.WriteString("Glossary (always use the right-hand form):\n")
		for _, e := range m.entries {
			line := fmt.Sprintf("- %s => %s\n", e.Source, e.Target)
			if b.Len()+len(line) > limit {
				break
			}
			b.WriteString(line)
		}
	}

	if m.manuscript != "" && b.Len() < limit {
		excerpt := m.excerpt(query, limit-b.Len())
		if excerpt != "" {
			if b.Len() > 0 {
				b.WriteString("\n")
			}
			b.WriteString("Reference manuscript excerpt:\n")
			b.WriteString(excerpt)
		}
	}
	return b.String(), nil
}

// splitTrailingPunct splits trailing punctuation off a word or window so
// that "Eldrinax," can match the term "Eldrinax".
func splitTrailingPunct(s string) (core, trailing string) {
	runes := []rune(s)
	i := len(runes)
	for i > 0 && (unicode.IsPunct(runes[i-1]) || unicode.IsSymbol(runes[i-1])) {
		i--
	}
	return string(runes[:i]), string(runes[i:])
}

// excerpt picks the manuscript paragraph sharing the most words with query,
// truncated to limit runes. Falls back to the opening of the manuscript when
// nothing overlaps.
func (m *Matcher) excerpt(query string, limit int) string {
	paragraphs := strings.Split(m.manuscript, "\n\n")
	queryWords := map[string]bool{}
	for _, w := range strings.Fields(strings.ToLower(query)) {
		queryWords[strings.TrimFunc(w, unicode.IsPunct)] = true
	}

	best := paragraphs[0]
	bestScore := -1
	for _, p := range paragraphs {
		score := 0
		for _, w := range strings.Fields(strings.ToLower(p)) {
			if queryWords[strings.TrimFunc(w, unicode.IsPunct)] {
				score++
			}
		}
		if score > bestScore {
			bestScore = score
			best = p
		}
	}

	runes := []rune(strings.TrimSpace(best))
	if len(runes) > limit {
		runes = runes[:limit]
	}
	return string(runes)
}
