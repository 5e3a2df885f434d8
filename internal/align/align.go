// Package align attaches the original segment timeline to rewritten or
// translated text whose structure cannot be trusted: the model may have
// merged, re-split, re-punctuated, or reordered items.
//
// Same-language rewrites are aligned token by token with a longest-common-
// subsequence match. Cross-language text, where token matching is
// meaningless, is re-split into exactly one chunk per original segment by a
// monotonic dynamic-programming pass over length proportions and
// punctuation. The engine never fails: any input degrades to the original
// text with a per-segment quality flag.
package align

import (
	"strings"
	"unicode"

	"github.com/subforge/subforge/pkg/subtitle"
)

const (
	defaultLengthWeight = 1.0
	defaultPunctWeight  = 0.4

	defaultMinLengthRatio = 0.3
	defaultMaxLengthRatio = 3.0

	// defaultLCSThreshold is the token-match ratio below which text is
	// treated as cross-language and aligned proportionally instead.
	defaultLCSThreshold = 0.25

	// maxLCSCells bounds the LCS table; larger spans fall back to the
	// proportional split.
	maxLCSCells = 4_000_000
)

// Config tunes the alignment engine. Zero fields take defaults.
type Config struct {
	// Script selects tokenization and join rules for the rewritten text.
	Script subtitle.Script

	// LengthWeight scales the cost of deviating from the original length
	// proportions in the cross-language split. Default: 1.0.
	LengthWeight float64

	// PunctWeight scales the reward for cutting at punctuation in the
	// cross-language split. Default: 0.4.
	PunctWeight float64

	// MinLengthRatio and MaxLengthRatio bound the rewritten/original length
	// ratio considered sane. Outside the bounds the engine falls back to an
	// even split and flags every segment. Defaults: 0.3 and 3.0.
	MinLengthRatio float64
	MaxLengthRatio float64

	// LCSThreshold is the minimum token-match ratio for the same-language
	// path. Default: 0.25.
	LCSThreshold float64
}

func (c Config) withDefaults() Config {
	if !c.Script.IsValid() {
		c.Script = subtitle.ScriptLatin
	}
	if c.LengthWeight == 0 {
		c.LengthWeight = defaultLengthWeight
	}
	if c.PunctWeight == 0 {
		c.PunctWeight = defaultPunctWeight
	}
	if c.MinLengthRatio == 0 {
		c.MinLengthRatio = defaultMinLengthRatio
	}
	if c.MaxLengthRatio == 0 {
		c.MaxLengthRatio = defaultMaxLengthRatio
	}
	if c.LCSThreshold == 0 {
		c.LCSThreshold = defaultLCSThreshold
	}
	return c
}

// Engine aligns rewritten text to segment timelines. It is stateless apart
// from its configuration and safe for concurrent use.
type Engine struct {
	cfg Config
}

// New creates an [Engine] with cfg, filling in defaults for zero fields.
func New(cfg Config) *Engine {
	return &Engine{cfg: cfg.withDefaults()}
}

// Align produces exactly one [subtitle.AlignedSegment] per input segment,
// with every timestamp copied verbatim. Spans not covering a segment, and
// spans carrying nothing usable, degrade to the original segment text. Align
// never returns an error by design.
func (e *Engine) Align(segments []subtitle.Segment, spans []subtitle.RewrittenSpan) []subtitle.AlignedSegment {
	out := make([]subtitle.AlignedSegment, len(segments))
	for i, s := range segments {
		out[i] = subtitle.AlignedSegment{
			ID:    s.ID,
			Text:  s.Text,
			Start: s.Start,
			End:   s.End,
			Flag:  subtitle.FlagDegraded,
		}
	}

	for _, span := range spans {
		lo, hi := span.Lo, span.Hi
		if lo < 0 {
			lo = 0
		}
		if hi > len(segments) {
			hi = len(segments)
		}
		if lo >= hi {
			continue
		}
		e.alignSpan(segments[lo:hi], out[lo:hi], span)
	}
	return out
}

// alignSpan fills out for one span's worth of segments.
func (e *Engine) alignSpan(segs []subtitle.Segment, out []subtitle.AlignedSegment, span subtitle.RewrittenSpan) {
	if span.Degraded {
		for i := range out {
			out[i].Text = segs[i].Text
			out[i].Flag = subtitle.FlagDegraded
		}
		return
	}

	if span.Ordered && len(span.Items) == len(segs) {
		for i, item := range span.Items {
			item = strings.TrimSpace(item)
			if item == "" {
				out[i].Text = segs[i].Text
				out[i].Flag = subtitle.FlagLowConfidence
				continue
			}
			out[i].Text = item
			out[i].Flag = subtitle.FlagNone
		}
		return
	}

	text := strings.TrimSpace(span.Text)
	if text == "" {
		// Nothing usable came back for the whole span.
		for i := range out {
			out[i].Text = segs[i].Text
			out[i].Flag = subtitle.FlagDegraded
		}
		return
	}

	if len(segs) == 1 {
		out[0].Text = text
		out[0].Flag = subtitle.FlagNone
		return
	}

	origUnits := 0
	for _, s := range segs {
		origUnits += subtitle.CountUnits(s.Text)
	}
	rewUnits := subtitle.CountUnits(text)
	if origUnits > 0 {
		ratio := float64(rewUnits) / float64(origUnits)
		if ratio < e.cfg.MinLengthRatio || ratio > e.cfg.MaxLengthRatio {
			// Wildly off for any plausible language pair: distribute the
			// text evenly rather than trusting proportions.
			texts := evenSplit(text, len(segs), e.cfg.Script)
			for i := range out {
				out[i].Text = texts[i]
				out[i].Flag = subtitle.FlagLowConfidence
				if strings.TrimSpace(texts[i]) == "" {
					out[i].Text = segs[i].Text
				}
			}
			return
		}
	}

	if texts, ok := e.lcsSplit(segs, text); ok {
		for i := range out {
			out[i].Text = texts[i]
			out[i].Flag = subtitle.FlagNone
		}
		return
	}

	texts, flags := e.proportionalSplit(segs, text)
	for i := range out {
		out[i].Text = texts[i]
		out[i].Flag = flags[i]
		if strings.TrimSpace(texts[i]) == "" {
			out[i].Text = segs[i].Text
			out[i].Flag = subtitle.FlagLowConfidence
		}
	}
}

// token is one alignment unit of text: a word for Latin scripts, a rune for
// CJK. surface keeps the original spelling; norm is the form tokens are
// matched on.
type token struct {
	surface string
	norm    string
}

// tokenize splits text into tokens under the script's rules.
func tokenize(text string, script subtitle.Script) []token {
	var toks []token
	if script == subtitle.ScriptCJK {
		for _, r := range text {
			if unicode.IsSpace(r) {
				continue
			}
			s := string(r)
			toks = append(toks, token{surface: s, norm: strings.ToLower(s)})
		}
		return toks
	}
	for _, f := range strings.Fields(text) {
		norm := strings.ToLower(strings.TrimFunc(f, func(r rune) bool {
			return unicode.IsPunct(r) || unicode.IsSymbol(r)
		}))
		if norm == "" {
			norm = strings.ToLower(f)
		}
		toks = append(toks, token{surface: f, norm: norm})
	}
	return toks
}

// joinTokens reassembles token surfaces under the script's spacing rules.
func joinTokens(toks []token, script subtitle.Script) string {
	parts := make([]string, len(toks))
	for i, t := range toks {
		parts[i] = t.surface
	}
	return subtitle.JoinTexts(parts, script)
}

// lcsSplit attempts the same-language path: a longest-common-subsequence
// match between the original and rewritten token streams, with segment
// boundaries carried across via the matched pairs. Returns false when the
// match ratio is below the threshold (cross-language or heavy paraphrase)
// or the span is too large to table.
func (e *Engine) lcsSplit(segs []subtitle.Segment, text string) ([]string, bool) {
	var orig []token
	// Per-segment token counts give the boundary positions in the
	// concatenated original stream.
	bounds := make([]int, 0, len(segs)-1)
	for i, s := range segs {
		orig = append(orig, tokenize(s.Text, e.cfg.Script)...)
		if i < len(segs)-1 {
			bounds = append(bounds, len(orig))
		}
	}
	rew := tokenize(text, e.cfg.Script)

	n, m := len(orig), len(rew)
	if n == 0 || m == 0 || n*m > maxLCSCells {
		return nil, false
	}

	pairs := lcsPairs(orig, rew)
	longest := max(n, m)
	if float64(len(pairs))/float64(longest) < e.cfg.LCSThreshold {
		return nil, false
	}

	// Map each original boundary to the first matched rewritten position at
	// or past it. Monotonicity of the pair list keeps cuts ordered.
	cuts := make([]int, 0, len(bounds))
	for _, b := range bounds {
		cut := m
		for _, p := range pairs {
			if p.i >= b {
				cut = p.j
				break
			}
		}
		if len(cuts) > 0 && cut < cuts[len(cuts)-1] {
			cut = cuts[len(cuts)-1]
		}
		cuts = append(cuts, cut)
	}

	texts := make([]string, len(segs))
	prev := 0
	for i := range segs {
		end := m
		if i < len(cuts) {
			end = cuts[i]
		}
		texts[i] = joinTokens(rew[prev:end], e.cfg.Script)
		prev = end
	}

	// An empty chunk means the model dropped a segment's content entirely;
	// better to hand back the original than an empty subtitle.
	for i, t := range texts {
		if strings.TrimSpace(t) == "" {
			texts[i] = segs[i].Text
		}
	}
	return texts, true
}

// pair is one matched token position (original index, rewritten index).
type pair struct{ i, j int }

// lcsPairs computes the longest common subsequence of the two token streams
// and returns the matched index pairs in ascending order.
func lcsPairs(a, b []token) []pair {
	n, m := len(a), len(b)
	dp := make([][]int32, n+1)
	for i := range dp {
		dp[i] = make([]int32, m+1)
	}
	for i := n - 1; i >= 0; i-- {
		for j := m - 1; j >= 0; j-- {
			if a[i].norm == b[j].norm {
				dp[i][j] = dp[i+1][j+1] + 1
			} else {
				dp[i][j] = max(dp[i+1][j], dp[i][j+1])
			}
		}
	}

	var pairs []pair
	i, j := 0, 0
	for i < n && j < m {
		switch {
		case a[i].norm == b[j].norm:
			pairs = append(pairs, pair{i, j})
			i++
			j++
		case dp[i+1][j] >= dp[i][j+1]:
			i++
		default:
			j++
		}
	}
	return pairs
}
