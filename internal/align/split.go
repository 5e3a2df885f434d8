package align

import (
	"math"
	"strings"

	"github.com/subforge/subforge/pkg/subtitle"
)

// proportionalSplit is the cross-language path: it re-splits text into
// exactly len(segs) chunks with a monotonic dynamic program whose cost
// combines deviation from the original segments' length proportions with a
// reward for cutting at punctuation the model emitted.
//
// Segments whose chunk borders landed on punctuation are unflagged; a chunk
// carved out of unpunctuated text is marked low-confidence.
func (e *Engine) proportionalSplit(segs []subtitle.Segment, text string) ([]string, []subtitle.Flag) {
	k := len(segs)
	toks := tokenize(text, e.cfg.Script)
	if len(toks) < k {
		// Too few tokens to give every segment one; fall back to a raw
		// character split in the original proportions.
		return e.charSplit(segs, text)
	}

	// Per-token and per-segment unit weights.
	tu := make([]int, len(toks))
	for i, t := range toks {
		tu[i] = max(subtitle.CountUnits(t.surface), 1)
	}
	prefix := make([]int, len(toks)+1)
	for i, u := range tu {
		prefix[i+1] = prefix[i] + u
	}
	totalTok := prefix[len(toks)]

	origUnits := make([]int, k)
	origTotal := 0
	for i, s := range segs {
		origUnits[i] = max(subtitle.CountUnits(s.Text), 1)
		origTotal += origUnits[i]
	}

	targets := make([]float64, k)
	for i := range targets {
		targets[i] = float64(origUnits[i]) / float64(origTotal) * float64(totalTok)
	}
	avgTarget := float64(totalTok) / float64(k)

	// cutBonus rewards ending a chunk after toks[t-1].
	cutBonus := func(t int) float64 {
		if t == len(toks) {
			return 0
		}
		s := toks[t-1].surface
		switch {
		case subtitle.EndsSentence(s):
			return e.cfg.PunctWeight
		case subtitle.EndsClause(s):
			return e.cfg.PunctWeight / 2
		}
		return 0
	}

	// dp[c][t]: min cost of splitting the first t tokens into c non-empty
	// chunks. from[c][t] backtracks the previous cut.
	const inf = math.MaxFloat64 / 4
	m := len(toks)
	dp := make([][]float64, k+1)
	from := make([][]int, k+1)
	for c := range dp {
		dp[c] = make([]float64, m+1)
		from[c] = make([]int, m+1)
		for t := range dp[c] {
			dp[c][t] = inf
		}
	}
	dp[0][0] = 0

	for c := 1; c <= k; c++ {
		// Each remaining chunk needs at least one token.
		for t := c; t <= m-(k-c); t++ {
			for s := c - 1; s < t; s++ {
				if dp[c-1][s] >= inf {
					continue
				}
				chunkUnits := float64(prefix[t] - prefix[s])
				cost := dp[c-1][s] +
					e.cfg.LengthWeight*math.Abs(chunkUnits-targets[c-1])/avgTarget -
					cutBonus(t)
				if cost < dp[c][t] {
					dp[c][t] = cost
					from[c][t] = s
				}
			}
		}
	}

	if dp[k][m] >= inf {
		return e.charSplit(segs, text)
	}

	cuts := make([]int, k+1)
	cuts[k] = m
	for c := k; c >= 1; c-- {
		cuts[c-1] = from[c][cuts[c]]
	}

	texts := make([]string, k)
	flags := make([]subtitle.Flag, k)
	for i := 0; i < k; i++ {
		texts[i] = joinTokens(toks[cuts[i]:cuts[i+1]], e.cfg.Script)

		// Span edges count as punctuated; interior cuts must have earned
		// their bonus for the segment to pass unflagged.
		startOK := i == 0 || cutBonus(cuts[i]) > 0
		endOK := i == k-1 || cutBonus(cuts[i+1]) > 0
		if startOK && endOK {
			flags[i] = subtitle.FlagNone
		} else {
			flags[i] = subtitle.FlagLowConfidence
		}
	}
	return texts, flags
}

// charSplit distributes the raw runes of text across segments in proportion
// to the original segment lengths. Last-resort path for text with fewer
// tokens than segments (a single unbroken string, for instance). Every
// segment is flagged low-confidence.
func (e *Engine) charSplit(segs []subtitle.Segment, text string) ([]string, []subtitle.Flag) {
	weights := make([]int, len(segs))
	for i, s := range segs {
		weights[i] = max(subtitle.CountUnits(s.Text), 1)
	}
	texts := splitRunesByWeight(text, weights)
	flags := make([]subtitle.Flag, len(segs))
	for i := range flags {
		flags[i] = subtitle.FlagLowConfidence
	}
	return texts, flags
}

// evenSplit divides text into k parts of near-equal length, splitting at
// whitespace for Latin scripts when possible.
func evenSplit(text string, k int, script subtitle.Script) []string {
	if script == subtitle.ScriptLatin {
		fields := strings.Fields(text)
		if len(fields) >= k {
			out := make([]string, k)
			for i := 0; i < k; i++ {
				lo := i * len(fields) / k
				hi := (i + 1) * len(fields) / k
				out[i] = strings.Join(fields[lo:hi], " ")
			}
			return out
		}
	}
	weights := make([]int, k)
	for i := range weights {
		weights[i] = 1
	}
	return splitRunesByWeight(text, weights)
}

// splitRunesByWeight cuts text into len(weights) rune slices whose sizes
// follow the weight proportions. Cuts snap forward to the next space when
// one is adjacent, so Latin words survive where possible.
func splitRunesByWeight(text string, weights []int) []string {
	runes := []rune(strings.TrimSpace(text))
	total := 0
	for _, w := range weights {
		total += w
	}

	out := make([]string, len(weights))
	acc := 0
	prev := 0
	for i, w := range weights {
		acc += w
		cut := len(runes) * acc / total
		if i == len(weights)-1 {
			cut = len(runes)
		}
		if cut < prev {
			cut = prev
		}
		// Prefer not to cut inside a word.
		for j := cut; j < len(runes) && j < cut+8; j++ {
			if runes[j] == ' ' {
				cut = j
				break
			}
		}
		out[i] = strings.TrimSpace(string(runes[prev:cut]))
		prev = cut
	}
	return out
}
