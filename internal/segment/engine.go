// Package segment partitions a timed word sequence into subtitle-sized
// segments. Boundaries are chosen by scoring every inter-word position on
// silence gaps, punctuation, and length pressure, then selecting breaks
// greedily by descending score under hard min/max constraints. An optional
// language-model pass ([Splitter]) contributes sentence-boundary hints when
// punctuation alone is unreliable.
//
// The engine is deterministic: identical input and configuration always
// produce identical segments.
package segment

import (
	"context"
	"sort"
	"time"

	"github.com/subforge/subforge/internal/observe"
	"github.com/subforge/subforge/pkg/subtitle"
)

const (
	defaultMaxDuration  = 6 * time.Second
	defaultMinDuration  = time.Second
	defaultGapThreshold = 1500 * time.Millisecond
	defaultMergeGap     = 300 * time.Millisecond

	defaultMaxUnitsLatin = 12
	defaultMaxUnitsCJK   = 20

	// smallRunUnits and mergeMaxUnits control the post-pass that merges a
	// fragment segment into its neighbour.
	smallRunUnits = 5
	mergeMaxUnits = 12

	// termPenalty is subtracted from a boundary that would split a
	// multi-word glossary term.
	termPenalty = 2.0
)

// TermGuard reports whether a break between two text fragments would split a
// protected multi-word term. *glossary.Matcher satisfies it.
type TermGuard interface {
	CrossesTerm(left, right string) bool
}

// Config tunes the segmentation engine. The zero value is usable: every
// field falls back to a sensible default for the configured script.
type Config struct {
	// Script selects unit counting and join rules. Default: latin.
	Script subtitle.Script

	// MaxUnits is the display-length ceiling per segment, in script units
	// (characters for CJK, words for Latin). Default: 20 CJK / 12 Latin.
	MaxUnits int

	// MaxDuration is the hard duration ceiling per segment. Default: 6s.
	MaxDuration time.Duration

	// MinDuration is the duration floor; a break is never placed where
	// either resulting segment would be shorter. Default: 1s.
	MinDuration time.Duration

	// GapThreshold is the silence gap treated as a strong break candidate.
	// Default: 1500ms.
	GapThreshold time.Duration

	// MergeGap is the maximum silence between two adjacent small segments
	// for the merge pass to join them. Default: 300ms.
	MergeGap time.Duration

	// Scoring weights. Zero means default.
	GapWeight      float64 // silence-gap contribution, default 1.0
	PunctWeight    float64 // clause punctuation bonus, default 0.6
	SentenceWeight float64 // sentence punctuation bonus, default 1.0
	PressureWeight float64 // length/duration pressure, default 0.4
	HintWeight     float64 // model sentence-hint bonus, default 1.5

	// BreakThreshold is the minimum effective score for a voluntary break.
	// Default: 1.0.
	BreakThreshold float64

	// Terms optionally penalizes boundaries that split a glossary term.
	Terms TermGuard

	// Splitter optionally contributes sentence boundaries from a language
	// model. Errors from it are logged and ignored; segmentation proceeds
	// on punctuation and gaps alone.
	Splitter Splitter
}

func (c Config) withDefaults() Config {
	if !c.Script.IsValid() {
		c.Script = subtitle.ScriptLatin
	}
	if c.MaxUnits <= 0 {
		if c.Script == subtitle.ScriptCJK {
			c.MaxUnits = defaultMaxUnitsCJK
		} else {
			c.MaxUnits = defaultMaxUnitsLatin
		}
	}
	if c.MaxDuration <= 0 {
		c.MaxDuration = defaultMaxDuration
	}
	if c.MinDuration <= 0 {
		c.MinDuration = defaultMinDuration
	}
	if c.GapThreshold <= 0 {
		c.GapThreshold = defaultGapThreshold
	}
	if c.MergeGap <= 0 {
		c.MergeGap = defaultMergeGap
	}
	if c.GapWeight == 0 {
		c.GapWeight = 1.0
	}
	if c.PunctWeight == 0 {
		c.PunctWeight = 0.6
	}
	if c.SentenceWeight == 0 {
		c.SentenceWeight = 1.0
	}
	if c.PressureWeight == 0 {
		c.PressureWeight = 0.4
	}
	if c.HintWeight == 0 {
		c.HintWeight = 1.5
	}
	if c.BreakThreshold == 0 {
		c.BreakThreshold = 1.0
	}
	return c
}

// Engine segments word sequences. It is stateless apart from its
// configuration and safe for concurrent use.
type Engine struct {
	cfg Config
}

// New creates an [Engine] with cfg, filling in defaults for zero fields.
func New(cfg Config) *Engine {
	return &Engine{cfg: cfg.withDefaults()}
}

// Segment partitions words into ordered, non-overlapping segments covering
// every word exactly once. Inputs too small to split become a single
// segment. An empty input yields an empty result, never an error.
func (e *Engine) Segment(ctx context.Context, words []subtitle.WordUnit) ([]subtitle.Segment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	n := len(words)
	if n == 0 {
		return nil, nil
	}

	units := make([]int, n)
	totalUnits := 0
	for i, w := range words {
		units[i] = subtitle.CountUnits(w.Text)
		totalUnits += units[i]
	}
	totalDur := words[n-1].End - words[0].Start

	if n < 2 {
		return e.build(words, []run{{0, n}}), nil
	}
	// A segment spanning a threshold-wide silence would display text during
	// dead air, so the short-input shortcut only applies without one.
	if totalUnits <= e.cfg.MaxUnits && totalDur <= e.cfg.MaxDuration && !e.hasWideGap(words) {
		return e.build(words, []run{{0, n}}), nil
	}

	hints := e.sentenceHints(ctx, words)
	scores := e.scoreBoundaries(words, hints)

	breaks := e.selectBreaks(words, units, scores)
	breaks = e.forceBreaks(words, units, breaks)

	runs := runsFromBreaks(breaks, n)
	runs = e.mergeSmallRuns(words, units, runs)

	return e.build(words, runs), nil
}

// run is a half-open word range [lo, hi).
type run struct{ lo, hi int }

// hasWideGap reports whether any inter-word silence reaches GapThreshold.
func (e *Engine) hasWideGap(words []subtitle.WordUnit) bool {
	for b := 0; b < len(words)-1; b++ {
		if words[b+1].Start-words[b].End >= e.cfg.GapThreshold {
			return true
		}
	}
	return false
}

// scoreBoundaries assigns the static score of a break after words[b], for
// every b in [0, n-1).
func (e *Engine) scoreBoundaries(words []subtitle.WordUnit, hints map[int]bool) []float64 {
	n := len(words)
	scores := make([]float64, n-1)
	for b := 0; b < n-1; b++ {
		s := 0.0

		gap := words[b+1].Start - words[b].End
		if gap > 0 {
			ratio := float64(gap) / float64(e.cfg.GapThreshold)
			if ratio > 1.5 {
				ratio = 1.5
			}
			s += e.cfg.GapWeight * ratio
		}
		if gap >= e.cfg.GapThreshold {
			// A silence above the threshold is a strong candidate on its own.
			s += e.cfg.GapWeight
		}

		switch {
		case subtitle.EndsSentence(words[b].Text):
			s += e.cfg.SentenceWeight
		case subtitle.EndsClause(words[b].Text):
			s += e.cfg.PunctWeight
		}

		if hints[b] {
			s += e.cfg.HintWeight
		}

		if e.cfg.Terms != nil && e.crossesTerm(words, b) {
			s -= termPenalty
		}

		scores[b] = s
	}
	return scores
}

// crossesTerm checks the few words around boundary b against the term guard.
func (e *Engine) crossesTerm(words []subtitle.WordUnit, b int) bool {
	lo := max(0, b-2)
	hi := min(len(words), b+4)
	left := subtitle.JoinWords(words[lo:b+1], e.cfg.Script)
	right := subtitle.JoinWords(words[b+1:hi], e.cfg.Script)
	return e.cfg.Terms.CrossesTerm(left, right)
}

// selectBreaks picks breaks greedily by descending effective score. A break
// whose preferred position would violate the minimum duration on either side
// shifts to the nearest valid boundary within the same run; when no valid
// position exists the candidate is discarded.
func (e *Engine) selectBreaks(words []subtitle.WordUnit, units []int, scores []float64) map[int]bool {
	n := len(words)
	breaks := map[int]bool{}
	dead := map[int]bool{}

	for {
		runs := runsFromBreaks(breaks, n)

		best := -1
		bestScore := 0.0
		for _, r := range runs {
			pressure := e.pressure(words, units, r)
			for b := r.lo; b < r.hi-1; b++ {
				if breaks[b] || dead[b] {
					continue
				}
				eff := scores[b] + e.cfg.PressureWeight*pressure
				if best == -1 || eff > bestScore {
					best = b
					bestScore = eff
				}
			}
		}
		if best == -1 || bestScore < e.cfg.BreakThreshold {
			return breaks
		}

		r := runContaining(runsFromBreaks(breaks, n), best)
		place, ok := e.nearestValid(words, r, best)
		if !ok {
			dead[best] = true
			continue
		}
		breaks[place] = true
		if place != best {
			dead[best] = true
		}
	}
}

// nearestValid returns the boundary closest to b inside run r where both
// resulting halves satisfy the minimum duration. Scans left before right at
// equal distance so a too-short trailing half shifts the break earlier.
func (e *Engine) nearestValid(words []subtitle.WordUnit, r run, b int) (int, bool) {
	for d := 0; d < r.hi-r.lo; d++ {
		for _, cand := range []int{b - d, b + d} {
			if cand < r.lo || cand >= r.hi-1 {
				continue
			}
			leftDur := words[cand].End - words[r.lo].Start
			rightDur := words[r.hi-1].End - words[cand+1].Start
			if leftDur >= e.cfg.MinDuration && rightDur >= e.cfg.MinDuration {
				return cand, true
			}
		}
	}
	return 0, false
}

// pressure measures how close a run is to its limits, in [0, ~1+].
func (e *Engine) pressure(words []subtitle.WordUnit, units []int, r run) float64 {
	u := 0
	for i := r.lo; i < r.hi; i++ {
		u += units[i]
	}
	dur := words[r.hi-1].End - words[r.lo].Start
	uRatio := float64(u) / float64(e.cfg.MaxUnits)
	dRatio := float64(dur) / float64(e.cfg.MaxDuration)
	return max(uRatio, dRatio)
}

// forceBreaks splits every run still exceeding a hard limit at the widest
// silence gap in the middle two-thirds of the run, recursively.
func (e *Engine) forceBreaks(words []subtitle.WordUnit, units []int, breaks map[int]bool) map[int]bool {
	for _, r := range runsFromBreaks(breaks, len(words)) {
		e.forceSplitRun(words, units, r, breaks)
	}
	return breaks
}

func (e *Engine) forceSplitRun(words []subtitle.WordUnit, units []int, r run, breaks map[int]bool) {
	if r.hi-r.lo < 2 {
		return
	}
	u := 0
	for i := r.lo; i < r.hi; i++ {
		u += units[i]
	}
	dur := words[r.hi-1].End - words[r.lo].Start
	if u <= e.cfg.MaxUnits && dur <= e.cfg.MaxDuration {
		return
	}

	// Candidate boundaries restricted to the middle two-thirds so a forced
	// break never produces a sliver at either end.
	margin := (r.hi - r.lo) / 6
	zoneLo := r.lo + margin
	zoneHi := r.hi - 1 - margin
	if zoneLo >= zoneHi {
		zoneLo, zoneHi = r.lo, r.hi-1
	}

	best := -1
	bestValid := false
	var bestGap time.Duration = -1
	for b := zoneLo; b < zoneHi; b++ {
		gap := words[b+1].Start - words[b].End
		leftDur := words[b].End - words[r.lo].Start
		rightDur := words[r.hi-1].End - words[b+1].Start
		valid := leftDur >= e.cfg.MinDuration && rightDur >= e.cfg.MinDuration
		// Prefer valid boundaries; among equals, the widest gap wins.
		if (valid && !bestValid) || ((valid == bestValid) && gap > bestGap) {
			best = b
			bestGap = gap
			bestValid = valid
		}
	}
	if best == -1 {
		return
	}
	breaks[best] = true
	e.forceSplitRun(words, units, run{r.lo, best + 1}, breaks)
	e.forceSplitRun(words, units, run{best + 1, r.hi}, breaks)
}

// mergeSmallRuns joins a fragment run into its successor when they are
// separated by near-silence and the combined run stays small.
func (e *Engine) mergeSmallRuns(words []subtitle.WordUnit, units []int, runs []run) []run {
	if len(runs) < 2 {
		return runs
	}
	count := func(r run) int {
		u := 0
		for i := r.lo; i < r.hi; i++ {
			u += units[i]
		}
		return u
	}

	out := make([]run, 0, len(runs))
	cur := runs[0]
	for _, next := range runs[1:] {
		gap := words[next.lo].Start - words[cur.hi-1].End
		curUnits := count(cur)
		nextUnits := count(next)
		combined := curUnits + nextUnits
		combinedDur := words[next.hi-1].End - words[cur.lo].Start

		if gap < e.cfg.MergeGap &&
			(curUnits < smallRunUnits || nextUnits < smallRunUnits) &&
			combined <= mergeMaxUnits &&
			combined <= e.cfg.MaxUnits &&
			combinedDur <= e.cfg.MaxDuration {
			cur.hi = next.hi
			continue
		}
		out = append(out, cur)
		cur = next
	}
	return append(out, cur)
}

// sentenceHints asks the optional splitter for sentence boundaries and maps
// them onto word positions. Failures degrade to no hints.
func (e *Engine) sentenceHints(ctx context.Context, words []subtitle.WordUnit) map[int]bool {
	if e.cfg.Splitter == nil {
		return nil
	}
	text := subtitle.JoinWords(words, e.cfg.Script)
	sentences, err := e.cfg.Splitter.Split(ctx, text)
	if err != nil {
		observe.Logger(ctx).Warn("sentence splitter failed, continuing without hints", "error", err)
		return nil
	}
	return alignSentences(sentences, words, e.cfg.Script)
}

// build materialises runs into segments with sequential IDs.
func (e *Engine) build(words []subtitle.WordUnit, runs []run) []subtitle.Segment {
	segs := make([]subtitle.Segment, 0, len(runs))
	for i, r := range runs {
		segs = append(segs, subtitle.Segment{
			ID:    i,
			Text:  subtitle.JoinWords(words[r.lo:r.hi], e.cfg.Script),
			Start: words[r.lo].Start,
			End:   words[r.hi-1].End,
			Words: subtitle.WordRange{Lo: r.lo, Hi: r.hi},
		})
	}
	return segs
}

// runsFromBreaks converts a break set (break b ends a run after words[b])
// into the ordered run list covering [0, n).
func runsFromBreaks(breaks map[int]bool, n int) []run {
	bs := make([]int, 0, len(breaks))
	for b := range breaks {
		bs = append(bs, b)
	}
	sort.Ints(bs)

	runs := make([]run, 0, len(bs)+1)
	lo := 0
	for _, b := range bs {
		runs = append(runs, run{lo, b + 1})
		lo = b + 1
	}
	return append(runs, run{lo, n})
}

// runContaining returns the run whose boundary range includes b.
func runContaining(runs []run, b int) run {
	for _, r := range runs {
		if b >= r.lo && b < r.hi-1 {
			return r
		}
	}
	// b sits on an existing break; treat the whole range as one run.
	return run{0, 0}
}
