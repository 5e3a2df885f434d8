// Package normalize cleans raw recognizer output into the uniform WordUnit
// sequence the rest of the pipeline operates on.
//
// Recognizer output is messy in predictable ways: empty or whitespace-only
// tokens, zero-duration units, and overlapping timestamps from merged
// multi-speaker tracks. Clean removes the junk and clamps overlaps, but it
// refuses to reorder: timestamps running backwards beyond the configured
// tolerance abort the whole job with a [subtitle.MalformedInputError].
package normalize

import (
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/subforge/subforge/pkg/subtitle"
)

// DefaultTolerance is the timestamp regression allowed before the sequence
// is rejected as non-monotonic.
const DefaultTolerance = 10 * time.Millisecond

// Options parameterizes Clean.
type Options struct {
	// Script selects the whitespace rules applied to token text. CJK tokens
	// have all surrounding whitespace stripped; Latin tokens keep word
	// boundaries but collapse internal runs of whitespace.
	Script subtitle.Script

	// Tolerance is the maximum backwards jump (start before the previous
	// start, or end before start) that is silently clamped instead of
	// rejected. Zero means DefaultTolerance.
	Tolerance time.Duration
}

// Clean validates and canonicalizes raw recognizer words.
//
// It drops empty-text and zero-duration units, NFC-normalizes the text,
// applies script whitespace rules, and clamps overlapping timestamps so that
// end[k] <= start[k+1]. The input slice is never modified.
//
// Returns a [*subtitle.MalformedInputError] when the cleaned sequence is
// empty or when timestamps regress beyond opts.Tolerance.
func Clean(words []subtitle.WordUnit, opts Options) ([]subtitle.WordUnit, error) {
	if opts.Tolerance <= 0 {
		opts.Tolerance = DefaultTolerance
	}
	if opts.Script == "" {
		opts.Script = subtitle.ScriptLatin
	}

	if len(words) == 0 {
		return nil, &subtitle.MalformedInputError{Index: -1, Reason: "empty word sequence"}
	}

	out := make([]subtitle.WordUnit, 0, len(words))
	for i, w := range words {
		text := normalizeText(w.Text, opts.Script)
		if text == "" {
			continue
		}
		if w.End < w.Start {
			if w.Start-w.End > opts.Tolerance {
				return nil, &subtitle.MalformedInputError{
					Index:  i,
					Reason: "end precedes start beyond tolerance",
				}
			}
			w.End = w.Start
		}
		if w.End == w.Start {
			// Zero-duration units carry no usable timing.
			continue
		}
		w.Text = text
		out = append(out, w)
	}

	if len(out) == 0 {
		return nil, &subtitle.MalformedInputError{Index: -1, Reason: "no usable words after cleanup"}
	}

	// Enforce monotonic ordering and clamp overlaps in a second pass so the
	// indices reported in errors refer to the cleaned sequence.
	for i := 1; i < len(out); i++ {
		prev, cur := &out[i-1], &out[i]
		if cur.Start < prev.Start {
			if prev.Start-cur.Start > opts.Tolerance {
				return nil, &subtitle.MalformedInputError{
					Index:  i,
					Reason: "start timestamps not monotonic beyond tolerance",
				}
			}
			cur.Start = prev.Start
			if cur.End < cur.Start {
				cur.End = cur.Start
			}
		}
		if prev.End > cur.Start {
			prev.End = cur.Start
		}
	}

	return out, nil
}

// normalizeText NFC-normalizes a token and applies script spacing rules.
func normalizeText(text string, script subtitle.Script) string {
	text = norm.NFC.String(text)
	if script == subtitle.ScriptCJK {
		// CJK rendering adds no inter-word spaces; strip everything.
		return strings.Join(strings.Fields(text), "")
	}
	return strings.Join(strings.Fields(text), " ")
}
