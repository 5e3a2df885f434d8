// Package subtitle defines the core data model shared by every stage of the
// subforge pipeline: timed word units produced by a speech recognizer,
// subtitle segments produced by the segmentation engine, and aligned segments
// produced by the alignment engine.
//
// Values of these types are immutable by convention: a stage never mutates a
// slice it received from an upstream stage — transformations always allocate
// new values.
package subtitle

import (
	"errors"
	"fmt"
	"time"
)

// WordUnit is a single recognized word or token with timestamps relative to
// the start of the media. Start and End are monotonically non-decreasing
// across a WordUnit sequence; End >= Start for every unit.
type WordUnit struct {
	// Text is the recognized word, already UTF-8.
	Text string

	// Start is the word onset.
	Start time.Duration

	// End is the word offset. End >= Start.
	End time.Duration

	// Confidence is the recognizer's confidence in [0, 1]. Zero when the
	// recognizer does not report one.
	Confidence float64
}

// Duration returns End - Start.
func (w WordUnit) Duration() time.Duration {
	return w.End - w.Start
}

// WordRange identifies the half-open interval [Lo, Hi) of WordUnits a
// segment was built from.
type WordRange struct {
	Lo int
	Hi int
}

// Len returns the number of words covered by the range.
func (r WordRange) Len() int { return r.Hi - r.Lo }

// Segment is a contiguous, time-coded subtitle-sized grouping of WordUnits.
// Segments in a sequence are non-overlapping and ordered by Start, and their
// Words ranges partition the source WordUnit sequence exactly.
type Segment struct {
	// ID is the zero-based ordinal of the segment within its document.
	ID int

	// Text is the display text, joined from the constituent words using the
	// spacing rules of the document script.
	Text string

	// Start is copied from the first constituent WordUnit.
	Start time.Duration

	// End is copied from the last constituent WordUnit.
	End time.Duration

	// Words is the source word range [Lo, Hi) this segment covers.
	Words WordRange
}

// Duration returns End - Start.
func (s Segment) Duration() time.Duration {
	return s.End - s.Start
}

// Flag records the quality of an aligned segment for downstream visibility.
type Flag uint8

const (
	// FlagNone marks a segment whose rewritten text aligned cleanly.
	FlagNone Flag = iota

	// FlagLowConfidence marks a segment whose text was attached by a
	// low-confidence fallback (proportional split of unpunctuated text,
	// length ratio out of bounds, and similar).
	FlagLowConfidence

	// FlagDegraded marks a segment that carries its original text because
	// the model call for its batch failed permanently or returned nothing
	// usable.
	FlagDegraded
)

// String returns the flag name used in logs and serialized output.
func (f Flag) String() string {
	switch f {
	case FlagNone:
		return "ok"
	case FlagLowConfidence:
		return "low_confidence"
	case FlagDegraded:
		return "degraded"
	default:
		return "unknown"
	}
}

// AlignedSegment is the final pipeline output: the same timeline as the
// Segment it descends from, with rewritten or translated text attached.
//
// Invariant: for every run, the aligned output has exactly the same segment
// count as the input and every Start/End is a verbatim copy.
type AlignedSegment struct {
	ID    int
	Text  string
	Start time.Duration
	End   time.Duration
	Flag  Flag
}

// GlossaryEntry maps a source term to its enforced target spelling or
// translation. Entries form an unordered set; lookup is by exact or fuzzy
// substring match.
type GlossaryEntry struct {
	Source string `yaml:"source" json:"source"`
	Target string `yaml:"target" json:"target"`
}

// RewrittenSpan is the optimization orchestrator's output for one contiguous
// run of segments [Lo, Hi). When the model response preserved the numbered
// request/response contract, Items carries one text per segment and Ordered
// is true. Otherwise the span is an unordered bag: only Text (the full
// document-order rewritten text of the span) is trustworthy and the
// alignment engine must re-attach it.
type RewrittenSpan struct {
	Lo, Hi int

	// Items has exactly Hi-Lo entries when Ordered, and is nil otherwise.
	Items []string

	// Text is the concatenated rewritten text of the span in document order.
	Text string

	Ordered  bool
	Degraded bool
}

// ErrJobCancelled is returned by the pipeline when a job is cancelled
// cooperatively. A cancelled job produces no aligned output.
var ErrJobCancelled = errors.New("subtitle: job cancelled")

// MalformedInputError reports recognizer input the normalizer refuses to
// process: an empty sequence, or timestamps that run backwards beyond the
// configured tolerance. It is fatal for the whole job — the caller must
// reject the input rather than silently reorder it.
type MalformedInputError struct {
	// Index is the offending word index, or -1 when the problem concerns the
	// sequence as a whole.
	Index int

	// Reason describes what was wrong.
	Reason string
}

func (e *MalformedInputError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("subtitle: malformed input: %s", e.Reason)
	}
	return fmt.Sprintf("subtitle: malformed input at word %d: %s", e.Index, e.Reason)
}
