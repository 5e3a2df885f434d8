package align

import (
	"strings"
	"testing"
	"time"

	"github.com/subforge/subforge/pkg/subtitle"
)

func seg(id int, text string, startMS, endMS int) subtitle.Segment {
	return subtitle.Segment{
		ID:    id,
		Text:  text,
		Start: time.Duration(startMS) * time.Millisecond,
		End:   time.Duration(endMS) * time.Millisecond,
	}
}

// checkInvariants asserts the cardinality and timestamp-copy guarantees that
// must hold for every alignment, no matter how broken the rewritten text.
func checkInvariants(t *testing.T, segs []subtitle.Segment, out []subtitle.AlignedSegment) {
	t.Helper()
	if len(out) != len(segs) {
		t.Fatalf("len(out) = %d, want %d", len(out), len(segs))
	}
	for i := range out {
		if out[i].Start != segs[i].Start || out[i].End != segs[i].End {
			t.Errorf("out[%d] timeline = [%v, %v], want [%v, %v]",
				i, out[i].Start, out[i].End, segs[i].Start, segs[i].End)
		}
		if out[i].ID != segs[i].ID {
			t.Errorf("out[%d].ID = %d, want %d", i, out[i].ID, segs[i].ID)
		}
	}
}

func TestAlign_IdentityRewrite(t *testing.T) {
	t.Parallel()

	segs := []subtitle.Segment{
		seg(0, "we shipped the release on friday", 0, 2000),
		seg(1, "and nothing broke over the weekend", 2000, 4500),
		seg(2, "which honestly surprised everyone", 4500, 6000),
	}
	full := strings.Join([]string{segs[0].Text, segs[1].Text, segs[2].Text}, " ")

	out := New(Config{}).Align(segs, []subtitle.RewrittenSpan{
		{Lo: 0, Hi: 3, Text: full},
	})
	checkInvariants(t, segs, out)
	for i := range out {
		if out[i].Text != segs[i].Text {
			t.Errorf("out[%d].Text = %q, want %q", i, out[i].Text, segs[i].Text)
		}
		if out[i].Flag != subtitle.FlagNone {
			t.Errorf("out[%d].Flag = %v, want ok", i, out[i].Flag)
		}
	}
}

func TestAlign_OrderedItems(t *testing.T) {
	t.Parallel()

	segs := []subtitle.Segment{
		seg(0, "original one", 0, 1000),
		seg(1, "original two", 1000, 2000),
	}
	out := New(Config{}).Align(segs, []subtitle.RewrittenSpan{{
		Lo: 0, Hi: 2,
		Items:   []string{"Rewritten one.", "Rewritten two."},
		Text:    "Rewritten one. Rewritten two.",
		Ordered: true,
	}})
	checkInvariants(t, segs, out)
	if out[0].Text != "Rewritten one." || out[1].Text != "Rewritten two." {
		t.Errorf("texts = %q, %q", out[0].Text, out[1].Text)
	}
	if out[0].Flag != subtitle.FlagNone || out[1].Flag != subtitle.FlagNone {
		t.Errorf("flags = %v, %v, want ok", out[0].Flag, out[1].Flag)
	}
}

func TestAlign_OrderedEmptyItemFallsBack(t *testing.T) {
	t.Parallel()

	segs := []subtitle.Segment{
		seg(0, "original one", 0, 1000),
		seg(1, "original two", 1000, 2000),
	}
	out := New(Config{}).Align(segs, []subtitle.RewrittenSpan{{
		Lo: 0, Hi: 2,
		Items:   []string{"Rewritten one.", "   "},
		Ordered: true,
	}})
	checkInvariants(t, segs, out)
	if out[1].Text != "original two" {
		t.Errorf("out[1].Text = %q, want the original", out[1].Text)
	}
	if out[1].Flag != subtitle.FlagLowConfidence {
		t.Errorf("out[1].Flag = %v, want low_confidence", out[1].Flag)
	}
}

func TestAlign_DegradedSpanKeepsOriginals(t *testing.T) {
	t.Parallel()

	segs := []subtitle.Segment{
		seg(0, "first", 0, 1200),
		seg(1, "second", 1200, 2400),
	}
	out := New(Config{}).Align(segs, []subtitle.RewrittenSpan{
		{Lo: 0, Hi: 2, Degraded: true},
	})
	checkInvariants(t, segs, out)
	for i := range out {
		if out[i].Text != segs[i].Text || out[i].Flag != subtitle.FlagDegraded {
			t.Errorf("out[%d] = %q/%v, want original/degraded", i, out[i].Text, out[i].Flag)
		}
	}
}

func TestAlign_WhitespaceOnlyRewrite(t *testing.T) {
	t.Parallel()

	segs := []subtitle.Segment{
		seg(0, "first", 0, 1200),
		seg(1, "second", 1200, 2400),
	}
	out := New(Config{}).Align(segs, []subtitle.RewrittenSpan{
		{Lo: 0, Hi: 2, Text: "   \n  "},
	})
	checkInvariants(t, segs, out)
	for i := range out {
		if out[i].Text != segs[i].Text || out[i].Flag != subtitle.FlagDegraded {
			t.Errorf("out[%d] = %q/%v, want original/degraded", i, out[i].Text, out[i].Flag)
		}
	}
}

func TestAlign_FuzzyRewriteSplitsAtMatches(t *testing.T) {
	t.Parallel()

	segs := []subtitle.Segment{
		seg(0, "hello world", 0, 1500),
		seg(1, "how are you", 1500, 3200),
	}
	out := New(Config{}).Align(segs, []subtitle.RewrittenSpan{
		{Lo: 0, Hi: 2, Text: "hello there, how are you?"},
	})
	checkInvariants(t, segs, out)
	if out[0].Text != "hello there," {
		t.Errorf("out[0].Text = %q", out[0].Text)
	}
	if out[1].Text != "how are you?" {
		t.Errorf("out[1].Text = %q", out[1].Text)
	}
}

func TestAlign_CrossLanguageSplitsAtPunctuation(t *testing.T) {
	t.Parallel()

	segs := []subtitle.Segment{
		seg(0, "good morning everyone", 0, 1500),
		seg(1, "the weather is great today", 1500, 3500),
		seg(2, "let us go now", 3500, 5000),
	}
	e := New(Config{Script: subtitle.ScriptCJK})
	out := e.Align(segs, []subtitle.RewrittenSpan{
		{Lo: 0, Hi: 3, Text: "大家早上好。今天天气真好。我们现在走吧。"},
	})
	checkInvariants(t, segs, out)
	want := []string{"大家早上好。", "今天天气真好。", "我们现在走吧。"}
	for i := range out {
		if out[i].Text != want[i] {
			t.Errorf("out[%d].Text = %q, want %q", i, out[i].Text, want[i])
		}
		if out[i].Flag != subtitle.FlagNone {
			t.Errorf("out[%d].Flag = %v, want ok", i, out[i].Flag)
		}
	}
}

func TestAlign_UnpunctuatedBlobProportionalSplit(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("lorem ipsum dolor sit amet consectetur ", 3)
	segs := []subtitle.Segment{
		seg(0, strings.TrimSpace(long), 0, 2000),
		seg(1, strings.TrimSpace(long), 2000, 4000),
		seg(2, strings.TrimSpace(long), 4000, 6000),
	}
	blob := strings.Repeat("x", 280)

	out := New(Config{}).Align(segs, []subtitle.RewrittenSpan{
		{Lo: 0, Hi: 3, Text: blob},
	})
	checkInvariants(t, segs, out)

	total := 0
	for i := range out {
		if out[i].Flag != subtitle.FlagLowConfidence {
			t.Errorf("out[%d].Flag = %v, want low_confidence", i, out[i].Flag)
		}
		if out[i].Text == "" {
			t.Errorf("out[%d].Text is empty", i)
		}
		total += len(out[i].Text)
		if n := len(out[i].Text); n < 280/3-10 || n > 280/3+10 {
			t.Errorf("out[%d] has %d chars, want a near-even share of 280", i, n)
		}
	}
	if total != 280 {
		t.Errorf("total chars = %d, want 280", total)
	}
}

func TestAlign_SingleCharacterRewrite(t *testing.T) {
	t.Parallel()

	segs := []subtitle.Segment{
		seg(0, "quite a lot of original words here", 0, 2000),
		seg(1, "and some more of them over here", 2000, 4000),
		seg(2, "and a final batch to close it out", 4000, 6000),
	}
	out := New(Config{}).Align(segs, []subtitle.RewrittenSpan{
		{Lo: 0, Hi: 3, Text: "x"},
	})
	checkInvariants(t, segs, out)
	for i := range out {
		if out[i].Text == "" {
			t.Errorf("out[%d].Text is empty", i)
		}
		if out[i].Flag != subtitle.FlagLowConfidence {
			t.Errorf("out[%d].Flag = %v, want low_confidence", i, out[i].Flag)
		}
	}
}

func TestAlign_UncoveredSegmentsDegrade(t *testing.T) {
	t.Parallel()

	segs := []subtitle.Segment{
		seg(0, "covered", 0, 1000),
		seg(1, "not covered", 1000, 2000),
	}
	out := New(Config{}).Align(segs, []subtitle.RewrittenSpan{
		{Lo: 0, Hi: 1, Text: "Covered!"},
	})
	checkInvariants(t, segs, out)
	if out[0].Text != "Covered!" || out[0].Flag != subtitle.FlagNone {
		t.Errorf("out[0] = %q/%v", out[0].Text, out[0].Flag)
	}
	if out[1].Text != "not covered" || out[1].Flag != subtitle.FlagDegraded {
		t.Errorf("out[1] = %q/%v, want original/degraded", out[1].Text, out[1].Flag)
	}
}

func TestEvenSplit_LatinSplitsOnWords(t *testing.T) {
	t.Parallel()

	got := evenSplit("one two three four five six", 3, subtitle.ScriptLatin)
	want := []string{"one two", "three four", "five six"}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("evenSplit[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
