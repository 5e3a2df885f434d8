package normalize

import (
	"errors"
	"testing"
	"time"

	"github.com/subforge/subforge/pkg/subtitle"
)

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }

func TestClean_DropsEmptyAndZeroDuration(t *testing.T) {
	t.Parallel()

	in := []subtitle.WordUnit{
		{Text: "hello", Start: ms(0), End: ms(200)},
		{Text: "   ", Start: ms(200), End: ms(300)},
		{Text: "zero", Start: ms(300), End: ms(300)},
		{Text: "world", Start: ms(300), End: ms(500)},
	}
	out, err := Clean(in, Options{Script: subtitle.ScriptLatin})
	if err != nil {
		t.Fatalf("Clean: unexpected error: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("Clean: got %d words, want 2", len(out))
	}
	if out[0].Text != "hello" || out[1].Text != "world" {
		t.Errorf("Clean: got %q/%q, want hello/world", out[0].Text, out[1].Text)
	}
}

func TestClean_ClampsOverlap(t *testing.T) {
	t.Parallel()

	in := []subtitle.WordUnit{
		{Text: "a", Start: ms(0), End: ms(600)},
		{Text: "b", Start: ms(500), End: ms(900)},
	}
	out, err := Clean(in, Options{})
	if err != nil {
		t.Fatalf("Clean: unexpected error: %v", err)
	}
	if out[0].End > out[1].Start {
		t.Errorf("Clean: overlap not clamped: end[0]=%v start[1]=%v", out[0].End, out[1].Start)
	}
}

func TestClean_RejectsEmptyInput(t *testing.T) {
	t.Parallel()

	_, err := Clean(nil, Options{})
	var malformed *subtitle.MalformedInputError
	if !errors.As(err, &malformed) {
		t.Fatalf("Clean(nil): err = %v, want MalformedInputError", err)
	}
}

func TestClean_RejectsNonMonotonic(t *testing.T) {
	t.Parallel()

	in := []subtitle.WordUnit{
		{Text: "a", Start: ms(2000), End: ms(2400)},
		{Text: "b", Start: ms(100), End: ms(400)},
	}
	_, err := Clean(in, Options{Tolerance: ms(50)})
	var malformed *subtitle.MalformedInputError
	if !errors.As(err, &malformed) {
		t.Fatalf("Clean: err = %v, want MalformedInputError", err)
	}
	if malformed.Index != 1 {
		t.Errorf("Clean: error index = %d, want 1", malformed.Index)
	}
}

func TestClean_SmallRegressionWithinToleranceClamped(t *testing.T) {
	t.Parallel()

	in := []subtitle.WordUnit{
		{Text: "a", Start: ms(100), End: ms(400)},
		{Text: "b", Start: ms(95), End: ms(700)},
	}
	out, err := Clean(in, Options{Tolerance: ms(10)})
	if err != nil {
		t.Fatalf("Clean: unexpected error: %v", err)
	}
	if out[1].Start != out[0].Start {
		t.Errorf("Clean: start not clamped: got %v, want %v", out[1].Start, out[0].Start)
	}
}

func TestClean_CJKWhitespaceStripped(t *testing.T) {
	t.Parallel()

	in := []subtitle.WordUnit{{Text: " 你 好 ", Start: ms(0), End: ms(300)}}
	out, err := Clean(in, Options{Script: subtitle.ScriptCJK})
	if err != nil {
		t.Fatalf("Clean: unexpected error: %v", err)
	}
	if out[0].Text != "你好" {
		t.Errorf("Clean: text = %q, want %q", out[0].Text, "你好")
	}
}
