package subtitle

import "testing"

func TestCountUnits(t *testing.T) {
	t.Parallel()

	cases := []struct {
		text string
		want int
	}{
		{"", 0},
		{"hello world", 2},
		{"你好世界", 4},
		{"我们 use mixed 文本", 6},
		{"  spaced   out  ", 2},
		{"こんにちは", 5},
	}
	for _, tc := range cases {
		if got := CountUnits(tc.text); got != tc.want {
			t.Errorf("CountUnits(%q) = %d, want %d", tc.text, got, tc.want)
		}
	}
}

func TestIsPurePunctuation(t *testing.T) {
	t.Parallel()

	if !IsPurePunctuation("...!?") {
		t.Error("IsPurePunctuation(\"...!?\") = false, want true")
	}
	if IsPurePunctuation("a.") {
		t.Error("IsPurePunctuation(\"a.\") = true, want false")
	}
	if IsPurePunctuation("。你") {
		t.Error("IsPurePunctuation(\"。你\") = true, want false")
	}
}

func TestJoinWords(t *testing.T) {
	t.Parallel()

	words := []WordUnit{{Text: "hello"}, {Text: ""}, {Text: "world"}}
	if got := JoinWords(words, ScriptLatin); got != "hello world" {
		t.Errorf("JoinWords latin = %q, want %q", got, "hello world")
	}

	cjk := []WordUnit{{Text: "你好"}, {Text: "世界"}}
	if got := JoinWords(cjk, ScriptCJK); got != "你好世界" {
		t.Errorf("JoinWords cjk = %q, want %q", got, "你好世界")
	}
}

func TestEndsSentence(t *testing.T) {
	t.Parallel()

	if !EndsSentence("Done.") {
		t.Error("EndsSentence(\"Done.\") = false, want true")
	}
	if !EndsSentence(`He said "stop."`) {
		t.Error("trailing quote should not hide the period")
	}
	if EndsSentence("and then,") {
		t.Error("EndsSentence on comma = true, want false")
	}
	if !EndsClause("and then,") {
		t.Error("EndsClause(\"and then,\") = false, want true")
	}
}
