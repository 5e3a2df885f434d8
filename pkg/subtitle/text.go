package subtitle

import (
	"strings"
	"unicode"
)

// Script selects the spacing and length-counting rules applied to text.
// CJK text is measured in characters and joined without spaces; Latin-like
// text is measured in words and joined with single spaces.
type Script string

const (
	ScriptLatin Script = "latin"
	ScriptCJK   Script = "cjk"
)

// IsValid reports whether s is a recognised script.
func (s Script) IsValid() bool {
	return s == ScriptLatin || s == ScriptCJK
}

// cjkRanges covers the scripts counted per-character rather than per-word.
var cjkRanges = []*unicode.RangeTable{
	unicode.Han,
	unicode.Hiragana,
	unicode.Katakana,
	unicode.Hangul,
	unicode.Thai,
}

// isCJKRune reports whether r belongs to a script counted per character.
func isCJKRune(r rune) bool {
	for _, rt := range cjkRanges {
		if unicode.Is(rt, r) {
			return true
		}
	}
	return false
}

// CountUnits counts the length of mixed-script text: every CJK character is
// one unit, the remaining text is counted as whitespace-separated words.
// This mirrors how subtitle display limits are expressed (characters for CJK
// lines, words for Latin lines).
func CountUnits(text string) int {
	cjk := 0
	var rest strings.Builder
	for _, r := range text {
		if isCJKRune(r) {
			cjk++
			rest.WriteByte(' ')
			continue
		}
		rest.WriteRune(r)
	}
	return cjk + len(strings.Fields(rest.String()))
}

// IsPurePunctuation reports whether text contains no letter, digit, or CJK
// character at all.
func IsPurePunctuation(text string) bool {
	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

// JoinWords concatenates word texts according to script spacing rules:
// CJK words join directly, Latin words join with a single space. Empty
// words are skipped either way.
func JoinWords(words []WordUnit, script Script) string {
	parts := make([]string, 0, len(words))
	for _, w := range words {
		if w.Text == "" {
			continue
		}
		parts = append(parts, w.Text)
	}
	if script == ScriptCJK {
		return strings.Join(parts, "")
	}
	return strings.Join(parts, " ")
}

// JoinTexts concatenates already-formed text fragments with script spacing.
func JoinTexts(parts []string, script Script) string {
	kept := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		kept = append(kept, p)
	}
	if script == ScriptCJK {
		return strings.Join(kept, "")
	}
	return strings.Join(kept, " ")
}

// sentencePunct are the marks treated as strong clause/sentence boundaries.
const sentencePunct = ".!?。！？…"

// clausePunct are the weaker marks treated as clause boundaries.
const clausePunct = ",;:、，；：—"

// EndsSentence reports whether text ends with a strong sentence boundary.
func EndsSentence(text string) bool {
	return endsWithAny(text, sentencePunct)
}

// EndsClause reports whether text ends with a weak clause boundary.
func EndsClause(text string) bool {
	return endsWithAny(text, clausePunct)
}

func endsWithAny(text, marks string) bool {
	trimmed := strings.TrimRight(text, `"')]»”’`+" ")
	if trimmed == "" {
		return false
	}
	runes := []rune(trimmed)
	return strings.ContainsRune(marks, runes[len(runes)-1])
}
