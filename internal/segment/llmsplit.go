package segment

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/antzucaro/matchr"

	"github.com/subforge/subforge/pkg/provider/llm"
	"github.com/subforge/subforge/pkg/subtitle"
)

// Splitter produces linguistically complete sentences from a run of text.
// Implementations must be deterministic per call; the engine makes exactly
// one decision per document and never retries.
type Splitter interface {
	Split(ctx context.Context, text string) ([]string, error)
}

const (
	// chunkUnits is the approximate size of one model split request.
	chunkUnits = 500

	// chunkSlack is how far back from the chunk limit a sentence-final
	// punctuation mark is searched before falling back to a hard cut.
	chunkSlack = 30

	// minSentenceSimilarity is the floor for fuzzy-matching a model sentence
	// back onto the source word sequence.
	minSentenceSimilarity = 0.5
)

const splitSystemPrompt = `You split transcribed speech into natural sentences.
Rules:
- Output one sentence per line.
- Do not add, remove, reorder, or correct any words.
- Do not add any commentary or numbering.`

// LLMSplitter implements [Splitter] on top of an [llm.Provider]. Long text is
// cut into chunks of roughly 500 units before being sent, preferring to cut
// at sentence punctuation near the limit.
type LLMSplitter struct {
	provider llm.Provider
	script   subtitle.Script
}

// NewLLMSplitter returns a splitter backed by provider, counting and joining
// text with the rules of script.
func NewLLMSplitter(provider llm.Provider, script subtitle.Script) *LLMSplitter {
	if !script.IsValid() {
		script = subtitle.ScriptLatin
	}
	return &LLMSplitter{provider: provider, script: script}
}

// Split sends text to the model chunk by chunk and returns the combined
// sentence list. A chunk whose response does not reassemble into its input
// is kept as a single sentence rather than trusting a rewriting model.
func (s *LLMSplitter) Split(ctx context.Context, text string) ([]string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}

	var sentences []string
	for _, chunk := range chunkText(text, s.script) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		lines, err := s.splitChunk(ctx, chunk)
		if err != nil {
			return nil, fmt.Errorf("splitting chunk: %w", err)
		}
		sentences = append(sentences, lines...)
	}
	return sentences, nil
}

func (s *LLMSplitter) splitChunk(ctx context.Context, chunk string) ([]string, error) {
	resp, err := s.provider.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: splitSystemPrompt,
		Messages:     []llm.Message{{Role: "user", Content: chunk}},
		Temperature:  0,
	})
	if err != nil {
		return nil, err
	}

	var lines []string
	for _, l := range strings.Split(resp.Content, "\n") {
		l = strings.TrimSpace(l)
		if l != "" {
			lines = append(lines, l)
		}
	}
	if len(lines) == 0 || !reassembles(chunk, lines) {
		// The model dropped or rewrote words; its boundaries are worthless.
		return []string{chunk}, nil
	}
	return lines, nil
}

// reassembles checks that the joined response is essentially the input text,
// ignoring whitespace.
func reassembles(chunk string, lines []string) bool {
	squash := func(v string) string {
		return strings.ToLower(strings.Join(strings.Fields(v), ""))
	}
	return similarity(squash(chunk), squash(strings.Join(lines, " "))) >= 0.9
}

// chunkText cuts text into pieces of at most chunkUnits script units,
// preferring a cut right after sentence punctuation within the last
// chunkSlack words of the window.
func chunkText(text string, script subtitle.Script) []string {
	words := strings.Fields(text)
	if script == subtitle.ScriptCJK {
		// CJK text carries no useful spaces; treat each rune as a word.
		words = nil
		for _, r := range text {
			if !unicode.IsSpace(r) {
				words = append(words, string(r))
			}
		}
	}

	var chunks []string
	join := func(ws []string) string { return subtitle.JoinTexts(ws, script) }

	for len(words) > 0 {
		limit := 0
		unitsSoFar := 0
		for limit < len(words) && unitsSoFar < chunkUnits {
			unitsSoFar += max(subtitle.CountUnits(words[limit]), 1)
			limit++
		}
		if limit == len(words) {
			chunks = append(chunks, join(words))
			break
		}

		cut := limit
		for back := 0; back < chunkSlack && limit-1-back > 0; back++ {
			if subtitle.EndsSentence(words[limit-1-back]) {
				cut = limit - back
				break
			}
		}
		chunks = append(chunks, join(words[:cut]))
		words = words[cut:]
	}
	return chunks
}

// alignSentences maps model sentence boundaries back onto word positions.
// Each sentence is matched against a sliding window of words by normalized
// edit distance; a sentence that matches nothing above the similarity floor
// is skipped. The returned set holds boundary indices b, meaning a sentence
// ends after words[b].
func alignSentences(sentences []string, words []subtitle.WordUnit, script subtitle.Script) map[int]bool {
	hints := map[int]bool{}
	cursor := 0

	for _, sent := range sentences {
		if cursor >= len(words) {
			break
		}
		want := subtitle.CountUnits(sent)
		if want == 0 {
			continue
		}

		// Try window lengths around the sentence's own unit count.
		bestEnd := -1
		bestScore := 0.0
		unitsSoFar := 0
		for end := cursor; end < len(words); end++ {
			unitsSoFar += max(subtitle.CountUnits(words[end].Text), 1)
			if unitsSoFar > want*2+4 {
				break
			}
			window := subtitle.JoinWords(words[cursor:end+1], script)
			score := similarity(normalizeForMatch(sent), normalizeForMatch(window))
			if score > bestScore {
				bestScore = score
				bestEnd = end
			}
		}
		if bestEnd < 0 || bestScore < minSentenceSimilarity {
			continue
		}
		if bestEnd < len(words)-1 {
			hints[bestEnd] = true
		}
		cursor = bestEnd + 1
	}
	return hints
}

func normalizeForMatch(v string) string {
	return strings.ToLower(strings.Join(strings.Fields(v), ""))
}

// similarity is a normalized edit-distance ratio in [0, 1].
func similarity(a, b string) float64 {
	if a == b {
		return 1
	}
	longest := max(len([]rune(a)), len([]rune(b)))
	if longest == 0 {
		return 1
	}
	d := matchr.Levenshtein(a, b)
	return 1 - float64(d)/float64(longest)
}
