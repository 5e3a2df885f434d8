package optimize

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/subforge/subforge/pkg/subtitle"
)

const rewriteSystemPrompt = `You are a subtitle editor. You receive numbered subtitle lines transcribed by a speech recognizer.
For each line: fix recognition errors, spelling, and punctuation. Keep the meaning and wording as close to the original as possible.
Rules:
- Reply with exactly the same numbered lines, one per line, in the form "#N: text".
- Never merge, split, drop, or reorder lines.
- Never add commentary.`

const translateSystemPromptFmt = `You are a subtitle translator. You receive numbered subtitle lines transcribed by a speech recognizer.
Translate each line into %s, fixing obvious recognition errors along the way.
Rules:
- Reply with exactly the same numbered lines, one per line, in the form "#N: text".
- Never merge, split, drop, or reorder lines.
- Never add commentary.`

// systemPrompt returns the instruction block for the configured mode.
func (o *Orchestrator) systemPrompt() string {
	if o.cfg.TargetLanguage != "" {
		return fmt.Sprintf(translateSystemPromptFmt, o.cfg.TargetLanguage)
	}
	return rewriteSystemPrompt
}

// buildPrompts assembles the system and user prompts for one batch,
// including any glossary/manuscript context. A context-source failure is
// reported but still yields usable prompts without the context block.
func (o *Orchestrator) buildPrompts(ctx context.Context, segs []subtitle.Segment) (system, user string, err error) {
	system = o.systemPrompt()

	var b strings.Builder
	for i, s := range segs {
		fmt.Fprintf(&b, "#%d: %s\n", i+1, s.Text)
	}
	user = strings.TrimRight(b.String(), "\n")

	if o.cfg.Context == nil {
		return system, user, nil
	}
	extra, cerr := o.cfg.Context.PromptContext(ctx, user, o.cfg.ContextLimit)
	if cerr != nil {
		return system, user, cerr
	}
	if extra != "" {
		system = system + "\n\n" + extra
	}
	return system, user, nil
}

// numberedLine matches one response line of the "#N: text" contract, with
// some tolerance for the separators models actually produce.
var numberedLine = regexp.MustCompile(`^\s*#?(\d+)\s*[:.)\-]\s*(.*)$`)

// parseNumbered extracts exactly n items from a numbered response. Returns
// false when any line breaks the contract: missing numbers, duplicates,
// out-of-range indices, or unnumbered lines.
func parseNumbered(content string, n int) ([]string, bool) {
	items := make([]string, n)
	seen := make([]bool, n)
	found := 0

	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		m := numberedLine.FindStringSubmatch(line)
		if m == nil {
			return nil, false
		}
		idx, err := strconv.Atoi(m[1])
		if err != nil || idx < 1 || idx > n || seen[idx-1] {
			return nil, false
		}
		seen[idx-1] = true
		items[idx-1] = strings.TrimSpace(m[2])
		found++
	}
	return items, found == n
}

// bagText flattens a response that broke the numbered contract into plain
// document-order text, stripping whatever numbering fragments remain.
func bagText(content string) string {
	var parts []string
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if m := numberedLine.FindStringSubmatch(line); m != nil {
			line = strings.TrimSpace(m[2])
			if line == "" {
				continue
			}
		}
		parts = append(parts, line)
	}
	return strings.Join(parts, " ")
}
