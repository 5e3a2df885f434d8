package optimize

import (
	"context"
	"fmt"
)

const critiqueSystemPrompt = `You are a subtitle quality reviewer. You receive numbered source lines and a numbered draft produced from them.
Point out inaccuracies, dropped content, and unnatural phrasing, line by line. Be concise. Do not rewrite the lines yourself.`

const refineSystemPromptFmt = `You are a subtitle editor finalizing a draft.
You receive numbered source lines, a draft, and a reviewer's critique. Produce the final version%s.
Rules:
- Reply with exactly the same numbered lines, one per line, in the form "#N: text".
- Never merge, split, drop, or reorder lines.
- Never add commentary.`

// reflect runs the three-step draft, critique, refine protocol for one
// batch. Every step is an independently retried model call; the refined
// text is the result. No step is skipped.
func (o *Orchestrator) reflect(ctx context.Context, idx int, system, user string) (string, error) {
	draft, err := o.callModel(ctx, idx, system, user)
	if err != nil {
		return "", fmt.Errorf("draft: %w", err)
	}

	critiqueUser := fmt.Sprintf("Source lines:\n%s\n\nDraft:\n%s", user, draft)
	critique, err := o.callModel(ctx, idx, critiqueSystemPrompt, critiqueUser)
	if err != nil {
		return "", fmt.Errorf("critique: %w", err)
	}

	mode := ""
	if o.cfg.TargetLanguage != "" {
		mode = " in " + o.cfg.TargetLanguage
	}
	refineUser := fmt.Sprintf("Source lines:\n%s\n\nDraft:\n%s\n\nCritique:\n%s", user, draft, critique)
	refined, err := o.callModel(ctx, idx, fmt.Sprintf(refineSystemPromptFmt, mode), refineUser)
	if err != nil {
		return "", fmt.Errorf("refine: %w", err)
	}
	return refined, nil
}
