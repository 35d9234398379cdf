package merge

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/entropycollective/batchsum/pkg/llm"
	"github.com/entropycollective/batchsum/pkg/types"
)

// promptTemplates gives each merge strategy a distinct instruction to the
// external summarizer. No provider-specific tuning lives here; providers
// sit behind the llm.Summarizer port.
var promptTemplates = map[types.MergeStrategy]string{
	types.StrategyConcise:    "Combine the following segment summaries into one short, high-level summary:\n\n%s",
	types.StrategyDetailed:   "Combine the following segment summaries into one thorough summary that preserves every distinct point:\n\n%s",
	types.StrategyStructured: "Combine the following segment summaries into a summary organized under clear topic headings:\n\n%s",
	types.StrategyBalanced:   "Combine the following segment summaries into a well-organized summary of moderate length:\n\n%s",
	types.StrategyCustom:     "Combine the following segment summaries into a final summary:\n\n%s",
}

func buildPrompt(strategy types.MergeStrategy, sorted []*types.SegmentTask) string {
	var b strings.Builder
	for _, t := range sorted {
		if t.Status != types.TaskCompleted || t.Summary == "" {
			continue
		}
		fmt.Fprintf(&b, "- %s\n", t.Summary)
	}
	tpl, ok := promptTemplates[strategy]
	if !ok {
		tpl = promptTemplates[types.StrategyBalanced]
	}
	return fmt.Sprintf(tpl, b.String())
}

// LLMAssisted invokes the summarizer port with a strategy-specific prompt
// and post-processes the response.
func LLMAssisted(ctx context.Context, strategy types.MergeStrategy, sorted []*types.SegmentTask, summarizer llm.Summarizer, targetLength int) (string, error) {
	if summarizer == nil {
		return "", fmt.Errorf("merge: no summarizer configured for LLM-assisted pipeline")
	}
	prompt := buildPrompt(strategy, sorted)
	raw, err := summarizer.Summarize(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("merge: llm-assisted summarize: %w", err)
	}
	out := PostProcess(raw)
	if targetLength > 0 && len(out) > targetLength {
		out = trimToSentenceBoundary(out, targetLength)
	}
	return out, nil
}

var (
	whitespaceRun    = regexp.MustCompile(`[ \t]+`)
	blankLineRun     = regexp.MustCompile(`\n{3,}`)
	duplicatePunct   = regexp.MustCompile(`[.!?,;:]{2,}`)
)

// PostProcess normalizes an LLM response: collapse runs of whitespace,
// collapse excess blank lines, and fix duplicated punctuation.
func PostProcess(s string) string {
	s = whitespaceRun.ReplaceAllString(s, " ")
	s = blankLineRun.ReplaceAllString(s, "\n\n")
	s = duplicatePunct.ReplaceAllStringFunc(s, func(run string) string {
		var b strings.Builder
		for i := 0; i < len(run); i++ {
			if i == 0 || run[i] != run[i-1] {
				b.WriteByte(run[i])
			}
		}
		return b.String()
	})
	return strings.TrimSpace(s)
}

// trimToSentenceBoundary truncates s to targetLength bytes. If the cut
// text has a sentence boundary past its midpoint, it ends there; otherwise
// the cut text (trimmed of spaces) gets a "." appended, so the result can
// be one byte over targetLength and can end mid-sentence.
func trimToSentenceBoundary(s string, targetLength int) string {
	if len(s) <= targetLength {
		return s
	}
	truncated := s[:targetLength]
	lastStop := strings.LastIndexAny(truncated, ".!?")
	if lastStop > targetLength/2 {
		return truncated[:lastStop+1]
	}
	return strings.TrimSpace(truncated) + "."
}
