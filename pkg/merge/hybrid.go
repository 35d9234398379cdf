package merge

import (
	"context"

	"github.com/entropycollective/batchsum/pkg/llm"
	"github.com/entropycollective/batchsum/pkg/topics"
	"github.com/entropycollective/batchsum/pkg/types"
)

// Hybrid runs RuleBased first; if the result exceeds targetLength*1.2 or
// scores below qualityThreshold, it invokes LLMAssisted to refine.
// summarizer may be nil, in which case Hybrid always returns the
// rule-based result (degrading gracefully rather than failing the merge).
func Hybrid(ctx context.Context, strategy types.MergeStrategy, sorted []*types.SegmentTask, extractor *topics.Extractor, summarizer llm.Summarizer, targetLength int, qualityThreshold float64) (string, types.MergeMethod, error) {
	ruleBased := RuleBased(strategy, sorted, extractor, targetLength)

	if summarizer == nil {
		return ruleBased, types.MethodRuleBased, nil
	}

	exceedsLength := targetLength > 0 && len(ruleBased) > int(float64(targetLength)*1.2)
	quality := estimateQuality(ruleBased, sorted)
	needsRefine := exceedsLength || quality < qualityThreshold

	if !needsRefine {
		return ruleBased, types.MethodRuleBased, nil
	}

	refined, err := LLMAssisted(ctx, strategy, sorted, summarizer, targetLength)
	if err != nil {
		// Degrade to the rule-based result rather than failing the whole merge;
		// the LLM refinement is best-effort.
		return ruleBased, types.MethodRuleBased, nil
	}
	return refined, types.MethodHybrid, nil
}

// estimateQuality is a cheap, LLM-free proxy for the rule-based output's
// quality: how much of the completed segments' total content survived into
// the merged text, clamped to [0,1].
func estimateQuality(merged string, sorted []*types.SegmentTask) float64 {
	var totalInput int
	for _, t := range sorted {
		if t.Status == types.TaskCompleted {
			totalInput += len(t.Summary)
		}
	}
	if totalInput == 0 {
		return 0
	}
	ratio := float64(len(merged)) / float64(totalInput)
	if ratio > 1 {
		ratio = 1
	}
	return clamp01(0.3 + 0.7*ratio)
}
