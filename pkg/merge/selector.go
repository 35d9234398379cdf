package merge

import (
	"fmt"
	"sort"

	"github.com/entropycollective/batchsum/pkg/types"
)

var allStrategies = []types.MergeStrategy{
	types.StrategyConcise,
	types.StrategyDetailed,
	types.StrategyStructured,
	types.StrategyBalanced,
	types.StrategyCustom,
}

// SelectStrategy blends content characteristics, user preferences, and the
// learned-strategy table into a StrategyRecommendation. It
// always returns all five evaluations (Alternatives) sorted by suitability
// descending, with Strategy/Method set to the top pick.
func SelectStrategy(content ContentCharacteristics, prefs UserPreferences, learned *LearningTable) types.StrategyRecommendation {
	evals := make([]types.StrategyEvaluation, 0, len(allStrategies))
	reasonsByStrategy := make(map[types.MergeStrategy][]string, len(allStrategies))

	for _, strategy := range allStrategies {
		suitability, quality, efficiency, reasons := evaluate(strategy, content, prefs, learned)
		evals = append(evals, types.StrategyEvaluation{
			Strategy:         strategy,
			Suitability:      suitability,
			EstimatedQuality: quality,
			Efficiency:       efficiency,
		})
		reasonsByStrategy[strategy] = reasons
	}

	sort.SliceStable(evals, func(i, j int) bool { return evals[i].Suitability > evals[j].Suitability })

	top := evals[0]
	method := methodFor(top.Strategy, content)

	return types.StrategyRecommendation{
		Strategy:     top.Strategy,
		Method:       method,
		Parameters:   map[string]any{},
		Confidence:   top.Suitability,
		Reasons:      reasonsByStrategy[top.Strategy],
		Alternatives: evals,
	}
}

// evaluate scores one candidate strategy's suitability/quality/efficiency
// against content characteristics, user preferences, and the learned table.
func evaluate(strategy types.MergeStrategy, content ContentCharacteristics, prefs UserPreferences, learned *LearningTable) (suitability, quality, efficiency float64, reasons []string) {
	var contentFit float64
	switch strategy {
	case types.StrategyConcise:
		contentFit = clamp01(1 - content.TopicDiversity*0.3 + boolToFloat(prefs.Length == "short")*0.4)
		if content.SegmentCount <= 3 {
			reasons = append(reasons, "few segments favor a concise roll-up")
		}
	case types.StrategyDetailed:
		contentFit = clamp01(content.TopicDiversity*0.4 + boolToFloat(prefs.Detail == "detailed")*0.4 + boolToFloat(prefs.Length == "long")*0.2)
		if content.SegmentCount > 5 {
			reasons = append(reasons, "many segments favor preserving full detail")
		}
	case types.StrategyStructured:
		contentFit = clamp01(content.TopicDiversity*0.5 + boolToFloat(prefs.Structure)*0.4 + content.StructureLevel*0.1)
		if content.TopicDiversity > 0.5 {
			reasons = append(reasons, "high topic diversity favors grouping by topic")
		}
	case types.StrategyBalanced:
		contentFit = clamp01(1 - content.Complexity*0.3)
		reasons = append(reasons, "balanced strategy is the safe default across content shapes")
	case types.StrategyCustom:
		contentFit = clamp01(boolToFloat(prefs.DuplicateTolerance < 0.2) * 0.6)
		if prefs.DuplicateTolerance < 0.2 {
			reasons = append(reasons, "low duplicate tolerance requested a custom pipeline")
		}
	}

	overlapPenalty := content.ContentOverlap * (1 - prefs.DuplicateTolerance) * 0.2
	contentFit = clamp01(contentFit - overlapPenalty)

	avgQuality, avgSatisfaction := 0.5, 0.5
	if learned != nil {
		avgQuality, avgSatisfaction = learned.Lookup(strategy)
	}

	suitability = clamp01(0.5*contentFit + 0.3*avgQuality + 0.2*avgSatisfaction)
	quality = clamp01(0.6*contentFit + 0.4*avgQuality)
	efficiency = clamp01(1 - content.Complexity*0.5)

	if len(reasons) == 0 {
		reasons = append(reasons, fmt.Sprintf("%s scored %.2f on content fit", strategy, contentFit))
	}
	return suitability, quality, efficiency, reasons
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// methodFor picks the merge engine for a chosen strategy: LLM assistance is
// reserved for content complex or large enough to warrant it. The result is
// not checked against config.LLMAssistance.
func methodFor(strategy types.MergeStrategy, content ContentCharacteristics) types.MergeMethod {
	if strategy == types.StrategyCustom {
		return types.MethodHybrid
	}
	if content.Complexity > 0.6 || content.SegmentCount > 8 {
		return types.MethodHybrid
	}
	return types.MethodRuleBased
}
