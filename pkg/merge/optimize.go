package merge

import (
	"context"
	"sort"
	"strings"

	"github.com/entropycollective/batchsum/pkg/config"
	"github.com/entropycollective/batchsum/pkg/llm"
	"github.com/entropycollective/batchsum/pkg/similarity"
	"github.com/entropycollective/batchsum/pkg/topics"
	"github.com/entropycollective/batchsum/pkg/types"
)

// CompressionLevel picks how aggressively Optimize shrinks oversized text.
type CompressionLevel int

const (
	CompressionLight CompressionLevel = iota
	CompressionBalanced
	CompressionAggressive
)

// Optimize adjusts text toward length.DefaultTarget +/- length.Tolerance,
// compressing or expanding as needed, always post-processing, and running
// one refinement pass if the result scores below minQualityScore — then
// returns the best of (original, first pass, refined).
func Optimize(ctx context.Context, text string, length config.LengthControl, minQualityScore float64, summarizer llm.Summarizer) (string, types.OptimizationQualityMetrics) {
	original := PostProcess(text)
	candidates := []string{original}

	target := length.DefaultTarget
	tolerance := length.Tolerance
	if target <= 0 {
		target = len(original)
	}

	firstPass := original
	switch {
	case len(original) > target+tolerance:
		firstPass = compress(original, target, CompressionBalanced)
	case len(original) < target-tolerance:
		firstPass = expand(original, target)
	}
	firstPass = postprocessComplete(firstPass)
	candidates = append(candidates, firstPass)

	firstMetrics := scoreOptimization(original, firstPass, target)
	bestText, bestMetrics := firstPass, firstMetrics
	if m := scoreOptimization(original, original, target); m.OverallScore > bestMetrics.OverallScore {
		bestText, bestMetrics = original, m
	}

	if firstMetrics.OverallScore < minQualityScore {
		refined := firstPass
		if summarizer != nil {
			if out, err := summarizer.Summarize(ctx, "Refine for clarity and target length "+itoa(target)+" characters:\n\n"+firstPass); err == nil {
				refined = postprocessComplete(PostProcess(out))
			}
		} else {
			refined = compress(firstPass, target, CompressionAggressive)
		}
		candidates = append(candidates, refined)
		refinedMetrics := scoreOptimization(original, refined, target)
		if refinedMetrics.OverallScore > bestMetrics.OverallScore {
			bestText, bestMetrics = refined, refinedMetrics
		}
	}

	return bestText, bestMetrics
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var digits []byte
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	if neg {
		return "-" + string(digits)
	}
	return string(digits)
}

// postprocessComplete collapses whitespace, fixes punctuation, and ensures
// the text ends on a sentence boundary.
func postprocessComplete(s string) string {
	s = PostProcess(s)
	if s == "" {
		return s
	}
	if last := s[len(s)-1]; last != '.' && last != '!' && last != '?' {
		s += "."
	}
	return s
}

func sentences(s string) []string {
	var out []string
	start := 0
	for i, r := range s {
		if r == '.' || r == '!' || r == '?' {
			out = append(out, strings.TrimSpace(s[start:i+1]))
			start = i + 1
		}
	}
	if start < len(s) {
		if rest := strings.TrimSpace(s[start:]); rest != "" {
			out = append(out, rest)
		}
	}
	return out
}

// compress shrinks text toward target by pruning or importance-ranking
// sentences, depending on level; CompressionAggressive uses the same
// importance ranking as CompressionBalanced.
func compress(s string, target int, level CompressionLevel) string {
	sents := sentences(s)
	if len(sents) == 0 {
		return s
	}

	switch level {
	case CompressionLight:
		// drop trailing sentences until within target
		kept := sents
		for len(strings.Join(kept, " ")) > target && len(kept) > 1 {
			kept = kept[:len(kept)-1]
		}
		return strings.Join(kept, " ")
	default:
		type scored struct {
			text string
			rank float64
		}
		ranked := make([]scored, len(sents))
		for i, sentence := range sents {
			ranked[i] = scored{text: sentence, rank: float64(len(sentence)) + boolToFloat(i == 0)*50}
		}
		sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].rank > ranked[j].rank })

		var kept []string
		total := 0
		for _, r := range ranked {
			if total+len(r.text) > target && len(kept) > 0 {
				continue
			}
			kept = append(kept, r.text)
			total += len(r.text)
		}
		// restore original sentence order among kept
		order := make(map[string]int, len(sents))
		for i, sentence := range sents {
			order[sentence] = i
		}
		sort.SliceStable(kept, func(i, j int) bool { return order[kept[i]] < order[kept[j]] })
		return strings.Join(kept, " ")
	}
}

// expand lengthens undersized text by restating its structural cues
// (keywords) as elaboration points; a rule-based stand-in for a full
// "structure analysis -> expansion points -> LLM elaboration" pipeline when
// no summarizer is available.
func expand(s string, target int) string {
	if len(s) >= target {
		return s
	}
	extractor, err := topics.NewExtractor()
	if err != nil {
		return s
	}
	keywords := extractor.Keywords(s, 5)
	if len(keywords) == 0 {
		return s
	}
	return s + " Key themes include " + strings.Join(keywords, ", ") + "."
}

// scoreOptimization grades an optimization pass's output against the
// original text and target length, each axis normalized to [0,1] so
// rule-based and LLM-assisted results compare on one scale.
func scoreOptimization(original, optimized string, target int) types.OptimizationQualityMetrics {
	retention := similarity.Jaccard(original, optimized)
	fluency := fluencyScore(optimized)
	coherence := similarity.Cosine(original, optimized)

	lengthAccuracy := 1.0
	if target > 0 {
		diff := float64(len(optimized)-target) / float64(target)
		if diff < 0 {
			diff = -diff
		}
		lengthAccuracy = clamp01(1 - diff)
	}

	overall := clamp01(0.3*retention + 0.2*fluency + 0.2*coherence + 0.3*lengthAccuracy)
	return types.OptimizationQualityMetrics{
		ContentRetention: retention,
		Fluency:          fluency,
		Coherence:        coherence,
		LengthAccuracy:   lengthAccuracy,
		OverallScore:     overall,
	}
}

// fluencyScore is a crude readability proxy: sentences in a moderate length
// band score higher than very short fragments or run-on sentences.
func fluencyScore(s string) float64 {
	sents := sentences(s)
	if len(sents) == 0 {
		return 0
	}
	var total float64
	for _, sentence := range sents {
		words := len(strings.Fields(sentence))
		switch {
		case words < 3:
			total += 0.4
		case words > 40:
			total += 0.5
		default:
			total += 1.0
		}
	}
	return clamp01(total / float64(len(sents)))
}
