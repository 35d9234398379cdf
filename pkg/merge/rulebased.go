package merge

import (
	"fmt"
	"sort"
	"strings"

	"github.com/entropycollective/batchsum/pkg/similarity"
	"github.com/entropycollective/batchsum/pkg/topics"
	"github.com/entropycollective/batchsum/pkg/types"
)

// RuleBased assembles a final summary from sorted, completed segment tasks
// without invoking an LLM.
// extractor may be nil; Structured then falls back to a single "General"
// section.
func RuleBased(strategy types.MergeStrategy, sorted []*types.SegmentTask, extractor *topics.Extractor, targetLength int) string {
	switch strategy {
	case types.StrategyConcise:
		return concise(sorted, targetLength)
	case types.StrategyStructured:
		return structured(sorted, extractor)
	case types.StrategyBalanced:
		return balanced(sorted, extractor)
	default: // Detailed and Custom fall back to the full-detail pipeline
		return detailed(sorted)
	}
}

// importance scores a segment summary by length and lead-sentence presence;
// a cheap proxy for "how much this segment matters" absent an LLM.
func importance(t *types.SegmentTask) float64 {
	if t.Summary == "" {
		return 0
	}
	score := float64(len(t.Summary))
	if strings.ContainsAny(leadSentence(t.Summary), ".!?") {
		score += 20
	}
	return score
}

func leadSentence(s string) string {
	for i, r := range s {
		if r == '.' || r == '!' || r == '?' {
			return s[:i+1]
		}
	}
	return s
}

// concise picks the top-k most important segments by importance score and
// concatenates their lead sentences.
func concise(sorted []*types.SegmentTask, targetLength int) string {
	completed := completedOnly(sorted)
	if len(completed) == 0 {
		return ""
	}

	k := len(completed)/3 + 1
	if k > len(completed) {
		k = len(completed)
	}

	ranked := append([]*types.SegmentTask(nil), completed...)
	sort.SliceStable(ranked, func(i, j int) bool { return importance(ranked[i]) > importance(ranked[j]) })
	top := ranked[:k]

	// restore segmentIndex order among the chosen top-k
	sort.SliceStable(top, func(i, j int) bool { return top[i].SegmentIndex < top[j].SegmentIndex })

	var parts []string
	total := 0
	for _, t := range top {
		lead := leadSentence(t.Summary)
		if targetLength > 0 && total+len(lead) > targetLength && len(parts) > 0 {
			break
		}
		parts = append(parts, lead)
		total += len(lead)
	}
	return topics.NormalizeWhitespace(strings.Join(parts, " "))
}

// detailed includes every non-empty completed summary in segmentIndex
// order, each under its segment's title when present.
func detailed(sorted []*types.SegmentTask) string {
	var b strings.Builder
	for _, t := range sorted {
		if t.Status != types.TaskCompleted || t.Summary == "" {
			continue
		}
		if t.SourceSegment.Title != "" {
			fmt.Fprintf(&b, "%s: %s\n", t.SourceSegment.Title, t.Summary)
		} else {
			fmt.Fprintf(&b, "%s\n", t.Summary)
		}
	}
	return topics.NormalizeWhitespace(b.String())
}

// structured groups summaries by topic keyword and emits a section heading
// per group, preserving segmentIndex order within each section.
func structured(sorted []*types.SegmentTask, extractor *topics.Extractor) string {
	completed := completedOnly(sorted)
	if len(completed) == 0 {
		return ""
	}
	if extractor == nil {
		return "General: " + detailed(sorted)
	}

	groups := make(map[string][]*types.SegmentTask)
	var order []string
	for _, t := range completed {
		topic := extractor.Topic([]string{t.Summary})
		if _, seen := groups[topic]; !seen {
			order = append(order, topic)
		}
		groups[topic] = append(groups[topic], t)
	}
	sort.Strings(order)

	var b strings.Builder
	for _, topic := range order {
		fmt.Fprintf(&b, "## %s\n", capitalize(topic))
		for _, t := range groups[topic] {
			fmt.Fprintf(&b, "%s\n", t.Summary)
		}
	}
	return topics.NormalizeWhitespace(b.String())
}

// balanced organizes completed segments into paragraphs grouped by
// similarity to their neighbor, so closely related segments land in one
// paragraph while unrelated runs start a new one.
func balanced(sorted []*types.SegmentTask, extractor *topics.Extractor) string {
	completed := completedOnly(sorted)
	if len(completed) == 0 {
		return ""
	}

	var paragraphs []string
	var current []string
	for i, t := range completed {
		if i > 0 && similarity.Jaccard(completed[i-1].Summary, t.Summary) < 0.15 && len(current) > 0 {
			paragraphs = append(paragraphs, strings.Join(current, " "))
			current = nil
		}
		current = append(current, t.Summary)
	}
	if len(current) > 0 {
		paragraphs = append(paragraphs, strings.Join(current, " "))
	}
	return topics.NormalizeWhitespace(strings.Join(paragraphs, "\n\n"))
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func completedOnly(sorted []*types.SegmentTask) []*types.SegmentTask {
	out := make([]*types.SegmentTask, 0, len(sorted))
	for _, t := range sorted {
		if t.Status == types.TaskCompleted && t.Summary != "" {
			out = append(out, t)
		}
	}
	return out
}
