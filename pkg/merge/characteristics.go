package merge

import (
	"math"

	"github.com/entropycollective/batchsum/pkg/similarity"
	"github.com/entropycollective/batchsum/pkg/topics"
	"github.com/entropycollective/batchsum/pkg/types"
)

// ContentCharacteristics summarizes the shape of a set of per-segment
// summaries, feeding the strategy selector's suitability scoring.
type ContentCharacteristics struct {
	SegmentCount   int
	AvgLength      float64
	LengthVariance float64
	TopicDiversity float64
	ContentOverlap float64
	StructureLevel float64
	Complexity     float64
}

// UserPreferences are the caller-supplied hints the selector blends with
// content characteristics.
type UserPreferences struct {
	Length             string // "short", "medium", "long"
	Detail             string // "concise", "balanced", "detailed"
	Structure           bool
	DuplicateTolerance float64 // 0 = no tolerance, 1 = fully tolerant
}

// DefaultUserPreferences is a neutral preference set used when the caller
// supplies none.
func DefaultUserPreferences() UserPreferences {
	return UserPreferences{Length: "medium", Detail: "balanced", Structure: false, DuplicateTolerance: 0.3}
}

func summariesOf(tasks []*types.SegmentTask) []string {
	out := make([]string, 0, len(tasks))
	for _, t := range tasks {
		if t.Status == types.TaskCompleted && t.Summary != "" {
			out = append(out, t.Summary)
		}
	}
	return out
}

// AnalyzeContent computes ContentCharacteristics over a set of completed
// segment tasks. extractor may be nil, in which case topic diversity
// degrades to a conservative default; structure level does not use it.
func AnalyzeContent(tasks []*types.SegmentTask, extractor *topics.Extractor) ContentCharacteristics {
	summaries := summariesOf(tasks)
	c := ContentCharacteristics{SegmentCount: len(summaries)}
	if len(summaries) == 0 {
		return c
	}

	var total, sumSq float64
	for _, s := range summaries {
		total += float64(len(s))
	}
	c.AvgLength = total / float64(len(summaries))
	for _, s := range summaries {
		d := float64(len(s)) - c.AvgLength
		sumSq += d * d
	}
	c.LengthVariance = sumSq / float64(len(summaries))

	if extractor != nil {
		c.TopicDiversity = extractor.Diversity(summaries)
	} else {
		c.TopicDiversity = 0.5
	}

	c.ContentOverlap = averagePairwiseOverlap(summaries)
	c.StructureLevel = structureLevel(summaries)
	c.Complexity = clamp01(0.4*c.LengthVariance/math.Max(c.AvgLength*c.AvgLength, 1) + 0.3*(1-c.TopicDiversity) + 0.3*c.ContentOverlap)
	return c
}

// averagePairwiseOverlap samples Jaccard similarity across adjacent pairs
// (not all-pairs, to stay linear in segment count for large batches).
func averagePairwiseOverlap(summaries []string) float64 {
	if len(summaries) < 2 {
		return 0
	}
	var total float64
	for i := 1; i < len(summaries); i++ {
		total += similarity.Jaccard(summaries[i-1], summaries[i])
	}
	return total / float64(len(summaries)-1)
}

// structureLevel estimates how much of the source content already carries
// structural markers (headings, bullet points, numbered lists).
func structureLevel(summaries []string) float64 {
	markers := 0
	for _, s := range summaries {
		for _, r := range s {
			if r == '#' || r == '-' || r == '*' {
				markers++
				break
			}
		}
	}
	return clamp01(float64(markers) / float64(len(summaries)))
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
