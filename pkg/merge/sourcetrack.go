package merge

import (
	"strings"

	"github.com/entropycollective/batchsum/pkg/similarity"
	"github.com/entropycollective/batchsum/pkg/types"
)

// SourceTrackingParams configures one source-tracking pass.
type SourceTrackingParams struct {
	SimilarityThreshold       float64
	MaxReferencesPerParagraph int
}

// ValidationResult reports coverage, accuracy, integrity, and consistency
// over a set of ParagraphSourceMappings, plus the weighted quality score.
type ValidationResult struct {
	CoverageOK     bool
	AccuracyOK     bool
	IntegrityOK    bool
	ConsistencyOK  bool
	Warnings       []string
	QualityScore   float64
}

func paragraphs(s string) []string {
	var out []string
	for _, p := range strings.Split(s, "\n\n") {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 && strings.TrimSpace(s) != "" {
		out = []string{strings.TrimSpace(s)}
	}
	return out
}

// TrackSources maps each paragraph of finalSummary back to the input
// summaries it most resembles: references at or above
// threshold*0.6 are kept, capped at maxReferencesPerParagraph, banded into
// ReferenceTypes by similarity.
func TrackSources(finalSummary string, inputs []string, params SourceTrackingParams) []types.ParagraphSourceMapping {
	paras := paragraphs(finalSummary)
	cutoff := params.SimilarityThreshold * 0.6
	maxRefs := params.MaxReferencesPerParagraph
	if maxRefs <= 0 {
		maxRefs = len(inputs)
	}

	mappings := make([]types.ParagraphSourceMapping, 0, len(paras))
	for pi, para := range paras {
		var candidates []scoredSource
		for si, input := range inputs {
			if input == "" {
				continue
			}
			score := similarity.Combined(para, input)
			if score >= cutoff {
				candidates = append(candidates, scoredSource{idx: si, score: score})
			}
		}
		sortByScoreDesc(candidates)
		if len(candidates) > maxRefs {
			candidates = candidates[:maxRefs]
		}

		mapping := types.ParagraphSourceMapping{ParagraphIndex: pi}
		for _, c := range candidates {
			mapping.SourceIndices = append(mapping.SourceIndices, c.idx)
			mapping.Similarities = append(mapping.Similarities, c.score)
			mapping.ReferenceTypes = append(mapping.ReferenceTypes, types.ReferenceTypeFromSimilarity(c.score))
		}
		mappings = append(mappings, mapping)
	}
	return mappings
}

type scoredSource struct {
	idx   int
	score float64
}

func sortByScoreDesc(s []scoredSource) {
	for i := 1; i < len(s); i++ {
		j := i
		for j > 0 && s[j-1].score < s[j].score {
			s[j-1], s[j] = s[j], s[j-1]
			j--
		}
	}
}

// ValidateSourceMappings checks coverage, accuracy, integrity, and
// consistency against the mappings TrackSources produced, and
// computes the weighted quality score:
// accuracy(0.25) + completeness(0.2) + coverage(0.2) + reliability(0.2) + consistency(0.15).
func ValidateSourceMappings(mappings []types.ParagraphSourceMapping, inputs []string, params SourceTrackingParams) ValidationResult {
	var warnings []string

	referenced := make(map[int]int)
	lowConfidenceDirect := 0
	totalRefs := 0
	for _, m := range mappings {
		for i, idx := range m.SourceIndices {
			referenced[idx]++
			totalRefs++
			if m.ReferenceTypes[i] == types.ReferenceDirect && m.Similarities[i] < 0.95 {
				lowConfidenceDirect++
			}
		}
	}

	significantInputs := 0
	for _, in := range inputs {
		if len(strings.TrimSpace(in)) >= 20 {
			significantInputs++
		}
	}
	unreferenced := 0
	for i, in := range inputs {
		if len(strings.TrimSpace(in)) < 20 {
			continue
		}
		if referenced[i] == 0 {
			unreferenced++
		}
	}
	coverageOK := significantInputs == 0 || unreferenced == 0
	coverage := 1.0
	if significantInputs > 0 {
		coverage = clamp01(1 - float64(unreferenced)/float64(significantInputs))
	}
	if !coverageOK {
		warnings = append(warnings, "one or more significant inputs were never referenced")
	}

	accuracyOK := lowConfidenceDirect == 0
	accuracy := 1.0
	if totalRefs > 0 {
		accuracy = clamp01(1 - float64(lowConfidenceDirect)/float64(totalRefs))
	}
	if !accuracyOK {
		warnings = append(warnings, "a low-confidence reference was classified as Direct")
	}

	brokenLinks := 0
	for _, m := range mappings {
		for _, idx := range m.SourceIndices {
			if idx < 0 || idx >= len(inputs) || strings.TrimSpace(inputs[idx]) == "" {
				brokenLinks++
			}
		}
	}
	integrityOK := brokenLinks == 0
	integrity := 1.0
	if totalRefs > 0 {
		integrity = clamp01(1 - float64(brokenLinks)/float64(totalRefs))
	}
	if !integrityOK {
		warnings = append(warnings, "a reference points to an empty or missing source")
	}

	maxRefCount := 0
	for _, count := range referenced {
		if count > maxRefCount {
			maxRefCount = count
		}
	}
	overReferenced := len(inputs) > 0 && maxRefCount > len(mappings)/2+1 && maxRefCount > 2
	consistencyOK := !overReferenced
	consistency := 1.0
	if len(mappings) > 0 && maxRefCount > 2 {
		consistency = clamp01(1 - float64(maxRefCount)/float64(len(mappings)+1))
	}
	if !consistencyOK {
		warnings = append(warnings, "a single source is referenced disproportionately often")
	}

	completeness := 1.0
	if len(mappings) > 0 {
		withRefs := 0
		for _, m := range mappings {
			if len(m.SourceIndices) > 0 {
				withRefs++
			}
		}
		completeness = clamp01(float64(withRefs) / float64(len(mappings)))
	}

	quality := clamp01(0.25*accuracy + 0.2*completeness + 0.2*coverage + 0.2*integrity + 0.15*consistency)

	return ValidationResult{
		CoverageOK:    coverageOK,
		AccuracyOK:    accuracyOK,
		IntegrityOK:   integrityOK,
		ConsistencyOK: consistencyOK,
		Warnings:      warnings,
		QualityScore:  quality,
	}
}
