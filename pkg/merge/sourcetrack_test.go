package merge

import (
	"testing"

	"github.com/entropycollective/batchsum/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrackSourcesMapsParagraphsToInputs(t *testing.T) {
	inputs := []string{
		"the quick brown fox jumps over the lazy dog near the riverbank",
		"a completely different topic about distant planetary orbits and moons",
	}
	final := inputs[0] + "\n\n" + inputs[1]
	mappings := TrackSources(final, inputs, SourceTrackingParams{SimilarityThreshold: 0.5, MaxReferencesPerParagraph: 3})
	require.Len(t, mappings, 2)
	assert.Contains(t, mappings[0].SourceIndices, 0)
	assert.Contains(t, mappings[1].SourceIndices, 1)
}

func TestTrackSourcesCapsReferencesPerParagraph(t *testing.T) {
	inputs := []string{
		"alpha beta gamma delta epsilon zeta eta theta",
		"alpha beta gamma delta epsilon zeta eta theta iota",
		"alpha beta gamma delta epsilon zeta eta theta kappa",
	}
	final := "alpha beta gamma delta epsilon zeta eta theta lambda"
	mappings := TrackSources(final, inputs, SourceTrackingParams{SimilarityThreshold: 0.3, MaxReferencesPerParagraph: 1})
	require.Len(t, mappings, 1)
	assert.LessOrEqual(t, len(mappings[0].SourceIndices), 1)
}

func TestReferenceTypeFromSimilarityBands(t *testing.T) {
	assert.Equal(t, types.ReferenceDirect, types.ReferenceTypeFromSimilarity(0.95))
	assert.Equal(t, types.ReferenceParaphrase, types.ReferenceTypeFromSimilarity(0.8))
	assert.Equal(t, types.ReferenceSummary, types.ReferenceTypeFromSimilarity(0.6))
	assert.Equal(t, types.ReferenceInferred, types.ReferenceTypeFromSimilarity(0.1))
}

func TestValidateSourceMappingsFlagsUnreferencedInput(t *testing.T) {
	inputs := []string{
		"a significant paragraph of real content that should be referenced somewhere",
		"another significant paragraph that never gets referenced by the final summary",
	}
	mappings := []types.ParagraphSourceMapping{
		{ParagraphIndex: 0, SourceIndices: []int{0}, Similarities: []float64{0.8}, ReferenceTypes: []types.ReferenceType{types.ReferenceParaphrase}},
	}
	v := ValidateSourceMappings(mappings, inputs, SourceTrackingParams{SimilarityThreshold: 0.5, MaxReferencesPerParagraph: 3})
	assert.False(t, v.CoverageOK)
	assert.NotEmpty(t, v.Warnings)
}

func TestValidateSourceMappingsFlagsLowConfidenceDirect(t *testing.T) {
	inputs := []string{"a source paragraph with enough length to be significant for coverage checks"}
	mappings := []types.ParagraphSourceMapping{
		{ParagraphIndex: 0, SourceIndices: []int{0}, Similarities: []float64{0.92}, ReferenceTypes: []types.ReferenceType{types.ReferenceDirect}},
	}
	v := ValidateSourceMappings(mappings, inputs, SourceTrackingParams{SimilarityThreshold: 0.5, MaxReferencesPerParagraph: 3})
	assert.False(t, v.AccuracyOK)
}

func TestValidateSourceMappingsFlagsBrokenLinks(t *testing.T) {
	inputs := []string{"", "a real source paragraph with plenty of length to count as significant"}
	mappings := []types.ParagraphSourceMapping{
		{ParagraphIndex: 0, SourceIndices: []int{0}, Similarities: []float64{0.6}, ReferenceTypes: []types.ReferenceType{types.ReferenceSummary}},
	}
	v := ValidateSourceMappings(mappings, inputs, SourceTrackingParams{SimilarityThreshold: 0.5, MaxReferencesPerParagraph: 3})
	assert.False(t, v.IntegrityOK)
}

func TestValidateSourceMappingsHealthyCaseScoresWell(t *testing.T) {
	inputs := []string{
		"a healthy source paragraph with plenty of real content to reference",
		"another healthy source paragraph with equally plenty of real content",
	}
	mappings := []types.ParagraphSourceMapping{
		{ParagraphIndex: 0, SourceIndices: []int{0}, Similarities: []float64{0.8}, ReferenceTypes: []types.ReferenceType{types.ReferenceParaphrase}},
		{ParagraphIndex: 1, SourceIndices: []int{1}, Similarities: []float64{0.8}, ReferenceTypes: []types.ReferenceType{types.ReferenceParaphrase}},
	}
	v := ValidateSourceMappings(mappings, inputs, SourceTrackingParams{SimilarityThreshold: 0.5, MaxReferencesPerParagraph: 3})
	assert.True(t, v.CoverageOK)
	assert.True(t, v.AccuracyOK)
	assert.True(t, v.IntegrityOK)
	assert.True(t, v.ConsistencyOK)
	assert.Greater(t, v.QualityScore, 0.7)
}
