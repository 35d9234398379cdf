package merge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeduplicateNoDuplicates(t *testing.T) {
	summaries := []string{
		"the quick brown fox jumps over the lazy dog near the river",
		"a completely unrelated sentence about planetary orbits and moons",
		"cooking pasta requires boiling water and a pinch of salt",
	}
	params := DedupParams{SimilarityThreshold: 0.8, MinLengthForComparison: 5, PreserveLongerVersion: true}
	result := Deduplicate(summaries, params, nil)
	assert.Equal(t, 3, result.OriginalCount)
	assert.Equal(t, 3, result.FinalCount)
	assert.Equal(t, 0, result.DuplicatesRemoved)
}

func TestDeduplicateClustersNearIdenticalText(t *testing.T) {
	summaries := []string{
		"the quick brown fox jumps over the lazy dog near the river bank",
		"the quick brown fox jumps over the lazy dog near the river banks",
		"a completely unrelated sentence about planetary orbits and moons",
	}
	params := DedupParams{SimilarityThreshold: 0.6, MinLengthForComparison: 5, PreserveLongerVersion: true}
	result := Deduplicate(summaries, params, nil)
	require.Equal(t, 3, result.OriginalCount)
	assert.Equal(t, 2, result.FinalCount)
	assert.Equal(t, 1, result.DuplicatesRemoved)
	require.Len(t, result.DuplicateGroups, 1)
}

func TestDeduplicatePreservesLongerVersion(t *testing.T) {
	summaries := []string{
		"short duplicate text that repeats itself over and over",
		"short duplicate text that repeats itself over and over plus extra detail appended here",
	}
	params := DedupParams{SimilarityThreshold: 0.5, MinLengthForComparison: 5, PreserveLongerVersion: true}
	result := Deduplicate(summaries, params, nil)
	require.Len(t, result.DeduplicatedSummaries, 1)
	assert.Equal(t, summaries[1], result.DeduplicatedSummaries[0])
}

func TestDeduplicateIsIdempotent(t *testing.T) {
	summaries := []string{
		"the quick brown fox jumps over the lazy dog near the river bank",
		"the quick brown fox jumps over the lazy dog near the river banks",
		"a completely unrelated sentence about planetary orbits and moons",
	}
	params := DedupParams{SimilarityThreshold: 0.6, MinLengthForComparison: 5, PreserveLongerVersion: true}
	first := Deduplicate(summaries, params, nil)
	second := Deduplicate(first.DeduplicatedSummaries, params, nil)
	assert.Equal(t, 0, second.DuplicatesRemoved)
	assert.Equal(t, first.FinalCount, second.FinalCount)
}

func TestDeduplicateEmptyInput(t *testing.T) {
	result := Deduplicate(nil, DedupParams{}, nil)
	assert.Equal(t, 0, result.OriginalCount)
	assert.Equal(t, 0, result.FinalCount)
}

func TestShinglesShortTextIsOneShingle(t *testing.T) {
	assert.Equal(t, []string{"a b"}, shingles("a b", 3))
}

func TestUnionFindMergesGroups(t *testing.T) {
	uf := newUnionFind(4)
	uf.union(0, 1)
	uf.union(2, 3)
	assert.Equal(t, uf.find(0), uf.find(1))
	assert.NotEqual(t, uf.find(0), uf.find(2))
	uf.union(1, 2)
	assert.Equal(t, uf.find(0), uf.find(3))
}
