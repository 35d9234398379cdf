package similarity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestJaccardIdentical(t *testing.T) {
	assert.Equal(t, 1.0, Jaccard("the quick fox", "the quick fox"))
}

func TestJaccardDisjoint(t *testing.T) {
	assert.Equal(t, 0.0, Jaccard("alpha beta", "gamma delta"))
}

func TestJaccardPartialOverlap(t *testing.T) {
	score := Jaccard("the quick brown fox", "the slow brown turtle")
	assert.InDelta(t, 2.0/6.0, score, 0.01)
}

func TestCosineIdentical(t *testing.T) {
	assert.InDelta(t, 1.0, Cosine("alpha beta beta", "alpha beta beta"), 1e-9)
}

func TestEditDistanceIdentical(t *testing.T) {
	assert.Equal(t, 1.0, EditDistance("same text", "same text"))
}

func TestEditDistanceCompletelyDifferent(t *testing.T) {
	score := EditDistance("abc", "xyz")
	assert.Equal(t, 0.0, score)
}

func TestCombinedIsWeightedBlend(t *testing.T) {
	a, b := "the quick brown fox jumps", "the quick brown fox leaps"
	expected := Weights.Jaccard*Jaccard(a, b) + Weights.Cosine*Cosine(a, b) + Weights.EditDistance*EditDistance(a, b)
	assert.InDelta(t, expected, Combined(a, b), 1e-9)
}

func TestCombinedWithinUnitRange(t *testing.T) {
	score := Combined("one two three", "four five six")
	assert.GreaterOrEqual(t, score, 0.0)
	assert.LessOrEqual(t, score, 1.0)
}
