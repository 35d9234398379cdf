package merge

import (
	"testing"

	"github.com/entropycollective/batchsum/pkg/types"
	"github.com/stretchr/testify/assert"
)

func TestSelectStrategyReturnsAllFiveAlternatives(t *testing.T) {
	content := ContentCharacteristics{SegmentCount: 3, TopicDiversity: 0.4}
	rec := SelectStrategy(content, DefaultUserPreferences(), NewLearningTable())
	assert.Len(t, rec.Alternatives, 5)
	assert.NotEmpty(t, rec.Reasons)
}

func TestSelectStrategyAlternativesAreSortedDescending(t *testing.T) {
	content := ContentCharacteristics{SegmentCount: 6, TopicDiversity: 0.7, StructureLevel: 0.2, Complexity: 0.3}
	rec := SelectStrategy(content, DefaultUserPreferences(), NewLearningTable())
	for i := 1; i < len(rec.Alternatives); i++ {
		assert.GreaterOrEqual(t, rec.Alternatives[i-1].Suitability, rec.Alternatives[i].Suitability)
	}
	assert.Equal(t, rec.Alternatives[0].Strategy, rec.Strategy)
}

func TestSelectStrategyFewSegmentsFavorsConcise(t *testing.T) {
	content := ContentCharacteristics{SegmentCount: 2, TopicDiversity: 0.1}
	prefs := DefaultUserPreferences()
	prefs.Length = "short"
	rec := SelectStrategy(content, prefs, NewLearningTable())
	assert.Equal(t, types.StrategyConcise, rec.Strategy)
}

func TestSelectStrategyLearnedTableInfluencesSuitability(t *testing.T) {
	content := ContentCharacteristics{SegmentCount: 5, TopicDiversity: 0.5}
	learned := NewLearningTable()
	for i := 0; i < 10; i++ {
		learned.Record(types.StrategyCustom, 1.0, 1.0)
	}
	withLearning := SelectStrategy(content, DefaultUserPreferences(), learned)
	withoutLearning := SelectStrategy(content, DefaultUserPreferences(), NewLearningTable())

	var customWith, customWithout float64
	for _, e := range withLearning.Alternatives {
		if e.Strategy == types.StrategyCustom {
			customWith = e.Suitability
		}
	}
	for _, e := range withoutLearning.Alternatives {
		if e.Strategy == types.StrategyCustom {
			customWithout = e.Suitability
		}
	}
	assert.Greater(t, customWith, customWithout)
}

func TestMethodForCustomIsAlwaysHybrid(t *testing.T) {
	m := methodFor(types.StrategyCustom, ContentCharacteristics{})
	assert.Equal(t, types.MethodHybrid, m)
}

func TestMethodForSimpleContentIsRuleBased(t *testing.T) {
	m := methodFor(types.StrategyConcise, ContentCharacteristics{Complexity: 0.1, SegmentCount: 2})
	assert.Equal(t, types.MethodRuleBased, m)
}
