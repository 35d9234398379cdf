package merge

import (
	"testing"

	"github.com/entropycollective/batchsum/pkg/types"
	"github.com/stretchr/testify/assert"
)

func sampleTasks() []*types.SegmentTask {
	return []*types.SegmentTask{
		completedTask(0, "Intro", "This is the introduction. It sets the stage for what follows."),
		completedTask(1, "Middle", "This is the middle section with the core argument laid out."),
		completedTask(2, "End", "This is the conclusion that wraps everything up neatly."),
		failedTask(3),
	}
}

func TestRuleBasedConciseIsShorterThanDetailed(t *testing.T) {
	tasks := sampleTasks()
	concise := RuleBased(types.StrategyConcise, tasks, nil, 0)
	detailed := RuleBased(types.StrategyDetailed, tasks, nil, 0)
	assert.LessOrEqual(t, len(concise), len(detailed))
}

func TestRuleBasedDetailedIncludesTitles(t *testing.T) {
	out := RuleBased(types.StrategyDetailed, sampleTasks(), nil, 0)
	assert.Contains(t, out, "Intro:")
	assert.Contains(t, out, "Middle:")
}

func TestRuleBasedStructuredFallsBackWithoutExtractor(t *testing.T) {
	out := RuleBased(types.StrategyStructured, sampleTasks(), nil, 0)
	assert.Contains(t, out, "General:")
}

func TestRuleBasedBalancedProducesNonEmptyOutput(t *testing.T) {
	out := RuleBased(types.StrategyBalanced, sampleTasks(), nil, 0)
	assert.NotEmpty(t, out)
}

func TestRuleBasedSkipsFailedTasks(t *testing.T) {
	out := RuleBased(types.StrategyDetailed, sampleTasks(), nil, 0)
	assert.Contains(t, out, "conclusion")
}

func TestRuleBasedEmptyInputReturnsEmptyString(t *testing.T) {
	out := RuleBased(types.StrategyConcise, []*types.SegmentTask{failedTask(0)}, nil, 0)
	assert.Empty(t, out)
}

func TestCapitalize(t *testing.T) {
	assert.Equal(t, "Topic", capitalize("topic"))
	assert.Equal(t, "", capitalize(""))
}
