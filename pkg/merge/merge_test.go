package merge

import (
	"context"
	"testing"

	"github.com/entropycollective/batchsum/pkg/config"
	"github.com/entropycollective/batchsum/pkg/llm/mock"
	"github.com/entropycollective/batchsum/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergeProducesFinalSummaryAndMappings(t *testing.T) {
	cfg := config.DefaultConfig().Merging
	m := New(cfg, nil, nil)

	job := types.NewMergeJob(sampleTasks(), types.StrategyBalanced, nil)
	result, err := m.Merge(context.Background(), job)
	require.NoError(t, err)
	assert.NotEmpty(t, result.FinalSummary)
	assert.NotEmpty(t, result.SourceMappings)
	assert.Equal(t, types.MergeJobCompleted, job.Status)
	assert.Equal(t, 3, result.Statistics.InputCount)
}

func TestMergeErrorsWithNoCompletedSegments(t *testing.T) {
	cfg := config.DefaultConfig().Merging
	m := New(cfg, nil, nil)
	job := types.NewMergeJob([]*types.SegmentTask{failedTask(0)}, types.StrategyConcise, nil)
	_, err := m.Merge(context.Background(), job)
	assert.Error(t, err)
}

func TestMergeAutoSelectsStrategyWhenRequested(t *testing.T) {
	cfg := config.DefaultConfig().Merging
	m := New(cfg, nil, nil)
	job := types.NewMergeJob(sampleTasks(), types.StrategyConcise, map[string]any{"autoSelectStrategy": true})
	result, err := m.Merge(context.Background(), job)
	require.NoError(t, err)
	assert.NotEmpty(t, result.FinalSummary)
}

func TestMergeHybridDegradesToRuleBasedOnSummarizerError(t *testing.T) {
	cfg := config.DefaultConfig().Merging
	cfg.LengthControl.DefaultTarget = 10 // forces Hybrid's length check to trigger refinement
	sum := mock.New()
	sum.Errors[0] = assert.AnError
	m := New(cfg, sum, nil)

	// A large segment count pushes methodFor toward Hybrid regardless of
	// which strategy the selector ends up picking.
	var tasks []*types.SegmentTask
	for i := 0; i < 10; i++ {
		tasks = append(tasks, completedTask(i, "Part", "segment content number describing part of the document in detail"))
	}
	job := types.NewMergeJob(tasks, types.StrategyCustom, map[string]any{"autoSelectStrategy": true})
	result, err := m.Merge(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, types.MethodRuleBased, result.AppliedMethod)
}

func TestMergeRecordsLearnedOutcome(t *testing.T) {
	cfg := config.DefaultConfig().Merging
	m := New(cfg, nil, nil)
	m.RecordOutcome(types.StrategyBalanced, 0.9, 0.9)
	q, s := m.learned.Lookup(types.StrategyBalanced)
	assert.Greater(t, q, 0.5)
	assert.Greater(t, s, 0.5)
}

func TestMergeDeduplicatesNearIdenticalSegments(t *testing.T) {
	cfg := config.DefaultConfig().Merging
	m := New(cfg, nil, nil)

	tasks := []*types.SegmentTask{
		completedTask(0, "A", "the quick brown fox jumps over the lazy dog near the river bank today"),
		completedTask(1, "B", "the quick brown fox jumps over the lazy dog near the river bank today again"),
		completedTask(2, "C", "a wholly unrelated paragraph discussing distant planetary orbits and moons"),
	}
	job := types.NewMergeJob(tasks, types.StrategyDetailed, nil)
	result, err := m.Merge(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Statistics.DuplicatesRemoved)
}

func TestPreferencesFromParametersDefaultsWhenAbsent(t *testing.T) {
	p := preferencesFromParameters(nil)
	assert.Equal(t, DefaultUserPreferences(), p)
}

func TestPreferencesFromParametersReadsDuplicateTolerance(t *testing.T) {
	p := preferencesFromParameters(map[string]any{"duplicateTolerance": 0.9})
	assert.Equal(t, 0.9, p.DuplicateTolerance)
}
