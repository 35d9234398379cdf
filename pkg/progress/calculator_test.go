package progress

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/entropycollective/batchsum/pkg/config"
	"github.com/entropycollective/batchsum/pkg/types"
)

func testConfig() config.ProgressConfig {
	return config.ProgressConfig{StageWeights: DefaultStageWeights(), WindowMs: 60000}
}

func TestComputeWeightsPriorStagesAsComplete(t *testing.T) {
	c := NewCalculator(testConfig())
	batchID := uuid.New()
	start := time.Now().Add(-time.Second)

	p := c.Compute(batchID, types.StageBatchProcessing, 5, 0, 10, 0, start)

	// Initializing(5) + Segmenting(10) fully done, BatchProcessing(70) half done.
	assert.InDelta(t, 5+10+35, p.OverallProgress, 0.001)
	assert.Equal(t, batchID, p.BatchID)
}

func TestComputeCompletedStageIsAlwaysHundred(t *testing.T) {
	c := NewCalculator(testConfig())
	p := c.Compute(uuid.New(), types.StageCompleted, 10, 0, 10, 100, time.Now())
	assert.Equal(t, 100.0, p.OverallProgress)
}

func TestComputeOverallProgressIsMonotoneNonDecreasing(t *testing.T) {
	c := NewCalculator(testConfig())
	batchID := uuid.New()
	start := time.Now().Add(-time.Second)

	first := c.Compute(batchID, types.StageBatchProcessing, 8, 0, 10, 0, start)
	// A later call reporting fewer completed (e.g. a stale snapshot) must not
	// regress the reported overall progress.
	second := c.Compute(batchID, types.StageBatchProcessing, 2, 0, 10, 0, start)

	assert.GreaterOrEqual(t, second.OverallProgress, first.OverallProgress)
}

func TestComputeEstimatesRemainingTime(t *testing.T) {
	c := NewCalculator(testConfig())
	start := time.Now().Add(-10 * time.Second)
	p := c.Compute(uuid.New(), types.StageBatchProcessing, 5, 0, 10, 0, start)
	if assert.NotNil(t, p.EstRemainingMs) {
		assert.Greater(t, *p.EstRemainingMs, int64(0))
	}
}

func TestComputeNoEstimateBeforeFirstCompletion(t *testing.T) {
	c := NewCalculator(testConfig())
	p := c.Compute(uuid.New(), types.StageBatchProcessing, 0, 0, 10, 0, time.Now())
	assert.Nil(t, p.EstRemainingMs)
}

func TestRecordSegmentCompletionFeedsSpeed(t *testing.T) {
	c := NewCalculator(testConfig())
	c.RecordSegmentCompletion(1000, 500)
	c.RecordSegmentCompletion(1000, 500)

	speed := c.Speed()
	assert.Greater(t, speed.SegPerMin, 0.0)
	assert.Greater(t, speed.CharsPerSec, 0.0)
	assert.Equal(t, 1000.0, speed.AvgLatencyMs)
}

func TestSpeedZeroWithNoSamples(t *testing.T) {
	c := NewCalculator(testConfig())
	assert.Equal(t, types.Speed{}, c.Speed())
}

func TestDefaultStageWeightsSumToHundred(t *testing.T) {
	var sum float64
	for _, w := range DefaultStageWeights() {
		sum += w
	}
	assert.InDelta(t, 100, sum, 0.001)
}
