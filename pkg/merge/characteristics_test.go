package merge

import (
	"testing"

	"github.com/entropycollective/batchsum/pkg/types"
	"github.com/stretchr/testify/assert"
)

func TestAnalyzeContentEmpty(t *testing.T) {
	c := AnalyzeContent(nil, nil)
	assert.Equal(t, 0, c.SegmentCount)
}

func TestAnalyzeContentSkipsIncompleteTasks(t *testing.T) {
	tasks := []*types.SegmentTask{
		completedTask(0, "Intro", "the quick brown fox jumps over the lazy dog"),
		failedTask(1),
	}
	c := AnalyzeContent(tasks, nil)
	assert.Equal(t, 1, c.SegmentCount)
}

func TestAnalyzeContentBasicStats(t *testing.T) {
	tasks := []*types.SegmentTask{
		completedTask(0, "Intro", "the quick brown fox jumps over the lazy dog"),
		completedTask(1, "Body", "a different sentence about something else entirely"),
		failedTask(2),
	}
	c := AnalyzeContent(tasks, nil)
	assert.Equal(t, 2, c.SegmentCount)
	assert.Greater(t, c.AvgLength, 0.0)
	assert.Equal(t, 0.5, c.TopicDiversity) // no extractor supplied
}

func TestDefaultUserPreferences(t *testing.T) {
	p := DefaultUserPreferences()
	assert.Equal(t, "medium", p.Length)
	assert.False(t, p.Structure)
}

func TestClamp01(t *testing.T) {
	assert.Equal(t, 0.0, clamp01(-1))
	assert.Equal(t, 1.0, clamp01(2))
	assert.Equal(t, 0.5, clamp01(0.5))
}
