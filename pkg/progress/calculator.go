// Package progress derives overall/stage progress, ETA, and throughput from
// a batch's task state. Overall progress sums the weight of every stage
// already passed plus a fractional contribution from the current stage,
// with configurable weights per stage.
package progress

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/entropycollective/batchsum/pkg/config"
	"github.com/entropycollective/batchsum/pkg/types"
)

// stageOrder is the fixed sequence stages complete in; used to sum the
// weight of every stage preceding the current one.
var stageOrder = []types.Stage{
	types.StageInitializing,
	types.StageSegmenting,
	types.StageBatchProcessing,
	types.StageMerging,
	types.StageFinalizing,
}

func stageName(s types.Stage) string {
	return s.String()
}

func weightOf(weights map[string]float64, stage types.Stage) float64 {
	if w, ok := weights[stageName(stage)]; ok {
		return w
	}
	return 0
}

// stageTimeMultiplier amplifies slow stages' ETA contribution (Merging runs
// 1.2x the BatchProcessing baseline).
func stageTimeMultiplier(stage types.Stage) float64 {
	switch stage {
	case types.StageMerging:
		return 1.2
	case types.StageFinalizing:
		return 0.5
	default:
		return 1.0
	}
}

// Calculator tracks one batch's progress across calls, enforcing the
// monotone-non-decreasing invariant on OverallProgress and
// maintaining a sliding window of per-segment latencies for Speed. It is
// safe for concurrent use: completing workers record latencies while
// readers compute snapshots.
type Calculator struct {
	mu        sync.Mutex
	weights   map[string]float64
	windowMs  int64
	highWater float64
	latencies []latencySample
}

type latencySample struct {
	at      time.Time
	ms      float64
	chars   int
}

// NewCalculator builds a Calculator from the progress section of Config.
func NewCalculator(cfg config.ProgressConfig) *Calculator {
	weights := cfg.StageWeights
	if weights == nil {
		weights = DefaultStageWeights()
	}
	windowMs := int64(cfg.WindowMs)
	if windowMs <= 0 {
		windowMs = 60000
	}
	return &Calculator{weights: weights, windowMs: windowMs}
}

// DefaultStageWeights returns the default weights: Initializing 5,
// Segmenting 10, BatchProcessing 70, Merging 10, Finalizing 5.
func DefaultStageWeights() map[string]float64 {
	return map[string]float64{
		"Initializing":    5,
		"Segmenting":      10,
		"BatchProcessing": 70,
		"Merging":         10,
		"Finalizing":      5,
	}
}

// RecordSegmentCompletion feeds one segment's latency/size into the speed
// window.
func (c *Calculator) RecordSegmentCompletion(ms float64, chars int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	c.latencies = append(c.latencies, latencySample{at: now, ms: ms, chars: chars})
	cutoff := now.Add(-time.Duration(c.windowMs) * time.Millisecond)
	kept := c.latencies[:0]
	for _, s := range c.latencies {
		if s.at.After(cutoff) {
			kept = append(kept, s)
		}
	}
	c.latencies = kept
}

// Speed computes throughput over the configured sliding window.
func (c *Calculator) Speed() types.Speed {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.speedLocked()
}

// speedLocked is Speed's body; callers must hold c.mu.
func (c *Calculator) speedLocked() types.Speed {
	if len(c.latencies) == 0 {
		return types.Speed{}
	}
	var totalMs, totalChars float64
	for _, s := range c.latencies {
		totalMs += s.ms
		totalChars += float64(s.chars)
	}
	n := float64(len(c.latencies))
	windowSeconds := float64(c.windowMs) / 1000
	return types.Speed{
		SegPerMin:    n / (windowSeconds / 60),
		CharsPerSec:  totalChars / windowSeconds,
		AvgLatencyMs: totalMs / n,
	}
}

// stageProgressFor computes the 0-100 progress within the current stage.
// Only BatchProcessing is derived from task counts (completed/total); every
// other stage is caller-driven (0 on entry, 100 on exit) since they have no
// natural sub-progress signal in this pipeline.
func stageProgressFor(stage types.Stage, completed, total int, explicitStageProgress float64) float64 {
	if stage == types.StageBatchProcessing && total > 0 {
		return float64(completed) / float64(total) * 100
	}
	return explicitStageProgress
}

// Compute derives a ProcessingProgress snapshot. explicitStageProgress is
// used for stages other than BatchProcessing, where the caller knows
// whether it has just entered (0) or is about to leave (100) the stage.
func (c *Calculator) Compute(batchID uuid.UUID, stage types.Stage, completed, failed, total int, explicitStageProgress float64, startTime time.Time) types.ProcessingProgress {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	elapsedMs := now.Sub(startTime).Milliseconds()

	stageProgress := stageProgressFor(stage, completed, total, explicitStageProgress)

	var overall float64
	for _, s := range stageOrder {
		if s == stage {
			overall += weightOf(c.weights, s) * (stageProgress / 100)
			break
		}
		overall += weightOf(c.weights, s)
	}
	if stage == types.StageCompleted {
		overall = 100
	}

	if overall < c.highWater {
		overall = c.highWater
	} else {
		c.highWater = overall
	}

	var avgSegmentMs float64
	if completed > 0 {
		avgSegmentMs = float64(elapsedMs) / float64(completed)
	}

	var estRemaining *int64
	if completed > 0 && total > completed {
		remainingMs := int64(float64(total-completed) * avgSegmentMs * stageTimeMultiplier(stage))
		estRemaining = &remainingMs
	}

	return types.ProcessingProgress{
		BatchID:           batchID,
		TotalSegments:     total,
		CompletedSegments: completed,
		FailedSegments:    failed,
		Stage:             stage,
		OverallProgress:   overall,
		StageProgress:     stageProgress,
		ElapsedMs:         elapsedMs,
		EstRemainingMs:    estRemaining,
		AvgSegmentMs:      avgSegmentMs,
		Speed:             c.speedLocked(),
		LastUpdated:       now,
	}
}
