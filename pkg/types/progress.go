package types

import (
	"time"

	"github.com/google/uuid"
)

// Stage is a phase of batch processing, used for weighted progress and ETA.
type Stage int

const (
	StageInitializing Stage = iota
	StageSegmenting
	StageBatchProcessing
	StageMerging
	StageFinalizing
	StageCompleted
	StageFailed
)

func (s Stage) String() string {
	switch s {
	case StageSegmenting:
		return "Segmenting"
	case StageBatchProcessing:
		return "BatchProcessing"
	case StageMerging:
		return "Merging"
	case StageFinalizing:
		return "Finalizing"
	case StageCompleted:
		return "Completed"
	case StageFailed:
		return "Failed"
	default:
		return "Initializing"
	}
}

// Speed summarizes throughput over the calculator's sliding window.
type Speed struct {
	SegPerMin    float64
	CharsPerSec  float64
	AvgLatencyMs float64
}

// ProcessingProgress is a point-in-time snapshot published to subscribers.
type ProcessingProgress struct {
	BatchID           uuid.UUID
	TotalSegments     int
	CurrentSegment    int
	CompletedSegments int
	FailedSegments    int
	Stage             Stage
	OverallProgress   float64
	StageProgress     float64
	ElapsedMs         int64
	EstRemainingMs    *int64
	AvgSegmentMs      float64
	Speed             Speed
	LastUpdated       time.Time
}
