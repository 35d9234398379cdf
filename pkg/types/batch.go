package types

import (
	"time"

	"github.com/google/uuid"
)

// BatchStatus is the lifecycle state of a Batch.
type BatchStatus int

const (
	BatchQueued BatchStatus = iota
	BatchProcessing
	BatchPaused
	BatchCompleted
	BatchFailed
	BatchCancelled
)

func (s BatchStatus) String() string {
	switch s {
	case BatchQueued:
		return "Queued"
	case BatchProcessing:
		return "Processing"
	case BatchPaused:
		return "Paused"
	case BatchCompleted:
		return "Completed"
	case BatchFailed:
		return "Failed"
	case BatchCancelled:
		return "Cancelled"
	default:
		return "Unknown"
	}
}

// IsTerminal reports whether the batch has reached a final status.
func (s BatchStatus) IsTerminal() bool {
	return s == BatchCompleted || s == BatchFailed || s == BatchCancelled
}

// Priority is the caller-supplied scheduling priority of a Batch. It does not
// affect dispatch order within a single batch (which is always by
// segmentIndex); it is advisory metadata for operators. ListUserBatches
// does not sort by it.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
	PriorityUrgent
)

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "Low"
	case PriorityHigh:
		return "High"
	case PriorityUrgent:
		return "Urgent"
	default:
		return "Normal"
	}
}

// BatchStats summarizes task outcomes for a Batch.
type BatchStats struct {
	TotalSegments     int
	CompletedSegments int
	FailedSegments    int
	RetriedSegments   int
	TotalCharacters   int
	AvgSegmentMs      float64
}

// Batch is the aggregate job submitted by a caller: an ordered set of
// SegmentTasks plus scheduling and result metadata.
type Batch struct {
	ID               uuid.UUID
	UserID           string
	Tasks            []*SegmentTask
	Status           BatchStatus
	StartTime        time.Time
	CompletedTime    *time.Time
	ConcurrencyLimit int
	Priority         Priority
	FinalSummary     string
	Stats            BatchStats
}

// NewBatch builds a Queued batch from ordered segments. Callers must supply
// segments already sorted by Index; the scheduler does not re-sort on
// admission (it only guarantees dispatch and merge order downstream).
func NewBatch(userID string, segments []Segment, concurrencyLimit int, priority Priority) *Batch {
	tasks := make([]*SegmentTask, len(segments))
	for i, seg := range segments {
		tasks[i] = NewSegmentTask(seg)
	}
	return &Batch{
		ID:               uuid.New(),
		UserID:           userID,
		Tasks:            tasks,
		Status:           BatchQueued,
		StartTime:        time.Now(),
		ConcurrencyLimit: concurrencyLimit,
		Priority:         priority,
		Stats:            BatchStats{TotalSegments: len(segments)},
	}
}

// Recompute refreshes Stats from the current task slice. Callers hold
// whatever lock guards Tasks; Recompute itself does no locking.
func (b *Batch) Recompute() {
	completed, failed, retried, chars := 0, 0, 0, 0
	var totalMs float64
	for _, t := range b.Tasks {
		switch t.Status {
		case TaskCompleted:
			completed++
			chars += len(t.Summary)
			if t.StartedAt != nil && t.CompletedAt != nil {
				totalMs += float64(t.CompletedAt.Sub(*t.StartedAt).Milliseconds())
			}
		case TaskFailed:
			failed++
		}
		if t.RetryCount > 0 {
			retried++
		}
	}
	b.Stats.CompletedSegments = completed
	b.Stats.FailedSegments = failed
	b.Stats.RetriedSegments = retried
	b.Stats.TotalCharacters = chars
	if completed > 0 {
		b.Stats.AvgSegmentMs = totalMs / float64(completed)
	}
}

// SortedTasks returns a copy of Tasks ordered by SegmentIndex ascending,
// used by the merger regardless of completion order.
func (b *Batch) SortedTasks() []*SegmentTask {
	out := make([]*SegmentTask, len(b.Tasks))
	copy(out, b.Tasks)
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].SegmentIndex < out[j-1].SegmentIndex; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

// AllTerminal reports whether every task has reached Completed or Failed.
func (b *Batch) AllTerminal() bool {
	for _, t := range b.Tasks {
		if !t.Status.IsTerminal() {
			return false
		}
	}
	return true
}

// AnyCompleted reports whether at least one task reached Completed.
func (b *Batch) AnyCompleted() bool {
	for _, t := range b.Tasks {
		if t.Status == TaskCompleted {
			return true
		}
	}
	return false
}
