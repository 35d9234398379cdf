package types

import (
	"fmt"
	"time"
)

// TaskStatus is the lifecycle state of a SegmentTask.
type TaskStatus int

const (
	TaskPending TaskStatus = iota
	TaskProcessing
	TaskCompleted
	TaskFailed
	TaskRetrying
)

func (s TaskStatus) String() string {
	switch s {
	case TaskPending:
		return "Pending"
	case TaskProcessing:
		return "Processing"
	case TaskCompleted:
		return "Completed"
	case TaskFailed:
		return "Failed"
	case TaskRetrying:
		return "Retrying"
	default:
		return "Unknown"
	}
}

// IsTerminal reports whether the status is Completed or Failed.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskCompleted || s == TaskFailed
}

// SegmentTask is the scheduling record for one segment: its current status,
// output summary, retry count, and timing. Mutated only by the scheduler.
type SegmentTask struct {
	SegmentIndex  int
	SourceSegment Segment
	Status        TaskStatus
	Summary       string
	RetryCount    int
	StartedAt     *time.Time
	CompletedAt   *time.Time
	Error         *string
}

// NewSegmentTask creates a Pending task for the given segment.
func NewSegmentTask(segment Segment) *SegmentTask {
	return &SegmentTask{
		SegmentIndex:  segment.Index,
		SourceSegment: segment,
		Status:        TaskPending,
	}
}

// Validate checks the task's invariants from the data model: terminal
// states imply CompletedAt is set, Summary is non-empty iff Completed, and
// RetryCount never exceeds maxRetries.
func (t *SegmentTask) Validate(maxRetries int) error {
	if t.Status.IsTerminal() && t.CompletedAt == nil {
		return fmt.Errorf("segment %d: terminal status %s without CompletedAt", t.SegmentIndex, t.Status)
	}
	if !t.Status.IsTerminal() && t.CompletedAt != nil {
		return fmt.Errorf("segment %d: non-terminal status %s with CompletedAt set", t.SegmentIndex, t.Status)
	}
	if t.Status == TaskCompleted && t.Summary == "" {
		return fmt.Errorf("segment %d: Completed status with empty summary", t.SegmentIndex)
	}
	if t.Status != TaskCompleted && t.Summary != "" {
		return fmt.Errorf("segment %d: non-Completed status with non-empty summary", t.SegmentIndex)
	}
	if t.RetryCount > maxRetries {
		return fmt.Errorf("segment %d: retryCount %d exceeds maxRetries %d", t.SegmentIndex, t.RetryCount, maxRetries)
	}
	return nil
}

// MarkProcessing transitions the task to Processing and records the start time.
func (t *SegmentTask) MarkProcessing(now time.Time) {
	t.Status = TaskProcessing
	t.StartedAt = &now
	t.CompletedAt = nil
}

// MarkCompleted transitions the task to Completed with the given summary.
func (t *SegmentTask) MarkCompleted(summary string, now time.Time) {
	t.Status = TaskCompleted
	t.Summary = summary
	t.Error = nil
	t.CompletedAt = &now
}

// MarkFailed transitions the task to Failed with the given error message.
func (t *SegmentTask) MarkFailed(errMsg string, now time.Time) {
	t.Status = TaskFailed
	errCopy := errMsg
	t.Error = &errCopy
	t.CompletedAt = &now
}

// MarkRetrying transitions the task back to Retrying ahead of another dispatch,
// incrementing RetryCount. The task is not terminal while Retrying.
func (t *SegmentTask) MarkRetrying(errMsg string) {
	t.Status = TaskRetrying
	errCopy := errMsg
	t.Error = &errCopy
	t.RetryCount++
	t.CompletedAt = nil
}
