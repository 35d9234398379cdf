package types

import (
	"time"

	"github.com/google/uuid"
)

// PartialResultStatus is the lifecycle state of a PartialResult.
type PartialResultStatus int

const (
	PartialPendingUserDecision PartialResultStatus = iota
	PartialAccepted
	PartialRejected
	PartialExpired
	PartialProcessing
	PartialFailed
)

func (s PartialResultStatus) String() string {
	switch s {
	case PartialAccepted:
		return "Accepted"
	case PartialRejected:
		return "Rejected"
	case PartialExpired:
		return "Expired"
	case PartialProcessing:
		return "Processing"
	case PartialFailed:
		return "Failed"
	default:
		return "PendingUserDecision"
	}
}

// IsFinalized reports whether the status is one of the three resting states
// the partial result can no longer leave.
func (s PartialResultStatus) IsFinalized() bool {
	return s == PartialAccepted || s == PartialRejected || s == PartialExpired
}

// PartialResult is the snapshot preserved when a batch is cancelled with
// preservation requested. It outlives its originating batch.
type PartialResult struct {
	ID                uuid.UUID
	BatchID           uuid.UUID
	UserID            string
	CompletedSegments []*SegmentTask
	TotalSegments     int
	CompletionPct     float64
	PartialSummary    string
	Quality           Quality
	Status            PartialResultStatus
	CancellationTime  time.Time
	AcceptedTime      *time.Time
}

// NewPartialResult builds a PendingUserDecision snapshot from the completed
// tasks of a batch being cancelled. CompletionPct is derived here so the
// |completedSegments|/totalSegments invariant always holds by construction.
func NewPartialResult(batchID uuid.UUID, userID string, completed []*SegmentTask, totalSegments int, quality Quality, at time.Time) *PartialResult {
	pct := 0.0
	if totalSegments > 0 {
		pct = float64(len(completed)) / float64(totalSegments)
	}
	return &PartialResult{
		ID:                uuid.New(),
		BatchID:           batchID,
		UserID:            userID,
		CompletedSegments: completed,
		TotalSegments:     totalSegments,
		CompletionPct:     pct,
		Quality:           quality,
		Status:            PartialPendingUserDecision,
		CancellationTime:  at,
	}
}

// CanTransitionTo reports whether moving from the current status to next is
// legal: PendingUserDecision -> {Accepted, Rejected, Expired}; a move to the
// current status is idempotent and always allowed; everything else is
// rejected.
func (p *PartialResult) CanTransitionTo(next PartialResultStatus) bool {
	if p.Status == next {
		return true
	}
	if p.Status == PartialPendingUserDecision {
		return next == PartialAccepted || next == PartialRejected || next == PartialExpired
	}
	return false
}
