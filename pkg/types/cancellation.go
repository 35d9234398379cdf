package types

import "github.com/google/uuid"

// CancellationReason records why a batch cancellation was requested.
type CancellationReason int

const (
	CancelReasonUserRequested CancellationReason = iota
	CancelReasonTimeout
	CancelReasonSystemShutdown
	CancelReasonResourceLimit
	CancelReasonError
)

func (r CancellationReason) String() string {
	switch r {
	case CancelReasonTimeout:
		return "Timeout"
	case CancelReasonSystemShutdown:
		return "SystemShutdown"
	case CancelReasonResourceLimit:
		return "ResourceLimit"
	case CancelReasonError:
		return "Error"
	default:
		return "UserRequested"
	}
}

// CancellationToken is the process-local signal a batch's workers consult at
// every suspension point. The cancellation package owns synchronized access
// to a token's mutable fields (Requested, Reason, ForceCancel, Checkpoints);
// this struct is the plain data shape they guard.
type CancellationToken struct {
	BatchID     uuid.UUID
	Requested   bool
	Reason      CancellationReason
	ForceCancel bool
	Checkpoints map[int]bool
}

// NewCancellationToken creates an unrequested token for a batch.
func NewCancellationToken(batchID uuid.UUID) *CancellationToken {
	return &CancellationToken{
		BatchID:     batchID,
		Checkpoints: make(map[int]bool),
	}
}
