// Package cancellation holds a registry of per-batch CancellationTokens
// and drives the graceful/forced cancellation protocol. The registry is
// one map behind one mutex with explicit Register/lookup methods rather
// than a dedicated actor per batch.
package cancellation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/entropycollective/batchsum/pkg/types"
)

// PartialResultSaver is the narrow slice of the Partial-Result Handler the
// cancellation protocol needs (step 5: hand off Completed tasks and wait for
// persistence). Implemented by pkg/partial; kept as an interface here so
// pkg/cancellation never imports pkg/partial.
type PartialResultSaver interface {
	Process(ctx context.Context, batchID uuid.UUID, userID string, completed []*types.SegmentTask, totalSegments int) (*types.PartialResult, error)
}

// Authorizer checks batch ownership for RequestCancellation's step 1.
type Authorizer interface {
	OwnerOf(batchID uuid.UUID) (userID string, ok bool)
}

// Notifier is the narrow event-publishing contract the manager depends on.
type Notifier interface {
	Publish(batchID uuid.UUID, eventName string, payload any)
}

// Request is the input to RequestCancellation.
type Request struct {
	BatchID            uuid.UUID
	UserID             string
	Reason             types.CancellationReason
	SavePartialResults bool
	ForceCancel        bool
	UserComment        string
	CompletedSegments  []*types.SegmentTask
	TotalSegments      int
}

// Result reports the outcome of a cancellation request.
type Result struct {
	Success                    bool
	Message                    string
	PartialResultsSaved        bool
	ActualStopTime             time.Time
	GracefulShutdownDurationMs int64
}

var (
	// ErrNotFound is returned when the batch has no registered token.
	ErrNotFound = fmt.Errorf("cancellation: batch not found")
	// ErrUnauthorized is returned when the requesting user does not own the batch.
	ErrUnauthorized = fmt.Errorf("cancellation: user does not own batch")
)

// entry pairs a token with the mutex that guards its mutable fields.
// committed holds the first RequestCancellation's result once the protocol
// has run to completion, so repeated requests replay it instead of
// re-running the side effects.
type entry struct {
	mu        sync.Mutex
	token     *types.CancellationToken
	committed *Result
}

// Manager owns every in-flight batch's CancellationToken and drives the
// graceful/forced cancellation protocol.
type Manager struct {
	mu              sync.RWMutex
	tokens          map[uuid.UUID]*entry
	gracefulTimeout time.Duration
	saver           PartialResultSaver
	authorizer      Authorizer
	notifier        Notifier
}

// New builds a Manager. saver/authorizer/notifier may be nil in tests that
// don't exercise the corresponding protocol step.
func New(gracefulTimeout time.Duration, saver PartialResultSaver, authorizer Authorizer, notifier Notifier) *Manager {
	if gracefulTimeout <= 0 {
		gracefulTimeout = 30 * time.Second
	}
	return &Manager{
		tokens:          make(map[uuid.UUID]*entry),
		gracefulTimeout: gracefulTimeout,
		saver:           saver,
		authorizer:      authorizer,
		notifier:        notifier,
	}
}

// RegisterBatch creates and stores a fresh token for batchID. It panics if
// the id is already registered — a double-registration is a scheduler bug, not a recoverable condition.
func (m *Manager) RegisterBatch(batchID uuid.UUID) *types.CancellationToken {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.tokens[batchID]; exists {
		panic(fmt.Sprintf("cancellation: batch %s already registered", batchID))
	}
	token := types.NewCancellationToken(batchID)
	m.tokens[batchID] = &entry{token: token}
	return token
}

// Unregister removes a batch's token once it has reached a terminal state.
func (m *Manager) Unregister(batchID uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tokens, batchID)
}

func (m *Manager) lookup(batchID uuid.UUID) (*entry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.tokens[batchID]
	return e, ok
}

// IsCancellationRequested reports whether cancellation has been requested
// for batchID. Unknown batches report false.
func (m *Manager) IsCancellationRequested(batchID uuid.UUID) bool {
	e, ok := m.lookup(batchID)
	if !ok {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.token.Requested
}

// GetToken returns a snapshot copy of batchID's token, or nil if unknown.
func (m *Manager) GetToken(batchID uuid.UUID) *types.CancellationToken {
	e, ok := m.lookup(batchID)
	if !ok {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	snapshot := *e.token
	snapshot.Checkpoints = make(map[int]bool, len(e.token.Checkpoints))
	for k, v := range e.token.Checkpoints {
		snapshot.Checkpoints[k] = v
	}
	return &snapshot
}

// SetSafeCheckpoint records whether segmentIndex is currently at a point
// safe to abandon without partial damage. Workers call this on entering
// (false) and leaving (true) a protected region.
func (m *Manager) SetSafeCheckpoint(batchID uuid.UUID, segmentIndex int, isAtCheckpoint bool) {
	e, ok := m.lookup(batchID)
	if !ok {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.token.Checkpoints[segmentIndex] = isAtCheckpoint
}

// allCheckpointed reports whether every tracked segment is currently at a
// safe checkpoint.
func (m *Manager) allCheckpointed(batchID uuid.UUID) bool {
	e, ok := m.lookup(batchID)
	if !ok {
		return true
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, atCheckpoint := range e.token.Checkpoints {
		if !atCheckpoint {
			return false
		}
	}
	return true
}

// RequestCancellation runs the cancellation protocol:
//  1. authorize (user owns batch)
//  2. mark the token requested
//  3. if forceCancel, skip the wait
//  4. else wait up to gracefulTimeout for every worker to reach a safe
//     checkpoint
//  5. if savePartialResults, hand off completed tasks and wait for persistence
//  6. report actualStopTime/duration; callers transition the batch to Cancelled
//
// Cancelling an already-cancelled batch replays the committed Result
// without re-running steps 2-6, so Cancel(Cancel(id)) has the same effect
// as Cancel(id): no duplicate events, no second PartialResult.
func (m *Manager) RequestCancellation(ctx context.Context, req Request) (Result, error) {
	e, ok := m.lookup(req.BatchID)
	if !ok {
		return Result{}, ErrNotFound
	}

	if m.authorizer != nil {
		owner, ok := m.authorizer.OwnerOf(req.BatchID)
		if !ok || owner != req.UserID {
			return Result{}, ErrUnauthorized
		}
	}

	e.mu.Lock()
	if e.committed != nil {
		replay := *e.committed
		e.mu.Unlock()
		return replay, nil
	}
	e.token.Requested = true
	e.token.Reason = req.Reason
	e.token.ForceCancel = req.ForceCancel
	e.mu.Unlock()

	if m.notifier != nil {
		m.notifier.Publish(req.BatchID, "CancellationRequested", req.Reason)
	}

	start := time.Now()
	if !req.ForceCancel {
		m.waitForCheckpoints(ctx, req.BatchID)
	}
	gracefulMs := time.Since(start).Milliseconds()

	saved := false
	if req.SavePartialResults && m.saver != nil {
		if _, err := m.saver.Process(ctx, req.BatchID, req.UserID, req.CompletedSegments, req.TotalSegments); err == nil {
			saved = true
		}
	}

	stopTime := time.Now()
	if m.notifier != nil {
		m.notifier.Publish(req.BatchID, "CancellationCommitted", stopTime)
	}

	result := Result{
		Success:                    true,
		Message:                    "cancellation committed",
		PartialResultsSaved:        saved,
		ActualStopTime:             stopTime,
		GracefulShutdownDurationMs: gracefulMs,
	}

	e.mu.Lock()
	e.committed = &result
	e.mu.Unlock()

	return result, nil
}

// waitForCheckpoints blocks until every in-flight worker for batchID reports
// a safe checkpoint or gracefulTimeout elapses, whichever is first.
func (m *Manager) waitForCheckpoints(ctx context.Context, batchID uuid.UUID) {
	deadline := time.Now().Add(m.gracefulTimeout)
	ticker := time.NewTicker(25 * time.Millisecond)
	defer ticker.Stop()

	for {
		if m.allCheckpointed(batchID) {
			return
		}
		if time.Now().After(deadline) {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
