// Package scheduler admits batches, runs their segment tasks with bounded
// parallelism, drives status transitions, and surfaces every state change
// through the Notifier. Each batch gets a dedicated dispatch goroutine and
// a semaphore sized to its own concurrency limit, so batches never contend
// for each other's worker slots.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/entropycollective/batchsum/pkg/cancellation"
	"github.com/entropycollective/batchsum/pkg/config"
	"github.com/entropycollective/batchsum/pkg/errs"
	"github.com/entropycollective/batchsum/pkg/llm"
	"github.com/entropycollective/batchsum/pkg/notify"
	"github.com/entropycollective/batchsum/pkg/progress"
	"github.com/entropycollective/batchsum/pkg/types"
)

// ErrNotFound is returned for operations against an unknown batch id.
var ErrNotFound = fmt.Errorf("scheduler: batch not found")

// ErrInvalidInput is returned when StartBatch's arguments violate the
// admission contract (empty segments, out-of-range concurrency).
var ErrInvalidInput = fmt.Errorf("scheduler: invalid input")

const (
	minConcurrency     = 1
	maxConcurrency     = 10
	defaultConcurrency = 2
)

// batchState is the scheduler's mutable view of one admitted batch.
type batchState struct {
	mu         sync.Mutex
	batch      *types.Batch
	calc       *progress.Calculator
	stage      types.Stage
	paused     bool
	originalTx string
}

// Scheduler dispatches and tracks all currently-admitted batches.
type Scheduler struct {
	mu         sync.RWMutex
	batches    map[uuid.UUID]*batchState
	summarizer llm.Summarizer
	cancelMgr  *cancellation.Manager
	notifier   *notify.Notifier
	cfg        *config.Config
}

// New builds a Scheduler wired to its collaborators.
func New(summarizer llm.Summarizer, cancelMgr *cancellation.Manager, notifier *notify.Notifier, cfg *config.Config) *Scheduler {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	return &Scheduler{
		batches:    make(map[uuid.UUID]*batchState),
		summarizer: summarizer,
		cancelMgr:  cancelMgr,
		notifier:   notifier,
		cfg:        cfg,
	}
}

func (s *Scheduler) publish(batchID uuid.UUID, eventType notify.EventType, payload any) {
	if s.notifier == nil {
		return
	}
	s.notifier.Publish(notify.Event{BatchID: batchID, Type: eventType, Payload: payload})
}

// StartBatch admits a new batch: validates inputs, creates the
// Batch in Queued status, registers a cancellation token, transitions to
// Processing, and starts the dispatch loop in the background.
func (s *Scheduler) StartBatch(ctx context.Context, segments []types.Segment, originalText string, userID string, concurrencyLimit int, priority types.Priority) (uuid.UUID, error) {
	if len(segments) == 0 {
		return uuid.Nil, fmt.Errorf("%w: segments must be non-empty", ErrInvalidInput)
	}
	if concurrencyLimit == 0 {
		concurrencyLimit = defaultConcurrency
	}
	if concurrencyLimit < minConcurrency || concurrencyLimit > maxConcurrency {
		return uuid.Nil, fmt.Errorf("%w: concurrencyLimit must be in [%d,%d]", ErrInvalidInput, minConcurrency, maxConcurrency)
	}

	batch := types.NewBatch(userID, segments, concurrencyLimit, priority)

	if s.cancelMgr != nil {
		s.cancelMgr.RegisterBatch(batch.ID)
	}

	state := &batchState{
		batch:      batch,
		calc:       progress.NewCalculator(s.cfg.Progress),
		stage:      types.StageInitializing,
		originalTx: originalText,
	}

	s.mu.Lock()
	s.batches[batch.ID] = state
	s.mu.Unlock()

	batch.Status = types.BatchProcessing
	s.publish(batch.ID, notify.EventStatusChange, fmt.Sprintf("%s->%s", types.BatchQueued, types.BatchProcessing))

	go s.runBatch(ctx, state)

	return batch.ID, nil
}

// runBatch drives one batch's dispatch loop to completion. One instance
// runs per batch rather than one shared pool across all batches, since
// each batch has its own concurrencyLimit and cancellation token.
func (s *Scheduler) runBatch(ctx context.Context, state *batchState) {
	state.mu.Lock()
	batch := state.batch
	state.stage = types.StageBatchProcessing
	state.mu.Unlock()

	sem := make(chan struct{}, batch.ConcurrencyLimit)
	var wg sync.WaitGroup

dispatch:
	for _, task := range batch.SortedTasks() {
		for {
			if s.cancelMgr != nil && s.cancelMgr.IsCancellationRequested(batch.ID) {
				break dispatch
			}
			state.mu.Lock()
			paused := state.paused
			state.mu.Unlock()
			if !paused {
				break
			}
			time.Sleep(20 * time.Millisecond)
		}

		sem <- struct{}{}
		wg.Add(1)
		go func(t *types.SegmentTask) {
			defer wg.Done()
			defer func() { <-sem }()
			s.runTask(ctx, state, t)
		}(task)
	}

	wg.Wait()
	s.finalizeBatch(state)
}

// runTask executes one segment task's summarize-retry loop, classifying
// failures and backing off per severity between attempts.
func (s *Scheduler) runTask(ctx context.Context, state *batchState, task *types.SegmentTask) {
	batch := state.batch

	if s.cancelMgr != nil {
		s.cancelMgr.SetSafeCheckpoint(batch.ID, task.SegmentIndex, false)
		defer s.cancelMgr.SetSafeCheckpoint(batch.ID, task.SegmentIndex, true)
	}

	state.mu.Lock()
	task.MarkProcessing(time.Now())
	state.mu.Unlock()

	for {
		start := time.Now()
		summary, err := s.summarizer.Summarize(ctx, task.SourceSegment.Content)
		elapsed := time.Since(start)

		if err == nil {
			state.mu.Lock()
			task.MarkCompleted(summary, time.Now())
			batch.Recompute()
			state.calc.RecordSegmentCompletion(float64(elapsed.Milliseconds()), len(summary))
			state.mu.Unlock()
			s.publish(batch.ID, notify.EventSegmentCompleted, task.SegmentIndex)
			s.emitProgress(state)
			return
		}

		classified := errs.Classify(err, "scheduler")
		maxRetries, baseDelayMs := errs.RetryBudget(classified.Severity)

		if !classified.IsRetryable() || task.RetryCount >= maxRetries {
			state.mu.Lock()
			task.MarkFailed(err.Error(), time.Now())
			batch.Recompute()
			state.mu.Unlock()
			s.publish(batch.ID, notify.EventSegmentFailed, task.SegmentIndex)
			s.emitProgress(state)
			return
		}

		state.mu.Lock()
		task.MarkRetrying(err.Error())
		state.mu.Unlock()

		delayMs := errs.BackoffDelayMs(classified.Severity, task.RetryCount)
		if delayMs == 0 {
			delayMs = baseDelayMs
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Duration(delayMs) * time.Millisecond):
		}

		state.mu.Lock()
		task.MarkProcessing(time.Now())
		state.mu.Unlock()
	}
}

// emitProgress recomputes and publishes a ProgressUpdate snapshot.
func (s *Scheduler) emitProgress(state *batchState) {
	state.mu.Lock()
	batch := state.batch
	completed := batch.Stats.CompletedSegments
	failed := batch.Stats.FailedSegments
	total := batch.Stats.TotalSegments
	stage := state.stage
	startTime := batch.StartTime
	state.mu.Unlock()

	p := state.calc.Compute(batch.ID, stage, completed, failed, total, 0, startTime)
	s.publish(batch.ID, notify.EventProgressUpdate, p)
}

// finalizeBatch applies the terminal state rule: Cancelled when
// cancellation was requested; otherwise Completed when every task is
// terminal and at least one Completed, Failed when every task is terminal
// and none Completed, and the status is left as-is if some task is not
// terminal.
func (s *Scheduler) finalizeBatch(state *batchState) {
	state.mu.Lock()
	batch := state.batch
	batch.Recompute()

	if s.cancelMgr != nil && s.cancelMgr.IsCancellationRequested(batch.ID) {
		batch.Status = types.BatchCancelled
	} else if batch.AllTerminal() {
		if batch.AnyCompleted() {
			batch.Status = types.BatchCompleted
		} else {
			batch.Status = types.BatchFailed
		}
	}
	now := time.Now()
	batch.CompletedTime = &now
	state.stage = types.StageCompleted
	status := batch.Status
	state.mu.Unlock()

	if status == types.BatchCompleted {
		s.publish(batch.ID, notify.EventBatchCompleted, batch.ID)
	} else if status == types.BatchFailed {
		s.publish(batch.ID, notify.EventBatchFailed, batch.ID)
	}
}

// GetBatchProgress returns a read-only progress snapshot, or false for an
// unknown id.
func (s *Scheduler) GetBatchProgress(batchID uuid.UUID) (types.ProcessingProgress, bool) {
	s.mu.RLock()
	state, ok := s.batches[batchID]
	s.mu.RUnlock()
	if !ok {
		return types.ProcessingProgress{}, false
	}

	state.mu.Lock()
	batch := state.batch
	completed := batch.Stats.CompletedSegments
	failed := batch.Stats.FailedSegments
	total := batch.Stats.TotalSegments
	stage := state.stage
	startTime := batch.StartTime
	state.mu.Unlock()

	return state.calc.Compute(batchID, stage, completed, failed, total, 0, startTime), true
}

// GetBatchResult returns a snapshot of the Batch aggregate, or false for an
// unknown id.
func (s *Scheduler) GetBatchResult(batchID uuid.UUID) (*types.Batch, bool) {
	s.mu.RLock()
	state, ok := s.batches[batchID]
	s.mu.RUnlock()
	if !ok {
		return nil, false
	}
	state.mu.Lock()
	defer state.mu.Unlock()
	snapshot := *state.batch
	return &snapshot, true
}

// SetFinalSummary records the merged final summary for a Completed batch.
// It is the seam pkg/pipeline uses to feed a merge result back in without
// this package importing pkg/merge.
func (s *Scheduler) SetFinalSummary(batchID uuid.UUID, summary string) bool {
	s.mu.RLock()
	state, ok := s.batches[batchID]
	s.mu.RUnlock()
	if !ok {
		return false
	}
	state.mu.Lock()
	defer state.mu.Unlock()
	state.batch.FinalSummary = summary
	return true
}

// Pause transitions Processing -> Paused, inhibiting new task dispatch.
// No-op on terminal states or already-paused batches.
func (s *Scheduler) Pause(batchID uuid.UUID) bool {
	s.mu.RLock()
	state, ok := s.batches[batchID]
	s.mu.RUnlock()
	if !ok {
		return false
	}

	state.mu.Lock()
	defer state.mu.Unlock()
	if state.batch.Status.IsTerminal() || state.batch.Status != types.BatchProcessing {
		return false
	}
	state.paused = true
	state.batch.Status = types.BatchPaused
	s.publish(batchID, notify.EventStatusChange, fmt.Sprintf("%s->%s", types.BatchProcessing, types.BatchPaused))
	return true
}

// Resume reverses Pause. No-op on terminal or non-paused batches.
func (s *Scheduler) Resume(batchID uuid.UUID) bool {
	s.mu.RLock()
	state, ok := s.batches[batchID]
	s.mu.RUnlock()
	if !ok {
		return false
	}

	state.mu.Lock()
	defer state.mu.Unlock()
	if state.batch.Status != types.BatchPaused {
		return false
	}
	state.paused = false
	state.batch.Status = types.BatchProcessing
	s.publish(batchID, notify.EventStatusChange, fmt.Sprintf("%s->%s", types.BatchPaused, types.BatchProcessing))
	return true
}

// Cancel delegates to the Cancellation Manager.
func (s *Scheduler) Cancel(ctx context.Context, req cancellation.Request) (bool, error) {
	if s.cancelMgr == nil {
		return false, fmt.Errorf("scheduler: no cancellation manager configured")
	}

	s.mu.RLock()
	state, ok := s.batches[req.BatchID]
	s.mu.RUnlock()
	if !ok {
		return false, ErrNotFound
	}

	state.mu.Lock()
	if state.batch.Status == types.BatchCancelled {
		// Already cancelled: the manager replays the committed result, so
		// repeating the request must not rebuild the completed-task set or
		// re-run the protocol.
		state.mu.Unlock()
		return true, nil
	}
	req.TotalSegments = state.batch.Stats.TotalSegments
	var completed []*types.SegmentTask
	for _, t := range state.batch.Tasks {
		if t.Status == types.TaskCompleted {
			completed = append(completed, t)
		}
	}
	req.CompletedSegments = completed
	state.mu.Unlock()

	result, err := s.cancelMgr.RequestCancellation(ctx, req)
	if err != nil {
		return false, err
	}
	return result.Success, nil
}

// CleanupCompletedBatches removes terminal batches older than the given
// threshold, returning the count removed.
func (s *Scheduler) CleanupCompletedBatches(olderThanHours int) int {
	cutoff := time.Now().Add(-time.Duration(olderThanHours) * time.Hour)

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, state := range s.batches {
		state.mu.Lock()
		terminal := state.batch.Status.IsTerminal()
		completedTime := state.batch.CompletedTime
		state.mu.Unlock()

		if terminal && completedTime != nil && completedTime.Before(cutoff) {
			delete(s.batches, id)
			if s.cancelMgr != nil {
				s.cancelMgr.Unregister(id)
			}
			removed++
		}
	}
	return removed
}

// ListUserBatches returns a page of progress snapshots for userID's batches.
func (s *Scheduler) ListUserBatches(userID string, page, size int) []types.ProcessingProgress {
	if page < 1 {
		page = 1
	}
	if size <= 0 {
		size = 20
	}

	s.mu.RLock()
	var ids []uuid.UUID
	for id, state := range s.batches {
		state.mu.Lock()
		owner := state.batch.UserID
		state.mu.Unlock()
		if owner == userID {
			ids = append(ids, id)
		}
	}
	s.mu.RUnlock()

	start := (page - 1) * size
	if start >= len(ids) {
		return []types.ProcessingProgress{}
	}
	end := start + size
	if end > len(ids) {
		end = len(ids)
	}

	out := make([]types.ProcessingProgress, 0, end-start)
	for _, id := range ids[start:end] {
		if p, ok := s.GetBatchProgress(id); ok {
			out = append(out, p)
		}
	}
	return out
}
