// Package pipeline wires the Batch Scheduler, Merger, Cancellation Manager,
// Partial-Result Handler, and error-handling strategies into one running
// system. It is the composition root the rest of the packages were built to
// avoid importing directly: the scheduler never imports pkg/merge, pkg/errs
// never imports pkg/scheduler, and this package is where those seams get
// their real implementations.
package pipeline

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/entropycollective/batchsum/pkg/cancellation"
	"github.com/entropycollective/batchsum/pkg/errs"
	"github.com/entropycollective/batchsum/pkg/logging"
	"github.com/entropycollective/batchsum/pkg/merge"
	"github.com/entropycollective/batchsum/pkg/notify"
	"github.com/entropycollective/batchsum/pkg/partial"
	"github.com/entropycollective/batchsum/pkg/scheduler"
	"github.com/entropycollective/batchsum/pkg/types"
)

// MergeResultStore is the narrow persistence port the pipeline needs to
// archive a batch's final MergeResult. Implemented by
// pkg/persistence/memory and pkg/persistence/postgres.
type MergeResultStore interface {
	SaveMergeResult(ctx context.Context, batchID uuid.UUID, result *types.MergeResult) error
}

// logAndIgnoreFrequencyThreshold bounds how many times the same component
// may hit LogAndIgnore before errs.SelectStrategy's verdict is overridden by
// escalation.
const logAndIgnoreFrequencyThreshold = 10

// Pipeline owns the running collaborators and reacts to batch-completion
// events by invoking the merger and persisting its result.
type Pipeline struct {
	scheduler *scheduler.Scheduler
	merger    *merge.Merger
	notifier  *notify.Notifier
	cancelMgr *cancellation.Manager
	partials  *partial.Handler
	store     MergeResultStore
	log       *logging.Logger

	mu           sync.Mutex
	errorCounts  map[string]int
	subscription uuid.UUID
}

// New builds a Pipeline. store may be nil, in which case completed merge
// results are only reachable via the scheduler's in-memory Batch.FinalSummary.
func New(s *scheduler.Scheduler, merger *merge.Merger, notifier *notify.Notifier, cancelMgr *cancellation.Manager, partials *partial.Handler, store MergeResultStore) *Pipeline {
	return &Pipeline{
		scheduler:   s,
		merger:      merger,
		notifier:    notifier,
		cancelMgr:   cancelMgr,
		partials:    partials,
		store:       store,
		log:         logging.GetGlobalLogger().WithComponent("pipeline"),
		errorCounts: make(map[string]int),
	}
}

// Start subscribes to the notifier and begins merging batches as they
// complete. It returns the subscription id for later Stop calls.
func (p *Pipeline) Start() uuid.UUID {
	p.subscription = p.notifier.Subscribe(p.handleEvent)
	return p.subscription
}

// Stop unsubscribes the pipeline from the notifier.
func (p *Pipeline) Stop() {
	p.notifier.Unsubscribe(p.subscription)
}

func (p *Pipeline) handleEvent(event notify.Event) error {
	if event.Type != notify.EventBatchCompleted {
		return nil
	}
	batchID, ok := event.Payload.(uuid.UUID)
	if !ok {
		return fmt.Errorf("pipeline: unexpected BatchCompleted payload %T", event.Payload)
	}
	return p.MergeBatch(context.Background(), batchID)
}

// MergeBatch fetches a completed batch's segment summaries, runs them
// through the Merger, and records the result. It is the direct entry point
// cmd/batchsum uses when running without a live Notifier subscription (e.g.
// a one-shot CLI invocation), and the handler the Notifier calls on
// BatchCompleted.
func (p *Pipeline) MergeBatch(ctx context.Context, batchID uuid.UUID) error {
	batch, ok := p.scheduler.GetBatchResult(batchID)
	if !ok {
		return fmt.Errorf("pipeline: batch %s not found", batchID)
	}

	job := types.NewMergeJob(batch.SortedTasks(), types.StrategyBalanced, map[string]any{
		"autoSelectStrategy": true,
	})

	result, err := p.merger.Merge(ctx, job)
	if err != nil {
		p.HandleError(ctx, err, "pipeline.merge", batchID)
		return err
	}

	if !p.scheduler.SetFinalSummary(batchID, result.FinalSummary) {
		p.log.Warnf("batch %s vanished before its final summary could be recorded", batchID)
	}

	if p.store != nil {
		if err := p.store.SaveMergeResult(ctx, batchID, result); err != nil {
			p.HandleError(ctx, err, "pipeline.persist", batchID)
			return err
		}
	}

	p.log.Info("batch merged", map[string]any{"batchId": batchID.String(), "strategy": result.AppliedStrategy.String(), "inputCount": result.Statistics.InputCount})
	return nil
}

// completedSegments returns batch's Completed tasks in segmentIndex order.
func completedSegments(batch *types.Batch) []*types.SegmentTask {
	var out []*types.SegmentTask
	for _, t := range batch.SortedTasks() {
		if t.Status == types.TaskCompleted {
			out = append(out, t)
		}
	}
	return out
}

// savePartialResults hands batchID's currently-completed segments to the
// Partial-Result Handler, for use as an EscalateHooks/ImmediateStopHooks
// side effect.
func (p *Pipeline) savePartialResults(ctx context.Context, batchID uuid.UUID) error {
	batch, ok := p.scheduler.GetBatchResult(batchID)
	if !ok {
		return fmt.Errorf("pipeline: batch %s not found", batchID)
	}
	_, err := p.partials.Process(ctx, batchID, batch.UserID, completedSegments(batch), len(batch.Tasks))
	return err
}

func (p *Pipeline) escalateHooks(batchID uuid.UUID) errs.EscalateHooks {
	return errs.EscalateHooks{
		SavePartialResults: func(ctx context.Context) error { return p.savePartialResults(ctx, batchID) },
		PauseBatch: func(ctx context.Context) error {
			if !p.scheduler.Pause(batchID) {
				return fmt.Errorf("pipeline: could not pause batch %s", batchID)
			}
			return nil
		},
		NotifyAdmins: func(report errs.EscalationReport) error {
			p.notifier.Publish(notify.Event{BatchID: batchID, Type: notify.EventError, Payload: report})
			return nil
		},
	}
}

func (p *Pipeline) immediateStopHooks(batchID uuid.UUID) errs.ImmediateStopHooks {
	return errs.ImmediateStopHooks{
		EmergencySaveState: func(ctx context.Context) error { return p.savePartialResults(ctx, batchID) },
		SetUnsafeCheckpoint: func() {
			batch, ok := p.scheduler.GetBatchResult(batchID)
			if !ok {
				return
			}
			for _, t := range batch.Tasks {
				p.cancelMgr.SetSafeCheckpoint(batchID, t.SegmentIndex, false)
			}
		},
		BroadcastEmergency: func(stopType errs.StopType) error {
			p.notifier.Publish(notify.Event{BatchID: batchID, Type: notify.EventError, Payload: stopType})
			return nil
		},
		ReleaseResources: func(ctx context.Context) error {
			p.cancelMgr.Unregister(batchID)
			return nil
		},
	}
}

// HandleError classifies err, selects a handling strategy from the
// (category, severity) matrix, and dispatches to the matching strategy
// executor, wiring its side effects to this pipeline's scheduler,
// cancellation manager, partial-result handler, and notifier.
func (p *Pipeline) HandleError(ctx context.Context, err error, component string, batchID uuid.UUID) errs.Outcome {
	classified := errs.Classify(err, component)
	strategy := errs.SelectStrategy(classified.Category, classified.Severity)

	switch strategy {
	case types.StrategyLogAndIgnore:
		count := p.bumpErrorCount(component)
		return errs.LogAndIgnore(classified, count, logAndIgnoreFrequencyThreshold, func(severity types.Severity, category types.ErrorCategory, message string) {
			p.log.Warn(message, map[string]any{"category": category.String(), "severity": severity.String(), "batchId": batchID.String()})
		})

	case types.StrategyEscalate:
		outcome, _ := errs.Escalate(ctx, classified, nil, p.escalateHooks(batchID))
		return outcome

	case types.StrategyImmediateStop:
		return errs.ImmediateStop(ctx, classified, p.immediateStopHooks(batchID))

	case types.StrategyUserGuidance:
		outcome, guide := errs.UserGuidance(classified.Category)
		p.notifier.Publish(notify.Event{BatchID: batchID, Type: notify.EventError, Payload: guide})
		return outcome

	case types.StrategyRecovery:
		return errs.Recovery(ctx, []errs.RecoveryStep{
			{Name: "save partial results", Execute: func(ctx context.Context) error { return p.savePartialResults(ctx, batchID) }},
			{Name: "re-merge batch", Execute: func(ctx context.Context) error { return p.MergeBatch(ctx, batchID) }},
		})

	case types.StrategyFallback:
		return errs.Fallback(ctx, []errs.FallbackOption{{
			Name:        "rule-based merge",
			Priority:    1,
			Reliability: 1,
			Execute: func(ctx context.Context) error {
				batch, ok := p.scheduler.GetBatchResult(batchID)
				if !ok {
					return fmt.Errorf("pipeline: batch %s not found", batchID)
				}
				job := types.NewMergeJob(batch.SortedTasks(), types.StrategyConcise, map[string]any{})
				result, mergeErr := p.merger.Merge(ctx, job)
				if mergeErr != nil {
					return mergeErr
				}
				p.scheduler.SetFinalSummary(batchID, result.FinalSummary)
				return nil
			},
		}})

	default: // StrategyRetry: the scheduler already owns segment-level retry.
		p.log.Debug("retry strategy selected; scheduler owns segment-level retry", map[string]any{"component": component})
		return errs.Outcome{Success: true, Message: "retry delegated to scheduler"}
	}
}

func (p *Pipeline) bumpErrorCount(component string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.errorCounts[component]++
	return p.errorCounts[component]
}
