package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entropycollective/batchsum/pkg/cancellation"
	"github.com/entropycollective/batchsum/pkg/config"
	"github.com/entropycollective/batchsum/pkg/llm/mock"
	"github.com/entropycollective/batchsum/pkg/merge"
	"github.com/entropycollective/batchsum/pkg/notify"
	"github.com/entropycollective/batchsum/pkg/partial"
	"github.com/entropycollective/batchsum/pkg/persistence/memory"
	"github.com/entropycollective/batchsum/pkg/scheduler"
	"github.com/entropycollective/batchsum/pkg/types"
)

func segments(n int) []types.Segment {
	out := make([]types.Segment, n)
	for i := 0; i < n; i++ {
		out[i] = types.Segment{Index: i, Content: "segment content"}
	}
	return out
}

func waitForTerminal(t *testing.T, s *scheduler.Scheduler, batchID uuid.UUID) *types.Batch {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		b, ok := s.GetBatchResult(batchID)
		require.True(t, ok)
		if b.Status.IsTerminal() {
			return b
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("batch never reached a terminal state")
	return nil
}

type testRig struct {
	scheduler *scheduler.Scheduler
	cancelMgr *cancellation.Manager
	notifier  *notify.Notifier
	partials  *partial.Handler
	store     *memory.Store
	pipeline  *Pipeline
}

func newTestRig(summarizer *mock.Summarizer) *testRig {
	store := memory.New()
	n := notify.New(64)
	cm := cancellation.New(time.Second, nil, nil, nil)
	partials := partial.New(store, nil)
	sched := scheduler.New(summarizer, cm, n, config.DefaultConfig())
	merger := merge.New(config.DefaultConfig().Merging, summarizer, nil)
	p := New(sched, merger, n, cm, partials, store)
	return &testRig{scheduler: sched, cancelMgr: cm, notifier: n, partials: partials, store: store, pipeline: p}
}

func TestMergeBatchPersistsFinalSummary(t *testing.T) {
	rig := newTestRig(mock.New())
	batchID, err := rig.scheduler.StartBatch(context.Background(), segments(3), "", "alice", 2, types.PriorityNormal)
	require.NoError(t, err)
	waitForTerminal(t, rig.scheduler, batchID)

	require.NoError(t, rig.pipeline.MergeBatch(context.Background(), batchID))

	batch, _ := rig.scheduler.GetBatchResult(batchID)
	assert.NotEmpty(t, batch.FinalSummary)

	saved, err := rig.store.GetMergeResult(context.Background(), batchID)
	require.NoError(t, err)
	assert.Equal(t, batch.FinalSummary, saved.FinalSummary)
}

func TestMergeBatchUnknownBatch(t *testing.T) {
	rig := newTestRig(mock.New())
	err := rig.pipeline.MergeBatch(context.Background(), uuid.New())
	assert.Error(t, err)
}

func TestStartSubscribesAndMergesOnCompletion(t *testing.T) {
	rig := newTestRig(mock.New())
	rig.pipeline.Start()
	defer rig.pipeline.Stop()

	batchID, err := rig.scheduler.StartBatch(context.Background(), segments(2), "", "bob", 1, types.PriorityNormal)
	require.NoError(t, err)
	waitForTerminal(t, rig.scheduler, batchID)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := rig.store.GetMergeResult(context.Background(), batchID); err == nil {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("pipeline never merged the completed batch")
}

func TestHandleErrorValidationReturnsGuidance(t *testing.T) {
	rig := newTestRig(mock.New())
	batchID, err := rig.scheduler.StartBatch(context.Background(), segments(1), "", "alice", 1, types.PriorityNormal)
	require.NoError(t, err)
	waitForTerminal(t, rig.scheduler, batchID)

	outcome := rig.pipeline.HandleError(context.Background(), errors.New("invalid request: bad field"), "pipeline.test", batchID)
	assert.True(t, outcome.Success)
}

func TestHandleErrorUnmappedCategoryEscalates(t *testing.T) {
	rig := newTestRig(mock.New())
	batchID, err := rig.scheduler.StartBatch(context.Background(), segments(1), "", "alice", 1, types.PriorityNormal)
	require.NoError(t, err)
	waitForTerminal(t, rig.scheduler, batchID)

	outcome := rig.pipeline.HandleError(context.Background(), errors.New("misconfigured summarizer endpoint"), "pipeline.test", batchID)
	assert.True(t, outcome.Success)
	assert.True(t, outcome.RequiresFurtherAction)
}

func TestHandleErrorEscalatesAndPausesBatch(t *testing.T) {
	sum := mock.New()
	sum.Delay = func(callIndex int) error {
		time.Sleep(50 * time.Millisecond)
		return nil
	}
	rig := newTestRig(sum)
	batchID, err := rig.scheduler.StartBatch(context.Background(), segments(3), "", "alice", 1, types.PriorityNormal)
	require.NoError(t, err)
	time.Sleep(10 * time.Millisecond)

	outcome := rig.pipeline.HandleError(context.Background(), errors.New("storage unavailable"), "pipeline.test", batchID)
	assert.True(t, outcome.Success)
	assert.True(t, outcome.RequiresFurtherAction)
}

func TestHandleErrorEscalatesOnAuthFailure(t *testing.T) {
	rig := newTestRig(mock.New())
	batchID, err := rig.scheduler.StartBatch(context.Background(), segments(1), "", "alice", 1, types.PriorityNormal)
	require.NoError(t, err)
	waitForTerminal(t, rig.scheduler, batchID)

	outcome := rig.pipeline.HandleError(context.Background(), errors.New("unauthorized: invalid credentials"), "pipeline.test", batchID)
	assert.True(t, outcome.Success)
	assert.True(t, outcome.RequiresFurtherAction)
}
