package partial

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entropycollective/batchsum/pkg/types"
)

type memStore struct {
	mu      sync.Mutex
	results map[uuid.UUID]*types.PartialResult
}

func newMemStore() *memStore {
	return &memStore{results: make(map[uuid.UUID]*types.PartialResult)}
}

func (s *memStore) SavePartialResult(ctx context.Context, pr *types.PartialResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[pr.ID] = pr
	return nil
}

func (s *memStore) GetPartialResult(ctx context.Context, id uuid.UUID) (*types.PartialResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pr, ok := s.results[id]
	if !ok {
		return nil, ErrNotFound
	}
	return pr, nil
}

func (s *memStore) UpdatePartialResult(ctx context.Context, pr *types.PartialResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[pr.ID] = pr
	return nil
}

func (s *memStore) ListPartialResultsForUser(ctx context.Context, userID string, statusFilter *types.PartialResultStatus, page, size int) ([]*types.PartialResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*types.PartialResult
	for _, pr := range s.results {
		if pr.UserID != userID {
			continue
		}
		if statusFilter != nil && pr.Status != *statusFilter {
			continue
		}
		out = append(out, pr)
	}
	return out, nil
}

func (s *memStore) ListExpiredPending(ctx context.Context, cutoff time.Time) ([]*types.PartialResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*types.PartialResult
	for _, pr := range s.results {
		if pr.Status == types.PartialPendingUserDecision && pr.CancellationTime.Before(cutoff) {
			out = append(out, pr)
		}
	}
	return out, nil
}

func completedTask(index int, summary string) *types.SegmentTask {
	now := time.Now()
	return &types.SegmentTask{
		SegmentIndex: index,
		Status:       types.TaskCompleted,
		Summary:      summary,
		StartedAt:    &now,
		CompletedAt:  &now,
	}
}

func TestProcessGradesAndPersists(t *testing.T) {
	store := newMemStore()
	h := New(store, nil)

	completed := []*types.SegmentTask{
		completedTask(0, "the quick brown fox"),
		completedTask(1, "the quick brown dog"),
		completedTask(2, "jumped over the lazy cat"),
	}

	pr, err := h.Process(context.Background(), uuid.New(), "alice", completed, 3)
	require.NoError(t, err)
	assert.Equal(t, types.PartialPendingUserDecision, pr.Status)
	assert.InDelta(t, 1.0, pr.Quality.CompletenessScore, 0.001)
	assert.True(t, pr.Quality.Coverage.Continuous)
	assert.NotEmpty(t, pr.PartialSummary)

	stored, err := store.GetPartialResult(context.Background(), pr.ID)
	require.NoError(t, err)
	assert.Equal(t, pr.ID, stored.ID)
}

func TestProcessDetectsGapsInCoverage(t *testing.T) {
	store := newMemStore()
	h := New(store, nil)

	completed := []*types.SegmentTask{
		completedTask(0, "alpha"),
		completedTask(4, "omega"),
	}

	pr, err := h.Process(context.Background(), uuid.New(), "bob", completed, 6)
	require.NoError(t, err)
	assert.False(t, pr.Quality.Coverage.Continuous)
	assert.Equal(t, 1, pr.Quality.Coverage.Gaps)
	assert.Len(t, pr.Quality.MissingTopics, 4)
}

func TestUpdateStatusEnforcesOwnership(t *testing.T) {
	store := newMemStore()
	h := New(store, nil)

	pr, err := h.Process(context.Background(), uuid.New(), "alice", []*types.SegmentTask{completedTask(0, "x")}, 1)
	require.NoError(t, err)

	err = h.UpdateStatus(context.Background(), pr.ID, types.PartialAccepted, "", "mallory")
	assert.ErrorIs(t, err, ErrUnauthorized)

	err = h.UpdateStatus(context.Background(), pr.ID, types.PartialAccepted, "keep going", "alice")
	require.NoError(t, err)

	stored, _ := store.GetPartialResult(context.Background(), pr.ID)
	assert.Equal(t, types.PartialAccepted, stored.Status)
	assert.NotNil(t, stored.AcceptedTime)
}

func TestUpdateStatusRejectsIllegalTransition(t *testing.T) {
	store := newMemStore()
	h := New(store, nil)

	pr, _ := h.Process(context.Background(), uuid.New(), "alice", []*types.SegmentTask{completedTask(0, "x")}, 1)
	require.NoError(t, h.UpdateStatus(context.Background(), pr.ID, types.PartialAccepted, "", "alice"))

	err := h.UpdateStatus(context.Background(), pr.ID, types.PartialRejected, "", "alice")
	assert.ErrorIs(t, err, ErrIllegalTransition)
}

func TestCleanupExpiredTransitionsStaleRows(t *testing.T) {
	store := newMemStore()
	h := New(store, nil)

	pr, _ := h.Process(context.Background(), uuid.New(), "alice", []*types.SegmentTask{completedTask(0, "x")}, 1)
	pr.CancellationTime = time.Now().Add(-48 * time.Hour)
	require.NoError(t, store.UpdatePartialResult(context.Background(), pr))

	count, err := h.CleanupExpired(context.Background(), 24)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	stored, _ := store.GetPartialResult(context.Background(), pr.ID)
	assert.Equal(t, types.PartialExpired, stored.Status)
}

func TestCanContinueFromRequiresAcceptableAndContinuous(t *testing.T) {
	store := newMemStore()
	h := New(store, nil)

	good, _ := h.Process(context.Background(), uuid.New(), "alice", []*types.SegmentTask{
		completedTask(0, "a"), completedTask(1, "b"), completedTask(2, "c"),
	}, 3)
	can, err := h.CanContinueFrom(context.Background(), good.ID, "alice")
	require.NoError(t, err)
	assert.True(t, can)

	gappy, _ := h.Process(context.Background(), uuid.New(), "alice", []*types.SegmentTask{
		completedTask(0, "a"), completedTask(5, "z"),
	}, 8)
	can, err = h.CanContinueFrom(context.Background(), gappy.ID, "alice")
	require.NoError(t, err)
	assert.False(t, can)
}
