package memory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entropycollective/batchsum/pkg/types"
)

func samplePartial(userID string, at time.Time) *types.PartialResult {
	return types.NewPartialResult(uuid.New(), userID, nil, 4, types.Quality{}, at)
}

func TestSaveAndGetPartialResult(t *testing.T) {
	s := New()
	pr := samplePartial("alice", time.Now())

	require.NoError(t, s.SavePartialResult(context.Background(), pr))

	got, err := s.GetPartialResult(context.Background(), pr.ID)
	require.NoError(t, err)
	assert.Equal(t, pr.ID, got.ID)
	assert.Equal(t, "alice", got.UserID)
}

func TestSavePartialResultRejectsDuplicateID(t *testing.T) {
	s := New()
	pr := samplePartial("alice", time.Now())
	require.NoError(t, s.SavePartialResult(context.Background(), pr))
	assert.Error(t, s.SavePartialResult(context.Background(), pr))
}

func TestGetPartialResultUnknownID(t *testing.T) {
	s := New()
	_, err := s.GetPartialResult(context.Background(), uuid.New())
	assert.Error(t, err)
}

func TestUpdatePartialResultPersistsStatus(t *testing.T) {
	s := New()
	pr := samplePartial("alice", time.Now())
	require.NoError(t, s.SavePartialResult(context.Background(), pr))

	pr.Status = types.PartialAccepted
	require.NoError(t, s.UpdatePartialResult(context.Background(), pr))

	got, err := s.GetPartialResult(context.Background(), pr.ID)
	require.NoError(t, err)
	assert.Equal(t, types.PartialAccepted, got.Status)
}

func TestListPartialResultsForUserFiltersByStatus(t *testing.T) {
	s := New()
	pending := samplePartial("alice", time.Now())
	accepted := samplePartial("alice", time.Now())
	accepted.Status = types.PartialAccepted
	require.NoError(t, s.SavePartialResult(context.Background(), pending))
	require.NoError(t, s.SavePartialResult(context.Background(), accepted))

	statusFilter := types.PartialAccepted
	results, err := s.ListPartialResultsForUser(context.Background(), "alice", &statusFilter, 1, 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, accepted.ID, results[0].ID)
}

func TestListPartialResultsForUserPaginates(t *testing.T) {
	s := New()
	for i := 0; i < 5; i++ {
		require.NoError(t, s.SavePartialResult(context.Background(), samplePartial("bob", time.Now())))
	}
	page1, err := s.ListPartialResultsForUser(context.Background(), "bob", nil, 1, 2)
	require.NoError(t, err)
	assert.Len(t, page1, 2)

	page3, err := s.ListPartialResultsForUser(context.Background(), "bob", nil, 3, 2)
	require.NoError(t, err)
	assert.Len(t, page3, 1)
}

func TestListExpiredPendingOnlyReturnsPastCutoff(t *testing.T) {
	s := New()
	old := samplePartial("alice", time.Now().Add(-48*time.Hour))
	fresh := samplePartial("alice", time.Now())
	require.NoError(t, s.SavePartialResult(context.Background(), old))
	require.NoError(t, s.SavePartialResult(context.Background(), fresh))

	expired, err := s.ListExpiredPending(context.Background(), time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, old.ID, expired[0].ID)
}

func TestSaveAndGetMergeResult(t *testing.T) {
	s := New()
	batchID := uuid.New()
	result := &types.MergeResult{FinalSummary: "the final merged text"}

	require.NoError(t, s.SaveMergeResult(context.Background(), batchID, result))

	got, err := s.GetMergeResult(context.Background(), batchID)
	require.NoError(t, err)
	assert.Equal(t, "the final merged text", got.FinalSummary)
}

func TestGetMergeResultUnknownBatch(t *testing.T) {
	s := New()
	_, err := s.GetMergeResult(context.Background(), uuid.New())
	assert.Error(t, err)
}
