// Package memory provides an in-process, mutex-guarded implementation of the
// persistence ports (pkg/partial.Store and pkg/pipeline.MergeResultStore)
// for tests and for running the pipeline without external infrastructure.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/entropycollective/batchsum/pkg/types"
)

// Store is an in-memory implementation of pkg/partial.Store and a companion
// store for completed merge results, guarded by a single RWMutex.
type Store struct {
	mu           sync.RWMutex
	partials     map[uuid.UUID]*types.PartialResult
	mergeResults map[uuid.UUID]*types.MergeResult
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		partials:     make(map[uuid.UUID]*types.PartialResult),
		mergeResults: make(map[uuid.UUID]*types.MergeResult),
	}
}

func clonePartial(pr *types.PartialResult) *types.PartialResult {
	cp := *pr
	cp.CompletedSegments = append([]*types.SegmentTask(nil), pr.CompletedSegments...)
	return &cp
}

// SavePartialResult inserts a PartialResult, erroring on a duplicate id.
func (s *Store) SavePartialResult(ctx context.Context, pr *types.PartialResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.partials[pr.ID]; exists {
		return fmt.Errorf("memory: partial result %s already exists", pr.ID)
	}
	s.partials[pr.ID] = clonePartial(pr)
	return nil
}

// GetPartialResult returns a copy of the stored PartialResult.
func (s *Store) GetPartialResult(ctx context.Context, id uuid.UUID) (*types.PartialResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pr, ok := s.partials[id]
	if !ok {
		return nil, fmt.Errorf("memory: partial result %s not found", id)
	}
	return clonePartial(pr), nil
}

// UpdatePartialResult overwrites an existing PartialResult by id.
func (s *Store) UpdatePartialResult(ctx context.Context, pr *types.PartialResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.partials[pr.ID]; !ok {
		return fmt.Errorf("memory: partial result %s not found", pr.ID)
	}
	s.partials[pr.ID] = clonePartial(pr)
	return nil
}

// ListPartialResultsForUser paginates a user's PartialResults in
// CancellationTime-descending order, optionally filtered by status.
func (s *Store) ListPartialResultsForUser(ctx context.Context, userID string, statusFilter *types.PartialResultStatus, page, size int) ([]*types.PartialResult, error) {
	s.mu.RLock()
	var matched []*types.PartialResult
	for _, pr := range s.partials {
		if pr.UserID != userID {
			continue
		}
		if statusFilter != nil && pr.Status != *statusFilter {
			continue
		}
		matched = append(matched, clonePartial(pr))
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool { return matched[i].CancellationTime.After(matched[j].CancellationTime) })

	if page < 1 {
		page = 1
	}
	if size <= 0 {
		size = 20
	}
	start := (page - 1) * size
	if start >= len(matched) {
		return []*types.PartialResult{}, nil
	}
	end := start + size
	if end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], nil
}

// ListExpiredPending returns PendingUserDecision results whose
// CancellationTime is at or before cutoff.
func (s *Store) ListExpiredPending(ctx context.Context, cutoff time.Time) ([]*types.PartialResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*types.PartialResult
	for _, pr := range s.partials {
		if pr.Status == types.PartialPendingUserDecision && !pr.CancellationTime.After(cutoff) {
			out = append(out, clonePartial(pr))
		}
	}
	return out, nil
}

// SaveMergeResult persists a batch's completed MergeResult, keyed by
// batchID, for later retrieval by cmd/batchsum or an API layer.
func (s *Store) SaveMergeResult(ctx context.Context, batchID uuid.UUID, result *types.MergeResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *result
	s.mergeResults[batchID] = &cp
	return nil
}

// GetMergeResult returns the MergeResult saved for batchID, if any.
func (s *Store) GetMergeResult(ctx context.Context, batchID uuid.UUID) (*types.MergeResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result, ok := s.mergeResults[batchID]
	if !ok {
		return nil, fmt.Errorf("memory: merge result for batch %s not found", batchID)
	}
	cp := *result
	return &cp, nil
}
