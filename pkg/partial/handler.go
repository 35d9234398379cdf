// Package partial grades a cancelled batch's completed work, persists a
// PartialResult for later user decision, and governs the
// PendingUserDecision lifecycle. Quality grading runs one small named
// scorer per dimension rather than one monolithic function.
package partial

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/entropycollective/batchsum/pkg/similarity"
	"github.com/entropycollective/batchsum/pkg/topics"
	"github.com/entropycollective/batchsum/pkg/types"
)

// Store is the persistence port the handler depends on. pkg/persistence
// provides concrete implementations; kept as a local interface so this
// package never imports a specific backend.
type Store interface {
	SavePartialResult(ctx context.Context, pr *types.PartialResult) error
	GetPartialResult(ctx context.Context, id uuid.UUID) (*types.PartialResult, error)
	UpdatePartialResult(ctx context.Context, pr *types.PartialResult) error
	ListPartialResultsForUser(ctx context.Context, userID string, statusFilter *types.PartialResultStatus, page, size int) ([]*types.PartialResult, error)
	ListExpiredPending(ctx context.Context, cutoff time.Time) ([]*types.PartialResult, error)
}

// ErrNotFound is returned when a PartialResult id is unknown.
var ErrNotFound = fmt.Errorf("partial: result not found")

// ErrUnauthorized is returned when the caller does not own the result.
var ErrUnauthorized = fmt.Errorf("partial: user does not own result")

// ErrIllegalTransition is returned by UpdateStatus for a disallowed move.
var ErrIllegalTransition = fmt.Errorf("partial: illegal status transition")

// Handler grades and persists PartialResults.
type Handler struct {
	store     Store
	extractor *topics.Extractor
}

// New builds a Handler. extractor may be nil; it is stored but not used, and
// missing topics are always described by segment index.
func New(store Store, extractor *topics.Extractor) *Handler {
	return &Handler{store: store, extractor: extractor}
}

// Process collects the completed tasks, grades Quality, composes a
// partialSummary, and persists a PendingUserDecision PartialResult.
func (h *Handler) Process(ctx context.Context, batchID uuid.UUID, userID string, completed []*types.SegmentTask, totalSegments int) (*types.PartialResult, error) {
	sorted := make([]*types.SegmentTask, len(completed))
	copy(sorted, completed)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].SegmentIndex < sorted[j].SegmentIndex })

	quality := h.gradeQuality(sorted, totalSegments)
	summary := h.composeSummary(sorted)

	pr := types.NewPartialResult(batchID, userID, sorted, totalSegments, quality, time.Now())
	pr.PartialSummary = summary

	if h.store != nil {
		if err := h.store.SavePartialResult(ctx, pr); err != nil {
			return nil, fmt.Errorf("partial: save: %w", err)
		}
	}
	return pr, nil
}

// composeSummary concatenates completed summaries in segmentIndex order
// with whitespace normalization.
func (h *Handler) composeSummary(sorted []*types.SegmentTask) string {
	parts := make([]string, 0, len(sorted))
	for _, t := range sorted {
		if t.Status == types.TaskCompleted && t.Summary != "" {
			parts = append(parts, topics.NormalizeWhitespace(t.Summary))
		}
	}
	return strings.Join(parts, " ")
}

// gradeQuality computes completeness, coherence, missing topics, and
// coverage thirds.
func (h *Handler) gradeQuality(sorted []*types.SegmentTask, totalSegments int) types.Quality {
	completeness := 0.0
	if totalSegments > 0 {
		completeness = float64(len(sorted)) / float64(totalSegments)
	}

	coherence := h.coherence(sorted)
	missing := h.missingTopics(sorted, totalSegments)
	coverage := computeCoverage(sorted, totalSegments)

	level := types.QualityLevelFromCompleteness(completeness)
	var warnings []string
	if !coverage.Continuous {
		warnings = append(warnings, fmt.Sprintf("%d gap(s) in completed segment coverage", coverage.Gaps))
	}
	if coherence < 0.3 && len(sorted) > 1 {
		warnings = append(warnings, "low coherence between completed summaries")
	}

	recommendation := recommendationFor(level, coverage)

	return types.Quality{
		CompletenessScore: completeness,
		CoherenceScore:    coherence,
		MissingTopics:     missing,
		Warnings:          warnings,
		Level:             level,
		Recommended:       recommendation,
		Coverage:          coverage,
	}
}

func recommendationFor(level types.QualityLevel, coverage types.Coverage) types.Recommendation {
	switch {
	case level.Atleast(types.QualityGood) && coverage.Continuous:
		return types.RecommendContinue
	case level.Atleast(types.QualityAcceptable):
		return types.RecommendConsiderContinue
	case level.Atleast(types.QualityPoor):
		return types.RecommendReviewRequired
	default:
		return types.RecommendDiscard
	}
}

// coherence averages pairwise similarity between adjacent completed
// summaries (sorted already holds them in segmentIndex order).
func (h *Handler) coherence(sorted []*types.SegmentTask) float64 {
	var summaries []string
	for _, t := range sorted {
		if t.Status == types.TaskCompleted && t.Summary != "" {
			summaries = append(summaries, t.Summary)
		}
	}
	if len(summaries) < 2 {
		return 0
	}
	var total float64
	pairs := 0
	for i := 1; i < len(summaries); i++ {
		total += similarity.Combined(summaries[i-1], summaries[i])
		pairs++
	}
	return total / float64(pairs)
}

// missingTopics describes, in best-effort terms, what the un-completed
// segment indices cover. Without source text for the missing segments
// (Process only receives the completed set), descriptions fall back to
// segment-index labels.
func (h *Handler) missingTopics(sorted []*types.SegmentTask, totalSegments int) []string {
	present := make(map[int]bool, len(sorted))
	for _, t := range sorted {
		present[t.SegmentIndex] = true
	}
	var missing []string
	for i := 0; i < totalSegments; i++ {
		if !present[i] {
			missing = append(missing, fmt.Sprintf("segment %d", i))
		}
	}
	return missing
}

// computeCoverage splits the segment range into thirds and measures which
// are represented, plus the longest contiguous run of completed segments
// and the number of internal gaps.
func computeCoverage(sorted []*types.SegmentTask, totalSegments int) types.Coverage {
	if totalSegments == 0 {
		return types.Coverage{Continuous: true}
	}
	present := make([]bool, totalSegments)
	for _, t := range sorted {
		if t.SegmentIndex >= 0 && t.SegmentIndex < totalSegments {
			present[t.SegmentIndex] = true
		}
	}

	third := totalSegments / 3
	if third == 0 {
		third = 1
	}
	var beginning, middle, end bool
	for i, p := range present {
		if !p {
			continue
		}
		switch {
		case i < third:
			beginning = true
		case i < 2*third:
			middle = true
		default:
			end = true
		}
	}

	maxRun, runCount, currentRun := 0, 0, 0
	inRun := false
	for _, p := range present {
		if p {
			currentRun++
			if !inRun {
				runCount++
				inRun = true
			}
			if currentRun > maxRun {
				maxRun = currentRun
			}
		} else {
			currentRun = 0
			inRun = false
		}
	}

	gaps := 0
	if runCount > 1 {
		gaps = runCount - 1
	}

	return types.Coverage{
		Beginning:  beginning,
		Middle:     middle,
		End:        end,
		Continuous: runCount <= 1,
		MaxRun:     maxRun,
		Gaps:       gaps,
	}
}

// UpdateStatus applies a user decision (Accepted/Rejected) or cleanup-driven
// Expired transition, enforcing ownership and the legal transition table.
func (h *Handler) UpdateStatus(ctx context.Context, id uuid.UUID, newStatus types.PartialResultStatus, userComment, userID string) error {
	pr, err := h.store.GetPartialResult(ctx, id)
	if err != nil {
		return fmt.Errorf("partial: %w", ErrNotFound)
	}
	if pr.UserID != userID {
		return ErrUnauthorized
	}
	if !pr.CanTransitionTo(newStatus) {
		return ErrIllegalTransition
	}
	pr.Status = newStatus
	if newStatus == types.PartialAccepted {
		now := time.Now()
		pr.AcceptedTime = &now
	}
	return h.store.UpdatePartialResult(ctx, pr)
}

// Get returns a user's PartialResult by id.
func (h *Handler) Get(ctx context.Context, id uuid.UUID, userID string) (*types.PartialResult, error) {
	pr, err := h.store.GetPartialResult(ctx, id)
	if err != nil {
		return nil, ErrNotFound
	}
	if pr.UserID != userID {
		return nil, ErrUnauthorized
	}
	return pr, nil
}

// ListForUser paginates a user's PartialResults, optionally filtered by status.
func (h *Handler) ListForUser(ctx context.Context, userID string, statusFilter *types.PartialResultStatus, page, size int) ([]*types.PartialResult, error) {
	return h.store.ListPartialResultsForUser(ctx, userID, statusFilter, page, size)
}

// CleanupExpired transitions stale PendingUserDecision rows older than
// expireAfterHours to Expired, returning the count affected.
func (h *Handler) CleanupExpired(ctx context.Context, expireAfterHours int) (int, error) {
	cutoff := time.Now().Add(-time.Duration(expireAfterHours) * time.Hour)
	stale, err := h.store.ListExpiredPending(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, pr := range stale {
		if !pr.CanTransitionTo(types.PartialExpired) {
			continue
		}
		pr.Status = types.PartialExpired
		if err := h.store.UpdatePartialResult(ctx, pr); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

// CanContinueFrom reports whether a partial result is good enough to resume
// processing from: quality at least Acceptable and coverage continuous.
func (h *Handler) CanContinueFrom(ctx context.Context, id uuid.UUID, userID string) (bool, error) {
	pr, err := h.Get(ctx, id, userID)
	if err != nil {
		return false, err
	}
	return pr.Quality.Level.Atleast(types.QualityAcceptable) && pr.Quality.Coverage.Continuous, nil
}
