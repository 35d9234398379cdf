package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/entropycollective/batchsum/pkg/types"
)

// SavePartialResult inserts a PartialResult row, erroring if the id already
// exists.
func (s *Store) SavePartialResult(ctx context.Context, pr *types.PartialResult) error {
	segments, err := json.Marshal(pr.CompletedSegments)
	if err != nil {
		return fmt.Errorf("postgres: marshal completed segments: %w", err)
	}
	quality, err := json.Marshal(pr.Quality)
	if err != nil {
		return fmt.Errorf("postgres: marshal quality: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO partial_results
			(id, batch_id, user_id, completed_segments, total_segments,
			 completion_pct, partial_summary, quality, status,
			 cancellation_time, accepted_time)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		pr.ID, pr.BatchID, pr.UserID, segments, pr.TotalSegments,
		pr.CompletionPct, pr.PartialSummary, quality, int(pr.Status),
		pr.CancellationTime, pr.AcceptedTime,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert partial result: %w", err)
	}
	return nil
}

// GetPartialResult loads a PartialResult by id.
func (s *Store) GetPartialResult(ctx context.Context, id uuid.UUID) (*types.PartialResult, error) {
	query := fmt.Sprintf(`SELECT %s FROM partial_results WHERE id = $1`, partialResultColumns)
	row := s.pool.QueryRow(ctx, query, id)
	pr, err := scanPartialResult(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, fmt.Errorf("postgres: partial result %s not found", id)
		}
		return nil, fmt.Errorf("postgres: get partial result: %w", err)
	}
	return pr, nil
}

func scanPartialResult(row pgx.Row) (*types.PartialResult, error) {
	var pr types.PartialResult
	var segments, quality []byte
	var status int

	err := row.Scan(
		&pr.ID, &pr.BatchID, &pr.UserID, &segments, &pr.TotalSegments,
		&pr.CompletionPct, &pr.PartialSummary, &quality, &status,
		&pr.CancellationTime, &pr.AcceptedTime,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(segments, &pr.CompletedSegments); err != nil {
		return nil, fmt.Errorf("postgres: unmarshal completed segments: %w", err)
	}
	if err := json.Unmarshal(quality, &pr.Quality); err != nil {
		return nil, fmt.Errorf("postgres: unmarshal quality: %w", err)
	}
	pr.Status = types.PartialResultStatus(status)
	return &pr, nil
}

const partialResultColumns = `id, batch_id, user_id, completed_segments, total_segments,
	completion_pct, partial_summary, quality, status, cancellation_time, accepted_time`

// UpdatePartialResult overwrites an existing row by id, erroring if the row
// does not exist.
func (s *Store) UpdatePartialResult(ctx context.Context, pr *types.PartialResult) error {
	segments, err := json.Marshal(pr.CompletedSegments)
	if err != nil {
		return fmt.Errorf("postgres: marshal completed segments: %w", err)
	}
	quality, err := json.Marshal(pr.Quality)
	if err != nil {
		return fmt.Errorf("postgres: marshal quality: %w", err)
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE partial_results SET
			completed_segments = $2, total_segments = $3, completion_pct = $4,
			partial_summary = $5, quality = $6, status = $7, accepted_time = $8
		WHERE id = $1`,
		pr.ID, segments, pr.TotalSegments, pr.CompletionPct,
		pr.PartialSummary, quality, int(pr.Status), pr.AcceptedTime,
	)
	if err != nil {
		return fmt.Errorf("postgres: update partial result: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: partial result %s not found", pr.ID)
	}
	return nil
}

// ListPartialResultsForUser paginates a user's PartialResults in
// CancellationTime-descending order, optionally filtered by status.
func (s *Store) ListPartialResultsForUser(ctx context.Context, userID string, statusFilter *types.PartialResultStatus, page, size int) ([]*types.PartialResult, error) {
	if page < 1 {
		page = 1
	}
	if size <= 0 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT %s FROM partial_results WHERE user_id = $1`, partialResultColumns)
	args := []interface{}{userID}
	if statusFilter != nil {
		query += ` AND status = $2 ORDER BY cancellation_time DESC LIMIT $3 OFFSET $4`
		args = append(args, int(*statusFilter), size, offset)
	} else {
		query += ` ORDER BY cancellation_time DESC LIMIT $2 OFFSET $3`
		args = append(args, size, offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list partial results: %w", err)
	}
	defer rows.Close()

	var out []*types.PartialResult
	for rows.Next() {
		pr, err := scanPartialResult(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan partial result: %w", err)
		}
		out = append(out, pr)
	}
	return out, rows.Err()
}

// ListExpiredPending returns PendingUserDecision results whose
// CancellationTime is at or before cutoff.
func (s *Store) ListExpiredPending(ctx context.Context, cutoff time.Time) ([]*types.PartialResult, error) {
	query := fmt.Sprintf(`SELECT %s FROM partial_results WHERE status = $1 AND cancellation_time <= $2`, partialResultColumns)
	rows, err := s.pool.Query(ctx, query, int(types.PartialPendingUserDecision), cutoff)
	if err != nil {
		return nil, fmt.Errorf("postgres: list expired pending: %w", err)
	}
	defer rows.Close()

	var out []*types.PartialResult
	for rows.Next() {
		pr, err := scanPartialResult(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan partial result: %w", err)
		}
		out = append(out, pr)
	}
	return out, rows.Err()
}

// SaveMergeResult upserts the completed MergeResult for a batch.
func (s *Store) SaveMergeResult(ctx context.Context, batchID uuid.UUID, result *types.MergeResult) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("postgres: marshal merge result: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO merge_results (batch_id, result, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (batch_id) DO UPDATE SET result = EXCLUDED.result, created_at = EXCLUDED.created_at`,
		batchID, payload, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert merge result: %w", err)
	}
	return nil
}

// GetMergeResult loads the MergeResult saved for batchID, if any.
func (s *Store) GetMergeResult(ctx context.Context, batchID uuid.UUID) (*types.MergeResult, error) {
	var payload []byte
	err := s.pool.QueryRow(ctx, `SELECT result FROM merge_results WHERE batch_id = $1`, batchID).Scan(&payload)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, fmt.Errorf("postgres: merge result for batch %s not found", batchID)
		}
		return nil, fmt.Errorf("postgres: get merge result: %w", err)
	}

	var result types.MergeResult
	if err := json.Unmarshal(payload, &result); err != nil {
		return nil, fmt.Errorf("postgres: unmarshal merge result: %w", err)
	}
	return &result, nil
}
