package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/outlet-feedback/internal/domain"
)

// ReviewHistoryRepository reads audit entries. Entries are written only
// through FeedbackRepository.UpdateWithHistory.
type ReviewHistoryRepository interface {
	ListByCase(ctx context.Context, caseID int64, limit, offset int) ([]domain.ReviewHistory, error)
}

type reviewHistoryRepository struct {
	pool *pgxpool.Pool
}

// NewReviewHistoryRepository builds repository.
func NewReviewHistoryRepository(pool *pgxpool.Pool) ReviewHistoryRepository {
	return &reviewHistoryRepository{pool: pool}
}

func (r *reviewHistoryRepository) ListByCase(ctx context.Context, caseID int64, limit, offset int) ([]domain.ReviewHistory, error) {
	limit, offset = normalizePage(limit, offset)
	const query = `
        SELECT id, feedback_id, reviewed_by, reviewer_role, old_status, new_status, old_overall, new_overall,
               assigned_fo_id, override, comments, reviewed_at
        FROM review_history WHERE feedback_id=$1 ORDER BY reviewed_at ASC LIMIT $2 OFFSET $3`
	rows, err := r.pool.Query(ctx, query, caseID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []domain.ReviewHistory{}
	for rows.Next() {
		var entry domain.ReviewHistory
		if err := rows.Scan(
			&entry.ID,
			&entry.CaseID,
			&entry.ActorID,
			&entry.ActorRole,
			&entry.OldState,
			&entry.NewState,
			&entry.OldOverall,
			&entry.NewOverall,
			&entry.AssignedOfficer,
			&entry.Override,
			&entry.Comment,
			&entry.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, entry)
	}
	return result, rows.Err()
}
