package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"github.com/spec-kit/outlet-feedback/internal/domain"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrVersionConflict is returned when a record changed between read and write.
	ErrVersionConflict = errors.New("version conflict")
)

const (
	defaultPageSize = 20
	maxPageSize     = 500
)

// FeedbackFilter captures list parameters. When Scoped is set only cases whose
// outlet is in OutletScope match; an empty scope matches nothing.
type FeedbackFilter struct {
	OutletCode       *string
	OutletScope      []string
	Scoped           bool
	OverallStatuses  []domain.OverallStatus
	WorkflowStatuses []domain.WorkflowStatus
	AssignedOfficer  *string
	SearchTerm       *string
	CreatedFrom      *time.Time
	CreatedTo        *time.Time
	RatingAir        *int
	RatingWashroom   *int
	IsTestimonial    *bool
	HasReceipt       *bool
	SortBy           string
	SortDesc         bool
	Limit            int
	Offset           int
}

// DailyCount is the number of cases created on one UTC calendar day.
type DailyCount struct {
	Day   time.Time
	Count int
}

// MutateFunc receives the freshly read case, mutates it in place and returns
// the audit entry to append. Returning an error aborts the update.
type MutateFunc func(current *domain.FeedbackCase) (*domain.ReviewHistory, error)

// FeedbackRepository encapsulates feedback case persistence.
type FeedbackRepository interface {
	GetByID(ctx context.Context, id int64) (*domain.FeedbackCase, error)
	List(ctx context.Context, filter FeedbackFilter) ([]domain.FeedbackCase, int, error)
	CountByOverallStatus(ctx context.Context, filter FeedbackFilter) (map[domain.OverallStatus]int, error)
	// CountByDay groups matching cases by UTC creation date, oldest first.
	CountByDay(ctx context.Context, filter FeedbackFilter) ([]DailyCount, error)
	// CountByRating counts matching cases per score, skipping unrated ones.
	CountByRating(ctx context.Context, filter FeedbackFilter, dimension domain.RatingDimension) (map[int]int, error)
	// UpdateWithHistory persists the mutation and its audit entry as one unit.
	UpdateWithHistory(ctx context.Context, id int64, mutate MutateFunc) (*domain.FeedbackCase, error)
}

type feedbackRepository struct {
	pool *pgxpool.Pool
}

// NewFeedbackRepository instantiates repository.
func NewFeedbackRepository(pool *pgxpool.Pool) FeedbackRepository {
	return &feedbackRepository{pool: pool}
}

const feedbackColumns = `id, ro_number, status, workflow_status, assigned_fo_id, version,
               phone, feedback_method, is_testimonial, rating_air, rating_washroom, rating_water, comment,
               has_photo_air, has_photo_washroom, has_photo_water, has_receipt,
               reviewed_at, reviewed_by, created_at, updated_at`

var ratingColumns = map[domain.RatingDimension]string{
	domain.RatingAir:      "rating_air",
	domain.RatingWashroom: "rating_washroom",
	domain.RatingWater:    "rating_water",
}

var sortColumns = map[string]string{
	"created_at":      "created_at",
	"createdAt":       "created_at",
	"updated_at":      "updated_at",
	"id":              "id",
	"status":          "status",
	"workflow_status": "workflow_status",
	"ro_number":       "ro_number",
}

func (r *feedbackRepository) GetByID(ctx context.Context, id int64) (*domain.FeedbackCase, error) {
	query := `SELECT ` + feedbackColumns + ` FROM feedback WHERE id=$1`
	fc, err := scanFeedback(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return fc, nil
}

func (r *feedbackRepository) List(ctx context.Context, filter FeedbackFilter) ([]domain.FeedbackCase, int, error) {
	if filter.Scoped && len(filter.OutletScope) == 0 {
		return []domain.FeedbackCase{}, 0, nil
	}
	where, args := buildFeedbackWhere(filter)

	column, ok := sortColumns[filter.SortBy]
	if !ok {
		column = "created_at"
	}
	direction := "ASC"
	if filter.SortDesc {
		direction = "DESC"
	}
	limit, offset := normalizePage(filter.Limit, filter.Offset)

	var (
		cases []domain.FeedbackCase
		total int
		eg    errgroup.Group
	)
	eg.Go(func() error {
		query := fmt.Sprintf(`SELECT %s FROM feedback WHERE %s ORDER BY %s %s, id %s LIMIT %d OFFSET %d`,
			feedbackColumns, where, column, direction, direction, limit, offset)
		rows, err := r.pool.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		cases, err = scanFeedbackRows(rows)
		return err
	})
	eg.Go(func() error {
		query := fmt.Sprintf(`SELECT COUNT(*) FROM feedback WHERE %s`, where)
		return r.pool.QueryRow(ctx, query, args...).Scan(&total)
	})
	if err := eg.Wait(); err != nil {
		return nil, 0, err
	}
	return cases, total, nil
}

func (r *feedbackRepository) CountByOverallStatus(ctx context.Context, filter FeedbackFilter) (map[domain.OverallStatus]int, error) {
	counts := make(map[domain.OverallStatus]int, len(domain.OverallStatuses))
	if filter.Scoped && len(filter.OutletScope) == 0 {
		return counts, nil
	}
	where, args := buildFeedbackWhere(filter)
	query := fmt.Sprintf(`SELECT status, COUNT(*) FROM feedback WHERE %s GROUP BY status`, where)
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			status domain.OverallStatus
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[status] += count
	}
	return counts, rows.Err()
}

func (r *feedbackRepository) CountByDay(ctx context.Context, filter FeedbackFilter) ([]DailyCount, error) {
	out := []DailyCount{}
	if filter.Scoped && len(filter.OutletScope) == 0 {
		return out, nil
	}
	where, args := buildFeedbackWhere(filter)
	query := fmt.Sprintf(`SELECT (created_at AT TIME ZONE 'UTC')::date AS day, COUNT(*)
        FROM feedback WHERE %s GROUP BY day ORDER BY day`, where)
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var dc DailyCount
		if err := rows.Scan(&dc.Day, &dc.Count); err != nil {
			return nil, err
		}
		dc.Day = dc.Day.UTC()
		out = append(out, dc)
	}
	return out, rows.Err()
}

func (r *feedbackRepository) CountByRating(ctx context.Context, filter FeedbackFilter, dimension domain.RatingDimension) (map[int]int, error) {
	column, ok := ratingColumns[dimension]
	if !ok {
		return nil, fmt.Errorf("unknown rating dimension %q", dimension)
	}
	counts := map[int]int{}
	if filter.Scoped && len(filter.OutletScope) == 0 {
		return counts, nil
	}
	where, args := buildFeedbackWhere(filter)
	query := fmt.Sprintf(`SELECT %[1]s, COUNT(*) FROM feedback WHERE %[2]s AND %[1]s IS NOT NULL GROUP BY %[1]s`, column, where)
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var rating, count int
		if err := rows.Scan(&rating, &count); err != nil {
			return nil, err
		}
		counts[rating] = count
	}
	return counts, rows.Err()
}

func (r *feedbackRepository) UpdateWithHistory(ctx context.Context, id int64, mutate MutateFunc) (*domain.FeedbackCase, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	query := `SELECT ` + feedbackColumns + ` FROM feedback WHERE id=$1 FOR UPDATE`
	current, err := scanFeedback(tx.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	baseVersion := current.Version

	entry, err := mutate(current)
	if err != nil {
		return nil, err
	}

	const update = `
        UPDATE feedback SET status=$1, workflow_status=$2, assigned_fo_id=$3, reviewed_at=$4, reviewed_by=$5,
            version=version+1, updated_at=NOW()
        WHERE id=$6 AND version=$7
        RETURNING version, updated_at`
	if err := tx.QueryRow(ctx, update,
		current.OverallStatus,
		current.WorkflowStatus,
		current.AssignedOfficer,
		current.ReviewedAt,
		current.ReviewedBy,
		id,
		baseVersion,
	).Scan(&current.Version, &current.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrVersionConflict
		}
		return nil, err
	}

	if entry != nil {
		prepareHistory(entry, id)
		const insert = `
            INSERT INTO review_history (id, feedback_id, reviewed_by, reviewer_role, old_status, new_status,
                old_overall, new_overall, assigned_fo_id, override, comments, reviewed_at)
            VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`
		if _, err := tx.Exec(ctx, insert,
			entry.ID,
			entry.CaseID,
			entry.ActorID,
			entry.ActorRole,
			entry.OldState,
			entry.NewState,
			entry.OldOverall,
			entry.NewOverall,
			entry.AssignedOfficer,
			entry.Override,
			entry.Comment,
			entry.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("append review history: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return current, nil
}

func buildFeedbackWhere(filter FeedbackFilter) (string, []any) {
	clauses := []string{"1=1"}
	args := []any{}

	if filter.Scoped {
		args = append(args, filter.OutletScope)
		clauses = append(clauses, fmt.Sprintf("ro_number = ANY($%d)", len(args)))
	}
	if filter.OutletCode != nil {
		args = append(args, *filter.OutletCode)
		clauses = append(clauses, fmt.Sprintf("ro_number=$%d", len(args)))
	}
	if len(filter.OverallStatuses) > 0 {
		placeholders := make([]string, len(filter.OverallStatuses))
		for i, status := range filter.OverallStatuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if len(filter.WorkflowStatuses) > 0 {
		placeholders := make([]string, len(filter.WorkflowStatuses))
		for i, status := range filter.WorkflowStatuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("workflow_status IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.AssignedOfficer != nil {
		args = append(args, *filter.AssignedOfficer)
		clauses = append(clauses, fmt.Sprintf("assigned_fo_id=$%d", len(args)))
	}
	if filter.CreatedFrom != nil {
		args = append(args, *filter.CreatedFrom)
		clauses = append(clauses, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if filter.CreatedTo != nil {
		args = append(args, *filter.CreatedTo)
		clauses = append(clauses, fmt.Sprintf("created_at <= $%d", len(args)))
	}
	if filter.RatingAir != nil {
		args = append(args, *filter.RatingAir)
		clauses = append(clauses, fmt.Sprintf("rating_air=$%d", len(args)))
	}
	if filter.RatingWashroom != nil {
		args = append(args, *filter.RatingWashroom)
		clauses = append(clauses, fmt.Sprintf("rating_washroom=$%d", len(args)))
	}
	if filter.IsTestimonial != nil {
		args = append(args, *filter.IsTestimonial)
		clauses = append(clauses, fmt.Sprintf("is_testimonial=$%d", len(args)))
	}
	if filter.HasReceipt != nil {
		args = append(args, *filter.HasReceipt)
		clauses = append(clauses, fmt.Sprintf("has_receipt=$%d", len(args)))
	}
	if filter.SearchTerm != nil && strings.TrimSpace(*filter.SearchTerm) != "" {
		search := "%" + strings.ToLower(strings.TrimSpace(*filter.SearchTerm)) + "%"
		args = append(args, search)
		placeholder := fmt.Sprintf("$%d", len(args))
		clauses = append(clauses, fmt.Sprintf("(phone LIKE %s OR LOWER(COALESCE(comment,'')) LIKE %s)", placeholder, placeholder))
	}
	return strings.Join(clauses, " AND "), args
}

func normalizePage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func prepareHistory(entry *domain.ReviewHistory, caseID int64) {
	entry.CaseID = caseID
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
}

func scanFeedback(row pgx.Row) (*domain.FeedbackCase, error) {
	var fc domain.FeedbackCase
	if err := row.Scan(
		&fc.ID,
		&fc.OutletCode,
		&fc.OverallStatus,
		&fc.WorkflowStatus,
		&fc.AssignedOfficer,
		&fc.Version,
		&fc.Phone,
		&fc.Method,
		&fc.IsTestimonial,
		&fc.RatingAir,
		&fc.RatingWashroom,
		&fc.RatingWater,
		&fc.Comment,
		&fc.HasPhotoAir,
		&fc.HasPhotoWashroom,
		&fc.HasPhotoWater,
		&fc.HasReceipt,
		&fc.ReviewedAt,
		&fc.ReviewedBy,
		&fc.CreatedAt,
		&fc.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &fc, nil
}

func scanFeedbackRows(rows pgx.Rows) ([]domain.FeedbackCase, error) {
	result := []domain.FeedbackCase{}
	for rows.Next() {
		fc, err := scanFeedback(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *fc)
	}
	return result, rows.Err()
}
