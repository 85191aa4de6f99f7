package postgres

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sqlc-dev/pqtype"

	"github.com/felixgeelhaar/solvetrack/internal/domain"
)

const submissionColumns = `id, user_id, problem_id, language, code, status::text,
	passed_count, total_tests, start_time, end_time, duration_ms, success,
	details, created_at`

// SubmissionStore is the append-only submission log
type SubmissionStore struct {
	pool *pgxpool.Pool
}

// NewSubmissionStore creates a new PostgreSQL submission store
func NewSubmissionStore(pool *pgxpool.Pool) *SubmissionStore {
	return &SubmissionStore{pool: pool}
}

// Create appends a submission
func (s *SubmissionStore) Create(ctx context.Context, sub *domain.Submission) error {
	details := pqtype.NullRawMessage{RawMessage: sub.Details, Valid: len(sub.Details) > 0}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO submissions (id, user_id, problem_id, language, code, status,
			passed_count, total_tests, start_time, end_time, duration_ms, success,
			details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6::submission_status, $7, $8, $9, $10, $11, $12, $13, $14)`,
		sub.ID, sub.UserID, sub.ProblemID, sub.Language, sub.Code, string(sub.Status),
		sub.PassedCount, sub.TotalTests, sub.StartTime, sub.EndTime, sub.Duration, sub.Success,
		details, sub.Timestamp,
	)
	if err != nil {
		return domain.Persist("insert submission", err)
	}
	return nil
}

// ListByUser returns a page of the user's submissions, newest first
func (s *SubmissionStore) ListByUser(ctx context.Context, userID uuid.UUID, q domain.SubmissionQuery) ([]*domain.Submission, int, error) {
	var status *string
	if q.Status != nil {
		v := string(*q.Status)
		status = &v
	}
	var limit *int
	if q.Limit > 0 {
		limit = &q.Limit
	}

	var total int
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM submissions
		WHERE user_id = $1 AND ($2::text IS NULL OR status::text = $2)`,
		userID, status,
	).Scan(&total)
	if err != nil {
		return nil, 0, domain.Persist("count submissions", err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT `+submissionColumns+` FROM submissions
		WHERE user_id = $1 AND ($2::text IS NULL OR status::text = $2)
		ORDER BY created_at DESC, id DESC
		LIMIT $3 OFFSET $4`,
		userID, status, limit, q.Offset,
	)
	if err != nil {
		return nil, 0, domain.Persist("list submissions", err)
	}
	defer rows.Close()

	var subs []*domain.Submission
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, 0, err
		}
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, domain.Persist("iterate submissions", err)
	}
	return subs, total, nil
}

// SuccessTimes returns timestamps of successful submissions at or after since
func (s *SubmissionStore) SuccessTimes(ctx context.Context, userID uuid.UUID, since time.Time) ([]time.Time, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT created_at FROM submissions
		WHERE user_id = $1 AND success AND created_at >= $2
		ORDER BY created_at ASC`, userID, since)
	if err != nil {
		return nil, domain.Persist("list successful submissions", err)
	}
	times, err := pgx.CollectRows(rows, pgx.RowTo[time.Time])
	if err != nil {
		return nil, domain.Persist("scan submission times", err)
	}
	return times, nil
}

func scanSubmission(row pgx.Row) (*domain.Submission, error) {
	var (
		sub     domain.Submission
		status  string
		details pqtype.NullRawMessage
	)
	err := row.Scan(
		&sub.ID, &sub.UserID, &sub.ProblemID, &sub.Language, &sub.Code, &status,
		&sub.PassedCount, &sub.TotalTests, &sub.StartTime, &sub.EndTime,
		&sub.Duration, &sub.Success, &details, &sub.Timestamp,
	)
	if err != nil {
		return nil, domain.Persist("scan submission", err)
	}
	sub.Status = domain.SubmissionStatus(status)
	if details.Valid {
		sub.Details = json.RawMessage(details.RawMessage)
	}
	return &sub, nil
}
