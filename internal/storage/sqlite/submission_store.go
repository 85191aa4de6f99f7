package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/solvetrack/internal/domain"
)

const submissionColumns = `id, user_id, problem_id, language, code, status,
	passed_count, total_tests, start_time, end_time, duration_ms, success,
	details, created_at`

// SubmissionStore is the append-only submission log.
type SubmissionStore struct {
	db *DB
}

// NewSubmissionStore creates a new SQLite-backed submission store.
func NewSubmissionStore(db *DB) *SubmissionStore {
	return &SubmissionStore{db: db}
}

// Create appends a submission.
func (s *SubmissionStore) Create(ctx context.Context, sub *domain.Submission) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO submissions (`+submissionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sub.ID, sub.UserID, sub.ProblemID, sub.Language, sub.Code, string(sub.Status),
		sub.PassedCount, sub.TotalTests, sub.StartTime.UTC(), sub.EndTime.UTC(),
		sub.Duration, sub.Success, nullString(sub.Details), sub.Timestamp.UTC(),
	)
	if err != nil {
		return domain.Persist("insert submission", err)
	}
	return nil
}

// ListByUser returns a page of the user's submissions, newest first.
func (s *SubmissionStore) ListByUser(ctx context.Context, userID uuid.UUID, q domain.SubmissionQuery) ([]*domain.Submission, int, error) {
	where := `WHERE user_id = ?`
	args := []any{userID}
	if q.Status != nil {
		where += ` AND status = ?`
		args = append(args, string(*q.Status))
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM submissions `+where, args...).Scan(&total); err != nil {
		return nil, 0, domain.Persist("count submissions", err)
	}

	limit := q.Limit
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+submissionColumns+` FROM submissions `+where+`
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?`, append(args, limit, q.Offset)...)
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

// SuccessTimes returns the timestamps of successful submissions since since.
func (s *SubmissionStore) SuccessTimes(ctx context.Context, userID uuid.UUID, since time.Time) ([]time.Time, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT created_at FROM submissions
		WHERE user_id = ? AND success = 1 AND created_at >= ?
		ORDER BY created_at ASC`, userID, since.UTC())
	if err != nil {
		return nil, domain.Persist("list successful submissions", err)
	}
	defer rows.Close()

	var times []time.Time
	for rows.Next() {
		var t time.Time
		if err := rows.Scan(&t); err != nil {
			return nil, domain.Persist("scan submission time", err)
		}
		times = append(times, t)
	}
	return times, rows.Err()
}

func scanSubmission(row scanner) (*domain.Submission, error) {
	var (
		sub     domain.Submission
		status  string
		details sql.NullString
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
		sub.Details = json.RawMessage(details.String)
	}
	return &sub, nil
}

// nullString converts a byte slice to a *string for nullable TEXT columns.
func nullString(b []byte) *string {
	if b == nil {
		return nil
	}
	s := string(b)
	return &s
}
