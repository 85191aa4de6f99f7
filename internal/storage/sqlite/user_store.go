package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"

	"github.com/felixgeelhaar/solvetrack/internal/domain"
)

const userColumns = `id, username,
	total_submissions, successful_submissions, problems_solved_count,
	easy_count, medium_count, hard_count, average_solve_time,
	current_streak, longest_streak, last_submission_date,
	version, created_at, updated_at`

// UserStore persists users, their statistics and streaks.
type UserStore struct {
	db *DB
}

// NewUserStore creates a new SQLite-backed user store.
func NewUserStore(db *DB) *UserStore {
	return &UserStore{db: db}
}

// Create inserts a new user.
func (s *UserStore) Create(ctx context.Context, u *domain.User) error {
	st := u.Statistics
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Username,
		st.TotalSubmissions, st.SuccessfulSubmissions, st.ProblemsSolvedCount,
		st.EasyCount, st.MediumCount, st.HardCount, st.AverageSolveTime,
		u.Streak.Current, u.Streak.Longest, nullTime(u.Streak.LastSubmissionDate),
		u.Version, u.CreatedAt.UTC(), u.UpdatedAt.UTC(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrUserAlreadyExists
		}
		return domain.Persist("insert user", err)
	}
	return nil
}

// Get retrieves a user with its solved problem set.
func (s *UserStore) Get(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id))
	if err != nil {
		return nil, err
	}
	u.SolvedProblems, err = loadSolved(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	return u, nil
}

// GetMany retrieves the users that exist among ids.
func (s *UserStore) GetMany(ctx context.Context, ids []uuid.UUID) ([]*domain.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	rows, err := s.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, domain.Persist("get users", err)
	}
	defer rows.Close()
	return scanUsers(rows)
}

// Top returns users in leaderboard order.
func (s *UserStore) Top(ctx context.Context, limit int) ([]*domain.User, error) {
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+userColumns+` FROM users
		ORDER BY problems_solved_count DESC, created_at ASC, id ASC
		LIMIT ?`, limit)
	if err != nil {
		return nil, domain.Persist("list top users", err)
	}
	defer rows.Close()
	return scanUsers(rows)
}

// UpdateStatistics runs fn inside a write transaction and stores the
// statistics columns plus any newly solved problems.
func (s *UserStore) UpdateStatistics(ctx context.Context, id uuid.UUID, fn func(*domain.User) error) error {
	return s.inTx(ctx, "update statistics", func(tx *sql.Tx) error {
		u, err := scanUser(tx.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id))
		if err != nil {
			return err
		}
		before, err := loadSolved(ctx, tx, id)
		if err != nil {
			return err
		}
		u.SolvedProblems = make(domain.SolvedSet, len(before))
		for pid := range before {
			u.SolvedProblems[pid] = struct{}{}
		}

		if err := fn(u); err != nil {
			return err
		}

		st := u.Statistics
		_, err = tx.ExecContext(ctx, `
			UPDATE users SET
				total_submissions = ?, successful_submissions = ?, problems_solved_count = ?,
				easy_count = ?, medium_count = ?, hard_count = ?, average_solve_time = ?,
				version = version + 1, updated_at = ?
			WHERE id = ?`,
			st.TotalSubmissions, st.SuccessfulSubmissions, st.ProblemsSolvedCount,
			st.EasyCount, st.MediumCount, st.HardCount, st.AverageSolveTime,
			time.Now().UTC(), id,
		)
		if err != nil {
			return fmt.Errorf("update statistics columns: %w", err)
		}

		now := time.Now().UTC()
		for pid := range u.SolvedProblems {
			if before.Has(pid) {
				continue
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO solved_problems (user_id, problem_id, solved_at) VALUES (?, ?, ?)`,
				id, pid, now,
			); err != nil {
				return fmt.Errorf("insert solved problem: %w", err)
			}
		}
		return nil
	})
}

// UpdateStreak runs fn inside a write transaction and stores only the
// streak columns.
func (s *UserStore) UpdateStreak(ctx context.Context, id uuid.UUID, fn func(*domain.Streak) error) error {
	return s.inTx(ctx, "update streak", func(tx *sql.Tx) error {
		var (
			streak domain.Streak
			last   sql.NullTime
		)
		err := tx.QueryRowContext(ctx,
			`SELECT current_streak, longest_streak, last_submission_date FROM users WHERE id = ?`, id,
		).Scan(&streak.Current, &streak.Longest, &last)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return domain.ErrUserNotFound
			}
			return fmt.Errorf("select streak: %w", err)
		}
		if last.Valid {
			t := last.Time
			streak.LastSubmissionDate = &t
		}

		if err := fn(&streak); err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE users SET
				current_streak = ?, longest_streak = ?, last_submission_date = ?,
				version = version + 1, updated_at = ?
			WHERE id = ?`,
			streak.Current, streak.Longest, nullTime(streak.LastSubmissionDate),
			time.Now().UTC(), id,
		)
		if err != nil {
			return fmt.Errorf("update streak columns: %w", err)
		}
		return nil
	})
}

func (s *UserStore) inTx(ctx context.Context, op string, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Persist(op, fmt.Errorf("begin tx: %w", err))
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return domain.Persist(op, err)
	}
	if err := tx.Commit(); err != nil {
		return domain.Persist(op, fmt.Errorf("commit: %w", err))
	}
	return nil
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func loadSolved(ctx context.Context, q queryer, userID uuid.UUID) (domain.SolvedSet, error) {
	rows, err := q.QueryContext(ctx, `SELECT problem_id FROM solved_problems WHERE user_id = ?`, userID)
	if err != nil {
		return nil, domain.Persist("load solved problems", err)
	}
	defer rows.Close()

	set := domain.SolvedSet{}
	for rows.Next() {
		var pid uuid.UUID
		if err := rows.Scan(&pid); err != nil {
			return nil, domain.Persist("scan solved problem", err)
		}
		set[pid] = struct{}{}
	}
	return set, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(row scanner) (*domain.User, error) {
	var (
		u    domain.User
		last sql.NullTime
	)
	err := row.Scan(
		&u.ID, &u.Username,
		&u.Statistics.TotalSubmissions, &u.Statistics.SuccessfulSubmissions, &u.Statistics.ProblemsSolvedCount,
		&u.Statistics.EasyCount, &u.Statistics.MediumCount, &u.Statistics.HardCount, &u.Statistics.AverageSolveTime,
		&u.Streak.Current, &u.Streak.Longest, &last,
		&u.Version, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, domain.Persist("scan user", err)
	}
	if last.Valid {
		t := last.Time
		u.Streak.LastSubmissionDate = &t
	}
	return &u, nil
}

func scanUsers(rows *sql.Rows) ([]*domain.User, error) {
	var users []*domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.Persist("iterate users", err)
	}
	return users, nil
}

// nullTime converts a *time.Time to sql.NullTime for nullable DATETIME columns.
func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.ExtendedCode == sqlite3.ErrConstraintUnique || se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
