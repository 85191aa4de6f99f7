package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/felixgeelhaar/solvetrack/internal/domain"
)

const userColumns = `id, username,
	total_submissions, successful_submissions, problems_solved_count,
	easy_count, medium_count, hard_count, average_solve_time,
	current_streak, longest_streak, last_submission_date,
	version, created_at, updated_at`

// UserStore persists users. Read-modify-write updates lock the user row
// with SELECT ... FOR UPDATE.
type UserStore struct {
	pool *pgxpool.Pool
}

// NewUserStore creates a new PostgreSQL user store
func NewUserStore(pool *pgxpool.Pool) *UserStore {
	return &UserStore{pool: pool}
}

// Create inserts a new user
func (s *UserStore) Create(ctx context.Context, u *domain.User) error {
	st := u.Statistics
	_, err := s.pool.Exec(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		u.ID, u.Username,
		st.TotalSubmissions, st.SuccessfulSubmissions, st.ProblemsSolvedCount,
		st.EasyCount, st.MediumCount, st.HardCount, st.AverageSolveTime,
		u.Streak.Current, u.Streak.Longest, u.Streak.LastSubmissionDate,
		u.Version, u.CreatedAt, u.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrUserAlreadyExists
		}
		return domain.Persist("insert user", err)
	}
	return nil
}

// Get retrieves a user with its solved problem set
func (s *UserStore) Get(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	u, err := scanUser(s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		return nil, err
	}
	if u.SolvedProblems, err = loadSolved(ctx, s.pool, id); err != nil {
		return nil, err
	}
	return u, nil
}

// GetMany retrieves the users that exist among ids
func (s *UserStore) GetMany(ctx context.Context, ids []uuid.UUID) ([]*domain.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx, `SELECT `+userColumns+` FROM users WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, domain.Persist("get users", err)
	}
	return collectUsers(rows)
}

// Top returns users in leaderboard order. LIMIT NULL returns every row.
func (s *UserStore) Top(ctx context.Context, limit int) ([]*domain.User, error) {
	var lim *int
	if limit > 0 {
		lim = &limit
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+userColumns+` FROM users
		ORDER BY problems_solved_count DESC, created_at ASC, id ASC
		LIMIT $1`, lim)
	if err != nil {
		return nil, domain.Persist("list top users", err)
	}
	return collectUsers(rows)
}

// UpdateStatistics locks the user row, runs fn and writes the statistics
// columns plus newly solved problems.
func (s *UserStore) UpdateStatistics(ctx context.Context, id uuid.UUID, fn func(*domain.User) error) error {
	return s.inTx(ctx, "update statistics", func(tx pgx.Tx) error {
		u, err := scanUser(tx.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1 FOR UPDATE`, id))
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
		_, err = tx.Exec(ctx, `
			UPDATE users SET
				total_submissions = $2, successful_submissions = $3, problems_solved_count = $4,
				easy_count = $5, medium_count = $6, hard_count = $7, average_solve_time = $8,
				version = version + 1, updated_at = now()
			WHERE id = $1`,
			id, st.TotalSubmissions, st.SuccessfulSubmissions, st.ProblemsSolvedCount,
			st.EasyCount, st.MediumCount, st.HardCount, st.AverageSolveTime,
		)
		if err != nil {
			return fmt.Errorf("update statistics columns: %w", err)
		}

		var added []uuid.UUID
		for pid := range u.SolvedProblems {
			if !before.Has(pid) {
				added = append(added, pid)
			}
		}
		if len(added) == 0 {
			return nil
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO solved_problems (user_id, problem_id, solved_at)
			SELECT $1, pid, $3 FROM unnest($2::uuid[]) AS pid
			ON CONFLICT DO NOTHING`, id, added, time.Now().UTC())
		if err != nil {
			return fmt.Errorf("insert solved problems: %w", err)
		}
		return nil
	})
}

// UpdateStreak locks the user row, runs fn and writes only the streak columns.
func (s *UserStore) UpdateStreak(ctx context.Context, id uuid.UUID, fn func(*domain.Streak) error) error {
	return s.inTx(ctx, "update streak", func(tx pgx.Tx) error {
		var streak domain.Streak
		err := tx.QueryRow(ctx,
			`SELECT current_streak, longest_streak, last_submission_date FROM users WHERE id = $1 FOR UPDATE`, id,
		).Scan(&streak.Current, &streak.Longest, &streak.LastSubmissionDate)
		if err != nil {
			if isNoRows(err) {
				return domain.ErrUserNotFound
			}
			return fmt.Errorf("select streak: %w", err)
		}

		if err := fn(&streak); err != nil {
			return err
		}

		_, err = tx.Exec(ctx, `
			UPDATE users SET
				current_streak = $2, longest_streak = $3, last_submission_date = $4,
				version = version + 1, updated_at = now()
			WHERE id = $1`,
			id, streak.Current, streak.Longest, streak.LastSubmissionDate,
		)
		if err != nil {
			return fmt.Errorf("update streak columns: %w", err)
		}
		return nil
	})
}

func (s *UserStore) inTx(ctx context.Context, op string, fn func(pgx.Tx) error) error {
	err := pgx.BeginFunc(ctx, s.pool, fn)
	return domain.Persist(op, err)
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func loadSolved(ctx context.Context, q querier, userID uuid.UUID) (domain.SolvedSet, error) {
	rows, err := q.Query(ctx, `SELECT problem_id FROM solved_problems WHERE user_id = $1`, userID)
	if err != nil {
		return nil, domain.Persist("load solved problems", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
	if err != nil {
		return nil, domain.Persist("scan solved problems", err)
	}
	set := make(domain.SolvedSet, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set, nil
}

func scanUser(row pgx.Row) (*domain.User, error) {
	var u domain.User
	err := row.Scan(
		&u.ID, &u.Username,
		&u.Statistics.TotalSubmissions, &u.Statistics.SuccessfulSubmissions, &u.Statistics.ProblemsSolvedCount,
		&u.Statistics.EasyCount, &u.Statistics.MediumCount, &u.Statistics.HardCount, &u.Statistics.AverageSolveTime,
		&u.Streak.Current, &u.Streak.Longest, &u.Streak.LastSubmissionDate,
		&u.Version, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		if isNoRows(err) {
			return nil, domain.ErrUserNotFound
		}
		return nil, domain.Persist("scan user", err)
	}
	return &u, nil
}

func collectUsers(rows pgx.Rows) ([]*domain.User, error) {
	defer rows.Close()
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
