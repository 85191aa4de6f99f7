// Package postgres implements the server-grade store on PostgreSQL.
//
// Queries run over a pgx connection pool. Schema migrations run through
// database/sql with the lib/pq driver, sharing the runner used by SQLite.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/lib/pq"

	"github.com/felixgeelhaar/solvetrack/internal/domain"
	"github.com/felixgeelhaar/solvetrack/internal/storage/migrations"
)

// Migrate applies pending migrations to the database at url.
func Migrate(ctx context.Context, url string) (int, error) {
	db, err := sql.Open("postgres", url)
	if err != nil {
		return 0, fmt.Errorf("open postgres: %w", err)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return 0, fmt.Errorf("ping postgres: %w", err)
	}
	return migrations.Apply(ctx, db, migrations.Postgres(), migrations.PostgresDialect)
}

// Store is the PostgreSQL implementation of domain.Store
type Store struct {
	pool        *pgxpool.Pool
	users       *UserStore
	problems    *ProblemStore
	submissions *SubmissionStore
}

// NewStore migrates the database at url and opens a connection pool.
func NewStore(ctx context.Context, url string) (*Store, error) {
	if _, err := Migrate(ctx, url); err != nil {
		return nil, fmt.Errorf("migrate postgres: %w", err)
	}
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Store{
		pool:        pool,
		users:       NewUserStore(pool),
		problems:    NewProblemStore(pool),
		submissions: NewSubmissionStore(pool),
	}, nil
}

func (s *Store) Users() domain.UserRepository             { return s.users }
func (s *Store) Problems() domain.ProblemRepository       { return s.problems }
func (s *Store) Submissions() domain.SubmissionRepository { return s.submissions }

// Close releases the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

var (
	_ domain.Store                = (*Store)(nil)
	_ domain.UserRepository       = (*UserStore)(nil)
	_ domain.ProblemRepository    = (*ProblemStore)(nil)
	_ domain.SubmissionRepository = (*SubmissionStore)(nil)
)

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// Truncate removes every row.
func (s *Store) Truncate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `TRUNCATE submissions, solved_problems, problems, users`)
	return domain.Persist("truncate", err)
}
