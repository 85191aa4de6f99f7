package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/felixgeelhaar/solvetrack/internal/domain"
)

const problemColumns = `id, title, slug, difficulty::text, created_at`

// ProblemStore persists the problem catalog
type ProblemStore struct {
	pool *pgxpool.Pool
}

// NewProblemStore creates a new PostgreSQL problem store
func NewProblemStore(pool *pgxpool.Pool) *ProblemStore {
	return &ProblemStore{pool: pool}
}

// Create inserts a problem
func (s *ProblemStore) Create(ctx context.Context, p *domain.Problem) error {
	if !p.Difficulty.Valid() {
		return domain.NewValidationError("difficulty", domain.ErrUnknownDifficulty.Error())
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO problems (id, title, slug, difficulty, created_at) VALUES ($1, $2, $3, $4::difficulty, $5)`,
		p.ID, p.Title, p.Slug, p.Difficulty.String(), p.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrConflict
		}
		return domain.Persist("insert problem", err)
	}
	return nil
}

// Get retrieves a problem by ID
func (s *ProblemStore) Get(ctx context.Context, id uuid.UUID) (*domain.Problem, error) {
	return scanProblem(s.pool.QueryRow(ctx, `SELECT `+problemColumns+` FROM problems WHERE id = $1`, id))
}

// GetBySlug retrieves a problem by slug
func (s *ProblemStore) GetBySlug(ctx context.Context, slug string) (*domain.Problem, error) {
	return scanProblem(s.pool.QueryRow(ctx, `SELECT `+problemColumns+` FROM problems WHERE slug = $1`, slug))
}

// GetMany retrieves the problems that exist among ids
func (s *ProblemStore) GetMany(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*domain.Problem, error) {
	out := make(map[uuid.UUID]*domain.Problem, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := s.pool.Query(ctx, `SELECT `+problemColumns+` FROM problems WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, domain.Persist("get problems", err)
	}
	defer rows.Close()
	for rows.Next() {
		p, err := scanProblem(rows)
		if err != nil {
			return nil, err
		}
		out[p.ID] = p
	}
	if err := rows.Err(); err != nil {
		return nil, domain.Persist("iterate problems", err)
	}
	return out, nil
}

// CountByDifficulty returns the number of problems per difficulty
func (s *ProblemStore) CountByDifficulty(ctx context.Context) (map[domain.Difficulty]int, error) {
	rows, err := s.pool.Query(ctx, `SELECT difficulty::text, COUNT(*) FROM problems GROUP BY difficulty`)
	if err != nil {
		return nil, domain.Persist("count problems", err)
	}
	defer rows.Close()

	out := make(map[domain.Difficulty]int, len(domain.Difficulties))
	for rows.Next() {
		var (
			name  string
			count int
		)
		if err := rows.Scan(&name, &count); err != nil {
			return nil, domain.Persist("scan problem count", err)
		}
		d, err := domain.ParseDifficulty(name)
		if err != nil {
			return nil, domain.Persist("scan problem count", err)
		}
		out[d] = count
	}
	return out, domain.Persist("iterate problem counts", rows.Err())
}

func scanProblem(row pgx.Row) (*domain.Problem, error) {
	var (
		p          domain.Problem
		difficulty string
	)
	if err := row.Scan(&p.ID, &p.Title, &p.Slug, &difficulty, &p.CreatedAt); err != nil {
		if isNoRows(err) {
			return nil, domain.ErrProblemNotFound
		}
		return nil, domain.Persist("scan problem", err)
	}
	d, err := domain.ParseDifficulty(difficulty)
	if err != nil {
		return nil, domain.Persist("scan problem", err)
	}
	p.Difficulty = d
	return &p, nil
}
