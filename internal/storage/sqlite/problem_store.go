package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/solvetrack/internal/domain"
)

// ProblemStore persists the problem catalog.
type ProblemStore struct {
	db *DB
}

// NewProblemStore creates a new SQLite-backed problem store.
func NewProblemStore(db *DB) *ProblemStore {
	return &ProblemStore{db: db}
}

// Create inserts a problem. Unknown difficulties are rejected.
func (s *ProblemStore) Create(ctx context.Context, p *domain.Problem) error {
	if !p.Difficulty.Valid() {
		return domain.NewValidationError("difficulty", domain.ErrUnknownDifficulty.Error())
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO problems (id, title, slug, difficulty, created_at) VALUES (?, ?, ?, ?, ?)`,
		p.ID, p.Title, p.Slug, p.Difficulty.String(), p.CreatedAt.UTC(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrConflict
		}
		return domain.Persist("insert problem", err)
	}
	return nil
}

// Get retrieves a problem by ID.
func (s *ProblemStore) Get(ctx context.Context, id uuid.UUID) (*domain.Problem, error) {
	return scanProblem(s.db.QueryRowContext(ctx,
		`SELECT id, title, slug, difficulty, created_at FROM problems WHERE id = ?`, id))
}

// GetBySlug retrieves a problem by slug.
func (s *ProblemStore) GetBySlug(ctx context.Context, slug string) (*domain.Problem, error) {
	return scanProblem(s.db.QueryRowContext(ctx,
		`SELECT id, title, slug, difficulty, created_at FROM problems WHERE slug = ?`, slug))
}

// GetMany retrieves the problems that exist among ids, keyed by id.
func (s *ProblemStore) GetMany(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*domain.Problem, error) {
	out := make(map[uuid.UUID]*domain.Problem, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, slug, difficulty, created_at FROM problems WHERE id IN (`+placeholders+`)`, args...)
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

// CountByDifficulty returns the number of problems per difficulty.
func (s *ProblemStore) CountByDifficulty(ctx context.Context) (map[domain.Difficulty]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT difficulty, COUNT(*) FROM problems GROUP BY difficulty`)
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
	return out, rows.Err()
}

func scanProblem(row scanner) (*domain.Problem, error) {
	var (
		p          domain.Problem
		difficulty string
	)
	if err := row.Scan(&p.ID, &p.Title, &p.Slug, &difficulty, &p.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
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
