// Package sqlite implements the embedded single-file store.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/felixgeelhaar/solvetrack/internal/domain"
	"github.com/felixgeelhaar/solvetrack/internal/storage/migrations"
)

// DB wraps a sql.DB connection to a SQLite database with migration support.
type DB struct {
	*sql.DB
}

// Open creates a new SQLite connection with WAL mode and foreign keys enabled.
func Open(path string) (*DB, error) {
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_txlock=immediate", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	// One connection means one writer: every read-modify-write transaction
	// below runs alone, which serializes updates across goroutines.
	db.SetMaxOpenConns(1)

	return &DB{DB: db}, nil
}

// Migrate applies all pending SQL migrations.
func (db *DB) Migrate() error {
	_, err := migrations.Apply(context.Background(), db.DB, migrations.SQLite(), migrations.SQLiteDialect)
	return err
}

// Version returns the current schema version.
func (db *DB) Version() (int, error) {
	return migrations.Version(context.Background(), db.DB)
}

// Store is the SQLite implementation of domain.Store
type Store struct {
	db          *DB
	users       *UserStore
	problems    *ProblemStore
	submissions *SubmissionStore
}

// NewStore opens path, applies migrations and returns the store.
func NewStore(path string) (*Store, error) {
	db, err := Open(path)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate sqlite: %w", err)
	}
	return &Store{
		db:          db,
		users:       NewUserStore(db),
		problems:    NewProblemStore(db),
		submissions: NewSubmissionStore(db),
	}, nil
}

func (s *Store) Users() domain.UserRepository             { return s.users }
func (s *Store) Problems() domain.ProblemRepository       { return s.problems }
func (s *Store) Submissions() domain.SubmissionRepository { return s.submissions }
func (s *Store) Close() error                             { return s.db.Close() }

// Ensure SQLite stores implement the repository interfaces.
var (
	_ domain.Store                = (*Store)(nil)
	_ domain.UserRepository       = (*UserStore)(nil)
	_ domain.ProblemRepository    = (*ProblemStore)(nil)
	_ domain.SubmissionRepository = (*SubmissionStore)(nil)
)
