package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/felixgeelhaar/solvetrack/internal/domain"
	"github.com/felixgeelhaar/solvetrack/internal/storage/storetest"
)

func TestOpen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer db.Close()

	var journalMode string
	if err := db.QueryRow("PRAGMA journal_mode").Scan(&journalMode); err != nil {
		t.Fatalf("query journal_mode: %v", err)
	}
	if journalMode != "wal" {
		t.Errorf("journal_mode = %q; want wal", journalMode)
	}

	var fk int
	if err := db.QueryRow("PRAGMA foreign_keys").Scan(&fk); err != nil {
		t.Fatalf("query foreign_keys: %v", err)
	}
	if fk != 1 {
		t.Errorf("foreign_keys = %d; want 1", fk)
	}
}

func TestMigrate(t *testing.T) {
	db := openTestDB(t)

	version, err := db.Version()
	if err != nil {
		t.Fatalf("Version() error = %v", err)
	}
	if version != 1 {
		t.Errorf("Version() = %d; want 1", version)
	}

	for _, table := range []string{"users", "problems", "solved_problems", "submissions"} {
		var name string
		err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err != nil {
			t.Errorf("table %q not found: %v", table, err)
		}
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	db := openTestDB(t)

	if err := db.Migrate(); err != nil {
		t.Fatalf("second Migrate() error = %v", err)
	}
	version, _ := db.Version()
	if version != 1 {
		t.Errorf("Version() = %d; want 1", version)
	}
}

func TestStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) domain.Store {
		s, err := NewStore(filepath.Join(t.TempDir(), "solvetrack.db"))
		if err != nil {
			t.Fatalf("NewStore() error = %v", err)
		}
		return s
	})
}

func TestStore_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "solvetrack.db")
	s, err := NewStore(path)
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	u := storetest.MustUser(t, s, "alice")
	p := storetest.MustProblem(t, s, "Two Sum", "Easy")
	err = s.Users().UpdateStatistics(context.Background(), u.ID, func(u *domain.User) error {
		u.Statistics = domain.Statistics{TotalSubmissions: 1, SuccessfulSubmissions: 1, ProblemsSolvedCount: 1, EasyCount: 1}
		u.SolvedProblems.Add(p.ID)
		return nil
	})
	if err != nil {
		t.Fatalf("UpdateStatistics() error = %v", err)
	}
	s.Close()

	s, err = NewStore(path)
	if err != nil {
		t.Fatalf("reopen NewStore() error = %v", err)
	}
	defer s.Close()

	got, err := s.Users().Get(context.Background(), u.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !got.SolvedProblems.Has(p.ID) || got.Statistics.EasyCount != 1 {
		t.Errorf("state lost across reopen: %+v", got)
	}
}

func TestUpdateStatistics_RejectsInconsistentCounters(t *testing.T) {
	s, err := NewStore(filepath.Join(t.TempDir(), "solvetrack.db"))
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	defer s.Close()
	u := storetest.MustUser(t, s, "alice")

	err = s.Users().UpdateStatistics(context.Background(), u.ID, func(u *domain.User) error {
		u.Statistics.ProblemsSolvedCount = 1
		return nil
	})
	if err == nil {
		t.Fatal("UpdateStatistics() error = nil; want check constraint failure")
	}
}

// openTestDB is a helper that opens and migrates a test database.
func openTestDB(t *testing.T) *DB {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := db.Migrate(); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}
