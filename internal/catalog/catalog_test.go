package catalog

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/felixgeelhaar/solvetrack/internal/domain"
	"github.com/felixgeelhaar/solvetrack/internal/storage/memory"
)

const sampleCatalog = `name: starter
problems:
  - title: Two Sum
    difficulty: Easy
  - title: LRU Cache
    difficulty: medium
  - title: Median of Two Sorted Arrays
    difficulty: HARD
`

func TestParse(t *testing.T) {
	problems, err := Parse([]byte(sampleCatalog))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(problems) != 3 {
		t.Fatalf("len(problems) = %d, want 3", len(problems))
	}

	want := []struct {
		slug       string
		difficulty domain.Difficulty
	}{
		{"two-sum", domain.DifficultyEasy},
		{"lru-cache", domain.DifficultyMedium},
		{"median-of-two-sorted-arrays", domain.DifficultyHard},
	}
	for i, w := range want {
		if problems[i].Slug != w.slug {
			t.Errorf("problems[%d].Slug = %q, want %q", i, problems[i].Slug, w.slug)
		}
		if problems[i].Difficulty != w.difficulty {
			t.Errorf("problems[%d].Difficulty = %v, want %v", i, problems[i].Difficulty, w.difficulty)
		}
	}
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"bad yaml", "problems: [unclosed"},
		{"unknown difficulty", "problems:\n  - title: Foo\n    difficulty: Insane\n"},
		{"missing title", "problems:\n  - difficulty: Easy\n"},
		{"duplicate slug", "problems:\n  - title: Two Sum\n    difficulty: Easy\n  - title: two sum\n    difficulty: Hard\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse([]byte(tt.yaml)); err == nil {
				t.Error("Parse() should fail")
			}
		})
	}
}

func TestParse_InvalidIsValidationError(t *testing.T) {
	_, err := Parse([]byte("problems:\n  - title: Foo\n    difficulty: Insane\n"))
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("error = %v, want ErrInvalidInput", err)
	}
}

func TestLoad_Directory(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"b.yaml":    "problems:\n  - title: Word Ladder\n    difficulty: Hard\n",
		"a.yml":     "problems:\n  - title: Valid Parentheses\n    difficulty: Easy\n",
		"notes.txt": "ignored",
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}

	problems, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(problems) != 2 {
		t.Fatalf("len(problems) = %d, want 2", len(problems))
	}
	if problems[0].Slug != "valid-parentheses" || problems[1].Slug != "word-ladder" {
		t.Errorf("order = %q, %q; want files in name order", problems[0].Slug, problems[1].Slug)
	}
}

func TestLoad_Missing(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("Load() should fail for a missing path")
	}
}

func TestSeeder_Idempotent(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	seeder := NewSeeder(store.Problems())

	path := filepath.Join(t.TempDir(), "catalog.yaml")
	if err := os.WriteFile(path, []byte(sampleCatalog), 0644); err != nil {
		t.Fatal(err)
	}

	res, err := seeder.SeedPath(ctx, path)
	if err != nil {
		t.Fatalf("SeedPath() error = %v", err)
	}
	if res.Created != 3 || res.Skipped != 0 {
		t.Errorf("first run = %+v, want 3 created", res)
	}

	first, err := store.Problems().GetBySlug(ctx, "two-sum")
	if err != nil {
		t.Fatalf("GetBySlug() error = %v", err)
	}

	res, err = seeder.SeedPath(ctx, path)
	if err != nil {
		t.Fatalf("second SeedPath() error = %v", err)
	}
	if res.Created != 0 || res.Skipped != 3 {
		t.Errorf("second run = %+v, want 3 skipped", res)
	}

	again, _ := store.Problems().GetBySlug(ctx, "two-sum")
	if again.ID != first.ID {
		t.Error("re-seeding should keep existing problem ids")
	}

	counts, err := store.Problems().CountByDifficulty(ctx)
	if err != nil {
		t.Fatal(err)
	}
	for _, d := range domain.Difficulties {
		if counts[d] != 1 {
			t.Errorf("counts[%v] = %d, want 1", d, counts[d])
		}
	}
}
