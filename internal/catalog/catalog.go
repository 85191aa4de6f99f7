// Package catalog loads the problem catalog from YAML and seeds it into a
// problem repository.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/felixgeelhaar/solvetrack/internal/domain"
)

// File represents the YAML structure of a catalog file
type File struct {
	Name     string         `yaml:"name"`
	Problems []ProblemEntry `yaml:"problems"`
}

// ProblemEntry is a single problem in a catalog file
type ProblemEntry struct {
	Title      string `yaml:"title"`
	Difficulty string `yaml:"difficulty"`
}

// Parse decodes catalog YAML into validated problems. Duplicate slugs
// within one catalog are rejected.
func Parse(data []byte) ([]*domain.Problem, error) {
	var file File
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}

	problems := make([]*domain.Problem, 0, len(file.Problems))
	seen := make(map[string]int, len(file.Problems))
	for i, entry := range file.Problems {
		p, err := domain.NewProblem(entry.Title, entry.Difficulty)
		if err != nil {
			return nil, fmt.Errorf("problem %d: %w", i+1, err)
		}
		if prev, ok := seen[p.Slug]; ok {
			return nil, fmt.Errorf("problem %d: %w", i+1,
				domain.NewValidationError("title", fmt.Sprintf("slug %q duplicates problem %d", p.Slug, prev)))
		}
		seen[p.Slug] = i + 1
		problems = append(problems, p)
	}
	return problems, nil
}

// LoadFile reads and parses a single catalog file
func LoadFile(path string) ([]*domain.Problem, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog file: %w", err)
	}
	problems, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return problems, nil
}

// Load reads a catalog file, or every *.yaml / *.yml file of a directory
// in name order.
func Load(path string) ([]*domain.Problem, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat catalog: %w", err)
	}
	if !info.IsDir() {
		return LoadFile(path)
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog directory: %w", err)
	}
	var names []string
	for _, entry := range entries {
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if entry.IsDir() || (ext != ".yaml" && ext != ".yml") {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	var all []*domain.Problem
	for _, name := range names {
		problems, err := LoadFile(filepath.Join(path, name))
		if err != nil {
			return nil, err
		}
		all = append(all, problems...)
	}
	return all, nil
}

// Result summarizes a seeding run
type Result struct {
	Created int `json:"created"`
	Skipped int `json:"skipped"`
}

// Seeder inserts catalog problems that are not yet stored
type Seeder struct {
	problems domain.ProblemRepository
	logger   *slog.Logger
}

// NewSeeder creates a seeder writing into problems
func NewSeeder(problems domain.ProblemRepository) *Seeder {
	return &Seeder{
		problems: problems,
		logger:   slog.Default().With("component", "catalog"),
	}
}

// Seed creates each problem whose slug is not already present. Seeding
// is idempotent; existing problems keep their ids.
func (s *Seeder) Seed(ctx context.Context, problems []*domain.Problem) (Result, error) {
	var res Result
	for _, p := range problems {
		_, err := s.problems.GetBySlug(ctx, p.Slug)
		switch {
		case err == nil:
			res.Skipped++
			continue
		case !errors.Is(err, domain.ErrNotFound):
			return res, fmt.Errorf("lookup %s: %w", p.Slug, err)
		}

		if err := s.problems.Create(ctx, p); err != nil {
			// Lost a race with a concurrent seed.
			if errors.Is(err, domain.ErrConflict) {
				res.Skipped++
				continue
			}
			return res, fmt.Errorf("create %s: %w", p.Slug, err)
		}
		res.Created++
	}

	s.logger.Info("catalog seeded", "created", res.Created, "skipped", res.Skipped)
	return res, nil
}

// SeedPath loads path and seeds its problems
func (s *Seeder) SeedPath(ctx context.Context, path string) (Result, error) {
	problems, err := Load(path)
	if err != nil {
		return Result{}, err
	}
	return s.Seed(ctx, problems)
}
