package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
)

// Difficulty is the closed set of problem difficulties
type Difficulty int

const (
	DifficultyEasy Difficulty = iota + 1
	DifficultyMedium
	DifficultyHard
)

// Difficulties lists every valid difficulty in display order
var Difficulties = []Difficulty{DifficultyEasy, DifficultyMedium, DifficultyHard}

// String returns the canonical name ("Easy", "Medium", "Hard")
func (d Difficulty) String() string {
	switch d {
	case DifficultyEasy:
		return "Easy"
	case DifficultyMedium:
		return "Medium"
	case DifficultyHard:
		return "Hard"
	default:
		return "Unknown"
	}
}

// Valid reports whether d is one of the known difficulties
func (d Difficulty) Valid() bool {
	return d >= DifficultyEasy && d <= DifficultyHard
}

// ParseDifficulty parses a difficulty name, case-insensitively
func ParseDifficulty(s string) (Difficulty, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "easy":
		return DifficultyEasy, nil
	case "medium":
		return DifficultyMedium, nil
	case "hard":
		return DifficultyHard, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownDifficulty, s)
	}
}

// MarshalText implements encoding.TextMarshaler
func (d Difficulty) MarshalText() ([]byte, error) {
	if !d.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownDifficulty, int(d))
	}
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (d *Difficulty) UnmarshalText(text []byte) error {
	parsed, err := ParseDifficulty(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Problem is the read-only reference a submission points at
type Problem struct {
	ID         uuid.UUID
	Title      string
	Slug       string
	Difficulty Difficulty
	CreatedAt  time.Time
}

// NewProblem validates and creates a problem. Unknown difficulties are
// rejected here so they never reach statistics aggregation.
func NewProblem(title, difficulty string) (*Problem, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, NewValidationError("title", "is required")
	}
	d, err := ParseDifficulty(difficulty)
	if err != nil {
		return nil, NewValidationError("difficulty", err.Error())
	}
	return &Problem{
		ID:         uuid.New(),
		Title:      title,
		Slug:       slug.Make(title),
		Difficulty: d,
		CreatedAt:  time.Now(),
	}, nil
}
