package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// UserRepository persists users and their derived state.
//
// UpdateStatistics and UpdateStreak are field-scoped read-modify-write
// operations. Each implementation serializes concurrent calls for the same
// user, hands fn a freshly loaded user, and writes back only the fields it
// owns, so a statistics update never clobbers a streak update and vice versa.
type UserRepository interface {
	Create(ctx context.Context, user *User) error
	Get(ctx context.Context, id uuid.UUID) (*User, error)
	GetMany(ctx context.Context, ids []uuid.UUID) ([]*User, error)
	// Top returns up to limit users in leaderboard order; limit <= 0 means all.
	// Users returned by GetMany and Top may omit SolvedProblems.
	Top(ctx context.Context, limit int) ([]*User, error)

	// UpdateStatistics persists Statistics and any ids added to
	// SolvedProblems by fn. Returns ErrUserNotFound if the user is missing.
	UpdateStatistics(ctx context.Context, id uuid.UUID, fn func(*User) error) error
	// UpdateStreak persists only the streak fields modified by fn.
	UpdateStreak(ctx context.Context, id uuid.UUID, fn func(*Streak) error) error
}

// ProblemRepository is read-mostly access to the problem catalog
type ProblemRepository interface {
	Create(ctx context.Context, problem *Problem) error
	Get(ctx context.Context, id uuid.UUID) (*Problem, error)
	GetBySlug(ctx context.Context, slug string) (*Problem, error)
	GetMany(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*Problem, error)
	CountByDifficulty(ctx context.Context) (map[Difficulty]int, error)
}

// SubmissionQuery selects a page of a user's submissions
type SubmissionQuery struct {
	Status *SubmissionStatus
	Offset int
	Limit  int
}

// SubmissionRepository is the append-only submission log
type SubmissionRepository interface {
	Create(ctx context.Context, sub *Submission) error
	// ListByUser returns a page newest first plus the total matching count.
	ListByUser(ctx context.Context, userID uuid.UUID, q SubmissionQuery) ([]*Submission, int, error)
	// SuccessTimes returns timestamps of successful submissions at or after since.
	SuccessTimes(ctx context.Context, userID uuid.UUID, since time.Time) ([]time.Time, error)
}

// LeaderboardIndex is an optional ranking index kept beside the store.
// It can always be rebuilt from UserRepository data.
type LeaderboardIndex interface {
	SetSolved(ctx context.Context, userID uuid.UUID, solved int) error
	// Candidates returns ids that may rank within the top limit, including
	// every user tied with the last place.
	Candidates(ctx context.Context, limit int) ([]uuid.UUID, error)
	Rebuild(ctx context.Context, users []*User) error
}

// Store bundles the repositories of one backend.
type Store interface {
	Users() UserRepository
	Problems() ProblemRepository
	Submissions() SubmissionRepository
	Close() error
}
