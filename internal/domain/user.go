package domain

import (
	"cmp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// User is a practising user together with the derived state kept for them.
// Statistics and Streak are caches over the submission log.
type User struct {
	ID             uuid.UUID
	Username       string
	Statistics     Statistics
	SolvedProblems SolvedSet
	Streak         Streak
	// Version is bumped on every write; stores without row locks use it
	// for optimistic concurrency.
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewUser validates and creates a user with zeroed statistics
func NewUser(username string) (*User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, NewValidationError("username", "is required")
	}
	now := time.Now()
	return &User{
		ID:             uuid.New(),
		Username:       username,
		SolvedProblems: SolvedSet{},
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// Statistics holds the running counters for one user.
type Statistics struct {
	TotalSubmissions      int
	SuccessfulSubmissions int
	ProblemsSolvedCount   int
	EasyCount             int
	MediumCount           int
	HardCount             int
	// AverageSolveTime is the mean duration of first-time solves in milliseconds.
	AverageSolveTime float64
}

// SuccessRate returns successful/total as a percentage, 0 with no submissions
func (s Statistics) SuccessRate() float64 {
	if s.TotalSubmissions == 0 {
		return 0
	}
	return float64(s.SuccessfulSubmissions) / float64(s.TotalSubmissions) * 100
}

// CountFor returns the solved counter for a difficulty
func (s Statistics) CountFor(d Difficulty) int {
	switch d {
	case DifficultyEasy:
		return s.EasyCount
	case DifficultyMedium:
		return s.MediumCount
	case DifficultyHard:
		return s.HardCount
	default:
		return 0
	}
}

// Consistent reports whether the counter invariants hold.
func (s Statistics) Consistent() bool {
	return s.SuccessfulSubmissions <= s.TotalSubmissions &&
		s.ProblemsSolvedCount <= s.SuccessfulSubmissions &&
		s.EasyCount+s.MediumCount+s.HardCount == s.ProblemsSolvedCount &&
		s.AverageSolveTime >= 0
}

// SolvedSet is the set of problem ids a user has solved at least once.
type SolvedSet map[uuid.UUID]struct{}

// Has reports whether id is in the set
func (s SolvedSet) Has(id uuid.UUID) bool {
	_, ok := s[id]
	return ok
}

// Add inserts id and reports whether it was newly added
func (s SolvedSet) Add(id uuid.UUID) bool {
	if s.Has(id) {
		return false
	}
	s[id] = struct{}{}
	return true
}

// Streak tracks consecutive active days.
type Streak struct {
	Current            int
	Longest            int
	LastSubmissionDate *time.Time
}

// CompareLeaderboard orders users by solved count descending, then by
// creation time and id ascending so equal counts rank deterministically.
func CompareLeaderboard(a, b *User) int {
	if c := cmp.Compare(b.Statistics.ProblemsSolvedCount, a.Statistics.ProblemsSolvedCount); c != 0 {
		return c
	}
	if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
		return c
	}
	return strings.Compare(a.ID.String(), b.ID.String())
}
