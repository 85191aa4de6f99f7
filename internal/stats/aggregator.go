// Package stats maintains per-user running statistics.
package stats

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/solvetrack/internal/domain"
	"github.com/felixgeelhaar/solvetrack/internal/keylock"
)

// Outcome describes what one RecordOutcome call did
type Outcome struct {
	// Applied is false when the user or problem did not exist.
	Applied    bool
	FirstSolve bool
	Difficulty domain.Difficulty
	Statistics domain.Statistics
}

// Aggregator is the only writer of domain.Statistics.
type Aggregator struct {
	users    domain.UserRepository
	problems domain.ProblemRepository
	locks    *keylock.Locker
	logger   *slog.Logger
}

// NewAggregator creates an Aggregator
func NewAggregator(users domain.UserRepository, problems domain.ProblemRepository, locks *keylock.Locker) *Aggregator {
	return &Aggregator{
		users:    users,
		problems: problems,
		locks:    locks,
		logger:   slog.Default().With("component", "stats"),
	}
}

// RecordOutcome folds one graded submission into the user's statistics.
// duration is in milliseconds. A missing user or problem is logged and
// skipped; only store failures are returned.
func (a *Aggregator) RecordOutcome(ctx context.Context, userID, problemID uuid.UUID, success bool, duration int64) (Outcome, error) {
	problem, err := a.problems.Get(ctx, problemID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.logger.Warn("statistics skipped: problem not found", "user_id", userID, "problem_id", problemID)
			return Outcome{}, nil
		}
		return Outcome{}, domain.Persist("get problem", err)
	}
	if !problem.Difficulty.Valid() {
		return Outcome{}, domain.NewValidationError("difficulty", fmt.Sprintf("problem %s has unknown difficulty", problemID))
	}

	unlock, err := a.locks.Lock(ctx, userID.String())
	if err != nil {
		return Outcome{}, fmt.Errorf("lock user: %w", err)
	}
	defer unlock()

	out := Outcome{Difficulty: problem.Difficulty}
	err = a.users.UpdateStatistics(ctx, userID, func(u *domain.User) error {
		if u.SolvedProblems == nil {
			u.SolvedProblems = domain.SolvedSet{}
		}
		out.FirstSolve = Apply(&u.Statistics, u.SolvedProblems, problem, success, duration)
		out.Statistics = u.Statistics
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			a.logger.Warn("statistics skipped: user not found", "user_id", userID, "problem_id", problemID)
			return Outcome{}, nil
		}
		a.logger.Error("statistics update failed", "user_id", userID, "problem_id", problemID, "error", err)
		return Outcome{}, domain.Persist("update statistics", err)
	}

	out.Applied = true
	return out, nil
}

// Apply mutates stats and solved for one graded submission and reports
// whether it was the user's first solve of problem.
func Apply(stats *domain.Statistics, solved domain.SolvedSet, problem *domain.Problem, success bool, duration int64) bool {
	stats.TotalSubmissions++
	if !success {
		return false
	}
	stats.SuccessfulSubmissions++

	var counter *int
	switch problem.Difficulty {
	case domain.DifficultyEasy:
		counter = &stats.EasyCount
	case domain.DifficultyMedium:
		counter = &stats.MediumCount
	case domain.DifficultyHard:
		counter = &stats.HardCount
	default:
		// Unreachable for problems built through NewProblem.
		return false
	}
	if !solved.Add(problem.ID) {
		return false
	}
	*counter++
	stats.ProblemsSolvedCount++

	if duration > 0 {
		n := float64(stats.ProblemsSolvedCount)
		stats.AverageSolveTime = (stats.AverageSolveTime*(n-1) + float64(duration)) / n
	}
	return true
}
