package submission

import (
	"cmp"
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/felixgeelhaar/fortify/retry"

	"github.com/felixgeelhaar/solvetrack/internal/domain"
	"github.com/felixgeelhaar/solvetrack/internal/metrics"
	"github.com/felixgeelhaar/solvetrack/internal/stats"
	"github.com/felixgeelhaar/solvetrack/internal/streak"
)

// Result reports every step of one recording
type Result struct {
	Submission    *domain.Submission
	Outcome       stats.Outcome
	StreakApplied bool
	// StreakErr is set when the streak step failed; the recording itself
	// still succeeded.
	StreakErr error
}

// RetryConfig tunes the retry applied to each persistence step
type RetryConfig struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// DefaultRetryConfig returns the production retry settings
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 50 * time.Millisecond,
		MaxDelay:     time.Second,
	}
}

// Recorder coordinates a recording: append the submission, fold it into
// the statistics, then advance the streak. The statistics and streak steps
// are separate writes, each retried on transient store failures, and a
// failed streak step does not fail the recording.
type Recorder struct {
	service    *Service
	aggregator *stats.Aggregator
	tracker    *streak.Tracker
	index      domain.LeaderboardIndex
	metrics    *metrics.Metrics
	logger     *slog.Logger

	statsRetry  retry.Retry[stats.Outcome]
	streakRetry retry.Retry[bool]
}

// RecorderOption configures a Recorder
type RecorderOption func(*Recorder)

// WithLeaderboardIndex keeps idx updated after each statistics write
func WithLeaderboardIndex(idx domain.LeaderboardIndex) RecorderOption {
	return func(r *Recorder) { r.index = idx }
}

// WithMetrics records counters on m
func WithMetrics(m *metrics.Metrics) RecorderOption {
	return func(r *Recorder) { r.metrics = m }
}

// WithRetry overrides DefaultRetryConfig
func WithRetry(cfg RetryConfig) RecorderOption {
	return func(r *Recorder) {
		r.statsRetry = newRetry[stats.Outcome](cfg)
		r.streakRetry = newRetry[bool](cfg)
	}
}

// NewRecorder creates a Recorder
func NewRecorder(service *Service, aggregator *stats.Aggregator, tracker *streak.Tracker, opts ...RecorderOption) *Recorder {
	cfg := DefaultRetryConfig()
	r := &Recorder{
		service:     service,
		aggregator:  aggregator,
		tracker:     tracker,
		logger:      slog.Default().With("component", "recorder"),
		statsRetry:  newRetry[stats.Outcome](cfg),
		streakRetry: newRetry[bool](cfg),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func newRetry[T any](cfg RetryConfig) retry.Retry[T] {
	return retry.New[T](retry.Config{
		MaxAttempts:   max(cfg.MaxAttempts, 1),
		InitialDelay:  cfg.InitialDelay,
		MaxDelay:      cfg.MaxDelay,
		Multiplier:    2.0,
		BackoffPolicy: retry.BackoffExponential,
		Jitter:        true,
		IsRetryable: func(err error) bool {
			return errors.Is(err, domain.ErrPersistence)
		},
	})
}

// Record stores a graded submission and applies it to the owner's
// statistics and streak. Validation and not-found errors are returned
// before anything is written. A statistics failure is returned after the
// submission has been stored; a streak failure only sets Result.StreakErr.
func (r *Recorder) Record(ctx context.Context, in domain.SubmissionInput) (*Result, error) {
	sub, err := r.service.Create(ctx, in)
	if err != nil {
		return nil, err
	}
	r.metrics.SubmissionRecorded(string(sub.Status), sub.Success)
	res := &Result{Submission: sub}

	log := r.logger.With("user_id", sub.UserID, "problem_id", sub.ProblemID, "submission_id", sub.ID)

	var lastErr error
	outcome, err := r.statsRetry.Do(ctx, func(ctx context.Context) (stats.Outcome, error) {
		o, err := r.aggregator.RecordOutcome(ctx, sub.UserID, sub.ProblemID, sub.Success, sub.Duration)
		lastErr = err
		return o, err
	})
	if err != nil {
		err = cmp.Or(lastErr, err)
		log.Error("statistics step failed", "error", err)
		return res, err
	}
	res.Outcome = outcome
	if !outcome.Applied {
		r.metrics.StatisticsSkipped()
	}
	if outcome.FirstSolve {
		r.metrics.FirstSolve(outcome.Difficulty.String())
	}
	if outcome.Applied && r.index != nil {
		if err := r.index.SetSolved(ctx, sub.UserID, outcome.Statistics.ProblemsSolvedCount); err != nil {
			log.Warn("leaderboard index update failed", "error", err)
		}
	}

	if !sub.Success {
		return res, nil
	}

	lastErr = nil
	applied, err := r.streakRetry.Do(ctx, func(ctx context.Context) (bool, error) {
		applied, err := r.tracker.Record(ctx, sub.UserID, sub.Timestamp)
		if err != nil {
			lastErr = domain.Persist("update streak", err)
			return false, lastErr
		}
		return applied, nil
	})
	if err != nil {
		err = cmp.Or(lastErr, err)
		log.Error("streak step failed", "error", err)
		r.metrics.StreakFailed()
		res.StreakErr = err
		return res, nil
	}
	res.StreakApplied = applied
	r.metrics.StreakUpdated(applied)
	return res, nil
}
