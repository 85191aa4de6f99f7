// Package report builds read-only dashboard views from stored statistics
// and the submission log.
package report

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/solvetrack/internal/domain"
	"github.com/felixgeelhaar/solvetrack/internal/streak"
)

// Defaults for the reporting windows
const (
	DefaultCalendarDays     = 365
	DefaultLeaderboardLimit = 10
	MaxLeaderboardLimit     = 100
	RecentActivityLimit     = 10
)

// Reporter reads derived state. It takes no locks and may observe a
// statistics update before the matching streak update.
type Reporter struct {
	users       domain.UserRepository
	problems    domain.ProblemRepository
	submissions domain.SubmissionRepository
	index       domain.LeaderboardIndex
	loc         *time.Location
	now         func() time.Time
	logger      *slog.Logger
}

// Option configures a Reporter
type Option func(*Reporter)

// WithLeaderboardIndex serves leaderboard candidates from idx, falling
// back to the store when it fails.
func WithLeaderboardIndex(idx domain.LeaderboardIndex) Option {
	return func(r *Reporter) { r.index = idx }
}

// WithClock overrides time.Now
func WithClock(now func() time.Time) Option {
	return func(r *Reporter) { r.now = now }
}

// NewReporter creates a Reporter. loc decides calendar day boundaries.
func NewReporter(store domain.Store, loc *time.Location, opts ...Option) *Reporter {
	if loc == nil {
		loc = time.UTC
	}
	r := &Reporter{
		users:       store.Users(),
		problems:    store.Problems(),
		submissions: store.Submissions(),
		loc:         loc,
		now:         time.Now,
		logger:      slog.Default().With("component", "report"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// CalendarDay is the number of successful submissions on one day
type CalendarDay struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

// Calendar groups the user's successful submissions of the last
// windowDays days by calendar day, oldest first. Days without activity
// are omitted.
func (r *Reporter) Calendar(ctx context.Context, userID uuid.UUID, windowDays int) ([]CalendarDay, error) {
	if _, err := r.users.Get(ctx, userID); err != nil {
		return nil, domain.Persist("get user", err)
	}
	return r.calendar(ctx, userID, windowDays)
}

func (r *Reporter) calendar(ctx context.Context, userID uuid.UUID, windowDays int) ([]CalendarDay, error) {
	if windowDays <= 0 {
		windowDays = DefaultCalendarDays
	}
	now := r.now()
	since := now.AddDate(0, 0, -windowDays)

	times, err := r.submissions.SuccessTimes(ctx, userID, since)
	if err != nil {
		return nil, domain.Persist("list successful submissions", err)
	}

	counts := make(map[time.Time]int)
	for _, t := range times {
		if t.After(now) {
			continue
		}
		counts[streak.Day(t, r.loc)]++
	}

	days := make([]time.Time, 0, len(counts))
	for d := range counts {
		days = append(days, d)
	}
	slices.SortFunc(days, time.Time.Compare)

	out := make([]CalendarDay, 0, len(days))
	for _, d := range days {
		out = append(out, CalendarDay{Date: d.Format(time.DateOnly), Count: counts[d]})
	}
	return out, nil
}

// LeaderboardEntry is one ranked user
type LeaderboardEntry struct {
	Rank           int       `json:"rank"`
	UserID         uuid.UUID `json:"userId"`
	Username       string    `json:"username"`
	ProblemsSolved int       `json:"problemsSolved"`
	CurrentStreak  int       `json:"currentStreak"`
	SuccessRate    string    `json:"successRate"`
	MemberSince    time.Time `json:"memberSince"`
}

// Leaderboard is a ranked listing
type Leaderboard struct {
	Entries    []LeaderboardEntry `json:"leaderboard"`
	TotalUsers int                `json:"totalUsers"`
}

// Leaderboard ranks users by solved problems. limit defaults to 10 and is
// capped at 100.
func (r *Reporter) Leaderboard(ctx context.Context, limit int) (*Leaderboard, error) {
	if limit <= 0 {
		limit = DefaultLeaderboardLimit
	}
	limit = min(limit, MaxLeaderboardLimit)

	users, err := r.topUsers(ctx, limit)
	if err != nil {
		return nil, err
	}

	board := &Leaderboard{Entries: make([]LeaderboardEntry, 0, len(users))}
	for i, u := range users {
		board.Entries = append(board.Entries, LeaderboardEntry{
			Rank:           i + 1,
			UserID:         u.ID,
			Username:       u.Username,
			ProblemsSolved: u.Statistics.ProblemsSolvedCount,
			CurrentStreak:  u.Streak.Current,
			SuccessRate:    leaderboardRate(u.Statistics),
			MemberSince:    u.CreatedAt,
		})
	}
	board.TotalUsers = len(board.Entries)
	return board, nil
}

func (r *Reporter) topUsers(ctx context.Context, limit int) ([]*domain.User, error) {
	if r.index != nil {
		// A short candidate list may be missing users the index has not
		// seen yet, so only a full page is trusted.
		users, err := r.topFromIndex(ctx, limit)
		switch {
		case err == nil && len(users) >= limit:
			return users, nil
		case errors.Is(err, domain.ErrIndexStale):
			return r.rebuildIndex(ctx, limit)
		case err != nil:
			r.logger.Warn("leaderboard index unavailable, reading store", "error", err)
		}
	}
	users, err := r.users.Top(ctx, limit)
	if err != nil {
		return nil, domain.Persist("list top users", err)
	}
	return users, nil
}

// rebuildIndex serves the page from the store and reloads the index from
// the same read. A failed rebuild leaves the index stale for the next call.
func (r *Reporter) rebuildIndex(ctx context.Context, limit int) ([]*domain.User, error) {
	all, err := r.users.Top(ctx, 0)
	if err != nil {
		return nil, domain.Persist("list top users", err)
	}
	if err := r.index.Rebuild(ctx, all); err != nil {
		r.logger.Warn("leaderboard index rebuild failed", "error", err)
	}
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (r *Reporter) topFromIndex(ctx context.Context, limit int) ([]*domain.User, error) {
	ids, err := r.index.Candidates(ctx, limit)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	users, err := r.users.GetMany(ctx, ids)
	if err != nil {
		return nil, err
	}
	slices.SortFunc(users, domain.CompareLeaderboard)
	if len(users) > limit {
		users = users[:limit]
	}
	return users, nil
}

func leaderboardRate(s domain.Statistics) string {
	if s.TotalSubmissions == 0 {
		return "0%"
	}
	return fmt.Sprintf("%.1f%%", s.SuccessRate())
}
