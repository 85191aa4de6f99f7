// Package streak implements daily activity streak arithmetic.
package streak

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/solvetrack/internal/domain"
	"github.com/felixgeelhaar/solvetrack/internal/keylock"
)

// Day returns the calendar date of t in loc as midnight UTC. Comparing
// these values gives whole-day gaps that DST transitions cannot skew.
func Day(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DayGap returns the number of calendar days from last to ref in loc.
// Negative when last falls on a later day than ref.
func DayGap(last, ref time.Time, loc *time.Location) int {
	return int(Day(ref, loc).Sub(Day(last, loc)) / (24 * time.Hour))
}

// ContinuesStreak reports whether activity at ref keeps a streak whose last
// activity was at last: same day or the day after. A nil last never does.
func ContinuesStreak(last *time.Time, ref time.Time, loc *time.Location) bool {
	if last == nil {
		return false
	}
	gap := DayGap(*last, ref, loc)
	return gap == 0 || gap == 1
}

// Advance applies activity at now to state. It returns the new state and
// whether anything changed. Activity on the day already recorded, or on an
// earlier day, leaves the streak untouched.
func Advance(state domain.Streak, now time.Time, loc *time.Location) (domain.Streak, bool) {
	if state.LastSubmissionDate != nil && DayGap(*state.LastSubmissionDate, now, loc) <= 0 {
		return state, false
	}

	next := state
	if ContinuesStreak(state.LastSubmissionDate, now, loc) {
		next.Current++
	} else {
		next.Current = 1
	}
	next.Longest = max(next.Longest, next.Current)
	at := now
	next.LastSubmissionDate = &at
	return next, true
}

// Tracker records successful activity against a stored user's streak.
type Tracker struct {
	users  domain.UserRepository
	locks  *keylock.Locker
	loc    *time.Location
	logger *slog.Logger
}

// NewTracker creates a Tracker. loc decides where day boundaries fall.
func NewTracker(users domain.UserRepository, locks *keylock.Locker, loc *time.Location) *Tracker {
	if loc == nil {
		loc = time.UTC
	}
	return &Tracker{
		users:  users,
		locks:  locks,
		loc:    loc,
		logger: slog.Default().With("component", "streak"),
	}
}

// Location returns the time zone used for day boundaries
func (t *Tracker) Location() *time.Location {
	return t.loc
}

// Record applies a successful submission at `at` to the user's streak and
// reports whether the stored streak changed.
func (t *Tracker) Record(ctx context.Context, userID uuid.UUID, at time.Time) (bool, error) {
	unlock, err := t.locks.Lock(ctx, userID.String())
	if err != nil {
		return false, fmt.Errorf("lock user: %w", err)
	}
	defer unlock()

	var applied bool
	err = t.users.UpdateStreak(ctx, userID, func(s *domain.Streak) error {
		next, changed := Advance(*s, at, t.loc)
		*s = next
		applied = changed
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("update streak: %w", err)
	}

	if applied {
		t.logger.Debug("streak advanced", "user_id", userID)
	}
	return applied, nil
}
