package report

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/solvetrack/internal/domain"
	"github.com/felixgeelhaar/solvetrack/internal/streak"
)

// DifficultyCounts holds one number per difficulty
type DifficultyCounts struct {
	Easy   int `json:"easy"`
	Medium int `json:"medium"`
	Hard   int `json:"hard"`
}

// StreakSummary is the stored streak state
type StreakSummary struct {
	Current            int        `json:"current"`
	Longest            int        `json:"longest"`
	LastSubmissionDate *time.Time `json:"lastSubmissionDate"`
	// Active is false once a day has been missed; Current still shows the
	// stored value until the next successful submission resets it.
	Active bool `json:"active"`
}

// Activity is one entry of the recent activity list
type Activity struct {
	SubmissionID uuid.UUID `json:"submissionId"`
	ProblemID    uuid.UUID `json:"problemId"`
	ProblemTitle string    `json:"problemTitle"`
	Difficulty   string    `json:"difficulty"`
	Language     string    `json:"language"`
	Status       string    `json:"status"`
	Success      bool      `json:"success"`
	Duration     string    `json:"duration"`
	Timestamp    time.Time `json:"timestamp"`
}

// StatsSnapshot is the dashboard view of one user
type StatsSnapshot struct {
	UserID                uuid.UUID        `json:"userId"`
	Username              string           `json:"username"`
	TotalSubmissions      int              `json:"totalSubmissions"`
	SuccessfulSubmissions int              `json:"successfulSubmissions"`
	SuccessRate           string           `json:"successRate"`
	ProblemsSolved        int              `json:"problemsSolved"`
	AverageSolveTime      string           `json:"averageSolveTime"`
	ByDifficulty          DifficultyCounts `json:"byDifficulty"`
	Streak                StreakSummary    `json:"streak"`
	RecentActivity        []Activity       `json:"recentActivity"`
}

// Stats returns the dashboard snapshot for a user
func (r *Reporter) Stats(ctx context.Context, userID uuid.UUID) (*StatsSnapshot, error) {
	user, err := r.users.Get(ctx, userID)
	if err != nil {
		return nil, domain.Persist("get user", err)
	}
	s := user.Statistics

	snap := &StatsSnapshot{
		UserID:                user.ID,
		Username:              user.Username,
		TotalSubmissions:      s.TotalSubmissions,
		SuccessfulSubmissions: s.SuccessfulSubmissions,
		SuccessRate:           fmt.Sprintf("%.2f%%", s.SuccessRate()),
		ProblemsSolved:        s.ProblemsSolvedCount,
		AverageSolveTime:      formatMinutes(s.AverageSolveTime),
		ByDifficulty: DifficultyCounts{
			Easy:   s.EasyCount,
			Medium: s.MediumCount,
			Hard:   s.HardCount,
		},
		Streak: r.summarize(user.Streak),
	}

	snap.RecentActivity, err = r.recentActivity(ctx, userID)
	if err != nil {
		return nil, err
	}
	return snap, nil
}

func (r *Reporter) recentActivity(ctx context.Context, userID uuid.UUID) ([]Activity, error) {
	subs, _, err := r.submissions.ListByUser(ctx, userID, domain.SubmissionQuery{Limit: RecentActivityLimit})
	if err != nil {
		return nil, domain.Persist("list recent submissions", err)
	}

	ids := make([]uuid.UUID, 0, len(subs))
	for _, sub := range subs {
		ids = append(ids, sub.ProblemID)
	}
	problems, err := r.problems.GetMany(ctx, ids)
	if err != nil {
		return nil, domain.Persist("get problems", err)
	}

	out := make([]Activity, 0, len(subs))
	for _, sub := range subs {
		a := Activity{
			SubmissionID: sub.ID,
			ProblemID:    sub.ProblemID,
			Language:     sub.Language,
			Status:       string(sub.Status),
			Success:      sub.Success,
			Duration:     domain.FormatDuration(sub.Duration),
			Timestamp:    sub.Timestamp,
		}
		if p, ok := problems[sub.ProblemID]; ok {
			a.ProblemTitle = p.Title
			a.Difficulty = p.Difficulty.String()
		}
		out = append(out, a)
	}
	return out, nil
}

// DifficultyProgress is solved versus available problems of one difficulty
type DifficultyProgress struct {
	Solved     int    `json:"solved"`
	Total      int    `json:"total"`
	Percentage string `json:"percentage"`
}

// Progress is per-difficulty progress through the catalog
type Progress struct {
	Easy   DifficultyProgress `json:"easy"`
	Medium DifficultyProgress `json:"medium"`
	Hard   DifficultyProgress `json:"hard"`
}

// Progress compares a user's solved counts with the catalog size
func (r *Reporter) Progress(ctx context.Context, userID uuid.UUID) (*Progress, error) {
	user, err := r.users.Get(ctx, userID)
	if err != nil {
		return nil, domain.Persist("get user", err)
	}
	totals, err := r.problems.CountByDifficulty(ctx)
	if err != nil {
		return nil, domain.Persist("count problems", err)
	}

	p := &Progress{}
	for _, d := range domain.Difficulties {
		entry := progressOf(user.Statistics.CountFor(d), totals[d])
		switch d {
		case domain.DifficultyEasy:
			p.Easy = entry
		case domain.DifficultyMedium:
			p.Medium = entry
		case domain.DifficultyHard:
			p.Hard = entry
		}
	}
	return p, nil
}

func progressOf(solved, total int) DifficultyProgress {
	pct := 0.0
	if total > 0 {
		pct = float64(solved) / float64(total) * 100
	}
	return DifficultyProgress{Solved: solved, Total: total, Percentage: fmt.Sprintf("%.2f", pct)}
}

// StreakReport is the streak view with its activity calendar
type StreakReport struct {
	StreakSummary
	WindowDays int           `json:"windowDays"`
	Calendar   []CalendarDay `json:"calendar"`
}

// Streak returns the stored streak and the calendar for the last
// windowDays days (365 when not positive).
func (r *Reporter) Streak(ctx context.Context, userID uuid.UUID, windowDays int) (*StreakReport, error) {
	user, err := r.users.Get(ctx, userID)
	if err != nil {
		return nil, domain.Persist("get user", err)
	}
	if windowDays <= 0 {
		windowDays = DefaultCalendarDays
	}
	cal, err := r.calendar(ctx, userID, windowDays)
	if err != nil {
		return nil, err
	}
	return &StreakReport{
		StreakSummary: r.summarize(user.Streak),
		WindowDays:    windowDays,
		Calendar:      cal,
	}, nil
}

func (r *Reporter) summarize(s domain.Streak) StreakSummary {
	return StreakSummary{
		Current:            s.Current,
		Longest:            s.Longest,
		LastSubmissionDate: s.LastSubmissionDate,
		Active:             streak.ContinuesStreak(s.LastSubmissionDate, r.now(), r.loc),
	}
}

func formatMinutes(ms float64) string {
	if ms <= 0 {
		return "N/A"
	}
	return fmt.Sprintf("%.2f minutes", ms/60000)
}
