package main

import (
	"flag"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/felixgeelhaar/solvetrack/internal/report"
)

// cmdStats shows the statistics dashboard
func (c *cli) cmdStats(args []string) error {
	id, err := c.userArg(args)
	if err != nil {
		return err
	}

	var s report.StatsSnapshot
	if err := c.api.get("/v1/users/"+url.PathEscape(id)+"/stats", &s); err != nil {
		return err
	}

	fmt.Fprintf(c.out, "Statistics for %s\n", s.Username)
	fmt.Fprintln(c.out, strings.Repeat("=", 15+len(s.Username)))
	fmt.Fprintf(c.out, "Submissions:     %d (%d successful)\n", s.TotalSubmissions, s.SuccessfulSubmissions)
	fmt.Fprintf(c.out, "Success Rate:    %s\n", s.SuccessRate)
	fmt.Fprintf(c.out, "Problems Solved: %d\n", s.ProblemsSolved)
	fmt.Fprintf(c.out, "Avg Solve Time:  %s\n", s.AverageSolveTime)
	fmt.Fprintf(c.out, "By Difficulty:   easy %d / medium %d / hard %d\n",
		s.ByDifficulty.Easy, s.ByDifficulty.Medium, s.ByDifficulty.Hard)
	printStreakSummary(c.out, s.Streak)

	if len(s.RecentActivity) > 0 {
		fmt.Fprintln(c.out, "\nRecent Activity")
		fmt.Fprintln(c.out, "---------------")
		for _, a := range s.RecentActivity {
			mark := "✗"
			if a.Success {
				mark = "✓"
			}
			fmt.Fprintf(c.out, "%s %s  %-30s %-6s %-8s %s\n",
				mark, a.Timestamp.Local().Format("2006-01-02 15:04"), a.ProblemTitle, a.Difficulty, a.Language, a.Duration)
		}
	}
	return nil
}

func printStreakSummary(w io.Writer, s report.StreakSummary) {
	state := "inactive"
	if s.Active {
		state = "active"
	}
	fmt.Fprintf(w, "Streak:          %d days (longest %d, %s)\n", s.Current, s.Longest, state)
	if s.LastSubmissionDate != nil {
		fmt.Fprintf(w, "Last Solve Day:  %s\n", s.LastSubmissionDate.Format("2006-01-02"))
	}
}

// cmdStreak shows the streak and an activity calendar. Arguments are an
// optional user and an optional window in days, in either order.
func (c *cli) cmdStreak(args []string) error {
	var user []string
	days := 0
	for _, arg := range args {
		if n, err := strconv.Atoi(arg); err == nil {
			days = n
			continue
		}
		user = append(user, arg)
	}
	id, err := c.userArg(user)
	if err != nil {
		return err
	}

	path := "/v1/users/" + url.PathEscape(id) + "/streak"
	if days > 0 {
		path += "?days=" + strconv.Itoa(days)
	}

	var s report.StreakReport
	if err := c.api.get(path, &s); err != nil {
		return err
	}

	printStreakSummary(c.out, s.StreakSummary)
	fmt.Fprintf(c.out, "\nActivity (last %d days)\n", s.WindowDays)
	renderCalendar(c.out, s.Calendar)
	return nil
}

// renderCalendar prints one row per week, darker cells for busier days
func renderCalendar(w io.Writer, days []report.CalendarDay) {
	if len(days) == 0 {
		fmt.Fprintln(w, "(no activity)")
		return
	}

	// Pad the first row so columns line up with weekdays.
	pad := 0
	if first, err := time.Parse("2006-01-02", days[0].Date); err == nil {
		pad = (int(first.Weekday()) + 6) % 7
	}

	fmt.Fprintln(w, "           M T W T F S S")
	var row strings.Builder
	rowStart := days[0].Date
	row.WriteString(strings.Repeat("  ", pad))
	col := pad
	for _, d := range days {
		if col == 0 {
			rowStart = d.Date
		}
		row.WriteString(heatCell(d.Count))
		row.WriteByte(' ')
		col++
		if col == 7 {
			fmt.Fprintf(w, "%s %s\n", rowStart, strings.TrimRight(row.String(), " "))
			row.Reset()
			col = 0
		}
	}
	if col > 0 {
		fmt.Fprintf(w, "%s %s\n", rowStart, strings.TrimRight(row.String(), " "))
	}
}

func heatCell(count int) string {
	switch {
	case count <= 0:
		return "·"
	case count == 1:
		return "░"
	case count <= 3:
		return "▒"
	case count <= 5:
		return "▓"
	default:
		return "█"
	}
}

// cmdProgress shows solved problems per difficulty
func (c *cli) cmdProgress(args []string) error {
	id, err := c.userArg(args)
	if err != nil {
		return err
	}

	var p report.Progress
	if err := c.api.get("/v1/users/"+url.PathEscape(id)+"/progress", &p); err != nil {
		return err
	}

	fmt.Fprintln(c.out, "Progress")
	fmt.Fprintln(c.out, "========")
	for _, row := range []struct {
		name string
		p    report.DifficultyProgress
	}{{"Easy", p.Easy}, {"Medium", p.Medium}, {"Hard", p.Hard}} {
		ratio := 0.0
		if row.p.Total > 0 {
			ratio = float64(row.p.Solved) / float64(row.p.Total)
		}
		fmt.Fprintf(c.out, "%-7s %s %d/%d (%s%%)\n",
			row.name, renderProgressBar(ratio, 20), row.p.Solved, row.p.Total, row.p.Percentage)
	}
	return nil
}

// cmdLeaderboard shows the top users
func (c *cli) cmdLeaderboard(args []string) error {
	path := "/v1/leaderboard"
	if len(args) > 0 {
		limit, err := strconv.Atoi(args[0])
		if err != nil || limit <= 0 {
			return fmt.Errorf("invalid limit %q", args[0])
		}
		path += "?limit=" + strconv.Itoa(limit)
	}

	var lb report.Leaderboard
	if err := c.api.get(path, &lb); err != nil {
		return err
	}

	fmt.Fprintf(c.out, "Leaderboard (%d users)\n", lb.TotalUsers)
	fmt.Fprintln(c.out, "----------------------")
	if len(lb.Entries) == 0 {
		fmt.Fprintln(c.out, "(no users yet)")
		return nil
	}
	fmt.Fprintf(c.out, "%4s  %-20s %7s %7s %9s\n", "Rank", "User", "Solved", "Streak", "Success")
	for _, e := range lb.Entries {
		fmt.Fprintf(c.out, "%4d  %-20s %7d %7d %9s\n",
			e.Rank, e.Username, e.ProblemsSolved, e.CurrentStreak, e.SuccessRate)
	}
	return nil
}

type historyEntry struct {
	ID          string    `json:"id"`
	ProblemID   string    `json:"problemId"`
	Language    string    `json:"language"`
	Status      string    `json:"status"`
	PassedCount int       `json:"passedCount"`
	TotalTests  int       `json:"totalTests"`
	DurationMs  int64     `json:"durationMs"`
	Success     bool      `json:"success"`
	Timestamp   time.Time `json:"timestamp"`
}

type historyPage struct {
	Submissions []historyEntry `json:"submissions"`
	Pagination  struct {
		Page       int  `json:"page"`
		Total      int  `json:"total"`
		TotalPages int  `json:"totalPages"`
		HasMore    bool `json:"hasMore"`
	} `json:"pagination"`
}

// cmdHistory lists a user's submissions, newest first
func (c *cli) cmdHistory(args []string) error {
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	fs.SetOutput(c.out)
	page := fs.Int("page", 1, "page number")
	limit := fs.Int("limit", 20, "submissions per page")
	status := fs.String("status", "", "only submissions with this status")
	if err := fs.Parse(args); err != nil {
		return err
	}
	id, err := c.userArg(fs.Args())
	if err != nil {
		return err
	}

	q := url.Values{}
	q.Set("page", strconv.Itoa(*page))
	q.Set("limit", strconv.Itoa(*limit))
	if *status != "" {
		q.Set("status", *status)
	}

	var p historyPage
	if err := c.api.get("/v1/users/"+url.PathEscape(id)+"/submissions?"+q.Encode(), &p); err != nil {
		return err
	}

	if len(p.Submissions) == 0 {
		fmt.Fprintln(c.out, "No submissions")
		return nil
	}
	for _, s := range p.Submissions {
		fmt.Fprintf(c.out, "%s  %-7s %3d/%-3d %-8s %8s  %s\n",
			s.Timestamp.Local().Format("2006-01-02 15:04"), s.Status, s.PassedCount, s.TotalTests,
			s.Language, formatMillis(s.DurationMs), s.ProblemID)
	}
	fmt.Fprintf(c.out, "\nPage %d of %d (%d total)\n", p.Pagination.Page, max(p.Pagination.TotalPages, 1), p.Pagination.Total)
	return nil
}

func formatMillis(ms int64) string {
	if ms <= 0 {
		return "N/A"
	}
	return fmt.Sprintf("%.2fs", float64(ms)/1000)
}
