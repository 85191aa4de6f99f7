package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gosimple/slug"

	"github.com/felixgeelhaar/solvetrack/internal/queue"
)

type submitOptions struct {
	problem  string
	status   string
	passed   int
	total    int
	language string
	file     string
	elapsed  time.Duration
	details  string
	useQueue bool
	wait     time.Duration
}

// cmdSubmit records a judged submission for the default user, either
// directly over HTTP or as a verdict on the RabbitMQ queue.
func (c *cli) cmdSubmit(args []string) error {
	opts, err := parseSubmitArgs(args)
	if err != nil {
		return err
	}
	userID, err := c.userArg(nil)
	if err != nil {
		return err
	}
	uid, err := uuid.Parse(userID)
	if err != nil {
		return fmt.Errorf("default user %q is not a user id", userID)
	}

	problemID, err := c.resolveProblem(opts.problem)
	if err != nil {
		return err
	}

	v := &queue.Verdict{
		UserID:      uid,
		ProblemID:   problemID,
		Language:    opts.language,
		Status:      opts.status,
		PassedCount: opts.passed,
		TotalTests:  opts.total,
	}
	if opts.file != "" {
		code, err := os.ReadFile(opts.file)
		if err != nil {
			return fmt.Errorf("read solution: %w", err)
		}
		v.Code = string(code)
		if v.Language == "" {
			v.Language = languageOf(opts.file)
		}
	}
	if opts.elapsed > 0 {
		start := time.Now().Add(-opts.elapsed)
		v.StartTime = &start
	}
	if opts.details != "" {
		if !json.Valid([]byte(opts.details)) {
			return fmt.Errorf("--details must be valid JSON")
		}
		v.Details = json.RawMessage(opts.details)
	}

	if opts.useQueue {
		return c.submitViaQueue(v, opts.wait)
	}
	return c.submitViaHTTP(v)
}

func parseSubmitArgs(args []string) (*submitOptions, error) {
	opts := &submitOptions{}
	fs := flag.NewFlagSet("submit", flag.ContinueOnError)
	fs.StringVar(&opts.status, "status", "", "verdict: pass, fail, error or pending")
	fs.IntVar(&opts.passed, "passed", 0, "tests passed")
	fs.IntVar(&opts.total, "total", 0, "tests run")
	fs.StringVar(&opts.language, "language", "", "solution language (defaults from --file)")
	fs.StringVar(&opts.file, "file", "", "solution source file")
	fs.DurationVar(&opts.elapsed, "elapsed", 0, "time spent solving, e.g. 12m")
	fs.StringVar(&opts.details, "details", "", "judge details as JSON")
	fs.BoolVar(&opts.useQueue, "queue", false, "publish through RabbitMQ instead of HTTP")
	fs.DurationVar(&opts.wait, "wait", 30*time.Second, "how long to wait for a queued verdict")

	// Allow the problem before or after the flags.
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		opts.problem = args[0]
		args = args[1:]
	}
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if opts.problem == "" && fs.NArg() > 0 {
		opts.problem = fs.Arg(0)
	}
	if opts.problem == "" {
		return nil, fmt.Errorf("usage: solvetrack submit <problem> --status pass --passed N --total N [--file path]")
	}
	if opts.status == "" && opts.total == 0 {
		return nil, fmt.Errorf("give --status or --passed/--total")
	}
	return opts, nil
}

// resolveProblem accepts a problem id, slug or title
func (c *cli) resolveProblem(ref string) (uuid.UUID, error) {
	if id, err := uuid.Parse(ref); err == nil {
		return id, nil
	}
	var p struct {
		ID uuid.UUID `json:"id"`
	}
	if err := c.api.get("/v1/problems/"+url.PathEscape(slug.Make(ref)), &p); err != nil {
		return uuid.Nil, fmt.Errorf("find problem %q: %w", ref, err)
	}
	return p.ID, nil
}

func (c *cli) submitViaHTTP(v *queue.Verdict) error {
	req := map[string]any{
		"problemId":   v.ProblemID,
		"code":        v.Code,
		"language":    v.Language,
		"status":      v.Status,
		"passedCount": v.PassedCount,
		"totalTests":  v.TotalTests,
	}
	if v.StartTime != nil {
		req["startTime"] = v.StartTime
	}
	if v.Details != nil {
		req["details"] = v.Details
	}

	var res struct {
		Submission struct {
			ID     string `json:"id"`
			Status string `json:"status"`
		} `json:"submission"`
		Stats struct {
			Duration string `json:"duration"`
			Success  bool   `json:"success"`
		} `json:"stats"`
		FirstSolve    bool   `json:"firstSolve"`
		StreakUpdated bool   `json:"streakUpdated"`
		StreakError   string `json:"streakError"`
	}
	if err := c.api.postJSON("/v1/users/"+v.UserID.String()+"/submissions", req, &res); err != nil {
		return err
	}

	fmt.Fprintf(c.out, "Recorded %s (%s, %s)\n", res.Submission.ID, res.Submission.Status, res.Stats.Duration)
	c.printOutcome(res.Stats.Success, res.FirstSolve, res.StreakUpdated, res.StreakError)
	return nil
}

func (c *cli) submitViaQueue(v *queue.Verdict, wait time.Duration) error {
	if c.cfg.Client.RabbitMQURL == "" {
		return fmt.Errorf("--queue needs client.rabbitmq_url in the config or RABBITMQ_URL")
	}
	conn, err := queue.NewConnection(c.cfg.Client.RabbitMQURL)
	if err != nil {
		return fmt.Errorf("connect rabbitmq: %w", err)
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), wait)
	defer cancel()

	// Subscribe before publishing so the event cannot be missed.
	v.ID = uuid.New()
	done := make(chan *queue.Recorded, 1)
	events := queue.NewRecordedConsumer(conn)
	events.Subscribe(v.ID.String(), func(r *queue.Recorded) {
		select {
		case done <- r:
		default:
		}
	})
	if err := events.Start(ctx); err != nil {
		return err
	}
	defer events.Stop()

	if err := queue.NewProducer(conn).PublishVerdict(ctx, v); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "Published verdict %s, waiting for the daemon...\n", v.ID)

	select {
	case r := <-done:
		if r.Status != queue.StatusRecorded {
			return fmt.Errorf("verdict %s: %s", r.Status, r.Error)
		}
		fmt.Fprintf(c.out, "Recorded %s in %s\n", r.SubmissionID, r.Duration.Round(time.Millisecond))
		c.printOutcome(r.Success, r.FirstSolve, r.StreakUpdated, "")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("no result for verdict %s within %s (it stays queued)", v.ID, wait)
	}
}

func (c *cli) printOutcome(success, firstSolve, streakUpdated bool, streakErr string) {
	switch {
	case firstSolve:
		fmt.Fprintln(c.out, "✓ Solved for the first time")
	case success:
		fmt.Fprintln(c.out, "✓ Passed")
	default:
		fmt.Fprintln(c.out, "✗ Not solved")
	}
	if streakUpdated {
		fmt.Fprintln(c.out, "Streak updated")
	}
	if streakErr != "" {
		fmt.Fprintf(c.out, "⚠ Streak not updated: %s\n", streakErr)
	}
}

var languageByExt = map[string]string{
	".go":   "go",
	".py":   "python",
	".js":   "javascript",
	".ts":   "typescript",
	".java": "java",
	".rs":   "rust",
	".c":    "c",
	".cpp":  "cpp",
	".cc":   "cpp",
	".rb":   "ruby",
	".kt":   "kotlin",
	".cs":   "csharp",
}

func languageOf(path string) string {
	if lang, ok := languageByExt[strings.ToLower(filepath.Ext(path))]; ok {
		return lang
	}
	return strings.TrimPrefix(filepath.Ext(path), ".")
}
