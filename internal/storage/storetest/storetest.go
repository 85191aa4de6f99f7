// Package storetest holds a conformance suite that every domain.Store
// backend runs from its own tests.
package storetest

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/solvetrack/internal/domain"
)

// Factory returns an empty store. The suite closes it.
type Factory func(t *testing.T) domain.Store

// Run executes every conformance test against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s domain.Store)
	}{
		{"UserCreateGet", testUserCreateGet},
		{"UserDuplicate", testUserDuplicate},
		{"UserNotFound", testUserNotFound},
		{"UpdateStatistics", testUpdateStatistics},
		{"UpdateStreakKeepsStatistics", testUpdateStreakKeepsStatistics},
		{"ConcurrentUpdates", testConcurrentUpdates},
		{"Top", testTop},
		{"GetMany", testGetMany},
		{"Problems", testProblems},
		{"Submissions", testSubmissions},
		{"SuccessTimes", testSuccessTimes},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newStore(t)
			t.Cleanup(func() { s.Close() })
			tt.fn(t, s)
		})
	}
}

// MustUser creates and stores a user.
func MustUser(t *testing.T, s domain.Store, name string) *domain.User {
	t.Helper()
	u, err := domain.NewUser(name)
	if err != nil {
		t.Fatalf("NewUser(%q) error = %v", name, err)
	}
	if err := s.Users().Create(context.Background(), u); err != nil {
		t.Fatalf("Create user %q error = %v", name, err)
	}
	return u
}

// MustProblem creates and stores a problem.
func MustProblem(t *testing.T, s domain.Store, title, difficulty string) *domain.Problem {
	t.Helper()
	p, err := domain.NewProblem(title, difficulty)
	if err != nil {
		t.Fatalf("NewProblem(%q) error = %v", title, err)
	}
	if err := s.Problems().Create(context.Background(), p); err != nil {
		t.Fatalf("Create problem %q error = %v", title, err)
	}
	return p
}

func testUserCreateGet(t *testing.T, s domain.Store) {
	ctx := context.Background()
	u := MustUser(t, s, "alice")

	got, err := s.Users().Get(ctx, u.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Username != "alice" {
		t.Errorf("Username = %q; want alice", got.Username)
	}
	if got.Statistics != (domain.Statistics{}) {
		t.Errorf("Statistics = %+v; want zero", got.Statistics)
	}
	if got.Streak.LastSubmissionDate != nil {
		t.Errorf("LastSubmissionDate = %v; want nil", got.Streak.LastSubmissionDate)
	}
	if len(got.SolvedProblems) != 0 {
		t.Errorf("SolvedProblems = %v; want empty", got.SolvedProblems)
	}
}

func testUserDuplicate(t *testing.T, s domain.Store) {
	MustUser(t, s, "alice")
	dup, _ := domain.NewUser("alice")
	err := s.Users().Create(context.Background(), dup)
	if !errors.Is(err, domain.ErrConflict) {
		t.Errorf("Create duplicate error = %v; want ErrConflict", err)
	}
}

func testUserNotFound(t *testing.T, s domain.Store) {
	ctx := context.Background()
	missing := uuid.New()

	if _, err := s.Users().Get(ctx, missing); !errors.Is(err, domain.ErrUserNotFound) {
		t.Errorf("Get() error = %v; want ErrUserNotFound", err)
	}
	err := s.Users().UpdateStatistics(ctx, missing, func(*domain.User) error { return nil })
	if !errors.Is(err, domain.ErrUserNotFound) {
		t.Errorf("UpdateStatistics() error = %v; want ErrUserNotFound", err)
	}
	err = s.Users().UpdateStreak(ctx, missing, func(*domain.Streak) error { return nil })
	if !errors.Is(err, domain.ErrUserNotFound) {
		t.Errorf("UpdateStreak() error = %v; want ErrUserNotFound", err)
	}
}

func testUpdateStatistics(t *testing.T, s domain.Store) {
	ctx := context.Background()
	u := MustUser(t, s, "alice")
	p := MustProblem(t, s, "Two Sum", "Easy")

	err := s.Users().UpdateStatistics(ctx, u.ID, func(u *domain.User) error {
		u.Statistics.TotalSubmissions = 1
		u.Statistics.SuccessfulSubmissions = 1
		u.Statistics.ProblemsSolvedCount = 1
		u.Statistics.EasyCount = 1
		u.Statistics.AverageSolveTime = 1500
		u.SolvedProblems.Add(p.ID)
		return nil
	})
	if err != nil {
		t.Fatalf("UpdateStatistics() error = %v", err)
	}

	got, err := s.Users().Get(ctx, u.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Statistics.EasyCount != 1 || got.Statistics.AverageSolveTime != 1500 {
		t.Errorf("Statistics = %+v", got.Statistics)
	}
	if !got.SolvedProblems.Has(p.ID) {
		t.Errorf("SolvedProblems missing %s", p.ID)
	}

	// fn errors abort the write.
	boom := errors.New("boom")
	err = s.Users().UpdateStatistics(ctx, u.ID, func(u *domain.User) error {
		u.Statistics.TotalSubmissions = 99
		return boom
	})
	if !errors.Is(err, boom) {
		t.Errorf("UpdateStatistics() error = %v; want boom", err)
	}
	got, _ = s.Users().Get(ctx, u.ID)
	if got.Statistics.TotalSubmissions != 1 {
		t.Errorf("TotalSubmissions = %d after aborted update; want 1", got.Statistics.TotalSubmissions)
	}
}

func testUpdateStreakKeepsStatistics(t *testing.T, s domain.Store) {
	ctx := context.Background()
	u := MustUser(t, s, "alice")
	day := time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC)

	err := s.Users().UpdateStatistics(ctx, u.ID, func(u *domain.User) error {
		u.Statistics.TotalSubmissions = 3
		return nil
	})
	if err != nil {
		t.Fatalf("UpdateStatistics() error = %v", err)
	}
	err = s.Users().UpdateStreak(ctx, u.ID, func(st *domain.Streak) error {
		st.Current = 2
		st.Longest = 4
		st.LastSubmissionDate = &day
		return nil
	})
	if err != nil {
		t.Fatalf("UpdateStreak() error = %v", err)
	}

	got, err := s.Users().Get(ctx, u.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Statistics.TotalSubmissions != 3 {
		t.Errorf("TotalSubmissions = %d; want 3", got.Statistics.TotalSubmissions)
	}
	if got.Streak.Current != 2 || got.Streak.Longest != 4 {
		t.Errorf("Streak = %+v; want current 2 longest 4", got.Streak)
	}
	if got.Streak.LastSubmissionDate == nil || !got.Streak.LastSubmissionDate.Equal(day) {
		t.Errorf("LastSubmissionDate = %v; want %v", got.Streak.LastSubmissionDate, day)
	}
}

func testConcurrentUpdates(t *testing.T, s domain.Store) {
	ctx := context.Background()
	u := MustUser(t, s, "alice")

	const n = 20
	var wg sync.WaitGroup
	errs := make(chan error, 2*n)
	for range n {
		wg.Add(2)
		go func() {
			defer wg.Done()
			errs <- s.Users().UpdateStatistics(ctx, u.ID, func(u *domain.User) error {
				u.Statistics.TotalSubmissions++
				return nil
			})
		}()
		go func() {
			defer wg.Done()
			errs <- s.Users().UpdateStreak(ctx, u.ID, func(st *domain.Streak) error {
				st.Longest++
				return nil
			})
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent update error = %v", err)
		}
	}

	got, err := s.Users().Get(ctx, u.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Statistics.TotalSubmissions != n {
		t.Errorf("TotalSubmissions = %d; want %d", got.Statistics.TotalSubmissions, n)
	}
	if got.Streak.Longest != n {
		t.Errorf("Longest = %d; want %d", got.Streak.Longest, n)
	}
}

func setSolved(t *testing.T, s domain.Store, u *domain.User, difficulty string, n int) {
	t.Helper()
	var ids []uuid.UUID
	for range n {
		ids = append(ids, MustProblem(t, s, u.Username+" "+uuid.NewString()[:8], difficulty).ID)
	}
	err := s.Users().UpdateStatistics(context.Background(), u.ID, func(u *domain.User) error {
		u.Statistics.TotalSubmissions += n
		u.Statistics.SuccessfulSubmissions += n
		u.Statistics.ProblemsSolvedCount += n
		u.Statistics.EasyCount += n
		for _, id := range ids {
			u.SolvedProblems.Add(id)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("UpdateStatistics() error = %v", err)
	}
}

func testTop(t *testing.T, s domain.Store) {
	ctx := context.Background()
	a := MustUser(t, s, "a")
	time.Sleep(5 * time.Millisecond)
	b := MustUser(t, s, "b")
	time.Sleep(5 * time.Millisecond)
	c := MustUser(t, s, "c")

	setSolved(t, s, a, "Easy", 1)
	setSolved(t, s, b, "Easy", 2)
	setSolved(t, s, c, "Easy", 2)

	top, err := s.Users().Top(ctx, 0)
	if err != nil {
		t.Fatalf("Top() error = %v", err)
	}
	want := []uuid.UUID{b.ID, c.ID, a.ID}
	if len(top) != len(want) {
		t.Fatalf("Top() = %d users; want %d", len(top), len(want))
	}
	for i, id := range want {
		if top[i].ID != id {
			t.Errorf("Top()[%d] = %s; want %s", i, top[i].Username, id)
		}
	}

	top, err = s.Users().Top(ctx, 2)
	if err != nil {
		t.Fatalf("Top(2) error = %v", err)
	}
	if len(top) != 2 || top[0].ID != b.ID {
		t.Errorf("Top(2) returned %d users", len(top))
	}
}

func testGetMany(t *testing.T, s domain.Store) {
	a := MustUser(t, s, "a")
	b := MustUser(t, s, "b")
	got, err := s.Users().GetMany(context.Background(), []uuid.UUID{a.ID, uuid.New(), b.ID})
	if err != nil {
		t.Fatalf("GetMany() error = %v", err)
	}
	if len(got) != 2 {
		t.Errorf("GetMany() = %d users; want 2", len(got))
	}
}

func testProblems(t *testing.T, s domain.Store) {
	ctx := context.Background()
	p := MustProblem(t, s, "Two Sum", "Easy")
	MustProblem(t, s, "LRU Cache", "Medium")
	MustProblem(t, s, "Word Ladder", "Medium")

	got, err := s.Problems().Get(ctx, p.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Difficulty != domain.DifficultyEasy || got.Slug != "two-sum" {
		t.Errorf("Get() = %+v", got)
	}

	bySlug, err := s.Problems().GetBySlug(ctx, "two-sum")
	if err != nil || bySlug.ID != p.ID {
		t.Errorf("GetBySlug() = %v, %v", bySlug, err)
	}
	if _, err := s.Problems().Get(ctx, uuid.New()); !errors.Is(err, domain.ErrProblemNotFound) {
		t.Errorf("Get(missing) error = %v; want ErrProblemNotFound", err)
	}

	dup, _ := domain.NewProblem("Two Sum", "Hard")
	if err := s.Problems().Create(ctx, dup); !errors.Is(err, domain.ErrConflict) {
		t.Errorf("Create duplicate slug error = %v; want ErrConflict", err)
	}

	bad := &domain.Problem{ID: uuid.New(), Title: "Bad", Slug: "bad", Difficulty: domain.Difficulty(9), CreatedAt: time.Now()}
	if err := s.Problems().Create(ctx, bad); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("Create bad difficulty error = %v; want ErrInvalidInput", err)
	}

	counts, err := s.Problems().CountByDifficulty(ctx)
	if err != nil {
		t.Fatalf("CountByDifficulty() error = %v", err)
	}
	if counts[domain.DifficultyEasy] != 1 || counts[domain.DifficultyMedium] != 2 || counts[domain.DifficultyHard] != 0 {
		t.Errorf("CountByDifficulty() = %v", counts)
	}

	many, err := s.Problems().GetMany(ctx, []uuid.UUID{p.ID, uuid.New()})
	if err != nil {
		t.Fatalf("GetMany() error = %v", err)
	}
	if len(many) != 1 || many[p.ID] == nil {
		t.Errorf("GetMany() = %v", many)
	}
}

func newSubmission(t *testing.T, u *domain.User, p *domain.Problem, status string, at time.Time) *domain.Submission {
	t.Helper()
	start := at.Add(-2 * time.Second)
	passed := 1
	if status == "pass" {
		passed = 3
	}
	sub, err := domain.NewSubmission(domain.SubmissionInput{
		UserID:      u.ID,
		ProblemID:   p.ID,
		Language:    "go",
		Code:        "package main",
		Status:      status,
		PassedCount: passed,
		TotalTests:  3,
		StartTime:   &start,
		Details:     json.RawMessage(`{"runtime":"go1.23"}`),
	}, at)
	if err != nil {
		t.Fatalf("NewSubmission() error = %v", err)
	}
	return sub
}

func testSubmissions(t *testing.T, s domain.Store) {
	ctx := context.Background()
	u := MustUser(t, s, "alice")
	p := MustProblem(t, s, "Two Sum", "Easy")
	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	statuses := []string{"pass", "fail", "pass", "error", "pass"}
	for i, st := range statuses {
		sub := newSubmission(t, u, p, st, base.Add(time.Duration(i)*time.Hour))
		if err := s.Submissions().Create(ctx, sub); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}

	page, total, err := s.Submissions().ListByUser(ctx, u.ID, domain.SubmissionQuery{Limit: 2})
	if err != nil {
		t.Fatalf("ListByUser() error = %v", err)
	}
	if total != 5 || len(page) != 2 {
		t.Fatalf("ListByUser() = %d items, total %d; want 2, 5", len(page), total)
	}
	if !page[0].Timestamp.Equal(base.Add(4 * time.Hour)) {
		t.Errorf("first item timestamp = %v; want newest", page[0].Timestamp)
	}
	if page[0].Duration != 2000 || !page[0].Success {
		t.Errorf("first item = %+v", page[0])
	}
	if string(page[0].Details) == "" {
		t.Errorf("Details lost")
	}

	pass := domain.StatusPass
	page, total, err = s.Submissions().ListByUser(ctx, u.ID, domain.SubmissionQuery{Status: &pass, Offset: 2, Limit: 10})
	if err != nil {
		t.Fatalf("ListByUser(pass) error = %v", err)
	}
	if total != 3 || len(page) != 1 {
		t.Errorf("ListByUser(pass, offset 2) = %d items, total %d; want 1, 3", len(page), total)
	}

	page, total, err = s.Submissions().ListByUser(ctx, uuid.New(), domain.SubmissionQuery{Limit: 10})
	if err != nil || total != 0 || len(page) != 0 {
		t.Errorf("ListByUser(unknown) = %d, %d, %v", len(page), total, err)
	}
}

func testSuccessTimes(t *testing.T, s domain.Store) {
	ctx := context.Background()
	u := MustUser(t, s, "alice")
	p := MustProblem(t, s, "Two Sum", "Easy")
	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	for i, st := range []string{"pass", "fail", "pass", "pass"} {
		sub := newSubmission(t, u, p, st, base.AddDate(0, 0, i))
		if err := s.Submissions().Create(ctx, sub); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}

	times, err := s.Submissions().SuccessTimes(ctx, u.ID, base.AddDate(0, 0, 1))
	if err != nil {
		t.Fatalf("SuccessTimes() error = %v", err)
	}
	if len(times) != 2 {
		t.Fatalf("SuccessTimes() = %v; want 2 entries", times)
	}
	if !times[0].Equal(base.AddDate(0, 0, 2)) {
		t.Errorf("SuccessTimes()[0] = %v; want %v", times[0], base.AddDate(0, 0, 2))
	}
}
