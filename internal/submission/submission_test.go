package submission

import (
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/solvetrack/internal/domain"
	"github.com/felixgeelhaar/solvetrack/internal/keylock"
	"github.com/felixgeelhaar/solvetrack/internal/metrics"
	"github.com/felixgeelhaar/solvetrack/internal/stats"
	"github.com/felixgeelhaar/solvetrack/internal/storage/memory"
	"github.com/felixgeelhaar/solvetrack/internal/streak"
)

// flakyUsers fails the first failStreak streak writes and, when set, every
// statistics write.
type flakyUsers struct {
	domain.UserRepository
	failStreak int32
	failStats  bool
	streaks    atomic.Int32
}

func (f *flakyUsers) UpdateStreak(ctx context.Context, id uuid.UUID, fn func(*domain.Streak) error) error {
	if f.streaks.Add(1) <= f.failStreak {
		return &domain.PersistenceError{Op: "update streak", Err: errors.New("deadlock detected")}
	}
	return f.UserRepository.UpdateStreak(ctx, id, fn)
}

func (f *flakyUsers) UpdateStatistics(ctx context.Context, id uuid.UUID, fn func(*domain.User) error) error {
	if f.failStats {
		return errors.New("disk I/O error")
	}
	return f.UserRepository.UpdateStatistics(ctx, id, fn)
}

type fixture struct {
	store    *memory.Store
	users    *flakyUsers
	service  *Service
	recorder *Recorder
	user     *domain.User
	easy     *domain.Problem
	hard     *domain.Problem
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	store := memory.NewStore()
	users := &flakyUsers{UserRepository: store.Users()}

	user, _ := domain.NewUser("ada")
	if err := users.Create(ctx, user); err != nil {
		t.Fatalf("Create(user) error = %v", err)
	}
	easy, _ := domain.NewProblem("P1", "Easy")
	hard, _ := domain.NewProblem("P2", "Hard")
	for _, p := range []*domain.Problem{easy, hard} {
		if err := store.Problems().Create(ctx, p); err != nil {
			t.Fatalf("Create(problem) error = %v", err)
		}
	}

	locks := keylock.New()
	service := NewService(users, store.Problems(), store.Submissions())
	recorder := NewRecorder(
		service,
		stats.NewAggregator(users, store.Problems(), locks),
		streak.NewTracker(users, locks, time.UTC),
		WithMetrics(metrics.New()),
		WithRetry(RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}),
	)
	return &fixture{store: store, users: users, service: service, recorder: recorder, user: user, easy: easy, hard: hard}
}

func (f *fixture) input(problem *domain.Problem, status string) domain.SubmissionInput {
	return domain.SubmissionInput{
		UserID:    f.user.ID,
		ProblemID: problem.ID,
		Language:  "go",
		Code:      "package main",
		Status:    status,
	}
}

func TestRecorder_Record(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	start := time.Now().Add(-2 * time.Minute)

	in := f.input(f.easy, "pass")
	in.StartTime = &start
	res, err := f.recorder.Record(ctx, in)
	if err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if !res.Submission.Success || !res.Outcome.Applied || !res.Outcome.FirstSolve {
		t.Errorf("Result = %+v, want successful first solve", res)
	}
	if !res.StreakApplied || res.StreakErr != nil {
		t.Errorf("StreakApplied = %v, StreakErr = %v; want applied", res.StreakApplied, res.StreakErr)
	}

	got, _ := f.store.Users().Get(ctx, f.user.ID)
	if got.Statistics.ProblemsSolvedCount != 1 || got.Statistics.EasyCount != 1 {
		t.Errorf("Statistics = %+v, want one easy solve", got.Statistics)
	}
	if got.Statistics.AverageSolveTime < 119000 {
		t.Errorf("AverageSolveTime = %v, want about 120000", got.Statistics.AverageSolveTime)
	}
	if got.Streak.Current != 1 || got.Streak.LastSubmissionDate == nil {
		t.Errorf("Streak = %+v, want current 1", got.Streak)
	}
}

func TestRecorder_FailureSkipsStreak(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	res, err := f.recorder.Record(ctx, f.input(f.hard, "fail"))
	if err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if res.Submission.Success || res.StreakApplied {
		t.Errorf("Result = %+v, want unsuccessful without streak", res)
	}
	got, _ := f.store.Users().Get(ctx, f.user.ID)
	if got.Statistics.TotalSubmissions != 1 || got.Statistics.SuccessfulSubmissions != 0 {
		t.Errorf("Statistics = %+v, want 1 total 0 successful", got.Statistics)
	}
	if got.Streak.Current != 0 {
		t.Errorf("Streak.Current = %d, want 0", got.Streak.Current)
	}
}

func TestRecorder_StreakRetriedThenSucceeds(t *testing.T) {
	f := newFixture(t)
	f.users.failStreak = 2

	res, err := f.recorder.Record(context.Background(), f.input(f.easy, "pass"))
	if err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if !res.StreakApplied || res.StreakErr != nil {
		t.Errorf("StreakApplied = %v, StreakErr = %v; want applied after retry", res.StreakApplied, res.StreakErr)
	}
	if n := f.users.streaks.Load(); n != 3 {
		t.Errorf("streak attempts = %d, want 3", n)
	}
}

func TestRecorder_StreakFailureIsNotFatal(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.users.failStreak = 100

	res, err := f.recorder.Record(ctx, f.input(f.easy, "pass"))
	if err != nil {
		t.Fatalf("Record() error = %v, want nil", err)
	}
	if res.StreakApplied {
		t.Error("StreakApplied = true, want false")
	}
	if !errors.Is(res.StreakErr, domain.ErrPersistence) {
		t.Errorf("StreakErr = %v, want ErrPersistence", res.StreakErr)
	}

	got, _ := f.store.Users().Get(ctx, f.user.ID)
	if got.Statistics.ProblemsSolvedCount != 1 {
		t.Errorf("statistics should persist despite streak failure, got %+v", got.Statistics)
	}
}

func TestRecorder_StatisticsFailureIsReturned(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.users.failStats = true

	res, err := f.recorder.Record(ctx, f.input(f.easy, "pass"))
	if !errors.Is(err, domain.ErrPersistence) {
		t.Fatalf("Record() error = %v, want ErrPersistence", err)
	}
	if res == nil || res.Submission == nil {
		t.Fatal("Record() should still report the stored submission")
	}

	page, _ := f.service.ListByUser(ctx, f.user.ID, ListFilter{}, 1, 10)
	if page.Total != 1 {
		t.Errorf("stored submissions = %d, want 1", page.Total)
	}
}

func TestRecorder_RejectsBeforeWriting(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	tests := []struct {
		name    string
		mutate  func(*domain.SubmissionInput)
		wantErr error
	}{
		{"missing code", func(in *domain.SubmissionInput) { in.Code = "" }, domain.ErrInvalidInput},
		{"unknown problem", func(in *domain.SubmissionInput) { in.ProblemID = uuid.New() }, domain.ErrProblemNotFound},
		{"unknown user", func(in *domain.SubmissionInput) { in.UserID = uuid.New() }, domain.ErrUserNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := f.input(f.easy, "pass")
			tt.mutate(&in)
			if _, err := f.recorder.Record(ctx, in); !errors.Is(err, tt.wantErr) {
				t.Errorf("Record() error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	page, _ := f.service.ListByUser(ctx, f.user.ID, ListFilter{}, 1, 10)
	if page.Total != 0 {
		t.Errorf("stored submissions = %d, want 0", page.Total)
	}
}

func TestRecorder_ConcurrentSameUser(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p := f.easy
			if i%2 == 1 {
				p = f.hard
			}
			if _, err := f.recorder.Record(ctx, f.input(p, "pass")); err != nil {
				t.Errorf("Record() error = %v", err)
			}
		}(i)
	}
	wg.Wait()

	got, _ := f.store.Users().Get(ctx, f.user.ID)
	s := got.Statistics
	if s.TotalSubmissions != 40 || s.SuccessfulSubmissions != 40 || s.ProblemsSolvedCount != 2 {
		t.Errorf("Statistics = %+v, want 40/40/2", s)
	}
	if got.Streak.Current != 1 || got.Streak.Longest != 1 {
		t.Errorf("Streak = %+v, want 1/1", got.Streak)
	}
}

func TestService_ListByUser(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 25; i++ {
		at := base.Add(time.Duration(i) * time.Minute)
		f.service.now = func() time.Time { return at }
		status := "fail"
		if i%5 == 0 {
			status = "pass"
		}
		if _, err := f.service.Create(ctx, f.input(f.easy, status)); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}

	tests := []struct {
		name      string
		filter    ListFilter
		page      int
		limit     int
		wantLen   int
		wantTotal int
		wantPages int
		wantMore  bool
		wantLimit int
	}{
		{"defaults", ListFilter{}, 0, 0, 20, 25, 2, true, 20},
		{"second page", ListFilter{}, 2, 20, 5, 25, 2, false, 20},
		{"status filter", ListFilter{Status: "pass"}, 1, 20, 5, 5, 1, false, 20},
		{"limit capped", ListFilter{}, 1, 500, 25, 25, 1, false, MaxLimit},
		{"past the end", ListFilter{}, 9, 10, 0, 25, 3, false, 10},
		{"huge page", ListFilter{}, 1 << 62, 100, 0, 25, 1, false, 100},
		{"max int page", ListFilter{}, math.MaxInt, 20, 0, 25, 2, false, 20},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, err := f.service.ListByUser(ctx, f.user.ID, tt.filter, tt.page, tt.limit)
			if err != nil {
				t.Fatalf("ListByUser() error = %v", err)
			}
			if len(page.Submissions) != tt.wantLen {
				t.Errorf("len = %d, want %d", len(page.Submissions), tt.wantLen)
			}
			if page.Total != tt.wantTotal || page.TotalPages != tt.wantPages || page.HasMore != tt.wantMore {
				t.Errorf("Total/TotalPages/HasMore = %d/%d/%v, want %d/%d/%v",
					page.Total, page.TotalPages, page.HasMore, tt.wantTotal, tt.wantPages, tt.wantMore)
			}
			if page.Limit != tt.wantLimit {
				t.Errorf("Limit = %d, want %d", page.Limit, tt.wantLimit)
			}
		})
	}

	page, _ := f.service.ListByUser(ctx, f.user.ID, ListFilter{}, 1, 3)
	for i := 1; i < len(page.Submissions); i++ {
		if page.Submissions[i].Timestamp.After(page.Submissions[i-1].Timestamp) {
			t.Error("submissions should be newest first")
		}
	}

	if _, err := f.service.ListByUser(ctx, f.user.ID, ListFilter{Status: "bogus"}, 1, 10); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("ListByUser() error = %v, want ErrInvalidInput", err)
	}
}
