package stats

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/solvetrack/internal/domain"
	"github.com/felixgeelhaar/solvetrack/internal/keylock"
	"github.com/felixgeelhaar/solvetrack/internal/storage/memory"
)

func setup(t *testing.T) (*memory.Store, *Aggregator, *domain.User) {
	t.Helper()
	ctx := context.Background()
	store := memory.NewStore()
	user, err := domain.NewUser("ada")
	if err != nil {
		t.Fatalf("NewUser() error = %v", err)
	}
	if err := store.Users().Create(ctx, user); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	return store, NewAggregator(store.Users(), store.Problems(), keylock.New()), user
}

func addProblem(t *testing.T, store *memory.Store, title, difficulty string) *domain.Problem {
	t.Helper()
	p, err := domain.NewProblem(title, difficulty)
	if err != nil {
		t.Fatalf("NewProblem() error = %v", err)
	}
	if err := store.Problems().Create(context.Background(), p); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	return p
}

func TestAggregator_FirstEasySolve(t *testing.T) {
	ctx := context.Background()
	store, agg, user := setup(t)
	p1 := addProblem(t, store, "P1", "Easy")

	out, err := agg.RecordOutcome(ctx, user.ID, p1.ID, true, 120000)
	if err != nil {
		t.Fatalf("RecordOutcome() error = %v", err)
	}
	if !out.Applied || !out.FirstSolve {
		t.Errorf("Outcome = %+v, want applied first solve", out)
	}

	got, _ := store.Users().Get(ctx, user.ID)
	want := domain.Statistics{
		TotalSubmissions:      1,
		SuccessfulSubmissions: 1,
		ProblemsSolvedCount:   1,
		EasyCount:             1,
		AverageSolveTime:      120000,
	}
	if got.Statistics != want {
		t.Errorf("Statistics = %+v, want %+v", got.Statistics, want)
	}
	if !got.SolvedProblems.Has(p1.ID) {
		t.Error("SolvedProblems should contain P1")
	}
}

func TestAggregator_RepeatSolveDoesNotMoveAverage(t *testing.T) {
	ctx := context.Background()
	store, agg, user := setup(t)
	p := addProblem(t, store, "Graph Walk", "Medium")

	_, _ = agg.RecordOutcome(ctx, user.ID, p.ID, true, 1000)
	out, err := agg.RecordOutcome(ctx, user.ID, p.ID, true, 9000)
	if err != nil {
		t.Fatalf("RecordOutcome() error = %v", err)
	}
	if out.FirstSolve {
		t.Error("second solve reported as first")
	}

	s := out.Statistics
	if s.TotalSubmissions != 2 || s.SuccessfulSubmissions != 2 || s.ProblemsSolvedCount != 1 || s.MediumCount != 1 {
		t.Errorf("Statistics = %+v, want 2/2/1 with one medium", s)
	}
	if s.AverageSolveTime != 1000 {
		t.Errorf("AverageSolveTime = %v, want 1000", s.AverageSolveTime)
	}
}

func TestAggregator_FailureOnlyCountsTotal(t *testing.T) {
	ctx := context.Background()
	store, agg, user := setup(t)
	p := addProblem(t, store, "Hard One", "Hard")

	out, err := agg.RecordOutcome(ctx, user.ID, p.ID, false, 5000)
	if err != nil {
		t.Fatalf("RecordOutcome() error = %v", err)
	}
	if out.Statistics != (domain.Statistics{TotalSubmissions: 1}) {
		t.Errorf("Statistics = %+v, want only TotalSubmissions 1", out.Statistics)
	}
}

func TestAggregator_RunningMeanEqualsArithmeticMean(t *testing.T) {
	ctx := context.Background()
	store, agg, user := setup(t)

	durations := []int64{1200, 4500, 333, 98000, 7}
	var sum float64
	for i, d := range durations {
		p := addProblem(t, store, "Problem "+string(rune('A'+i)), "Easy")
		if _, err := agg.RecordOutcome(ctx, user.ID, p.ID, true, d); err != nil {
			t.Fatalf("RecordOutcome() error = %v", err)
		}
		sum += float64(d)
	}

	got, _ := store.Users().Get(ctx, user.ID)
	want := sum / float64(len(durations))
	if math.Abs(got.Statistics.AverageSolveTime-want) > 1e-6 {
		t.Errorf("AverageSolveTime = %v, want %v", got.Statistics.AverageSolveTime, want)
	}
}

func TestAggregator_MissingUserOrProblemIsNoop(t *testing.T) {
	ctx := context.Background()
	store, agg, user := setup(t)
	p := addProblem(t, store, "Exists", "Easy")

	out, err := agg.RecordOutcome(ctx, uuid.New(), p.ID, true, 100)
	if err != nil || out.Applied {
		t.Errorf("missing user: RecordOutcome() = %+v, %v; want no-op", out, err)
	}

	out, err = agg.RecordOutcome(ctx, user.ID, uuid.New(), true, 100)
	if err != nil || out.Applied {
		t.Errorf("missing problem: RecordOutcome() = %+v, %v; want no-op", out, err)
	}

	got, _ := store.Users().Get(ctx, user.ID)
	if got.Statistics != (domain.Statistics{}) {
		t.Errorf("Statistics = %+v, want untouched", got.Statistics)
	}
}

func TestAggregator_ConcurrentUpdatesKeepInvariants(t *testing.T) {
	ctx := context.Background()
	store, agg, user := setup(t)
	problems := []*domain.Problem{
		addProblem(t, store, "One", "Easy"),
		addProblem(t, store, "Two", "Medium"),
		addProblem(t, store, "Three", "Hard"),
	}

	var wg sync.WaitGroup
	for i := 0; i < 60; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p := problems[i%len(problems)]
			if _, err := agg.RecordOutcome(ctx, user.ID, p.ID, i%2 == 0, 1000); err != nil {
				t.Errorf("RecordOutcome() error = %v", err)
			}
		}(i)
	}
	wg.Wait()

	got, _ := store.Users().Get(ctx, user.ID)
	s := got.Statistics
	if s.TotalSubmissions != 60 || s.SuccessfulSubmissions != 30 {
		t.Errorf("Total/Successful = %d/%d, want 60/30", s.TotalSubmissions, s.SuccessfulSubmissions)
	}
	if s.ProblemsSolvedCount != len(got.SolvedProblems) || s.ProblemsSolvedCount > len(problems) {
		t.Errorf("ProblemsSolvedCount = %d with %d distinct solved ids", s.ProblemsSolvedCount, len(got.SolvedProblems))
	}
	if !s.Consistent() {
		t.Errorf("Statistics %+v violate invariants", s)
	}
}

type failingUsers struct {
	domain.UserRepository
	err error
}

func (f failingUsers) UpdateStatistics(context.Context, uuid.UUID, func(*domain.User) error) error {
	return f.err
}

func TestAggregator_PersistenceError(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	p := addProblem(t, store, "Any", "Easy")
	agg := NewAggregator(failingUsers{err: errors.New("connection reset")}, store.Problems(), keylock.New())

	_, err := agg.RecordOutcome(ctx, uuid.New(), p.ID, true, 10)
	if !errors.Is(err, domain.ErrPersistence) {
		t.Errorf("RecordOutcome() error = %v, want ErrPersistence", err)
	}
}

func TestApply_SolvedCountBoundedByDistinctIDs(t *testing.T) {
	var s domain.Statistics
	solved := domain.SolvedSet{}
	p := &domain.Problem{ID: uuid.New(), Difficulty: domain.DifficultyEasy}

	for i := 0; i < 5; i++ {
		Apply(&s, solved, p, true, 100)
	}
	if s.ProblemsSolvedCount != 1 || s.SuccessfulSubmissions != 5 {
		t.Errorf("Statistics = %+v, want solved 1 successful 5", s)
	}

	bogus := &domain.Problem{ID: uuid.New(), Difficulty: domain.Difficulty(42)}
	if Apply(&s, solved, bogus, true, 100) {
		t.Error("Apply() accepted an unknown difficulty")
	}
	if solved.Has(bogus.ID) {
		t.Error("unknown difficulty problem should not be marked solved")
	}
}
