// Package memory provides a thread-safe in-process store. It backs the
// "memory" database driver and the service tests.
package memory

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/solvetrack/internal/domain"
)

// Store keeps every collection in maps guarded by one RWMutex
type Store struct {
	mu          sync.RWMutex
	users       map[uuid.UUID]*domain.User
	problems    map[uuid.UUID]*domain.Problem
	submissions []*domain.Submission
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{
		users:    make(map[uuid.UUID]*domain.User),
		problems: make(map[uuid.UUID]*domain.Problem),
	}
}

func (s *Store) Users() domain.UserRepository             { return userRepo{s} }
func (s *Store) Problems() domain.ProblemRepository       { return problemRepo{s} }
func (s *Store) Submissions() domain.SubmissionRepository { return submissionRepo{s} }
func (s *Store) Close() error                             { return nil }

func cloneUser(u *domain.User) *domain.User {
	c := *u
	c.SolvedProblems = maps.Clone(u.SolvedProblems)
	if c.SolvedProblems == nil {
		c.SolvedProblems = domain.SolvedSet{}
	}
	if u.Streak.LastSubmissionDate != nil {
		t := *u.Streak.LastSubmissionDate
		c.Streak.LastSubmissionDate = &t
	}
	return &c
}

type userRepo struct{ s *Store }

func (r userRepo) Create(_ context.Context, user *domain.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.users[user.ID]; ok {
		return domain.ErrUserAlreadyExists
	}
	for _, u := range r.s.users {
		if u.Username == user.Username {
			return domain.ErrUserAlreadyExists
		}
	}
	r.s.users[user.ID] = cloneUser(user)
	return nil
}

func (r userRepo) Get(_ context.Context, id uuid.UUID) (*domain.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	u, ok := r.s.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return cloneUser(u), nil
}

func (r userRepo) GetMany(_ context.Context, ids []uuid.UUID) ([]*domain.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]*domain.User, 0, len(ids))
	for _, id := range ids {
		if u, ok := r.s.users[id]; ok {
			out = append(out, cloneUser(u))
		}
	}
	return out, nil
}

func (r userRepo) Top(_ context.Context, limit int) ([]*domain.User, error) {
	r.s.mu.RLock()
	all := make([]*domain.User, 0, len(r.s.users))
	for _, u := range r.s.users {
		all = append(all, cloneUser(u))
	}
	r.s.mu.RUnlock()

	slices.SortFunc(all, domain.CompareLeaderboard)
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (r userRepo) UpdateStatistics(_ context.Context, id uuid.UUID, fn func(*domain.User) error) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.users[id]
	if !ok {
		return domain.ErrUserNotFound
	}
	work := cloneUser(stored)
	if err := fn(work); err != nil {
		return err
	}
	stored.Statistics = work.Statistics
	stored.SolvedProblems = work.SolvedProblems
	stored.Version++
	stored.UpdatedAt = time.Now()
	return nil
}

func (r userRepo) UpdateStreak(_ context.Context, id uuid.UUID, fn func(*domain.Streak) error) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.users[id]
	if !ok {
		return domain.ErrUserNotFound
	}
	work := cloneUser(stored).Streak
	if err := fn(&work); err != nil {
		return err
	}
	stored.Streak = work
	stored.Version++
	stored.UpdatedAt = time.Now()
	return nil
}

type problemRepo struct{ s *Store }

func (r problemRepo) Create(_ context.Context, p *domain.Problem) error {
	if !p.Difficulty.Valid() {
		return domain.NewValidationError("difficulty", domain.ErrUnknownDifficulty.Error())
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.problems {
		if existing.ID == p.ID || existing.Slug == p.Slug {
			return domain.ErrConflict
		}
	}
	c := *p
	r.s.problems[p.ID] = &c
	return nil
}

func (r problemRepo) Get(_ context.Context, id uuid.UUID) (*domain.Problem, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	p, ok := r.s.problems[id]
	if !ok {
		return nil, domain.ErrProblemNotFound
	}
	c := *p
	return &c, nil
}

func (r problemRepo) GetBySlug(_ context.Context, slug string) (*domain.Problem, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, p := range r.s.problems {
		if p.Slug == slug {
			c := *p
			return &c, nil
		}
	}
	return nil, domain.ErrProblemNotFound
}

func (r problemRepo) GetMany(_ context.Context, ids []uuid.UUID) (map[uuid.UUID]*domain.Problem, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make(map[uuid.UUID]*domain.Problem, len(ids))
	for _, id := range ids {
		if p, ok := r.s.problems[id]; ok {
			c := *p
			out[id] = &c
		}
	}
	return out, nil
}

func (r problemRepo) CountByDifficulty(_ context.Context) (map[domain.Difficulty]int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make(map[domain.Difficulty]int, len(domain.Difficulties))
	for _, p := range r.s.problems {
		out[p.Difficulty]++
	}
	return out, nil
}

type submissionRepo struct{ s *Store }

func (r submissionRepo) Create(_ context.Context, sub *domain.Submission) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c := *sub
	c.Details = slices.Clone(sub.Details)
	r.s.submissions = append(r.s.submissions, &c)
	return nil
}

func (r submissionRepo) ListByUser(_ context.Context, userID uuid.UUID, q domain.SubmissionQuery) ([]*domain.Submission, int, error) {
	r.s.mu.RLock()
	var matched []*domain.Submission
	for _, sub := range r.s.submissions {
		if sub.UserID != userID {
			continue
		}
		if q.Status != nil && sub.Status != *q.Status {
			continue
		}
		c := *sub
		matched = append(matched, &c)
	}
	r.s.mu.RUnlock()

	slices.SortStableFunc(matched, func(a, b *domain.Submission) int {
		return b.Timestamp.Compare(a.Timestamp)
	})

	total := len(matched)
	start := min(max(q.Offset, 0), total)
	end := total
	if q.Limit > 0 {
		end = min(start+q.Limit, total)
	}
	return matched[start:end], total, nil
}

func (r submissionRepo) SuccessTimes(_ context.Context, userID uuid.UUID, since time.Time) ([]time.Time, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []time.Time
	for _, sub := range r.s.submissions {
		if sub.UserID == userID && sub.Success && !sub.Timestamp.Before(since) {
			out = append(out, sub.Timestamp)
		}
	}
	return out, nil
}
