// Package submission records graded submissions and serves their history.
package submission

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/solvetrack/internal/domain"
)

// Paging defaults for ListByUser
const (
	DefaultPage  = 1
	DefaultLimit = 20
	MaxLimit     = 100
)

// Service owns the append-only submission log
type Service struct {
	users       domain.UserRepository
	problems    domain.ProblemRepository
	submissions domain.SubmissionRepository
	now         func() time.Time
}

// NewService creates a submission service
func NewService(users domain.UserRepository, problems domain.ProblemRepository, submissions domain.SubmissionRepository) *Service {
	return &Service{
		users:       users,
		problems:    problems,
		submissions: submissions,
		now:         time.Now,
	}
}

// Create validates a verdict, checks that its user and problem exist and
// appends the resulting immutable submission.
func (s *Service) Create(ctx context.Context, in domain.SubmissionInput) (*domain.Submission, error) {
	sub, err := domain.NewSubmission(in, s.now().UTC())
	if err != nil {
		return nil, err
	}

	if _, err := s.users.Get(ctx, sub.UserID); err != nil {
		return nil, domain.Persist("get user", err)
	}
	if _, err := s.problems.Get(ctx, sub.ProblemID); err != nil {
		return nil, domain.Persist("get problem", err)
	}

	if err := s.submissions.Create(ctx, sub); err != nil {
		return nil, domain.Persist("create submission", err)
	}
	return sub, nil
}

// ListFilter narrows a history listing
type ListFilter struct {
	// Status keeps only submissions with this verdict; empty means all.
	Status string
}

// Page is one page of a user's submission history
type Page struct {
	Submissions []*domain.Submission
	Page        int
	Limit       int
	Total       int
	TotalPages  int
	HasMore     bool
}

// ListByUser returns a page of the user's submissions, newest first.
// page and limit fall back to defaults when not positive; page is capped
// so the offset stays representable.
func (s *Service) ListByUser(ctx context.Context, userID uuid.UUID, filter ListFilter, page, limit int) (*Page, error) {
	if page <= 0 {
		page = DefaultPage
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	limit = min(limit, MaxLimit)
	// Keeps (page-1)*limit from overflowing into a negative offset.
	page = min(page, math.MaxInt/limit)

	q := domain.SubmissionQuery{Offset: (page - 1) * limit, Limit: limit}
	if filter.Status != "" {
		status, err := domain.ParseSubmissionStatus(filter.Status)
		if err != nil {
			return nil, err
		}
		q.Status = &status
	}

	subs, total, err := s.submissions.ListByUser(ctx, userID, q)
	if err != nil {
		return nil, domain.Persist("list submissions", fmt.Errorf("user %s: %w", userID, err))
	}

	totalPages := (total + limit - 1) / limit
	return &Page{
		Submissions: subs,
		Page:        page,
		Limit:       limit,
		Total:       total,
		TotalPages:  totalPages,
		HasMore:     page < totalPages,
	}, nil
}
