package mongo

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/solvetrack/internal/domain"
)

// UUIDs are stored as their canonical string form so documents stay
// readable from the mongo shell.

type statisticsDoc struct {
	TotalSubmissions      int     `bson:"totalSubmissions"`
	SuccessfulSubmissions int     `bson:"successfulSubmissions"`
	ProblemsSolvedCount   int     `bson:"problemsSolvedCount"`
	EasyCount             int     `bson:"easyCount"`
	MediumCount           int     `bson:"mediumCount"`
	HardCount             int     `bson:"hardCount"`
	AverageSolveTime      float64 `bson:"averageSolveTime"`
}

type streakDoc struct {
	Current            int        `bson:"current"`
	Longest            int        `bson:"longest"`
	LastSubmissionDate *time.Time `bson:"lastSubmissionDate,omitempty"`
}

type userDoc struct {
	ID             string        `bson:"_id"`
	Username       string        `bson:"username"`
	Statistics     statisticsDoc `bson:"statistics"`
	SolvedProblems []string      `bson:"solvedProblems"`
	Streak         streakDoc     `bson:"streak"`
	Version        int64         `bson:"version"`
	CreatedAt      time.Time     `bson:"createdAt"`
	UpdatedAt      time.Time     `bson:"updatedAt"`
}

func toUserDoc(u *domain.User) userDoc {
	solved := make([]string, 0, len(u.SolvedProblems))
	for id := range u.SolvedProblems {
		solved = append(solved, id.String())
	}
	return userDoc{
		ID:             u.ID.String(),
		Username:       u.Username,
		Statistics:     statisticsDoc(u.Statistics),
		SolvedProblems: solved,
		Streak:         streakDoc(u.Streak),
		Version:        u.Version,
		CreatedAt:      u.CreatedAt,
		UpdatedAt:      u.UpdatedAt,
	}
}

func (d userDoc) toDomain() (*domain.User, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return nil, err
	}
	solved := make(domain.SolvedSet, len(d.SolvedProblems))
	for _, s := range d.SolvedProblems {
		pid, err := uuid.Parse(s)
		if err != nil {
			return nil, err
		}
		solved[pid] = struct{}{}
	}
	return &domain.User{
		ID:             id,
		Username:       d.Username,
		Statistics:     domain.Statistics(d.Statistics),
		SolvedProblems: solved,
		Streak:         domain.Streak(d.Streak),
		Version:        d.Version,
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      d.UpdatedAt,
	}, nil
}

type problemDoc struct {
	ID         string    `bson:"_id"`
	Title      string    `bson:"title"`
	Slug       string    `bson:"slug"`
	Difficulty string    `bson:"difficulty"`
	CreatedAt  time.Time `bson:"createdAt"`
}

func (d problemDoc) toDomain() (*domain.Problem, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return nil, err
	}
	diff, err := domain.ParseDifficulty(d.Difficulty)
	if err != nil {
		return nil, err
	}
	return &domain.Problem{ID: id, Title: d.Title, Slug: d.Slug, Difficulty: diff, CreatedAt: d.CreatedAt}, nil
}

type submissionDoc struct {
	ID          string    `bson:"_id"`
	UserID      string    `bson:"userId"`
	ProblemID   string    `bson:"problemId"`
	Language    string    `bson:"language"`
	Code        string    `bson:"code"`
	Status      string    `bson:"status"`
	PassedCount int       `bson:"passedCount"`
	TotalTests  int       `bson:"totalTests"`
	StartTime   time.Time `bson:"startTime"`
	EndTime     time.Time `bson:"endTime"`
	DurationMS  int64     `bson:"durationMs"`
	Success     bool      `bson:"success"`
	Details     string    `bson:"details,omitempty"`
	CreatedAt   time.Time `bson:"createdAt"`
}

func toSubmissionDoc(s *domain.Submission) submissionDoc {
	return submissionDoc{
		ID:          s.ID.String(),
		UserID:      s.UserID.String(),
		ProblemID:   s.ProblemID.String(),
		Language:    s.Language,
		Code:        s.Code,
		Status:      string(s.Status),
		PassedCount: s.PassedCount,
		TotalTests:  s.TotalTests,
		StartTime:   s.StartTime,
		EndTime:     s.EndTime,
		DurationMS:  s.Duration,
		Success:     s.Success,
		Details:     string(s.Details),
		CreatedAt:   s.Timestamp,
	}
}

func (d submissionDoc) toDomain() (*domain.Submission, error) {
	var ids [3]uuid.UUID
	for i, s := range []string{d.ID, d.UserID, d.ProblemID} {
		id, err := uuid.Parse(s)
		if err != nil {
			return nil, err
		}
		ids[i] = id
	}
	sub := &domain.Submission{
		ID:          ids[0],
		UserID:      ids[1],
		ProblemID:   ids[2],
		Language:    d.Language,
		Code:        d.Code,
		Status:      domain.SubmissionStatus(d.Status),
		PassedCount: d.PassedCount,
		TotalTests:  d.TotalTests,
		StartTime:   d.StartTime,
		EndTime:     d.EndTime,
		Duration:    d.DurationMS,
		Success:     d.Success,
		Timestamp:   d.CreatedAt,
	}
	if d.Details != "" {
		sub.Details = json.RawMessage(d.Details)
	}
	return sub, nil
}

func idStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}
