package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// SubmissionStatus is the judge verdict attached to a submission
type SubmissionStatus string

const (
	StatusPending SubmissionStatus = "pending"
	StatusPass    SubmissionStatus = "pass"
	StatusFail    SubmissionStatus = "fail"
	StatusError   SubmissionStatus = "error"
)

// ParseSubmissionStatus parses a verdict. An empty string means pending.
func ParseSubmissionStatus(s string) (SubmissionStatus, error) {
	switch SubmissionStatus(strings.ToLower(strings.TrimSpace(s))) {
	case "", StatusPending:
		return StatusPending, nil
	case StatusPass:
		return StatusPass, nil
	case StatusFail:
		return StatusFail, nil
	case StatusError:
		return StatusError, nil
	default:
		return "", NewValidationError("status", fmt.Sprintf("unknown status %q", s))
	}
}

// Submission is one immutable attempt at a problem
type Submission struct {
	ID          uuid.UUID
	UserID      uuid.UUID
	ProblemID   uuid.UUID
	Language    string
	Code        string
	Status      SubmissionStatus
	PassedCount int
	TotalTests  int
	StartTime   time.Time
	EndTime     time.Time
	Duration    int64 // milliseconds
	Success     bool
	Timestamp   time.Time
	Details     json.RawMessage
}

// SubmissionInput carries a graded verdict before it becomes a Submission
type SubmissionInput struct {
	UserID      uuid.UUID
	ProblemID   uuid.UUID
	Language    string
	Code        string
	Status      string
	PassedCount int
	TotalTests  int
	StartTime   *time.Time
	Details     json.RawMessage
}

// NewSubmission checks the identifying fields and derives duration and
// success. Test counts are the judge's and are stored as given.
// now becomes both the end time and the creation timestamp.
func NewSubmission(in SubmissionInput, now time.Time) (*Submission, error) {
	if in.UserID == uuid.Nil {
		return nil, NewValidationError("userId", "is required")
	}
	if in.ProblemID == uuid.Nil {
		return nil, NewValidationError("problemId", "is required")
	}
	if strings.TrimSpace(in.Code) == "" {
		return nil, NewValidationError("code", "is required")
	}
	if strings.TrimSpace(in.Language) == "" {
		return nil, NewValidationError("language", "is required")
	}
	status, err := ParseSubmissionStatus(in.Status)
	if err != nil {
		return nil, err
	}
	if len(in.Details) > 0 && !json.Valid(in.Details) {
		return nil, NewValidationError("details", "must be valid JSON")
	}

	end := now
	start := end
	if in.StartTime != nil {
		start = *in.StartTime
	}
	// A start time after the end (clock skew at the judge) counts as zero.
	duration := end.Sub(start).Milliseconds()
	if duration < 0 {
		duration = 0
	}

	return &Submission{
		ID:          uuid.New(),
		UserID:      in.UserID,
		ProblemID:   in.ProblemID,
		Language:    strings.TrimSpace(in.Language),
		Code:        in.Code,
		Status:      status,
		PassedCount: in.PassedCount,
		TotalTests:  in.TotalTests,
		StartTime:   start,
		EndTime:     end,
		Duration:    duration,
		Success:     IsSuccessful(status, in.PassedCount, in.TotalTests),
		Timestamp:   now,
		Details:     in.Details,
	}, nil
}

// IsSuccessful reports whether a verdict counts as a success
func IsSuccessful(status SubmissionStatus, passed, total int) bool {
	return status == StatusPass || (passed > 0 && passed == total)
}

// DurationTime returns Duration as a time.Duration
func (s *Submission) DurationTime() time.Duration {
	return time.Duration(s.Duration) * time.Millisecond
}

// FormatDuration renders a millisecond duration as seconds ("12.35s"),
// or "N/A" when there is nothing to show.
func FormatDuration(ms int64) string {
	if ms <= 0 {
		return "N/A"
	}
	return fmt.Sprintf("%.2fs", float64(ms)/1000)
}
