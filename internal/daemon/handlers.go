package daemon

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/solvetrack/internal/catalog"
	"github.com/felixgeelhaar/solvetrack/internal/domain"
	"github.com/felixgeelhaar/solvetrack/internal/submission"
)

const maxBodyBytes = 1 << 20

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"driver":    s.cfg.DatabaseDriver,
	}
	if s.index != nil {
		resp["leaderboardIndex"] = true
	}
	if s.conn != nil {
		resp["queueConnected"] = s.conn.IsConnected()
	}
	s.jsonResponse(w, http.StatusOK, resp)
}

// Users

type createUserRequest struct {
	Username string `json:"username"`
}

type userResponse struct {
	ID             uuid.UUID `json:"id"`
	Username       string    `json:"username"`
	ProblemsSolved int       `json:"problemsSolved"`
	CurrentStreak  int       `json:"currentStreak"`
	LongestStreak  int       `json:"longestStreak"`
	CreatedAt      time.Time `json:"createdAt"`
}

func toUserResponse(u *domain.User) userResponse {
	return userResponse{
		ID:             u.ID,
		Username:       u.Username,
		ProblemsSolved: u.Statistics.ProblemsSolvedCount,
		CurrentStreak:  u.Streak.Current,
		LongestStreak:  u.Streak.Longest,
		CreatedAt:      u.CreatedAt,
	}
}

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := decodeJSON(r, &req); err != nil {
		s.jsonError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	user, err := domain.NewUser(req.Username)
	if err != nil {
		s.domainError(w, r, "invalid user", err)
		return
	}
	if err := s.store.Users().Create(r.Context(), user); err != nil {
		s.domainError(w, r, "failed to create user", err)
		return
	}
	s.jsonResponse(w, http.StatusCreated, toUserResponse(user))
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.userID(w, r)
	if !ok {
		return
	}
	user, err := s.store.Users().Get(r.Context(), userID)
	if err != nil {
		s.domainError(w, r, "failed to get user", err)
		return
	}
	s.jsonResponse(w, http.StatusOK, toUserResponse(user))
}

// Problems

type createProblemRequest struct {
	Title      string `json:"title"`
	Difficulty string `json:"difficulty"`
}

type problemResponse struct {
	ID         uuid.UUID `json:"id"`
	Title      string    `json:"title"`
	Slug       string    `json:"slug"`
	Difficulty string    `json:"difficulty"`
	CreatedAt  time.Time `json:"createdAt"`
}

func toProblemResponse(p *domain.Problem) problemResponse {
	return problemResponse{
		ID:         p.ID,
		Title:      p.Title,
		Slug:       p.Slug,
		Difficulty: p.Difficulty.String(),
		CreatedAt:  p.CreatedAt,
	}
}

func (s *Server) handleCreateProblem(w http.ResponseWriter, r *http.Request) {
	var req createProblemRequest
	if err := decodeJSON(r, &req); err != nil {
		s.jsonError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	problem, err := domain.NewProblem(req.Title, req.Difficulty)
	if err != nil {
		s.domainError(w, r, "invalid problem", err)
		return
	}
	if err := s.store.Problems().Create(r.Context(), problem); err != nil {
		s.domainError(w, r, "failed to create problem", err)
		return
	}
	s.jsonResponse(w, http.StatusCreated, toProblemResponse(problem))
}

// handleImportProblems seeds a YAML catalog posted as the request body
func (s *Server) handleImportProblems(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		s.jsonError(w, http.StatusBadRequest, "failed to read catalog", err)
		return
	}
	problems, err := catalog.Parse(data)
	if err != nil {
		s.jsonError(w, http.StatusBadRequest, "invalid catalog", err)
		return
	}
	res, err := s.seeder.Seed(r.Context(), problems)
	if err != nil {
		s.domainError(w, r, "failed to import catalog", err)
		return
	}
	s.jsonResponse(w, http.StatusOK, res)
}

// handleGetProblem accepts either a slug or a problem id
func (s *Server) handleGetProblem(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("slug")
	var (
		problem *domain.Problem
		err     error
	)
	if id, parseErr := uuid.Parse(key); parseErr == nil {
		problem, err = s.store.Problems().Get(r.Context(), id)
	} else {
		problem, err = s.store.Problems().GetBySlug(r.Context(), key)
	}
	if err != nil {
		s.domainError(w, r, "failed to get problem", err)
		return
	}
	s.jsonResponse(w, http.StatusOK, toProblemResponse(problem))
}

// Submissions

type createSubmissionRequest struct {
	ProblemID   uuid.UUID       `json:"problemId"`
	Code        string          `json:"code"`
	Language    string          `json:"language"`
	Status      string          `json:"status"`
	PassedCount int             `json:"passedCount"`
	TotalTests  int             `json:"totalTests"`
	StartTime   *time.Time      `json:"startTime,omitempty"`
	Details     json.RawMessage `json:"details,omitempty"`
}

type submissionResponse struct {
	ID          uuid.UUID       `json:"id"`
	UserID      uuid.UUID       `json:"userId"`
	ProblemID   uuid.UUID       `json:"problemId"`
	Language    string          `json:"language"`
	Code        string          `json:"code,omitempty"`
	Status      string          `json:"status"`
	PassedCount int             `json:"passedCount"`
	TotalTests  int             `json:"totalTests"`
	StartTime   time.Time       `json:"startTime"`
	EndTime     time.Time       `json:"endTime"`
	Duration    int64           `json:"durationMs"`
	Success     bool            `json:"success"`
	Details     json.RawMessage `json:"details,omitempty"`
	Timestamp   time.Time       `json:"timestamp"`
}

func toSubmissionResponse(sub *domain.Submission) submissionResponse {
	return submissionResponse{
		ID:          sub.ID,
		UserID:      sub.UserID,
		ProblemID:   sub.ProblemID,
		Language:    sub.Language,
		Code:        sub.Code,
		Status:      string(sub.Status),
		PassedCount: sub.PassedCount,
		TotalTests:  sub.TotalTests,
		StartTime:   sub.StartTime,
		EndTime:     sub.EndTime,
		Duration:    sub.Duration,
		Success:     sub.Success,
		Details:     sub.Details,
		Timestamp:   sub.Timestamp,
	}
}

type recordResponse struct {
	Submission    submissionResponse `json:"submission"`
	Stats         submissionStats    `json:"stats"`
	FirstSolve    bool               `json:"firstSolve"`
	StreakUpdated bool               `json:"streakUpdated"`
	// StreakError is set when the streak could not be updated; the
	// submission and statistics were still recorded.
	StreakError string `json:"streakError,omitempty"`
}

type submissionStats struct {
	Duration string `json:"duration"`
	Success  bool   `json:"success"`
}

func (s *Server) handleCreateSubmission(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.userID(w, r)
	if !ok {
		return
	}
	var req createSubmissionRequest
	if err := decodeJSON(r, &req); err != nil {
		s.jsonError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	res, err := s.recorder.Record(r.Context(), domain.SubmissionInput{
		UserID:      userID,
		ProblemID:   req.ProblemID,
		Language:    req.Language,
		Code:        req.Code,
		Status:      req.Status,
		PassedCount: req.PassedCount,
		TotalTests:  req.TotalTests,
		StartTime:   req.StartTime,
		Details:     req.Details,
	})
	if err != nil {
		s.domainError(w, r, "failed to record submission", err)
		return
	}

	resp := recordResponse{
		Submission: toSubmissionResponse(res.Submission),
		Stats: submissionStats{
			Duration: fmt.Sprintf("%.2fs", float64(res.Submission.Duration)/1000),
			Success:  res.Submission.Success,
		},
		FirstSolve:    res.Outcome.FirstSolve,
		StreakUpdated: res.StreakApplied,
	}
	if res.StreakErr != nil {
		resp.StreakError = "streak update failed"
	}
	s.jsonResponse(w, http.StatusCreated, resp)
}

type submissionPage struct {
	Submissions []submissionResponse `json:"submissions"`
	Pagination  pagination           `json:"pagination"`
}

type pagination struct {
	Page       int  `json:"page"`
	Limit      int  `json:"limit"`
	Total      int  `json:"total"`
	TotalPages int  `json:"totalPages"`
	HasMore    bool `json:"hasMore"`
}

func (s *Server) handleListSubmissions(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.userID(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	page, err := intParam(q.Get("page"))
	if err != nil {
		s.jsonError(w, http.StatusBadRequest, "invalid page", err)
		return
	}
	limit, err := intParam(q.Get("limit"))
	if err != nil {
		s.jsonError(w, http.StatusBadRequest, "invalid limit", err)
		return
	}

	// Unknown users get a 404 rather than an empty page.
	if _, err := s.store.Users().Get(r.Context(), userID); err != nil {
		s.domainError(w, r, "failed to list submissions", err)
		return
	}

	p, err := s.submissions.ListByUser(r.Context(), userID, submission.ListFilter{Status: q.Get("status")}, page, limit)
	if err != nil {
		s.domainError(w, r, "failed to list submissions", err)
		return
	}

	resp := submissionPage{
		Submissions: make([]submissionResponse, 0, len(p.Submissions)),
		Pagination: pagination{
			Page:       p.Page,
			Limit:      p.Limit,
			Total:      p.Total,
			TotalPages: p.TotalPages,
			HasMore:    p.HasMore,
		},
	}
	for _, sub := range p.Submissions {
		view := toSubmissionResponse(sub)
		view.Code = ""
		resp.Submissions = append(resp.Submissions, view)
	}
	s.jsonResponse(w, http.StatusOK, resp)
}

// Dashboards

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.userID(w, r)
	if !ok {
		return
	}
	snapshot, err := s.reporter.Stats(r.Context(), userID)
	if err != nil {
		s.domainError(w, r, "failed to get stats", err)
		return
	}
	s.jsonResponse(w, http.StatusOK, snapshot)
}

func (s *Server) handleStreak(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.userID(w, r)
	if !ok {
		return
	}
	days, err := intParam(r.URL.Query().Get("days"))
	if err != nil {
		s.jsonError(w, http.StatusBadRequest, "invalid days", err)
		return
	}
	rep, err := s.reporter.Streak(r.Context(), userID, days)
	if err != nil {
		s.domainError(w, r, "failed to get streak", err)
		return
	}
	s.jsonResponse(w, http.StatusOK, rep)
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.userID(w, r)
	if !ok {
		return
	}
	progress, err := s.reporter.Progress(r.Context(), userID)
	if err != nil {
		s.domainError(w, r, "failed to get progress", err)
		return
	}
	s.jsonResponse(w, http.StatusOK, progress)
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r.URL.Query().Get("limit"))
	if err != nil {
		s.jsonError(w, http.StatusBadRequest, "invalid limit", err)
		return
	}
	board, err := s.reporter.Leaderboard(r.Context(), limit)
	if err != nil {
		s.domainError(w, r, "failed to get leaderboard", err)
		return
	}
	s.jsonResponse(w, http.StatusOK, board)
}

// handleReindex rebuilds the Redis leaderboard index from the store
func (s *Server) handleReindex(w http.ResponseWriter, r *http.Request) {
	if s.index == nil {
		s.jsonError(w, http.StatusServiceUnavailable, "leaderboard index not configured", nil)
		return
	}
	users, err := s.store.Users().Top(r.Context(), 0)
	if err != nil {
		s.domainError(w, r, "failed to list users", err)
		return
	}
	if err := s.index.Rebuild(r.Context(), users); err != nil {
		s.logger.Error("leaderboard rebuild failed", "error", err)
		s.jsonError(w, http.StatusBadGateway, "failed to rebuild leaderboard index", err)
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{"indexed": len(users)})
}

// Helpers

func (s *Server) userID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("userID"))
	if err != nil {
		s.jsonError(w, http.StatusBadRequest, "invalid user id", err)
		return uuid.Nil, false
	}
	return id, true
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	return dec.Decode(v)
}

// intParam parses an optional integer query parameter; empty means zero.
func intParam(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%q is not a number", raw)
	}
	if n < 0 {
		return 0, fmt.Errorf("%d must not be negative", n)
	}
	return n, nil
}
