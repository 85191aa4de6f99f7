package daemon

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/solvetrack/internal/config"
	"github.com/felixgeelhaar/solvetrack/internal/domain"
	"github.com/felixgeelhaar/solvetrack/internal/storage/memory"
	"github.com/felixgeelhaar/solvetrack/internal/storage/storetest"
)

// setupTestServer creates a server over an in-memory store
func setupTestServer(t *testing.T, mutate ...func(*config.Config)) (*Server, domain.Store) {
	t.Helper()

	cfg := &config.Config{
		Port:           7432,
		Bind:           "127.0.0.1",
		DatabaseDriver: config.DriverMemory,
		QueueWorkers:   1,
		StreakTimezone: "UTC",
		Location:       time.UTC,
	}
	for _, fn := range mutate {
		fn(cfg)
	}

	store := memory.NewStore()
	server, err := NewServer(context.Background(), ServerConfig{Config: cfg, Store: store})
	if err != nil {
		t.Fatalf("create server: %v", err)
	}
	return server, store
}

func do(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var r io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		r = strings.NewReader(b)
	default:
		data, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		r = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, r)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(w.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func wantStatus(t *testing.T, w *httptest.ResponseRecorder, status int) {
	t.Helper()
	if w.Code != status {
		t.Fatalf("status = %d, want %d; body: %s", w.Code, status, w.Body.String())
	}
}

func passVerdict(problemID uuid.UUID) map[string]any {
	return map[string]any{
		"problemId":   problemID,
		"code":        "func twoSum() {}",
		"language":    "go",
		"status":      "pass",
		"passedCount": 3,
		"totalTests":  3,
		"startTime":   time.Now().Add(-90 * time.Second),
	}
}

func TestHealthEndpoint(t *testing.T) {
	server, _ := setupTestServer(t)

	w := do(t, server, http.MethodGet, "/v1/health", nil)
	wantStatus(t, w, http.StatusOK)

	resp := decode[map[string]any](t, w)
	if resp["status"] != "healthy" {
		t.Errorf("status = %v, want healthy", resp["status"])
	}
	if resp["driver"] != "memory" {
		t.Errorf("driver = %v, want memory", resp["driver"])
	}
	if w.Header().Get(RequestIDHeader) == "" {
		t.Error("response should carry a request id")
	}
}

func TestCreateUser(t *testing.T) {
	server, _ := setupTestServer(t)

	w := do(t, server, http.MethodPost, "/v1/users", map[string]string{"username": "ada"})
	wantStatus(t, w, http.StatusCreated)
	user := decode[userResponse](t, w)
	if user.Username != "ada" || user.ID == uuid.Nil {
		t.Errorf("user = %+v", user)
	}

	w = do(t, server, http.MethodGet, "/v1/users/"+user.ID.String(), nil)
	wantStatus(t, w, http.StatusOK)

	w = do(t, server, http.MethodPost, "/v1/users", map[string]string{"username": "ada"})
	wantStatus(t, w, http.StatusConflict)
}

func TestCreateUser_Invalid(t *testing.T) {
	server, _ := setupTestServer(t)

	tests := []struct {
		name string
		body any
	}{
		{"malformed json", "{"},
		{"empty username", map[string]string{"username": "  "}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, server, http.MethodPost, "/v1/users", tt.body)
			wantStatus(t, w, http.StatusBadRequest)
		})
	}

	w := do(t, server, http.MethodPost, "/v1/users", map[string]string{"username": ""})
	resp := decode[map[string]any](t, w)
	if resp["field"] != "username" {
		t.Errorf("field = %v, want username", resp["field"])
	}
}

func TestProblems(t *testing.T) {
	server, _ := setupTestServer(t)

	w := do(t, server, http.MethodPost, "/v1/problems", map[string]string{"title": "Two Sum", "difficulty": "easy"})
	wantStatus(t, w, http.StatusCreated)
	p := decode[problemResponse](t, w)
	if p.Slug != "two-sum" || p.Difficulty != "Easy" {
		t.Errorf("problem = %+v", p)
	}

	wantStatus(t, do(t, server, http.MethodGet, "/v1/problems/two-sum", nil), http.StatusOK)
	wantStatus(t, do(t, server, http.MethodGet, "/v1/problems/"+p.ID.String(), nil), http.StatusOK)
	wantStatus(t, do(t, server, http.MethodGet, "/v1/problems/three-sum", nil), http.StatusNotFound)

	w = do(t, server, http.MethodPost, "/v1/problems", map[string]string{"title": "Foo", "difficulty": "Extreme"})
	wantStatus(t, w, http.StatusBadRequest)

	w = do(t, server, http.MethodPost, "/v1/problems", map[string]string{"title": "Two Sum", "difficulty": "Hard"})
	wantStatus(t, w, http.StatusConflict)
}

func TestImportProblems(t *testing.T) {
	server, store := setupTestServer(t)

	yaml := "problems:\n  - title: Two Sum\n    difficulty: Easy\n  - title: Word Ladder\n    difficulty: Hard\n"
	w := do(t, server, http.MethodPost, "/v1/problems/import", yaml)
	wantStatus(t, w, http.StatusOK)
	res := decode[map[string]int](t, w)
	if res["created"] != 2 {
		t.Errorf("created = %d, want 2", res["created"])
	}

	w = do(t, server, http.MethodPost, "/v1/problems/import", yaml)
	wantStatus(t, w, http.StatusOK)
	res = decode[map[string]int](t, w)
	if res["skipped"] != 2 {
		t.Errorf("skipped = %d, want 2", res["skipped"])
	}

	counts, err := store.Problems().CountByDifficulty(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if counts[domain.DifficultyEasy] != 1 || counts[domain.DifficultyHard] != 1 {
		t.Errorf("counts = %v", counts)
	}

	w = do(t, server, http.MethodPost, "/v1/problems/import", "problems:\n  - title: X\n    difficulty: Galactic\n")
	wantStatus(t, w, http.StatusBadRequest)
}

func TestRecordSubmission_UpdatesDashboards(t *testing.T) {
	server, store := setupTestServer(t)
	user := storetest.MustUser(t, store, "grace")
	easy := storetest.MustProblem(t, store, "Two Sum", "Easy")
	storetest.MustProblem(t, store, "LRU Cache", "Medium")

	w := do(t, server, http.MethodPost, "/v1/users/"+user.ID.String()+"/submissions", passVerdict(easy.ID))
	wantStatus(t, w, http.StatusCreated)
	rec := decode[recordResponse](t, w)
	if !rec.FirstSolve {
		t.Error("first passing submission should be a first solve")
	}
	if !rec.StreakUpdated {
		t.Error("first passing submission should start a streak")
	}
	if !rec.Stats.Success || !strings.HasSuffix(rec.Stats.Duration, "s") {
		t.Errorf("stats = %+v", rec.Stats)
	}

	// A failing retry is logged but does not change the solved count.
	fail := passVerdict(easy.ID)
	fail["status"] = "fail"
	fail["passedCount"] = 1
	wantStatus(t, do(t, server, http.MethodPost, "/v1/users/"+user.ID.String()+"/submissions", fail), http.StatusCreated)

	w = do(t, server, http.MethodGet, "/v1/users/"+user.ID.String()+"/stats", nil)
	wantStatus(t, w, http.StatusOK)
	stats := decode[map[string]any](t, w)
	if stats["problemsSolved"] != float64(1) {
		t.Errorf("problemsSolved = %v, want 1", stats["problemsSolved"])
	}
	if stats["totalSubmissions"] != float64(2) {
		t.Errorf("totalSubmissions = %v, want 2", stats["totalSubmissions"])
	}
	if stats["successRate"] != "50.00%" {
		t.Errorf("successRate = %v, want 50.00%%", stats["successRate"])
	}
	if activity, _ := stats["recentActivity"].([]any); len(activity) != 2 {
		t.Errorf("recentActivity has %d entries, want 2", len(activity))
	}

	w = do(t, server, http.MethodGet, "/v1/users/"+user.ID.String()+"/streak?days=30", nil)
	wantStatus(t, w, http.StatusOK)
	streak := decode[map[string]any](t, w)
	if streak["current"] != float64(1) || streak["windowDays"] != float64(30) {
		t.Errorf("streak = %v", streak)
	}

	w = do(t, server, http.MethodGet, "/v1/users/"+user.ID.String()+"/progress", nil)
	wantStatus(t, w, http.StatusOK)
	progress := decode[map[string]map[string]any](t, w)
	if progress["easy"]["percentage"] != "100.00" || progress["medium"]["percentage"] != "0.00" {
		t.Errorf("progress = %v", progress)
	}

	w = do(t, server, http.MethodGet, "/v1/leaderboard", nil)
	wantStatus(t, w, http.StatusOK)
	board := decode[map[string]any](t, w)
	if board["totalUsers"] != float64(1) {
		t.Errorf("totalUsers = %v, want 1", board["totalUsers"])
	}

	w = do(t, server, http.MethodGet, "/metrics", nil)
	wantStatus(t, w, http.StatusOK)
	if !strings.Contains(w.Body.String(), "solvetrack_submissions_recorded_total") {
		t.Error("metrics should expose the submission counter")
	}
}

func TestRecordSubmission_ZeroDuration(t *testing.T) {
	server, store := setupTestServer(t)
	user := storetest.MustUser(t, store, "edsger")
	problem := storetest.MustProblem(t, store, "Two Sum", "Easy")

	noStart := passVerdict(problem.ID)
	delete(noStart, "startTime")
	futureStart := passVerdict(problem.ID)
	futureStart["startTime"] = time.Now().Add(time.Hour)

	tests := []struct {
		name string
		body map[string]any
	}{
		{"missing start time", noStart},
		{"start time in the future", futureStart},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, server, http.MethodPost, "/v1/users/"+user.ID.String()+"/submissions", tt.body)
			wantStatus(t, w, http.StatusCreated)
			rec := decode[recordResponse](t, w)
			if rec.Stats.Duration != "0.00s" {
				t.Errorf("Stats.Duration = %q, want 0.00s", rec.Stats.Duration)
			}
		})
	}
}

func TestRecordSubmission_Errors(t *testing.T) {
	server, store := setupTestServer(t)
	user := storetest.MustUser(t, store, "linus")
	problem := storetest.MustProblem(t, store, "Two Sum", "Easy")

	emptyCode := passVerdict(problem.ID)
	emptyCode["code"] = ""
	badStatus := passVerdict(problem.ID)
	badStatus["status"] = "accepted"

	tests := []struct {
		name   string
		user   string
		body   any
		status int
	}{
		{"invalid user id", "not-a-uuid", passVerdict(problem.ID), http.StatusBadRequest},
		{"unknown user", uuid.NewString(), passVerdict(problem.ID), http.StatusNotFound},
		{"unknown problem", user.ID.String(), passVerdict(uuid.New()), http.StatusNotFound},
		{"empty code", user.ID.String(), emptyCode, http.StatusBadRequest},
		{"unknown status", user.ID.String(), badStatus, http.StatusBadRequest},
		{"malformed body", user.ID.String(), "{", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, server, http.MethodPost, "/v1/users/"+tt.user+"/submissions", tt.body)
			wantStatus(t, w, tt.status)
		})
	}

	// Nothing was recorded by the rejected requests.
	_, total, err := store.Submissions().ListByUser(context.Background(), user.ID, domain.SubmissionQuery{})
	if err != nil {
		t.Fatal(err)
	}
	if total != 0 {
		t.Errorf("stored submissions = %d, want 0", total)
	}
}

func TestListSubmissions(t *testing.T) {
	server, store := setupTestServer(t)
	user := storetest.MustUser(t, store, "barbara")
	problem := storetest.MustProblem(t, store, "Two Sum", "Easy")

	path := "/v1/users/" + user.ID.String() + "/submissions"
	for i := range 3 {
		body := passVerdict(problem.ID)
		if i > 0 {
			body["status"] = "fail"
			body["passedCount"] = 0
		}
		wantStatus(t, do(t, server, http.MethodPost, path, body), http.StatusCreated)
	}

	w := do(t, server, http.MethodGet, path+"?page=1&limit=2", nil)
	wantStatus(t, w, http.StatusOK)
	page := decode[submissionPage](t, w)
	if len(page.Submissions) != 2 || page.Pagination.Total != 3 || !page.Pagination.HasMore {
		t.Errorf("page = %+v", page.Pagination)
	}
	if page.Submissions[0].Code != "" {
		t.Error("history listing should omit code")
	}

	w = do(t, server, http.MethodGet, path+"?status=fail", nil)
	wantStatus(t, w, http.StatusOK)
	page = decode[submissionPage](t, w)
	if page.Pagination.Total != 2 || page.Pagination.Limit != 20 {
		t.Errorf("filtered pagination = %+v", page.Pagination)
	}

	wantStatus(t, do(t, server, http.MethodGet, path+"?page=abc", nil), http.StatusBadRequest)
	wantStatus(t, do(t, server, http.MethodGet, path+"?status=bogus", nil), http.StatusBadRequest)
	wantStatus(t, do(t, server, http.MethodGet, "/v1/users/"+uuid.NewString()+"/submissions", nil), http.StatusNotFound)
}

func TestDashboards_UnknownUser(t *testing.T) {
	server, _ := setupTestServer(t)
	id := uuid.NewString()

	for _, path := range []string{"/stats", "/streak", "/progress"} {
		t.Run(path, func(t *testing.T) {
			wantStatus(t, do(t, server, http.MethodGet, "/v1/users/"+id+path, nil), http.StatusNotFound)
		})
	}
}

func TestLeaderboard_InvalidLimit(t *testing.T) {
	server, _ := setupTestServer(t)
	wantStatus(t, do(t, server, http.MethodGet, "/v1/leaderboard?limit=-1", nil), http.StatusBadRequest)
	wantStatus(t, do(t, server, http.MethodGet, "/v1/leaderboard?limit=ten", nil), http.StatusBadRequest)
}

func TestReindex_WithoutIndex(t *testing.T) {
	server, _ := setupTestServer(t)
	wantStatus(t, do(t, server, http.MethodPost, "/v1/leaderboard/reindex", nil), http.StatusServiceUnavailable)
}

func TestServer_RateLimit(t *testing.T) {
	server, _ := setupTestServer(t, func(c *config.Config) {
		c.RateLimit = 1
		c.RateBurst = 1
	})

	wantStatus(t, do(t, server, http.MethodGet, "/v1/leaderboard", nil), http.StatusOK)
	wantStatus(t, do(t, server, http.MethodGet, "/v1/leaderboard", nil), http.StatusTooManyRequests)
	wantStatus(t, do(t, server, http.MethodGet, "/v1/health", nil), http.StatusOK)
}

func TestNewServer_SeedsCatalog(t *testing.T) {
	path := t.TempDir() + "/catalog.yaml"
	if err := writeFile(path, "problems:\n  - title: Two Sum\n    difficulty: Easy\n"); err != nil {
		t.Fatal(err)
	}
	_, store := setupTestServer(t, func(c *config.Config) { c.CatalogPath = path })

	if _, err := store.Problems().GetBySlug(context.Background(), "two-sum"); err != nil {
		t.Errorf("catalog problem not seeded: %v", err)
	}
}

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0644)
}
