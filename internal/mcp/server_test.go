package mcp

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/solvetrack/internal/domain"
	"github.com/felixgeelhaar/solvetrack/internal/report"
	"github.com/felixgeelhaar/solvetrack/internal/storage/memory"
	"github.com/felixgeelhaar/solvetrack/internal/storage/storetest"
)

// mockReporter records the arguments of the last call
type mockReporter struct {
	statsFn       func(ctx context.Context, id uuid.UUID) (*report.StatsSnapshot, error)
	lastDays      int
	lastLimit     int
	leaderboardFn func(ctx context.Context, limit int) (*report.Leaderboard, error)
}

func (m *mockReporter) Stats(ctx context.Context, id uuid.UUID) (*report.StatsSnapshot, error) {
	if m.statsFn != nil {
		return m.statsFn(ctx, id)
	}
	return &report.StatsSnapshot{UserID: id}, nil
}

func (m *mockReporter) Streak(ctx context.Context, id uuid.UUID, days int) (*report.StreakReport, error) {
	m.lastDays = days
	return &report.StreakReport{WindowDays: days}, nil
}

func (m *mockReporter) Progress(ctx context.Context, id uuid.UUID) (*report.Progress, error) {
	return &report.Progress{}, nil
}

func (m *mockReporter) Leaderboard(ctx context.Context, limit int) (*report.Leaderboard, error) {
	m.lastLimit = limit
	if m.leaderboardFn != nil {
		return m.leaderboardFn(ctx, limit)
	}
	return &report.Leaderboard{}, nil
}

func TestNewServer(t *testing.T) {
	server := NewServer(Config{Reporter: &mockReporter{}})
	if server.GetMCPServer() == nil {
		t.Fatal("expected non-nil underlying MCP server")
	}
}

func TestServerConfig(t *testing.T) {
	// Nil reporter must not panic at construction.
	if NewServer(Config{}) == nil {
		t.Fatal("expected non-nil server even with empty config")
	}
}

func TestResolveUser(t *testing.T) {
	def := uuid.New()
	explicit := uuid.New()
	server := NewServer(Config{Reporter: &mockReporter{}, DefaultUserID: def.String()})

	tests := []struct {
		name    string
		raw     string
		want    uuid.UUID
		wantErr bool
	}{
		{"explicit id", explicit.String(), explicit, false},
		{"falls back to default", "", def, false},
		{"invalid id", "abc", uuid.Nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := server.resolveUser(tt.raw)
			if (err != nil) != tt.wantErr {
				t.Fatalf("resolveUser() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("resolveUser() = %v, want %v", got, tt.want)
			}
		})
	}

	noDefault := NewServer(Config{Reporter: &mockReporter{}})
	if _, err := noDefault.resolveUser(""); err == nil {
		t.Error("resolveUser() should fail without a user id or default")
	}
}

func TestHandleStats_WrapsErrors(t *testing.T) {
	m := &mockReporter{statsFn: func(ctx context.Context, id uuid.UUID) (*report.StatsSnapshot, error) {
		return nil, domain.ErrUserNotFound
	}}
	server := NewServer(Config{Reporter: m})

	_, err := server.handleStats(context.Background(), UserInput{UserID: uuid.NewString()})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("handleStats() error = %v, want ErrNotFound", err)
	}
}

func TestHandleStreak_PassesWindow(t *testing.T) {
	m := &mockReporter{}
	server := NewServer(Config{Reporter: m})

	rep, err := server.handleStreak(context.Background(), StreakInput{UserID: uuid.NewString(), Days: 30})
	if err != nil {
		t.Fatalf("handleStreak() error = %v", err)
	}
	if m.lastDays != 30 || rep.WindowDays != 30 {
		t.Errorf("days = %d, want 30", m.lastDays)
	}

	if _, err := server.handleStreak(context.Background(), StreakInput{UserID: uuid.NewString(), Days: -1}); err == nil {
		t.Error("negative days should fail")
	}
}

func TestHandleLeaderboard(t *testing.T) {
	m := &mockReporter{}
	server := NewServer(Config{Reporter: m})

	if _, err := server.handleLeaderboard(context.Background(), LeaderboardInput{Limit: 5}); err != nil {
		t.Fatalf("handleLeaderboard() error = %v", err)
	}
	if m.lastLimit != 5 {
		t.Errorf("limit = %d, want 5", m.lastLimit)
	}
	if _, err := server.handleLeaderboard(context.Background(), LeaderboardInput{Limit: -3}); err == nil {
		t.Error("negative limit should fail")
	}
}

func TestTools_WithReporter(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	user := storetest.MustUser(t, store, "ada")
	storetest.MustProblem(t, store, "Two Sum", "Easy")

	server := NewServer(Config{
		Reporter:      report.NewReporter(store, time.UTC),
		DefaultUserID: user.ID.String(),
	})

	snap, err := server.handleStats(ctx, UserInput{})
	if err != nil {
		t.Fatalf("handleStats() error = %v", err)
	}
	if snap.Username != "ada" || snap.SuccessRate != "0.00%" {
		t.Errorf("snapshot = %+v", snap)
	}

	progress, err := server.handleProgress(ctx, UserInput{})
	if err != nil {
		t.Fatalf("handleProgress() error = %v", err)
	}
	if progress.Easy.Total != 1 || progress.Easy.Solved != 0 {
		t.Errorf("progress.Easy = %+v", progress.Easy)
	}

	board, err := server.handleLeaderboard(ctx, LeaderboardInput{})
	if err != nil {
		t.Fatalf("handleLeaderboard() error = %v", err)
	}
	if board.TotalUsers != 1 || board.Entries[0].SuccessRate != "0%" {
		t.Errorf("board = %+v", board)
	}
}
