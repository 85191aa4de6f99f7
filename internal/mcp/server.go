package mcp

import (
	"context"
	"fmt"

	mcp "github.com/felixgeelhaar/mcp-go"
	"github.com/felixgeelhaar/mcp-go/server"
	"github.com/google/uuid"

	"github.com/felixgeelhaar/solvetrack/internal/report"
)

// Reporter is the read side the tools expose
type Reporter interface {
	Stats(ctx context.Context, userID uuid.UUID) (*report.StatsSnapshot, error)
	Streak(ctx context.Context, userID uuid.UUID, windowDays int) (*report.StreakReport, error)
	Progress(ctx context.Context, userID uuid.UUID) (*report.Progress, error)
	Leaderboard(ctx context.Context, limit int) (*report.Leaderboard, error)
}

// Server wraps the MCP server with solvetrack dashboards
type Server struct {
	mcpServer   *server.Server
	reporter    Reporter
	defaultUser string
}

// Config contains configuration for the MCP server
type Config struct {
	Reporter Reporter
	// DefaultUserID is used when a tool call omits user_id.
	DefaultUserID string
	Version       string
}

// NewServer creates a new MCP server for solvetrack
func NewServer(cfg Config) *Server {
	s := &Server{
		reporter:    cfg.Reporter,
		defaultUser: cfg.DefaultUserID,
	}

	version := cfg.Version
	if version == "" {
		version = "dev"
	}

	s.mcpServer = server.New(server.Info{
		Name:    "solvetrack",
		Version: version,
	}, server.WithInstructions(`
solvetrack tracks graded coding-practice submissions and derives per-user
statistics, daily solving streaks and a leaderboard.

Available tools:
- solvetrack_stats: Submission counts, success rate, solved problems by difficulty and recent activity
- solvetrack_streak: Current and longest daily streak with an activity calendar
- solvetrack_progress: Solved versus available problems per difficulty
- solvetrack_leaderboard: Users ranked by problems solved
`))

	s.registerTools()

	return s
}

// registerTools registers all solvetrack MCP tools
func (s *Server) registerTools() {
	s.mcpServer.Tool("solvetrack_stats").
		Description("Get the statistics dashboard of a user.").
		Handler(s.handleStats)

	s.mcpServer.Tool("solvetrack_streak").
		Description("Get a user's daily solving streak and activity calendar.").
		Handler(s.handleStreak)

	s.mcpServer.Tool("solvetrack_progress").
		Description("Get a user's progress through the problem catalog by difficulty.").
		Handler(s.handleProgress)

	s.mcpServer.Tool("solvetrack_leaderboard").
		Description("List users ranked by the number of distinct problems solved.").
		Handler(s.handleLeaderboard)
}

// Input types for tools

type UserInput struct {
	UserID string `json:"user_id,omitempty" jsonschema:"description=User ID (defaults to the configured user)"`
}

type StreakInput struct {
	UserID string `json:"user_id,omitempty" jsonschema:"description=User ID (defaults to the configured user)"`
	Days   int    `json:"days,omitempty" jsonschema:"description=Calendar window in days (default: 365)"`
}

type LeaderboardInput struct {
	Limit int `json:"limit,omitempty" jsonschema:"description=Number of entries (default: 10, max: 100)"`
}

// Tool handlers

func (s *Server) handleStats(ctx context.Context, input UserInput) (*report.StatsSnapshot, error) {
	id, err := s.resolveUser(input.UserID)
	if err != nil {
		return nil, err
	}
	snap, err := s.reporter.Stats(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get stats: %w", err)
	}
	return snap, nil
}

func (s *Server) handleStreak(ctx context.Context, input StreakInput) (*report.StreakReport, error) {
	id, err := s.resolveUser(input.UserID)
	if err != nil {
		return nil, err
	}
	if input.Days < 0 {
		return nil, fmt.Errorf("days must not be negative")
	}
	rep, err := s.reporter.Streak(ctx, id, input.Days)
	if err != nil {
		return nil, fmt.Errorf("get streak: %w", err)
	}
	return rep, nil
}

func (s *Server) handleProgress(ctx context.Context, input UserInput) (*report.Progress, error) {
	id, err := s.resolveUser(input.UserID)
	if err != nil {
		return nil, err
	}
	p, err := s.reporter.Progress(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get progress: %w", err)
	}
	return p, nil
}

func (s *Server) handleLeaderboard(ctx context.Context, input LeaderboardInput) (*report.Leaderboard, error) {
	if input.Limit < 0 {
		return nil, fmt.Errorf("limit must not be negative")
	}
	board, err := s.reporter.Leaderboard(ctx, input.Limit)
	if err != nil {
		return nil, fmt.Errorf("get leaderboard: %w", err)
	}
	return board, nil
}

func (s *Server) resolveUser(raw string) (uuid.UUID, error) {
	if raw == "" {
		raw = s.defaultUser
	}
	if raw == "" {
		return uuid.Nil, fmt.Errorf("user_id is required")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid user_id %q: %w", raw, err)
	}
	return id, nil
}

// ServeStdio starts the MCP server on stdio
func (s *Server) ServeStdio(ctx context.Context) error {
	return mcp.ServeStdio(ctx, s.mcpServer)
}

// ServeHTTP starts the MCP server on HTTP (alternative transport)
func (s *Server) ServeHTTP(ctx context.Context, addr string) error {
	return mcp.ServeHTTP(ctx, s.mcpServer, addr)
}

// GetMCPServer returns the underlying MCP server (for testing)
func (s *Server) GetMCPServer() *server.Server {
	return s.mcpServer
}
