package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/felixgeelhaar/fortify/ratelimit"
	"github.com/redis/go-redis/v9"

	"github.com/felixgeelhaar/solvetrack/internal/cache"
	"github.com/felixgeelhaar/solvetrack/internal/catalog"
	"github.com/felixgeelhaar/solvetrack/internal/config"
	"github.com/felixgeelhaar/solvetrack/internal/domain"
	"github.com/felixgeelhaar/solvetrack/internal/keylock"
	"github.com/felixgeelhaar/solvetrack/internal/metrics"
	"github.com/felixgeelhaar/solvetrack/internal/queue"
	"github.com/felixgeelhaar/solvetrack/internal/report"
	"github.com/felixgeelhaar/solvetrack/internal/stats"
	"github.com/felixgeelhaar/solvetrack/internal/storage"
	"github.com/felixgeelhaar/solvetrack/internal/streak"
	"github.com/felixgeelhaar/solvetrack/internal/submission"
)

// Server represents the solvetrack daemon HTTP server
type Server struct {
	cfg    *config.Config
	server *http.Server
	router *http.ServeMux
	logger *slog.Logger

	store       domain.Store
	submissions *submission.Service
	recorder    *submission.Recorder
	reporter    *report.Reporter
	seeder      *catalog.Seeder
	metrics     *metrics.Metrics
	limiter     ratelimit.RateLimiter

	// Optional infrastructure
	redis    *redis.Client
	index    *cache.LeaderboardIndex
	conn     *queue.Connection
	consumer *queue.Consumer
}

// ServerConfig holds configuration for creating a new server
type ServerConfig struct {
	Config *config.Config
	// Store overrides the store opened from Config.
	Store domain.Store
	// Index overrides the Redis index opened from Config.RedisURL.
	Index *cache.LeaderboardIndex
}

// NewServer creates a new daemon server
func NewServer(ctx context.Context, sc ServerConfig) (*Server, error) {
	cfg := sc.Config
	s := &Server{
		cfg:     cfg,
		router:  http.NewServeMux(),
		logger:  slog.Default().With("component", "daemon"),
		metrics: metrics.New(),
		store:   sc.Store,
		index:   sc.Index,
	}

	if s.store == nil {
		store, err := storage.Open(ctx, cfg)
		if err != nil {
			return nil, err
		}
		s.store = store
	}

	if s.index == nil && cfg.RedisURL != "" {
		client, err := cache.NewClient(ctx, cfg.RedisURL)
		if err != nil {
			s.store.Close()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		s.redis = client
		s.index = cache.NewLeaderboardIndex(client)
	}

	locks := keylock.New()
	users := s.store.Users()
	s.submissions = submission.NewService(users, s.store.Problems(), s.store.Submissions())

	recorderOpts := []submission.RecorderOption{submission.WithMetrics(s.metrics)}
	reporterOpts := []report.Option{}
	if s.index != nil {
		recorderOpts = append(recorderOpts, submission.WithLeaderboardIndex(s.index))
		reporterOpts = append(reporterOpts, report.WithLeaderboardIndex(s.index))
	}
	s.recorder = submission.NewRecorder(
		s.submissions,
		stats.NewAggregator(users, s.store.Problems(), locks),
		streak.NewTracker(users, locks, cfg.Location),
		recorderOpts...,
	)
	s.reporter = report.NewReporter(s.store, cfg.Location, reporterOpts...)
	s.seeder = catalog.NewSeeder(s.store.Problems())

	if cfg.CatalogPath != "" {
		if _, err := s.seeder.SeedPath(ctx, cfg.CatalogPath); err != nil {
			s.closeInfra()
			return nil, fmt.Errorf("seed catalog: %w", err)
		}
	}

	if cfg.RateLimit > 0 {
		s.limiter = ratelimit.New(&ratelimit.Config{
			Rate:     cfg.RateLimit,
			Burst:    max(cfg.RateBurst, cfg.RateLimit),
			Interval: time.Second,
		})
	}

	s.setupRoutes()

	handler := recoverPanics(s.logger, withRequestID(accessLog(s.logger,
		limitRate(s.logger, s.limiter, s.router),
	)))
	s.server = &http.Server{
		Addr:         cfg.Addr(),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s, nil
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	// Health & metrics
	s.router.HandleFunc("GET /v1/health", s.handleHealth)
	s.router.Handle("GET /metrics", s.metrics.Handler())

	// Users
	s.router.HandleFunc("POST /v1/users", s.handleCreateUser)
	s.router.HandleFunc("GET /v1/users/{userID}", s.handleGetUser)

	// Problems
	s.router.HandleFunc("POST /v1/problems", s.handleCreateProblem)
	s.router.HandleFunc("POST /v1/problems/import", s.handleImportProblems)
	s.router.HandleFunc("GET /v1/problems/{slug}", s.handleGetProblem)

	// Submissions
	s.router.HandleFunc("POST /v1/users/{userID}/submissions", s.handleCreateSubmission)
	s.router.HandleFunc("GET /v1/users/{userID}/submissions", s.handleListSubmissions)

	// Dashboards
	s.router.HandleFunc("GET /v1/users/{userID}/stats", s.handleStats)
	s.router.HandleFunc("GET /v1/users/{userID}/streak", s.handleStreak)
	s.router.HandleFunc("GET /v1/users/{userID}/progress", s.handleProgress)
	s.router.HandleFunc("GET /v1/leaderboard", s.handleLeaderboard)
	s.router.HandleFunc("POST /v1/leaderboard/reindex", s.handleReindex)
}

// Handler returns the full middleware-wrapped handler
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start starts the verdict consumer, when configured, and the HTTP server
func (s *Server) Start(ctx context.Context) error {
	if s.cfg.RabbitMQURL != "" {
		if err := s.startConsumer(ctx); err != nil {
			return err
		}
	}

	s.logger.Info("starting solvetrack daemon",
		"addr", s.server.Addr,
		"driver", s.cfg.DatabaseDriver,
		"leaderboard_index", s.index != nil,
		"verdict_queue", s.consumer != nil,
	)
	return s.server.ListenAndServe()
}

func (s *Server) startConsumer(ctx context.Context) error {
	conn, err := queue.NewConnection(s.cfg.RabbitMQURL)
	if err != nil {
		return fmt.Errorf("connect rabbitmq: %w", err)
	}
	consumer := queue.NewConsumer(conn, queue.RecordVerdicts(s.recorder), queue.ConsumerConfig{
		Workers: s.cfg.QueueWorkers,
		Metrics: s.metrics,
	})
	if err := consumer.Start(ctx); err != nil {
		conn.Close()
		return fmt.Errorf("start consumer: %w", err)
	}
	s.conn = conn
	s.consumer = consumer
	return nil
}

// Shutdown gracefully shuts down the server and releases its connections
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down daemon...")

	err := s.server.Shutdown(ctx)
	if s.consumer != nil {
		s.consumer.Stop()
	}
	s.closeInfra()
	return err
}

func (s *Server) closeInfra() {
	if s.conn != nil {
		if err := s.conn.Close(); err != nil {
			s.logger.Warn("failed to close rabbitmq connection", "error", err)
		}
	}
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			s.logger.Warn("failed to close redis client", "error", err)
		}
	}
	if err := s.store.Close(); err != nil {
		s.logger.Warn("failed to close store", "error", err)
	}
}

func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

func (s *Server) jsonError(w http.ResponseWriter, status int, message string, err error) {
	response := map[string]any{
		"error":  message,
		"status": status,
	}
	if err != nil {
		response["details"] = err.Error()
		var ve *domain.ValidationError
		if errors.As(err, &ve) && ve.Field != "" {
			response["field"] = ve.Field
		}
	}
	s.jsonResponse(w, status, response)
}

// domainError maps a service error onto an HTTP status. Store failures
// are logged and their cause is not exposed.
func (s *Server) domainError(w http.ResponseWriter, r *http.Request, message string, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		s.jsonError(w, http.StatusBadRequest, message, err)
	case errors.Is(err, domain.ErrNotFound):
		s.jsonError(w, http.StatusNotFound, message, err)
	case errors.Is(err, domain.ErrConflict):
		s.jsonError(w, http.StatusConflict, message, err)
	default:
		s.logger.Error(message,
			"request_id", RequestID(r.Context()),
			"path", r.URL.Path,
			"error", err,
		)
		s.jsonError(w, http.StatusInternalServerError, message, nil)
	}
}
