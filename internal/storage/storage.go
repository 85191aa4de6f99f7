// Package storage opens the configured store backend.
package storage

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/felixgeelhaar/solvetrack/internal/config"
	"github.com/felixgeelhaar/solvetrack/internal/domain"
	"github.com/felixgeelhaar/solvetrack/internal/storage/memory"
	"github.com/felixgeelhaar/solvetrack/internal/storage/mongo"
	"github.com/felixgeelhaar/solvetrack/internal/storage/postgres"
	"github.com/felixgeelhaar/solvetrack/internal/storage/sqlite"
)

// Open connects to the backend selected by cfg.DatabaseDriver and applies
// its migrations or indexes.
func Open(ctx context.Context, cfg *config.Config) (domain.Store, error) {
	logger := slog.Default().With("component", "storage", "driver", cfg.DatabaseDriver)

	switch cfg.DatabaseDriver {
	case config.DriverSQLite:
		if err := os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0755); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
		store, err := sqlite.NewStore(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		logger.Info("store opened", "path", cfg.SQLitePath)
		return store, nil

	case config.DriverPostgres:
		store, err := postgres.NewStore(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		logger.Info("store opened")
		return store, nil

	case config.DriverMongo:
		store, err := mongo.Connect(ctx, cfg.MongoURL, cfg.MongoDatabase)
		if err != nil {
			return nil, fmt.Errorf("open mongo: %w", err)
		}
		logger.Info("store opened", "database", cfg.MongoDatabase)
		return store, nil

	case config.DriverMemory:
		logger.Warn("using in-memory store; data is lost on exit")
		return memory.NewStore(), nil

	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.DatabaseDriver)
	}
}
