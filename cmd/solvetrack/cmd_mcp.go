package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/felixgeelhaar/solvetrack/internal/cache"
	"github.com/felixgeelhaar/solvetrack/internal/config"
	mcpserver "github.com/felixgeelhaar/solvetrack/internal/mcp"
	"github.com/felixgeelhaar/solvetrack/internal/report"
	"github.com/felixgeelhaar/solvetrack/internal/storage"
)

// cmdMCP serves the read-only dashboard tools over stdio. It opens the
// same store the daemon is configured with.
func cmdMCP(local *config.LocalConfig) error {
	// stdout carries the protocol.
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, err := storage.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	var opts []report.Option
	if cfg.RedisURL != "" {
		client, err := cache.NewClient(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer client.Close()
		opts = append(opts, report.WithLeaderboardIndex(cache.NewLeaderboardIndex(client)))
	}

	srv := mcpserver.NewServer(mcpserver.Config{
		Reporter:      report.NewReporter(store, cfg.Location, opts...),
		DefaultUserID: local.Client.UserID,
		Version:       Version,
	})
	return srv.ServeStdio(ctx)
}
