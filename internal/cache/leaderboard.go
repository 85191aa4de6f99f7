// Package cache keeps the Redis sorted-set index that ranks users by
// problems solved.
package cache

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/felixgeelhaar/fortify/circuitbreaker"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/felixgeelhaar/solvetrack/internal/domain"
)

// DefaultKey is the sorted set holding userID -> solved count
const DefaultKey = "solvetrack:leaderboard:solved"

// LeaderboardIndex implements domain.LeaderboardIndex on a Redis sorted set.
// Calls go through a circuit breaker so an unavailable Redis fails fast and
// callers fall back to the primary store. A failed SetSolved marks the index
// stale until the next successful Rebuild.
type LeaderboardIndex struct {
	client  redis.UniversalClient
	key     string
	breaker circuitbreaker.CircuitBreaker[[]uuid.UUID]
	stale   atomic.Bool
	logger  *slog.Logger
}

// Option configures a LeaderboardIndex
type Option func(*LeaderboardIndex)

// WithKey overrides the sorted set key
func WithKey(key string) Option {
	return func(l *LeaderboardIndex) { l.key = key }
}

// NewClient parses a redis:// URL and verifies the server answers.
func NewClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// NewLeaderboardIndex creates an index on client
func NewLeaderboardIndex(client redis.UniversalClient, opts ...Option) *LeaderboardIndex {
	l := &LeaderboardIndex{
		client: client,
		key:    DefaultKey,
		logger: slog.Default().With("component", "leaderboard_index"),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.breaker = circuitbreaker.New[[]uuid.UUID](circuitbreaker.Config{
		MaxRequests: 1,
		Interval:    30 * time.Second,
		Timeout:     15 * time.Second,
		ReadyToTrip: func(counts circuitbreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(from, to circuitbreaker.State) {
			l.logger.Warn("circuit breaker state change", "from", from.String(), "to", to.String())
		},
	})
	return l
}

// SetSolved records the user's current solved count
func (l *LeaderboardIndex) SetSolved(ctx context.Context, userID uuid.UUID, solved int) error {
	_, err := l.breaker.Execute(ctx, func(ctx context.Context) ([]uuid.UUID, error) {
		return nil, l.client.ZAdd(ctx, l.key, redis.Z{Score: float64(solved), Member: userID.String()}).Err()
	})
	if err != nil {
		if !l.stale.Swap(true) {
			l.logger.Warn("leaderboard index marked stale", "user_id", userID, "error", err)
		}
		return fmt.Errorf("set solved: %w", err)
	}
	return nil
}

// Stale reports whether a write was lost since the last rebuild
func (l *LeaderboardIndex) Stale() bool { return l.stale.Load() }

// Candidates returns the top limit members plus every member tied with the
// last of them. limit <= 0 returns every member. It returns
// domain.ErrIndexStale without reading Redis while the index is stale.
func (l *LeaderboardIndex) Candidates(ctx context.Context, limit int) ([]uuid.UUID, error) {
	if l.stale.Load() {
		return nil, domain.ErrIndexStale
	}
	ids, err := l.breaker.Execute(ctx, func(ctx context.Context) ([]uuid.UUID, error) {
		if limit <= 0 {
			members, err := l.client.ZRevRange(ctx, l.key, 0, -1).Result()
			if err != nil {
				return nil, err
			}
			return parseMembers(members)
		}

		top, err := l.client.ZRevRangeWithScores(ctx, l.key, 0, int64(limit-1)).Result()
		if err != nil {
			return nil, err
		}
		if len(top) < limit {
			return parseMembers(members(top))
		}

		last := strconv.FormatFloat(top[len(top)-1].Score, 'f', -1, 64)
		tied, err := l.client.ZRangeByScore(ctx, l.key, &redis.ZRangeBy{Min: last, Max: last}).Result()
		if err != nil {
			return nil, err
		}
		return parseMembers(mergeTies(members(top), tied))
	})
	if err != nil {
		return nil, fmt.Errorf("leaderboard candidates: %w", err)
	}
	return ids, nil
}

// Rebuild replaces the index with the given users' solved counts and
// clears the stale mark.
func (l *LeaderboardIndex) Rebuild(ctx context.Context, users []*domain.User) error {
	_, err := l.breaker.Execute(ctx, func(ctx context.Context) ([]uuid.UUID, error) {
		_, err := l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, l.key)
			if len(users) == 0 {
				return nil
			}
			zs := make([]redis.Z, len(users))
			for i, u := range users {
				zs[i] = redis.Z{Score: float64(u.Statistics.ProblemsSolvedCount), Member: u.ID.String()}
			}
			pipe.ZAdd(ctx, l.key, zs...)
			return nil
		})
		return nil, err
	})
	if err != nil {
		return fmt.Errorf("rebuild leaderboard index: %w", err)
	}
	l.stale.Store(false)
	l.logger.Info("leaderboard index rebuilt", "users", len(users))
	return nil
}

func members(zs []redis.Z) []string {
	out := make([]string, len(zs))
	for i, z := range zs {
		out[i], _ = z.Member.(string)
	}
	return out
}

// mergeTies appends members of tied not already in top, keeping top's order.
func mergeTies(top, tied []string) []string {
	seen := make(map[string]struct{}, len(top))
	for _, m := range top {
		seen[m] = struct{}{}
	}
	out := top
	for _, m := range tied {
		if _, ok := seen[m]; !ok {
			seen[m] = struct{}{}
			out = append(out, m)
		}
	}
	return out
}

func parseMembers(ms []string) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, len(ms))
	for _, m := range ms {
		id, err := uuid.Parse(m)
		if err != nil {
			return nil, fmt.Errorf("parse member %q: %w", m, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

var _ domain.LeaderboardIndex = (*LeaderboardIndex)(nil)
