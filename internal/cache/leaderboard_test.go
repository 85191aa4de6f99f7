package cache

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/felixgeelhaar/solvetrack/internal/domain"
)

func TestMergeTies(t *testing.T) {
	tests := []struct {
		name string
		top  []string
		tied []string
		want []string
	}{
		{"no extra ties", []string{"a", "b"}, []string{"b"}, []string{"a", "b"}},
		{"extra ties appended", []string{"a", "b"}, []string{"b", "c", "d"}, []string{"a", "b", "c", "d"}},
		{"empty tied", []string{"a"}, nil, []string{"a"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := mergeTies(tt.top, tt.tied)
			if !slices.Equal(got, tt.want) {
				t.Errorf("mergeTies() = %v; want %v", got, tt.want)
			}
		})
	}
}

func TestParseMembers(t *testing.T) {
	id := uuid.New()
	got, err := parseMembers([]string{id.String()})
	if err != nil {
		t.Fatalf("parseMembers() error = %v", err)
	}
	if len(got) != 1 || got[0] != id {
		t.Errorf("parseMembers() = %v; want [%s]", got, id)
	}

	if _, err := parseMembers([]string{"not-a-uuid"}); err == nil {
		t.Error("parseMembers() error = nil; want parse error")
	}
}

func TestMembers(t *testing.T) {
	got := members([]redis.Z{{Score: 3, Member: "a"}, {Score: 2, Member: "b"}})
	if !slices.Equal(got, []string{"a", "b"}) {
		t.Errorf("members() = %v", got)
	}
}

func TestLeaderboardIndex_FailedWriteMarksStale(t *testing.T) {
	// Nothing listens on port 1, so every command fails.
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { client.Close() })
	idx := NewLeaderboardIndex(client)
	ctx := context.Background()

	if idx.Stale() {
		t.Fatal("Stale() = true before any write")
	}
	if err := idx.SetSolved(ctx, uuid.New(), 3); err == nil {
		t.Fatal("SetSolved() error = nil, want dial failure")
	}
	if !idx.Stale() {
		t.Fatal("Stale() = false after failed SetSolved")
	}
	if _, err := idx.Candidates(ctx, 10); !errors.Is(err, domain.ErrIndexStale) {
		t.Errorf("Candidates() error = %v, want ErrIndexStale", err)
	}
	if err := idx.Rebuild(ctx, nil); err == nil {
		t.Fatal("Rebuild() error = nil, want dial failure")
	}
	if !idx.Stale() {
		t.Error("Stale() = false after failed Rebuild")
	}
}
