//go:build integration

package mongo_test

import (
	"context"
	"testing"

	"github.com/testcontainers/testcontainers-go"
	tcmongo "github.com/testcontainers/testcontainers-go/modules/mongodb"

	"github.com/felixgeelhaar/solvetrack/internal/domain"
	"github.com/felixgeelhaar/solvetrack/internal/storage/mongo"
	"github.com/felixgeelhaar/solvetrack/internal/storage/storetest"
)

// setupMongo starts a MongoDB container and returns its URI
func setupMongo(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	container, err := tcmongo.Run(ctx, "mongo:7")
	if err != nil {
		t.Fatalf("failed to start MongoDB container: %v", err)
	}
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	uri, err := container.ConnectionString(ctx)
	if err != nil {
		t.Fatalf("failed to get connection string: %v", err)
	}
	return uri
}

func TestIntegration_Store(t *testing.T) {
	uri := setupMongo(t)
	ctx := context.Background()

	storetest.Run(t, func(t *testing.T) domain.Store {
		s, err := mongo.Connect(ctx, uri, "solvetrack_test")
		if err != nil {
			t.Fatalf("Connect() error = %v", err)
		}
		if err := s.Drop(ctx); err != nil {
			t.Fatalf("Drop() error = %v", err)
		}
		return s
	})
}
