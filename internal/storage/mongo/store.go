// Package mongo implements the document store on MongoDB.
//
// MongoDB has no row locks, so read-modify-write updates on a user use an
// optimistic version check and retry when another writer got there first.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/felixgeelhaar/solvetrack/internal/domain"
)

const (
	usersCollection       = "users"
	problemsCollection    = "problems"
	submissionsCollection = "submissions"

	// maxVersionRetries bounds optimistic update attempts per call.
	maxVersionRetries = 16
)

// errVersionConflict is returned when the optimistic retries run out.
var errVersionConflict = errors.New("concurrent modification")

// Store is the MongoDB implementation of domain.Store
type Store struct {
	client      *mongo.Client
	users       *UserStore
	problems    *ProblemStore
	submissions *SubmissionStore
}

// Connect dials uri, ensures indexes on database and returns the store.
func Connect(ctx context.Context, uri, database string) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongodb: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}

	db := client.Database(database)
	if err := ensureIndexes(ctx, db); err != nil {
		client.Disconnect(ctx)
		return nil, err
	}

	slog.Info("connected to mongodb", "database", database)
	return &Store{
		client:      client,
		users:       &UserStore{coll: db.Collection(usersCollection)},
		problems:    &ProblemStore{coll: db.Collection(problemsCollection)},
		submissions: &SubmissionStore{coll: db.Collection(submissionsCollection)},
	}, nil
}

func ensureIndexes(ctx context.Context, db *mongo.Database) error {
	indexes := map[string][]mongo.IndexModel{
		usersCollection: {
			{Keys: bson.D{{Key: "username", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{
				{Key: "statistics.problemsSolvedCount", Value: -1},
				{Key: "createdAt", Value: 1},
				{Key: "_id", Value: 1},
			}},
		},
		problemsCollection: {
			{Keys: bson.D{{Key: "slug", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
		submissionsCollection: {
			{Keys: bson.D{{Key: "userId", Value: 1}, {Key: "createdAt", Value: -1}}},
			{Keys: bson.D{{Key: "userId", Value: 1}, {Key: "success", Value: 1}, {Key: "createdAt", Value: 1}}},
		},
	}
	for name, models := range indexes {
		if _, err := db.Collection(name).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("create %s indexes: %w", name, err)
		}
	}
	return nil
}

func (s *Store) Users() domain.UserRepository             { return s.users }
func (s *Store) Problems() domain.ProblemRepository       { return s.problems }
func (s *Store) Submissions() domain.SubmissionRepository { return s.submissions }

// Close disconnects the client.
func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// Drop removes every collection. Integration tests use it between runs.
func (s *Store) Drop(ctx context.Context) error {
	for _, coll := range []*mongo.Collection{s.users.coll, s.problems.coll, s.submissions.coll} {
		if _, err := coll.DeleteMany(ctx, bson.M{}); err != nil {
			return domain.Persist("drop "+coll.Name(), err)
		}
	}
	return nil
}

var (
	_ domain.Store                = (*Store)(nil)
	_ domain.UserRepository       = (*UserStore)(nil)
	_ domain.ProblemRepository    = (*ProblemStore)(nil)
	_ domain.SubmissionRepository = (*SubmissionStore)(nil)
)
