package mongo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/felixgeelhaar/solvetrack/internal/domain"
)

// UserStore persists user documents
type UserStore struct {
	coll *mongo.Collection
}

// Create inserts a new user
func (s *UserStore) Create(ctx context.Context, u *domain.User) error {
	if _, err := s.coll.InsertOne(ctx, toUserDoc(u)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domain.ErrUserAlreadyExists
		}
		return domain.Persist("insert user", err)
	}
	return nil
}

// Get retrieves a user by ID
func (s *UserStore) Get(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	doc, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	return decodeUser(doc)
}

func (s *UserStore) find(ctx context.Context, id uuid.UUID) (userDoc, error) {
	var doc userDoc
	err := s.coll.FindOne(ctx, bson.M{"_id": id.String()}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return doc, domain.ErrUserNotFound
	}
	if err != nil {
		return doc, domain.Persist("find user", err)
	}
	return doc, nil
}

// GetMany retrieves the users that exist among ids
func (s *UserStore) GetMany(ctx context.Context, ids []uuid.UUID) ([]*domain.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	cur, err := s.coll.Find(ctx, bson.M{"_id": bson.M{"$in": idStrings(ids)}},
		options.Find().SetProjection(bson.M{"solvedProblems": 0}))
	if err != nil {
		return nil, domain.Persist("find users", err)
	}
	return decodeUsers(ctx, cur)
}

// Top returns users in leaderboard order
func (s *UserStore) Top(ctx context.Context, limit int) ([]*domain.User, error) {
	opts := options.Find().
		SetSort(bson.D{
			{Key: "statistics.problemsSolvedCount", Value: -1},
			{Key: "createdAt", Value: 1},
			{Key: "_id", Value: 1},
		}).
		SetProjection(bson.M{"solvedProblems": 0})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cur, err := s.coll.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, domain.Persist("list top users", err)
	}
	return decodeUsers(ctx, cur)
}

// UpdateStatistics applies fn and writes statistics plus newly solved
// problems, guarded by the document version.
func (s *UserStore) UpdateStatistics(ctx context.Context, id uuid.UUID, fn func(*domain.User) error) error {
	return s.withVersion(ctx, "update statistics", id, func(doc userDoc) (bson.M, error) {
		u, err := decodeUser(doc)
		if err != nil {
			return nil, err
		}
		before := len(u.SolvedProblems)
		if err := fn(u); err != nil {
			return nil, err
		}
		set := bson.M{
			"statistics": statisticsDoc(u.Statistics),
			"updatedAt":  time.Now().UTC(),
		}
		if len(u.SolvedProblems) != before {
			set["solvedProblems"] = toUserDoc(u).SolvedProblems
		}
		return bson.M{"$set": set, "$inc": bson.M{"version": 1}}, nil
	})
}

// UpdateStreak applies fn and writes only the streak sub-document.
func (s *UserStore) UpdateStreak(ctx context.Context, id uuid.UUID, fn func(*domain.Streak) error) error {
	return s.withVersion(ctx, "update streak", id, func(doc userDoc) (bson.M, error) {
		streak := domain.Streak(doc.Streak)
		if err := fn(&streak); err != nil {
			return nil, err
		}
		return bson.M{
			"$set": bson.M{"streak": streakDoc(streak), "updatedAt": time.Now().UTC()},
			"$inc": bson.M{"version": 1},
		}, nil
	})
}

// withVersion loads the user, builds an update and applies it only if the
// version is unchanged, reloading and retrying otherwise.
func (s *UserStore) withVersion(ctx context.Context, op string, id uuid.UUID, build func(userDoc) (bson.M, error)) error {
	for range maxVersionRetries {
		doc, err := s.find(ctx, id)
		if err != nil {
			return err
		}
		update, err := build(doc)
		if err != nil {
			return err
		}
		res, err := s.coll.UpdateOne(ctx, bson.M{"_id": doc.ID, "version": doc.Version}, update)
		if err != nil {
			return domain.Persist(op, err)
		}
		if res.MatchedCount == 1 {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	return domain.Persist(op, errVersionConflict)
}

func decodeUser(doc userDoc) (*domain.User, error) {
	u, err := doc.toDomain()
	if err != nil {
		return nil, domain.Persist("decode user", err)
	}
	return u, nil
}

func decodeUsers(ctx context.Context, cur *mongo.Cursor) ([]*domain.User, error) {
	var docs []userDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, domain.Persist("decode users", err)
	}
	users := make([]*domain.User, 0, len(docs))
	for _, d := range docs {
		u, err := decodeUser(d)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, nil
}
