package mongo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/felixgeelhaar/solvetrack/internal/domain"
)

// SubmissionStore is the append-only submission collection
type SubmissionStore struct {
	coll *mongo.Collection
}

// Create appends a submission
func (s *SubmissionStore) Create(ctx context.Context, sub *domain.Submission) error {
	if _, err := s.coll.InsertOne(ctx, toSubmissionDoc(sub)); err != nil {
		return domain.Persist("insert submission", err)
	}
	return nil
}

// ListByUser returns a page of the user's submissions, newest first
func (s *SubmissionStore) ListByUser(ctx context.Context, userID uuid.UUID, q domain.SubmissionQuery) ([]*domain.Submission, int, error) {
	filter := bson.M{"userId": userID.String()}
	if q.Status != nil {
		filter["status"] = string(*q.Status)
	}

	total, err := s.coll.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, domain.Persist("count submissions", err)
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}}).
		SetSkip(int64(q.Offset))
	if q.Limit > 0 {
		opts.SetLimit(int64(q.Limit))
	}
	cur, err := s.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, domain.Persist("list submissions", err)
	}
	var docs []submissionDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, 0, domain.Persist("decode submissions", err)
	}

	subs := make([]*domain.Submission, 0, len(docs))
	for _, d := range docs {
		sub, err := d.toDomain()
		if err != nil {
			return nil, 0, domain.Persist("decode submission", err)
		}
		subs = append(subs, sub)
	}
	return subs, int(total), nil
}

// SuccessTimes returns timestamps of successful submissions at or after since
func (s *SubmissionStore) SuccessTimes(ctx context.Context, userID uuid.UUID, since time.Time) ([]time.Time, error) {
	cur, err := s.coll.Find(ctx,
		bson.M{"userId": userID.String(), "success": true, "createdAt": bson.M{"$gte": since}},
		options.Find().
			SetSort(bson.D{{Key: "createdAt", Value: 1}}).
			SetProjection(bson.M{"createdAt": 1}),
	)
	if err != nil {
		return nil, domain.Persist("list successful submissions", err)
	}
	var docs []struct {
		CreatedAt time.Time `bson:"createdAt"`
	}
	if err := cur.All(ctx, &docs); err != nil {
		return nil, domain.Persist("decode submission times", err)
	}
	times := make([]time.Time, len(docs))
	for i, d := range docs {
		times[i] = d.CreatedAt
	}
	return times, nil
}
