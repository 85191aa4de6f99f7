package mongo

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/felixgeelhaar/solvetrack/internal/domain"
)

// ProblemStore persists problem documents
type ProblemStore struct {
	coll *mongo.Collection
}

// Create inserts a problem
func (s *ProblemStore) Create(ctx context.Context, p *domain.Problem) error {
	if !p.Difficulty.Valid() {
		return domain.NewValidationError("difficulty", domain.ErrUnknownDifficulty.Error())
	}
	doc := problemDoc{
		ID:         p.ID.String(),
		Title:      p.Title,
		Slug:       p.Slug,
		Difficulty: p.Difficulty.String(),
		CreatedAt:  p.CreatedAt,
	}
	if _, err := s.coll.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domain.ErrConflict
		}
		return domain.Persist("insert problem", err)
	}
	return nil
}

// Get retrieves a problem by ID
func (s *ProblemStore) Get(ctx context.Context, id uuid.UUID) (*domain.Problem, error) {
	return s.findOne(ctx, bson.M{"_id": id.String()})
}

// GetBySlug retrieves a problem by slug
func (s *ProblemStore) GetBySlug(ctx context.Context, slug string) (*domain.Problem, error) {
	return s.findOne(ctx, bson.M{"slug": slug})
}

func (s *ProblemStore) findOne(ctx context.Context, filter bson.M) (*domain.Problem, error) {
	var doc problemDoc
	err := s.coll.FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, domain.ErrProblemNotFound
	}
	if err != nil {
		return nil, domain.Persist("find problem", err)
	}
	p, err := doc.toDomain()
	return p, domain.Persist("decode problem", err)
}

// GetMany retrieves the problems that exist among ids
func (s *ProblemStore) GetMany(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*domain.Problem, error) {
	out := make(map[uuid.UUID]*domain.Problem, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	cur, err := s.coll.Find(ctx, bson.M{"_id": bson.M{"$in": idStrings(ids)}})
	if err != nil {
		return nil, domain.Persist("find problems", err)
	}
	var docs []problemDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, domain.Persist("decode problems", err)
	}
	for _, d := range docs {
		p, err := d.toDomain()
		if err != nil {
			return nil, domain.Persist("decode problem", err)
		}
		out[p.ID] = p
	}
	return out, nil
}

// CountByDifficulty groups the catalog by difficulty
func (s *ProblemStore) CountByDifficulty(ctx context.Context) (map[domain.Difficulty]int, error) {
	cur, err := s.coll.Aggregate(ctx, mongo.Pipeline{
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$difficulty"},
			{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
	})
	if err != nil {
		return nil, domain.Persist("count problems", err)
	}
	var groups []struct {
		Difficulty string `bson:"_id"`
		Count      int    `bson:"count"`
	}
	if err := cur.All(ctx, &groups); err != nil {
		return nil, domain.Persist("decode problem counts", err)
	}
	out := make(map[domain.Difficulty]int, len(domain.Difficulties))
	for _, g := range groups {
		d, err := domain.ParseDifficulty(g.Difficulty)
		if err != nil {
			return nil, domain.Persist("decode problem counts", err)
		}
		out[d] = g.Count
	}
	return out, nil
}
