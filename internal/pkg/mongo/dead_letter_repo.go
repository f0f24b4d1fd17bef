package mongo

import (
	"Timeline/internal/model"
	"Timeline/internal/repository"
	"context"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const deadLetterCollection = "dead_letters"

// DeadLetterDoc 死信文档
type DeadLetterDoc struct {
	ID        string    `bson:"_id"`
	Kind      string    `bson:"kind"`
	Payload   string    `bson:"payload"`
	LastError string    `bson:"last_error"`
	Attempts  int       `bson:"attempts"`
	Replays   int       `bson:"replays"`
	Status    string    `bson:"status"`
	CreatedAt time.Time `bson:"created_at"`
	UpdatedAt time.Time `bson:"updated_at"`
}

func (d *DeadLetterDoc) toModel() *model.DeadLetter {
	return &model.DeadLetter{
		ID:        d.ID,
		Kind:      d.Kind,
		Payload:   d.Payload,
		LastError: d.LastError,
		Attempts:  d.Attempts,
		Replays:   d.Replays,
		Status:    d.Status,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}

type deadLetterRepoImpl struct {
	col *mongo.Collection
}

// NewDeadLetterRepo 死信存放在 MongoDB 中，与关系库解耦
func NewDeadLetterRepo(db *mongo.Database) repository.DeadLetterRepo {
	return &deadLetterRepoImpl{
		col: db.Collection(deadLetterCollection),
	}
}

func ensureDeadLetterIndexes(ctx context.Context, db *mongo.Database) error {
	_, err := db.Collection(deadLetterCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "status", Value: 1}, {Key: "kind", Value: 1}, {Key: "created_at", Value: 1}},
	})
	return err
}

func (s *deadLetterRepoImpl) Save(ctx context.Context, letter *model.DeadLetter) error {
	if letter.ID == "" {
		letter.ID = uuid.NewString()
	}
	if letter.Status == "" {
		letter.Status = model.DeadLetterPending
	}
	now := time.Now()
	if letter.CreatedAt.IsZero() {
		letter.CreatedAt = now
	}
	letter.UpdatedAt = now

	_, err := s.col.InsertOne(ctx, &DeadLetterDoc{
		ID:        letter.ID,
		Kind:      letter.Kind,
		Payload:   letter.Payload,
		LastError: letter.LastError,
		Attempts:  letter.Attempts,
		Replays:   letter.Replays,
		Status:    letter.Status,
		CreatedAt: letter.CreatedAt,
		UpdatedAt: letter.UpdatedAt,
	})
	return err
}

func (s *deadLetterRepoImpl) ListPending(ctx context.Context, kinds []string, limit int) ([]*model.DeadLetter, error) {
	filter := bson.M{"status": model.DeadLetterPending}
	if len(kinds) > 0 {
		filter["kind"] = bson.M{"$in": kinds}
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: 1}}).
		SetLimit(int64(limit))

	cursor, err := s.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = cursor.Close(ctx)
	}()

	var docs []*DeadLetterDoc
	if err = cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	letters := make([]*model.DeadLetter, 0, len(docs))
	for _, d := range docs {
		letters = append(letters, d.toModel())
	}
	return letters, nil
}

func (s *deadLetterRepoImpl) MarkResolved(ctx context.Context, id string) error {
	update := bson.M{"$set": bson.M{
		"status":     model.DeadLetterResolved,
		"updated_at": time.Now(),
	}}
	_, err := s.col.UpdateByID(ctx, id, update)
	return err
}

func (s *deadLetterRepoImpl) MarkReplayFailed(ctx context.Context, id string, lastError string, park bool) error {
	status := model.DeadLetterPending
	if park {
		status = model.DeadLetterParked
	}
	update := bson.M{
		"$set": bson.M{
			"status":     status,
			"last_error": lastError,
			"updated_at": time.Now(),
		},
		"$inc": bson.M{"replays": 1},
	}
	_, err := s.col.UpdateByID(ctx, id, update)
	return err
}
