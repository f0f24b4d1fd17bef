package mongo

import (
	"Timeline/internal/model"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"
)

func TestDeadLetterRepo(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	ctx := context.Background()

	mt.Run("save", func(mt *mtest.T) {
		repo := NewDeadLetterRepo(mt.DB)
		mt.AddMockResponses(mtest.CreateSuccessResponse())

		letter := &model.DeadLetter{
			Kind:    model.DeadLetterKindBackfill,
			Payload: `{"follower_id":1,"followed_id":2}`,
		}
		require.NoError(mt, repo.Save(ctx, letter))
		assert.NotEmpty(mt, letter.ID)
		assert.Equal(mt, model.DeadLetterPending, letter.Status)
		assert.False(mt, letter.CreatedAt.IsZero())

		started := mt.GetStartedEvent()
		require.NotNil(mt, started)
		assert.Equal(mt, "insert", started.CommandName)
		assert.Equal(mt, deadLetterCollection, started.Command.Lookup("insert").StringValue())
		doc := started.Command.Lookup("documents", "0").Document()
		assert.Equal(mt, letter.ID, doc.Lookup("_id").StringValue())
		assert.Equal(mt, model.DeadLetterKindBackfill, doc.Lookup("kind").StringValue())
		assert.Equal(mt, model.DeadLetterPending, doc.Lookup("status").StringValue())
	})

	mt.Run("list pending", func(mt *mtest.T) {
		repo := NewDeadLetterRepo(mt.DB)
		createdAt := time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, mt.DB.Name()+"."+deadLetterCollection, mtest.FirstBatch, bson.D{
			{Key: "_id", Value: "letter-1"},
			{Key: "kind", Value: model.DeadLetterKindFanoutBatch},
			{Key: "payload", Value: `{"post_id":9}`},
			{Key: "last_error", Value: "injected"},
			{Key: "attempts", Value: 3},
			{Key: "replays", Value: 1},
			{Key: "status", Value: model.DeadLetterPending},
			{Key: "created_at", Value: createdAt},
		}))

		letters, err := repo.ListPending(ctx, []string{model.DeadLetterKindFanoutBatch}, 10)
		require.NoError(mt, err)
		require.Len(mt, letters, 1)
		assert.Equal(mt, "letter-1", letters[0].ID)
		assert.Equal(mt, 3, letters[0].Attempts)
		assert.Equal(mt, 1, letters[0].Replays)
		assert.True(mt, createdAt.Equal(letters[0].CreatedAt))

		started := mt.GetStartedEvent()
		require.NotNil(mt, started)
		assert.Equal(mt, "find", started.CommandName)
		filter := started.Command.Lookup("filter").Document()
		assert.Equal(mt, model.DeadLetterPending, filter.Lookup("status").StringValue())
		assert.Equal(mt, model.DeadLetterKindFanoutBatch, filter.Lookup("kind", "$in", "0").StringValue())
		assert.Equal(mt, int32(10), started.Command.Lookup("limit").AsInt32())
	})

	mt.Run("mark replay failed parks", func(mt *mtest.T) {
		repo := NewDeadLetterRepo(mt.DB)
		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "n", Value: 1},
			bson.E{Key: "nModified", Value: 1},
		))

		require.NoError(mt, repo.MarkReplayFailed(ctx, "letter-1", "still failing", true))

		started := mt.GetStartedEvent()
		require.NotNil(mt, started)
		assert.Equal(mt, "update", started.CommandName)
		update := started.Command.Lookup("updates", "0").Document()
		assert.Equal(mt, "letter-1", update.Lookup("q", "_id").StringValue())
		assert.Equal(mt, model.DeadLetterParked, update.Lookup("u", "$set", "status").StringValue())
		assert.Equal(mt, "still failing", update.Lookup("u", "$set", "last_error").StringValue())
		assert.Equal(mt, int32(1), update.Lookup("u", "$inc", "replays").AsInt32())
	})

	mt.Run("mark resolved", func(mt *mtest.T) {
		repo := NewDeadLetterRepo(mt.DB)
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}))

		require.NoError(mt, repo.MarkResolved(ctx, "letter-2"))

		update := mt.GetStartedEvent().Command.Lookup("updates", "0").Document()
		assert.Equal(mt, model.DeadLetterResolved, update.Lookup("u", "$set", "status").StringValue())
	})

	mt.Run("save error", func(mt *mtest.T) {
		repo := NewDeadLetterRepo(mt.DB)
		mt.AddMockResponses(mtest.CreateWriteErrorsResponse(mtest.WriteError{
			Index:   0,
			Code:    11000,
			Message: "duplicate key",
		}))

		err := repo.Save(ctx, &model.DeadLetter{ID: "dup", Kind: model.DeadLetterKindEvent, Payload: "{}"})
		assert.Error(mt, err)
	})
}
