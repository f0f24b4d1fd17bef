package service

import (
	"Timeline/internal/model"
	"Timeline/internal/pkg/testutil"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReplayParksAfterMaxReplays(t *testing.T) {
	env, flaky := newFlakyEnv(t)
	ctx := context.Background()
	testutil.SeedFollows(t, env.db, 1, 2)
	flaky.failUser.Store(2)

	_, err := env.post.CreatePost(ctx, 1, "stuck", nil)
	require.NoError(t, err)
	drain(t, env, 0)
	require.Len(t, pendingLetters(t, env, model.DeadLetterKindFanoutBatch), 1)

	res, err := env.deadLetter.Replay(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, &ReplayResult{Failed: 1}, res)

	res, err = env.deadLetter.Replay(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, &ReplayResult{Parked: 1}, res)

	// 搁置的死信不再被重放
	res, err = env.deadLetter.Replay(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, &ReplayResult{}, res)

	var parked model.DeadLetter
	require.NoError(t, env.db.Where("status = ?", model.DeadLetterParked).First(&parked).Error)
	assert.Equal(t, 2, parked.Replays)
}

func TestReplayIgnoresEventLetters(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	require.NoError(t, env.deadLetterRepo.Save(ctx, &model.DeadLetter{
		Kind:      model.DeadLetterKindEvent,
		Payload:   `{"topic":"timeline-posts","raw":"garbage"}`,
		LastError: "malformed event",
	}))

	res, err := env.deadLetter.Replay(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, &ReplayResult{}, res)
	assert.Len(t, pendingLetters(t, env, model.DeadLetterKindEvent), 1)
}

func TestReplayMalformedPayloadCountsAsFailure(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	require.NoError(t, env.deadLetterRepo.Save(ctx, &model.DeadLetter{
		Kind:    model.DeadLetterKindBackfill,
		Payload: `{not json`,
	}))

	res, err := env.deadLetter.Replay(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)
}
