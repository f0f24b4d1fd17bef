package service

import (
	"Timeline/internal/model"
	"Timeline/internal/pkg/event"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 作者 1 有粉丝 2、3，自己关注 4
func TestRemoveAuthor(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.userFollow.Follow(ctx, 2, 1))
	require.NoError(t, env.userFollow.Follow(ctx, 3, 1))
	require.NoError(t, env.userFollow.Follow(ctx, 1, 4))
	require.NoError(t, env.userFollow.Follow(ctx, 2, 4))
	p1, err := env.post.CreatePost(ctx, 1, "by author", nil)
	require.NoError(t, err)
	p4, err := env.post.CreatePost(ctx, 4, "by other", nil)
	require.NoError(t, err)
	seen := drain(t, env, 0)
	require.Equal(t, []uint64{p4.ID, p1.ID}, feedPostIDs(t, env, 2))
	require.Equal(t, []uint64{p4.ID, p1.ID}, feedPostIDs(t, env, 1))

	res, err := env.author.RemoveAuthor(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.PostsDetached)
	assert.Equal(t, int64(3), res.EdgesRemoved)
	assert.Equal(t, int64(3), res.EntriesRemoved)

	var count int64
	require.NoError(t, env.db.Model(&model.FeedEntry{}).Where("author_id = ?", 1).Count(&count).Error)
	assert.Zero(t, count)
	assert.Empty(t, feedPostIDs(t, env, 1))
	assert.Equal(t, []uint64{p4.ID}, feedPostIDs(t, env, 2))
	assert.Empty(t, feedPostIDs(t, env, 3))

	stored, err := env.postRepo.GetPost(ctx, p1.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.AuthorID)

	assert.Equal(t, int64(1), counterOf(t, env, 2).FollowingCount)
	assert.Zero(t, counterOf(t, env, 3).FollowingCount)
	assert.Equal(t, int64(1), counterOf(t, env, 4).FollowersCount)
	c, err := env.counterRepo.Get(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, c)

	events := env.publisher.Events()
	require.Len(t, events, seen+1)
	assert.Equal(t, &event.AuthorRemoved{AuthorID: 1}, events[seen])

	// 消费端再次清理是幂等的
	drain(t, env, seen)
	again, err := env.author.Purge(ctx, 1)
	require.NoError(t, err)
	assert.Zero(t, again.EdgesRemoved)
	assert.Zero(t, again.EntriesRemoved)
	assert.Equal(t, int64(1), counterOf(t, env, 4).FollowersCount)
}
