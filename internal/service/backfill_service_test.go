package service

import (
	"Timeline/internal/model"
	"Timeline/internal/pkg/event"
	"Timeline/internal/pkg/testutil"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 作者 2 有 8 条顶层帖子、1 条回复、1 条已删除帖子，窗口为 5
func seedAuthorHistory(t *testing.T, env *testEnv, authorID uint64) []uint64 {
	t.Helper()
	base := time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)
	var ids []uint64
	for i := 1; i <= 8; i++ {
		p := testutil.SeedPost(t, env.db, uint64(100+i), authorID, base.Add(time.Duration(i)*time.Minute))
		ids = append(ids, p.ID)
	}
	reply := testutil.SeedPost(t, env.db, 200, authorID, base.Add(time.Hour))
	parent := ids[0]
	require.NoError(t, env.db.Model(reply).Update("parent_id", parent).Error)
	deleted := testutil.SeedPost(t, env.db, 201, authorID, base.Add(2*time.Hour))
	require.NoError(t, env.db.Model(deleted).Update("is_deleted", true).Error)
	return ids
}

func TestBackfillNewestTopLevelPosts(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	seedAuthorHistory(t, env, 2)

	require.NoError(t, env.userFollow.Follow(ctx, 1, 2))
	require.Equal(t, []string{event.TypeFollowCreated}, env.publisher.Types())

	n, err := env.backfill.Backfill(ctx, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)
	assert.Equal(t, []uint64{108, 107, 106, 105, 104}, feedPostIDs(t, env, 1))

	// 重复投递不产生重复条目
	n, err = env.backfill.Backfill(ctx, 1, 2)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Len(t, feedPostIDs(t, env, 1), 5)
}

func TestBackfillSkipsWhenEdgeMissing(t *testing.T) {
	env := newTestEnv(t)
	seedAuthorHistory(t, env, 2)

	n, err := env.backfill.Backfill(context.Background(), 1, 2)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, feedPostIDs(t, env, 1))
}

func TestBackfillRemovesEntriesWhenUnfollowedConcurrently(t *testing.T) {
	env, flaky := newFlakyEnv(t)
	ctx := context.Background()
	seedAuthorHistory(t, env, 2)
	testutil.SeedFollows(t, env.db, 2, 1)

	// 写入完成后、复查关系前发生取关
	flaky.afterInsert = func() {
		require.NoError(t, env.db.Where("follower_id = ? AND following_id = ?", 1, 2).Delete(&model.UserFollow{}).Error)
	}

	n, err := env.backfill.Backfill(ctx, 1, 2)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, feedPostIDs(t, env, 1))
}

func TestBackfillDeadLettersAndReplays(t *testing.T) {
	env, flaky := newFlakyEnv(t)
	ctx := context.Background()
	seedAuthorHistory(t, env, 2)
	testutil.SeedFollows(t, env.db, 2, 1)
	flaky.failUser.Store(1)

	n, err := env.backfill.Backfill(ctx, 1, 2)
	require.NoError(t, err)
	assert.Zero(t, n)
	letters := pendingLetters(t, env, model.DeadLetterKindBackfill)
	require.Len(t, letters, 1)
	assert.JSONEq(t, `{"follower_id":1,"followed_id":2}`, letters[0].Payload)

	// 第一次重放仍失败，未达上限继续等待
	res, err := env.deadLetter.Replay(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)

	flaky.failUser.Store(0)
	res, err = env.deadLetter.Replay(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Resolved)
	assert.Len(t, feedPostIDs(t, env, 1), 5)
}
