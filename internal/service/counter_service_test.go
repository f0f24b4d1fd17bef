package service

import (
	"Timeline/internal/model"
	"Timeline/internal/pkg/consts"
	"Timeline/internal/pkg/testutil"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetCountersUsesCache(t *testing.T) {
	mr := testutil.NewTestRedis(t)
	env := newTestEnv(t)
	ctx := context.Background()

	c, err := env.counter.GetCounters(ctx, 7)
	require.NoError(t, err)
	assert.Zero(t, c.FollowersCount)
	assert.True(t, mr.Exists(consts.UserCounterKey+"7"))

	// 绕过服务直接改库，缓存仍返回旧值
	require.NoError(t, env.counterRepo.Add(ctx, model.MetricFollowers, 7, 5))
	c, err = env.counter.GetCounters(ctx, 7)
	require.NoError(t, err)
	assert.Zero(t, c.FollowersCount)

	env.counter.Invalidate(ctx, 7)
	c, err = env.counter.GetCounters(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, int64(5), c.FollowersCount)
}

func TestWritePathsInvalidateCache(t *testing.T) {
	testutil.NewTestRedis(t)
	env := newTestEnv(t)
	ctx := context.Background()

	c, err := env.counter.GetCounters(ctx, 2)
	require.NoError(t, err)
	assert.Zero(t, c.FollowersCount)

	require.NoError(t, env.userFollow.Follow(ctx, 1, 2))
	c, err = env.counter.GetCounters(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(1), c.FollowersCount)
}

func TestReconcileDirty(t *testing.T) {
	mr := testutil.NewTestRedis(t)
	env := newTestEnv(t)
	ctx := context.Background()
	testutil.SeedFollows(t, env.db, 1, 2, 3)

	// 计数漂移
	require.NoError(t, env.counterRepo.Add(ctx, model.MetricFollowers, 1, 10))
	env.counter.MarkDirty(ctx, 1, 2)
	members, err := mr.Members(consts.UserCounterDirtyKey)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"1", "2"}, members)

	n, err := env.counter.ReconcileDirty(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, int64(2), counterOf(t, env, 1).FollowersCount)
	assert.Equal(t, int64(1), counterOf(t, env, 2).FollowingCount)
	assert.False(t, mr.Exists(consts.UserCounterDirtyKey))
	assert.False(t, mr.Exists(consts.UserCounterDirtyKey+":processing"))

	n, err = env.counter.ReconcileDirty(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestReconcileDirtyResumesLeftoverSet(t *testing.T) {
	mr := testutil.NewTestRedis(t)
	env := newTestEnv(t)
	ctx := context.Background()
	testutil.SeedFollows(t, env.db, 1, 2)

	// 上一轮中断留下的 processing 集合
	_, err := mr.SetAdd(consts.UserCounterDirtyKey+":processing", "1")
	require.NoError(t, err)
	_, err = mr.SetAdd(consts.UserCounterDirtyKey, "2")
	require.NoError(t, err)

	n, err := env.counter.ReconcileDirty(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, int64(1), counterOf(t, env, 1).FollowersCount)
	assert.True(t, mr.Exists(consts.UserCounterDirtyKey))

	n, err = env.counter.ReconcileDirty(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, int64(1), counterOf(t, env, 2).FollowingCount)
}

func TestReconcileAll(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	testutil.SeedFollows(t, env.db, 1, 2, 3, 4)
	testutil.SeedFollows(t, env.db, 2, 3)

	n, err := env.counter.ReconcileAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, int64(3), counterOf(t, env, 1).FollowersCount)
	assert.Equal(t, int64(1), counterOf(t, env, 2).FollowersCount)
	assert.Equal(t, int64(1), counterOf(t, env, 2).FollowingCount)
	assert.Equal(t, int64(2), counterOf(t, env, 3).FollowingCount)
}

func TestApplyRejectsUnknownMetric(t *testing.T) {
	env := newTestEnv(t)
	err := env.counter.Apply(context.Background(), nil, model.CounterMetric("karma"), map[uint64]int64{1: 1})
	assert.ErrorIs(t, err, ErrInvalidMetric)
}

// 漂移导致扣减不足时不阻塞写路径，用户进入脏集合等待对账
func TestDecrementUnderflowMarksDirty(t *testing.T) {
	mr := testutil.NewTestRedis(t)
	env := newTestEnv(t)
	ctx := context.Background()
	testutil.SeedFollows(t, env.db, 1, 2, 3, 4)

	require.NoError(t, env.counterRepo.Add(ctx, model.MetricFollowers, 1, 2))
	require.NoError(t, env.counter.Apply(ctx, nil, model.MetricFollowers, map[uint64]int64{1: -3}))
	require.NoError(t, env.counter.Decrement(ctx, nil, model.MetricPosts, 9))
	assert.Equal(t, int64(2), counterOf(t, env, 1).FollowersCount)

	members, err := mr.Members(consts.UserCounterDirtyKey)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"1", "9"}, members)

	n, err := env.counter.ReconcileDirty(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, int64(3), counterOf(t, env, 1).FollowersCount)
}
