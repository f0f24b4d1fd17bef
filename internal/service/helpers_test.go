package service

import (
	"Timeline/internal/model"
	"Timeline/internal/pkg/event"
	"Timeline/internal/repository"
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

func feedPostIDs(t *testing.T, env *testEnv, userID uint64) []uint64 {
	t.Helper()
	var ids []uint64
	err := env.db.Model(&model.FeedEntry{}).
		Where("user_id = ?", userID).
		Order("created_at desc").
		Order("post_id desc").
		Pluck("post_id", &ids).Error
	require.NoError(t, err)
	return ids
}

func counterOf(t *testing.T, env *testEnv, userID uint64) model.UserCounter {
	t.Helper()
	c, err := env.counterRepo.Get(context.Background(), userID)
	require.NoError(t, err)
	if c == nil {
		return model.UserCounter{UserID: userID}
	}
	return *c
}

func pendingLetters(t *testing.T, env *testEnv, kind string) []*model.DeadLetter {
	t.Helper()
	letters, err := env.deadLetterRepo.ListPending(context.Background(), []string{kind}, 100)
	require.NoError(t, err)
	return letters
}

// drain 按发布顺序消费记录的事件，处理逻辑与队列消费者一致
func drain(t *testing.T, env *testEnv, from int) int {
	t.Helper()
	ctx := context.Background()
	events := env.publisher.Events()
	for _, evt := range events[from:] {
		switch e := evt.(type) {
		case *event.PostCreated:
			_, err := env.fanout.Dispatch(ctx, e)
			require.NoError(t, err)
		case *event.PostDeleted:
			_, err := env.feed.RemovePosts(ctx, nil, e.PostID)
			require.NoError(t, err)
		case *event.AuthorRemoved:
			_, err := env.author.Purge(ctx, e.AuthorID)
			require.NoError(t, err)
		case *event.FollowCreated:
			_, err := env.backfill.Backfill(ctx, e.FollowerID, e.FollowedID)
			require.NoError(t, err)
		case *event.FollowDestroyed:
			edge, err := env.userFollowRepo.GetUserFollow(ctx, e.FollowerID, e.FollowedID)
			require.NoError(t, err)
			if edge == nil {
				_, err = env.feed.RemoveAuthorFromFeed(ctx, nil, e.FollowerID, e.FollowedID)
				require.NoError(t, err)
			}
		}
	}
	return len(events)
}

var errInjected = errors.New("injected store failure")

func hasUser(entries []*model.FeedEntry, userID uint64) bool {
	for _, e := range entries {
		if e.UserID == userID {
			return true
		}
	}
	return false
}

func countPostEntries(t *testing.T, env *testEnv, postID uint64) int64 {
	t.Helper()
	var n int64
	require.NoError(t, env.db.Model(&model.FeedEntry{}).Where("post_id = ?", postID).Count(&n).Error)
	return n
}

// flakyFeedRepo 写入包含 failUser 的批次时失败，beforeInsert 与 afterInsert 用于模拟并发操作
type flakyFeedRepo struct {
	repository.FeedRepo
	failUser     atomic.Uint64
	beforeInsert func(entries []*model.FeedEntry)
	afterInsert  func()
}

func newFlakyEnv(t *testing.T) (*testEnv, *flakyFeedRepo) {
	flaky := &flakyFeedRepo{}
	env := newTestEnvWith(t, testConfig(), func(r repository.FeedRepo) repository.FeedRepo {
		flaky.FeedRepo = r
		return flaky
	})
	return env, flaky
}

func (r *flakyFeedRepo) InsertEntries(ctx context.Context, entries []*model.FeedEntry) (int64, error) {
	if fail := r.failUser.Load(); fail != 0 {
		for _, e := range entries {
			if e.UserID == fail {
				return 0, errInjected
			}
		}
	}
	if r.beforeInsert != nil {
		r.beforeInsert(entries)
	}
	n, err := r.FeedRepo.InsertEntries(ctx, entries)
	if err == nil && r.afterInsert != nil {
		r.afterInsert()
	}
	return n, err
}
