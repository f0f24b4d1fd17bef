package service

import (
	"Timeline/internal/api/config"
	"Timeline/internal/pkg/testutil"
	"Timeline/internal/repository"
	"testing"

	"go.uber.org/goleak"
	"gorm.io/gorm"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// testEnv 以真实仓储组装全部服务
type testEnv struct {
	db             *gorm.DB
	feedRepo       repository.FeedRepo
	postRepo       repository.PostRepo
	userFollowRepo repository.UserFollowRepo
	counterRepo    repository.UserCounterRepo
	deadLetterRepo repository.DeadLetterRepo
	publisher      *testutil.RecordingPublisher

	feed       FeedService
	counter    CounterService
	fanout     FanoutService
	backfill   BackfillService
	post       PostService
	userFollow UserFollowService
	author     AuthorService
	deadLetter DeadLetterService
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Timeline.Fanout.BatchSize = 3
	cfg.Timeline.Fanout.Concurrency = 2
	cfg.Timeline.Fanout.Retry = config.RetryConfig{MaxAttempts: 2, InitialInterval: 1, MaxInterval: 2}
	cfg.Timeline.Backfill.Retry = config.RetryConfig{MaxAttempts: 2, InitialInterval: 1, MaxInterval: 2}
	cfg.Timeline.Backfill.Window = 5
	cfg.Timeline.Feed.DefaultPageSize = 2
	cfg.Timeline.DeadLetter.MaxReplays = 2
	cfg.Timeline.Fanout.SweepAfter = 0
	return cfg
}

func newTestEnv(t *testing.T) *testEnv {
	return newTestEnvWith(t, testConfig(), nil)
}

// newTestEnvWith wrap 非空时包装扩散与回填使用的时间线仓储
func newTestEnvWith(t *testing.T, cfg *config.Config, wrap func(repository.FeedRepo) repository.FeedRepo) *testEnv {
	t.Helper()
	db := testutil.NewTestDB(t)
	env := &testEnv{
		db:             db,
		feedRepo:       repository.NewFeedRepo(db),
		postRepo:       repository.NewPostRepository(db),
		userFollowRepo: repository.NewUserFollowRepo(db),
		counterRepo:    repository.NewUserCounterRepo(db),
		deadLetterRepo: repository.NewDeadLetterRepo(db),
		publisher:      &testutil.RecordingPublisher{},
	}
	writeRepo := env.feedRepo
	if wrap != nil {
		writeRepo = wrap(env.feedRepo)
	}

	env.feed = NewFeedService(env.feedRepo, env.postRepo, cfg.Timeline.Feed)
	env.counter = NewCounterService(env.counterRepo, cfg.Timeline.Counter)
	env.fanout = NewFanoutService(writeRepo, env.postRepo, env.userFollowRepo, env.deadLetterRepo, cfg.Timeline.Fanout)
	env.backfill = NewBackfillService(writeRepo, env.postRepo, env.userFollowRepo, env.deadLetterRepo, cfg.Timeline.Backfill)
	env.post = NewPostService(db, env.postRepo, env.feed, env.counter, env.publisher)
	env.userFollow = NewUserFollowService(db, env.userFollowRepo, env.deadLetterRepo, env.feed, env.counter, env.publisher)
	env.author = NewAuthorService(db, env.postRepo, env.userFollowRepo, env.counterRepo, env.feed, env.counter, env.publisher)
	env.deadLetter = NewDeadLetterService(env.deadLetterRepo, env.fanout, env.backfill, cfg.Timeline.DeadLetter)
	return env
}
