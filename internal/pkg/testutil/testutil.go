// Package testutil 为各包测试提供内存数据库、Redis 与事件记录器
package testutil

import (
	"Timeline/internal/model"
	"Timeline/internal/pkg/database"
	"Timeline/internal/pkg/event"
	"Timeline/internal/pkg/redis"
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/glebarez/sqlite"
	goredis "github.com/redis/go-redis/v9"
	"github.com/redis/go-redis/v9/maintnotifications"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// NewTestDB 每个测试独立的 SQLite 文件库，已建表
// 单连接，事务内外的语句串行执行
func NewTestDB(t testing.TB) *gorm.DB {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "timeline.db") + "?_pragma=busy_timeout(5000)&_pragma=synchronous(OFF)"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         gormlogger.Discard,
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, database.Migrate(db))
	return db
}

// NewTestRedis 启动 miniredis 并替换全局客户端，测试结束后还原
func NewTestRedis(t testing.TB) *miniredis.Miniredis {
	t.Helper()
	mr := miniredis.RunT(t)

	prev := redis.Rdb
	client := goredis.NewClient(&goredis.Options{
		Addr: mr.Addr(),
		MaintNotificationsConfig: &maintnotifications.Config{
			Mode: maintnotifications.ModeDisabled,
		},
	})
	redis.Rdb = client
	t.Cleanup(func() {
		_ = client.Close()
		redis.Rdb = prev
	})
	return mr
}

// RecordingPublisher 记录发布的事件，Err 非空时发布失败
type RecordingPublisher struct {
	mu     sync.Mutex
	events []event.Event
	Err    error
}

func (p *RecordingPublisher) Publish(_ context.Context, evt event.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return p.Err
	}
	p.events = append(p.events, evt)
	return nil
}

func (p *RecordingPublisher) Events() []event.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]event.Event, len(p.events))
	copy(out, p.events)
	return out
}

// Types 按发布顺序返回事件类型
func (p *RecordingPublisher) Types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	types := make([]string, 0, len(p.events))
	for _, e := range p.events {
		types = append(types, e.Type())
	}
	return types
}

// SeedPost 直接写入帖子，跳过写路径的计数与事件
func SeedPost(t testing.TB, db *gorm.DB, id, authorID uint64, createdAt time.Time) *model.Post {
	t.Helper()
	post := &model.Post{
		ID:          id,
		AuthorID:    &authorID,
		Content:     "post",
		FanoutState: model.FanoutPending,
		CreatedAt:   createdAt.UTC().Truncate(time.Millisecond),
	}
	require.NoError(t, db.Create(post).Error)
	return post
}

// SeedFollows 直接写入关注关系，followerIDs 全部关注 followingID
func SeedFollows(t testing.TB, db *gorm.DB, followingID uint64, followerIDs ...uint64) {
	t.Helper()
	if len(followerIDs) == 0 {
		return
	}
	rows := make([]*model.UserFollow, 0, len(followerIDs))
	now := time.Now().UTC()
	for _, id := range followerIDs {
		rows = append(rows, &model.UserFollow{FollowerID: id, FollowingID: followingID, CreatedAt: now})
	}
	require.NoError(t, db.CreateInBatches(rows, 200).Error)
}
