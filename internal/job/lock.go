package job

import (
	"Timeline/internal/pkg/logger"
	"Timeline/internal/pkg/redis"
	"context"
	log "log/slog"
	"time"

	"github.com/google/uuid"
)

// runExclusive 多实例部署时同一任务只允许一个实例执行，未配置 redis 时直接执行
func runExclusive(ctx context.Context, lockKey string, ttl time.Duration, fn func(ctx context.Context)) {
	if redis.Rdb == nil {
		fn(ctx)
		return
	}
	token := uuid.NewString()
	ok, err := redis.TryLock(ctx, lockKey, token, ttl, 1)
	if err != nil {
		log.ErrorContext(ctx, "acquire job lock error", "key", lockKey, "err", err)
		return
	}
	if !ok {
		log.InfoContext(ctx, "job is running on another instance", "key", lockKey)
		return
	}
	defer redis.UnLock(ctx, lockKey, token)

	ctx, cancel := context.WithTimeout(ctx, ttl)
	defer cancel()
	fn(ctx)
}

func newJobContext(name string) context.Context {
	return logger.WithTraceID(context.Background(), "job-"+name, "")
}
