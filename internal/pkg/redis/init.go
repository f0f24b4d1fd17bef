package redis

import (
	"Timeline/internal/api/config"
	"Timeline/internal/pkg/logger"
	"context"
	"errors"
	log "log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/redis/go-redis/v9/maintnotifications"
)

// Rdb 计数缓存、脏集合与任务锁共用的客户端，为 nil 时相关功能降级
var Rdb *redis.Client

func InitRedis(cfg config.RedisConfig) error {
	if cfg.Addr == "" {
		return errors.New("redis addr not configured")
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,

		MaintNotificationsConfig: &maintnotifications.Config{
			Mode: maintnotifications.ModeDisabled,
		},
	})
	rdb.AddHook(logger.NewRedisLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return err
	}

	Rdb = rdb
	log.Info("Redis connection established", "addr", cfg.Addr, "db", cfg.DB)
	return nil
}
