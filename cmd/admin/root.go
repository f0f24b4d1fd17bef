package main

import (
	"Timeline/internal/api/config"
	"Timeline/internal/pkg/database"
	"Timeline/internal/pkg/event"
	"Timeline/internal/pkg/kafka"
	"Timeline/internal/pkg/logger"
	"Timeline/internal/pkg/mongo"
	"Timeline/internal/pkg/redis"
	"Timeline/internal/wire"
	"fmt"
	log "log/slog"

	"github.com/spf13/cobra"
	mongodrv "go.mongodb.org/mongo-driver/mongo"
)

// deps 命令执行期间共享的依赖
type deps struct {
	svcs     *wire.Services
	producer *kafka.Producer
}

func (r *deps) close() {
	if r.producer != nil {
		if err := r.producer.Close(); err != nil {
			log.Error("kafka producer close failed", "err", err)
		}
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "timeline-admin",
		Short:         "Administrative tools for the timeline service",
		Long:          `timeline-admin runs bulk and maintenance operations (imports, deletions, counter reconciliation, dead letter replay) against the timeline store.`,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	root.AddCommand(
		newReconcileCommand(),
		newImportFollowsCommand(),
		newDeletePostsCommand(),
		newRemoveAuthorCommand(),
		newReplayDeadLettersCommand(),
		newSweepFanoutCommand(),
	)
	return root
}

// setup 按 configs/config.yaml 初始化存储并组装服务
func setup() (*deps, error) {
	if err := config.LoadConfig(); err != nil {
		return nil, err
	}
	cfg := config.Cfg
	logger.InitLogger()

	dbCfg := cfg.DB
	db, err := database.NewGormDB(&dbCfg)
	if err != nil {
		return nil, err
	}

	if cfg.Redis.Addr != "" {
		if err = redis.InitRedis(cfg.Redis); err != nil {
			return nil, fmt.Errorf("init redis: %w", err)
		}
	}

	var mongoConn *mongodrv.Database
	if cfg.Timeline.DeadLetter.Backend == "mongo" {
		if mongoConn, err = mongo.InitMongo(cfg.Mongo); err != nil {
			return nil, fmt.Errorf("init mongo: %w", err)
		}
	}

	rt := &deps{}
	if len(cfg.Kafka.Brokers) > 0 {
		if rt.producer, err = kafka.NewProducer(cfg); err != nil {
			return nil, err
		}
	}

	var publisher event.Publisher
	if rt.producer != nil {
		publisher = rt.producer
	}
	svcs, err := wire.BuildServices(db, mongoConn, cfg, publisher)
	if err != nil {
		rt.close()
		return nil, err
	}
	rt.svcs = svcs
	return rt, nil
}
