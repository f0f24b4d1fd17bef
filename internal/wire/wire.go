package wire

import (
	"Timeline/internal/api"
	"Timeline/internal/api/config"
	"Timeline/internal/api/handler"
	"Timeline/internal/job"
	"Timeline/internal/pkg/cron"
	"Timeline/internal/pkg/event"
	"Timeline/internal/pkg/kafka"
	"Timeline/internal/pkg/mongo"
	"Timeline/internal/pkg/retry"
	"Timeline/internal/repository"
	"Timeline/internal/service"
	"errors"
	log "log/slog"

	"github.com/gin-gonic/gin"
	mongodrv "go.mongodb.org/mongo-driver/mongo"
	"gorm.io/gorm"
)

// ApplicationContainer 封装了应用运行所需的所有顶级组件
type ApplicationContainer struct {
	Router       *gin.Engine
	DB           *gorm.DB
	KafkaManager *kafka.ConsumerManager
	CronMgr      *cron.Manager
	Producer     *kafka.Producer
	Services     *Services
}

// Services 供命令行工具直接调用的业务服务集合
type Services struct {
	Feed       service.FeedService
	Counter    service.CounterService
	Fanout     service.FanoutService
	Backfill   service.BackfillService
	Post       service.PostService
	UserFollow service.UserFollowService
	Author     service.AuthorService
	DeadLetter service.DeadLetterService

	deadLetterRepo repository.DeadLetterRepo
	userFollowRepo repository.UserFollowRepo
}

// BuildServices 组装仓储与服务，不依赖 Kafka 消费者与 HTTP
func BuildServices(db *gorm.DB, mongoDB *mongodrv.Database, cfg *config.Config, publisher event.Publisher) (*Services, error) {
	feedRepo := repository.NewFeedRepo(db)
	postRepo := repository.NewPostRepository(db)
	userFollowRepo := repository.NewUserFollowRepo(db)
	counterRepo := repository.NewUserCounterRepo(db)

	deadLetterRepo, err := newDeadLetterRepo(db, mongoDB, cfg.Timeline.DeadLetter)
	if err != nil {
		return nil, err
	}

	if publisher == nil {
		publisher = event.NopPublisher{}
	}

	feedSvc := service.NewFeedService(feedRepo, postRepo, cfg.Timeline.Feed)
	counterSvc := service.NewCounterService(counterRepo, cfg.Timeline.Counter)
	fanoutSvc := service.NewFanoutService(feedRepo, postRepo, userFollowRepo, deadLetterRepo, cfg.Timeline.Fanout)
	backfillSvc := service.NewBackfillService(feedRepo, postRepo, userFollowRepo, deadLetterRepo, cfg.Timeline.Backfill)

	return &Services{
		Feed:       feedSvc,
		Counter:    counterSvc,
		Fanout:     fanoutSvc,
		Backfill:   backfillSvc,
		Post:       service.NewPostService(db, postRepo, feedSvc, counterSvc, publisher),
		UserFollow: service.NewUserFollowService(db, userFollowRepo, deadLetterRepo, feedSvc, counterSvc, publisher),
		Author:     service.NewAuthorService(db, postRepo, userFollowRepo, counterRepo, feedSvc, counterSvc, publisher),
		DeadLetter: service.NewDeadLetterService(deadLetterRepo, fanoutSvc, backfillSvc, cfg.Timeline.DeadLetter),

		deadLetterRepo: deadLetterRepo,
		userFollowRepo: userFollowRepo,
	}, nil
}

func BuildApplication(db *gorm.DB, mongoDB *mongodrv.Database, cfg *config.Config) (*ApplicationContainer, error) {
	var producer *kafka.Producer
	var publisher event.Publisher = event.NopPublisher{}
	if len(cfg.Kafka.Brokers) > 0 {
		p, err := kafka.NewProducer(cfg)
		if err != nil {
			return nil, err
		}
		producer = p
		publisher = p
	} else {
		log.Warn("kafka brokers not configured, events will not be published")
	}

	svcs, err := BuildServices(db, mongoDB, cfg, publisher)
	if err != nil {
		return nil, err
	}

	handlers := &api.HandlersGroup{
		FeedHandler:       handler.NewFeedHandler(svcs.Feed, svcs.Counter),
		PostHandler:       handler.NewPostHandler(svcs.Post),
		UserFollowHandler: handler.NewUserFollowHandler(svcs.UserFollow),
		AdminHandler:      handler.NewAdminHandler(svcs.Counter, svcs.Author, svcs.Post, svcs.Fanout, svcs.DeadLetter),
	}
	router := api.SetupRouter(handlers)

	var kafkaMgr *kafka.ConsumerManager
	if producer != nil {
		policy := retry.FromConfig(cfg.Timeline.Fanout.Retry)

		postHandler := kafka.NewPostEventsHandler(svcs.Fanout, svcs.Feed, svcs.Author, svcs.deadLetterRepo, policy)
		followHandler := kafka.NewFollowEventsHandler(svcs.Backfill, svcs.Feed, svcs.userFollowRepo, svcs.deadLetterRepo, policy)
		kafkaMgr, err = kafka.NewConsumerManager(cfg, postHandler, followHandler)
		if err != nil {
			_ = producer.Close()
			return nil, err
		}
	}

	cronMgr := cron.NewCronManager(
		cfg.Cron,
		job.NewCounterReconcileJob(svcs.Counter, job.CounterModeDirty),
		job.NewCounterReconcileJob(svcs.Counter, job.CounterModeFull),
		job.NewFanoutSweepJob(svcs.Fanout),
		job.NewDeadLetterReplayJob(svcs.DeadLetter),
	)

	return &ApplicationContainer{
		Router:       router,
		DB:           db,
		KafkaManager: kafkaMgr,
		CronMgr:      cronMgr,
		Producer:     producer,
		Services:     svcs,
	}, nil
}

func newDeadLetterRepo(db *gorm.DB, mongoDB *mongodrv.Database, cfg config.DeadLetterConfig) (repository.DeadLetterRepo, error) {
	switch cfg.Backend {
	case "", "mysql", "postgres", "sql":
		return repository.NewDeadLetterRepo(db), nil
	case "mongo":
		if mongoDB == nil {
			return nil, errors.New("dead letter backend is mongo but mongo is not configured")
		}
		return mongo.NewDeadLetterRepo(mongoDB), nil
	default:
		return nil, errors.New("unknown dead letter backend: " + cfg.Backend)
	}
}
