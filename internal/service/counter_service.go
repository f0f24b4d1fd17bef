package service

import (
	"Timeline/internal/api/config"
	"Timeline/internal/model"
	"Timeline/internal/pkg/consts"
	"Timeline/internal/pkg/metrics"
	"Timeline/internal/pkg/redis"
	"Timeline/internal/pkg/util"
	"Timeline/internal/repository"
	"context"
	"errors"
	log "log/slog"
	"slices"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"gorm.io/gorm"
)

// CounterService 维护用户的关注/粉丝/帖子计数
// tx 为 nil 时使用独立语句，否则加入调用方事务
type CounterService interface {
	Increment(ctx context.Context, tx *gorm.DB, metric model.CounterMetric, userID uint64) error
	Decrement(ctx context.Context, tx *gorm.DB, metric model.CounterMetric, userID uint64) error
	Apply(ctx context.Context, tx *gorm.DB, metric model.CounterMetric, deltas map[uint64]int64) error
	GetCounters(ctx context.Context, userID uint64) (*model.UserCounter, error)
	Invalidate(ctx context.Context, userIDs ...uint64)
	Reconcile(ctx context.Context, userID uint64) error
	ReconcileAll(ctx context.Context) (int, error)
	MarkDirty(ctx context.Context, userIDs ...uint64)
	ReconcileDirty(ctx context.Context) (int, error)
}

type CounterServiceImpl struct {
	counterRepo repository.UserCounterRepo
	cfg         config.CounterConfig
}

func NewCounterService(counterRepo repository.UserCounterRepo, cfg config.CounterConfig) CounterService {
	if cfg.SweepBatchSize <= 0 {
		cfg.SweepBatchSize = 500
	}
	return &CounterServiceImpl{counterRepo: counterRepo, cfg: cfg}
}

func (s *CounterServiceImpl) repo(tx *gorm.DB) repository.UserCounterRepo {
	if tx == nil {
		return s.counterRepo
	}
	return s.counterRepo.WithTx(tx)
}

func (s *CounterServiceImpl) Increment(ctx context.Context, tx *gorm.DB, metric model.CounterMetric, userID uint64) error {
	return s.add(ctx, tx, metric, userID, 1)
}

func (s *CounterServiceImpl) Decrement(ctx context.Context, tx *gorm.DB, metric model.CounterMetric, userID uint64) error {
	return s.add(ctx, tx, metric, userID, -1)
}

// Apply 批量路径使用，按用户聚合后的增量逐行原子更新，按 user_id 升序加锁
func (s *CounterServiceImpl) Apply(ctx context.Context, tx *gorm.DB, metric model.CounterMetric, deltas map[uint64]int64) error {
	userIDs := make([]uint64, 0, len(deltas))
	for userID := range deltas {
		userIDs = append(userIDs, userID)
	}
	slices.Sort(userIDs)
	for _, userID := range userIDs {
		if err := s.add(ctx, tx, metric, userID, deltas[userID]); err != nil {
			return err
		}
	}
	return nil
}

func (s *CounterServiceImpl) add(ctx context.Context, tx *gorm.DB, metric model.CounterMetric, userID uint64, delta int64) error {
	err := s.repo(tx).Add(ctx, metric, userID, delta)
	switch {
	case errors.Is(err, repository.ErrInvalidMetric):
		return ErrInvalidMetric
	case errors.Is(err, repository.ErrCounterUnderflow):
		// 计数已漂移，不阻塞写路径，交给对账修正
		log.WarnContext(ctx, "counter underflow, scheduling reconcile", "user_id", userID, "metric", metric, "delta", delta)
		s.MarkDirty(ctx, userID)
		return nil
	}
	return err
}

// GetCounters 读缓存，未命中回源；没有计数行的用户返回全 0
func (s *CounterServiceImpl) GetCounters(ctx context.Context, userID uint64) (*model.UserCounter, error) {
	key := consts.UserCounterKey + strconv.FormatUint(userID, 10)
	if redis.Rdb != nil {
		cached, err := redis.GetValue(ctx, key)
		if err != nil {
			log.WarnContext(ctx, "get counter cache error", "user_id", userID, "err", err)
		} else if cached != "" {
			counter := &model.UserCounter{}
			if err = json.Unmarshal([]byte(cached), counter); err == nil {
				return counter, nil
			}
		}
	}

	counter, err := s.counterRepo.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if counter == nil {
		counter = &model.UserCounter{UserID: userID}
	}

	if redis.Rdb != nil && s.cfg.CacheTTL > 0 {
		b, _ := json.Marshal(counter)
		if err = redis.SetWithExpiration(ctx, key, string(b), time.Duration(s.cfg.CacheTTL)*time.Second); err != nil {
			log.WarnContext(ctx, "set counter cache error", "user_id", userID, "err", err)
		}
	}
	return counter, nil
}

// Invalidate 事务提交后调用
func (s *CounterServiceImpl) Invalidate(ctx context.Context, userIDs ...uint64) {
	if redis.Rdb == nil || len(userIDs) == 0 {
		return
	}
	keys := make([]string, 0, len(userIDs))
	for _, id := range userIDs {
		keys = append(keys, consts.UserCounterKey+strconv.FormatUint(id, 10))
	}
	if err := redis.DeleteKey(ctx, keys...); err != nil {
		log.WarnContext(ctx, "invalidate counter cache error", "err", err)
	}
}

func (s *CounterServiceImpl) Reconcile(ctx context.Context, userID uint64) error {
	if err := s.counterRepo.Reconcile(ctx, userID); err != nil {
		return err
	}
	metrics.CounterReconciledTotal.Inc()
	s.Invalidate(ctx, userID)
	return nil
}

// ReconcileAll 按 user_id 键集遍历全部用户，单个用户失败不中断
func (s *CounterServiceImpl) ReconcileAll(ctx context.Context) (int, error) {
	var afterID uint64
	total := 0
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		ids, err := s.counterRepo.ListUserIDs(ctx, afterID, s.cfg.SweepBatchSize)
		if err != nil {
			return total, err
		}
		if len(ids) == 0 {
			break
		}
		for _, id := range ids {
			if err = s.Reconcile(ctx, id); err != nil {
				log.ErrorContext(ctx, "reconcile counter error", "user_id", id, "err", err)
				s.MarkDirty(ctx, id)
				continue
			}
			total++
		}
		afterID = ids[len(ids)-1]
	}
	return total, nil
}

// MarkDirty 记录需要对账的用户，由定时任务批量处理
func (s *CounterServiceImpl) MarkDirty(ctx context.Context, userIDs ...uint64) {
	if redis.Rdb == nil || len(userIDs) == 0 {
		return
	}
	members := make([]interface{}, 0, len(userIDs))
	for _, id := range userIDs {
		members = append(members, strconv.FormatUint(id, 10))
	}
	if err := redis.SAdd(ctx, consts.UserCounterDirtyKey, members...); err != nil {
		log.WarnContext(ctx, "mark counter dirty error", "err", err)
	}
}

// ReconcileDirty 先把脏集合改名再处理，处理期间的新标记落到新集合
func (s *CounterServiceImpl) ReconcileDirty(ctx context.Context) (int, error) {
	if redis.Rdb == nil {
		return 0, nil
	}
	processingKey := consts.UserCounterDirtyKey + ":processing"
	// 上一轮中断时残留的 processing 集合优先处理
	exists, err := redis.Exists(ctx, processingKey)
	if err != nil {
		return 0, err
	}
	if !exists {
		dirty, err := redis.Exists(ctx, consts.UserCounterDirtyKey)
		if err != nil || !dirty {
			return 0, err
		}
		if err = redis.Rename(ctx, consts.UserCounterDirtyKey, processingKey); err != nil {
			return 0, err
		}
	}

	members, err := redis.GetSet(ctx, processingKey)
	if err != nil {
		return 0, err
	}
	ids, err := util.StrSliceToUInt64Slice(members)
	if err != nil {
		return 0, err
	}

	total := 0
	var failed []uint64
	for _, id := range ids {
		if err = s.Reconcile(ctx, id); err != nil {
			log.ErrorContext(ctx, "reconcile dirty counter error", "user_id", id, "err", err)
			failed = append(failed, id)
			continue
		}
		total++
	}

	if err = redis.DeleteKey(ctx, processingKey); err != nil {
		log.ErrorContext(ctx, "delete processing dirty set error", "err", err)
	}
	s.MarkDirty(ctx, failed...)
	return total, nil
}
