package service

import (
	"Timeline/internal/model"
	"Timeline/internal/pkg/consts"
	"Timeline/internal/pkg/event"
	"Timeline/internal/pkg/metrics"
	"Timeline/internal/repository"
	"context"
	log "log/slog"
	"time"

	"github.com/goccy/go-json"
	"gorm.io/gorm"
)

type UserFollowService interface {
	GetUserFollowers(ctx context.Context, userId uint64, limit, offset int) ([]*model.UserFollow, error)
	GetUserFollowing(ctx context.Context, userId uint64, limit, offset int) ([]*model.UserFollow, error)
	GetSomeoneIsFollowing(ctx context.Context, userId, followingId uint64) (bool, error)
	Follow(ctx context.Context, followerID, followingID uint64) error
	Unfollow(ctx context.Context, followerID, followingID uint64) error
	BulkFollow(ctx context.Context, edges []*model.UserFollow) (int64, error)
}

type UserFollowServiceImpl struct {
	db             *gorm.DB
	userFollowRepo repository.UserFollowRepo
	deadLetterRepo repository.DeadLetterRepo
	feedSvc        FeedService
	counterSvc     CounterService
	publisher      event.Publisher
}

func NewUserFollowService(
	db *gorm.DB,
	userFollowRepo repository.UserFollowRepo,
	deadLetterRepo repository.DeadLetterRepo,
	feedSvc FeedService,
	counterSvc CounterService,
	publisher event.Publisher,
) UserFollowService {
	return &UserFollowServiceImpl{
		db:             db,
		userFollowRepo: userFollowRepo,
		deadLetterRepo: deadLetterRepo,
		feedSvc:        feedSvc,
		counterSvc:     counterSvc,
		publisher:      publisher,
	}
}

func (s *UserFollowServiceImpl) GetUserFollowers(ctx context.Context, userId uint64, limit, offset int) ([]*model.UserFollow, error) {
	return s.userFollowRepo.GetUserFollowers(ctx, userId, limit, offset)
}

func (s *UserFollowServiceImpl) GetUserFollowing(ctx context.Context, userId uint64, limit, offset int) ([]*model.UserFollow, error) {
	return s.userFollowRepo.GetUserFollowing(ctx, userId, limit, offset)
}

func (s *UserFollowServiceImpl) GetSomeoneIsFollowing(ctx context.Context, userId, followingId uint64) (bool, error) {
	userFollow, err := s.userFollowRepo.GetUserFollow(ctx, userId, followingId)
	if err != nil {
		return false, err
	}
	return userFollow != nil, nil
}

// Follow 关系与双方计数同事务写入，回填在提交后异步进行
func (s *UserFollowServiceImpl) Follow(ctx context.Context, followerID, followingID uint64) error {
	if followerID == 0 || followingID == 0 {
		return ErrParamInvalid
	}
	if followerID == followingID {
		return ErrUserFollowSelf
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		inserted, err := s.userFollowRepo.WithTx(tx).CreateUserFollow(ctx, &model.UserFollow{
			FollowerID:  followerID,
			FollowingID: followingID,
			CreatedAt:   time.Now().UTC(),
		})
		if err != nil {
			return err
		}
		if !inserted {
			return ErrUserFollowExist
		}
		if err = s.counterSvc.Increment(ctx, tx, model.MetricFollowing, followerID); err != nil {
			return err
		}
		return s.counterSvc.Increment(ctx, tx, model.MetricFollowers, followingID)
	})
	if err != nil {
		return err
	}
	s.counterSvc.Invalidate(ctx, followerID, followingID)

	s.publishFollowCreated(ctx, followerID, followingID)
	return nil
}

// publishFollowCreated 事件发不出去或没有消费者时，回填转为死信由重放任务补偿
func (s *UserFollowServiceImpl) publishFollowCreated(ctx context.Context, followerID, followingID uint64) {
	var reason string
	if event.IsNop(s.publisher) {
		reason = "no event publisher configured"
	} else {
		err := s.publisher.Publish(ctx, &event.FollowCreated{FollowerID: followerID, FollowedID: followingID})
		if err == nil {
			return
		}
		log.WarnContext(ctx, "publish FollowCreated error", "follower_id", followerID, "following_id", followingID, "err", err)
		reason = err.Error()
	}

	payload, _ := json.Marshal(&BackfillRequest{FollowerID: followerID, FollowedID: followingID})
	letter := &model.DeadLetter{
		Kind:      model.DeadLetterKindBackfill,
		Payload:   string(payload),
		LastError: reason,
	}
	if err := s.deadLetterRepo.Save(ctx, letter); err != nil {
		log.ErrorContext(ctx, "save backfill dead letter error", "follower_id", followerID, "following_id", followingID, "err", err)
		return
	}
	metrics.DeadLettersTotal.WithLabelValues(model.DeadLetterKindBackfill).Inc()
}

// Unfollow 同步删除读者时间线中该作者的条目
func (s *UserFollowServiceImpl) Unfollow(ctx context.Context, followerID, followingID uint64) error {
	if followerID == 0 || followingID == 0 {
		return ErrParamInvalid
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		deleted, err := s.userFollowRepo.WithTx(tx).DeleteUserFollow(ctx, &model.UserFollow{
			FollowerID:  followerID,
			FollowingID: followingID,
		})
		if err != nil {
			return err
		}
		if !deleted {
			return ErrUserNotFollowed
		}
		if err = s.counterSvc.Decrement(ctx, tx, model.MetricFollowing, followerID); err != nil {
			return err
		}
		if err = s.counterSvc.Decrement(ctx, tx, model.MetricFollowers, followingID); err != nil {
			return err
		}
		_, err = s.feedSvc.RemoveAuthorFromFeed(ctx, tx, followerID, followingID)
		return err
	})
	if err != nil {
		return err
	}
	s.counterSvc.Invalidate(ctx, followerID, followingID)

	if err = s.publisher.Publish(ctx, &event.FollowDestroyed{FollowerID: followerID, FollowedID: followingID}); err != nil {
		log.WarnContext(ctx, "publish FollowDestroyed error", "follower_id", followerID, "following_id", followingID, "err", err)
	}
	return nil
}

// BulkFollow 批量导入关系，只对新建的关系计数并触发回填
func (s *UserFollowServiceImpl) BulkFollow(ctx context.Context, edges []*model.UserFollow) (int64, error) {
	seen := make(map[[2]uint64]struct{}, len(edges))
	valid := make([]*model.UserFollow, 0, len(edges))
	now := time.Now().UTC()
	for _, e := range edges {
		if e.FollowerID == 0 || e.FollowingID == 0 || e.FollowerID == e.FollowingID {
			continue
		}
		key := [2]uint64{e.FollowerID, e.FollowingID}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		if e.CreatedAt.IsZero() {
			e.CreatedAt = now
		}
		valid = append(valid, e)
	}

	var total int64
	for start := 0; start < len(valid); start += consts.MaxBulkFollowBatch {
		end := start + consts.MaxBulkFollowBatch
		if end > len(valid) {
			end = len(valid)
		}
		created, err := s.bulkFollowChunk(ctx, valid[start:end])
		if err != nil {
			return total, err
		}
		total += int64(len(created))

		for _, e := range created {
			s.publishFollowCreated(ctx, e.FollowerID, e.FollowingID)
		}
	}
	return total, nil
}

func (s *UserFollowServiceImpl) bulkFollowChunk(ctx context.Context, chunk []*model.UserFollow) ([]*model.UserFollow, error) {
	var created []*model.UserFollow
	followingDeltas := make(map[uint64]int64)
	followerDeltas := make(map[uint64]int64)
	drifted := false

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.userFollowRepo.WithTx(tx)
		existing, err := repo.ExistingPairs(ctx, chunk)
		if err != nil {
			return err
		}
		for _, e := range chunk {
			if _, ok := existing[[2]uint64{e.FollowerID, e.FollowingID}]; !ok {
				created = append(created, e)
			}
		}
		n, err := repo.CreateUserFollows(ctx, created)
		if err != nil {
			return err
		}
		// 并发写入导致部分行冲突时，增量不再准确，交给对账
		drifted = n != int64(len(created))

		for _, e := range created {
			followingDeltas[e.FollowerID]++
			followerDeltas[e.FollowingID]++
		}
		if err = s.counterSvc.Apply(ctx, tx, model.MetricFollowing, followingDeltas); err != nil {
			return err
		}
		return s.counterSvc.Apply(ctx, tx, model.MetricFollowers, followerDeltas)
	})
	if err != nil {
		return nil, err
	}

	users := make([]uint64, 0, len(followingDeltas)+len(followerDeltas))
	for id := range followingDeltas {
		users = append(users, id)
	}
	for id := range followerDeltas {
		users = append(users, id)
	}
	s.counterSvc.Invalidate(ctx, users...)
	if drifted {
		log.WarnContext(ctx, "bulk follow raced with concurrent writes, scheduling reconcile", "users", len(users))
		s.counterSvc.MarkDirty(ctx, users...)
	}
	return created, nil
}
