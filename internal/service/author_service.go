package service

import (
	"Timeline/internal/model"
	"Timeline/internal/pkg/event"
	"Timeline/internal/repository"
	"context"
	log "log/slog"

	"gorm.io/gorm"
)

// RemoveAuthorResult 作者注销的清理结果
type RemoveAuthorResult struct {
	PostsDetached  int64 `json:"posts_detached"`
	EntriesRemoved int64 `json:"entries_removed"`
	EdgesRemoved   int64 `json:"edges_removed"`
}

type AuthorService interface {
	// RemoveAuthor 清理并发布 AuthorRemoved，消费端会再执行一次 Purge 兜住进行中的扩散
	RemoveAuthor(ctx context.Context, authorID uint64) (*RemoveAuthorResult, error)
	Purge(ctx context.Context, authorID uint64) (*RemoveAuthorResult, error)
}

type AuthorServiceImpl struct {
	db             *gorm.DB
	postRepo       repository.PostRepo
	userFollowRepo repository.UserFollowRepo
	counterRepo    repository.UserCounterRepo
	feedSvc        FeedService
	counterSvc     CounterService
	publisher      event.Publisher
}

func NewAuthorService(
	db *gorm.DB,
	postRepo repository.PostRepo,
	userFollowRepo repository.UserFollowRepo,
	counterRepo repository.UserCounterRepo,
	feedSvc FeedService,
	counterSvc CounterService,
	publisher event.Publisher,
) AuthorService {
	return &AuthorServiceImpl{
		db:             db,
		postRepo:       postRepo,
		userFollowRepo: userFollowRepo,
		counterRepo:    counterRepo,
		feedSvc:        feedSvc,
		counterSvc:     counterSvc,
		publisher:      publisher,
	}
}

func (s *AuthorServiceImpl) RemoveAuthor(ctx context.Context, authorID uint64) (*RemoveAuthorResult, error) {
	res, err := s.Purge(ctx, authorID)
	if err != nil {
		return nil, err
	}
	if err = s.publisher.Publish(ctx, &event.AuthorRemoved{AuthorID: authorID}); err != nil {
		log.WarnContext(ctx, "publish AuthorRemoved error", "author_id", authorID, "err", err)
	}
	return res, nil
}

// Purge 帖子保留但作者置空，删除该作者在所有时间线中的条目、本人的时间线和全部关注关系
// 可重复执行
func (s *AuthorServiceImpl) Purge(ctx context.Context, authorID uint64) (*RemoveAuthorResult, error) {
	if authorID == 0 {
		return nil, ErrParamInvalid
	}

	res := &RemoveAuthorResult{}
	followingDeltas := make(map[uint64]int64)
	followerDeltas := make(map[uint64]int64)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		followRepo := s.userFollowRepo.WithTx(tx)
		followers, err := followRepo.ListAllFollowerIDs(ctx, authorID)
		if err != nil {
			return err
		}
		followings, err := followRepo.ListAllFollowingIDs(ctx, authorID)
		if err != nil {
			return err
		}

		if res.PostsDetached, err = s.postRepo.WithTx(tx).NullifyAuthor(ctx, authorID); err != nil {
			return err
		}
		if res.EntriesRemoved, err = s.feedSvc.RemoveAuthor(ctx, tx, authorID); err != nil {
			return err
		}
		if _, err = s.feedSvc.ClearFeed(ctx, tx, authorID); err != nil {
			return err
		}
		if res.EdgesRemoved, err = followRepo.DeleteAllByUser(ctx, authorID); err != nil {
			return err
		}

		for _, id := range followers {
			followingDeltas[id]--
		}
		for _, id := range followings {
			followerDeltas[id]--
		}
		if err = s.counterSvc.Apply(ctx, tx, model.MetricFollowing, followingDeltas); err != nil {
			return err
		}
		if err = s.counterSvc.Apply(ctx, tx, model.MetricFollowers, followerDeltas); err != nil {
			return err
		}
		return s.counterRepo.WithTx(tx).Delete(ctx, authorID)
	})
	if err != nil {
		return nil, err
	}

	users := make([]uint64, 0, len(followingDeltas)+len(followerDeltas)+1)
	users = append(users, authorID)
	for id := range followingDeltas {
		users = append(users, id)
	}
	for id := range followerDeltas {
		users = append(users, id)
	}
	s.counterSvc.Invalidate(ctx, users...)
	// 对方计数按增量扣减，再排队对账一次
	s.counterSvc.MarkDirty(ctx, users[1:]...)

	log.InfoContext(ctx, "author removed",
		"author_id", authorID,
		"posts_detached", res.PostsDetached,
		"entries_removed", res.EntriesRemoved,
		"edges_removed", res.EdgesRemoved,
	)
	return res, nil
}
