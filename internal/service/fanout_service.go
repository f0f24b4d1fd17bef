package service

import (
	"Timeline/internal/api/config"
	"Timeline/internal/model"
	"Timeline/internal/pkg/consts"
	"Timeline/internal/pkg/event"
	"Timeline/internal/pkg/metrics"
	"Timeline/internal/pkg/retry"
	"Timeline/internal/repository"
	"context"
	"errors"
	"fmt"
	log "log/slog"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/sourcegraph/conc/pool"
)

// FanoutBatch 一次批量写入的单元，也是死信的载荷
type FanoutBatch struct {
	PostID      uint64    `json:"post_id"`
	AuthorID    uint64    `json:"author_id"`
	CreatedAt   time.Time `json:"created_at"`
	FollowerIDs []uint64  `json:"follower_ids"`
}

type FanoutResult struct {
	Entries       int64
	Batches       int
	FailedBatches int
	Skipped       bool
}

type FanoutService interface {
	Dispatch(ctx context.Context, evt *event.PostCreated) (*FanoutResult, error)
	DispatchBatch(ctx context.Context, batch *FanoutBatch) (int64, error)
	Sweep(ctx context.Context) (int, error)
}

type FanoutServiceImpl struct {
	feedRepo       repository.FeedRepo
	postRepo       repository.PostRepo
	userFollowRepo repository.UserFollowRepo
	deadLetterRepo repository.DeadLetterRepo
	cfg            config.FanoutConfig
	policy         retry.Policy
}

func NewFanoutService(
	feedRepo repository.FeedRepo,
	postRepo repository.PostRepo,
	userFollowRepo repository.UserFollowRepo,
	deadLetterRepo repository.DeadLetterRepo,
	cfg config.FanoutConfig,
) FanoutService {
	if cfg.BatchSize <= 0 || cfg.BatchSize > consts.MaxFanoutBatchSize {
		cfg.BatchSize = consts.MaxFanoutBatchSize
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.SweepLimit <= 0 {
		cfg.SweepLimit = 100
	}
	return &FanoutServiceImpl{
		feedRepo:       feedRepo,
		postRepo:       postRepo,
		userFollowRepo: userFollowRepo,
		deadLetterRepo: deadLetterRepo,
		cfg:            cfg,
		policy:         retry.FromConfig(cfg.Retry),
	}
}

// Dispatch 将顶层帖子写入作者本人及所有粉丝的时间线
// 单个批次重试耗尽后进入死信，不影响其他批次；只有死信也写不进去时才返回错误
func (s *FanoutServiceImpl) Dispatch(ctx context.Context, evt *event.PostCreated) (*FanoutResult, error) {
	start := time.Now()
	res := &FanoutResult{}

	post, err := s.postRepo.GetPost(ctx, evt.PostID)
	if err != nil {
		return nil, err
	}
	if post == nil {
		return nil, retry.Permanent(fmt.Errorf("%w: post_id=%d", ErrPostNotFound, evt.PostID))
	}
	if !post.IsTopLevel() {
		res.Skipped = true
		if post.FanoutState == model.FanoutPending {
			return res, s.postRepo.UpdateFanoutState(ctx, post.ID, model.FanoutSkipped)
		}
		return res, nil
	}
	if post.IsDeleted || post.AuthorID == nil {
		res.Skipped = true
		return res, nil
	}

	authorID := *post.AuthorID
	createdAt := post.CreatedAt.UTC()

	var entries atomic.Int64
	var failed atomic.Int32
	p := pool.New().WithContext(ctx).WithMaxGoroutines(s.cfg.Concurrency)
	submit := func(followerIDs []uint64) {
		res.Batches++
		batch := &FanoutBatch{
			PostID:      post.ID,
			AuthorID:    authorID,
			CreatedAt:   createdAt,
			FollowerIDs: followerIDs,
		}
		p.Go(func(ctx context.Context) error {
			n, err := s.DispatchBatch(ctx, batch)
			if err == nil {
				entries.Add(n)
				return nil
			}
			failed.Add(1)
			return s.deadLetter(ctx, batch, err)
		})
	}

	// 作者自己的时间线
	submit([]uint64{authorID})

	var afterID uint64
	var listErr error
	for {
		var ids []uint64
		listErr = retry.Do(ctx, s.policy, func(ctx context.Context) error {
			var err error
			ids, err = s.userFollowRepo.ListFollowerIDs(ctx, authorID, afterID, s.cfg.BatchSize)
			if err != nil && !repository.IsTransient(err) {
				return retry.Permanent(err)
			}
			return err
		}, nil)
		if listErr != nil || len(ids) == 0 {
			break
		}
		submit(ids)
		if len(ids) < s.cfg.BatchSize {
			break
		}
		afterID = ids[len(ids)-1]
	}

	waitErr := p.Wait()
	res.Entries = entries.Load()
	res.FailedBatches = int(failed.Load())
	metrics.FanoutDuration.Observe(time.Since(start).Seconds())

	if listErr != nil {
		return res, fmt.Errorf("enumerate followers of %d: %w", authorID, listErr)
	}
	if waitErr != nil {
		return res, waitErr
	}

	state := model.FanoutDone
	if res.FailedBatches > 0 {
		state = model.FanoutPartial
	}
	if err = s.postRepo.UpdateFanoutState(ctx, post.ID, state); err != nil {
		log.ErrorContext(ctx, "update fanout state error", "post_id", post.ID, "err", err)
	}

	log.InfoContext(ctx, "fanout dispatched",
		"post_id", post.ID,
		"author_id", authorID,
		"entries", res.Entries,
		"batches", res.Batches,
		"failed_batches", res.FailedBatches,
	)
	return res, nil
}

// DispatchBatch 单批写入，冲突视为成功，瞬时错误按策略重试
// 只写入作者本人和仍存在关注关系的粉丝；死信重放同样走这里
// 写入后复查帖子与关注关系，期间发生的删帖、注销、取关会把刚写入的条目清掉
func (s *FanoutServiceImpl) DispatchBatch(ctx context.Context, batch *FanoutBatch) (int64, error) {
	live, err := s.postLive(ctx, batch)
	if err != nil {
		return 0, err
	}
	if !live {
		return 0, nil
	}

	var inserted int64
	var targets []uint64
	err = retry.Do(ctx, s.policy, func(ctx context.Context) error {
		ids, err := s.targets(ctx, batch, batch.FollowerIDs)
		if err != nil {
			return err
		}
		rows := make([]*model.FeedEntry, 0, len(ids))
		for _, uid := range ids {
			rows = append(rows, &model.FeedEntry{
				UserID:    uid,
				PostID:    batch.PostID,
				AuthorID:  batch.AuthorID,
				CreatedAt: batch.CreatedAt,
			})
		}
		n, err := s.feedRepo.InsertEntries(ctx, rows)
		if err != nil {
			return err
		}
		inserted = n
		targets = ids
		return nil
	}, func(err error, wait time.Duration) {
		log.WarnContext(ctx, "fanout batch retry", "post_id", batch.PostID, "size", len(batch.FollowerIDs), "wait", wait, "err", err)
	})
	if err != nil {
		metrics.FanoutBatchesTotal.WithLabelValues("failed").Inc()
		return 0, err
	}

	if err = s.revalidate(ctx, batch, targets); err != nil {
		metrics.FanoutBatchesTotal.WithLabelValues("failed").Inc()
		return 0, err
	}
	metrics.FanoutBatchesTotal.WithLabelValues("ok").Inc()
	metrics.FanoutEntriesTotal.Add(float64(inserted))
	return inserted, nil
}

// postLive 帖子不存在、已删除或作者已注销时不再写入
func (s *FanoutServiceImpl) postLive(ctx context.Context, batch *FanoutBatch) (bool, error) {
	post, err := s.postRepo.GetPost(ctx, batch.PostID)
	if err != nil {
		return false, err
	}
	return post != nil && !post.IsDeleted && post.AuthorID != nil && *post.AuthorID == batch.AuthorID, nil
}

// targets 作者本人无需关注关系，其余用户必须仍在关注作者
func (s *FanoutServiceImpl) targets(ctx context.Context, batch *FanoutBatch, userIDs []uint64) ([]uint64, error) {
	ids := make([]uint64, 0, len(userIDs))
	candidates := make([]uint64, 0, len(userIDs))
	for _, uid := range userIDs {
		if uid == batch.AuthorID {
			ids = append(ids, uid)
			continue
		}
		candidates = append(candidates, uid)
	}
	followers, err := s.userFollowRepo.FilterFollowerIDs(ctx, batch.AuthorID, candidates)
	if err != nil {
		return nil, err
	}
	return append(ids, followers...), nil
}

func (s *FanoutServiceImpl) revalidate(ctx context.Context, batch *FanoutBatch, written []uint64) error {
	if len(written) == 0 {
		return nil
	}
	live, err := s.postLive(ctx, batch)
	if err != nil {
		return err
	}
	if !live {
		n, err := s.feedRepo.DeleteByPosts(ctx, []uint64{batch.PostID})
		if err != nil {
			return err
		}
		metrics.CleanupEntriesTotal.WithLabelValues("post_deleted").Add(float64(n))
		log.InfoContext(ctx, "post removed during fanout, entries cleaned", "post_id", batch.PostID, "removed", n)
		return nil
	}

	still, err := s.targets(ctx, batch, written)
	if err != nil {
		return err
	}
	if len(still) == len(written) {
		return nil
	}
	keep := make(map[uint64]struct{}, len(still))
	for _, uid := range still {
		keep[uid] = struct{}{}
	}
	for _, uid := range written {
		if _, ok := keep[uid]; ok {
			continue
		}
		n, err := s.feedRepo.DeleteByUserAndAuthor(ctx, uid, batch.AuthorID)
		if err != nil {
			return err
		}
		metrics.CleanupEntriesTotal.WithLabelValues("unfollow").Add(float64(n))
		log.InfoContext(ctx, "unfollowed during fanout, entries cleaned", "post_id", batch.PostID, "user_id", uid, "author_id", batch.AuthorID)
	}
	return nil
}

func (s *FanoutServiceImpl) deadLetter(ctx context.Context, batch *FanoutBatch, cause error) error {
	payload, err := json.Marshal(batch)
	if err != nil {
		return err
	}
	attempts := s.policy.MaxAttempts
	var rErr *retry.Error
	if errors.As(cause, &rErr) {
		attempts = rErr.Attempts
	}
	letter := &model.DeadLetter{
		Kind:      model.DeadLetterKindFanoutBatch,
		Payload:   string(payload),
		LastError: cause.Error(),
		Attempts:  attempts,
	}
	if err = s.deadLetterRepo.Save(ctx, letter); err != nil {
		log.ErrorContext(ctx, "save fanout dead letter error", "post_id", batch.PostID, "err", err)
		return err
	}
	metrics.DeadLettersTotal.WithLabelValues(model.DeadLetterKindFanoutBatch).Inc()
	log.ErrorContext(ctx, "fanout batch dead-lettered",
		"post_id", batch.PostID,
		"size", len(batch.FollowerIDs),
		"dead_letter_id", letter.ID,
		"err", cause,
	)
	return nil
}

// Sweep 补偿发布失败或扩散中断、长时间停留在 pending 的帖子
func (s *FanoutServiceImpl) Sweep(ctx context.Context) (int, error) {
	before := time.Now().UTC().Add(-time.Duration(s.cfg.SweepAfter) * time.Second)
	posts, err := s.postRepo.ListPendingFanout(ctx, before, s.cfg.SweepLimit)
	if err != nil {
		return 0, err
	}
	done := 0
	for _, p := range posts {
		if err = ctx.Err(); err != nil {
			return done, err
		}
		_, err = s.Dispatch(ctx, &event.PostCreated{
			PostID:    p.ID,
			AuthorID:  *p.AuthorID,
			ParentID:  p.ParentID,
			CreatedAt: p.CreatedAt,
		})
		if err != nil {
			log.ErrorContext(ctx, "sweep fanout error", "post_id", p.ID, "err", err)
			continue
		}
		done++
	}
	return done, nil
}
