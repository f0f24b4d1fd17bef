package service

import (
	"Timeline/internal/api/config"
	"Timeline/internal/model"
	"Timeline/internal/pkg/metrics"
	"Timeline/internal/pkg/retry"
	"Timeline/internal/repository"
	"context"
	"errors"
	log "log/slog"
	"time"

	"github.com/goccy/go-json"
)

// BackfillRequest 死信载荷
type BackfillRequest struct {
	FollowerID uint64 `json:"follower_id"`
	FollowedID uint64 `json:"followed_id"`
}

type BackfillService interface {
	Backfill(ctx context.Context, followerID, followedID uint64) (int64, error)
	Replay(ctx context.Context, req *BackfillRequest) (int64, error)
}

type BackfillServiceImpl struct {
	feedRepo       repository.FeedRepo
	postRepo       repository.PostRepo
	userFollowRepo repository.UserFollowRepo
	deadLetterRepo repository.DeadLetterRepo
	window         int
	policy         retry.Policy
}

func NewBackfillService(
	feedRepo repository.FeedRepo,
	postRepo repository.PostRepo,
	userFollowRepo repository.UserFollowRepo,
	deadLetterRepo repository.DeadLetterRepo,
	cfg config.BackfillConfig,
) BackfillService {
	window := cfg.Window
	if window <= 0 {
		window = 50
	}
	return &BackfillServiceImpl{
		feedRepo:       feedRepo,
		postRepo:       postRepo,
		userFollowRepo: userFollowRepo,
		deadLetterRepo: deadLetterRepo,
		window:         window,
		policy:         retry.FromConfig(cfg.Retry),
	}
}

// Backfill 把被关注者最近的顶层帖子写入新粉丝的时间线，重试耗尽进入死信
func (s *BackfillServiceImpl) Backfill(ctx context.Context, followerID, followedID uint64) (int64, error) {
	req := &BackfillRequest{FollowerID: followerID, FollowedID: followedID}
	n, err := s.Replay(ctx, req)
	if err == nil {
		return n, nil
	}
	if ctx.Err() != nil {
		return 0, err
	}

	payload, _ := json.Marshal(req)
	letter := &model.DeadLetter{
		Kind:      model.DeadLetterKindBackfill,
		Payload:   string(payload),
		LastError: err.Error(),
		Attempts:  s.policy.MaxAttempts,
	}
	var rErr *retry.Error
	if errors.As(err, &rErr) {
		letter.Attempts = rErr.Attempts
	}
	if saveErr := s.deadLetterRepo.Save(ctx, letter); saveErr != nil {
		log.ErrorContext(ctx, "save backfill dead letter error", "follower_id", followerID, "followed_id", followedID, "err", saveErr)
		return 0, saveErr
	}
	metrics.DeadLettersTotal.WithLabelValues(model.DeadLetterKindBackfill).Inc()
	log.ErrorContext(ctx, "backfill dead-lettered",
		"follower_id", followerID,
		"followed_id", followedID,
		"dead_letter_id", letter.ID,
		"err", err,
	)
	return 0, nil
}

// Replay 执行一次回填，不写死信
func (s *BackfillServiceImpl) Replay(ctx context.Context, req *BackfillRequest) (int64, error) {
	edge, err := s.userFollowRepo.GetUserFollow(ctx, req.FollowerID, req.FollowedID)
	if err != nil {
		return 0, err
	}
	if edge == nil {
		// 执行前已取关
		return 0, nil
	}

	var inserted int64
	err = retry.Do(ctx, s.policy, func(ctx context.Context) error {
		posts, err := s.postRepo.ListRecentTopLevelByAuthor(ctx, req.FollowedID, s.window)
		if err != nil {
			return err
		}
		rows := make([]*model.FeedEntry, 0, len(posts))
		for _, p := range posts {
			rows = append(rows, &model.FeedEntry{
				UserID:    req.FollowerID,
				PostID:    p.ID,
				AuthorID:  req.FollowedID,
				CreatedAt: p.CreatedAt.UTC(),
			})
		}
		n, err := s.feedRepo.InsertEntries(ctx, rows)
		if err != nil {
			return err
		}
		inserted = n
		return nil
	}, func(err error, wait time.Duration) {
		log.WarnContext(ctx, "backfill retry", "follower_id", req.FollowerID, "followed_id", req.FollowedID, "wait", wait, "err", err)
	})
	if err != nil {
		return 0, err
	}
	metrics.BackfillEntriesTotal.Add(float64(inserted))

	// 回填期间发生取关，清理刚写入的条目
	edge, err = s.userFollowRepo.GetUserFollow(ctx, req.FollowerID, req.FollowedID)
	if err != nil {
		return inserted, err
	}
	if edge == nil {
		if _, err = s.feedRepo.DeleteByUserAndAuthor(ctx, req.FollowerID, req.FollowedID); err != nil {
			return inserted, err
		}
		metrics.CleanupEntriesTotal.WithLabelValues("unfollow").Add(float64(inserted))
		return 0, nil
	}
	return inserted, nil
}
