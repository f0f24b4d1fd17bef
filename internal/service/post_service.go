package service

import (
	"Timeline/internal/model"
	"Timeline/internal/pkg/event"
	"Timeline/internal/repository"
	"context"
	log "log/slog"
	"strings"
	"time"

	"gorm.io/gorm"
)

type PostService interface {
	CreatePost(ctx context.Context, authorID uint64, content string, parentID *uint64) (*model.Post, error)
	GetPost(ctx context.Context, postID uint64) (*model.Post, error)
	DeletePost(ctx context.Context, userID, postID uint64) error
	BulkDeletePosts(ctx context.Context, postIDs []uint64) (int, error)
}

type PostServiceImpl struct {
	db         *gorm.DB
	postRepo   repository.PostRepo
	feedSvc    FeedService
	counterSvc CounterService
	publisher  event.Publisher
}

func NewPostService(
	db *gorm.DB,
	postRepo repository.PostRepo,
	feedSvc FeedService,
	counterSvc CounterService,
	publisher event.Publisher,
) PostService {
	return &PostServiceImpl{
		db:         db,
		postRepo:   postRepo,
		feedSvc:    feedSvc,
		counterSvc: counterSvc,
		publisher:  publisher,
	}
}

// CreatePost 帖子与 posts_count 同事务写入，扩散在提交后异步进行
func (s *PostServiceImpl) CreatePost(ctx context.Context, authorID uint64, content string, parentID *uint64) (*model.Post, error) {
	if authorID == 0 || strings.TrimSpace(content) == "" {
		return nil, ErrParamInvalid
	}
	if parentID != nil {
		parent, err := s.postRepo.GetPost(ctx, *parentID)
		if err != nil {
			return nil, err
		}
		if parent == nil || parent.IsDeleted {
			return nil, ErrParentNotFound
		}
	}

	post := &model.Post{
		AuthorID:    &authorID,
		Content:     content,
		ParentID:    parentID,
		FanoutState: model.FanoutPending,
		CreatedAt:   time.Now().UTC().Truncate(time.Millisecond),
	}
	if parentID != nil {
		post.FanoutState = model.FanoutSkipped
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.postRepo.WithTx(tx).CreatePost(ctx, post); err != nil {
			return err
		}
		return s.counterSvc.Increment(ctx, tx, model.MetricPosts, authorID)
	})
	if err != nil {
		return nil, err
	}
	s.counterSvc.Invalidate(ctx, authorID)

	if post.IsTopLevel() {
		evt := &event.PostCreated{
			PostID:    post.ID,
			AuthorID:  authorID,
			CreatedAt: post.CreatedAt,
		}
		if err = s.publisher.Publish(ctx, evt); err != nil {
			// 扫描任务会补发仍处于 pending 的帖子
			log.WarnContext(ctx, "publish PostCreated error", "post_id", post.ID, "err", err)
		}
	}
	return post, nil
}

func (s *PostServiceImpl) GetPost(ctx context.Context, postID uint64) (*model.Post, error) {
	post, err := s.postRepo.GetPost(ctx, postID)
	if err != nil {
		return nil, err
	}
	if post == nil || post.IsDeleted {
		return nil, ErrPostNotFound
	}
	return post, nil
}

func (s *PostServiceImpl) DeletePost(ctx context.Context, userID, postID uint64) error {
	post, err := s.postRepo.GetPost(ctx, postID)
	if err != nil {
		return err
	}
	if post == nil || post.IsDeleted {
		return ErrPostNotFound
	}
	if post.AuthorID == nil || *post.AuthorID != userID {
		return ErrPostNotOwner
	}
	_, err = s.deletePosts(ctx, []uint64{postID})
	return err
}

// BulkDeletePosts 管理端批量删除，与单条删除走同一套清理和计数逻辑
func (s *PostServiceImpl) BulkDeletePosts(ctx context.Context, postIDs []uint64) (int, error) {
	if len(postIDs) == 0 {
		return 0, nil
	}
	deleted, err := s.deletePosts(ctx, postIDs)
	if err != nil {
		return 0, err
	}
	return len(deleted), nil
}

func (s *PostServiceImpl) deletePosts(ctx context.Context, postIDs []uint64) ([]*model.Post, error) {
	var deleted []*model.Post
	deltas := make(map[uint64]int64)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		deleted, err = s.postRepo.WithTx(tx).MarkDeleted(ctx, postIDs)
		if err != nil {
			return err
		}
		if _, err = s.feedSvc.RemovePosts(ctx, tx, postIDs...); err != nil {
			return err
		}
		for _, p := range deleted {
			if p.AuthorID != nil {
				deltas[*p.AuthorID]--
			}
		}
		return s.counterSvc.Apply(ctx, tx, model.MetricPosts, deltas)
	})
	if err != nil {
		return nil, err
	}

	authors := make([]uint64, 0, len(deltas))
	for id := range deltas {
		authors = append(authors, id)
	}
	s.counterSvc.Invalidate(ctx, authors...)

	for _, p := range deleted {
		if err = s.publisher.Publish(ctx, &event.PostDeleted{PostID: p.ID}); err != nil {
			log.WarnContext(ctx, "publish PostDeleted error", "post_id", p.ID, "err", err)
		}
	}
	return deleted, nil
}
