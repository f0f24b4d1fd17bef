package repository

import (
	"Timeline/internal/model"
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

type PostRepo interface {
	WithTx(tx *gorm.DB) PostRepo
	CreatePost(ctx context.Context, post *model.Post) error
	GetPost(ctx context.Context, id uint64) (*model.Post, error)
	GetPostByIds(ctx context.Context, ids []uint64) ([]*model.Post, error)
	ListRecentTopLevelByAuthor(ctx context.Context, authorID uint64, limit int) ([]*model.Post, error)
	ListTimelineByJoin(ctx context.Context, userID uint64, cursor *FeedCursor, limit int) ([]*model.Post, error)
	ListPendingFanout(ctx context.Context, before time.Time, limit int) ([]*model.Post, error)
	UpdateFanoutState(ctx context.Context, id uint64, state int8) error
	MarkDeleted(ctx context.Context, ids []uint64) ([]*model.Post, error)
	NullifyAuthor(ctx context.Context, authorID uint64) (int64, error)
}

type PostRepoImpl struct {
	db *gorm.DB
}

func NewPostRepository(db *gorm.DB) PostRepo {
	return &PostRepoImpl{
		db: db,
	}
}

func (s *PostRepoImpl) WithTx(tx *gorm.DB) PostRepo {
	return &PostRepoImpl{db: tx}
}

func (s *PostRepoImpl) CreatePost(ctx context.Context, post *model.Post) error {
	return s.db.WithContext(ctx).Create(post).Error
}

// GetPost 不存在时返回 nil, nil
func (s *PostRepoImpl) GetPost(ctx context.Context, id uint64) (*model.Post, error) {
	var post model.Post
	err := s.db.WithContext(ctx).First(&post, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &post, nil
}

func (s *PostRepoImpl) GetPostByIds(ctx context.Context, ids []uint64) ([]*model.Post, error) {
	posts := make([]*model.Post, 0, len(ids))
	if len(ids) == 0 {
		return posts, nil
	}
	err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&posts).Error
	if err != nil {
		return nil, err
	}
	return posts, nil
}

// ListRecentTopLevelByAuthor 作者最近的 N 条顶层帖子，走 idx_posts_author_created
func (s *PostRepoImpl) ListRecentTopLevelByAuthor(ctx context.Context, authorID uint64, limit int) ([]*model.Post, error) {
	posts := make([]*model.Post, 0, limit)
	err := s.db.WithContext(ctx).
		Where("author_id = ? AND parent_id IS NULL AND is_deleted = ?", authorID, false).
		Order("created_at desc").
		Order("id desc").
		Limit(limit).
		Find(&posts).Error
	if err != nil {
		return nil, err
	}
	return posts, nil
}

// ListTimelineByJoin 未物化时的兜底查询：自己的帖子 + 关注对象的帖子
func (s *PostRepoImpl) ListTimelineByJoin(ctx context.Context, userID uint64, cursor *FeedCursor, limit int) ([]*model.Post, error) {
	posts := make([]*model.Post, 0, limit)
	query := s.db.WithContext(ctx).
		Model(&model.Post{}).
		Select("posts.*").
		Joins("LEFT JOIN user_follows uf ON uf.following_id = posts.author_id AND uf.follower_id = ?", userID).
		Where("posts.parent_id IS NULL AND posts.is_deleted = ?", false).
		Where("(posts.author_id = ? OR uf.follower_id IS NOT NULL)", userID)
	if cursor != nil {
		query = query.Where("(posts.created_at < ? OR (posts.created_at = ? AND posts.id < ?))",
			cursor.CreatedAt, cursor.CreatedAt, cursor.PostID)
	}
	err := query.
		Order("posts.created_at desc").
		Order("posts.id desc").
		Limit(limit).
		Find(&posts).Error
	if err != nil {
		return nil, err
	}
	return posts, nil
}

// ListPendingFanout 扫描长时间未完成扩散的顶层帖子
func (s *PostRepoImpl) ListPendingFanout(ctx context.Context, before time.Time, limit int) ([]*model.Post, error) {
	posts := make([]*model.Post, 0, limit)
	err := s.db.WithContext(ctx).
		Where("fanout_state = ? AND created_at < ?", model.FanoutPending, before).
		Where("parent_id IS NULL AND is_deleted = ? AND author_id IS NOT NULL", false).
		Order("created_at asc").
		Limit(limit).
		Find(&posts).Error
	if err != nil {
		return nil, err
	}
	return posts, nil
}

func (s *PostRepoImpl) UpdateFanoutState(ctx context.Context, id uint64, state int8) error {
	return s.db.WithContext(ctx).
		Model(&model.Post{}).
		Where("id = ?", id).
		Update("fanout_state", state).Error
}

// MarkDeleted 软删除，逐行条件更新，只返回本次真正由 false 变为 true 的帖子（用于扣减计数）
func (s *PostRepoImpl) MarkDeleted(ctx context.Context, ids []uint64) ([]*model.Post, error) {
	deletedIDs := make([]uint64, 0, len(ids))
	for _, id := range ids {
		result := s.db.WithContext(ctx).
			Model(&model.Post{}).
			Where("id = ? AND is_deleted = ?", id, false).
			Update("is_deleted", true)
		if result.Error != nil {
			return nil, result.Error
		}
		if result.RowsAffected == 1 {
			deletedIDs = append(deletedIDs, id)
		}
	}
	return s.GetPostByIds(ctx, deletedIDs)
}

// NullifyAuthor 作者注销后帖子保留，作者引用置空
func (s *PostRepoImpl) NullifyAuthor(ctx context.Context, authorID uint64) (int64, error) {
	result := s.db.WithContext(ctx).
		Model(&model.Post{}).
		Where("author_id = ?", authorID).
		Update("author_id", nil)
	return result.RowsAffected, result.Error
}
