package repository

import (
	"Timeline/internal/model"
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// FeedCursor 时间线的键集位置 (created_at, post_id)，翻页条件为严格小于
type FeedCursor struct {
	CreatedAt time.Time
	PostID    uint64
}

type FeedRepo interface {
	WithTx(tx *gorm.DB) FeedRepo
	InsertEntries(ctx context.Context, entries []*model.FeedEntry) (int64, error)
	ListByUser(ctx context.Context, userID uint64, cursor *FeedCursor, limit int) ([]*model.FeedEntry, error)
	HasEntries(ctx context.Context, userID uint64) (bool, error)
	DeleteByUserAndAuthor(ctx context.Context, userID, authorID uint64) (int64, error)
	DeleteByPosts(ctx context.Context, postIDs []uint64) (int64, error)
	DeleteByAuthor(ctx context.Context, authorID uint64) (int64, error)
	DeleteByUser(ctx context.Context, userID uint64) (int64, error)
}

type feedRepoImpl struct {
	db *gorm.DB
}

func NewFeedRepo(db *gorm.DB) FeedRepo {
	return &feedRepoImpl{db: db}
}

func (s *feedRepoImpl) WithTx(tx *gorm.DB) FeedRepo {
	return &feedRepoImpl{db: tx}
}

// InsertEntries 批量写入，(user_id, post_id) 冲突视为成功，返回实际新增行数
func (s *feedRepoImpl) InsertEntries(ctx context.Context, entries []*model.FeedEntry) (int64, error) {
	if len(entries) == 0 {
		return 0, nil
	}
	result := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&entries)
	if result.Error != nil {
		if IsDuplicate(result.Error) {
			return 0, nil
		}
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// ListByUser 按 (created_at, post_id) 倒序扫描
func (s *feedRepoImpl) ListByUser(ctx context.Context, userID uint64, cursor *FeedCursor, limit int) ([]*model.FeedEntry, error) {
	entries := make([]*model.FeedEntry, 0, limit)
	query := s.db.WithContext(ctx).Where("user_id = ?", userID)
	if cursor != nil {
		query = query.Where("(created_at < ? OR (created_at = ? AND post_id < ?))",
			cursor.CreatedAt, cursor.CreatedAt, cursor.PostID)
	}
	result := query.
		Order("created_at desc").
		Order("post_id desc").
		Limit(limit).
		Find(&entries)
	if result.Error != nil {
		return nil, result.Error
	}
	return entries, nil
}

func (s *feedRepoImpl) HasEntries(ctx context.Context, userID uint64) (bool, error) {
	var ids []uint64
	result := s.db.WithContext(ctx).
		Model(&model.FeedEntry{}).
		Where("user_id = ?", userID).
		Limit(1).
		Pluck("post_id", &ids)
	if result.Error != nil {
		return false, result.Error
	}
	return len(ids) > 0, nil
}

// DeleteByUserAndAuthor 取关清理，走 idx_feed_user_author
func (s *feedRepoImpl) DeleteByUserAndAuthor(ctx context.Context, userID, authorID uint64) (int64, error) {
	result := s.db.WithContext(ctx).
		Where("user_id = ? AND author_id = ?", userID, authorID).
		Delete(&model.FeedEntry{})
	return result.RowsAffected, result.Error
}

// DeleteByPosts 删帖清理，走 idx_feed_post
func (s *feedRepoImpl) DeleteByPosts(ctx context.Context, postIDs []uint64) (int64, error) {
	if len(postIDs) == 0 {
		return 0, nil
	}
	result := s.db.WithContext(ctx).
		Where("post_id IN ?", postIDs).
		Delete(&model.FeedEntry{})
	return result.RowsAffected, result.Error
}

// DeleteByAuthor 作者注销时清理其在所有人时间线中的条目
func (s *feedRepoImpl) DeleteByAuthor(ctx context.Context, authorID uint64) (int64, error) {
	result := s.db.WithContext(ctx).
		Where("author_id = ?", authorID).
		Delete(&model.FeedEntry{})
	return result.RowsAffected, result.Error
}

// DeleteByUser 删除读者自己的整条时间线
func (s *feedRepoImpl) DeleteByUser(ctx context.Context, userID uint64) (int64, error) {
	result := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Delete(&model.FeedEntry{})
	return result.RowsAffected, result.Error
}
