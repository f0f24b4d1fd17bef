package repository

import (
	"Timeline/internal/model"
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrInvalidMetric = errors.New("invalid counter metric")
	// ErrCounterUnderflow 计数行不存在或不足以扣减，计数已漂移
	ErrCounterUnderflow = errors.New("counter underflow")
)

type UserCounterRepo interface {
	WithTx(tx *gorm.DB) UserCounterRepo
	Add(ctx context.Context, metric model.CounterMetric, userID uint64, delta int64) error
	Get(ctx context.Context, userID uint64) (*model.UserCounter, error)
	Reconcile(ctx context.Context, userID uint64) error
	ListUserIDs(ctx context.Context, afterID uint64, limit int) ([]uint64, error)
	Delete(ctx context.Context, userID uint64) error
}

type userCounterRepoImpl struct {
	db *gorm.DB
}

func NewUserCounterRepo(db *gorm.DB) UserCounterRepo {
	return &userCounterRepoImpl{db: db}
}

func (s *userCounterRepoImpl) WithTx(tx *gorm.DB) UserCounterRepo {
	return &userCounterRepoImpl{db: tx}
}

// Add 单条语句原子加减，不在应用层读改写
// 正数走 upsert 保证行存在；负数只更新足够扣减的行，否则返回 ErrCounterUnderflow 且不修改
func (s *userCounterRepoImpl) Add(ctx context.Context, metric model.CounterMetric, userID uint64, delta int64) error {
	if !metric.Valid() {
		return ErrInvalidMetric
	}
	if delta == 0 {
		return nil
	}
	col := string(metric)
	now := time.Now()

	if delta > 0 {
		row := &model.UserCounter{UserID: userID, UpdatedAt: now}
		switch metric {
		case model.MetricFollowers:
			row.FollowersCount = delta
		case model.MetricFollowing:
			row.FollowingCount = delta
		case model.MetricPosts:
			row.PostsCount = delta
		}
		return s.db.WithContext(ctx).
			Clauses(clause.OnConflict{
				Columns: []clause.Column{{Name: "user_id"}},
				DoUpdates: clause.Assignments(map[string]interface{}{
					col:          gorm.Expr(col+" + ?", delta),
					"updated_at": now,
				}),
			}).
			Create(row).Error
	}

	result := s.db.WithContext(ctx).
		Model(&model.UserCounter{}).
		Where("user_id = ? AND "+col+" >= ?", userID, -delta).
		Updates(map[string]interface{}{
			col:          gorm.Expr(col+" + ?", delta),
			"updated_at": now,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: user_id=%d metric=%s delta=%d", ErrCounterUnderflow, userID, col, delta)
	}
	return nil
}

// Get 不存在时返回 nil, nil
func (s *userCounterRepoImpl) Get(ctx context.Context, userID uint64) (*model.UserCounter, error) {
	var counter model.UserCounter
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&counter).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &counter, nil
}

// Reconcile 用源表的 COUNT(*) 重算计数，单条 UPDATE 完成
func (s *userCounterRepoImpl) Reconcile(ctx context.Context, userID uint64) error {
	db := s.db.WithContext(ctx)
	err := db.Clauses(clause.OnConflict{DoNothing: true}).
		Create(&model.UserCounter{UserID: userID, UpdatedAt: time.Now()}).Error
	if err != nil && !IsDuplicate(err) {
		return fmt.Errorf("ensure counter row: %w", err)
	}

	return db.Model(&model.UserCounter{}).
		Where("user_id = ?", userID).
		Updates(map[string]interface{}{
			string(model.MetricFollowers): gorm.Expr("(SELECT COUNT(*) FROM user_follows WHERE following_id = ?)", userID),
			string(model.MetricFollowing): gorm.Expr("(SELECT COUNT(*) FROM user_follows WHERE follower_id = ?)", userID),
			string(model.MetricPosts):     gorm.Expr("(SELECT COUNT(*) FROM posts WHERE author_id = ? AND is_deleted = ?)", userID, false),
			"updated_at":                  time.Now(),
		}).Error
}

// ListUserIDs 键集遍历所有出现在关系、帖子、计数表中的用户
func (s *userCounterRepoImpl) ListUserIDs(ctx context.Context, afterID uint64, limit int) ([]uint64, error) {
	ids := make([]uint64, 0, limit)
	err := s.db.WithContext(ctx).Raw(`
SELECT u.id FROM (
	SELECT follower_id AS id FROM user_follows
	UNION SELECT following_id AS id FROM user_follows
	UNION SELECT author_id AS id FROM posts WHERE author_id IS NOT NULL
	UNION SELECT user_id AS id FROM user_counters
) u WHERE u.id > ? ORDER BY u.id ASC LIMIT ?`, afterID, limit).Scan(&ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (s *userCounterRepoImpl) Delete(ctx context.Context, userID uint64) error {
	return s.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&model.UserCounter{}).Error
}
