package repository

import (
	"Timeline/internal/model"
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type UserFollowRepo interface {
	WithTx(tx *gorm.DB) UserFollowRepo
	GetUserFollowers(ctx context.Context, userID uint64, limit, offset int) ([]*model.UserFollow, error)
	GetUserFollowing(ctx context.Context, userID uint64, limit, offset int) ([]*model.UserFollow, error)
	ListFollowerIDs(ctx context.Context, userID uint64, afterID uint64, limit int) ([]uint64, error)
	FilterFollowerIDs(ctx context.Context, userID uint64, candidates []uint64) ([]uint64, error)
	ListAllFollowerIDs(ctx context.Context, userID uint64) ([]uint64, error)
	ListAllFollowingIDs(ctx context.Context, userID uint64) ([]uint64, error)
	GetUserFollowerCount(ctx context.Context, userID uint64) (int64, error)
	GetUserFollowingCount(ctx context.Context, userID uint64) (int64, error)
	GetUserFollow(ctx context.Context, userID uint64, followingID uint64) (*model.UserFollow, error)
	ExistingPairs(ctx context.Context, edges []*model.UserFollow) (map[[2]uint64]struct{}, error)
	CreateUserFollow(ctx context.Context, userFollow *model.UserFollow) (bool, error)
	CreateUserFollows(ctx context.Context, userFollows []*model.UserFollow) (int64, error)
	DeleteUserFollow(ctx context.Context, userFollow *model.UserFollow) (bool, error)
	DeleteAllByUser(ctx context.Context, userID uint64) (int64, error)
}

type UserFollowRepoImpl struct {
	db *gorm.DB
}

func NewUserFollowRepo(db *gorm.DB) UserFollowRepo {
	return &UserFollowRepoImpl{db: db}
}

func (s *UserFollowRepoImpl) WithTx(tx *gorm.DB) UserFollowRepo {
	return &UserFollowRepoImpl{db: tx}
}

// GetUserFollowers 获取用户的粉丝列表
func (s *UserFollowRepoImpl) GetUserFollowers(ctx context.Context, userID uint64, limit, offset int) ([]*model.UserFollow, error) {
	var userFollows []*model.UserFollow
	result := s.db.WithContext(ctx).
		Where("following_id = ?", userID).
		Order("created_at desc").
		Limit(limit).
		Offset(offset).
		Find(&userFollows)

	if result.Error != nil {
		return nil, result.Error
	}
	return userFollows, nil
}

// GetUserFollowing 获取用户的关注列表
func (s *UserFollowRepoImpl) GetUserFollowing(ctx context.Context, userID uint64, limit, offset int) ([]*model.UserFollow, error) {
	var userFollows []*model.UserFollow
	result := s.db.WithContext(ctx).
		Where("follower_id = ?", userID).
		Order("created_at desc").
		Limit(limit).
		Offset(offset).
		Find(&userFollows)

	if result.Error != nil {
		return nil, result.Error
	}
	return userFollows, nil
}

// ListFollowerIDs 按 follower_id 键集分页枚举粉丝，走 idx_following_follower
func (s *UserFollowRepoImpl) ListFollowerIDs(ctx context.Context, userID uint64, afterID uint64, limit int) ([]uint64, error) {
	ids := make([]uint64, 0, limit)
	result := s.db.WithContext(ctx).
		Model(&model.UserFollow{}).
		Where("following_id = ? AND follower_id > ?", userID, afterID).
		Order("follower_id asc").
		Limit(limit).
		Pluck("follower_id", &ids)
	if result.Error != nil {
		return nil, result.Error
	}
	return ids, nil
}

// FilterFollowerIDs 返回 candidates 中当前仍关注 userID 的用户
func (s *UserFollowRepoImpl) FilterFollowerIDs(ctx context.Context, userID uint64, candidates []uint64) ([]uint64, error) {
	if len(candidates) == 0 {
		return nil, nil
	}
	ids := make([]uint64, 0, len(candidates))
	result := s.db.WithContext(ctx).
		Model(&model.UserFollow{}).
		Where("following_id = ? AND follower_id IN ?", userID, candidates).
		Order("follower_id asc").
		Pluck("follower_id", &ids)
	if result.Error != nil {
		return nil, result.Error
	}
	return ids, nil
}

func (s *UserFollowRepoImpl) ListAllFollowerIDs(ctx context.Context, userID uint64) ([]uint64, error) {
	var ids []uint64
	result := s.db.WithContext(ctx).
		Model(&model.UserFollow{}).
		Where("following_id = ?", userID).
		Pluck("follower_id", &ids)
	if result.Error != nil {
		return nil, result.Error
	}
	return ids, nil
}

func (s *UserFollowRepoImpl) ListAllFollowingIDs(ctx context.Context, userID uint64) ([]uint64, error) {
	var ids []uint64
	result := s.db.WithContext(ctx).
		Model(&model.UserFollow{}).
		Where("follower_id = ?", userID).
		Pluck("following_id", &ids)
	if result.Error != nil {
		return nil, result.Error
	}
	return ids, nil
}

// GetUserFollowerCount 获取用户的粉丝数量
func (s *UserFollowRepoImpl) GetUserFollowerCount(ctx context.Context, userID uint64) (int64, error) {
	var count int64
	result := s.db.WithContext(ctx).
		Model(&model.UserFollow{}).
		Where("following_id = ?", userID).
		Count(&count)

	if result.Error != nil {
		return 0, result.Error
	}
	return count, nil
}

// GetUserFollowingCount 获取用户的关注数量
func (s *UserFollowRepoImpl) GetUserFollowingCount(ctx context.Context, userID uint64) (int64, error) {
	var count int64
	result := s.db.WithContext(ctx).
		Model(&model.UserFollow{}).
		Where("follower_id = ?", userID).
		Count(&count)

	if result.Error != nil {
		return 0, result.Error
	}
	return count, nil
}

// GetUserFollow 获取用户的关注关系
func (s *UserFollowRepoImpl) GetUserFollow(ctx context.Context, userID uint64, followingID uint64) (*model.UserFollow, error) {
	var userFollow model.UserFollow
	result := s.db.WithContext(ctx).
		Where("follower_id = ? AND following_id = ?", userID, followingID).
		First(&userFollow)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}
	return &userFollow, nil
}

// ExistingPairs 返回给定关系中已存在的 (follower_id, following_id)
// 先按两列 IN 粗筛再在内存中精确匹配，不依赖行值 IN 语法
func (s *UserFollowRepoImpl) ExistingPairs(ctx context.Context, edges []*model.UserFollow) (map[[2]uint64]struct{}, error) {
	existing := make(map[[2]uint64]struct{})
	if len(edges) == 0 {
		return existing, nil
	}
	wanted := make(map[[2]uint64]struct{}, len(edges))
	followerSet := make(map[uint64]struct{})
	followingSet := make(map[uint64]struct{})
	for _, e := range edges {
		wanted[[2]uint64{e.FollowerID, e.FollowingID}] = struct{}{}
		followerSet[e.FollowerID] = struct{}{}
		followingSet[e.FollowingID] = struct{}{}
	}
	followerIDs := make([]uint64, 0, len(followerSet))
	for id := range followerSet {
		followerIDs = append(followerIDs, id)
	}
	followingIDs := make([]uint64, 0, len(followingSet))
	for id := range followingSet {
		followingIDs = append(followingIDs, id)
	}

	var rows []*model.UserFollow
	result := s.db.WithContext(ctx).
		Where("follower_id IN ? AND following_id IN ?", followerIDs, followingIDs).
		Find(&rows)
	if result.Error != nil {
		return nil, result.Error
	}
	for _, r := range rows {
		key := [2]uint64{r.FollowerID, r.FollowingID}
		if _, ok := wanted[key]; ok {
			existing[key] = struct{}{}
		}
	}
	return existing, nil
}

// CreateUserFollow 创建用户的关注关系，返回是否新建
func (s *UserFollowRepoImpl) CreateUserFollow(ctx context.Context, userFollow *model.UserFollow) (bool, error) {
	result := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			DoNothing: true,
		}).
		Create(userFollow)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// CreateUserFollows 批量创建，已存在的关系跳过
func (s *UserFollowRepoImpl) CreateUserFollows(ctx context.Context, userFollows []*model.UserFollow) (int64, error) {
	if len(userFollows) == 0 {
		return 0, nil
	}
	result := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			DoNothing: true,
		}).
		Create(&userFollows)
	return result.RowsAffected, result.Error
}

// DeleteUserFollow 删除用户的关注关系，返回是否真的删除了一行
func (s *UserFollowRepoImpl) DeleteUserFollow(ctx context.Context, userFollow *model.UserFollow) (bool, error) {
	result := s.db.WithContext(ctx).
		Where("follower_id = ? AND following_id = ?", userFollow.FollowerID, userFollow.FollowingID).
		Delete(&model.UserFollow{})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// DeleteAllByUser 删除用户作为粉丝或被关注者的全部关系
func (s *UserFollowRepoImpl) DeleteAllByUser(ctx context.Context, userID uint64) (int64, error) {
	result := s.db.WithContext(ctx).
		Where("follower_id = ? OR following_id = ?", userID, userID).
		Delete(&model.UserFollow{})
	return result.RowsAffected, result.Error
}
