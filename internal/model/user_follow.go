package model

import "time"

// UserFollow 关注边，follower 关注 following
// 扩散按 (following_id, follower_id) 键集枚举粉丝
type UserFollow struct {
	FollowerID  uint64    `gorm:"primaryKey;autoIncrement:false;index:idx_following_follower,priority:2" json:"follower_id"`
	FollowingID uint64    `gorm:"primaryKey;autoIncrement:false;index:idx_following_follower,priority:1" json:"following_id"`
	CreatedAt   time.Time `gorm:"not null" json:"created_at"`
}

func (UserFollow) TableName() string {
	return "user_follows"
}
