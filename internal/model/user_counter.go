package model

import "time"

type UserCounter struct {
	UserID         uint64    `gorm:"primaryKey;autoIncrement:false" json:"user_id"`
	FollowersCount int64     `gorm:"not null;default:0" json:"followers_count"`
	FollowingCount int64     `gorm:"not null;default:0" json:"following_count"`
	PostsCount     int64     `gorm:"not null;default:0" json:"posts_count"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (UserCounter) TableName() string {
	return "user_counters"
}

// CounterMetric 反规范化计数列
type CounterMetric string

const (
	MetricFollowers CounterMetric = "followers_count"
	MetricFollowing CounterMetric = "following_count"
	MetricPosts     CounterMetric = "posts_count"
)

// Valid 只允许白名单中的列名拼进 SQL
func (m CounterMetric) Valid() bool {
	switch m {
	case MetricFollowers, MetricFollowing, MetricPosts:
		return true
	}
	return false
}
