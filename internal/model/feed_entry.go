package model

import "time"

// FeedEntry 物化后的时间线条目，每个 (读者, 帖子) 一行
type FeedEntry struct {
	UserID    uint64    `gorm:"primaryKey;autoIncrement:false;index:idx_feed_user_time,priority:1;index:idx_feed_user_author,priority:1" json:"user_id"`
	PostID    uint64    `gorm:"primaryKey;autoIncrement:false;index:idx_feed_post;index:idx_feed_user_time,priority:3" json:"post_id"`
	AuthorID  uint64    `gorm:"not null;index:idx_feed_user_author,priority:2;index:idx_feed_author" json:"author_id"`
	CreatedAt time.Time `gorm:"not null;autoCreateTime:false;index:idx_feed_user_time,priority:2" json:"created_at"` // 帖子的创建时间
}

func (FeedEntry) TableName() string {
	return "feed_entries"
}
