package model

import (
	"time"
)

// 扩散状态
const (
	FanoutPending int8 = 0
	FanoutDone    int8 = 1
	FanoutPartial int8 = 2 // 部分批次进入死信
	FanoutSkipped int8 = 3 // 回复不进入时间线
)

type Post struct {
	ID          uint64    `gorm:"primaryKey" json:"id"`
	AuthorID    *uint64   `gorm:"index:idx_posts_author_created,priority:1" json:"author_id"` // 作者注销后置空
	Content     string    `gorm:"type:text;not null" json:"content"`
	ParentID    *uint64   `gorm:"index:idx_posts_parent" json:"parent_id"`
	IsDeleted   bool      `gorm:"not null;default:false" json:"is_deleted"`
	FanoutState int8      `gorm:"not null;default:0;index:idx_posts_fanout,priority:1" json:"fanout_state"`
	CreatedAt   time.Time `gorm:"not null;index:idx_posts_author_created,priority:2;index:idx_posts_fanout,priority:2" json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (Post) TableName() string {
	return "posts"
}

// IsTopLevel 只有顶层帖子参与扩散
func (p *Post) IsTopLevel() bool {
	return p.ParentID == nil
}
