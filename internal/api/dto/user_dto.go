package dto

type CountersDTO struct {
	UserID         uint64 `json:"user_id"`
	FollowersCount int64  `json:"followers_count"`
	FollowingCount int64  `json:"following_count"`
	PostsCount     int64  `json:"posts_count"`
}

type UserFollowDTO struct {
	FollowerID  uint64 `json:"follower_id"`
	FollowingID uint64 `json:"following_id"`
	CreatedAt   string `json:"created_at"`
}

type PageDTO struct {
	Page     int `form:"page" validate:"min=0"`
	PageSize int `form:"page_size" validate:"min=0,max=100"`
}
