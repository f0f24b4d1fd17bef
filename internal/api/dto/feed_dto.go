package dto

type FeedQueryDTO struct {
	Cursor   string `form:"cursor"`
	PageSize int    `form:"page_size" validate:"min=0,max=1000"`
}

type FeedDTO struct {
	Posts      []*PostDTO `json:"posts"`
	NextCursor string     `json:"next_cursor"`
	HasMore    bool       `json:"has_more"`
}
