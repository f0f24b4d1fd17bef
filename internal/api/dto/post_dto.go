package dto

type CreatePostDTO struct {
	Content  string  `json:"content" binding:"required" validate:"min=1,max=5000"`
	ParentID *uint64 `json:"parent_id"`
}

type PostDTO struct {
	ID        uint64  `json:"id"`
	AuthorID  *uint64 `json:"author_id"`
	Content   string  `json:"content"`
	ParentID  *uint64 `json:"parent_id"`
	CreatedAt string  `json:"created_at"`
}

type BulkDeletePostsDTO struct {
	PostIDs []uint64 `json:"post_ids" binding:"required" validate:"min=1,max=1000"`
}
