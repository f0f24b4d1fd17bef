package service

import (
	"Timeline/internal/api/config"
	"Timeline/internal/model"
	"Timeline/internal/pkg/metrics"
	"Timeline/internal/pkg/util"
	"Timeline/internal/repository"
	"context"
	log "log/slog"

	"gorm.io/gorm"
)

// FeedPage 一页时间线
type FeedPage struct {
	Posts      []*model.Post
	NextCursor string
	HasMore    bool
}

type FeedService interface {
	GetFeed(ctx context.Context, userID uint64, cursor string, pageSize int) (*FeedPage, error)
	RemoveAuthorFromFeed(ctx context.Context, tx *gorm.DB, userID, authorID uint64) (int64, error)
	RemovePosts(ctx context.Context, tx *gorm.DB, postIDs ...uint64) (int64, error)
	RemoveAuthor(ctx context.Context, tx *gorm.DB, authorID uint64) (int64, error)
	ClearFeed(ctx context.Context, tx *gorm.DB, userID uint64) (int64, error)
}

type FeedServiceImpl struct {
	feedRepo repository.FeedRepo
	postRepo repository.PostRepo
	cfg      config.FeedConfig
}

func NewFeedService(feedRepo repository.FeedRepo, postRepo repository.PostRepo, cfg config.FeedConfig) FeedService {
	if cfg.DefaultPageSize <= 0 {
		cfg.DefaultPageSize = 20
	}
	if cfg.MaxPageSize < cfg.DefaultPageSize {
		cfg.MaxPageSize = cfg.DefaultPageSize
	}
	return &FeedServiceImpl{feedRepo: feedRepo, postRepo: postRepo, cfg: cfg}
}

// GetFeed 优先读物化的时间线，读者没有任何条目时走关注关系联表查询
func (s *FeedServiceImpl) GetFeed(ctx context.Context, userID uint64, cursor string, pageSize int) (*FeedPage, error) {
	if userID == 0 {
		return nil, ErrParamInvalid
	}
	if pageSize <= 0 {
		pageSize = s.cfg.DefaultPageSize
	}
	if pageSize > s.cfg.MaxPageSize {
		pageSize = s.cfg.MaxPageSize
	}

	c, err := util.DecodeFeedCursor(cursor)
	if err != nil {
		return nil, ErrCursorInvalid
	}

	if c != nil {
		if c.Source == util.CursorSourceJoin {
			return s.readByJoin(ctx, userID, c, pageSize)
		}
		return s.readFromStore(ctx, userID, c, pageSize)
	}

	if s.cfg.Fallback {
		has, err := s.feedRepo.HasEntries(ctx, userID)
		if err != nil {
			return nil, err
		}
		if !has {
			return s.readByJoin(ctx, userID, nil, pageSize)
		}
	}
	return s.readFromStore(ctx, userID, nil, pageSize)
}

func (s *FeedServiceImpl) readFromStore(ctx context.Context, userID uint64, c *util.FeedCursor, pageSize int) (*FeedPage, error) {
	entries, err := s.feedRepo.ListByUser(ctx, userID, toRepoCursor(c), pageSize+1)
	if err != nil {
		return nil, err
	}
	metrics.FeedReadsTotal.WithLabelValues(util.CursorSourceStore).Inc()

	page := &FeedPage{Posts: make([]*model.Post, 0, len(entries))}
	if len(entries) > pageSize {
		page.HasMore = true
		entries = entries[:pageSize]
	}
	if len(entries) == 0 {
		return page, nil
	}

	ids := make([]uint64, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.PostID)
	}
	posts, err := s.postRepo.GetPostByIds(ctx, ids)
	if err != nil {
		return nil, err
	}
	postMap := make(map[uint64]*model.Post, len(posts))
	for _, p := range posts {
		postMap[p.ID] = p
	}

	missing := 0
	for _, e := range entries {
		p, ok := postMap[e.PostID]
		if !ok || p.IsDeleted {
			missing++
			continue
		}
		page.Posts = append(page.Posts, p)
	}
	if missing > 0 {
		log.WarnContext(ctx, "feed entries point to missing posts", "user_id", userID, "count", missing)
	}

	// 游标取最后一个条目而不是最后一个可见帖子，被过滤的条目不会重复出现
	if page.HasMore {
		last := entries[len(entries)-1]
		page.NextCursor = util.EncodeFeedCursor(&util.FeedCursor{
			CreatedAt: last.CreatedAt,
			PostID:    last.PostID,
			Source:    util.CursorSourceStore,
		})
	}
	return page, nil
}

func (s *FeedServiceImpl) readByJoin(ctx context.Context, userID uint64, c *util.FeedCursor, pageSize int) (*FeedPage, error) {
	posts, err := s.postRepo.ListTimelineByJoin(ctx, userID, toRepoCursor(c), pageSize+1)
	if err != nil {
		return nil, err
	}
	metrics.FeedReadsTotal.WithLabelValues(util.CursorSourceJoin).Inc()

	page := &FeedPage{}
	if len(posts) > pageSize {
		page.HasMore = true
		posts = posts[:pageSize]
	}
	page.Posts = posts
	if page.HasMore {
		last := posts[len(posts)-1]
		page.NextCursor = util.EncodeFeedCursor(&util.FeedCursor{
			CreatedAt: last.CreatedAt,
			PostID:    last.ID,
			Source:    util.CursorSourceJoin,
		})
	}
	return page, nil
}

func (s *FeedServiceImpl) repo(tx *gorm.DB) repository.FeedRepo {
	if tx == nil {
		return s.feedRepo
	}
	return s.feedRepo.WithTx(tx)
}

// RemoveAuthorFromFeed 取关后删除读者时间线里该作者的全部条目
func (s *FeedServiceImpl) RemoveAuthorFromFeed(ctx context.Context, tx *gorm.DB, userID, authorID uint64) (int64, error) {
	n, err := s.repo(tx).DeleteByUserAndAuthor(ctx, userID, authorID)
	if err != nil {
		return 0, err
	}
	metrics.CleanupEntriesTotal.WithLabelValues("unfollow").Add(float64(n))
	return n, nil
}

func (s *FeedServiceImpl) RemovePosts(ctx context.Context, tx *gorm.DB, postIDs ...uint64) (int64, error) {
	n, err := s.repo(tx).DeleteByPosts(ctx, postIDs)
	if err != nil {
		return 0, err
	}
	metrics.CleanupEntriesTotal.WithLabelValues("post_deleted").Add(float64(n))
	return n, nil
}

func (s *FeedServiceImpl) RemoveAuthor(ctx context.Context, tx *gorm.DB, authorID uint64) (int64, error) {
	n, err := s.repo(tx).DeleteByAuthor(ctx, authorID)
	if err != nil {
		return 0, err
	}
	metrics.CleanupEntriesTotal.WithLabelValues("author_removed").Add(float64(n))
	return n, nil
}

// ClearFeed 删除读者自己的时间线
func (s *FeedServiceImpl) ClearFeed(ctx context.Context, tx *gorm.DB, userID uint64) (int64, error) {
	n, err := s.repo(tx).DeleteByUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	metrics.CleanupEntriesTotal.WithLabelValues("author_removed").Add(float64(n))
	return n, nil
}

func toRepoCursor(c *util.FeedCursor) *repository.FeedCursor {
	if c == nil {
		return nil
	}
	return &repository.FeedCursor{CreatedAt: c.CreatedAt, PostID: c.PostID}
}
