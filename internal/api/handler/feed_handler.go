package handler

import (
	"Timeline/internal/api/dto"
	"Timeline/internal/pkg/response"
	"Timeline/internal/pkg/util"
	"Timeline/internal/service"
	"strconv"

	"github.com/gin-gonic/gin"
)

type FeedHandler struct {
	feedSvc    service.FeedService
	counterSvc service.CounterService
}

func NewFeedHandler(feedSvc service.FeedService, counterSvc service.CounterService) *FeedHandler {
	return &FeedHandler{
		feedSvc:    feedSvc,
		counterSvc: counterSvc,
	}
}

// GetFeed 当前用户的时间线
func (s *FeedHandler) GetFeed(c *gin.Context) {
	userID := c.GetUint64("user_id")

	var query dto.FeedQueryDTO
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, service.ErrParamInvalid)
		return
	}
	if err := util.ValidateDTO(&query); err != nil {
		response.Fail(c, response.BadRequest, err.Error())
		return
	}

	page, err := s.feedSvc.GetFeed(c.Request.Context(), userID, query.Cursor, query.PageSize)
	if err != nil {
		response.Error(c, err)
		return
	}

	posts, err := toPostDTOs(page.Posts)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, &dto.FeedDTO{
		Posts:      posts,
		NextCursor: page.NextCursor,
		HasMore:    page.HasMore,
	})
}

func (s *FeedHandler) GetCounters(c *gin.Context) {
	userID, err := strconv.ParseUint(c.Param("user_id"), 10, 64)
	if err != nil || userID == 0 {
		response.Error(c, service.ErrParamInvalid)
		return
	}

	counter, err := s.counterSvc.GetCounters(c.Request.Context(), userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, &dto.CountersDTO{
		UserID:         userID,
		FollowersCount: counter.FollowersCount,
		FollowingCount: counter.FollowingCount,
		PostsCount:     counter.PostsCount,
	})
}
