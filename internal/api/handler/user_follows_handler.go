package handler

import (
	"Timeline/internal/pkg/response"
	"Timeline/internal/service"
	"strconv"

	"github.com/gin-gonic/gin"
)

type UserFollowHandler struct {
	userFollowSvc service.UserFollowService
}

func NewUserFollowHandler(userFollowSvc service.UserFollowService) *UserFollowHandler {
	return &UserFollowHandler{userFollowSvc: userFollowSvc}
}

func (s *UserFollowHandler) GetUserFollowers(c *gin.Context) {
	userId, err := strconv.ParseUint(c.Param("user_id"), 10, 64)
	if err != nil {
		response.Error(c, service.ErrParamInvalid)
		return
	}

	limit, offset := s.getPagination(c)

	followers, err := s.userFollowSvc.GetUserFollowers(c.Request.Context(), userId, limit, offset)
	if err != nil {
		response.Error(c, err)
		return
	}
	res, err := toUserFollowDTOs(followers)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}

func (s *UserFollowHandler) GetUserFollowings(c *gin.Context) {
	userId, err := strconv.ParseUint(c.Param("user_id"), 10, 64)
	if err != nil {
		response.Error(c, service.ErrParamInvalid)
		return
	}

	limit, offset := s.getPagination(c)

	followings, err := s.userFollowSvc.GetUserFollowing(c.Request.Context(), userId, limit, offset)
	if err != nil {
		response.Error(c, err)
		return
	}
	res, err := toUserFollowDTOs(followings)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}

func (s *UserFollowHandler) GetSomeoneIsFollowing(c *gin.Context) {
	userId := c.GetUint64("user_id")
	followingId, err := strconv.ParseUint(c.Param("following_id"), 10, 64)
	if err != nil {
		response.Error(c, service.ErrParamInvalid)
		return
	}
	isFollowing, err := s.userFollowSvc.GetSomeoneIsFollowing(c.Request.Context(), userId, followingId)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, isFollowing)
}

func (s *UserFollowHandler) Follow(c *gin.Context) {
	userId := c.GetUint64("user_id")
	followingId, err := strconv.ParseUint(c.Param("following_id"), 10, 64)
	if err != nil {
		response.Error(c, service.ErrParamInvalid)
		return
	}
	if err = s.userFollowSvc.Follow(c.Request.Context(), userId, followingId); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, nil)
}

func (s *UserFollowHandler) Unfollow(c *gin.Context) {
	userId := c.GetUint64("user_id")
	followingId, err := strconv.ParseUint(c.Param("following_id"), 10, 64)
	if err != nil {
		response.Error(c, service.ErrParamInvalid)
		return
	}
	if err = s.userFollowSvc.Unfollow(c.Request.Context(), userId, followingId); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, nil)
}

// getPagination 返回 limit, offset
func (s *UserFollowHandler) getPagination(c *gin.Context) (int, int) {
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		page = 1
	}
	pageSize, err := strconv.Atoi(c.DefaultQuery("page_size", "10"))
	if err != nil || pageSize < 1 {
		pageSize = 10
	}
	if pageSize > 100 {
		pageSize = 100
	}
	return pageSize, (page - 1) * pageSize
}
