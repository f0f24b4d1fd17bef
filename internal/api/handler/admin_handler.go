package handler

import (
	"Timeline/internal/api/dto"
	"Timeline/internal/pkg/response"
	"Timeline/internal/pkg/util"
	"Timeline/internal/service"
	"strconv"

	"github.com/gin-gonic/gin"
)

// AdminHandler 运维接口：对账、作者注销、死信重放、批量删帖
type AdminHandler struct {
	counterSvc    service.CounterService
	authorSvc     service.AuthorService
	postSvc       service.PostService
	fanoutSvc     service.FanoutService
	deadLetterSvc service.DeadLetterService
}

func NewAdminHandler(
	counterSvc service.CounterService,
	authorSvc service.AuthorService,
	postSvc service.PostService,
	fanoutSvc service.FanoutService,
	deadLetterSvc service.DeadLetterService,
) *AdminHandler {
	return &AdminHandler{
		counterSvc:    counterSvc,
		authorSvc:     authorSvc,
		postSvc:       postSvc,
		fanoutSvc:     fanoutSvc,
		deadLetterSvc: deadLetterSvc,
	}
}

func (s *AdminHandler) ReconcileCounters(c *gin.Context) {
	userID, err := strconv.ParseUint(c.Param("user_id"), 10, 64)
	if err != nil || userID == 0 {
		response.Error(c, service.ErrParamInvalid)
		return
	}
	if err = s.counterSvc.Reconcile(c.Request.Context(), userID); err != nil {
		response.Error(c, err)
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

func (s *AdminHandler) RemoveAuthor(c *gin.Context) {
	userID, err := strconv.ParseUint(c.Param("user_id"), 10, 64)
	if err != nil || userID == 0 {
		response.Error(c, service.ErrParamInvalid)
		return
	}
	res, err := s.authorSvc.RemoveAuthor(c.Request.Context(), userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}

func (s *AdminHandler) BulkDeletePosts(c *gin.Context) {
	var req dto.BulkDeletePostsDTO
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, service.ErrParamInvalid)
		return
	}
	if err := util.ValidateDTO(&req); err != nil {
		response.Fail(c, response.BadRequest, err.Error())
		return
	}
	n, err := s.postSvc.BulkDeletePosts(c.Request.Context(), req.PostIDs)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, map[string]int{"deleted": n})
}

func (s *AdminHandler) ReplayDeadLetters(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))
	res, err := s.deadLetterSvc.Replay(c.Request.Context(), limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}

func (s *AdminHandler) SweepFanout(c *gin.Context) {
	n, err := s.fanoutSvc.Sweep(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, map[string]int{"dispatched": n})
}
