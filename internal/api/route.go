package api

import (
	"Timeline/internal/api/middleware"
	"Timeline/internal/pkg/consts"
	"Timeline/internal/pkg/logger"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func SetupRouter(group *HandlersGroup) *gin.Engine {
	r := gin.New()
	_ = r.SetTrustedProxies([]string{"localhost"})

	// TraceId & Logger & CORS
	r.Use(middleware.TraceMiddleware())
	r.Use(middleware.AuditMiddleware())
	r.Use(middleware.CORSMiddleware())
	logger.SetupGin(r)

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	apiGroup := r.Group("/api")
	{
		apiGroup.GET("/ping", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{
				"Code":    200,
				"Message": "pong",
				"Data":    nil,
			})
		})

		feedGroup := apiGroup.Group("/feed")
		feedGroup.Use(middleware.AuthMiddleware())
		{
			feedGroup.GET("", group.FeedHandler.GetFeed)
		}

		userGroup := apiGroup.Group("/user")
		{
			userGroup.GET("/:user_id/counters", group.FeedHandler.GetCounters)
			userGroup.GET("/:user_id/followers", group.UserFollowHandler.GetUserFollowers)
			userGroup.GET("/:user_id/followings", group.UserFollowHandler.GetUserFollowings)
		}

		userFollowGroup := apiGroup.Group("/user-relation")
		userFollowGroup.Use(middleware.AuthMiddleware())
		{
			userFollowGroup.GET("/isfollow/:following_id", group.UserFollowHandler.GetSomeoneIsFollowing)
			userFollowGroup.POST("/follow/:following_id", group.UserFollowHandler.Follow)
			userFollowGroup.DELETE("/follow/:following_id", group.UserFollowHandler.Unfollow)
		}

		postGroup := apiGroup.Group("/post")
		{
			postGroup.GET("/:post_id", group.PostHandler.GetPost)

			authGroup := postGroup.Group("")
			authGroup.Use(middleware.AuthMiddleware())
			{
				authGroup.POST("", group.PostHandler.CreatePost)
				authGroup.DELETE("/:post_id", group.PostHandler.DeletePost)
			}
		}

		// 需要登录 & 拥有 admin 角色
		adminGroup := apiGroup.Group("/admin")
		adminGroup.Use(middleware.AuthMiddleware(), middleware.CheckRoles(consts.RoleAdmin))
		{
			adminGroup.POST("/counters/:user_id/reconcile", group.AdminHandler.ReconcileCounters)
			adminGroup.POST("/author/:user_id/remove", group.AdminHandler.RemoveAuthor)
			adminGroup.POST("/posts/bulk-delete", group.AdminHandler.BulkDeletePosts)
			adminGroup.POST("/dead-letters/replay", group.AdminHandler.ReplayDeadLetters)
			adminGroup.POST("/fanout/sweep", group.AdminHandler.SweepFanout)
		}
	}

	return r
}
