package middleware

import (
	"Timeline/internal/pkg/response"
	log "log/slog"
	"slices"

	"github.com/gin-gonic/gin"
)

// CheckRoles 需在 AuthMiddleware 之后使用，拥有任一角色即可通过
func CheckRoles(requiredRoles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		roles := c.GetStringSlice("roles")
		allowed := slices.ContainsFunc(requiredRoles, func(r string) bool {
			return slices.Contains(roles, r)
		})
		if !allowed {
			log.WarnContext(c.Request.Context(), "role check denied",
				"user_id", c.GetUint64("user_id"),
				"path", c.FullPath(),
				"required", requiredRoles,
			)
			response.Fail(c, response.Forbidden, "权限不足：无权访问该资源")
			c.Abort()
			return
		}
		c.Next()
	}
}
