package middleware

import (
	"Timeline/internal/pkg/logger"

	"github.com/gin-gonic/gin"
)

const traceHeader = "X-Trace-ID"

// TraceMiddleware 沿用调用方传入的链路 id，过长或缺失时重新生成
func TraceMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID := c.GetHeader(traceHeader)
		if len(traceID) > 64 {
			traceID = ""
		}

		ctx := logger.WithTraceID(c.Request.Context(), "http", traceID)
		traceID = logger.TraceID(ctx)

		c.Set(logger.TraceIDKey, traceID)
		c.Request = c.Request.WithContext(ctx)
		c.Header(traceHeader, traceID)
		c.Next()
	}
}
