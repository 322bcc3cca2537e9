package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/fatflowers/paycoord/pkg/logctx"
	"github.com/fatflowers/paycoord/pkg/tool"
)

const RequestIDHeader = "X-Request-ID"

// TraceMiddleware reads X-Request-ID or generates one, and stores it in both
// gin.Context and the request context. Purchase events recorded during the
// request carry the same id.
func TraceMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID := c.GetHeader(RequestIDHeader)
		if traceID == "" {
			traceID = tool.GenerateUUIDV7()
		}

		c.Set(logctx.TraceIDKey, traceID)
		c.Request = c.Request.WithContext(logctx.WithTraceID(c.Request.Context(), traceID))
		c.Next()
	}
}
