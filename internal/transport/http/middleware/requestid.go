package middleware

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const KeyRequestID = "X-Request-ID"

type ridKey struct{}

func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.Request.Header.Get(KeyRequestID)
		if rid == "" {
			rid = uuid.NewString()
		}
		c.Writer.Header().Set(KeyRequestID, rid)
		c.Set(KeyRequestID, rid)
		c.Request = c.Request.WithContext(context.WithValue(c.Request.Context(), ridKey{}, rid))
		c.Next()
	}
}

// RequestIDFrom 取 gin.Context 上的 rid；ginzap 的 Context 回调也用它
func RequestIDFrom(c *gin.Context) string { return c.GetString(KeyRequestID) }

// RequestIDFromContext 供拿不到 gin.Context 的下游使用
func RequestIDFromContext(ctx context.Context) string {
	rid, _ := ctx.Value(ridKey{}).(string)
	return rid
}
