package middleware

import (
	"context"
	"errors"
	"time"

	"github.com/gin-gonic/gin"

	"quiz-api/internal/apperr"
)

// Timeout 给请求 context 加截止时间；超时且尚未写响应时报 504
func Timeout(d time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), d)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)
		c.Next()
		if errors.Is(ctx.Err(), context.DeadlineExceeded) && !c.Writer.Written() {
			_ = c.Error(apperr.Wrap(apperr.KindTimeout, "request timeout", ctx.Err()))
		}
	}
}
