package middleware

import (
	"github.com/gin-gonic/gin"
	"golang.org/x/sync/semaphore"

	"quiz-api/internal/apperr"
)

// ConcurrencyLimit 限制同时在处理的请求数（保护存储下游）
func ConcurrencyLimit(max int64) gin.HandlerFunc {
	sem := semaphore.NewWeighted(max)
	return func(c *gin.Context) {
		if err := sem.Acquire(c.Request.Context(), 1); err != nil {
			_ = c.Error(apperr.Wrap(apperr.KindUnavailable, "server busy", err))
			c.Abort()
			return
		}
		defer sem.Release(1)
		c.Next()
	}
}
