package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"quiz-api/internal/apperr"
)

// Recovery 兜底中间件里的 panic（handler 内的 panic 由 Handle 处理），转成 500 交给 ErrorChannel
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if rec := recover(); rec != nil {
				if e, ok := rec.(error); ok && errors.Is(e, http.ErrAbortHandler) {
					panic(rec)
				}
				_ = c.Error(apperr.Recovered(rec))
				c.Abort()
			}
		}()
		c.Next()
	}
}
