package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"quiz-api/internal/apperr"
)

// HandlerFunc 业务 handler：成功时自己写响应，失败只返回 error
type HandlerFunc func(c *gin.Context) error

// Handle 把 panic 和返回的 error 都转交给 ErrorChannel，且只转交一次；日志由 ErrorChannel 统一打。
// 只有响应已经写出、没法再转交时才在这里记一条
func Handle(log *zap.Logger, fn HandlerFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		err := invoke(c, fn)
		if err == nil {
			return
		}
		if c.Writer.Written() {
			// 不用 zap.Error：*apperr.Error 实现了 fmt.Formatter，会带出 errorVerbose 调用栈
			log.Error("handler failed after response was written",
				zap.String("url", c.Request.URL.String()), zap.String("error", err.Error()))
			return
		}
		_ = c.Error(err)
		c.Abort()
	}
}

func invoke(c *gin.Context, fn HandlerFunc) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			if e, ok := rec.(error); ok && errors.Is(e, http.ErrAbortHandler) {
				panic(rec)
			}
			err = apperr.Recovered(rec)
		}
	}()
	return fn(c)
}
