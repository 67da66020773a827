package middleware

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"quiz-api/internal/apperr"
	resp "quiz-api/internal/transport/http/response"
)

// ErrorChannel 必须挂在最外层：c.Next() 之后取最后一个 c.Error 写统一错误响应。
// withStack 为真时响应体和日志都带调用栈。
func ErrorChannel(log *zap.Logger, withStack bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		last := c.Errors.Last()
		if last == nil || c.Writer.Written() {
			return
		}
		err := apperr.From(last.Err)
		status := err.Status()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("url", c.Request.URL.String()),
			zap.Int("status", status),
			zap.String("rid", RequestIDFrom(c)),
		}
		if withStack {
			fields = append(fields, zap.String("stack", apperr.Stack(err)))
		}
		if status >= 500 {
			log.Error(err.Error(), fields...)
		} else {
			log.Warn(err.Error(), fields...)
		}
		c.JSON(status, resp.Error(err, withStack))
	}
}
