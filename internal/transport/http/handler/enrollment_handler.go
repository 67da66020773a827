package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"quiz-api/internal/service"
	mdw "quiz-api/internal/transport/http/middleware"
	"quiz-api/internal/transport/http/validate"
)

type EnrollmentHandler struct {
	svc *service.EnrollmentService
	v   *validate.Validator
	log *zap.Logger
}

func NewEnrollmentHandler(svc *service.EnrollmentService, v *validate.Validator, log *zap.Logger) *EnrollmentHandler {
	return &EnrollmentHandler{svc: svc, v: v, log: log}
}

// Priority 入群路由挂在用户、quiz 路由之后
func (h *EnrollmentHandler) Priority() int { return 200 }

func (h *EnrollmentHandler) MountAPI(g *gin.RouterGroup) {
	chain := []gin.HandlerFunc{h.v.Params(enrollParams), h.v.Body(emptyBody), mdw.Handle(h.log, h.enroll)}
	g.POST("/users/:userId/quizzes/:quizId", chain...)
	// 兼容旧客户端的拼写
	g.POST("/users/:userId/quizes/:quizId", chain...)
}

func (h *EnrollmentHandler) enroll(c *gin.Context) error {
	u, q, err := h.svc.Enroll(c.Request.Context(), c.Param("userId"), c.Param("quizId"))
	if err != nil {
		return err
	}
	c.JSON(http.StatusOK, gin.H{"user": u, "quiz": q})
	return nil
}
