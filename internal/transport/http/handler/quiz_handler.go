package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"quiz-api/internal/domain"
	"quiz-api/internal/service"
	mdw "quiz-api/internal/transport/http/middleware"
	"quiz-api/internal/transport/http/validate"
)

type QuizHandler struct {
	svc *service.QuizService
	v   *validate.Validator
	log *zap.Logger
}

func NewQuizHandler(svc *service.QuizService, v *validate.Validator, log *zap.Logger) *QuizHandler {
	return &QuizHandler{svc: svc, v: v, log: log}
}

func (h *QuizHandler) MountAPI(g *gin.RouterGroup) {
	g.POST("/quizzes", h.v.Body(createQuizBody), mdw.Handle(h.log, h.create))
	g.GET("/quizzes", h.v.Query(listQuizQuery), mdw.Handle(h.log, h.list))
	g.GET("/quizzes/:quizId", h.v.Params(quizParams), mdw.Handle(h.log, h.get))
	g.POST("/quizzes/:quizId", h.v.Params(quizParams), h.v.Body(updateQuizBody), mdw.Handle(h.log, h.update))
	g.DELETE("/quizzes/:quizId", h.v.Params(quizParams), mdw.Handle(h.log, h.delete))
}

func (h *QuizHandler) create(c *gin.Context) error {
	var in domain.NewQuiz
	if err := validate.Bind(c, validate.PropBody, &in); err != nil {
		return err
	}
	q, err := h.svc.Create(c.Request.Context(), in)
	if err != nil {
		return err
	}
	c.JSON(http.StatusOK, gin.H{"quiz": q})
	return nil
}

func (h *QuizHandler) list(c *gin.Context) error {
	var in struct {
		Limit int `json:"limit"`
	}
	if err := validate.Bind(c, validate.PropQuery, &in); err != nil {
		return err
	}
	qs, err := h.svc.ListLatest(c.Request.Context(), in.Limit)
	if err != nil {
		return err
	}
	c.JSON(http.StatusOK, gin.H{"quizzes": qs})
	return nil
}

func (h *QuizHandler) get(c *gin.Context) error {
	q, err := h.svc.Get(c.Request.Context(), c.Param("quizId"))
	if err != nil {
		return err
	}
	c.JSON(http.StatusOK, gin.H{"quiz": q})
	return nil
}

func (h *QuizHandler) update(c *gin.Context) error {
	var p domain.QuizPatch
	if err := validate.Bind(c, validate.PropBody, &p); err != nil {
		return err
	}
	q, err := h.svc.Update(c.Request.Context(), c.Param("quizId"), p)
	if err != nil {
		return err
	}
	c.JSON(http.StatusOK, gin.H{"quiz": q})
	return nil
}

func (h *QuizHandler) delete(c *gin.Context) error {
	q, err := h.svc.Delete(c.Request.Context(), c.Param("quizId"))
	if err != nil {
		return err
	}
	c.JSON(http.StatusOK, gin.H{"quiz": q})
	return nil
}
