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

type UserHandler struct {
	svc *service.UserService
	v   *validate.Validator
	log *zap.Logger
}

func NewUserHandler(svc *service.UserService, v *validate.Validator, log *zap.Logger) *UserHandler {
	return &UserHandler{svc: svc, v: v, log: log}
}

func (h *UserHandler) MountAPI(g *gin.RouterGroup) {
	g.POST("/users", h.v.Body(createUserBody), mdw.Handle(h.log, h.create))
	g.GET("/users/:userId", h.v.Params(userParams), mdw.Handle(h.log, h.get))
	g.POST("/users/:userId", h.v.Params(userParams), h.v.Body(updateUserBody), mdw.Handle(h.log, h.update))
	g.DELETE("/users/:userId", h.v.Params(userParams), mdw.Handle(h.log, h.delete))
}

func (h *UserHandler) create(c *gin.Context) error {
	var in struct {
		Name string `json:"name"`
	}
	if err := validate.Bind(c, validate.PropBody, &in); err != nil {
		return err
	}
	u, err := h.svc.Create(c.Request.Context(), in.Name)
	if err != nil {
		return err
	}
	c.JSON(http.StatusOK, gin.H{"user": u})
	return nil
}

func (h *UserHandler) get(c *gin.Context) error {
	u, err := h.svc.Get(c.Request.Context(), c.Param("userId"))
	if err != nil {
		return err
	}
	c.JSON(http.StatusOK, gin.H{"user": u})
	return nil
}

func (h *UserHandler) update(c *gin.Context) error {
	var p domain.UserPatch
	if err := validate.Bind(c, validate.PropBody, &p); err != nil {
		return err
	}
	u, err := h.svc.Update(c.Request.Context(), c.Param("userId"), p)
	if err != nil {
		return err
	}
	c.JSON(http.StatusOK, gin.H{"user": u})
	return nil
}

func (h *UserHandler) delete(c *gin.Context) error {
	u, err := h.svc.Delete(c.Request.Context(), c.Param("userId"))
	if err != nil {
		return err
	}
	c.JSON(http.StatusOK, gin.H{"user": u})
	return nil
}
