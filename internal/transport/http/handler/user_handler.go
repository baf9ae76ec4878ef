package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"go-gin-todo-auth/internal/domain"
	"go-gin-todo-auth/internal/service"
	httpez "go-gin-todo-auth/internal/transport/http/ez"
)

// UserHandler 个人资料与用户管理
type UserHandler struct {
	acc   *service.AccountService
	guard *service.Guard
	l     *zap.Logger
}

func NewUserHandler(acc *service.AccountService, g *service.Guard, l *zap.Logger) *UserHandler {
	return &UserHandler{acc: acc, guard: g, l: l}
}

func (h *UserHandler) Priority() int { return 20 }

type listUsersQ struct {
	Page         int    `form:"page"`
	PerPage      int    `form:"per_page"`
	StatusFilter string `form:"status_filter"`
	Q            string `form:"q"`
}

type updateUserIn struct {
	FullName *string `json:"full_name"`
	Password *string `json:"password"`
}

type statusIn struct {
	Status string `json:"status" binding:"required"`
}

type deleteQ struct {
	Hard bool `form:"hard"`
}

func (h *UserHandler) Mount(g *gin.RouterGroup) {
	ez := httpez.New(g, h.l)

	httpez.RegisterAction(ez, httpez.Action[struct{}, *domain.User]{
		Method: http.MethodGet,
		Path:   "/auth/profile",
		Binder: httpez.BindNone,
		Handler: func(c *gin.Context, _ *struct{}) (*domain.User, error) {
			a, err := actor(c, h.guard)
			if err != nil {
				return nil, err
			}
			return a.User, nil
		},
	})

	httpez.RegisterAction(ez, httpez.Action[listUsersQ, *service.UserPage]{
		Method: http.MethodGet,
		Path:   "/auth/users",
		Binder: httpez.BindQuery,
		Handler: func(c *gin.Context, in *listUsersQ) (*service.UserPage, error) {
			a, err := actor(c, h.guard)
			if err != nil {
				return nil, err
			}
			return h.acc.ListUsers(c.Request.Context(), a, service.ListUsersInput{
				Page: in.Page, PerPage: in.PerPage, Status: in.StatusFilter, Query: in.Q,
			})
		},
	})

	httpez.RegisterAction(ez, httpez.Action[struct{}, *domain.User]{
		Method: http.MethodGet,
		Path:   "/auth/users/:id",
		Binder: httpez.BindNone,
		Handler: func(c *gin.Context, _ *struct{}) (*domain.User, error) {
			a, err := actor(c, h.guard)
			if err != nil {
				return nil, err
			}
			return h.acc.GetUser(c.Request.Context(), a, c.Param("id"))
		},
	})

	httpez.RegisterAction(ez, httpez.Action[updateUserIn, *domain.User]{
		Method: http.MethodPatch,
		Path:   "/auth/users/:id",
		Binder: httpez.BindJSON,
		Handler: func(c *gin.Context, in *updateUserIn) (*domain.User, error) {
			a, err := actor(c, h.guard)
			if err != nil {
				return nil, err
			}
			return h.acc.UpdateUser(c.Request.Context(), a, c.Param("id"), service.UpdateUserInput{
				FullName: in.FullName, Password: in.Password,
			})
		},
	})

	httpez.RegisterAction(ez, httpez.Action[statusIn, *service.StatusResult]{
		Method: http.MethodPatch,
		Path:   "/auth/users/:id/status",
		Binder: httpez.BindJSON,
		Handler: func(c *gin.Context, in *statusIn) (*service.StatusResult, error) {
			a, err := actor(c, h.guard)
			if err != nil {
				return nil, err
			}
			return h.acc.UpdateStatus(c.Request.Context(), a, c.Param("id"), in.Status)
		},
	})

	httpez.RegisterAction(ez, httpez.Action[struct{}, *service.StatusResult]{
		Method: http.MethodPatch,
		Path:   "/auth/users/:id/deactivate",
		Binder: httpez.BindNone,
		Handler: func(c *gin.Context, _ *struct{}) (*service.StatusResult, error) {
			a, err := actor(c, h.guard)
			if err != nil {
				return nil, err
			}
			return h.acc.Deactivate(c.Request.Context(), a, c.Param("id"))
		},
	})

	httpez.RegisterAction(ez, httpez.Action[deleteQ, *service.DeleteResult]{
		Method: http.MethodDelete,
		Path:   "/auth/users/:id",
		Binder: httpez.BindQuery,
		Handler: func(c *gin.Context, in *deleteQ) (*service.DeleteResult, error) {
			a, err := actor(c, h.guard)
			if err != nil {
				return nil, err
			}
			return h.acc.DeleteUser(c.Request.Context(), a, c.Param("id"), in.Hard)
		},
	})
}
