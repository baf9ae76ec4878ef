package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"go-gin-todo-auth/internal/scheduler"
	"go-gin-todo-auth/internal/service"
	httpez "go-gin-todo-auth/internal/transport/http/ez"
)

// Sweeps 由 scheduler.Daily 实现
type Sweeps interface {
	RunNow(ctx context.Context) (any, error)
	Trigger(ctx context.Context)
	Status() scheduler.Status
}

type AdminHandler struct {
	guard  *service.Guard
	sweeps Sweeps
	l      *zap.Logger
}

func NewAdminHandler(g *service.Guard, s Sweeps, l *zap.Logger) *AdminHandler {
	return &AdminHandler{guard: g, sweeps: s, l: l}
}

func (h *AdminHandler) Priority() int { return 40 }

type cleanupQ struct {
	Wait bool `form:"wait"`
}

// cleanupOut 异步触发 202，同步执行 200
type cleanupOut struct {
	Message string `json:"message"`
	Result  any    `json:"result,omitempty"`
	status  int
}

func (o cleanupOut) HTTPStatus() int { return o.status }

func (h *AdminHandler) admin(c *gin.Context) (service.Actor, error) {
	a, err := actor(c, h.guard)
	if err != nil {
		return a, err
	}
	return a, service.RequireAdmin(a)
}

func (h *AdminHandler) Mount(g *gin.RouterGroup) {
	ez := httpez.New(g, h.l)

	httpez.RegisterAction(ez, httpez.Action[cleanupQ, cleanupOut]{
		Method: http.MethodPost,
		Path:   "/admin/cleanup-deleted-users",
		Binder: httpez.BindQuery,
		Handler: func(c *gin.Context, in *cleanupQ) (cleanupOut, error) {
			a, err := h.admin(c)
			if err != nil {
				return cleanupOut{}, err
			}
			h.l.Info("cleanup requested", zap.String("actor", a.Email()), zap.Bool("wait", in.Wait))
			if in.Wait {
				res, err := h.sweeps.RunNow(c.Request.Context())
				if err != nil {
					return cleanupOut{}, err
				}
				return cleanupOut{Message: "Cleanup finished", Result: res, status: http.StatusOK}, nil
			}
			h.sweeps.Trigger(c.Request.Context())
			return cleanupOut{Message: "Cleanup of deleted users scheduled", status: http.StatusAccepted}, nil
		},
	})

	httpez.RegisterAction(ez, httpez.Action[struct{}, scheduler.Status]{
		Method: http.MethodGet,
		Path:   "/admin/scheduler-status",
		Binder: httpez.BindNone,
		Handler: func(c *gin.Context, _ *struct{}) (scheduler.Status, error) {
			if _, err := h.admin(c); err != nil {
				return scheduler.Status{}, err
			}
			return h.sweeps.Status(), nil
		},
	})
}
