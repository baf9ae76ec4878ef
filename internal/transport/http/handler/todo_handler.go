package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"go-gin-todo-auth/internal/domain"
	"go-gin-todo-auth/internal/service"
	httpez "go-gin-todo-auth/internal/transport/http/ez"
)

type TodoHandler struct {
	todos *service.TodoService
	guard *service.Guard
	l     *zap.Logger
}

func NewTodoHandler(t *service.TodoService, g *service.Guard, l *zap.Logger) *TodoHandler {
	return &TodoHandler{todos: t, guard: g, l: l}
}

func (h *TodoHandler) Priority() int { return 30 }

type listTodosQ struct {
	Page      int    `form:"page"`
	PerPage   int    `form:"per_page"`
	Completed *bool  `form:"completed"`
	OwnerID   string `form:"owner_id"`
}

// todoIn 请求体里的 owner 字段一律忽略
type todoIn struct {
	Task      *string `json:"task"`
	Completed *bool   `json:"completed"`
}

func (h *TodoHandler) Mount(g *gin.RouterGroup) {
	ez := httpez.New(g, h.l)

	httpez.RegisterAction(ez, httpez.Action[listTodosQ, *service.TodoPage]{
		Method: http.MethodGet,
		Path:   "/todos",
		Binder: httpez.BindQuery,
		Handler: func(c *gin.Context, in *listTodosQ) (*service.TodoPage, error) {
			a, err := actor(c, h.guard)
			if err != nil {
				return nil, err
			}
			return h.todos.List(c.Request.Context(), a, service.ListTodosInput{
				Page: in.Page, PerPage: in.PerPage, Completed: in.Completed, OwnerID: in.OwnerID,
			})
		},
	})

	httpez.RegisterAction(ez, httpez.Action[todoIn, *domain.Todo]{
		Method: http.MethodPost,
		Path:   "/todos",
		Binder: httpez.BindJSON,
		Status: http.StatusCreated,
		Handler: func(c *gin.Context, in *todoIn) (*domain.Todo, error) {
			a, err := actor(c, h.guard)
			if err != nil {
				return nil, err
			}
			return h.todos.Create(c.Request.Context(), a, service.TodoInput{Task: in.Task, Completed: in.Completed})
		},
	})

	httpez.RegisterAction(ez, httpez.Action[struct{}, *domain.Todo]{
		Method: http.MethodGet,
		Path:   "/todos/:id",
		Binder: httpez.BindNone,
		Handler: func(c *gin.Context, _ *struct{}) (*domain.Todo, error) {
			a, err := actor(c, h.guard)
			if err != nil {
				return nil, err
			}
			return h.todos.Get(c.Request.Context(), a, c.Param("id"))
		},
	})

	httpez.RegisterAction(ez, httpez.Action[todoIn, *domain.Todo]{
		Method: http.MethodPut,
		Path:   "/todos/:id",
		Binder: httpez.BindJSON,
		Handler: func(c *gin.Context, in *todoIn) (*domain.Todo, error) {
			a, err := actor(c, h.guard)
			if err != nil {
				return nil, err
			}
			return h.todos.Update(c.Request.Context(), a, c.Param("id"), service.TodoInput{Task: in.Task, Completed: in.Completed})
		},
	})

	httpez.RegisterAction(ez, httpez.Action[struct{}, struct{}]{
		Method: http.MethodDelete,
		Path:   "/todos/:id",
		Binder: httpez.BindNone,
		Status: http.StatusNoContent,
		Handler: func(c *gin.Context, _ *struct{}) (struct{}, error) {
			a, err := actor(c, h.guard)
			if err != nil {
				return struct{}{}, err
			}
			return struct{}{}, h.todos.Delete(c.Request.Context(), a, c.Param("id"))
		},
	})
}
