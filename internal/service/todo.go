package service

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"go-gin-todo-auth/internal/domain"
	"go-gin-todo-auth/internal/repo"
	"go-gin-todo-auth/pkg/utils"
)

// TodoService 非管理员只能看到自己的 todo；越权与不存在同样返回 NotFound
type TodoService struct {
	tx     Tx
	policy Policy
	l      *zap.Logger
}

func NewTodoService(tx Tx, p Policy, l *zap.Logger) *TodoService {
	return &TodoService{tx: tx, policy: p, l: l}
}

type ListTodosInput struct {
	Page      int
	PerPage   int
	Completed *bool
	OwnerID   string // 仅管理员生效
}

type TodoPage struct {
	Todos      []domain.Todo `json:"todos"`
	Page       int           `json:"page"`
	PerPage    int           `json:"per_page"`
	Total      int64         `json:"total"`
	TotalPages int           `json:"total_pages"`
}

type TodoInput struct {
	Task      *string
	Completed *bool
}

func scope(actor Actor) string {
	if actor.Admin {
		return ""
	}
	return actor.ID()
}

func (s *TodoService) List(ctx context.Context, actor Actor, in ListTodosInput) (*TodoPage, error) {
	f := domain.TodoFilter{OwnerID: scope(actor), Completed: in.Completed}
	if actor.Admin && in.OwnerID != "" {
		f.OwnerID = in.OwnerID
	}
	page, per := pageOf(in.Page, in.PerPage)
	out := &TodoPage{Todos: []domain.Todo{}, Page: page, PerPage: per}
	err := s.tx.InTx(ctx, func(r repo.Repos) error {
		items, total, err := r.Todos.List(ctx, f, (page-1)*per, per)
		if err != nil {
			return err
		}
		if items != nil {
			out.Todos = items
		}
		out.Total = total
		return nil
	})
	if err != nil {
		return nil, err
	}
	out.TotalPages = int((out.Total + int64(per) - 1) / int64(per))
	return out, nil
}

func (s *TodoService) Get(ctx context.Context, actor Actor, id string) (*domain.Todo, error) {
	var t *domain.Todo
	err := s.tx.InTx(ctx, func(r repo.Repos) error {
		var err error
		t, err = mustTodo(ctx, r, id, scope(actor))
		return err
	})
	return t, err
}

// Create owner 固定为调用者
func (s *TodoService) Create(ctx context.Context, actor Actor, in TodoInput) (*domain.Todo, error) {
	task, err := checkTask(in.Task, true)
	if err != nil {
		return nil, err
	}
	t := &domain.Todo{ID: utils.NewID(), OwnerID: actor.ID(), Task: task}
	if in.Completed != nil {
		t.Completed = *in.Completed
	}
	if err := s.tx.InTx(ctx, func(r repo.Repos) error { return r.Todos.Create(ctx, t) }); err != nil {
		return nil, err
	}
	return t, nil
}

func (s *TodoService) Update(ctx context.Context, actor Actor, id string, in TodoInput) (*domain.Todo, error) {
	if in.Task == nil && in.Completed == nil {
		return nil, domain.NewValidationError("No fields to update")
	}
	task, err := checkTask(in.Task, false)
	if err != nil {
		return nil, err
	}
	var t *domain.Todo
	err = s.tx.InTx(ctx, func(r repo.Repos) error {
		var err error
		if t, err = mustTodo(ctx, r, id, scope(actor)); err != nil {
			return err
		}
		if in.Task != nil {
			t.Task = task
		}
		if in.Completed != nil {
			t.Completed = *in.Completed
		}
		return r.Todos.Update(ctx, t)
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

// Delete 软删除，由清理任务过期后物理删除
func (s *TodoService) Delete(ctx context.Context, actor Actor, id string) error {
	now := s.policy.now()
	err := s.tx.InTx(ctx, func(r repo.Repos) error {
		if _, err := mustTodo(ctx, r, id, scope(actor)); err != nil {
			return err
		}
		return r.Todos.SoftDelete(ctx, id, now)
	})
	if err != nil {
		return err
	}
	if actor.Admin {
		s.l.Info("todo deleted by admin", zap.String("actor", actor.Email()), zap.String("todo_id", id))
	}
	return nil
}

func checkTask(task *string, required bool) (string, error) {
	if task == nil {
		if required {
			return "", domain.NewValidationError("Task cannot be empty")
		}
		return "", nil
	}
	t := strings.TrimSpace(*task)
	if t == "" {
		return "", domain.NewValidationError("Task cannot be empty")
	}
	if utf8.RuneCountInString(t) > domain.MaxTaskLen {
		return "", domain.NewValidationError(fmt.Sprintf("Task must be at most %d characters", domain.MaxTaskLen))
	}
	return t, nil
}

func mustTodo(ctx context.Context, r repo.Repos, id, owner string) (*domain.Todo, error) {
	t, err := r.Todos.FindByID(ctx, id, owner)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, domain.Errorf(domain.ErrNotFound, "Todo not found")
	}
	return t, nil
}
