package repo

import (
	"context"

	"gorm.io/gorm"

	"go-gin-todo-auth/internal/domain"
)

// Repos 同一事务内的仓储集合
type Repos struct {
	Users domain.UserRepository
	Todos domain.TodoRepository
}

// Store 每次 InTx 开一个事务：fn 返回 nil 提交，否则回滚
type Store struct{ db *gorm.DB }

func NewStore(db *gorm.DB) *Store { return &Store{db: db} }

func (s *Store) InTx(ctx context.Context, fn func(r Repos) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(Repos{Users: NewUserRepo(tx), Todos: NewTodoRepo(tx)})
	})
}

// Ping 健康检查
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
