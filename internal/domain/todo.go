package domain

import (
	"context"
	"time"
)

// MaxTaskLen 与 task 列宽一致，按字符计
const MaxTaskLen = 1024

type Todo struct {
	ID        string     `gorm:"primaryKey;size:36" json:"id"`
	OwnerID   string     `gorm:"size:36;not null;index" json:"owner_id"`
	Task      string     `gorm:"size:1024;not null" json:"task"`
	Completed bool       `gorm:"not null;default:false" json:"completed"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	IsDeleted bool       `gorm:"not null;default:false;index" json:"-"`
	DeletedAt *time.Time `json:"-"`
}

func (Todo) TableName() string { return "todos" }

// TodoFilter OwnerID 为空表示不限归属（仅管理员）
type TodoFilter struct {
	OwnerID   string
	Completed *bool
}

type TodoRepository interface {
	Create(ctx context.Context, t *Todo) error
	// FindByID ownerID 为空时不校验归属
	FindByID(ctx context.Context, id, ownerID string) (*Todo, error)
	List(ctx context.Context, f TodoFilter, offset, limit int) ([]Todo, int64, error)
	Update(ctx context.Context, t *Todo) error
	SoftDelete(ctx context.Context, id string, at time.Time) error
	DeleteByOwners(ctx context.Context, ownerIDs []string) (int64, error)
	PurgeDeleted(ctx context.Context, cutoff time.Time) (int64, error)
}
