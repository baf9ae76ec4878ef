package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"go-gin-todo-auth/internal/domain"
)

type TodoRepo struct{ db *gorm.DB }

func NewTodoRepo(db *gorm.DB) *TodoRepo { return &TodoRepo{db: db} }

func (r *TodoRepo) live(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Model(&domain.Todo{}).Where("is_deleted = ?", false)
}

func (r *TodoRepo) Create(ctx context.Context, t *domain.Todo) error {
	return r.db.WithContext(ctx).Create(t).Error
}

func (r *TodoRepo) FindByID(ctx context.Context, id, ownerID string) (*domain.Todo, error) {
	q := r.live(ctx).Where("id = ?", id)
	if ownerID != "" {
		q = q.Where("owner_id = ?", ownerID)
	}
	var t domain.Todo
	err := q.First(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *TodoRepo) List(ctx context.Context, f domain.TodoFilter, offset, limit int) ([]domain.Todo, int64, error) {
	q := r.live(ctx)
	if f.OwnerID != "" {
		q = q.Where("owner_id = ?", f.OwnerID)
	}
	if f.Completed != nil {
		q = q.Where("completed = ?", *f.Completed)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var items []domain.Todo
	if err := q.Order("created_at DESC").Order("id").Offset(offset).Limit(limit).Find(&items).Error; err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (r *TodoRepo) Update(ctx context.Context, t *domain.Todo) error {
	return r.db.WithContext(ctx).Save(t).Error
}

func (r *TodoRepo) SoftDelete(ctx context.Context, id string, at time.Time) error {
	res := r.live(ctx).Where("id = ?", id).
		Updates(map[string]any{"is_deleted": true, "deleted_at": at, "updated_at": at})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// DeleteByOwners 物理删除，包括已软删的记录
func (r *TodoRepo) DeleteByOwners(ctx context.Context, ownerIDs []string) (int64, error) {
	if len(ownerIDs) == 0 {
		return 0, nil
	}
	res := r.db.WithContext(ctx).Where("owner_id IN ?", ownerIDs).Delete(&domain.Todo{})
	return res.RowsAffected, res.Error
}

func (r *TodoRepo) PurgeDeleted(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("is_deleted = ? AND deleted_at IS NOT NULL AND deleted_at <= ?", true, cutoff).
		Delete(&domain.Todo{})
	return res.RowsAffected, res.Error
}
