package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"go-gin-todo-auth/internal/domain"
)

type UserRepo struct{ db *gorm.DB }

func NewUserRepo(db *gorm.DB) *UserRepo { return &UserRepo{db: db} }

func (r *UserRepo) Create(ctx context.Context, u *domain.User) error {
	if err := r.db.WithContext(ctx).Create(u).Error; err != nil {
		if isDupKey(err) {
			return domain.ErrConflict
		}
		return err
	}
	return nil
}

func (r *UserRepo) first(ctx context.Context, query string, args ...any) (*domain.User, error) {
	var u domain.User
	err := r.db.WithContext(ctx).Where(query, args...).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *UserRepo) FindByID(ctx context.Context, id string) (*domain.User, error) {
	return r.first(ctx, "id = ?", id)
}

func (r *UserRepo) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.first(ctx, "email = ?", domain.NormalizeEmail(email))
}

func (r *UserRepo) FindByVerificationToken(ctx context.Context, token string) (*domain.User, error) {
	if token == "" {
		return nil, nil
	}
	return r.first(ctx, "email_verification_token = ?", token)
}

func (r *UserRepo) ListByStatus(ctx context.Context, status domain.UserStatus) ([]domain.User, error) {
	var users []domain.User
	err := r.db.WithContext(ctx).Where("status = ?", status).Order("created_at ASC").Find(&users).Error
	return users, err
}

func (r *UserRepo) List(ctx context.Context, f domain.UserFilter, offset, limit int) ([]domain.User, int64, error) {
	q := r.db.WithContext(ctx).Model(&domain.User{})
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if s := strings.TrimSpace(f.Query); s != "" {
		like := "%" + s + "%"
		q = q.Where("email LIKE ? OR full_name LIKE ?", like, like)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var users []domain.User
	if err := q.Order("created_at DESC").Offset(offset).Limit(limit).Find(&users).Error; err != nil {
		return nil, 0, err
	}
	return users, total, nil
}

func (r *UserRepo) Update(ctx context.Context, u *domain.User) error {
	if err := r.db.WithContext(ctx).Omit("Todos").Save(u).Error; err != nil {
		if isDupKey(err) {
			return domain.ErrConflict
		}
		return err
	}
	return nil
}

func (r *UserRepo) Delete(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&domain.User{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// FindPurgeable 已标记 DELETED 且超过保留期的用户
func (r *UserRepo) FindPurgeable(ctx context.Context, cutoff time.Time) ([]domain.User, error) {
	var users []domain.User
	err := r.db.WithContext(ctx).
		Where("status = ? AND deleted_at IS NOT NULL AND deleted_at <= ?", domain.StatusDeleted, cutoff).
		Find(&users).Error
	return users, err
}

func isDupKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate") ||
		strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "unique violation")
}
