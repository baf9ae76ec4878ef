package domain

import (
	"context"
	"strings"
	"time"
)

type UserStatus string

const (
	StatusPending   UserStatus = "PENDING"
	StatusActive    UserStatus = "ACTIVE"
	StatusInactive  UserStatus = "INACTIVE"
	StatusSuspended UserStatus = "SUSPENDED"
	StatusBanned    UserStatus = "BANNED"
	StatusDeleted   UserStatus = "DELETED"
)

// 与列宽一致，按字符计
const (
	MaxFullNameLen = 128
	MaxEmailLen    = 191
)

var allStatuses = []UserStatus{
	StatusPending, StatusActive, StatusInactive, StatusSuspended, StatusBanned, StatusDeleted,
}

// ParseStatus 大小写不敏感；未知值返回 ErrInvalidState
func ParseStatus(s string) (UserStatus, error) {
	up := UserStatus(strings.ToUpper(strings.TrimSpace(s)))
	for _, st := range allStatuses {
		if st == up {
			return st, nil
		}
	}
	return "", ErrInvalidState
}

func (s UserStatus) Valid() bool {
	_, err := ParseStatus(string(s))
	return err == nil
}

type User struct {
	ID                       string     `gorm:"primaryKey;size:36" json:"id"`
	FullName                 string     `gorm:"size:128;not null" json:"full_name"`
	Email                    string     `gorm:"uniqueIndex;size:191;not null" json:"email"`
	PasswordHash             string     `gorm:"size:100;not null" json:"-"`
	Status                   UserStatus `gorm:"size:16;not null;index;default:PENDING" json:"status"`
	EmailVerified            bool       `gorm:"not null;default:false" json:"email_verified"`
	EmailVerificationToken   *string    `gorm:"size:64;index" json:"-"`
	EmailVerificationExpires *time.Time `json:"-"`
	CreatedAt                time.Time  `json:"created_at"`
	UpdatedAt                time.Time  `json:"updated_at"`
	DeletedAt                *time.Time `gorm:"index" json:"deleted_at,omitempty"`

	Todos []Todo `gorm:"foreignKey:OwnerID;constraint:OnDelete:CASCADE" json:"-"`
}

func (User) TableName() string { return "users" }

// NormalizeEmail 统一小写并去空白
func NormalizeEmail(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

type UserFilter struct {
	Status UserStatus
	Query  string
}

type UserRepository interface {
	Create(ctx context.Context, u *User) error
	FindByID(ctx context.Context, id string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindByVerificationToken(ctx context.Context, token string) (*User, error)
	ListByStatus(ctx context.Context, status UserStatus) ([]User, error)
	List(ctx context.Context, f UserFilter, offset, limit int) ([]User, int64, error)
	Update(ctx context.Context, u *User) error
	Delete(ctx context.Context, id string) error
	FindPurgeable(ctx context.Context, cutoff time.Time) ([]User, error)
}
