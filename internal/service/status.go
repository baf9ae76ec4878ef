package service

import (
	"time"

	"go-gin-todo-auth/internal/domain"
)

// Actor 当前请求的调用者
type Actor struct {
	User  *domain.User
	Admin bool
}

func (a Actor) ID() string {
	if a.User == nil {
		return ""
	}
	return a.User.ID
}

func (a Actor) Email() string {
	if a.User == nil {
		return ""
	}
	return a.User.Email
}

// Change 一次状态变更的结果；Changed 只在前后状态不同时为 true
type Change struct {
	UserID  string
	Prev    domain.UserStatus
	Next    domain.UserStatus
	Changed bool
}

// StatusMachine 状态流转规则，不访问存储
type StatusMachine struct{}

// Authorize 在读取目标用户之前调用，避免向非管理员泄露用户是否存在
func (StatusMachine) Authorize(actor Actor, targetID string, next domain.UserStatus) error {
	if !next.Valid() {
		return domain.Errorf(domain.ErrInvalidState, "Invalid status %q", next)
	}
	if actor.Admin {
		return nil
	}
	if actor.ID() != targetID {
		return domain.Errorf(domain.ErrForbidden, "You can only change your own account status")
	}
	if next != domain.StatusInactive {
		return domain.Errorf(domain.ErrForbidden, "Admin privileges required to set status %s", next)
	}
	return nil
}

// Transition 校验权限后修改 target，调用方负责持久化
func (m StatusMachine) Transition(actor Actor, target *domain.User, next domain.UserStatus, now time.Time) (Change, error) {
	if err := m.Authorize(actor, target.ID, next); err != nil {
		return Change{}, err
	}
	if !actor.Admin && target.Status == domain.StatusInactive {
		return Change{}, domain.Errorf(domain.ErrInvalidTransition, "Account is already inactive")
	}
	return m.apply(target, next, now), nil
}

// apply 只做状态副作用，不校验权限
func (StatusMachine) apply(u *domain.User, next domain.UserStatus, now time.Time) Change {
	prev := u.Status
	switch {
	case next == domain.StatusDeleted:
		// 重复删除保留第一次的时间
		if u.DeletedAt == nil {
			t := now
			u.DeletedAt = &t
		}
	case prev == domain.StatusDeleted:
		u.DeletedAt = nil
	}
	if next == domain.StatusActive && prev == domain.StatusPending {
		u.EmailVerified = true
		u.EmailVerificationToken = nil
		u.EmailVerificationExpires = nil
	}
	u.Status = next
	return Change{UserID: u.ID, Prev: prev, Next: next, Changed: prev != next}
}

// loginBlocked 登录时的状态拦截；管理员只豁免 PENDING
func loginBlocked(u *domain.User, admin bool) error {
	switch u.Status {
	case domain.StatusPending:
		if admin {
			return nil
		}
	case domain.StatusInactive, domain.StatusSuspended, domain.StatusBanned, domain.StatusDeleted:
	default:
		return nil
	}
	return &domain.BlockedError{Status: u.Status}
}

// accessBlocked 携带 access token 访问时的状态拦截
func accessBlocked(u *domain.User) error {
	switch u.Status {
	case domain.StatusPending, domain.StatusSuspended, domain.StatusBanned, domain.StatusDeleted:
		return &domain.BlockedError{Status: u.Status}
	}
	return nil
}
