package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrConflict           = errors.New("conflict")
	ErrForbidden          = errors.New("forbidden")
	ErrUnauthenticated    = errors.New("unauthenticated")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidState       = errors.New("invalid status")
	ErrInvalidTransition  = errors.New("invalid status transition")
	ErrInvalidToken       = errors.New("invalid verification token")
	ErrTokenExpired       = errors.New("verification token has expired")
	ErrAmbiguous          = errors.New("ambiguous request")
)

// ValidationError 逐条列出不合法的输入
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Errors, "; ")
}

func NewValidationError(msgs ...string) error { return &ValidationError{Errors: msgs} }

// kindError 对外只展示 msg，errors.Is 仍可匹配 kind
type kindError struct {
	kind error
	msg  string
}

func (e *kindError) Error() string { return e.msg }
func (e *kindError) Unwrap() error { return e.kind }

// Errorf 生成带自定义提示的哨兵错误
func Errorf(kind error, format string, args ...any) error {
	return &kindError{kind: kind, msg: fmt.Sprintf(format, args...)}
}

// BlockedError 账号状态不允许访问
type BlockedError struct {
	Status UserStatus
}

func (e *BlockedError) Error() string {
	switch e.Status {
	case StatusPending:
		return "Please verify your email address before logging in"
	case StatusInactive:
		return "Account is inactive. Please contact support."
	default:
		return fmt.Sprintf("Account is %s. Contact support for assistance.", strings.ToLower(string(e.Status)))
	}
}

func (e *BlockedError) Unwrap() error { return ErrForbidden }
