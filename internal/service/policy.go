package service

import (
	"context"
	"strings"
	"time"

	"go-gin-todo-auth/internal/core/config"
	"go-gin-todo-auth/internal/domain"
	"go-gin-todo-auth/internal/repo"
)

// Tx 由 repo.Store 实现
type Tx interface {
	InTx(ctx context.Context, fn func(r repo.Repos) error) error
}

// Policy 启动时从配置构建，之后只读
type Policy struct {
	Admins             map[string]struct{}
	VerificationTTL    time.Duration
	VerifyURL          string // 验证链接前缀，后面直接拼 token
	ResendInferPending bool
	UserRetention      time.Duration
	TodoRetention      time.Duration
	Now                func() time.Time
}

func NewPolicy(c *config.Config) Policy {
	admins := make(map[string]struct{}, len(c.Auth.AdminEmails))
	for _, e := range c.Auth.AdminEmails {
		admins[domain.NormalizeEmail(e)] = struct{}{}
	}
	return Policy{
		Admins:             admins,
		VerificationTTL:    c.VerificationTTL(),
		VerifyURL:          strings.TrimRight(c.App.PublicURL, "/") + "/auth/verify-email/",
		ResendInferPending: c.Auth.ResendInferPending,
		UserRetention:      c.UserRetention(),
		TodoRetention:      c.TodoRetention(),
	}
}

func (p Policy) IsAdmin(email string) bool {
	_, ok := p.Admins[domain.NormalizeEmail(email)]
	return ok
}

func (p Policy) now() time.Time {
	if p.Now != nil {
		return p.Now().UTC()
	}
	return time.Now().UTC()
}

func (p Policy) verifyHours() int { return int(p.VerificationTTL / time.Hour) }
