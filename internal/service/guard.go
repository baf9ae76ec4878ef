package service

import (
	"context"
	"fmt"

	"go-gin-todo-auth/internal/core/auth"
	"go-gin-todo-auth/internal/domain"
	"go-gin-todo-auth/internal/repo"
)

// Guard 把 access token 解析成 Actor；每个受保护的 handler 开头显式调用
type Guard struct {
	tx     Tx
	jwt    *auth.JWTer
	policy Policy
}

func NewGuard(tx Tx, j *auth.JWTer, p Policy) *Guard {
	return &Guard{tx: tx, jwt: j, policy: p}
}

func (g *Guard) Authenticate(ctx context.Context, raw string) (Actor, error) {
	if raw == "" {
		return Actor{}, domain.Errorf(domain.ErrUnauthenticated, "Not authenticated")
	}
	claims, err := g.jwt.Parse(raw, auth.TokenAccess)
	if err != nil {
		return Actor{}, &authError{msg: "Could not validate credentials", cause: err}
	}
	var u *domain.User
	err = g.tx.InTx(ctx, func(r repo.Repos) error {
		var e error
		u, e = r.Users.FindByEmail(ctx, claims.Subject)
		return e
	})
	if err != nil {
		return Actor{}, fmt.Errorf("load user: %w", err)
	}
	if u == nil {
		return Actor{}, domain.Errorf(domain.ErrUnauthenticated, "Could not validate credentials")
	}
	if err := accessBlocked(u); err != nil {
		return Actor{}, err
	}
	return Actor{User: u, Admin: g.policy.IsAdmin(u.Email)}, nil
}

// RequireAdmin 非管理员返回 Forbidden
func RequireAdmin(a Actor) error {
	if !a.Admin {
		return domain.Errorf(domain.ErrForbidden, "Admin privileges required")
	}
	return nil
}

// authError 对外是 Unauthenticated，同时保留 token 错误便于日志
type authError struct {
	msg   string
	cause error
}

func (e *authError) Error() string { return e.msg }

func (e *authError) Unwrap() []error { return []error{domain.ErrUnauthenticated, e.cause} }
