package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"go-gin-todo-auth/internal/core/auth"
	"go-gin-todo-auth/internal/core/database/dbtest"
	"go-gin-todo-auth/internal/domain"
	"go-gin-todo-auth/internal/notify"
	"go-gin-todo-auth/internal/repo"
)

const (
	adminEmail = "admin@example.com"
	goodPass   = "Str0ng!Pass"
)

type recorder struct {
	mu   sync.Mutex
	msgs []notify.Message
}

func (r *recorder) Dispatch(m notify.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, m)
}

func (r *recorder) kind(k string) []notify.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []notify.Message
	for _, m := range r.msgs {
		if m.Kind == k {
			out = append(out, m)
		}
	}
	return out
}

type fixture struct {
	db     *gorm.DB
	users  *repo.UserRepo
	jwt    *auth.JWTer
	policy Policy
	mail   *recorder
	now    time.Time

	acc   *AccountService
	todos *TodoService
	sweep *Sweeper
	guard *Guard
}

func newFixture(t *testing.T, mods ...func(*Policy)) *fixture {
	t.Helper()
	f := &fixture{
		db:   dbtest.New(t),
		mail: &recorder{},
		now:  time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		jwt: &auth.JWTer{
			Secret:     []byte("test-secret"),
			Issuer:     "test",
			AccessTTL:  30 * time.Minute,
			RefreshTTL: 7 * 24 * time.Hour,
		},
	}
	f.users = repo.NewUserRepo(f.db)
	f.policy = Policy{
		Admins:          map[string]struct{}{adminEmail: {}},
		VerificationTTL: 24 * time.Hour,
		VerifyURL:       "http://test/auth/verify-email/",
		UserRetention:   30 * 24 * time.Hour,
		TodoRetention:   90 * 24 * time.Hour,
		Now:             func() time.Time { return f.now },
	}
	for _, m := range mods {
		m(&f.policy)
	}
	store := repo.NewStore(f.db)
	l := zap.NewNop()
	f.acc = NewAccountService(store, f.jwt, f.policy, f.mail, l)
	f.todos = NewTodoService(store, f.policy, l)
	f.sweep = NewSweeper(store, f.policy, l)
	f.guard = NewGuard(store, f.jwt, f.policy)
	return f
}

func (f *fixture) user(t *testing.T, email string) *domain.User {
	t.Helper()
	u, err := f.users.FindByEmail(context.Background(), email)
	require.NoError(t, err)
	require.NotNil(t, u, email)
	return u
}

func (f *fixture) register(t *testing.T, email string) *domain.User {
	t.Helper()
	_, err := f.acc.Register(context.Background(), RegisterInput{FullName: "Test User", Email: email, Password: goodPass})
	require.NoError(t, err)
	return f.user(t, email)
}

// active 注册并完成邮箱验证
func (f *fixture) active(t *testing.T, email string) Actor {
	t.Helper()
	u := f.register(t, email)
	if u.EmailVerificationToken != nil {
		_, err := f.acc.VerifyEmail(context.Background(), *u.EmailVerificationToken)
		require.NoError(t, err)
		u = f.user(t, email)
	}
	return Actor{User: u, Admin: f.policy.IsAdmin(email)}
}
