package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"go-gin-todo-auth/internal/core/auth"
	"go-gin-todo-auth/internal/domain"
	"go-gin-todo-auth/internal/notify"
)

func TestRegisterPendingUser(t *testing.T) {
	f := newFixture(t)
	res, err := f.acc.Register(context.Background(), RegisterInput{FullName: "  A B ", Email: "A@B.com", Password: goodPass})
	require.NoError(t, err)
	require.Equal(t, domain.StatusPending, res.Status)
	require.True(t, res.VerificationRequired)
	require.True(t, res.EmailSent)

	u := f.user(t, "a@b.com")
	require.Equal(t, "A B", u.FullName)
	require.False(t, u.EmailVerified)
	require.NotNil(t, u.EmailVerificationToken)
	require.Len(t, *u.EmailVerificationToken, 43)
	require.WithinDuration(t, f.now.Add(24*time.Hour), *u.EmailVerificationExpires, time.Second)
	require.NotEqual(t, goodPass, u.PasswordHash)

	mails := f.mail.kind(notify.KindVerification)
	require.Len(t, mails, 1)
	require.Equal(t, "a@b.com", mails[0].To)
	require.Contains(t, mails[0].HTML, "http://test/auth/verify-email/"+*u.EmailVerificationToken)
}

func TestRegisterAdminIsActive(t *testing.T) {
	f := newFixture(t)
	res, err := f.acc.Register(context.Background(), RegisterInput{FullName: "Root", Email: "Admin@Example.com", Password: goodPass})
	require.NoError(t, err)
	require.Equal(t, domain.StatusActive, res.Status)
	require.False(t, res.VerificationRequired)

	u := f.user(t, adminEmail)
	require.True(t, u.EmailVerified)
	require.Nil(t, u.EmailVerificationToken)
	require.Empty(t, f.mail.kind(notify.KindVerification))
}

func TestRegisterValidationAndConflict(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.acc.Register(ctx, RegisterInput{FullName: " ", Email: "nope", Password: "short"})
	var ve *domain.ValidationError
	require.True(t, errors.As(err, &ve))
	require.Contains(t, ve.Errors, "Full name cannot be empty")
	require.Contains(t, ve.Errors, "Password must be at least 8 characters long")
	require.GreaterOrEqual(t, len(ve.Errors), 4)

	f.register(t, "dup@b.com")
	_, err = f.acc.Register(ctx, RegisterInput{FullName: "X", Email: "DUP@b.com", Password: goodPass})
	require.ErrorIs(t, err, domain.ErrConflict)
}

func TestVerifyEmailOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.register(t, "v@b.com")
	tok := *u.EmailVerificationToken

	res, err := f.acc.VerifyEmail(ctx, tok)
	require.NoError(t, err)
	require.Equal(t, domain.StatusActive, res.Status)

	u = f.user(t, "v@b.com")
	require.True(t, u.EmailVerified)
	require.Nil(t, u.EmailVerificationToken)
	require.Nil(t, u.EmailVerificationExpires)
	require.Len(t, f.mail.kind(notify.KindStatus), 1)

	_, err = f.acc.VerifyEmail(ctx, tok)
	require.ErrorIs(t, err, domain.ErrInvalidToken)
}

func TestVerifyEmailExpiredLeavesRow(t *testing.T) {
	f := newFixture(t)
	u := f.register(t, "late@b.com")
	tok := *u.EmailVerificationToken

	f.now = f.now.Add(25 * time.Hour)
	_, err := f.acc.VerifyEmail(context.Background(), tok)
	require.ErrorIs(t, err, domain.ErrTokenExpired)

	u = f.user(t, "late@b.com")
	require.Equal(t, domain.StatusPending, u.Status)
	require.False(t, u.EmailVerified)
	require.NotNil(t, u.EmailVerificationToken)
	require.Equal(t, tok, *u.EmailVerificationToken)
}

func TestLoginRules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.register(t, "p@b.com")
	_, err := f.acc.Login(ctx, "p@b.com", goodPass)
	require.ErrorIs(t, err, domain.ErrForbidden)
	var be *domain.BlockedError
	require.True(t, errors.As(err, &be))
	require.Equal(t, domain.StatusPending, be.Status)

	_, err = f.acc.Login(ctx, "p@b.com", "Wr0ng!Pass")
	require.ErrorIs(t, err, domain.ErrInvalidCredentials)
	_, err = f.acc.Login(ctx, "ghost@b.com", goodPass)
	require.ErrorIs(t, err, domain.ErrInvalidCredentials)

	f.active(t, "ok@b.com")
	s, err := f.acc.Login(ctx, " OK@b.com", goodPass)
	require.NoError(t, err)
	require.Equal(t, "bearer", s.TokenType)
	require.NotEmpty(t, s.AccessToken)
	require.NotEmpty(t, s.RefreshToken)
	require.NotEqual(t, s.AccessToken, s.RefreshToken)
}

func TestLoginAdminBypassesPendingOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.register(t, adminEmail)

	a.Status = domain.StatusPending
	require.NoError(t, f.users.Update(ctx, a))
	s, err := f.acc.Login(ctx, adminEmail, goodPass)
	require.NoError(t, err)

	// 其它接口仍拦截 PENDING
	_, err = f.guard.Authenticate(ctx, s.AccessToken)
	require.ErrorIs(t, err, domain.ErrForbidden)

	a.Status = domain.StatusSuspended
	require.NoError(t, f.users.Update(ctx, a))
	_, err = f.acc.Login(ctx, adminEmail, goodPass)
	require.ErrorIs(t, err, domain.ErrForbidden)
}

func TestRefreshRotatesAndChecksType(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.active(t, "r@b.com")

	s, err := f.acc.Login(ctx, "r@b.com", goodPass)
	require.NoError(t, err)

	s2, err := f.acc.Refresh(ctx, s.RefreshToken)
	require.NoError(t, err)
	require.NotEqual(t, s.RefreshToken, s2.RefreshToken)
	require.NotEqual(t, s.AccessToken, s2.AccessToken)

	_, err = f.acc.Refresh(ctx, s.AccessToken)
	require.ErrorIs(t, err, auth.ErrTokenTypeMismatch)
	require.ErrorIs(t, err, domain.ErrUnauthenticated)
	require.Equal(t, "Refresh requires a refresh token, not an access token", err.Error())

	_, err = f.acc.Refresh(ctx, "garbage")
	require.Equal(t, "Invalid refresh token", err.Error())

	_, err = f.acc.Refresh(ctx, "")
	require.ErrorIs(t, err, domain.ErrUnauthenticated)
}

func TestGuardAuthenticate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	actor := f.active(t, "g@b.com")

	s, err := f.acc.Login(ctx, "g@b.com", goodPass)
	require.NoError(t, err)

	got, err := f.guard.Authenticate(ctx, s.AccessToken)
	require.NoError(t, err)
	require.Equal(t, actor.ID(), got.ID())
	require.False(t, got.Admin)

	_, err = f.guard.Authenticate(ctx, s.RefreshToken)
	require.ErrorIs(t, err, domain.ErrUnauthenticated)
	require.ErrorIs(t, err, auth.ErrTokenTypeMismatch)

	_, err = f.guard.Authenticate(ctx, "garbage")
	require.ErrorIs(t, err, domain.ErrUnauthenticated)

	_, err = f.guard.Authenticate(ctx, "")
	require.ErrorIs(t, err, domain.ErrUnauthenticated)

	u := f.user(t, "g@b.com")
	u.Status = domain.StatusBanned
	require.NoError(t, f.users.Update(ctx, u))
	_, err = f.guard.Authenticate(ctx, s.AccessToken)
	require.ErrorIs(t, err, domain.ErrForbidden)

	require.NoError(t, f.users.Delete(ctx, u.ID))
	_, err = f.guard.Authenticate(ctx, s.AccessToken)
	require.ErrorIs(t, err, domain.ErrUnauthenticated)
}

func TestUpdateStatusPermissions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.active(t, adminEmail)
	alice := f.active(t, "alice@b.com")
	bob := f.active(t, "bob@b.com")
	before := len(f.mail.kind(notify.KindStatus))

	_, err := f.acc.UpdateStatus(ctx, alice, bob.ID(), "SUSPENDED")
	require.ErrorIs(t, err, domain.ErrForbidden)
	_, err = f.acc.UpdateStatus(ctx, alice, "no-such-user", "INACTIVE")
	require.ErrorIs(t, err, domain.ErrForbidden)
	_, err = f.acc.UpdateStatus(ctx, alice, alice.ID(), "SUSPENDED")
	require.ErrorIs(t, err, domain.ErrForbidden)

	res, err := f.acc.UpdateStatus(ctx, admin, bob.ID(), "suspended")
	require.NoError(t, err)
	require.Equal(t, domain.StatusActive, res.OldStatus)
	require.Equal(t, domain.StatusSuspended, res.NewStatus)
	require.Len(t, f.mail.kind(notify.KindStatus), before+1)

	// 相同状态不发邮件
	_, err = f.acc.UpdateStatus(ctx, admin, bob.ID(), "SUSPENDED")
	require.NoError(t, err)
	require.Len(t, f.mail.kind(notify.KindStatus), before+1)

	_, err = f.acc.UpdateStatus(ctx, admin, bob.ID(), "ARCHIVED")
	require.ErrorIs(t, err, domain.ErrInvalidState)
	_, err = f.acc.UpdateStatus(ctx, admin, "no-such-user", "ACTIVE")
	require.ErrorIs(t, err, domain.ErrNotFound)

	_, err = f.acc.UpdateStatus(ctx, alice, alice.ID(), "INACTIVE")
	require.NoError(t, err)
	alice.User = f.user(t, "alice@b.com")
	_, err = f.acc.UpdateStatus(ctx, alice, alice.ID(), "INACTIVE")
	require.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestAdminActivatesPendingUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.active(t, adminEmail)
	p := f.register(t, "p@b.com")

	_, err := f.acc.UpdateStatus(ctx, admin, p.ID, "ACTIVE")
	require.NoError(t, err)
	p = f.user(t, "p@b.com")
	require.True(t, p.EmailVerified)
	require.Nil(t, p.EmailVerificationToken)
}

func TestDeactivate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.active(t, adminEmail)
	alice := f.active(t, "alice@b.com")
	bob := f.active(t, "bob@b.com")

	_, err := f.acc.Deactivate(ctx, alice, bob.ID())
	require.ErrorIs(t, err, domain.ErrForbidden)

	res, err := f.acc.Deactivate(ctx, alice, alice.ID())
	require.NoError(t, err)
	require.Equal(t, domain.StatusInactive, res.NewStatus)

	_, err = f.acc.Deactivate(ctx, admin, alice.ID())
	require.ErrorIs(t, err, domain.ErrInvalidTransition)

	_, err = f.acc.Login(ctx, "alice@b.com", goodPass)
	require.ErrorIs(t, err, domain.ErrForbidden)
}

func TestSoftDeleteAndRestore(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.active(t, adminEmail)
	alice := f.active(t, "alice@b.com")
	statusMails := len(f.mail.kind(notify.KindStatus))

	_, err := f.acc.DeleteUser(ctx, alice, alice.ID(), false)
	require.NoError(t, err)
	u := f.user(t, "alice@b.com")
	require.Equal(t, domain.StatusDeleted, u.Status)
	require.NotNil(t, u.DeletedAt)
	first := *u.DeletedAt
	require.Len(t, f.mail.kind(notify.KindStatus), statusMails+1)

	f.now = f.now.Add(time.Hour)
	_, err = f.acc.DeleteUser(ctx, admin, alice.ID(), false)
	require.NoError(t, err)
	u = f.user(t, "alice@b.com")
	require.WithinDuration(t, first, *u.DeletedAt, time.Millisecond)
	require.Len(t, f.mail.kind(notify.KindStatus), statusMails+1)

	_, err = f.acc.UpdateStatus(ctx, admin, alice.ID(), "ACTIVE")
	require.NoError(t, err)
	u = f.user(t, "alice@b.com")
	require.Nil(t, u.DeletedAt)
	require.Equal(t, domain.StatusActive, u.Status)
}

func TestHardDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.active(t, adminEmail)
	alice := f.active(t, "alice@b.com")
	bob := f.active(t, "bob@b.com")

	task := "x"
	_, err := f.todos.Create(ctx, alice, TodoInput{Task: &task})
	require.NoError(t, err)

	_, err = f.acc.DeleteUser(ctx, alice, alice.ID(), true)
	require.ErrorIs(t, err, domain.ErrForbidden)
	_, err = f.acc.DeleteUser(ctx, bob, alice.ID(), false)
	require.ErrorIs(t, err, domain.ErrForbidden)

	res, err := f.acc.DeleteUser(ctx, admin, alice.ID(), true)
	require.NoError(t, err)
	require.True(t, res.Hard)
	require.EqualValues(t, 1, res.TodosRemoved)

	gone, err := f.users.FindByID(ctx, alice.ID())
	require.NoError(t, err)
	require.Nil(t, gone)
}

func TestResendVerification(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.register(t, "r@b.com")
	old := *u.EmailVerificationToken

	res, err := f.acc.ResendVerification(ctx, ResendInput{Email: "r@b.com"})
	require.NoError(t, err)
	require.True(t, res.EmailSent)
	require.False(t, res.EmailChanged)
	u = f.user(t, "r@b.com")
	require.NotEqual(t, old, *u.EmailVerificationToken)

	_, err = f.acc.VerifyEmail(ctx, old)
	require.ErrorIs(t, err, domain.ErrInvalidToken)
	_, err = f.acc.VerifyEmail(ctx, *u.EmailVerificationToken)
	require.NoError(t, err)

	res, err = f.acc.ResendVerification(ctx, ResendInput{Email: "r@b.com"})
	require.NoError(t, err)
	require.True(t, res.AlreadyVerified)
	require.Nil(t, f.user(t, "r@b.com").EmailVerificationToken)

	_, err = f.acc.ResendVerification(ctx, ResendInput{Email: "nobody@b.com"})
	require.ErrorIs(t, err, domain.ErrNotFound)

	_, err = f.acc.ResendVerification(ctx, ResendInput{Email: "not-an-email"})
	var ve *domain.ValidationError
	require.True(t, errors.As(err, &ve))
}

func TestResendCorrectsEmailWithCurrentEmail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.register(t, "typo@b.con")
	f.register(t, "other@b.com")

	res, err := f.acc.ResendVerification(ctx, ResendInput{Email: "fixed@b.com", CurrentEmail: "typo@b.con"})
	require.NoError(t, err)
	require.True(t, res.EmailChanged)
	require.Equal(t, "fixed@b.com", res.TargetEmail)

	u := f.user(t, "fixed@b.com")
	require.Equal(t, p.ID, u.ID)
	require.Equal(t, domain.StatusPending, u.Status)

	_, err = f.acc.ResendVerification(ctx, ResendInput{Email: "new@b.com", CurrentEmail: "missing@b.com"})
	require.ErrorIs(t, err, domain.ErrNotFound)

	f.active(t, "done@b.com")
	_, err = f.acc.ResendVerification(ctx, ResendInput{Email: "new@b.com", CurrentEmail: "done@b.com"})
	require.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestResendInferPending(t *testing.T) {
	f := newFixture(t, func(p *Policy) { p.ResendInferPending = true })
	ctx := context.Background()

	_, err := f.acc.ResendVerification(ctx, ResendInput{Email: "x@b.com"})
	require.ErrorIs(t, err, domain.ErrNotFound)

	p := f.register(t, "only@b.com")
	res, err := f.acc.ResendVerification(ctx, ResendInput{Email: "renamed@b.com"})
	require.NoError(t, err)
	require.True(t, res.EmailChanged)
	require.Equal(t, p.ID, f.user(t, "renamed@b.com").ID)

	f.register(t, "second@b.com")
	_, err = f.acc.ResendVerification(ctx, ResendInput{Email: "third@b.com"})
	require.ErrorIs(t, err, domain.ErrAmbiguous)
}

func TestListAndGetUsers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.active(t, adminEmail)
	alice := f.active(t, "alice@b.com")
	bob := f.active(t, "bob@b.com")
	f.register(t, "pending@b.com")

	_, err := f.acc.ListUsers(ctx, alice, ListUsersInput{})
	require.ErrorIs(t, err, domain.ErrForbidden)

	page, err := f.acc.ListUsers(ctx, admin, ListUsersInput{Page: 1, PerPage: 2})
	require.NoError(t, err)
	require.EqualValues(t, 4, page.Total)
	require.Len(t, page.Users, 2)
	require.Equal(t, 2, page.TotalPages)

	page, err = f.acc.ListUsers(ctx, admin, ListUsersInput{Status: "pending"})
	require.NoError(t, err)
	require.EqualValues(t, 1, page.Total)
	require.Equal(t, "pending@b.com", page.Users[0].Email)

	_, err = f.acc.ListUsers(ctx, admin, ListUsersInput{Status: "nope"})
	require.ErrorIs(t, err, domain.ErrInvalidState)

	got, err := f.acc.GetUser(ctx, alice, alice.ID())
	require.NoError(t, err)
	require.Equal(t, "alice@b.com", got.Email)
	_, err = f.acc.GetUser(ctx, alice, bob.ID())
	require.ErrorIs(t, err, domain.ErrForbidden)
	_, err = f.acc.GetUser(ctx, admin, "missing")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestUpdateUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.active(t, "alice@b.com")
	bob := f.active(t, "bob@b.com")

	name := "Alice Liddell"
	u, err := f.acc.UpdateUser(ctx, alice, alice.ID(), UpdateUserInput{FullName: &name})
	require.NoError(t, err)
	require.Equal(t, name, u.FullName)

	_, err = f.acc.UpdateUser(ctx, bob, alice.ID(), UpdateUserInput{FullName: &name})
	require.ErrorIs(t, err, domain.ErrForbidden)

	weak := "weak"
	_, err = f.acc.UpdateUser(ctx, alice, alice.ID(), UpdateUserInput{Password: &weak})
	var ve *domain.ValidationError
	require.True(t, errors.As(err, &ve))

	_, err = f.acc.UpdateUser(ctx, alice, alice.ID(), UpdateUserInput{})
	require.True(t, errors.As(err, &ve))

	pw := "N3w!Password"
	_, err = f.acc.UpdateUser(ctx, alice, alice.ID(), UpdateUserInput{Password: &pw})
	require.NoError(t, err)
	_, err = f.acc.Login(ctx, "alice@b.com", goodPass)
	require.ErrorIs(t, err, domain.ErrInvalidCredentials)
	_, err = f.acc.Login(ctx, "alice@b.com", pw)
	require.NoError(t, err)
}

func TestBlockedErrorMessages(t *testing.T) {
	err := &domain.BlockedError{Status: domain.StatusBanned}
	require.True(t, strings.HasPrefix(err.Error(), "Account is banned"))
}

func TestFieldLengthLimits(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	longPass := "Aa1!" + strings.Repeat("x", 77)
	longName := strings.Repeat("名", domain.MaxFullNameLen+1)

	_, err := f.acc.Register(ctx, RegisterInput{FullName: longName, Email: "long@b.com", Password: longPass})
	var ve *domain.ValidationError
	require.True(t, errors.As(err, &ve))
	require.Contains(t, ve.Errors, "Full name must be at most 128 characters")
	require.Contains(t, ve.Errors, "Password must be at most 72 bytes long")

	// 128 个多字节字符仍然合法
	_, err = f.acc.Register(ctx, RegisterInput{FullName: longName[:len("名")*domain.MaxFullNameLen], Email: "ok@b.com", Password: goodPass})
	require.NoError(t, err)

	alice := f.active(t, "alice@b.com")
	_, err = f.acc.UpdateUser(ctx, alice, alice.ID(), UpdateUserInput{Password: &longPass})
	require.True(t, errors.As(err, &ve))
	require.Equal(t, []string{"Password must be at most 72 bytes long"}, ve.Errors)
	_, err = f.acc.UpdateUser(ctx, alice, alice.ID(), UpdateUserInput{FullName: &longName})
	require.True(t, errors.As(err, &ve))
	require.Equal(t, []string{"Full name must be at most 128 characters"}, ve.Errors)
}

func TestVerifyEmailKeepsSuspendedStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.active(t, adminEmail)
	p := f.register(t, "s@b.com")
	token := *p.EmailVerificationToken

	_, err := f.acc.UpdateStatus(ctx, admin, p.ID, "SUSPENDED")
	require.NoError(t, err)

	res, err := f.acc.VerifyEmail(ctx, token)
	require.NoError(t, err)
	require.Equal(t, domain.StatusSuspended, res.Status)
	p = f.user(t, "s@b.com")
	require.True(t, p.EmailVerified)
	require.Equal(t, domain.StatusSuspended, p.Status)
}
