package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"go-gin-todo-auth/internal/core/auth"
	"go-gin-todo-auth/internal/domain"
	"go-gin-todo-auth/internal/notify"
	"go-gin-todo-auth/internal/repo"
	"go-gin-todo-auth/pkg/utils"
)

const (
	tokenBytes     = 32
	defaultPerPage = 10
	maxPerPage     = 100
)

var validate = validator.New()

type AccountService struct {
	tx     Tx
	jwt    *auth.JWTer
	policy Policy
	sm     StatusMachine
	mail   notify.Dispatcher
	l      *zap.Logger
}

func NewAccountService(tx Tx, j *auth.JWTer, p Policy, mail notify.Dispatcher, l *zap.Logger) *AccountService {
	return &AccountService{tx: tx, jwt: j, policy: p, mail: mail, l: l}
}

type RegisterInput struct {
	FullName string
	Email    string
	Password string
}

type RegisterResult struct {
	Message              string            `json:"message"`
	UserID               string            `json:"user_id"`
	Status               domain.UserStatus `json:"status"`
	EmailSent            bool              `json:"email_sent"`
	VerificationRequired bool              `json:"email_verification_required"`
}

func (s *AccountService) Register(ctx context.Context, in RegisterInput) (*RegisterResult, error) {
	name := strings.TrimSpace(in.FullName)
	email := domain.NormalizeEmail(in.Email)

	var msgs []string
	if m := checkName(name); m != "" {
		msgs = append(msgs, m)
	}
	if err := checkEmail(email); err != nil {
		msgs = append(msgs, err.Error())
	}
	msgs = append(msgs, utils.CheckPasswordPolicy(in.Password)...)
	if len(msgs) > 0 {
		return nil, domain.NewValidationError(msgs...)
	}

	hash, err := utils.HashPassword(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	u := &domain.User{
		ID:           utils.NewID(),
		FullName:     name,
		Email:        email,
		PasswordHash: hash,
		Status:       domain.StatusPending,
	}
	admin := s.policy.IsAdmin(email)
	var token string
	if admin {
		u.Status = domain.StatusActive
		u.EmailVerified = true
	} else if token, err = s.issueVerification(u); err != nil {
		return nil, err
	}

	err = s.tx.InTx(ctx, func(r repo.Repos) error {
		existing, err := r.Users.FindByEmail(ctx, email)
		if err != nil {
			return err
		}
		if existing != nil {
			return domain.Errorf(domain.ErrConflict, "Email already registered")
		}
		return r.Users.Create(ctx, u)
	})
	if err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return nil, domain.Errorf(domain.ErrConflict, "Email already registered")
		}
		return nil, err
	}

	res := &RegisterResult{
		Message:              "User registered successfully.",
		UserID:               u.ID,
		Status:               u.Status,
		VerificationRequired: !admin,
	}
	if !admin {
		res.Message += " Please check your email to verify your account."
		res.EmailSent = s.sendVerification(u, token)
	}
	s.l.Info("user registered", zap.String("user_id", u.ID), zap.String("email", u.Email), zap.Bool("admin", admin))
	return res, nil
}

type VerifyResult struct {
	Message       string            `json:"message"`
	Status        domain.UserStatus `json:"status"`
	EmailVerified bool              `json:"email_verified"`
}

// VerifyEmail 过期时不清除 token，只在成功或重发时覆盖
func (s *AccountService) VerifyEmail(ctx context.Context, token string) (*VerifyResult, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, domain.Errorf(domain.ErrInvalidToken, "Invalid verification token")
	}
	now := s.policy.now()
	var (
		u  *domain.User
		ch Change
	)
	err := s.tx.InTx(ctx, func(r repo.Repos) error {
		var err error
		u, err = r.Users.FindByVerificationToken(ctx, token)
		if err != nil {
			return err
		}
		if u == nil {
			return domain.Errorf(domain.ErrInvalidToken, "Invalid verification token")
		}
		if u.EmailVerificationExpires != nil && u.EmailVerificationExpires.Before(now) {
			return domain.Errorf(domain.ErrTokenExpired, "Verification token has expired")
		}
		prev := u.Status
		u.EmailVerified = true
		u.EmailVerificationToken = nil
		u.EmailVerificationExpires = nil
		// 只有 PENDING 升为 ACTIVE；SUSPENDED/BANNED 等不能靠验证链接解除，只标记已验证
		if prev == domain.StatusPending {
			u.Status = domain.StatusActive
		}
		ch = Change{UserID: u.ID, Prev: prev, Next: u.Status, Changed: prev != u.Status}
		return r.Users.Update(ctx, u)
	})
	if err != nil {
		return nil, err
	}
	s.notifyChange(u, ch)
	s.l.Info("email verified", zap.String("user_id", u.ID))
	return &VerifyResult{Message: "Email verified successfully", Status: u.Status, EmailVerified: true}, nil
}

type ResendInput struct {
	Email string
	// CurrentEmail 改邮箱时填原注册邮箱
	CurrentEmail string
}

type ResendResult struct {
	Message         string `json:"message"`
	EmailSent       bool   `json:"email_sent"`
	TargetEmail     string `json:"target_email"`
	EmailChanged    bool   `json:"email_changed"`
	AlreadyVerified bool   `json:"already_verified"`
}

func (s *AccountService) ResendVerification(ctx context.Context, in ResendInput) (*ResendResult, error) {
	target := domain.NormalizeEmail(in.Email)
	current := domain.NormalizeEmail(in.CurrentEmail)
	var msgs []string
	if err := checkEmail(target); err != nil {
		msgs = append(msgs, err.Error())
	}
	if current != "" {
		if err := checkEmail(current); err != nil {
			msgs = append(msgs, "current_email: "+err.Error())
		}
	}
	if len(msgs) > 0 {
		return nil, domain.NewValidationError(msgs...)
	}

	res := &ResendResult{TargetEmail: target}
	var (
		u     *domain.User
		token string
	)
	err := s.tx.InTx(ctx, func(r repo.Repos) error {
		var err error
		u, err = r.Users.FindByEmail(ctx, target)
		if err != nil {
			return err
		}
		if u != nil {
			if u.EmailVerified {
				res.AlreadyVerified = true
				return nil
			}
			if u.Status != domain.StatusPending {
				return &domain.BlockedError{Status: u.Status}
			}
			if token, err = s.issueVerification(u); err != nil {
				return err
			}
			return r.Users.Update(ctx, u)
		}

		u, err = s.resolveCorrection(ctx, r, current)
		if err != nil {
			return err
		}
		s.l.Info("pending account email changed",
			zap.String("user_id", u.ID), zap.String("from", u.Email), zap.String("to", target))
		u.Email = target
		res.EmailChanged = true
		if token, err = s.issueVerification(u); err != nil {
			return err
		}
		return r.Users.Update(ctx, u)
	})
	if err != nil {
		return nil, err
	}

	if res.AlreadyVerified {
		res.Message = "Email is already verified"
		return res, nil
	}
	res.EmailSent = s.sendVerification(u, token)
	res.Message = "Verification email sent to " + target
	return res, nil
}

// resolveCorrection 找出要改邮箱的 PENDING 账号
func (s *AccountService) resolveCorrection(ctx context.Context, r repo.Repos, current string) (*domain.User, error) {
	if current != "" {
		u, err := r.Users.FindByEmail(ctx, current)
		if err != nil {
			return nil, err
		}
		if u == nil {
			return nil, domain.Errorf(domain.ErrNotFound, "No account found for %s", current)
		}
		if u.Status != domain.StatusPending || u.EmailVerified {
			return nil, domain.Errorf(domain.ErrInvalidTransition, "Only pending accounts can change their email")
		}
		return u, nil
	}
	if !s.policy.ResendInferPending {
		return nil, domain.Errorf(domain.ErrNotFound, "No account found for this email. Please register first.")
	}
	pending, err := r.Users.ListByStatus(ctx, domain.StatusPending)
	if err != nil {
		return nil, err
	}
	switch len(pending) {
	case 0:
		return nil, domain.Errorf(domain.ErrNotFound, "No pending verification accounts found. Please register first.")
	case 1:
		return &pending[0], nil
	default:
		return nil, domain.Errorf(domain.ErrAmbiguous, "Multiple pending accounts found. Please contact support or try registering again.")
	}
}

// Session 登录 / 刷新的结果；refresh token 只通过 cookie 下发
type Session struct {
	AccessToken      string    `json:"access_token"`
	TokenType        string    `json:"token_type"`
	ExpiresAt        time.Time `json:"expires_at"`
	RefreshToken     string    `json:"-"`
	RefreshExpiresAt time.Time `json:"-"`
}

func (s *AccountService) Login(ctx context.Context, email, password string) (*Session, error) {
	email = domain.NormalizeEmail(email)
	var u *domain.User
	err := s.tx.InTx(ctx, func(r repo.Repos) error {
		var err error
		u, err = r.Users.FindByEmail(ctx, email)
		return err
	})
	if err != nil {
		return nil, err
	}
	if u == nil || !utils.CheckPassword(password, u.PasswordHash) {
		return nil, domain.Errorf(domain.ErrInvalidCredentials, "Invalid email or password")
	}
	if err := loginBlocked(u, s.policy.IsAdmin(u.Email)); err != nil {
		return nil, err
	}
	return s.issueSession(u)
}

// Refresh 校验 refresh token 并轮换出新的一对
func (s *AccountService) Refresh(ctx context.Context, raw string) (*Session, error) {
	if raw == "" {
		return nil, domain.Errorf(domain.ErrUnauthenticated, "Refresh token missing")
	}
	claims, err := s.jwt.Parse(raw, auth.TokenRefresh)
	if err != nil {
		if errors.Is(err, auth.ErrTokenTypeMismatch) {
			return nil, &authError{msg: "Refresh requires a refresh token, not an access token", cause: err}
		}
		return nil, &authError{msg: "Invalid refresh token", cause: err}
	}
	var u *domain.User
	err = s.tx.InTx(ctx, func(r repo.Repos) error {
		var e error
		u, e = r.Users.FindByEmail(ctx, claims.Subject)
		return e
	})
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, domain.Errorf(domain.ErrUnauthenticated, "Invalid refresh token")
	}
	if err := loginBlocked(u, s.policy.IsAdmin(u.Email)); err != nil {
		return nil, err
	}
	return s.issueSession(u)
}

func (s *AccountService) issueSession(u *domain.User) (*Session, error) {
	at, atExp, err := s.jwt.IssueAccess(u.Email)
	if err != nil {
		return nil, fmt.Errorf("issue access token: %w", err)
	}
	rt, rtExp, err := s.jwt.IssueRefresh(u.Email)
	if err != nil {
		return nil, fmt.Errorf("issue refresh token: %w", err)
	}
	return &Session{
		AccessToken:      at,
		TokenType:        "bearer",
		ExpiresAt:        atExp,
		RefreshToken:     rt,
		RefreshExpiresAt: rtExp,
	}, nil
}

type ListUsersInput struct {
	Page    int
	PerPage int
	Status  string
	Query   string
}

type UserPage struct {
	Users      []domain.User `json:"users"`
	Page       int           `json:"page"`
	PerPage    int           `json:"per_page"`
	Total      int64         `json:"total"`
	TotalPages int           `json:"total_pages"`
}

func (s *AccountService) ListUsers(ctx context.Context, actor Actor, in ListUsersInput) (*UserPage, error) {
	if err := RequireAdmin(actor); err != nil {
		return nil, err
	}
	f := domain.UserFilter{Query: strings.TrimSpace(in.Query)}
	if in.Status != "" {
		st, err := domain.ParseStatus(in.Status)
		if err != nil {
			return nil, domain.Errorf(domain.ErrInvalidState, "Invalid status %q", in.Status)
		}
		f.Status = st
	}
	page, per := pageOf(in.Page, in.PerPage)
	out := &UserPage{Page: page, PerPage: per, Users: []domain.User{}}
	err := s.tx.InTx(ctx, func(r repo.Repos) error {
		users, total, err := r.Users.List(ctx, f, (page-1)*per, per)
		if err != nil {
			return err
		}
		if users != nil {
			out.Users = users
		}
		out.Total = total
		return nil
	})
	if err != nil {
		return nil, err
	}
	out.TotalPages = int((out.Total + int64(per) - 1) / int64(per))
	return out, nil
}

func (s *AccountService) GetUser(ctx context.Context, actor Actor, id string) (*domain.User, error) {
	if err := selfOrAdmin(actor, id); err != nil {
		return nil, err
	}
	var u *domain.User
	err := s.tx.InTx(ctx, func(r repo.Repos) error {
		var err error
		u, err = mustUser(ctx, r, id)
		return err
	})
	return u, err
}

type UpdateUserInput struct {
	FullName *string
	Password *string
}

func (s *AccountService) UpdateUser(ctx context.Context, actor Actor, id string, in UpdateUserInput) (*domain.User, error) {
	if err := selfOrAdmin(actor, id); err != nil {
		return nil, err
	}
	if in.FullName == nil && in.Password == nil {
		return nil, domain.NewValidationError("No fields to update")
	}
	var msgs []string
	var name string
	if in.FullName != nil {
		name = strings.TrimSpace(*in.FullName)
		if m := checkName(name); m != "" {
			msgs = append(msgs, m)
		}
	}
	var hash string
	if in.Password != nil {
		if errs := utils.CheckPasswordPolicy(*in.Password); len(errs) > 0 {
			msgs = append(msgs, errs...)
		}
	}
	if len(msgs) > 0 {
		return nil, domain.NewValidationError(msgs...)
	}
	if in.Password != nil {
		var err error
		if hash, err = utils.HashPassword(*in.Password); err != nil {
			return nil, fmt.Errorf("hash password: %w", err)
		}
	}

	var u *domain.User
	err := s.tx.InTx(ctx, func(r repo.Repos) error {
		var err error
		if u, err = mustUser(ctx, r, id); err != nil {
			return err
		}
		if in.FullName != nil {
			u.FullName = name
		}
		if hash != "" {
			u.PasswordHash = hash
		}
		return r.Users.Update(ctx, u)
	})
	if err != nil {
		return nil, err
	}
	s.l.Info("user updated",
		zap.String("actor", actor.Email()), zap.String("target", id),
		zap.Bool("full_name", in.FullName != nil), zap.Bool("password", in.Password != nil))
	return u, nil
}

type StatusResult struct {
	Message   string            `json:"message"`
	UserID    string            `json:"user_id"`
	OldStatus domain.UserStatus `json:"old_status"`
	NewStatus domain.UserStatus `json:"new_status"`
	UpdatedAt time.Time         `json:"updated_at"`
}

func (s *AccountService) UpdateStatus(ctx context.Context, actor Actor, id, status string) (*StatusResult, error) {
	next, err := domain.ParseStatus(status)
	if err != nil {
		return nil, domain.Errorf(domain.ErrInvalidState, "Invalid status %q", status)
	}
	if err := s.sm.Authorize(actor, id, next); err != nil {
		return nil, err
	}
	now := s.policy.now()
	var (
		u  *domain.User
		ch Change
	)
	err = s.tx.InTx(ctx, func(r repo.Repos) error {
		var err error
		if u, err = mustUser(ctx, r, id); err != nil {
			return err
		}
		if ch, err = s.sm.Transition(actor, u, next, now); err != nil {
			return err
		}
		return r.Users.Update(ctx, u)
	})
	if err != nil {
		return nil, err
	}
	s.logChange(actor, ch)
	s.notifyChange(u, ch)
	return &StatusResult{
		Message:   "User status updated successfully",
		UserID:    u.ID,
		OldStatus: ch.Prev,
		NewStatus: ch.Next,
		UpdatedAt: u.UpdatedAt,
	}, nil
}

// Deactivate 无论是否管理员，已是 INACTIVE 都报错
func (s *AccountService) Deactivate(ctx context.Context, actor Actor, id string) (*StatusResult, error) {
	if err := selfOrAdmin(actor, id); err != nil {
		return nil, domain.Errorf(domain.ErrForbidden, "You can only deactivate your own account")
	}
	now := s.policy.now()
	var (
		u  *domain.User
		ch Change
	)
	err := s.tx.InTx(ctx, func(r repo.Repos) error {
		var err error
		if u, err = mustUser(ctx, r, id); err != nil {
			return err
		}
		if u.Status == domain.StatusInactive {
			return domain.Errorf(domain.ErrInvalidTransition, "Account is already inactive")
		}
		ch = s.sm.apply(u, domain.StatusInactive, now)
		return r.Users.Update(ctx, u)
	})
	if err != nil {
		return nil, err
	}
	s.logChange(actor, ch)
	s.notifyChange(u, ch)
	return &StatusResult{
		Message:   "Account deactivated successfully",
		UserID:    u.ID,
		OldStatus: ch.Prev,
		NewStatus: ch.Next,
		UpdatedAt: u.UpdatedAt,
	}, nil
}

type DeleteResult struct {
	Message      string            `json:"message"`
	UserID       string            `json:"user_id"`
	Status       domain.UserStatus `json:"status,omitempty"`
	Hard         bool              `json:"hard"`
	TodosRemoved int64             `json:"todos_removed,omitempty"`
}

// DeleteUser 默认软删除；hard 只允许管理员，连同 todos 一起物理删除
func (s *AccountService) DeleteUser(ctx context.Context, actor Actor, id string, hard bool) (*DeleteResult, error) {
	if err := selfOrAdmin(actor, id); err != nil {
		return nil, err
	}
	if hard {
		if err := RequireAdmin(actor); err != nil {
			return nil, err
		}
		return s.purgeUser(ctx, actor, id)
	}

	now := s.policy.now()
	var (
		u  *domain.User
		ch Change
	)
	err := s.tx.InTx(ctx, func(r repo.Repos) error {
		var err error
		if u, err = mustUser(ctx, r, id); err != nil {
			return err
		}
		ch = s.sm.apply(u, domain.StatusDeleted, now)
		return r.Users.Update(ctx, u)
	})
	if err != nil {
		return nil, err
	}
	s.logChange(actor, ch)
	s.notifyChange(u, ch)
	return &DeleteResult{Message: "User deleted successfully", UserID: u.ID, Status: u.Status}, nil
}

func (s *AccountService) purgeUser(ctx context.Context, actor Actor, id string) (*DeleteResult, error) {
	var (
		email string
		todos int64
	)
	err := s.tx.InTx(ctx, func(r repo.Repos) error {
		u, err := mustUser(ctx, r, id)
		if err != nil {
			return err
		}
		email = u.Email
		if todos, err = r.Todos.DeleteByOwners(ctx, []string{id}); err != nil {
			return err
		}
		return r.Users.Delete(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	s.l.Warn("user permanently deleted",
		zap.String("actor", actor.Email()), zap.String("target", id),
		zap.String("email", email), zap.Int64("todos", todos))
	return &DeleteResult{Message: "User permanently deleted", UserID: id, Hard: true, TodosRemoved: todos}, nil
}

func (s *AccountService) issueVerification(u *domain.User) (string, error) {
	token, err := utils.RandomToken(tokenBytes)
	if err != nil {
		return "", fmt.Errorf("generate verification token: %w", err)
	}
	exp := s.policy.now().Add(s.policy.VerificationTTL)
	u.EmailVerificationToken = &token
	u.EmailVerificationExpires = &exp
	u.EmailVerified = false
	return token, nil
}

// sendVerification 事务提交后调用；返回是否成功入队
func (s *AccountService) sendVerification(u *domain.User, token string) bool {
	m, err := notify.VerificationEmail(u.Email, u.FullName, s.policy.VerifyURL+token, s.policy.verifyHours())
	if err != nil {
		s.l.Error("build verification email failed", zap.String("user_id", u.ID), zap.Error(err))
		return false
	}
	s.mail.Dispatch(m)
	return true
}

func (s *AccountService) notifyChange(u *domain.User, ch Change) {
	if !ch.Changed {
		return
	}
	m, err := notify.StatusChangeEmail(u.Email, u.FullName, ch.Next)
	if err != nil {
		s.l.Error("build status email failed", zap.String("user_id", u.ID), zap.Error(err))
		return
	}
	s.mail.Dispatch(m)
}

func (s *AccountService) logChange(actor Actor, ch Change) {
	s.l.Info("user status changed",
		zap.String("actor", actor.Email()),
		zap.Bool("admin", actor.Admin),
		zap.String("target", ch.UserID),
		zap.String("before", string(ch.Prev)),
		zap.String("after", string(ch.Next)),
		zap.Bool("changed", ch.Changed))
}

func checkEmail(email string) error {
	if err := validate.Var(email, "required,email"); err != nil {
		return errors.New("email: value is not a valid email address")
	}
	if err := validate.Var(email, fmt.Sprintf("max=%d", domain.MaxEmailLen)); err != nil {
		return fmt.Errorf("email: must be at most %d characters", domain.MaxEmailLen)
	}
	return nil
}

// checkName 返回空串表示通过；max 按 rune 计数
func checkName(name string) string {
	if name == "" {
		return "Full name cannot be empty"
	}
	if err := validate.Var(name, fmt.Sprintf("max=%d", domain.MaxFullNameLen)); err != nil {
		return fmt.Sprintf("Full name must be at most %d characters", domain.MaxFullNameLen)
	}
	return ""
}

func selfOrAdmin(actor Actor, id string) error {
	if actor.Admin || actor.ID() == id {
		return nil
	}
	return domain.Errorf(domain.ErrForbidden, "You can only access your own account")
}

func mustUser(ctx context.Context, r repo.Repos, id string) (*domain.User, error) {
	u, err := r.Users.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, domain.Errorf(domain.ErrNotFound, "User not found")
	}
	return u, nil
}

func pageOf(page, per int) (int, int) {
	if page < 1 {
		page = 1
	}
	if per < 1 {
		per = defaultPerPage
	}
	if per > maxPerPage {
		per = maxPerPage
	}
	return page, per
}
