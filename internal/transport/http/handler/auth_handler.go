package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"go-gin-todo-auth/internal/core/config"
	"go-gin-todo-auth/internal/service"
	httpez "go-gin-todo-auth/internal/transport/http/ez"
)

// AuthHandler 注册、验证、登录、刷新、登出
type AuthHandler struct {
	acc    *service.AccountService
	cookie config.Cookie
	l      *zap.Logger
}

func NewAuthHandler(acc *service.AccountService, ck config.Cookie, l *zap.Logger) *AuthHandler {
	return &AuthHandler{acc: acc, cookie: ck, l: l}
}

func (h *AuthHandler) Priority() int { return 10 }

type registerIn struct {
	FullName string `json:"full_name"`
	Email    string `json:"email"     binding:"required"`
	Password string `json:"password"  binding:"required"`
}

type resendIn struct {
	Email        string `json:"email"         binding:"required,email"`
	CurrentEmail string `json:"current_email" binding:"omitempty,email"`
}

type loginIn struct {
	Email    string `json:"email"    binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

func (h *AuthHandler) Mount(g *gin.RouterGroup) {
	ez := httpez.New(g, h.l)

	httpez.RegisterAction(ez, httpez.Action[registerIn, *service.RegisterResult]{
		Method: http.MethodPost,
		Path:   "/auth/register",
		Binder: httpez.BindJSON,
		Status: http.StatusCreated,
		Handler: func(c *gin.Context, in *registerIn) (*service.RegisterResult, error) {
			return h.acc.Register(c.Request.Context(), service.RegisterInput{
				FullName: in.FullName, Email: in.Email, Password: in.Password,
			})
		},
	})

	httpez.RegisterAction(ez, httpez.Action[struct{}, *service.VerifyResult]{
		Method: http.MethodGet,
		Path:   "/auth/verify-email/:token",
		Binder: httpez.BindNone,
		Handler: func(c *gin.Context, _ *struct{}) (*service.VerifyResult, error) {
			return h.acc.VerifyEmail(c.Request.Context(), c.Param("token"))
		},
	})

	httpez.RegisterAction(ez, httpez.Action[resendIn, *service.ResendResult]{
		Method: http.MethodPost,
		Path:   "/auth/resend-verification",
		Binder: httpez.BindJSON,
		Handler: func(c *gin.Context, in *resendIn) (*service.ResendResult, error) {
			return h.acc.ResendVerification(c.Request.Context(), service.ResendInput{
				Email: in.Email, CurrentEmail: in.CurrentEmail,
			})
		},
	})

	httpez.RegisterAction(ez, httpez.Action[loginIn, *service.Session]{
		Method: http.MethodPost,
		Path:   "/auth/login",
		Binder: httpez.BindJSON,
		Handler: func(c *gin.Context, in *loginIn) (*service.Session, error) {
			s, err := h.acc.Login(c.Request.Context(), in.Email, in.Password)
			if err != nil {
				return nil, err
			}
			setRefreshCookie(c, h.cookie, s.RefreshToken, s.RefreshExpiresAt)
			return s, nil
		},
	})

	httpez.RegisterAction(ez, httpez.Action[struct{}, *service.Session]{
		Method: http.MethodPost,
		Path:   "/auth/refresh",
		Binder: httpez.BindNone,
		Handler: func(c *gin.Context, _ *struct{}) (*service.Session, error) {
			raw, _ := c.Cookie(h.cookie.Name)
			s, err := h.acc.Refresh(c.Request.Context(), raw)
			if err != nil {
				return nil, err
			}
			setRefreshCookie(c, h.cookie, s.RefreshToken, s.RefreshExpiresAt)
			return s, nil
		},
	})

	// 无状态 token，登出只清 cookie
	httpez.RegisterAction(ez, httpez.Action[struct{}, message]{
		Method: http.MethodPost,
		Path:   "/auth/logout",
		Binder: httpez.BindNone,
		Handler: func(c *gin.Context, _ *struct{}) (message, error) {
			clearRefreshCookie(c, h.cookie)
			return message{Message: "Successfully logged out"}, nil
		},
	})
}
