package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"go-gin-todo-auth/internal/core/config"
	"go-gin-todo-auth/internal/service"
)

// bearer 取 Authorization: Bearer <token>，没有返回空串
func bearer(c *gin.Context) string {
	ah := strings.TrimSpace(c.GetHeader("Authorization"))
	const prefix = "bearer "
	if len(ah) > len(prefix) && strings.EqualFold(ah[:len(prefix)], prefix) {
		return strings.TrimSpace(ah[len(prefix):])
	}
	return ""
}

func actor(c *gin.Context, g *service.Guard) (service.Actor, error) {
	return g.Authenticate(c.Request.Context(), bearer(c))
}

// refresh cookie 只在 refresh 路径下发送，脚本不可读
func setRefreshCookie(c *gin.Context, ck config.Cookie, token string, exp time.Time) {
	maxAge := int(time.Until(exp).Seconds())
	if maxAge < 1 {
		maxAge = 1
	}
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(ck.Name, token, maxAge, ck.Path, ck.Domain, ck.Secure, true)
}

func clearRefreshCookie(c *gin.Context, ck config.Cookie) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(ck.Name, "", -1, ck.Path, ck.Domain, ck.Secure, true)
}

type message struct {
	Message string `json:"message"`
}
