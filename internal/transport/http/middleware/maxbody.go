package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	resp "go-gin-todo-auth/internal/transport/http/response"
)

// MaxBodyBytes 限制请求体大小；超限时 handler 的绑定会失败，这里统一改写成 413
func MaxBodyBytes(n int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if n <= 0 {
			c.Next()
			return
		}
		if c.Request.ContentLength > n {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, resp.Error(resp.CodeTooLarge, "request body too large"))
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, n)
		c.Next()
	}
}

// IsBodyTooLarge 供绑定失败时判断
func IsBodyTooLarge(err error) bool {
	var mbe *http.MaxBytesError
	return errors.As(err, &mbe)
}
