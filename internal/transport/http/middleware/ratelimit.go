package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	resp "go-gin-todo-auth/internal/transport/http/response"
)

func tooMany(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusTooManyRequests, resp.Error(resp.CodeTooManyRequests, "too many requests"))
}

// RateLimit 全局令牌桶限速，挡在每 IP 限速之前；rps<=0 时不限速
func RateLimit(rps rate.Limit, burst int) gin.HandlerFunc {
	if rps <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	lim := rate.NewLimiter(rps, burst)
	return func(c *gin.Context) {
		if lim.Allow() {
			c.Next()
			return
		}
		tooMany(c)
	}
}

type ipBucket struct {
	lim  *rate.Limiter
	seen time.Time
}

// idle 超过该时长的 IP 桶会被回收
const bucketIdle = 10 * time.Minute

// RateLimitPerIP 每 IP 限速；rps<=0 时不限速
func RateLimitPerIP(rps rate.Limit, burst int) gin.HandlerFunc {
	if rps <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	var (
		mu      sync.Mutex
		buckets = make(map[string]*ipBucket)
		swept   = time.Now()
	)
	return func(c *gin.Context) {
		ip := c.ClientIP()
		now := time.Now()

		mu.Lock()
		if now.Sub(swept) > bucketIdle {
			for k, b := range buckets {
				if now.Sub(b.seen) > bucketIdle {
					delete(buckets, k)
				}
			}
			swept = now
		}
		b, ok := buckets[ip]
		if !ok {
			b = &ipBucket{lim: rate.NewLimiter(rps, burst)}
			buckets[ip] = b
		}
		b.seen = now
		allowed := b.lim.Allow()
		mu.Unlock()

		if allowed {
			c.Next()
			return
		}
		tooMany(c)
	}
}
