package router

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"go-gin-todo-auth/internal/core/config"
	"go-gin-todo-auth/internal/core/server"
	"go-gin-todo-auth/internal/transport/http/handler"
	mdw "go-gin-todo-auth/internal/transport/http/middleware"
	resp "go-gin-todo-auth/internal/transport/http/response"
)

// Pinger 健康检查用，repo.Store 实现
type Pinger interface {
	Ping(ctx context.Context) error
}

type Deps struct {
	Config  *config.Config
	Logger  *zap.Logger
	DB      Pinger
	Auth    *handler.AuthHandler
	Users   *handler.UserHandler
	Todos   *handler.TodoHandler
	Admin   *handler.AdminHandler
	Version string
}

func NewAPIEngine(d Deps) *gin.Engine {
	cfg, l := d.Config, d.Logger
	r := server.NewRouter(l, server.Options{
		Name:    cfg.App.Name,
		Mode:    ginMode(cfg.App.Env),
		Origins: cfg.App.CORS,
	})

	lim := cfg.App.Limits
	// 中间件
	r.Use(
		mdw.RequestID(),
		mdw.RateLimit(rate.Limit(lim.GlobalRPS), lim.GlobalBurst),
		mdw.RateLimitPerIP(rate.Limit(lim.RPS), lim.Burst),
		mdw.ConcurrencyLimit(lim.MaxConcurrent),
		mdw.MaxBodyBytes(lim.MaxBodyBytes),
		mdw.Timeout(time.Duration(lim.RequestTimeout)*time.Second),
		mdw.Metrics(),
		mdw.AccessLog(l),
	)

	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, resp.OK(gin.H{
			"name":    cfg.App.Name,
			"version": d.Version,
			"env":     cfg.App.Env,
		}))
	})
	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := d.DB.Ping(ctx); err != nil {
			l.Warn("health check failed", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, resp.ErrorWithData(resp.CodeUnavailable, "database unavailable", gin.H{"status": "unhealthy"}))
			return
		}
		c.JSON(http.StatusOK, resp.OK(gin.H{"status": "healthy"}))
	})
	r.GET("/metrics", mdw.MetricsHandler())

	r.HandleMethodNotAllowed = true
	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, resp.Error(resp.CodeNotFound, ""))
	})
	r.NoMethod(func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, resp.Error(http.StatusMethodNotAllowed, "Method Not Allowed"))
	})

	var reg Registry
	reg.Register(d.Auth, d.Users, d.Todos, d.Admin)
	reg.MountAll(&r.RouterGroup)
	return r
}

func ginMode(env string) string {
	switch env {
	case "prod", "production":
		return gin.ReleaseMode
	case "test":
		return gin.TestMode
	}
	return gin.DebugMode
}
