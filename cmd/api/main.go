package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "go.uber.org/automaxprocs"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"go-gin-todo-auth/internal/core/auth"
	"go-gin-todo-auth/internal/core/config"
	"go-gin-todo-auth/internal/core/database"
	"go-gin-todo-auth/internal/core/logger"
	"go-gin-todo-auth/internal/core/rdb"
	"go-gin-todo-auth/internal/core/server"
	"go-gin-todo-auth/internal/notify"
	"go-gin-todo-auth/internal/repo"
	"go-gin-todo-auth/internal/scheduler"
	"go-gin-todo-auth/internal/service"
	"go-gin-todo-auth/internal/transport/http/handler"
	"go-gin-todo-auth/internal/transport/http/router"
)

var version = "dev"

func main() {
	_ = godotenv.Load()
	cfg := config.Load(os.Getenv("CONFIG_PATH"))
	log, cleanup := logger.FromConfig(cfg.Log)
	defer cleanup()
	defer logger.RedirectStdLog(log, zapcore.InfoLevel)()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// DB 连接（失败直接 Fatal）
	db := mustOpenDB(cfg, log)
	log.Info("database connected", zap.String("driver", cfg.DB.Driver))
	if cfg.DB.AutoMigrate {
		if err := database.Migrate(db); err != nil {
			log.Fatal("automigrate failed", zap.Error(err))
		}
		log.Info("automigrate done")
	}

	jwter := &auth.JWTer{
		Secret:     []byte(cfg.JWT.Secret),
		Issuer:     cfg.JWT.Issuer,
		AccessTTL:  cfg.AccessTTL(),
		RefreshTTL: cfg.RefreshTTL(),
		Leeway:     time.Duration(cfg.JWT.LeewaySec) * time.Second,
	}
	store := repo.NewStore(db)
	policy := service.NewPolicy(cfg)

	g, gctx := errgroup.WithContext(ctx)

	// 邮件投递
	sender := notify.NewSender(cfg.Mail, log)
	var mail notify.Dispatcher
	var closeMail func(context.Context) error
	switch cfg.Mail.Queue {
	case "redis":
		cl, err := rdb.New(ctx, cfg.Redis)
		if err != nil {
			log.Fatal("redis connect", zap.Error(err))
		}
		defer cl.Close()
		rd, err := notify.NewRedis(cl, cfg.Mail.QueueKey, log)
		if err != nil {
			log.Fatal("mail queue", zap.Error(err))
		}
		mail = rd
		g.Go(func() error { return rd.Consume(gctx, sender, 5*time.Second) })
		log.Info("mail queue on redis", zap.String("key", cfg.Mail.QueueKey))
	default:
		ad := notify.NewAsync(sender, log, cfg.Mail.Workers, cfg.Mail.Buffer)
		mail = ad
		closeMail = ad.Close
	}

	acc := service.NewAccountService(store, jwter, policy, mail, log.Named("account"))
	todos := service.NewTodoService(store, policy, log.Named("todo"))
	guard := service.NewGuard(store, jwter, policy)
	sweeper := service.NewSweeper(store, policy, log.Named("sweep"))
	daily := scheduler.NewDaily("retention-sweep", cfg.Cleanup.Hour, cfg.Cleanup.Minute, cfg.Cleanup.Enabled,
		func(ctx context.Context) (any, error) { return sweeper.Purge(ctx) }, log)

	r := router.NewAPIEngine(router.Deps{
		Config:  cfg,
		Logger:  log,
		DB:      store,
		Auth:    handler.NewAuthHandler(acc, cfg.Auth.RefreshCookie, log),
		Users:   handler.NewUserHandler(acc, guard, log),
		Todos:   handler.NewTodoHandler(todos, guard, log),
		Admin:   handler.NewAdminHandler(guard, daily, log),
		Version: version,
	})

	// HTTP Server
	addr := server.Addr(cfg.App.HTTP.Host, cfg.App.HTTP.Port)
	srv := server.BuildServer(
		addr, r,
		time.Duration(cfg.App.HTTP.ReadTimeoutSec)*time.Second,
		time.Duration(cfg.App.HTTP.WriteTimeoutSec)*time.Second,
		time.Duration(cfg.App.HTTP.IdleTimeoutSec)*time.Second,
	)
	baseURL := server.HumanURL(cfg.App.HTTP.Host, cfg.App.HTTP.Port)
	log.Info("todo api starting",
		zap.String("addr", addr),
		zap.String("open", baseURL),
		zap.String("health", baseURL+"/health"),
		zap.String("version", version),
	)

	g.Go(func() error { return server.StartHTTP(gctx, srv, log, 10*time.Second) })
	if cfg.Cleanup.Enabled {
		g.Go(func() error { return daily.Run(gctx) })
	} else {
		log.Info("retention sweep disabled")
	}

	if err := g.Wait(); err != nil {
		log.Error("todo api exited with error", zap.Error(err))
	}

	if closeMail != nil {
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := closeMail(sctx); err != nil {
			log.Warn("mail queue not drained", zap.Error(err))
		}
		cancel()
	}
	log.Info("todo api stopped gracefully")
}

func mustOpenDB(cfg *config.Config, l *zap.Logger) *gorm.DB {
	db, err := database.NewGorm(database.Opts{
		Driver:             cfg.DB.Driver,
		DSN:                cfg.DB.DSN,
		Username:           cfg.DB.Username,
		Password:           cfg.DB.Password,
		MaxOpenConns:       cfg.DB.MaxOpenConns,
		MaxIdleConns:       cfg.DB.MaxIdleConns,
		ConnMaxLifetimeMin: cfg.DB.ConnMaxLifetimeMin,
		LogLevel:           cfg.DB.LogLevel,
		Logger:             l,
	})
	if err != nil {
		l.Fatal("db open", zap.Error(err))
	}
	return db
}
