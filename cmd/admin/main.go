package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "go.uber.org/automaxprocs"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"go-gin-todo-auth/internal/core/config"
	"go-gin-todo-auth/internal/core/database"
	"go-gin-todo-auth/internal/core/logger"
	"go-gin-todo-auth/internal/repo"
	"go-gin-todo-auth/internal/scheduler"
	"go-gin-todo-auth/internal/service"
)

const usage = `usage: admin <command>

commands:
  sweep      run the retention sweep once and print the result
  schedule   print the retention schedule and the next run time
  migrate    create or update the database tables`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
	_ = godotenv.Load()
	cfg := config.Load(os.Getenv("CONFIG_PATH"))
	log, cleanup := logger.FromConfig(cfg.Log)
	defer cleanup()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var err error
	switch os.Args[1] {
	case "sweep":
		err = sweep(ctx, cfg, log)
	case "schedule":
		err = schedule(cfg, log)
	case "migrate":
		err = database.Migrate(mustOpenDB(cfg, log))
		if err == nil {
			log.Info("automigrate done")
		}
	default:
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		log.Error("admin command failed", zap.String("cmd", os.Args[1]), zap.Error(err))
		cleanup()
		os.Exit(1)
	}
}

func sweep(ctx context.Context, cfg *config.Config, l *zap.Logger) error {
	db := mustOpenDB(cfg, l)
	sw := service.NewSweeper(repo.NewStore(db), service.NewPolicy(cfg), l.Named("sweep"))
	res, err := sw.Purge(ctx)
	if err != nil {
		return err
	}
	return printJSON(res)
}

func schedule(cfg *config.Config, l *zap.Logger) error {
	d := scheduler.NewDaily("retention-sweep", cfg.Cleanup.Hour, cfg.Cleanup.Minute, cfg.Cleanup.Enabled, nil, l)
	st := d.Status()
	next := d.Next(time.Now())
	st.NextRun = &next
	return printJSON(struct {
		scheduler.Status
		UserRetentionDays int `json:"user_retention_days"`
		TodoRetentionDays int `json:"todo_retention_days"`
	}{st, cfg.Cleanup.UserRetentionDays, cfg.Cleanup.TodoRetentionDays})
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
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
