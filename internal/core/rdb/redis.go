package rdb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"go-gin-todo-auth/internal/core/config"
)

var ErrNotConfigured = errors.New("redis addr not configured")

// New 建立连接并 Ping，失败时关闭 client
func New(ctx context.Context, c config.Redis) (*redis.Client, error) {
	if c.Addr == "" {
		return nil, ErrNotConfigured
	}
	cl := redis.NewClient(&redis.Options{
		Addr:         c.Addr,
		Password:     c.Password,
		DB:           c.DB,
		DialTimeout:  3 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := cl.Ping(pctx).Err(); err != nil {
		_ = cl.Close()
		return nil, fmt.Errorf("redis ping %s: %w", c.Addr, err)
	}
	return cl, nil
}
