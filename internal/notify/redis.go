package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const pushTimeout = 2 * time.Second

// RedisDispatcher 把邮件 LPUSH 到 redis list，由 Consume 取出发送
type RedisDispatcher struct {
	rdb *redis.Client
	key string
	l   *zap.Logger
}

func NewRedis(rdb *redis.Client, key string, l *zap.Logger) (*RedisDispatcher, error) {
	if rdb == nil {
		return nil, errors.New("redis client is nil")
	}
	if key == "" {
		return nil, errors.New("queue key is empty")
	}
	return &RedisDispatcher{rdb: rdb, key: key, l: l}, nil
}

func (d *RedisDispatcher) Dispatch(m Message) {
	if err := d.Push(context.Background(), m); err != nil {
		mailTotal.WithLabelValues(m.Kind, "dropped").Inc()
		d.l.Error("mail enqueue failed", zap.String("to", m.To), zap.Error(err))
	}
}

func (d *RedisDispatcher) Push(ctx context.Context, m Message) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal mail: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, pushTimeout)
	defer cancel()
	if err := d.rdb.LPush(ctx, d.key, data).Err(); err != nil {
		return fmt.Errorf("lpush mail: %w", err)
	}
	return nil
}

// Pop 阻塞最多 timeout；队列为空返回 (nil, nil)
func (d *RedisDispatcher) Pop(ctx context.Context, timeout time.Duration) (*Message, error) {
	res, err := d.rdb.BRPop(ctx, timeout, d.key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("brpop mail: %w", err)
	}
	if len(res) < 2 {
		return nil, fmt.Errorf("invalid brpop response: %v", res)
	}
	var m Message
	if err := json.Unmarshal([]byte(res[1]), &m); err != nil {
		return nil, fmt.Errorf("unmarshal mail: %w", err)
	}
	return &m, nil
}

// Consume 持续取出并发送，ctx 取消时返回 nil
func (d *RedisDispatcher) Consume(ctx context.Context, s Sender, poll time.Duration) error {
	if poll <= 0 {
		poll = time.Second
	}
	for {
		if ctx.Err() != nil {
			return nil
		}
		m, err := d.Pop(ctx, poll)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			d.l.Warn("mail queue pop failed", zap.Error(err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(poll):
			}
			continue
		}
		if m == nil {
			continue
		}
		deliver(ctx, s, d.l, *m)
	}
}
