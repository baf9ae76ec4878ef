package service

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"go-gin-todo-auth/internal/repo"
)

var purgedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{Name: "retention_purged_total", Help: "Rows permanently removed by the retention sweep"},
	[]string{"kind"},
)

func init() { prometheus.MustRegister(purgedTotal) }

type PurgeResult struct {
	UsersPurged     int       `json:"users_purged"`
	UserIDs         []string  `json:"user_ids"`
	UserTodosPurged int64     `json:"user_todos_purged"`
	TodosPurged     int64     `json:"todos_purged"`
	UserCutoff      time.Time `json:"user_cutoff"`
	TodoCutoff      time.Time `json:"todo_cutoff"`
	FinishedAt      time.Time `json:"finished_at"`
}

// Sweeper 物理删除超过保留期的软删除数据；并发调用合并为一次
type Sweeper struct {
	tx     Tx
	policy Policy
	l      *zap.Logger
	sf     singleflight.Group
}

func NewSweeper(tx Tx, p Policy, l *zap.Logger) *Sweeper {
	return &Sweeper{tx: tx, policy: p, l: l}
}

func (s *Sweeper) Purge(ctx context.Context) (*PurgeResult, error) {
	// 合并执行时不受发起者取消的影响
	v, err, shared := s.sf.Do("purge", func() (any, error) { return s.purge(context.WithoutCancel(ctx)) })
	if err != nil {
		return nil, err
	}
	if shared {
		s.l.Debug("retention sweep shared with concurrent caller")
	}
	return v.(*PurgeResult), nil
}

func (s *Sweeper) purge(ctx context.Context) (*PurgeResult, error) {
	now := s.policy.now()
	res := &PurgeResult{
		UserIDs:    []string{},
		UserCutoff: now.Add(-s.policy.UserRetention),
		TodoCutoff: now.Add(-s.policy.TodoRetention),
	}
	err := s.tx.InTx(ctx, func(r repo.Repos) error {
		users, err := r.Users.FindPurgeable(ctx, res.UserCutoff)
		if err != nil {
			return err
		}
		for _, u := range users {
			res.UserIDs = append(res.UserIDs, u.ID)
		}
		if len(users) > 0 {
			if res.UserTodosPurged, err = r.Todos.DeleteByOwners(ctx, res.UserIDs); err != nil {
				return err
			}
			for _, u := range users {
				if err := r.Users.Delete(ctx, u.ID); err != nil {
					return err
				}
				s.l.Info("purged deleted user", zap.String("user_id", u.ID), zap.String("email", u.Email))
			}
		}
		res.TodosPurged, err = r.Todos.PurgeDeleted(ctx, res.TodoCutoff)
		return err
	})
	if err != nil {
		s.l.Error("retention sweep failed", zap.Error(err))
		return nil, err
	}
	res.UsersPurged = len(res.UserIDs)
	res.FinishedAt = s.policy.now()

	purgedTotal.WithLabelValues("user").Add(float64(res.UsersPurged))
	purgedTotal.WithLabelValues("todo").Add(float64(res.UserTodosPurged + res.TodosPurged))
	s.l.Info("retention sweep finished",
		zap.Int("users", res.UsersPurged),
		zap.Int64("user_todos", res.UserTodosPurged),
		zap.Int64("todos", res.TodosPurged))
	return res, nil
}
