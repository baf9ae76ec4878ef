package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

type Job func(ctx context.Context) (any, error)

// Status 对外展示的调度状态快照
type Status struct {
	Name       string     `json:"name"`
	Enabled    bool       `json:"enabled"`
	Schedule   string     `json:"schedule"`
	Running    bool       `json:"running"`
	NextRun    *time.Time `json:"next_run,omitempty"`
	LastRun    *time.Time `json:"last_run,omitempty"`
	LastResult any        `json:"last_result,omitempty"`
	LastError  string     `json:"last_error,omitempty"`
	Runs       int        `json:"runs"`
}

// Daily 每天 UTC hour:minute 执行一次 job
type Daily struct {
	name   string
	hour   int
	minute int
	job    Job
	l      *zap.Logger

	now   func() time.Time
	after func(time.Duration) <-chan time.Time

	mu      sync.Mutex
	st      Status
	running int
}

func NewDaily(name string, hour, minute int, enabled bool, job Job, l *zap.Logger) *Daily {
	return &Daily{
		name:   name,
		hour:   hour,
		minute: minute,
		job:    job,
		l:      l.With(zap.String("job", name)),
		now:    time.Now,
		after:  time.After,
		st: Status{
			Name:     name,
			Enabled:  enabled,
			Schedule: fmt.Sprintf("%02d:%02d UTC", hour, minute),
		},
	}
}

// Next 严格晚于 t 的下一次执行时间
func (d *Daily) Next(t time.Time) time.Time {
	t = t.UTC()
	n := time.Date(t.Year(), t.Month(), t.Day(), d.hour, d.minute, 0, 0, time.UTC)
	if !n.After(t) {
		n = n.AddDate(0, 0, 1)
	}
	return n
}

// Run 阻塞直到 ctx 取消
func (d *Daily) Run(ctx context.Context) error {
	d.l.Info("scheduler started", zap.String("schedule", d.st.Schedule))
	for {
		next := d.Next(d.now())
		d.mu.Lock()
		d.st.NextRun = &next
		d.mu.Unlock()

		select {
		case <-ctx.Done():
			d.l.Info("scheduler stopped")
			return nil
		case <-d.after(time.Until(next)):
			if _, err := d.RunNow(ctx); err != nil && ctx.Err() != nil {
				return nil
			}
		}
	}
}

// RunNow 同步执行一次并记录结果
func (d *Daily) RunNow(ctx context.Context) (any, error) {
	d.mu.Lock()
	d.running++
	d.st.Running = true
	d.mu.Unlock()

	start := d.now().UTC()
	res, err := d.job(ctx)

	d.mu.Lock()
	defer d.mu.Unlock()
	d.running--
	d.st.Running = d.running > 0
	d.st.LastRun = &start
	d.st.Runs++
	if err != nil {
		d.st.LastError = err.Error()
		d.st.LastResult = nil
		d.l.Error("scheduled job failed", zap.Error(err))
		return nil, err
	}
	d.st.LastError = ""
	d.st.LastResult = res
	d.l.Info("scheduled job finished", zap.Duration("took", d.now().Sub(start)))
	return res, nil
}

// Trigger 后台执行一次，不受请求 ctx 取消影响
func (d *Daily) Trigger(ctx context.Context) {
	bg := context.WithoutCancel(ctx)
	go func() {
		_, _ = d.RunNow(bg)
	}()
}

func (d *Daily) Status() Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	st := d.st
	return st
}
