package notify

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Dispatcher 只负责投递，不返回发送结果
type Dispatcher interface {
	Dispatch(m Message)
}

var mailTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{Name: "mail_messages_total", Help: "Outgoing mail by kind and result"},
	[]string{"kind", "result"},
)

func init() { prometheus.MustRegister(mailTotal) }

const sendTimeout = 30 * time.Second

func deliver(ctx context.Context, s Sender, l *zap.Logger, m Message) {
	ctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()
	if err := s.Send(ctx, m); err != nil {
		mailTotal.WithLabelValues(m.Kind, "failed").Inc()
		l.Error("mail send failed", zap.String("kind", m.Kind), zap.String("to", m.To), zap.Error(err))
		return
	}
	mailTotal.WithLabelValues(m.Kind, "sent").Inc()
	l.Info("mail sent", zap.String("kind", m.Kind), zap.String("to", m.To))
}

// AsyncDispatcher 有界 channel + 固定数量 worker
type AsyncDispatcher struct {
	s  Sender
	l  *zap.Logger
	ch chan Message
	wg sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

func NewAsync(s Sender, l *zap.Logger, workers, buffer int) *AsyncDispatcher {
	if workers <= 0 {
		workers = 1
	}
	if buffer < 0 {
		buffer = 0
	}
	d := &AsyncDispatcher{s: s, l: l, ch: make(chan Message, buffer)}
	for i := 0; i < workers; i++ {
		d.wg.Add(1)
		go d.work()
	}
	return d
}

func (d *AsyncDispatcher) work() {
	defer d.wg.Done()
	for m := range d.ch {
		deliver(context.Background(), d.s, d.l, m)
	}
}

// Dispatch 缓冲区满或已关闭时丢弃
func (d *AsyncDispatcher) Dispatch(m Message) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		mailTotal.WithLabelValues(m.Kind, "dropped").Inc()
		d.l.Warn("mail dropped: dispatcher closed", zap.String("to", m.To))
		return
	}
	select {
	case d.ch <- m:
	default:
		mailTotal.WithLabelValues(m.Kind, "dropped").Inc()
		d.l.Warn("mail dropped: queue full", zap.String("kind", m.Kind), zap.String("to", m.To))
	}
}

// Close 停止接收并等待队列发完，ctx 到期则放弃等待
func (d *AsyncDispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.ch)
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
