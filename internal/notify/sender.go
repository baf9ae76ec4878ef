package notify

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/gomail.v2"

	"go-gin-todo-auth/internal/core/config"
)

type Sender interface {
	Send(ctx context.Context, m Message) error
}

// SMTPSender 通过 gomail 发信，每封邮件单独建连
type SMTPSender struct {
	d    *gomail.Dialer
	from string
}

func NewSMTPSender(c config.Mail) *SMTPSender {
	return &SMTPSender{
		d:    gomail.NewDialer(c.Host, c.Port, c.Username, c.Password),
		from: c.From,
	}
}

func (s *SMTPSender) Send(ctx context.Context, m Message) error {
	if strings.TrimSpace(m.To) == "" {
		return fmt.Errorf("empty recipient")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	gm := gomail.NewMessage()
	gm.SetHeader("From", s.from)
	gm.SetHeader("To", m.To)
	gm.SetHeader("Subject", m.Subject)
	if m.Text != "" {
		gm.SetBody("text/plain", m.Text)
		gm.AddAlternative("text/html", m.HTML)
	} else {
		gm.SetBody("text/html", m.HTML)
	}
	if err := s.d.DialAndSend(gm); err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	return nil
}

// LogSender 未配置 SMTP 时使用，只记录日志
type LogSender struct{ L *zap.Logger }

func (s LogSender) Send(_ context.Context, m Message) error {
	s.L.Info("mail (smtp disabled)",
		zap.String("kind", m.Kind),
		zap.String("to", m.To),
		zap.String("subject", m.Subject))
	return nil
}

// NewSender host 为空时退化为 LogSender
func NewSender(c config.Mail, l *zap.Logger) Sender {
	if strings.TrimSpace(c.Host) == "" {
		l.Warn("mail.host empty, emails will only be logged")
		return LogSender{L: l}
	}
	return NewSMTPSender(c)
}
