package notify

import (
	"bytes"
	"fmt"
	"html/template"

	"go-gin-todo-auth/internal/domain"
)

const (
	KindVerification = "verification"
	KindStatus       = "status"
)

// Message 入队的邮件；json 用于 redis 队列
type Message struct {
	Kind    string `json:"kind"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	HTML    string `json:"html"`
	Text    string `json:"text,omitempty"`
}

var verificationTpl = template.Must(template.New("verify").Parse(`<html>
<body>
  <p>Hi {{.Name}},</p>
  <p>Please verify your email by clicking the link below:</p>
  <p><a href="{{.URL}}">Verify Email</a></p>
  <p>This link expires in {{.Hours}} hours. If you didn't request this, please ignore this email.</p>
  <p>Best regards,<br>Todo App Team</p>
</body>
</html>`))

var statusTpl = template.Must(template.New("status").Parse(`<html>
<body>
  <p>Hi {{.Name}},</p>
  <p>{{.Line}}</p>
  <p>If you have any questions, please contact our support team.</p>
  <p>Best regards,<br>Todo App Team</p>
</body>
</html>`))

func render(t *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render %s: %w", t.Name(), err)
	}
	return buf.String(), nil
}

// VerificationEmail url 为完整的验证链接
func VerificationEmail(to, name, url string, hours int) (Message, error) {
	html, err := render(verificationTpl, map[string]any{"Name": name, "URL": url, "Hours": hours})
	if err != nil {
		return Message{}, err
	}
	return Message{
		Kind:    KindVerification,
		To:      to,
		Subject: "Verify Your Email - Todo App",
		HTML:    html,
		Text: fmt.Sprintf("Hi %s,\n\nPlease verify your email by opening the link below:\n%s\n\nBest regards,\nTodo App Team\n",
			name, url),
	}, nil
}

// StatusLine 状态变更邮件的正文
func StatusLine(s domain.UserStatus) string {
	switch s {
	case domain.StatusActive:
		return "Your account has been activated successfully!"
	case domain.StatusSuspended:
		return "Your account has been suspended. Please contact support."
	case domain.StatusBanned:
		return "Your account has been banned due to policy violations."
	case domain.StatusInactive:
		return "Your account has been deactivated."
	default:
		return fmt.Sprintf("Your account status has been changed to %s.", s)
	}
}

func StatusChangeEmail(to, name string, s domain.UserStatus) (Message, error) {
	line := StatusLine(s)
	html, err := render(statusTpl, map[string]any{"Name": name, "Line": line})
	if err != nil {
		return Message{}, err
	}
	return Message{
		Kind:    KindStatus,
		To:      to,
		Subject: "Account Status Update - Todo App",
		HTML:    html,
		Text: fmt.Sprintf("Hi %s,\n\n%s\n\nIf you have any questions, please contact our support team.\n\nBest regards,\nTodo App Team\n",
			name, line),
	}, nil
}
