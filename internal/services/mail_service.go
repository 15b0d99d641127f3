package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"feedbackhub/internal/config"

	"github.com/codeGROOVE-dev/retry"
	"gopkg.in/gomail.v2"
)

type Email struct {
	To       string
	ToName   string
	Subject  string
	HTMLBody string
	TextBody string
	Headers  map[string]string // e.g. List-Unsubscribe
}

// Mailer 邮件发送方
type Mailer interface {
	Send(ctx context.Context, email Email) error
}

// NewMailer SMTP 未配置时退化为只写日志
func NewMailer(cfg *config.Config, log *slog.Logger) Mailer {
	if !cfg.SMTPEnabled() {
		log.Warn("MailService disabled: missing SMTP configuration, emails will be logged only")
		return &LogMailer{log: log}
	}
	return &SMTPMailer{
		dialer:   gomail.NewDialer(cfg.Email.SMTPHost, cfg.Email.SMTPPort, cfg.Email.SMTPUsername, cfg.Email.SMTPPassword),
		from:     cfg.Email.FromEmail,
		fromName: cfg.Email.FromName,
		log:      log,
	}
}

type SMTPMailer struct {
	dialer   *gomail.Dialer
	from     string
	fromName string
	log      *slog.Logger
}

func (m *SMTPMailer) Send(ctx context.Context, email Email) error {
	msg := gomail.NewMessage()
	msg.SetAddressHeader("From", m.from, m.fromName)
	if email.ToName != "" {
		msg.SetAddressHeader("To", email.To, email.ToName)
	} else {
		msg.SetHeader("To", email.To)
	}
	msg.SetHeader("Subject", email.Subject)
	for k, v := range email.Headers {
		msg.SetHeader(k, v)
	}
	if email.TextBody != "" {
		msg.SetBody("text/plain", email.TextBody)
		msg.AddAlternative("text/html", email.HTMLBody)
	} else {
		msg.SetBody("text/html", email.HTMLBody)
	}

	// 只重试连接层面的失败，单次投递内部不会重复发送同一封
	err := retry.Do(
		func() error {
			return m.dialer.DialAndSend(msg)
		},
		retry.Attempts(3),
		retry.Delay(time.Second),
		retry.MaxDelay(10*time.Second),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			m.log.Warn("SMTP send failed, retrying", "to", email.To, "attempt", n+1, "error", err)
		}),
	)
	if err != nil {
		return fmt.Errorf("send email to %s: %w", email.To, err)
	}
	m.log.Info("email sent", "to", email.To, "subject", email.Subject)
	return nil
}

// LogMailer 开发环境或未配置 SMTP 时使用
type LogMailer struct {
	log *slog.Logger
}

func NewLogMailer(log *slog.Logger) *LogMailer {
	return &LogMailer{log: log}
}

func (m *LogMailer) Send(ctx context.Context, email Email) error {
	m.log.Info("email (not sent, SMTP disabled)",
		"to", email.To,
		"subject", email.Subject,
		"unsubscribe", email.Headers["List-Unsubscribe"],
	)
	return nil
}
