// Package notify delivers supplier-facing notifications. Dispatch is
// queue-backed so a slow SMTP server never holds a workflow transition.
package notify

import (
	"context"
	"fmt"
	"net/smtp"

	"github.com/jordan-wright/email"

	"github.com/stockroom-wms/stockroom/jobs"
)

// MailerConfig holds SMTP settings.
type MailerConfig struct {
	Host string
	Port int
	User string
	Pass string
	From string
}

// Mailer sends e-mail over SMTP. Implements jobs.Mailer.
type Mailer struct {
	cfg MailerConfig
}

// NewMailer constructs a Mailer.
func NewMailer(cfg MailerConfig) *Mailer {
	return &Mailer{cfg: cfg}
}

// Send delivers one message, attaching the PDF when present.
func (m *Mailer) Send(ctx context.Context, payload jobs.SendEmailPayload) error {
	msg := email.NewEmail()
	msg.From = m.cfg.From
	msg.To = []string{payload.To}
	msg.Subject = payload.Subject
	msg.HTML = []byte(payload.HTMLBody)
	if len(payload.Attachment) > 0 {
		filename := payload.Filename
		if filename == "" {
			filename = "document.pdf"
		}
		if _, err := msg.Attach(bytesReader(payload.Attachment), filename, "application/pdf"); err != nil {
			return fmt.Errorf("attach %s: %w", filename, err)
		}
	}

	addr := fmt.Sprintf("%s:%d", m.cfg.Host, m.cfg.Port)
	var auth smtp.Auth
	if m.cfg.User != "" {
		auth = smtp.PlainAuth("", m.cfg.User, m.cfg.Pass, m.cfg.Host)
	}
	if err := msg.Send(addr, auth); err != nil {
		return fmt.Errorf("send mail to %s: %w", payload.To, err)
	}
	return nil
}
