// internal/app/system/mailer/smtp.go
package mailer

import (
	"context"
	"errors"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SMTP sends mail through an SMTP relay (Mailpit in development, the SES
// SMTP endpoint or any other relay in production).
type SMTP struct {
	host     string
	port     int
	username string
	password string
	from     string
	fromName string
	log      *zap.Logger

	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewSMTP validates cfg and returns an SMTP sender. Port defaults to 587.
func NewSMTP(cfg Config, logger *zap.Logger) (*SMTP, error) {
	if strings.TrimSpace(cfg.SMTPHost) == "" {
		return nil, errors.New("mailer: smtp host is required")
	}
	if strings.TrimSpace(cfg.From) == "" {
		return nil, errors.New("mailer: from address is required")
	}
	port := cfg.SMTPPort
	if port == 0 {
		port = 587
	}
	return &SMTP{
		host:     cfg.SMTPHost,
		port:     port,
		username: cfg.SMTPUser,
		password: cfg.SMTPPass,
		from:     cfg.From,
		fromName: cfg.FromName,
		log:      logger,
		sendMail: smtp.SendMail,
	}, nil
}

func (s *SMTP) Send(ctx context.Context, msg Email) error {
	to, err := validate(msg)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	var auth smtp.Auth
	if strings.TrimSpace(s.username) != "" {
		auth = smtp.PlainAuth("", s.username, s.password, s.host)
	}

	addr := fmt.Sprintf("%s:%d", s.host, s.port)
	if err := s.sendMail(addr, auth, s.from, []string{to}, s.buildMessage(to, msg)); err != nil {
		return fmt.Errorf("smtp send to %s: %w", to, err)
	}
	s.log.Debug("email sent", zap.String("backend", BackendSMTP), zap.String("to", to))
	return nil
}

// buildMessage renders a plain or multipart/alternative message.
func (s *SMTP) buildMessage(to string, msg Email) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", fromHeader(s.from, s.fromName))
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", msg.Subject)
	b.WriteString("MIME-Version: 1.0\r\n")

	if msg.HTMLBody == "" {
		b.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n\r\n")
		b.WriteString(msg.TextBody)
		return []byte(b.String())
	}

	boundary := "spendhub-" + uuid.NewString()
	fmt.Fprintf(&b, "Content-Type: multipart/alternative; boundary=%q\r\n\r\n", boundary)
	fmt.Fprintf(&b, "--%s\r\nContent-Type: text/plain; charset=\"UTF-8\"\r\n\r\n%s\r\n", boundary, msg.TextBody)
	fmt.Fprintf(&b, "--%s\r\nContent-Type: text/html; charset=\"UTF-8\"\r\n\r\n%s\r\n", boundary, msg.HTMLBody)
	fmt.Fprintf(&b, "--%s--\r\n", boundary)
	return []byte(b.String())
}
