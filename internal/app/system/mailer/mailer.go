// internal/app/system/mailer/mailer.go
package mailer

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"go.uber.org/zap"
)

// Email is one outgoing message. HTMLBody is optional.
type Email struct {
	To       string
	Subject  string
	TextBody string
	HTMLBody string
}

// Sender delivers email.
type Sender interface {
	Send(ctx context.Context, msg Email) error
}

// Backends
const (
	BackendSMTP = "smtp"
	BackendSES  = "ses"
	BackendLog  = "log"
)

// ErrNoRecipient is returned when an Email has no usable To address.
var ErrNoRecipient = errors.New("mailer: recipient address is required")

// Config selects and configures a backend.
type Config struct {
	Backend  string
	From     string
	FromName string

	SMTPHost string
	SMTPPort int
	SMTPUser string
	SMTPPass string

	SESRegion string
}

// New builds the Sender named by cfg.Backend. An empty backend means log.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (Sender, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", BackendLog:
		return NewLog(logger), nil
	case BackendSMTP:
		return NewSMTP(cfg, logger)
	case BackendSES:
		return NewSES(ctx, cfg, logger)
	default:
		return nil, fmt.Errorf("mailer: unknown backend %q", cfg.Backend)
	}
}

// fromHeader formats the From header with an optional display name.
func fromHeader(from, name string) string {
	if name == "" {
		return from
	}
	return (&mail.Address{Name: name, Address: from}).String()
}

func validate(msg Email) (string, error) {
	addr, err := mail.ParseAddress(strings.TrimSpace(msg.To))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNoRecipient, err)
	}
	return addr.Address, nil
}

// Log is a Sender that only logs. It is the development default.
type Log struct {
	log *zap.Logger
}

// NewLog returns a log-only sender.
func NewLog(logger *zap.Logger) *Log {
	return &Log{log: logger}
}

func (l *Log) Send(_ context.Context, msg Email) error {
	to, err := validate(msg)
	if err != nil {
		return err
	}
	l.log.Info("email (log backend)",
		zap.String("to", to),
		zap.String("subject", msg.Subject),
		zap.String("body", msg.TextBody))
	return nil
}
