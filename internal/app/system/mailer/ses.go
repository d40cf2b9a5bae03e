// internal/app/system/mailer/ses.go
package mailer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"go.uber.org/zap"
)

// SESAPI is the subset of the SES v2 client the sender needs.
type SESAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// SES sends mail through the Amazon SES v2 API.
type SES struct {
	client   SESAPI
	from     string
	fromName string
	log      *zap.Logger
}

// NewSES loads the default AWS configuration for cfg.SESRegion and returns
// an SES sender.
func NewSES(ctx context.Context, cfg Config, logger *zap.Logger) (*SES, error) {
	if strings.TrimSpace(cfg.From) == "" {
		return nil, errors.New("mailer: from address is required")
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.SESRegion))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	logger.Info("email service enabled",
		zap.String("backend", BackendSES),
		zap.String("from", cfg.From),
		zap.String("region", cfg.SESRegion))
	return NewSESWithClient(sesv2.NewFromConfig(awsCfg), cfg, logger), nil
}

// NewSESWithClient wraps an existing client.
func NewSESWithClient(client SESAPI, cfg Config, logger *zap.Logger) *SES {
	return &SES{client: client, from: cfg.From, fromName: cfg.FromName, log: logger}
}

func (s *SES) Send(ctx context.Context, msg Email) error {
	to, err := validate(msg)
	if err != nil {
		return err
	}

	body := &types.Body{
		Text: &types.Content{Data: aws.String(msg.TextBody), Charset: aws.String("UTF-8")},
	}
	if msg.HTMLBody != "" {
		body.Html = &types.Content{Data: aws.String(msg.HTMLBody), Charset: aws.String("UTF-8")}
	}

	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(fromHeader(s.from, s.fromName)),
		Destination: &types.Destination{
			ToAddresses: []string{to},
		},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(msg.Subject), Charset: aws.String("UTF-8")},
				Body:    body,
			},
		},
	}

	out, err := s.client.SendEmail(ctx, input)
	if err != nil {
		return fmt.Errorf("ses send to %s: %w", to, err)
	}
	s.log.Debug("email sent",
		zap.String("backend", BackendSES),
		zap.String("to", to),
		zap.String("message_id", aws.ToString(out.MessageId)))
	return nil
}
