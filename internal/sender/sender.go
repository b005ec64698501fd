// Package sender holds the outbound email and SMS provider contracts.
package sender

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"planify-notification/internal/render"
	"planify-notification/pkg/config"
	"planify-notification/pkg/logger"
	"planify-notification/pkg/resilience"
)

// EmailSender delivers one HTML email and returns the provider message id.
type EmailSender interface {
	Send(ctx context.Context, to, subject, html string) (string, error)
}

// SMSSender delivers one SMS and returns the provider message id.
type SMSSender interface {
	Send(ctx context.Context, to, body string) (string, error)
}

// LogEmailSender records emails in the log instead of calling a provider.
type LogEmailSender struct {
	logger *zap.Logger
}

func NewLogEmailSender(logger *zap.Logger) *LogEmailSender {
	return &LogEmailSender{logger: logger}
}

func (s *LogEmailSender) Send(ctx context.Context, to, subject, html string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	id := uuid.NewString()
	logger.WithTrace(ctx, s.logger).Info("email sent",
		zap.String("message_id", id),
		zap.String("to", to),
		zap.String("subject", subject),
		zap.Int("body_size", len(html)),
	)
	return id, nil
}

// LogSMSSender records SMS messages in the log instead of calling a provider.
type LogSMSSender struct {
	logger *zap.Logger
}

func NewLogSMSSender(logger *zap.Logger) *LogSMSSender {
	return &LogSMSSender{logger: logger}
}

func (s *LogSMSSender) Send(ctx context.Context, to, body string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	id := uuid.NewString()
	logger.WithTrace(ctx, s.logger).Info("sms sent",
		zap.String("message_id", id),
		zap.String("to", to),
		zap.String("body", render.TruncateSMS(body, render.MaxSMSLength)),
	)
	return id, nil
}

type policyEmail struct {
	next   EmailSender
	policy *resilience.Policy
}

// EmailWithPolicy runs every send through the resilience policy.
func EmailWithPolicy(next EmailSender, policy *resilience.Policy) EmailSender {
	return &policyEmail{next: next, policy: policy}
}

func (p *policyEmail) Send(ctx context.Context, to, subject, html string) (string, error) {
	var id string
	err := p.policy.Execute(ctx, func(ctx context.Context) error {
		var err error
		id, err = p.next.Send(ctx, to, subject, html)
		return err
	})
	return id, err
}

type policySMS struct {
	next   SMSSender
	policy *resilience.Policy
}

// SMSWithPolicy runs every send through the resilience policy.
func SMSWithPolicy(next SMSSender, policy *resilience.Policy) SMSSender {
	return &policySMS{next: next, policy: policy}
}

func (p *policySMS) Send(ctx context.Context, to, body string) (string, error) {
	var id string
	err := p.policy.Execute(ctx, func(ctx context.Context) error {
		var err error
		id, err = p.next.Send(ctx, to, body)
		return err
	})
	return id, err
}

// Resilient wraps each sender in its own policy ("email" and "sms"), so each
// channel has a separate breaker and bulkhead.
func Resilient(email EmailSender, sms SMSSender, emailCfg, smsCfg config.ResilienceConfig, logger *zap.Logger) (EmailSender, SMSSender) {
	emailPolicy := resilience.NewPolicy("email", emailCfg, resilience.WithLogger(logger))
	smsPolicy := resilience.NewPolicy("sms", smsCfg, resilience.WithLogger(logger))
	return EmailWithPolicy(email, emailPolicy), SMSWithPolicy(sms, smsPolicy)
}
