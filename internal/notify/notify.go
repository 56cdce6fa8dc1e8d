// Package notify delivers SMS text to patients through a configured provider.
package notify

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
)

type Sender interface {
	Send(ctx context.Context, recipient, message string) error
}

const defaultTimeout = 5 * time.Second

type Config struct {
	Provider     string
	WebhookURL   string
	WebhookToken string
	TwilioSID    string
	TwilioToken  string
	TwilioFrom   string
	Timeout      time.Duration
}

// New picks the provider named by cfg.Provider. Providers missing their
// credentials fall back to logging the message.
func New(cfg Config, logger zerolog.Logger) Sender {
	logger = logger.With().Str("component", "sms").Logger()
	switch cfg.Provider {
	case "", "stub", "log":
		return LogProvider{logger: logger}
	case "noop":
		return NoopProvider{}
	case "fail":
		return FailProvider{}
	case "webhook":
		if cfg.WebhookURL == "" {
			logger.Warn().Msg("SMS_WEBHOOK_URL not set, logging messages instead")
			return LogProvider{logger: logger}
		}
		return NewWebhookProvider(cfg.WebhookURL, cfg.WebhookToken, cfg.Timeout)
	case "twilio":
		if cfg.TwilioSID == "" || cfg.TwilioToken == "" || cfg.TwilioFrom == "" {
			logger.Warn().Msg("twilio credentials not set, logging messages instead")
			return LogProvider{logger: logger}
		}
		return NewTwilioProvider(cfg.TwilioSID, cfg.TwilioToken, cfg.TwilioFrom, cfg.Timeout)
	default:
		logger.Warn().Str("provider", cfg.Provider).Msg("unknown sms provider, logging messages instead")
		return LogProvider{logger: logger}
	}
}

type LogProvider struct {
	logger zerolog.Logger
}

func NewLogProvider(logger zerolog.Logger) LogProvider {
	return LogProvider{logger: logger}
}

func (p LogProvider) Send(ctx context.Context, recipient, message string) error {
	p.logger.Info().Str("recipient", recipient).Str("message", message).Msg("sms")
	return nil
}

type NoopProvider struct{}

func (NoopProvider) Send(ctx context.Context, recipient, message string) error {
	return nil
}

var ErrProviderFailure = errors.New("provider failure")

type FailProvider struct{}

func (FailProvider) Send(ctx context.Context, recipient, message string) error {
	return ErrProviderFailure
}
