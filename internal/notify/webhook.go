package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

type WebhookProvider struct {
	client *resty.Client
	url    string
}

type webhookPayload struct {
	Channel   string `json:"channel"`
	Recipient string `json:"recipient"`
	Message   string `json:"message"`
}

func NewWebhookProvider(url, token string, timeout time.Duration) *WebhookProvider {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	// one attempt per message; failures are logged by the caller
	client := resty.New().
		SetTimeout(timeout).
		SetRetryCount(0).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	if token != "" {
		client.SetAuthToken(token)
	}
	return &WebhookProvider{client: client, url: url}
}

func (p *WebhookProvider) Send(ctx context.Context, recipient, message string) error {
	resp, err := p.client.R().
		SetContext(ctx).
		SetBody(webhookPayload{Channel: "sms", Recipient: recipient, Message: message}).
		Post(p.url)
	if err != nil {
		return fmt.Errorf("sms webhook: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("sms webhook rejected request: status %d", resp.StatusCode())
	}
	return nil
}
