package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

type messageCreator interface {
	CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error)
}

type TwilioProvider struct {
	api        messageCreator
	fromNumber string
	timeout    time.Duration
}

func NewTwilioProvider(accountSID, authToken, fromNumber string, timeout time.Duration) *TwilioProvider {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})
	client.SetTimeout(timeout)
	return &TwilioProvider{api: client.Api, fromNumber: fromNumber, timeout: timeout}
}

// Send makes one attempt. The Twilio client takes no context, so the call is
// abandoned once ctx or the provider timeout ends.
func (p *TwilioProvider) Send(ctx context.Context, recipient, message string) error {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	params := &twilioApi.CreateMessageParams{}
	params.SetTo(recipient)
	params.SetFrom(p.fromNumber)
	params.SetBody(message)

	done := make(chan error, 1)
	go func() {
		_, err := p.api.CreateMessage(params)
		done <- err
	}()
	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("twilio send: %w", err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("twilio send: %w", ctx.Err())
	}
}
