// Package checkin orchestrates the patient-facing and clinician-facing flows.
// Each flow runs as one store unit of work; SMS is sent only after commit.
package checkin

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"clinicq/queue-service/internal/notify"
	"clinicq/queue-service/internal/otp"
	"clinicq/queue-service/internal/queue"
	"clinicq/queue-service/internal/store"
)

type Options struct {
	SMSCodeTTL         time.Duration
	ExposeCode         bool
	SearchDefaultLimit int
	SearchMaxLimit     int
}

func (o Options) withDefaults() Options {
	if o.SMSCodeTTL <= 0 {
		o.SMSCodeTTL = 10 * time.Minute
	}
	if o.SearchDefaultLimit <= 0 {
		o.SearchDefaultLimit = 50
	}
	if o.SearchMaxLimit <= 0 {
		o.SearchMaxLimit = 100
	}
	return o
}

type Deps struct {
	Store     store.Store
	Verifier  *otp.Verifier
	Admitter  *queue.Admitter
	Lifecycle *queue.Lifecycle
	Calendar  queue.Calendar
	Sender    notify.Sender
	Throttle  otp.Throttle
	Logger    zerolog.Logger
	Now       func() time.Time
}

type Service struct {
	store     store.Store
	verifier  *otp.Verifier
	admitter  *queue.Admitter
	lifecycle *queue.Lifecycle
	calendar  queue.Calendar
	sender    notify.Sender
	throttle  otp.Throttle
	logger    zerolog.Logger
	now       func() time.Time
	opts      Options
}

func New(deps Deps, opts Options) *Service {
	s := &Service{
		store:     deps.Store,
		verifier:  deps.Verifier,
		admitter:  deps.Admitter,
		lifecycle: deps.Lifecycle,
		calendar:  deps.Calendar,
		sender:    deps.Sender,
		throttle:  deps.Throttle,
		logger:    deps.Logger,
		now:       deps.Now,
		opts:      opts.withDefaults(),
	}
	if s.sender == nil {
		s.sender = notify.NoopProvider{}
	}
	if s.throttle == nil {
		s.throttle = otp.NopThrottle{}
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

func (s *Service) today() time.Time {
	return s.calendar.Day(s.now())
}

// notify sends best effort; failures are logged and never reach the caller.
func (s *Service) notify(ctx context.Context, recipient, message string) {
	if err := s.sender.Send(ctx, recipient, message); err != nil {
		s.logger.Warn().Err(err).Str("recipient", recipient).Msg("sms delivery failed")
	}
}
