// Package otp issues and verifies one-time check-in codes. Every call runs
// inside the caller's unit of work and persists its outcome there.
package otp

import (
	"context"
	"crypto/subtle"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"clinicq/queue-service/internal/models"
	"clinicq/queue-service/internal/store"
)

const instrumentation = "clinicq/queue-service/internal/otp"

// ErrNoActiveCode is returned by Verify when the phone has no unconsumed,
// unexpired code left. It reads as store.ErrInvalidOrExpiredOTP to clients.
var ErrNoActiveCode = fmt.Errorf("no active code: %w", store.ErrInvalidOrExpiredOTP)

type Config struct {
	CodeLength  int
	TTL         time.Duration
	MaxAttempts int
}

func (c Config) withDefaults() Config {
	if c.CodeLength <= 0 {
		c.CodeLength = 6
	}
	if c.TTL <= 0 {
		c.TTL = 5 * time.Minute
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	return c
}

type Verifier struct {
	cfg      Config
	now      func() time.Time
	generate func(length int) (string, error)
	tracer   trace.Tracer
	outcomes metric.Int64Counter
}

type Option func(*Verifier)

func WithClock(now func() time.Time) Option {
	return func(v *Verifier) { v.now = now }
}

func WithGenerator(generate func(length int) (string, error)) Option {
	return func(v *Verifier) { v.generate = generate }
}

func NewVerifier(cfg Config, opts ...Option) *Verifier {
	v := &Verifier{
		cfg:      cfg.withDefaults(),
		now:      time.Now,
		generate: GenerateCode,
		tracer:   otel.Tracer(instrumentation),
	}
	for _, opt := range opts {
		opt(v)
	}
	counter, err := otel.Meter(instrumentation).Int64Counter(
		"otp.outcomes",
		metric.WithDescription("OTP issue and verification outcomes"),
	)
	if err == nil {
		v.outcomes = counter
	}
	return v
}

func (v *Verifier) CodeLength() int {
	return v.cfg.CodeLength
}

type IssueInput struct {
	Phone     string
	PatientID *int64
	// TTL overrides the configured lifetime for this channel when set.
	TTL time.Duration
}

type Issued struct {
	Record models.OTPRecord
	Resent bool
}

// Issue returns the phone's active code, counting the resend, or creates a new one.
func (v *Verifier) Issue(ctx context.Context, tx store.Tx, in IssueInput) (Issued, error) {
	ctx, span := v.tracer.Start(ctx, "otp.Issue")
	defer span.End()

	now := v.now()
	if err := tx.ExpireStaleOTPs(ctx, in.Phone, now); err != nil {
		return Issued{}, v.fail(ctx, span, "issue", err)
	}

	record, ok, err := tx.FindActiveOTP(ctx, in.Phone)
	if err != nil {
		return Issued{}, v.fail(ctx, span, "issue", err)
	}
	if ok && record.Usable(now) {
		if record.RetryCount >= record.MaxAttempts {
			return Issued{}, v.fail(ctx, span, "issue", store.ErrOTPRequestsExceeded)
		}
		record.RetryCount++
		record.UpdatedAt = now
		if record.PatientID == nil {
			record.PatientID = in.PatientID
		}
		if err := tx.UpdateOTP(ctx, record); err != nil {
			return Issued{}, v.fail(ctx, span, "issue", err)
		}
		v.record(ctx, "resent")
		return Issued{Record: record, Resent: true}, nil
	}

	code, err := v.generate(v.cfg.CodeLength)
	if err != nil {
		return Issued{}, v.fail(ctx, span, "issue", err)
	}
	ttl := in.TTL
	if ttl <= 0 {
		ttl = v.cfg.TTL
	}
	record, err = tx.CreateOTP(ctx, models.OTPRecord{
		PhoneNumber: in.Phone,
		OTPCode:     code,
		MaxAttempts: v.cfg.MaxAttempts,
		PatientID:   in.PatientID,
		CreatedAt:   now,
		ExpiresAt:   now.Add(ttl),
		UpdatedAt:   now,
	})
	if err != nil {
		return Issued{}, v.fail(ctx, span, "issue", err)
	}
	v.record(ctx, "issued")
	return Issued{Record: record}, nil
}

type Verified struct {
	Record models.OTPRecord
}

// Verify consumes the phone's active code. Failures that change the record
// (attempt counter, expiry flag) are wrapped with store.CommitWith.
func (v *Verifier) Verify(ctx context.Context, tx store.Tx, phone, code string) (Verified, error) {
	ctx, span := v.tracer.Start(ctx, "otp.Verify")
	defer span.End()

	out, err := v.verify(ctx, tx, phone, code)
	if err != nil {
		return Verified{}, v.fail(ctx, span, "verify", err)
	}
	v.record(ctx, "verified")
	return out, nil
}

func (v *Verifier) verify(ctx context.Context, tx store.Tx, phone, code string) (Verified, error) {
	if !ValidCode(code, v.cfg.CodeLength) {
		return Verified{}, store.ErrInvalidOTPFormat
	}

	now := v.now()
	record, ok, err := tx.FindActiveOTP(ctx, phone)
	if err != nil {
		return Verified{}, err
	}
	if !ok {
		return Verified{}, ErrNoActiveCode
	}

	if !now.Before(record.ExpiresAt) {
		record.IsExpired = true
		record.UpdatedAt = now
		if err := tx.UpdateOTP(ctx, record); err != nil {
			return Verified{}, err
		}
		return Verified{}, store.CommitWith(store.ErrInvalidOrExpiredOTP)
	}

	if record.RetryCount >= record.MaxAttempts {
		record.IsExpired = true
		record.UpdatedAt = now
		if err := tx.UpdateOTP(ctx, record); err != nil {
			return Verified{}, err
		}
		return Verified{}, store.CommitWith(store.ErrAttemptsExceeded)
	}

	if !sameCode(record.OTPCode, code) {
		record.RetryCount++
		record.UpdatedAt = now
		if err := tx.UpdateOTP(ctx, record); err != nil {
			return Verified{}, err
		}
		return Verified{}, store.CommitWith(store.ErrInvalidOrExpiredOTP)
	}

	record.IsVerified = true
	record.VerifiedAt = &now
	record.UpdatedAt = now
	if err := tx.UpdateOTP(ctx, record); err != nil {
		return Verified{}, err
	}
	return Verified{Record: record}, nil
}

// Consumed returns the phone's latest record when it was already verified
// with code and is still inside its lifetime. It grants nothing and changes
// nothing; callers use it to answer a repeated check-in with what the first
// one produced.
func (v *Verifier) Consumed(ctx context.Context, tx store.Tx, phone, code string) (models.OTPRecord, bool, error) {
	if !ValidCode(code, v.cfg.CodeLength) {
		return models.OTPRecord{}, false, nil
	}
	latest, ok, err := tx.LatestOTP(ctx, phone)
	if err != nil {
		return models.OTPRecord{}, false, err
	}
	if !ok || !latest.IsVerified || !v.now().Before(latest.ExpiresAt) || !sameCode(latest.OTPCode, code) {
		return models.OTPRecord{}, false, nil
	}
	v.record(ctx, "replayed")
	return latest, true, nil
}

func sameCode(want, got string) bool {
	return subtle.ConstantTimeCompare([]byte(want), []byte(got)) == 1
}

func (v *Verifier) fail(ctx context.Context, span trace.Span, op string, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	v.record(ctx, op+"_failed")
	return err
}

func (v *Verifier) record(ctx context.Context, outcome string) {
	if v.outcomes == nil {
		return
	}
	v.outcomes.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}
