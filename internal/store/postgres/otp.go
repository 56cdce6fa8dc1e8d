package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"clinicq/queue-service/internal/models"
	"clinicq/queue-service/internal/store"
)

const otpColumns = `otp_id, phone_number, otp_code, is_verified, is_expired, retry_count, max_attempts,
	patient_id, created_at, verified_at, expires_at, updated_at`

func scanOTP(row pgx.Row) (models.OTPRecord, bool, error) {
	var r models.OTPRecord
	err := row.Scan(&r.OTPID, &r.PhoneNumber, &r.OTPCode, &r.IsVerified, &r.IsExpired, &r.RetryCount, &r.MaxAttempts,
		&r.PatientID, &r.CreatedAt, &r.VerifiedAt, &r.ExpiresAt, &r.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.OTPRecord{}, false, nil
	}
	if err != nil {
		return models.OTPRecord{}, false, err
	}
	return r, true, nil
}

// FindActiveOTP locks the newest unverified, unexpired record of phone.
func (t *pgTx) FindActiveOTP(ctx context.Context, phone string) (models.OTPRecord, bool, error) {
	return scanOTP(t.tx.QueryRow(ctx, `
		SELECT `+otpColumns+`
		FROM otp_verifications
		WHERE phone_number = $1 AND NOT is_verified AND NOT is_expired
		ORDER BY otp_id DESC
		LIMIT 1
		FOR UPDATE
	`, phone))
}

func (t *pgTx) LatestOTP(ctx context.Context, phone string) (models.OTPRecord, bool, error) {
	return scanOTP(t.tx.QueryRow(ctx, `
		SELECT `+otpColumns+`
		FROM otp_verifications
		WHERE phone_number = $1
		ORDER BY otp_id DESC
		LIMIT 1
		FOR UPDATE
	`, phone))
}

func (t *pgTx) ExpireStaleOTPs(ctx context.Context, phone string, now time.Time) error {
	_, err := t.tx.Exec(ctx, `
		UPDATE otp_verifications
		SET is_expired = TRUE, updated_at = $2
		WHERE phone_number = $1 AND NOT is_verified AND NOT is_expired AND expires_at <= $2
	`, phone, now)
	return err
}

func (t *pgTx) CreateOTP(ctx context.Context, r models.OTPRecord) (models.OTPRecord, error) {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = t.now()
	}
	if r.UpdatedAt.IsZero() {
		r.UpdatedAt = r.CreatedAt
	}
	row := t.tx.QueryRow(ctx, `
		INSERT INTO otp_verifications (
			phone_number, otp_code, is_verified, is_expired, retry_count, max_attempts,
			patient_id, created_at, verified_at, expires_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		RETURNING otp_id
	`, r.PhoneNumber, r.OTPCode, r.IsVerified, r.IsExpired, r.RetryCount, r.MaxAttempts,
		r.PatientID, r.CreatedAt, r.VerifiedAt, r.ExpiresAt, r.UpdatedAt)
	if err := row.Scan(&r.OTPID); err != nil {
		return models.OTPRecord{}, err
	}
	return r, nil
}

func (t *pgTx) UpdateOTP(ctx context.Context, r models.OTPRecord) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE otp_verifications SET
			otp_code = $2, is_verified = $3, is_expired = $4, retry_count = $5, max_attempts = $6,
			patient_id = $7, verified_at = $8, expires_at = $9, updated_at = $10
		WHERE otp_id = $1
	`, r.OTPID, r.OTPCode, r.IsVerified, r.IsExpired, r.RetryCount, r.MaxAttempts,
		r.PatientID, r.VerifiedAt, r.ExpiresAt, r.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrInvalidOrExpiredOTP
	}
	return nil
}
