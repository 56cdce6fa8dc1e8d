package models

import "time"

type OTPRecord struct {
	OTPID       int64      `json:"otp_id"`
	PhoneNumber string     `json:"phone_number"`
	OTPCode     string     `json:"-"`
	IsVerified  bool       `json:"is_verified"`
	IsExpired   bool       `json:"is_expired"`
	RetryCount  int        `json:"retry_count"`
	MaxAttempts int        `json:"max_attempts"`
	PatientID   *int64     `json:"patient_id,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	VerifiedAt  *time.Time `json:"verified_at,omitempty"`
	ExpiresAt   time.Time  `json:"expires_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Usable reports whether the record can still satisfy a verification at now.
func (r OTPRecord) Usable(now time.Time) bool {
	return !r.IsVerified && !r.IsExpired && now.Before(r.ExpiresAt)
}
