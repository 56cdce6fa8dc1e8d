package store

import (
	"errors"
	"fmt"
)

// Error kinds. Every domain error wraps exactly one of them.
var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidState = errors.New("invalid state")
	ErrInvalidInput = errors.New("invalid input")
	ErrRateLimited  = errors.New("rate limited")
	ErrConflict     = errors.New("conflict")
	ErrUnavailable  = errors.New("unavailable")
)

// Error carries a stable, user-facing message and the kind it belongs to.
type Error struct {
	Kind error
	Msg  string
}

func (e *Error) Error() string { return e.Msg }

func (e *Error) Unwrap() error { return e.Kind }

func newError(kind error, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

var (
	ErrTicketNotFound     = newError(ErrNotFound, "Queue ticket not found")
	ErrVisitNotFound      = newError(ErrNotFound, "Visit not found")
	ErrPatientNotFound    = newError(ErrNotFound, "Patient not found")
	ErrDoctorNotFound     = newError(ErrNotFound, "Doctor not found")
	ErrDepartmentNotFound = newError(ErrNotFound, "Department not found")
	ErrAppointmentMissing = newError(ErrNotFound, "Appointment not found")
	ErrNoScheduledVisit   = newError(ErrNotFound, "No appointment scheduled for today.")
	ErrUnregisteredPhone  = newError(ErrNotFound, "Patient not found. Please register first.")

	ErrInvalidOrExpiredOTP = newError(ErrInvalidInput, "Invalid or expired OTP")
	ErrInvalidOTPFormat    = newError(ErrInvalidInput, "OTP code must be numeric with the configured length")
	ErrInvalidStatus       = newError(ErrInvalidInput, "Invalid status. Must be one of: WAITING, CALLED, IN_PROGRESS, COMPLETED, CANCELLED")
	ErrInvalidDate         = newError(ErrInvalidInput, "Invalid date format. Use YYYY-MM-DD")
	ErrNewPatientFields    = newError(ErrInvalidInput, "For new patients: first_name, last_name, and date_of_birth are required")
	ErrNoSearchFilter      = newError(ErrInvalidInput, "At least one search parameter must be provided")
	ErrInvalidJoinMessage  = newError(ErrInvalidInput, "Invalid message. Please text 'JOIN' to check in.")
	ErrPhoneRequired       = newError(ErrInvalidInput, "phone_number is required")
	ErrQRCodeRequired      = newError(ErrInvalidInput, "qr_code_value is required")
	ErrInvalidLimit        = newError(ErrInvalidInput, "limit must be between 1 and the configured maximum")
	ErrInvalidMethod       = newError(ErrInvalidInput, "Invalid check_in_method. Must be one of: OTP, QR_CODE, SMS")
	ErrInvalidID           = newError(ErrInvalidInput, "id must be a positive integer")
	ErrInvalidQuery        = newError(ErrInvalidInput, "Invalid query parameter")

	ErrAlreadyCheckedIn = newError(ErrInvalidState, "You have already checked in.")

	ErrOTPRequestsExceeded = newError(ErrRateLimited, "Maximum OTP request attempts reached. Please try again later.")
	ErrAttemptsExceeded    = newError(ErrRateLimited, "Maximum OTP verification attempts exceeded")
	ErrResendTooSoon       = newError(ErrRateLimited, "Please wait before requesting a new OTP")

	ErrWriteConflict = newError(ErrConflict, "The queue is busy, please retry")
)

// InvalidTransition reports a lifecycle action that the ticket's current status
// does not allow. The message always names the current status.
func InvalidTransition(action, current string) *Error {
	return newError(ErrInvalidState, fmt.Sprintf("Cannot %s appointment. Current status: %s", action, current))
}
