package checkin

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"clinicq/queue-service/internal/models"
	"clinicq/queue-service/internal/otp"
	"clinicq/queue-service/internal/queue"
	"clinicq/queue-service/internal/store"
)

const (
	MsgCheckedIn        = "Check-in successful"
	MsgAlreadyCheckedIn = "Already checked in for today"
	MsgOTPSent          = "OTP sent successfully"
	MsgOTPResent        = "OTP resent successfully"
	MsgSMSCodeSent      = "OTP sent to your phone. Please reply with the code."
)

type OTPSent struct {
	Message   string    `json:"message"`
	OTPID     int64     `json:"otp_id"`
	ExpiresAt time.Time `json:"expires_at"`
	Resent    bool      `json:"resent"`
	Code      string    `json:"otp_code,omitempty"`
}

// SendOTP issues or resends the phone's check-in code and texts it.
func (s *Service) SendOTP(ctx context.Context, phone string) (OTPSent, error) {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return OTPSent{}, store.ErrPhoneRequired
	}
	if err := s.claimSendSlot(ctx, phone); err != nil {
		return OTPSent{}, err
	}

	var issued otp.Issued
	err := s.store.WithinTx(ctx, func(tx store.Tx) error {
		in := otp.IssueInput{Phone: phone}
		patient, ok, err := tx.FindPatientByPhone(ctx, phone)
		if err != nil {
			return err
		}
		if ok && patient.IsActive {
			in.PatientID = &patient.PatientID
		}
		issued, err = s.verifier.Issue(ctx, tx, in)
		return err
	})
	if err != nil {
		s.releaseSendSlot(ctx, phone)
		return OTPSent{}, err
	}

	record := issued.Record
	s.notify(ctx, phone, fmt.Sprintf("Your check-in OTP is: %s. Valid for %d minutes.", record.OTPCode, minutesLeft(record, s.now())))

	out := OTPSent{Message: MsgOTPSent, OTPID: record.OTPID, ExpiresAt: record.ExpiresAt, Resent: issued.Resent}
	if issued.Resent {
		out.Message = MsgOTPResent
	}
	if s.opts.ExposeCode {
		out.Code = record.OTPCode
	}
	return out, nil
}

func (s *Service) claimSendSlot(ctx context.Context, phone string) error {
	ok, err := s.throttle.Allow(ctx, phone)
	if err != nil {
		s.logger.Warn().Err(err).Msg("otp throttle unavailable, continuing without it")
		return nil
	}
	if !ok {
		return store.ErrResendTooSoon
	}
	return nil
}

func (s *Service) releaseSendSlot(ctx context.Context, phone string) {
	if err := s.throttle.Release(ctx, phone); err != nil {
		s.logger.Warn().Err(err).Msg("otp throttle release failed")
	}
}

func minutesLeft(record models.OTPRecord, now time.Time) int {
	return int(math.Ceil(record.ExpiresAt.Sub(now).Minutes()))
}

type VerifyInput struct {
	Phone         string
	Code          string
	DepartmentID  *int64
	DoctorID      *int64
	CheckInMethod string
}

type CheckInResult struct {
	Message     string             `json:"message"`
	Existing    bool               `json:"existing"`
	NewPatient  bool               `json:"new_patient,omitempty"`
	PatientID   int64              `json:"patient_id"`
	PatientName string             `json:"patient_name"`
	Visit       models.Visit       `json:"visit"`
	Ticket      models.QueueTicket `json:"ticket"`
}

func patientPhone(p models.Patient) string {
	if p.PhoneNumber == nil {
		return ""
	}
	return *p.PhoneNumber
}

func checkInMethod(method string) (string, error) {
	switch strings.ToUpper(strings.TrimSpace(method)) {
	case "", models.MethodOTP:
		return models.MethodOTP, nil
	case models.MethodQRCode:
		return models.MethodQRCode, nil
	case models.MethodSMS:
		return models.MethodSMS, nil
	}
	return "", store.ErrInvalidMethod
}

// VerifyAndCheckIn consumes the phone's code and admits its patient for today.
func (s *Service) VerifyAndCheckIn(ctx context.Context, in VerifyInput) (CheckInResult, error) {
	phone := strings.TrimSpace(in.Phone)
	if phone == "" {
		return CheckInResult{}, store.ErrPhoneRequired
	}
	method, err := checkInMethod(in.CheckInMethod)
	if err != nil {
		return CheckInResult{}, err
	}

	day := s.today()
	var result CheckInResult
	var patient models.Patient
	code := strings.TrimSpace(in.Code)
	err = s.store.WithinTx(ctx, func(tx store.Tx) error {
		verified, err := s.verifier.Verify(ctx, tx, phone, code)
		if errors.Is(err, otp.ErrNoActiveCode) {
			var admission queue.Admission
			patient, admission, err = s.repeatCheckIn(ctx, tx, phone, code, day)
			if err != nil {
				return err
			}
			result = newResult(patient, admission)
			return nil
		}
		if err != nil {
			return err
		}
		patient, err = s.resolvePatient(ctx, tx, verified.Record, phone)
		if err != nil {
			// the code stays consumed
			return store.CommitWith(err)
		}
		admission, err := s.admitter.Admit(ctx, tx, queue.AdmitInput{
			PatientID:    patient.PatientID,
			DepartmentID: in.DepartmentID,
			DoctorID:     in.DoctorID,
			Method:       method,
			QueueDate:    day,
		})
		if err != nil {
			return err
		}
		result = newResult(patient, admission)
		return nil
	})
	if err != nil {
		return CheckInResult{}, err
	}
	s.confirm(ctx, result, patientPhone(patient))
	return result, nil
}

// repeatCheckIn answers a code that an earlier call already consumed. Only
// the open visit that call produced is returned; nobody is admitted again.
func (s *Service) repeatCheckIn(ctx context.Context, tx store.Tx, phone, code string, day time.Time) (models.Patient, queue.Admission, error) {
	record, ok, err := s.verifier.Consumed(ctx, tx, phone, code)
	if err != nil {
		return models.Patient{}, queue.Admission{}, err
	}
	if !ok {
		return models.Patient{}, queue.Admission{}, store.ErrInvalidOrExpiredOTP
	}
	patient, err := s.resolvePatient(ctx, tx, record, phone)
	if err != nil {
		return models.Patient{}, queue.Admission{}, err
	}
	admission, err := s.existingAdmission(ctx, tx, patient.PatientID, day)
	if err != nil {
		return models.Patient{}, queue.Admission{}, err
	}
	return patient, admission, nil
}

// existingAdmission is the only answer to a replayed code: the open visit the
// first verification produced.
func (s *Service) existingAdmission(ctx context.Context, tx store.Tx, patientID int64, day time.Time) (queue.Admission, error) {
	visit, ok, err := tx.FindVisitForDay(ctx, patientID, day, models.OpenVisitStatuses)
	if err != nil {
		return queue.Admission{}, err
	}
	if !ok {
		return queue.Admission{}, store.ErrInvalidOrExpiredOTP
	}
	ticket, ok, err := tx.FindTicketByVisit(ctx, visit.VisitID)
	if err != nil {
		return queue.Admission{}, err
	}
	if !ok {
		return queue.Admission{}, store.ErrInvalidOrExpiredOTP
	}
	return queue.Admission{Visit: visit, Ticket: ticket, Existing: true}, nil
}

func (s *Service) resolvePatient(ctx context.Context, tx store.Tx, record models.OTPRecord, phone string) (models.Patient, error) {
	if record.PatientID != nil {
		return tx.GetPatient(ctx, *record.PatientID)
	}
	patient, ok, err := tx.FindPatientByPhone(ctx, phone)
	if err != nil {
		return models.Patient{}, err
	}
	if !ok || !patient.IsActive {
		return models.Patient{}, store.ErrUnregisteredPhone
	}
	return patient, nil
}

func newResult(patient models.Patient, admission queue.Admission) CheckInResult {
	result := CheckInResult{
		Message:     MsgCheckedIn,
		Existing:    admission.Existing,
		PatientID:   patient.PatientID,
		PatientName: patient.FullName(),
		Visit:       admission.Visit,
		Ticket:      admission.Ticket,
	}
	if admission.Existing {
		result.Message = MsgAlreadyCheckedIn
	}
	return result
}

// confirm texts the queue position of a fresh admission.
func (s *Service) confirm(ctx context.Context, result CheckInResult, phone string) {
	if result.Existing || phone == "" {
		return
	}
	s.notify(ctx, phone, fmt.Sprintf("You are checked in. Queue position: %d. Estimated wait: %d minutes.",
		result.Ticket.QueuePosition, result.Ticket.EstimatedWaitTime))
}

type QRInput struct {
	Phone        string
	QRCode       string
	FirstName    string
	LastName     string
	DateOfBirth  *time.Time
	DepartmentID *int64
	DoctorID     *int64
}

// QRCheckIn admits the phone's patient, registering a new one when the phone
// is unknown.
func (s *Service) QRCheckIn(ctx context.Context, in QRInput) (CheckInResult, error) {
	phone := strings.TrimSpace(in.Phone)
	if phone == "" {
		return CheckInResult{}, store.ErrPhoneRequired
	}
	qr := strings.TrimSpace(in.QRCode)
	if qr == "" {
		return CheckInResult{}, store.ErrQRCodeRequired
	}

	day := s.today()
	var result CheckInResult
	var patient models.Patient
	err := s.store.WithinTx(ctx, func(tx store.Tx) error {
		found, ok, err := tx.FindPatientByPhone(ctx, phone)
		if err != nil {
			return err
		}
		created := false
		switch {
		case ok && !found.IsActive:
			return store.ErrPatientNotFound
		case ok:
			patient = found
		default:
			first, last := strings.TrimSpace(in.FirstName), strings.TrimSpace(in.LastName)
			if first == "" || last == "" || in.DateOfBirth == nil {
				return store.ErrNewPatientFields
			}
			patient, err = tx.CreatePatient(ctx, models.Patient{
				FirstName:   first,
				LastName:    last,
				PhoneNumber: &phone,
				DateOfBirth: in.DateOfBirth,
				IsActive:    true,
			})
			if err != nil {
				return err
			}
			created = true
		}

		admission, err := s.admitter.Admit(ctx, tx, queue.AdmitInput{
			PatientID:    patient.PatientID,
			DepartmentID: in.DepartmentID,
			DoctorID:     in.DoctorID,
			Method:       models.MethodQRCode,
			QueueDate:    day,
			QRCode:       qr,
		})
		if err != nil {
			return err
		}
		result = newResult(patient, admission)
		result.NewPatient = created
		return nil
	})
	if err != nil {
		return CheckInResult{}, err
	}
	s.confirm(ctx, result, phone)
	return result, nil
}

type SMSCheckInResult struct {
	Message     string    `json:"message"`
	OTPRequired bool      `json:"otp_required"`
	VisitID     int64     `json:"visit_id"`
	ExpiresAt   time.Time `json:"expires_at"`
	Code        string    `json:"otp_code,omitempty"`
}

// SMSCheckIn answers a JOIN text: it issues a code for today's scheduled visit.
func (s *Service) SMSCheckIn(ctx context.Context, phone, body string) (SMSCheckInResult, error) {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return SMSCheckInResult{}, store.ErrPhoneRequired
	}
	if !strings.EqualFold(strings.TrimSpace(body), "JOIN") {
		return SMSCheckInResult{}, store.ErrInvalidJoinMessage
	}

	day := s.today()
	var visit models.Visit
	var issued otp.Issued
	err := s.store.WithinTx(ctx, func(tx store.Tx) error {
		patient, ok, err := tx.FindPatientByPhone(ctx, phone)
		if err != nil {
			return err
		}
		if !ok || !patient.IsActive {
			return store.ErrUnregisteredPhone
		}
		if _, open, err := tx.FindVisitForDay(ctx, patient.PatientID, day, models.OpenVisitStatuses); err != nil {
			return err
		} else if open {
			return store.ErrAlreadyCheckedIn
		}
		var scheduled bool
		visit, scheduled, err = tx.FindVisitForDay(ctx, patient.PatientID, day, []string{models.VisitScheduled})
		if err != nil {
			return err
		}
		if !scheduled {
			return store.ErrNoScheduledVisit
		}
		if visit.CheckInDatetime != nil {
			return store.ErrAlreadyCheckedIn
		}
		issued, err = s.verifier.Issue(ctx, tx, otp.IssueInput{
			Phone:     phone,
			PatientID: &patient.PatientID,
			TTL:       s.opts.SMSCodeTTL,
		})
		return err
	})
	if err != nil {
		return SMSCheckInResult{}, err
	}

	record := issued.Record
	s.notify(ctx, phone, fmt.Sprintf("Your check-in OTP is: %s. Valid for %d minutes.", record.OTPCode, minutesLeft(record, s.now())))

	out := SMSCheckInResult{
		Message:     MsgSMSCodeSent,
		OTPRequired: true,
		VisitID:     visit.VisitID,
		ExpiresAt:   record.ExpiresAt,
	}
	if s.opts.ExposeCode {
		out.Code = record.OTPCode
	}
	return out, nil
}
