package checkin

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clinicq/queue-service/internal/models"
	"clinicq/queue-service/internal/otp"
	"clinicq/queue-service/internal/queue"
	"clinicq/queue-service/internal/store"
	"clinicq/queue-service/internal/store/memory"
)

var now = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

type sentSMS struct {
	recipient string
	message   string
}

type recordingSender struct {
	mu   sync.Mutex
	sent []sentSMS
	err  error
}

func (r *recordingSender) Send(ctx context.Context, recipient, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, sentSMS{recipient, message})
	return r.err
}

func (r *recordingSender) messages() []sentSMS {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]sentSMS(nil), r.sent...)
}

type denyThrottle struct{ released int }

func (d *denyThrottle) Allow(context.Context, string) (bool, error) { return false, nil }
func (d *denyThrottle) Release(context.Context, string) error {
	d.released++
	return nil
}

type harness struct {
	svc    *Service
	store  *memory.Store
	sender *recordingSender
	deptID int64
	doctor models.Doctor
}

func newHarness(t *testing.T, opts ...func(*Deps)) *harness {
	t.Helper()
	s := memory.New()
	avg := 20
	dept := s.AddDepartment(models.Department{DepartmentCode: "GEN", DepartmentName: "General Medicine", AverageServiceTime: &avg, IsActive: true})
	doctor := s.AddDoctor(models.Doctor{FirstName: "Gregory", LastName: "House", DepartmentID: &dept.DepartmentID, IsActive: true, IsAvailable: true})
	cal, err := queue.NewCalendar("UTC")
	require.NoError(t, err)
	clock := func() time.Time { return now }
	sender := &recordingSender{}

	deps := Deps{
		Store: s,
		Verifier: otp.NewVerifier(otp.Config{CodeLength: 6, TTL: 5 * time.Minute, MaxAttempts: 3},
			otp.WithClock(clock),
			otp.WithGenerator(func(int) (string, error) { return "246810", nil }),
		),
		Admitter:  queue.NewAdmitter(30, queue.WithAdmitClock(clock)),
		Lifecycle: queue.NewLifecycle(queue.WithLifecycleClock(clock)),
		Calendar:  cal,
		Sender:    sender,
		Logger:    zerolog.Nop(),
		Now:       clock,
	}
	for _, opt := range opts {
		opt(&deps)
	}
	return &harness{
		svc:    New(deps, Options{ExposeCode: true}),
		store:  s,
		sender: sender,
		deptID: dept.DepartmentID,
		doctor: doctor,
	}
}

func (h *harness) patient(phone, first string) models.Patient {
	return h.store.AddPatient(models.Patient{FirstName: first, LastName: "Doe", PhoneNumber: &phone, IsActive: true})
}

func (h *harness) verifyInput(phone, code string) VerifyInput {
	return VerifyInput{Phone: phone, Code: code, DepartmentID: &h.deptID, DoctorID: &h.doctor.DoctorID}
}

func TestSendOTPNewPhone(t *testing.T) {
	h := newHarness(t)
	patient := h.patient("+15550100", "Jane")

	got, err := h.svc.SendOTP(context.Background(), "+15550100")
	require.NoError(t, err)
	assert.Equal(t, MsgOTPSent, got.Message)
	assert.Equal(t, "246810", got.Code)
	assert.Equal(t, now.Add(5*time.Minute), got.ExpiresAt)

	records := h.store.OTPs("+15550100")
	require.Len(t, records, 1)
	assert.Equal(t, 0, records[0].RetryCount)
	require.NotNil(t, records[0].PatientID)
	assert.Equal(t, patient.PatientID, *records[0].PatientID)

	sent := h.sender.messages()
	require.Len(t, sent, 1)
	assert.Equal(t, "Your check-in OTP is: 246810. Valid for 5 minutes.", sent[0].message)

	again, err := h.svc.SendOTP(context.Background(), "+15550100")
	require.NoError(t, err)
	assert.Equal(t, MsgOTPResent, again.Message)
	assert.True(t, again.Resent)
}

func TestSendOTPThrottled(t *testing.T) {
	deny := &denyThrottle{}
	h := newHarness(t, func(d *Deps) { d.Throttle = deny })

	_, err := h.svc.SendOTP(context.Background(), "+15550100")
	assert.ErrorIs(t, err, store.ErrResendTooSoon)
	assert.Empty(t, h.store.OTPs("+15550100"))
	assert.Empty(t, h.sender.messages())
}

func TestSendOTPRequiresPhone(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.SendOTP(context.Background(), "  ")
	assert.ErrorIs(t, err, store.ErrPhoneRequired)
}

func TestVerifyAndCheckIn(t *testing.T) {
	h := newHarness(t)
	h.patient("+15550100", "Jane")
	_, err := h.svc.SendOTP(context.Background(), "+15550100")
	require.NoError(t, err)

	got, err := h.svc.VerifyAndCheckIn(context.Background(), h.verifyInput("+15550100", "246810"))
	require.NoError(t, err)
	assert.Equal(t, MsgCheckedIn, got.Message)
	assert.False(t, got.Existing)
	assert.Equal(t, 1, got.Ticket.QueuePosition)
	assert.Equal(t, 0, got.Ticket.EstimatedWaitTime)
	assert.Equal(t, models.MethodOTP, got.Visit.CheckInMethod)
	assert.Equal(t, "Jane Doe", got.PatientName)

	sent := h.sender.messages()
	require.Len(t, sent, 2)
	assert.Contains(t, sent[1].message, "Queue position: 1")
}

func TestRepeatedCodeReturnsExistingAdmission(t *testing.T) {
	h := newHarness(t)
	h.patient("+15550100", "Jane")
	_, err := h.svc.SendOTP(context.Background(), "+15550100")
	require.NoError(t, err)

	first, err := h.svc.VerifyAndCheckIn(context.Background(), h.verifyInput("+15550100", "246810"))
	require.NoError(t, err)

	again, err := h.svc.VerifyAndCheckIn(context.Background(), h.verifyInput("+15550100", "246810"))
	require.NoError(t, err)
	assert.True(t, again.Existing)
	assert.Equal(t, MsgAlreadyCheckedIn, again.Message)
	assert.Equal(t, first.Ticket.TicketID, again.Ticket.TicketID)
	assert.Len(t, h.store.Tickets(), 1)

	_, err = h.svc.VerifyAndCheckIn(context.Background(), h.verifyInput("+15550100", "135791"))
	assert.ErrorIs(t, err, store.ErrInvalidOrExpiredOTP)
}

func TestVerifyWrongCodeDoesNotAdmit(t *testing.T) {
	h := newHarness(t)
	h.patient("+15550100", "Jane")
	_, err := h.svc.SendOTP(context.Background(), "+15550100")
	require.NoError(t, err)

	_, err = h.svc.VerifyAndCheckIn(context.Background(), h.verifyInput("+15550100", "000000"))
	assert.ErrorIs(t, err, store.ErrInvalidOrExpiredOTP)
	assert.Empty(t, h.store.Visits())
	assert.Equal(t, 1, h.store.OTPs("+15550100")[0].RetryCount)
}

func TestVerifyUnregisteredPhoneConsumesCode(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.SendOTP(context.Background(), "+15550999")
	require.NoError(t, err)

	_, err = h.svc.VerifyAndCheckIn(context.Background(), h.verifyInput("+15550999", "246810"))
	assert.ErrorIs(t, err, store.ErrUnregisteredPhone)
	assert.True(t, h.store.OTPs("+15550999")[0].IsVerified)
}

func TestConcurrentVerifyAdmitsOnce(t *testing.T) {
	h := newHarness(t)
	h.patient("+15550100", "Jane")
	_, err := h.svc.SendOTP(context.Background(), "+15550100")
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([]CheckInResult, 2)
	errs := make([]error, 2)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = h.svc.VerifyAndCheckIn(context.Background(), h.verifyInput("+15550100", "246810"))
		}(i)
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.Len(t, h.store.Visits(), 1)
	assert.Equal(t, results[0].Ticket.TicketID, results[1].Ticket.TicketID)

	messages := []string{results[0].Message, results[1].Message}
	assert.ElementsMatch(t, []string{MsgCheckedIn, MsgAlreadyCheckedIn}, messages)
}

func TestQRCheckInRegistersNewPatient(t *testing.T) {
	h := newHarness(t)
	dob := time.Date(1990, 5, 17, 0, 0, 0, 0, time.UTC)

	_, err := h.svc.QRCheckIn(context.Background(), QRInput{Phone: "+15550200", QRCode: "QR-1"})
	assert.ErrorIs(t, err, store.ErrNewPatientFields)

	got, err := h.svc.QRCheckIn(context.Background(), QRInput{
		Phone: "+15550200", QRCode: "QR-1", FirstName: "Sam", LastName: "Lee", DateOfBirth: &dob, DepartmentID: &h.deptID,
	})
	require.NoError(t, err)
	assert.True(t, got.NewPatient)
	assert.Equal(t, models.MethodQRCode, got.Visit.CheckInMethod)

	logs := h.store.CheckInLogs()
	require.Len(t, logs, 1)
	assert.Equal(t, "QR-1", logs[0].QRCodeValue)

	again, err := h.svc.QRCheckIn(context.Background(), QRInput{Phone: "+15550200", QRCode: "QR-1"})
	require.NoError(t, err)
	assert.True(t, again.Existing)
	assert.Equal(t, MsgAlreadyCheckedIn, again.Message)
}

func TestQRCheckInReusesPhoneOfDeletedPatient(t *testing.T) {
	h := newHarness(t)
	phone := "+15550999"
	deleted := now.Add(-24 * time.Hour)
	old := h.store.AddPatient(models.Patient{FirstName: "Old", LastName: "Record", PhoneNumber: &phone, DeletedAt: &deleted})
	dob := time.Date(1985, 1, 2, 0, 0, 0, 0, time.UTC)

	got, err := h.svc.QRCheckIn(context.Background(), QRInput{
		Phone: phone, QRCode: "QR-9", FirstName: "Kim", LastName: "Park", DateOfBirth: &dob, DepartmentID: &h.deptID,
	})
	require.NoError(t, err)
	assert.True(t, got.NewPatient)
	assert.NotEqual(t, old.PatientID, got.Visit.PatientID)
}

func TestSMSCheckIn(t *testing.T) {
	h := newHarness(t)
	patient := h.patient("+15550300", "Ana")

	_, err := h.svc.SMSCheckIn(context.Background(), "+15550300", "hello")
	assert.ErrorIs(t, err, store.ErrInvalidJoinMessage)

	_, err = h.svc.SMSCheckIn(context.Background(), "+15550399", "JOIN")
	assert.ErrorIs(t, err, store.ErrUnregisteredPhone)

	_, err = h.svc.SMSCheckIn(context.Background(), "+15550300", "JOIN")
	assert.ErrorIs(t, err, store.ErrNoScheduledVisit)

	visit := h.store.AddVisit(models.Visit{PatientID: patient.PatientID, VisitDate: time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), VisitStatus: models.VisitScheduled})
	got, err := h.svc.SMSCheckIn(context.Background(), "+15550300", " join ")
	require.NoError(t, err)
	assert.True(t, got.OTPRequired)
	assert.Equal(t, visit.VisitID, got.VisitID)
	assert.Equal(t, now.Add(10*time.Minute), got.ExpiresAt)

	sent := h.sender.messages()
	require.NotEmpty(t, sent)
	assert.Equal(t, "Your check-in OTP is: 246810. Valid for 10 minutes.", sent[len(sent)-1].message)

	in := h.verifyInput("+15550300", "246810")
	in.CheckInMethod = "sms"
	checkedIn, err := h.svc.VerifyAndCheckIn(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, visit.VisitID, checkedIn.Visit.VisitID)
	assert.Equal(t, models.MethodSMS, checkedIn.Visit.CheckInMethod)

	_, err = h.svc.SMSCheckIn(context.Background(), "+15550300", "JOIN")
	assert.ErrorIs(t, err, store.ErrAlreadyCheckedIn)
}

func TestSMSDeliveryFailureIsNotFatal(t *testing.T) {
	h := newHarness(t)
	h.sender.err = assert.AnError
	h.patient("+15550100", "Jane")

	_, err := h.svc.SendOTP(context.Background(), "+15550100")
	require.NoError(t, err)
}

func TestAppointmentFlow(t *testing.T) {
	h := newHarness(t)
	h.patient("+15550100", "Jane")
	_, err := h.svc.SendOTP(context.Background(), "+15550100")
	require.NoError(t, err)
	admitted, err := h.svc.VerifyAndCheckIn(context.Background(), h.verifyInput("+15550100", "246810"))
	require.NoError(t, err)
	ticketID := admitted.Ticket.TicketID

	_, err = h.svc.UpdateStatus(context.Background(), ticketID, "called")
	assert.ErrorIs(t, err, store.ErrInvalidStatus)

	called, err := h.svc.UpdateStatus(context.Background(), ticketID, "CALLED")
	require.NoError(t, err)
	assert.Equal(t, models.TicketWaiting, called.OldStatus)
	assert.Equal(t, models.TicketCalled, called.NewStatus)

	started, err := h.svc.StartAppointment(context.Background(), ticketID)
	require.NoError(t, err)
	assert.Equal(t, MsgStarted, started.Message)
	assert.Equal(t, "Jane Doe", started.PatientName)
	require.NotNil(t, started.Ticket.StartedAt)

	status, err := h.svc.AppointmentStatus(context.Background(), admitted.Visit.VisitID)
	require.NoError(t, err)
	assert.Equal(t, "Dr. Gregory House", status.DoctorName)
	assert.Equal(t, "General Medicine", status.DepartmentName)
	require.NotNil(t, status.QueueStatus)
	assert.Equal(t, models.TicketInProgress, *status.QueueStatus)

	done, err := h.svc.CompleteAppointment(context.Background(), ticketID)
	require.NoError(t, err)
	assert.Equal(t, models.VisitCompleted, done.Visit.VisitStatus)

	_, err = h.svc.StartAppointment(context.Background(), ticketID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "COMPLETED")

	_, err = h.svc.UpdateStatus(context.Background(), ticketID, "DONE")
	assert.ErrorIs(t, err, store.ErrInvalidStatus)

	history, err := h.svc.TicketEvents(context.Background(), ticketID)
	require.NoError(t, err)
	assert.True(t, history.ChainValid)
	assert.Equal(t, models.TicketCompleted, history.CurrentStatus)
	assert.Len(t, history.Events, 4)

	_, err = h.svc.AppointmentStatus(context.Background(), 9999)
	assert.ErrorIs(t, err, store.ErrAppointmentMissing)
	_, err = h.svc.TicketEvents(context.Background(), 9999)
	assert.ErrorIs(t, err, store.ErrTicketNotFound)
}

func TestClinicianQueue(t *testing.T) {
	h := newHarness(t)
	for i, phone := range []string{"+15550101", "+15550102", "+15550103"} {
		h.patient(phone, []string{"Ann", "Bob", "Cat"}[i])
		_, err := h.svc.SendOTP(context.Background(), phone)
		require.NoError(t, err)
		_, err = h.svc.VerifyAndCheckIn(context.Background(), h.verifyInput(phone, "246810"))
		require.NoError(t, err)
	}

	got, err := h.svc.ClinicianQueue(context.Background(), h.doctor.DoctorID, "")
	require.NoError(t, err)
	assert.Equal(t, "Dr. Gregory House", got.DoctorName)
	assert.Equal(t, "General Medicine", got.DepartmentName)
	assert.Equal(t, "2026-03-02", got.QueueDate)
	require.Equal(t, 3, got.TotalPatients)
	assert.Equal(t, "Ann Doe", got.QueueTickets[0].PatientName)
	assert.Equal(t, 3, got.QueueTickets[2].QueuePosition)
	assert.Equal(t, 40, got.QueueTickets[2].EstimatedWaitTime)

	other, err := h.svc.ClinicianQueue(context.Background(), h.doctor.DoctorID, "2026-03-01")
	require.NoError(t, err)
	assert.Equal(t, 0, other.TotalPatients)

	_, err = h.svc.ClinicianQueue(context.Background(), h.doctor.DoctorID, "03/02/2026")
	assert.ErrorIs(t, err, store.ErrInvalidDate)

	_, err = h.svc.ClinicianQueue(context.Background(), 9999, "")
	assert.ErrorIs(t, err, store.ErrDoctorNotFound)

	orphan := h.store.AddDoctor(models.Doctor{FirstName: "No", LastName: "Dept", IsActive: true})
	got, err = h.svc.ClinicianQueue(context.Background(), orphan.DoctorID, "")
	require.NoError(t, err)
	assert.Equal(t, "Unknown", got.DepartmentName)
}

func TestSearchPatients(t *testing.T) {
	h := newHarness(t)
	h.patient("+15550100", "Jane")
	h.patient("+15550101", "John")

	_, err := h.svc.SearchPatients(context.Background(), store.PatientFilter{})
	assert.ErrorIs(t, err, store.ErrNoSearchFilter)

	_, err = h.svc.SearchPatients(context.Background(), store.PatientFilter{FirstName: "j", Limit: 101})
	assert.ErrorIs(t, err, store.ErrInvalidLimit)

	got, err := h.svc.SearchPatients(context.Background(), store.PatientFilter{FirstName: "j"})
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = h.svc.SearchPatients(context.Background(), store.PatientFilter{FirstName: "zzz"})
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}
