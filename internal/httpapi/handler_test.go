package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clinicq/queue-service/internal/checkin"
	"clinicq/queue-service/internal/models"
	"clinicq/queue-service/internal/store"
)

type fakeService struct {
	sendOTPFn      func(ctx context.Context, phone string) (checkin.OTPSent, error)
	verifyFn       func(ctx context.Context, in checkin.VerifyInput) (checkin.CheckInResult, error)
	qrFn           func(ctx context.Context, in checkin.QRInput) (checkin.CheckInResult, error)
	smsFn          func(ctx context.Context, phone, body string) (checkin.SMSCheckInResult, error)
	startFn        func(ctx context.Context, ticketID int64) (checkin.TransitionResult, error)
	completeFn     func(ctx context.Context, ticketID int64) (checkin.TransitionResult, error)
	updateStatusFn func(ctx context.Context, ticketID int64, status string) (checkin.TransitionResult, error)
	searchFn       func(ctx context.Context, filter store.PatientFilter) ([]models.Patient, error)
	clinicianFn    func(ctx context.Context, doctorID int64, queueDate string) (checkin.ClinicianQueue, error)
	statusFn       func(ctx context.Context, visitID int64) (checkin.AppointmentStatus, error)
	eventsFn       func(ctx context.Context, ticketID int64) (checkin.TicketHistory, error)
}

func (f fakeService) SendOTP(ctx context.Context, phone string) (checkin.OTPSent, error) {
	if f.sendOTPFn == nil {
		return checkin.OTPSent{}, nil
	}
	return f.sendOTPFn(ctx, phone)
}

func (f fakeService) VerifyAndCheckIn(ctx context.Context, in checkin.VerifyInput) (checkin.CheckInResult, error) {
	if f.verifyFn == nil {
		return checkin.CheckInResult{}, nil
	}
	return f.verifyFn(ctx, in)
}

func (f fakeService) QRCheckIn(ctx context.Context, in checkin.QRInput) (checkin.CheckInResult, error) {
	if f.qrFn == nil {
		return checkin.CheckInResult{}, nil
	}
	return f.qrFn(ctx, in)
}

func (f fakeService) SMSCheckIn(ctx context.Context, phone, body string) (checkin.SMSCheckInResult, error) {
	if f.smsFn == nil {
		return checkin.SMSCheckInResult{}, nil
	}
	return f.smsFn(ctx, phone, body)
}

func (f fakeService) StartAppointment(ctx context.Context, ticketID int64) (checkin.TransitionResult, error) {
	if f.startFn == nil {
		return checkin.TransitionResult{}, nil
	}
	return f.startFn(ctx, ticketID)
}

func (f fakeService) CompleteAppointment(ctx context.Context, ticketID int64) (checkin.TransitionResult, error) {
	if f.completeFn == nil {
		return checkin.TransitionResult{}, nil
	}
	return f.completeFn(ctx, ticketID)
}

func (f fakeService) UpdateStatus(ctx context.Context, ticketID int64, status string) (checkin.TransitionResult, error) {
	if f.updateStatusFn == nil {
		return checkin.TransitionResult{}, nil
	}
	return f.updateStatusFn(ctx, ticketID, status)
}

func (f fakeService) SearchPatients(ctx context.Context, filter store.PatientFilter) ([]models.Patient, error) {
	if f.searchFn == nil {
		return []models.Patient{}, nil
	}
	return f.searchFn(ctx, filter)
}

func (f fakeService) ClinicianQueue(ctx context.Context, doctorID int64, queueDate string) (checkin.ClinicianQueue, error) {
	if f.clinicianFn == nil {
		return checkin.ClinicianQueue{}, nil
	}
	return f.clinicianFn(ctx, doctorID, queueDate)
}

func (f fakeService) AppointmentStatus(ctx context.Context, visitID int64) (checkin.AppointmentStatus, error) {
	if f.statusFn == nil {
		return checkin.AppointmentStatus{}, nil
	}
	return f.statusFn(ctx, visitID)
}

func (f fakeService) TicketEvents(ctx context.Context, ticketID int64) (checkin.TicketHistory, error) {
	if f.eventsFn == nil {
		return checkin.TicketHistory{}, nil
	}
	return f.eventsFn(ctx, ticketID)
}

func newTestServer(svc Service) http.Handler {
	return NewServer(NewHandler(svc, zerolog.Nop()), zerolog.Nop(), nil)
}

func do(t *testing.T, h http.Handler, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader *bytes.Reader
	if body == "" {
		reader = bytes.NewReader(nil)
	} else {
		reader = bytes.NewReader([]byte(body))
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var payload map[string]any
	if rec.Body.Len() > 0 && rec.Body.Bytes()[0] == '{' {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	}
	return rec, payload
}

func TestHealth(t *testing.T) {
	rec, _ := do(t, newTestServer(fakeService{}), http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))
}

func TestVerifyOTP(t *testing.T) {
	var got checkin.VerifyInput
	svc := fakeService{verifyFn: func(ctx context.Context, in checkin.VerifyInput) (checkin.CheckInResult, error) {
		got = in
		return checkin.CheckInResult{
			Message:   checkin.MsgCheckedIn,
			PatientID: 4,
			Visit:     models.Visit{VisitID: 8},
			Ticket:    models.QueueTicket{TicketID: 15, QueuePosition: 3, EstimatedWaitTime: 40},
		}, nil
	}}

	rec, body := do(t, newTestServer(svc), http.MethodPost, "/api/otp/verify",
		`{"phone_number":"+15550100","otp_code":"123456","department_id":2,"check_in_method":"OTP"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "Check-in successful", body["message"])
	assert.Equal(t, float64(15), body["ticket_id"])
	assert.Equal(t, float64(3), body["queue_position"])
	assert.Equal(t, float64(40), body["estimated_wait_time"])

	assert.Equal(t, "+15550100", got.Phone)
	assert.Equal(t, "123456", got.Code)
	require.NotNil(t, got.DepartmentID)
	assert.Equal(t, int64(2), *got.DepartmentID)
	assert.Nil(t, got.DoctorID)
}

func TestUnknownFieldsRejected(t *testing.T) {
	rec, body := do(t, newTestServer(fakeService{}), http.MethodPost, "/api/otp/send", `{"phone_number":"+1","extra":true}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "invalid_json", body["code"])
	assert.NotEmpty(t, body["request_id"])
}

func TestErrorMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
		msg    string
	}{
		{store.ErrTicketNotFound, http.StatusNotFound, "not_found", "Queue ticket not found"},
		{store.InvalidTransition("start", "COMPLETED"), http.StatusBadRequest, "invalid_state", "Cannot start appointment. Current status: COMPLETED"},
		{store.ErrInvalidOrExpiredOTP, http.StatusBadRequest, "invalid_input", "Invalid or expired OTP"},
		{store.CommitWith(store.ErrAttemptsExceeded), http.StatusTooManyRequests, "rate_limited", "Maximum OTP verification attempts exceeded"},
		{store.ErrWriteConflict, http.StatusConflict, "conflict", "The queue is busy, please retry"},
		{assert.AnError, http.StatusInternalServerError, "internal_error", "internal server error"},
	}
	for _, tt := range cases {
		svc := fakeService{startFn: func(ctx context.Context, ticketID int64) (checkin.TransitionResult, error) {
			return checkin.TransitionResult{}, tt.err
		}}
		rec, body := do(t, newTestServer(svc), http.MethodPost, "/api/appointments/start", `{"ticket_id":1}`)
		assert.Equal(t, tt.status, rec.Code, tt.code)
		assert.Equal(t, tt.code, body["code"])
		assert.Equal(t, tt.msg, body["message"])
		assert.Equal(t, false, body["success"])
	}
}

func TestStartAppointment(t *testing.T) {
	started := time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)
	svc := fakeService{startFn: func(ctx context.Context, ticketID int64) (checkin.TransitionResult, error) {
		assert.Equal(t, int64(7), ticketID)
		return checkin.TransitionResult{
			Message:     checkin.MsgStarted,
			PatientName: "Jane Doe",
			Ticket:      models.QueueTicket{TicketID: 7, QueueStatus: models.TicketInProgress, StartedAt: &started},
			Visit:       models.Visit{VisitID: 3},
		}, nil
	}}
	rec, body := do(t, newTestServer(svc), http.MethodPost, "/api/appointments/start", `{"ticket_id":7}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Appointment started successfully", body["message"])
	assert.Equal(t, "IN_PROGRESS", body["queue_status"])
	assert.Equal(t, "Jane Doe", body["patient_name"])
	assert.Equal(t, "2026-03-02T09:30:00Z", body["started_at"])
}

func TestUpdateStatus(t *testing.T) {
	svc := fakeService{updateStatusFn: func(ctx context.Context, ticketID int64, status string) (checkin.TransitionResult, error) {
		return checkin.TransitionResult{
			Message:   checkin.MsgStatusUpdated,
			OldStatus: models.TicketWaiting,
			NewStatus: status,
			Ticket:    models.QueueTicket{TicketID: ticketID},
		}, nil
	}}
	h := newTestServer(svc)

	rec, body := do(t, h, http.MethodPatch, "/api/appointment/12/status", `{"status":"CALLED"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "WAITING", body["old_status"])
	assert.Equal(t, "CALLED", body["new_status"])
	assert.Equal(t, float64(12), body["ticket_id"])

	rec, body = do(t, h, http.MethodPatch, "/api/appointment/abc/status", `{"status":"CALLED"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_input", body["code"])
}

func TestSearchPatientsQuery(t *testing.T) {
	var got store.PatientFilter
	svc := fakeService{searchFn: func(ctx context.Context, filter store.PatientFilter) ([]models.Patient, error) {
		got = filter
		return []models.Patient{{PatientID: 1, FirstName: "Jane", LastName: "Doe", IsActive: true}}, nil
	}}
	h := newTestServer(svc)

	rec, _ := do(t, h, http.MethodGet, "/api/patients/search?first_name=ja&is_active=true&patient_id=1&limit=10", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ja", got.FirstName)
	require.NotNil(t, got.IsActive)
	assert.True(t, *got.IsActive)
	require.NotNil(t, got.PatientID)
	assert.Equal(t, 10, got.Limit)

	var list []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, "Jane", list[0]["first_name"])

	rec, body := do(t, h, http.MethodGet, "/api/patients/search?first_name=ja&limit=0", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_input", body["code"])

	rec, _ = do(t, h, http.MethodGet, "/api/patients/search?is_active=maybe", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestQRCheckInDateOfBirth(t *testing.T) {
	var got checkin.QRInput
	svc := fakeService{qrFn: func(ctx context.Context, in checkin.QRInput) (checkin.CheckInResult, error) {
		got = in
		return checkin.CheckInResult{Message: checkin.MsgCheckedIn, NewPatient: true}, nil
	}}
	h := newTestServer(svc)

	rec, body := do(t, h, http.MethodPost, "/api/checkin/qr",
		`{"phone_number":"+1","qr_code_value":"QR","first_name":"A","last_name":"B","date_of_birth":"1990-05-17"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["new_patient"])
	require.NotNil(t, got.DateOfBirth)
	assert.Equal(t, 1990, got.DateOfBirth.Year())

	rec, body = do(t, h, http.MethodPost, "/api/checkin/qr", `{"phone_number":"+1","qr_code_value":"QR","date_of_birth":"17/05/1990"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid date format. Use YYYY-MM-DD", body["message"])
}

func TestClinicianQueuePassesDate(t *testing.T) {
	svc := fakeService{clinicianFn: func(ctx context.Context, doctorID int64, queueDate string) (checkin.ClinicianQueue, error) {
		if queueDate == "bad" {
			return checkin.ClinicianQueue{}, store.ErrInvalidDate
		}
		return checkin.ClinicianQueue{DoctorID: doctorID, DoctorName: "Dr. A B", DepartmentName: "Unknown", QueueDate: queueDate}, nil
	}}
	h := newTestServer(svc)

	rec, body := do(t, h, http.MethodGet, "/api/queue/clinician/5?queue_date=2026-03-02", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Dr. A B", body["doctor_name"])
	assert.Equal(t, "2026-03-02", body["queue_date"])

	rec, _ = do(t, h, http.MethodGet, "/api/queue/clinician/5?queue_date=bad", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUnknownRoute(t *testing.T) {
	rec, body := do(t, newTestServer(fakeService{}), http.MethodGet, "/api/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", body["code"])
}

func TestPanicRecovered(t *testing.T) {
	svc := fakeService{eventsFn: func(ctx context.Context, ticketID int64) (checkin.TicketHistory, error) {
		panic("boom")
	}}
	rec, body := do(t, newTestServer(svc), http.MethodGet, "/api/appointment/3/events", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal_error", body["code"])
	assert.Equal(t, "internal server error", body["message"])
	assert.NotEmpty(t, body["request_id"])
}

func TestRateLimiter(t *testing.T) {
	limiter := NewRateLimiter(RateLimitConfig{PerMinute: 1, Burst: 2})
	h := NewServer(NewHandler(fakeService{}, zerolog.Nop()), zerolog.Nop(), limiter)

	for i := 0; i < 2; i++ {
		rec, _ := do(t, h, http.MethodGet, "/healthz", "")
		assert.Equal(t, http.StatusOK, rec.Code)
	}
	rec, body := do(t, h, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "rate_limited", body["code"])
}

func TestTokenLimiterRefills(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	l := newTokenLimiter(60, 1)
	l.now = func() time.Time { return now }

	assert.True(t, l.allow("a"))
	assert.False(t, l.allow("a"))
	assert.True(t, l.allow("b"))
	now = now.Add(time.Second)
	assert.True(t, l.allow("a"))
}
