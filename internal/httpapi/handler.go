package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"clinicq/queue-service/internal/checkin"
	"clinicq/queue-service/internal/models"
	"clinicq/queue-service/internal/store"
)

// Service is the check-in application surface served over HTTP.
type Service interface {
	SendOTP(ctx context.Context, phone string) (checkin.OTPSent, error)
	VerifyAndCheckIn(ctx context.Context, in checkin.VerifyInput) (checkin.CheckInResult, error)
	QRCheckIn(ctx context.Context, in checkin.QRInput) (checkin.CheckInResult, error)
	SMSCheckIn(ctx context.Context, phone, body string) (checkin.SMSCheckInResult, error)
	StartAppointment(ctx context.Context, ticketID int64) (checkin.TransitionResult, error)
	CompleteAppointment(ctx context.Context, ticketID int64) (checkin.TransitionResult, error)
	UpdateStatus(ctx context.Context, ticketID int64, status string) (checkin.TransitionResult, error)
	SearchPatients(ctx context.Context, filter store.PatientFilter) ([]models.Patient, error)
	ClinicianQueue(ctx context.Context, doctorID int64, queueDate string) (checkin.ClinicianQueue, error)
	AppointmentStatus(ctx context.Context, visitID int64) (checkin.AppointmentStatus, error)
	TicketEvents(ctx context.Context, ticketID int64) (checkin.TicketHistory, error)
}

type Handler struct {
	svc    Service
	logger zerolog.Logger
}

func NewHandler(svc Service, logger zerolog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

func (h *Handler) Register(e *echo.Echo) {
	e.GET("/healthz", h.handleHealth)

	api := e.Group("/api")
	api.POST("/appointments/start", h.handleStartAppointment)
	api.POST("/appointment/complete", h.handleCompleteAppointment)
	api.PATCH("/appointment/:id/status", h.handleUpdateStatus)
	api.GET("/appointment/status/:visit_id", h.handleAppointmentStatus)
	api.GET("/appointment/:id/events", h.handleTicketEvents)
	api.POST("/otp/send", h.handleSendOTP)
	api.POST("/otp/verify", h.handleVerifyOTP)
	api.POST("/checkin/qr", h.handleQRCheckIn)
	api.POST("/checkin/sms", h.handleSMSCheckIn)
	api.GET("/patients/search", h.handleSearchPatients)
	api.GET("/queue/clinician/:id", h.handleClinicianQueue)
}

type ticketRequest struct {
	TicketID int64 `json:"ticket_id"`
}

type sendOTPRequest struct {
	PhoneNumber string `json:"phone_number"`
}

type verifyOTPRequest struct {
	PhoneNumber   string `json:"phone_number"`
	OTPCode       string `json:"otp_code"`
	DepartmentID  *int64 `json:"department_id"`
	DoctorID      *int64 `json:"doctor_id"`
	CheckInMethod string `json:"check_in_method"`
}

type qrCheckInRequest struct {
	PhoneNumber  string `json:"phone_number"`
	QRCodeValue  string `json:"qr_code_value"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	DateOfBirth  string `json:"date_of_birth"`
	DepartmentID *int64 `json:"department_id"`
	DoctorID     *int64 `json:"doctor_id"`
}

type smsCheckInRequest struct {
	PhoneNumber string `json:"phone_number"`
	MessageBody string `json:"message_body"`
}

type statusUpdateRequest struct {
	Status string `json:"status"`
}

func (h *Handler) handleHealth(c echo.Context) error {
	return c.NoContent(http.StatusOK)
}

func (h *Handler) handleStartAppointment(c echo.Context) error {
	var req ticketRequest
	if !decodeRequest(c, &req) {
		return nil
	}
	out, err := h.svc.StartAppointment(c.Request().Context(), req.TicketID)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"success":      true,
		"message":      out.Message,
		"ticket_id":    out.Ticket.TicketID,
		"visit_id":     out.Visit.VisitID,
		"patient_name": out.PatientName,
		"queue_status": out.Ticket.QueueStatus,
		"started_at":   out.Ticket.StartedAt,
	})
}

func (h *Handler) handleCompleteAppointment(c echo.Context) error {
	var req ticketRequest
	if !decodeRequest(c, &req) {
		return nil
	}
	out, err := h.svc.CompleteAppointment(c.Request().Context(), req.TicketID)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"success":      true,
		"message":      out.Message,
		"ticket_id":    out.Ticket.TicketID,
		"visit_id":     out.Visit.VisitID,
		"completed_at": out.Ticket.CompletedAt,
	})
}

func (h *Handler) handleUpdateStatus(c echo.Context) error {
	ticketID, err := parseID(c.Param("id"))
	if err != nil {
		return h.fail(c, err)
	}
	var req statusUpdateRequest
	if !decodeRequest(c, &req) {
		return nil
	}
	out, err := h.svc.UpdateStatus(c.Request().Context(), ticketID, req.Status)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"success":    true,
		"message":    out.Message,
		"ticket_id":  out.Ticket.TicketID,
		"old_status": out.OldStatus,
		"new_status": out.NewStatus,
	})
}

func (h *Handler) handleAppointmentStatus(c echo.Context) error {
	visitID, err := parseID(c.Param("visit_id"))
	if err != nil {
		return h.fail(c, err)
	}
	out, err := h.svc.AppointmentStatus(c.Request().Context(), visitID)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *Handler) handleTicketEvents(c echo.Context) error {
	ticketID, err := parseID(c.Param("id"))
	if err != nil {
		return h.fail(c, err)
	}
	out, err := h.svc.TicketEvents(c.Request().Context(), ticketID)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *Handler) handleSendOTP(c echo.Context) error {
	var req sendOTPRequest
	if !decodeRequest(c, &req) {
		return nil
	}
	out, err := h.svc.SendOTP(c.Request().Context(), req.PhoneNumber)
	if err != nil {
		return h.fail(c, err)
	}
	body := echo.Map{
		"success":    true,
		"message":    out.Message,
		"otp_id":     out.OTPID,
		"expires_at": out.ExpiresAt,
		"resent":     out.Resent,
	}
	if out.Code != "" {
		body["otp_code"] = out.Code
	}
	return c.JSON(http.StatusOK, body)
}

func (h *Handler) handleVerifyOTP(c echo.Context) error {
	var req verifyOTPRequest
	if !decodeRequest(c, &req) {
		return nil
	}
	out, err := h.svc.VerifyAndCheckIn(c.Request().Context(), checkin.VerifyInput{
		Phone:         req.PhoneNumber,
		Code:          req.OTPCode,
		DepartmentID:  req.DepartmentID,
		DoctorID:      req.DoctorID,
		CheckInMethod: req.CheckInMethod,
	})
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, checkInBody(out))
}

func (h *Handler) handleQRCheckIn(c echo.Context) error {
	var req qrCheckInRequest
	if !decodeRequest(c, &req) {
		return nil
	}
	var dob *time.Time
	if value := strings.TrimSpace(req.DateOfBirth); value != "" {
		parsed, err := time.Parse(time.DateOnly, value)
		if err != nil {
			return h.fail(c, store.ErrInvalidDate)
		}
		dob = &parsed
	}
	out, err := h.svc.QRCheckIn(c.Request().Context(), checkin.QRInput{
		Phone:        req.PhoneNumber,
		QRCode:       req.QRCodeValue,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		DateOfBirth:  dob,
		DepartmentID: req.DepartmentID,
		DoctorID:     req.DoctorID,
	})
	if err != nil {
		return h.fail(c, err)
	}
	body := checkInBody(out)
	body["new_patient"] = out.NewPatient
	return c.JSON(http.StatusOK, body)
}

func checkInBody(out checkin.CheckInResult) echo.Map {
	return echo.Map{
		"success":             true,
		"message":             out.Message,
		"patient_id":          out.PatientID,
		"visit_id":            out.Visit.VisitID,
		"ticket_id":           out.Ticket.TicketID,
		"queue_position":      out.Ticket.QueuePosition,
		"estimated_wait_time": out.Ticket.EstimatedWaitTime,
	}
}

func (h *Handler) handleSMSCheckIn(c echo.Context) error {
	var req smsCheckInRequest
	if !decodeRequest(c, &req) {
		return nil
	}
	out, err := h.svc.SMSCheckIn(c.Request().Context(), req.PhoneNumber, req.MessageBody)
	if err != nil {
		return h.fail(c, err)
	}
	body := echo.Map{
		"success":      true,
		"message":      out.Message,
		"otp_required": out.OTPRequired,
		"visit_id":     out.VisitID,
		"expires_at":   out.ExpiresAt,
	}
	if out.Code != "" {
		body["otp_code"] = out.Code
	}
	return c.JSON(http.StatusOK, body)
}

func (h *Handler) handleSearchPatients(c echo.Context) error {
	filter, err := parsePatientFilter(c)
	if err != nil {
		return h.fail(c, err)
	}
	out, err := h.svc.SearchPatients(c.Request().Context(), filter)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func parsePatientFilter(c echo.Context) (store.PatientFilter, error) {
	filter := store.PatientFilter{
		FirstName:   c.QueryParam("first_name"),
		LastName:    c.QueryParam("last_name"),
		PhoneNumber: c.QueryParam("phone_number"),
		BloodGroup:  strings.TrimSpace(c.QueryParam("blood_group")),
		PatientType: strings.TrimSpace(c.QueryParam("patient_type")),
	}
	if raw := c.QueryParam("patient_id"); raw != "" {
		id, err := parseID(raw)
		if err != nil {
			return store.PatientFilter{}, err
		}
		filter.PatientID = &id
	}
	if raw := c.QueryParam("is_active"); raw != "" {
		active, err := strconv.ParseBool(raw)
		if err != nil {
			return store.PatientFilter{}, store.ErrInvalidQuery
		}
		filter.IsActive = &active
	}
	if raw := c.QueryParam("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			return store.PatientFilter{}, store.ErrInvalidLimit
		}
		filter.Limit = limit
	}
	return filter, nil
}

func (h *Handler) handleClinicianQueue(c echo.Context) error {
	doctorID, err := parseID(c.Param("id"))
	if err != nil {
		return h.fail(c, err)
	}
	out, err := h.svc.ClinicianQueue(c.Request().Context(), doctorID, c.QueryParam("queue_date"))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

// decodeRequest reads a JSON body, rejecting unknown fields. It writes the
// error response itself and reports whether the handler should continue.
func decodeRequest(c echo.Context, target any) bool {
	decoder := json.NewDecoder(c.Request().Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(target); err != nil {
		_ = writeError(c, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return false
	}
	return true
}

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, store.ErrInvalidID
	}
	return id, nil
}
