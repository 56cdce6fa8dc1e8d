package models

import "time"

type Visit struct {
	VisitID           int64      `json:"visit_id"`
	PatientID         int64      `json:"patient_id"`
	DepartmentID      *int64     `json:"department_id,omitempty"`
	DoctorID          *int64     `json:"doctor_id,omitempty"`
	VisitDate         time.Time  `json:"visit_date"`
	CheckInDatetime   *time.Time `json:"check_in_datetime,omitempty"`
	CheckInMethod     string     `json:"check_in_method,omitempty"`
	VisitStatus       string     `json:"visit_status"`
	CompletedDatetime *time.Time `json:"completed_datetime,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

const (
	VisitScheduled  = "SCHEDULED"
	VisitActive     = "ACTIVE"
	VisitWaiting    = "WAITING"
	VisitInProgress = "IN_PROGRESS"
	VisitCompleted  = "COMPLETED"
	VisitCancelled  = "CANCELLED"
)

// OpenVisitStatuses mark a visit that still holds the patient's slot for the day.
var OpenVisitStatuses = []string{VisitActive, VisitWaiting, VisitInProgress}

func IsOpenVisitStatus(status string) bool {
	return contains(OpenVisitStatuses, status)
}

const (
	MethodOTP    = "OTP"
	MethodQRCode = "QR_CODE"
	MethodSMS    = "SMS"
)
