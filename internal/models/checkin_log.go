package models

import "time"

type CheckInLog struct {
	CheckInLogID    int64     `json:"check_in_log_id"`
	VisitID         int64     `json:"visit_id"`
	PatientID       int64     `json:"patient_id"`
	CheckInMethod   string    `json:"check_in_method"`
	QRCodeValue     string    `json:"qr_code_value,omitempty"`
	CheckInDatetime time.Time `json:"check_in_datetime"`
	Success         bool      `json:"success"`
	ErrorMessage    string    `json:"error_message,omitempty"`
}
