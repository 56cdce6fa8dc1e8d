package store

import (
	"context"
	"time"

	"clinicq/queue-service/internal/models"
)

// Store is the persistence gateway. Every mutating flow goes through WithinTx,
// which runs fn as one atomic unit of work and re-runs it from the start when
// the backend reports a concurrent-write conflict.
type Store interface {
	WithinTx(ctx context.Context, fn func(tx Tx) error) error
	SearchPatients(ctx context.Context, filter PatientFilter) ([]models.Patient, error)
	ListDoctorQueue(ctx context.Context, doctorID int64, queueDate time.Time) ([]QueueEntry, error)
	ListTicketEvents(ctx context.Context, ticketID int64) ([]TicketEvent, error)
}

// Tx is the view of the store inside one unit of work. Getters that feed a
// mutation (GetTicket, FindActiveOTP, LockQueueDay) lock what they read.
type Tx interface {
	LockQueueDay(ctx context.Context, queueDate time.Time) error
	QueueDepth(ctx context.Context, queueDate time.Time) (QueueDepth, error)

	GetPatient(ctx context.Context, patientID int64) (models.Patient, error)
	FindPatientByPhone(ctx context.Context, phone string) (models.Patient, bool, error)
	CreatePatient(ctx context.Context, patient models.Patient) (models.Patient, error)

	GetDepartment(ctx context.Context, departmentID int64) (models.Department, error)
	GetDoctor(ctx context.Context, doctorID int64) (models.Doctor, error)

	FindVisitForDay(ctx context.Context, patientID int64, visitDate time.Time, statuses []string) (models.Visit, bool, error)
	GetVisit(ctx context.Context, visitID int64) (models.Visit, error)
	CreateVisit(ctx context.Context, visit models.Visit) (models.Visit, error)
	UpdateVisit(ctx context.Context, visit models.Visit) error

	GetTicket(ctx context.Context, ticketID int64) (models.QueueTicket, error)
	FindTicketByVisit(ctx context.Context, visitID int64) (models.QueueTicket, bool, error)
	CreateTicket(ctx context.Context, ticket models.QueueTicket) (models.QueueTicket, error)
	UpdateTicket(ctx context.Context, ticket models.QueueTicket) error
	AppendTicketEvent(ctx context.Context, ticketID int64, eventType string, payload []byte, createdAt time.Time) error

	FindActiveOTP(ctx context.Context, phone string) (models.OTPRecord, bool, error)
	LatestOTP(ctx context.Context, phone string) (models.OTPRecord, bool, error)
	ExpireStaleOTPs(ctx context.Context, phone string, now time.Time) error
	CreateOTP(ctx context.Context, record models.OTPRecord) (models.OTPRecord, error)
	UpdateOTP(ctx context.Context, record models.OTPRecord) error

	InsertCheckInLog(ctx context.Context, entry models.CheckInLog) error
}

// QueueDepth summarises the active tickets of one queue date.
type QueueDepth struct {
	Active      int
	MaxPosition int
}

type QueueEntry struct {
	Ticket          models.QueueTicket
	PatientName     string
	CheckInDatetime *time.Time
}

type PatientFilter struct {
	PatientID   *int64
	FirstName   string
	LastName    string
	PhoneNumber string
	BloodGroup  string
	PatientType string
	IsActive    *bool
	Limit       int
}

func (f PatientFilter) Empty() bool {
	return f.PatientID == nil && f.FirstName == "" && f.LastName == "" && f.PhoneNumber == "" &&
		f.BloodGroup == "" && f.PatientType == "" && f.IsActive == nil
}
