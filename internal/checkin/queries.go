package checkin

import (
	"context"
	"errors"
	"strings"
	"time"

	"clinicq/queue-service/internal/models"
	"clinicq/queue-service/internal/store"
)

const unknownDepartment = "Unknown"

func (s *Service) SearchPatients(ctx context.Context, filter store.PatientFilter) ([]models.Patient, error) {
	filter.FirstName = strings.TrimSpace(filter.FirstName)
	filter.LastName = strings.TrimSpace(filter.LastName)
	filter.PhoneNumber = strings.TrimSpace(filter.PhoneNumber)
	if filter.Empty() {
		return nil, store.ErrNoSearchFilter
	}
	switch {
	case filter.Limit == 0:
		filter.Limit = s.opts.SearchDefaultLimit
	case filter.Limit < 0 || filter.Limit > s.opts.SearchMaxLimit:
		return nil, store.ErrInvalidLimit
	}
	patients, err := s.store.SearchPatients(ctx, filter)
	if err != nil {
		return nil, err
	}
	if patients == nil {
		patients = []models.Patient{}
	}
	return patients, nil
}

type QueuedPatient struct {
	TicketID          int64      `json:"ticket_id"`
	PatientName       string     `json:"patient_name"`
	QueuePosition     int        `json:"queue_position"`
	QueueStatus       string     `json:"queue_status"`
	EstimatedWaitTime int        `json:"estimated_wait_time"`
	CheckInTime       *time.Time `json:"check_in_time"`
}

type ClinicianQueue struct {
	DoctorID       int64           `json:"doctor_id"`
	DoctorName     string          `json:"doctor_name"`
	DepartmentName string          `json:"department_name"`
	QueueDate      string          `json:"queue_date"`
	TotalPatients  int             `json:"total_patients"`
	QueueTickets   []QueuedPatient `json:"queue_tickets"`
}

// ClinicianQueue lists a doctor's active tickets for queueDate (YYYY-MM-DD,
// today when empty) ordered by position.
func (s *Service) ClinicianQueue(ctx context.Context, doctorID int64, queueDate string) (ClinicianQueue, error) {
	if doctorID <= 0 {
		return ClinicianQueue{}, store.ErrInvalidID
	}
	day := s.today()
	if queueDate = strings.TrimSpace(queueDate); queueDate != "" {
		parsed, err := s.calendar.ParseDay(queueDate)
		if err != nil {
			return ClinicianQueue{}, err
		}
		day = parsed
	}

	var doctor models.Doctor
	department := unknownDepartment
	err := s.store.WithinTx(ctx, func(tx store.Tx) error {
		var err error
		doctor, err = tx.GetDoctor(ctx, doctorID)
		if err != nil {
			return err
		}
		if !doctor.IsActive {
			return store.ErrDoctorNotFound
		}
		department, err = departmentName(ctx, tx, doctor.DepartmentID)
		return err
	})
	if err != nil {
		return ClinicianQueue{}, err
	}

	entries, err := s.store.ListDoctorQueue(ctx, doctorID, day)
	if err != nil {
		return ClinicianQueue{}, err
	}
	out := ClinicianQueue{
		DoctorID:       doctor.DoctorID,
		DoctorName:     doctor.DisplayName(),
		DepartmentName: department,
		QueueDate:      day.Format(time.DateOnly),
		TotalPatients:  len(entries),
		QueueTickets:   make([]QueuedPatient, 0, len(entries)),
	}
	for _, entry := range entries {
		out.QueueTickets = append(out.QueueTickets, QueuedPatient{
			TicketID:          entry.Ticket.TicketID,
			PatientName:       entry.PatientName,
			QueuePosition:     entry.Ticket.QueuePosition,
			QueueStatus:       entry.Ticket.QueueStatus,
			EstimatedWaitTime: entry.Ticket.EstimatedWaitTime,
			CheckInTime:       entry.CheckInDatetime,
		})
	}
	return out, nil
}

func departmentName(ctx context.Context, tx store.Tx, departmentID *int64) (string, error) {
	if departmentID == nil {
		return unknownDepartment, nil
	}
	dept, err := tx.GetDepartment(ctx, *departmentID)
	if errors.Is(err, store.ErrNotFound) {
		return unknownDepartment, nil
	}
	if err != nil {
		return "", err
	}
	return dept.DepartmentName, nil
}

type AppointmentStatus struct {
	VisitID           int64      `json:"visit_id"`
	PatientName       string     `json:"patient_name"`
	DoctorName        string     `json:"doctor_name,omitempty"`
	DepartmentName    string     `json:"department_name"`
	VisitDate         string     `json:"visit_date"`
	VisitStatus       string     `json:"visit_status"`
	CheckInDatetime   *time.Time `json:"check_in_datetime"`
	TicketID          *int64     `json:"ticket_id"`
	QueueStatus       *string    `json:"queue_status"`
	QueuePosition     *int       `json:"queue_position"`
	EstimatedWaitTime *int       `json:"estimated_wait_time"`
	CalledAt          *time.Time `json:"called_at"`
}

// AppointmentStatus reports a visit with its people and, once checked in, its ticket.
func (s *Service) AppointmentStatus(ctx context.Context, visitID int64) (AppointmentStatus, error) {
	if visitID <= 0 {
		return AppointmentStatus{}, store.ErrInvalidID
	}
	var out AppointmentStatus
	err := s.store.WithinTx(ctx, func(tx store.Tx) error {
		visit, err := tx.GetVisit(ctx, visitID)
		if errors.Is(err, store.ErrNotFound) {
			return store.ErrAppointmentMissing
		}
		if err != nil {
			return err
		}
		patient, err := tx.GetPatient(ctx, visit.PatientID)
		if err != nil {
			return err
		}
		out = AppointmentStatus{
			VisitID:         visit.VisitID,
			PatientName:     patient.FullName(),
			VisitDate:       visit.VisitDate.Format(time.DateOnly),
			VisitStatus:     visit.VisitStatus,
			CheckInDatetime: visit.CheckInDatetime,
		}
		if visit.DoctorID != nil {
			doctor, err := tx.GetDoctor(ctx, *visit.DoctorID)
			if err != nil {
				return err
			}
			out.DoctorName = doctor.DisplayName()
		}
		if out.DepartmentName, err = departmentName(ctx, tx, visit.DepartmentID); err != nil {
			return err
		}
		ticket, ok, err := tx.FindTicketByVisit(ctx, visit.VisitID)
		if err != nil {
			return err
		}
		if ok {
			out.TicketID = &ticket.TicketID
			out.QueueStatus = &ticket.QueueStatus
			out.QueuePosition = &ticket.QueuePosition
			out.EstimatedWaitTime = &ticket.EstimatedWaitTime
			out.CalledAt = ticket.CalledAt
		}
		return nil
	})
	if err != nil {
		return AppointmentStatus{}, err
	}
	return out, nil
}

type TicketHistory struct {
	TicketID      int64               `json:"ticket_id"`
	CurrentStatus string              `json:"current_status"`
	ChainValid    bool                `json:"chain_valid"`
	Events        []store.TicketEvent `json:"events"`
}

// TicketEvents returns the ticket's audit chain and whether it verifies.
func (s *Service) TicketEvents(ctx context.Context, ticketID int64) (TicketHistory, error) {
	if ticketID <= 0 {
		return TicketHistory{}, store.ErrInvalidID
	}
	events, err := s.store.ListTicketEvents(ctx, ticketID)
	if err != nil {
		return TicketHistory{}, err
	}
	if len(events) == 0 {
		return TicketHistory{}, store.ErrTicketNotFound
	}
	replayed, err := store.RehydrateTicket(events)
	if err != nil {
		return TicketHistory{}, err
	}
	return TicketHistory{
		TicketID:      ticketID,
		CurrentStatus: replayed.QueueStatus,
		ChainValid:    store.VerifyTicketEvents(events),
		Events:        events,
	}, nil
}
